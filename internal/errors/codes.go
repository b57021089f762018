package errors

// Code classifies an error for callers that decide whether a failure is
// fatal to a campaign or can be folded into a trial outcome.
type Code string

const (
	// CodeConnection covers device discovery and lifecycle misuse.
	CodeConnection Code = "CONNECTION"
	// CodeConfiguration covers out-of-domain values and read-only writes.
	CodeConfiguration Code = "CONFIGURATION"
	// CodeProtocol covers malformed or invalid target responses.
	CodeProtocol Code = "PROTOCOL"
	// CodeTimeout covers missing triggers and missing target responses.
	CodeTimeout Code = "TIMEOUT"
	// CodeFaulted covers transport I/O failures. The session must be
	// reconnected before further use.
	CodeFaulted Code = "FAULTED"
)

// Fatal reports whether errors of this code end a campaign.
func (c Code) Fatal() bool {
	switch c {
	case CodeProtocol, CodeTimeout:
		return false
	default:
		return true
	}
}
