package campaign

// Outcome is the classification of one trial.
type Outcome string

const (
	// Success means the glitch changed the target's result.
	Success Outcome = "success"
	// Reset covers trials with no usable target result.
	Reset Outcome = "reset"
	// Normal means the target behaved as if unglitched.
	Normal Outcome = "normal"
	// Timeout is a capture that never triggered. It is recorded as Reset.
	Timeout Outcome = "timeout"
)

// Outcomes lists the recorded outcome groups in report order.
var Outcomes = []Outcome{Success, Reset, Normal}

// Group folds an outcome into the group it is recorded under.
func (o Outcome) Group() Outcome {
	if o == Timeout {
		return Reset
	}
	return o
}

// Reason refines an outcome. It is an open set of tags; readers must
// tolerate values they do not know.
type Reason string

const (
	// ReasonTriggerHigh: the trigger line was already high before arming.
	ReasonTriggerHigh Reason = "trigger_high"
	// ReasonCaptureTimeout: no trigger arrived within the capture timeout.
	ReasonCaptureTimeout Reason = "capture_timeout"
	// ReasonResponseTimeout: the target did not answer in time.
	ReasonResponseTimeout Reason = "response_timeout"
	// ReasonInvalidResponse: the target's reply failed framing checks.
	ReasonInvalidResponse Reason = "invalid_response"
	// ReasonPredicate: classified by the success predicate.
	ReasonPredicate Reason = "predicate"
)

// NeedsRecovery reports whether a trial with this reason leaves the target
// in a state that requires a reset before the next trial.
func (r Reason) NeedsRecovery() bool {
	switch r {
	case ReasonTriggerHigh, ReasonCaptureTimeout, ReasonResponseTimeout:
		return true
	}
	return false
}
