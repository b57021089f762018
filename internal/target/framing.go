package target

import (
	"encoding/hex"
	"fmt"
)

// Response is one decoded reply from the target. Payload is nil when the
// frame carried none.
type Response struct {
	Valid     bool
	Payload   []byte
	Raw       []byte
	ErrorCode int
	// TimedOut is set when fewer bytes than a full frame arrived.
	TimedOut bool
}

// Framing is the device-specific wire layout of the link.
type Framing interface {
	// Encode builds a request frame.
	Encode(cmd byte, payload []byte) []byte
	// ResponseLen is the full size on the wire of a reply carrying n payload bytes.
	ResponseLen(n int) int
	// Decode validates raw as a reply to cmd carrying n payload bytes.
	Decode(cmd byte, n int, raw []byte) Response
}

// FramingByName returns "text" or "binary".
func FramingByName(name string) (Framing, error) {
	switch name {
	case "", "text":
		return TextFraming{}, nil
	case "binary":
		return BinaryFraming{}, nil
	default:
		return nil, fmt.Errorf("unknown framing %q", name)
	}
}

// TextFraming is the ASCII simpleserial layout: a command character, the
// payload in hex and a newline, answered by the same shape followed by an
// ack line "z" + two hex digits of status.
type TextFraming struct{}

// Encode implements Framing.
func (TextFraming) Encode(cmd byte, payload []byte) []byte {
	out := make([]byte, 0, 2+2*len(payload))
	out = append(out, cmd)
	out = append(out, hex.EncodeToString(payload)...)
	return append(out, '\n')
}

// ResponseLen implements Framing.
func (TextFraming) ResponseLen(n int) int {
	return 1 + 2*n + 1 + 4
}

// Decode implements Framing.
func (f TextFraming) Decode(cmd byte, n int, raw []byte) Response {
	resp := Response{Raw: raw}
	body := 2 + 2*n
	if len(raw) < body {
		resp.TimedOut = true
		return resp
	}
	if raw[0] != cmd || raw[body-1] != '\n' {
		return resp
	}
	payload := make([]byte, n)
	if _, err := hex.Decode(payload, raw[1:body-1]); err != nil {
		return resp
	}
	if n > 0 {
		resp.Payload = payload
	}

	ack := raw[body:]
	if len(ack) < 4 {
		resp.TimedOut = true
		return resp
	}
	var status [1]byte
	if ack[0] != 'z' || ack[3] != '\n' {
		return resp
	}
	if _, err := hex.Decode(status[:], ack[1:3]); err != nil {
		return resp
	}
	resp.ErrorCode = int(status[0])
	resp.Valid = true
	return resp
}

// BinaryFraming is a compact layout: [cmd, len, payload..., status, crc8],
// with the CRC covering every byte before it.
type BinaryFraming struct{}

// Encode implements Framing.
func (BinaryFraming) Encode(cmd byte, payload []byte) []byte {
	out := make([]byte, 0, len(payload)+3)
	out = append(out, cmd, byte(len(payload)))
	out = append(out, payload...)
	return append(out, crc8(out))
}

// ResponseLen implements Framing.
func (BinaryFraming) ResponseLen(n int) int {
	return 2 + n + 2
}

// Decode implements Framing.
func (f BinaryFraming) Decode(cmd byte, n int, raw []byte) Response {
	resp := Response{Raw: raw}
	if len(raw) < f.ResponseLen(n) {
		resp.TimedOut = true
		return resp
	}
	frame := raw[:f.ResponseLen(n)]
	if frame[0] != cmd || int(frame[1]) != n {
		return resp
	}
	if crc8(frame[:len(frame)-1]) != frame[len(frame)-1] {
		return resp
	}
	if n > 0 {
		resp.Payload = append([]byte(nil), frame[2:2+n]...)
	}
	resp.ErrorCode = int(frame[2+n])
	resp.Valid = true
	return resp
}

// crc8 is CRC-8 with polynomial 0x4D, zero init, MSB first.
func crc8(data []byte) byte {
	var crc byte
	for _, b := range data {
		crc ^= b
		for i := 0; i < 8; i++ {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ 0x4D
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
