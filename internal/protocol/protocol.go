// Package protocol implements the panel's poll/reply framing.
//
// Poll (panel to host):  AA 05 <seq> CC 33 C3 3C
// Reply (host to panel): AA <tile> 00 <seq> <latin-1 payload> CC 33 C3 3C
package protocol

import (
	"bytes"
	"errors"

	"golang.org/x/text/encoding/charmap"
)

const (
	FrameStart byte = 0xAA
	PollType   byte = 0x05
	PollLength      = 7

	replyReserved byte = 0x00
)

// Trailer terminates every poll and reply frame.
var Trailer = [4]byte{0xCC, 0x33, 0xC3, 0x3C}

// ErrReadTimeout is returned by a ByteReader when no byte arrived in time.
var ErrReadTimeout = errors.New("read timeout")

// ByteReader is the bounded-wait read side of the serial link.
type ByteReader interface {
	// ReadByte blocks for at most the link's read timeout and returns
	// ErrReadTimeout when nothing arrived.
	ReadByte() (byte, error)
}

// Outcome classifies a single ReadPoll call.
type Outcome int

const (
	PollValid Outcome = iota
	PollInvalid
	PollTimeout
)

func (o Outcome) String() string {
	switch o {
	case PollValid:
		return "valid"
	case PollInvalid:
		return "invalid"
	case PollTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// ParsePoll validates a complete 7-byte poll frame and returns its sequence byte.
func ParsePoll(frame []byte) (byte, bool) {
	if len(frame) != PollLength {
		return 0, false
	}
	if frame[0] != FrameStart || frame[1] != PollType {
		return 0, false
	}
	if !bytes.Equal(frame[3:], Trailer[:]) {
		return 0, false
	}

	return frame[2], true
}

// ReadPoll reads one poll frame from r. It stops at the first byte that does
// not match the fixed layout, so a misaligned stream resynchronises one byte
// at a time. A non-timeout read error is returned as-is with PollInvalid.
func ReadPoll(r ByteReader) (byte, Outcome, error) {
	b, err := r.ReadByte()
	if err != nil {
		return readFailure(err)
	}
	if b != FrameStart {
		return 0, PollInvalid, nil
	}

	if b, err = r.ReadByte(); err != nil {
		return readFailure(err)
	}
	if b != PollType {
		return 0, PollInvalid, nil
	}

	seq, err := r.ReadByte()
	if err != nil {
		return readFailure(err)
	}

	for _, want := range Trailer {
		if b, err = r.ReadByte(); err != nil {
			return readFailure(err)
		}
		if b != want {
			return 0, PollInvalid, nil
		}
	}

	return seq, PollValid, nil
}

func readFailure(err error) (byte, Outcome, error) {
	if errors.Is(err, ErrReadTimeout) {
		return 0, PollTimeout, nil
	}

	return 0, PollInvalid, err
}

// BuildReply serialises a reply frame. Payload runes outside ISO-8859-1 are dropped.
func BuildReply(tileID, seq byte, payload string) []byte {
	frame := make([]byte, 0, 4+len(payload)+len(Trailer))
	frame = append(frame, FrameStart, tileID, replyReserved, seq)
	frame = append(frame, EncodeLatin1(payload)...)

	return append(frame, Trailer[:]...)
}

// EncodeLatin1 encodes s as single-byte ISO-8859-1, skipping unencodable runes.
func EncodeLatin1(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if b, ok := charmap.ISO8859_1.EncodeRune(r); ok {
			out = append(out, b)
		}
	}

	return out
}

// IsBootSequence reports whether seq is one of the boot-phase sequence bytes
// the panel sends before it accepts fixed per-tile codes: '0'..'9' or '<'.
func IsBootSequence(seq byte) bool {
	return (seq >= '0' && seq <= '9') || seq == '<'
}
