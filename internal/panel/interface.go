package panel

import "codeberg.org/mutker/atommanctl/internal/protocol"

// Link is the serial connection to the panel.
type Link interface {
	protocol.ByteReader

	// Write sends one complete frame
	Write(frame []byte) error

	// Flush waits for the frame to leave the port
	Flush() error

	// PulseControlLine toggles the handshake line to nudge the panel
	PulseControlLine() error
}
