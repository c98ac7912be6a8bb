package transport

import (
	"time"

	"go.bug.st/serial"
)

// SerialPort is the subset of serial.Port the link uses.
type SerialPort interface {
	Read(p []byte) (n int, err error)
	Write(p []byte) (n int, err error)
	Drain() error
	ResetInputBuffer() error
	ResetOutputBuffer() error
	SetDTR(dtr bool) error
	SetReadTimeout(t time.Duration) error
	Close() error
}

// PortFactory opens a serial port. Tests substitute a fake.
type PortFactory func(path string, mode *serial.Mode) (SerialPort, error)

// DefaultPortFactory opens real serial ports through go.bug.st/serial.
func DefaultPortFactory(path string, mode *serial.Mode) (SerialPort, error) {
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}
	return port, nil
}
