// Package transport adapts a serial port to the byte-level link the panel
// engine drives: bounded single-byte reads, frame writes, flush and a DTR
// pulse used to reset the panel between unlock attempts.
package transport

import (
	"time"

	"codeberg.org/mutker/atommanctl/internal/errors"
	"codeberg.org/mutker/atommanctl/internal/logger"
	"codeberg.org/mutker/atommanctl/internal/protocol"
	"go.bug.st/serial"
)

const (
	dtrLowDuration = 50 * time.Millisecond
	pulseSettle    = 300 * time.Millisecond
)

// Config describes the port. RTSCTS and DSRDTR request hardware flow control
// on the RTS/CTS and DSR/DTR pairs; they do not choose the open line state.
type Config struct {
	Port        string
	Baud        int
	RTSCTS      bool
	DSRDTR      bool
	ReadTimeout time.Duration
	WriteSleep  time.Duration
}

// Link is an open serial connection to the panel.
type Link struct {
	port       SerialPort
	path       string
	writeSleep time.Duration
	sleep      func(time.Duration)
	buf        [1]byte
}

// Open opens and configures the serial port described by cfg.
func Open(cfg Config, factory PortFactory) (*Link, error) {
	errFactory := errors.New()

	if factory == nil {
		factory = DefaultPortFactory
	}

	mode := &serial.Mode{
		BaudRate:          cfg.Baud,
		DataBits:          8,
		Parity:            serial.NoParity,
		StopBits:          serial.OneStopBit,
		InitialStatusBits: openStatusBits(),
	}

	if cfg.RTSCTS {
		logger.Warn().Msg("RTS/CTS flow control is not supported by the serial backend, keeping RTS asserted")
	}

	port, err := factory(cfg.Port, mode)
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrOpenPort, err).WithData(cfg.Port)
	}

	if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
		_ = port.Close()
		return nil, errFactory.Wrap(errors.ErrConfigurePort, err)
	}

	// Stale bytes from before the open would otherwise be parsed as polls
	if err := port.ResetInputBuffer(); err != nil {
		logger.Debug().Err(err).Msg("Failed to reset input buffer")
	}
	if err := port.ResetOutputBuffer(); err != nil {
		logger.Debug().Err(err).Msg("Failed to reset output buffer")
	}

	logger.Info().
		Str("port", cfg.Port).
		Int("baud", cfg.Baud).
		Bool("rtscts", cfg.RTSCTS).
		Bool("dsrdtr", cfg.DSRDTR).
		Msg("Serial port opened")

	return &Link{
		port:       port,
		path:       cfg.Port,
		writeSleep: cfg.WriteSleep,
		sleep:      time.Sleep,
	}, nil
}

// openStatusBits asserts both modem lines on open. A line without flow
// control is raised explicitly and a flow-controlled line is already high
// after the tty driver opens it, so the panel sees RTS and DTR high either way.
func openStatusBits() *serial.ModemOutputBits {
	return &serial.ModemOutputBits{RTS: true, DTR: true}
}

// ReadByte reads a single byte, returning protocol.ErrReadTimeout when the
// port's read timeout elapses without data.
func (l *Link) ReadByte() (byte, error) {
	n, err := l.port.Read(l.buf[:])
	if err != nil {
		return 0, errors.New().Wrap(errors.ErrReadFrame, err)
	}
	if n == 0 {
		return 0, protocol.ErrReadTimeout
	}

	return l.buf[0], nil
}

// Write writes a complete frame.
func (l *Link) Write(frame []byte) error {
	errFactory := errors.New()

	n, err := l.port.Write(frame)
	if err != nil {
		return errFactory.Wrap(errors.ErrWriteFrame, err)
	}
	if n != len(frame) {
		return errFactory.Wrap(errors.ErrWriteFrame, errFactory.WithData(ErrShortWrite, n))
	}

	return nil
}

// Flush waits until written bytes left the port, then pauses for the
// configured post-write settle time.
func (l *Link) Flush() error {
	if err := l.port.Drain(); err != nil {
		return errors.New().Wrap(errors.ErrFlushFrame, err)
	}
	if l.writeSleep > 0 {
		l.sleep(l.writeSleep)
	}

	return nil
}

// PulseControlLine drops DTR briefly and waits for the panel to settle.
func (l *Link) PulseControlLine() error {
	errFactory := errors.New()

	if err := l.port.SetDTR(false); err != nil {
		return errFactory.Wrap(errors.ErrControlLine, err)
	}
	l.sleep(dtrLowDuration)
	if err := l.port.SetDTR(true); err != nil {
		return errFactory.Wrap(errors.ErrControlLine, err)
	}
	l.sleep(pulseSettle)

	logger.Debug().Str("port", l.path).Msg("DTR pulsed")

	return nil
}

// Close closes the underlying port.
func (l *Link) Close() error {
	if err := l.port.Close(); err != nil {
		return errors.New().Wrap(errors.ErrShutdownFailed, err)
	}
	return nil
}
