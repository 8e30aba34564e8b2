// internal/port/session.go
// Package port owns the serial connection to a WinKeyer: the host-open handshake,
// register configuration, serialized access to the handle and the best-effort
// close sequence.
package port

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.bug.st/serial"

	"github.com/ColonelBlimp/wklink/internal/logger"
	"github.com/ColonelBlimp/wklink/internal/winkeyer"
)

var (
	// ErrPortUnavailable indicates the serial link could not be opened or the
	// handshake could not be written
	ErrPortUnavailable = errors.New("port unavailable")
	// ErrHandshakeTimeout indicates the keyer sent nothing back after HostOpen
	ErrHandshakeTimeout = errors.New("handshake timeout: no response to host open")
	// ErrLinkFault indicates an I/O failure on an open session
	ErrLinkFault = errors.New("serial link fault")
	// ErrConfigWrite indicates a live register write failed
	ErrConfigWrite = errors.New("config write failed")
	// ErrSessionClosed indicates the session was already closed
	ErrSessionClosed = errors.New("session closed")
	// ErrInvalidReadTimeout indicates the read timeout must be positive
	ErrInvalidReadTimeout = errors.New("read timeout must be positive")
	// ErrInvalidHandshakeTimeout indicates the handshake timeout must be positive
	ErrInvalidHandshakeTimeout = errors.New("handshake timeout must be positive")
)

// Link is the part of a serial port the session uses. go.bug.st/serial ports
// satisfy it.
type Link interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	ResetInputBuffer() error
	SetReadTimeout(t time.Duration) error
	Close() error
}

// OpenFunc opens the link at path.
type OpenFunc func(path string, mode *serial.Mode) (Link, error)

// SerialOpen opens a real serial port.
func SerialOpen(path string, mode *serial.Mode) (Link, error) {
	p, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Config holds the session configuration.
type Config struct {
	// SwapPaddles sets the mode register's swap bit
	SwapPaddles bool
	// MuteSidetone silences the keyer's sidetone while the session is open
	MuteSidetone bool
	// SidetoneRestore is the sidetone register value written on close if muted
	SidetoneRestore byte
	// BaudRate of the link (WinKeyer: 1200)
	BaudRate int
	// ReadTimeout bounds a single read so a stop request is seen promptly
	ReadTimeout time.Duration
	// HandshakeTimeout bounds the wait for the HostOpen response
	HandshakeTimeout time.Duration
	// OpenSettle is the delay after opening the link
	OpenSettle time.Duration
	// ResetSettle is the delay after the stale-session HostClose
	ResetSettle time.Duration
	// ModeSettle is the delay after writing the mode register
	ModeSettle time.Duration
	// CloseDrain is the delay after HostClose before the link is closed
	CloseDrain time.Duration
	// Open opens the link; defaults to SerialOpen
	Open OpenFunc
	// Logger; defaults to the package logger
	Logger logger.Logger
}

// DefaultConfig returns the timings the WinKeyer needs.
func DefaultConfig() Config {
	return Config{
		MuteSidetone:     true,
		SidetoneRestore:  winkeyer.SidetoneDefault,
		BaudRate:         winkeyer.BaudRate,
		ReadTimeout:      50 * time.Millisecond,
		HandshakeTimeout: time.Second,
		OpenSettle:       500 * time.Millisecond,
		ResetSettle:      time.Second,
		ModeSettle:       100 * time.Millisecond,
		CloseDrain:       50 * time.Millisecond,
	}
}

func (c *Config) validate() error {
	if c.ReadTimeout <= 0 {
		return ErrInvalidReadTimeout
	}
	if c.HandshakeTimeout <= 0 {
		return ErrInvalidHandshakeTimeout
	}
	if c.BaudRate <= 0 {
		c.BaudRate = winkeyer.BaudRate
	}
	if c.Open == nil {
		c.Open = SerialOpen
	}
	if c.Logger == nil {
		c.Logger = logger.Default()
	}
	return nil
}

// Session is an open, handshaken connection to a keyer.
//
// ReadByte and register writes share one I/O mutex, so the single reader and the
// controlling goroutine never touch the handle at the same time.
type Session struct {
	cfg    Config
	link   Link
	logger logger.Logger

	ioMu    sync.Mutex
	buf     [1]byte
	muted   bool
	swapped bool
	// set once by Close, with or without the I/O mutex
	closed atomic.Bool

	firmware    byte
	hasFirmware bool
}

// Open opens path and runs the host-open handshake.
func Open(ctx context.Context, path string, cfg Config) (*Session, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log := cfg.Logger.With("port", path)

	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	link, err := cfg.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrPortUnavailable, path, err)
	}

	s := &Session{cfg: cfg, link: link, logger: log}
	if err := s.handshake(ctx); err != nil {
		if cerr := link.Close(); cerr != nil {
			log.Debug("close after failed handshake", "error", cerr)
		}
		return nil, err
	}
	return s, nil
}

func (s *Session) handshake(ctx context.Context) error {
	if err := s.link.SetReadTimeout(s.cfg.ReadTimeout); err != nil {
		return fmt.Errorf("%w: set read timeout: %w", ErrPortUnavailable, err)
	}
	if err := sleep(ctx, s.cfg.OpenSettle); err != nil {
		return err
	}

	// clear any host session a previous run left open
	if err := s.link.ResetInputBuffer(); err != nil {
		return fmt.Errorf("%w: reset input: %w", ErrPortUnavailable, err)
	}
	if err := s.write(winkeyer.HostClose()); err != nil {
		return fmt.Errorf("%w: host close: %w", ErrPortUnavailable, err)
	}
	if err := sleep(ctx, s.cfg.ResetSettle); err != nil {
		return err
	}
	if err := s.link.ResetInputBuffer(); err != nil {
		return fmt.Errorf("%w: reset input: %w", ErrPortUnavailable, err)
	}

	if err := s.write(winkeyer.HostOpen()); err != nil {
		return fmt.Errorf("%w: host open: %w", ErrPortUnavailable, err)
	}
	resp, err := s.readResponse(ctx)
	if err != nil {
		return err
	}
	if len(resp) == 0 {
		return ErrHandshakeTimeout
	}
	if ver, ok := winkeyer.FindFirmwareVersion(resp); ok {
		s.firmware, s.hasFirmware = ver, true
		s.logger.Info("winkeyer connected", "firmware", int(ver))
	} else {
		s.logger.Warn("winkeyer open, no firmware version in response", "response", fmt.Sprintf("% X", resp))
	}

	if err := s.write(winkeyer.SetMode(s.cfg.SwapPaddles)); err != nil {
		return fmt.Errorf("%w: set mode: %w", ErrPortUnavailable, err)
	}
	s.swapped = s.cfg.SwapPaddles
	if err := sleep(ctx, s.cfg.ModeSettle); err != nil {
		return err
	}

	if s.cfg.MuteSidetone {
		if err := s.write(winkeyer.SetSidetone(winkeyer.SidetoneMuted)); err != nil {
			return fmt.Errorf("%w: mute sidetone: %w", ErrPortUnavailable, err)
		}
		s.muted = true
	}
	s.logger.Debug("mode configured", "mode", fmt.Sprintf("0x%02X", winkeyer.ModeByte(s.swapped)), "muted", s.muted)
	return nil
}

// readResponse collects HostOpen response bytes until two have arrived or the
// handshake timeout expires.
func (s *Session) readResponse(ctx context.Context) ([]byte, error) {
	deadline := time.Now().Add(s.cfg.HandshakeTimeout)
	var resp []byte
	buf := make([]byte, 8)
	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := s.link.Read(buf)
		if err != nil {
			return nil, fmt.Errorf("%w: read host open response: %w", ErrPortUnavailable, err)
		}
		resp = append(resp, buf[:n]...)
		if len(resp) >= 2 {
			break
		}
	}
	return resp, nil
}

// ReadByte performs one bounded read. ok is false with a nil error when the read
// timed out; a non-nil error is a link fault.
func (s *Session) ReadByte() (b byte, ok bool, err error) {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	if s.closed.Load() {
		return 0, false, fmt.Errorf("%w: %w", ErrLinkFault, ErrSessionClosed)
	}
	n, err := s.link.Read(s.buf[:])
	if err != nil {
		return 0, false, fmt.Errorf("%w: %w", ErrLinkFault, err)
	}
	if n == 0 {
		return 0, false, nil
	}
	return s.buf[0], true, nil
}

// WriteRegister writes a two-byte register command.
func (s *Session) WriteRegister(cmd, value byte) error {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()
	return s.writeRegisterLocked(cmd, value)
}

func (s *Session) writeRegisterLocked(cmd, value byte) error {
	if s.closed.Load() {
		return fmt.Errorf("%w: %w", ErrConfigWrite, ErrSessionClosed)
	}
	if err := s.write([]byte{cmd, value}); err != nil {
		return fmt.Errorf("%w: register 0x%02X=0x%02X: %w", ErrConfigWrite, cmd, value, err)
	}
	return nil
}

// SetSidetoneMuted mutes or restores the keyer sidetone.
func (s *Session) SetSidetoneMuted(muted bool) error {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	value := s.cfg.SidetoneRestore
	if muted {
		value = winkeyer.SidetoneMuted
	}
	if err := s.writeRegisterLocked(winkeyer.CmdSidetone, value); err != nil {
		return err
	}
	s.muted = muted
	return nil
}

// SetSwapPaddles rewrites the mode register with the swap bit set or cleared.
func (s *Session) SetSwapPaddles(swap bool) error {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	if err := s.writeRegisterLocked(winkeyer.CmdMode, winkeyer.ModeByte(swap)); err != nil {
		return err
	}
	s.swapped = swap
	return nil
}

// Muted reports whether the sidetone is currently muted.
func (s *Session) Muted() bool {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()
	return s.muted
}

// Swapped reports whether the paddles are currently swapped.
func (s *Session) Swapped() bool {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()
	return s.swapped
}

// Firmware returns the version byte seen during the handshake.
func (s *Session) Firmware() (byte, bool) {
	return s.firmware, s.hasFirmware
}

// Close restores the sidetone if it was muted, releases host control and closes
// the link. Failures are logged and returned joined, never panicked; calling
// Close again is a no-op.
//
// If a read is stuck and the I/O mutex cannot be taken within a few read
// timeouts, the link is closed without the courtesy writes.
func (s *Session) Close() error {
	if s.closed.Load() {
		return nil
	}
	locked := s.lockWithin(4 * s.cfg.ReadTimeout)
	if locked {
		defer s.ioMu.Unlock()
	}
	if s.closed.Swap(true) {
		return nil
	}

	var errs []error
	if !locked {
		s.logger.Warn("reader still holds the link, closing without host close")
	} else {
		if s.muted {
			if err := s.write(winkeyer.SetSidetone(s.cfg.SidetoneRestore)); err != nil {
				errs = append(errs, fmt.Errorf("restore sidetone: %w", err))
			} else {
				s.muted = false
			}
		}
		if err := s.write(winkeyer.HostClose()); err != nil {
			errs = append(errs, fmt.Errorf("host close: %w", err))
		}
		time.Sleep(s.cfg.CloseDrain)
	}
	if err := s.link.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close link: %w", err))
	}

	err := errors.Join(errs...)
	if err != nil {
		s.logger.Warn("close was not clean", "error", err)
	} else {
		s.logger.Info("disconnected")
	}
	return err
}

func (s *Session) lockWithin(d time.Duration) bool {
	deadline := time.Now().Add(d)
	for {
		if s.ioMu.TryLock() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
}

// write sends all of p. Callers serialize access.
func (s *Session) write(p []byte) error {
	written := 0
	for written < len(p) {
		n, err := s.link.Write(p[written:])
		if err != nil {
			return err
		}
		if n == 0 {
			return errors.New("write returned 0 bytes without error")
		}
		written += n
	}
	return nil
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
