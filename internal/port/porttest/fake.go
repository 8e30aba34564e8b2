// internal/port/porttest/fake.go
// Package porttest provides an in-memory serial link that behaves like a WinKeyer
// for tests.
package porttest

import (
	"errors"
	"sync"
	"time"
)

// ErrClosed is returned by reads and writes after Close.
var ErrClosed = errors.New("fake link closed")

// HostOpen is the admin command the fake answers with its version response.
var HostOpen = []byte{0x00, 0x02}

// Link is a fake serial link. Bytes queued with Feed are returned by Read one
// slice at a time; a Read with nothing queued waits for the read timeout and
// returns 0, nil like go.bug.st/serial does.
type Link struct {
	mu          sync.Mutex
	in          chan byte
	writes      [][]byte
	readTimeout time.Duration
	readErr     error
	writeErr    error
	closed      bool
	closedCh    chan struct{}
	closeCount  int
	resets      int
	stall       *stall

	// Response is queued after every HostOpen write.
	Response []byte
	// OnWrite, if set, runs after each successful write.
	OnWrite func(p []byte)
}

// New returns a fake that answers HostOpen with firmware version 31.
func New() *Link {
	return &Link{
		in:          make(chan byte, 4096),
		closedCh:    make(chan struct{}),
		readTimeout: 10 * time.Millisecond,
		Response:    []byte{0x00, 0x1F},
	}
}

// Feed queues bytes for Read.
func (l *Link) Feed(b ...byte) {
	for _, x := range b {
		l.in <- x
	}
}

// FailReads makes every subsequent Read return err.
func (l *Link) FailReads(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.readErr = err
}

// FailWrites makes every subsequent Write return err.
func (l *Link) FailWrites(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writeErr = err
}

type stall struct {
	entered chan struct{}
	release chan []byte
}

// Stall makes the next Read block until release is called, ignoring both the
// read timeout and Close, like a driver stuck in the kernel. entered is closed
// once a Read is blocked. release must be called once.
func (l *Link) Stall() (entered <-chan struct{}, release func(p ...byte)) {
	st := &stall{entered: make(chan struct{}), release: make(chan []byte, 1)}
	l.mu.Lock()
	l.stall = st
	l.mu.Unlock()
	return st.entered, func(p ...byte) { st.release <- p }
}

func (l *Link) Read(p []byte) (int, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return 0, ErrClosed
	}
	if st := l.stall; st != nil {
		l.stall = nil
		l.mu.Unlock()
		close(st.entered)
		return copy(p, <-st.release), nil
	}
	if l.readErr != nil {
		err := l.readErr
		l.mu.Unlock()
		return 0, err
	}
	timeout := l.readTimeout
	l.mu.Unlock()

	if len(p) == 0 {
		return 0, nil
	}

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case b := <-l.in:
		p[0] = b
		n := 1
		for n < len(p) {
			select {
			case b = <-l.in:
				p[n] = b
				n++
				continue
			default:
			}
			break
		}
		return n, nil
	case <-l.closedCh:
		return 0, ErrClosed
	case <-t.C:
		return 0, nil
	}
}

func (l *Link) Write(p []byte) (int, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return 0, ErrClosed
	}
	if l.writeErr != nil {
		err := l.writeErr
		l.mu.Unlock()
		return 0, err
	}
	cp := append([]byte(nil), p...)
	l.writes = append(l.writes, cp)
	hook := l.OnWrite
	resp := l.Response
	l.mu.Unlock()

	if len(cp) == 2 && cp[0] == HostOpen[0] && cp[1] == HostOpen[1] && len(resp) > 0 {
		l.Feed(resp...)
	}
	if hook != nil {
		hook(cp)
	}
	return len(p), nil
}

func (l *Link) ResetInputBuffer() error {
	l.mu.Lock()
	l.resets++
	l.mu.Unlock()
	for {
		select {
		case <-l.in:
		default:
			return nil
		}
	}
}

func (l *Link) SetReadTimeout(t time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.readTimeout = t
	return nil
}

func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closeCount++
	if !l.closed {
		l.closed = true
		close(l.closedCh)
	}
	return nil
}

// Writes returns every write in order.
func (l *Link) Writes() [][]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([][]byte, len(l.writes))
	copy(out, l.writes)
	return out
}

// Closed reports whether Close was called.
func (l *Link) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// CloseCount returns how many times Close was called.
func (l *Link) CloseCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeCount
}

// Resets returns how many times the input buffer was discarded.
func (l *Link) Resets() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.resets
}
