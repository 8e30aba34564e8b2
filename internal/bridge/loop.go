// internal/bridge/loop.go
package bridge

import (
	"context"

	"github.com/ColonelBlimp/wklink/internal/keyer"
	"github.com/ColonelBlimp/wklink/internal/logger"
	"github.com/ColonelBlimp/wklink/internal/morse"
	"github.com/ColonelBlimp/wklink/internal/recovery"
	"github.com/ColonelBlimp/wklink/internal/telemetry"
	"github.com/ColonelBlimp/wklink/internal/winkeyer"
)

// ByteSource is one bounded read at a time. *port.Session satisfies it.
type ByteSource interface {
	ReadByte() (b byte, ok bool, err error)
}

// ReaderLoop pulls bytes from the keyer and dispatches the resulting key events
// synchronously, in byte order. Everything else goes to telemetry.
type ReaderLoop struct {
	src        ByteSource
	tracker    *keyer.Tracker
	dispatcher *keyer.Dispatcher
	speed      winkeyer.SpeedRange
	events     telemetry.Publisher
	logger     logger.Logger
	stats      *counters

	lastWPM int
}

// NewReaderLoop wires a loop. events and log may be nil.
func NewReaderLoop(src ByteSource, tracker *keyer.Tracker, dispatcher *keyer.Dispatcher,
	speed winkeyer.SpeedRange, events telemetry.Publisher, log logger.Logger) *ReaderLoop {
	if events == nil {
		events = telemetry.Discard
	}
	if log == nil {
		log = logger.Default()
	}
	return &ReaderLoop{
		src:        src,
		tracker:    tracker,
		dispatcher: dispatcher,
		speed:      speed,
		events:     events,
		logger:     log,
		stats:      &counters{},
		lastWPM:    -1,
	}
}

// Run reads until ctx is done, returning nil, or until a read fails, returning
// the link fault. Cancellation is seen within one read timeout, and whatever a
// read returns after cancellation is dropped. A panic is recovered after every
// held key is released.
func (l *ReaderLoop) Run(ctx context.Context) (err error) {
	defer recovery.Recover(&err, func() {
		if rerr := l.dispatcher.ForceReleaseAll(); rerr != nil {
			l.logger.Warn("force release after panic", "error", rerr)
		}
	})

	for {
		if ctx.Err() != nil {
			return nil
		}
		b, ok, rerr := l.src.ReadByte()
		if ctx.Err() != nil {
			// stopped while the read was in flight; the session is gone
			return nil
		}
		if rerr != nil {
			return rerr
		}
		if !ok {
			continue
		}
		l.handle(b)
	}
}

func (l *ReaderLoop) handle(b byte) {
	l.stats.bytes.Add(1)
	c := winkeyer.Classify(b)

	switch c.Kind {
	case winkeyer.KindStatus:
		l.stats.statusBytes.Add(1)
		status := c.Status()
		events := l.tracker.Update(status)
		for _, ev := range events {
			if err := l.dispatcher.Dispatch(ev); err != nil {
				l.events.Publish(telemetry.Warning(err))
			}
		}
		l.stats.keyEvents.Add(uint64(len(events)))
		for _, ev := range events {
			l.events.Publish(telemetry.Key(ev.Contact.String(), ev.Edge.String(), ev.Time))
		}
		l.events.Publish(telemetry.Status(status.String()))

	case winkeyer.KindPot:
		l.stats.potReadings.Add(1)
		wpm := l.speed.WPM(c.Pot())
		if wpm == l.lastWPM {
			return
		}
		l.lastWPM = wpm
		l.events.Publish(telemetry.Speed(wpm))

	case winkeyer.KindEcho:
		l.stats.echoChars.Add(1)
		ch := rune(c.Echo())
		pattern, _ := morse.Pattern(ch)
		l.events.Publish(telemetry.Echo(string(ch), pattern))
	}
}
