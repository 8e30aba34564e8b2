// internal/bridge/stats.go
package bridge

import (
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/ColonelBlimp/wklink/internal/logger"
)

// Stats are the counters of one session.
type Stats struct {
	Started     time.Time
	Duration    time.Duration
	Bytes       uint64
	StatusBytes uint64
	PotReadings uint64
	EchoChars   uint64
	KeyEvents   uint64
	// Dropped counts telemetry events lost to a full queue, if the publisher
	// reports it.
	Dropped uint64
}

type counters struct {
	started     atomic.Int64
	stopped     atomic.Int64
	bytes       atomic.Uint64
	statusBytes atomic.Uint64
	potReadings atomic.Uint64
	echoChars   atomic.Uint64
	keyEvents   atomic.Uint64
}

func (c *counters) reset(now time.Time) {
	c.started.Store(now.UnixNano())
	c.stopped.Store(0)
	c.bytes.Store(0)
	c.statusBytes.Store(0)
	c.potReadings.Store(0)
	c.echoChars.Store(0)
	c.keyEvents.Store(0)
}

func (c *counters) stop(now time.Time) {
	c.stopped.Store(now.UnixNano())
}

func (c *counters) snapshot() Stats {
	s := Stats{
		Bytes:       c.bytes.Load(),
		StatusBytes: c.statusBytes.Load(),
		PotReadings: c.potReadings.Load(),
		EchoChars:   c.echoChars.Load(),
		KeyEvents:   c.keyEvents.Load(),
	}
	started := c.started.Load()
	if started == 0 {
		return s
	}
	s.Started = time.Unix(0, started)
	end := time.Now()
	if stopped := c.stopped.Load(); stopped != 0 {
		end = time.Unix(0, stopped)
	}
	s.Duration = end.Sub(s.Started)
	return s
}

// dropCounter is implemented by publishers that can lose events.
type dropCounter interface {
	Dropped() uint64
}

// Log writes the counters at info level.
func (s Stats) Log(log logger.Logger) {
	log.Info("session stats",
		"started", humanize.Time(s.Started),
		"duration", s.Duration.Round(time.Millisecond),
		"bytes", humanize.Comma(int64(s.Bytes)),
		"status", humanize.Comma(int64(s.StatusBytes)),
		"pot", humanize.Comma(int64(s.PotReadings)),
		"echo", humanize.Comma(int64(s.EchoChars)),
		"key_events", humanize.Comma(int64(s.KeyEvents)),
		"telemetry_dropped", humanize.Comma(int64(s.Dropped)),
	)
}
