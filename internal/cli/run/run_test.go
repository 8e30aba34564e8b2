package run

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"

	"github.com/ColonelBlimp/wklink/internal/config"
	"github.com/ColonelBlimp/wklink/internal/inject"
	"github.com/ColonelBlimp/wklink/internal/keyer"
	"github.com/ColonelBlimp/wklink/internal/logger"
	"github.com/ColonelBlimp/wklink/internal/port"
	"github.com/ColonelBlimp/wklink/internal/port/porttest"
)

func testSettings() *config.Settings {
	return &config.Settings{
		Port:               "/dev/ttyFAKE0",
		Baud:               1200,
		MuteSidetone:       true,
		SidetoneRestore:    4,
		MinWPM:             10,
		RangeWPM:           20,
		ReadTimeoutMS:      5,
		JoinTimeoutMS:      200,
		HandshakeTimeoutMS: 60,
		Injector:           inject.NameLog,
		TelemetryBuffer:    16,
		MQTTTopic:          "wklink",
		LogFormat:          logger.FormatConsole,
	}
}

// syncBuffer is a bytes.Buffer safe for the concurrent writes Run makes.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func opener(link *porttest.Link) port.OpenFunc {
	return func(string, *serial.Mode) (port.Link, error) { return link, nil }
}

func TestRun_Commands(t *testing.T) {
	link := porttest.New()
	var out syncBuffer

	err := Run(context.Background(), testSettings(), Options{
		In:   strings.NewReader("m\ns\nhelp\nq\n"),
		Out:  &out,
		Log:  logger.NewRecorder(),
		Open: opener(link),
	})
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "connected to /dev/ttyFAKE0 (firmware 31)")
	assert.Contains(t, text, "sidetone muted: false")
	assert.Contains(t, text, "paddles swapped: true")
	assert.Contains(t, text, "commands:")

	writes := link.Writes()
	assert.Contains(t, writes, []byte{0x01, 0x04}, "mute toggle restores the sidetone")
	assert.Contains(t, writes, []byte{0x0E, 0xC8}, "swap toggle sets the swap bit")
	assert.Equal(t, []byte{0x00, 0x03}, writes[len(writes)-1], "host close is the last write")
	assert.True(t, link.Closed())
}

func TestRun_ContextCancelReleasesKeys(t *testing.T) {
	link := porttest.New()
	keys := inject.NewRecorder()
	ctx, cancel := context.WithCancel(context.Background())

	keys.OnAction(func(a inject.Action) {
		if a.Pressed {
			cancel()
		}
	})
	link.OnWrite = func(p []byte) {
		// last handshake step: start keying
		if bytes.Equal(p, []byte{0x01, 0x00}) {
			link.Feed(0xC2)
		}
	}

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, testSettings(), Options{
			Log:      logger.NewRecorder(),
			Injector: keys,
			Open:     opener(link),
		})
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, 1, keys.Count(keyer.Primary, true))
	assert.Equal(t, 1, keys.Count(keyer.Primary, false))
	assert.False(t, keys.AnyDown())
	assert.True(t, link.Closed())
}

func TestRun_LinkFault(t *testing.T) {
	link := porttest.New()
	link.OnWrite = func(p []byte) {
		if bytes.Equal(p, []byte{0x01, 0x00}) {
			link.FailReads(errors.New("device unplugged"))
		}
	}

	pr, pw := io.Pipe()
	defer func() { _ = pw.Close() }()

	err := Run(context.Background(), testSettings(), Options{
		In:   pr,
		Log:  logger.NewRecorder(),
		Open: opener(link),
	})
	assert.ErrorIs(t, err, ErrSessionEnded)
	assert.True(t, link.Closed())
}

func TestRun_ConnectFailure(t *testing.T) {
	s := testSettings()
	err := Run(context.Background(), s, Options{
		Log: logger.NewRecorder(),
		Open: func(string, *serial.Mode) (port.Link, error) {
			return nil, errors.New("no such device")
		},
	})
	assert.ErrorIs(t, err, port.ErrPortUnavailable)
}

func TestRun_UnknownInjector(t *testing.T) {
	s := testSettings()
	s.Injector = "midi"
	err := Run(context.Background(), s, Options{Log: logger.NewRecorder()})
	assert.ErrorIs(t, err, inject.ErrUnknownInjector)
}

func TestRun_MQTTUnavailableIsNotFatal(t *testing.T) {
	link := porttest.New()
	s := testSettings()
	s.MQTTBroker = "tcp://127.0.0.1:1"
	rec := logger.NewRecorder()

	err := Run(context.Background(), s, Options{
		In:   strings.NewReader("q\n"),
		Log:  rec,
		Open: opener(link),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, rec.Find(logger.WarnLevel, "mqtt disabled"))
}
