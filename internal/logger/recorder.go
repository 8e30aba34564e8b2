// internal/logger/recorder.go
package logger

import (
	"fmt"
	"strings"
	"sync"
)

// Entry is one record captured by a Recorder.
type Entry struct {
	Level Level
	Msg   string
	KVs   []any
}

// Value returns the value logged under key, if any.
func (e Entry) Value(key string) (any, bool) {
	for i := 0; i+1 < len(e.KVs); i += 2 {
		if k, ok := e.KVs[i].(string); ok && k == key {
			return e.KVs[i+1], true
		}
	}
	return nil, false
}

type recorderStore struct {
	mu      sync.Mutex
	entries []Entry
	level   Level
}

// Recorder is an in-memory Logger used by tests to assert on what was logged.
// Children created with With share the parent's buffer and level.
type Recorder struct {
	store *recorderStore
	with  []any
}

var _ Logger = (*Recorder)(nil)

// NewRecorder returns a Recorder capturing every level.
func NewRecorder() *Recorder {
	return &Recorder{store: &recorderStore{level: DebugLevel}}
}

func (r *Recorder) record(level Level, msg string, kvs []any) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if level < r.store.level {
		return
	}
	all := make([]any, 0, len(r.with)+len(kvs))
	all = append(all, r.with...)
	all = append(all, kvs...)
	r.store.entries = append(r.store.entries, Entry{Level: level, Msg: msg, KVs: all})
}

func (r *Recorder) Debug(msg string, kvs ...any) { r.record(DebugLevel, msg, kvs) }
func (r *Recorder) Info(msg string, kvs ...any)  { r.record(InfoLevel, msg, kvs) }
func (r *Recorder) Warn(msg string, kvs ...any)  { r.record(WarnLevel, msg, kvs) }
func (r *Recorder) Error(msg string, kvs ...any) { r.record(ErrorLevel, msg, kvs) }

func (r *Recorder) With(kvs ...any) Logger {
	with := make([]any, 0, len(r.with)+len(kvs))
	with = append(with, r.with...)
	with = append(with, kvs...)
	return &Recorder{store: r.store, with: with}
}

func (r *Recorder) Level() Level {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return r.store.level
}

func (r *Recorder) SetLevel(level Level) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.level = level
}

// Entries returns a copy of everything recorded so far.
func (r *Recorder) Entries() []Entry {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	out := make([]Entry, len(r.store.entries))
	copy(out, r.store.entries)
	return out
}

// Find returns the recorded entries at level whose message contains substr.
func (r *Recorder) Find(level Level, substr string) []Entry {
	var out []Entry
	for _, e := range r.Entries() {
		if e.Level == level && strings.Contains(e.Msg, substr) {
			out = append(out, e)
		}
	}
	return out
}

// String dumps the entries, one per line.
func (r *Recorder) String() string {
	var b strings.Builder
	for _, e := range r.Entries() {
		fmt.Fprintf(&b, "%s %s %v\n", e.Level, e.Msg, e.KVs)
	}
	return b.String()
}
