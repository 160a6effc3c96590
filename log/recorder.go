package log

import (
	"context"
	"sync"
)

// Entry is a single captured log call.
type Entry struct {
	Level  string
	Msg    string
	Err    error
	Fields map[string]interface{}
}

type entryLog struct {
	mu      sync.Mutex
	entries []Entry
}

// Recorder is a Logger that captures entries for inspection in tests.
// Loggers derived via With share the same entry list.
type Recorder struct {
	fields map[string]interface{}
	log    *entryLog
}

// NewRecorder creates a Recorder with an empty entry list.
func NewRecorder() *Recorder {
	return &Recorder{log: &entryLog{}}
}

// Entries returns a copy of everything logged so far.
func (r *Recorder) Entries() []Entry {
	r.log.mu.Lock()
	defer r.log.mu.Unlock()
	out := make([]Entry, len(r.log.entries))
	copy(out, r.log.entries)
	return out
}

// ByLevel returns the captured entries matching the given level.
func (r *Recorder) ByLevel(level string) []Entry {
	var out []Entry
	for _, e := range r.Entries() {
		if e.Level == level {
			out = append(out, e)
		}
	}
	return out
}

func (r *Recorder) record(level, msg string, err error, fields []map[string]interface{}) {
	merged := make(map[string]interface{}, len(r.fields))
	for k, v := range r.fields {
		merged[k] = v
	}
	for _, f := range fields {
		for k, v := range f {
			merged[k] = v
		}
	}
	r.log.mu.Lock()
	defer r.log.mu.Unlock()
	r.log.entries = append(r.log.entries, Entry{Level: level, Msg: msg, Err: err, Fields: merged})
}

func (r *Recorder) Debug(_ context.Context, msg string, fields ...map[string]interface{}) {
	r.record("debug", msg, nil, fields)
}

func (r *Recorder) Info(_ context.Context, msg string, fields ...map[string]interface{}) {
	r.record("info", msg, nil, fields)
}

func (r *Recorder) Warn(_ context.Context, msg string, fields ...map[string]interface{}) {
	r.record("warn", msg, nil, fields)
}

func (r *Recorder) Error(_ context.Context, msg string, err error, fields ...map[string]interface{}) {
	r.record("error", msg, err, fields)
}

func (r *Recorder) Fatal(_ context.Context, msg string, err error, fields ...map[string]interface{}) {
	r.record("fatal", msg, err, fields)
}

// With returns a Recorder sharing the same entry list with extra fields attached.
func (r *Recorder) With(fields map[string]interface{}) Logger {
	merged := make(map[string]interface{}, len(r.fields)+len(fields))
	for k, v := range r.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Recorder{fields: merged, log: r.log}
}
