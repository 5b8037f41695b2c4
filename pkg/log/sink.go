package log

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Sink receives leveled messages. Messages below the level set with
// SetLevel are dropped. InitHeartbeat announces the process once; later
// calls are ignored. Implementations must be safe for concurrent use.
type Sink interface {
	Log(level Level, msg string)
	SetLevel(level Level)
	InitHeartbeat(pid int, cmdline string)
}

// threshold is the SetLevel state shared by the sinks.
type threshold struct {
	min atomic.Uint32
}

func (t *threshold) SetLevel(l Level) { t.min.Store(uint32(l)) }

func (t *threshold) allows(l Level) bool {
	return l < LevelOff && uint32(l) >= t.min.Load()
}

// SlogSink writes Sink messages to an slog.Logger.
type SlogSink struct {
	threshold
	logger *slog.Logger
	once   sync.Once
}

// NewSlogSink returns a sink writing to logger, or slog.Default() when nil.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{logger: logger}
}

// Log writes msg at the slog equivalent of level.
func (s *SlogSink) Log(level Level, msg string) {
	if !s.allows(level) {
		return
	}
	s.logger.Log(context.Background(), level.Slog(), msg)
}

// InitHeartbeat records the process identity once.
func (s *SlogSink) InitHeartbeat(pid int, cmdline string) {
	s.once.Do(func() {
		s.logger.Info("alive", "pid", pid, "cmd", cmdline, "time", time.Now())
	})
}

// handler forwards slog records to a Sink.
type handler struct {
	sink     Sink
	minLevel Level
	attrs    []slog.Attr
	group    string
}

// NewHandler returns an slog.Handler forwarding records at or above
// minLevel to sink. Attributes are appended to the message as key=value.
func NewHandler(sink Sink, minLevel Level) slog.Handler {
	return &handler{sink: sink, minLevel: minLevel}
}

func (h *handler) Enabled(_ context.Context, l slog.Level) bool {
	return h.minLevel < LevelOff && FromSlog(l) >= h.minLevel
}

func (h *handler) Handle(_ context.Context, r slog.Record) error {
	buf := make([]byte, 0, 128)
	buf = append(buf, r.Message...)
	for _, a := range h.attrs {
		buf = appendAttr(buf, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		buf = appendAttr(buf, h.group, a)
		return true
	})
	h.sink.Log(FromSlog(r.Level), string(buf))
	return nil
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := *h
	out.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	out.attrs = append(out.attrs, h.attrs...)
	for _, a := range attrs {
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		out.attrs = append(out.attrs, a)
	}
	return &out
}

func (h *handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	out := *h
	if h.group != "" {
		name = h.group + "." + name
	}
	out.group = name
	return &out
}

func appendAttr(buf []byte, group string, a slog.Attr) []byte {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return buf
	}
	key := a.Key
	if group != "" {
		key = group + "." + key
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			buf = appendAttr(buf, key, ga)
		}
		return buf
	}
	buf = append(buf, ' ')
	buf = append(buf, key...)
	buf = append(buf, '=')
	return append(buf, a.Value.String()...)
}
