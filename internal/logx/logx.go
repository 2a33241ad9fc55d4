// Package logx sets up the engine's structured loggers. The engine logs
// through Core and the application through Client, mirroring the split
// between engine and game code.
package logx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/muesli/termenv"
)

const (
	ScopeCore   = "CORE"
	ScopeClient = "CLIENT"
)

var (
	mu     sync.RWMutex
	core   = slog.New(NewHandler(os.Stderr, slog.LevelInfo)).With(slog.String("scope", ScopeCore))
	client = slog.New(NewHandler(os.Stderr, slog.LevelInfo)).With(slog.String("scope", ScopeClient))
)

// Setup replaces the core and client loggers with ones writing to w at the
// given level, and makes the core logger the slog default.
func Setup(w io.Writer, level slog.Level) {
	h := NewHandler(w, level)
	mu.Lock()
	core = slog.New(h).With(slog.String("scope", ScopeCore))
	client = slog.New(h).With(slog.String("scope", ScopeClient))
	mu.Unlock()
	slog.SetDefault(core)
}

func Core() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return core
}

func Client() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return client
}

// ParseLevel maps a config string to a level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// Handler renders records as single console lines:
//
//	15:04:05.000 INFO  [CORE] swapchain created extent=800x600
//
// The level is colored when the writer is a terminal.
type Handler struct {
	level  slog.Leveler
	out    *termenv.Output
	mu     *sync.Mutex
	attrs  []slog.Attr
	groups []string
	scope  string
}

func NewHandler(w io.Writer, level slog.Leveler) *Handler {
	return &Handler{
		level: level,
		out:   termenv.NewOutput(w),
		mu:    &sync.Mutex{},
	}
}

func (h *Handler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.level.Level()
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := *h
	nh.attrs = append([]slog.Attr(nil), h.attrs...)
	for _, a := range attrs {
		if a.Key == "scope" && len(h.groups) == 0 {
			nh.scope = a.Value.String()
			continue
		}
		nh.attrs = append(nh.attrs, h.qualify(a))
	}
	return &nh
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	nh := *h
	nh.groups = append(append([]string(nil), h.groups...), name)
	return &nh
}

func (h *Handler) qualify(a slog.Attr) slog.Attr {
	if len(h.groups) == 0 {
		return a
	}
	a.Key = strings.Join(h.groups, ".") + "." + a.Key
	return a
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	if !r.Time.IsZero() {
		b.WriteString(r.Time.Format("15:04:05.000"))
		b.WriteByte(' ')
	}
	b.WriteString(h.levelString(r.Level))
	if h.scope != "" {
		b.WriteString(" [")
		b.WriteString(h.scope)
		b.WriteByte(']')
	}
	b.WriteByte(' ')
	b.WriteString(r.Message)
	for _, a := range h.attrs {
		writeAttr(&b, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&b, h.qualify(a))
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, b.String())
	return err
}

func (h *Handler) levelString(l slog.Level) string {
	name := fmt.Sprintf("%-5s", l.String())
	var color termenv.Color
	switch {
	case l >= slog.LevelError:
		color = h.out.Color("1")
	case l >= slog.LevelWarn:
		color = h.out.Color("3")
	case l >= slog.LevelInfo:
		color = h.out.Color("2")
	default:
		color = h.out.Color("8")
	}
	return h.out.String(name).Foreground(color).String()
}

func writeAttr(b *strings.Builder, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	b.WriteByte(' ')
	b.WriteString(a.Key)
	b.WriteByte('=')
	switch a.Value.Kind() {
	case slog.KindString:
		s := a.Value.String()
		if strings.ContainsAny(s, " \t\"=") {
			s = fmt.Sprintf("%q", s)
		}
		b.WriteString(s)
	case slog.KindTime:
		b.WriteString(a.Value.Time().Format(time.RFC3339))
	default:
		b.WriteString(a.Value.String())
	}
}
