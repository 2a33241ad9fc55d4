package logx

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerFormat(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewHandler(&buf, slog.LevelInfo)).With(slog.String("scope", ScopeCore))

	log.Debug("hidden")
	log.Info("swapchain created", "images", 3, "mode", "mailbox")
	log.With("frame", 2).WithGroup("gpu").Warn("slow", "name", "Intel HD 620")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "INFO")
	assert.Contains(t, lines[0], "[CORE] swapchain created images=3 mode=mailbox")
	assert.Contains(t, lines[1], "WARN")
	assert.Contains(t, lines[1], `slow frame=2 gpu.name="Intel HD 620"`)
}

func TestSetupScopes(t *testing.T) {
	var buf bytes.Buffer
	Setup(&buf, slog.LevelDebug)

	Core().Debug("engine")
	Client().Info("game")
	slog.Info("default")

	out := buf.String()
	assert.Contains(t, out, "[CORE] engine")
	assert.Contains(t, out, "[CLIENT] game")
	assert.Contains(t, out, "[CORE] default")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"", slog.LevelInfo},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestReporterFirstCrashWins(t *testing.T) {
	Setup(&bytes.Buffer{}, slog.LevelInfo)
	var out bytes.Buffer
	rep := NewReporter()
	rep.Out = &out

	var heard []string
	rep.OnCrash(func(c CrashInfo) { heard = append(heard, c.Message) })

	assert.True(t, rep.Report(CrashInfo{Condition: "draw", Message: "device lost"}))
	assert.False(t, rep.Report(CrashInfo{Condition: "close", Message: "secondary"}))

	info, ok := rep.Crashed()
	require.True(t, ok)
	assert.Equal(t, "device lost", info.Message)
	assert.Equal(t, []string{"device lost"}, heard)
	assert.Contains(t, out.String(), "OTTER CRASH REPORT")
}

func TestReporterRecover(t *testing.T) {
	Setup(&bytes.Buffer{}, slog.LevelInfo)
	rep := NewReporter()
	rep.Out = &bytes.Buffer{}

	run := func() (err error) {
		defer rep.Recover(&err)
		panic(errors.New("bad layout"))
	}
	err := run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad layout")

	info, ok := rep.Crashed()
	require.True(t, ok)
	assert.Equal(t, "panic", info.Condition)
	assert.NotEmpty(t, info.Stack)
}
