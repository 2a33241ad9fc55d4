package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("VK_VALIDATION", "")
	t.Setenv("OTTER_LOG_LEVEL", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverlaysFile(t *testing.T) {
	t.Setenv("VK_VALIDATION", "")
	t.Setenv("OTTER_LOG_LEVEL", "")
	path := filepath.Join(t.TempDir(), "otter.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[window]
width = 1280
title = "viking room"

[renderer]
frames_in_flight = 3
present_mode = "fifo"

[assets]
mesh = "models/viking_room.obj"
watch_shaders = true
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1280, cfg.Window.Width)
	assert.Equal(t, 600, cfg.Window.Height)
	assert.Equal(t, "viking room", cfg.Window.Title)
	assert.Equal(t, 3, cfg.Renderer.FramesInFlight)
	assert.Equal(t, "fifo", cfg.Renderer.PresentMode)
	assert.Equal(t, "models/viking_room.obj", cfg.Assets.Mesh)
	assert.Equal(t, "shaders", cfg.Assets.ShaderDir)
	assert.True(t, cfg.Assets.WatchShaders)
}

func TestDecodeRejectsUnknownKeys(t *testing.T) {
	cfg := Default()
	err := Decode([]byte("[renderer]\nframes_in_fligth = 2\n"), &cfg)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	tests := []struct {
		val  string
		want bool
	}{
		{"", true},
		{"0", false},
		{"false", false},
		{"FALSE", false},
		{"1", true},
		{"yes", true},
	}
	for _, tt := range tests {
		cfg := Default()
		cfg.ApplyEnv(func(k string) string {
			if k == "VK_VALIDATION" {
				return tt.val
			}
			return ""
		})
		assert.Equal(t, tt.want, cfg.Renderer.Validation, "VK_VALIDATION=%q", tt.val)
	}

	cfg := Default()
	cfg.ApplyEnv(func(k string) string {
		if k == "OTTER_LOG_LEVEL" {
			return "debug"
		}
		return ""
	})
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"zero width", func(c *Config) { c.Window.Width = 0 }, "window size"},
		{"too many frames", func(c *Config) { c.Renderer.FramesInFlight = 4 }, "frames_in_flight"},
		{"no frames", func(c *Config) { c.Renderer.FramesInFlight = 0 }, "frames_in_flight"},
		{"bad present mode", func(c *Config) { c.Renderer.PresentMode = "vsync" }, "present_mode"},
		{"clear color", func(c *Config) { c.Renderer.ClearColor[2] = 2 }, "clear_color[2]"},
		{"shader dir", func(c *Config) { c.Assets.ShaderDir = "" }, "shader_dir"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
	def := Default()
	assert.NoError(t, def.Validate())
}

func TestEncodeRoundTrip(t *testing.T) {
	in := Default()
	in.Assets.Texture = "textures/otter.png"
	data, err := in.Encode()
	require.NoError(t, err)

	out := Config{}
	require.NoError(t, Decode(data, &out))
	assert.Equal(t, in, out)
}
