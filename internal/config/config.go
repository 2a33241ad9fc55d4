// Package config loads the engine configuration from a TOML file, applies
// environment overrides and validates the result.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

type Window struct {
	Width  int    `toml:"width"`
	Height int    `toml:"height"`
	Title  string `toml:"title"`
}

type Renderer struct {
	FramesInFlight int        `toml:"frames_in_flight"`
	PresentMode    string     `toml:"present_mode"`
	Validation     bool       `toml:"validation"`
	ClearColor     [4]float32 `toml:"clear_color"`
}

type Assets struct {
	Mesh         string `toml:"mesh"`
	Texture      string `toml:"texture"`
	ShaderDir    string `toml:"shader_dir"`
	WatchShaders bool   `toml:"watch_shaders"`
}

type Log struct {
	Level string `toml:"level"`
}

type Config struct {
	Window   Window   `toml:"window"`
	Renderer Renderer `toml:"renderer"`
	Assets   Assets   `toml:"assets"`
	Log      Log      `toml:"log"`
}

var PresentModes = []string{"fifo", "mailbox", "immediate"}

func Default() Config {
	return Config{
		Window: Window{
			Width:  800,
			Height: 600,
			Title:  "Otter Engine Window",
		},
		Renderer: Renderer{
			FramesInFlight: 2,
			PresentMode:    "mailbox",
			Validation:     true,
			ClearColor:     [4]float32{0.05, 0.05, 0.08, 1.0},
		},
		Assets: Assets{
			ShaderDir: "shaders",
		},
		Log: Log{Level: "info"},
	}
}

// Load reads path on top of the defaults. A missing file is not an error;
// an empty path skips the file entirely.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read config: %w", err)
		default:
			if err := Decode(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	cfg.ApplyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Decode overlays TOML data on cfg. Unknown keys are rejected so typos do
// not silently fall back to defaults.
func Decode(data []byte, cfg *Config) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(cfg)
}

// ApplyEnv applies VK_VALIDATION and OTTER_LOG_LEVEL.
func (c *Config) ApplyEnv(getenv func(string) string) {
	switch getenv("VK_VALIDATION") {
	case "":
	case "0", "false", "False", "FALSE":
		c.Renderer.Validation = false
	default:
		c.Renderer.Validation = true
	}
	if lvl := getenv("OTTER_LOG_LEVEL"); lvl != "" {
		c.Log.Level = lvl
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		errs = append(errs, fmt.Errorf("window size must be positive, got %dx%d", c.Window.Width, c.Window.Height))
	}
	if n := c.Renderer.FramesInFlight; n < 1 || n > 3 {
		errs = append(errs, fmt.Errorf("frames_in_flight must be between 1 and 3, got %d", n))
	}
	if !validPresentMode(c.Renderer.PresentMode) {
		errs = append(errs, fmt.Errorf("present_mode %q is not one of %s", c.Renderer.PresentMode, strings.Join(PresentModes, ", ")))
	}
	for i, v := range c.Renderer.ClearColor {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("clear_color[%d] = %v is outside [0,1]", i, v))
		}
	}
	if c.Assets.ShaderDir == "" {
		errs = append(errs, errors.New("shader_dir must be set"))
	}
	return errors.Join(errs...)
}

func validPresentMode(m string) bool {
	for _, p := range PresentModes {
		if p == m {
			return true
		}
	}
	return false
}

// Encode renders cfg as TOML, used by the CLI to print the effective
// configuration.
func (c Config) Encode() ([]byte, error) {
	return toml.Marshal(c)
}
