package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"otter/internal/app"
	"otter/internal/config"
	"otter/internal/logx"
)

type options struct {
	configPath   string
	mesh         string
	texture      string
	logLevel     string
	noValidation bool
	printConfig  bool
}

func newRootCmd() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:           "otter",
		Short:         "Render a textured mesh with Vulkan",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			if opts.printConfig {
				return printConfig(cmd.OutOrStdout(), cfg)
			}
			level, err := logx.ParseLevel(cfg.Log.Level)
			if err != nil {
				return err
			}
			logx.Setup(cmd.ErrOrStderr(), level)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			a := app.New(cfg)
			a.Crashes().OnCrash(func(logx.CrashInfo) { stop() })
			return crashed(a.Run(ctx), a.Crashes())

		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "otter.toml", "configuration file")
	f.StringVar(&opts.mesh, "mesh", "", "OBJ mesh to draw instead of the built-in cube")
	f.StringVar(&opts.texture, "texture", "", "texture image to sample instead of the checkerboard")
	f.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error")
	f.BoolVar(&opts.noValidation, "no-validation", false, "disable Vulkan validation layers")
	f.BoolVar(&opts.printConfig, "print-config", false, "print the effective configuration and exit")
	return cmd
}

// loadConfig reads the file, then lets explicitly set flags win.
func loadConfig(cmd *cobra.Command, opts options) (config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return cfg, err
	}
	f := cmd.Flags()
	if f.Changed("mesh") {
		cfg.Assets.Mesh = opts.mesh
	}
	if f.Changed("texture") {
		cfg.Assets.Texture = opts.texture
	}
	if f.Changed("log-level") {
		cfg.Log.Level = opts.logLevel
	}
	if opts.noValidation {
		cfg.Renderer.Validation = false
	}
	if _, err := logx.ParseLevel(cfg.Log.Level); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

var errCrashed = errors.New("crashed")

// crashed marks err when a crash was reported so main can exit with a
// distinct status.
func crashed(err error, rep *logx.Reporter) error {
	info, ok := rep.Crashed()
	if !ok {
		return err
	}
	return errors.Join(fmt.Errorf("%w: %s", errCrashed, info.Condition), err)
}

func printConfig(w io.Writer, cfg config.Config) error {
	data, err := cfg.Encode()
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	_, err = w.Write(data)
	return err
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "otter:", err)
		if errors.Is(err, errCrashed) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
