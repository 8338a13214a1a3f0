package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/odvcencio/extbridge/pkg/config"
	"github.com/odvcencio/extbridge/pkg/logging"
	"github.com/odvcencio/extbridge/pkg/paths"
)

// Version information - set via ldflags during build
var (
	version   = "0.1.0-dev"
	commit    = "unknown"
	buildDate = "unknown"
)

type startupOptions struct {
	configPath  string
	bind        string
	logLevel    string
	showVersion bool
}

func main() {
	opts, err := parseStartupOptions(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	if opts.showVersion {
		fmt.Printf("extbridge %s (%s, built %s)\n", version, commit, buildDate)
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func parseStartupOptions(args []string, output io.Writer) (startupOptions, error) {
	var opts startupOptions
	fs := flag.NewFlagSet("extbridge", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&opts.configPath, "config", "", "path to a config file (default: ~/.extbridge/config.yaml then ./.extbridge/config.yaml)")
	fs.StringVar(&opts.bind, "bind", "", "address to serve ports on (overrides config)")
	fs.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error (overrides config)")
	fs.BoolVar(&opts.showVersion, "version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return startupOptions{}, err
	}
	if fs.NArg() > 0 {
		return startupOptions{}, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	return opts, nil
}

// loadConfig reads the configuration and applies flag overrides on top of it.
func loadConfig(opts startupOptions) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path := strings.TrimSpace(opts.configPath); path != "" {
		cfg, err = config.LoadFromPath(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if v := strings.TrimSpace(opts.bind); v != "" {
		cfg.Server.Bind = v
	}
	if v := strings.TrimSpace(opts.logLevel); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(ctx context.Context, opts startupOptions, stderr io.Writer) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	logger := logging.New(cfg.Logging, stderr)
	if dir := paths.LogsDir(); dir != "" {
		withErrors, closer, err := logging.NewWithErrorLog(cfg.Logging, stderr, dir)
		if err != nil {
			return err
		}
		defer closer.Close()
		logger = withErrors
	}
	for _, warning := range cfg.ValidationWarnings() {
		logger.Warn().Msg(warning)
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.Close(shutdownCtx)
	}()

	logger.Info().
		Str("version", version).
		Str("bind", cfg.Server.Bind).
		Str("bus", cfg.Bus.Backend).
		Str("sync", cfg.Sync.Backend).
		Msg("extbridge starting")

	return a.server.Start(ctx)
}
