package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/marmos91/framefs/internal/logger"
	"github.com/marmos91/framefs/pkg/adapter/fuse"
	"github.com/marmos91/framefs/pkg/config"
	"github.com/marmos91/framefs/pkg/server"
)

const usage = `FrameFS - in-memory filesystem with pluggable file providers

Usage:
  framefs init [-force]                     Write a sample configuration file
  framefs mount [-config path] [-mount dir] Mount the filesystem and serve until interrupted

Run "framefs <command> -h" for command flags.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "init":
		err = runInit(os.Args[2:])
	case "mount":
		err = runMount(os.Args[2:])
	case "-h", "--help", "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	if err != nil {
		log.Fatalf("%v", err)
	}
}

func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	force := fs.Bool("force", false, "Overwrite an existing configuration file")
	path := fs.String("config", "", "Write to this path instead of the default location")
	_ = fs.Parse(args)

	if *path != "" {
		if err := config.InitConfigToPath(*path, *force); err != nil {
			return err
		}
		fmt.Printf("Configuration written to %s\n", *path)
		return nil
	}

	written, err := config.InitConfig(*force)
	if err != nil {
		return err
	}
	fmt.Printf("Configuration written to %s\n", written)
	return nil
}

func runMount(args []string) error {
	fs := flag.NewFlagSet("mount", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file (default: $XDG_CONFIG_HOME/framefs/config.yaml)")
	mountPoint := fs.String("mount", "", "Mount point, overrides mount.point")
	logLevel := fs.String("log-level", "", "Log level (DEBUG, INFO, WARN, ERROR), overrides logging.level")
	_ = fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *mountPoint != "" {
		cfg.Mount.MountPoint = *mountPoint
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	if err := logger.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Println("FrameFS - in-memory filesystem")
	logger.Info("Log level set to: %s", cfg.Logging.Level)

	m := config.InitializeMetrics(cfg)
	if m.Server != nil {
		logger.Info("Metrics enabled on port %d", m.Server.Port())
	}

	fsys, err := config.BuildFilesystem(ctx, cfg, m)
	if err != nil {
		return fmt.Errorf("failed to build filesystem: %w", err)
	}

	srv := server.New(fsys, server.Options{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Metrics:         m.Server,
	})
	if err := srv.AddAdapter(fuse.New(cfg.Mount)); err != nil {
		_ = fsys.Shutdown()
		return err
	}

	logger.Info("Serving. Press Ctrl+C to unmount.")
	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("server error: %w", err)
	}
	logger.Info("Filesystem unmounted")
	return nil
}
