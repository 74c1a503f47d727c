// Package main provides the notemd server application entrypoint.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"
	_ "go.uber.org/automaxprocs"

	"github.com/jgrn/notemd/internal/buildinfo"
	"github.com/jgrn/notemd/internal/config"
	"github.com/jgrn/notemd/internal/converter"
	"github.com/jgrn/notemd/internal/notes"
	"github.com/jgrn/notemd/internal/server"
)

func main() {
	cfg := config.Default()

	// Flags are parsed twice on purpose: --env-file must be known before the
	// environment is read, and the environment must be applied before the
	// remaining flags override it.
	pre := pflag.NewFlagSet("notemd", pflag.ContinueOnError)
	pre.ParseErrorsWhitelist.UnknownFlags = true
	pre.Usage = func() {}
	envFile := pre.String("env-file", "", "")
	_ = pre.Parse(os.Args[1:])

	dotenvPath, err := config.LoadDotenv(*envFile)
	if err != nil {
		slog.Error("load .env", slog.Any("err", err))
		os.Exit(1)
	}

	if err := config.ApplyEnvOverrides(&cfg); err != nil {
		slog.Error("apply environment", slog.Any("err", err))
		os.Exit(1)
	}

	flags := pflag.NewFlagSet("notemd", pflag.ExitOnError)
	config.RegisterFlags(flags, &cfg)
	versionFlag := flags.Bool("version", false, "Print version information and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		slog.Error("parse flags", slog.Any("err", err))
		os.Exit(1)
	}
	if *versionFlag {
		println(buildinfo.Summary())
		os.Exit(0)
	}
	if err := config.ApplyFlagResults(flags, &cfg); err != nil {
		slog.Error("invalid flags", slog.Any("err", err))
		os.Exit(1)
	}
	if err := config.Finalize(&cfg); err != nil {
		slog.Error("invalid configuration", slog.Any("err", err))
		os.Exit(1)
	}

	logLevel := slog.LevelWarn
	if cfg.Verbose {
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	logger = logger.With("app", "notemd")
	slog.SetDefault(logger)

	if dotenvPath != "" {
		logger.Info("loaded environment", slog.String("path", dotenvPath))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pandoc := converter.NewPandoc(cfg.PandocFlags, logger)
	if err := pandoc.Check(ctx); err != nil {
		cancel()
		logger.Error("pandoc unavailable", slog.Any("err", err))
		//nolint:gocritic // exitAfterDefer: cancel() explicitly called before os.Exit
		os.Exit(1)
	}

	notesSvc, err := notes.NewService(ctx, cfg.NotesDir, pandoc, logger, notes.Options{
		Extensions: cfg.Extensions,
		Watch:      cfg.Watch,
	})
	if err != nil {
		cancel()
		logger.Error("notes service init failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := notesSvc.Close(); err != nil {
			logger.Error("close notes service", slog.Any("err", err))
		}
	}()

	srv, err := server.New(cfg, logger, notesSvc)
	if err != nil {
		cancel()
		logger.Error("server init failed", slog.Any("err", err))
		os.Exit(1)
	}

	logger.Info("starting notemd",
		slog.String("version", buildinfo.Summary()),
		slog.String("notes", cfg.NotesDir),
		slog.String("pandoc_flags", strings.Join(cfg.PandocFlags, " ")),
	)

	if err := srv.Start(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("shutdown complete")
			return
		}
		logger.Error("server error", slog.Any("err", err))
		os.Exit(1)
	}
}
