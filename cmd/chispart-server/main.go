// Package main is the chispart HTTP server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chispart/config"
	"chispart/internal/convlog"
	"chispart/internal/dispatch"
	"chispart/internal/keystore"
	"chispart/internal/logging"
	"chispart/internal/observability"
	"chispart/internal/registry"
	"chispart/internal/server"
	"chispart/internal/version"
)

func main() {
	verbose := flag.Bool("verbose", false, "enable debug logging")
	versionFlag := flag.Bool("version", false, "print version information")
	flag.Parse()

	if *versionFlag {
		fmt.Println(version.Info())
		os.Exit(0)
	}

	logging.SetupServer(*verbose)

	slog.Info("starting chispart-server",
		"version", version.Version,
		"commit", version.Commit,
		"build_date", version.Date,
	)

	settings, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	reg := registry.New()

	keys, err := keystore.Open(settings.KeyStorePath)
	if err != nil {
		slog.Error("failed to open key store", "error", err)
		os.Exit(1)
	}

	var log convlog.Log
	if settings.HistoryBackend == "sqlite" {
		log, err = convlog.OpenSQLite(settings.HistoryPath, convlog.DefaultCap)
		if err != nil {
			slog.Error("failed to open conversation log", "error", err)
			os.Exit(1)
		}
	} else {
		log = convlog.OpenJSONL(settings.HistoryPath, convlog.DefaultCap)
	}
	defer func() { _ = log.Close() }()

	// The server never falls back between providers: API consumers get
	// the provider they asked for or an error they can act on.
	dispatcher := dispatch.New(reg, keys, log, dispatch.Options{
		Mobile:          settings.Mobile,
		Fallback:        false,
		DefaultProvider: settings.DefaultProvider,
		Metrics:         observability.New(nil),
	})

	srv := server.New(server.NewHandler(dispatcher), &server.Config{
		MetricsEnabled: true,
	})

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		slog.Info("shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	addr := ":" + settings.Port
	slog.Info("listening", "address", addr)

	if err := srv.Start(addr); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			slog.Info("server stopped gracefully")
		} else {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}
}
