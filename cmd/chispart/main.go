// Package main is the chispart command-line client.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"chispart/config"
	"chispart/internal/cli"
	"chispart/internal/convlog"
	"chispart/internal/dispatch"
	"chispart/internal/keystore"
	"chispart/internal/logging"
	"chispart/internal/registry"
	"chispart/internal/secgate"
	"chispart/internal/version"
)

func main() {
	os.Exit(run())
}

func run() int {
	verbose := flag.Bool("verbose", false, "enable debug logging")
	noFallback := flag.Bool("no-fallback", false, "disable the automatic retry against the default provider")
	versionFlag := flag.Bool("version", false, "print version information")
	flag.Parse()

	if *versionFlag {
		fmt.Println(version.Info())
		return cli.ExitOK
	}

	logging.SetupCLI(*verbose)

	settings, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return cli.ExitError
	}

	reg := registry.New()

	keys, err := keystore.Open(settings.KeyStorePath)
	if err != nil {
		slog.Error("failed to open key store", "error", err)
		return cli.ExitError
	}

	log, err := openLog(settings)
	if err != nil {
		slog.Error("failed to open conversation log", "error", err)
		return cli.ExitError
	}
	defer func() { _ = log.Close() }()

	dispatcher := dispatch.New(reg, keys, log, dispatch.Options{
		Mobile:          settings.Mobile,
		Fallback:        !*noFallback,
		DefaultProvider: settings.DefaultProvider,
	})

	app := &cli.App{
		Settings:   settings,
		Registry:   reg,
		Keys:       keys,
		Log:        log,
		Dispatcher: dispatcher,
		Gate:       secgate.New(secgate.Plan(settings.Plan)),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code := app.Run(ctx, flag.Args())
	if ctx.Err() != nil {
		return cli.ExitInterrupted
	}
	return code
}

func openLog(settings *config.Settings) (convlog.Log, error) {
	if settings.HistoryBackend == "sqlite" {
		return convlog.OpenSQLite(settings.HistoryPath, convlog.DefaultCap)
	}
	return convlog.OpenJSONL(settings.HistoryPath, convlog.DefaultCap), nil
}
