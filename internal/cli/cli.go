// Package cli implements the chispart command-line surface: one
// subcommand per operation, each with its own flag set.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"chispart/config"
	"chispart/internal/convlog"
	"chispart/internal/core"
	"chispart/internal/dispatch"
	"chispart/internal/keystore"
	"chispart/internal/registry"
	"chispart/internal/secgate"
)

// Exit codes.
const (
	ExitOK          = 0
	ExitError       = 1
	ExitInterrupted = 130
)

// App bundles the collaborators every subcommand needs.
type App struct {
	Settings   *config.Settings
	Registry   *registry.Registry
	Keys       keystore.Store
	Log        convlog.Log
	Dispatcher *dispatch.Dispatcher
	Gate       *secgate.Gate

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Run dispatches to a subcommand and returns the process exit code.
func (a *App) Run(ctx context.Context, args []string) int {
	if a.Stdin == nil {
		a.Stdin = os.Stdin
	}
	if a.Stdout == nil {
		a.Stdout = os.Stdout
	}
	if a.Stderr == nil {
		a.Stderr = os.Stderr
	}

	if len(args) == 0 {
		a.usage()
		return ExitError
	}

	var err error
	switch args[0] {
	case "chat":
		err = a.cmdChat(ctx, args[1:])
	case "image":
		err = a.cmdImage(ctx, args[1:])
	case "pdf":
		err = a.cmdPDF(ctx, args[1:])
	case "interactive":
		err = a.cmdInteractive(ctx, args[1:])
	case "models":
		err = a.cmdModels(args[1:])
	case "history":
		err = a.cmdHistory(args[1:])
	case "config":
		err = a.cmdConfig(args[1:])
	case "execute":
		err = a.cmdExecute(ctx, args[1:])
	case "security":
		err = a.cmdSecurity(args[1:])
	case "version":
		err = a.cmdVersion()
	case "help", "-h", "--help":
		a.usage()
		return ExitOK
	default:
		fmt.Fprintf(a.Stderr, "unknown command %q\n\n", args[0])
		a.usage()
		return ExitError
	}

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
			return ExitInterrupted
		}
		printError(a.Stderr, err)
		return ExitError
	}
	return ExitOK
}

func (a *App) usage() {
	fmt.Fprint(a.Stderr, `chispart - unified LLM gateway

Usage: chispart <command> [flags]

Commands:
  chat         Send a single message and print the reply
  interactive  Start a rolling conversation
  image        Ask a model about a local image
  pdf          Ask a model about a local PDF
  execute      Run a shell command through the security gate
  models       List the model aliases of a provider
  history      Show recent conversation records
  config       Manage provider credentials and defaults
  security     Inspect or toggle the command security gate
  version      Print version information

Run 'chispart <command> -h' for command flags.
`)
}

// printError renders a gateway error for a human; unexpected errors pass
// through verbatim.
func printError(w io.Writer, err error) {
	var gerr *core.GatewayError
	if errors.As(err, &gerr) {
		fmt.Fprintf(w, "error (%s): %s\n", gerr.Kind, gerr.Message)
		if gerr.RequestID != "" {
			fmt.Fprintf(w, "request id: %s\n", gerr.RequestID)
		}
		return
	}
	fmt.Fprintf(w, "error: %v\n", err)
}
