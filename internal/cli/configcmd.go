package cli

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"chispart/config"
	"chispart/internal/core"
	"chispart/internal/keystore"
)

func (a *App) cmdConfig(args []string) error {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.SetOutput(a.Stderr)
	list := fs.Bool("list", false, "show configured providers and defaults")
	set := fs.String("set", "", "store a credential for the given provider id")
	remove := fs.String("remove", "", "delete the stored credential for the given provider id")
	defaultAPI := fs.String("default-api", "", "set the default provider")
	if err := fs.Parse(args); err != nil {
		return err
	}

	switch {
	case *set != "":
		return a.configSet(*set)
	case *remove != "":
		return a.configRemove(*remove)
	case *defaultAPI != "":
		return a.configDefault(*defaultAPI)
	default:
		_ = list
		return a.configList()
	}
}

// configSet prompts for the credential without echoing it; a non-terminal
// stdin (pipes, tests) falls back to a plain line read.
func (a *App) configSet(providerID string) error {
	desc, err := a.Registry.Describe(providerID)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.Stdout, "API key for %s: ", desc.DisplayName)
	var secret string
	if f, ok := a.Stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		raw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(a.Stdout)
		if err != nil {
			return fmt.Errorf("read key: %w", err)
		}
		secret = string(raw)
	} else {
		if _, err := fmt.Fscanln(a.Stdin, &secret); err != nil {
			return fmt.Errorf("read key: %w", err)
		}
	}

	secret = strings.TrimSpace(secret)
	if secret == "" {
		return core.NewConfigError("empty API key", nil)
	}
	if err := a.Keys.Set(providerID, secret); err != nil {
		return err
	}
	fmt.Fprintf(a.Stdout, "Stored credential for %s.\n", providerID)
	return nil
}

func (a *App) configRemove(providerID string) error {
	if _, err := a.Registry.Describe(providerID); err != nil {
		return err
	}
	if err := a.Keys.Remove(providerID); err != nil {
		return err
	}
	fmt.Fprintf(a.Stdout, "Removed credential for %s.\n", providerID)
	return nil
}

func (a *App) configDefault(providerID string) error {
	if _, err := a.Registry.Describe(providerID); err != nil {
		return err
	}
	a.Settings.DefaultProvider = providerID
	if err := config.Save(a.Settings); err != nil {
		return err
	}
	fmt.Fprintf(a.Stdout, "Default provider set to %s.\n", providerID)
	return nil
}

func (a *App) configList() error {
	fmt.Fprintf(a.Stdout, "Default provider: %s\n", a.Dispatcher.DefaultProvider())
	fmt.Fprintf(a.Stdout, "Plan: %s\n\n", a.Settings.Plan)
	fmt.Fprintln(a.Stdout, "Providers:")
	for _, id := range a.Registry.List() {
		desc, err := a.Registry.Describe(id)
		if err != nil {
			continue
		}
		state := "not configured"
		if _, err := keystore.Resolve(a.Keys, desc); err == nil {
			state = "configured"
		}
		fmt.Fprintf(a.Stdout, "  %-10s %-18s %s\n", id, desc.DisplayName, state)
	}
	return nil
}
