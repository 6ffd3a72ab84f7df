package cli

import (
	"flag"
	"fmt"

	"chispart/internal/version"
)

func (a *App) cmdModels(args []string) error {
	fs := flag.NewFlagSet("models", flag.ContinueOnError)
	fs.SetOutput(a.Stderr)
	provider := fs.String("api", "", "provider id (default: configured default)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	providerID := *provider
	if providerID == "" && fs.NArg() > 0 {
		providerID = fs.Arg(0)
	}
	if providerID == "" {
		providerID = a.Dispatcher.DefaultProvider()
	}

	models, err := a.Registry.Models(providerID)
	if err != nil {
		return err
	}
	defaultModel, err := a.Registry.DefaultModel(providerID)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.Stdout, "Models for %s:\n", providerID)
	for _, alias := range models {
		marker := " "
		if alias == defaultModel {
			marker = "*"
		}
		fmt.Fprintf(a.Stdout, "%s %s\n", marker, alias)
	}
	return nil
}

func (a *App) cmdHistory(args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(a.Stderr)
	limit := fs.Int("limit", 10, "number of recent records to show (0 for all)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	records, err := a.Dispatcher.History(*limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(a.Stdout, "No hay historial.")
		return nil
	}

	for _, r := range records {
		fmt.Fprintf(a.Stdout, "[%s] %s %s/%s\n", r.Timestamp, r.Type, r.ProviderID, r.ModelAlias)
		fmt.Fprintf(a.Stdout, "  > %s\n", r.RequestSummary)
		fmt.Fprintf(a.Stdout, "  < %s\n", clip(r.ResponseText, 200))
	}
	return nil
}

func (a *App) cmdVersion() error {
	fmt.Fprintln(a.Stdout, version.Info())
	return nil
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
