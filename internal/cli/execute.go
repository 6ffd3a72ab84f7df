package cli

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"strings"

	"chispart/internal/core"
)

func (a *App) cmdExecute(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("execute", flag.ContinueOnError)
	fs.SetOutput(a.Stderr)
	yes := fs.Bool("yes", false, "skip the confirmation prompt")
	dir := fs.String("dir", "", "working directory for the command")
	if err := fs.Parse(args); err != nil {
		return err
	}

	command := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if command == "" {
		return core.NewConfigError("execute needs a command: chispart execute [flags] <command>", nil)
	}

	verdict := a.Gate.Validate(command)
	if !verdict.Allowed {
		msg := verdict.Reason
		if verdict.SuggestedAlternative != "" {
			msg += "\nSugerencia: " + verdict.SuggestedAlternative
		}
		return core.NewPolicyError(msg)
	}

	if verdict.RequiresConfirmation && !*yes {
		fmt.Fprintf(a.Stdout, "El comando requiere confirmación: %s\n¿Ejecutar? [y/N] ", command)
		scanner := bufio.NewScanner(a.Stdin)
		if !scanner.Scan() {
			return nil
		}
		answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if answer != "y" && answer != "yes" && answer != "s" && answer != "si" {
			fmt.Fprintln(a.Stdout, "Cancelado.")
			return nil
		}
	}

	result := a.Gate.Execute(ctx, command, *dir)
	if result.Stdout != "" {
		fmt.Fprint(a.Stdout, result.Stdout)
	}
	if result.Stderr != "" {
		fmt.Fprint(a.Stderr, result.Stderr)
	}
	if !result.Success {
		return fmt.Errorf("command failed")
	}
	return nil
}

func (a *App) cmdSecurity(args []string) error {
	sub := "status"
	if len(args) > 0 {
		sub = args[0]
	}

	switch sub {
	case "status":
		st := a.Gate.Status()
		state := "enabled"
		if !st.Enabled {
			state = "disabled"
		}
		fmt.Fprintf(a.Stdout, "Security gate: %s\n", state)
		fmt.Fprintf(a.Stdout, "Plan: %s\n", st.Plan)
		fmt.Fprintf(a.Stdout, "Whitelisted commands: %d\n", st.WhitelistCount)
		fmt.Fprintf(a.Stdout, "Blacklisted commands: %d\n", st.BlacklistCount)
		fmt.Fprintf(a.Stdout, "Requiring confirmation: %d\n", st.ConfirmationCount)
		return nil
	case "enable":
		a.Gate.Enable()
		fmt.Fprintln(a.Stdout, "Security gate enabled.")
		return nil
	case "disable":
		a.Gate.Disable()
		fmt.Fprintln(a.Stdout, "Security gate disabled. Commands will run unchecked.")
		return nil
	case "allow":
		if len(args) < 2 {
			return core.NewConfigError("security allow needs a command name", nil)
		}
		if !a.Gate.AddToWhitelist(args[1]) {
			return core.NewPolicyError(fmt.Sprintf("comando '%s' está en la lista negra", args[1]))
		}
		fmt.Fprintf(a.Stdout, "Added '%s' to the whitelist.\n", args[1])
		return nil
	default:
		return core.NewConfigError("security subcommands: status, enable, disable, allow <cmd>", nil)
	}
}
