package cli

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"strings"

	"chispart/internal/core"
)

func (a *App) cmdInteractive(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("interactive", flag.ContinueOnError)
	fs.SetOutput(a.Stderr)
	provider := fs.String("api", "", "provider id")
	model := fs.String("model", "", "model alias")
	stream := fs.Bool("stream", true, "stream replies as they arrive")
	if err := fs.Parse(args); err != nil {
		return err
	}

	session := a.Dispatcher.NewSession(*provider, *model)
	fmt.Fprintln(a.Stdout, "Interactive mode. Type 'salir' or press Ctrl+D to leave, 'reset' to clear the conversation.")

	scanner := bufio.NewScanner(a.Stdin)
	for {
		fmt.Fprint(a.Stdout, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(a.Stdout)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "salir", "exit", "quit":
			return nil
		case "reset":
			session.Reset()
			fmt.Fprintln(a.Stdout, "Conversación reiniciada.")
			continue
		}

		if *stream {
			events, _, err := session.SendStream(ctx, line)
			if err != nil {
				printError(a.Stderr, err)
				continue
			}
			for ev := range events {
				switch ev.Type {
				case core.EventContent:
					fmt.Fprint(a.Stdout, ev.Content)
				case core.EventDone:
					fmt.Fprintln(a.Stdout)
				case core.EventError:
					fmt.Fprintln(a.Stdout)
					if ev.Err != nil {
						printError(a.Stderr, ev.Err)
					}
				}
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}

		result, err := session.Send(ctx, line)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			printError(a.Stderr, err)
			continue
		}
		fmt.Fprintln(a.Stdout, result.Response.Text())
	}
}
