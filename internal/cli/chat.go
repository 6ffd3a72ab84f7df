package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"chispart/internal/core"
	"chispart/internal/ingest"
)

func (a *App) cmdChat(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("chat", flag.ContinueOnError)
	fs.SetOutput(a.Stderr)
	provider := fs.String("api", "", "provider id (default: configured default)")
	model := fs.String("model", "", "model alias (default: provider default)")
	system := fs.String("system", "", "optional system prompt")
	stream := fs.Bool("stream", true, "stream the reply as it arrives")
	if err := fs.Parse(args); err != nil {
		return err
	}

	message := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if message == "" {
		return core.NewConfigError("chat needs a message: chispart chat [flags] <message>", nil)
	}

	var messages []core.Message
	if *system != "" {
		messages = append(messages, core.Message{Role: core.RoleSystem, Content: core.TextContent(*system)})
	}
	messages = append(messages, core.Message{Role: core.RoleUser, Content: core.TextContent(message)})

	if *stream {
		return a.streamToStdout(ctx, *provider, *model, messages)
	}

	result, err := a.Dispatcher.Chat(ctx, *provider, *model, messages)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.Stdout, result.Response.Text())
	return nil
}

// streamToStdout prints content deltas as they arrive and returns the
// stream's terminal error, if any.
func (a *App) streamToStdout(ctx context.Context, provider, model string, messages []core.Message) error {
	events, _, err := a.Dispatcher.ChatStream(ctx, provider, model, messages)
	if err != nil {
		return err
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
				return ev.Err
			}
			return core.NewMalformedError("", nil)
		}
	}
	return ctx.Err()
}

func (a *App) cmdImage(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("image", flag.ContinueOnError)
	fs.SetOutput(a.Stderr)
	provider := fs.String("api", "", "provider id")
	model := fs.String("model", "", "model alias")
	file := fs.String("file", "", "path to a jpg, jpeg, png or webp image")
	prompt := fs.String("prompt", "", "question about the image")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" && fs.NArg() > 0 {
		*file = fs.Arg(0)
	}
	if *file == "" {
		return core.NewConfigError("image needs a file: chispart image -file <path>", nil)
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		return core.NewFileError("could not read image: "+err.Error(), err)
	}
	mime := ingest.DetectImageMIME(data, *file)

	result, err := a.Dispatcher.AnalyzeImage(ctx, *provider, *model, *prompt, data, mime)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.Stdout, result.Response.Text())
	return nil
}

func (a *App) cmdPDF(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("pdf", flag.ContinueOnError)
	fs.SetOutput(a.Stderr)
	provider := fs.String("api", "", "provider id")
	model := fs.String("model", "", "model alias")
	file := fs.String("file", "", "path to a PDF document")
	prompt := fs.String("prompt", "", "question about the document")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" && fs.NArg() > 0 {
		*file = fs.Arg(0)
	}
	if *file == "" {
		return core.NewConfigError("pdf needs a file: chispart pdf -file <path>", nil)
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		return core.NewFileError("could not read pdf: "+err.Error(), err)
	}

	result, err := a.Dispatcher.AnalyzePDF(ctx, *provider, *model, *prompt, data)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.Stdout, result.Response.Text())
	return nil
}
