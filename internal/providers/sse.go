package providers

import (
	"bufio"
	"context"
	"io"
	"strings"

	"chispart/internal/core"
)

const sseDone = "[DONE]"

// scanSSE reads a line-delimited SSE body and calls fn with each `data: `
// payload. fn returns false to stop reading (end-of-stream sentinel or
// caller cancellation). Event-name and heartbeat lines are skipped.
func scanSSE(body io.Reader, fn func(data string) bool) error {
	scanner := bufio.NewScanner(body)
	// Large chunks: a single delta can exceed the default 64 KiB token size.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if !fn(data) {
			return nil
		}
	}
	return scanner.Err()
}

// emit sends an event unless the consumer has gone away.
func emit(ctx context.Context, ch chan<- core.StreamEvent, ev core.StreamEvent) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
