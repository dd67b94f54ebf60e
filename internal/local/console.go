// Package local provides a Sender that writes messages to a stream
// instead of a chat platform. The CLI uses it for --dry-run.
package local

import (
	"context"
	"fmt"
	"io"
	"sync"
	"unicode/utf8"

	"github.com/Alfex4936/feishu-outbound/internal/model"
)

// Console prints every message it is asked to send.
type Console struct {
	w  io.Writer
	mu sync.Mutex
	n  int
}

// New returns a Console writing to w.
func New(w io.Writer) *Console {
	return &Console{w: w}
}

// Channel names the sink in delivery reports.
func (c *Console) Channel() string { return "console" }

// SendText writes text with a numbered header line.
func (c *Console) SendText(ctx context.Context, to, text string) (model.SendResult, error) {
	return c.write(ctx, to, fmt.Sprintf("text, %d chars", utf8.RuneCountInString(text)), text)
}

// SendMedia writes the media URL; nothing is downloaded.
func (c *Console) SendMedia(ctx context.Context, to, mediaURL string) (model.SendResult, error) {
	return c.write(ctx, to, "media", mediaURL)
}

func (c *Console) write(ctx context.Context, to, kind, body string) (model.SendResult, error) {
	if err := ctx.Err(); err != nil {
		return model.SendResult{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.n++
	id := fmt.Sprintf("local-%d", c.n)
	if _, err := fmt.Fprintf(c.w, "--- #%d to=%s (%s)\n%s\n", c.n, to, kind, body); err != nil {
		return model.SendResult{}, err
	}
	return model.SendResult{Channel: c.Channel(), MessageID: id, ChatID: to}, nil
}
