package chunk

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownMode is returned by ParseMode for unsupported splitter names.
var ErrUnknownMode = errors.New("chunk: unknown mode")

// Mode names a splitter variant.
type Mode string

const (
	ModePlain    Mode = "plain"
	ModeMarkdown Mode = "markdown"
)

// ParseMode maps a config value to a Mode. "" selects ModeMarkdown.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeMarkdown:
		return ModeMarkdown, nil
	case ModePlain, "text":
		return ModePlain, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// Split dispatches to the splitter named by m. Unknown modes fall back
// to SplitText.
func (m Mode) Split(text string, limit int) []string {
	if m == ModeMarkdown {
		return SplitMarkdown(text, limit)
	}
	return SplitText(text, limit)
}
