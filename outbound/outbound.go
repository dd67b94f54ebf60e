// Package outbound delivers agent replies to a chat platform.
//
// Text is split with the configured chunker and every chunk is sent as
// its own message, in order. Transient failures are retried with
// exponential backoff; media that cannot be delivered is replaced by a
// link to the asset.
package outbound

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Alfex4936/feishu-outbound/internal/chunk"
	"github.com/Alfex4936/feishu-outbound/internal/model"
	"github.com/Alfex4936/feishu-outbound/internal/util"
)

const (
	// DefaultLimit is Feishu's text message size.
	DefaultLimit = 4000

	// FallbackPrefix precedes the media URL when an upload fails.
	FallbackPrefix = "📎 "
)

// Sender is a platform client that sends single, already-sized messages.
// The ctx of every attempt at one message carries the same
// util.IdempotencyKey; senders that support dedup should forward it.
type Sender interface {
	Channel() string
	SendText(ctx context.Context, to, text string) (model.SendResult, error)
	SendMedia(ctx context.Context, to, mediaURL string) (model.SendResult, error)
}

// Options configures an Adapter.
type Options struct {
	Mode       chunk.Mode // "" selects chunk.ModeMarkdown
	Limit      int        // <= 0 disables splitting
	MaxRetries int        // extra attempts after the first, per message
	RetryDelay time.Duration
	Reporter   Reporter // nil selects LogReporter{}

	// Sleep waits between retries; tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error

	// NewKey mints the idempotency key shared by every attempt of one
	// message. nil selects uuid.NewString.
	NewKey func() string
}

// Adapter splits outbound text and hands the pieces to a Sender.
// It holds no per-call state and is safe for concurrent use.
type Adapter struct {
	sender     Sender
	mode       chunk.Mode
	limit      int
	maxRetries int
	retryDelay time.Duration
	reporter   Reporter
	sleep      func(ctx context.Context, d time.Duration) error
	newKey     func() string
}

// New validates opts and returns an Adapter around s.
func New(s Sender, opts Options) (*Adapter, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: nil sender", ErrConfig)
	}
	mode, err := chunk.ParseMode(string(opts.Mode))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if opts.MaxRetries < 0 {
		return nil, fmt.Errorf("%w: negative max retries %d", ErrConfig, opts.MaxRetries)
	}

	a := &Adapter{
		sender:     s,
		mode:       mode,
		limit:      opts.Limit,
		maxRetries: opts.MaxRetries,
		retryDelay: opts.RetryDelay,
		reporter:   opts.Reporter,
		sleep:      opts.Sleep,
		newKey:     opts.NewKey,
	}
	if a.reporter == nil {
		a.reporter = LogReporter{}
	}
	if a.sleep == nil {
		a.sleep = util.Sleep
	}
	if a.newKey == nil {
		a.newKey = uuid.NewString
	}
	return a, nil
}

// Mode returns the splitter variant in use.
func (a *Adapter) Mode() chunk.Mode { return a.mode }

// Limit returns the configured chunk size.
func (a *Adapter) Limit() int { return a.limit }

// Chunks splits text exactly as SendText would.
func (a *Adapter) Chunks(text string) []string { return a.mode.Split(text, a.limit) }

// SendText splits text and sends every chunk to to, in order. It stops
// at the first chunk that cannot be delivered; the returned Delivery
// lists what was sent before that.
func (a *Adapter) SendText(ctx context.Context, to, text string) (*model.Delivery, error) {
	d, err := a.newDelivery(to)
	if err != nil {
		return nil, err
	}
	return d, a.sendChunks(ctx, d, text)
}

// SendMedia sends text (when not blank) followed by the asset at
// mediaURL. If the asset cannot be delivered the failure is reported
// and a text message linking to it is sent instead.
func (a *Adapter) SendMedia(ctx context.Context, to, text, mediaURL string) (*model.Delivery, error) {
	d, err := a.newDelivery(to)
	if err != nil {
		return nil, err
	}

	if chunk.TrimSpace(text) != "" {
		if err := a.sendChunks(ctx, d, text); err != nil {
			return d, err
		}
	}
	if mediaURL == "" {
		return d, nil
	}

	mctx := util.WithIdempotencyKey(ctx, a.newKey())
	res, attempts, err := a.withRetry(mctx, func() (model.SendResult, error) {
		return a.sender.SendMedia(mctx, to, mediaURL)
	})
	if err == nil {
		d.Results = append(d.Results, res)
		return d, nil
	}
	a.reporter.ReportFailure(ctx, Failure{
		Channel:  d.Channel,
		Op:       "send_media",
		To:       to,
		Chunk:    -1,
		Attempts: attempts,
		MediaURL: mediaURL,
		Err:      err,
	})
	if ctx.Err() != nil {
		return d, &DeliveryError{Op: "send_media", Chunk: -1, Attempts: attempts, Err: err}
	}

	d.Fallback = true
	return d, a.sendChunks(ctx, d, FallbackText(mediaURL))
}

// FallbackText is the message sent in place of undeliverable media.
func FallbackText(mediaURL string) string { return FallbackPrefix + mediaURL }

func (a *Adapter) newDelivery(to string) (*model.Delivery, error) {
	if strings.TrimSpace(to) == "" {
		return nil, ErrNoRecipient
	}
	return &model.Delivery{Channel: a.sender.Channel(), To: to, Results: []model.SendResult{}}, nil
}

func (a *Adapter) sendChunks(ctx context.Context, d *model.Delivery, text string) error {
	chunks := a.Chunks(text)
	for i, c := range chunks {
		cctx := util.WithIdempotencyKey(ctx, a.newKey())
		res, attempts, err := a.withRetry(cctx, func() (model.SendResult, error) {
			return a.sender.SendText(cctx, d.To, c)
		})
		if err != nil {
			a.reporter.ReportFailure(ctx, Failure{
				Channel:  d.Channel,
				Op:       "send_text",
				To:       d.To,
				Chunk:    i,
				Chunks:   len(chunks),
				Attempts: attempts,
				Err:      err,
			})
			return &DeliveryError{Op: "send_text", Chunk: i, Attempts: attempts, Err: err}
		}
		d.Results = append(d.Results, res)
		d.ChunkCount++
	}
	return nil
}

// withRetry runs send until it succeeds, fails permanently, or the
// retry budget is spent. It returns the number of attempts made.
func (a *Adapter) withRetry(ctx context.Context, send func() (model.SendResult, error)) (model.SendResult, int, error) {
	var lastErr error
	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		if attempt > 0 {
			if err := a.sleep(ctx, util.CalculateBackoff(a.retryDelay, attempt)); err != nil {
				return model.SendResult{}, attempt, fmt.Errorf("%w (last error: %v)", err, lastErr)
			}
		}
		if err := ctx.Err(); err != nil {
			return model.SendResult{}, attempt, err
		}

		res, err := send()
		if err == nil {
			return res, attempt + 1, nil
		}
		lastErr = err
		if !IsTransient(err) {
			return model.SendResult{}, attempt + 1, err
		}
	}
	return model.SendResult{}, a.maxRetries + 1, lastErr
}
