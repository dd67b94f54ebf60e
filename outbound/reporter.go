package outbound

import (
	"context"
	"log"
)

// Failure describes one delivery failure with enough context to act on.
type Failure struct {
	Channel  string
	Op       string
	To       string
	Chunk    int // -1 for media
	Chunks   int
	Attempts int
	MediaURL string
	Err      error
}

// Reporter records delivery failures.
type Reporter interface {
	ReportFailure(ctx context.Context, f Failure)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ctx context.Context, f Failure)

func (fn ReporterFunc) ReportFailure(ctx context.Context, f Failure) { fn(ctx, f) }

// LogReporter writes failures to a *log.Logger (log.Default() when nil).
type LogReporter struct {
	Logger *log.Logger
}

func (r LogReporter) ReportFailure(_ context.Context, f Failure) {
	l := r.Logger
	if l == nil {
		l = log.Default()
	}
	if f.MediaURL != "" {
		l.Printf("[%s] %s failed to=%s media=%s attempts=%d transient=%t: %v",
			f.Channel, f.Op, f.To, f.MediaURL, f.Attempts, IsTransient(f.Err), f.Err)
		return
	}
	l.Printf("[%s] %s failed to=%s chunk=%d/%d attempts=%d transient=%t: %v",
		f.Channel, f.Op, f.To, f.Chunk+1, f.Chunks, f.Attempts, IsTransient(f.Err), f.Err)
}
