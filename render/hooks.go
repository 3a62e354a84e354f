package render

import (
	"context"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/muesli/reflow/truncate"
)

// maxLabelWidth is the maximal width of a task label in log lines; mapfile paths can be long.
const maxLabelWidth = 160

// Event describes one finished backend invocation.
type Event struct {
	ID       string
	Label    string
	Duration time.Duration
	// Size of the rendered image in bytes, zero when the render failed
	Size int
	Err  error
}

// Status is an HTTP like status of the invocation, for request logs.
func (e Event) Status() int {
	if e.Err != nil {
		return http.StatusInternalServerError
	}
	return http.StatusOK
}

// Hooks receives an Event for every task a Gate ran or skipped.
type Hooks interface {
	OnRender(ctx context.Context, e Event)
}

// HooksFunc adapts a function to Hooks.
type HooksFunc func(ctx context.Context, e Event)

func (f HooksFunc) OnRender(ctx context.Context, e Event) {
	f(ctx, e)
}

// NoopHooks ignores all events.
type NoopHooks struct{}

func (NoopHooks) OnRender(context.Context, Event) {}

// LogHooks writes a request log line per event.
type LogHooks struct {
	Logger *log.Logger
}

func (h LogHooks) OnRender(_ context.Context, e Event) {
	logger := h.Logger
	if logger == nil {
		logger = log.Default()
	}
	kv := []interface{}{
		"id", e.ID,
		"label", truncate.StringWithTail(e.Label, maxLabelWidth, "..."),
		"status", e.Status(),
		"duration", e.Duration.Round(time.Microsecond),
	}
	if e.Err != nil {
		logger.Error("render failed", append(kv, "err", truncate.StringWithTail(e.Err.Error(), maxLabelWidth, "..."))...)
		return
	}
	logger.Info("rendered", append(kv, "size", e.Size)...)
}

// multiHooks sends events to several hooks in order.
type multiHooks []Hooks

func (m multiHooks) OnRender(ctx context.Context, e Event) {
	for _, h := range m {
		h.OnRender(ctx, e)
	}
}
