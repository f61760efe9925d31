package dispatch

import (
	"context"
	"encoding/json"

	"github.com/relaykit/relaykit/protocol"
)

// Notifier sends server-initiated notifications back over the session that
// carried the request.
type Notifier interface {
	Notify(ctx context.Context, method string, params any) error
}

type notifierKey struct{}

// ContextWithNotifier attaches the session's notification path so handlers
// can report progress.
func ContextWithNotifier(ctx context.Context, n Notifier) context.Context {
	return context.WithValue(ctx, notifierKey{}, n)
}

type progressTokenKey struct{}

func contextWithProgressToken(ctx context.Context, token json.RawMessage) context.Context {
	return context.WithValue(ctx, progressTokenKey{}, token)
}

// ProgressParams is the payload of a progress notification.
type ProgressParams struct {
	ProgressToken json.RawMessage `json:"progressToken"`
	Progress      float64         `json:"progress"`
	Total         *float64        `json:"total,omitempty"`
}

// ProgressReporter emits progress notifications for one in-flight tool
// call. The zero reporter silently drops reports, so handlers can call it
// unconditionally.
type ProgressReporter struct {
	notifier Notifier
	token    json.RawMessage
}

// ProgressFromContext returns the reporter for the current tool call. It
// is inert when the caller did not ask for progress.
func ProgressFromContext(ctx context.Context) *ProgressReporter {
	token, _ := ctx.Value(progressTokenKey{}).(json.RawMessage)
	notifier, _ := ctx.Value(notifierKey{}).(Notifier)
	return &ProgressReporter{notifier: notifier, token: token}
}

// Active reports whether progress notifications will actually be sent.
func (r *ProgressReporter) Active() bool {
	return r != nil && r.notifier != nil && len(r.token) > 0
}

// Report sends one progress update. total, when non-nil, lets the caller
// render a percentage.
func (r *ProgressReporter) Report(ctx context.Context, progress float64, total *float64) error {
	if !r.Active() {
		return nil
	}
	return r.notifier.Notify(ctx, protocol.MethodProgress, ProgressParams{
		ProgressToken: r.token,
		Progress:      progress,
		Total:         total,
	})
}
