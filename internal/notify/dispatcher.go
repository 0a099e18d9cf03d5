// Package notify is the Notification Dispatcher collaborator: fire-and-forget
// text delivery. Delivery retries live here; callers log a failed Send and
// never let it alter scheduling state.
package notify

import "context"

type Dispatcher interface {
	Send(ctx context.Context, phone, text string) error
}

// Noop discards messages; used in tests and local runs without a provider.
type Noop struct{}

func NewNoop() *Noop {
	return &Noop{}
}

func (*Noop) Send(_ context.Context, _, _ string) error {
	return nil
}
