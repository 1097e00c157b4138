// Package notify emits best-effort upload notifications. Delivery is
// never on the critical path: callers dispatch with a bounded context,
// log failures, and move on. There is no retry.
package notify

import (
	"context"
	"time"
)

// Event describes one successful upload.
type Event struct {
	ScriptID    string
	OwnerKey    string
	Filename    string
	ScriptBytes int
	OccurredAt  time.Time
}

// Notifier is the outbound notification capability. Implementations
// must treat delivery as best-effort and must not block beyond their
// context.
type Notifier interface {
	ScriptUploaded(ctx context.Context, event Event) error
}

// Noop implements Notifier by discarding events.
type Noop struct{}

func (Noop) ScriptUploaded(context.Context, Event) error { return nil }
