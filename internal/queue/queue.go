// Package queue delivers job descriptors to the worker one at a
// time. The production source is a Pub/Sub subscription with flow
// control pinned to a single outstanding message; a directory watch
// source covers local operation.
package queue

import "context"

// Message is one delivered job trigger. Ack must be called exactly
// once per message; the worker does so unconditionally after the
// pipeline returns.
type Message interface {
	Attributes() map[string]string
	Ack()
}

// Handler processes one message. It must not panic across the
// boundary; sources are not required to recover.
type Handler func(ctx context.Context, msg Message)

// Source blocks delivering messages to the handler until ctx is
// cancelled or the source fails. At most one handler call is in
// flight at a time.
type Source interface {
	Receive(ctx context.Context, h Handler) error
}
