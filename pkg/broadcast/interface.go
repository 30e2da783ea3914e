package broadcast

import (
	"context"
	"errors"

	"leaderbus/pkg/models"
)

var (
	ErrClosed = errors.New("broadcast channel closed")
)

// Handler receives every message published on a channel, including the
// subscriber's own. Handlers must not block for long; transports may call
// them from their delivery goroutine.
type Handler func(msg models.Message)

// Subscription is the handle returned by Subscribe.
type Subscription interface {
	// Unsubscribe stops delivery to the handler: no delivery that starts after
	// it returns reaches the handler. A call already running on another
	// goroutine may still complete, so handlers that must not act once
	// unsubscribed check their own state. It may be called from inside the
	// handler. Calling it more than once is a no-op.
	Unsubscribe() error
}

// Channel is a publish/subscribe transport in which every published message
// reaches every current subscriber. No ordering across senders is promised.
type Channel interface {
	// Publish sends msg to all current subscribers.
	Publish(ctx context.Context, msg models.Message) error

	// Subscribe registers a handler for all subsequent messages.
	Subscribe(handler Handler) (Subscription, error)

	// Close releases the transport. Further Publish/Subscribe calls return ErrClosed.
	Close() error
}
