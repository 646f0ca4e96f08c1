// internal/lobby/subscriber.go
package lobby

import (
	"context"

	"github.com/google/uuid"
)

// Subscriber is one live client connection watching a match. The handle is
// opaque to the rest of the core: the broadcaster only needs Write and the
// Cancel hook that tears the underlying connection down.
type Subscriber struct {
	ID     uuid.UUID // unique per connection, not per user
	UserID uuid.UUID

	// Cancel stops the goroutines serving the underlying connection.
	// Invoked when the handle is pruned after a delivery failure.
	Cancel context.CancelFunc

	// OutChan is drained by the connection's write pump.
	OutChan chan map[string]interface{}
}

// NewSubscriber builds a handle with a buffered outbound channel.
func NewSubscriber(userID uuid.UUID, cancel context.CancelFunc) *Subscriber {
	return &Subscriber{
		ID:      uuid.New(),
		UserID:  userID,
		Cancel:  cancel,
		OutChan: make(chan map[string]interface{}, 16),
	}
}

// Write pushes a message onto the handle's outbound channel without
// blocking. A full buffer means the write pump is stalled or gone; the
// message is dropped and false returned so the caller can prune the handle.
func (s *Subscriber) Write(msg map[string]interface{}) (ok bool) {
	defer func() {
		// Sending on a closed channel panics; treat it as a failed delivery.
		if recover() != nil {
			ok = false
		}
	}()
	select {
	case s.OutChan <- msg:
		return true
	default:
		return false
	}
}
