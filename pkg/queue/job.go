package queue

import (
	"context"
	"encoding/json"
)

// Job handles one message type.
type Job interface {
	// Name identifies the job in logs.
	Name() string

	// Type is the message type the job consumes.
	Type() string

	// Handle processes one payload. Wrap the error with Permanent to skip
	// the remaining retries.
	Handle(ctx context.Context, payload json.RawMessage) error
}
