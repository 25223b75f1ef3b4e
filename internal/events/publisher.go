package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Publisher appends events to Redis streams. Each entry carries the JSON
// encoded Event under the "event" field.
type Publisher struct {
	client redis.Cmdable
	maxLen int64
}

// NewPublisher returns a Publisher. A positive maxLen caps each stream
// approximately at that many entries.
func NewPublisher(client redis.Cmdable, maxLen int64) *Publisher {
	return &Publisher{client: client, maxLen: maxLen}
}

func (p *Publisher) Publish(ctx context.Context, stream, eventType string, data any) error {
	event := Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	eventJSON, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "failed to marshal event")
	}

	args := &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{
			"event": eventJSON,
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	if _, err := p.client.XAdd(ctx, args).Result(); err != nil {
		return errors.Wrapf(err, "failed to publish %s", eventType)
	}

	return nil
}
