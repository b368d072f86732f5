package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// payloadField is the stream field carrying a message body.
const payloadField = "payload"

// SignalBus implements domain.SignalBus using Redis Pub/Sub for ephemeral
// messaging and Redis Streams for durable, ordered message delivery.
type SignalBus struct {
	rdb    *redis.Client
	maxLen int64
}

// NewSignalBus creates a SignalBus whose streams are trimmed to roughly
// maxLen entries. maxLen <= 0 defaults to 10,000.
func NewSignalBus(c *Client, maxLen int64) *SignalBus {
	if maxLen <= 0 {
		maxLen = 10_000
	}
	return &SignalBus{rdb: c.Underlying(), maxLen: maxLen}
}

// Publish sends a raw byte payload to a Redis Pub/Sub channel.
func (sb *SignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := sb.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe creates a Redis Pub/Sub subscription and returns a read-only
// channel of payloads. The channel is closed when ctx is cancelled.
func (sb *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	var pubsub *redis.PubSub
	if hasPattern(channel) {
		pubsub = sb.rdb.PSubscribe(ctx, channel)
	} else {
		pubsub = sb.rdb.Subscribe(ctx, channel)
	}
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	out := make(chan []byte, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// hasPattern returns true when the channel includes glob-style wildcards, in
// which case PSubscribe must be used instead of Subscribe.
func hasPattern(channel string) bool {
	return strings.ContainsAny(channel, "*?[")
}

// StreamAppend appends fields to a stream with XADD MAXLEN ~.
func (sb *SignalBus) StreamAppend(ctx context.Context, stream string, fields map[string]any) error {
	args := &redis.XAddArgs{
		Stream: stream,
		MaxLen: sb.maxLen,
		Approx: true,
		Values: fields,
	}
	if err := sb.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis: stream append %s: %w", stream, err)
	}
	return nil
}

// StreamRead reads up to count messages from each stream after its cursor,
// blocking up to block when none are available. Streams keys map to the last
// seen id. Messages without a payload field are
// returned with a nil Payload so callers can still advance past them. A
// timeout returns an empty result and no error.
func (sb *SignalBus) StreamRead(ctx context.Context, streams map[string]string, count int64, block time.Duration) (map[string][]domain.StreamMessage, error) {
	if len(streams) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, 2*len(streams))
	ids := make([]string, 0, len(streams))
	for name, id := range streams {
		keys = append(keys, name)
		ids = append(ids, id)
	}
	keys = append(keys, ids...)

	res, err := sb.rdb.XRead(ctx, &redis.XReadArgs{
		Streams: keys,
		Count:   count,
		Block:   block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis: stream read: %w", err)
	}

	out := make(map[string][]domain.StreamMessage, len(res))
	for _, s := range res {
		for _, msg := range s.Messages {
			data, _ := fieldBytes(msg.Values, payloadField)
			out[s.Stream] = append(out[s.Stream], domain.StreamMessage{ID: msg.ID, Payload: data})
		}
	}
	return out, nil
}

// emptyStreamID precedes every id Redis can assign.
const emptyStreamID = "0-0"

// StreamLastID returns the id of the newest entry via XREVRANGE + - COUNT 1.
func (sb *SignalBus) StreamLastID(ctx context.Context, stream string) (string, error) {
	msgs, err := sb.rdb.XRevRangeN(ctx, stream, "+", "-", 1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("redis: stream last id %s: %w", stream, err)
	}
	if len(msgs) == 0 {
		return emptyStreamID, nil
	}
	return msgs[0].ID, nil
}

// fieldBytes extracts a string or []byte stream value.
func fieldBytes(values map[string]any, field string) ([]byte, bool) {
	switch v := values[field].(type) {
	case string:
		return []byte(v), true
	case []byte:
		return v, true
	default:
		return nil, false
	}
}

var _ domain.SignalBus = (*SignalBus)(nil)
