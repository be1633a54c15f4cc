package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Sink receives emitted audit events. A returned error is reported by the
// caller's dispatcher and never reaches the operation that produced the event.
type Sink interface {
	Emit(ctx context.Context, event Event) error
}

// NoOpSink drops audit events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) error { return nil }

// ChannelSink writes audit events into a buffered channel.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan Event, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) error {
	select {
	case s.events <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(_ context.Context, event Event) error {
	if s == nil || s.writer == nil {
		return nil
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.writer.Write(data)
	return err
}

// RedisStreamSink appends events to a Redis stream with XADD. The stream is
// capped approximately at MaxLen entries when MaxLen > 0.
type RedisStreamSink struct {
	client redis.UniversalClient
	stream string
	maxLen int64
}

func NewRedisStreamSink(client redis.UniversalClient, stream string, maxLen int64) *RedisStreamSink {
	if stream == "" {
		stream = "sessiongate:events"
	}
	return &RedisStreamSink{client: client, stream: stream, maxLen: maxLen}
}

func (s *RedisStreamSink) Emit(ctx context.Context, event Event) error {
	values := map[string]any{
		"id":         event.ID,
		"kind":       string(event.Kind),
		"session_id": event.SessionID,
		"user_id":    event.UserID,
		"ts":         event.Timestamp.UnixMilli(),
	}
	if len(event.Context) > 0 {
		raw, err := json.Marshal(event.Context)
		if err != nil {
			return err
		}
		values["context"] = raw
	}
	if len(event.Detail) > 0 {
		raw, err := json.Marshal(event.Detail)
		if err != nil {
			return err
		}
		values["detail"] = raw
	}

	args := &redis.XAddArgs{Stream: s.stream, Values: values}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	return s.client.XAdd(ctx, args).Err()
}
