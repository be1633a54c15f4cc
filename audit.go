package sessiongate

import (
	"io"

	"github.com/disappointingsupernova/sessiongate/internal/audit"
	"github.com/redis/go-redis/v9"
)

// SecurityEvent is one append-only record of the security event recorder.
type SecurityEvent = audit.Event

// EventKind names a recorded transition.
type EventKind = audit.Kind

// EventSink consumes security events. Emit errors are logged and counted;
// they never fail the operation that produced the event.
type EventSink = audit.Sink

const (
	EventLogin              = audit.KindLogin
	EventLogout             = audit.KindLogout
	EventRefresh            = audit.KindRefresh
	EventReuseDetected      = audit.KindReuseDetected
	EventRiskReauthRequired = audit.KindRiskReauthRequired
	EventRevoked            = audit.KindRevoked
	EventSessionCreated     = audit.KindSessionCreated
	EventReauthenticated    = audit.KindReauthenticated
	EventRotateShortened    = audit.KindRotateShortened
)

// NoOpSink drops security events.
type NoOpSink = audit.NoOpSink

// ChannelSink delivers events into a buffered channel.
type ChannelSink = audit.ChannelSink

func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

// NewJSONWriterSink writes one JSON object per event and line.
func NewJSONWriterSink(w io.Writer) EventSink {
	return audit.NewJSONWriterSink(w)
}

// NewRedisStreamSink appends events to a Redis stream, approximately capped
// at maxLen entries when maxLen > 0.
func NewRedisStreamSink(client redis.UniversalClient, stream string, maxLen int64) EventSink {
	return audit.NewRedisStreamSink(client, stream, maxLen)
}
