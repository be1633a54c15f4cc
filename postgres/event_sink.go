package postgres

import (
	"context"
	"encoding/json"

	"github.com/disappointingsupernova/sessiongate/internal/audit"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EventSink appends security events to sessiongate.security_events. Events
// are keyed by their ULID, so a redelivered event is stored once.
type EventSink struct {
	pool *pgxpool.Pool
}

func NewEventSink(pool *pgxpool.Pool) *EventSink {
	return &EventSink{pool: pool}
}

func (s *EventSink) Emit(ctx context.Context, event audit.Event) error {
	evCtx, err := jsonOrEmpty(event.Context)
	if err != nil {
		return err
	}
	detail, err := jsonOrEmpty(event.Detail)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO sessiongate.security_events
			(id, kind, session_id, user_id, occurred_at, context, detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`, event.ID, string(event.Kind), event.SessionID, event.UserID,
		event.Timestamp.UTC(), evCtx, detail)
	return err
}

func jsonOrEmpty(m map[string]string) ([]byte, error) {
	if len(m) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}
