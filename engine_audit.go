package sessiongate

import (
	"context"

	"github.com/disappointingsupernova/sessiongate/internal/audit"
	"github.com/disappointingsupernova/sessiongate/session"
)

// SessionEvent implements session.Observer: lifecycle transitions of the
// session manager become security events.
func (e *Engine) SessionEvent(ctx context.Context, kind session.EventKind, s *session.Session, detail map[string]string) {
	switch kind {
	case session.EventCreated:
		e.metrics.Inc(MetricSessionCreated)
		e.record(ctx, audit.KindSessionCreated, s, detail)
	case session.EventRevoked:
		e.metrics.Inc(MetricSessionRevoked)
		e.record(ctx, audit.KindRevoked, s, detail)
	case session.EventRiskReauthRequired:
		e.metrics.Inc(MetricReauthRequired)
		e.record(ctx, audit.KindRiskReauthRequired, s, detail)
	case session.EventReauthenticated:
		e.record(ctx, audit.KindReauthenticated, s, detail)
	}
}

// record hands one event to the dispatcher. It never blocks the caller in
// drop mode and never fails.
func (e *Engine) record(ctx context.Context, kind audit.Kind, s *session.Session, detail map[string]string) {
	if e == nil || e.audit == nil {
		return
	}

	event := audit.New(kind, s.ID, s.UserID, e.clock())
	event.Context = s.Device.Snapshot()
	if len(detail) > 0 {
		event.Detail = detail
	}
	e.audit.Emit(ctx, event)
}
