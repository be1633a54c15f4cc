package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/disappointingsupernova/sessiongate/device"
	"github.com/disappointingsupernova/sessiongate/internal"
	"github.com/disappointingsupernova/sessiongate/risk"
)

// Default lifetimes.
const (
	DefaultIdleTimeout      = 30 * 24 * time.Hour
	DefaultAbsoluteLifetime = 90 * 24 * time.Hour
)

// Store is the persistence contract of the session manager. Update must be
// an atomic read-modify-write of a single session.
type Store interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Update(ctx context.Context, id string, fn func(*Session) error) (*Session, error)
	ListByUser(ctx context.Context, userID string) ([]*Session, error)
	RevokeAll(ctx context.Context, reason string, at time.Time) error
}

// EventKind names a lifecycle transition reported to an [Observer].
type EventKind string

const (
	EventCreated            EventKind = "session_created"
	EventRevoked            EventKind = "revoked"
	EventRiskReauthRequired EventKind = "risk_reauth_required"
	EventReauthenticated    EventKind = "reauthenticated"
)

// Observer receives transitions after they are persisted. It must not block
// and cannot fail the operation.
type Observer interface {
	SessionEvent(ctx context.Context, kind EventKind, s *Session, detail map[string]string)
}

// Config tunes a [Manager].
type Config struct {
	IdleTimeout      time.Duration
	AbsoluteLifetime time.Duration
	Policy           risk.Policy
	Now              func() time.Time
	Logger           *slog.Logger
}

// Manager owns session state transitions.
type Manager struct {
	store    Store
	config   Config
	observer Observer
}

// Outcome is the result of [Manager.Touch].
type Outcome struct {
	Session    *Session
	Assessment risk.Assessment
}

// NewManager returns a manager over store. A nil observer drops events.
func NewManager(store Store, cfg Config, observer Observer) *Manager {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.AbsoluteLifetime <= 0 {
		cfg.AbsoluteLifetime = DefaultAbsoluteLifetime
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{store: store, config: cfg, observer: observer}
}

// Policy returns the risk policy applied by Touch.
func (m *Manager) Policy() risk.Policy {
	return m.config.Policy
}

// IdleTimeout returns the configured idle bound.
func (m *Manager) IdleTimeout() time.Duration {
	return m.config.IdleTimeout
}

// Create starts a new active session for userID with risk 0.
func (m *Manager) Create(ctx context.Context, userID string, dev device.Context) (*Session, error) {
	if userID == "" {
		return nil, errors.New("session: user id required")
	}
	now := m.now()

	for attempt := 0; attempt < 3; attempt++ {
		id, err := internal.NewSessionID()
		if err != nil {
			return nil, err
		}
		sess := &Session{
			ID:                id,
			UserID:            userID,
			Device:            dev,
			State:             StateActive,
			CreatedAt:         now,
			LastSeenAt:        now,
			AbsoluteExpiresAt: now.Add(m.config.AbsoluteLifetime),
		}
		err = m.store.Create(ctx, sess)
		if errors.Is(err, ErrExists) {
			continue
		}
		if err != nil {
			return nil, err
		}
		m.emit(ctx, EventCreated, sess, nil)
		return sess, nil
	}
	return nil, ErrExists
}

// Get returns the stored session without applying lazy expiry.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	return m.store.Get(ctx, id)
}

// Check returns the session when it is usable. A session past a lazy bound is
// revoked on the spot (best effort) and reported as [ErrRevoked].
func (m *Manager) Check(ctx context.Context, id string) (*Session, error) {
	sess, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	now := m.now()

	switch {
	case sess.State == StateRevoked:
		return sess, ErrRevoked
	case sess.ExpiryReason(now, m.config.IdleTimeout) != "":
		m.expire(ctx, sess, now)
		return sess, ErrRevoked
	case sess.State == StateReauthRequired:
		return sess, ErrReauthRequired
	}
	return sess, nil
}

// IsUsable reports whether id names an active session inside both lifetime
// bounds. Any lookup failure reads as not usable.
func (m *Manager) IsUsable(ctx context.Context, id string) bool {
	_, err := m.Check(ctx, id)
	return err == nil
}

// Touch records activity on an active session: it refreshes last_seen_at,
// scores dev against the recorded context and applies the resulting
// transition. Network fields of the recorded context follow dev.
func (m *Manager) Touch(ctx context.Context, id string, dev device.Context) (Outcome, error) {
	var (
		assessment risk.Assessment
		expired    string
	)

	sess, err := m.store.Update(ctx, id, func(s *Session) error {
		now := m.now()
		expired = ""
		switch {
		case s.State == StateRevoked:
			return ErrRevoked
		case s.ExpiryReason(now, m.config.IdleTimeout) != "":
			expired = s.ExpiryReason(now, m.config.IdleTimeout)
			s.revoke(now, expired)
			return nil
		case s.State == StateReauthRequired:
			return ErrReauthRequired
		}

		assessment = m.config.Policy.Assess(s.Risk, s.Device, dev)
		s.Risk = assessment.Cumulative
		s.Device = s.Device.MergeNetwork(dev)
		s.LastSeenAt = now
		if assessment.Reauth {
			s.State = StateReauthRequired
		}
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}

	if expired != "" {
		m.emit(ctx, EventRevoked, sess, map[string]string{"reason": expired})
		return Outcome{Session: sess}, ErrRevoked
	}
	if assessment.Reauth {
		m.emit(ctx, EventRiskReauthRequired, sess, assessment.Detail())
	}
	return Outcome{Session: sess, Assessment: assessment}, nil
}

// Reauthenticated completes primary re-verification: risk resets to 0, the
// recorded device context becomes dev and the session returns to active.
// Revoked or expired sessions cannot be revived.
func (m *Manager) Reauthenticated(ctx context.Context, id string, dev device.Context) (*Session, error) {
	var expired string
	sess, err := m.store.Update(ctx, id, func(s *Session) error {
		now := m.now()
		expired = ""
		if s.State == StateRevoked {
			return ErrRevoked
		}
		if reason := s.ExpiryReason(now, m.config.IdleTimeout); reason != "" {
			expired = reason
			s.revoke(now, reason)
			return nil
		}
		s.Risk = 0
		s.Device = dev
		s.State = StateActive
		s.LastSeenAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	if expired != "" {
		m.emit(ctx, EventRevoked, sess, map[string]string{"reason": expired})
		return sess, ErrRevoked
	}
	m.emit(ctx, EventReauthenticated, sess, nil)
	return sess, nil
}

// Revoke moves id to revoked. Revoking a revoked or missing session is a no-op.
func (m *Manager) Revoke(ctx context.Context, id, reason string) error {
	_, err := m.revoke(ctx, id, reason)
	return err
}

func (m *Manager) revoke(ctx context.Context, id, reason string) (bool, error) {
	changed := false
	sess, err := m.store.Update(ctx, id, func(s *Session) error {
		changed = s.revoke(m.now(), reason)
		if !changed {
			return ErrUnchanged
		}
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if changed {
		m.emit(ctx, EventRevoked, sess, map[string]string{"reason": reason})
	}
	return changed, nil
}

// RevokeAllForUser revokes every session of userID and returns their ids,
// including ones already revoked. It stops at the first storage failure.
func (m *Manager) RevokeAllForUser(ctx context.Context, userID, reason string) ([]string, error) {
	sessions, err := m.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(sessions))
	for _, s := range sessions {
		ids = append(ids, s.ID)
		if s.State == StateRevoked {
			continue
		}
		if _, err := m.revoke(ctx, s.ID, reason); err != nil {
			return ids, err
		}
	}
	return ids, nil
}

// RevokeAll revokes every session on the platform.
func (m *Manager) RevokeAll(ctx context.Context, reason string) error {
	return m.store.RevokeAll(ctx, reason, m.now())
}

// List returns the sessions of userID with lazy expiry reflected in State.
func (m *Manager) List(ctx context.Context, userID string) ([]*Session, error) {
	sessions, err := m.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := m.now()
	for _, s := range sessions {
		if s.State != StateRevoked {
			if reason := s.ExpiryReason(now, m.config.IdleTimeout); reason != "" {
				s.revoke(now, reason)
			}
		}
	}
	return sessions, nil
}

func (m *Manager) expire(ctx context.Context, sess *Session, now time.Time) {
	reason := sess.ExpiryReason(now, m.config.IdleTimeout)
	if _, err := m.revoke(ctx, sess.ID, reason); err != nil {
		m.config.Logger.WarnContext(ctx, "lazy expiry not persisted",
			slog.String("component", "session"),
			slog.String("session_id", sess.ID),
			slog.String("reason", reason),
			slog.Any("error", err),
		)
	}
	sess.revoke(now, reason)
}

func (m *Manager) emit(ctx context.Context, kind EventKind, sess *Session, detail map[string]string) {
	if m.observer == nil || sess == nil {
		return
	}
	m.observer.SessionEvent(ctx, kind, sess.Clone(), detail)
}

func (m *Manager) now() time.Time {
	return m.config.Now().UTC()
}
