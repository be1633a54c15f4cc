package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/disappointingsupernova/sessiongate/device"
	"github.com/disappointingsupernova/sessiongate/session"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const sessionColumns = `
	id, user_id, device, risk, state,
	created_at, last_seen_at, absolute_expires_at, revoked_at, revoked_reason, version`

// SessionStore implements session.Store on sessiongate.sessions.
type SessionStore struct {
	pool *pgxpool.Pool
}

func NewSessionStore(pool *pgxpool.Pool) *SessionStore {
	return &SessionStore{pool: pool}
}

// Create inserts sess and fails with session.ErrExists on id collision.
func (s *SessionStore) Create(ctx context.Context, sess *session.Session) error {
	dev, err := json.Marshal(sess.Device)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO sessiongate.sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
	`, sess.ID, sess.UserID, dev, sess.Risk, int16(sess.State),
		sess.CreatedAt.UTC(), sess.LastSeenAt.UTC(), sess.AbsoluteExpiresAt.UTC(),
		nullTime(sess.RevokedAt), nullString(sess.RevokedReason), int64(sess.Version))
	if err != nil {
		return unavailable(err)
	}
	if tag.RowsAffected() == 0 {
		return session.ErrExists
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, id string) (*session.Session, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessiongate.sessions WHERE id = $1`, id)
	return scanSession(row)
}

// Update locks the row, applies fn and writes the result in one transaction.
func (s *SessionStore) Update(ctx context.Context, id string, fn func(*session.Session) error) (*session.Session, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, unavailable(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	sess, err := scanSession(tx.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessiongate.sessions WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}

	if err := fn(sess); err != nil {
		if errors.Is(err, session.ErrUnchanged) {
			return sess, nil
		}
		return nil, err
	}
	sess.Version++

	dev, err := json.Marshal(sess.Device)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE sessiongate.sessions
		SET device = $2, risk = $3, state = $4, last_seen_at = $5,
		    revoked_at = $6, revoked_reason = $7, version = $8
		WHERE id = $1
	`, id, dev, sess.Risk, int16(sess.State), sess.LastSeenAt.UTC(),
		nullTime(sess.RevokedAt), nullString(sess.RevokedReason), int64(sess.Version)); err != nil {
		return nil, unavailable(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, unavailable(err)
	}
	return sess, nil
}

// ListByUser returns every session of userID, oldest first.
func (s *SessionStore) ListByUser(ctx context.Context, userID string) ([]*session.Session, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM sessiongate.sessions
		WHERE user_id = $1
		ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	var out []*session.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return out, nil
}

// RevokeAll revokes every session created at or before at in one statement.
// Sessions already revoked keep their original reason.
func (s *SessionStore) RevokeAll(ctx context.Context, reason string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE sessiongate.sessions
		SET state = $1,
		    revoked_at = COALESCE(revoked_at, $2),
		    revoked_reason = COALESCE(revoked_reason, $3),
		    version = version + 1
		WHERE state <> $1 AND created_at <= $2
	`, int16(session.StateRevoked), at.UTC(), reason)
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func scanSession(row pgx.Row) (*session.Session, error) {
	var (
		sess      session.Session
		dev       []byte
		state     int16
		version   int64
		revokedAt *time.Time
		reason    *string
	)
	err := row.Scan(
		&sess.ID,
		&sess.UserID,
		&dev,
		&sess.Risk,
		&state,
		&sess.CreatedAt,
		&sess.LastSeenAt,
		&sess.AbsoluteExpiresAt,
		&revokedAt,
		&reason,
		&version,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, unavailable(err)
	}

	if len(dev) > 0 {
		var d device.Context
		if err := json.Unmarshal(dev, &d); err != nil {
			return nil, fmt.Errorf("%w: device: %v", session.ErrCorrupt, err)
		}
		sess.Device = d
	}
	sess.State = session.State(state)
	sess.Version = uint32(version)
	sess.CreatedAt = sess.CreatedAt.UTC()
	sess.LastSeenAt = sess.LastSeenAt.UTC()
	sess.AbsoluteExpiresAt = sess.AbsoluteExpiresAt.UTC()
	sess.RevokedAt = fromNullTime(revokedAt)
	sess.RevokedReason = fromNullString(reason)
	return &sess, nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", session.ErrUnavailable, err)
}
