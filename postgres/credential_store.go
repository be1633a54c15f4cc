package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/disappointingsupernova/sessiongate/refresh"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const credentialColumns = `
	id, session_id, hash, predecessor_id, successor_id,
	issued_at, expires_at, consumed_at, revoked_at`

// CredentialStore implements refresh.Store on sessiongate.refresh_credentials.
type CredentialStore struct {
	pool *pgxpool.Pool
}

func NewCredentialStore(pool *pgxpool.Pool) *CredentialStore {
	return &CredentialStore{pool: pool}
}

// Insert stores a chain head. Inserting the same hash again is a no-op, so a
// retried call cannot fork the chain.
func (s *CredentialStore) Insert(ctx context.Context, c *refresh.Credential) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessiongate.refresh_credentials (`+credentialColumns+`)
		VALUES ($1, $2, $3, $4, NULL, $5, $6, $7, $8)
		ON CONFLICT (hash) DO NOTHING
	`, c.ID, c.SessionID, c.Hash, nullString(c.PredecessorID),
		c.IssuedAt.UTC(), c.ExpiresAt.UTC(), nullTime(c.ConsumedAt), nullTime(c.RevokedAt))
	if err != nil {
		return credentialUnavailable(err)
	}
	return nil
}

func (s *CredentialStore) Lookup(ctx context.Context, hash string) (*refresh.Credential, error) {
	c, _, err := scanCredential(s.pool.QueryRow(ctx,
		`SELECT `+credentialColumns+` FROM sessiongate.refresh_credentials WHERE hash = $1`, hash))
	return c, err
}

// Exchange consumes the node under hash and inserts next as its successor
// while holding the node's row lock. A retry carrying the successor id
// already recorded is answered as a success.
func (s *CredentialStore) Exchange(ctx context.Context, hash string, next refresh.Next, now time.Time) (refresh.Exchange, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return refresh.Exchange{}, credentialUnavailable(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	presented, successor, err := scanCredential(tx.QueryRow(ctx,
		`SELECT `+credentialColumns+` FROM sessiongate.refresh_credentials WHERE hash = $1 FOR UPDATE`, hash))
	if err != nil {
		return refresh.Exchange{}, err
	}

	issued := &refresh.Credential{
		ID:            next.ID,
		SessionID:     presented.SessionID,
		Hash:          next.Hash,
		PredecessorID: presented.ID,
		IssuedAt:      next.IssuedAt,
		ExpiresAt:     next.ExpiresAt,
	}
	out := refresh.Exchange{Presented: presented}

	switch {
	case successor != "" && successor == next.ID:
		out.Issued = issued
		return out, nil
	case !now.Before(presented.ExpiresAt):
		return out, refresh.ErrExpired
	case presented.Consumed():
		return out, refresh.ErrReuse
	case presented.Revoked():
		return out, refresh.ErrRevoked
	}

	if _, err := tx.Exec(ctx, `
		UPDATE sessiongate.refresh_credentials
		SET consumed_at = $2, successor_id = $3
		WHERE hash = $1
	`, hash, now.UTC(), next.ID); err != nil {
		return refresh.Exchange{}, credentialUnavailable(err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO sessiongate.refresh_credentials (`+credentialColumns+`)
		VALUES ($1, $2, $3, $4, NULL, $5, $6, NULL, NULL)
	`, issued.ID, issued.SessionID, issued.Hash, issued.PredecessorID,
		issued.IssuedAt.UTC(), issued.ExpiresAt.UTC()); err != nil {
		return refresh.Exchange{}, credentialUnavailable(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return refresh.Exchange{}, credentialUnavailable(err)
	}

	presented.ConsumedAt = now.UTC()
	out.Issued = issued
	return out, nil
}

// RevokeSession revokes every live node of sessionID. Consumed nodes keep
// their history.
func (s *CredentialStore) RevokeSession(ctx context.Context, sessionID string, at time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sessiongate.refresh_credentials
		SET revoked_at = $2
		WHERE session_id = $1 AND consumed_at IS NULL AND revoked_at IS NULL
	`, sessionID, at.UTC())
	if err != nil {
		return 0, credentialUnavailable(err)
	}
	return int(tag.RowsAffected()), nil
}

// Chain returns the nodes of sessionID in insertion order.
func (s *CredentialStore) Chain(ctx context.Context, sessionID string) ([]*refresh.Credential, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+credentialColumns+`
		FROM sessiongate.refresh_credentials
		WHERE session_id = $1
		ORDER BY seq
	`, sessionID)
	if err != nil {
		return nil, credentialUnavailable(err)
	}
	defer rows.Close()

	var out []*refresh.Credential
	for rows.Next() {
		c, _, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, credentialUnavailable(err)
	}
	return out, nil
}

func scanCredential(row pgx.Row) (*refresh.Credential, string, error) {
	var (
		c          refresh.Credential
		pred, succ *string
		consumed   *time.Time
		revoked    *time.Time
	)
	err := row.Scan(
		&c.ID,
		&c.SessionID,
		&c.Hash,
		&pred,
		&succ,
		&c.IssuedAt,
		&c.ExpiresAt,
		&consumed,
		&revoked,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, "", refresh.ErrUnknown
	}
	if err != nil {
		return nil, "", credentialUnavailable(err)
	}

	c.PredecessorID = fromNullString(pred)
	c.IssuedAt = c.IssuedAt.UTC()
	c.ExpiresAt = c.ExpiresAt.UTC()
	c.ConsumedAt = fromNullTime(consumed)
	c.RevokedAt = fromNullTime(revoked)
	return &c, fromNullString(succ), nil
}

func credentialUnavailable(err error) error {
	return fmt.Errorf("%w: %v", refresh.ErrUnavailable, err)
}
