package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRetention keeps revoked and lazily expired records readable after
// their absolute deadline so checks report revoked rather than not found.
const DefaultRetention = 7 * 24 * time.Hour

const maxWatchRetries = 8

const createSessionScript = `
if redis.call("SET", KEYS[1], ARGV[1], "NX", "PX", ARGV[2]) == false then
  return 0
end
redis.call("SADD", KEYS[2], ARGV[3])
local ttl = redis.call("PTTL", KEYS[2])
if ttl < tonumber(ARGV[2]) then
  redis.call("PEXPIRE", KEYS[2], ARGV[2])
end
return 1
`

var createSessionLua = redis.NewScript(createSessionScript)

// ARGV[1] is a decimal nanosecond timestamp. Lua numbers lose precision at
// that size, so the epoch is compared as a string of digits.
const revokeAllScript = `
local cur = redis.call("HGET", KEYS[1], "at")
if cur and (#cur > #ARGV[1] or (#cur == #ARGV[1] and cur >= ARGV[1])) then
  return 0
end
redis.call("HSET", KEYS[1], "at", ARGV[1], "reason", ARGV[2])
return 1
`

var revokeAllLua = redis.NewScript(revokeAllScript)

// RedisStore persists sessions in Redis.
//
// Keys:
//
//	{prefix}:s:{id}     encoded session
//	{prefix}:u:{user}   set of session ids
//	{prefix}:revoke_all platform-wide revocation epoch (hash: at, reason)
type RedisStore struct {
	redis     redis.UniversalClient
	prefix    string
	retention time.Duration
	now       func() time.Time
}

// NewRedisStore returns a store using prefix for every key. A zero retention
// uses [DefaultRetention].
func NewRedisStore(client redis.UniversalClient, prefix string, retention time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "sg"
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &RedisStore{
		redis:     client,
		prefix:    prefix,
		retention: retention,
		now:       time.Now,
	}
}

func (s *RedisStore) sessionKey(id string) string {
	return s.prefix + ":s:" + id
}

func (s *RedisStore) userKey(userID string) string {
	return s.prefix + ":u:" + userID
}

func (s *RedisStore) epochKey() string {
	return s.prefix + ":revoke_all"
}

func (s *RedisStore) ttlFor(sess *Session) time.Duration {
	ttl := sess.AbsoluteExpiresAt.Sub(s.now()) + s.retention
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}

// Create stores a new session. It fails with [ErrExists] on id collision.
func (s *RedisStore) Create(ctx context.Context, sess *Session) error {
	enc, err := Encode(sess)
	if err != nil {
		return err
	}

	ok, err := createSessionLua.Run(ctx, s.redis,
		[]string{s.sessionKey(sess.ID), s.userKey(sess.UserID)},
		enc, s.ttlFor(sess).Milliseconds(), sess.ID,
	).Int()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if ok == 0 {
		return ErrExists
	}
	return nil
}

// Get loads a session with the platform-wide revocation epoch applied.
func (s *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	var (
		raw   *redis.StringCmd
		epoch *redis.MapStringStringCmd
	)
	_, err := s.redis.Pipelined(ctx, func(p redis.Pipeliner) error {
		raw = p.Get(ctx, s.sessionKey(id))
		epoch = p.HGetAll(ctx, s.epochKey())
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	sess, err := decodeRaw(raw)
	if err != nil {
		return nil, err
	}
	applyEpoch(sess, epoch.Val())
	return sess, nil
}

// Update applies fn to the current session and writes the result atomically.
// Concurrent writers to the same session are serialized with WATCH; fn may
// run more than once and must not have side effects.
func (s *RedisStore) Update(ctx context.Context, id string, fn func(*Session) error) (*Session, error) {
	key := s.sessionKey(id)
	var out *Session

	txf := func(tx *redis.Tx) error {
		sess, err := decodeRaw(tx.Get(ctx, key))
		if err != nil {
			return updateAbort{err}
		}
		epoch, err := tx.HGetAll(ctx, s.epochKey()).Result()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		applyEpoch(sess, epoch)

		if err := fn(sess); err != nil {
			if errors.Is(err, ErrUnchanged) {
				out = sess
				return nil
			}
			return updateAbort{err}
		}
		sess.Version++

		enc, err := Encode(sess)
		if err != nil {
			return updateAbort{err}
		}
		if _, err := tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, enc, s.ttlFor(sess))
			return nil
		}); err != nil {
			return err
		}
		out = sess
		return nil
	}

	for attempt := 0; attempt < maxWatchRetries; attempt++ {
		err := s.redis.Watch(ctx, txf, key, s.epochKey())
		if err == nil {
			return out, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		var abort updateAbort
		if errors.As(err, &abort) {
			return nil, abort.err
		}
		if errors.Is(err, ErrUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return nil, fmt.Errorf("%w: too much contention on %s", ErrUnavailable, id)
}

// ListByUser returns every retained session of userID. Ids whose record has
// expired out of Redis are pruned from the index.
func (s *RedisStore) ListByUser(ctx context.Context, userID string) ([]*Session, error) {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.sessionKey(id)
	}

	var (
		values *redis.SliceCmd
		epoch  *redis.MapStringStringCmd
	)
	if _, err := s.redis.Pipelined(ctx, func(p redis.Pipeliner) error {
		values = p.MGet(ctx, keys...)
		epoch = p.HGetAll(ctx, s.epochKey())
		return nil
	}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	out := make([]*Session, 0, len(ids))
	var stale []interface{}
	for i, v := range values.Val() {
		str, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		sess, err := Decode([]byte(str))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		applyEpoch(sess, epoch.Val())
		out = append(out, sess)
	}

	if len(stale) > 0 {
		// Best effort; a failed prune only costs another MGET miss later.
		_ = s.redis.SRem(ctx, s.userKey(userID), stale...).Err()
	}

	return out, nil
}

// RevokeAll records a platform-wide revocation epoch. Every session created at
// or before at loads as revoked with reason. The epoch only moves forward: an
// at older than the stored one is a no-op.
func (s *RedisStore) RevokeAll(ctx context.Context, reason string, at time.Time) error {
	err := revokeAllLua.Run(ctx, s.redis, []string{s.epochKey()},
		strconv.FormatInt(at.UnixNano(), 10),
		reason,
	).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Ping checks Redis connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// updateAbort carries an error that must reach the caller unchanged.
type updateAbort struct{ err error }

func (u updateAbort) Error() string { return u.err.Error() }
func (u updateAbort) Unwrap() error { return u.err }

func decodeRaw(raw *redis.StringCmd) (*Session, error) {
	data, err := raw.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	sess, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return sess, nil
}

func applyEpoch(sess *Session, epoch map[string]string) {
	if sess == nil || len(epoch) == 0 {
		return
	}
	nanos, err := strconv.ParseInt(epoch["at"], 10, 64)
	if err != nil || nanos <= 0 {
		return
	}
	at := time.Unix(0, nanos).UTC()
	if sess.CreatedAt.After(at) {
		return
	}
	reason := epoch["reason"]
	if reason == "" {
		reason = ReasonAdminRevokeAll
	}
	sess.revoke(at, reason)
}
