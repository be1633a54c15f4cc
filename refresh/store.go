package refresh

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	exchangeStatusUnknown  int64 = 0
	exchangeStatusExpired  int64 = 1
	exchangeStatusReuse    int64 = 2
	exchangeStatusRevoked  int64 = 3
	exchangeStatusRotated  int64 = 4
	exchangeStatusMismatch int64 = 5
)

// A retried call carrying the successor id already recorded on the node is
// answered as rotated, so a lost reply never reads as reuse.
//
// KEYS: 1 presented node, 2 new node, 3 chain list
// ARGV: 1 now ms, 2 new id, 3 expected session id, 4 issued ms, 5 expires ms,
//
//	6 ttl ms, 7 new hash
const exchangeScript = `
local rec = redis.call("HMGET", KEYS[1], "id", "session_id", "expires", "consumed", "revoked", "next")
if not rec[1] then
  return {0}
end
if rec[2] ~= ARGV[3] then
  return {5}
end
if rec[6] and rec[6] == ARGV[2] then
  return {4}
end
local now = tonumber(ARGV[1])
if now >= tonumber(rec[3]) then
  return {1}
end
if rec[4] and rec[4] ~= "" then
  return {2}
end
if rec[5] and rec[5] ~= "" then
  return {3}
end
if redis.call("EXISTS", KEYS[2]) == 1 then
  return {5}
end
redis.call("HSET", KEYS[1], "consumed", ARGV[1], "next", ARGV[2])
redis.call("HSET", KEYS[2],
  "id", ARGV[2], "session_id", rec[2], "hash", ARGV[7], "pred", rec[1],
  "issued", ARGV[4], "expires", ARGV[5], "consumed", "", "revoked", "")
redis.call("PEXPIRE", KEYS[2], ARGV[6])
redis.call("RPUSH", KEYS[3], ARGV[7])
redis.call("PEXPIRE", KEYS[3], ARGV[6])
return {4}
`

var exchangeLua = redis.NewScript(exchangeScript)

const revokeNodeScript = `
local rec = redis.call("HMGET", KEYS[1], "consumed", "revoked")
if not rec[1] then
  return 0
end
if rec[1] ~= "" or rec[2] ~= "" then
  return 0
end
redis.call("HSET", KEYS[1], "revoked", ARGV[1])
return 1
`

var revokeNodeLua = redis.NewScript(revokeNodeScript)

// RedisStore keeps chain nodes in Redis.
//
// Keys:
//
//	{prefix}:rc:{hash}     node hash (id, session_id, pred, next, issued, expires, consumed, revoked)
//	{prefix}:rcs:{session} chain list of node hashes, oldest first
type RedisStore struct {
	redis     redis.UniversalClient
	prefix    string
	retention time.Duration
}

// NewRedisStore returns a store keeping nodes for retention after their last
// write. A zero retention uses [DefaultChainRetention].
func NewRedisStore(client redis.UniversalClient, prefix string, retention time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "sg"
	}
	if retention <= 0 {
		retention = DefaultChainRetention
	}
	return &RedisStore{redis: client, prefix: prefix, retention: retention}
}

func (s *RedisStore) nodeKey(hash string) string {
	return s.prefix + ":rc:" + hash
}

func (s *RedisStore) chainKey(sessionID string) string {
	return s.prefix + ":rcs:" + sessionID
}

// Insert stores a chain head.
func (s *RedisStore) Insert(ctx context.Context, c *Credential) error {
	key := s.nodeKey(c.Hash)
	chain := s.chainKey(c.SessionID)
	_, err := s.redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key,
			"id", c.ID,
			"session_id", c.SessionID,
			"hash", c.Hash,
			"pred", c.PredecessorID,
			"issued", formatMillis(c.IssuedAt),
			"expires", formatMillis(c.ExpiresAt),
			"consumed", formatMillis(c.ConsumedAt),
			"revoked", formatMillis(c.RevokedAt),
		)
		p.PExpire(ctx, key, s.retention)
		p.RPush(ctx, chain, c.Hash)
		p.PExpire(ctx, chain, s.retention)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Lookup returns the node stored under hash.
func (s *RedisStore) Lookup(ctx context.Context, hash string) (*Credential, error) {
	fields, err := s.redis.HGetAll(ctx, s.nodeKey(hash)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrUnknown
	}
	return parseNode(fields)
}

// Exchange atomically consumes the node under hash and appends next to its
// chain. The presented node is looked up first to resolve its session; the
// script re-checks everything under the Redis single-threaded guarantee.
func (s *RedisStore) Exchange(ctx context.Context, hash string, next Next, now time.Time) (Exchange, error) {
	presented, err := s.Lookup(ctx, hash)
	if err != nil {
		return Exchange{}, err
	}

	res, err := exchangeLua.Run(ctx, s.redis,
		[]string{s.nodeKey(hash), s.nodeKey(next.Hash), s.chainKey(presented.SessionID)},
		now.UnixMilli(),
		next.ID,
		presented.SessionID,
		next.IssuedAt.UnixMilli(),
		next.ExpiresAt.UnixMilli(),
		s.retention.Milliseconds(),
		next.Hash,
	).Int64Slice()
	if err != nil {
		return Exchange{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(res) == 0 {
		return Exchange{}, fmt.Errorf("%w: empty exchange reply", ErrUnavailable)
	}

	out := Exchange{Presented: presented}
	switch res[0] {
	case exchangeStatusRotated:
		presented.ConsumedAt = time.UnixMilli(now.UnixMilli()).UTC()
		out.Issued = &Credential{
			ID:            next.ID,
			SessionID:     presented.SessionID,
			Hash:          next.Hash,
			PredecessorID: presented.ID,
			IssuedAt:      next.IssuedAt,
			ExpiresAt:     next.ExpiresAt,
		}
		return out, nil
	case exchangeStatusReuse:
		return out, ErrReuse
	case exchangeStatusExpired:
		return out, ErrExpired
	case exchangeStatusRevoked:
		return out, ErrRevoked
	case exchangeStatusUnknown:
		return Exchange{}, ErrUnknown
	case exchangeStatusMismatch:
		return Exchange{}, fmt.Errorf("%w: node changed during exchange", ErrUnavailable)
	default:
		return Exchange{}, fmt.Errorf("%w: unexpected exchange status %d", ErrUnavailable, res[0])
	}
}

// RevokeSession revokes every unconsumed node of sessionID and returns how
// many were revoked. Consumed nodes keep their history untouched.
func (s *RedisStore) RevokeSession(ctx context.Context, sessionID string, at time.Time) (int, error) {
	hashes, err := s.redis.LRange(ctx, s.chainKey(sessionID), 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	revoked := 0
	for _, h := range hashes {
		n, err := revokeNodeLua.Run(ctx, s.redis, []string{s.nodeKey(h)}, at.UnixMilli()).Int()
		if err != nil {
			return revoked, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		revoked += n
	}
	return revoked, nil
}

// Chain returns the retained nodes of sessionID, oldest first.
func (s *RedisStore) Chain(ctx context.Context, sessionID string) ([]*Credential, error) {
	hashes, err := s.redis.LRange(ctx, s.chainKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(hashes) == 0 {
		return nil, nil
	}
	hashes = uniqueHashes(hashes)

	cmds := make([]*redis.MapStringStringCmd, len(hashes))
	if _, err := s.redis.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, h := range hashes {
			cmds[i] = p.HGetAll(ctx, s.nodeKey(h))
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	out := make([]*Credential, 0, len(hashes))
	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		c, err := parseNode(fields)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// uniqueHashes drops repeats left by a retried Insert, keeping first positions.
func uniqueHashes(hashes []string) []string {
	seen := make(map[string]struct{}, len(hashes))
	out := hashes[:0]
	for _, h := range hashes {
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	return out
}

func parseNode(fields map[string]string) (*Credential, error) {
	c := &Credential{
		ID:            fields["id"],
		SessionID:     fields["session_id"],
		Hash:          fields["hash"],
		PredecessorID: fields["pred"],
	}
	if c.ID == "" || c.SessionID == "" {
		return nil, fmt.Errorf("%w: corrupt node", ErrUnavailable)
	}

	var err error
	for _, f := range []struct {
		name string
		dst  *time.Time
	}{
		{"issued", &c.IssuedAt},
		{"expires", &c.ExpiresAt},
		{"consumed", &c.ConsumedAt},
		{"revoked", &c.RevokedAt},
	} {
		if *f.dst, err = parseMillis(fields[f.name]); err != nil {
			return nil, fmt.Errorf("%w: corrupt %s", ErrUnavailable, f.name)
		}
	}
	if c.ExpiresAt.IsZero() {
		return nil, errors.New("refresh: node without expiry")
	}
	return c, nil
}

func formatMillis(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func parseMillis(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}
