package sessiongate

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/disappointingsupernova/sessiongate/device"
	"github.com/disappointingsupernova/sessiongate/internal/audit"
	"github.com/disappointingsupernova/sessiongate/internal/flows"
	"github.com/disappointingsupernova/sessiongate/internal/rate"
	"github.com/disappointingsupernova/sessiongate/jwt"
	"github.com/disappointingsupernova/sessiongate/refresh"
	"github.com/disappointingsupernova/sessiongate/session"
)

// Engine issues and verifies access tokens, rotates refresh credentials with
// reuse detection and keeps each session's risk score. It is safe for
// concurrent use. Build one with [New].
type Engine struct {
	config      Config
	sessions    *session.Manager
	credentials refresh.Store
	hasher      *refresh.Hasher
	tokens      *jwt.Manager
	verifier    PrimaryVerifier
	reauthLimit *rate.Limiter
	audit       *audit.Dispatcher
	metrics     *Metrics
	storage     flows.Runner
	logger      *slog.Logger
	now         func() time.Time
}

/*
====================================
LOGIN
====================================
*/

// Login starts a session for an already verified user and returns the first
// token pair. dev is validated at the boundary and becomes the session's
// recorded context.
func (e *Engine) Login(ctx context.Context, userID string, dev device.Context) (LoginResult, error) {
	if err := e.ready(); err != nil {
		return LoginResult{}, err
	}
	if userID == "" {
		e.metrics.Inc(MetricLoginFailure)
		return LoginResult{}, errors.New("sessiongate: user id required")
	}
	dev, err := parseDevice(dev)
	if err != nil {
		e.metrics.Inc(MetricLoginFailure)
		return LoginResult{}, err
	}

	sess, err := flows.Do(ctx, e.storage, func(ctx context.Context) (*session.Session, error) {
		return e.sessions.Create(ctx, userID, dev)
	})
	if err != nil {
		e.metrics.Inc(MetricLoginFailure)
		return LoginResult{}, mapSessionError(err)
	}

	pair, err := e.issuePair(ctx, sess, e.config.Refresh.TTL)
	if err != nil {
		e.metrics.Inc(MetricLoginFailure)
		e.abandon(ctx, sess.ID)
		return LoginResult{}, err
	}

	e.metrics.Inc(MetricLoginSuccess)
	e.record(ctx, audit.KindLogin, sess, nil)
	return LoginResult{SessionID: sess.ID, TokenPair: pair}, nil
}

/*
====================================
REFRESH
====================================
*/

// Refresh exchanges a refresh secret for a new token pair. Presenting an
// already exchanged secret revokes the whole session and returns
// [ErrReuseDetected]. When the session's risk reaches the rotate threshold
// the new secret carries the reduced lifetime; at the reauth threshold the
// call fails with [ErrReauthRequired] and no credentials are issued.
func (e *Engine) Refresh(ctx context.Context, refreshToken string, dev device.Context) (RefreshResult, error) {
	if err := e.ready(); err != nil {
		return RefreshResult{}, err
	}
	dev, err := parseDevice(dev)
	if err != nil {
		e.metrics.Inc(MetricRefreshFailure)
		return RefreshResult{}, err
	}

	hash, err := e.hasher.Hash(refreshToken)
	if err != nil {
		e.metrics.Inc(MetricRefreshFailure)
		return RefreshResult{}, mapRefreshError(err)
	}

	presented, err := flows.Do(ctx, e.storage, func(ctx context.Context) (*refresh.Credential, error) {
		return e.credentials.Lookup(ctx, hash)
	})
	if err != nil {
		e.metrics.Inc(MetricRefreshFailure)
		return RefreshResult{}, mapRefreshError(err)
	}
	sid := presented.SessionID
	now := e.clock()

	switch {
	case !now.Before(presented.ExpiresAt):
		e.metrics.Inc(MetricRefreshFailure)
		return RefreshResult{SessionID: sid}, errors.Join(ErrExpired, refresh.ErrExpired)
	case presented.Consumed():
		return RefreshResult{SessionID: sid}, e.reuseDetected(ctx, presented)
	case presented.Revoked():
		e.metrics.Inc(MetricRefreshFailure)
		return RefreshResult{SessionID: sid}, errors.Join(ErrSessionRevoked, refresh.ErrRevoked)
	}

	// Gate on the session before consuming anything.
	var gated *session.Session
	sess, err := flows.Do(ctx, e.storage, func(ctx context.Context) (*session.Session, error) {
		s, err := e.sessions.Check(ctx, sid)
		gated = s
		return s, err
	})
	if err != nil {
		e.metrics.Inc(MetricRefreshFailure)
		if errors.Is(err, session.ErrRevoked) || errors.Is(err, session.ErrNotFound) {
			e.revokeChain(ctx, sid)
		}
		if gated != nil && gated.RevokedReason == session.ReasonReuseDetected {
			// Looked up before a concurrent exchange consumed it.
			return RefreshResult{SessionID: sid}, errors.Join(ErrReuseDetected, mapSessionError(err))
		}
		return RefreshResult{SessionID: sid}, mapSessionError(err)
	}

	preview := e.sessions.Policy().Assess(sess.Risk, sess.Device, dev)
	ttl := e.config.Refresh.TTL
	if preview.Rotate {
		ttl = e.config.Refresh.ReducedTTL
	}
	ttl = boundTTL(ttl, now, sess.AbsoluteExpiresAt)
	if ttl <= 0 {
		e.metrics.Inc(MetricRefreshFailure)
		return RefreshResult{SessionID: sid}, ErrSessionRevoked
	}

	secret, next, err := e.hasher.Mint(now, ttl)
	if err != nil {
		e.metrics.Inc(MetricRefreshFailure)
		return RefreshResult{SessionID: sid}, err
	}

	exchanged, err := flows.Do(ctx, e.storage, func(ctx context.Context) (refresh.Exchange, error) {
		return e.credentials.Exchange(ctx, hash, next, now)
	})
	if err != nil {
		if errors.Is(err, refresh.ErrReuse) {
			return RefreshResult{SessionID: sid}, e.reuseDetected(ctx, presented)
		}
		e.metrics.Inc(MetricRefreshFailure)
		return RefreshResult{SessionID: sid}, mapRefreshError(err)
	}

	outcome, err := flows.Do(ctx, e.storage, func(ctx context.Context) (session.Outcome, error) {
		return e.sessions.Touch(ctx, sid, dev)
	})
	switch {
	case err == nil:
	case errors.Is(err, session.ErrRevoked) && e.revokedForReuse(ctx, sid):
		// A concurrent presentation of the same secret lost the exchange
		// and revoked the session. This call still owns the rotation; the
		// pair it returns is refused by Authorize.
		e.revokeChain(ctx, sid)
		outcome = session.Outcome{Session: sess}
	default:
		// The session left the usable state between the gate and the exchange.
		e.metrics.Inc(MetricRefreshFailure)
		e.revokeChain(ctx, sid)
		return RefreshResult{SessionID: sid}, mapSessionError(err)
	}
	if outcome.Assessment.Reauth {
		e.metrics.Inc(MetricRefreshFailure)
		e.revokeChain(ctx, sid)
		return RefreshResult{SessionID: sid, Risk: outcome.Assessment}, ErrReauthRequired
	}

	access, accessExp, err := e.tokens.Issue(sid, sess.UserID)
	if err != nil {
		e.metrics.Inc(MetricRefreshFailure)
		return RefreshResult{SessionID: sid}, err
	}

	shortened := ttl < e.config.Refresh.TTL && preview.Rotate
	detail := outcome.Assessment.Detail()
	detail["credential_id"] = exchanged.Issued.ID
	e.record(ctx, audit.KindRefresh, outcome.Session, detail)
	if shortened {
		e.metrics.Inc(MetricRotateShortened)
		e.record(ctx, audit.KindRotateShortened, outcome.Session, map[string]string{
			"ttl":        ttl.String(),
			"cumulative": strconv.Itoa(outcome.Assessment.Cumulative),
		})
	}
	e.metrics.Inc(MetricRefreshSuccess)

	return RefreshResult{
		SessionID: sid,
		TokenPair: TokenPair{
			AccessToken:      access,
			AccessExpiresAt:  accessExp,
			RefreshToken:     secret,
			RefreshExpiresAt: next.ExpiresAt,
		},
		Risk:      outcome.Assessment,
		Shortened: shortened,
	}, nil
}

// revokedForReuse reports whether sessionID was revoked by the reuse cascade.
func (e *Engine) revokedForReuse(ctx context.Context, sessionID string) bool {
	sess, err := flows.Do(ctx, e.storage, func(ctx context.Context) (*session.Session, error) {
		return e.sessions.Get(ctx, sessionID)
	})
	return err == nil && sess.State == session.StateRevoked && sess.RevokedReason == session.ReasonReuseDetected
}

// reuseDetected revokes the owning session and its chain, records the event
// and returns the reuse outcome. The cascade survives caller cancellation.
func (e *Engine) reuseDetected(ctx context.Context, presented *refresh.Credential) error {
	e.metrics.Inc(MetricRefreshReuseDetected)
	e.metrics.Inc(MetricRefreshFailure)

	ctx = context.WithoutCancel(ctx)
	sid := presented.SessionID

	revokeErr := e.storage.Run(ctx, func(ctx context.Context) error {
		return e.sessions.Revoke(ctx, sid, session.ReasonReuseDetected)
	})
	_, chainErr := flows.Do(ctx, e.storage, func(ctx context.Context) (int, error) {
		return e.credentials.RevokeSession(ctx, sid, e.clock())
	})

	sess, _ := flows.Do(ctx, e.storage, func(ctx context.Context) (*session.Session, error) {
		return e.sessions.Get(ctx, sid)
	})
	if sess == nil {
		sess = &session.Session{ID: sid}
	}
	e.record(ctx, audit.KindReuseDetected, sess, map[string]string{
		"credential_id": presented.ID,
	})

	if err := errors.Join(revokeErr, chainErr); err != nil {
		e.logger.ErrorContext(ctx, "reuse cascade incomplete",
			slog.String("session_id", sid),
			slog.Any("error", err),
		)
		return errors.Join(ErrReuseDetected, ErrStorageUnavailable, err)
	}
	return errors.Join(ErrReuseDetected, refresh.ErrReuse)
}

/*
====================================
AUTHORIZE
====================================
*/

// Authorize verifies accessToken and confirms its session is usable.
// sessionIDClaim, when non-empty, must match the token's session. A token
// that verifies structurally still fails with [ErrReauthRequired] or
// [ErrSessionRevoked] according to the session state.
func (e *Engine) Authorize(ctx context.Context, accessToken, sessionIDClaim string) (AuthResult, error) {
	if err := e.ready(); err != nil {
		return AuthResult{}, err
	}
	start := time.Now()
	defer func() {
		e.metrics.Observe(MetricAuthorizeLatency, time.Since(start))
	}()

	id, err := e.tokens.Verify(accessToken)
	if err != nil {
		e.metrics.Inc(MetricAuthorizeFailure)
		return AuthResult{}, mapTokenError(err)
	}
	if sessionIDClaim != "" && sessionIDClaim != id.SessionID {
		e.metrics.Inc(MetricAuthorizeFailure)
		return AuthResult{}, errors.Join(ErrMalformed, errors.New("session claim mismatch"))
	}

	sess, err := flows.Do(ctx, e.storage, func(ctx context.Context) (*session.Session, error) {
		return e.sessions.Check(ctx, id.SessionID)
	})
	if err != nil {
		e.metrics.Inc(MetricAuthorizeFailure)
		return AuthResult{}, mapSessionError(err)
	}
	if sess.UserID != id.UserID {
		e.metrics.Inc(MetricAuthorizeFailure)
		return AuthResult{}, errors.Join(ErrMalformed, errors.New("subject does not own session"))
	}

	e.metrics.Inc(MetricAuthorizeSuccess)
	return AuthResult{
		UserID:    id.UserID,
		SessionID: id.SessionID,
		IssuedAt:  id.IssuedAt,
		ExpiresAt: id.ExpiresAt,
	}, nil
}

// IsUsable reports whether sessionID is active and inside both lifetime
// bounds. Any failure reads as not usable.
func (e *Engine) IsUsable(ctx context.Context, sessionID string) bool {
	if e.ready() != nil {
		return false
	}
	err := e.storage.Run(ctx, func(ctx context.Context) error {
		_, err := e.sessions.Check(ctx, sessionID)
		return err
	})
	return err == nil
}

/*
====================================
RISK / RE-AUTHENTICATION
====================================
*/

// Touch records activity on a session and scores dev against its recorded
// context. A session pushed to reauth_required reports that state in the
// result; subsequent authorizations fail until Reauthenticate.
func (e *Engine) Touch(ctx context.Context, sessionID string, dev device.Context) (TouchResult, error) {
	if err := e.ready(); err != nil {
		return TouchResult{}, err
	}
	dev, err := parseDevice(dev)
	if err != nil {
		return TouchResult{}, err
	}

	outcome, err := flows.Do(ctx, e.storage, func(ctx context.Context) (session.Outcome, error) {
		return e.sessions.Touch(ctx, sessionID, dev)
	})
	if err != nil {
		return TouchResult{}, mapSessionError(err)
	}
	return TouchResult{
		State: outcome.Session.State.String(),
		Risk:  outcome.Assessment,
	}, nil
}

// Reauthenticate completes primary credential re-verification for a
// session: risk resets to 0, dev becomes the recorded context, the old chain
// is revoked and a new chain head is issued with a fresh access token.
func (e *Engine) Reauthenticate(ctx context.Context, sessionID, userID, secret string, dev device.Context) (LoginResult, error) {
	if err := e.ready(); err != nil {
		return LoginResult{}, err
	}
	if e.verifier == nil {
		return LoginResult{}, errors.Join(ErrEngineNotReady, errors.New("no primary verifier configured"))
	}
	dev, err := parseDevice(dev)
	if err != nil {
		e.metrics.Inc(MetricReauthFailure)
		return LoginResult{}, err
	}

	sess, err := flows.Do(ctx, e.storage, func(ctx context.Context) (*session.Session, error) {
		return e.sessions.Get(ctx, sessionID)
	})
	if err != nil {
		e.metrics.Inc(MetricReauthFailure)
		return LoginResult{}, mapSessionError(err)
	}
	if sess.UserID != userID {
		e.metrics.Inc(MetricReauthFailure)
		return LoginResult{}, ErrSessionNotFound
	}
	if sess.State == session.StateRevoked {
		e.metrics.Inc(MetricReauthFailure)
		return LoginResult{}, ErrSessionRevoked
	}

	if err := e.storage.Run(ctx, func(ctx context.Context) error {
		return e.reauthLimit.Check(ctx, sessionID)
	}); err != nil {
		e.metrics.Inc(MetricReauthFailure)
		if errors.Is(err, rate.ErrLimited) {
			e.metrics.Inc(MetricReauthThrottled)
		}
		return LoginResult{}, mapLimitError(err)
	}

	verifyCtx, cancel := context.WithTimeout(ctx, e.config.Storage.OperationTimeout)
	ok, err := e.verifier.VerifyPrimaryCredential(verifyCtx, userID, secret)
	cancel()
	if err != nil || !ok {
		e.metrics.Inc(MetricReauthFailure)
		if lerr := e.reauthLimit.Fail(context.WithoutCancel(ctx), sessionID); lerr != nil && !errors.Is(lerr, rate.ErrLimited) {
			e.logger.WarnContext(ctx, "reauth attempt not counted",
				slog.String("session_id", sessionID),
				slog.Any("error", lerr),
			)
		}
		if err != nil {
			return LoginResult{}, errors.Join(ErrPrimaryCredentialInvalid, err)
		}
		return LoginResult{}, ErrPrimaryCredentialInvalid
	}
	if err := e.reauthLimit.Reset(ctx, sessionID); err != nil {
		e.logger.WarnContext(ctx, "reauth attempt counter not cleared",
			slog.String("session_id", sessionID),
			slog.Any("error", err),
		)
	}

	sess, err = flows.Do(ctx, e.storage, func(ctx context.Context) (*session.Session, error) {
		return e.sessions.Reauthenticated(ctx, sessionID, dev)
	})
	if err != nil {
		e.metrics.Inc(MetricReauthFailure)
		return LoginResult{}, mapSessionError(err)
	}

	if _, err := flows.Do(ctx, e.storage, func(ctx context.Context) (int, error) {
		return e.credentials.RevokeSession(ctx, sessionID, e.clock())
	}); err != nil {
		e.metrics.Inc(MetricReauthFailure)
		return LoginResult{}, mapRefreshError(err)
	}

	pair, err := e.issuePair(ctx, sess, e.config.Refresh.TTL)
	if err != nil {
		e.metrics.Inc(MetricReauthFailure)
		return LoginResult{}, err
	}

	e.metrics.Inc(MetricReauthSuccess)
	return LoginResult{SessionID: sess.ID, TokenPair: pair}, nil
}

/*
====================================
REVOCATION
====================================
*/

// Logout revokes one session and its refresh chain. Unknown or already
// revoked sessions are a no-op.
func (e *Engine) Logout(ctx context.Context, sessionID string) error {
	if err := e.ready(); err != nil {
		return err
	}

	sess, err := flows.Do(ctx, e.storage, func(ctx context.Context) (*session.Session, error) {
		return e.sessions.Get(ctx, sessionID)
	})
	if errors.Is(err, session.ErrNotFound) {
		return nil
	}
	if err != nil {
		return mapSessionError(err)
	}
	if sess.State == session.StateRevoked {
		e.revokeChain(ctx, sessionID)
		return nil
	}

	if err := e.storage.Run(ctx, func(ctx context.Context) error {
		return e.sessions.Revoke(ctx, sessionID, session.ReasonLogout)
	}); err != nil {
		return mapSessionError(err)
	}
	e.revokeChain(ctx, sessionID)

	e.metrics.Inc(MetricLogout)
	e.record(ctx, audit.KindLogout, sess, nil)
	return nil
}

// LogoutAll revokes every session of userID.
func (e *Engine) LogoutAll(ctx context.Context, userID string) error {
	if err := e.ready(); err != nil {
		return err
	}

	ids, err := flows.Do(ctx, e.storage, func(ctx context.Context) ([]string, error) {
		return e.sessions.RevokeAllForUser(ctx, userID, session.ReasonLogoutAll)
	})
	if err != nil {
		return mapSessionError(err)
	}
	for _, id := range ids {
		e.revokeChain(ctx, id)
	}

	e.metrics.Inc(MetricLogoutAll)
	e.record(ctx, audit.KindLogout, &session.Session{UserID: userID}, map[string]string{
		"scope":    "user",
		"sessions": strconv.Itoa(len(ids)),
	})
	return nil
}

// AdminRevokeAll revokes every session on the platform. Refresh chains are
// cut lazily: the next refresh of a revoked session revokes its chain.
func (e *Engine) AdminRevokeAll(ctx context.Context) error {
	if err := e.ready(); err != nil {
		return err
	}

	if err := e.storage.Run(ctx, func(ctx context.Context) error {
		return e.sessions.RevokeAll(ctx, session.ReasonAdminRevokeAll)
	}); err != nil {
		return mapSessionError(err)
	}

	e.metrics.Inc(MetricAdminRevokeAll)
	e.logger.WarnContext(ctx, "platform-wide session revocation")
	e.record(ctx, audit.KindRevoked, &session.Session{}, map[string]string{
		"reason": session.ReasonAdminRevokeAll,
		"scope":  "platform",
	})
	return nil
}

/*
====================================
QUERIES
====================================
*/

// ListSessions returns the sessions of userID, newest first.
func (e *Engine) ListSessions(ctx context.Context, userID string) ([]SessionSummary, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	sessions, err := flows.Do(ctx, e.storage, func(ctx context.Context) ([]*session.Session, error) {
		return e.sessions.List(ctx, userID)
	})
	if err != nil {
		return nil, mapSessionError(err)
	}

	out := make([]SessionSummary, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, SessionSummary{
			ID:                s.ID,
			UserID:            s.UserID,
			State:             s.State.String(),
			Risk:              s.Risk,
			Device:            s.Device,
			CreatedAt:         s.CreatedAt,
			LastSeenAt:        s.LastSeenAt,
			AbsoluteExpiresAt: s.AbsoluteExpiresAt,
			RevokedAt:         s.RevokedAt,
			RevokedReason:     s.RevokedReason,
		})
	}
	slices.SortFunc(out, func(a, b SessionSummary) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

// CredentialChain returns the retained refresh credentials of sessionID,
// oldest first, for incident forensics.
func (e *Engine) CredentialChain(ctx context.Context, sessionID string) ([]ChainNode, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	chain, err := flows.Do(ctx, e.storage, func(ctx context.Context) ([]*refresh.Credential, error) {
		return e.credentials.Chain(ctx, sessionID)
	})
	if err != nil {
		return nil, mapRefreshError(err)
	}

	out := make([]ChainNode, 0, len(chain))
	for _, c := range chain {
		out = append(out, ChainNode{
			ID:            c.ID,
			PredecessorID: c.PredecessorID,
			IssuedAt:      c.IssuedAt,
			ExpiresAt:     c.ExpiresAt,
			ConsumedAt:    c.ConsumedAt,
			RevokedAt:     c.RevokedAt,
		})
	}
	return out, nil
}

// MetricsSnapshot returns a point-in-time copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{}
	}
	return e.metrics.Snapshot()
}

// AuditDropped returns the number of security events dropped by backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// AuditFailed returns the number of security events the sink rejected.
func (e *Engine) AuditFailed() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Failed()
}

// Close flushes pending security events. The storage clients stay open.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

/*
====================================
HELPERS
====================================
*/

func (e *Engine) ready() error {
	if e == nil || e.sessions == nil || e.tokens == nil || e.credentials == nil {
		return ErrEngineNotReady
	}
	return nil
}

func (e *Engine) clock() time.Time {
	return e.now().UTC()
}

// issuePair stores a new chain head for sess and signs an access token.
func (e *Engine) issuePair(ctx context.Context, sess *session.Session, ttl time.Duration) (TokenPair, error) {
	now := e.clock()
	ttl = boundTTL(ttl, now, sess.AbsoluteExpiresAt)
	if ttl <= 0 {
		return TokenPair{}, ErrSessionRevoked
	}

	secret, next, err := e.hasher.Mint(now, ttl)
	if err != nil {
		return TokenPair{}, err
	}
	head := refresh.Head(sess.ID, next)
	if err := e.storage.Run(ctx, func(ctx context.Context) error {
		return e.credentials.Insert(ctx, head)
	}); err != nil {
		return TokenPair{}, mapRefreshError(err)
	}

	access, accessExp, err := e.tokens.Issue(sess.ID, sess.UserID)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     secret,
		RefreshExpiresAt: next.ExpiresAt,
	}, nil
}

// abandon revokes a session whose login could not complete.
func (e *Engine) abandon(ctx context.Context, sessionID string) {
	ctx = context.WithoutCancel(ctx)
	if err := e.storage.Run(ctx, func(ctx context.Context) error {
		return e.sessions.Revoke(ctx, sessionID, session.ReasonIssueFailed)
	}); err != nil {
		e.logger.WarnContext(ctx, "abandoned session not revoked",
			slog.String("session_id", sessionID),
			slog.Any("error", err),
		)
	}
	e.revokeChain(ctx, sessionID)
}

// revokeChain revokes every live credential of sessionID, best effort.
func (e *Engine) revokeChain(ctx context.Context, sessionID string) {
	_, err := flows.Do(context.WithoutCancel(ctx), e.storage, func(ctx context.Context) (int, error) {
		return e.credentials.RevokeSession(ctx, sessionID, e.clock())
	})
	if err != nil {
		e.logger.WarnContext(ctx, "refresh chain not revoked",
			slog.String("session_id", sessionID),
			slog.Any("error", err),
		)
	}
}

// boundTTL caps a credential lifetime at the session's absolute deadline.
func boundTTL(ttl time.Duration, now, absolute time.Time) time.Duration {
	if absolute.IsZero() {
		return ttl
	}
	if rest := absolute.Sub(now); rest < ttl {
		return rest
	}
	return ttl
}

func parseDevice(dev device.Context) (device.Context, error) {
	out, err := device.Parse(dev)
	if err != nil {
		return device.Context{}, errors.Join(ErrInvalidDeviceContext, err)
	}
	return out, nil
}
