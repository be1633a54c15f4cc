package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/disappointingsupernova/sessiongate"
	"github.com/disappointingsupernova/sessiongate/device"
)

// Option configures a Guard.
type Option func(*guard)

// WithRiskCheck scores the request's device context on every call.
func WithRiskCheck() Option {
	return func(g *guard) { g.touch = true }
}

// WithDeviceHeaders overrides the headers device context is read from.
func WithDeviceHeaders(h device.Headers) Option {
	return func(g *guard) { g.headers = h }
}

// WithRealm sets the realm reported in WWW-Authenticate challenges.
func WithRealm(realm string) Option {
	return func(g *guard) { g.realm = realm }
}

type guard struct {
	engine  *sessiongate.Engine
	touch   bool
	headers device.Headers
	realm   string
}

// Guard returns middleware that admits only requests carrying a valid access
// token for a usable session.
func Guard(engine *sessiongate.Engine, opts ...Option) func(http.Handler) http.Handler {
	g := &guard{engine: engine, headers: device.DefaultHeaders, realm: "sessiongate"}
	for _, opt := range opts {
		opt(g)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				g.challenge(w, "", http.StatusUnauthorized)
				return
			}

			res, err := g.engine.Authorize(r.Context(), token, "")
			if err != nil {
				g.reject(w, err)
				return
			}
			ctx := sessiongate.WithAuthResult(r.Context(), res)

			if g.touch {
				dev, err := g.headers.FromRequest(r)
				if err != nil {
					http.Error(w, "invalid device context", http.StatusBadRequest)
					return
				}
				out, err := g.engine.Touch(ctx, res.SessionID, dev)
				if err != nil {
					g.reject(w, err)
					return
				}
				if out.Risk.Reauth {
					g.reject(w, sessiongate.ErrReauthRequired)
					return
				}
				ctx = sessiongate.WithDevice(ctx, dev)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireSession is Guard without per-request risk scoring.
func RequireSession(engine *sessiongate.Engine) func(http.Handler) http.Handler {
	return Guard(engine)
}

// RequireRiskCheck is Guard with per-request risk scoring.
func RequireRiskCheck(engine *sessiongate.Engine) func(http.Handler) http.Handler {
	return Guard(engine, WithRiskCheck())
}

func (g *guard) reject(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, sessiongate.ErrReauthRequired):
		g.challenge(w, "insufficient_user_authentication", http.StatusUnauthorized)
	case errors.Is(err, sessiongate.ErrStorageUnavailable), errors.Is(err, sessiongate.ErrEngineNotReady):
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
	case errors.Is(err, sessiongate.ErrInvalidDeviceContext):
		http.Error(w, "invalid device context", http.StatusBadRequest)
	default:
		g.challenge(w, "invalid_token", http.StatusUnauthorized)
	}
}

func (g *guard) challenge(w http.ResponseWriter, code string, status int) {
	value := `Bearer realm="` + g.realm + `"`
	if code != "" {
		value += `, error="` + code + `"`
	}
	w.Header().Set("WWW-Authenticate", value)
	http.Error(w, http.StatusText(status), status)
}

func bearerToken(value string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(value), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
