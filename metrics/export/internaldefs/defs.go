package internaldefs

import "github.com/disappointingsupernova/sessiongate"

// Def binds an engine metric to its exported name.
type Def struct {
	ID   sessiongate.MetricID
	Name string
	Help string
}

var Counters = []Def{
	{ID: sessiongate.MetricLoginSuccess, Name: "sessiongate_login_success_total", Help: "Sessions opened by login."},
	{ID: sessiongate.MetricLoginFailure, Name: "sessiongate_login_failure_total", Help: "Failed login attempts."},
	{ID: sessiongate.MetricRefreshSuccess, Name: "sessiongate_refresh_success_total", Help: "Successful refresh credential rotations."},
	{ID: sessiongate.MetricRefreshFailure, Name: "sessiongate_refresh_failure_total", Help: "Rejected refresh attempts."},
	{ID: sessiongate.MetricRefreshReuseDetected, Name: "sessiongate_refresh_reuse_detected_total", Help: "Consumed refresh credentials presented again."},
	{ID: sessiongate.MetricRotateShortened, Name: "sessiongate_rotate_shortened_total", Help: "Refresh credentials issued with the reduced lifetime."},
	{ID: sessiongate.MetricReauthRequired, Name: "sessiongate_reauth_required_total", Help: "Sessions moved to reauth_required by risk."},
	{ID: sessiongate.MetricReauthSuccess, Name: "sessiongate_reauth_success_total", Help: "Successful primary credential re-verifications."},
	{ID: sessiongate.MetricReauthFailure, Name: "sessiongate_reauth_failure_total", Help: "Failed primary credential re-verifications."},
	{ID: sessiongate.MetricReauthThrottled, Name: "sessiongate_reauth_throttled_total", Help: "Re-verifications refused by the attempt limiter."},
	{ID: sessiongate.MetricAuthorizeSuccess, Name: "sessiongate_authorize_success_total", Help: "Authorized access tokens."},
	{ID: sessiongate.MetricAuthorizeFailure, Name: "sessiongate_authorize_failure_total", Help: "Rejected access tokens."},
	{ID: sessiongate.MetricSessionCreated, Name: "sessiongate_session_created_total", Help: "Created sessions."},
	{ID: sessiongate.MetricSessionRevoked, Name: "sessiongate_session_revoked_total", Help: "Revoked sessions."},
	{ID: sessiongate.MetricLogout, Name: "sessiongate_logout_total", Help: "Single-session logouts."},
	{ID: sessiongate.MetricLogoutAll, Name: "sessiongate_logout_all_total", Help: "Logout-all operations."},
	{ID: sessiongate.MetricAdminRevokeAll, Name: "sessiongate_admin_revoke_all_total", Help: "Platform-wide revocations."},
	{ID: sessiongate.MetricStorageRetry, Name: "sessiongate_storage_retry_total", Help: "Retried storage calls."},
	{ID: sessiongate.MetricStorageUnavailable, Name: "sessiongate_storage_unavailable_total", Help: "Storage calls failed after the last retry."},
}

var Histograms = []Def{
	{ID: sessiongate.MetricAuthorizeLatency, Name: "sessiongate_authorize_latency_seconds", Help: "Authorize latency."},
}

const (
	AuditDroppedName = "sessiongate_audit_dropped_total"
	AuditDroppedHelp = "Security events dropped on dispatcher backpressure."
	AuditFailedName  = "sessiongate_audit_failed_total"
	AuditFailedHelp  = "Security events the sink failed to store."
)

// UpperBounds are the finite bucket bounds in seconds. The engine keeps one
// more bucket for everything above the last bound.
var UpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// Cumulative converts the engine's per-bucket counts to cumulative counts.
// The last element is the total sample count.
func Cumulative(raw []uint64) []uint64 {
	out := make([]uint64, len(UpperBounds)+1)
	var running uint64
	for i := range out {
		if i < len(raw) {
			running += raw[i]
		}
		out[i] = running
	}
	return out
}

// Source is what exporters read from; *sessiongate.Engine implements it.
type Source interface {
	MetricsSnapshot() sessiongate.MetricsSnapshot
	AuditDropped() uint64
	AuditFailed() uint64
}
