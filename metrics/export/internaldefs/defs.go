package internaldefs

import (
	volcanion "github.com/rickymta/volcanion-auth"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   volcanion.MetricID
	Name string
	Help string
}

// HistogramDef names one engine latency histogram for exporters.
type HistogramDef struct {
	ID   volcanion.MetricID
	Name string
	Help string
}

// CounterDefs lists every counter the engine records, in export order.
var CounterDefs = []CounterDef{
	{ID: volcanion.MetricLoginSuccess, Name: "volcanion_login_success_total", Help: "Successful login attempts."},
	{ID: volcanion.MetricLoginFailure, Name: "volcanion_login_failure_total", Help: "Failed login attempts."},
	{ID: volcanion.MetricLoginLocked, Name: "volcanion_login_locked_total", Help: "Login attempts rejected by the attempt guard."},
	{ID: volcanion.MetricPasswordUpgraded, Name: "volcanion_password_upgraded_total", Help: "Password digests re-hashed with current parameters."},
	{ID: volcanion.MetricRefreshSuccess, Name: "volcanion_refresh_success_total", Help: "Successful refresh operations."},
	{ID: volcanion.MetricRefreshFailure, Name: "volcanion_refresh_failure_total", Help: "Failed refresh operations."},
	{ID: volcanion.MetricRefreshReuseDetected, Name: "volcanion_refresh_reuse_detected_total", Help: "Presentations of an already revoked refresh token."},
	{ID: volcanion.MetricRefreshRaceLost, Name: "volcanion_refresh_race_lost_total", Help: "Refresh attempts that lost a concurrent rotation."},
	{ID: volcanion.MetricSessionCreated, Name: "volcanion_session_created_total", Help: "Sessions created at login."},
	{ID: volcanion.MetricSessionInvalidated, Name: "volcanion_session_invalidated_total", Help: "Sessions removed by logout or revocation."},
	{ID: volcanion.MetricLogout, Name: "volcanion_logout_total", Help: "Single-session logouts."},
	{ID: volcanion.MetricLogoutAll, Name: "volcanion_logout_all_total", Help: "Logouts from every session of an account."},
	{ID: volcanion.MetricPasswordResetRequest, Name: "volcanion_password_reset_request_total", Help: "Password reset requests."},
	{ID: volcanion.MetricPasswordResetConfirmSuccess, Name: "volcanion_password_reset_confirm_success_total", Help: "Successful password reset confirmations."},
	{ID: volcanion.MetricPasswordResetConfirmFailure, Name: "volcanion_password_reset_confirm_failure_total", Help: "Failed password reset confirmations."},
	{ID: volcanion.MetricEmailVerificationRequest, Name: "volcanion_email_verification_request_total", Help: "Email verification requests."},
	{ID: volcanion.MetricEmailVerificationSuccess, Name: "volcanion_email_verification_success_total", Help: "Successful email verifications."},
	{ID: volcanion.MetricEmailVerificationFailure, Name: "volcanion_email_verification_failure_total", Help: "Failed email verifications."},
	{ID: volcanion.MetricRateLimitHit, Name: "volcanion_rate_limit_hit_total", Help: "Requests rejected by a request limiter."},
	{ID: volcanion.MetricPermissionAllowed, Name: "volcanion_permission_allowed_total", Help: "Authorization checks that were allowed."},
	{ID: volcanion.MetricPermissionDenied, Name: "volcanion_permission_denied_total", Help: "Authorization checks that were denied."},
	{ID: volcanion.MetricGrantsExpired, Name: "volcanion_grants_expired_total", Help: "Time-bounded grants removed by maintenance."},
	{ID: volcanion.MetricRefreshTokensPurged, Name: "volcanion_refresh_tokens_purged_total", Help: "Refresh records purged by maintenance."},
	{ID: volcanion.MetricOneTimeTokensPurged, Name: "volcanion_one_time_tokens_purged_total", Help: "One-time tokens purged by maintenance."},
}

// HistogramDefs lists the latency histograms.
var HistogramDefs = []HistogramDef{
	{ID: volcanion.MetricVerifyLatency, Name: "volcanion_verify_latency_seconds", Help: "Access token verification latency."},
	{ID: volcanion.MetricPermissionCheckLatency, Name: "volcanion_permission_check_latency_seconds", Help: "Permission check latency."},
}

// HistogramUpperBounds are the finite bucket bounds in seconds. The last
// engine bucket is the +Inf overflow and has no entry here.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix is the instrument-name-safe form of each bound,
// +Inf included.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed array, zero-filling when the
// snapshot omitted the histogram.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
