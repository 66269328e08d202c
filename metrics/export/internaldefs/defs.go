package internaldefs

import (
	auth "github.com/realchillguyclub/backend-sub000"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   auth.MetricID
	Name string
	Help string
}

// HistogramDef names one engine latency histogram for exporters.
type HistogramDef struct {
	ID   auth.MetricID
	Name string
	Help string
}

// AuditDroppedName is the counter exporters publish for Engine.AuditDropped.
const (
	AuditDroppedName = "authd_audit_dropped_total"
	AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."
)

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: auth.MetricSessionIssued, Name: "authd_session_issued_total", Help: "Sessions issued as new refresh token families."},
	{ID: auth.MetricReissueSuccess, Name: "authd_reissue_success_total", Help: "Successful refresh token rotations."},
	{ID: auth.MetricReissueDuplicate, Name: "authd_reissue_duplicate_total", Help: "Rotated tokens replayed within the grace window."},
	{ID: auth.MetricReuseDetected, Name: "authd_reuse_detected_total", Help: "Rotated tokens replayed after the grace window; the family was revoked."},
	{ID: auth.MetricTokenMismatch, Name: "authd_token_mismatch_total", Help: "Refresh tokens whose value differed from the stored record."},
	{ID: auth.MetricReissueInvalid, Name: "authd_reissue_invalid_total", Help: "Reissue attempts with missing, expired, unknown or terminal tokens."},
	{ID: auth.MetricReissueRateLimited, Name: "authd_reissue_rate_limited_total", Help: "Reissue attempts rejected by the per-IP throttle."},
	{ID: auth.MetricLogoutDevice, Name: "authd_logout_device_total", Help: "Device-class logout operations."},
	{ID: auth.MetricLogoutAll, Name: "authd_logout_all_total", Help: "Logout-all operations."},
	{ID: auth.MetricFamilyRevoked, Name: "authd_family_revoked_total", Help: "Explicit family revocations."},
	{ID: auth.MetricSessionsRevoked, Name: "authd_sessions_revoked_total", Help: "Refresh token records moved to REVOKED by revocation operations."},
	{ID: auth.MetricOAuthAuthorizeStarted, Name: "authd_oauth_authorize_started_total", Help: "Authorization attempts started."},
	{ID: auth.MetricOAuthCallbackSuccess, Name: "authd_oauth_callback_success_total", Help: "Provider callbacks that parked a pending login."},
	{ID: auth.MetricOAuthCallbackCanceled, Name: "authd_oauth_callback_canceled_total", Help: "Provider callbacks where the user denied consent."},
	{ID: auth.MetricOAuthCallbackInvalid, Name: "authd_oauth_callback_invalid_total", Help: "Provider callbacks with a missing, unknown or mismatched state."},
	{ID: auth.MetricOAuthCallbackError, Name: "authd_oauth_callback_error_total", Help: "Provider callbacks that failed the code exchange or storage."},
	{ID: auth.MetricSocialLoginSuccess, Name: "authd_social_login_success_total", Help: "Completed social logins."},
	{ID: auth.MetricSocialLoginNewUser, Name: "authd_social_login_new_user_total", Help: "Social logins that created a member."},
	{ID: auth.MetricSocialLoginFailure, Name: "authd_social_login_failure_total", Help: "Failed social logins."},
	{ID: auth.MetricPollPending, Name: "authd_poll_pending_total", Help: "Polls answered before the callback completed."},
	{ID: auth.MetricPollRateLimited, Name: "authd_poll_rate_limited_total", Help: "Polls rejected by the per-state throttle."},
	{ID: auth.MetricSignupInProgress, Name: "authd_signup_in_progress_total", Help: "Polls that timed out waiting for a concurrent signup."},
	{ID: auth.MetricRetentionExpired, Name: "authd_retention_expired_total", Help: "Records moved to EXPIRED by retention."},
	{ID: auth.MetricRetentionDeleted, Name: "authd_retention_deleted_total", Help: "Inactive records hard-deleted by retention."},
	{ID: auth.MetricRetentionFailure, Name: "authd_retention_failure_total", Help: "Retention job runs that failed."},
	{ID: auth.MetricRateLimitHit, Name: "authd_rate_limit_hit_total", Help: "Rate-limit checks that denied requests."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: auth.MetricValidateLatency, Name: "authd_validate_latency_seconds", Help: "Access token validation latency."},
}

// HistogramUpperBounds are the finite bucket bounds in seconds. The engine
// keeps one more bucket for +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, +Inf last, for exporters that
// publish buckets as separate instruments.
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

// NormalizeBuckets pads or truncates raw to the engine's eight buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
