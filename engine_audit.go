package auth

import (
	"context"
)

const (
	auditEventSessionIssued        = "session_issued"
	auditEventRefreshSuccess       = "refresh_success"
	auditEventRefreshDuplicate     = "refresh_duplicate"
	auditEventRefreshReuseDetected = "refresh_reuse_detected"
	auditEventRefreshTokenMismatch = "refresh_token_mismatch"
	auditEventRefreshInvalid       = "refresh_invalid"
	auditEventLogoutDevice         = "logout_device"
	auditEventLogoutAll            = "logout_all"
	auditEventFamilyRevoked        = "family_revoked"
	auditEventOAuthAuthorize       = "oauth_authorize_started"
	auditEventOAuthCallback        = "oauth_callback"
	auditEventSocialLoginSuccess   = "social_login_success"
	auditEventSocialLoginFailure   = "social_login_failure"
	auditEventSignupInProgress     = "signup_in_progress"
	auditEventRetentionRun         = "retention_run"
	auditEventRateLimitTriggered   = "rate_limit_triggered"
)

// isSecurityEvent reports whether eventType is a security incident that the
// dispatcher must not shed.
func isSecurityEvent(eventType string) bool {
	switch eventType {
	case auditEventRefreshReuseDetected, auditEventRefreshTokenMismatch:
		return true
	default:
		return false
	}
}

// auditFields carries the optional subject of an audit event.
type auditFields struct {
	userID   string
	familyID string
	jti      string
}

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	subject auditFields,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		UserID:    subject.userID,
		FamilyID:  subject.familyID,
		JTI:       subject.jti,
		IP:        ClientIPFromContext(ctx),
		UserAgent: UserAgentFromContext(ctx),
		Success:   success,
		Security:  isSecurityEvent(eventType),
		Metadata:  metadata,
	}
	if err != nil {
		event.Error = ErrorCode(err)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(ctx context.Context, scope string) {
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, auditFields{}, ErrRateLimited, func() map[string]string {
		return map[string]string{
			"scope": scope,
		}
	})
}
