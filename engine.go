package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	internalaudit "github.com/realchillguyclub/backend-sub000/internal/audit"
	"github.com/realchillguyclub/backend-sub000/internal/flows"
	"github.com/realchillguyclub/backend-sub000/internal/rate"
	"github.com/realchillguyclub/backend-sub000/jwt"
	"github.com/realchillguyclub/backend-sub000/oauth"
	"github.com/realchillguyclub/backend-sub000/refresh"
	"github.com/realchillguyclub/backend-sub000/retention"
	"github.com/realchillguyclub/backend-sub000/session"
	"github.com/realchillguyclub/backend-sub000/signup"
)

// Engine is the session lifecycle facade: issuance, rotation, revocation,
// retention and social login.
//
// Engine instances are built once by [Builder] and are safe for concurrent use.
type Engine struct {
	config       Config
	log          *slog.Logger
	now          func() time.Time
	store        session.Store
	jwtManager   *jwt.Manager
	rotator      *refresh.Rotator
	revoker      *refresh.Revoker
	retention    *retention.Scheduler
	coordinator  *oauth.Coordinator
	serializer   signup.Serializer
	rateLimiter  *rate.Limiter
	userProvider UserProvider
	audit        *internalaudit.Dispatcher
	metrics      *Metrics
	flows        flows.Deps
}

// Close drains the audit dispatcher. It does not close the store or Redis
// client, which the caller owns.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were dropped because the
// buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot copies the current counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricAdd(id MetricID, n int64) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Add(id, n)
}

// IssueSession mints a new session (a fresh family) for an authenticated user.
func (e *Engine) IssueSession(ctx context.Context, req IssueRequest) (*TokenPair, error) {
	if e == nil || e.rotator == nil {
		return nil, ErrEngineNotReady
	}
	if req.UserID == "" {
		return nil, ErrInvalidRequest
	}
	if err := session.ValidateDevice(req.MobileType, req.ClientID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDevice, err)
	}

	sess, err := e.rotator.Issue(ctx, refresh.IssueRequest{
		UserID:     req.UserID,
		MobileType: req.MobileType,
		ClientID:   req.ClientID,
		IP:         ClientIPFromContext(ctx),
		UserAgent:  UserAgentFromContext(ctx),
	})
	if err != nil {
		return nil, e.storeError(ctx, "issue session", err)
	}
	e.recordIssued(ctx, sess)
	return &TokenPair{AccessToken: sess.AccessToken, RefreshToken: sess.RefreshToken}, nil
}

func (e *Engine) recordIssued(ctx context.Context, sess *refresh.Session) {
	e.metricInc(MetricSessionIssued)
	e.emitAudit(ctx, auditEventSessionIssued, true, auditFields{
		userID:   sess.Record.UserID,
		familyID: sess.Record.FamilyID,
		jti:      sess.Record.JTI,
	}, nil, func() map[string]string {
		return map[string]string{"mobile_type": string(sess.Record.MobileType)}
	})
}

// Reissue rotates a refresh token. clientID, when set on a mobile session,
// replaces the client id recorded on the parent.
func (e *Engine) Reissue(ctx context.Context, refreshToken, clientID string) (*TokenPair, error) {
	if e == nil || e.rotator == nil {
		return nil, ErrEngineNotReady
	}

	result := flows.RunReissue(ctx, flows.ReissueInput{
		RefreshToken: refreshToken,
		ClientID:     clientID,
		IP:           ClientIPFromContext(ctx),
		UserAgent:    UserAgentFromContext(ctx),
	}, e.flows.Reissue)

	subject := auditFields{userID: result.UserID, jti: result.JTI}
	if result.Parent != nil {
		subject.familyID = result.Parent.FamilyID
		subject.userID = result.Parent.UserID
	}

	switch result.Failure {
	case flows.ReissueFailureNone:
		e.metricInc(MetricReissueSuccess)
		e.emitAudit(ctx, auditEventRefreshSuccess, true, subject, nil, func() map[string]string {
			return map[string]string{
				"reissue_count": strconv.Itoa(result.Session.Record.ReissueCount),
			}
		})
		return &TokenPair{
			AccessToken:  result.Session.AccessToken,
			RefreshToken: result.Session.RefreshToken,
		}, nil

	case flows.ReissueFailureRateLimited:
		e.metricInc(MetricReissueRateLimited)
		e.emitRateLimit(ctx, "reissue")
		return nil, ErrRateLimited

	case flows.ReissueFailureMissing:
		return nil, e.reissueInvalid(ctx, subject, ErrMissingToken)
	case flows.ReissueFailureExpired:
		return nil, e.reissueInvalid(ctx, subject, ErrExpiredRefresh)
	case flows.ReissueFailureInvalid:
		return nil, e.reissueInvalid(ctx, subject, ErrInvalidToken)
	case flows.ReissueFailureNotFound:
		return nil, e.reissueInvalid(ctx, subject, ErrNotFoundOrExpired)
	case flows.ReissueFailureAlreadyUsed:
		return nil, e.reissueInvalid(ctx, subject, ErrAlreadyUsed)

	case flows.ReissueFailureMismatch:
		e.metricInc(MetricTokenMismatch)
		e.log.WarnContext(ctx, "refresh token mismatch",
			slog.String("jti", subject.jti),
			slog.String("family_id", subject.familyID),
			slog.String("user_id", subject.userID),
			slog.String("ip", ClientIPFromContext(ctx)),
		)
		e.emitAudit(ctx, auditEventRefreshTokenMismatch, false, subject, ErrTokenMismatch, nil)
		return nil, ErrTokenMismatch

	case flows.ReissueFailureDuplicate:
		e.metricInc(MetricReissueDuplicate)
		e.emitAudit(ctx, auditEventRefreshDuplicate, false, subject, ErrDuplicateRequest, nil)
		return nil, ErrDuplicateRequest

	case flows.ReissueFailureReuse:
		e.metricInc(MetricReuseDetected)
		e.log.WarnContext(ctx, "refresh token reuse detected, family revoked",
			slog.String("family_id", subject.familyID),
			slog.String("user_id", subject.userID),
			slog.String("jti", subject.jti),
			slog.String("ip", ClientIPFromContext(ctx)),
		)
		e.emitAudit(ctx, auditEventRefreshReuseDetected, false, subject, ErrReuseDetected, nil)
		return nil, ErrReuseDetected

	default:
		return nil, e.storeError(ctx, "reissue", result.Err)
	}
}

func (e *Engine) reissueInvalid(ctx context.Context, subject auditFields, err error) error {
	e.metricInc(MetricReissueInvalid)
	e.emitAudit(ctx, auditEventRefreshInvalid, false, subject, err, nil)
	return err
}

// ValidateAccess verifies an access token and returns its user id.
func (e *Engine) ValidateAccess(token string) (string, error) {
	if e == nil || e.jwtManager == nil {
		return "", ErrEngineNotReady
	}
	result := flows.RunValidate(token, e.flows.Validate)
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(MetricValidateLatency, result.Elapsed)
	}
	switch result.Failure {
	case flows.ValidateFailureNone:
		return result.Claims.UserID, nil
	case flows.ValidateFailureMissing:
		return "", ErrMissingToken
	case flows.ValidateFailureExpired:
		return "", ErrExpiredAccess
	default:
		return "", ErrInvalidToken
	}
}

// UserIDFromBearerHeader resolves an "Authorization: Bearer <token>" header
// to the user id of a valid access token.
func (e *Engine) UserIDFromBearerHeader(header string) (string, error) {
	if e == nil || e.jwtManager == nil {
		return "", ErrEngineNotReady
	}
	userID, err := e.jwtManager.UserIDFromBearerHeader(header)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrMissing):
			return "", ErrMissingToken
		case errors.Is(err, jwt.ErrExpired):
			return "", ErrExpiredAccess
		default:
			return "", ErrInvalidToken
		}
	}
	return userID, nil
}

// Logout revokes the user's ACTIVE sessions on one device class and returns
// how many were revoked.
func (e *Engine) Logout(ctx context.Context, userID string, mobileType session.MobileType) (int64, error) {
	if e == nil || e.revoker == nil {
		return 0, ErrEngineNotReady
	}
	if _, err := session.ParseMobileType(string(mobileType)); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidDevice, err)
	}
	n, err := e.revoker.RevokeByUserAndDevice(ctx, userID, mobileType)
	if err != nil {
		return 0, e.storeError(ctx, "logout", err)
	}
	e.metricInc(MetricLogoutDevice)
	e.metricAdd(MetricSessionsRevoked, n)
	e.emitAudit(ctx, auditEventLogoutDevice, true, auditFields{userID: userID}, nil, func() map[string]string {
		return map[string]string{
			"mobile_type": string(mobileType),
			"revoked":     strconv.FormatInt(n, 10),
		}
	})
	return n, nil
}

// LogoutAll revokes every ACTIVE session of the user.
func (e *Engine) LogoutAll(ctx context.Context, userID string) (int64, error) {
	if e == nil || e.revoker == nil {
		return 0, ErrEngineNotReady
	}
	n, err := e.revoker.RevokeAllForUser(ctx, userID)
	if err != nil {
		return 0, e.storeError(ctx, "logout all", err)
	}
	e.metricInc(MetricLogoutAll)
	e.metricAdd(MetricSessionsRevoked, n)
	e.emitAudit(ctx, auditEventLogoutAll, true, auditFields{userID: userID}, nil, func() map[string]string {
		return map[string]string{"revoked": strconv.FormatInt(n, 10)}
	})
	return n, nil
}

// RevokeFamily revokes the ACTIVE and ROTATED members of a family.
func (e *Engine) RevokeFamily(ctx context.Context, familyID string) (int64, error) {
	if e == nil || e.revoker == nil {
		return 0, ErrEngineNotReady
	}
	n, err := e.revoker.RevokeFamily(ctx, familyID)
	if err != nil {
		return 0, e.storeError(ctx, "revoke family", err)
	}
	e.metricInc(MetricFamilyRevoked)
	e.metricAdd(MetricSessionsRevoked, n)
	e.emitAudit(ctx, auditEventFamilyRevoked, true, auditFields{familyID: familyID}, nil, func() map[string]string {
		return map[string]string{"revoked": strconv.FormatInt(n, 10)}
	})
	return n, nil
}

// RunRetention runs both retention jobs once.
func (e *Engine) RunRetention(ctx context.Context) error {
	if e == nil || e.retention == nil {
		return ErrEngineNotReady
	}
	return e.retention.Sweep(ctx)
}

// StartRetention runs the retention jobs on their intervals until ctx is
// cancelled. It blocks and returns ctx.Err().
func (e *Engine) StartRetention(ctx context.Context) error {
	if e == nil || e.retention == nil {
		return ErrEngineNotReady
	}
	return e.retention.Run(ctx)
}

func (e *Engine) observeRetention(job string, affected int64, elapsed time.Duration, err error) {
	ctx := context.Background()
	if err != nil {
		e.metricInc(MetricRetentionFailure)
		e.log.Error("retention job failed",
			slog.String("job", job),
			slog.Duration("elapsed", elapsed),
			slog.String("error", err.Error()),
		)
	} else {
		switch job {
		case retention.JobMarkExpired:
			e.metricAdd(MetricRetentionExpired, affected)
		case retention.JobHardDeleteInactive:
			e.metricAdd(MetricRetentionDeleted, affected)
		}
		e.log.Info("retention job finished",
			slog.String("job", job),
			slog.Int64("affected", affected),
			slog.Duration("elapsed", elapsed),
		)
	}
	e.emitAudit(ctx, auditEventRetentionRun, err == nil, auditFields{}, storeErrorCode(err), func() map[string]string {
		return map[string]string{
			"job":      job,
			"affected": strconv.FormatInt(affected, 10),
		}
	})
}

// storeError classifies a backend failure. Context errors pass through.
func (e *Engine) storeError(ctx context.Context, op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	e.log.ErrorContext(ctx, "session store failure",
		slog.String("op", op),
		slog.String("error", err.Error()),
	)
	return fmt.Errorf("%s: %w: %v", op, ErrStoreUnavailable, err)
}

func storeErrorCode(err error) error {
	if err == nil {
		return nil
	}
	return ErrStoreUnavailable
}
