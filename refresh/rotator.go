package refresh

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/realchillguyclub/backend-sub000/session"
)

// DefaultGraceWindow is how long a ROTATED token may be re-presented without
// being treated as reuse.
const DefaultGraceWindow = 3 * time.Second

// Codec mints the token pair. *jwt.Manager satisfies it.
type Codec interface {
	CreateAccess(userID string) (string, error)
	CreateRefresh(userID, jti string) (string, time.Time, error)
}

// Session is a freshly minted token pair and the record backing its refresh token.
type Session struct {
	AccessToken  string
	RefreshToken string
	Record       *session.Record
}

// IssueRequest describes the device a new session is issued to.
type IssueRequest struct {
	UserID     string
	MobileType session.MobileType
	ClientID   string
	IP         string
	UserAgent  string
}

// RotateInput carries request metadata recorded on rotation. A non-empty
// ClientID replaces the client id inherited from the parent.
type RotateInput struct {
	IP        string
	UserAgent string
	ClientID  string
}

// Option configures a Rotator.
type Option func(*Rotator)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Rotator) {
		if now != nil {
			r.now = now
		}
	}
}

// WithGraceWindow overrides DefaultGraceWindow.
func WithGraceWindow(d time.Duration) Option {
	return func(r *Rotator) {
		if d >= 0 {
			r.grace = d
		}
	}
}

// WithIDGenerator replaces the UUIDv4 generator used for jti and family ids.
func WithIDGenerator(gen func() string) Option {
	return func(r *Rotator) {
		if gen != nil {
			r.newID = gen
		}
	}
}

// Rotator issues sessions and rotates refresh tokens.
type Rotator struct {
	store session.Store
	codec Codec
	grace time.Duration
	now   func() time.Time
	newID func() string
}

// NewRotator returns a Rotator over store and codec.
func NewRotator(store session.Store, codec Codec, opts ...Option) *Rotator {
	r := &Rotator{
		store: store,
		codec: codec,
		grace: DefaultGraceWindow,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GraceWindow reports the configured grace window.
func (r *Rotator) GraceWindow() time.Duration { return r.grace }

// Issue starts a new family for a freshly authenticated user.
func (r *Rotator) Issue(ctx context.Context, req IssueRequest) (*Session, error) {
	if req.UserID == "" {
		return nil, errors.New("user id required")
	}
	if err := session.ValidateDevice(req.MobileType, req.ClientID); err != nil {
		return nil, err
	}

	var out *Session
	err := r.store.WithTx(ctx, func(ctx context.Context, tx session.Tx) error {
		rec := &session.Record{
			FamilyID:   r.newID(),
			UserID:     req.UserID,
			MobileType: req.MobileType,
			ClientID:   clientIDFor(req.MobileType, req.ClientID),
			UserAgent:  req.UserAgent,
			LastUsedIP: req.IP,
		}
		sess, err := r.mintInto(ctx, tx, rec)
		if err != nil {
			return err
		}
		out = sess
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Validate loads the record for jti under lock and classifies it. The record
// is returned whenever it exists, including alongside a verdict error, so the
// caller can attribute the failure to a user and family.
//
// A ROTATED record outside the grace window triggers a family revocation
// through tx before ErrReuseDetected is returned; the caller must commit tx
// for the revocation to stick.
func (r *Rotator) Validate(ctx context.Context, tx session.Tx, jti, presented string) (*session.Record, error) {
	rec, err := tx.LockByJTI(ctx, jti)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, ErrNotFoundOrExpired
		}
		return nil, err
	}

	if subtle.ConstantTimeCompare([]byte(rec.TokenValue), []byte(presented)) != 1 {
		return rec, ErrTokenMismatch
	}

	switch rec.Status {
	case session.StatusActive:
		return rec, nil
	case session.StatusRotated:
		now := r.now()
		if rec.LastUsedAt != nil && rec.LastUsedAt.Add(r.grace).After(now) {
			return rec, ErrDuplicateRequest
		}
		if _, err := tx.RevokeFamily(ctx, rec.FamilyID, now); err != nil {
			return rec, fmt.Errorf("revoke family %s: %w", rec.FamilyID, err)
		}
		return rec, ErrReuseDetected
	default:
		return rec, ErrAlreadyUsed
	}
}

// Rotate consumes old and inserts its ACTIVE child. old must have been
// returned by Validate on the same tx without error.
func (r *Rotator) Rotate(ctx context.Context, tx session.Tx, old *session.Record, in RotateInput) (*Session, error) {
	if old == nil || old.Status != session.StatusActive {
		return nil, ErrAlreadyUsed
	}
	now := r.now()
	if err := tx.MarkRotated(ctx, old.ID, now, in.IP); err != nil {
		return nil, err
	}

	parentID := old.ID
	clientID := old.ClientID
	if in.ClientID != "" && old.MobileType != session.MobileDesktop {
		clientID = in.ClientID
	}
	userAgent := in.UserAgent
	if userAgent == "" {
		userAgent = old.UserAgent
	}

	child := &session.Record{
		FamilyID:     old.FamilyID,
		ParentID:     &parentID,
		UserID:       old.UserID,
		MobileType:   old.MobileType,
		ClientID:     clientID,
		UserAgent:    userAgent,
		LastUsedIP:   in.IP,
		ReissueCount: old.ReissueCount + 1,
	}
	return r.mintInto(ctx, tx, child)
}

// Reissue validates and rotates the token identified by jti in one unit of
// work. The returned record is the presented record as loaded, or nil when no
// record matched.
//
// A reuse verdict commits the family revocation and then returns
// ErrReuseDetected. Every other failure rolls the unit of work back.
func (r *Rotator) Reissue(ctx context.Context, jti, presented string, in RotateInput) (*Session, *session.Record, error) {
	var (
		out     *Session
		parent  *session.Record
		verdict error
	)
	err := r.store.WithTx(ctx, func(ctx context.Context, tx session.Tx) error {
		rec, err := r.Validate(ctx, tx, jti, presented)
		parent = rec
		if errors.Is(err, ErrReuseDetected) {
			verdict = err
			return nil
		}
		if err != nil {
			return err
		}
		sess, err := r.Rotate(ctx, tx, rec, in)
		if err != nil {
			return err
		}
		out = sess
		return nil
	})
	if err != nil {
		return nil, parent, err
	}
	if verdict != nil {
		return nil, parent, verdict
	}
	return out, parent, nil
}

func (r *Rotator) mintInto(ctx context.Context, tx session.Tx, rec *session.Record) (*Session, error) {
	now := r.now()
	jti := r.newID()

	access, err := r.codec.CreateAccess(rec.UserID)
	if err != nil {
		return nil, fmt.Errorf("create access token: %w", err)
	}
	refresh, exp, err := r.codec.CreateRefresh(rec.UserID, jti)
	if err != nil {
		return nil, fmt.Errorf("create refresh token: %w", err)
	}

	rec.JTI = jti
	rec.TokenValue = refresh
	rec.IssuedAt = now
	rec.ExpiryAt = exp
	rec.Status = session.StatusActive
	rec.UpdatedAt = now

	if err := tx.Insert(ctx, rec); err != nil {
		return nil, err
	}
	return &Session{AccessToken: access, RefreshToken: refresh, Record: rec.Clone()}, nil
}

func clientIDFor(mobileType session.MobileType, clientID string) string {
	if mobileType == session.MobileDesktop {
		return ""
	}
	return clientID
}
