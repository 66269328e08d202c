package auth

import (
	"context"
	"io"
	"log/slog"
	"time"

	internalaudit "github.com/realchillguyclub/backend-sub000/internal/audit"
	"github.com/realchillguyclub/backend-sub000/session"
)

// UserProvider is the member directory the Engine resolves external
// identities against. Implementations must be safe for concurrent use.
type UserProvider interface {
	// FindBySocialID returns the member linked to the identity or ErrUserNotFound.
	FindBySocialID(ctx context.Context, providerID, socialID string) (UserRecord, error)
	// CreateSocialUser links a new member to the identity. It returns
	// ErrAccountExists when the identity is already linked.
	CreateSocialUser(ctx context.Context, input CreateUserInput) (UserRecord, error)
}

// UserRecord is a member as returned by [UserProvider].
type UserRecord struct {
	UserID     string
	ProviderID string
	SocialID   string
	Email      string
	Name       string
	CreatedAt  time.Time
}

// CreateUserInput is the identity a new member is created from.
type CreateUserInput struct {
	ProviderID string
	SocialID   string
	Email      string
	Name       string
}

// IssueRequest describes the user and device a session is minted for.
type IssueRequest struct {
	UserID     string
	MobileType session.MobileType
	ClientID   string
}

// TokenPair is an access token and its paired refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// LoginResult is what a completed social login returns to the poller.
type LoginResult struct {
	AccessToken  string
	RefreshToken string
	UserID       string
	NewUser      bool
}

// Authorization is the provider URL a client opens and the state it polls with.
type Authorization struct {
	URL   string
	State string
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// SlogSink is an [AuditSink] that writes each event as a slog record.
type SlogSink = internalaudit.SlogSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewSlogSink creates a [SlogSink] over log; nil uses slog.Default().
func NewSlogSink(log *slog.Logger) *SlogSink {
	return internalaudit.NewSlogSink(log)
}
