package session

import (
	"errors"
	"strings"
	"time"
)

// Status is the lifecycle state of a refresh-token record.
type Status string

const (
	// StatusActive records can be rotated exactly once.
	StatusActive Status = "ACTIVE"
	// StatusRotated records were consumed by a rotation and are kept for replay detection.
	StatusRotated Status = "ROTATED"
	// StatusRevoked records were invalidated out of band.
	StatusRevoked Status = "REVOKED"
	// StatusExpired records passed their expiry and were aged out.
	StatusExpired Status = "EXPIRED"
	// StatusDeleted is reserved for audit-preserving soft deletes.
	StatusDeleted Status = "DELETED"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusRotated, StatusRevoked, StatusExpired, StatusDeleted:
		return true
	default:
		return false
	}
}

// Terminal reports whether a record in this status can never be rotated again
// and is not part of replay detection.
func (s Status) Terminal() bool {
	return s == StatusRevoked || s == StatusExpired || s == StatusDeleted
}

// MobileType is the device class a session was issued to.
type MobileType string

const (
	MobileDesktop MobileType = "DESKTOP"
	MobileAndroid MobileType = "ANDROID"
	MobileIOS     MobileType = "IOS"
)

// ErrInvalidMobileType is returned by ParseMobileType for unknown device classes.
var ErrInvalidMobileType = errors.New("invalid mobile type")

// ErrClientIDRequired is returned when a non-desktop device omits its client id.
var ErrClientIDRequired = errors.New("client id required for non-desktop device")

// ParseMobileType accepts the device class case-insensitively.
func ParseMobileType(v string) (MobileType, error) {
	switch MobileType(strings.ToUpper(strings.TrimSpace(v))) {
	case MobileDesktop:
		return MobileDesktop, nil
	case MobileAndroid:
		return MobileAndroid, nil
	case MobileIOS:
		return MobileIOS, nil
	default:
		return "", ErrInvalidMobileType
	}
}

// ValidateDevice enforces that clientID is present iff the device is not a desktop.
func ValidateDevice(mobileType MobileType, clientID string) error {
	if _, err := ParseMobileType(string(mobileType)); err != nil {
		return err
	}
	if mobileType != MobileDesktop && strings.TrimSpace(clientID) == "" {
		return ErrClientIDRequired
	}
	return nil
}

// Record is one issued refresh token and its place in a rotation family.
type Record struct {
	ID       int64
	JTI      string
	FamilyID string
	ParentID *int64

	UserID     string
	MobileType MobileType
	// ClientID is empty for desktop sessions.
	ClientID string

	TokenValue   string
	IssuedAt     time.Time
	ExpiryAt     time.Time
	LastUsedAt   *time.Time
	LastUsedIP   string
	UserAgent    string
	ReissueCount int

	Status    Status
	UpdatedAt time.Time
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	if r.ParentID != nil {
		parent := *r.ParentID
		out.ParentID = &parent
	}
	if r.LastUsedAt != nil {
		used := *r.LastUsedAt
		out.LastUsedAt = &used
	}
	return &out
}
