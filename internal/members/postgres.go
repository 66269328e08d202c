// Package members is the Postgres-backed member directory social login
// resolves external identities against.
package members

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	auth "github.com/realchillguyclub/backend-sub000"
	"github.com/realchillguyclub/backend-sub000/internal/dbx"
)

var _ auth.UserProvider = (*Store)(nil)

// Store implements auth.UserProvider over the members table.
type Store struct {
	db    dbx.DBTX
	newID func() string
	now   func() time.Time
}

// New binds a store to db. The caller owns db.
func New(db dbx.DBTX) *Store {
	return &Store{db: db, newID: uuid.NewString, now: time.Now}
}

func (s *Store) FindBySocialID(ctx context.Context, providerID, socialID string) (auth.UserRecord, error) {
	const op = "members.FindBySocialID"

	var rec auth.UserRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT id, provider, social_id, email, name, created_at FROM members WHERE provider = $1 AND social_id = $2`,
		normalize(providerID), socialID,
	).Scan(&rec.UserID, &rec.ProviderID, &rec.SocialID, &rec.Email, &rec.Name, &rec.CreatedAt)
	if err != nil {
		return auth.UserRecord{}, classify(op, err)
	}
	return rec, nil
}

// CreateSocialUser inserts a member with a fresh UUID. A second insert for the
// same (provider, social_id) yields auth.ErrAccountExists.
func (s *Store) CreateSocialUser(ctx context.Context, input auth.CreateUserInput) (auth.UserRecord, error) {
	const op = "members.CreateSocialUser"

	if strings.TrimSpace(input.ProviderID) == "" || strings.TrimSpace(input.SocialID) == "" {
		return auth.UserRecord{}, fmt.Errorf("%s: provider and social id are required", op)
	}

	rec := auth.UserRecord{
		UserID:     s.newID(),
		ProviderID: normalize(input.ProviderID),
		SocialID:   input.SocialID,
		Email:      input.Email,
		Name:       input.Name,
		CreatedAt:  s.now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO members (id, provider, social_id, email, name, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.UserID, rec.ProviderID, rec.SocialID, rec.Email, rec.Name, rec.CreatedAt,
	)
	if err != nil {
		return auth.UserRecord{}, classify(op, err)
	}
	return rec, nil
}

func normalize(providerID string) string {
	return strings.ToLower(strings.TrimSpace(providerID))
}

func classify(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, auth.ErrUserNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return fmt.Errorf("%s: %w", op, auth.ErrAccountExists)
	}
	return fmt.Errorf("%s: %w", op, err)
}
