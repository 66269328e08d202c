// Package postgres implements session.Store on PostgreSQL through database/sql
// and the pgx stdlib driver. Rotation locks rows with SELECT ... FOR UPDATE so
// two transactions presenting the same jti serialise on the row.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/realchillguyclub/backend-sub000/internal/dbx"
	"github.com/realchillguyclub/backend-sub000/session"
)

var _ session.Store = (*Store)(nil)

const recordColumns = `id, jti, family_id, parent_id, user_id, mobile_type, client_id,
	token_value, issued_at, expiry_at, last_used_at, last_used_ip, user_agent,
	reissue_count, status, updated_at`

// Store is a session.Store over a *sql.DB.
type Store struct {
	db *sql.DB
}

// New binds a store to db. The caller owns db.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx session.Tx) error) error {
	const op = "session.postgres.WithTx"

	var inner error
	err := dbx.WithTx(ctx, s.db, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, func(ctx context.Context, q dbx.DBTX) error {
		inner = fn(ctx, &pgTx{q: q})
		return inner
	})
	if err == nil {
		return nil
	}
	// Errors produced by the callback are already classified.
	if inner != nil && errors.Is(err, inner) {
		return err
	}
	return classify(op, err)
}

func (s *Store) FindByJTI(ctx context.Context, jti string) (*session.Record, error) {
	const op = "session.postgres.FindByJTI"

	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM refresh_tokens WHERE jti = $1`, jti)
	rec, err := scanRecord(row)
	if err != nil {
		return nil, classify(op, err)
	}
	return rec, nil
}

func (s *Store) FindByID(ctx context.Context, id int64) (*session.Record, error) {
	const op = "session.postgres.FindByID"

	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM refresh_tokens WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if err != nil {
		return nil, classify(op, err)
	}
	return rec, nil
}

func (s *Store) ListFamily(ctx context.Context, familyID string) ([]*session.Record, error) {
	const op = "session.postgres.ListFamily"

	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM refresh_tokens WHERE family_id = $1 ORDER BY id`, familyID)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	var out []*session.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, classify(op, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(op, err)
	}
	return out, nil
}

func (s *Store) MarkExpired(ctx context.Context, now time.Time) (int64, error) {
	const op = "session.postgres.MarkExpired"

	res, err := s.db.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET status = $1, updated_at = $2
		WHERE status = $3 AND expiry_at < $2`,
		session.StatusExpired, now, session.StatusActive)
	return affected(op, res, err)
}

func (s *Store) HardDeleteInactive(ctx context.Context, threshold time.Time) (int64, error) {
	const op = "session.postgres.HardDeleteInactive"

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM refresh_tokens
		WHERE status IN ($1, $2, $3) AND updated_at < $4`,
		session.StatusRevoked, session.StatusExpired, session.StatusRotated, threshold)
	return affected(op, res, err)
}

type pgTx struct {
	q dbx.DBTX
}

func (t *pgTx) Insert(ctx context.Context, rec *session.Record) error {
	const op = "session.postgres.Insert"

	updated := rec.UpdatedAt
	if updated.IsZero() {
		updated = rec.IssuedAt
	}

	var id int64
	err := t.q.QueryRowContext(ctx, `
		INSERT INTO refresh_tokens (jti, family_id, parent_id, user_id, mobile_type, client_id,
			token_value, issued_at, expiry_at, last_used_at, last_used_ip, user_agent,
			reissue_count, status, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id`,
		rec.JTI, rec.FamilyID, nullInt64(rec.ParentID), rec.UserID, rec.MobileType, nullString(rec.ClientID),
		rec.TokenValue, rec.IssuedAt, rec.ExpiryAt, nullTime(rec.LastUsedAt), nullString(rec.LastUsedIP), rec.UserAgent,
		rec.ReissueCount, rec.Status, updated,
	).Scan(&id)
	if err != nil {
		return classify(op, err)
	}
	rec.ID = id
	rec.UpdatedAt = updated
	return nil
}

func (t *pgTx) LockByJTI(ctx context.Context, jti string) (*session.Record, error) {
	const op = "session.postgres.LockByJTI"

	row := t.q.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM refresh_tokens WHERE jti = $1 FOR UPDATE`, jti)
	rec, err := scanRecord(row)
	if err != nil {
		return nil, classify(op, err)
	}
	return rec, nil
}

func (t *pgTx) MarkRotated(ctx context.Context, id int64, usedAt time.Time, ip string) error {
	const op = "session.postgres.MarkRotated"

	res, err := t.q.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET status = $1, last_used_at = $2, last_used_ip = $3, updated_at = $2
		WHERE id = $4`,
		session.StatusRotated, usedAt, nullString(ip), id)
	n, err := affected(op, res, err)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, session.ErrNotFound)
	}
	return nil
}

func (t *pgTx) RevokeFamily(ctx context.Context, familyID string, at time.Time) (int64, error) {
	const op = "session.postgres.RevokeFamily"

	res, err := t.q.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET status = $1, updated_at = $2
		WHERE family_id = $3 AND status IN ($4, $5)`,
		session.StatusRevoked, at, familyID, session.StatusActive, session.StatusRotated)
	return affected(op, res, err)
}

func (t *pgTx) RevokeByUserAndDevice(ctx context.Context, userID string, mobileType session.MobileType, at time.Time) (int64, error) {
	const op = "session.postgres.RevokeByUserAndDevice"

	res, err := t.q.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET status = $1, updated_at = $2
		WHERE user_id = $3 AND mobile_type = $4 AND status = $5`,
		session.StatusRevoked, at, userID, mobileType, session.StatusActive)
	return affected(op, res, err)
}

func (t *pgTx) RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int64, error) {
	const op = "session.postgres.RevokeAllForUser"

	res, err := t.q.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET status = $1, updated_at = $2
		WHERE user_id = $3 AND status = $4`,
		session.StatusRevoked, at, userID, session.StatusActive)
	return affected(op, res, err)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*session.Record, error) {
	var (
		rec        session.Record
		parentID   sql.NullInt64
		clientID   sql.NullString
		lastUsedAt sql.NullTime
		lastUsedIP sql.NullString
		mobileType string
		status     string
	)
	err := row.Scan(
		&rec.ID, &rec.JTI, &rec.FamilyID, &parentID, &rec.UserID, &mobileType, &clientID,
		&rec.TokenValue, &rec.IssuedAt, &rec.ExpiryAt, &lastUsedAt, &lastUsedIP, &rec.UserAgent,
		&rec.ReissueCount, &status, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.MobileType = session.MobileType(mobileType)
	rec.Status = session.Status(status)
	if parentID.Valid {
		v := parentID.Int64
		rec.ParentID = &v
	}
	if lastUsedAt.Valid {
		v := lastUsedAt.Time
		rec.LastUsedAt = &v
	}
	rec.ClientID = clientID.String
	rec.LastUsedIP = lastUsedIP.String
	return &rec, nil
}

func affected(op string, res sql.Result, err error) (int64, error) {
	if err != nil {
		return 0, classify(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, classify(op, err)
	}
	return n, nil
}

// classify maps driver errors onto the session sentinels.
func classify(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, session.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return fmt.Errorf("%s: %w", op, session.ErrDuplicateJTI)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %v", op, session.ErrUnavailable, err)
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *v, Valid: true}
}
