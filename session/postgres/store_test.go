package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/realchillguyclub/backend-sub000/session"
)

var columns = []string{
	"id", "jti", "family_id", "parent_id", "user_id", "mobile_type", "client_id",
	"token_value", "issued_at", "expiry_at", "last_used_at", "last_used_ip", "user_agent",
	"reissue_count", "status", "updated_at",
}

func newStoreWithMock(t *testing.T) (*Store, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db), mock, db
}

func TestFindByJTI_Found(t *testing.T) {
	store, mock, _ := newStoreWithMock(t)
	issued := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery(`(?s)SELECT .* FROM refresh_tokens WHERE jti = \$1$`).
		WithArgs("A").
		WillReturnRows(sqlmock.NewRows(columns).AddRow(
			int64(7), "A", "F1", int64(3), "u1", "ANDROID", "c1",
			"tok", issued, issued.Add(time.Hour), nil, nil, "ua",
			int64(1), "ACTIVE", issued,
		))

	rec, err := store.FindByJTI(context.Background(), "A")
	require.NoError(t, err)
	require.Equal(t, int64(7), rec.ID)
	require.NotNil(t, rec.ParentID)
	require.Equal(t, int64(3), *rec.ParentID)
	require.Equal(t, session.MobileAndroid, rec.MobileType)
	require.Equal(t, "c1", rec.ClientID)
	require.Nil(t, rec.LastUsedAt)
	require.Equal(t, session.StatusActive, rec.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByJTI_NotFound(t *testing.T) {
	store, mock, _ := newStoreWithMock(t)

	mock.ExpectQuery(`FROM refresh_tokens WHERE jti`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := store.FindByJTI(context.Background(), "missing")
	require.ErrorIs(t, err, session.ErrNotFound)
}

func TestFindByJTI_DriverErrorIsUnavailable(t *testing.T) {
	store, mock, _ := newStoreWithMock(t)

	mock.ExpectQuery(`FROM refresh_tokens WHERE jti`).
		WithArgs("A").
		WillReturnError(errors.New("connection reset"))

	_, err := store.FindByJTI(context.Background(), "A")
	require.ErrorIs(t, err, session.ErrUnavailable)
	require.Contains(t, err.Error(), "session.postgres.FindByJTI")
}

func TestWithTx_InsertAssignsID(t *testing.T) {
	store, mock, _ := newStoreWithMock(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(`(?s)INSERT INTO refresh_tokens .* RETURNING id`).
		WithArgs("A", "F1", nil, "u1", "DESKTOP", nil, "tok", now, now.Add(time.Hour), nil, nil, "ua", 0, "ACTIVE", now).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))
	mock.ExpectCommit()

	rec := &session.Record{
		JTI: "A", FamilyID: "F1", UserID: "u1", MobileType: session.MobileDesktop,
		TokenValue: "tok", IssuedAt: now, ExpiryAt: now.Add(time.Hour), UserAgent: "ua",
		Status: session.StatusActive,
	}
	err := store.WithTx(context.Background(), func(ctx context.Context, tx session.Tx) error {
		return tx.Insert(ctx, rec)
	})
	require.NoError(t, err)
	require.Equal(t, int64(42), rec.ID)
	require.Equal(t, now, rec.UpdatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_UniqueViolationMapsToDuplicateJTI(t *testing.T) {
	store, mock, _ := newStoreWithMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO refresh_tokens`).
		WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})
	mock.ExpectRollback()

	err := store.WithTx(context.Background(), func(ctx context.Context, tx session.Tx) error {
		return tx.Insert(ctx, &session.Record{JTI: "A", Status: session.StatusActive})
	})
	require.ErrorIs(t, err, session.ErrDuplicateJTI)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_LockAndRotateUsesForUpdate(t *testing.T) {
	store, mock, _ := newStoreWithMock(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(`(?s)FROM refresh_tokens WHERE jti = \$1 FOR UPDATE`).
		WithArgs("A").
		WillReturnRows(sqlmock.NewRows(columns).AddRow(
			int64(1), "A", "F1", nil, "u1", "DESKTOP", nil,
			"tok", now, now.Add(time.Hour), nil, nil, "",
			int64(0), "ACTIVE", now,
		))
	mock.ExpectExec(`(?s)UPDATE refresh_tokens\s+SET status = \$1, last_used_at = \$2`).
		WithArgs("ROTATED", now, "10.0.0.1", int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.WithTx(context.Background(), func(ctx context.Context, tx session.Tx) error {
		rec, err := tx.LockByJTI(ctx, "A")
		if err != nil {
			return err
		}
		return tx.MarkRotated(ctx, rec.ID, now, "10.0.0.1")
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_CallbackErrorRollsBack(t *testing.T) {
	store, mock, _ := newStoreWithMock(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec(`(?s)UPDATE refresh_tokens.*WHERE family_id = \$3`).
		WithArgs("REVOKED", now, "F1", "ACTIVE", "ROTATED").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := store.WithTx(context.Background(), func(ctx context.Context, tx session.Tx) error {
		n, err := tx.RevokeFamily(ctx, "F1", now)
		require.NoError(t, err)
		require.Equal(t, int64(2), n)
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkRotated_NoRowsIsNotFound(t *testing.T) {
	store, mock, _ := newStoreWithMock(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE refresh_tokens`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := store.WithTx(context.Background(), func(ctx context.Context, tx session.Tx) error {
		return tx.MarkRotated(ctx, 99, now, "")
	})
	require.ErrorIs(t, err, session.ErrNotFound)
}

func TestMarkExpired(t *testing.T) {
	store, mock, _ := newStoreWithMock(t)
	now := time.Now().UTC()

	mock.ExpectExec(`(?s)UPDATE refresh_tokens.*WHERE status = \$3 AND expiry_at < \$2`).
		WithArgs("EXPIRED", now, "ACTIVE").
		WillReturnResult(sqlmock.NewResult(0, 5))

	n, err := store.MarkExpired(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, int64(5), n)
}

func TestHardDeleteInactive(t *testing.T) {
	store, mock, _ := newStoreWithMock(t)
	threshold := time.Now().UTC().Add(-30 * 24 * time.Hour)

	mock.ExpectExec(`(?s)DELETE FROM refresh_tokens.*status IN \(\$1, \$2, \$3\) AND updated_at < \$4`).
		WithArgs("REVOKED", "EXPIRED", "ROTATED", threshold).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := store.HardDeleteInactive(context.Background(), threshold)
	require.NoError(t, err)
	require.Equal(t, int64(3), n)
}

func TestListFamily_OrdersByID(t *testing.T) {
	store, mock, _ := newStoreWithMock(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`(?s)WHERE family_id = \$1 ORDER BY id`).
		WithArgs("F1").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(int64(1), "A", "F1", nil, "u1", "DESKTOP", nil, "t1", now, now, now, "1.1.1.1", "", int64(0), "ROTATED", now).
			AddRow(int64(2), "B", "F1", int64(1), "u1", "DESKTOP", nil, "t2", now, now, nil, nil, "", int64(1), "ACTIVE", now))

	fam, err := store.ListFamily(context.Background(), "F1")
	require.NoError(t, err)
	require.Len(t, fam, 2)
	require.Equal(t, "A", fam[0].JTI)
	require.NotNil(t, fam[0].LastUsedAt)
	require.Equal(t, "1.1.1.1", fam[0].LastUsedIP)
	require.Equal(t, int64(1), *fam[1].ParentID)
}
