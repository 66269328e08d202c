package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/realchillguyclub/backend-sub000/session"
)

func newRecord(jti, family string, status session.Status, at time.Time) *session.Record {
	return &session.Record{
		JTI:        jti,
		FamilyID:   family,
		UserID:     "u1",
		MobileType: session.MobileDesktop,
		TokenValue: "token-" + jti,
		IssuedAt:   at,
		ExpiryAt:   at.Add(14 * 24 * time.Hour),
		Status:     status,
	}
}

func insert(t *testing.T, s *Store, rec *session.Record) {
	t.Helper()
	err := s.WithTx(context.Background(), func(ctx context.Context, tx session.Tx) error {
		return tx.Insert(ctx, rec)
	})
	if err != nil {
		t.Fatalf("insert %s: %v", rec.JTI, err)
	}
}

func TestInsertRejectsDuplicateJTI(t *testing.T) {
	s := New()
	now := time.Now()
	insert(t, s, newRecord("A", "F1", session.StatusActive, now))

	err := s.WithTx(context.Background(), func(ctx context.Context, tx session.Tx) error {
		return tx.Insert(ctx, newRecord("A", "F2", session.StatusActive, now))
	})
	if !errors.Is(err, session.ErrDuplicateJTI) {
		t.Fatalf("expected ErrDuplicateJTI, got %v", err)
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 record, got %d", s.Len())
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	s := New()
	now := time.Now()
	insert(t, s, newRecord("A", "F1", session.StatusActive, now))

	boom := errors.New("boom")
	err := s.WithTx(context.Background(), func(ctx context.Context, tx session.Tx) error {
		rec, err := tx.LockByJTI(ctx, "A")
		if err != nil {
			return err
		}
		if err := tx.MarkRotated(ctx, rec.ID, now, "10.0.0.1"); err != nil {
			return err
		}
		if err := tx.Insert(ctx, newRecord("B", "F1", session.StatusActive, now)); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	rec, err := s.FindByJTI(context.Background(), "A")
	if err != nil {
		t.Fatalf("find A: %v", err)
	}
	if rec.Status != session.StatusActive || rec.LastUsedAt != nil {
		t.Fatalf("rollback leaked writes: %+v", rec)
	}
	if _, err := s.FindByJTI(context.Background(), "B"); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected B to be absent, got %v", err)
	}
}

func TestTxReadsItsOwnWrites(t *testing.T) {
	s := New()
	now := time.Now()

	err := s.WithTx(context.Background(), func(ctx context.Context, tx session.Tx) error {
		if err := tx.Insert(ctx, newRecord("A", "F1", session.StatusActive, now)); err != nil {
			return err
		}
		rec, err := tx.LockByJTI(ctx, "A")
		if err != nil {
			return err
		}
		if rec.ID == 0 {
			t.Fatalf("expected assigned id")
		}
		n, err := tx.RevokeFamily(ctx, "F1", now)
		if err != nil {
			return err
		}
		if n != 1 {
			t.Fatalf("expected 1 revoked, got %d", n)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}

	rec, _ := s.FindByJTI(context.Background(), "A")
	if rec.Status != session.StatusRevoked {
		t.Fatalf("expected REVOKED, got %s", rec.Status)
	}
}

func TestMarkExpiredOnlyTouchesActivePastExpiry(t *testing.T) {
	s := New()
	now := time.Now()

	expired := newRecord("A", "F1", session.StatusActive, now.Add(-15*24*time.Hour))
	fresh := newRecord("B", "F2", session.StatusActive, now)
	rotated := newRecord("C", "F3", session.StatusRotated, now.Add(-15*24*time.Hour))
	insert(t, s, expired)
	insert(t, s, fresh)
	insert(t, s, rotated)

	n, err := s.MarkExpired(context.Background(), now)
	if err != nil {
		t.Fatalf("mark expired: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 expired, got %d", n)
	}

	got, _ := s.FindByJTI(context.Background(), "A")
	if got.Status != session.StatusExpired {
		t.Fatalf("expected EXPIRED, got %s", got.Status)
	}
	got, _ = s.FindByJTI(context.Background(), "C")
	if got.Status != session.StatusRotated {
		t.Fatalf("rotated record changed: %s", got.Status)
	}

	n, _ = s.MarkExpired(context.Background(), now)
	if n != 0 {
		t.Fatalf("second run should be a no-op, got %d", n)
	}
}

func TestHardDeleteInactiveKeepsActive(t *testing.T) {
	s := New()
	now := time.Now()
	old := now.Add(-40 * 24 * time.Hour)

	insert(t, s, newRecord("active", "F1", session.StatusActive, old))
	insert(t, s, newRecord("revoked", "F2", session.StatusRevoked, old))

	n, err := s.HardDeleteInactive(context.Background(), now.Add(-30*24*time.Hour))
	if err != nil {
		t.Fatalf("hard delete: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 deleted, got %d", n)
	}
	if _, err := s.FindByJTI(context.Background(), "active"); err != nil {
		t.Fatalf("active record must survive: %v", err)
	}
	if _, err := s.FindByJTI(context.Background(), "revoked"); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("revoked record should be gone, got %v", err)
	}
}

func TestListFamilyOrdersByID(t *testing.T) {
	s := New()
	now := time.Now()
	insert(t, s, newRecord("A", "F1", session.StatusRotated, now))
	insert(t, s, newRecord("X", "F2", session.StatusActive, now))
	insert(t, s, newRecord("B", "F1", session.StatusActive, now))

	fam, err := s.ListFamily(context.Background(), "F1")
	if err != nil {
		t.Fatalf("list family: %v", err)
	}
	if len(fam) != 2 || fam[0].JTI != "A" || fam[1].JTI != "B" {
		t.Fatalf("unexpected family: %+v", fam)
	}
}
