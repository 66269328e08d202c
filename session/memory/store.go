// Package memory provides an in-process implementation of session.Store.
// It is suitable for tests, load generation and single-instance deployments.
//
// Transactions are serialised by one store-wide mutex: a unit of work sees a
// consistent view and its writes become visible only on commit. WithTx must
// not be called re-entrantly from inside a callback.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/realchillguyclub/backend-sub000/session"
)

var _ session.Store = (*Store)(nil)

// Store keeps refresh-token records in maps keyed by id and jti.
type Store struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*session.Record
	byJTI  map[string]int64
}

// New returns an empty store.
func New() *Store {
	return &Store{
		byID:  make(map[int64]*session.Record),
		byJTI: make(map[string]int64),
	}
}

// WithTx runs fn against a staged view and applies the staged writes when fn
// returns nil.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx session.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		store:   s,
		nextID:  s.nextID,
		staged:  make(map[int64]*session.Record),
		newJTIs: make(map[string]int64),
	}

	// A panicking callback skips commit; the staged writes are dropped.
	if err := fn(ctx, tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (s *Store) FindByJTI(ctx context.Context, jti string) (*session.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byJTI[jti]
	if !ok {
		return nil, session.ErrNotFound
	}
	return s.byID[id].Clone(), nil
}

func (s *Store) FindByID(ctx context.Context, id int64) (*session.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return nil, session.ErrNotFound
	}
	return rec.Clone(), nil
}

// ListFamily returns the family ordered by id, root first.
func (s *Store) ListFamily(ctx context.Context, familyID string) ([]*session.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*session.Record
	for _, rec := range s.byID {
		if rec.FamilyID == familyID {
			out = append(out, rec.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) MarkExpired(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, rec := range s.byID {
		if rec.Status == session.StatusActive && rec.ExpiryAt.Before(now) {
			rec.Status = session.StatusExpired
			rec.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

func (s *Store) HardDeleteInactive(ctx context.Context, threshold time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, rec := range s.byID {
		switch rec.Status {
		case session.StatusRevoked, session.StatusExpired, session.StatusRotated:
		default:
			continue
		}
		if !rec.UpdatedAt.Before(threshold) {
			continue
		}
		delete(s.byJTI, rec.JTI)
		delete(s.byID, id)
		n++
	}
	return n, nil
}

// Len reports the number of stored records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

type memTx struct {
	store   *Store
	nextID  int64
	staged  map[int64]*session.Record
	newJTIs map[string]int64
}

// get returns the staged copy of id, staging it on first access.
func (t *memTx) get(id int64) (*session.Record, bool) {
	if rec, ok := t.staged[id]; ok {
		return rec, true
	}
	rec, ok := t.store.byID[id]
	if !ok {
		return nil, false
	}
	clone := rec.Clone()
	t.staged[id] = clone
	return clone, true
}

func (t *memTx) lookupJTI(jti string) (int64, bool) {
	if id, ok := t.newJTIs[jti]; ok {
		return id, true
	}
	id, ok := t.store.byJTI[jti]
	return id, ok
}

func (t *memTx) Insert(ctx context.Context, rec *session.Record) error {
	if _, exists := t.lookupJTI(rec.JTI); exists {
		return session.ErrDuplicateJTI
	}
	t.nextID++
	rec.ID = t.nextID
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.IssuedAt
	}
	t.staged[rec.ID] = rec.Clone()
	t.newJTIs[rec.JTI] = rec.ID
	return nil
}

func (t *memTx) LockByJTI(ctx context.Context, jti string) (*session.Record, error) {
	id, ok := t.lookupJTI(jti)
	if !ok {
		return nil, session.ErrNotFound
	}
	rec, ok := t.get(id)
	if !ok {
		return nil, session.ErrNotFound
	}
	return rec.Clone(), nil
}

func (t *memTx) MarkRotated(ctx context.Context, id int64, usedAt time.Time, ip string) error {
	rec, ok := t.get(id)
	if !ok {
		return session.ErrNotFound
	}
	used := usedAt
	rec.Status = session.StatusRotated
	rec.LastUsedAt = &used
	rec.LastUsedIP = ip
	rec.UpdatedAt = usedAt
	return nil
}

func (t *memTx) RevokeFamily(ctx context.Context, familyID string, at time.Time) (int64, error) {
	return t.revokeWhere(at, func(rec *session.Record) bool {
		return rec.FamilyID == familyID &&
			(rec.Status == session.StatusActive || rec.Status == session.StatusRotated)
	}), nil
}

func (t *memTx) RevokeByUserAndDevice(ctx context.Context, userID string, mobileType session.MobileType, at time.Time) (int64, error) {
	return t.revokeWhere(at, func(rec *session.Record) bool {
		return rec.UserID == userID && rec.MobileType == mobileType && rec.Status == session.StatusActive
	}), nil
}

func (t *memTx) RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int64, error) {
	return t.revokeWhere(at, func(rec *session.Record) bool {
		return rec.UserID == userID && rec.Status == session.StatusActive
	}), nil
}

func (t *memTx) revokeWhere(at time.Time, match func(*session.Record) bool) int64 {
	ids := make([]int64, 0)
	for id := range t.store.byID {
		if _, ok := t.staged[id]; !ok {
			ids = append(ids, id)
		}
	}
	for id := range t.staged {
		ids = append(ids, id)
	}

	var n int64
	for _, id := range ids {
		rec, ok := t.get(id)
		if !ok || !match(rec) {
			continue
		}
		rec.Status = session.StatusRevoked
		rec.UpdatedAt = at
		n++
	}
	return n
}

func (t *memTx) commit() {
	s := t.store
	for id, rec := range t.staged {
		s.byID[id] = rec
	}
	for jti, id := range t.newJTIs {
		s.byJTI[jti] = id
	}
	s.nextID = t.nextID
}
