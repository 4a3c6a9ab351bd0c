package governor

import (
	"context"
	"sync"

	"gorm.io/gorm"
)

// Advisory lock keys, carried over unchanged from the original
// implementation's two coordination points: the full tick and the
// gateway-patch dispatch sub-step.
const (
	tickLockKey  = 424242
	patchLockKey = 1701
)

// locker coordinates concurrent governor instances so only one tick runs at
// a time across the fleet.
type locker interface {
	tryLock(ctx context.Context, key int64) (bool, error)
	unlock(ctx context.Context, key int64) error
}

// newLocker picks a Postgres advisory lock when the backing store supports
// one, falling back to an in-process mutex for the sqlite development
// database (which has no equivalent primitive and never has more than one
// process to coordinate with anyway).
func newLocker(gormDB *gorm.DB) locker {
	if gormDB.Dialector.Name() == "postgres" {
		return &pgLocker{db: gormDB}
	}
	return &mutexLocker{}
}

type pgLocker struct {
	db *gorm.DB
}

func (l *pgLocker) tryLock(ctx context.Context, key int64) (bool, error) {
	var acquired bool
	err := l.db.WithContext(ctx).Raw("SELECT pg_try_advisory_lock(?)", key).Scan(&acquired).Error
	if err != nil {
		return false, err
	}
	return acquired, nil
}

func (l *pgLocker) unlock(ctx context.Context, key int64) error {
	return l.db.WithContext(ctx).Exec("SELECT pg_advisory_unlock(?)", key).Error
}

// mutexLocker gives sqlite deployments the same non-reentrant,
// single-holder semantics via an in-process mutex keyed by lock id.
type mutexLocker struct {
	mu   sync.Mutex
	held map[int64]bool
}

func (l *mutexLocker) tryLock(_ context.Context, key int64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil {
		l.held = make(map[int64]bool)
	}
	if l.held[key] {
		return false, nil
	}
	l.held[key] = true
	return true, nil
}

func (l *mutexLocker) unlock(_ context.Context, key int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	return nil
}
