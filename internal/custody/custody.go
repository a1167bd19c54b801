// Package custody serializes every movement of money out of, or into, the
// server's custodial account. Settlements and refunds share one nonce, so
// only one of them may be in flight at a time.
package custody

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrLockUnavailable = errors.New("custody_lock_unavailable")

// Locker hands out the single custody critical section. release must be
// called exactly once; it is safe to defer.
type Locker interface {
	Acquire(ctx context.Context) (release func(), err error)
}

// LocalLock is a process-wide lock that honours context cancellation while
// waiting, which sync.Mutex does not.
type LocalLock struct {
	sem chan struct{}
}

func NewLocalLock() *LocalLock {
	return &LocalLock{sem: make(chan struct{}, 1)}
}

func (l *LocalLock) Acquire(ctx context.Context) (func(), error) {
	select {
	case l.sem <- struct{}{}:
		return l.releaseOnce(), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrLockUnavailable, ctx.Err())
	}
}

func (l *LocalLock) releaseOnce() func() {
	released := false
	return func() {
		if released {
			return
		}
		released = true
		<-l.sem
	}
}

// AdvisoryKey is the pg_advisory_lock key shared by every instance pointed
// at the same custodial wallet.
const AdvisoryKey int64 = 0x5e771e

// PGLock is a session-level Postgres advisory lock held on a dedicated pool
// connection for the duration of the critical section.
type PGLock struct {
	pool *pgxpool.Pool
	key  int64
}

func NewPGLock(pool *pgxpool.Pool, key int64) *PGLock {
	return &PGLock{pool: pool, key: key}
}

func (l *PGLock) Acquire(ctx context.Context) (func(), error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLockUnavailable, err)
	}
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, l.key); err != nil {
		conn.Release()
		return nil, fmt.Errorf("%w: %v", ErrLockUnavailable, err)
	}
	released := false
	return func() {
		if released {
			return
		}
		released = true
		// Unlock on a fresh context so a cancelled request still frees the lock.
		if _, err := conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, l.key); err != nil {
			// Dropping the session releases every advisory lock it held.
			_ = conn.Conn().Close(context.Background())
		}
		conn.Release()
	}, nil
}
