package custody

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

func TestLocalLockSerializes(t *testing.T) {
	lock := NewLocalLock()
	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := lock.Acquire(context.Background())
			if err != nil {
				t.Errorf("Acquire() error = %v", err)
				return
			}
			defer release()
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()
	check.Equal(t, int32(1), maxInside)
}

func TestLocalLockHonoursContext(t *testing.T) {
	lock := NewLocalLock()
	release, err := lock.Acquire(context.Background())
	assert.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = lock.Acquire(ctx)
	check.True(t, errors.Is(err, ErrLockUnavailable))
}

func TestLocalLockDoubleReleaseIsHarmless(t *testing.T) {
	lock := NewLocalLock()
	release, err := lock.Acquire(context.Background())
	assert.NoError(t, err)
	release()
	release()

	release2, err := lock.Acquire(context.Background())
	assert.NoError(t, err)
	release2()
}
