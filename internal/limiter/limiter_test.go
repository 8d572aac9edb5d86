package limiter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireNeverExceedsCapacity(t *testing.T) {
	l := New(3)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(context.Background())
			require.NoError(t, err)
			time.Sleep(2 * time.Millisecond)
			release()
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, l.HighWater(), 3)
	assert.Equal(t, 0, l.InFlight())
	assert.Equal(t, 3, l.Capacity())
}

func TestAcquireRespectsContext(t *testing.T) {
	l := New(1)
	release, err := l.Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, l.InFlight())
}

func TestDoubleReleaseFreesOneSlot(t *testing.T) {
	l := New(1)

	release, err := l.Acquire(context.Background())
	require.NoError(t, err)
	release()
	release()
	assert.Equal(t, 0, l.InFlight())

	release2, err := l.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, l.InFlight())
	release2()
	assert.Equal(t, 0, l.InFlight())
}

func TestNewClampsCapacity(t *testing.T) {
	assert.Equal(t, 1, New(0).Capacity())
}
