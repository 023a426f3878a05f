package registry

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type manualClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newClock() *manualClock {
	return &manualClock{t: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func TestCreateCancelRemove(t *testing.T) {
	t.Parallel()

	r := New(Config{Clock: newClock()})
	tok, err := r.Create("req-1")
	require.NoError(t, err)
	require.False(t, tok.Cancelled())

	_, err = r.Create("req-1")
	require.ErrorIs(t, err, ErrDuplicateID)

	require.True(t, r.Cancel("req-1"))
	require.True(t, tok.Cancelled())
	select {
	case <-tok.Done():
	default:
		t.Fatal("done channel should be closed after cancel")
	}
	require.False(t, tok.Cancel(), "second cancel is a no-op")

	require.False(t, r.Cancel("missing"))
	r.Remove("req-1")
	r.Remove("req-1")
	require.Equal(t, 0, r.Len())
}

func TestCancelAll(t *testing.T) {
	t.Parallel()

	r := New(Config{Clock: newClock()})
	var tokens []*Token
	for i := range 5 {
		tok, err := r.Create(fmt.Sprintf("req-%d", i))
		require.NoError(t, err)
		tokens = append(tokens, tok)
	}
	require.Equal(t, 5, r.CancelAll())
	for _, tok := range tokens {
		require.True(t, tok.Cancelled())
	}
}

func TestCapacityEvictsOldest(t *testing.T) {
	t.Parallel()

	clock := newClock()
	r := New(Config{Capacity: 3, Clock: clock})
	for i := range 4 {
		_, err := r.Create(fmt.Sprintf("req-%d", i))
		require.NoError(t, err)
		clock.Advance(time.Second)
	}
	require.Equal(t, 3, r.Len())
	_, ok := r.Get("req-0")
	require.False(t, ok)
	_, ok = r.Get("req-3")
	require.True(t, ok)
}

func TestRegistryBoundAfterManyRequests(t *testing.T) {
	t.Parallel()

	clock := newClock()
	r := New(Config{Clock: clock})
	for i := range 1500 {
		_, err := r.Create(fmt.Sprintf("req-%d", i))
		require.NoError(t, err)
		clock.Advance(time.Millisecond)
		require.LessOrEqual(t, r.Len(), min(i+1, 1000))
	}
}

func TestEvictByTTL(t *testing.T) {
	t.Parallel()

	clock := newClock()
	r := New(Config{Clock: clock})
	_, err := r.Create("old")
	require.NoError(t, err)
	clock.Advance(30 * time.Minute)
	_, err = r.Create("young")
	require.NoError(t, err)

	clock.Advance(31 * time.Minute)
	require.Equal(t, 1, r.Evict())
	_, ok := r.Get("old")
	require.False(t, ok)
	_, ok = r.Get("young")
	require.True(t, ok)
}

func TestTTLCappedAtOneHour(t *testing.T) {
	t.Parallel()

	clock := newClock()
	r := New(Config{Clock: clock, TTL: 24 * time.Hour})
	_, err := r.Create("req")
	require.NoError(t, err)

	clock.Advance(61 * time.Minute)
	require.Equal(t, 1, r.Evict())
	_, ok := r.Get("req")
	require.False(t, ok)
}

func TestBackgroundEvictor(t *testing.T) {
	t.Parallel()

	clock := newClock()
	r := New(Config{Clock: clock, SweepInterval: 5 * time.Millisecond})
	r.Start()
	r.Start()

	_, err := r.Create("stale")
	require.NoError(t, err)
	clock.Advance(2 * time.Hour)

	require.Eventually(t, func() bool { return r.Len() == 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, r.Close(context.Background()))
	require.NoError(t, r.Close(context.Background()))
}

func TestCloseWithoutStart(t *testing.T) {
	t.Parallel()

	r := New(Config{})
	require.NoError(t, r.Close(context.Background()))
	r.Start()
}

func TestConcurrentAccess(t *testing.T) {
	t.Parallel()

	r := New(Config{Clock: newClock()})
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("req-%d", i)
			tok, err := r.Create(id)
			if err != nil {
				return
			}
			r.Cancel(id)
			r.CancelAll()
			_ = tok.Cancelled()
			r.Evict()
			r.Remove(id)
		}(i)
	}
	wg.Wait()
	require.Equal(t, 0, r.Len())
}
