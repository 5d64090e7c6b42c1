package query

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func counted(calls *int32, value string) func(context.Context) (string, error) {
	return func(context.Context) (string, error) {
		atomic.AddInt32(calls, 1)
		return value, nil
	}
}

func TestFetch_DisabledSkipsRemoteCall(t *testing.T) {
	cache := NewCache(Options{})
	var calls int32

	got, err := Fetch(context.Background(), cache, Query[string]{
		Key: NewKey("badge", "1"),
		Fn:  counted(&calls, "value"),
	})

	require.NoError(t, err)
	assert.Equal(t, "", got)
	assert.Zero(t, atomic.LoadInt32(&calls))
	assert.Zero(t, cache.Len())
}

func TestFetch_ServesFreshEntryFromCache(t *testing.T) {
	cache := NewCache(Options{})
	var calls int32
	q := Query[string]{Key: NewKey("badge", "1"), Enabled: true, Fn: counted(&calls, "v1")}

	for i := 0; i < 3; i++ {
		got, err := Fetch(context.Background(), cache, q)
		require.NoError(t, err)
		assert.Equal(t, "v1", got)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	entry, ok := cache.Peek(q.Key)
	require.True(t, ok)
	assert.Equal(t, StatusSuccess, entry.Status)
	assert.False(t, entry.Stale)
	assert.False(t, entry.Fetching)
}

func TestFetch_RefreshForcesRemoteCall(t *testing.T) {
	cache := NewCache(Options{})
	var calls int32
	q := Query[string]{Key: NewKey("allBadges"), Enabled: true, Fn: counted(&calls, "v")}

	_, err := Fetch(context.Background(), cache, q)
	require.NoError(t, err)
	q.Refresh = true
	_, err = Fetch(context.Background(), cache, q)
	require.NoError(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestFetch_StaleTimeExpiresEntries(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cache := NewCache(Options{
		StaleTime: time.Minute,
		Now:       func() time.Time { return now },
	})
	var calls int32
	q := Query[string]{Key: NewKey("allBadges"), Enabled: true, Fn: counted(&calls, "v")}

	_, err := Fetch(context.Background(), cache, q)
	require.NoError(t, err)
	now = now.Add(30 * time.Second)
	_, err = Fetch(context.Background(), cache, q)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	now = now.Add(time.Minute)
	entry, _ := cache.Peek(q.Key)
	assert.True(t, entry.Stale)

	_, err = Fetch(context.Background(), cache, q)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestFetch_DeduplicatesConcurrentReads(t *testing.T) {
	cache := NewCache(Options{})
	var calls int32
	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once

	q := Query[string]{
		Key:     NewKey("callerBadges", "p1"),
		Enabled: true,
		Fn: func(context.Context) (string, error) {
			atomic.AddInt32(&calls, 1)
			once.Do(func() { close(started) })
			<-release
			return "shared", nil
		},
	}

	const readers = 8
	var wg sync.WaitGroup
	results := make([]string, readers)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _ = Fetch(context.Background(), cache, q)
	}()
	<-started
	for i := 1; i < readers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = Fetch(context.Background(), cache, q)
		}(i)
	}
	// Give the followers a chance to join the in-flight call.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, r := range results {
		assert.Equal(t, "shared", r)
	}
}

func TestFetch_ErrorKeepsPreviousValue(t *testing.T) {
	cache := NewCache(Options{})
	boom := errors.New("replica unavailable")
	key := NewKey("badge", "3")

	_, err := Fetch(context.Background(), cache, Query[string]{
		Key: key, Enabled: true, Fn: func(context.Context) (string, error) { return "old", nil },
	})
	require.NoError(t, err)
	cache.Invalidate(NewKey("badge"))

	_, err = Fetch(context.Background(), cache, Query[string]{
		Key: key, Enabled: true, Fn: func(context.Context) (string, error) { return "", boom },
	})
	assert.ErrorIs(t, err, boom)

	entry, ok := cache.Peek(key)
	require.True(t, ok)
	assert.Equal(t, StatusError, entry.Status)
	assert.Equal(t, "old", entry.Value)
	assert.ErrorIs(t, entry.Err, boom)
}

func TestInvalidate_MatchesPrefixOnly(t *testing.T) {
	cache := NewCache(Options{})
	var calls int32
	for _, k := range []Key{NewKey("badge", "1"), NewKey("badge", "2"), NewKey("callerBadges", "p")} {
		_, err := Fetch(context.Background(), cache, Query[string]{Key: k, Enabled: true, Fn: counted(&calls, "v")})
		require.NoError(t, err)
	}

	assert.Equal(t, 2, cache.Invalidate(NewKey("badge")))

	b1, _ := cache.Peek(NewKey("badge", "1"))
	cb, _ := cache.Peek(NewKey("callerBadges", "p"))
	assert.True(t, b1.Stale)
	assert.False(t, cb.Stale)
	assert.Equal(t, 0, cache.Invalidate(NewKey("badges")))
}

func TestInvalidate_DuringFlightStoresStaleValue(t *testing.T) {
	cache := NewCache(Options{})
	key := NewKey("callerBadges", "p")
	release := make(chan struct{})
	started := make(chan struct{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = Fetch(context.Background(), cache, Query[string]{
			Key: key, Enabled: true,
			Fn: func(context.Context) (string, error) {
				close(started)
				<-release
				return "before-mint", nil
			},
		})
	}()
	<-started
	cache.Invalidate(NewKey("callerBadges"))

	var calls int32
	got, err := Fetch(context.Background(), cache, Query[string]{Key: key, Enabled: true, Fn: counted(&calls, "after-mint")})
	require.NoError(t, err)
	assert.Equal(t, "after-mint", got)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	close(release)
	<-done

	entry, _ := cache.Peek(key)
	assert.Equal(t, "after-mint", entry.Value)
	assert.False(t, entry.Stale)
}

func TestInvalidate_InFlightResultIsStaleWhenNothingNewer(t *testing.T) {
	cache := NewCache(Options{})
	key := NewKey("badge", "4")
	release := make(chan struct{})
	started := make(chan struct{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = Fetch(context.Background(), cache, Query[string]{
			Key: key, Enabled: true,
			Fn: func(context.Context) (string, error) {
				close(started)
				<-release
				return "old", nil
			},
		})
	}()
	<-started
	cache.Invalidate(NewKey("badge"))
	close(release)
	<-done

	entry, _ := cache.Peek(key)
	assert.Equal(t, "old", entry.Value)
	assert.True(t, entry.Stale)
}

func TestFetch_RefreshWinsOverOlderInFlightCall(t *testing.T) {
	cache := NewCache(Options{})
	key := NewKey("allBadges")
	release := make(chan struct{})
	started := make(chan struct{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = Fetch(context.Background(), cache, Query[string]{
			Key: key, Enabled: true,
			Fn: func(context.Context) (string, error) {
				close(started)
				<-release
				return "older", nil
			},
		})
	}()
	<-started

	var calls int32
	got, err := Fetch(context.Background(), cache, Query[string]{
		Key: key, Enabled: true, Refresh: true, Fn: counted(&calls, "refreshed"),
	})
	require.NoError(t, err)
	assert.Equal(t, "refreshed", got)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	close(release)
	<-done

	entry, ok := cache.Peek(key)
	require.True(t, ok)
	assert.Equal(t, "refreshed", entry.Value)
	assert.False(t, entry.Stale)
	assert.False(t, entry.Fetching)
}

func TestFetch_AbandonedReadStillPopulatesCache(t *testing.T) {
	cache := NewCache(Options{})
	key := NewKey("allBadges")
	release := make(chan struct{})
	finished := make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-time.After(10 * time.Millisecond)
		cancel()
	}()

	_, err := Fetch(ctx, cache, Query[string]{
		Key: key, Enabled: true,
		Fn: func(callCtx context.Context) (string, error) {
			defer close(finished)
			<-release
			return "late", callCtx.Err()
		},
	})
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
	<-finished
	require.Eventually(t, func() bool {
		entry, ok := cache.Peek(key)
		return ok && entry.Status == StatusSuccess
	}, time.Second, 5*time.Millisecond)

	entry, _ := cache.Peek(key)
	assert.Equal(t, "late", entry.Value)
}

func TestRemoveAndClear(t *testing.T) {
	cache := NewCache(Options{})
	var calls int32
	for _, k := range []Key{NewKey("badge", "1"), NewKey("userProfile", "p")} {
		_, err := Fetch(context.Background(), cache, Query[string]{Key: k, Enabled: true, Fn: counted(&calls, "v")})
		require.NoError(t, err)
	}

	assert.Equal(t, 1, cache.Remove(NewKey("badge")))
	_, ok := cache.Peek(NewKey("badge", "1"))
	assert.False(t, ok)

	cache.Clear()
	assert.Zero(t, cache.Len())
}

type recordingObserver struct {
	mu                   sync.Mutex
	hits, misses, errors int
	invalidated          int
}

func (o *recordingObserver) Hit(string)  { o.mu.Lock(); o.hits++; o.mu.Unlock() }
func (o *recordingObserver) Miss(string) { o.mu.Lock(); o.misses++; o.mu.Unlock() }
func (o *recordingObserver) Invalidated(_ string, n int) {
	o.mu.Lock()
	o.invalidated += n
	o.mu.Unlock()
}
func (o *recordingObserver) FetchError(string) { o.mu.Lock(); o.errors++; o.mu.Unlock() }

func TestObserver_ReceivesActivity(t *testing.T) {
	obs := &recordingObserver{}
	cache := NewCache(Options{Observer: obs})
	var calls int32
	q := Query[string]{Key: NewKey("badge", "9"), Enabled: true, Fn: counted(&calls, "v")}

	_, _ = Fetch(context.Background(), cache, q)
	_, _ = Fetch(context.Background(), cache, q)
	cache.Invalidate(NewKey("badge"))
	_, _ = Fetch(context.Background(), cache, Query[string]{
		Key: q.Key, Enabled: true, Fn: func(context.Context) (string, error) { return "", errors.New("down") },
	})

	assert.Equal(t, 1, obs.hits)
	assert.Equal(t, 2, obs.misses)
	assert.Equal(t, 1, obs.invalidated)
	assert.Equal(t, 1, obs.errors)
}

func TestKey(t *testing.T) {
	k := NewKey("badge", "7")
	assert.Equal(t, "badge", k.Operation())
	assert.Equal(t, "badge/7", k.String())
	assert.True(t, k.HasPrefix(NewKey("badge")))
	assert.False(t, k.HasPrefix(NewKey("badge", "7", "x")))
	assert.Equal(t, "", Key(nil).Operation())
}
