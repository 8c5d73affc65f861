package memo

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func TestDoMemoizesUntilExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	c := New[string](clock.Now)
	var loads int
	load := func() Fill[string] {
		loads++
		return Fill[string]{Value: "v", Present: true, TTL: time.Hour}
	}

	for i := 0; i < 3; i++ {
		v, present := c.Do(Key("park", "K-1234"), load)
		if v != "v" || !present {
			t.Fatalf("unexpected result %q present=%v", v, present)
		}
	}
	if loads != 1 {
		t.Fatalf("expected 1 load inside TTL, got %d", loads)
	}

	clock.Advance(time.Hour + time.Second)
	c.Do(Key("park", "K-1234"), load)
	if loads != 2 {
		t.Fatalf("expected reload after TTL, got %d loads", loads)
	}
}

func TestDoDoesNotRememberZeroTTL(t *testing.T) {
	c := New[int](nil)
	var loads int
	load := func() Fill[int] {
		loads++
		return Fill[int]{}
	}
	c.Do("k", load)
	c.Do("k", load)
	if loads != 2 {
		t.Fatalf("expected uncached loads, got %d", loads)
	}
	if c.Len() != 0 {
		t.Fatalf("expected empty cache, got %d", c.Len())
	}
}

func TestDoRemembersAbsentResults(t *testing.T) {
	c := New[*int](nil)
	var loads int
	load := func() Fill[*int] {
		loads++
		return Fill[*int]{Present: false, TTL: time.Minute}
	}
	if v, present := c.Do("missing", load); v != nil || present {
		t.Fatalf("expected absent result")
	}
	c.Do("missing", load)
	if loads != 1 {
		t.Fatalf("expected absent result to be memoized, got %d loads", loads)
	}
}

func TestDoCollapsesConcurrentMisses(t *testing.T) {
	c := New[int](nil)
	var loads atomic.Int32
	release := make(chan struct{})
	load := func() Fill[int] {
		loads.Add(1)
		<-release
		return Fill[int]{Value: 7, Present: true, TTL: time.Hour}
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if v, _ := c.Do("area|US-CA", load); v != 7 {
				t.Errorf("expected 7, got %d", v)
			}
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	if got := loads.Load(); got != 1 {
		t.Fatalf("expected a single load, got %d", got)
	}
}

func TestKey(t *testing.T) {
	if got := Key("stats", "W1AW"); got != "stats|W1AW" {
		t.Fatalf("unexpected key %q", got)
	}
	if got := Key("spots"); got != "spots" {
		t.Fatalf("unexpected key %q", got)
	}
}
