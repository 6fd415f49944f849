package feedsync

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebouncerPromotesOnlyTheSurvivingValue(t *testing.T) {
	var mu sync.Mutex
	var promoted []string
	d := NewDebouncer(30*time.Millisecond, func(term string) {
		mu.Lock()
		promoted = append(promoted, term)
		mu.Unlock()
	})
	defer d.Stop()

	// A burst of keystrokes inside the quiet interval.
	d.SetQuery("g")
	d.SetQuery("go")
	d.SetQuery("gol")
	d.SetQuery("gola")
	d.SetQuery("golang")

	require.True(t, waitFor(time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(promoted) == 1
	}))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"golang"}, promoted, "only the value that survived the quiet interval is promoted")
}

func TestDebouncerSeparateBursts(t *testing.T) {
	var mu sync.Mutex
	var promoted []string
	d := NewDebouncer(20*time.Millisecond, func(term string) {
		mu.Lock()
		promoted = append(promoted, term)
		mu.Unlock()
	})
	defer d.Stop()

	d.SetQuery("first")
	require.True(t, waitFor(time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(promoted) == 1
	}))

	d.SetQuery("second")
	require.True(t, waitFor(time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(promoted) == 2
	}))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"first", "second"}, promoted)
}

func TestDebouncerStopDropsPending(t *testing.T) {
	var mu sync.Mutex
	count := 0
	d := NewDebouncer(20*time.Millisecond, func(term string) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	d.SetQuery("doomed")
	d.Stop()

	time.Sleep(60 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, count, "a stopped debouncer promotes nothing")
}

func TestDebouncerSupersededTimerNeverPromotesAfterReplacement(t *testing.T) {
	var mu sync.Mutex
	var promoted []string
	d := NewDebouncer(time.Millisecond, func(term string) {
		mu.Lock()
		promoted = append(promoted, term)
		mu.Unlock()
	})
	defer d.Stop()

	// Land each replacement right on the firing edge of its predecessor's
	// timer. A callback that fired before the replacement's Stop call may
	// still promote first, but must never promote after the value that
	// superseded it.
	for i := 0; i < 50; i++ {
		stale := fmt.Sprintf("q%d-old", i)
		fresh := fmt.Sprintf("q%d-new", i)
		d.SetQuery(stale)
		time.Sleep(time.Millisecond)
		d.SetQuery(fresh)
		require.True(t, waitFor(time.Second, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(promoted) > 0 && promoted[len(promoted)-1] == fresh
		}))
	}

	time.Sleep(10 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	index := make(map[string]int, len(promoted))
	for i, term := range promoted {
		index[term] = i
	}
	for i := 0; i < 50; i++ {
		stalePos, staleSeen := index[fmt.Sprintf("q%d-old", i)]
		freshPos, freshSeen := index[fmt.Sprintf("q%d-new", i)]
		require.True(t, freshSeen)
		if staleSeen {
			assert.Less(t, stalePos, freshPos, "superseded term promoted after its replacement")
		}
	}
}

func TestDebouncerFlushPromotesImmediately(t *testing.T) {
	var mu sync.Mutex
	var promoted []string
	d := NewDebouncer(10*time.Second, func(term string) {
		mu.Lock()
		promoted = append(promoted, term)
		mu.Unlock()
	})
	defer d.Stop()

	d.SetQuery("typing")
	d.Flush("submitted")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"submitted"}, promoted)
}
