// internal/ratelimit/window_test.go
package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

func TestWindow_SixthRequestRejected(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	w := NewWindow(5, time.Hour).WithClock(clock.Now)

	for i := 0; i < 5; i++ {
		assert.True(t, w.Allow("a@example.com"), "request %d", i+1)
		clock.Advance(time.Minute)
	}
	assert.False(t, w.Allow("a@example.com"))
	assert.Equal(t, 5, w.Count("a@example.com"))

	// Other keys are independent.
	assert.True(t, w.Allow("b@example.com"))
}

func TestWindow_AdmitsAfterWindowElapses(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	w := NewWindow(5, time.Hour).WithClock(clock.Now)

	for i := 0; i < 5; i++ {
		assert.True(t, w.Allow("a@example.com"))
	}
	assert.False(t, w.Allow("a@example.com"))

	clock.Advance(3599 * time.Second)
	assert.False(t, w.Allow("a@example.com"))

	clock.Advance(time.Second)
	assert.True(t, w.Allow("a@example.com"))
	assert.Equal(t, 1, w.Count("a@example.com"))
}

func TestWindow_Sweep(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	w := NewWindow(2, time.Minute).WithClock(clock.Now)

	w.Allow("old")
	clock.Advance(45 * time.Second)
	w.Allow("fresh")
	clock.Advance(30 * time.Second)

	assert.Equal(t, 1, w.Sweep())
	assert.Equal(t, 1, w.Keys())
}

func TestWindow_Concurrent(t *testing.T) {
	w := NewWindow(50, time.Hour)

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if w.Allow("k") {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, admitted)
}
