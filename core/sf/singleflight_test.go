package sf

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSingleflight_Dedupes(t *testing.T) {
	g := New[int]()

	var calls atomic.Int32
	var sharedCount atomic.Int32

	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			v, shared, err := g.Do("key", func() (int, error) {
				calls.Add(1)
				time.Sleep(30 * time.Millisecond)
				return 42, nil
			})
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if v != 42 {
				t.Errorf("expected 42, got %d", v)
			}
			if shared {
				sharedCount.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("expected 1 call, got %d", calls.Load())
	}
	if sharedCount.Load() == 0 {
		t.Error("expected at least one shared result")
	}
}

func TestSingleflight_ErrorShared(t *testing.T) {
	g := New[string]()

	wantErr := errors.New("boom")
	_, _, err := g.Do("key", func() (string, error) {
		return "", wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("expected %v, got %v", wantErr, err)
	}
}

func TestSingleflight_Forget(t *testing.T) {
	g := New[int]()

	release := make(chan struct{})
	first := make(chan int, 1)
	running := make(chan struct{})

	go func() {
		v, _, _ := g.Do("key", func() (int, error) {
			close(running)
			<-release
			return 1, nil
		})
		first <- v
	}()
	<-running

	g.Forget("key")

	// the forgotten flight keeps running; this call must not join it
	done := make(chan int, 1)
	go func() {
		v, _, _ := g.Do("key", func() (int, error) { return 2, nil })
		done <- v
	}()

	select {
	case v := <-done:
		if v != 2 {
			t.Fatalf("fresh call returned %d, want 2", v)
		}
	case <-time.After(time.Second):
		t.Fatal("second Do joined the forgotten flight")
	}

	close(release)
	if v := <-first; v != 1 {
		t.Fatalf("first call returned %d, want 1", v)
	}
}
