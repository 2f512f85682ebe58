package subscription

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

type fakeListener struct {
	closed atomic.Int32
	err    error
}

func (f *fakeListener) Close() error {
	f.closed.Add(1)
	return f.err
}

func TestAddRelease(t *testing.T) {
	r := NewRegistry(nil)
	a, b := &fakeListener{}, &fakeListener{}

	ha := r.Add("group:g1", a)
	hb := r.Add("votes:p1", b)
	if ha == "" || hb == "" || ha == hb {
		t.Fatalf("handles = %q, %q", ha, hb)
	}
	if r.Len() != 2 {
		t.Errorf("Len = %d, want 2", r.Len())
	}

	r.Release(ha)
	r.Release(ha)
	if a.closed.Load() != 1 {
		t.Errorf("a closed %d times, want 1", a.closed.Load())
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}
}

func TestCloseTearsDownAll(t *testing.T) {
	r := NewRegistry(nil)
	ls := []*fakeListener{{}, {}, {err: errors.New("already gone")}}
	for _, l := range ls {
		r.Add("x", l)
	}

	r.Close()
	r.Close()
	for i, l := range ls {
		if l.closed.Load() != 1 {
			t.Errorf("listener %d closed %d times, want 1", i, l.closed.Load())
		}
	}
	if r.Len() != 0 {
		t.Errorf("Len = %d, want 0", r.Len())
	}
}

func TestAddAfterCloseClosesListener(t *testing.T) {
	r := NewRegistry(nil)
	r.Close()

	l := &fakeListener{}
	if h := r.Add("late", l); h != "" {
		t.Errorf("handle = %q, want empty", h)
	}
	if l.closed.Load() != 1 {
		t.Error("late listener left open")
	}
	if r.Len() != 0 {
		t.Errorf("Len = %d, want 0", r.Len())
	}
}

func TestConcurrentAddClose(t *testing.T) {
	r := NewRegistry(nil)
	ls := make([]*fakeListener, 50)
	var wg sync.WaitGroup
	for i := range ls {
		ls[i] = &fakeListener{}
		wg.Add(1)
		go func(l *fakeListener) {
			defer wg.Done()
			r.Add("x", l)
		}(ls[i])
	}
	r.Close()
	wg.Wait()

	for i, l := range ls {
		if l.closed.Load() != 1 {
			t.Errorf("listener %d closed %d times, want 1", i, l.closed.Load())
		}
	}
}
