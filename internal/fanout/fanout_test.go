package fanout

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestGatherAllSucceed(t *testing.T) {
	ids := []string{"a", "b", "c"}
	res := Gather(context.Background(), ids, func(ctx context.Context, id string) (string, error) {
		return "rec-" + id, nil
	}, Options{})

	if len(res.Items) != 3 {
		t.Fatalf("items = %d, want 3", len(res.Items))
	}
	if len(res.Skipped) != 0 {
		t.Errorf("skipped = %v, want none", res.Skipped)
	}
	sort.Strings(res.Items)
	if res.Items[0] != "rec-a" || res.Items[2] != "rec-c" {
		t.Errorf("items = %v", res.Items)
	}
}

func TestGatherPartialFailures(t *testing.T) {
	// N=6 fetches with staggered delays; every third one fails. Gather must
	// report exactly k successes and only return after all N completed.
	const n = 6
	var completed atomic.Int32
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("id-%d", i)
	}

	res := Gather(context.Background(), ids, func(ctx context.Context, id string) (int, error) {
		var i int
		fmt.Sscanf(id, "id-%d", &i)
		time.Sleep(time.Duration(n-i) * 5 * time.Millisecond)
		defer completed.Add(1)
		if i%3 == 0 {
			return 0, errors.New("boom")
		}
		return i, nil
	}, Options{})

	if got := completed.Load(); got != n {
		t.Fatalf("completed = %d when Gather returned, want %d", got, n)
	}
	if len(res.Items) != 4 {
		t.Errorf("items = %d, want 4", len(res.Items))
	}
	if len(res.Skipped) != 2 {
		t.Errorf("skipped = %d, want 2", len(res.Skipped))
	}
}

func TestGatherCompletionOrder(t *testing.T) {
	delays := map[string]time.Duration{
		"slow":   60 * time.Millisecond,
		"medium": 30 * time.Millisecond,
		"fast":   0,
	}
	res := Gather(context.Background(), []string{"slow", "medium", "fast"}, func(ctx context.Context, id string) (string, error) {
		time.Sleep(delays[id])
		return id, nil
	}, Options{})

	want := []string{"fast", "medium", "slow"}
	for i, id := range want {
		if res.Items[i] != id {
			t.Errorf("items = %v, want completion order %v", res.Items, want)
			break
		}
	}
}

func TestGatherTrimsIDs(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	res := Gather(context.Background(), []string{"  g1", "g2\n", "   "}, func(ctx context.Context, id string) (string, error) {
		return id, nil
	}, Options{Limit: 1, OnComplete: func(id string, err error) {
		mu.Lock()
		seen = append(seen, id)
		mu.Unlock()
	}})

	sort.Strings(res.Items)
	if len(res.Items) != 2 || res.Items[0] != "g1" || res.Items[1] != "g2" {
		t.Errorf("items = %q, want [g1 g2]", res.Items)
	}
	if len(res.Skipped) != 1 || !errors.Is(res.Skipped[0].Err, ErrBlankID) {
		t.Errorf("skipped = %v, want one blank id", res.Skipped)
	}
	if len(seen) != 3 {
		t.Errorf("OnComplete calls = %d, want 3", len(seen))
	}
}

func TestGatherLimit(t *testing.T) {
	var inFlight, peak atomic.Int32
	ids := []string{"1", "2", "3", "4", "5", "6"}
	Gather(context.Background(), ids, func(ctx context.Context, id string) (string, error) {
		cur := inFlight.Add(1)
		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		return id, nil
	}, Options{Limit: 2})

	if got := peak.Load(); got > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", got)
	}
}

func TestGatherEmpty(t *testing.T) {
	res := Gather(context.Background(), nil, func(ctx context.Context, id string) (string, error) {
		t.Fatal("fetch should not be called")
		return "", nil
	}, Options{})
	if len(res.Items) != 0 || len(res.Skipped) != 0 {
		t.Errorf("result = %+v, want empty", res)
	}
}

func TestSkippedIDs(t *testing.T) {
	r := Result[int]{Skipped: []Skip{{ID: "x"}, {ID: "y"}}}
	ids := r.SkippedIDs()
	if len(ids) != 2 || ids[0] != "x" || ids[1] != "y" {
		t.Errorf("skipped ids = %v", ids)
	}
}
