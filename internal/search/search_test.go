package search

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/starford/nutriboard/internal/models"
)

type fakeCatalog struct {
	mu    sync.Mutex
	calls []string
	delay map[string]time.Duration
	foods map[string][]models.FoodReference
}

func (f *fakeCatalog) SearchFoods(ctx context.Context, name string, size int) ([]models.FoodReference, error) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	d := f.delay[name]
	foods := f.foods[name]
	f.mu.Unlock()

	if d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return foods, nil
}

func (f *fakeCatalog) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type delivered struct {
	query string
	count int
	err   error
}

func newHarness(catalog *fakeCatalog, debounce time.Duration) (*Searcher, chan delivered) {
	results := make(chan delivered, 16)
	s := NewSearcher(catalog, debounce, 20, func(query string, foods []models.FoodReference, err error) {
		results <- delivered{query: query, count: len(foods), err: err}
	})
	return s, results
}

func waitResult(t *testing.T, results chan delivered) delivered {
	t.Helper()
	select {
	case r := <-results:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a search result")
		return delivered{}
	}
}

func TestDebounceCollapsesRapidEdits(t *testing.T) {
	catalog := &fakeCatalog{
		foods: map[string][]models.FoodReference{
			"apple": {{ID: uuid.New(), Name: "apple"}},
		},
	}
	s, results := newHarness(catalog, 40*time.Millisecond)
	defer s.Close()

	// Keystrokes arriving within the quiet period: only the final text
	// may reach the backend.
	s.Query("ap")
	s.Query("appl")
	s.Query("apple")

	r := waitResult(t, results)
	if r.query != "apple" || r.err != nil || r.count != 1 {
		t.Fatalf("delivered %+v, want apple with 1 hit", r)
	}
	if calls := catalog.callLog(); len(calls) != 1 || calls[0] != "apple" {
		t.Errorf("backend saw %v, want exactly [apple]", calls)
	}
}

func TestShortQueryIssuesNothingAndCancelsPending(t *testing.T) {
	catalog := &fakeCatalog{}
	s, results := newHarness(catalog, 40*time.Millisecond)
	defer s.Close()

	// A valid query followed by a too-short edit inside the quiet
	// period: the pending search is abandoned.
	s.Query("apple")
	s.Query("ap")

	select {
	case r := <-results:
		t.Fatalf("unexpected delivery %+v", r)
	case <-time.After(200 * time.Millisecond):
	}
	if calls := catalog.callLog(); len(calls) != 0 {
		t.Errorf("backend saw %v, want no calls", calls)
	}
}

func TestQueryTrimsAndCountsRunes(t *testing.T) {
	catalog := &fakeCatalog{}
	s, results := newHarness(catalog, 20*time.Millisecond)
	defer s.Close()

	// Whitespace padding does not rescue a short query, and rune count
	// (not byte count) decides the threshold.
	s.Query("  ab  ")
	s.Query("pã") // 3 bytes, 2 runes

	select {
	case r := <-results:
		t.Fatalf("unexpected delivery %+v", r)
	case <-time.After(150 * time.Millisecond):
	}
	if calls := catalog.callLog(); len(calls) != 0 {
		t.Errorf("backend saw %v, want no calls", calls)
	}

	s.Query("pão")
	r := waitResult(t, results)
	if r.query != "pão" {
		t.Errorf("delivered query %q, want %q", r.query, "pão")
	}
}

func TestLastQueryWinsOverSlowResponse(t *testing.T) {
	catalog := &fakeCatalog{
		delay: map[string]time.Duration{"aaaa": 5 * time.Second},
		foods: map[string][]models.FoodReference{
			"bbbb": {{ID: uuid.New(), Name: "b"}},
		},
	}
	s, results := newHarness(catalog, 30*time.Millisecond)
	defer s.Close()

	// Let the slow query fire, then supersede it while it hangs.
	s.Query("aaaa")
	time.Sleep(100 * time.Millisecond)
	s.Query("bbbb")

	r := waitResult(t, results)
	if r.query != "bbbb" {
		t.Fatalf("delivered %+v, want the superseding query", r)
	}

	// The slow response must never surface, even after it unblocks.
	select {
	case late := <-results:
		t.Fatalf("stale result delivered: %+v", late)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestCloseStopsDeliveries(t *testing.T) {
	catalog := &fakeCatalog{
		foods: map[string][]models.FoodReference{
			"apple": {{ID: uuid.New(), Name: "apple"}},
		},
	}
	s, results := newHarness(catalog, 20*time.Millisecond)

	s.Query("apple")
	waitResult(t, results)

	s.Close()
	s.Query("apple") // no-op after Close
	s.Close()        // idempotent

	select {
	case r := <-results:
		t.Fatalf("delivery after Close: %+v", r)
	case <-time.After(150 * time.Millisecond):
	}
}
