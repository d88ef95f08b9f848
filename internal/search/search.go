// Package search implements debounced catalog lookups with
// last-query-wins semantics.
//
// Concurrency model: a single internal event loop (goroutine) owns all
// mutable state (pending query, debounce timer, request generation).
// Public methods communicate with the loop through channels, so no
// mutexes are required. A response whose generation no longer matches
// the loop's is discarded inside the loop and can never reach the
// callback, even if its goroutine outlives several newer queries.
package search

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/starford/nutriboard/internal/models"
)

// MinQueryLength is the threshold below which Query is a no-op.
const MinQueryLength = 3

// DefaultDebounce is the quiet period before a query is issued.
const DefaultDebounce = 300 * time.Millisecond

// Catalog is the backend surface the searcher depends on.
type Catalog interface {
	SearchFoods(ctx context.Context, name string, size int) ([]models.FoodReference, error)
}

// Results receives the outcome of the winning query.
type Results func(query string, foods []models.FoodReference, err error)

type result struct {
	gen   uint64
	query string
	foods []models.FoodReference
	err   error
}

// Searcher debounces free-text input into catalog requests.
type Searcher struct {
	catalog  Catalog
	cb       Results
	debounce time.Duration
	pageSize int

	queryCh  chan string
	resultCh chan result
	stopCh   chan struct{}
	stopped  chan struct{}
	closed   atomic.Bool
}

// NewSearcher starts a searcher delivering results to cb. A non-positive
// debounce falls back to DefaultDebounce.
func NewSearcher(catalog Catalog, debounce time.Duration, pageSize int, cb Results) *Searcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	s := &Searcher{
		catalog:  catalog,
		cb:       cb,
		debounce: debounce,
		pageSize: pageSize,
		queryCh:  make(chan string, 16),
		resultCh: make(chan result, 16),
		stopCh:   make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go s.run()
	return s
}

// Query feeds the current input text. Texts shorter than MinQueryLength
// issue no request but still supersede anything in flight.
func (s *Searcher) Query(text string) {
	if s.closed.Load() {
		return
	}
	select {
	case s.queryCh <- text:
	case <-s.stopped:
	}
}

// Close stops the loop and cancels any in-flight request.
func (s *Searcher) Close() {
	if s.closed.CompareAndSwap(false, true) {
		close(s.stopCh)
	}
	<-s.stopped
}

func (s *Searcher) run() {
	defer close(s.stopped)

	var (
		pending  string
		gen      uint64
		timer    *time.Timer
		timerCh  <-chan time.Time
		cancelIn context.CancelFunc
	)

	stopTimer := func() {
		if timer != nil {
			timer.Stop()
		}
		timerCh = nil
	}
	cancelInflight := func() {
		if cancelIn != nil {
			cancelIn()
			cancelIn = nil
		}
	}

	for {
		select {
		case <-s.stopCh:
			stopTimer()
			cancelInflight()
			return

		case text := <-s.queryCh:
			text = strings.TrimSpace(text)
			if utf8.RuneCountInString(text) < MinQueryLength {
				// Too short to search, but the input moved on: anything
				// pending or in flight is stale now.
				gen++
				stopTimer()
				cancelInflight()
				continue
			}
			pending = text
			if timer == nil {
				timer = time.NewTimer(s.debounce)
				timerCh = timer.C
			} else {
				timer.Stop()
				timer.Reset(s.debounce)
				timerCh = timer.C
			}

		case <-timerCh:
			timerCh = nil
			gen++
			cancelInflight()

			ctx, cancel := context.WithCancel(context.Background())
			cancelIn = cancel
			myGen, query := gen, pending
			go func() {
				foods, err := s.catalog.SearchFoods(ctx, query, s.pageSize)
				select {
				case s.resultCh <- result{gen: myGen, query: query, foods: foods, err: err}:
				case <-s.stopped:
				}
			}()

		case res := <-s.resultCh:
			if res.gen != gen {
				continue
			}
			if errors.Is(res.err, context.Canceled) {
				continue
			}
			cancelIn = nil
			if s.cb != nil {
				s.cb(res.query, res.foods, res.err)
			}
		}
	}
}
