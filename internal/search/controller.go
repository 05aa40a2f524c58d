// Package search implements the incremental search-and-paginate controller
// that feeds the city table: debounced query commits, fixed-size pages and
// scroll-triggered loading.
//
// Every fetch is tagged with the query epoch it was issued in. A completion
// from a superseded epoch is dropped, so the latest debounced query always
// wins regardless of response order.
package search

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/neexbeast/city-weather/internal/provider"
)

const (
	DefaultDebounce = 500 * time.Millisecond
	DefaultPageSize = 50
)

// Searcher is satisfied by provider.CityClient.
type Searcher interface {
	Search(ctx context.Context, query string, start, rows int) ([]provider.CitySummary, error)
}

// Phase is the controller's position in the per-epoch state machine.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseFetching Phase = "fetching"
	PhaseReady    Phase = "ready"
)

// State is a point-in-time copy of the controller's view state.
type State struct {
	RawQuery       string                 `json:"raw_query"`
	DebouncedQuery string                 `json:"debounced_query"`
	Page           int                    `json:"page"`
	HasMore        bool                   `json:"has_more"`
	Phase          Phase                  `json:"phase"`
	Epoch          uint64                 `json:"epoch"`
	Results        []provider.CitySummary `json:"results"`
}

// Option configures a Controller.
type Option func(*Controller)

// WithDebounce overrides the 500ms debounce interval.
func WithDebounce(d time.Duration) Option {
	return func(c *Controller) { c.debounce = d }
}

// WithPageSize overrides the 50-row page size.
func WithPageSize(n int) Option {
	return func(c *Controller) { c.pageSize = n }
}

// WithClock replaces the wall clock used for debouncing.
func WithClock(clock Clock) Option {
	return func(c *Controller) { c.clock = clock }
}

// WithLogger sets the logger used for fetch diagnostics.
func WithLogger(log *slog.Logger) Option {
	return func(c *Controller) { c.log = log }
}

// Controller owns the query text, the debounced query, the page cursor and
// the accumulated results for one list view. It is safe for concurrent use.
type Controller struct {
	searcher Searcher
	clock    Clock
	log      *slog.Logger
	debounce time.Duration
	pageSize int

	mu             sync.Mutex
	started        bool
	closed         bool
	rawQuery       string
	debouncedQuery string
	page           int
	hasMore        bool
	epoch          uint64
	results        []provider.CitySummary

	// Pages land in order: landed counts pages [0..landed) folded into
	// results, held keeps completed pages waiting on an earlier one.
	landed   int
	held     map[int][]provider.CitySummary
	inflight int

	timer    Timer
	timerSeq uint64

	ctx    context.Context
	cancel context.CancelFunc
}

// New constructs a Controller. Call Start to issue the initial fetch.
func New(searcher Searcher, opts ...Option) *Controller {
	c := &Controller{
		searcher: searcher,
		clock:    realClock{},
		log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		debounce: DefaultDebounce,
		pageSize: DefaultPageSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start mounts the controller and fetches page 0 of the empty query.
func (c *Controller) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started || c.closed {
		return
	}
	c.started = true
	c.resetLocked()
	c.fetchLocked(c.debouncedQuery, 0)
}

// OnQueryChange records the raw input and restarts the debounce timer.
func (c *Controller) OnQueryChange(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.rawQuery = text

	if c.timer != nil {
		c.timer.Stop()
	}
	c.timerSeq++
	seq := c.timerSeq
	c.timer = c.clock.AfterFunc(c.debounce, func() { c.commit(seq) })
}

// commit moves rawQuery into debouncedQuery once the input has been quiet
// for the debounce interval. seq guards against a timer that fired while
// being replaced.
func (c *Controller) commit(seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || seq != c.timerSeq {
		return
	}
	c.timer = nil

	if c.rawQuery == c.debouncedQuery && c.started {
		return
	}
	c.debouncedQuery = c.rawQuery
	c.started = true
	c.resetLocked()
	c.log.Debug("query committed", "query", c.debouncedQuery, "epoch", c.epoch)
	c.fetchLocked(c.debouncedQuery, 0)
}

// OnScroll reports one scroll event. When the sentinel's top edge is above
// the viewport's bottom edge the page cursor advances by one and the next
// page is fetched. It reports whether a fetch was issued.
func (c *Controller) OnScroll(sentinelTop, viewportBottom float64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || !c.started {
		return false
	}
	if sentinelTop >= viewportBottom {
		return false
	}
	if !c.hasMore {
		return false
	}

	c.page++
	c.fetchLocked(c.debouncedQuery, c.page)
	return true
}

// State returns a copy of the current view state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	phase := PhaseIdle
	switch {
	case c.inflight > 0:
		phase = PhaseFetching
	case c.started:
		phase = PhaseReady
	}

	results := make([]provider.CitySummary, len(c.results))
	copy(results, c.results)

	return State{
		RawQuery:       c.rawQuery,
		DebouncedQuery: c.debouncedQuery,
		Page:           c.page,
		HasMore:        c.hasMore,
		Phase:          phase,
		Epoch:          c.epoch,
		Results:        results,
	}
}

// Close unmounts the controller. Pending timers are stopped, in-flight
// requests are cancelled and later events are ignored.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.results = nil
	c.held = nil
}

// resetLocked begins a new epoch: results cleared, cursor at page 0.
func (c *Controller) resetLocked() {
	if c.cancel != nil {
		c.cancel()
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())

	c.epoch++
	c.page = 0
	c.hasMore = true
	c.results = nil
	c.landed = 0
	c.held = make(map[int][]provider.CitySummary)
	c.inflight = 0
}

func (c *Controller) fetchLocked(query string, page int) {
	epoch := c.epoch
	ctx := c.ctx
	start := page * c.pageSize
	rows := c.pageSize

	c.inflight++
	go func() {
		cities, err := c.searcher.Search(ctx, query, start, rows)
		c.complete(epoch, page, query, cities, err)
	}()
}

// complete applies one page result if it still belongs to the live epoch.
func (c *Controller) complete(epoch uint64, page int, query string, cities []provider.CitySummary, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || epoch != c.epoch {
		c.log.Debug("discarding stale page", "query", query, "page", page, "epoch", epoch, "current_epoch", c.epoch)
		return
	}
	c.inflight--

	if err != nil {
		// The page contributes nothing; the list stays as it is.
		c.log.Error("fetching city page failed", "query", query, "page", page, "err", err)
		c.held[page] = nil
	} else {
		c.held[page] = cities
		if len(cities) < c.pageSize {
			c.hasMore = false
		}
	}

	for {
		rows, ok := c.held[c.landed]
		if !ok {
			break
		}
		delete(c.held, c.landed)
		if c.landed == 0 {
			c.results = append([]provider.CitySummary(nil), rows...)
		} else {
			c.results = append(c.results, rows...)
		}
		c.landed++
	}
}
