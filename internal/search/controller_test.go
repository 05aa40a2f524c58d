package search_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neexbeast/city-weather/internal/provider"
	"github.com/neexbeast/city-weather/internal/search"
)

// ---- manual clock ----

type fakeClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*fakeTimer
}

type fakeTimer struct {
	clock  *fakeClock
	at     time.Duration
	f      func()
	active bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	was := t.active
	t.active = false
	return was
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) search.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now + d, f: f, active: true}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves time forward and runs due callbacks on the calling goroutine.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	var due []*fakeTimer
	for _, t := range c.timers {
		if t.active && t.at <= c.now {
			t.active = false
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	for _, t := range due {
		t.f()
	}
}

// ---- scripted searcher ----

type result struct {
	cities []provider.CitySummary
	err    error
}

type call struct {
	query string
	start int
	rows  int
	resp  chan result
}

func (c *call) reply(cities []provider.CitySummary) { c.resp <- result{cities: cities} }
func (c *call) fail(err error)                      { c.resp <- result{err: err} }

// fakeSearcher hands every request to the test and blocks until the test
// replies. It ignores ctx so stale responses still arrive late.
type fakeSearcher struct {
	calls chan *call
}

func newFakeSearcher() *fakeSearcher {
	return &fakeSearcher{calls: make(chan *call, 64)}
}

func (f *fakeSearcher) Search(_ context.Context, query string, start, rows int) ([]provider.CitySummary, error) {
	c := &call{query: query, start: start, rows: rows, resp: make(chan result, 1)}
	f.calls <- c
	r := <-c.resp
	return r.cities, r.err
}

func (f *fakeSearcher) next(t *testing.T) *call {
	t.Helper()
	select {
	case c := <-f.calls:
		return c
	case <-time.After(time.Second):
		t.Fatal("expected a search request")
		return nil
	}
}

func (f *fakeSearcher) expectNone(t *testing.T) {
	t.Helper()
	select {
	case c := <-f.calls:
		t.Fatalf("unexpected search request q=%q start=%d", c.query, c.start)
	case <-time.After(50 * time.Millisecond):
	}
}

// ---- helpers ----

func cities(prefix string, from, n int) []provider.CitySummary {
	out := make([]provider.CitySummary, n)
	for i := range out {
		id := from + i
		out[i] = provider.CitySummary{
			Name:        fmt.Sprintf("%s-%d", prefix, id),
			Country:     "France",
			Timezone:    "Europe/Paris",
			ID:          fmt.Sprintf("%s%d", prefix, id),
			Coordinates: provider.Coordinates{Lat: 48.85, Lon: 2.35},
		}
	}
	return out
}

func newController(t *testing.T) (*search.Controller, *fakeSearcher, *fakeClock) {
	t.Helper()
	s := newFakeSearcher()
	clock := &fakeClock{}
	c := search.New(s, search.WithClock(clock))
	t.Cleanup(c.Close)
	return c, s, clock
}

func waitResults(t *testing.T, c *search.Controller, n int) search.State {
	t.Helper()
	require.Eventually(t, func() bool {
		st := c.State()
		return len(st.Results) == n && st.Phase == search.PhaseReady
	}, time.Second, 5*time.Millisecond)
	return c.State()
}

// startLoaded mounts the controller and lands a full first page.
func startLoaded(t *testing.T) (*search.Controller, *fakeSearcher, *fakeClock) {
	t.Helper()
	c, s, clock := newController(t)
	c.Start()
	s.next(t).reply(cities("p0-", 0, search.DefaultPageSize))
	waitResults(t, c, search.DefaultPageSize)
	return c, s, clock
}

// ---- tests ----

func TestStart_FetchesFirstPageOfEmptyQuery(t *testing.T) {
	c, s, _ := newController(t)
	assert.Equal(t, search.PhaseIdle, c.State().Phase)

	c.Start()
	first := s.next(t)
	assert.Equal(t, "", first.query)
	assert.Equal(t, 0, first.start)
	assert.Equal(t, 50, first.rows)
	assert.Equal(t, search.PhaseFetching, c.State().Phase)

	first.reply(cities("a", 0, 2))
	st := waitResults(t, c, 2)
	assert.Equal(t, 0, st.Page)

	c.Start()
	s.expectNone(t)
}

func TestDebounce_OnlyFinalQueryFetches(t *testing.T) {
	c, s, clock := startLoaded(t)

	c.OnQueryChange("Par")
	clock.Advance(300 * time.Millisecond)
	c.OnQueryChange("Paris")

	st := c.State()
	assert.Equal(t, "Paris", st.RawQuery, "raw query echoes immediately")
	assert.Equal(t, "", st.DebouncedQuery)

	clock.Advance(300 * time.Millisecond)
	s.expectNone(t)

	clock.Advance(200 * time.Millisecond)
	got := s.next(t)
	assert.Equal(t, "Paris", got.query)
	assert.Equal(t, 0, got.start)
	got.reply(cities("paris", 0, 2))
	waitResults(t, c, 2)

	s.expectNone(t)
}

func TestQueryCommit_ResetsBeforeFetch(t *testing.T) {
	c, s, clock := startLoaded(t)

	require.True(t, c.OnScroll(100, 800))
	s.next(t).reply(cities("p1-", 50, 50))
	waitResults(t, c, 100)
	require.Equal(t, 1, c.State().Page)

	c.OnQueryChange("Lyon")
	clock.Advance(search.DefaultDebounce)

	st := c.State()
	assert.Equal(t, "Lyon", st.DebouncedQuery)
	assert.Empty(t, st.Results)
	assert.Equal(t, 0, st.Page)
	assert.True(t, st.HasMore)
	assert.Equal(t, search.PhaseFetching, st.Phase)

	got := s.next(t)
	assert.Equal(t, "Lyon", got.query)
	assert.Equal(t, 0, got.start)
}

func TestPages_AppendAfterFirstReplaces(t *testing.T) {
	c, s, _ := startLoaded(t)

	require.True(t, c.OnScroll(10, 20))
	s.next(t).reply(cities("p1-", 50, 10))

	st := waitResults(t, c, 60)
	assert.Equal(t, "p0-0", st.Results[0].ID, "first page is kept")
	assert.Equal(t, "p1-50", st.Results[50].ID)
	assert.Equal(t, "p1-59", st.Results[59].ID)
}

func TestStaleEpoch_Discarded(t *testing.T) {
	c, s, clock := newController(t)
	c.Start()
	old := s.next(t)

	c.OnQueryChange("Paris")
	clock.Advance(search.DefaultDebounce)
	fresh := s.next(t)
	require.Equal(t, "Paris", fresh.query)

	fresh.reply(cities("paris", 0, 2))
	waitResults(t, c, 2)

	// The empty-query page resolves after the new query has taken over.
	old.reply(cities("old", 0, 50))

	assert.Never(t, func() bool {
		st := c.State()
		return len(st.Results) != 2 || st.Results[0].ID != "paris0"
	}, 100*time.Millisecond, 5*time.Millisecond)
}

func TestStaleEpoch_ScrollPageDiscarded(t *testing.T) {
	c, s, clock := startLoaded(t)

	require.True(t, c.OnScroll(0, 1))
	stalePage := s.next(t)
	require.Equal(t, 50, stalePage.start)

	c.OnQueryChange("Nice")
	clock.Advance(search.DefaultDebounce)
	s.next(t).reply(cities("nice", 0, 3))
	waitResults(t, c, 3)

	stalePage.reply(cities("stale", 50, 50))
	assert.Never(t, func() bool { return len(c.State().Results) != 3 }, 100*time.Millisecond, 5*time.Millisecond)
}

func TestScroll_OneFetchPerCrossing(t *testing.T) {
	c, s, _ := startLoaded(t)

	assert.False(t, c.OnScroll(900, 800), "sentinel below the viewport")
	s.expectNone(t)

	assert.True(t, c.OnScroll(700, 800))
	assert.Equal(t, 1, c.State().Page)
	p1 := s.next(t)
	assert.Equal(t, 50, p1.start)

	assert.True(t, c.OnScroll(700, 800))
	assert.Equal(t, 2, c.State().Page)
	p2 := s.next(t)
	assert.Equal(t, 100, p2.start)

	s.expectNone(t)
	p1.reply(cities("p1-", 50, 50))
	p2.reply(cities("p2-", 100, 50))
	waitResults(t, c, 150)
}

func TestScroll_OutOfOrderPagesLandInOrder(t *testing.T) {
	c, s, _ := startLoaded(t)

	require.True(t, c.OnScroll(0, 1))
	p1 := s.next(t)
	require.True(t, c.OnScroll(0, 1))
	p2 := s.next(t)

	p2.reply(cities("p2-", 100, 50))
	assert.Never(t, func() bool { return len(c.State().Results) != 50 }, 50*time.Millisecond, 5*time.Millisecond)

	p1.reply(cities("p1-", 50, 50))
	st := waitResults(t, c, 150)
	assert.Equal(t, "p1-50", st.Results[50].ID)
	assert.Equal(t, "p2-100", st.Results[100].ID)
}

func TestScroll_ShortPageStopsPaging(t *testing.T) {
	c, s, _ := newController(t)
	c.Start()
	s.next(t).reply(cities("a", 0, 10))
	st := waitResults(t, c, 10)
	assert.False(t, st.HasMore)

	assert.False(t, c.OnScroll(0, 100))
	s.expectNone(t)
	assert.Equal(t, 0, c.State().Page)
}

func TestScroll_EmptyPageStopsPaging(t *testing.T) {
	c, s, _ := startLoaded(t)

	require.True(t, c.OnScroll(0, 1))
	s.next(t).reply(nil)
	require.Eventually(t, func() bool { return !c.State().HasMore }, time.Second, 5*time.Millisecond)

	assert.False(t, c.OnScroll(0, 1))
	s.expectNone(t)
	assert.Len(t, c.State().Results, 50)
}

func TestFetchError_LeavesListUnchanged(t *testing.T) {
	c, s, _ := startLoaded(t)

	require.True(t, c.OnScroll(0, 1))
	s.next(t).fail(&provider.FetchError{Endpoint: "city search", Err: errors.New("connection reset")})

	st := waitResults(t, c, 50)
	assert.True(t, st.HasMore)
	assert.Equal(t, "p0-0", st.Results[0].ID)

	require.True(t, c.OnScroll(0, 1))
	p2 := s.next(t)
	assert.Equal(t, 100, p2.start)
	p2.reply(cities("p2-", 100, 50))
	waitResults(t, c, 100)
}

func TestFetchError_FirstPage(t *testing.T) {
	c, s, _ := newController(t)
	c.Start()
	s.next(t).fail(errors.New("dial tcp: refused"))

	require.Eventually(t, func() bool { return c.State().Phase == search.PhaseReady }, time.Second, 5*time.Millisecond)
	assert.Empty(t, c.State().Results)
}

func TestSameQueryCommit_NoRefetch(t *testing.T) {
	c, s, clock := startLoaded(t)

	c.OnQueryChange("x")
	c.OnQueryChange("")
	clock.Advance(search.DefaultDebounce)

	s.expectNone(t)
	st := c.State()
	assert.Len(t, st.Results, 50)
	assert.Equal(t, uint64(1), st.Epoch)
}

func TestCommitBeforeStart_Mounts(t *testing.T) {
	c, s, clock := newController(t)

	c.OnQueryChange("Oslo")
	clock.Advance(search.DefaultDebounce)

	got := s.next(t)
	assert.Equal(t, "Oslo", got.query)
	got.reply(cities("oslo", 0, 1))
	waitResults(t, c, 1)
}

func TestClose_IgnoresEvents(t *testing.T) {
	c, s, clock := startLoaded(t)
	c.Close()

	c.OnQueryChange("Rome")
	clock.Advance(time.Second)
	s.expectNone(t)

	assert.False(t, c.OnScroll(0, 1))
	assert.Empty(t, c.State().Results)
}

func TestOnScroll_BeforeStart(t *testing.T) {
	c, s, _ := newController(t)
	assert.False(t, c.OnScroll(0, 100))
	s.expectNone(t)
}

func TestWithPageSize(t *testing.T) {
	s := newFakeSearcher()
	c := search.New(s, search.WithPageSize(5), search.WithDebounce(time.Millisecond))
	defer c.Close()

	c.Start()
	first := s.next(t)
	assert.Equal(t, 5, first.rows)
	first.reply(cities("a", 0, 5))
	waitResults(t, c, 5)

	require.True(t, c.OnScroll(0, 1))
	assert.Equal(t, 5, s.next(t).start)
}

func TestRealClockDebounce(t *testing.T) {
	s := newFakeSearcher()
	c := search.New(s, search.WithDebounce(20*time.Millisecond))
	defer c.Close()

	c.OnQueryChange("Be")
	c.OnQueryChange("Berlin")

	got := s.next(t)
	assert.Equal(t, "Berlin", got.query)
	got.reply(nil)
	s.expectNone(t)
}
