// Package availability owns the booked-days cache: when to fetch, when to
// reuse what is held, and what to serve when a refresh fails.
package availability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/samber/mo"
	"golang.org/x/sync/singleflight"

	"rentcal/internal/ics"
	appLog "rentcal/internal/log"
	"rentcal/internal/model"
)

// DefaultTTL is how long a successful sync is served without refetching.
const DefaultTTL = 5 * time.Minute

// Fetcher returns the raw calendar document. *ics.Fetcher implements it.
type Fetcher interface {
	FetchCalendarDocument(ctx context.Context) ([]byte, error)
}

// Freshness is the state of the cache relative to its TTL.
type Freshness int

const (
	NeverSynced Freshness = iota
	Fresh
	Stale
)

func (f Freshness) String() string {
	switch f {
	case NeverSynced:
		return "never_synced"
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	default:
		return fmt.Sprintf("freshness(%d)", int(f))
	}
}

// Result is what GetBookedDays hands back.
type Result struct {
	Days model.DaySet

	// Cached is true when Days did not come from a fetch made for this call,
	// either because the cache was fresh or because the fetch failed and the
	// previous set is served instead.
	Cached bool

	// LastSync is the time of the sync that produced Days. None when the
	// service never synced successfully.
	LastSync mo.Option[time.Time]

	// TotalEvents and TotalDays are set when Days comes from a new sync.
	TotalEvents int
	TotalDays   int

	// Err is the reason the refresh failed. When it is set and GetBookedDays
	// returned a nil error, Days is the fallback set.
	Err error
}

// Status is a read-only view of the cache.
type Status struct {
	Online     bool
	LastSync   mo.Option[time.Time]
	CachedDays int
	Fresh      bool
	State      Freshness
}

// state is everything one successful sync produces. It is replaced whole,
// never merged, so readers cannot pair a set with another sync's timestamp.
type state struct {
	days     model.DaySet
	events   int
	lastSync mo.Option[time.Time]
}

// Cache serves booked days for the single configured calendar.
type Cache struct {
	fetcher Fetcher
	ttl     time.Duration
	now     func() time.Time
	expand  ics.ExpandConfig

	mu sync.RWMutex
	st state

	flight singleflight.Group
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL sets the freshness window. Non-positive values keep DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithExpandConfig sets recurrence expansion limits. Now is filled in at
// each sync.
func WithExpandConfig(cfg ics.ExpandConfig) Option {
	return func(c *Cache) {
		c.expand = cfg
	}
}

// New returns an empty, never-synced cache.
func New(fetcher Fetcher, opts ...Option) *Cache {
	c := &Cache{
		fetcher: fetcher,
		ttl:     DefaultTTL,
		now:     time.Now,
		st:      state{lastSync: mo.None[time.Time]()},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the configured freshness window.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// GetBookedDays returns the booked days, syncing first when the cache is
// stale, has never synced, or force is set.
//
// A failed sync falls back to the previous set when it is non-empty: the
// result is Cached with Err set and the returned error is nil. Only when
// there is nothing to fall back to is the error returned, together with an
// empty set.
func (c *Cache) GetBookedDays(ctx context.Context, force bool) (Result, error) {
	st := c.snapshot()
	if !force && c.freshness(st) == Fresh {
		return Result{
			Days:     st.days.Clone(),
			Cached:   true,
			LastSync: st.lastSync,
		}, nil
	}

	res, err := c.sync(ctx)
	if err == nil {
		return res, nil
	}

	st = c.snapshot()
	if st.days.Len() > 0 {
		appLog.Warn("calendar sync failed; serving previous booked days",
			"err", err,
			"cached_days", st.days.Len(),
			"last_sync", st.lastSync.OrEmpty(),
		)
		return Result{
			Days:     st.days.Clone(),
			Cached:   true,
			LastSync: st.lastSync,
			Err:      err,
		}, nil
	}

	appLog.Error("calendar sync failed and no previous booked days", err)
	return Result{
		Days:     model.DaySet{},
		LastSync: st.lastSync,
		Err:      err,
	}, err
}

// Status reports the cache state without side effects.
func (c *Cache) Status() Status {
	st := c.snapshot()
	f := c.freshness(st)
	return Status{
		Online:     true,
		LastSync:   st.lastSync,
		CachedDays: st.days.Len(),
		Fresh:      f == Fresh,
		State:      f,
	}
}

// sync runs one synchronization, or joins the one already in flight.
// The shared fetch is detached from ctx so one caller giving up does not
// fail the others; ctx only bounds how long this caller waits.
func (c *Cache) sync(ctx context.Context) (Result, error) {
	ch := c.flight.DoChan("sync", func() (any, error) {
		return c.synchronize(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return Result{}, r.Err
		}
		res := r.Val.(Result)
		res.Days = res.Days.Clone()
		return res, nil
	}
}

func (c *Cache) synchronize(ctx context.Context) (res Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &ics.ParseError{Err: fmt.Errorf("panic during sync: %v", p)}
		}
	}()

	started := c.now()
	body, err := c.fetcher.FetchCalendarDocument(ctx)
	if err != nil {
		return Result{}, err
	}

	cfg := c.expand
	cfg.Now = started
	days, events, err := ics.ExpandDocument(body, cfg)
	if err != nil {
		return Result{}, err
	}

	synced := c.now()
	c.commit(state{
		days:     days,
		events:   events,
		lastSync: mo.Some(synced),
	})

	appLog.Info("calendar sync complete",
		"events", events,
		"days", days.Len(),
		"took", synced.Sub(started),
	)

	return Result{
		Days:        days,
		LastSync:    mo.Some(synced),
		TotalEvents: events,
		TotalDays:   days.Len(),
	}, nil
}

// commit is the only writer of the sync state.
func (c *Cache) commit(st state) {
	c.mu.Lock()
	c.st = st
	c.mu.Unlock()
}

func (c *Cache) snapshot() state {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.st
}

func (c *Cache) freshness(st state) Freshness {
	last, ok := st.lastSync.Get()
	if !ok {
		return NeverSynced
	}
	if c.now().Sub(last) < c.ttl {
		return Fresh
	}
	return Stale
}
