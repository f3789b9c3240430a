// Package coordinator keeps the most recent profile of every tracked account
// and refreshes them, on demand or on a cron schedule.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
	"tunnelflight/internal/components/assert"
	"tunnelflight/internal/components/chrono"
	"tunnelflight/internal/components/telemetry"
	"tunnelflight/internal/scrapers/tunnelflight"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	report_refresh       = "coordinator.refresh"
	report_refresh_stale = "coordinator.refresh-stale"
	report_log_time      = "coordinator.log-flight-time"
)

// ErrUnknownAccount is returned for an account id that was never tracked.
var ErrUnknownAccount = errors.New("unknown account")

const (
	defaultRefreshTimeout = 2 * time.Minute
	refreshConcurrency    = 4
)

// Account is the part of a tunnelflight client the coordinator drives.
type Account interface {
	UserProfile(ctx context.Context) (tunnelflight.Profile, error)
	LogFlightTime(ctx context.Context, entry tunnelflight.FlightLog) (tunnelflight.FlightLogResult, error)
}

// Snapshot is a profile together with when it was fetched. A stale snapshot
// is the last good profile after one or more refreshes failed, Err holds the
// most recent failure.
type Snapshot struct {
	Profile   tunnelflight.Profile
	UpdatedAt time.Time
	Stale     bool
	Err       error
}

type tracked struct {
	account  Account
	snapshot atomic.Pointer[Snapshot]
}

type Coordinator struct {
	clock chrono.API
	tel   telemetry.API

	mutex    sync.RWMutex
	accounts map[string]*tracked
	group    singleflight.Group

	// RefreshTimeout bounds a scheduled refresh of all accounts.
	RefreshTimeout time.Duration
	// OnRefresh, if set, is called after every refresh that produced a
	// snapshot, fresh or stale. It may be called concurrently.
	OnRefresh func(id string, snapshot Snapshot)
}

func New(clock chrono.API, tel telemetry.API) *Coordinator {
	assert.NotNil(clock)
	assert.NotNil(tel)

	return &Coordinator{
		clock:          clock,
		tel:            telemetry.NewScopedAPI("coordinator", tel),
		accounts:       make(map[string]*tracked),
		RefreshTimeout: defaultRefreshTimeout,
	}
}

// Track starts tracking account under id, replacing (and forgetting the
// profile of) any account previously tracked under the same id.
func (c *Coordinator) Track(id string, account Account) {
	assert.NotNil(account)

	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.accounts[id] = &tracked{account: account}
}

func (c *Coordinator) Untrack(id string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.accounts, id)
}

// IDs returns the tracked account ids, sorted.
func (c *Coordinator) IDs() []string {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	ids := make([]string, 0, len(c.accounts))
	for id := range c.accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (c *Coordinator) lookup(id string) (*tracked, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	entry, ok := c.accounts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAccount, id)
	}
	return entry, nil
}

// Profile returns the last snapshot of id, false if it was never refreshed
// successfully.
func (c *Coordinator) Profile(id string) (Snapshot, bool) {
	entry, err := c.lookup(id)
	if err != nil {
		return Snapshot{}, false
	}
	snapshot := entry.snapshot.Load()
	if snapshot == nil {
		return Snapshot{}, false
	}
	return *snapshot, true
}

// Refresh fetches a new profile for id. When the fetch fails but an earlier
// profile exists, that profile is kept, marked stale and returned without an
// error. An error is only returned when there is no profile to fall back to.
// Concurrent refreshes of one account share a single fetch.
func (c *Coordinator) Refresh(ctx context.Context, id string) (Snapshot, error) {
	entry, err := c.lookup(id)
	if err != nil {
		return Snapshot{}, err
	}

	result, err, shared := c.group.Do(id, func() (any, error) {
		return c.refresh(ctx, id, entry)
	})
	if err != nil {
		return Snapshot{}, err
	}
	snapshot := result.(Snapshot)
	if c.OnRefresh != nil && !shared {
		c.OnRefresh(id, snapshot)
	}
	return snapshot, nil
}

func (c *Coordinator) refresh(ctx context.Context, id string, entry *tracked) (Snapshot, error) {
	profile, err := entry.account.UserProfile(ctx)
	if err == nil {
		next := &Snapshot{Profile: profile, UpdatedAt: c.clock.Now()}
		entry.snapshot.Store(next)
		return *next, nil
	}

	for {
		previous := entry.snapshot.Load()
		if previous == nil {
			c.tel.ReportWarning(report_refresh, fmt.Errorf("%s: %w", id, err))
			return Snapshot{}, fmt.Errorf("refresh %q: %w", id, err)
		}
		stale := *previous
		stale.Stale = true
		stale.Err = err
		if entry.snapshot.CompareAndSwap(previous, &stale) {
			c.tel.ReportWarning(report_refresh_stale, fmt.Errorf("%s: %w", id, err), previous.UpdatedAt)
			return stale, nil
		}
	}
}

// RefreshAll refreshes every tracked account, a few at a time. The returned
// error joins the failures of accounts that have no profile at all.
func (c *Coordinator) RefreshAll(ctx context.Context) error {
	var mutex sync.Mutex
	var errs []error

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(refreshConcurrency)
	for _, id := range c.IDs() {
		group.Go(func() error {
			_, err := c.Refresh(ctx, id)
			if err != nil {
				mutex.Lock()
				errs = append(errs, err)
				mutex.Unlock()
			}
			// one account failing must not cancel the others
			return nil
		})
	}
	group.Wait()

	return errors.Join(errs...)
}

// Schedule refreshes every tracked account on the given cron spec.
func (c *Coordinator) Schedule(cron chrono.CronAPI, spec string) error {
	assert.NotNil(cron)

	return cron.Cron(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.RefreshTimeout)
		defer cancel()

		err := c.RefreshAll(ctx)
		if err != nil {
			c.tel.ReportDebug("scheduled refresh incomplete", err)
		}
	})
}

// LogFlightTime submits a flight for id. On success the stored profile, if
// any, is updated right away to include the flight instead of waiting for
// the next refresh.
func (c *Coordinator) LogFlightTime(ctx context.Context, id string, entry tunnelflight.FlightLog) (tunnelflight.FlightLogResult, error) {
	account, err := c.lookup(id)
	if err != nil {
		return tunnelflight.FlightLogResult{}, err
	}

	result, err := account.account.LogFlightTime(ctx, entry)
	if err != nil {
		c.tel.ReportWarning(report_log_time, fmt.Errorf("%s: %w", id, err))
		return result, err
	}

	for {
		previous := account.snapshot.Load()
		if previous == nil {
			break
		}
		next := *previous
		next.Profile = previous.Profile.WithFlightLogged(entry.Minutes, result.EntryDate)
		if account.snapshot.CompareAndSwap(previous, &next) {
			break
		}
	}
	return result, nil
}
