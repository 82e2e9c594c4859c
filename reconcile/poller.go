// Package reconcile polls the remote account record on a fixed cadence and
// reports balance decreases once per transition.
package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/user/railpass-blue/account"
	"github.com/user/railpass-blue/errs"
	"github.com/user/railpass-blue/logger"
)

// DefaultInterval between fetches, measured from fetch start
const DefaultInterval = 5 * time.Second

// StateFetcher is the account service as seen by the poller;
// *account.Client satisfies it
type StateFetcher interface {
	GetState(ctx context.Context, identity string) (account.State, error)
	IncrementBalance(ctx context.Context, identity string) (float64, error)
}

// Snapshot is the last successfully fetched remote state
type Snapshot struct {
	Balance      float64
	ActivityFlag bool
	FetchedAt    time.Time
}

// Event reports a balance decrease between two successful snapshots
type Event struct {
	Identity string
	Previous float64
	Current  float64
	Delta    float64
	At       time.Time
}

// Listener receives poller results. Calls come from the poll loop goroutine,
// or from the ForceUpdate caller, and must not call Stop.
type Listener interface {
	OnStateUpdate(snapshot Snapshot)
	OnBalanceDecreased(event Event)
	OnFetchError(err error)
}

// ActivityListener is optionally implemented by a Listener to hear about
// activity flag transitions
type ActivityListener interface {
	OnActivityChanged(active bool, snapshot Snapshot)
}

type nopListener struct{}

func (nopListener) OnStateUpdate(Snapshot)   {}
func (nopListener) OnBalanceDecreased(Event) {}
func (nopListener) OnFetchError(error)       {}

// Poller runs one fetch schedule for one identity at a time
type Poller struct {
	fetcher  StateFetcher
	interval time.Duration
	listener Listener
	now      func() time.Time

	mu       sync.Mutex
	identity string
	snapshot Snapshot
	have     bool
	version  uint64 // bumped whenever the snapshot is adopted out of band
	cancel   context.CancelFunc
	done     chan struct{}
}

// Option configures a Poller
type Option func(*Poller)

// WithInterval sets the fetch period
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithListener registers the result listener
func WithListener(l Listener) Option {
	return func(p *Poller) {
		if l != nil {
			p.listener = l
		}
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(p *Poller) { p.now = now }
}

// WithInitialSnapshot seeds the retained snapshot, e.g. from registration
func WithInitialSnapshot(s Snapshot) Option {
	return func(p *Poller) {
		p.snapshot = s
		p.have = true
	}
}

// NewPoller creates an inactive poller
func NewPoller(fetcher StateFetcher, opts ...Option) *Poller {
	p := &Poller{
		fetcher:  fetcher,
		interval: DefaultInterval,
		listener: nopListener{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the poll loop for identity. Starting an active poller is a no-op.
func (p *Poller) Start(identity string) error {
	if identity == "" {
		return errs.NoIdentity("reconcile")
	}

	p.mu.Lock()
	if p.cancel != nil {
		current := p.identity
		p.mu.Unlock()
		logger.Debug(logger.Prefix(current, "poller"), "already polling, start ignored")
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	if p.identity != "" && p.identity != identity {
		// another record; its snapshot must not seed comparisons
		p.snapshot = Snapshot{}
		p.have = false
		p.version++
	}
	p.identity = identity
	p.cancel = cancel
	p.done = done
	p.mu.Unlock()

	logger.Info(logger.Prefix(identity, "poller"), "polling every %v", p.interval)
	go p.loop(ctx, identity, done)
	return nil
}

// Stop cancels the loop, discards any in-flight result and waits for the loop
// to exit. Safe to call any number of times.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done, identity := p.cancel, p.done, p.identity
	p.cancel = nil
	p.done = nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	logger.Info(logger.Prefix(identity, "poller"), "polling stopped")
}

// Active reports whether the loop is running
func (p *Poller) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

// Snapshot returns the retained snapshot, if any
func (p *Poller) Snapshot() (Snapshot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot, p.have
}

// ForceUpdate increments the remote balance once and adopts the returned value
// as the retained snapshot. No decrease event is emitted for it.
func (p *Poller) ForceUpdate(ctx context.Context) (Snapshot, error) {
	p.mu.Lock()
	identity := p.identity
	p.mu.Unlock()
	if identity == "" {
		return Snapshot{}, errs.NoIdentity("reconcile")
	}
	prefix := logger.Prefix(identity, "poller")

	balance, err := p.fetcher.IncrementBalance(ctx, identity)
	if err != nil {
		logger.Warn(prefix, "force update failed: %v", err)
		return Snapshot{}, err
	}

	p.mu.Lock()
	snapshot := Snapshot{Balance: balance, ActivityFlag: p.snapshot.ActivityFlag, FetchedAt: p.now()}
	p.snapshot = snapshot
	p.have = true
	p.version++
	p.mu.Unlock()

	logger.Info(prefix, "💰 balance adopted: %.2f", balance)
	p.listener.OnStateUpdate(snapshot)
	return snapshot, nil
}

func (p *Poller) loop(ctx context.Context, identity string, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.poll(ctx, identity)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

type fetchResult struct {
	state account.State
	err   error
}

// poll runs one fetch on its own goroutine and applies the result on the loop
func (p *Poller) poll(ctx context.Context, identity string) {
	p.mu.Lock()
	version := p.version
	p.mu.Unlock()

	results := make(chan fetchResult, 1)
	go func() {
		state, err := p.fetcher.GetState(ctx, identity)
		results <- fetchResult{state: state, err: err}
	}()

	var r fetchResult
	select {
	case <-ctx.Done():
		return
	case r = <-results:
	}
	if ctx.Err() != nil {
		return
	}

	prefix := logger.Prefix(identity, "poller")
	if r.err != nil {
		if !errs.Is(r.err, errs.CodeNetworkFailure) {
			r.err = errs.NetworkFailure(r.err, "get_state")
		}
		logger.Warn(prefix, "fetch failed, keeping last snapshot: %v", r.err)
		p.listener.OnFetchError(r.err)
		return
	}
	p.apply(identity, version, r.state)
}

func (p *Poller) apply(identity string, version uint64, state account.State) {
	prefix := logger.Prefix(identity, "poller")
	current := Snapshot{Balance: state.Balance, ActivityFlag: state.ActivityFlag, FetchedAt: p.now()}

	p.mu.Lock()
	if version != p.version {
		// A force update landed while this fetch was in flight
		p.mu.Unlock()
		logger.Debug(prefix, "discarding fetch overtaken by force update")
		return
	}
	previous, had := p.snapshot, p.have
	p.snapshot = current
	p.have = true
	p.mu.Unlock()

	logger.TraceJSON(prefix, "snapshot", current)

	if had && current.Balance < previous.Balance {
		event := Event{
			Identity: identity,
			Previous: previous.Balance,
			Current:  current.Balance,
			Delta:    previous.Balance - current.Balance,
			At:       current.FetchedAt,
		}
		logger.Info(prefix, "💸 fare deducted: %.2f (balance %.2f → %.2f)", event.Delta, event.Previous, event.Current)
		p.listener.OnBalanceDecreased(event)
	}
	if had && current.ActivityFlag != previous.ActivityFlag {
		if al, ok := p.listener.(ActivityListener); ok {
			al.OnActivityChanged(current.ActivityFlag, current)
		}
	}
	p.listener.OnStateUpdate(current)
}
