// Package gate is the receiver side: it turns advertisement sightings into
// holder presence, with an RSSI threshold for proximity and an exit delay so a
// holder is only considered gone after staying unheard for a while.
package gate

import (
	"sort"
	"sync"
	"time"

	"github.com/user/railpass-blue/broadcast"
	"github.com/user/railpass-blue/logger"
	"github.com/user/railpass-blue/wire/advertising"
)

const (
	// DefaultRSSIThreshold is roughly 2-3 metres, inside a carriage
	DefaultRSSIThreshold = -70
	// DefaultExitDelay is how long a holder must be unheard to count as exited
	DefaultExitDelay = 10 * time.Second
)

// Detection is one identity heard on air
type Detection struct {
	Identity string
	Address  string
	RSSI     int
	At       time.Time
}

// Detect extracts an identity from decoded advertising data
func Detect(address string, rssi int, structures []advertising.ADStructure, at time.Time) (Detection, bool) {
	id, ok := broadcast.ExtractIdentity(structures)
	if !ok {
		return Detection{}, false
	}
	return Detection{Identity: id, Address: address, RSSI: rssi, At: at}, true
}

// Presence is a holder currently considered in range
type Presence struct {
	Identity  string
	Address   string
	RSSI      int
	FirstSeen time.Time
	LastSeen  time.Time
}

// Listener hears enter and exit transitions
type Listener interface {
	OnEnter(p Presence)
	OnExit(p Presence, absent time.Duration)
}

// Tracker keeps the set of holders in range
type Tracker struct {
	mu        sync.Mutex
	threshold int
	exitDelay time.Duration
	listener  Listener
	present   map[string]*Presence
}

// Option configures a Tracker
type Option func(*Tracker)

// WithThreshold sets the minimum RSSI (dBm) a detection needs to count
func WithThreshold(dbm int) Option {
	return func(t *Tracker) { t.threshold = dbm }
}

// WithExitDelay sets how long a holder may go unheard before exiting
func WithExitDelay(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.exitDelay = d
		}
	}
}

// WithListener registers enter/exit notifications
func WithListener(l Listener) Option {
	return func(t *Tracker) { t.listener = l }
}

// NewTracker creates an empty tracker
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		threshold: DefaultRSSIThreshold,
		exitDelay: DefaultExitDelay,
		present:   make(map[string]*Presence),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Observe records a detection. Weak signals are ignored. It reports whether
// the detection was counted.
func (t *Tracker) Observe(d Detection) bool {
	if d.Identity == "" || d.RSSI < t.threshold {
		return false
	}

	t.mu.Lock()
	p, known := t.present[d.Identity]
	if known {
		// detections can arrive out of order; only newer ones refresh
		if d.At.After(p.LastSeen) {
			p.LastSeen = d.At
			p.RSSI = d.RSSI
			p.Address = d.Address
		}
		t.mu.Unlock()
		return true
	}
	p = &Presence{Identity: d.Identity, Address: d.Address, RSSI: d.RSSI, FirstSeen: d.At, LastSeen: d.At}
	t.present[d.Identity] = p
	entered := *p
	t.mu.Unlock()

	logger.Info(logger.Prefix(d.Identity, "gate"), "🚶 holder detected (%s, %d dBm)", d.Address, d.RSSI)
	if t.listener != nil {
		t.listener.OnEnter(entered)
	}
	return true
}

// Sweep exits every holder unheard for longer than the exit delay at now
func (t *Tracker) Sweep(now time.Time) []Presence {
	t.mu.Lock()
	var exited []Presence
	for id, p := range t.present {
		if now.Sub(p.LastSeen) > t.exitDelay {
			exited = append(exited, *p)
			delete(t.present, id)
		}
	}
	t.mu.Unlock()

	sort.Slice(exited, func(i, j int) bool { return exited[i].Identity < exited[j].Identity })
	for _, p := range exited {
		absent := now.Sub(p.LastSeen)
		logger.Info(logger.Prefix(p.Identity, "gate"), "🚪 holder exited (unheard for %v)", absent.Round(time.Second))
		if t.listener != nil {
			t.listener.OnExit(p, absent)
		}
	}
	return exited
}

// Present lists the holders in range, ordered by identity
func (t *Tracker) Present() []Presence {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Presence, 0, len(t.present))
	for _, p := range t.present {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out
}
