package broadcast

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/user/railpass-blue/errs"
	"github.com/user/railpass-blue/logger"
)

// State of the broadcast lifecycle
type State int

const (
	StateIdle State = iota
	StateStarting
	StateAdvertising
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateAdvertising:
		return "advertising"
	case StateStopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Session is the one advertising session a Manager may hold
type Session struct {
	Identity  string
	Settings  Settings
	Placement string
	Payload   []byte
	Data      []byte
	StartedAt time.Time
}

// Failure records why the last start attempt ended the session
type Failure struct {
	Identity string
	Reason   FailureReason
	Err      error
	At       time.Time
}

// Callback mirrors the platform advertise callback
type Callback interface {
	OnStartSuccess(session Session)
	OnStartFailure(failure Failure)
}

// Manager owns start/stop of radio advertising for one identity at a time
type Manager struct {
	mu        sync.Mutex
	radio     Radio
	placement Placement
	settings  Settings
	callback  Callback
	keepalive Keepalive
	now       func() time.Time

	state       State
	session     *Session
	lastFailure *Failure
	held        bool
	expiry      *time.Timer
}

// Option configures a Manager
type Option func(*Manager)

// WithPlacement selects the payload placement strategy
func WithPlacement(p Placement) Option {
	return func(m *Manager) {
		if p != nil {
			m.placement = p
		}
	}
}

// WithSettings overrides the default advertising parameters
func WithSettings(s Settings) Option {
	return func(m *Manager) { m.settings = s }
}

// WithCallback registers start success/failure notifications
func WithCallback(cb Callback) Option {
	return func(m *Manager) { m.callback = cb }
}

// WithKeepalive installs the host durable-task hook
func WithKeepalive(k Keepalive) Option {
	return func(m *Manager) {
		if k != nil {
			m.keepalive = k
		}
	}
}

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates an idle manager on top of radio
func NewManager(radio Radio, opts ...Option) *Manager {
	m := &Manager{
		radio:     radio,
		placement: PlacementManufacturerData,
		settings:  DefaultSettings(),
		keepalive: NopKeepalive,
		now:       time.Now,
		state:     StateIdle,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start encodes identity and begins advertising. Every failure is terminal for
// the attempt: the manager returns to Idle and nothing is retried.
func (m *Manager) Start(ctx context.Context, identity string) error {
	if identity == "" {
		return errs.NoIdentity("broadcast")
	}
	prefix := logger.Prefix(identity, "broadcast")

	m.mu.Lock()
	if m.state == StateStarting || m.state == StateAdvertising {
		m.mu.Unlock()
		err := errs.RadioStartFailed(nil, ReasonAlreadyStarted.String())
		logger.Warn(prefix, "start ignored: session already %s", m.State())
		return err
	}
	if m.radio == nil {
		m.mu.Unlock()
		return m.fail(identity, ReasonRadioUnavailable, errs.RadioUnavailable(nil), false)
	}

	adv, err := BuildAdvertisement(identity, m.placement, m.settings)
	if err != nil {
		m.mu.Unlock()
		reason, classified := classify(err)
		return m.fail(identity, reason, classified, false)
	}

	m.state = StateStarting
	m.session = &Session{
		Identity:  identity,
		Settings:  adv.Settings,
		Placement: adv.Placement.Name(),
		Payload:   adv.Payload,
		Data:      adv.Data,
	}
	m.keepalive.Acquire(identity)
	m.held = true
	m.mu.Unlock()

	logger.Debug(prefix, "starting: placement=%s mode=%s power=%s payload=%q",
		adv.Placement.Name(), adv.Settings.Mode, adv.Settings.TxPower, adv.Payload)
	logger.Trace(prefix, "advertising data % X", adv.Data)

	if err := m.radio.Enable(); err != nil {
		reason, classified := classify(&StartError{Reason: ReasonRadioUnavailable, Err: err})
		return m.fail(identity, reason, classified, true)
	}
	if err := m.radio.Advertise(ctx, adv); err != nil {
		reason, classified := classify(err)
		return m.fail(identity, reason, classified, true)
	}

	m.mu.Lock()
	if m.state != StateStarting || m.session == nil || m.session.Identity != identity {
		// Stop won the race; it already released the session
		m.mu.Unlock()
		logger.Debug(prefix, "stopped while starting, discarding radio session")
		if err := m.radio.Stop(); err != nil {
			logger.Warn(prefix, "radio stop after cancelled start: %v", err)
		}
		return nil
	}
	m.state = StateAdvertising
	m.session.StartedAt = m.now()
	if timeout := m.session.Settings.Timeout; timeout > 0 {
		current := m.session
		m.expiry = time.AfterFunc(timeout, func() { m.expire(current) })
	}
	session := *m.session
	cb := m.callback
	m.mu.Unlock()

	logger.Info(prefix, "📡 advertising started")
	logger.DebugJSON(prefix, "session", session)
	if cb != nil {
		cb.OnStartSuccess(session)
	}
	return nil
}

// fail ends the current attempt: Starting → Idle, radio released, failure recorded.
// started marks attempts that already reached Starting; if Stop ran since, the
// stopped state stands and the failure is not reported.
func (m *Manager) fail(identity string, reason FailureReason, err error, started bool) error {
	m.mu.Lock()
	wasStarting := m.state == StateStarting && m.session != nil && m.session.Identity == identity
	if started && !wasStarting {
		m.mu.Unlock()
		logger.Debug(logger.Prefix(identity, "broadcast"), "stopped while starting, dropping failure: %v", err)
		return err
	}
	m.state = StateIdle
	if wasStarting {
		m.session = nil
	}
	release := m.held && wasStarting
	if release {
		m.held = false
	}
	failure := Failure{Identity: identity, Reason: reason, Err: err, At: m.now()}
	m.lastFailure = &failure
	cb := m.callback
	m.mu.Unlock()

	if release {
		m.keepalive.Release()
	}
	if wasStarting && m.radio != nil {
		if stopErr := m.radio.Stop(); stopErr != nil {
			logger.Trace(logger.Prefix(identity, "broadcast"), "radio stop after failure: %v", stopErr)
		}
	}

	logger.Error(logger.Prefix(identity, "broadcast"), "❌ advertising failed: %s (%v)", reason, err)
	if cb != nil {
		cb.OnStartFailure(failure)
	}
	return err
}

// Stop ends any session. It is safe to call in any state, any number of times.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.stopLocked()
}

// expire ends session once its advertising timeout elapses, unless it has
// already been replaced or stopped
func (m *Manager) expire(session *Session) {
	m.mu.Lock()
	if m.session != session || m.state != StateAdvertising {
		m.mu.Unlock()
		return
	}
	logger.Info(logger.Prefix(session.Identity, "broadcast"), "advertising timeout reached after %v", session.Settings.Timeout)
	m.stopLocked()
}

// stopLocked moves to Stopped and releases the radio. Called with m.mu held;
// returns with it released.
func (m *Manager) stopLocked() {
	prev := m.state
	m.state = StateStopped
	var identity string
	if m.session != nil {
		identity = m.session.Identity
	}
	m.session = nil
	release := m.held
	m.held = false
	if m.expiry != nil {
		m.expiry.Stop()
		m.expiry = nil
	}
	m.mu.Unlock()

	if prev == StateStarting || prev == StateAdvertising {
		if err := m.radio.Stop(); err != nil {
			logger.Warn(logger.Prefix(identity, "broadcast"), "radio stop: %v", err)
		}
		logger.Info(logger.Prefix(identity, "broadcast"), "📡 advertising stopped")
	}
	if release {
		m.keepalive.Release()
	}
}

// State returns the current lifecycle state
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Session returns a copy of the current session, if any
func (m *Manager) Session() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return Session{}, false
	}
	return *m.session, true
}

// LastFailure returns the most recent terminal failure, if any
func (m *Manager) LastFailure() (Failure, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastFailure == nil {
		return Failure{}, false
	}
	return *m.lastFailure, true
}
