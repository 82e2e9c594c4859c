package gate

import (
	"context"
	"sync"
	"time"

	"github.com/user/railpass-blue/account"
	"github.com/user/railpass-blue/logger"
)

// JourneyService opens and closes journeys on the account service
type JourneyService interface {
	StartJourney(ctx context.Context, identity string) (account.Journey, error)
	EndJourney(ctx context.Context, identity string) (account.JourneyEnd, error)
}

// Journeys is a Listener that opens a journey when a holder enters and closes
// it when they exit. A journey that failed to open is never closed. Each call
// is made once; failures are logged and dropped.
type Journeys struct {
	ctx     context.Context
	service JourneyService
	next    Listener

	mu   sync.Mutex
	open map[string]account.Journey
}

// NewJourneys creates a journey listener. next, if set, hears every
// transition after the service call.
func NewJourneys(ctx context.Context, service JourneyService, next Listener) *Journeys {
	return &Journeys{ctx: ctx, service: service, next: next, open: make(map[string]account.Journey)}
}

// OnEnter opens a journey for the holder
func (j *Journeys) OnEnter(p Presence) {
	prefix := logger.Prefix(p.Identity, "journey")
	journey, err := j.service.StartJourney(j.ctx, p.Identity)
	if err != nil {
		logger.Warn(prefix, "journey start failed: %v", err)
	} else {
		j.mu.Lock()
		j.open[p.Identity] = journey
		j.mu.Unlock()
		logger.Info(prefix, "🎫 journey %s started", logger.Short(journey.ID))
	}
	if j.next != nil {
		j.next.OnEnter(p)
	}
}

// OnExit closes the holder's journey if one was opened
func (j *Journeys) OnExit(p Presence, absent time.Duration) {
	prefix := logger.Prefix(p.Identity, "journey")
	j.mu.Lock()
	journey, ok := j.open[p.Identity]
	delete(j.open, p.Identity)
	j.mu.Unlock()

	if !ok {
		logger.Debug(prefix, "no journey to end")
	} else if end, err := j.service.EndJourney(j.ctx, p.Identity); err != nil {
		logger.Warn(prefix, "journey %s end failed: %v", logger.Short(journey.ID), err)
	} else {
		logger.Info(prefix, "💳 journey %s ended, fare %.2f, balance %.2f", logger.Short(end.ID), end.Fare, end.RemainingBalance)
	}
	if j.next != nil {
		j.next.OnExit(p, absent)
	}
}

// Open reports whether identity has an open journey
func (j *Journeys) Open(identity string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	_, ok := j.open[identity]
	return ok
}
