package gate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/user/railpass-blue/account"
)

type fakeJourneys struct {
	startErr error
	starts   []string
	ends     []string
}

func (f *fakeJourneys) StartJourney(ctx context.Context, identity string) (account.Journey, error) {
	f.starts = append(f.starts, identity)
	if f.startErr != nil {
		return account.Journey{}, f.startErr
	}
	return account.Journey{ID: "J-" + identity}, nil
}

func (f *fakeJourneys) EndJourney(ctx context.Context, identity string) (account.JourneyEnd, error) {
	f.ends = append(f.ends, identity)
	return account.JourneyEnd{ID: "J-" + identity, Fare: 20, RemainingBalance: 80}, nil
}

func TestJourneysFollowPresence(t *testing.T) {
	service := &fakeJourneys{}
	rec := &transitions{}
	journeys := NewJourneys(context.Background(), service, rec)
	tr := NewTracker(WithListener(journeys))
	t0 := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	tr.Observe(Detection{Identity: "ABC", RSSI: -50, At: t0})
	tr.Observe(Detection{Identity: "ABC", RSSI: -50, At: t0.Add(time.Second)})
	if len(service.starts) != 1 || !journeys.Open("ABC") {
		t.Fatalf("Expected one journey start, got %v", service.starts)
	}

	tr.Sweep(t0.Add(20 * time.Second))
	if len(service.ends) != 1 || service.ends[0] != "ABC" {
		t.Fatalf("Expected journey end on exit, got %v", service.ends)
	}
	if journeys.Open("ABC") {
		t.Error("Journey should be closed after exit")
	}
	if len(rec.enters) != 1 || len(rec.exits) != 1 {
		t.Errorf("Expected transitions passed on, got enters=%v exits=%v", rec.enters, rec.exits)
	}
}

func TestJourneysSkipEndWhenStartFailed(t *testing.T) {
	service := &fakeJourneys{startErr: errors.New("404 User not found")}
	tr := NewTracker(WithListener(NewJourneys(context.Background(), service, nil)))
	t0 := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	tr.Observe(Detection{Identity: "ABC", RSSI: -50, At: t0})
	tr.Sweep(t0.Add(20 * time.Second))

	if len(service.starts) != 1 {
		t.Errorf("Expected exactly one start attempt, got %v", service.starts)
	}
	if len(service.ends) != 0 {
		t.Errorf("Journey that never started must not be ended, got %v", service.ends)
	}
}
