package account

import (
	"context"
	"fmt"
	"net/http"

	"github.com/user/railpass-blue/errs"
	"github.com/user/railpass-blue/logger"
)

const (
	pathJourneyStart = "/journey_start"
	pathJourneyEnd   = "/journey_end"

	messageJourneyAlreadyActive = "Journey already active"
)

// Journey is an open trip for one holder
type Journey struct {
	ID      string
	Resumed bool // the service already had this journey open
}

// JourneyEnd is the settlement returned when a journey closes
type JourneyEnd struct {
	ID               string
	Fare             float64
	RemainingBalance float64
}

type journeyStartResponse struct {
	Message   string `json:"message"`
	JourneyID string `json:"journey_id"`
}

type journeyEndResponse struct {
	JourneyID        string   `json:"journey_id"`
	FareAmount       float64  `json:"fare_amount"`
	RemainingBalance *float64 `json:"remaining_balance"`
}

// StartJourney opens a journey for identity, as a gate does when the holder
// comes into range. Sent exactly once.
func (c *Client) StartJourney(ctx context.Context, identity string) (Journey, error) {
	if identity == "" {
		return Journey{}, errs.NoIdentity("account")
	}
	var resp journeyStartResponse
	if err := c.call(ctx, http.MethodPost, pathJourneyStart, identity, &resp); err != nil {
		return Journey{}, errs.NetworkFailure(err, "journey_start")
	}
	if resp.JourneyID == "" {
		return Journey{}, errs.NetworkFailure(fmt.Errorf("response has no journey_id"), "journey_start")
	}
	journey := Journey{ID: resp.JourneyID, Resumed: resp.Message == messageJourneyAlreadyActive}
	logger.Debug(logger.Prefix(identity, "account"), "journey %s open (resumed=%v)", logger.Short(journey.ID), journey.Resumed)
	return journey, nil
}

// EndJourney closes the open journey for identity; the service deducts the
// fare. Sent exactly once.
func (c *Client) EndJourney(ctx context.Context, identity string) (JourneyEnd, error) {
	if identity == "" {
		return JourneyEnd{}, errs.NoIdentity("account")
	}
	var resp journeyEndResponse
	if err := c.call(ctx, http.MethodPost, pathJourneyEnd, identity, &resp); err != nil {
		return JourneyEnd{}, errs.NetworkFailure(err, "journey_end")
	}
	if resp.RemainingBalance == nil {
		return JourneyEnd{}, errs.NetworkFailure(fmt.Errorf("response has no remaining_balance"), "journey_end")
	}
	return JourneyEnd{ID: resp.JourneyID, Fare: resp.FareAmount, RemainingBalance: *resp.RemainingBalance}, nil
}
