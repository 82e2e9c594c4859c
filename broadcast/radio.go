package broadcast

import (
	"context"
	"errors"
	"fmt"

	"github.com/user/railpass-blue/errs"
)

// Radio is the host's advertiser. Advertise returns once the platform has
// accepted or rejected the request; the broadcast itself keeps running in the
// background until Stop.
type Radio interface {
	Enable() error
	Advertise(ctx context.Context, adv *Advertisement) error
	Stop() error
}

// Keepalive stands in for the host's durable-task primitive: while held, the
// host must not reclaim the process running the radio session.
type Keepalive interface {
	Acquire(identity string)
	Release()
}

type nopKeepalive struct{}

func (nopKeepalive) Acquire(string) {}
func (nopKeepalive) Release()       {}

// NopKeepalive is for hosts whose process lifetime already covers the session
var NopKeepalive Keepalive = nopKeepalive{}

// FailureReason classifies why a session ended before advertising
type FailureReason int

// Platform reasons match the Android advertiser error codes
const (
	ReasonNone               FailureReason = 0
	ReasonDataTooLarge       FailureReason = 1
	ReasonTooManyAdvertisers FailureReason = 2
	ReasonAlreadyStarted     FailureReason = 3
	ReasonInternalError      FailureReason = 4
	ReasonFeatureUnsupported FailureReason = 5
	ReasonRadioUnavailable   FailureReason = 100
	ReasonUnauthorized       FailureReason = 101
	ReasonEncodingTooLarge   FailureReason = 102
)

func (r FailureReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonDataTooLarge:
		return "data too large"
	case ReasonTooManyAdvertisers:
		return "too many advertisers"
	case ReasonAlreadyStarted:
		return "already started"
	case ReasonInternalError:
		return "internal error"
	case ReasonFeatureUnsupported:
		return "feature unsupported"
	case ReasonRadioUnavailable:
		return "radio unavailable"
	case ReasonUnauthorized:
		return "authorization denied"
	case ReasonEncodingTooLarge:
		return "encoding too large"
	}
	return fmt.Sprintf("unknown error %d", int(r))
}

// StartError is what a Radio returns when the platform rejects a start request
type StartError struct {
	Reason FailureReason
	Err    error
}

func (e *StartError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("advertising failed: %s: %v", e.Reason, e.Err)
	}
	return "advertising failed: " + e.Reason.String()
}

func (e *StartError) Unwrap() error { return e.Err }

// classify maps any start-path error onto the module taxonomy
func classify(err error) (FailureReason, error) {
	var startErr *StartError
	if errors.As(err, &startErr) {
		switch startErr.Reason {
		case ReasonUnauthorized:
			return startErr.Reason, errs.AuthorizationDenied(err)
		case ReasonRadioUnavailable:
			return startErr.Reason, errs.RadioUnavailable(err)
		default:
			return startErr.Reason, errs.RadioStartFailed(err, startErr.Reason.String())
		}
	}

	switch errs.TextCode(err) {
	case errs.CodeEncodingTooLarge:
		return ReasonEncodingTooLarge, err
	case errs.CodeRadioUnavailable:
		return ReasonRadioUnavailable, err
	case errs.CodeAuthorizationDenied:
		return ReasonUnauthorized, err
	case errs.CodeRadioStartFailed:
		return ReasonInternalError, err
	}
	return ReasonInternalError, errs.RadioStartFailed(err, ReasonInternalError.String())
}
