package errs

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// Text codes carried by every error this module returns
const (
	CodeEncodingTooLarge    = "ENCODING_TOO_LARGE"
	CodeRadioUnavailable    = "RADIO_UNAVAILABLE"
	CodeRadioStartFailed    = "RADIO_START_FAILED"
	CodeAuthorizationDenied = "AUTHORIZATION_DENIED"
	CodeNetworkFailure      = "NETWORK_FAILURE"
	CodeRegistrationFailure = "REGISTRATION_FAILURE"
	CodeNoIdentity          = "NO_IDENTITY"
	CodeIdentityConflict    = "IDENTITY_CONFLICT"
)

func newError(message string, category goerrors.Category, code int, textCode string, metadata map[string]any) *goerrors.Error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func wrapError(source error, message string, category goerrors.Category, code int, textCode string, metadata map[string]any) *goerrors.Error {
	if source == nil {
		return newError(message, category, code, textCode, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

// EncodingTooLarge reports a payload that does not fit the advertising budget
func EncodingTooLarge(size, budget int) error {
	return newError("advertisement payload exceeds budget", goerrors.CategoryValidation,
		http.StatusRequestEntityTooLarge, CodeEncodingTooLarge,
		map[string]any{"size": size, "budget": budget})
}

// RadioUnavailable reports a host without a usable advertiser
func RadioUnavailable(source error) error {
	return wrapError(source, "radio unavailable", goerrors.CategoryExternal,
		http.StatusServiceUnavailable, CodeRadioUnavailable, nil)
}

// RadioStartFailed reports a platform-level start failure with its reason
func RadioStartFailed(source error, reason string) error {
	return wrapError(source, "radio start failed: "+reason, goerrors.CategoryOperation,
		http.StatusBadGateway, CodeRadioStartFailed, map[string]any{"reason": reason})
}

// AuthorizationDenied reports a host that refused the broadcast operation
func AuthorizationDenied(source error) error {
	return wrapError(source, "broadcast not authorized", goerrors.CategoryAuthz,
		http.StatusForbidden, CodeAuthorizationDenied, nil)
}

// NetworkFailure reports a failed exchange with the account service
func NetworkFailure(source error, operation string) error {
	return wrapError(source, operation+" request failed", goerrors.CategoryExternal,
		http.StatusBadGateway, CodeNetworkFailure, map[string]any{"operation": operation})
}

// RegistrationFailure reports that no identity could be obtained
func RegistrationFailure(source error) error {
	return wrapError(source, "registration failed", goerrors.CategoryExternal,
		http.StatusBadGateway, CodeRegistrationFailure, nil)
}

// NoIdentity is the precondition-not-met signal for components that need an identity
func NoIdentity(component string) error {
	return newError(component+": no identity provisioned", goerrors.CategoryBadInput,
		http.StatusPreconditionFailed, CodeNoIdentity, map[string]any{"component": component})
}

// IdentityConflict reports an attempt to replace a persisted identity
func IdentityConflict(existing, replacement string) error {
	return newError("identity already provisioned", goerrors.CategoryConflict,
		http.StatusConflict, CodeIdentityConflict,
		map[string]any{"existing": existing, "replacement": replacement})
}

// Is reports whether err carries the given text code
func Is(err error, textCode string) bool {
	return TextCode(err) == textCode
}

// TextCode extracts the text code from err, or "" for foreign errors
func TextCode(err error) string {
	if err == nil {
		return ""
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return strings.TrimSpace(rich.TextCode)
	}
	return ""
}

// Category extracts the go-errors category from err
func Category(err error) (goerrors.Category, bool) {
	var rich *goerrors.Error
	if err != nil && goerrors.As(err, &rich) {
		return rich.Category, true
	}
	var none goerrors.Category
	return none, false
}
