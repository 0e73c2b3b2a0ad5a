package t402

import (
	"fmt"
	"strings"
)

// ErrorCode is the abstract error taxonomy from the error-handling design:
// CONFIG/WIRE/POLICY/VERIFY/SETTLE/HOOK/HANDLER.
type ErrorCode string

const (
	ErrMissingScheme      ErrorCode = "missing_scheme"
	ErrMissingFacilitator ErrorCode = "missing_facilitator"
	ErrNoFacilitatorKind  ErrorCode = "no_facilitator_for_kind"

	ErrMalformedWire    ErrorCode = "malformed_wire"
	ErrMissingHeader    ErrorCode = "missing_header"
	ErrNoMatchingAccept ErrorCode = "no_matching_requirement"

	ErrNoAcceptableOption ErrorCode = "no_acceptable_option"

	ErrInvalidSignature  ErrorCode = "invalid_signature"
	ErrWrongPayee        ErrorCode = "wrong_payee"
	ErrWrongAmount       ErrorCode = "wrong_amount"
	ErrExpiredAuthz      ErrorCode = "expired_authorization"
	ErrDuplicateNonce    ErrorCode = "duplicate_nonce"

	ErrSettleTransient ErrorCode = "settle_transient"
	ErrSettlePermanent ErrorCode = "settle_permanent"

	ErrHookAborted  ErrorCode = "hook_aborted"
	ErrHookPanicked ErrorCode = "hook_panicked"

	ErrHandlerFailed ErrorCode = "handler_failed"
)

// PaymentError is the single error type propagated across the handshake:
// a typed code plus a human message exactly as surfaced by a facilitator's
// invalidReason/errorReason, or a hook's abort reason.
type PaymentError struct {
	Code    ErrorCode
	Message string
}

func (e *PaymentError) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewPaymentError(code ErrorCode, message string) *PaymentError {
	return &PaymentError{Code: code, Message: message}
}

// RouteConfigurationError aggregates every route's configuration failure
// found during lazy initialization into a single fatal report, rather than
// failing on the first bad route.
type RouteConfigurationError struct {
	Reasons []RouteConfigReason
}

type RouteConfigReason struct {
	Route  string
	Code   ErrorCode
	Detail string
}

func (e *RouteConfigurationError) Error() string {
	parts := make([]string, 0, len(e.Reasons))
	for _, r := range e.Reasons {
		parts = append(parts, fmt.Sprintf("%s: %s (%s)", r.Route, r.Code, r.Detail))
	}
	return "route configuration errors: " + strings.Join(parts, "; ")
}

func (e *RouteConfigurationError) Add(route string, code ErrorCode, detail string) {
	e.Reasons = append(e.Reasons, RouteConfigReason{Route: route, Code: code, Detail: detail})
}

func (e *RouteConfigurationError) HasErrors() bool {
	return len(e.Reasons) > 0
}
