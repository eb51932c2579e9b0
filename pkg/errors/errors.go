// Package errors carries the storefront's typed error codes. Every code maps
// to the HTTP status, public message and retry hint the API and the checkout
// client agree on.
package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"

	CodeOutOfStock                Code = "OUT_OF_STOCK"
	CodeInvalidCoupon             Code = "INVALID_COUPON"
	CodeCouponExpired             Code = "COUPON_EXPIRED"
	CodeOrderValueBelowMinimum    Code = "ORDER_VALUE_BELOW_MINIMUM"
	CodeOrderCreationFailed       Code = "ORDER_CREATION_FAILED"
	CodePaymentGatewayUnavailable Code = "PAYMENT_GATEWAY_UNAVAILABLE"
	CodePaymentVerificationFailed Code = "PAYMENT_VERIFICATION_FAILED"
)

// Metadata is what the transport layer needs to know about a code.
// DetailsAllowed marks codes whose details are safe to show the shopper.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

type metaOpt func(*Metadata)

func retryable(m *Metadata)   { m.Retryable = true }
func withDetails(m *Metadata) { m.DetailsAllowed = true }

func meta(status int, public string, opts ...metaOpt) Metadata {
	m := Metadata{HTTPStatus: status, PublicMessage: public}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

var registry = map[Code]Metadata{
	CodeValidation:    meta(http.StatusBadRequest, "validation failed", withDetails),
	CodeUnauthorized:  meta(http.StatusUnauthorized, "authentication required"),
	CodeForbidden:     meta(http.StatusForbidden, "access denied"),
	CodeNotFound:      meta(http.StatusNotFound, "resource not found"),
	CodeConflict:      meta(http.StatusConflict, "conflict detected"),
	CodeStateConflict: meta(http.StatusUnprocessableEntity, "state transition disallowed", withDetails),
	CodeIdempotency:   meta(http.StatusConflict, "idempotency key reused", withDetails),
	CodeInternal:      meta(http.StatusInternalServerError, "internal server error", retryable),
	CodeDependency:    meta(http.StatusServiceUnavailable, "dependency unavailable", retryable, withDetails),

	CodeOutOfStock:                meta(http.StatusConflict, "requested quantity is not available", withDetails),
	CodeInvalidCoupon:             meta(http.StatusUnprocessableEntity, "coupon is not valid", withDetails),
	CodeCouponExpired:             meta(http.StatusUnprocessableEntity, "coupon has expired", withDetails),
	CodeOrderValueBelowMinimum:    meta(http.StatusUnprocessableEntity, "order value is below the coupon minimum", withDetails),
	CodeOrderCreationFailed:       meta(http.StatusUnprocessableEntity, "orders could not be created", withDetails),
	CodePaymentGatewayUnavailable: meta(http.StatusBadGateway, "payment gateway unavailable", retryable),
	CodePaymentVerificationFailed: meta(http.StatusPaymentRequired, "payment could not be verified", withDetails),
}

// MetadataFor falls back to CodeInternal for codes it does not know.
func MetadataFor(code Code) Metadata {
	if m, ok := registry[code]; ok {
		return m
	}
	return registry[CodeInternal]
}

func (c Code) Metadata() Metadata { return MetadataFor(c) }

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap keeps err reachable through errors.Is/As.
func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case e.cause != nil:
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	default:
		return fmt.Sprintf("%s: %s", e.code, e.message)
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As returns the outermost typed error in err's chain, or nil.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.Code() == code
}

// Retryable reports whether repeating the same request may succeed. Errors
// without a code are treated as transient.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	typed := As(err)
	if typed == nil {
		return true
	}
	m := typed.Code().Metadata()
	return m.Retryable || m.HTTPStatus >= http.StatusInternalServerError
}
