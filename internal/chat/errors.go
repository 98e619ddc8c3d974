package chat

import (
	"errors"
	"fmt"
)

// Code classifies a chat failure at the API trust boundary.
type Code string

const (
	CodeValidation          Code = "VALIDATION"
	CodeBlocked             Code = "BLOCKED"
	CodeInsufficientBalance Code = "INSUFFICIENT_BALANCE"
	CodeNotFound            Code = "NOT_FOUND"
	CodeTransport           Code = "TRANSPORT"
)

// Error is the typed failure returned by the chat service. VALIDATION,
// BLOCKED and INSUFFICIENT_BALANCE are always rejected before any
// persistence, so a failed send is never partially applied.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	// Required and Shortfall are set only for INSUFFICIENT_BALANCE so
	// the client can open the purchase prompt with the exact gap.
	Required  int64 `json:"required,omitempty"`
	Shortfall int64 `json:"shortfall,omitempty"`
	// Err keeps the underlying cause for errors.Is checks on TRANSPORT
	// failures. It never serializes.
	Err error `json:"-"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrValidation builds a VALIDATION error.
func ErrValidation(msg string) *Error {
	return &Error{Code: CodeValidation, Message: msg}
}

// ErrBlocked is returned when either direction of a pair is blocked.
func ErrBlocked() *Error {
	return &Error{Code: CodeBlocked, Message: "cannot message this user"}
}

// ErrInsufficientBalance carries the cost of the rejected send and how
// much the sender is short.
func ErrInsufficientBalance(required, balance int64) *Error {
	return &Error{
		Code:      CodeInsufficientBalance,
		Message:   "not enough diamonds",
		Required:  required,
		Shortfall: required - balance,
	}
}

// ErrNotFound builds a NOT_FOUND error.
func ErrNotFound(what string) *Error {
	return &Error{Code: CodeNotFound, Message: what + " not found"}
}

// AsError extracts a typed chat error from an error chain.
func AsError(err error) (*Error, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// CodeOf returns the taxonomy code of an error, defaulting to
// TRANSPORT for anything untyped.
func CodeOf(err error) Code {
	if ce, ok := AsError(err); ok {
		return ce.Code
	}
	return CodeTransport
}
