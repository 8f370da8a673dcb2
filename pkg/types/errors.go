package types

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies engine failures
type ErrorKind string

const (
	InvalidAddress      ErrorKind = "InvalidAddress"
	InvalidAmount       ErrorKind = "InvalidAmount"
	InsufficientBalance ErrorKind = "InsufficientBalance"
	QuoteUnavailable    ErrorKind = "QuoteUnavailable"
	RouteMismatch       ErrorKind = "RouteMismatch"
	FeeEstimationFailed ErrorKind = "FeeEstimationFailed"
	StaleSigningContext ErrorKind = "StaleSigningContext"
	RateLimited         ErrorKind = "RateLimited"
	NodeUnavailable     ErrorKind = "NodeUnavailable"
	TransactionFailed   ErrorKind = "TransactionFailed"
	TransactionTimedOut ErrorKind = "TransactionTimedOut"
	PersistenceFailed   ErrorKind = "PersistenceFailed"
	ExecutionFailed     ErrorKind = "ExecutionFailed"
	WalletUnavailable   ErrorKind = "WalletUnavailable"
	UnsupportedChain    ErrorKind = "UnsupportedChain"
)

// Transient reports whether the engine retries this kind internally
func (k ErrorKind) Transient() bool {
	switch k {
	case RateLimited, StaleSigningContext, NodeUnavailable:
		return true
	}
	return false
}

// Error is the structured error returned across package boundaries
type Error struct {
	Kind ErrorKind
	Op   string
	Msg  string
	Err  error

	// RetryAfter is the server-provided pause for RateLimited errors
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E builds a classified error with a formatted message
func E(kind ErrorKind, op string, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error. An already classified error keeps its kind.
func Wrap(kind ErrorKind, op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first classified error in the chain
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind
func Is(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// RetryAfterOf returns the retry hint carried by a RateLimited error
func RetryAfterOf(err error) time.Duration {
	var e *Error
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}

// Boundary maps unclassified faults to ExecutionFailed, preserving the message
func Boundary(op string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != "" {
		return err
	}
	return &Error{Kind: ExecutionFailed, Op: op, Msg: err.Error(), Err: err}
}

// As classifies err under kind even when it already carries another kind
func As(kind ErrorKind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}
