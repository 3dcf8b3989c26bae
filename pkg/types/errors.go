package types

import (
	"errors"
	"fmt"
	"time"
)

// TransientError is a network failure or 5xx response. Callers may retry.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient failure: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// AuthenticationError is returned after the single re-authentication attempt failed.
type AuthenticationError struct {
	Op      string
	Status  int
	Code    int
	Message string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("%s: authentication failed (status %d, code %d): %s", e.Op, e.Status, e.Code, e.Message)
}

// RateLimitError signals the exchange asked us to back off.
type RateLimitError struct {
	Op         string
	Status     int
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: rate limited (status %d), retry after %s", e.Op, e.Status, e.RetryAfter)
}

// RejectionError is a terminal exchange rejection. Message is the exchange's reason verbatim.
type RejectionError struct {
	Op      string
	Status  int
	Code    int
	Message string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%s: rejected by exchange (code %d): %s", e.Op, e.Code, e.Message)
}

// Binance error codes the engine reacts to.
const (
	CodeTimestampOutsideRecvWindow = -1021
	CodeInvalidSignature           = -1022
	CodeNewOrderRejected           = -2010
	CodeCancelRejected             = -2011
	CodeNoSuchOrder                = -2013
	CodeRejectedMBXKey             = -2015
)

// IsUnknownOrder reports whether err says the order no longer exists on the
// exchange (already filled, canceled, or never known). Cancel callers treat
// this as success-equivalent.
func IsUnknownOrder(err error) bool {
	var rej *RejectionError
	if !errors.As(err, &rej) {
		return false
	}
	switch rej.Code {
	case CodeNoSuchOrder:
		return true
	case CodeCancelRejected:
		return rej.Message == "Unknown order sent." || rej.Message == "Order does not exist."
	}
	return false
}

// IsDuplicateOrder reports whether a placement was rejected because an open
// order with the same client order id already exists.
func IsDuplicateOrder(err error) bool {
	var rej *RejectionError
	if !errors.As(err, &rej) {
		return false
	}
	return rej.Code == CodeNewOrderRejected && rej.Message == "Duplicate order sent."
}

// IsRetryable reports whether err is worth retrying on a later attempt.
func IsRetryable(err error) bool {
	var transient *TransientError
	var rateLimit *RateLimitError
	return errors.As(err, &transient) || errors.As(err, &rateLimit)
}
