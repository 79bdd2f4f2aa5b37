package models

import (
	"fmt"
	"net"

	"github.com/pkg/errors"
)

// Exchange error codes used for classification.
const (
	CodeInternalError    = -1001
	CodeTooManyRequests  = -1003
	CodeInvalidQuantity  = -1013
	CodeTimestampOutside = -1021
	CodeInvalidSignature = -1022
	CodeOrderRejected    = -2010
	CodeCancelRejected   = -2011
	CodeOrderNotFound    = -2013
	CodeBadAPIKeyFormat  = -2014
	CodeInvalidAPIKey    = -2015
)

// ExchangeError is the decoded {code,msg} envelope of a well-formed request
// the exchange refused.
type ExchangeError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("exchange error %d: %s", e.Code, e.Msg)
}

func (e *ExchangeError) Retryable() bool {
	switch e.Code {
	case CodeInternalError, CodeTooManyRequests:
		return true
	}
	return false
}

// ErrAmbiguous marks a request that timed out after it may have reached the
// exchange. It is never blindly retried; callers resolve it with a status
// query by client id.
var ErrAmbiguous = errors.New("ambiguous outcome: request may have been applied")

// ErrStaleDelta marks a stream event older than the snapshot it follows.
var ErrStaleDelta = errors.New("stale delta: event precedes snapshot")

func IsAmbiguous(err error) bool {
	return errors.Is(err, ErrAmbiguous)
}

// IsUnknownOrder reports whether err means the exchange no longer knows the
// order (already terminal or never accepted).
func IsUnknownOrder(err error) bool {
	var ex *ExchangeError
	if errors.As(err, &ex) {
		return ex.Code == CodeCancelRejected || ex.Code == CodeOrderNotFound
	}
	return false
}

type FailureClass int

const (
	ClassTransient FailureClass = iota
	ClassRejected
	ClassFatal
	ClassAmbiguous
)

func (c FailureClass) String() string {
	switch c {
	case ClassRejected:
		return "rejected-by-policy"
	case ClassFatal:
		return "fatal"
	case ClassAmbiguous:
		return "ambiguous"
	default:
		return "transient"
	}
}

// Classify maps an error to the retry policy the trader applies to it.
// An unresolved ambiguous outcome is its own class: the request may have
// been applied, so repeating it could execute twice.
func Classify(err error) FailureClass {
	if IsAmbiguous(err) {
		return ClassAmbiguous
	}

	var ex *ExchangeError
	if errors.As(err, &ex) {
		switch ex.Code {
		case CodeInvalidSignature, CodeBadAPIKeyFormat, CodeInvalidAPIKey, CodeTimestampOutside:
			return ClassFatal
		case CodeOrderRejected, CodeInvalidQuantity:
			return ClassRejected
		}
		if ex.Retryable() {
			return ClassTransient
		}
		return ClassRejected
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassTransient
	}

	return ClassTransient
}
