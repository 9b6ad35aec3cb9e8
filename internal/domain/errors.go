package domain

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind classifies a user-fixable validation failure.
type ErrorKind string

const (
	KindOutOfOrder          ErrorKind = "out_of_order"
	KindNaiveTime           ErrorKind = "naive_time"
	KindBaseCurrency        ErrorKind = "base_currency"
	KindInsufficientBalance ErrorKind = "insufficient_balance"
	KindUnsupportedFee      ErrorKind = "unsupported_fee"
	KindMissingRate         ErrorKind = "missing_rate"
	KindNegativeAmount      ErrorKind = "negative_amount"
	KindInvalidAmount       ErrorKind = "invalid_amount"
)

var (
	// ErrNoRate is returned by rate providers that have no rate for the requested time and pair.
	ErrNoRate = errors.New("no exchange rate available")
	// ErrCorruptedSnapshot is returned when a loaded snapshot's balances don't add up.
	ErrCorruptedSnapshot = errors.New("snapshot is corrupted")
)

// ValidationError is a failure caused by the input data. The caller can fix
// the data and resume from the snapshot taken when the error was raised.
type ValidationError struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

// NewValidationError builds a ValidationError with a formatted message.
func NewValidationError(kind ErrorKind, format string, args ...any) *ValidationError {
	return &ValidationError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// InvariantError means the accounting state is internally inconsistent.
// It is never recoverable.
type InvariantError struct {
	Msg string
}

// NewInvariantError builds an InvariantError with a formatted message.
func NewInvariantError(format string, args ...any) *InvariantError {
	return &InvariantError{Msg: fmt.Sprintf(format, args...)}
}

func (e *InvariantError) Error() string {
	return "internal inconsistency: " + e.Msg
}

// IsUserFixable reports whether err is (or wraps) a ValidationError.
func IsUserFixable(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsInvariant reports whether err is (or wraps) an InvariantError or a corrupted snapshot.
func IsInvariant(err error) bool {
	var ie *InvariantError
	return errors.As(err, &ie) || errors.Is(err, ErrCorruptedSnapshot)
}

// KindOf returns the validation kind of err, or "" if err is not a ValidationError.
func KindOf(err error) ErrorKind {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Kind
	}
	return ""
}
