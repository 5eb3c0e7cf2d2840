package indexsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/BRO3886/productsync/internal/search"
)

type ErrorKind string

const (
	// KindTransient covers connection failures, timeouts and 5xx/408/429 answers.
	KindTransient ErrorKind = "transient"
	// KindRejected is a permanent refusal by the index, e.g. a mapping conflict.
	KindRejected ErrorKind = "rejected"
	// KindInvalid is a notification that can never be synchronized.
	KindInvalid ErrorKind = "invalid"
	// KindNotFound is a partial update of a record the index does not hold.
	KindNotFound ErrorKind = "not_found"
)

type SyncError struct {
	Kind    ErrorKind
	Op      string
	Trigger string
	ID      string
	Err     error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("%s %s [%s] (%s): %v", e.Trigger, e.Op, e.ID, e.Kind, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// Retryable reports whether delivering the same notification again may succeed.
func (e *SyncError) Retryable() bool {
	return e.Kind == KindTransient
}

func classify(err error) ErrorKind {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindTransient
	case search.IsRejected(err), isEncodingError(err):
		return KindRejected
	default:
		return KindTransient
	}
}

// isEncodingError matches payloads the index clients cannot serialize, such
// as NaN doubles. They fail the same way on every delivery.
func isEncodingError(err error) bool {
	var (
		unsupportedValue *json.UnsupportedValueError
		unsupportedType  *json.UnsupportedTypeError
		marshaler        *json.MarshalerError
	)
	return errors.As(err, &unsupportedValue) || errors.As(err, &unsupportedType) || errors.As(err, &marshaler)
}
