package adjudication

import (
	"errors"
	"fmt"
)

var (
	ErrMissingField     = errors.New("missing required field")
	ErrInvalidOffsets   = errors.New("invalid annotation offsets")
	ErrNoAnnotations    = errors.New("patient has no annotations")
	ErrInvalidState     = errors.New("inconsistent adjudication state")
	ErrSentenceNotFound = errors.New("sentence not found in note text")
	ErrSpanOutOfRange   = errors.New("annotation span outside text")
)

// ValidationError marks a caller contract violation on an input record.
type ValidationError struct {
	Record string
	ID     string
	reason error
}

func (e ValidationError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s: %v", e.Record, e.reason)
	}
	return fmt.Sprintf("%s %s: %v", e.Record, e.ID, e.reason)
}

func (e ValidationError) Unwrap() error {
	return e.reason
}

func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}
