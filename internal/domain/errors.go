package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by store lookups for unknown sensors.
var ErrNotFound = errors.New("sensor not found")

// ErrUnknownReading is returned when a prediction is attached to a reading
// that is not in the store. The coordinator orders writes so this should
// never fire; if it does it is a bug and is logged loudly.
var ErrUnknownReading = errors.New("reading not found for prediction")

// ValidationError rejects a submission before it touches the store. The
// caller must fix the field and resubmit.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid reading: field %s: %s", e.Field, e.Reason)
}

// InvalidFeatureError means the reading was stored but its features are
// outside the classifier's domain. The reading remains queryable as
// unscored.
type InvalidFeatureError struct {
	Feature string
	Value   float64
}

func (e *InvalidFeatureError) Error() string {
	return fmt.Sprintf("feature %s out of domain: %v", e.Feature, e.Value)
}
