package models

import (
	"errors"
	"fmt"
)

// ErrSecondSourceUnavailable means the prediction market had no usable quote.
// It never escapes the provider layer; callers see an absent field instead.
var ErrSecondSourceUnavailable = errors.New("second source quote unavailable")

// MissingOutcomeError reports an event lacking one of the three outcomes after all bookmakers were read
type MissingOutcomeError struct {
	EventID string
	Outcome Outcome
}

func (e *MissingOutcomeError) Error() string {
	return fmt.Sprintf("event %s: no price for outcome %s", e.EventID, e.Outcome)
}

// InvalidPriceError reports a single rejected quote
type InvalidPriceError struct {
	EventID string
	Source  string
	Outcome string
	Raw     string
}

func (e *InvalidPriceError) Error() string {
	return fmt.Sprintf("event %s: invalid price %q from %s for %s", e.EventID, e.Raw, e.Source, e.Outcome)
}
