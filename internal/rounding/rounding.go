// Package rounding implements duration rounding for stopped timers.
// Pure arithmetic, no state.
package rounding

import (
	"time"

	"github.com/pkg/errors"
)

// Method selects how a duration is snapped to the rounding interval.
type Method string

const (
	MethodUp      Method = "up"
	MethodDown    Method = "down"
	MethodNearest Method = "nearest"
)

// Intervals lists the supported rounding intervals in minutes. Zero disables
// rounding.
var Intervals = []int{0, 5, 10, 15, 30}

var (
	ErrInvalidInterval = errors.New("rounding: interval must be one of 0, 5, 10, 15, 30 minutes")
	ErrInvalidMethod   = errors.New("rounding: method must be up, down or nearest")
)

// ValidInterval reports whether intervalMinutes is in the supported set.
func ValidInterval(intervalMinutes int) bool {
	for _, v := range Intervals {
		if intervalMinutes == v {
			return true
		}
	}
	return false
}

// ValidMethod reports whether m is a known rounding method.
func ValidMethod(m Method) bool {
	switch m {
	case MethodUp, MethodDown, MethodNearest:
		return true
	}
	return false
}

// Round snaps d to a multiple of intervalMinutes using the given method.
// An interval of zero returns d unchanged. Arithmetic runs on whole seconds
// so repeated rounding never drifts.
//
// MethodDown never rounds a positive duration to zero: flooring below one
// interval clamps to exactly one interval.
func Round(d time.Duration, intervalMinutes int, method Method) (time.Duration, error) {
	if !ValidInterval(intervalMinutes) {
		return 0, errors.Wrapf(ErrInvalidInterval, "got %d", intervalMinutes)
	}
	if intervalMinutes == 0 {
		return d, nil
	}
	if !ValidMethod(method) {
		return 0, errors.Wrapf(ErrInvalidMethod, "got %q", method)
	}

	seconds := int64(d.Seconds())
	intervalSec := int64(intervalMinutes) * 60
	if seconds <= 0 {
		return 0, nil
	}

	var rounded int64
	switch method {
	case MethodUp:
		rounded = ((seconds + intervalSec - 1) / intervalSec) * intervalSec
	case MethodDown:
		rounded = (seconds / intervalSec) * intervalSec
		if rounded == 0 {
			rounded = intervalSec
		}
	case MethodNearest:
		// Half rounds up.
		rounded = ((seconds + intervalSec/2) / intervalSec) * intervalSec
	}

	return time.Duration(rounded) * time.Second, nil
}
