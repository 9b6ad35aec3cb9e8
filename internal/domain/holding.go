package domain

import "time"

// DefaultHoldingYears is the holding period after which gains are long term.
const DefaultHoldingYears = 1

// HoldingPolicy classifies realizations as short or long term by the number
// of calendar years a lot was held.
type HoldingPolicy struct {
	Years int
}

// DefaultHoldingPolicy returns the one calendar year rule.
func DefaultHoldingPolicy() HoldingPolicy {
	return HoldingPolicy{Years: DefaultHoldingYears}
}

// IsShortTerm reports whether currency acquired at acquired and realized at
// realized was held for less than the policy's number of calendar years.
// Calendar arithmetic is done in the acquisition time's location.
func (p HoldingPolicy) IsShortTerm(acquired, realized time.Time) bool {
	years := p.Years
	if years <= 0 {
		years = DefaultHoldingYears
	}

	from, to := acquired, realized.In(acquired.Location())
	if to.Before(from) {
		from, to = to, from
	}

	return to.Before(addYears(from, years))
}

// addYears adds calendar years, clamping Feb 29 to Feb 28 in non-leap years
// instead of rolling over into March.
func addYears(t time.Time, years int) time.Time {
	y, m, d := t.Date()
	target := y + years
	if m == time.February && d == 29 && !isLeap(target) {
		d = 28
	}
	hh, mm, ss := t.Clock()
	return time.Date(target, m, d, hh, mm, ss, t.Nanosecond(), t.Location())
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}
