package billing

import (
	"time"

	"github.com/platinummonkey/closingroom/pkg/plans"
)

// Cycle is a half-open billing period [Start, End) in UTC
type Cycle struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside the cycle
func (c Cycle) Contains(t time.Time) bool {
	return !t.Before(c.Start) && t.Before(c.End)
}

// Duration returns the length of the cycle
func (c Cycle) Duration() time.Duration {
	return c.End.Sub(c.Start)
}

// CycleFor returns the cycle of a subscription anchored at anchor that contains at.
// The anchor's day of month repeats every interval and is clamped to the last day of
// shorter months, so an anchor on Jan 31 renews on Feb 28 (or 29) and then Mar 31.
func CycleFor(anchor time.Time, interval plans.Interval, at time.Time) Cycle {
	anchor = anchor.UTC()
	at = at.UTC()
	step := interval.Months()

	months := (at.Year()-anchor.Year())*12 + int(at.Month()) - int(anchor.Month())
	n := floorDiv(months, step)

	for addMonths(anchor, n*step).After(at) {
		n--
	}
	for !addMonths(anchor, (n+1)*step).After(at) {
		n++
	}

	return Cycle{
		Start: addMonths(anchor, n*step),
		End:   addMonths(anchor, (n+1)*step),
	}
}

// NextCycle returns the cycle that starts where c ends
func NextCycle(anchor time.Time, interval plans.Interval, c Cycle) Cycle {
	return CycleFor(anchor, interval, c.End)
}

// Prorate returns the share of amountCents covering the unused part of the cycle at
// time at. The result is rounded half-up to a cent and clamped to [0, amountCents].
func Prorate(amountCents int64, c Cycle, at time.Time) int64 {
	if amountCents <= 0 {
		return 0
	}
	total := int64(c.Duration() / time.Second)
	if total <= 0 || !at.Before(c.End) {
		return 0
	}
	if !at.After(c.Start) {
		return amountCents
	}

	remaining := int64(c.End.Sub(at) / time.Second)
	v := (2*amountCents*remaining + total) / (2 * total)
	if v > amountCents {
		return amountCents
	}
	return v
}

// DaysRemaining returns the number of started days left in the cycle at time at
func DaysRemaining(c Cycle, at time.Time) int {
	if !at.Before(c.End) {
		return 0
	}
	if at.Before(c.Start) {
		at = c.Start
	}
	left := c.End.Sub(at)
	days := int(left / (24 * time.Hour))
	if left%(24*time.Hour) != 0 {
		days++
	}
	return days
}

// addMonths shifts t by n months keeping its clock time and clamping the day to the
// length of the target month.
func addMonths(t time.Time, n int) time.Time {
	first := time.Date(t.Year(), t.Month()+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	day := t.Day()
	if last := daysIn(first.Year(), first.Month()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
