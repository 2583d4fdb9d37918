package slotgen

import (
	"iter"
	"time"

	"github.com/hackgods/slot-booking/internal/slot"
)

type Interval struct {
	Start time.Time
	End   time.Time
}

// Walk yields consecutive step-long intervals across the rule's window on
// date. An interval is only yielded if it ends at or before the window end.
// The sequence holds no state between iterations and can be ranged again.
func Walk(rule slot.AvailabilityRule, date time.Time, step time.Duration) iter.Seq[Interval] {
	return func(yield func(Interval) bool) {
		if step <= 0 {
			return
		}
		start, end := rule.Start.On(date), rule.End.On(date)
		for t := start; !t.Add(step).After(end); t = t.Add(step) {
			if !yield(Interval{Start: t, End: t.Add(step)}) {
				return
			}
		}
	}
}
