// README: Availability rule engine; expands weekly rules into bookable start slots.
package availability

import (
	"errors"
	"sort"
	"time"

	"cloud.google.com/go/civil"
)

var ErrCapacityExceeded = errors.New("slot capacity exceeded")

// Engine computes slots in a business timezone. Zero MaxResults means no limit.
type Engine struct {
	Location   *time.Location
	Now        func() time.Time
	MaxResults int
}

func (e Engine) location() *time.Location {
	if e.Location == nil {
		return time.UTC
	}
	return e.Location
}

func (e Engine) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

// Today is the current calendar date in the business timezone.
func (e Engine) Today() civil.Date {
	return civil.DateOf(e.now().In(e.location()))
}

// ComputeSlots lists start slots in h that can take a job of the given length.
// Dates before today+leadDays and starts not after now are skipped. The result
// is sorted by start.
func (e Engine) ComputeSlots(rules []Rule, exceptions []Exception, bookings []BookingInterval, h Horizon, jobDurationMinutes, leadDays int) []Slot {
	if jobDurationMinutes <= 0 {
		return nil
	}
	loc := e.location()
	now := e.now()
	from := h.From
	if earliest := e.Today().AddDays(max(leadDays, 0)); from.Before(earliest) {
		from = earliest
	}
	if from.After(h.To) {
		return nil
	}

	byDate := make(map[civil.Date]Exception, len(exceptions))
	for _, ex := range exceptions {
		byDate[ex.Date] = ex
	}
	duration := time.Duration(jobDurationMinutes) * time.Minute

	var out []Slot
	for d := from; !d.After(h.To); d = d.AddDays(1) {
		ex, hasEx := byDate[d]
		if hasEx && ex.Closed {
			continue
		}
		wd := isoWeekday(d)
		for _, r := range rules {
			if !r.Active || r.Weekday != wd || r.SlotMinutes <= 0 {
				continue
			}
			capacity := r.Capacity
			if hasEx && ex.OverrideCapacity != nil {
				capacity = *ex.OverrideCapacity
			}
			if capacity <= 0 {
				continue
			}
			out = append(out, r.startSlots(d, loc, now, duration, capacity, bookings)...)
		}
	}

	out = dedupe(out)
	if e.MaxResults > 0 && len(out) > e.MaxResults {
		out = out[:e.MaxResults]
	}
	return out
}

// CheckCommit re-runs the slot computation for the date of start and fails
// with ErrCapacityExceeded unless start is still offered.
func (e Engine) CheckCommit(state DayState, start time.Time, jobDurationMinutes, leadDays int) error {
	day := civil.DateOf(start.In(e.location()))
	e.MaxResults = 0
	slots := e.ComputeSlots(state.Rules, state.Exceptions, state.Bookings, Horizon{From: day, To: day}, jobDurationMinutes, leadDays)
	for _, s := range slots {
		if s.Start.Equal(start) {
			return nil
		}
	}
	return ErrCapacityExceeded
}

func (r Rule) startSlots(d civil.Date, loc *time.Location, now time.Time, duration time.Duration, capacity int, bookings []BookingInterval) []Slot {
	windowStart := wallClock(d, r.Start, loc)
	windowEnd := wallClock(d, r.End, loc)
	step := time.Duration(r.SlotMinutes) * time.Minute

	var out []Slot
	for start := windowStart; start.Before(windowEnd); start = start.Add(step) {
		end := start.Add(duration)
		if end.After(windowEnd) {
			break
		}
		if !start.After(now) {
			continue
		}
		remaining := spanRemaining(start, duration, step, capacity, bookings)
		if remaining < 1 {
			continue
		}
		out = append(out, Slot{Start: start, End: end, Remaining: remaining})
	}
	return out
}

// wallClock resolves a local date and clock time in loc, so DST shifts move
// the UTC instant rather than the local time.
func wallClock(d civil.Date, t civil.Time, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, t.Hour, t.Minute, t.Second, 0, loc)
}

// dedupe sorts by start and keeps one slot per start/end, the one with the
// most remaining capacity, for rules with overlapping windows.
func dedupe(slots []Slot) []Slot {
	sort.SliceStable(slots, func(i, j int) bool {
		if !slots[i].Start.Equal(slots[j].Start) {
			return slots[i].Start.Before(slots[j].Start)
		}
		return slots[i].Remaining > slots[j].Remaining
	})
	out := slots[:0]
	for _, s := range slots {
		if n := len(out); n > 0 && out[n-1].Start.Equal(s.Start) && out[n-1].End.Equal(s.End) {
			continue
		}
		out = append(out, s)
	}
	return out
}
