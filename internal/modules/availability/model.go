// README: Availability templates, date exceptions, committed bookings and computed slots.
package availability

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"

	"quotecore/internal/types"
)

// Rule is a weekly operating window. Weekday is ISO numbered, Monday = 1.
type Rule struct {
	ID          string     `json:"id"`
	Weekday     int        `json:"weekday"`
	Start       civil.Time `json:"start"`
	End         civil.Time `json:"end"`
	SlotMinutes int        `json:"slotMinutes"`
	Capacity    int        `json:"capacity"`
	Active      bool       `json:"active"`
}

// Exception closes a date or replaces its capacity.
type Exception struct {
	Date             civil.Date `json:"date"`
	Closed           bool       `json:"closed"`
	OverrideCapacity *int       `json:"overrideCapacity,omitempty"`
	Note             string     `json:"note,omitempty"`
}

type BookingStatus string

const (
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingCancelled BookingStatus = "CANCELLED"
)

type BookingInterval struct {
	ID      string        `json:"id"`
	QuoteID types.ID      `json:"quoteId"`
	Start   time.Time     `json:"start"`
	End     time.Time     `json:"end"`
	Status  BookingStatus `json:"status"`
}

type Slot struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Remaining int       `json:"remaining"`
}

// Horizon is an inclusive range of calendar dates.
type Horizon struct {
	From civil.Date
	To   civil.Date
}

func (h Horizon) Days() int {
	return h.To.DaysSince(h.From) + 1
}

// DayState is what the commit path needs to re-check one date.
type DayState struct {
	Rules      []Rule
	Exceptions []Exception
	Bookings   []BookingInterval
}

// FallbackRules is the schedule offered when no rule is configured:
// Monday to Saturday, 08:00 to 18:00, hourly, one crew.
func FallbackRules() []Rule {
	out := make([]Rule, 0, 6)
	for wd := 1; wd <= 6; wd++ {
		out = append(out, Rule{
			ID:          fmt.Sprintf("fallback-%d", wd),
			Weekday:     wd,
			Start:       civil.Time{Hour: 8},
			End:         civil.Time{Hour: 18},
			SlotMinutes: 60,
			Capacity:    1,
			Active:      true,
		})
	}
	return out
}

func isoWeekday(d civil.Date) int {
	wd := d.In(time.UTC).Weekday()
	if wd == time.Sunday {
		return 7
	}
	return int(wd)
}

func activeRules(rules []Rule) []Rule {
	out := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if r.Active {
			out = append(out, r)
		}
	}
	return out
}
