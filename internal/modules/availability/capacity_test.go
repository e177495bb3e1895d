package availability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOverlaps(t *testing.T) {
	base := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	h := func(n int) time.Time { return base.Add(time.Duration(n) * time.Hour) }

	tests := []struct {
		name string
		a, b [2]time.Time
		want bool
	}{
		{"same interval", [2]time.Time{h(0), h(1)}, [2]time.Time{h(0), h(1)}, true},
		{"partial", [2]time.Time{h(0), h(2)}, [2]time.Time{h(1), h(3)}, true},
		{"contained", [2]time.Time{h(0), h(4)}, [2]time.Time{h(1), h(2)}, true},
		{"touching end", [2]time.Time{h(0), h(1)}, [2]time.Time{h(1), h(2)}, false},
		{"touching start", [2]time.Time{h(1), h(2)}, [2]time.Time{h(0), h(1)}, false},
		{"disjoint", [2]time.Time{h(0), h(1)}, [2]time.Time{h(3), h(4)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Overlaps(tt.a[0], tt.a[1], tt.b[0], tt.b[1]))
			assert.Equal(t, tt.want, Overlaps(tt.b[0], tt.b[1], tt.a[0], tt.a[1]))
		})
	}
}

func TestRemainingCapacity(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	bookings := []BookingInterval{
		{ID: "inside", Start: start.Add(15 * time.Minute), End: start.Add(45 * time.Minute), Status: BookingConfirmed},
		{ID: "spanning", Start: start.Add(-time.Hour), End: end.Add(time.Hour), Status: BookingConfirmed},
		{ID: "before", Start: start.Add(-time.Hour), End: start, Status: BookingConfirmed},
		{ID: "cancelled", Start: start, End: end, Status: BookingCancelled},
	}

	assert.Equal(t, 1, RemainingCapacity(start, end, 3, bookings))
	assert.Equal(t, -1, RemainingCapacity(start, end, 1, bookings))
	assert.Equal(t, 2, RemainingCapacity(start, end, 2, nil))
}

func TestSpanRemaining(t *testing.T) {
	start := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	bookings := []BookingInterval{{ID: "b", Start: start.Add(2 * time.Hour), End: start.Add(3 * time.Hour), Status: BookingConfirmed}}

	assert.Equal(t, 2, spanRemaining(start, 2*time.Hour, time.Hour, 2, bookings))
	assert.Equal(t, 1, spanRemaining(start, 150*time.Minute, time.Hour, 2, bookings))
	assert.Equal(t, 0, spanRemaining(start, 121*time.Minute, time.Hour, 1, bookings))
}
