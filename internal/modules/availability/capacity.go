// README: Capacity allocator; counts bookings against slot units.
package availability

import "time"

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) share more than
// an instant. Touching intervals do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// RemainingCapacity is capacity minus the live bookings overlapping the unit.
func RemainingCapacity(unitStart, unitEnd time.Time, capacity int, bookings []BookingInterval) int {
	used := 0
	for _, b := range bookings {
		if b.Status == BookingCancelled {
			continue
		}
		if Overlaps(unitStart, unitEnd, b.Start, b.End) {
			used++
		}
	}
	return capacity - used
}

// spanRemaining returns the smallest remaining capacity over every unit a
// job starting at start spans.
func spanRemaining(start time.Time, duration, unit time.Duration, capacity int, bookings []BookingInterval) int {
	units := int((duration + unit - 1) / unit)
	remaining := capacity
	for i := 0; i < units; i++ {
		us := start.Add(time.Duration(i) * unit)
		remaining = min(remaining, RemainingCapacity(us, us.Add(unit), capacity, bookings))
		if remaining <= 0 {
			return remaining
		}
	}
	return remaining
}
