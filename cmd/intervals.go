package cmd

import "time"

// Granularity controls how the export window is split into per-query
// sub-intervals.
type Granularity string

// Grouping constants for interval planning
const (
	GroupNone  Granularity = "none"
	GroupDay   Granularity = "day"
	GroupMonth Granularity = "month"
	GroupYear  Granularity = "year"
)

// DateInterval is a half-open time window [Start, End) over which one
// query is executed.
type DateInterval struct {
	Start time.Time // inclusive
	End   time.Time // exclusive
}

// PlanIntervals splits the caller's date range into ordered, contiguous,
// non-overlapping half-open intervals. The caller supplies an inclusive
// end date; internally the boundary is exclusive, so it is advanced by
// one day before splitting. First and last intervals are clipped to the
// requested range rather than expanded to full calendar units.
func PlanIntervals(start, endInclusive time.Time, granularity Granularity) []DateInterval {
	return planHalfOpen(start, endInclusive.AddDate(0, 0, 1), granularity)
}

func planHalfOpen(start, end time.Time, granularity Granularity) []DateInterval {
	// Zero-length request means nothing to export
	if !start.Before(end) {
		return nil
	}

	if granularity == GroupNone {
		return []DateInterval{{Start: start, End: end}}
	}

	var intervals []DateInterval
	current := start
	for current.Before(end) {
		next := nextBoundary(current, granularity)
		if next.After(end) {
			next = end
		}
		intervals = append(intervals, DateInterval{Start: current, End: next})
		current = next
	}

	return intervals
}

// nextBoundary returns the first calendar boundary of the given
// granularity strictly after t.
func nextBoundary(t time.Time, granularity Granularity) time.Time {
	switch granularity {
	case GroupMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location()).AddDate(0, 1, 0)
	case GroupYear:
		return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, t.Location()).AddDate(1, 0, 0)
	default:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location()).AddDate(0, 0, 1)
	}
}

// isValidGranularity reports whether the grouping value is one of the
// four supported settings.
func isValidGranularity(granularity string) bool {
	switch Granularity(granularity) {
	case GroupNone, GroupDay, GroupMonth, GroupYear:
		return true
	default:
		return false
	}
}
