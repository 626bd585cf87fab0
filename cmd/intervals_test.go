package cmd

import (
	"testing"
	"time"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestPlanIntervalsNone(t *testing.T) {
	intervals := PlanIntervals(day(1995, 1, 1), day(1995, 1, 1), GroupNone)

	if len(intervals) != 1 {
		t.Fatalf("expected 1 interval, got %d", len(intervals))
	}
	if !intervals[0].Start.Equal(day(1995, 1, 1)) {
		t.Fatalf("unexpected start: %v", intervals[0].Start)
	}
	if !intervals[0].End.Equal(day(1995, 1, 2)) {
		t.Fatalf("unexpected end: %v", intervals[0].End)
	}
}

func TestPlanIntervalsDay(t *testing.T) {
	intervals := PlanIntervals(day(1995, 1, 1), day(1995, 1, 3), GroupDay)

	if len(intervals) != 3 {
		t.Fatalf("expected 3 intervals, got %d", len(intervals))
	}
	for i, interval := range intervals {
		want := day(1995, 1, 1+i)
		if !interval.Start.Equal(want) {
			t.Fatalf("interval %d: expected start %v, got %v", i, want, interval.Start)
		}
		if !interval.End.Equal(want.AddDate(0, 0, 1)) {
			t.Fatalf("interval %d: expected one-day span, got end %v", i, interval.End)
		}
	}
}

func TestPlanIntervalsMonthClipped(t *testing.T) {
	// Jan 15 - Feb 15 splits at the month boundary, clipped both sides
	intervals := PlanIntervals(day(2024, 1, 15), day(2024, 2, 15), GroupMonth)

	if len(intervals) != 2 {
		t.Fatalf("expected 2 intervals, got %d", len(intervals))
	}
	if !intervals[0].Start.Equal(day(2024, 1, 15)) || !intervals[0].End.Equal(day(2024, 2, 1)) {
		t.Fatalf("unexpected first interval: %v - %v", intervals[0].Start, intervals[0].End)
	}
	if !intervals[1].Start.Equal(day(2024, 2, 1)) || !intervals[1].End.Equal(day(2024, 2, 16)) {
		t.Fatalf("unexpected second interval: %v - %v", intervals[1].Start, intervals[1].End)
	}
}

func TestPlanIntervalsYearClipped(t *testing.T) {
	intervals := PlanIntervals(day(2022, 6, 1), day(2024, 3, 31), GroupYear)

	if len(intervals) != 3 {
		t.Fatalf("expected 3 intervals, got %d", len(intervals))
	}
	if !intervals[0].Start.Equal(day(2022, 6, 1)) || !intervals[0].End.Equal(day(2023, 1, 1)) {
		t.Fatalf("unexpected first interval: %v - %v", intervals[0].Start, intervals[0].End)
	}
	if !intervals[1].Start.Equal(day(2023, 1, 1)) || !intervals[1].End.Equal(day(2024, 1, 1)) {
		t.Fatalf("unexpected middle interval: %v - %v", intervals[1].Start, intervals[1].End)
	}
	if !intervals[2].Start.Equal(day(2024, 1, 1)) || !intervals[2].End.Equal(day(2024, 4, 1)) {
		t.Fatalf("unexpected last interval: %v - %v", intervals[2].Start, intervals[2].End)
	}
}

func TestPlanIntervalsZeroLength(t *testing.T) {
	// Internal boundary start == end yields an empty plan
	intervals := planHalfOpen(day(2024, 1, 1), day(2024, 1, 1), GroupDay)
	if len(intervals) != 0 {
		t.Fatalf("expected empty plan, got %d intervals", len(intervals))
	}
}

func TestPlanIntervalsCoverage(t *testing.T) {
	// Union of intervals must equal [start, end+1day) with no gaps or
	// overlaps for every granularity.
	start := day(2023, 11, 20)
	endInclusive := day(2024, 3, 7)

	for _, granularity := range []Granularity{GroupNone, GroupDay, GroupMonth, GroupYear} {
		t.Run(string(granularity), func(t *testing.T) {
			intervals := PlanIntervals(start, endInclusive, granularity)
			if len(intervals) == 0 {
				t.Fatal("expected at least one interval")
			}

			if !intervals[0].Start.Equal(start) {
				t.Fatalf("first interval starts at %v, want %v", intervals[0].Start, start)
			}
			wantEnd := endInclusive.AddDate(0, 0, 1)
			if !intervals[len(intervals)-1].End.Equal(wantEnd) {
				t.Fatalf("last interval ends at %v, want %v", intervals[len(intervals)-1].End, wantEnd)
			}

			for i, interval := range intervals {
				if !interval.Start.Before(interval.End) {
					t.Fatalf("interval %d is empty or inverted: %v - %v", i, interval.Start, interval.End)
				}
				if i > 0 && !intervals[i-1].End.Equal(interval.Start) {
					t.Fatalf("gap or overlap between interval %d and %d", i-1, i)
				}
			}
		})
	}
}

func TestPlanIntervalsDayCount(t *testing.T) {
	intervals := PlanIntervals(day(2024, 2, 1), day(2024, 2, 29), GroupDay)
	if len(intervals) != 29 {
		t.Fatalf("expected 29 intervals for a leap February, got %d", len(intervals))
	}
}

func TestIsValidGranularity(t *testing.T) {
	for _, valid := range []string{"none", "day", "month", "year"} {
		if !isValidGranularity(valid) {
			t.Fatalf("expected %q to be valid", valid)
		}
	}
	for _, invalid := range []string{"", "week", "hourly", "daily"} {
		if isValidGranularity(invalid) {
			t.Fatalf("expected %q to be invalid", invalid)
		}
	}
}
