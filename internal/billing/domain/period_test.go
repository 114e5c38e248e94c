package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestAddIntervalIsCalendarBased(t *testing.T) {
	cases := []struct {
		start    time.Time
		interval Interval
		want     time.Time
	}{
		{time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC), IntervalMonthly, time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC)},
		{time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC), IntervalMonthly, time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)},
		{time.Date(2028, 1, 31, 0, 0, 0, 0, time.UTC), IntervalMonthly, time.Date(2028, 2, 29, 0, 0, 0, 0, time.UTC)},
		{time.Date(2026, 12, 10, 8, 30, 0, 0, time.UTC), IntervalMonthly, time.Date(2027, 1, 10, 8, 30, 0, 0, time.UTC)},
		{time.Date(2028, 2, 29, 0, 0, 0, 0, time.UTC), IntervalYearly, time.Date(2029, 2, 28, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		if got := AddInterval(tc.start, tc.interval); !got.Equal(tc.want) {
			t.Fatalf("AddInterval(%s, %s) = %s, want %s", tc.start, tc.interval, got, tc.want)
		}
	}
}

func TestComputeTotals(t *testing.T) {
	totals := ComputeTotals(decimal.NewFromInt(99900), 0.19)
	if !totals.Tax.Equal(decimal.NewFromInt(18981)) {
		t.Fatalf("unexpected tax %s", totals.Tax)
	}
	if !totals.Total.Equal(decimal.NewFromInt(118881)) {
		t.Fatalf("unexpected total %s", totals.Total)
	}
}

func TestReminderSchedule(t *testing.T) {
	due := time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)
	schedule := ReminderSchedule(due, 3, 1)
	if !schedule[ReminderBeforeDue].Equal(due.AddDate(0, 0, -3)) {
		t.Fatalf("unexpected before-due time %s", schedule[ReminderBeforeDue])
	}
	if !schedule[ReminderDue].Equal(due) {
		t.Fatalf("unexpected due time %s", schedule[ReminderDue])
	}
	if !schedule[ReminderExpired].Equal(due.AddDate(0, 0, 1)) {
		t.Fatalf("unexpected expired time %s", schedule[ReminderExpired])
	}
}
