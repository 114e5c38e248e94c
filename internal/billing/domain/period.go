package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AddInterval advances t by one calendar month or year. Day-of-month overflow is
// clamped to the last day of the target month (Jan 31 + 1 month = Feb 28/29).
func AddInterval(t time.Time, interval Interval) time.Time {
	months := 1
	if interval == IntervalYearly {
		months = 12
	}
	year, month, day := t.Date()
	firstOfTarget := time.Date(year, month+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	lastDay := firstOfTarget.AddDate(0, 1, -1).Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// StartOfDay truncates t to midnight UTC.
func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Period returns [start, start+interval).
func Period(start time.Time, interval Interval) (time.Time, time.Time) {
	return start, AddInterval(start, interval)
}

type Totals struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// ComputeTotals applies the tax rate to price, rounding the tax to cents.
func ComputeTotals(price decimal.Decimal, taxRate float64) Totals {
	subtotal := price.Round(2)
	tax := subtotal.Mul(decimal.NewFromFloat(taxRate)).Round(2)
	return Totals{
		Subtotal: subtotal,
		Tax:      tax,
		Total:    subtotal.Add(tax),
	}
}

// ReminderSchedule returns when each reminder type fires for a due date.
func ReminderSchedule(dueDate time.Time, beforeDays, graceDays int) map[ReminderType]time.Time {
	return map[ReminderType]time.Time{
		ReminderBeforeDue: dueDate.AddDate(0, 0, -beforeDays),
		ReminderDue:       dueDate,
		ReminderExpired:   dueDate.AddDate(0, 0, graceDays),
	}
}
