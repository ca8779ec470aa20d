// Package calendar projects content items onto a month grid keyed by
// deadline. It is a pure view over a collection loaded elsewhere; saving an
// item does not refresh the projection, callers reload explicitly.
package calendar

import (
	"fmt"
	"time"

	"cadence/api/internal/store"
)

const dateLayout = "2006-01-02"

// Month is a projection of items onto one calendar month.
type Month struct {
	Year  int
	Month time.Month
	// Weeks holds Monday-start rows of 7 days covering the whole month,
	// padded with leading and trailing days from the neighbor months.
	Weeks [][]Day
	// ByDay indexes items by their deadline date.
	ByDay map[string][]store.ContentItem
}

type Day struct {
	Date    string // YYYY-MM-DD
	InMonth bool
	Today   bool
	Items   []store.ContentItem
}

// Project builds the grid for the month containing ref. Items with
// deadlines outside the month still land in ByDay so neighbors' padded
// cells can show them.
func Project(items []store.ContentItem, ref time.Time, today time.Time) Month {
	byDay := map[string][]store.ContentItem{}
	for _, item := range items {
		if item.Deadline == "" {
			continue
		}
		byDay[item.Deadline] = append(byDay[item.Deadline], item)
	}

	first := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)

	// Walk back to Monday.
	start := first
	for start.Weekday() != time.Monday {
		start = start.AddDate(0, 0, -1)
	}

	todayKey := today.Format(dateLayout)

	var weeks [][]Day
	for cursor := start; !cursor.After(last); {
		week := make([]Day, 0, 7)
		for i := 0; i < 7; i++ {
			key := cursor.Format(dateLayout)
			week = append(week, Day{
				Date:    key,
				InMonth: cursor.Month() == first.Month(),
				Today:   key == todayKey,
				Items:   byDay[key],
			})
			cursor = cursor.AddDate(0, 0, 1)
		}
		weeks = append(weeks, week)
	}

	return Month{
		Year:  first.Year(),
		Month: first.Month(),
		Weeks: weeks,
		ByDay: byDay,
	}
}

// ItemsOn returns the items due on one date.
func (m Month) ItemsOn(date string) []store.ContentItem {
	return m.ByDay[date]
}

// Prev returns the first day of the previous month.
func Prev(ref time.Time) time.Time {
	return time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
}

// Next returns the first day of the following month.
func Next(ref time.Time) time.Time {
	return time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
}

// ParseMonth reads a YYYY-MM query value.
func ParseMonth(value string) (time.Time, error) {
	t, err := time.Parse("2006-01", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse month %q: %w", value, err)
	}
	return t, nil
}
