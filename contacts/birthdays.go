package contacts

import (
	"sort"
	"time"
)

// occurrence returns the birthday's date in year. Feb 29 falls on Mar 1
// in non-leap years.
func occurrence(birthday Date, year int) Date {
	m, d := birthday.Month(), birthday.Day()
	if m == time.February && d == 29 && !isLeap(year) {
		return NewDate(year, time.March, 1)
	}
	return NewDate(year, m, d)
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// NextBirthday returns the first occurrence of birthday on or after today.
func NextBirthday(birthday, today Date) Date {
	next := occurrence(birthday, today.Year())
	if next.Before(today.Time) {
		next = occurrence(birthday, today.Year()+1)
	}
	return next
}

// UpcomingBirthdays keeps the contacts whose next birthday falls within
// [today, today+days] and orders them by that date, then by ID.
func UpcomingBirthdays(all []Contact, today Date, days int) []Contact {
	until := today.AddDate(0, 0, days)

	type hit struct {
		c    Contact
		next Date
	}
	hits := make([]hit, 0, len(all))
	for _, c := range all {
		next := NextBirthday(c.Birthday, today)
		if next.After(until) {
			continue
		}
		hits = append(hits, hit{c: c, next: next})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if !hits[i].next.Equal(hits[j].next.Time) {
			return hits[i].next.Before(hits[j].next.Time)
		}
		return hits[i].c.ID < hits[j].c.ID
	})

	out := make([]Contact, len(hits))
	for i, h := range hits {
		out[i] = h.c
	}
	return out
}
