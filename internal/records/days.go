package records

import (
	"errors"
	"time"
)

// MaxRangeDays bounds how many day files a single range may expand to.
const MaxRangeDays = 366

var (
	ErrInvalidRange  = errors.New("range start is after range end")
	ErrRangeTooLarge = errors.New("range spans too many days")
)

// FileName returns the snapshot file name for the calendar day of t.
func FileName(t time.Time) string {
	return t.Format(dayLayout) + FileSuffix
}

// DayKey is the YYYYMMDD form used to track imported days.
func DayKey(t time.Time) string {
	return t.Format(dayLayout)
}

// DaysInRange returns midnight of every calendar day touched by [from, to],
// both ends inclusive, with days taken in loc.
func DaysInRange(from, to time.Time, loc *time.Location) ([]time.Time, error) {
	if from.After(to) {
		return nil, ErrInvalidRange
	}
	if loc == nil {
		loc = time.UTC
	}
	start := midnight(from.In(loc))
	end := midnight(to.In(loc))

	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if len(days) == MaxRangeDays {
			return nil, ErrRangeTooLarge
		}
		days = append(days, d)
	}
	return days, nil
}

// FilesForRange lists the snapshot files expected to cover [from, to].
func FilesForRange(from, to time.Time, loc *time.Location) ([]string, error) {
	days, err := DaysInRange(from, to, loc)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(days))
	for _, d := range days {
		names = append(names, FileName(d))
	}
	return names, nil
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
