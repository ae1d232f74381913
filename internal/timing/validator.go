// Package timing decides whether a delivered notification should start a
// ringing session.
package timing

import (
	"time"

	"github.com/Raimguzhinov/alarmd/internal/alarm"
)

// DefaultTolerance is the allowed slop between a notification's delivery and
// the alarm's due time.
const DefaultTolerance = 2 * time.Minute

const (
	minutesPerDay = 24 * 60
	halfDay       = minutesPerDay / 2
)

type Validator struct {
	tolerance time.Duration
	loc       *time.Location
}

func NewValidator(tolerance time.Duration, loc *time.Location) *Validator {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	if loc == nil {
		loc = time.Local
	}
	return &Validator{tolerance: tolerance, loc: loc}
}

func (v *Validator) Tolerance() time.Duration {
	return v.tolerance
}

// IsDue reports whether a firing observed at now belongs to a. Missing or
// inactive alarms are never due, and a panic reads as not due.
func (v *Validator) IsDue(a *alarm.Alarm, now time.Time) (due bool) {
	defer func() {
		if r := recover(); r != nil {
			due = false
		}
	}()

	if a == nil || !a.IsActive {
		return false
	}

	switch a.Frequency {
	case alarm.Once:
		return abs(now.Sub(a.Time)) <= v.tolerance
	case alarm.Daily:
		_, ok := v.offset(a.Time, now)
		return ok
	case alarm.Weekly:
		d, ok := v.offset(a.Time, now)
		if !ok {
			return false
		}
		// the occurrence closest to now may sit on the other side of midnight
		occurrence := now.In(v.loc).Add(-d)
		return occurrence.Weekday() == a.Time.In(v.loc).Weekday()
	default:
		return false
	}
}

// offset is the signed distance from the clock time of at to the clock time
// of now, wrapped to within half a day.
func (v *Validator) offset(at, now time.Time) (time.Duration, bool) {
	d := minutesOfDay(now.In(v.loc)) - minutesOfDay(at.In(v.loc))
	switch {
	case d > halfDay:
		d -= minutesPerDay
	case d < -halfDay:
		d += minutesPerDay
	}
	off := time.Duration(d) * time.Minute
	return off, abs(off) <= v.tolerance
}

func minutesOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

func abs(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
