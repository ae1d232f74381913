package scheduler

import (
	"fmt"
	"time"

	"github.com/Raimguzhinov/alarmd/internal/alarm"
	"github.com/teambition/rrule-go"
)

type Kind string

const (
	KindDate   Kind = "date"
	KindDaily  Kind = "daily"
	KindWeekly Kind = "weekly"
)

var rruleDay = map[time.Weekday]rrule.Weekday{
	time.Sunday:    rrule.SU,
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
}

// Trigger is the platform-level description of when an alarm fires. Date
// triggers use At; repeating triggers use Hour, Minute (and Weekday) as wall
// clock values in Location.
type Trigger struct {
	Kind     Kind
	At       time.Time
	Weekday  time.Weekday
	Hour     int
	Minute   int
	Location *time.Location
}

// TriggerFor translates the recurrence rule of a into a trigger, resolving
// one-shot alarms to their next absolute occurrence after now.
func TriggerFor(a alarm.Alarm, now time.Time, loc *time.Location) Trigger {
	if loc == nil {
		loc = time.Local
	}
	at := a.Time.In(loc)

	t := Trigger{
		Hour:     at.Hour(),
		Minute:   at.Minute(),
		Weekday:  at.Weekday(),
		Location: loc,
	}

	switch a.Frequency {
	case alarm.Daily:
		t.Kind = KindDaily
	case alarm.Weekly:
		t.Kind = KindWeekly
	default:
		t.Kind = KindDate
		t.At = NextOnce(at, now.In(loc))
	}
	return t
}

// NextOnce returns at when it is still ahead of now; otherwise at's clock time
// today, rolled to tomorrow if that has passed too.
func NextOnce(at, now time.Time) time.Time {
	at = at.Truncate(time.Minute)
	if at.After(now) {
		return at
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), at.Hour(), at.Minute(), 0, 0, now.Location())
	if today.After(now) {
		return today
	}
	return today.AddDate(0, 0, 1)
}

// ROption is the recurrence rule of a repeating trigger, nil for date
// triggers. The time of day comes from dtstart.
func (t Trigger) ROption(dtstart time.Time) *rrule.ROption {
	switch t.Kind {
	case KindDaily:
		return &rrule.ROption{
			Freq:    rrule.DAILY,
			Dtstart: dtstart,
		}
	case KindWeekly:
		return &rrule.ROption{
			Freq:      rrule.WEEKLY,
			Dtstart:   dtstart,
			Byweekday: []rrule.Weekday{rruleDay[t.Weekday]},
		}
	default:
		return nil
	}
}

// Next returns the first fire strictly after after, or the zero time when a
// date trigger has already passed.
func (t Trigger) Next(after time.Time) time.Time {
	if t.Kind == KindDate {
		if t.At.After(after) {
			return t.At
		}
		return time.Time{}
	}

	loc := t.Location
	if loc == nil {
		loc = time.Local
	}
	a := after.In(loc)
	// anchor a week back so the rule has an occurrence before after
	dtstart := time.Date(a.Year(), a.Month(), a.Day()-7, t.Hour, t.Minute, 0, 0, loc)

	r, err := rrule.NewRRule(*t.ROption(dtstart))
	if err != nil {
		return time.Time{}
	}
	return r.After(after, false)
}

func (t Trigger) String() string {
	switch t.Kind {
	case KindDaily:
		return fmt.Sprintf("daily %02d:%02d", t.Hour, t.Minute)
	case KindWeekly:
		return fmt.Sprintf("weekly %s %02d:%02d", t.Weekday, t.Hour, t.Minute)
	default:
		return "date " + t.At.Format(time.RFC3339)
	}
}
