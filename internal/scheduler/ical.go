package scheduler

import (
	"bufio"
	"io"
	"time"

	"github.com/Raimguzhinov/alarmd/internal/alarm"
	"github.com/emersion/go-ical"
)

const productID = "-//alarmd//Alarms//EN"

// ExportICal writes the active alarms as an iCalendar feed: one VEVENT per
// alarm starting at its next fire, a RRULE for repeating alarms, and a
// DISPLAY VALARM at the start.
func ExportICal(w io.Writer, alarms []alarm.Alarm, now time.Time, loc *time.Location) error {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)

	for _, a := range alarms {
		if !a.IsActive {
			continue
		}
		t := TriggerFor(a, now, loc)
		start := t.Next(now)
		if start.IsZero() {
			continue
		}

		event := ical.NewEvent()
		event.Props.SetText(ical.PropUID, a.ID)
		event.Props.SetText(ical.PropSummary, a.Label)
		stamp := a.CreatedAt
		if stamp.IsZero() {
			stamp = now
		}
		event.Props.SetDateTime(ical.PropDateTimeStamp, stamp.UTC())
		event.Props.SetDateTime(ical.PropCreated, a.CreatedAt.UTC())
		event.Props.SetDateTime(ical.PropDateTimeStart, start.UTC())
		event.Props.SetDateTime(ical.PropDateTimeEnd, start.Add(a.RingDuration()).UTC())
		if ro := t.ROption(start); ro != nil {
			event.Props.SetRecurrenceRule(ro)
		}

		reminder := ical.NewComponent(ical.CompAlarm)
		reminder.Props.SetText(ical.PropAction, "DISPLAY")
		desc := a.Label
		if desc == "" {
			desc = "Alarm"
		}
		reminder.Props.SetText(ical.PropDescription, desc)
		trigger := ical.NewProp(ical.PropTrigger)
		trigger.Value = "PT0S"
		reminder.Props.Set(trigger)
		event.Children = append(event.Children, reminder)

		cal.Children = append(cal.Children, event.Component)
	}

	bw := bufio.NewWriter(w)
	if err := ical.NewEncoder(bw).Encode(cal); err != nil {
		return err
	}
	return bw.Flush()
}
