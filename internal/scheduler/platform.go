package scheduler

import (
	"context"
	"time"
)

const PayloadKind = "alarm"

// Payload travels with every scheduled fire.
type Payload struct {
	AlarmID  string `json:"alarmId"`
	Duration int    `json:"duration"`
	Kind     string `json:"kind"`
}

// Platform is the device notification scheduler.
type Platform interface {
	EnsureChannel(ctx context.Context) error
	ScheduleOnce(ctx context.Context, at time.Time, p Payload) (string, error)
	ScheduleDaily(ctx context.Context, hour, minute int, p Payload) (string, error)
	ScheduleWeekly(ctx context.Context, weekday time.Weekday, hour, minute int, p Payload) (string, error)
	Cancel(ctx context.Context, handle string) error
	ListScheduled(ctx context.Context) ([]string, error)
}

// Listener delivers fires. onReceived runs for a fire while the app is in
// the foreground, onResponse when the user acts on a notification shown
// while it was hidden. The returned func releases both callbacks.
type Listener interface {
	Listen(onReceived, onResponse func(Payload)) (teardown func())
}
