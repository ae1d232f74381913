// Package alarm holds the alarm domain records and the repository that keeps
// them consistent with the notification schedule.
package alarm

import (
	"context"
	"errors"
	"regexp"
	"time"
)

type Frequency string

const (
	Once   Frequency = "once"
	Daily  Frequency = "daily"
	Weekly Frequency = "weekly"
)

func (f Frequency) Recurring() bool {
	return f == Daily || f == Weekly
}

const (
	CodeLength  = 8
	CodeTTL     = 10 * time.Minute
	MaxAttempts = 5

	MinDuration = 1
	MaxDuration = 60
)

var (
	ErrNotFound = errors.New("not found")
	ErrInvalid  = errors.New("invalid input")
)

type Alarm struct {
	ID               string    `json:"id"`
	Time             time.Time `json:"time"`
	Label            string    `json:"label"`
	Frequency        Frequency `json:"frequency"`
	Duration         int       `json:"duration"`
	IsActive         bool      `json:"isActive"`
	ScheduleHandle   string    `json:"scheduleHandle,omitempty"`
	RingtoneOverride string    `json:"ringtoneOverride,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

// RingDuration is the length of a ringing session.
func (a Alarm) RingDuration() time.Duration {
	return time.Duration(a.Duration) * time.Minute
}

// Draft is the caller-supplied part of a new alarm.
type Draft struct {
	Time      time.Time `json:"time"      validate:"required"`
	Label     string    `json:"label"     validate:"required,max=128"`
	Frequency Frequency `json:"frequency" validate:"required,oneof=once daily weekly"`
	Duration  int       `json:"duration"  validate:"required,min=1,max=60"`
}

// Patch carries the mutable fields of an alarm. Frequency is fixed for the
// lifetime of the alarm.
type Patch struct {
	Label    *string    `json:"label,omitempty"    validate:"omitnil,min=1,max=128"`
	Time     *time.Time `json:"time,omitempty"`
	Duration *int       `json:"duration,omitempty" validate:"omitnil,min=1,max=60"`
}

type DismissalCode struct {
	AlarmID   string    `json:"alarmId"`
	Code      string    `json:"code"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	Attempts  int       `json:"attempts"`
}

func NewDismissalCode(alarmID, code string, issuedAt time.Time) DismissalCode {
	return DismissalCode{
		AlarmID:   alarmID,
		Code:      code,
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(CodeTTL),
	}
}

var codeFormat = regexp.MustCompile(`^[A-Z0-9]{8}$`)

// ValidCode reports whether s is exactly eight uppercase alphanumerics.
func ValidCode(s string) bool {
	return codeFormat.MatchString(s)
}

func (c DismissalCode) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

func (c DismissalCode) RemainingAttempts() int {
	if c.Attempts >= MaxAttempts {
		return 0
	}
	return MaxAttempts - c.Attempts
}

type Ringtone struct {
	AlarmID string `json:"alarmId"`
	URI     string `json:"uri"     validate:"required"`
	Name    string `json:"name"`
}

// Schedule is what the notification scheduler armed for an alarm.
type Schedule struct {
	Handle   string
	NextFire time.Time
}

type Scheduler interface {
	Schedule(ctx context.Context, a Alarm) (Schedule, error)
	Cancel(ctx context.Context, handle string) error
}
