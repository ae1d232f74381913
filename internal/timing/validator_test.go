package timing

import (
	"testing"
	"time"

	"github.com/Raimguzhinov/alarmd/internal/alarm"
	"github.com/stretchr/testify/assert"
)

func clockAt(day, hour, minute int) time.Time {
	// 2026-10-12 is a Monday
	return time.Date(2026, 10, day, hour, minute, 0, 0, time.UTC)
}

func TestIsDue_DailyWithinTolerance(t *testing.T) {
	v := NewValidator(DefaultTolerance, time.UTC)
	a := &alarm.Alarm{Frequency: alarm.Daily, Time: clockAt(1, 7, 0), IsActive: true}

	assert.True(t, v.IsDue(a, clockAt(14, 6, 58)))
	assert.True(t, v.IsDue(a, clockAt(14, 7, 0)))
	assert.True(t, v.IsDue(a, clockAt(14, 7, 2)))
	assert.False(t, v.IsDue(a, clockAt(14, 6, 55)))
	assert.False(t, v.IsDue(a, clockAt(14, 7, 3)))
}

func TestIsDue_InactiveOrMissing(t *testing.T) {
	v := NewValidator(DefaultTolerance, time.UTC)

	assert.False(t, v.IsDue(nil, clockAt(14, 7, 0)))
	assert.False(t, v.IsDue(&alarm.Alarm{Frequency: alarm.Daily, Time: clockAt(1, 7, 0)}, clockAt(14, 7, 0)))
}

func TestIsDue_Once(t *testing.T) {
	v := NewValidator(DefaultTolerance, time.UTC)
	a := &alarm.Alarm{Frequency: alarm.Once, Time: clockAt(14, 7, 0), IsActive: true}

	assert.True(t, v.IsDue(a, clockAt(14, 7, 1)))
	assert.True(t, v.IsDue(a, clockAt(14, 6, 58)))
	assert.False(t, v.IsDue(a, clockAt(15, 7, 0)), "same clock time on another day")
	assert.False(t, v.IsDue(a, clockAt(14, 7, 5)))
}

func TestIsDue_Weekly(t *testing.T) {
	v := NewValidator(DefaultTolerance, time.UTC)
	a := &alarm.Alarm{Frequency: alarm.Weekly, Time: clockAt(12, 7, 0), IsActive: true}

	assert.True(t, v.IsDue(a, clockAt(19, 7, 1)), "monday")
	assert.False(t, v.IsDue(a, clockAt(20, 7, 0)), "tuesday")
}

func TestIsDue_WrapsAtMidnight(t *testing.T) {
	v := NewValidator(DefaultTolerance, time.UTC)

	daily := &alarm.Alarm{Frequency: alarm.Daily, Time: clockAt(1, 23, 59), IsActive: true}
	assert.True(t, v.IsDue(daily, clockAt(14, 0, 1)))

	// monday 23:59 delivered tuesday 00:01 still belongs to monday
	weekly := &alarm.Alarm{Frequency: alarm.Weekly, Time: clockAt(12, 23, 59), IsActive: true}
	assert.True(t, v.IsDue(weekly, clockAt(20, 0, 1)))
	assert.False(t, v.IsDue(weekly, clockAt(19, 0, 1)))
}

func TestIsDue_UsesLocation(t *testing.T) {
	plus3 := time.FixedZone("MSK", 3*60*60)
	v := NewValidator(DefaultTolerance, plus3)

	// monday 23:00 UTC is tuesday 02:00 MSK
	a := &alarm.Alarm{Frequency: alarm.Weekly, Time: clockAt(12, 23, 0), IsActive: true}
	assert.True(t, v.IsDue(a, time.Date(2026, 10, 20, 2, 0, 0, 0, plus3)))
	assert.False(t, v.IsDue(a, time.Date(2026, 10, 19, 2, 0, 0, 0, plus3)))
}

func TestIsDue_UnknownFrequency(t *testing.T) {
	v := NewValidator(0, nil)
	assert.Equal(t, DefaultTolerance, v.Tolerance())
	assert.False(t, v.IsDue(&alarm.Alarm{Frequency: "hourly", IsActive: true}, clockAt(14, 7, 0)))
}
