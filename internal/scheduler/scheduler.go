// Package scheduler translates alarm recurrence into platform notification
// triggers.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Raimguzhinov/alarmd/internal/alarm"
	"github.com/Raimguzhinov/alarmd/pkg/logger"
	"github.com/benbjohnson/clock"
)

type Scheduler struct {
	platform Platform
	loc      *time.Location
	clock    clock.Clock
	logger   *logger.Logger

	mu           sync.Mutex
	channelReady bool
}

func New(platform Platform, loc *time.Location, clk clock.Clock, l *logger.Logger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		platform: platform,
		loc:      loc,
		clock:    clk,
		logger:   l.Component("scheduler"),
	}
}

func (s *Scheduler) Location() *time.Location {
	return s.loc
}

func (s *Scheduler) ensureChannel(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.channelReady {
		return nil
	}
	if err := s.platform.EnsureChannel(ctx); err != nil {
		return fmt.Errorf("scheduler - ensureChannel: %w", err)
	}
	s.channelReady = true
	return nil
}

func (s *Scheduler) Schedule(ctx context.Context, a alarm.Alarm) (alarm.Schedule, error) {
	if err := s.ensureChannel(ctx); err != nil {
		return alarm.Schedule{}, err
	}

	now := s.clock.Now()
	t := TriggerFor(a, now, s.loc)
	p := Payload{
		AlarmID:  a.ID,
		Duration: a.Duration,
		Kind:     PayloadKind,
	}

	var handle string
	var err error
	switch t.Kind {
	case KindDaily:
		handle, err = s.platform.ScheduleDaily(ctx, t.Hour, t.Minute, p)
	case KindWeekly:
		handle, err = s.platform.ScheduleWeekly(ctx, t.Weekday, t.Hour, t.Minute, p)
	default:
		handle, err = s.platform.ScheduleOnce(ctx, t.At, p)
	}
	if err != nil {
		s.logger.Error("scheduler.Schedule", logger.AlarmID(a.ID), logger.Err(err))
		return alarm.Schedule{}, fmt.Errorf("scheduler - Schedule %s: %w", t, err)
	}

	next := t.Next(now)
	s.logger.Debug("scheduler.Schedule", logger.AlarmID(a.ID), "trigger", t.String(), "next", next, "handle", handle)
	return alarm.Schedule{Handle: handle, NextFire: next}, nil
}

func (s *Scheduler) Cancel(ctx context.Context, handle string) error {
	if handle == "" {
		return nil
	}
	if err := s.platform.Cancel(ctx, handle); err != nil {
		return fmt.Errorf("scheduler - Cancel %s: %w", handle, err)
	}
	return nil
}

func (s *Scheduler) Pending(ctx context.Context) ([]string, error) {
	return s.platform.ListScheduled(ctx)
}
