package timing

import (
	"context"
	"errors"
	"fmt"

	"github.com/Raimguzhinov/alarmd/internal/alarm"
	"github.com/Raimguzhinov/alarmd/internal/scheduler"
	"github.com/Raimguzhinov/alarmd/pkg/logger"
	"github.com/benbjohnson/clock"
)

// Source tells which listener callback delivered a fire.
type Source string

const (
	SourceReceived Source = "received"
	SourceResponse Source = "response"
)

type Decision string

const (
	Launched  Decision = "launched"
	Duplicate Decision = "duplicate"
	NotDue    Decision = "not_due"
	Ignored   Decision = "ignored"
	Failed    Decision = "failed"
)

type Getter interface {
	Get(ctx context.Context, id string) (alarm.Alarm, error)
}

// Launcher starts the ringing session of a due alarm.
type Launcher interface {
	Launch(ctx context.Context, a alarm.Alarm) error
}

type LauncherFunc func(ctx context.Context, a alarm.Alarm) error

func (f LauncherFunc) Launch(ctx context.Context, a alarm.Alarm) error {
	return f(ctx, a)
}

type Dispatcher struct {
	alarms    Getter
	launcher  Launcher
	validator *Validator
	inflight  *InFlight
	clock     clock.Clock
	logger    *logger.Logger
}

func NewDispatcher(alarms Getter, launcher Launcher, v *Validator, inflight *InFlight, clk clock.Clock, l *logger.Logger) *Dispatcher {
	return &Dispatcher{
		alarms:    alarms,
		launcher:  launcher,
		validator: v,
		inflight:  inflight,
		clock:     clk,
		logger:    l.Component("timing"),
	}
}

// Handle runs one delivered fire through de-duplication and the due check,
// and launches a session when the alarm is due.
func (d *Dispatcher) Handle(ctx context.Context, p scheduler.Payload, src Source) (dec Decision, err error) {
	defer func() {
		dispatchTotal.WithLabelValues(string(src), string(dec)).Inc()
	}()

	if p.Kind != scheduler.PayloadKind || p.AlarmID == "" {
		return Ignored, nil
	}
	if !d.inflight.TryAcquire(p.AlarmID) {
		d.logger.Debug("dispatcher.Handle duplicate", logger.AlarmID(p.AlarmID), "source", src)
		return Duplicate, nil
	}

	a, err := d.alarms.Get(ctx, p.AlarmID)
	if errors.Is(err, alarm.ErrNotFound) {
		d.logger.Info("dispatcher.Handle stale fire", logger.AlarmID(p.AlarmID), "source", src)
		return NotDue, nil
	}
	if err != nil {
		return NotDue, fmt.Errorf("timing - Handle - alarms.Get: %w", err)
	}

	now := d.clock.Now()
	if !d.validator.IsDue(&a, now) {
		d.logger.Info("dispatcher.Handle not due", logger.AlarmID(a.ID), "source", src, "now", now, "time", a.Time)
		return NotDue, nil
	}

	if err := d.launcher.Launch(ctx, a); err != nil {
		d.logger.Error("dispatcher.Handle launch", logger.AlarmID(a.ID), logger.Err(err))
		return Failed, fmt.Errorf("timing - Handle - Launch: %w", err)
	}

	d.logger.Info("dispatcher.Handle launched", logger.AlarmID(a.ID), "source", src)
	return Launched, nil
}

// Listen subscribes the dispatcher to both callbacks of l and returns the
// listener teardown.
func (d *Dispatcher) Listen(ctx context.Context, l scheduler.Listener) func() {
	handle := func(src Source) func(scheduler.Payload) {
		return func(p scheduler.Payload) {
			if _, err := d.Handle(ctx, p, src); err != nil {
				d.logger.Error("dispatcher.Listen", logger.AlarmID(p.AlarmID), "source", src, logger.Err(err))
			}
		}
	}
	return l.Listen(handle(SourceReceived), handle(SourceResponse))
}
