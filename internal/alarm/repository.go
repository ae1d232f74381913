package alarm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/Raimguzhinov/alarmd/internal/alarm/db"
	"github.com/Raimguzhinov/alarmd/pkg/logger"
	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
)

type Store interface {
	Get(ctx context.Context, ns db.Namespace, key string) ([]byte, error)
	Put(ctx context.Context, ns db.Namespace, key string, value []byte) error
	Delete(ctx context.Context, ns db.Namespace, key string) error
	List(ctx context.Context, ns db.Namespace) ([][]byte, error)
}

// Repository owns alarm, dismissal code and ringtone records. Every
// read-modify-write sequence runs under one mutex, and every operation leaves
// IsActive == (ScheduleHandle != "") on the stored alarm, including ones that
// fail partway.
type Repository struct {
	mu        sync.Mutex
	store     Store
	scheduler Scheduler
	clock     clock.Clock
	logger    *logger.Logger
}

func NewRepository(store Store, scheduler Scheduler, clk clock.Clock, l *logger.Logger) *Repository {
	return &Repository{
		store:     store,
		scheduler: scheduler,
		clock:     clk,
		logger:    l.Component("alarm/repository"),
	}
}

func (r *Repository) List(ctx context.Context) ([]Alarm, error) {
	raw, err := r.store.List(ctx, db.Alarms)
	if err != nil {
		return nil, fmt.Errorf("alarm - List - store.List: %w", err)
	}

	alarms := make([]Alarm, 0, len(raw))
	for _, b := range raw {
		var a Alarm
		if err := json.Unmarshal(b, &a); err != nil {
			r.logger.Warn("repository.List skipping corrupt record", logger.Err(err))
			continue
		}
		alarms = append(alarms, a)
	}
	sort.Slice(alarms, func(i, j int) bool {
		return alarms[i].CreatedAt.Before(alarms[j].CreatedAt)
	})
	return alarms, nil
}

func (r *Repository) Get(ctx context.Context, id string) (Alarm, error) {
	var a Alarm
	if err := r.read(ctx, db.Alarms, id, &a); err != nil {
		return Alarm{}, err
	}
	return a, nil
}

// Create validates the draft, arms the notification and stores the alarm as
// active. A scheduling failure stores nothing; a storage failure cancels the
// freshly armed notification.
func (r *Repository) Create(ctx context.Context, d Draft) (Alarm, error) {
	d.normalize()
	if err := ValidateDraft(d); err != nil {
		return Alarm{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	a := Alarm{
		ID:        uuid.NewString(),
		Time:      d.Time,
		Label:     d.Label,
		Frequency: d.Frequency,
		Duration:  d.Duration,
		CreatedAt: r.clock.Now(),
	}

	if err := r.arm(ctx, &a); err != nil {
		return Alarm{}, fmt.Errorf("alarm - Create - arm: %w", err)
	}

	if err := r.write(ctx, db.Alarms, a.ID, a); err != nil {
		r.cancelQuietly(ctx, a.ID, a.ScheduleHandle)
		return Alarm{}, fmt.Errorf("alarm - Create - write: %w", err)
	}

	r.logger.Info("repository.Create", logger.AlarmID(a.ID), "frequency", a.Frequency, "time", a.Time)
	return a, nil
}

// Delete cancels the schedule and removes the alarm together with its code
// and ringtone records. Cleanup of the dependent records is best effort.
func (r *Repository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var a Alarm
	if err := r.read(ctx, db.Alarms, id, &a); err != nil {
		return err
	}

	if a.ScheduleHandle != "" {
		// a fire for a missing record is rejected by the timing validator
		r.cancelQuietly(ctx, id, a.ScheduleHandle)
	}

	if err := r.store.Delete(ctx, db.Codes, id); err != nil {
		r.logger.Warn("repository.Delete code cleanup", logger.AlarmID(id), logger.Err(err))
	}
	if err := r.store.Delete(ctx, db.Ringtones, id); err != nil {
		r.logger.Warn("repository.Delete ringtone cleanup", logger.AlarmID(id), logger.Err(err))
	}

	if err := r.store.Delete(ctx, db.Alarms, id); err != nil {
		return fmt.Errorf("alarm - Delete - store.Delete: %w", err)
	}

	r.logger.Info("repository.Delete", logger.AlarmID(id))
	return nil
}

// Update applies a patch. Moving the time of an active alarm arms the new
// time and persists it before the old schedule is cancelled; on failure the
// alarm keeps its previous time and schedule.
func (r *Repository) Update(ctx context.Context, id string, p Patch) (Alarm, error) {
	if err := ValidatePatch(p); err != nil {
		return Alarm{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var prev Alarm
	if err := r.read(ctx, db.Alarms, id, &prev); err != nil {
		return Alarm{}, err
	}

	next := prev
	if p.Label != nil {
		next.Label = strings.TrimSpace(*p.Label)
	}
	if p.Duration != nil {
		next.Duration = *p.Duration
	}

	retime := p.Time != nil && !p.Time.Equal(prev.Time)
	if retime {
		next.Time = *p.Time
	}

	if retime && prev.IsActive {
		moved, err := r.reschedule(ctx, prev, next)
		if err != nil {
			return Alarm{}, fmt.Errorf("alarm - Update: %w", err)
		}
		next = moved
	} else if err := r.write(ctx, db.Alarms, id, next); err != nil {
		return Alarm{}, fmt.Errorf("alarm - Update - write: %w", err)
	}

	r.logger.Info("repository.Update", logger.AlarmID(id))
	return next, nil
}

// Toggle flips IsActive, arming or cancelling the notification.
func (r *Repository) Toggle(ctx context.Context, id string) (Alarm, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var a Alarm
	if err := r.read(ctx, db.Alarms, id, &a); err != nil {
		return Alarm{}, err
	}

	if a.IsActive {
		return r.deactivate(ctx, a)
	}

	next := a
	if err := r.arm(ctx, &next); err != nil {
		return Alarm{}, fmt.Errorf("alarm - Toggle - arm: %w", err)
	}
	if err := r.write(ctx, db.Alarms, id, next); err != nil {
		r.cancelQuietly(ctx, id, next.ScheduleHandle)
		return Alarm{}, fmt.Errorf("alarm - Toggle - write: %w", err)
	}

	r.logger.Info("repository.Toggle", logger.AlarmID(id), "active", true)
	return next, nil
}

// Rearm runs after a ringing session ends: a one-shot alarm is deactivated
// (the record is kept), a recurring one is armed for its next occurrence and
// its old handle cancelled. Inactive alarms are left alone.
func (r *Repository) Rearm(ctx context.Context, id string) (Alarm, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var a Alarm
	if err := r.read(ctx, db.Alarms, id, &a); err != nil {
		return Alarm{}, err
	}
	if !a.IsActive {
		return a, nil
	}
	if !a.Frequency.Recurring() {
		return r.deactivate(ctx, a)
	}

	next, err := r.reschedule(ctx, a, a)
	if err != nil {
		return Alarm{}, fmt.Errorf("alarm - Rearm: %w", err)
	}

	r.logger.Info("repository.Rearm", logger.AlarmID(id), "handle", next.ScheduleHandle)
	return next, nil
}

// Reconcile re-arms active alarms whose handle is not among the pending
// fires of the scheduler, as after a restart of an in-process scheduler, and
// clears handles left on inactive alarms. It returns how many alarms were
// re-armed.
func (r *Repository) Reconcile(ctx context.Context, pending []string) (int, error) {
	alarms, err := r.List(ctx)
	if err != nil {
		return 0, err
	}

	live := make(map[string]bool, len(pending))
	for _, h := range pending {
		live[h] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var (
		rearmed int
		errs    []error
	)
	for _, a := range alarms {
		switch {
		case a.IsActive && !live[a.ScheduleHandle]:
			next := a
			if err := r.arm(ctx, &next); err != nil {
				off := a
				off.IsActive = false
				off.ScheduleHandle = ""
				if werr := r.write(ctx, db.Alarms, a.ID, off); werr != nil {
					err = errors.Join(err, werr)
				}
				errs = append(errs, fmt.Errorf("alarm %s: %w", a.ID, err))
				continue
			}
			if err := r.write(ctx, db.Alarms, a.ID, next); err != nil {
				r.cancelQuietly(ctx, a.ID, next.ScheduleHandle)
				errs = append(errs, fmt.Errorf("alarm %s: %w", a.ID, err))
				continue
			}
			rearmed++
		case !a.IsActive && a.ScheduleHandle != "":
			off := a
			off.ScheduleHandle = ""
			if err := r.write(ctx, db.Alarms, a.ID, off); err != nil {
				errs = append(errs, fmt.Errorf("alarm %s: %w", a.ID, err))
			}
		}
	}

	if rearmed > 0 {
		r.logger.Info("repository.Reconcile", "rearmed", rearmed)
	}
	if len(errs) > 0 {
		return rearmed, fmt.Errorf("alarm - Reconcile: %w", errors.Join(errs...))
	}
	return rearmed, nil
}

// reschedule arms next, persists it and only then cancels the handle of
// prev. On any failure the stored record keeps pointing at a live handle. It
// expects r.mu to be held.
func (r *Repository) reschedule(ctx context.Context, prev, next Alarm) (Alarm, error) {
	if err := r.arm(ctx, &next); err != nil {
		return Alarm{}, fmt.Errorf("arm: %w", err)
	}

	if err := r.write(ctx, db.Alarms, prev.ID, next); err != nil {
		r.cancelQuietly(ctx, prev.ID, next.ScheduleHandle)
		return Alarm{}, fmt.Errorf("write: %w", err)
	}

	if prev.ScheduleHandle != next.ScheduleHandle {
		// a stray fire of the old handle is rejected by the in-flight marker
		// or the timing validator
		r.cancelQuietly(ctx, prev.ID, prev.ScheduleHandle)
	}
	return next, nil
}

// deactivate expects r.mu to be held.
func (r *Repository) deactivate(ctx context.Context, a Alarm) (Alarm, error) {
	if err := r.scheduler.Cancel(ctx, a.ScheduleHandle); err != nil {
		return Alarm{}, fmt.Errorf("alarm - deactivate - cancel: %w", err)
	}

	off := a
	off.IsActive = false
	off.ScheduleHandle = ""
	if err := r.write(ctx, db.Alarms, a.ID, off); err != nil {
		// the stored record still claims a schedule, make that true again
		r.restore(ctx, a)
		return Alarm{}, fmt.Errorf("alarm - deactivate - write: %w", err)
	}

	r.logger.Info("repository.deactivate", logger.AlarmID(a.ID))
	return off, nil
}

func (r *Repository) restore(ctx context.Context, prev Alarm) {
	again := prev
	if err := r.arm(ctx, &again); err != nil {
		r.logger.Error("repository.restore arm", logger.AlarmID(prev.ID), logger.Err(err))
		return
	}
	if err := r.write(ctx, db.Alarms, prev.ID, again); err != nil {
		r.logger.Error("repository.restore write", logger.AlarmID(prev.ID), logger.Err(err))
		r.cancelQuietly(ctx, prev.ID, again.ScheduleHandle)
	}
}

// arm schedules a and marks it active. One-shot alarms take the resolved
// fire instant as their time.
func (r *Repository) arm(ctx context.Context, a *Alarm) error {
	sch, err := r.scheduler.Schedule(ctx, *a)
	if err != nil {
		return err
	}
	if sch.Handle == "" {
		return errors.New("scheduler returned an empty handle")
	}
	a.IsActive = true
	a.ScheduleHandle = sch.Handle
	if a.Frequency == Once {
		a.Time = sch.NextFire
	}
	return nil
}

func (r *Repository) cancelQuietly(ctx context.Context, id, handle string) {
	if err := r.scheduler.Cancel(ctx, handle); err != nil {
		r.logger.Warn("repository cancel", logger.AlarmID(id), "handle", handle, logger.Err(err))
	}
}

func (r *Repository) Code(ctx context.Context, alarmID string) (DismissalCode, error) {
	var c DismissalCode
	if err := r.read(ctx, db.Codes, alarmID, &c); err != nil {
		return DismissalCode{}, err
	}
	return c, nil
}

// PutCode replaces the live code of an alarm.
func (r *Repository) PutCode(ctx context.Context, c DismissalCode) error {
	if c.AlarmID == "" {
		return fmt.Errorf("%w: code without alarm id", ErrInvalid)
	}
	if !ValidCode(c.Code) {
		return fmt.Errorf("%w: malformed dismissal code", ErrInvalid)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.write(ctx, db.Codes, c.AlarmID, c); err != nil {
		return fmt.Errorf("alarm - PutCode - write: %w", err)
	}
	return nil
}

// IncrementAttempts persists one more failed-or-pending attempt and returns
// the updated record.
func (r *Repository) IncrementAttempts(ctx context.Context, alarmID string) (DismissalCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var c DismissalCode
	if err := r.read(ctx, db.Codes, alarmID, &c); err != nil {
		return DismissalCode{}, err
	}
	c.Attempts++
	if err := r.write(ctx, db.Codes, alarmID, c); err != nil {
		return DismissalCode{}, fmt.Errorf("alarm - IncrementAttempts - write: %w", err)
	}
	return c, nil
}

func (r *Repository) DeleteCode(ctx context.Context, alarmID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.store.Delete(ctx, db.Codes, alarmID); err != nil {
		return fmt.Errorf("alarm - DeleteCode - store.Delete: %w", err)
	}
	return nil
}

func (r *Repository) Ringtone(ctx context.Context, alarmID string) (Ringtone, error) {
	var rt Ringtone
	if err := r.read(ctx, db.Ringtones, alarmID, &rt); err != nil {
		return Ringtone{}, err
	}
	return rt, nil
}

// SetRingtone stores the override and mirrors its URI on the alarm record.
func (r *Repository) SetRingtone(ctx context.Context, alarmID string, rt Ringtone) (Alarm, error) {
	rt.AlarmID = alarmID
	if err := ValidateRingtone(rt); err != nil {
		return Alarm{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var a Alarm
	if err := r.read(ctx, db.Alarms, alarmID, &a); err != nil {
		return Alarm{}, err
	}
	if err := r.write(ctx, db.Ringtones, alarmID, rt); err != nil {
		return Alarm{}, fmt.Errorf("alarm - SetRingtone - write ringtone: %w", err)
	}
	a.RingtoneOverride = rt.URI
	if err := r.write(ctx, db.Alarms, alarmID, a); err != nil {
		return Alarm{}, fmt.Errorf("alarm - SetRingtone - write alarm: %w", err)
	}
	return a, nil
}

func (r *Repository) DeleteRingtone(ctx context.Context, alarmID string) (Alarm, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var a Alarm
	if err := r.read(ctx, db.Alarms, alarmID, &a); err != nil {
		return Alarm{}, err
	}
	if err := r.store.Delete(ctx, db.Ringtones, alarmID); err != nil {
		r.logger.Warn("repository.DeleteRingtone", logger.AlarmID(alarmID), logger.Err(err))
	}
	if a.RingtoneOverride == "" {
		return a, nil
	}
	a.RingtoneOverride = ""
	if err := r.write(ctx, db.Alarms, alarmID, a); err != nil {
		return Alarm{}, fmt.Errorf("alarm - DeleteRingtone - write: %w", err)
	}
	return a, nil
}

func (r *Repository) read(ctx context.Context, ns db.Namespace, key string, dest any) error {
	b, err := r.store.Get(ctx, ns, key)
	if errors.Is(err, db.ErrNotFound) {
		return fmt.Errorf("%s %s: %w", ns, key, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("alarm - read %s: %w", ns, err)
	}
	if err := json.Unmarshal(b, dest); err != nil {
		return fmt.Errorf("alarm - read %s - decode: %w", ns, err)
	}
	return nil
}

func (r *Repository) write(ctx context.Context, ns db.Namespace, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return r.store.Put(ctx, ns, key, b)
}
