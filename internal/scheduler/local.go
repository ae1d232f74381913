package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Raimguzhinov/alarmd/pkg/logger"
	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
)

type entry struct {
	trigger Trigger
	payload Payload
	timer   *clock.Timer
	next    time.Time
}

type listener struct {
	onReceived func(Payload)
	onResponse func(Payload)
}

// LocalPlatform is an in-process Platform and Listener that arms clock timers
// and re-arms repeating triggers after every fire.
type LocalPlatform struct {
	clock  clock.Clock
	loc    *time.Location
	logger *logger.Logger

	mu        sync.Mutex
	channel   bool
	entries   map[string]*entry
	listeners map[int]listener
	nextID    int
}

func NewLocalPlatform(clk clock.Clock, loc *time.Location, l *logger.Logger) *LocalPlatform {
	if loc == nil {
		loc = time.Local
	}
	return &LocalPlatform{
		clock:     clk,
		loc:       loc,
		logger:    l.Component("scheduler/local"),
		entries:   make(map[string]*entry),
		listeners: make(map[int]listener),
	}
}

func (p *LocalPlatform) EnsureChannel(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.channel {
		p.logger.Info("local.EnsureChannel", "channel", "alarms", "importance", "high")
	}
	p.channel = true
	return nil
}

func (p *LocalPlatform) ChannelReady() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channel
}

func (p *LocalPlatform) ScheduleOnce(_ context.Context, at time.Time, pl Payload) (string, error) {
	return p.add(Trigger{Kind: KindDate, At: at, Location: p.loc}, pl), nil
}

func (p *LocalPlatform) ScheduleDaily(_ context.Context, hour, minute int, pl Payload) (string, error) {
	return p.add(Trigger{Kind: KindDaily, Hour: hour, Minute: minute, Location: p.loc}, pl), nil
}

func (p *LocalPlatform) ScheduleWeekly(_ context.Context, weekday time.Weekday, hour, minute int, pl Payload) (string, error) {
	return p.add(Trigger{Kind: KindWeekly, Weekday: weekday, Hour: hour, Minute: minute, Location: p.loc}, pl), nil
}

func (p *LocalPlatform) Cancel(_ context.Context, handle string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if e, ok := p.entries[handle]; ok {
		e.timer.Stop()
		delete(p.entries, handle)
	}
	return nil
}

func (p *LocalPlatform) ListScheduled(context.Context) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	handles := make([]string, 0, len(p.entries))
	for h := range p.entries {
		handles = append(handles, h)
	}
	sort.Strings(handles)
	return handles, nil
}

// NextFire reports when handle fires next.
func (p *LocalPlatform) NextFire(handle string) (time.Time, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.entries[handle]
	if !ok {
		return time.Time{}, false
	}
	return e.next, true
}

func (p *LocalPlatform) Listen(onReceived, onResponse func(Payload)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextID
	p.nextID++
	p.listeners[id] = listener{onReceived: onReceived, onResponse: onResponse}

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.listeners, id)
	}
}

// Respond delivers a user action on a notification to the listeners.
func (p *LocalPlatform) Respond(pl Payload) {
	for _, l := range p.snapshotListeners() {
		if l.onResponse != nil {
			l.onResponse(pl)
		}
	}
}

func (p *LocalPlatform) add(t Trigger, pl Payload) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	handle := uuid.NewString()
	e := &entry{trigger: t, payload: pl}
	p.entries[handle] = e
	p.arm(handle, e)
	return handle
}

// arm expects p.mu to be held.
func (p *LocalPlatform) arm(handle string, e *entry) {
	now := p.clock.Now()
	next := e.trigger.Next(now)
	if next.IsZero() {
		// a date already in the past fires right away
		next = now
	}
	e.next = next
	e.timer = p.clock.AfterFunc(next.Sub(now), func() {
		p.fire(handle)
	})
}

func (p *LocalPlatform) fire(handle string) {
	p.mu.Lock()
	e, ok := p.entries[handle]
	if !ok {
		p.mu.Unlock()
		return
	}
	if e.trigger.Kind == KindDate {
		delete(p.entries, handle)
	} else {
		p.arm(handle, e)
	}
	pl := e.payload
	p.mu.Unlock()

	p.logger.Debug("local.fire", logger.AlarmID(pl.AlarmID), "handle", handle)

	for _, l := range p.snapshotListeners() {
		if l.onReceived != nil {
			l.onReceived(pl)
		}
	}
}

func (p *LocalPlatform) snapshotListeners() []listener {
	p.mu.Lock()
	defer p.mu.Unlock()

	ids := make([]int, 0, len(p.listeners))
	for id := range p.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	out := make([]listener, 0, len(ids))
	for _, id := range ids {
		out = append(out, p.listeners[id])
	}
	return out
}
