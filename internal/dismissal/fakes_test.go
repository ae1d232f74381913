package dismissal

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Raimguzhinov/alarmd/internal/alarm"
	"github.com/Raimguzhinov/alarmd/internal/alarm/db"
	"github.com/Raimguzhinov/alarmd/internal/code"
	"github.com/Raimguzhinov/alarmd/internal/scheduler"
	"github.com/Raimguzhinov/alarmd/pkg/logger"
	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

const defaultSound = "asset://alarm-default.mp3"

type fakePlayback struct {
	source   string
	finished chan struct{}

	mu      sync.Mutex
	stops   int
	stopErr error
}

func (p *fakePlayback) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stops++
	return p.stopErr
}

func (p *fakePlayback) Finished() <-chan struct{} {
	return p.finished
}

func (p *fakePlayback) stopCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stops
}

type fakeAudio struct {
	mu       sync.Mutex
	failing  map[string]bool
	stopErr  error
	attempts int
	plays    []*fakePlayback
}

func newFakeAudio() *fakeAudio {
	return &fakeAudio{failing: make(map[string]bool)}
}

func (a *fakeAudio) ConfigurePlayback(bool) error {
	return nil
}

func (a *fakeAudio) Play(source string, opts PlayOptions) (Playback, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.attempts++
	if a.failing[source] {
		return nil, errors.New("sound file missing")
	}
	pb := &fakePlayback{source: source, finished: make(chan struct{}), stopErr: a.stopErr}
	a.plays = append(a.plays, pb)
	return pb, nil
}

func (a *fakeAudio) playCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.plays)
}

func (a *fakeAudio) attemptCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.attempts
}

func (a *fakeAudio) last() *fakePlayback {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.plays) == 0 {
		return nil
	}
	return a.plays[len(a.plays)-1]
}

type fakeVibrator struct {
	mu          sync.Mutex
	starts      int
	cancels     int
	startErr    error
	cancelPanic bool
}

func (v *fakeVibrator) Start([]time.Duration, bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.starts++
	return v.startErr
}

func (v *fakeVibrator) Cancel() error {
	v.mu.Lock()
	v.cancels++
	v.mu.Unlock()
	if v.cancelPanic {
		panic("motor stuck")
	}
	return nil
}

func (v *fakeVibrator) counts() (int, int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.starts, v.cancels
}

// gateCodes serves the first code at once and holds every later request
// until release is closed.
type gateCodes struct {
	next    CodeSource
	calls   atomic.Int32
	entered chan struct{}
	release chan struct{}
}

func newGateCodes(next CodeSource) *gateCodes {
	return &gateCodes{
		next:    next,
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
}

func (g *gateCodes) Generate(ctx context.Context, alarmID string) alarm.DismissalCode {
	if g.calls.Add(1) > 1 {
		select {
		case g.entered <- struct{}{}:
		default:
		}
		<-g.release
	}
	return g.next.Generate(ctx, alarmID)
}

type flakyRepo struct {
	Repository

	mu     sync.Mutex
	getErr error
}

func (r *flakyRepo) Get(ctx context.Context, id string) (alarm.Alarm, error) {
	r.mu.Lock()
	err := r.getErr
	r.mu.Unlock()
	if err != nil {
		return alarm.Alarm{}, err
	}
	return r.Repository.Get(ctx, id)
}

func (r *flakyRepo) setGetErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.getErr = err
}

type fixture struct {
	clock    *clock.Mock
	repo     *alarm.Repository
	platform *scheduler.LocalPlatform
	codes    *code.Generator
	audio    *fakeAudio
	vibrator *fakeVibrator
	cfg      Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clk := clock.NewMock()
	clk.Set(time.Date(2026, 10, 14, 6, 0, 0, 0, time.UTC))
	l := logger.Discard()

	platform := scheduler.NewLocalPlatform(clk, time.UTC, l)
	return &fixture{
		clock:    clk,
		repo:     alarm.NewRepository(db.NewMemory(), scheduler.New(platform, time.UTC, clk, l), clk, l),
		platform: platform,
		codes:    code.NewGenerator(clk, l),
		audio:    newFakeAudio(),
		vibrator: &fakeVibrator{},
		cfg:      Config{DefaultSound: defaultSound},
	}
}

func (f *fixture) create(t *testing.T, freq alarm.Frequency, minutes int) alarm.Alarm {
	t.Helper()
	a, err := f.repo.Create(context.Background(), alarm.Draft{
		Time:      time.Date(2026, 10, 14, 7, 0, 0, 0, time.UTC),
		Label:     "wake up",
		Frequency: freq,
		Duration:  minutes,
	})
	require.NoError(t, err)
	return a
}

func (f *fixture) session(id string) *Session {
	return NewSession(id, f.repo, f.codes, f.audio, f.vibrator, f.clock, f.cfg, logger.Discard())
}

func (f *fixture) manager() *Manager {
	return NewManager(f.repo, f.codes, f.audio, f.vibrator, f.clock, f.cfg, logger.Discard())
}

func wait(t *testing.T, s *Session) Outcome {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	out, err := s.Wait(ctx)
	require.NoError(t, err)
	return out
}

func wrongCode(c string) string {
	if c == "AAAAAAAA" {
		return "BBBBBBBB"
	}
	return "AAAAAAAA"
}
