// Package dismissal runs ringing sessions: the sound, vibration and countdown
// of a fired alarm, and the dismissal code that stops it.
package dismissal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Raimguzhinov/alarmd/internal/alarm"
	"github.com/Raimguzhinov/alarmd/pkg/logger"
	"github.com/Raimguzhinov/alarmd/pkg/utils"
	"github.com/benbjohnson/clock"
	"golang.org/x/sync/errgroup"
)

type State string

const (
	Initializing State = "initializing"
	Ringing      State = "ringing"
	Success      State = "success"
	TimedOut     State = "timed_out"
	Cancelled    State = "cancelled"
)

func (s State) Terminal() bool {
	return s == Success || s == TimedOut || s == Cancelled
}

type SubmitResult string

const (
	ResultWrong       SubmitResult = "wrong"
	ResultExhausted   SubmitResult = "exhausted"
	ResultSuccess     SubmitResult = "success"
	ResultCodeExpired SubmitResult = "code_expired"
)

const (
	NoticeCodeExpired = "The code expired. A new code was issued."

	reasonExpired   = "expired"
	reasonRequested = "requested"

	_defaultTick          = time.Second
	_defaultPolicyTimeout = 10 * time.Second
)

var (
	ErrClosed    = errors.New("session is not ringing")
	ErrNoSession = errors.New("no ringing session")
	ErrBusy      = errors.New("alarm is already ringing")
)

// Repository is the part of the alarm repository a session works against.
type Repository interface {
	Get(ctx context.Context, id string) (alarm.Alarm, error)
	Code(ctx context.Context, alarmID string) (alarm.DismissalCode, error)
	PutCode(ctx context.Context, c alarm.DismissalCode) error
	IncrementAttempts(ctx context.Context, alarmID string) (alarm.DismissalCode, error)
	DeleteCode(ctx context.Context, alarmID string) error
	Rearm(ctx context.Context, id string) (alarm.Alarm, error)
}

type CodeSource interface {
	Generate(ctx context.Context, alarmID string) alarm.DismissalCode
}

type Config struct {
	DefaultSound     string
	VibrationPattern []time.Duration
	// Tick is the countdown granularity.
	Tick time.Duration
	// PolicyTimeout bounds the code cleanup and rescheduling after a session
	// ends.
	PolicyTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Tick <= 0 {
		c.Tick = _defaultTick
	}
	if c.PolicyTimeout <= 0 {
		c.PolicyTimeout = _defaultPolicyTimeout
	}
	if len(c.VibrationPattern) == 0 {
		c.VibrationPattern = []time.Duration{500 * time.Millisecond, 500 * time.Millisecond}
	}
	return c
}

type Submission struct {
	Result    SubmitResult `json:"result"`
	Attempts  int          `json:"attempts"`
	Remaining int          `json:"remainingAttempts"`
	Notice    string       `json:"notice,omitempty"`
}

// Outcome is reported once a session has ended and its resources are
// released.
type Outcome struct {
	AlarmID string
	State   State
	// Alarm is the record after rescheduling or deactivation.
	Alarm alarm.Alarm
	// Err collects failures of the code cleanup and rescheduling.
	Err error
	// TeardownErr collects failures releasing audio, vibration and timer.
	TeardownErr error
	EndedAt     time.Time
}

type Snapshot struct {
	AlarmID           string    `json:"alarmId"`
	Label             string    `json:"label"`
	State             State     `json:"state"`
	RemainingSeconds  int       `json:"remainingSeconds"`
	Code              string    `json:"code,omitempty"`
	CodeExpiresAt     time.Time `json:"codeExpiresAt"`
	Attempts          int       `json:"attempts"`
	RemainingAttempts int       `json:"remainingAttempts"`
	Notice            string    `json:"notice,omitempty"`
}

type Session struct {
	alarmID  string
	repo     Repository
	codes    CodeSource
	audio    Audio
	vibrator Vibrator
	clock    clock.Clock
	cfg      Config
	logger   *logger.Logger

	// codeMu orders every change to the code record: submissions,
	// regeneration and rotation on expiry.
	codeMu sync.Mutex

	mu       sync.Mutex
	state    State
	starting bool
	closing  bool
	alarm    alarm.Alarm
	code     alarm.DismissalCode
	notice   string
	deadline time.Time

	ending  chan State
	stop    context.CancelFunc
	group   *errgroup.Group
	sound   *audioLoop
	buzz    *vibration
	ticker  *clock.Ticker
	outcome *utils.OnceValue[Outcome]
}

func NewSession(
	alarmID string,
	repo Repository,
	codes CodeSource,
	audio Audio,
	vibrator Vibrator,
	clk clock.Clock,
	cfg Config,
	l *logger.Logger,
) *Session {
	return &Session{
		alarmID:  alarmID,
		repo:     repo,
		codes:    codes,
		audio:    audio,
		vibrator: vibrator,
		clock:    clk,
		cfg:      cfg.withDefaults(),
		logger:   l.Component("dismissal").With(logger.AlarmID(alarmID)),
		state:    Initializing,
		ending:   make(chan State, 1),
		outcome:  utils.NewOnceValue[Outcome](),
	}
}

func (s *Session) AlarmID() string {
	return s.alarmID
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start loads the alarm and a live code and enters Ringing. On error the
// session stays in Initializing, nothing was started and Start may be
// retried. ctx bounds the initialization only.
func (s *Session) Start(ctx context.Context) (err error) {
	s.mu.Lock()
	if s.state != Initializing || s.starting {
		s.mu.Unlock()
		return fmt.Errorf("dismissal - Start: %w", ErrClosed)
	}
	s.starting = true
	s.mu.Unlock()

	defer func() {
		if err != nil {
			s.mu.Lock()
			s.starting = false
			s.mu.Unlock()
		}
	}()

	a, err := s.repo.Get(ctx, s.alarmID)
	if err != nil {
		return fmt.Errorf("dismissal - Start - Get: %w", err)
	}
	if a.Duration < alarm.MinDuration || a.Duration > alarm.MaxDuration {
		return fmt.Errorf("dismissal - Start: %w: duration %d", alarm.ErrInvalid, a.Duration)
	}

	c, err := s.loadCode(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.alarm = a
	s.code = c
	s.deadline = s.clock.Now().Add(a.RingDuration())
	s.state = Ringing
	s.ring()
	s.mu.Unlock()

	sessionsStarted.Inc()
	sessionsActive.Inc()
	s.logger.Info("session.Start", "duration", a.RingDuration(), "deadline", s.deadline)
	return nil
}

// loadCode reuses a stored unexpired code so attempts survive a restart of
// the same ringing episode, and issues a new one otherwise.
func (s *Session) loadCode(ctx context.Context) (alarm.DismissalCode, error) {
	c, err := s.repo.Code(ctx, s.alarmID)
	switch {
	case err == nil && !c.Expired(s.clock.Now()):
		return c, nil
	case err != nil && !errors.Is(err, alarm.ErrNotFound):
		return alarm.DismissalCode{}, fmt.Errorf("dismissal - loadCode - Code: %w", err)
	}

	fresh := s.codes.Generate(ctx, s.alarmID)
	if err := s.repo.PutCode(ctx, fresh); err != nil {
		return alarm.DismissalCode{}, fmt.Errorf("dismissal - loadCode - PutCode: %w", err)
	}
	return fresh, nil
}

// ring starts the activities of the Ringing state. It expects s.mu to be
// held.
func (s *Session) ring() {
	actx, cancel := context.WithCancel(context.Background())
	s.stop = cancel

	var sources []string
	if s.alarm.RingtoneOverride != "" {
		sources = append(sources, s.alarm.RingtoneOverride)
	}
	if s.cfg.DefaultSound != "" {
		sources = append(sources, s.cfg.DefaultSound)
	}

	s.sound = newAudioLoop(s.audio, sources, s.logger)
	s.buzz = newVibration(s.vibrator, s.cfg.VibrationPattern, s.logger)
	s.ticker = s.clock.Ticker(s.cfg.Tick)

	g, gctx := errgroup.WithContext(actx)
	s.group = g

	s.buzz.start()
	g.Go(func() error {
		return s.sound.run(gctx)
	})
	g.Go(func() error {
		return s.countdown(gctx)
	})

	go s.supervise()
}

func (s *Session) countdown(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.ticker.C:
		}

		now := s.clock.Now()
		if !now.Before(s.deadline) {
			s.end(TimedOut)
			return nil
		}
		s.rotateIfExpired(ctx, now)
	}
}

// end requests the terminal state st. The first request wins.
func (s *Session) end(st State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closing {
		return false
	}
	s.closing = true
	s.ending <- st
	return true
}

func (s *Session) supervise() {
	final := <-s.ending

	out := Outcome{
		AlarmID:     s.alarmID,
		State:       final,
		TeardownErr: s.teardown(),
	}
	if final == Cancelled {
		out.Alarm = s.snapshotAlarm()
	} else {
		// wait out a rotation in flight so no code is written after the
		// record is dropped
		s.codeMu.Lock()
		out.Alarm, out.Err = s.applyPolicy()
		s.codeMu.Unlock()
	}
	out.EndedAt = s.clock.Now()

	s.mu.Lock()
	s.state = final
	s.alarm = out.Alarm
	s.mu.Unlock()

	sessionsActive.Dec()
	sessionOutcomes.WithLabelValues(string(final)).Inc()
	if out.TeardownErr != nil {
		s.logger.Error("session teardown", logger.Err(out.TeardownErr))
	}
	if out.Err != nil {
		s.logger.Error("session policy", logger.Err(out.Err))
	}
	s.logger.Info("session ended", "state", final)

	s.outcome.Set(out)
}

// teardown stops every activity. Each resource is released on its own so a
// failing one does not keep the others running.
func (s *Session) teardown() error {
	s.stop()

	errs := []error{
		release("audio", s.sound.release),
		release("vibration", s.buzz.release),
		release("countdown", func() error {
			s.ticker.Stop()
			return nil
		}),
	}
	if err := s.group.Wait(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// applyPolicy drops the code and reschedules or deactivates the alarm.
func (s *Session) applyPolicy() (alarm.Alarm, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.PolicyTimeout)
	defer cancel()

	var errs []error
	if err := s.repo.DeleteCode(ctx, s.alarmID); err != nil && !errors.Is(err, alarm.ErrNotFound) {
		errs = append(errs, err)
	}

	a, err := s.repo.Rearm(ctx, s.alarmID)
	if err != nil {
		errs = append(errs, err)
		a = s.snapshotAlarm()
	}
	return a, errors.Join(errs...)
}

func (s *Session) ringing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == Ringing && !s.closing
}

func (s *Session) currentCode() alarm.DismissalCode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.code
}

func (s *Session) snapshotAlarm() alarm.Alarm {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alarm
}

// Submit checks a candidate code. The attempt is persisted before the result
// is reported. A match ends the session in Success and Submit returns once
// the resources are released. Running out of attempts never ends the
// session.
func (s *Session) Submit(ctx context.Context, input string) (Submission, error) {
	s.codeMu.Lock()

	if !s.ringing() {
		s.codeMu.Unlock()
		return Submission{}, ErrClosed
	}

	if s.currentCode().Expired(s.clock.Now()) {
		fresh, err := s.rotate(ctx, NoticeCodeExpired, reasonExpired)
		s.codeMu.Unlock()
		if err != nil {
			return Submission{}, err
		}
		submissions.WithLabelValues(string(ResultCodeExpired)).Inc()
		return Submission{
			Result:    ResultCodeExpired,
			Attempts:  fresh.Attempts,
			Remaining: fresh.RemainingAttempts(),
			Notice:    NoticeCodeExpired,
		}, nil
	}

	rec, err := s.repo.IncrementAttempts(ctx, s.alarmID)
	if err != nil {
		s.codeMu.Unlock()
		return Submission{}, fmt.Errorf("dismissal - Submit - IncrementAttempts: %w", err)
	}

	s.mu.Lock()
	s.code = rec
	s.notice = ""
	s.mu.Unlock()

	if normalize(input) != rec.Code {
		s.codeMu.Unlock()
		res := Submission{Attempts: rec.Attempts, Remaining: rec.RemainingAttempts(), Result: ResultWrong}
		if rec.Attempts >= alarm.MaxAttempts {
			res.Result = ResultExhausted
		}
		submissions.WithLabelValues(string(res.Result)).Inc()
		s.logger.Info("session.Submit", "result", res.Result, "attempts", rec.Attempts)
		return res, nil
	}

	won := s.end(Success)
	s.codeMu.Unlock()

	out, err := s.Wait(ctx)
	if err != nil {
		return Submission{}, err
	}
	if !won || out.State != Success {
		return Submission{}, ErrClosed
	}
	submissions.WithLabelValues(string(ResultSuccess)).Inc()
	return Submission{Result: ResultSuccess, Attempts: rec.Attempts}, nil
}

// Regenerate replaces the code with a fresh one and resets the attempts.
func (s *Session) Regenerate(ctx context.Context) (alarm.DismissalCode, error) {
	s.codeMu.Lock()
	defer s.codeMu.Unlock()

	if !s.ringing() {
		return alarm.DismissalCode{}, ErrClosed
	}
	return s.rotate(ctx, "", reasonRequested)
}

// rotateIfExpired skips the tick while a submit or regenerate holds the code,
// so the countdown never waits on code generation.
func (s *Session) rotateIfExpired(ctx context.Context, now time.Time) {
	if !s.codeMu.TryLock() {
		return
	}
	defer s.codeMu.Unlock()

	if ctx.Err() != nil || !s.ringing() || !s.currentCode().Expired(now) {
		return
	}
	if _, err := s.rotate(ctx, NoticeCodeExpired, reasonExpired); err != nil && !errors.Is(err, ErrClosed) {
		s.logger.Warn("session rotate expired code", logger.Err(err))
	}
}

// rotate expects s.codeMu to be held. It fails with ErrClosed when the
// session ended while the code was being generated.
func (s *Session) rotate(ctx context.Context, notice, reason string) (alarm.DismissalCode, error) {
	fresh := s.codes.Generate(ctx, s.alarmID)
	if !s.ringing() {
		return alarm.DismissalCode{}, ErrClosed
	}
	if err := s.repo.PutCode(ctx, fresh); err != nil {
		return alarm.DismissalCode{}, fmt.Errorf("dismissal - rotate - PutCode: %w", err)
	}

	s.mu.Lock()
	s.code = fresh
	s.notice = notice
	s.mu.Unlock()

	codeRotations.WithLabelValues(reason).Inc()
	s.logger.Info("session code rotated", "reason", reason, "expires_at", fresh.ExpiresAt)
	return fresh, nil
}

// Cancel ends a ringing session without rescheduling. The code record is
// kept.
func (s *Session) Cancel(ctx context.Context) (Outcome, error) {
	s.mu.Lock()
	started := s.stop != nil
	s.mu.Unlock()
	if !started {
		return Outcome{}, ErrClosed
	}

	s.end(Cancelled)
	return s.Wait(ctx)
}

// Wait blocks until the session has ended.
func (s *Session) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-s.outcome.Done():
		return s.outcome.Get(), nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// Done is closed when the outcome is available.
func (s *Session) Done() <-chan struct{} {
	return s.outcome.Done()
}

func (s *Session) Snapshot() Snapshot {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		AlarmID:           s.alarmID,
		Label:             s.alarm.Label,
		State:             s.state,
		Code:              s.code.Code,
		CodeExpiresAt:     s.code.ExpiresAt,
		Attempts:          s.code.Attempts,
		RemainingAttempts: s.code.RemainingAttempts(),
		Notice:            s.notice,
	}
	if s.state == Ringing {
		if left := s.deadline.Sub(now); left > 0 {
			snap.RemainingSeconds = int((left + time.Second - 1) / time.Second)
		}
	}
	if s.state.Terminal() {
		snap.Code = ""
	}
	return snap
}
