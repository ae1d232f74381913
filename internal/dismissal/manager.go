package dismissal

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/Raimguzhinov/alarmd/pkg/logger"
	"github.com/benbjohnson/clock"
)

// Manager owns the ringing sessions, at most one per alarm. Finished sessions
// are dropped and their last outcome is kept per alarm.
type Manager struct {
	repo     Repository
	codes    CodeSource
	audio    Audio
	vibrator Vibrator
	clock    clock.Clock
	cfg      Config
	logger   *logger.Logger

	mu       sync.Mutex
	closed   bool
	sessions map[string]*Session
	finished map[string]Outcome
}

func NewManager(
	repo Repository,
	codes CodeSource,
	audio Audio,
	vibrator Vibrator,
	clk clock.Clock,
	cfg Config,
	l *logger.Logger,
) *Manager {
	return &Manager{
		repo:     repo,
		codes:    codes,
		audio:    audio,
		vibrator: vibrator,
		clock:    clk,
		cfg:      cfg,
		logger:   l,
		sessions: make(map[string]*Session),
		finished: make(map[string]Outcome),
	}
}

// Launch starts a session for alarmID. It fails with ErrBusy while another
// session for the same alarm is live.
func (m *Manager) Launch(ctx context.Context, alarmID string) (*Session, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, fmt.Errorf("dismissal - Launch: %w", ErrClosed)
	}
	if s, ok := m.sessions[alarmID]; ok {
		m.mu.Unlock()
		return s, fmt.Errorf("dismissal - Launch %s: %w", alarmID, ErrBusy)
	}
	s := NewSession(alarmID, m.repo, m.codes, m.audio, m.vibrator, m.clock, m.cfg, m.logger)
	m.sessions[alarmID] = s
	m.mu.Unlock()

	if err := s.Start(ctx); err != nil {
		m.mu.Lock()
		delete(m.sessions, alarmID)
		m.mu.Unlock()
		return nil, err
	}

	go func() {
		<-s.Done()
		out := s.outcome.Get()

		m.mu.Lock()
		defer m.mu.Unlock()
		if m.sessions[alarmID] == s {
			delete(m.sessions, alarmID)
		}
		m.finished[alarmID] = out
	}()
	return s, nil
}

func (m *Manager) Get(alarmID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[alarmID]
	if !ok {
		return nil, ErrNoSession
	}
	return s, nil
}

// LastOutcome returns how the most recent session of alarmID ended.
func (m *Manager) LastOutcome(alarmID string) (Outcome, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out, ok := m.finished[alarmID]
	return out, ok
}

// Active lists the live sessions ordered by alarm id.
func (m *Manager) Active() []Snapshot {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	out := make([]Snapshot, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AlarmID < out[j].AlarmID })
	return out
}

func (m *Manager) Cancel(ctx context.Context, alarmID string) (Outcome, error) {
	s, err := m.Get(alarmID)
	if err != nil {
		return Outcome{}, err
	}
	return s.Cancel(ctx)
}

// Shutdown refuses new sessions and cancels the live ones, waiting for their
// teardown.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		if _, err := s.Cancel(ctx); err != nil && !errors.Is(err, ErrClosed) {
			errs = append(errs, fmt.Errorf("cancel %s: %w", s.AlarmID(), err))
		}
	}
	if len(sessions) > 0 {
		m.logger.Info("dismissal.Shutdown", "cancelled", len(sessions))
	}
	return errors.Join(errs...)
}
