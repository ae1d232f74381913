package dismissal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Raimguzhinov/alarmd/pkg/logger"
)

var errNoSound = errors.New("no sound source")

// release runs fn and turns a panic into an error, so every resource of a
// session gets its turn during teardown.
func release(name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("release %s: panic: %v", name, r)
		}
	}()
	if err := fn(); err != nil {
		return fmt.Errorf("release %s: %w", name, err)
	}
	return nil
}

// audioLoop keeps a sound playing until released. Sources are tried in
// order; the loop gives up silently when none of them plays.
type audioLoop struct {
	audio   Audio
	sources []string
	logger  *logger.Logger

	mu       sync.Mutex
	current  Playback
	released bool
}

func newAudioLoop(a Audio, sources []string, l *logger.Logger) *audioLoop {
	return &audioLoop{audio: a, sources: sources, logger: l}
}

func (l *audioLoop) run(ctx context.Context) error {
	if err := l.audio.ConfigurePlayback(true); err != nil {
		l.logger.Warn("audio.ConfigurePlayback", logger.Err(err))
	}

	for first := true; ; first = false {
		pb, err := l.play()
		if err != nil {
			degradedResources.WithLabelValues("audio").Inc()
			l.logger.Warn("audio unavailable, ringing without sound", logger.Err(err))
			return nil
		}
		if !first {
			audioRestarts.Inc()
		}

		l.mu.Lock()
		if l.released {
			l.mu.Unlock()
			_ = pb.Stop()
			return nil
		}
		l.current = pb
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil
		case <-pb.Finished():
			l.logger.Debug("audio finished, restarting")
		}
	}
}

func (l *audioLoop) play() (Playback, error) {
	var lastErr error
	for _, src := range l.sources {
		pb, err := l.audio.Play(src, PlayOptions{Loop: true, Volume: 1.0})
		if err == nil {
			return pb, nil
		}
		l.logger.Warn("audio.Play", "source", src, logger.Err(err))
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errNoSound
	}
	return nil, lastErr
}

func (l *audioLoop) release() error {
	l.mu.Lock()
	l.released = true
	pb := l.current
	l.current = nil
	l.mu.Unlock()

	if pb == nil {
		return nil
	}
	return pb.Stop()
}

type vibration struct {
	vibrator Vibrator
	pattern  []time.Duration
	logger   *logger.Logger

	mu      sync.Mutex
	started bool
}

func newVibration(v Vibrator, pattern []time.Duration, l *logger.Logger) *vibration {
	return &vibration{vibrator: v, pattern: pattern, logger: l}
}

func (v *vibration) start() {
	if err := v.vibrator.Start(v.pattern, true); err != nil {
		degradedResources.WithLabelValues("vibration").Inc()
		v.logger.Warn("vibration unavailable", logger.Err(err))
		return
	}
	v.mu.Lock()
	v.started = true
	v.mu.Unlock()
}

func (v *vibration) release() error {
	v.mu.Lock()
	started := v.started
	v.started = false
	v.mu.Unlock()

	if !started {
		return nil
	}
	return v.vibrator.Cancel()
}
