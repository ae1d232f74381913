package dismissal

import (
	"sync"
	"time"

	"github.com/Raimguzhinov/alarmd/pkg/logger"
)

type PlayOptions struct {
	Loop   bool
	Volume float64
}

// Playback is a sound started by Audio.Play. Finished is closed when the
// sound ends on its own.
type Playback interface {
	Stop() error
	Finished() <-chan struct{}
}

type Audio interface {
	ConfigurePlayback(playsInSilentMode bool) error
	Play(source string, opts PlayOptions) (Playback, error)
}

type Vibrator interface {
	Start(pattern []time.Duration, repeat bool) error
	Cancel() error
}

// LogDevice stands in for the speaker and the vibration motor when the engine
// runs headless. It only logs.
type LogDevice struct {
	logger *logger.Logger
}

func NewLogDevice(l *logger.Logger) *LogDevice {
	return &LogDevice{logger: l.Component("device")}
}

func (d *LogDevice) ConfigurePlayback(playsInSilentMode bool) error {
	d.logger.Debug("device.ConfigurePlayback", "silent_mode", playsInSilentMode)
	return nil
}

func (d *LogDevice) Play(source string, opts PlayOptions) (Playback, error) {
	d.logger.Info("device.Play", "source", source, "loop", opts.Loop, "volume", opts.Volume)
	return &logPlayback{
		source:   source,
		logger:   d.logger,
		finished: make(chan struct{}),
	}, nil
}

func (d *LogDevice) Start(pattern []time.Duration, repeat bool) error {
	d.logger.Info("device.Vibrate", "pattern", pattern, "repeat", repeat)
	return nil
}

func (d *LogDevice) Cancel() error {
	d.logger.Info("device.Vibrate cancel")
	return nil
}

type logPlayback struct {
	source   string
	logger   *logger.Logger
	once     sync.Once
	finished chan struct{}
}

func (p *logPlayback) Stop() error {
	p.once.Do(func() {
		p.logger.Info("device.Stop", "source", p.source)
	})
	return nil
}

// Finished never fires: a looping sound only ends when stopped.
func (p *logPlayback) Finished() <-chan struct{} {
	return p.finished
}
