package code

import (
	"context"
	"time"

	"github.com/Raimguzhinov/alarmd/internal/alarm"
	"github.com/Raimguzhinov/alarmd/pkg/logger"
	"github.com/benbjohnson/clock"
)

const _defaultTimeout = 3 * time.Second

type Generator struct {
	primary Source
	local   Local
	timeout time.Duration
	clock   clock.Clock
	logger  *logger.Logger
}

type Option func(*Generator)

// WithPrimary selects the source tried before local generation.
func WithPrimary(src Source) Option {
	return func(g *Generator) {
		g.primary = src
	}
}

func WithTimeout(d time.Duration) Option {
	return func(g *Generator) {
		if d > 0 {
			g.timeout = d
		}
	}
}

func NewGenerator(clk clock.Clock, l *logger.Logger, opts ...Option) *Generator {
	g := &Generator{
		timeout: _defaultTimeout,
		clock:   clk,
		logger:  l.Component("code/generator"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate issues a fresh code for alarmID. It never fails.
func (g *Generator) Generate(ctx context.Context, alarmID string) alarm.DismissalCode {
	return alarm.NewDismissalCode(alarmID, g.value(ctx, alarmID), g.clock.Now())
}

func (g *Generator) value(ctx context.Context, alarmID string) string {
	if g.primary != nil {
		v, err := g.fromPrimary(ctx)
		if err == nil {
			return v
		}
		g.logger.Warn("generator falling back to local source", logger.AlarmID(alarmID), logger.Err(err))
	}

	for {
		v, err := g.local.Generate(ctx)
		if err == nil {
			return v
		}
		g.logger.Error("generator local source", logger.Err(err))
	}
}

func (g *Generator) fromPrimary(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	v, err := g.primary.Generate(ctx)
	if err != nil {
		return "", err
	}
	if err := Validate(v); err != nil {
		return "", err
	}
	return v, nil
}
