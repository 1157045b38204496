// Package breaker fast-fails calls to a dependency that keeps failing.
package breaker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return Open
	case gobreaker.StateHalfOpen:
		return HalfOpen
	default:
		return Closed
	}
}

var ErrOpen = errors.New("circuit breaker is open; fast-fail")

type Config struct {
	MaxFailures  int           // consecutive failures before opening
	ResetTimeout time.Duration // how long to stay open before a trial call
}

func (c Config) withDefaults() Config {
	if c.MaxFailures < 1 {
		c.MaxFailures = 5
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 30 * time.Second
	}
	return c
}

// Breaker is safe for concurrent use. While half-open only one trial call is
// let through; the rest fast-fail until it settles.
type Breaker struct {
	name string
	cfg  Config
	log  *slog.Logger
	cb   *gobreaker.CircuitBreaker
}

func New(name string, cfg Config, log *slog.Logger) *Breaker {
	if log == nil {
		log = slog.Default()
	}
	b := &Breaker{name: name, cfg: cfg.withDefaults(), log: log}
	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     b.cfg.ResetTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= uint32(b.cfg.MaxFailures)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			lvl := slog.LevelInfo
			if to == gobreaker.StateOpen {
				lvl = slog.LevelError
			}
			b.log.Log(context.Background(), lvl, "breaker "+fromGobreaker(to).String(), "name", name, "from", fromGobreaker(from).String())
		},
	})
	b.log.Info("breaker created", "name", name, "maxFailures", b.cfg.MaxFailures, "resetTimeout", b.cfg.ResetTimeout.String())
	return b
}

// Execute runs op unless the breaker is open. Rejected calls return ErrOpen
// without running op.
func (b *Breaker) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, op(ctx)
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return ErrOpen
	}
	if b.State() == Closed {
		b.log.Warn("operation failure", "name", b.name, "failures", b.cb.Counts().ConsecutiveFailures, "err", err)
	}
	return err
}

func (b *Breaker) State() State {
	return fromGobreaker(b.cb.State())
}

func (b *Breaker) Name() string { return b.name }
