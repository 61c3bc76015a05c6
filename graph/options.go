package graph

import (
	"errors"
	"fmt"
	"time"

	"github.com/dshills/minigraph/graph/emit"
	"github.com/dshills/minigraph/graph/store"
)

// Option configures an Engine.
//
//	engine, err := graph.New(registry,
//	    graph.WithMaxSteps(100),
//	    graph.WithEmitter(emit.NewSlogEmitter(logger)),
//	    graph.WithToolTimeout(5*time.Second),
//	)
type Option func(*engineConfig) error

type engineConfig struct {
	maxSteps    int
	emitter     emit.Emitter
	store       store.Store[State]
	metrics     *PrometheusMetrics
	toolTimeout time.Duration
	missingNode MissingNodePolicy
	now         func() time.Time
}

func defaultConfig() engineConfig {
	return engineConfig{
		maxSteps:    DefaultMaxSteps,
		emitter:     emit.NewNullEmitter(),
		missingNode: MissingNodeComplete,
		now:         time.Now,
	}
}

// MissingNodePolicy decides what happens when a run reaches a node ID that
// is not part of its graph, which can only happen through an edge whose
// target names no node.
type MissingNodePolicy int

const (
	// MissingNodeComplete ends the run as completed.
	MissingNodeComplete MissingNodePolicy = iota

	// MissingNodeFail ends the run as failed with ErrMissingNode.
	MissingNodeFail
)

func (p MissingNodePolicy) String() string {
	switch p {
	case MissingNodeComplete:
		return "complete"
	case MissingNodeFail:
		return "fail"
	default:
		return fmt.Sprintf("MissingNodePolicy(%d)", int(p))
	}
}

// ParseMissingNodePolicy maps "complete" or "fail" to a policy.
func ParseMissingNodePolicy(s string) (MissingNodePolicy, error) {
	switch s {
	case "", "complete":
		return MissingNodeComplete, nil
	case "fail":
		return MissingNodeFail, nil
	default:
		return 0, fmt.Errorf("unknown missing node policy %q (want complete or fail)", s)
	}
}

// WithMaxSteps sets the per-run step ceiling. Default: 50.
//
// The ceiling is the only guard against graphs that loop forever; a run
// that reaches it completes normally and emits a step_limit_reached event.
func WithMaxSteps(n int) Option {
	return func(cfg *engineConfig) error {
		if n <= 0 {
			return fmt.Errorf("max steps must be positive, got %d", n)
		}
		cfg.maxSteps = n
		return nil
	}
}

// WithEmitter sets the event sink. Default: emit.NullEmitter.
func WithEmitter(e emit.Emitter) Option {
	return func(cfg *engineConfig) error {
		if e == nil {
			return errors.New("emitter cannot be nil")
		}
		cfg.emitter = e
		return nil
	}
}

// WithStore journals every completed step to s. A failed write fails the run.
func WithStore(s store.Store[State]) Option {
	return func(cfg *engineConfig) error {
		cfg.store = s
		return nil
	}
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *PrometheusMetrics) Option {
	return func(cfg *engineConfig) error {
		cfg.metrics = m
		return nil
	}
}

// WithToolTimeout bounds each tool call. Default: 0 (no limit).
//
// The timeout cancels the context passed to the tool; a tool that ignores
// its context still blocks the run until it returns.
func WithToolTimeout(d time.Duration) Option {
	return func(cfg *engineConfig) error {
		if d < 0 {
			return fmt.Errorf("tool timeout must not be negative, got %v", d)
		}
		cfg.toolTimeout = d
		return nil
	}
}

// WithMissingNodePolicy sets the missing-node behavior. Default: MissingNodeComplete.
func WithMissingNodePolicy(p MissingNodePolicy) Option {
	return func(cfg *engineConfig) error {
		if p != MissingNodeComplete && p != MissingNodeFail {
			return fmt.Errorf("invalid missing node policy %d", int(p))
		}
		cfg.missingNode = p
		return nil
	}
}

// WithClock overrides the source of timestamps recorded on graphs and runs.
func WithClock(now func() time.Time) Option {
	return func(cfg *engineConfig) error {
		if now == nil {
			return errors.New("clock cannot be nil")
		}
		cfg.now = now
		return nil
	}
}
