// Package agentcore provides a top-level entry point that wires the agent
// registry, message router, workflow engine, replay store and collaboration
// service together with one call.
//
// Usage:
//
//	import "github.com/civant/agentcore"
//
//	core, err := agentcore.New(nil)
//	core, err := agentcore.New(cfg, agentcore.WithLogger(logger))
//
//	core.Registry().Register(ctx, myAgent)
//	res := core.Collab().DelegateTask(ctx, "requester", []string{"parse"}, data, collab.DelegateOptions{})
package agentcore

import (
	"go.uber.org/zap"

	"github.com/civant/agentcore/agent/registry"
	"github.com/civant/agentcore/audit"
	"github.com/civant/agentcore/collab"
	"github.com/civant/agentcore/config"
	"github.com/civant/agentcore/internal/metrics"
	"github.com/civant/agentcore/replay"
	"github.com/civant/agentcore/router"
	"github.com/civant/agentcore/workflow"
)

// Option configures the core created by [New].
type Option func(*options)

type options struct {
	logger   *zap.Logger
	recorder audit.Recorder
}

// WithLogger sets a custom zap logger. Without it the logger is built from
// the log section of the configuration.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithRecorder sets the audit recorder all components report to. Defaults
// to logging audit events through the core logger.
func WithRecorder(rec audit.Recorder) Option {
	return func(o *options) { o.recorder = rec }
}

// Core owns every component of one in-process orchestration domain.
type Core struct {
	logger   *zap.Logger
	registry *registry.Registry
	store    *replay.Store
	router   *router.Router
	engine   *workflow.Engine
	collab   *collab.Service
	metrics  *metrics.Collector
}

// New wires a complete core from the given configuration. A nil cfg uses
// the defaults.
func New(cfg *config.Config, opts ...Option) (*Core, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		built, err := cfg.Log.BuildLogger()
		if err != nil {
			return nil, err
		}
		logger = built
	}

	recorder := o.recorder
	if recorder == nil {
		recorder = audit.NewZapRecorder(logger)
	}

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(cfg.Metrics.Namespace, logger)
	}

	reg := registry.New(recorder, logger)
	store := replay.New(cfg.Replay, logger)
	rt := router.New(cfg.Router, reg, store, recorder, collector, logger)
	engine := workflow.NewEngine(cfg.Workflow, reg, store, recorder, collector, logger)
	svc := collab.NewService(cfg.Collab, reg, rt, store, recorder, collector, logger)

	return &Core{
		logger:   logger,
		registry: reg,
		store:    store,
		router:   rt,
		engine:   engine,
		collab:   svc,
		metrics:  collector,
	}, nil
}

// Registry returns the agent registry.
func (c *Core) Registry() *registry.Registry { return c.registry }

// Router returns the message router.
func (c *Core) Router() *router.Router { return c.router }

// Workflows returns the workflow engine.
func (c *Core) Workflows() *workflow.Engine { return c.engine }

// Replay returns the experience replay store.
func (c *Core) Replay() *replay.Store { return c.store }

// Collab returns the collaboration service.
func (c *Core) Collab() *collab.Service { return c.collab }

// Logger returns the core logger.
func (c *Core) Logger() *zap.Logger { return c.logger }

// Close releases background resources. The core is unusable afterwards.
func (c *Core) Close() {
	c.store.Close()
	c.logger.Sync() //nolint:errcheck
}
