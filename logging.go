package spreadsheet

import "go.uber.org/zap"

// Option configures an Engine at construction time, following the
// functional-options pattern the pack's service-shaped repos use for
// their top-level constructors.
type Option func(*engineConfig)

type engineConfig struct {
	logger   *zap.Logger
	clock    Clock
	rng      RandomSource
	registry *FunctionRegistry
}

// WithLogger installs a zap logger for Engine/Scheduler diagnostics. The
// default is zap.NewNop(), so a caller that doesn't care about logging
// pays nothing for it.
func WithLogger(l *zap.Logger) Option {
	return func(c *engineConfig) { c.logger = l }
}

// WithFunctionRegistry overrides the built-in function set, mainly for
// tests that need a deterministic Clock/RandomSource behind NOW/TODAY/
// RAND/RANDBETWEEN.
func WithFunctionRegistry(r *FunctionRegistry) Option {
	return func(c *engineConfig) { c.registry = r }
}

func newEngineConfig(opts ...Option) *engineConfig {
	c := &engineConfig{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	if c.registry == nil {
		c.registry = NewDefaultFunctionRegistry()
	}
	return c
}
