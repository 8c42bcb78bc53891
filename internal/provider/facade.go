package provider

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/cidadao-ai/citizen-intake/internal/config"
	"github.com/cidadao-ai/citizen-intake/internal/observability"
)

// Facade exposes one completion operation over the backend selected at
// construction. The selection never changes afterwards: a failing call is
// reported, not retried on a lower-priority backend.
type Facade struct {
	active   Provider
	defaults Options
	timeout  time.Duration
	logger   *zap.Logger
	metrics  *observability.Metrics
}

// FacadeDependencies bundles what Configure needs.
type FacadeDependencies struct {
	Registry   *Registry
	HTTPClient *http.Client
	Logger     *zap.Logger
	Metrics    *observability.Metrics
}

// Configure walks cfg.Priority in order and keeps the first backend that
// reports itself available. With none available the façade is built in the
// unavailable state.
func Configure(cfg config.AIConfig, deps FacadeDependencies) *Facade {
	logger := observability.Named(deps.Logger, "provider")
	registry := deps.Registry
	if registry == nil {
		registry = DefaultRegistry()
	}

	f := &Facade{
		defaults: Options{
			MaxTokens:   cfg.MaxTokens,
			Temperature: Float(cfg.Temperature),
			TopP:        Float(cfg.TopP),
		},
		timeout: cfg.Timeout(),
		logger:  logger,
		metrics: deps.Metrics,
	}

	for _, name := range cfg.Priority {
		settings, ok := cfg.Providers[name]
		if !ok {
			settings = config.ProviderConfig{Name: name}
		}
		p, err := registry.Build(name, settings, deps.HTTPClient)
		if err != nil {
			logger.Error("provider construction failed", zap.String("provider", name), zap.Error(err))
			continue
		}
		if p == nil || !p.Available() {
			logger.Debug("provider unavailable", zap.String("provider", name))
			continue
		}
		f.active = p
		logger.Info("ai provider selected", zap.String("provider", p.Name()))
		return f
	}

	logger.Warn("no AI provider available; running keyword-only")
	return f
}

// NewFacade wraps an already built provider. Used by tests and callers that
// manage backends themselves.
func NewFacade(p Provider, defaults Options, timeout time.Duration, logger *zap.Logger) *Facade {
	f := &Facade{defaults: defaults, timeout: timeout, logger: observability.Named(logger, "provider")}
	if p != nil && p.Available() {
		f.active = p
	}
	return f
}

// IsAvailable is true iff a backend was selected and still has a client.
func (f *Facade) IsAvailable() bool {
	return f != nil && f.active != nil && f.active.Available()
}

// ActiveName returns the selected backend name, or "" when unavailable.
func (f *Facade) ActiveName() string {
	if !f.IsAvailable() {
		return ""
	}
	return f.active.Name()
}

// GenerateCompletion returns the completion text, ErrProviderUnavailable when
// no backend is active, or *Error when the active backend failed.
func (f *Facade) GenerateCompletion(ctx context.Context, messages []Message, opts Options) (string, error) {
	if !f.IsAvailable() {
		return "", ErrProviderUnavailable
	}
	opts = f.withDefaults(opts)

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	name := f.active.Name()
	start := time.Now()
	text, err := f.active.Complete(ctx, messages, opts)
	elapsed := time.Since(start)
	if err != nil {
		f.metrics.RecordProviderCall(name, "error", elapsed)
		var perr *Error
		if !errors.As(err, &perr) {
			err = &Error{Provider: name, Err: err}
		}
		f.logger.Warn("completion failed", zap.String("provider", name), zap.Duration("elapsed", elapsed), zap.Error(err))
		return "", err
	}
	f.metrics.RecordProviderCall(name, "ok", elapsed)
	return text, nil
}

func (f *Facade) withDefaults(opts Options) Options {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = f.defaults.MaxTokens
	}
	if opts.Temperature == nil {
		opts.Temperature = f.defaults.Temperature
	}
	if opts.TopP == nil {
		opts.TopP = f.defaults.TopP
	}
	if opts.Model == "" {
		opts.Model = f.defaults.Model
	}
	return opts
}
