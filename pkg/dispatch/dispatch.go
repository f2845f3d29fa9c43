// Package dispatch selects and drives the cloud-specific batch-compute client
// that executes delivery jobs. Providers are registered in an explicit
// registry resolved once at startup; an unconfigured provider degrades to a
// dispatcher that fails loudly instead of crashing.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// ErrNotImplemented is returned by the base dispatcher for providers with no
// registered implementation.
var ErrNotImplemented = errors.New("dispatcher not implemented for provider")

// ResourceLimits bounds a dispatched delivery job.
type ResourceLimits struct {
	CPU            string // e.g. "1000m"
	Memory         string // e.g. "512Mi"
	TimeoutMinutes int
}

// JobHandle identifies a registered batch job at its provider.
type JobHandle struct {
	Provider  string
	Name      string
	Reference string // provider resource name (Cloud Run job name, Batch definition ARN)
}

// SubmitResult reports a successful enqueue.
type SubmitResult struct {
	SubmissionID string
	SubmittedAt  time.Time
}

// Dispatcher registers and submits batch-compute jobs. Register always
// precedes Submit; Submit is never called for a handle whose Register failed.
type Dispatcher interface {
	Register(ctx context.Context, jobName string, env, secretEnv map[string]string, limits ResourceLimits) (JobHandle, error)
	Submit(ctx context.Context, handle JobHandle) (SubmitResult, error)
}

// BaseDispatcher is the fallback for unknown providers. Both operations fail
// with ErrNotImplemented so an unconfigured provider produces an explicit
// delivery failure rather than a crash or a silent default.
type BaseDispatcher struct {
	Provider string
}

// Register implements Dispatcher.
func (d *BaseDispatcher) Register(_ context.Context, _ string, _, _ map[string]string, _ ResourceLimits) (JobHandle, error) {
	return JobHandle{}, fmt.Errorf("%w: %s", ErrNotImplemented, d.Provider)
}

// Submit implements Dispatcher.
func (d *BaseDispatcher) Submit(_ context.Context, _ JobHandle) (SubmitResult, error) {
	return SubmitResult{}, fmt.Errorf("%w: %s", ErrNotImplemented, d.Provider)
}

// Factory constructs a dispatcher implementation.
type Factory func() (Dispatcher, error)

// Registry maps provider names to dispatcher factories.
type Registry struct {
	factories map[string]Factory
	logger    zerolog.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		logger:    logger,
	}
}

// Register adds a provider factory. Later registrations replace earlier ones.
func (r *Registry) Register(provider string, f Factory) {
	r.factories[provider] = f
}

// Dispatcher resolves the dispatcher for the configured provider. Unknown
// providers fall back to BaseDispatcher.
func (r *Registry) Dispatcher(provider string) (Dispatcher, error) {
	f, ok := r.factories[provider]
	if !ok {
		r.logger.Warn().Str("provider", provider).Msg("no dispatcher registered, falling back to base dispatcher")
		return &BaseDispatcher{Provider: provider}, nil
	}

	d, err := f()
	if err != nil {
		return nil, fmt.Errorf("construct %s dispatcher: %w", provider, err)
	}
	return d, nil
}
