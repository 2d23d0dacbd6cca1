package hook

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Registry manages all registered hooks and provides efficient dispatch.
// Interfaces are cached at registration time so emission never walks
// hooks that don't care about an event.
type Registry struct {
	mu     sync.RWMutex
	hooks  []Hook
	logger *slog.Logger

	// Type-cached hook lists for efficient dispatch
	onMessagesSent      []OnMessagesSent
	onStatesWritten     []OnStatesWritten
	onRequestCreated    []OnRequestCreated
	onRequestTransition []OnRequestTransition
}

// NewRegistry creates a new hook registry.
func NewRegistry() *Registry {
	return &Registry{logger: slog.Default()}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// Register adds a hook to the registry and caches its interfaces.
func (r *Registry) Register(h Hook) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.hooks {
		if existing.Name() == h.Name() {
			return fmt.Errorf("hook: duplicate registration: %s", h.Name())
		}
	}

	r.hooks = append(r.hooks, h)

	if v, ok := h.(OnMessagesSent); ok {
		r.onMessagesSent = append(r.onMessagesSent, v)
	}
	if v, ok := h.(OnStatesWritten); ok {
		r.onStatesWritten = append(r.onStatesWritten, v)
	}
	if v, ok := h.(OnRequestCreated); ok {
		r.onRequestCreated = append(r.onRequestCreated, v)
	}
	if v, ok := h.(OnRequestTransition); ok {
		r.onRequestTransition = append(r.onRequestTransition, v)
	}

	r.logger.Info("hook registered", "name", h.Name())
	return nil
}

// Get returns a hook by name.
func (r *Registry) Get(name string) Hook {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, h := range r.hooks {
		if h.Name() == name {
			return h
		}
	}
	return nil
}

// List returns all registered hooks.
func (r *Registry) List() []Hook {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Hook, len(r.hooks))
	copy(result, r.hooks)
	return result
}

// Count returns the number of registered hooks.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.hooks)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitMessagesSent calls OnMessagesSent for all hooks that implement it.
func (r *Registry) EmitMessagesSent(ctx context.Context, ledgerID string, msgs []interface{}) {
	r.mu.RLock()
	hooks := r.onMessagesSent
	r.mu.RUnlock()

	for _, h := range hooks {
		if err := r.callWithTimeout(ctx, h.Name(), func() error {
			return h.OnMessagesSent(ctx, ledgerID, msgs)
		}); err != nil {
			r.logger.Warn("hook OnMessagesSent failed",
				"hook", h.Name(),
				"error", err,
			)
		}
	}
}

// EmitStatesWritten calls OnStatesWritten for all hooks that implement it.
func (r *Registry) EmitStatesWritten(ctx context.Context, ledgerID string, states map[string]string) {
	r.mu.RLock()
	hooks := r.onStatesWritten
	r.mu.RUnlock()

	for _, h := range hooks {
		if err := r.callWithTimeout(ctx, h.Name(), func() error {
			return h.OnStatesWritten(ctx, ledgerID, states)
		}); err != nil {
			r.logger.Warn("hook OnStatesWritten failed",
				"hook", h.Name(),
				"error", err,
			)
		}
	}
}

// EmitRequestCreated calls OnRequestCreated for all hooks that implement it.
func (r *Registry) EmitRequestCreated(ctx context.Context, ledgerID string, request interface{}) {
	r.mu.RLock()
	hooks := r.onRequestCreated
	r.mu.RUnlock()

	for _, h := range hooks {
		if err := r.callWithTimeout(ctx, h.Name(), func() error {
			return h.OnRequestCreated(ctx, ledgerID, request)
		}); err != nil {
			r.logger.Warn("hook OnRequestCreated failed",
				"hook", h.Name(),
				"error", err,
			)
		}
	}
}

// EmitRequestTransition calls OnRequestTransition for all hooks that
// implement it.
func (r *Registry) EmitRequestTransition(ctx context.Context, ledgerID, from, to string, request interface{}) {
	r.mu.RLock()
	hooks := r.onRequestTransition
	r.mu.RUnlock()

	for _, h := range hooks {
		if err := r.callWithTimeout(ctx, h.Name(), func() error {
			return h.OnRequestTransition(ctx, ledgerID, from, to, request)
		}); err != nil {
			r.logger.Warn("hook OnRequestTransition failed",
				"hook", h.Name(),
				"error", err,
			)
		}
	}
}

// callWithTimeout calls a hook function with a timeout.
// Hooks should never block the replication pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, hookName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		return fmt.Errorf("hook timeout: %s", hookName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
