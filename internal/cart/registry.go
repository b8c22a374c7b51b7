package cart

import (
	"context"
	"errors"
	"strings"
	"sync"
)

var errRegistryFactoryRequired = errors.New("cart registry: engine factory is required")

// EngineFactory builds the engine for a previously unseen owner key.
type EngineFactory func(ownerKey string) (*Engine, error)

// Registry hands out one cart engine per owner key, creating it lazily on
// first use. Engines live for the process lifetime; speculative state is per
// session and lost on restart, which matches its provisional nature.
type Registry struct {
	mu      sync.Mutex
	factory EngineFactory
	engines map[string]*Engine
}

// NewRegistry constructs an empty registry around the given factory.
func NewRegistry(factory EngineFactory) (*Registry, error) {
	if factory == nil {
		return nil, errRegistryFactoryRequired
	}
	return &Registry{
		factory: factory,
		engines: map[string]*Engine{},
	}, nil
}

// Engine returns the engine for ownerKey, creating it when absent.
func (r *Registry) Engine(ownerKey string) (*Engine, error) {
	ownerKey = strings.TrimSpace(ownerKey)
	if ownerKey == "" {
		return nil, ErrCartInvalidInput
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if engine, ok := r.engines[ownerKey]; ok {
		return engine, nil
	}
	engine, err := r.factory(ownerKey)
	if err != nil {
		return nil, err
	}
	r.engines[ownerKey] = engine
	return engine, nil
}

// Evict clears and closes the engine for ownerKey, dropping all speculative
// state. Used on logout.
func (r *Registry) Evict(ownerKey string) {
	ownerKey = strings.TrimSpace(ownerKey)
	r.mu.Lock()
	engine, ok := r.engines[ownerKey]
	delete(r.engines, ownerKey)
	r.mu.Unlock()
	if ok {
		engine.Clear()
		engine.Close()
	}
}

// Close flushes pending operations on every engine, then shuts them down.
// Called during graceful shutdown so close-to-confirmed work is not lost.
func (r *Registry) Close(ctx context.Context) {
	r.mu.Lock()
	engines := make([]*Engine, 0, len(r.engines))
	for _, engine := range r.engines {
		engines = append(engines, engine)
	}
	r.engines = map[string]*Engine{}
	r.mu.Unlock()

	for _, engine := range engines {
		_ = engine.Flush(ctx)
		engine.Close()
	}
}
