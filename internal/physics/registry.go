package physics

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	ErrEngineExists   = errors.New("engine already registered")
	ErrEngineNotFound = errors.New("engine not found")
)

// Factory constructs a fresh, unstarted engine instance.
type Factory func() Engine

var engineRegistry = struct {
	mu sync.RWMutex
	m  map[string]Factory
}{
	m: make(map[string]Factory),
}

// Register adds an engine factory under a name. Backends call this from
// their package init, so importing a backend package makes it available.
func Register(name string, factory Factory) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("engine name is required")
	}
	if factory == nil {
		return errors.New("engine factory is required")
	}

	engineRegistry.mu.Lock()
	defer engineRegistry.mu.Unlock()

	if _, exists := engineRegistry.m[name]; exists {
		return fmt.Errorf("%w: %s", ErrEngineExists, name)
	}
	engineRegistry.m[name] = factory
	return nil
}

// New resolves a registered engine by name and returns a fresh instance.
func New(name string) (Engine, error) {
	engineRegistry.mu.RLock()
	factory, ok := engineRegistry.m[strings.TrimSpace(name)]
	engineRegistry.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEngineNotFound, name)
	}
	return factory(), nil
}

// Engines lists the registered engine names, sorted.
func Engines() []string {
	engineRegistry.mu.RLock()
	defer engineRegistry.mu.RUnlock()

	names := make([]string, 0, len(engineRegistry.m))
	for n := range engineRegistry.m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func resetEngineRegistryForTests() {
	engineRegistry.mu.Lock()
	engineRegistry.m = make(map[string]Factory)
	engineRegistry.mu.Unlock()
}
