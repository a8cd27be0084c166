// Package policy generates per-step motor commands. Policies are pure
// command sources: they never touch the simulation, so the drive loop can
// swap them freely.
package policy

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
)

var (
	ErrPolicyExists   = errors.New("policy already registered")
	ErrPolicyNotFound = errors.New("policy not found")
)

// Policy produces one action per control step. Action returns a fresh
// slice with one command per motor, in canonical motor order.
type Policy interface {
	Name() string
	Action(step int) []float64
}

// Config parameterizes policy construction.
type Config struct {
	// Motors is the number of commands per action.
	Motors int
	// Rand drives stochastic policies. Deterministic policies ignore it.
	Rand *rand.Rand
	// TimeStep is the simulated seconds per control step, used by
	// time-based policies.
	TimeStep float64
	// Frequency is the gait frequency in hertz for periodic policies.
	// Zero selects a policy-specific default.
	Frequency float64
}

// Factory builds a policy from a config.
type Factory func(cfg Config) (Policy, error)

var policyRegistry = struct {
	mu sync.RWMutex
	m  map[string]Factory
}{
	m: make(map[string]Factory),
}

// Register adds a policy factory under a name. Built-in policies call this
// from their package init.
func Register(name string, factory Factory) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("policy name is required")
	}
	if factory == nil {
		return errors.New("policy factory is required")
	}

	policyRegistry.mu.Lock()
	defer policyRegistry.mu.Unlock()

	if _, exists := policyRegistry.m[name]; exists {
		return fmt.Errorf("%w: %s", ErrPolicyExists, name)
	}
	policyRegistry.m[name] = factory
	return nil
}

// New builds the named policy.
func New(name string, cfg Config) (Policy, error) {
	policyRegistry.mu.RLock()
	factory, ok := policyRegistry.m[strings.TrimSpace(name)]
	policyRegistry.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPolicyNotFound, name)
	}
	return factory(cfg)
}

// Policies lists the registered policy names, sorted.
func Policies() []string {
	policyRegistry.mu.RLock()
	defer policyRegistry.mu.RUnlock()

	names := make([]string, 0, len(policyRegistry.m))
	for n := range policyRegistry.m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
