// Package lifecycle implements the governance state machine for record
// versions: which operation may fire from which status, with optional
// guard conditions.
package lifecycle

import (
	"context"
	"fmt"

	"github.com/lcsys/governance/internal/domain/record"
)

// GuardFunc evaluates whether a transition should be allowed
type GuardFunc func(ctx context.Context) bool

// Machine tracks a current status and validates operation-driven transitions
type Machine interface {
	// Status returns the current status
	Status() record.Status

	// CanFire returns true if the operation is permitted in the current status
	CanFire(op record.Operation) bool

	// Fire attempts the operation, transitioning to the new status if allowed
	Fire(ctx context.Context, op record.Operation) error

	// PermittedOperations returns all operations that can fire from the current status
	PermittedOperations() []record.Operation
}

// Builder builds a configured machine
type Builder interface {
	// Configure returns a status configuration for the given status
	Configure(status record.Status) StatusConfiguration

	// Build creates a new machine instance with the given initial status
	Build(initial record.Status) Machine
}

// StatusConfiguration configures transitions out of a specific status
type StatusConfiguration interface {
	// Permit allows an operation to transition to the target status
	Permit(op record.Operation, to record.Status) StatusConfiguration

	// PermitIf allows the transition only when the guard passes
	PermitIf(op record.Operation, to record.Status, guard GuardFunc) StatusConfiguration
}

type transition struct {
	to    record.Status
	guard GuardFunc
}

type statusConfig struct {
	from        record.Status
	transitions map[record.Operation][]transition
}

type builder struct {
	configurations map[record.Status]*statusConfig
}

type machine struct {
	current        record.Status
	configurations map[record.Status]*statusConfig
}

// NewBuilder creates a new machine builder
func NewBuilder() Builder {
	return &builder{
		configurations: make(map[record.Status]*statusConfig),
	}
}

func (b *builder) Configure(status record.Status) StatusConfiguration {
	if !status.IsValid() {
		panic(fmt.Sprintf("invalid status: %s", status))
	}

	config, exists := b.configurations[status]
	if !exists {
		config = &statusConfig{
			from:        status,
			transitions: make(map[record.Operation][]transition),
		}
		b.configurations[status] = config
	}
	return config
}

func (b *builder) Build(initial record.Status) Machine {
	if !initial.IsValid() {
		panic(fmt.Sprintf("invalid initial status: %s", initial))
	}

	// Copy configurations so later builder mutations cannot leak into the machine
	configsCopy := make(map[record.Status]*statusConfig)
	for status, config := range b.configurations {
		transitionsCopy := make(map[record.Operation][]transition)
		for op, ts := range config.transitions {
			transitionsCopy[op] = append([]transition{}, ts...)
		}
		configsCopy[status] = &statusConfig{
			from:        status,
			transitions: transitionsCopy,
		}
	}

	return &machine{
		current:        initial,
		configurations: configsCopy,
	}
}

func (c *statusConfig) Permit(op record.Operation, to record.Status) StatusConfiguration {
	return c.PermitIf(op, to, nil)
}

func (c *statusConfig) PermitIf(op record.Operation, to record.Status, guard GuardFunc) StatusConfiguration {
	if !to.IsValid() {
		panic(fmt.Sprintf("invalid target status: %s", to))
	}
	c.transitions[op] = append(c.transitions[op], transition{to: to, guard: guard})
	return c
}

func (m *machine) Status() record.Status {
	return m.current
}

func (m *machine) CanFire(op record.Operation) bool {
	config, exists := m.configurations[m.current]
	if !exists {
		return false
	}
	ts, exists := config.transitions[op]
	return exists && len(ts) > 0
}

func (m *machine) Fire(ctx context.Context, op record.Operation) error {
	config, exists := m.configurations[m.current]
	if !exists {
		return fmt.Errorf("%w: cannot fire %s from status %s (no configuration)", ErrInvalidTransition, op, m.current)
	}

	ts, exists := config.transitions[op]
	if !exists || len(ts) == 0 {
		return fmt.Errorf("%w: cannot fire %s from status %s", ErrInvalidTransition, op, m.current)
	}

	for _, t := range ts {
		if t.guard == nil || t.guard(ctx) {
			m.current = t.to
			return nil
		}
	}

	return fmt.Errorf("%w: %s from status %s", ErrGuardFailed, op, m.current)
}

func (m *machine) PermittedOperations() []record.Operation {
	config, exists := m.configurations[m.current]
	if !exists {
		return []record.Operation{}
	}
	ops := make([]record.Operation, 0, len(config.transitions))
	for op := range config.transitions {
		ops = append(ops, op)
	}
	return ops
}
