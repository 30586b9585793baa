package workflow

import (
	"fmt"
)

// Builder assembles an immutable transition table
type Builder interface {
	// Configure returns the configuration for transitions leaving the given state
	Configure(state State) StateConfiguration

	// Build freezes the configured transitions into a Table
	Build() *Table
}

// StateConfiguration configures transitions for a specific state
type StateConfiguration interface {
	// Permit allows the state to move to toState under the given condition
	Permit(condition Condition, toState State) StateConfiguration
}

// Transition is one edge of the lifecycle table
type Transition struct {
	From      State     `json:"from"`
	To        State     `json:"to"`
	Condition Condition `json:"condition"`
}

type stateConfig struct {
	fromState   State
	transitions []Transition
}

type tableBuilder struct {
	order          []State
	configurations map[State]*stateConfig
}

// NewBuilder creates a new transition table builder
func NewBuilder() Builder {
	return &tableBuilder{
		configurations: make(map[State]*stateConfig),
	}
}

// Configure returns the configuration for transitions leaving the given state
func (b *tableBuilder) Configure(state State) StateConfiguration {
	if !state.IsValid() {
		panic(fmt.Sprintf("invalid state: %s", state))
	}

	config, exists := b.configurations[state]
	if !exists {
		config = &stateConfig{fromState: state}
		b.configurations[state] = config
		b.order = append(b.order, state)
	}

	return config
}

// Build freezes the configured transitions into a Table
func (b *tableBuilder) Build() *Table {
	t := &Table{
		outgoing: make(map[State][]Transition, len(b.configurations)),
	}
	for _, state := range b.order {
		edges := append([]Transition(nil), b.configurations[state].transitions...)
		t.outgoing[state] = edges
		t.all = append(t.all, edges...)
	}
	return t
}

// Permit allows the state to move to toState under the given condition
func (c *stateConfig) Permit(condition Condition, toState State) StateConfiguration {
	if !toState.IsValid() {
		panic(fmt.Sprintf("invalid target state: %s", toState))
	}

	c.transitions = append(c.transitions, Transition{
		From:      c.fromState,
		To:        toState,
		Condition: condition,
	})

	return c
}

// Table is a frozen set of lifecycle transitions
type Table struct {
	outgoing map[State][]Transition
	all      []Transition
}

// CanTransition reports whether (from, to) is an edge of the table
func (t *Table) CanTransition(from, to State) bool {
	for _, tr := range t.outgoing[from] {
		if tr.To == to {
			return true
		}
	}
	return false
}

// Resolve returns the target state reached from `from` under the condition
func (t *Table) Resolve(from State, condition Condition) (State, bool) {
	for _, tr := range t.outgoing[from] {
		if tr.Condition == condition {
			return tr.To, true
		}
	}
	return "", false
}

// Transitions returns a copy of the edges leaving the state
func (t *Table) Transitions(from State) []Transition {
	return append([]Transition(nil), t.outgoing[from]...)
}

// All returns a copy of every edge in configuration order
func (t *Table) All() []Transition {
	return append([]Transition(nil), t.all...)
}
