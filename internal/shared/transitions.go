package shared

import "fmt"

// Transitions is an allowed-transition table for a status enum.
type Transitions[S ~string] map[S][]S

// Allows reports whether from -> to is a declared edge.
func (t Transitions[S]) Allows(from, to S) bool {
	for _, next := range t[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Check returns ErrInvalidTransition when from -> to is not declared.
func (t Transitions[S]) Check(entity string, from, to S) error {
	if t.Allows(from, to) {
		return nil
	}
	return fmt.Errorf("%w: %s cannot move from %s to %s", ErrInvalidTransition, entity, from, to)
}

// Terminal reports whether no edge leaves the status.
func (t Transitions[S]) Terminal(s S) bool {
	return len(t[s]) == 0
}
