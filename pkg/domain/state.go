package domain

import (
	"encoding/json"
	"fmt"
)

// State is the lifecycle tag attached to every persistable entity. It drives
// which SQL operation the persistence engine applies when the entity is saved.
type State int

const (
	// StateUnchanged marks an entity loaded from the store and not modified since.
	StateUnchanged State = iota
	// StateInserted marks a newly created entity that has no identity yet.
	StateInserted
	// StateUpdated marks a loaded entity whose fields were modified.
	StateUpdated
	// StateDeleted marks an entity scheduled for removal.
	StateDeleted
)

var stateNames = map[State]string{
	StateUnchanged: "unchanged",
	StateInserted:  "inserted",
	StateUpdated:   "updated",
	StateDeleted:   "deleted",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// CanTransition reports whether moving from s to next is a legal lifecycle
// transition. Unchanged entities may become updated or deleted; inserted and
// updated entities become unchanged once persisted. A deleted entity is
// terminal and must not be mutated further.
func (s State) CanTransition(next State) bool {
	if s == next {
		return true
	}
	switch s {
	case StateUnchanged:
		return next == StateUpdated || next == StateDeleted
	case StateInserted, StateUpdated:
		return next == StateUnchanged || next == StateDeleted
	case StateDeleted:
		return false
	}
	return false
}

// MarshalJSON encodes the state by name so the lifecycle tag survives the wire
// protocol unchanged.
func (s State) MarshalJSON() ([]byte, error) {
	name, ok := stateNames[s]
	if !ok {
		return nil, fmt.Errorf("unknown entity state %d", int(s))
	}
	return json.Marshal(name)
}

func (s *State) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for state, n := range stateNames {
		if n == name {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown entity state %q", name)
}

// Lifecycle carries the state tag and its transition rules. Entity types embed
// it to satisfy the state part of the Entity contract.
type Lifecycle struct {
	Tag State `json:"state"`
}

// State returns the current lifecycle tag.
func (l *Lifecycle) State() State {
	return l.Tag
}

// SetState applies a lifecycle transition, rejecting illegal ones.
func (l *Lifecycle) SetState(next State) error {
	if !l.Tag.CanTransition(next) {
		return &ValidationError{Field: "state", Message: fmt.Sprintf("cannot transition from %s to %s", l.Tag, next)}
	}
	l.Tag = next
	return nil
}

// markUpdated flips an unchanged entity to updated when a setter modifies it.
// Inserted entities stay inserted; mutating a deleted entity is an error.
func (l *Lifecycle) markUpdated() error {
	switch l.Tag {
	case StateDeleted:
		return &ValidationError{Field: "state", Message: "cannot modify a deleted entity"}
	case StateUnchanged:
		l.Tag = StateUpdated
	}
	return nil
}
