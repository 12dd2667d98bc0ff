package domain

import (
	"encoding/json"
	"testing"
)

func TestStateTransitions(t *testing.T) {
	cases := []struct {
		name  string
		from  State
		to    State
		legal bool
	}{
		{"unchanged to updated", StateUnchanged, StateUpdated, true},
		{"unchanged to deleted", StateUnchanged, StateDeleted, true},
		{"unchanged to inserted", StateUnchanged, StateInserted, false},
		{"inserted to unchanged", StateInserted, StateUnchanged, true},
		{"updated to unchanged", StateUpdated, StateUnchanged, true},
		{"deleted to updated", StateDeleted, StateUpdated, false},
		{"deleted to unchanged", StateDeleted, StateUnchanged, false},
		{"same state", StateUpdated, StateUpdated, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.from.CanTransition(tc.to); got != tc.legal {
				t.Errorf("CanTransition(%s -> %s) = %v, want %v", tc.from, tc.to, got, tc.legal)
			}
		})
	}
}

func TestSetStateRejectsIllegalTransition(t *testing.T) {
	l := &Lifecycle{Tag: StateDeleted}
	if err := l.SetState(StateUpdated); err == nil {
		t.Fatal("expected error transitioning deleted -> updated")
	}
	if l.Tag != StateDeleted {
		t.Errorf("state changed despite rejected transition: %s", l.Tag)
	}
}

func TestStateJSONRoundTrip(t *testing.T) {
	for _, state := range []State{StateUnchanged, StateInserted, StateUpdated, StateDeleted} {
		data, err := json.Marshal(state)
		if err != nil {
			t.Fatalf("marshal %s: %v", state, err)
		}
		var back State
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatalf("unmarshal %s: %v", data, err)
		}
		if back != state {
			t.Errorf("round trip changed %s into %s", state, back)
		}
	}

	var s State
	if err := json.Unmarshal([]byte(`"vanished"`), &s); err == nil {
		t.Error("expected error for unknown state name")
	}
}

func TestMutatingDeletedEntityFails(t *testing.T) {
	seminar, err := NewSeminar("Testing in Go", "hands-on workshop")
	if err != nil {
		t.Fatalf("NewSeminar: %v", err)
	}
	seminar.Tag = StateUnchanged
	if err := seminar.SetState(StateDeleted); err != nil {
		t.Fatalf("SetState(deleted): %v", err)
	}

	if err := seminar.SetName("renamed"); err == nil {
		t.Fatal("expected error mutating a deleted entity")
	}
	if seminar.Name != "Testing in Go" {
		t.Errorf("name changed despite rejected mutation: %q", seminar.Name)
	}
}

func TestSetterMarksUnchangedEntityUpdated(t *testing.T) {
	seminar := &Seminar{SeminarID: 7, Name: "Databases", Description: "intro"}
	if seminar.State() != StateUnchanged {
		t.Fatalf("fresh loaded seminar should be unchanged, got %s", seminar.State())
	}
	if err := seminar.SetName("Advanced Databases"); err != nil {
		t.Fatalf("SetName: %v", err)
	}
	if seminar.State() != StateUpdated {
		t.Errorf("state after mutation = %s, want %s", seminar.State(), StateUpdated)
	}
}
