package migration

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrInvalidStateTransition = errors.New("invalid migration state transition")

type StateKind int

const (
	StateIntro StateKind = iota
	StateChoice
	StateProgress
	StateCompleted
	StateDone
)

var stateKindNames = map[StateKind]string{
	StateIntro:     "intro",
	StateChoice:    "choice",
	StateProgress:  "progress",
	StateCompleted: "completed",
	StateDone:      "done",
}

func (k StateKind) String() string {
	if name, ok := stateKindNames[k]; ok {
		return name
	}

	return "unknown"
}

func (k StateKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// State is what the user sees of a migration. It only moves forward,
// Intro -> Choice -> Progress -> Completed -> Done, except for Restart.
// Each transition returns a new State and leaves the receiver unchanged.
type State struct {
	Kind           StateKind `json:"kind"`
	LegacySize     int64     `json:"legacy_size,omitempty"`
	AvailableSpace int64     `json:"available_space,omitempty"`
	Progress       Progress  `json:"progress"`
	Result         *Result   `json:"result,omitempty"`
	Error          string    `json:"error,omitempty"`
}

func Intro() State {
	return State{Kind: StateIntro}
}

func (s State) invalid(to StateKind) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, s.Kind, to)
}

func (s State) Choose(legacySize, availableSpace int64) (State, error) {
	if s.Kind != StateIntro {
		return s, s.invalid(StateChoice)
	}

	return State{Kind: StateChoice, LegacySize: legacySize, AvailableSpace: availableSpace}, nil
}

func (s State) Advance(p Progress) (State, error) {
	if s.Kind != StateChoice && s.Kind != StateProgress {
		return s, s.invalid(StateProgress)
	}

	next := s
	next.Kind = StateProgress
	next.Progress = p
	return next, nil
}

func (s State) Complete(result *Result, err error) (State, error) {
	if s.Kind != StateProgress {
		return s, s.invalid(StateCompleted)
	}

	next := s
	next.Kind = StateCompleted
	next.Result = result
	if err != nil {
		next.Error = err.Error()
	}

	return next, nil
}

func (s State) Finish() (State, error) {
	if s.Kind != StateCompleted {
		return s, s.invalid(StateDone)
	}

	next := s
	next.Kind = StateDone
	return next, nil
}

func (s State) Restart() State {
	return Intro()
}
