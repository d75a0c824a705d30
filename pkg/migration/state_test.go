package migration

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStateHappyPath(t *testing.T) {
	s := Intro()

	s, err := s.Choose(100, 1000)
	require.NoError(t, err)
	require.Equal(t, StateChoice, s.Kind)
	require.Equal(t, int64(100), s.LegacySize)
	require.Equal(t, int64(1000), s.AvailableSpace)

	s, err = s.Advance(Progress{Type: ProgressMoving, Percent: 10})
	require.NoError(t, err)
	s, err = s.Advance(Progress{Type: ProgressMoving, Percent: 60})
	require.NoError(t, err)
	require.Equal(t, StateProgress, s.Kind)
	require.Equal(t, 60, s.Progress.Percent)
	require.Equal(t, int64(100), s.LegacySize, "sizes carry through progress")

	s, err = s.Complete(&Result{}, nil)
	require.NoError(t, err)
	require.Equal(t, StateCompleted, s.Kind)
	require.Empty(t, s.Error)

	s, err = s.Finish()
	require.NoError(t, err)
	require.Equal(t, StateDone, s.Kind)

	require.Equal(t, StateIntro, s.Restart().Kind)
}

func TestStateInvalidTransitions(t *testing.T) {
	tests := []struct {
		name string
		from State
		to   func(State) (State, error)
	}{
		{name: "intro to progress", from: Intro(), to: func(s State) (State, error) { return s.Advance(Progress{}) }},
		{name: "intro to completed", from: Intro(), to: func(s State) (State, error) { return s.Complete(nil, nil) }},
		{name: "choice twice", from: State{Kind: StateChoice}, to: func(s State) (State, error) { return s.Choose(1, 1) }},
		{name: "choice to done", from: State{Kind: StateChoice}, to: func(s State) (State, error) { return s.Finish() }},
		{name: "completed to progress", from: State{Kind: StateCompleted}, to: func(s State) (State, error) { return s.Advance(Progress{}) }},
		{name: "done to done", from: State{Kind: StateDone}, to: func(s State) (State, error) { return s.Finish() }},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := test.to(test.from)
			require.True(t, errors.Is(err, ErrInvalidStateTransition))
			require.Equal(t, test.from, got)
		})
	}
}

func TestStateCompleteRecordsError(t *testing.T) {
	s := State{Kind: StateProgress}
	s, err := s.Complete(nil, ErrInsufficientSpace)
	require.NoError(t, err)
	require.Equal(t, ErrInsufficientSpace.Error(), s.Error)
}

func TestStateJSON(t *testing.T) {
	b, err := json.Marshal(State{Kind: StateProgress, Progress: Progress{Type: ProgressMoving, Percent: 50}})
	require.NoError(t, err)
	require.Contains(t, string(b), `"kind":"progress"`)
	require.Contains(t, string(b), `"type":"moving"`)
}
