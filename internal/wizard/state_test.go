package wizard

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readyState(t *testing.T) State {
	t.Helper()

	st := Initial()
	require.NoError(t, st.Fire(EventStart))
	require.NoError(t, st.SetUploads([]FileRef{{Name: "a.jpg", Size: 10, ContentType: "image/jpeg"}}, []string{"https://cdn/a.jpg"}))
	require.NoError(t, st.Fire(EventContinue))
	require.NoError(t, st.SelectStyle("professional"))
	require.NoError(t, st.Fire(EventContinue))
	require.NoError(t, st.SelectBackground("studio"))
	require.NoError(t, st.AcceptTerms(true))
	return st
}

func TestInitial(t *testing.T) {
	st := Initial()
	assert.Equal(t, StepWelcome, st.Step)
	assert.Empty(t, st.UploadedURLs)
	assert.Zero(t, st.Progress)
}

func TestGuards(t *testing.T) {
	t.Run("upload requires uploaded urls", func(t *testing.T) {
		st := Initial()
		require.NoError(t, st.Fire(EventStart))
		require.NoError(t, st.SetUploads([]FileRef{{Name: "a.jpg"}}, nil))

		err := st.Fire(EventContinue)
		require.ErrorIs(t, err, ErrNoUploads)
		assert.Equal(t, StepUpload, st.Step)
	})

	t.Run("style requires selection", func(t *testing.T) {
		st := Initial()
		require.NoError(t, st.Fire(EventStart))
		require.NoError(t, st.SetUploads(nil, []string{"u1"}))
		require.NoError(t, st.Fire(EventContinue))

		require.ErrorIs(t, st.Fire(EventContinue), ErrNoStyle)
		assert.Equal(t, StepStyle, st.Step)
	})

	t.Run("generate requires background", func(t *testing.T) {
		st := readyState(t)
		st.BackgroundID = ""
		require.ErrorIs(t, st.Fire(EventGenerate), ErrNoBackground)
		assert.Equal(t, StepBackground, st.Step)
	})

	t.Run("generate requires terms", func(t *testing.T) {
		st := readyState(t)
		require.NoError(t, st.AcceptTerms(false))
		require.ErrorIs(t, st.Fire(EventGenerate), ErrTermsRequired)
		assert.Equal(t, StepBackground, st.Step)
	})

	t.Run("complete requires results", func(t *testing.T) {
		st := readyState(t)
		require.NoError(t, st.Fire(EventGenerate))
		require.ErrorIs(t, st.Complete(nil), ErrNoResults)
		assert.Equal(t, StepGenerate, st.Step)
	})
}

func TestInvalidTransitions(t *testing.T) {
	tests := []struct {
		name  string
		state State
		event Event
	}{
		{name: "skip from welcome", state: Initial(), event: EventContinue},
		{name: "generate from welcome", state: Initial(), event: EventGenerate},
		{name: "complete from welcome", state: Initial(), event: EventComplete},
		{name: "create more from upload", state: State{Step: StepUpload}, event: EventCreateMore},
		{name: "back from generate", state: State{Step: StepGenerate}, event: EventBack},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := tt.state
			err := st.Fire(tt.event)
			require.ErrorIs(t, err, ErrInvalidTransition)
			assert.Equal(t, tt.state.Step, st.Step)
		})
	}
}

func TestSelectionsOnlyOnTheirStep(t *testing.T) {
	st := Initial()
	require.ErrorIs(t, st.SelectStyle("casual"), ErrInvalidTransition)
	require.ErrorIs(t, st.SelectBackground("office"), ErrInvalidTransition)
	require.ErrorIs(t, st.AcceptTerms(true), ErrInvalidTransition)
	require.ErrorIs(t, st.SetUploads(nil, []string{"u"}), ErrInvalidTransition)
	assert.Equal(t, Initial(), st)
}

func TestBackwardTransitions(t *testing.T) {
	st := readyState(t)
	require.NoError(t, st.Fire(EventBack))
	assert.Equal(t, StepStyle, st.Step)
	require.NoError(t, st.Fire(EventBack))
	assert.Equal(t, StepUpload, st.Step)
	require.NoError(t, st.Fire(EventBack))
	assert.Equal(t, StepWelcome, st.Step)

	// Going back keeps what was collected.
	assert.Equal(t, "professional", st.StyleID)
	assert.Equal(t, []string{"https://cdn/a.jpg"}, st.UploadedURLs)
}

func TestGenerationLifecycle(t *testing.T) {
	st := readyState(t)
	require.NoError(t, st.Fire(EventGenerate))
	assert.Equal(t, StepGenerate, st.Step)

	st.SetGeneration("gen_1")
	st.SetProgress(40)
	assert.Equal(t, 40, st.Progress)
	st.SetProgress(150)
	assert.Equal(t, 100, st.Progress)

	results := []string{"r1", "r2", "r3", "r4"}
	require.NoError(t, st.Complete(results))
	assert.Equal(t, StepResults, st.Step)
	assert.Equal(t, 100, st.Progress)
	assert.Equal(t, results, st.Results)
	assert.Equal(t, "gen_1", st.GenerationID)

	st.SetProgress(10)
	assert.Equal(t, 100, st.Progress, "progress is frozen outside the generate step")
}

func TestGenerationFailureReturnsToBackground(t *testing.T) {
	st := readyState(t)
	require.NoError(t, st.Fire(EventGenerate))
	st.SetGeneration("gen_1")
	st.SetProgress(70)

	require.NoError(t, st.Fail())
	assert.Equal(t, StepBackground, st.Step)
	assert.Zero(t, st.Progress)
	assert.Empty(t, st.GenerationID)
	assert.Equal(t, "studio", st.BackgroundID)
	assert.True(t, st.TermsAccepted)
}

func TestCreateMoreResets(t *testing.T) {
	st := readyState(t)
	require.NoError(t, st.Fire(EventGenerate))
	require.NoError(t, st.Complete([]string{"r1"}))

	require.NoError(t, st.Fire(EventCreateMore))
	if diff := cmp.Diff(Initial(), st, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("state after create_more differs from initial (-want +got):\n%s", diff)
	}

	once := st
	st.Reset()
	if diff := cmp.Diff(once, st, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("second reset changed state (-want +got):\n%s", diff)
	}
}

func TestBackToDashboardRetainsState(t *testing.T) {
	st := readyState(t)
	require.NoError(t, st.Fire(EventGenerate))
	require.NoError(t, st.Complete([]string{"r1", "r2"}))

	require.NoError(t, st.Fire(EventBackToDashboard))
	assert.Equal(t, StepWelcome, st.Step)
	assert.Equal(t, []string{"r1", "r2"}, st.Results)
	assert.Equal(t, "professional", st.StyleID)
}

func TestAllowed(t *testing.T) {
	assert.Equal(t, []Event{EventStart}, Allowed(StepWelcome))
	assert.Equal(t, []Event{EventContinue, EventBack}, Allowed(StepUpload))
	assert.Equal(t, []Event{EventComplete, EventFail}, Allowed(StepGenerate))
	assert.Equal(t, []Event{EventCreateMore, EventBackToDashboard}, Allowed(StepResults))
}

// Explores every state reachable through user and internal actions and
// checks the forward guards are never bypassed.
func TestForwardGuardsHoldForAllReachableStates(t *testing.T) {
	actions := []func(*State) error{
		func(st *State) error { return st.Fire(EventStart) },
		func(st *State) error { return st.Fire(EventContinue) },
		func(st *State) error { return st.Fire(EventBack) },
		func(st *State) error { return st.Fire(EventGenerate) },
		func(st *State) error { return st.Fire(EventFail) },
		func(st *State) error { return st.Fire(EventCreateMore) },
		func(st *State) error { return st.Fire(EventBackToDashboard) },
		func(st *State) error { return st.SetUploads(nil, nil) },
		func(st *State) error { return st.SetUploads([]FileRef{{Name: "a"}}, []string{"u1"}) },
		func(st *State) error { return st.SelectStyle("") },
		func(st *State) error { return st.SelectStyle("casual") },
		func(st *State) error { return st.SelectBackground("") },
		func(st *State) error { return st.SelectBackground("office") },
		func(st *State) error { return st.AcceptTerms(false) },
		func(st *State) error { return st.AcceptTerms(true) },
		func(st *State) error { return st.Complete(nil) },
		func(st *State) error { return st.Complete([]string{"r1"}) },
	}

	seen := map[string]bool{}
	queue := []State{Initial()}
	for len(queue) > 0 {
		st := queue[0]
		queue = queue[1:]

		key := fmt.Sprintf("%+v", st)
		if seen[key] {
			continue
		}
		seen[key] = true

		switch st.Step {
		case StepStyle:
			require.NotEmpty(t, st.UploadedURLs)
		case StepBackground:
			require.NotEmpty(t, st.UploadedURLs)
			require.NotEmpty(t, st.StyleID)
		case StepGenerate, StepResults:
			require.NotEmpty(t, st.BackgroundID)
			require.True(t, st.TermsAccepted)
		}

		for _, act := range actions {
			next := st.clone()
			if err := act(&next); err != nil {
				continue
			}
			queue = append(queue, next)
		}
	}

	assert.Greater(t, len(seen), 10)
}

func TestParseEvent(t *testing.T) {
	ev, ok := ParseEvent("create_more")
	require.True(t, ok)
	assert.Equal(t, EventCreateMore, ev)

	_, ok = ParseEvent("teleport")
	assert.False(t, ok)

	assert.True(t, EventComplete.Internal())
	assert.False(t, EventStart.Internal())
	assert.True(t, EventBack.Navigation())
	assert.False(t, EventGenerate.Navigation())
}
