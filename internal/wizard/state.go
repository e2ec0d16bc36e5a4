package wizard

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTransition = errors.New("invalid wizard transition")
	ErrNoUploads         = errors.New("no uploaded photos")
	ErrNoStyle           = errors.New("no style selected")
	ErrNoBackground      = errors.New("no background selected")
	ErrTermsRequired     = errors.New("terms not accepted")
	ErrNoResults         = errors.New("generation returned no images")
)

// FileRef describes a selected local file. The bytes are not retained.
type FileRef struct {
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
}

type State struct {
	Step          Step      `json:"step"`
	Files         []FileRef `json:"files"`
	UploadedURLs  []string  `json:"uploaded_urls"`
	StyleID       string    `json:"style_id"`
	BackgroundID  string    `json:"background_id"`
	TermsAccepted bool      `json:"terms_accepted"`
	// Progress is simulated while a generation is in flight and only reaches
	// 100 once the generation call returned.
	Progress     int      `json:"progress"`
	Results      []string `json:"results"`
	GenerationID string   `json:"generation_id,omitempty"`
}

func Initial() State {
	return State{Step: StepWelcome}
}

type transitionKey struct {
	from  Step
	event Event
}

type rule struct {
	to    Step
	guard func(State) error
}

var transitions = map[transitionKey]rule{
	{StepWelcome, EventStart}: {to: StepUpload},

	{StepUpload, EventContinue}: {to: StepStyle, guard: hasUploads},
	{StepUpload, EventBack}:     {to: StepWelcome},

	{StepStyle, EventSelectStyle}: {to: StepStyle},
	{StepStyle, EventContinue}:    {to: StepBackground, guard: hasStyle},
	{StepStyle, EventBack}:        {to: StepUpload},

	{StepBackground, EventSelectBackground}: {to: StepBackground},
	{StepBackground, EventAcceptTerms}:      {to: StepBackground},
	{StepBackground, EventGenerate}:         {to: StepGenerate, guard: readyToGenerate},
	{StepBackground, EventBack}:             {to: StepStyle},

	{StepGenerate, EventComplete}: {to: StepResults, guard: hasResults},
	{StepGenerate, EventFail}:     {to: StepBackground},

	{StepResults, EventCreateMore}:      {to: StepWelcome},
	{StepResults, EventBackToDashboard}: {to: StepWelcome},
}

func hasUploads(st State) error {
	if len(st.UploadedURLs) == 0 {
		return ErrNoUploads
	}
	return nil
}

func hasStyle(st State) error {
	if st.StyleID == "" {
		return ErrNoStyle
	}
	return nil
}

func readyToGenerate(st State) error {
	if st.BackgroundID == "" {
		return ErrNoBackground
	}
	if !st.TermsAccepted {
		return ErrTermsRequired
	}
	return nil
}

func hasResults(st State) error {
	if len(st.Results) == 0 {
		return ErrNoResults
	}
	return nil
}

// Allowed returns the events accepted in the given step, in a stable order.
func Allowed(step Step) []Event {
	order := []Event{
		EventStart, EventContinue, EventBack,
		EventSelectStyle, EventSelectBackground, EventAcceptTerms,
		EventGenerate, EventComplete, EventFail,
		EventCreateMore, EventBackToDashboard,
	}
	var out []Event
	for _, ev := range order {
		if _, ok := transitions[transitionKey{step, ev}]; ok {
			out = append(out, ev)
		}
	}
	return out
}

// Can reports whether ev would be accepted from the current state, guard included.
func (s State) Can(ev Event) error {
	r, ok := transitions[transitionKey{s.Step, ev}]
	if !ok {
		return fmt.Errorf("%w: %s from %s", ErrInvalidTransition, ev, s.Step)
	}
	if r.guard != nil {
		if err := r.guard(s); err != nil {
			return err
		}
	}
	return nil
}

// Fire applies a payload-free event.
func (s *State) Fire(ev Event) error {
	return s.apply(ev, nil)
}

func (s *State) apply(ev Event, mutate func(*State)) error {
	r, ok := transitions[transitionKey{s.Step, ev}]
	if !ok {
		return fmt.Errorf("%w: %s from %s", ErrInvalidTransition, ev, s.Step)
	}

	next := s.clone()
	if mutate != nil {
		mutate(&next)
	}
	if r.guard != nil {
		if err := r.guard(next); err != nil {
			return err
		}
	}
	next.Step = r.to

	switch ev {
	case EventGenerate:
		next.Progress = 0
		next.Results = nil
	case EventComplete:
		next.Progress = 100
	case EventFail:
		next.Progress = 0
		next.GenerationID = ""
	case EventCreateMore:
		next = Initial()
	}

	*s = next
	return nil
}

// SetUploads replaces the selected files and the uploaded URL list.
func (s *State) SetUploads(files []FileRef, urls []string) error {
	if s.Step != StepUpload {
		return fmt.Errorf("%w: upload from %s", ErrInvalidTransition, s.Step)
	}
	s.Files = append([]FileRef(nil), files...)
	s.UploadedURLs = append([]string(nil), urls...)
	return nil
}

func (s *State) SelectStyle(id string) error {
	return s.apply(EventSelectStyle, func(st *State) { st.StyleID = id })
}

func (s *State) SelectBackground(id string) error {
	return s.apply(EventSelectBackground, func(st *State) { st.BackgroundID = id })
}

func (s *State) AcceptTerms(accepted bool) error {
	return s.apply(EventAcceptTerms, func(st *State) { st.TermsAccepted = accepted })
}

// SetProgress records the simulated progress; it is ignored outside the
// generate step so a late tick cannot touch a finished run.
func (s *State) SetProgress(p int) {
	if s.Step != StepGenerate {
		return
	}
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	s.Progress = p
}

func (s *State) Complete(results []string) error {
	return s.apply(EventComplete, func(st *State) { st.Results = append([]string(nil), results...) })
}

func (s *State) Fail() error {
	return s.Fire(EventFail)
}

func (s *State) Reset() {
	*s = Initial()
}

func (s State) clone() State {
	out := s
	out.Files = append([]FileRef(nil), s.Files...)
	out.UploadedURLs = append([]string(nil), s.UploadedURLs...)
	out.Results = append([]string(nil), s.Results...)
	return out
}

// SetGeneration remembers the record id of the in-flight generation.
func (s *State) SetGeneration(id string) {
	if s.Step != StepGenerate {
		return
	}
	s.GenerationID = id
}
