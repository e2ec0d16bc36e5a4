package wizard

type Step string

const (
	StepWelcome    Step = "welcome"
	StepUpload     Step = "upload"
	StepStyle      Step = "style"
	StepBackground Step = "background"
	StepGenerate   Step = "generate"
	StepResults    Step = "results"
)

// Steps lists the wizard steps in flow order.
func Steps() []Step {
	return []Step{StepWelcome, StepUpload, StepStyle, StepBackground, StepGenerate, StepResults}
}

func (s Step) Valid() bool {
	for _, v := range Steps() {
		if v == s {
			return true
		}
	}
	return false
}

type Event string

const (
	EventStart            Event = "start"
	EventContinue         Event = "continue"
	EventBack             Event = "back"
	EventSelectStyle      Event = "select_style"
	EventSelectBackground Event = "select_background"
	EventAcceptTerms      Event = "accept_terms"
	EventGenerate         Event = "generate"
	EventComplete         Event = "complete"
	EventFail             Event = "fail"
	EventCreateMore       Event = "create_more"
	EventBackToDashboard  Event = "back_to_dashboard"
)

// Internal reports whether the event is raised by the generation flow rather
// than by the user.
func (e Event) Internal() bool {
	return e == EventComplete || e == EventFail
}

// Navigation reports whether the event only moves between steps and carries
// no payload.
func (e Event) Navigation() bool {
	switch e {
	case EventStart, EventContinue, EventBack, EventCreateMore, EventBackToDashboard:
		return true
	}
	return false
}

func ParseEvent(s string) (Event, bool) {
	ev := Event(s)
	for key := range transitions {
		if key.event == ev {
			return ev, true
		}
	}
	return "", false
}
