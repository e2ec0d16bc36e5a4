package handlers

import (
	"errors"

	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/generation"
	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/notify"
	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/prompt"
	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/studio"
	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/upload"
	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/wizard"
)

// selection is a style or background picked by typing its name.
type selection struct {
	background bool
	id         string
}

func (s selection) apply(svc *studio.Service, ownerID string, n notify.Notifier) (wizard.State, error) {
	if s.background {
		return svc.SelectBackground(ownerID, s.id, n)
	}
	return svc.SelectStyle(ownerID, s.id, n)
}

// matchSelection interprets free text on the style and background steps.
func matchSelection(step wizard.Step, text string) (selection, bool) {
	switch step {
	case wizard.StepStyle:
		if o, ok := prompt.Match(text, prompt.Styles()); ok {
			return selection{id: o.ID}, true
		}
	case wizard.StepBackground:
		if o, ok := prompt.Match(text, prompt.Backgrounds()); ok {
			return selection{background: true, id: o.ID}, true
		}
	}
	return selection{}, false
}

// describe turns an error into a short message for the chat.
func describe(err error) string {
	switch {
	case errors.Is(err, wizard.ErrInvalidTransition), errors.Is(err, studio.ErrNotNavigation):
		return "That action is not available on this step."
	case errors.Is(err, studio.ErrUnknownOption):
		return "Unknown option."
	case errors.Is(err, upload.ErrNoFiles):
		return "No photos received."
	case errors.Is(err, generation.ErrInvalidRequest):
		return "Your selections are incomplete. Please review them and try again."
	}
	if n, ok := studio.NoticeFor(err); ok {
		return n.Description
	}
	return "Something went wrong. Please try again."
}
