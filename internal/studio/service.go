// Package studio is the headshot dashboard: it owns each identity's wizard
// state and drives the upload, generation and history components from it.
package studio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/auth"
	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/generation"
	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/history"
	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/notify"
	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/prompt"
	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/upload"
	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/wizard"
)

var (
	ErrUnknownOption = errors.New("unknown option")
	ErrNotNavigation = errors.New("event cannot be fired directly")
)

type Uploader interface {
	Upload(ctx context.Context, ownerID string, files []upload.File, n notify.Notifier) (upload.Result, error)
}

type Generator interface {
	Run(ctx context.Context, req generation.Request, onProgress func(int), n notify.Notifier) (generation.Result, error)
}

type HistoryView interface {
	Recent(ctx context.Context, ownerID string) []history.Entry
}

type Options struct {
	Wizard    *wizard.Store
	Uploads   Uploader
	Generator Generator
	History   HistoryView
	Logger    *slog.Logger
}

type Service struct {
	wizard    *wizard.Store
	uploads   Uploader
	generator Generator
	history   HistoryView
	logger    *slog.Logger
}

func New(opts Options) *Service {
	store := opts.Wizard
	if store == nil {
		store = wizard.NewStore()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{
		wizard:    store,
		uploads:   opts.Uploads,
		generator: opts.Generator,
		history:   opts.History,
		logger:    logger,
	}
}

func (s *Service) State(ownerID string) wizard.State {
	return s.wizard.Get(ownerID)
}

// Fire applies a navigation event. Selections, generation and its outcome
// have their own methods.
func (s *Service) Fire(ownerID string, ev wizard.Event, n notify.Notifier) (wizard.State, error) {
	if !ev.Navigation() {
		return s.wizard.Get(ownerID), fmt.Errorf("%w: %s", ErrNotNavigation, ev)
	}
	return s.update(ownerID, n, func(st *wizard.State) error { return st.Fire(ev) })
}

func (s *Service) SelectStyle(ownerID, id string, n notify.Notifier) (wizard.State, error) {
	o, ok := prompt.LookupStyle(id)
	if !ok {
		return s.wizard.Get(ownerID), fmt.Errorf("%w: style %q", ErrUnknownOption, id)
	}
	return s.update(ownerID, n, func(st *wizard.State) error { return st.SelectStyle(o.ID) })
}

func (s *Service) SelectBackground(ownerID, id string, n notify.Notifier) (wizard.State, error) {
	o, ok := prompt.LookupBackground(id)
	if !ok {
		return s.wizard.Get(ownerID), fmt.Errorf("%w: background %q", ErrUnknownOption, id)
	}
	return s.update(ownerID, n, func(st *wizard.State) error { return st.SelectBackground(o.ID) })
}

func (s *Service) AcceptTerms(ownerID string, accepted bool, n notify.Notifier) (wizard.State, error) {
	return s.update(ownerID, n, func(st *wizard.State) error { return st.AcceptTerms(accepted) })
}

// Upload stores a new batch of reference photos. The batch replaces any
// earlier one; files that failed to upload are left out of the URL list.
func (s *Service) Upload(ctx context.Context, ownerID string, files []upload.File, n notify.Notifier) (wizard.State, upload.Result, error) {
	if n == nil {
		n = notify.Discard
	}
	if st := s.wizard.Get(ownerID); st.Step != wizard.StepUpload {
		return st, upload.Result{}, fmt.Errorf("%w: upload from %s", wizard.ErrInvalidTransition, st.Step)
	}

	res, err := s.uploads.Upload(ctx, ownerID, files, n)
	if err != nil {
		return s.wizard.Get(ownerID), res, err
	}

	refs := make([]wizard.FileRef, len(files))
	for i, f := range files {
		refs[i] = wizard.FileRef{Name: f.Name, Size: int64(len(f.Data)), ContentType: f.ContentType}
	}
	st, err := s.wizard.Update(ownerID, func(st *wizard.State) error { return st.SetUploads(refs, res.URLs) })
	return st, res, err
}

// ClearUploads records an empty batch, for when none of the new files could
// be read. The earlier batch is still replaced.
func (s *Service) ClearUploads(ownerID string) (wizard.State, error) {
	return s.wizard.Update(ownerID, func(st *wizard.State) error { return st.SetUploads(nil, nil) })
}

// Generate runs one generation to completion. The wizard sits in the
// generate step with simulated progress meanwhile, then moves to results on
// success or back to background on failure.
func (s *Service) Generate(ctx context.Context, ownerID string, n notify.Notifier) (wizard.State, error) {
	if n == nil {
		n = notify.Discard
	}

	var req generation.Request
	st, err := s.update(ownerID, n, func(st *wizard.State) error {
		req = generation.Request{
			OwnerID:       ownerID,
			ReferenceURLs: append([]string(nil), st.UploadedURLs...),
			StyleID:       st.StyleID,
			BackgroundID:  st.BackgroundID,
			TermsAccepted: st.TermsAccepted,
		}
		if err := st.Can(wizard.EventGenerate); err != nil {
			return err
		}
		if err := generation.Validate(req); err != nil {
			return err
		}
		return st.Fire(wizard.EventGenerate)
	})
	if err != nil {
		return st, err
	}

	onProgress := func(p int) {
		_, _ = s.wizard.Update(ownerID, func(st *wizard.State) error {
			st.SetProgress(p)
			return nil
		})
	}

	res, runErr := s.generator.Run(ctx, req, onProgress, n)
	if runErr != nil {
		st, err := s.wizard.Update(ownerID, func(st *wizard.State) error { return st.Fail() })
		if err != nil {
			s.logger.Warn("wizard left generate step early", "owner", ownerID, "error", err)
		}
		return st, runErr
	}

	st, err = s.wizard.Update(ownerID, func(st *wizard.State) error {
		st.SetGeneration(res.ID)
		return st.Complete(res.URLs)
	})
	if err != nil {
		s.logger.Warn("generation finished after wizard moved on", "owner", ownerID, "generation_id", res.ID, "error", err)
	}
	return st, err
}

func (s *Service) History(ctx context.Context, ownerID string) []history.Entry {
	return s.history.Recent(ctx, ownerID)
}

// Forget drops the owner's wizard state.
func (s *Service) Forget(ownerID string) {
	s.wizard.Forget(ownerID)
}

// Watch forgets wizard state once an identity has signed out everywhere.
func (s *Service) Watch(p auth.Provider) (unsubscribe func()) {
	return p.Subscribe(func(c auth.Change) {
		if c.Kind != auth.ChangeLogin && c.SignedOut {
			s.Forget(c.Identity.ID)
		}
	})
}

func (s *Service) update(ownerID string, n notify.Notifier, fn func(*wizard.State) error) (wizard.State, error) {
	st, err := s.wizard.Update(ownerID, fn)
	if err != nil {
		if notice, ok := NoticeFor(err); ok && n != nil {
			n.Notify(notice)
		}
	}
	return st, err
}

// NoticeFor maps a wizard guard failure to the notice shown for it.
func NoticeFor(err error) (notify.Notice, bool) {
	switch {
	case errors.Is(err, wizard.ErrNoUploads):
		return notify.UploadRequired, true
	case errors.Is(err, wizard.ErrNoStyle):
		return notify.StyleRequired, true
	case errors.Is(err, wizard.ErrNoBackground):
		return notify.BackgroundRequired, true
	case errors.Is(err, wizard.ErrTermsRequired):
		return notify.TermsRequired, true
	}
	return notify.Notice{}, false
}
