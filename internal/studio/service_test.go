package studio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/auth"
	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/generation"
	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/history"
	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/notify"
	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/upload"
	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/wizard"
)

const owner = "user-1"

type fakeUploader struct {
	failNames map[string]bool
}

func (f fakeUploader) Upload(_ context.Context, _ string, files []upload.File, n notify.Notifier) (upload.Result, error) {
	if len(files) == 0 {
		return upload.Result{}, upload.ErrNoFiles
	}
	var res upload.Result
	for i, file := range files {
		if f.failNames[file.Name] {
			res.Failed = append(res.Failed, upload.Failure{Index: i, Name: file.Name, Err: errors.New("nope")})
			n.Notify(notify.UploadFailed)
			continue
		}
		res.URLs = append(res.URLs, "https://cdn.test/"+file.Name)
	}
	return res, nil
}

type fakeGenerator struct {
	mu       sync.Mutex
	requests []generation.Request
	progress []int
	err      error
	seen     wizard.State
	store    *wizard.Store
}

func (f *fakeGenerator) Run(_ context.Context, req generation.Request, onProgress func(int), n notify.Notifier) (generation.Result, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	onProgress(0)
	onProgress(40)
	if f.store != nil {
		f.seen = f.store.Get(req.OwnerID)
	}
	if f.err != nil {
		onProgress(0)
		n.Notify(notify.GenerationFailed)
		return generation.Result{ID: "gen_x"}, f.err
	}
	onProgress(100)
	n.Notify(notify.GenerationSucceeded)
	urls := make([]string, 4)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://cdn.test/out-%d.png", i+1)
	}
	return generation.Result{ID: "gen_x", URLs: urls}, nil
}

type fakeHistory struct{}

func (fakeHistory) Recent(context.Context, string) []history.Entry {
	return []history.Entry{{ID: "gen_old"}}
}

func newService(gen *fakeGenerator, up Uploader) (*Service, *wizard.Store) {
	store := wizard.NewStore()
	if gen != nil {
		gen.store = store
	}
	if up == nil {
		up = fakeUploader{}
	}
	return New(Options{Wizard: store, Uploads: up, Generator: gen, History: fakeHistory{}}), store
}

func photos(names ...string) []upload.File {
	out := make([]upload.File, len(names))
	for i, n := range names {
		out[i] = upload.File{Name: n, ContentType: "image/jpeg", Data: []byte(n)}
	}
	return out
}

// walkToBackground drives a fresh wizard to the background step with style set.
func walkToBackground(t *testing.T, s *Service) {
	t.Helper()
	ctx := context.Background()
	_, err := s.Fire(owner, wizard.EventStart, nil)
	require.NoError(t, err)
	_, _, err = s.Upload(ctx, owner, photos("a.jpg", "b.jpg"), nil)
	require.NoError(t, err)
	_, err = s.Fire(owner, wizard.EventContinue, nil)
	require.NoError(t, err)
	_, err = s.SelectStyle(owner, "Executive", nil)
	require.NoError(t, err)
	_, err = s.Fire(owner, wizard.EventContinue, nil)
	require.NoError(t, err)
}

func TestHappyPathReachesResults(t *testing.T) {
	gen := &fakeGenerator{}
	s, _ := newService(gen, nil)
	walkToBackground(t, s)

	var notices notify.Collector
	_, err := s.SelectBackground(owner, "studio", &notices)
	require.NoError(t, err)
	_, err = s.AcceptTerms(owner, true, &notices)
	require.NoError(t, err)

	st, err := s.Generate(context.Background(), owner, &notices)
	require.NoError(t, err)

	assert.Equal(t, wizard.StepResults, st.Step)
	assert.Len(t, st.Results, 4)
	assert.Equal(t, 100, st.Progress)
	assert.Equal(t, "gen_x", st.GenerationID)
	assert.Equal(t, []notify.Notice{notify.GenerationSucceeded}, notices.Notices())

	require.Len(t, gen.requests, 1)
	assert.Equal(t, generation.Request{
		OwnerID:       owner,
		ReferenceURLs: []string{"https://cdn.test/a.jpg", "https://cdn.test/b.jpg"},
		StyleID:       "executive",
		BackgroundID:  "studio",
		TermsAccepted: true,
	}, gen.requests[0])

	assert.Equal(t, wizard.StepGenerate, gen.seen.Step)
	assert.Equal(t, 40, gen.seen.Progress)
}

func TestGenerateWithoutTermsNotifies(t *testing.T) {
	gen := &fakeGenerator{}
	s, _ := newService(gen, nil)
	walkToBackground(t, s)
	_, err := s.SelectBackground(owner, "office", nil)
	require.NoError(t, err)

	var notices notify.Collector
	st, err := s.Generate(context.Background(), owner, &notices)
	require.ErrorIs(t, err, wizard.ErrTermsRequired)
	assert.Equal(t, wizard.StepBackground, st.Step)
	assert.Equal(t, []notify.Notice{notify.TermsRequired}, notices.Notices())
	assert.Empty(t, gen.requests)
}

func TestGenerateFailureReturnsToBackground(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("ai down")}
	s, _ := newService(gen, nil)
	walkToBackground(t, s)
	_, _ = s.SelectBackground(owner, "office", nil)
	_, _ = s.AcceptTerms(owner, true, nil)

	var notices notify.Collector
	st, err := s.Generate(context.Background(), owner, &notices)
	require.Error(t, err)
	assert.Equal(t, wizard.StepBackground, st.Step)
	assert.Equal(t, 0, st.Progress)
	assert.Equal(t, "office", st.BackgroundID)
	assert.True(t, st.TermsAccepted)
	assert.Equal(t, []notify.Notice{notify.GenerationFailed}, notices.Notices())
}

func TestUploadPartialFailureAndReplace(t *testing.T) {
	s, _ := newService(&fakeGenerator{}, fakeUploader{failNames: map[string]bool{"2.jpg": true}})
	_, err := s.Fire(owner, wizard.EventStart, nil)
	require.NoError(t, err)

	var notices notify.Collector
	st, res, err := s.Upload(context.Background(), owner, photos("1.jpg", "2.jpg", "3.jpg"), &notices)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://cdn.test/1.jpg", "https://cdn.test/3.jpg"}, st.UploadedURLs)
	assert.Len(t, st.Files, 3)
	assert.Len(t, res.Failed, 1)
	assert.Equal(t, []notify.Notice{notify.UploadFailed}, notices.Notices())

	st, _, err = s.Upload(context.Background(), owner, photos("4.jpg"), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://cdn.test/4.jpg"}, st.UploadedURLs)
}

func TestContinueWithoutUploadsNotifies(t *testing.T) {
	s, _ := newService(&fakeGenerator{}, fakeUploader{failNames: map[string]bool{"1.jpg": true}})
	_, _ = s.Fire(owner, wizard.EventStart, nil)
	_, _, err := s.Upload(context.Background(), owner, photos("1.jpg"), nil)
	require.NoError(t, err)

	var notices notify.Collector
	st, err := s.Fire(owner, wizard.EventContinue, &notices)
	require.ErrorIs(t, err, wizard.ErrNoUploads)
	assert.Equal(t, wizard.StepUpload, st.Step)
	assert.Equal(t, []notify.Notice{notify.UploadRequired}, notices.Notices())
}

func TestUploadOutsideUploadStep(t *testing.T) {
	s, _ := newService(&fakeGenerator{}, nil)
	_, _, err := s.Upload(context.Background(), owner, photos("a.jpg"), nil)
	assert.ErrorIs(t, err, wizard.ErrInvalidTransition)
}

func TestFireRejectsNonNavigation(t *testing.T) {
	s, _ := newService(&fakeGenerator{}, nil)
	for _, ev := range []wizard.Event{wizard.EventComplete, wizard.EventFail, wizard.EventGenerate, wizard.EventSelectStyle} {
		_, err := s.Fire(owner, ev, nil)
		assert.ErrorIs(t, err, ErrNotNavigation, ev)
	}
}

func TestUnknownOptions(t *testing.T) {
	s, _ := newService(&fakeGenerator{}, nil)
	walkToBackground(t, s)
	_, err := s.SelectBackground(owner, "moon", nil)
	assert.ErrorIs(t, err, ErrUnknownOption)
	_, err = s.SelectStyle(owner, "pirate", nil)
	assert.ErrorIs(t, err, ErrUnknownOption)
}

func TestCreateMoreResetsToInitial(t *testing.T) {
	s, _ := newService(&fakeGenerator{}, nil)
	walkToBackground(t, s)
	_, _ = s.SelectBackground(owner, "office", nil)
	_, _ = s.AcceptTerms(owner, true, nil)
	_, err := s.Generate(context.Background(), owner, nil)
	require.NoError(t, err)

	st, err := s.Fire(owner, wizard.EventCreateMore, nil)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(wizard.Initial(), st, cmpopts.EquateEmpty()))
}

func TestWatchForgetsOnSignOut(t *testing.T) {
	s, store := newService(&fakeGenerator{}, nil)
	provider := auth.NewLocal(auth.LocalOptions{})
	defer s.Watch(provider)()

	ctx := context.Background()
	id, tok1, err := provider.Login(ctx, auth.Credentials{Email: "ann@example.com"})
	require.NoError(t, err)
	_, tok2, err := provider.Login(ctx, auth.Credentials{Email: "ann@example.com"})
	require.NoError(t, err)

	_, err = s.Fire(id.ID, wizard.EventStart, nil)
	require.NoError(t, err)

	require.NoError(t, provider.Logout(ctx, tok1))
	assert.Equal(t, wizard.StepUpload, s.State(id.ID).Step)

	require.NoError(t, provider.Logout(ctx, tok2))
	assert.Equal(t, 0, store.Len())
}

func TestClearUploads(t *testing.T) {
	s, _ := newService(&fakeGenerator{}, nil)
	ctx := context.Background()

	_, err := s.Fire(owner, wizard.EventStart, nil)
	require.NoError(t, err)
	_, _, err = s.Upload(ctx, owner, photos("a.jpg"), nil)
	require.NoError(t, err)

	st, err := s.ClearUploads(owner)
	require.NoError(t, err)
	assert.Empty(t, st.UploadedURLs)
	assert.Empty(t, st.Files)

	_, err = s.Fire(owner, wizard.EventContinue, nil)
	assert.ErrorIs(t, err, wizard.ErrNoUploads)
}

func TestWatchForgetsOnExpiredTokenCheck(t *testing.T) {
	s, store := newService(&fakeGenerator{}, nil)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	provider := auth.NewLocal(auth.LocalOptions{IdleTimeout: time.Minute, Now: func() time.Time { return now }})
	defer s.Watch(provider)()

	ctx := context.Background()
	id, tok, err := provider.Login(ctx, auth.Credentials{Email: "ann@example.com"})
	require.NoError(t, err)
	_, err = s.Fire(id.ID, wizard.EventStart, nil)
	require.NoError(t, err)
	require.Equal(t, 1, store.Len())

	now = now.Add(2 * time.Minute)
	_, err = provider.Authenticate(ctx, tok)
	require.ErrorIs(t, err, auth.ErrUnauthenticated)
	assert.Equal(t, 0, store.Len())
	assert.Equal(t, wizard.StepWelcome, s.State(id.ID).Step)
}

func TestHistoryDelegates(t *testing.T) {
	s, _ := newService(&fakeGenerator{}, nil)
	assert.Equal(t, "gen_old", s.History(context.Background(), owner)[0].ID)
}
