package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/auth"
	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/generation"
	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/history"
	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/mediagroup"
	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/notify"
	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/storage"
	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/studio"
	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/telegram"
	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/upload"
	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/wizard"
)

const (
	chatID = int64(100)
	userID = int64(7)
)

type sent struct {
	text string
	kb   telegram.Keyboard
}

type fakeMessenger struct {
	mu        sync.Mutex
	nextID    int
	messages  []sent
	edits     []sent
	answers   []string
	albums    [][]telegram.Photo
	files     map[string][]byte
	failFiles map[string]bool
}

func (f *fakeMessenger) SendText(_ int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, sent{text: text})
	return nil
}

func (f *fakeMessenger) SendTextWithKeyboard(_ int64, text string, kb telegram.Keyboard) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.messages = append(f.messages, sent{text: text, kb: kb})
	return f.nextID, nil
}

func (f *fakeMessenger) EditTextWithKeyboard(_ int64, _ int, text string, kb telegram.Keyboard) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, sent{text: text, kb: kb})
	return nil
}

func (f *fakeMessenger) AnswerCallback(_ string, text string, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, text)
	return nil
}

func (f *fakeMessenger) SendTyping(int64) {}

func (f *fakeMessenger) SendAlbum(_ int64, photos []telegram.Photo, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.albums = append(f.albums, photos)
	return nil
}

func (f *fakeMessenger) DownloadFile(_ context.Context, fileID string) ([]byte, string, error) {
	if f.failFiles[fileID] {
		return nil, "", errors.New("telegram unavailable")
	}
	return f.files[fileID], "image/jpeg", nil
}

func (f *fakeMessenger) lastPanel() sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.edits) > 0 {
		return f.edits[len(f.edits)-1]
	}
	return f.messages[len(f.messages)-1]
}

func (f *fakeMessenger) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.messages {
		out = append(out, m.text)
	}
	return out
}

type fakeGenerator struct {
	store storage.Store
	err   error
}

func (g fakeGenerator) Run(ctx context.Context, req generation.Request, onProgress func(int), n notify.Notifier) (generation.Result, error) {
	onProgress(0)
	if g.err != nil {
		n.Notify(notify.GenerationFailed)
		return generation.Result{}, g.err
	}
	var urls []string
	for i := 0; i < 4; i++ {
		obj, err := g.store.Upload(ctx, fmt.Sprintf("generated/%s/%d.png", req.OwnerID, i), strings.NewReader(fmt.Sprintf("img-%d", i)), storage.UploadOptions{Upsert: true})
		if err != nil {
			return generation.Result{}, err
		}
		urls = append(urls, obj.URL)
	}
	onProgress(100)
	n.Notify(notify.GenerationSucceeded)
	return generation.Result{ID: "gen_1", URLs: urls}, nil
}

type emptyHistory struct{}

func (emptyHistory) Recent(context.Context, string) []history.Entry { return nil }

func newHandler(t *testing.T, genErr error) (*Handler, *fakeMessenger, *studio.Service) {
	t.Helper()
	local, err := storage.NewLocal(storage.LocalOptions{Root: t.TempDir(), BaseURL: "http://files.test"})
	require.NoError(t, err)

	svc := studio.New(studio.Options{
		Uploads:   upload.New(upload.Options{Storage: local}),
		Generator: fakeGenerator{store: local, err: genErr},
		History:   emptyHistory{},
	})
	tg := &fakeMessenger{files: map[string][]byte{"p1": []byte("photo-1"), "p2": []byte("photo-2")}}
	h := New(Options{Telegram: tg, Studio: svc, Auth: auth.NewLocal(auth.LocalOptions{}), Storage: local})
	return h, tg, svc
}

func command(text string) telegram.Update {
	cmd := strings.Fields(text)[0]
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Chat:     &tgbotapi.Chat{ID: chatID},
		From:     &tgbotapi.User{ID: userID, FirstName: "Ann"},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}},
	}}
}

func textMessage(text string) telegram.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Chat: &tgbotapi.Chat{ID: chatID},
		From: &tgbotapi.User{ID: userID, FirstName: "Ann"},
		Text: text,
	}}
}

func photoMessage(fileID string) telegram.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Chat:  &tgbotapi.Chat{ID: chatID},
		From:  &tgbotapi.User{ID: userID, FirstName: "Ann"},
		Photo: []tgbotapi.PhotoSize{{FileID: fileID + "-small"}, {FileID: fileID}},
	}}
}

func callback(from int64, data string) telegram.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: from},
		Data:    data,
		Message: &tgbotapi.Message{MessageID: 1, Chat: &tgbotapi.Chat{ID: chatID}},
	}}
}

func ownerOf(t *testing.T, h *Handler) string {
	t.Helper()
	id, err := h.identity(context.Background(), userID, "Ann")
	require.NoError(t, err)
	return id.ID
}

func TestFullWizardOverTelegram(t *testing.T) {
	h, tg, svc := newHandler(t, nil)
	ctx := context.Background()

	require.NoError(t, h.HandleUpdate(ctx, command("/start")))
	assert.Contains(t, tg.lastPanel().text, "Welcome to Your AI Headshot Studio")

	require.NoError(t, h.HandleUpdate(ctx, callback(userID, callbackData(userID, "ev", "start"))))
	assert.Contains(t, tg.lastPanel().text, "Upload Your Photos")

	require.NoError(t, h.HandleUpdate(ctx, photoMessage("p1")))
	require.NoError(t, h.HandleUpdate(ctx, photoMessage("p2")))
	owner := ownerOf(t, h)
	st := svc.State(owner)
	require.Len(t, st.UploadedURLs, 1, "a new batch replaces the previous one")
	assert.Contains(t, tg.lastPanel().text, "Uploaded Photos (1)")

	require.NoError(t, h.HandleUpdate(ctx, callback(userID, callbackData(userID, "ev", "continue"))))
	require.NoError(t, h.HandleUpdate(ctx, textMessage("casual please")))
	assert.Equal(t, "casual", svc.State(owner).StyleID)

	require.NoError(t, h.HandleUpdate(ctx, callback(userID, callbackData(userID, "ev", "continue"))))
	require.NoError(t, h.HandleUpdate(ctx, callback(userID, callbackData(userID, "bg", "gradient"))))
	require.NoError(t, h.HandleUpdate(ctx, callback(userID, callbackData(userID, "terms"))))
	st = svc.State(owner)
	assert.Equal(t, "gradient", st.BackgroundID)
	assert.True(t, st.TermsAccepted)

	require.NoError(t, h.HandleUpdate(ctx, callback(userID, callbackData(userID, "gen"))))
	st = svc.State(owner)
	assert.Equal(t, wizard.StepResults, st.Step)
	require.Len(t, tg.albums, 1)
	assert.Len(t, tg.albums[0], 4)
	assert.Equal(t, "img-0", string(tg.albums[0][0].Bytes))
	assert.Contains(t, tg.lastPanel().text, "Your Professional Headshots Are Ready!")
	assert.Contains(t, strings.Join(tg.texts(), "\n"), "Success!")
}

func TestGenerateWithoutTermsShowsNotice(t *testing.T) {
	h, tg, svc := newHandler(t, nil)
	ctx := context.Background()
	owner := ownerOf(t, h)

	_, _ = svc.Fire(owner, wizard.EventStart, nil)
	_, _, err := svc.Upload(ctx, owner, []upload.File{{Name: "a.jpg", ContentType: "image/jpeg", Data: []byte("a")}}, nil)
	require.NoError(t, err)
	_, _ = svc.Fire(owner, wizard.EventContinue, nil)
	_, _ = svc.SelectStyle(owner, "professional", nil)
	_, _ = svc.Fire(owner, wizard.EventContinue, nil)
	_, _ = svc.SelectBackground(owner, "office", nil)

	require.NoError(t, h.HandleUpdate(ctx, callback(userID, callbackData(userID, "gen"))))
	assert.Equal(t, wizard.StepBackground, svc.State(owner).Step)
	assert.Contains(t, strings.Join(tg.texts(), "\n"), "Terms Required")
	assert.Empty(t, tg.albums)
}

func TestGenerationFailureReturnsToBackground(t *testing.T) {
	h, tg, svc := newHandler(t, errors.New("model down"))
	ctx := context.Background()
	owner := ownerOf(t, h)

	_, _ = svc.Fire(owner, wizard.EventStart, nil)
	_, _, _ = svc.Upload(ctx, owner, []upload.File{{Name: "a.jpg", ContentType: "image/jpeg", Data: []byte("a")}}, nil)
	_, _ = svc.Fire(owner, wizard.EventContinue, nil)
	_, _ = svc.SelectStyle(owner, "professional", nil)
	_, _ = svc.Fire(owner, wizard.EventContinue, nil)
	_, _ = svc.SelectBackground(owner, "office", nil)
	_, _ = svc.AcceptTerms(owner, true, nil)

	require.NoError(t, h.HandleUpdate(ctx, callback(userID, callbackData(userID, "gen"))))
	assert.Equal(t, wizard.StepBackground, svc.State(owner).Step)
	assert.Contains(t, strings.Join(tg.texts(), "\n"), "Generation Failed")
	assert.Contains(t, tg.lastPanel().text, "Choose Background")
}

func TestPhotoDownloadFailureIsPerFile(t *testing.T) {
	h, tg, svc := newHandler(t, nil)
	tg.failFiles = map[string]bool{"p2": true}
	ctx := context.Background()
	owner := ownerOf(t, h)

	require.NoError(t, h.processPhotos(ctx, chatID, userID, auth.Identity{ID: owner}, []string{"p1", "p2"}))
	st := svc.State(owner)
	assert.Equal(t, wizard.StepUpload, st.Step, "photos on the welcome step start the wizard")
	assert.Len(t, st.UploadedURLs, 1)
	assert.Contains(t, strings.Join(tg.texts(), "\n"), "Upload Failed")
}

func TestFailedDownloadsReplaceEarlierBatch(t *testing.T) {
	h, tg, svc := newHandler(t, nil)
	ctx := context.Background()
	owner := ownerOf(t, h)
	id := auth.Identity{ID: owner}

	require.NoError(t, h.processPhotos(ctx, chatID, userID, id, []string{"p1"}))
	require.Len(t, svc.State(owner).UploadedURLs, 1)

	tg.failFiles = map[string]bool{"p1": true, "p2": true}
	require.NoError(t, h.processPhotos(ctx, chatID, userID, id, []string{"p1", "p2"}))
	st := svc.State(owner)
	assert.Empty(t, st.UploadedURLs)
	assert.Empty(t, st.Files)

	_, err := svc.Fire(owner, wizard.EventContinue, nil)
	assert.ErrorIs(t, err, wizard.ErrNoUploads)
}

func TestCallbackFromAnotherUser(t *testing.T) {
	h, tg, _ := newHandler(t, nil)
	require.NoError(t, h.HandleUpdate(context.Background(), callback(99, callbackData(userID, "ev", "start"))))
	require.Len(t, tg.answers, 1)
	assert.Contains(t, tg.answers[0], "someone else")
}

func TestInvalidNavigationAnswersCallback(t *testing.T) {
	h, tg, _ := newHandler(t, nil)
	require.NoError(t, h.HandleUpdate(context.Background(), callback(userID, callbackData(userID, "ev", "continue"))))
	require.Len(t, tg.answers, 1)
	assert.Equal(t, "That action is not available on this step.", tg.answers[0])
}

func TestLogoutForgetsWizard(t *testing.T) {
	h, _, svc := newHandler(t, nil)
	provider := h.auth
	defer svc.Watch(provider)()
	ctx := context.Background()

	require.NoError(t, h.HandleUpdate(ctx, command("/start")))
	owner := ownerOf(t, h)
	_, err := svc.Fire(owner, wizard.EventStart, nil)
	require.NoError(t, err)

	require.NoError(t, h.HandleUpdate(ctx, command("/logout")))
	assert.Equal(t, wizard.StepWelcome, svc.State(owner).Step)
}

func TestHistoryCommand(t *testing.T) {
	h, tg, _ := newHandler(t, nil)
	require.NoError(t, h.HandleUpdate(context.Background(), command("/history")))
	assert.Equal(t, []string{"You have no previous generations yet."}, tg.texts())
}

func TestPanelKeyboardCallbacksAreParsable(t *testing.T) {
	for _, step := range wizard.Steps() {
		for _, row := range panelKeyboard(userID, wizard.State{Step: step}) {
			for _, b := range row {
				assert.True(t, strings.HasPrefix(b.Data, "hs:7:"), b.Data)
				assert.LessOrEqual(t, len(b.Data), 64, "telegram callback data limit")
			}
		}
	}
}

func TestMediaGroupReportsSkippedPhotos(t *testing.T) {
	h, tg, svc := newHandler(t, nil)

	h.HandleMediaGroup(context.Background(), mediagroup.Group{
		ChatID:  chatID,
		UserID:  userID,
		FileIDs: []string{"p1", "p2"},
		Dropped: 3,
	})

	owner := ownerOf(t, h)
	assert.Len(t, svc.State(owner).UploadedURLs, 2)
	assert.Contains(t, strings.Join(tg.texts(), "\n"), "3 were skipped")
}
