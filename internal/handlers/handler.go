package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/auth"
	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/mediagroup"
	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/notify"
	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/storage"
	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/studio"
	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/telegram"
)

// Messenger is the part of the Telegram client the bot talks through.
type Messenger interface {
	SendText(chatID int64, text string) error
	SendTextWithKeyboard(chatID int64, text string, kb telegram.Keyboard) (int, error)
	EditTextWithKeyboard(chatID int64, messageID int, text string, kb telegram.Keyboard) error
	AnswerCallback(callbackID string, text string, alert bool) error
	SendTyping(chatID int64)
	SendAlbum(chatID int64, photos []telegram.Photo, caption string) error
	DownloadFile(ctx context.Context, fileID string) ([]byte, string, error)
}

type Options struct {
	Telegram Messenger
	Studio   *studio.Service
	Auth     auth.Provider
	Storage  storage.Store
	Logger   *slog.Logger
}

type Handler struct {
	tg         Messenger
	studio     *studio.Service
	auth       auth.Provider
	storage    storage.Store
	logger     *slog.Logger
	aggregator *mediagroup.Aggregator

	mu     sync.Mutex
	tokens map[int64]string
	panels map[int64]panel
}

// panel is the wizard message a user last interacted with.
type panel struct {
	chatID    int64
	messageID int
}

func New(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		tg:      opts.Telegram,
		studio:  opts.Studio,
		auth:    opts.Auth,
		storage: opts.Storage,
		logger:  logger,
		tokens:  make(map[int64]string),
		panels:  make(map[int64]panel),
	}
}

func (h *Handler) SetMediaGroupAggregator(ag *mediagroup.Aggregator) {
	h.aggregator = ag
}

func (h *Handler) HandleUpdate(ctx context.Context, update telegram.Update) error {
	if update.CallbackQuery != nil {
		return h.handleCallback(ctx, update.CallbackQuery)
	}
	if update.Message == nil || update.Message.From == nil {
		return nil
	}

	msg := update.Message
	chatID := msg.Chat.ID
	from := msg.From

	if msg.IsCommand() {
		return h.handleCommand(ctx, chatID, from, msg)
	}

	if len(msg.Photo) > 0 {
		return h.handlePhoto(ctx, chatID, from, msg)
	}

	if msg.Text != "" {
		return h.handleText(ctx, chatID, from, msg.Text)
	}

	return nil
}

func (h *Handler) HandleMediaGroup(ctx context.Context, group mediagroup.Group) {
	id, err := h.identity(ctx, group.UserID, group.Username)
	if err != nil {
		h.logger.Error("media group sign in failed", "err", err)
		return
	}
	if group.Dropped > 0 {
		msg := fmt.Sprintf("Only the first %d photos of an album are used; %d were skipped.", len(group.FileIDs), group.Dropped)
		if err := h.tg.SendText(group.ChatID, msg); err != nil {
			h.logger.Warn("send notice failed", "err", err)
		}
	}
	if err := h.processPhotos(ctx, group.ChatID, group.UserID, id, group.FileIDs); err != nil {
		h.logger.Error("media group processing failed", "err", err)
	}
}

func (h *Handler) handleCommand(ctx context.Context, chatID int64, from *tgbotapi.User, msg *tgbotapi.Message) error {
	switch msg.Command() {
	case "start":
		id, err := h.identity(ctx, from.ID, displayName(from))
		if err != nil {
			return err
		}
		return h.sendPanel(chatID, from.ID, h.studio.State(id.ID))
	case "help":
		return h.tg.SendText(chatID,
			"📸 Super Headshot AI\n\n"+
				"/start - Open the headshot studio\n"+
				"/history - Your previous generations\n"+
				"/logout - Sign out and clear your progress\n\n"+
				"Send photos of yourself on the upload step. You can also type a style or background name to pick it.",
		)
	case "history":
		id, err := h.identity(ctx, from.ID, displayName(from))
		if err != nil {
			return err
		}
		return h.tg.SendText(chatID, historyText(h.studio.History(ctx, id.ID)))
	case "logout":
		h.mu.Lock()
		token, ok := h.tokens[from.ID]
		delete(h.tokens, from.ID)
		delete(h.panels, from.ID)
		h.mu.Unlock()
		if ok {
			if err := h.auth.Logout(ctx, token); err != nil && !errors.Is(err, auth.ErrUnauthenticated) {
				return err
			}
		}
		return h.tg.SendText(chatID, "👋 Signed out. Send /start to begin again.")
	default:
		return h.tg.SendText(chatID, "❌ Unknown command. Try /help.")
	}
}

func (h *Handler) handleText(ctx context.Context, chatID int64, from *tgbotapi.User, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	id, err := h.identity(ctx, from.ID, displayName(from))
	if err != nil {
		return err
	}

	sel, ok := matchSelection(h.studio.State(id.ID).Step, text)
	if !ok {
		return h.tg.SendText(chatID, "Use the buttons below the studio message, or send /start to open it.")
	}

	var notices notify.Collector
	st, err := sel.apply(h.studio, id.ID, &notices)
	h.sendNotices(chatID, notices.Notices())
	if err != nil {
		return h.tg.SendText(chatID, "❌ "+describe(err))
	}
	return h.refreshPanel(chatID, from.ID, st)
}

func (h *Handler) handlePhoto(ctx context.Context, chatID int64, from *tgbotapi.User, msg *tgbotapi.Message) error {
	photo := msg.Photo[len(msg.Photo)-1]
	fileID := photo.FileID

	if msg.MediaGroupID != "" && h.aggregator != nil {
		h.aggregator.Add(mediagroup.Item{
			ChatID:       chatID,
			UserID:       from.ID,
			Username:     displayName(from),
			MediaGroupID: msg.MediaGroupID,
			Caption:      msg.Caption,
			FileID:       fileID,
		})
		return nil
	}

	id, err := h.identity(ctx, from.ID, displayName(from))
	if err != nil {
		return err
	}
	return h.processPhotos(ctx, chatID, from.ID, id, []string{fileID})
}

// identity signs the Telegram user in on first contact and reuses the
// session afterwards.
func (h *Handler) identity(ctx context.Context, userID int64, name string) (auth.Identity, error) {
	h.mu.Lock()
	token := h.tokens[userID]
	h.mu.Unlock()

	if token != "" {
		id, err := h.auth.Authenticate(ctx, token)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, auth.ErrUnauthenticated) {
			return auth.Identity{}, err
		}
	}

	id, token, err := h.auth.Login(ctx, auth.Credentials{
		Email:       fmt.Sprintf("%d@telegram.invalid", userID),
		DisplayName: name,
	})
	if err != nil {
		return auth.Identity{}, fmt.Errorf("telegram sign in: %w", err)
	}

	h.mu.Lock()
	h.tokens[userID] = token
	h.mu.Unlock()
	return id, nil
}

func (h *Handler) sendNotices(chatID int64, notices []notify.Notice) {
	for _, n := range notices {
		prefix := "ℹ️"
		if n.Variant == notify.VariantDestructive {
			prefix = "⚠️"
		}
		if err := h.tg.SendText(chatID, fmt.Sprintf("%s %s\n%s", prefix, n.Title, n.Description)); err != nil {
			h.logger.Warn("send notice failed", "err", err)
		}
	}
}

func displayName(u *tgbotapi.User) string {
	if u == nil {
		return ""
	}
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	if name == "" {
		name = u.UserName
	}
	return name
}
