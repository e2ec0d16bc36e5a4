package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/errgroup"

	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/auth"
	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/history"
	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/notify"
	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/prompt"
	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/telegram"
	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/upload"
	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/wizard"
)

const callbackPrefix = "hs"

// progressRefresh is how often the panel is redrawn while generating.
var progressRefresh = 2 * time.Second

func callbackData(userID int64, action string, args ...string) string {
	parts := append([]string{callbackPrefix, strconv.FormatInt(userID, 10), action}, args...)
	return strings.Join(parts, ":")
}

func (h *Handler) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) error {
	if q == nil || q.Message == nil || q.From == nil {
		return nil
	}
	data := strings.TrimSpace(q.Data)
	if !strings.HasPrefix(data, callbackPrefix+":") {
		return nil
	}

	parts := strings.Split(data, ":")
	if len(parts) < 3 {
		return nil
	}

	ownerID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return nil
	}
	if ownerID != q.From.ID {
		_ = h.tg.AnswerCallback(q.ID, "This studio belongs to someone else.", true)
		return nil
	}

	id, err := h.identity(ctx, ownerID, displayName(q.From))
	if err != nil {
		return err
	}

	action := parts[2]
	args := parts[3:]
	chatID := q.Message.Chat.ID
	h.setPanel(ownerID, panel{chatID: chatID, messageID: q.Message.MessageID})

	var notices notify.Collector
	var st wizard.State

	switch action {
	case "ev":
		if len(args) < 1 {
			return nil
		}
		ev, ok := wizard.ParseEvent(args[0])
		if !ok {
			return nil
		}
		st, err = h.studio.Fire(id.ID, ev, &notices)
	case "style":
		if len(args) < 1 {
			return nil
		}
		st, err = h.studio.SelectStyle(id.ID, args[0], &notices)
	case "bg":
		if len(args) < 1 {
			return nil
		}
		st, err = h.studio.SelectBackground(id.ID, args[0], &notices)
	case "terms":
		current := h.studio.State(id.ID)
		st, err = h.studio.AcceptTerms(id.ID, !current.TermsAccepted, &notices)
	case "gen":
		_ = h.tg.AnswerCallback(q.ID, "Generating…", false)
		return h.generate(ctx, chatID, ownerID, id)
	case "hist":
		_ = h.tg.AnswerCallback(q.ID, "", false)
		return h.tg.SendText(chatID, historyText(h.studio.History(ctx, id.ID)))
	default:
		return nil
	}

	toast := ""
	if list := notices.Notices(); len(list) > 0 {
		toast = list[0].Title + ": " + list[0].Description
	} else if err != nil {
		toast = describe(err)
	}
	_ = h.tg.AnswerCallback(q.ID, toast, toast != "")

	return h.refreshPanel(chatID, ownerID, st)
}

func (h *Handler) processPhotos(ctx context.Context, chatID int64, userID int64, id auth.Identity, fileIDs []string) error {
	st := h.studio.State(id.ID)
	if st.Step == wizard.StepWelcome {
		var err error
		if st, err = h.studio.Fire(id.ID, wizard.EventStart, nil); err != nil {
			return err
		}
	}
	if st.Step != wizard.StepUpload {
		return h.tg.SendText(chatID, "Photos are only accepted on the upload step. Go back to it or tap “Create more” to start over.")
	}

	h.tg.SendTyping(chatID)

	files := make([]upload.File, len(fileIDs))
	failed := make([]bool, len(fileIDs))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(4)
	for i, fileID := range fileIDs {
		eg.Go(func() error {
			data, mimeType, err := h.tg.DownloadFile(egCtx, fileID)
			if err != nil {
				h.logger.Warn("photo download failed", "err", err, "file_id", fileID)
				failed[i] = true
				return nil
			}
			files[i] = upload.File{
				Name:        fmt.Sprintf("telegram-%d.jpg", i+1),
				ContentType: mimeType,
				Data:        data,
			}
			return nil
		})
	}
	_ = eg.Wait()

	var notices notify.Collector
	batch := make([]upload.File, 0, len(files))
	for i, f := range files {
		if failed[i] {
			notices.Notify(notify.UploadFailed)
			continue
		}
		batch = append(batch, f)
	}

	if len(batch) == 0 {
		h.sendNotices(chatID, notices.Notices())
		st, err := h.studio.ClearUploads(id.ID)
		if err != nil {
			return err
		}
		return h.refreshPanel(chatID, userID, st)
	}

	st, res, err := h.studio.Upload(ctx, id.ID, batch, &notices)
	h.sendNotices(chatID, notices.Notices())
	if err != nil {
		h.logger.Error("photo upload failed", "err", err)
		return h.tg.SendText(chatID, "❌ "+describe(err))
	}

	h.logger.Info("photos uploaded", "user_id", id.ID, "uploaded", len(res.URLs), "failed", len(res.Failed))
	return h.refreshPanel(chatID, userID, st)
}

func (h *Handler) generate(ctx context.Context, chatID int64, userID int64, id auth.Identity) error {
	p, hasPanel := h.panel(userID)

	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(progressRefresh)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				st := h.studio.State(id.ID)
				if st.Step != wizard.StepGenerate || !hasPanel {
					continue
				}
				if err := h.tg.EditTextWithKeyboard(p.chatID, p.messageID, panelText(st), nil); err != nil {
					h.logger.Debug("progress redraw failed", "err", err)
				}
			}
		}
	}()

	if hasPanel {
		generating := h.studio.State(id.ID)
		if generating.Can(wizard.EventGenerate) == nil {
			generating.Step = wizard.StepGenerate
			generating.Progress = 0
			_ = h.tg.EditTextWithKeyboard(p.chatID, p.messageID, panelText(generating), nil)
		}
	}

	var notices notify.Collector
	st, err := h.studio.Generate(ctx, id.ID, &notices)
	close(done)
	<-stopped

	h.sendNotices(chatID, notices.Notices())
	if err != nil {
		h.logger.Error("generation failed", "err", err, "user_id", id.ID)
		return h.refreshPanel(chatID, userID, st)
	}

	if err := h.sendResults(ctx, chatID, st.Results); err != nil {
		h.logger.Error("sending results failed", "err", err)
		_ = h.tg.SendText(chatID, "Your headshots are ready but could not be sent here:\n"+strings.Join(st.Results, "\n"))
	}
	return h.refreshPanel(chatID, userID, st)
}

func (h *Handler) sendResults(ctx context.Context, chatID int64, urls []string) error {
	photos := make([]telegram.Photo, len(urls))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, u := range urls {
		eg.Go(func() error {
			data, _, err := h.storage.Fetch(egCtx, u)
			if err != nil {
				return err
			}
			photos[i] = telegram.Photo{Name: fmt.Sprintf("headshot-%d.png", i+1), Bytes: data}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}
	return h.tg.SendAlbum(chatID, photos, "✅ Your professional headshots are ready!")
}

// refreshPanel redraws the user's wizard message in place, or sends a new
// one when there is none yet or it lives in another chat.
func (h *Handler) refreshPanel(chatID int64, userID int64, st wizard.State) error {
	if p, ok := h.panel(userID); ok && p.chatID == chatID {
		err := h.tg.EditTextWithKeyboard(p.chatID, p.messageID, panelText(st), panelKeyboard(userID, st))
		if err == nil {
			return nil
		}
		h.logger.Debug("panel edit failed, sending a new one", "err", err)
	}
	return h.sendPanel(chatID, userID, st)
}

func (h *Handler) sendPanel(chatID int64, userID int64, st wizard.State) error {
	msgID, err := h.tg.SendTextWithKeyboard(chatID, panelText(st), panelKeyboard(userID, st))
	if err != nil {
		return err
	}
	h.setPanel(userID, panel{chatID: chatID, messageID: msgID})
	return nil
}

func (h *Handler) panel(userID int64) (panel, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.panels[userID]
	return p, ok
}

func (h *Handler) setPanel(userID int64, p panel) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.panels[userID] = p
}

func panelText(st wizard.State) string {
	var b strings.Builder
	switch st.Step {
	case wizard.StepWelcome:
		b.WriteString("✨ Welcome to Your AI Headshot Studio\n\n")
		b.WriteString("Transform your photos into professional headshots in just a few simple steps.\n\n")
		b.WriteString("1. Upload Photos\n2. Choose Style\n3. Download")
	case wizard.StepUpload:
		b.WriteString("📤 Upload Your Photos\n\n")
		b.WriteString("Send 1-5 high-quality photos of yourself. Best results with clear, well-lit photos. An album works too.\n\n")
		if len(st.UploadedURLs) > 0 {
			b.WriteString(fmt.Sprintf("Uploaded Photos (%d)", len(st.UploadedURLs)))
		} else {
			b.WriteString("No photos uploaded yet.")
		}
	case wizard.StepStyle:
		b.WriteString("🎨 Choose Your Style\n\n")
		b.WriteString("Select the style that best fits your professional needs.\n")
		writeOptions(&b, prompt.Styles(), st.StyleID)
	case wizard.StepBackground:
		b.WriteString("🖼 Choose Background\n\n")
		b.WriteString("Select the background setting for your headshots.\n")
		writeOptions(&b, prompt.Backgrounds(), st.BackgroundID)
		b.WriteString("\nI agree to the terms and conditions and understand that AI-generated images may not be perfect and should be reviewed before professional use.")
	case wizard.StepGenerate:
		b.WriteString("⏳ Creating Your Professional Headshots\n\n")
		b.WriteString("Our AI is working its magic. This usually takes 1-2 minutes.\n\n")
		b.WriteString(fmt.Sprintf("%s %d%% complete", progressBar(st.Progress), st.Progress))
	case wizard.StepResults:
		b.WriteString("🎉 Your Professional Headshots Are Ready!\n\n")
		b.WriteString(fmt.Sprintf("%d images generated. Save your favorites or generate new ones with different styles.", len(st.Results)))
	}
	return b.String()
}

func writeOptions(b *strings.Builder, options []prompt.Option, selected string) {
	for _, o := range options {
		mark := "▫️"
		if o.ID == selected {
			mark = "✅"
		}
		b.WriteString(fmt.Sprintf("\n%s %s: %s", mark, o.Name, o.Description))
	}
}

func progressBar(p int) string {
	filled := p / 10
	if filled < 0 {
		filled = 0
	}
	if filled > 10 {
		filled = 10
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", 10-filled)
}

func panelKeyboard(userID int64, st wizard.State) telegram.Keyboard {
	ev := func(text string, e wizard.Event) telegram.Button {
		return telegram.Button{Text: text, Data: callbackData(userID, "ev", string(e))}
	}

	switch st.Step {
	case wizard.StepWelcome:
		return telegram.Keyboard{
			{ev("🚀 Start", wizard.EventStart)},
			{{Text: "🕘 Previous generations", Data: callbackData(userID, "hist")}},
		}
	case wizard.StepUpload:
		return telegram.Keyboard{{ev("⬅️ Back", wizard.EventBack), ev("Continue ➡️", wizard.EventContinue)}}
	case wizard.StepStyle:
		kb := optionRows(userID, "style", prompt.Styles(), st.StyleID)
		return append(kb, []telegram.Button{ev("⬅️ Back", wizard.EventBack), ev("Continue ➡️", wizard.EventContinue)})
	case wizard.StepBackground:
		kb := optionRows(userID, "bg", prompt.Backgrounds(), st.BackgroundID)
		terms := "☐ I agree to the terms"
		if st.TermsAccepted {
			terms = "☑️ I agree to the terms"
		}
		kb = append(kb, []telegram.Button{{Text: terms, Data: callbackData(userID, "terms")}})
		return append(kb, []telegram.Button{
			ev("⬅️ Back", wizard.EventBack),
			{Text: "✨ Generate Headshots", Data: callbackData(userID, "gen")},
		})
	case wizard.StepResults:
		return telegram.Keyboard{{ev("➕ Create more", wizard.EventCreateMore), ev("🏠 Back to dashboard", wizard.EventBackToDashboard)}}
	}
	return nil
}

func optionRows(userID int64, action string, options []prompt.Option, selected string) telegram.Keyboard {
	var kb telegram.Keyboard
	var row []telegram.Button
	for _, o := range options {
		text := o.Name
		if o.ID == selected {
			text = "✅ " + text
		}
		row = append(row, telegram.Button{Text: text, Data: callbackData(userID, action, o.ID)})
		if len(row) == 2 {
			kb = append(kb, row)
			row = nil
		}
	}
	if len(row) > 0 {
		kb = append(kb, row)
	}
	return kb
}

func historyText(entries []history.Entry) string {
	if len(entries) == 0 {
		return "You have no previous generations yet."
	}

	var b strings.Builder
	b.WriteString("🕘 Your Previous Generations\n")
	for _, e := range entries {
		b.WriteString(fmt.Sprintf("\n• %s, %s (%s) %s", e.StyleName, e.BackgroundName, e.Status, e.CreatedAt.Format("Jan 2, 2006")))
		for _, u := range e.Previews {
			b.WriteString("\n   " + u)
		}
		if extra := e.TotalImages - len(e.Previews); extra > 0 {
			b.WriteString(fmt.Sprintf("\n   +%d more", extra))
		}
	}
	return b.String()
}
