package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/errgroup"

	"arch-render-studio/internal/album"
	"arch-render-studio/internal/render"
	"arch-render-studio/internal/studio"
	"arch-render-studio/internal/telegram"
)

type Options struct {
	Telegram *telegram.Client
	Studio   *studio.Studio
	Logger   *slog.Logger
}

type Handler struct {
	tg         *telegram.Client
	studio     *studio.Studio
	logger     *slog.Logger
	aggregator *album.Aggregator
}

func New(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		tg:     opts.Telegram,
		studio: opts.Studio,
		logger: logger,
	}
}

func (h *Handler) SetAlbumAggregator(ag *album.Aggregator) {
	h.aggregator = ag
}

func sessionID(chatID int64) string {
	return fmt.Sprintf("tg-%d", chatID)
}

func (h *Handler) HandleUpdate(ctx context.Context, update telegram.Update) error {
	if update.CallbackQuery != nil {
		return h.handleCallback(ctx, update.CallbackQuery)
	}
	if update.Message == nil {
		return nil
	}

	msg := update.Message
	chatID := msg.Chat.ID

	if msg.IsCommand() {
		return h.handleCommand(ctx, chatID, msg)
	}

	if len(msg.Photo) > 0 {
		return h.handlePhoto(ctx, chatID, msg)
	}

	if msg.Text != "" {
		return h.handleText(ctx, chatID, msg.Text)
	}

	return nil
}

// HandleAlbum treats the first photo as the source and the second as the
// style reference. A caption becomes the prompt and starts a render.
func (h *Handler) HandleAlbum(ctx context.Context, al album.Album) {
	if err := h.processAlbum(ctx, al); err != nil {
		h.logger.Error("album processing failed", "chat_id", al.ChatID, "err", err)
	}
}

func (h *Handler) processAlbum(ctx context.Context, al album.Album) error {
	chatID := al.ChatID
	fileIDs := []string{al.Source()}
	if ref := al.StyleReference(); ref != "" {
		fileIDs = append(fileIDs, ref)
	}
	if len(al.FileIDs) > 2 {
		_ = h.tg.SendText(chatID, "ℹ️ Only the first two photos are used: source and style reference.")
	}

	uploads, err := h.download(ctx, fileIDs)
	if err != nil {
		h.logger.Error("photo download failed", "chat_id", chatID, "err", err)
		return h.tg.SendText(chatID, "❌ Could not download the photos.")
	}

	id := sessionID(chatID)
	if _, err := h.studio.Dispatch(ctx, id, studio.Action{Type: studio.ActionSelectFile, Upload: uploads[0]}); err != nil {
		return h.replyError(ctx, chatID, err)
	}
	if len(uploads) > 1 {
		if _, err := h.studio.Dispatch(ctx, id, studio.Action{Type: studio.ActionSelectStyleFile, Upload: uploads[1]}); err != nil {
			return h.replyError(ctx, chatID, err)
		}
	}

	if caption := strings.TrimSpace(al.Caption); caption != "" {
		return h.promptAndRender(ctx, chatID, caption)
	}
	if len(uploads) > 1 {
		return h.tg.SendText(chatID, "✅ Source and style reference set. Send a prompt to render.")
	}
	return h.tg.SendText(chatID, "✅ Source set. Send a prompt to render.")
}

func (h *Handler) handlePhoto(ctx context.Context, chatID int64, msg *tgbotapi.Message) error {
	photo := msg.Photo[len(msg.Photo)-1]

	if msg.MediaGroupID != "" && h.aggregator != nil {
		userID := int64(0)
		if msg.From != nil {
			userID = msg.From.ID
		}
		h.aggregator.Add(album.Item{
			ChatID:       chatID,
			UserID:       userID,
			MessageID:    msg.MessageID,
			MediaGroupID: msg.MediaGroupID,
			Caption:      msg.Caption,
			FileID:       photo.FileID,
		})
		return nil
	}

	return h.processAlbum(ctx, album.Album{
		ChatID:  chatID,
		Caption: msg.Caption,
		FileIDs: []string{photo.FileID},
	})
}

func (h *Handler) handleText(ctx context.Context, chatID int64, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return h.promptAndRender(ctx, chatID, text)
}

func (h *Handler) promptAndRender(ctx context.Context, chatID int64, text string) error {
	id := sessionID(chatID)
	if _, err := h.studio.Dispatch(ctx, id, studio.Action{Type: studio.ActionSetPrompt, Text: text}); err != nil {
		return h.replyError(ctx, chatID, err)
	}
	return h.generate(ctx, chatID, studio.GenerateRequest{Op: render.OpRender})
}

// generate runs op and sends every image it added to the history.
func (h *Handler) generate(ctx context.Context, chatID int64, req studio.GenerateRequest) error {
	id := sessionID(chatID)

	before, err := h.studio.Open(ctx, id)
	if err != nil {
		return err
	}

	h.tg.SendTyping(chatID)
	snap, err := h.studio.Generate(ctx, id, req)
	if err != nil {
		return h.replyError(ctx, chatID, err)
	}

	count := max(newEntries(before, snap), 1)
	for i := max(snap.Index-count+1, 0); i <= snap.Index; i++ {
		if err := h.sendEntry(ctx, chatID, snap, i, i == snap.Index); err != nil {
			return err
		}
	}
	return nil
}

// newEntries counts the entries ending at the cursor of after that before
// did not have. A full history evicts from the front, so the cursor
// distance alone undercounts.
func newEntries(before, after studio.Snapshot) int {
	seen := make(map[string]struct{}, len(before.History))
	for _, e := range before.History {
		seen[e.ImageID] = struct{}{}
	}
	n := 0
	for i := after.Index; i >= 0; i-- {
		if _, ok := seen[after.History[i].ImageID]; ok {
			break
		}
		n++
	}
	return n
}

// sendCurrent sends the image under the history cursor.
func (h *Handler) sendCurrent(ctx context.Context, chatID int64, snap studio.Snapshot) error {
	if snap.Result == nil {
		return h.tg.SendText(chatID, "No render yet. Send a photo and a prompt.")
	}
	return h.sendEntry(ctx, chatID, snap, snap.Index, true)
}

func (h *Handler) sendEntry(ctx context.Context, chatID int64, snap studio.Snapshot, index int, withKeyboard bool) error {
	entry := snap.History[index]
	img, err := h.studio.Image(ctx, entry.ImageID)
	if err != nil {
		return err
	}

	var kb *telegram.Keyboard
	if withKeyboard {
		k := resultKeyboard(snap)
		kb = &k
	}
	return h.tg.SendPhoto(chatID, img.Data, img.MimeType, entryCaption(snap, index), kb)
}

func (h *Handler) download(ctx context.Context, fileIDs []string) ([]*studio.Upload, error) {
	uploads := make([]*studio.Upload, len(fileIDs))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, fileID := range fileIDs {
		eg.Go(func() error {
			data, mimeType, err := h.tg.DownloadFile(egCtx, fileID)
			if err != nil {
				return err
			}
			uploads[i] = &studio.Upload{Name: fileID, MimeType: mimeType, Data: data}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return uploads, nil
}

// replyError reports err to the chat. Generation failures were already
// written to the error slot; once shown here the slot is dismissed.
func (h *Handler) replyError(ctx context.Context, chatID int64, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, studio.ErrGenerationFailed) {
		h.logger.Warn("generation failed", "chat_id", chatID, "err", err)
		if _, derr := h.studio.Dispatch(ctx, sessionID(chatID), studio.Action{Type: studio.ActionDismissError}); derr != nil {
			h.logger.Warn("dismiss error failed", "chat_id", chatID, "err", derr)
		}
	}
	return h.tg.SendText(chatID, userMessage(err))
}

func userMessage(err error) string {
	switch {
	case errors.Is(err, studio.ErrBusy):
		return "⏳ Still rendering, please wait for the current image."
	case errors.Is(err, studio.ErrNoSource):
		return "📷 Send a photo of your design first."
	case errors.Is(err, studio.ErrNoResult):
		return "🖼 Nothing rendered yet. Send a prompt to render."
	case errors.Is(err, studio.ErrNotExplorer):
		return "🧭 Explorer is off. Use /explore first."
	case errors.Is(err, studio.ErrInvalidIndex):
		return "❌ No such history entry. See /history."
	case errors.Is(err, studio.ErrDiscarded):
		return "♻️ The session was reset while rendering; that image was dropped."
	case errors.Is(err, studio.ErrNotFound):
		return "❌ Not found."
	case errors.Is(err, studio.ErrRestoring):
		return "⏳ Restoring your session, try again in a moment."
	case errors.Is(err, studio.ErrGenerationFailed):
		return "❌ " + strings.TrimPrefix(err.Error(), studio.ErrGenerationFailed.Error()+": ")
	case errors.Is(err, studio.ErrInvalidAction):
		return "❌ " + strings.TrimPrefix(err.Error(), studio.ErrInvalidAction.Error()+": ")
	default:
		return "❌ Something went wrong. Please try again."
	}
}
