package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"arch-render-studio/internal/render"
	"arch-render-studio/internal/studio"
)

const helpText = "🏛 Architectural Render Studio\n\n" +
	"Send a photo of your design, then a text prompt to render it.\n" +
	"An album of two photos sets the source and a style reference.\n\n" +
	"/preset <realistic|sketch|site_plan|section|none> - rendering style\n" +
	"/res <1K|2K|4K> - output resolution\n" +
	"/regenerate - same parameters again\n" +
	"/variations - a batch of design variations\n" +
	"/upscale - next resolution up\n" +
	"/source - render again from the source photo\n" +
	"/undo, /redo - move through the history\n" +
	"/history [n] - list renders or jump to one\n" +
	"/back - back to editing\n" +
	"/explore, /go <left|right|forward|backward|up|down>, /exit - scene explorer\n" +
	"/material <wall|floor|glass|atmosphere> <n> - add a material to the prompt\n" +
	"/save <title> | <prompt> - save a prompt\n" +
	"/prompts, /use <id> - saved prompts\n" +
	"/gallery [id] - recent renders, or load one\n" +
	"/new - new source photo, keep settings\n" +
	"/reset - start over"

const callbackPrefix = "rs"

func (h *Handler) handleCommand(ctx context.Context, chatID int64, msg *tgbotapi.Message) error {
	id := sessionID(chatID)
	args := strings.TrimSpace(msg.CommandArguments())

	switch msg.Command() {
	case "start", "help":
		return h.tg.SendText(chatID, helpText)

	case "preset":
		return h.setPreset(ctx, chatID, args)

	case "res":
		snap, err := h.studio.Dispatch(ctx, id, studio.Action{Type: studio.ActionSetResolution, Resolution: strings.ToUpper(args)})
		if err != nil {
			return h.replyError(ctx, chatID, err)
		}
		return h.tg.SendText(chatID, "✅ Resolution: "+snap.Resolution)

	case "regenerate":
		return h.generate(ctx, chatID, studio.GenerateRequest{Op: render.OpRegenerate})
	case "variations":
		return h.generate(ctx, chatID, studio.GenerateRequest{Op: render.OpVariations})
	case "upscale":
		return h.generate(ctx, chatID, studio.GenerateRequest{Op: render.OpUpscale})
	case "source":
		return h.generate(ctx, chatID, studio.GenerateRequest{Op: render.OpFromSource})
	case "go":
		return h.generate(ctx, chatID, studio.GenerateRequest{Op: render.OpNavigate, Direction: args})

	case "undo":
		return h.move(ctx, chatID, studio.Action{Type: studio.ActionUndo})
	case "redo":
		return h.move(ctx, chatID, studio.Action{Type: studio.ActionRedo})

	case "history":
		if args == "" {
			snap, err := h.studio.Open(ctx, id)
			if err != nil {
				return err
			}
			return h.tg.SendText(chatID, formatHistory(snap))
		}
		n, err := strconv.Atoi(args)
		if err != nil {
			return h.tg.SendText(chatID, "Usage: /history [n]")
		}
		return h.move(ctx, chatID, studio.Action{Type: studio.ActionSelectHistory, Index: n - 1})

	case "back":
		if _, err := h.studio.Dispatch(ctx, id, studio.Action{Type: studio.ActionGoBack}); err != nil {
			return h.replyError(ctx, chatID, err)
		}
		return h.tg.SendText(chatID, "✏️ Back to editing. Send a prompt to render again.")

	case "explore":
		return h.enterExplorer(ctx, chatID)

	case "exit":
		if _, err := h.studio.Dispatch(ctx, id, studio.Action{Type: studio.ActionExitExplorer}); err != nil {
			return h.replyError(ctx, chatID, err)
		}
		return h.tg.SendText(chatID, "✅ Explorer off.")

	case "material":
		category, n, ok := parseMaterial(args)
		if !ok {
			return h.tg.SendText(chatID, "Usage: /material <wall|floor|glass|atmosphere> <n>")
		}
		snap, err := h.studio.Dispatch(ctx, id, studio.Action{Type: studio.ActionAddMaterial, Category: category, Number: n})
		if err != nil {
			return h.replyError(ctx, chatID, err)
		}
		return h.tg.SendText(chatID, "📝 Prompt: "+snap.Prompt)

	case "save":
		title, content, ok := parseSave(args)
		if !ok {
			return h.tg.SendText(chatID, "Usage: /save <title> | <prompt>")
		}
		if _, err := h.studio.Dispatch(ctx, id, studio.Action{Type: studio.ActionSavePrompt, Title: title, Text: content}); err != nil {
			return h.replyError(ctx, chatID, err)
		}
		return h.tg.SendText(chatID, "💾 Saved \""+title+"\".")

	case "prompts":
		list, err := h.studio.SavedPrompts(ctx)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			return h.tg.SendText(chatID, "No saved prompts yet. Use /save <title> | <prompt>.")
		}
		var sb strings.Builder
		sb.WriteString("💾 Saved prompts:\n")
		for _, p := range list {
			fmt.Fprintf(&sb, "\n%s\n%s\n/use %s\n", p.Title, truncateLine(p.Content, 120), p.ID)
		}
		return h.tg.SendText(chatID, sb.String())

	case "use":
		snap, err := h.studio.Dispatch(ctx, id, studio.Action{Type: studio.ActionUsePrompt, ID: args})
		if err != nil {
			return h.replyError(ctx, chatID, err)
		}
		return h.tg.SendText(chatID, "📝 Prompt: "+snap.Prompt)

	case "gallery":
		if args != "" {
			snap, err := h.studio.Dispatch(ctx, id, studio.Action{Type: studio.ActionSelectFromGallery, ID: args})
			if err != nil {
				return h.replyError(ctx, chatID, err)
			}
			return h.sendCurrent(ctx, chatID, snap)
		}
		items, err := h.studio.Gallery(ctx, 10)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return h.tg.SendText(chatID, "The gallery is empty.")
		}
		var sb strings.Builder
		sb.WriteString("🖼 Recent renders:\n")
		for i := len(items) - 1; i >= 0; i-- {
			g := items[i]
			fmt.Fprintf(&sb, "\n%s · %s\n/gallery %s\n", g.Operation, truncateLine(g.Prompt, 60), g.ID)
		}
		return h.tg.SendText(chatID, sb.String())

	case "new":
		if _, err := h.studio.Dispatch(ctx, id, studio.Action{Type: studio.ActionNewFile}); err != nil {
			return h.replyError(ctx, chatID, err)
		}
		return h.tg.SendText(chatID, "📷 Send a new photo. Prompt, preset and resolution are kept.")

	case "reset":
		if _, err := h.studio.Dispatch(ctx, id, studio.Action{Type: studio.ActionReset}); err != nil {
			return h.replyError(ctx, chatID, err)
		}
		return h.tg.SendText(chatID, "🧹 Everything cleared. Send a photo to start.")

	default:
		return h.tg.SendText(chatID, "❌ Unknown command. See /help.")
	}
}

func (h *Handler) setPreset(ctx context.Context, chatID int64, arg string) error {
	id := sessionID(chatID)
	snap, err := h.studio.Open(ctx, id)
	if err != nil {
		return err
	}

	preset := studio.StylePreset(strings.ToLower(strings.TrimSpace(arg)))
	switch {
	case preset == "none" || preset == studio.PresetNone:
		if snap.Preset == studio.PresetNone {
			return h.tg.SendText(chatID, "🎨 No preset selected.")
		}
		// selecting the active preset again clears it
		preset = snap.Preset
	case preset == snap.Preset:
		return h.tg.SendText(chatID, "🎨 Preset: "+string(preset))
	}

	snap, err = h.studio.Dispatch(ctx, id, studio.Action{Type: studio.ActionSelectPreset, Preset: preset})
	if err != nil {
		return h.replyError(ctx, chatID, err)
	}
	if snap.Preset == studio.PresetNone {
		return h.tg.SendText(chatID, "🎨 Preset cleared.")
	}
	return h.tg.SendText(chatID, "🎨 Preset: "+string(snap.Preset)+". Any style reference was removed.")
}

func (h *Handler) enterExplorer(ctx context.Context, chatID int64) error {
	snap, err := h.studio.Dispatch(ctx, sessionID(chatID), studio.Action{Type: studio.ActionEnterExplorer})
	if err != nil {
		return h.replyError(ctx, chatID, err)
	}
	_, err = h.tg.SendTextWithKeyboard(chatID, "🧭 Explorer on. Move with the arrows or /go <direction>, leave with /exit.", resultKeyboard(snap))
	return err
}

func (h *Handler) move(ctx context.Context, chatID int64, a studio.Action) error {
	snap, err := h.studio.Dispatch(ctx, sessionID(chatID), a)
	if err != nil {
		return h.replyError(ctx, chatID, err)
	}
	return h.sendCurrent(ctx, chatID, snap)
}

func (h *Handler) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) error {
	if q == nil || q.Message == nil {
		return nil
	}
	action, ok := strings.CutPrefix(strings.TrimSpace(q.Data), callbackPrefix+":")
	if !ok {
		return nil
	}
	chatID := q.Message.Chat.ID

	switch action {
	case "regenerate", "variations", "upscale":
		_ = h.tg.AnswerCallback(q.ID, "Rendering…", false)
		return h.generate(ctx, chatID, studio.GenerateRequest{Op: render.Operation(action)})
	case "undo":
		_ = h.tg.AnswerCallback(q.ID, "", false)
		return h.move(ctx, chatID, studio.Action{Type: studio.ActionUndo})
	case "redo":
		_ = h.tg.AnswerCallback(q.ID, "", false)
		return h.move(ctx, chatID, studio.Action{Type: studio.ActionRedo})
	case "explore":
		_ = h.tg.AnswerCallback(q.ID, "", false)
		return h.enterExplorer(ctx, chatID)
	default:
		if dir, ok := strings.CutPrefix(action, "go:"); ok {
			_ = h.tg.AnswerCallback(q.ID, "Moving "+dir+"…", false)
			return h.generate(ctx, chatID, studio.GenerateRequest{Op: render.OpNavigate, Direction: dir})
		}
		_ = h.tg.AnswerCallback(q.ID, "Unknown action", true)
		return nil
	}
}

func resultKeyboard(snap studio.Snapshot) tgbotapi.InlineKeyboardMarkup {
	if snap.View == studio.ViewExplorer {
		return tgbotapi.NewInlineKeyboardMarkup(
			[]tgbotapi.InlineKeyboardButton{
				tgbotapi.NewInlineKeyboardButtonData("⬆️", cb("go", "up")),
				tgbotapi.NewInlineKeyboardButtonData("⏫ Forward", cb("go", "forward")),
			},
			[]tgbotapi.InlineKeyboardButton{
				tgbotapi.NewInlineKeyboardButtonData("⬅️", cb("go", "left")),
				tgbotapi.NewInlineKeyboardButtonData("➡️", cb("go", "right")),
			},
			[]tgbotapi.InlineKeyboardButton{
				tgbotapi.NewInlineKeyboardButtonData("⬇️", cb("go", "down")),
				tgbotapi.NewInlineKeyboardButtonData("⏬ Back", cb("go", "backward")),
			},
		)
	}

	rows := [][]tgbotapi.InlineKeyboardButton{
		{
			tgbotapi.NewInlineKeyboardButtonData("🔁 Regenerate", cb("regenerate")),
			tgbotapi.NewInlineKeyboardButtonData("🎲 Variations", cb("variations")),
			tgbotapi.NewInlineKeyboardButtonData("⬆️ Upscale", cb("upscale")),
		},
	}
	var nav []tgbotapi.InlineKeyboardButton
	if snap.CanUndo {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("↩️ Undo", cb("undo")))
	}
	if snap.CanRedo {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("↪️ Redo", cb("redo")))
	}
	nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("🧭 Explore", cb("explore")))
	rows = append(rows, nav)

	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func cb(parts ...string) string {
	return callbackPrefix + ":" + strings.Join(parts, ":")
}

func entryCaption(snap studio.Snapshot, index int) string {
	e := snap.History[index]
	caption := fmt.Sprintf("%s · %d/%d", e.Operation, index+1, len(snap.History))
	if p := strings.TrimSpace(e.Prompt); p != "" {
		caption += "\n" + truncateLine(p, 200)
	}
	return caption
}

func formatHistory(snap studio.Snapshot) string {
	if len(snap.History) == 0 {
		return "No renders yet."
	}
	var sb strings.Builder
	sb.WriteString("🕘 History:\n")
	for i, e := range snap.History {
		marker := "  "
		if i == snap.Index {
			marker = "▶ "
		}
		fmt.Fprintf(&sb, "%s%d. %s", marker, i+1, e.Operation)
		if p := strings.TrimSpace(e.Prompt); p != "" {
			sb.WriteString(" · " + truncateLine(p, 40))
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\nJump with /history <n>.")
	return sb.String()
}

func parseMaterial(args string) (string, int, bool) {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		return "", 0, false
	}
	n, err := strconv.Atoi(fields[1])
	if err != nil || n < 1 {
		return "", 0, false
	}
	return strings.ToLower(fields[0]), n, true
}

func parseSave(args string) (string, string, bool) {
	title, content, ok := strings.Cut(args, "|")
	title = strings.TrimSpace(title)
	content = strings.TrimSpace(content)
	if !ok || title == "" || content == "" {
		return "", "", false
	}
	return title, content, true
}

func truncateLine(s string, limit int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if limit <= 0 || len(runes) <= limit {
		return s
	}
	return strings.TrimSpace(string(runes[:limit])) + "…"
}
