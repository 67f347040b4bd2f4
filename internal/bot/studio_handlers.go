package bot

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/raine/kalamitra/internal/channels"
	"github.com/raine/kalamitra/internal/listing"
	"github.com/raine/kalamitra/internal/llm"
	"github.com/raine/kalamitra/internal/studio"
	"github.com/rs/zerolog/log"
)

// --- Onboarding ---

func (b *Bot) handleStartCommand(session *UserSession) {
	needs, err := b.workspace(session).NeedsOnboarding()
	if err != nil {
		log.Warn().Err(err).Int64("userId", session.userId).Msg("failed to read onboarding flag")
	}
	if !needs {
		session.reply(MsgStartPrompt)
		return
	}

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(MsgOnboardingButton, "onboarding:done"),
		),
	)
	session.replyWithKeyboard(keyboard, MsgOnboarding)
}

func (b *Bot) handleOnboardingDone(session *UserSession) {
	if err := b.workspace(session).FinishOnboarding(); err != nil {
		session.replyWithError(err)
		return
	}
	session.reply(MsgOnboardingDone)
}

// --- Upload ---

// handlePhotoMessage uploads a photo, or an image sent as a file, as the
// product photo. A caption becomes the product story.
func (b *Bot) handlePhotoMessage(ctx context.Context, session *UserSession, message *tgbotapi.Message) {
	var fileID, mimeType string
	switch {
	case len(message.Photo) > 0:
		// Telegram sends several sizes, largest last. Photos are always JPEG.
		fileID = message.Photo[len(message.Photo)-1].FileID
		mimeType = "image/jpeg"
	case message.Document != nil && strings.HasPrefix(message.Document.MimeType, "image/"):
		if message.Document.FileSize > studio.MaxUploadSize {
			session.reply(studio.MsgFileTooLarge)
			return
		}
		fileID = message.Document.FileID
		mimeType = message.Document.MimeType
	default:
		session.reply(MsgUnsupportedFile)
		return
	}

	LogUser(session.userId, "photo %s", fileID)
	data, err := downloadFileID(ctx, b.tg.GetFileDirectURL, fileID)
	if err != nil {
		log.Error().Err(err).Int64("userId", session.userId).Msg("failed to download photo")
		LogError(session.userId, "download: %v", err)
		session.reply(MsgDownloadFailed)
		return
	}

	if err := b.workspace(session).Upload(data, mimeType); err != nil {
		session.replyWithStudioError(err)
		return
	}
	StartActivityLog(session.userId)
	LogUser(session.userId, "uploaded %s (%d bytes)", mimeType, len(data))

	if caption := strings.TrimSpace(message.Caption); caption != "" {
		session.draft.Story = caption
	}
	session.reply(MsgImageUploaded)
}

// --- Photoshoot settings ---

func modeKeyboard() tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for i := 0; i < len(llm.Modes); i += 2 {
		var row []tgbotapi.InlineKeyboardButton
		for _, m := range llm.Modes[i:min(i+2, len(llm.Modes))] {
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(m.Label(), "mode:"+string(m)))
		}
		rows = append(rows, row)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func (b *Bot) handleModeCommand(session *UserSession, args string) {
	ws := b.workspace(session)
	if args == "" {
		session.replyWithKeyboard(modeKeyboard(), MsgChooseMode, ws.Settings().Mode.Label())
		return
	}

	mode, err := llm.ParseMode(strings.ToLower(args))
	if err != nil {
		session.reply(MsgUnknownMode)
		return
	}
	if err := ws.SetMode(mode); err != nil {
		session.replyWithStudioError(err)
		return
	}
	session.reply(MsgModeSet, mode.Label())
}

func (b *Bot) handleQualityCommand(session *UserSession, args string) {
	ws := b.workspace(session)
	if args == "" {
		keyboard := tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("Fast", "quality:"+string(llm.QualityFast)),
				tgbotapi.NewInlineKeyboardButtonData("High", "quality:"+string(llm.QualityHigh)),
			),
		)
		session.replyWithKeyboard(keyboard, MsgChooseQuality, ws.Settings().Quality)
		return
	}

	quality, err := llm.ParseQuality(strings.ToLower(args))
	if err != nil {
		session.reply(MsgUnknownQuality)
		return
	}
	if err := ws.SetQuality(quality); err != nil {
		session.replyWithStudioError(err)
		return
	}
	session.reply(MsgQualitySet, quality)
}

func (b *Bot) handleConsentCommand(session *UserSession, args string) {
	switch strings.ToLower(args) {
	case "":
		keyboard := tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(MsgConsentYes, "consent:yes"),
				tgbotapi.NewInlineKeyboardButtonData(MsgConsentNo, "consent:no"),
			),
		)
		session.replyWithKeyboard(keyboard, MsgConsentPrompt)
	case "no", "off":
		b.workspace(session).SetConsent(false)
		session.reply(MsgConsentOff)
	default:
		b.workspace(session).SetConsent(true)
		session.reply(MsgConsentOn)
	}
}

// --- Photoshoot ---

func (b *Bot) startPhotoshoot(ctx context.Context, session *UserSession, prompt string) {
	ws := b.workspace(session)
	if err := ws.Navigate(studio.ViewPhotoshoot); err != nil {
		session.replyWithStudioError(err)
		return
	}
	mode := ws.Settings().Mode

	LogAI(session.userId, "photoshoot mode=%s prompt=%q", mode, prompt)
	session.runAction(ctx, ActionPhotoshoot, func(ctx context.Context) ActionResult {
		img, err := ws.GeneratePhotoshoot(ctx, prompt)
		return ActionResult{Photoshoot: img, Mode: mode, Err: err}
	})
}

func imageFileName(i int, mimeType string) string {
	ext := "png"
	switch mimeType {
	case "image/jpeg":
		ext = "jpg"
	case "image/webp":
		ext = "webp"
	}
	return fmt.Sprintf("photoshoot-%d.%s", i+1, ext)
}

func (b *Bot) sendPhotoshoot(session *UserSession, mode llm.Mode, img *listing.GeneratedImage) {
	caption := formatReplyText(MsgPhotoshootReady, mode.Label())
	for i, uri := range img.ImageURLs {
		mimeType, data, err := listing.ParseDataURI(uri)
		if err != nil {
			session.replyWithError(err)
			continue
		}
		if err := session.replyWithPhoto(imageFileName(i, mimeType), data, caption); err != nil {
			session.replyWithError(err)
		}
	}
	if img.Text != nil && *img.Text != "" {
		session.replyPlain(*img.Text)
	}
}

// --- Listing ---

func (b *Bot) handleStoryCommand(session *UserSession, args string) {
	if args == "" {
		session.draft.Story = ""
		session.reply(MsgStoryCleared)
		return
	}
	if utf8.RuneCountInString(args) > studio.TranscriptionMaxLength {
		session.reply(studio.MsgTranscriptionLong)
		return
	}
	session.draft.Story = args
	session.reply(MsgStorySet)
}

func (b *Bot) handleNotesCommand(session *UserSession, args string) {
	if args == "" {
		session.draft.Notes = ""
		session.reply(MsgNotesCleared)
		return
	}
	if utf8.RuneCountInString(args) > studio.NotesMaxLength {
		session.reply(studio.MsgNotesTooLong)
		return
	}
	session.draft.Notes = args
	session.reply(MsgNotesSet)
}

func (b *Bot) handleLanguageCommand(session *UserSession, args string) {
	if args == "" {
		session.reply(MsgLanguageUsage, strings.Join(studio.Languages, ", "))
		return
	}
	for _, lang := range studio.Languages {
		if strings.EqualFold(lang, args) {
			session.draft.Language = lang
			session.reply(MsgLanguageSet, lang)
			return
		}
	}
	session.reply(studio.MsgUnknownLanguage)
}

func (b *Bot) startListing(ctx context.Context, session *UserSession) {
	ws := b.workspace(session)
	input := session.ListingInput()

	LogAI(session.userId, "listing language=%q story=%d chars notes=%d chars",
		input.Language, len(input.Transcription), len(input.Notes))
	session.runAction(ctx, ActionListing, func(ctx context.Context) ActionResult {
		l, err := ws.GenerateListing(ctx, input)
		if err == nil {
			err = ws.Navigate(studio.ViewListing)
		}
		return ActionResult{Listing: l, Err: err}
	})
}

func (b *Bot) handlePreviewCommand(session *UserSession) {
	ws := b.workspace(session)
	if err := ws.Navigate(studio.ViewStore); err != nil {
		session.replyWithStudioError(err)
		return
	}
	preview, err := ws.StorePreview()
	if err != nil {
		session.replyWithStudioError(err)
		return
	}
	session.replyPlain(preview)
}

// --- Buyer assistant ---

func (b *Bot) handleChatCommand(ctx context.Context, session *UserSession, args string) {
	ws := b.workspace(session)
	if err := ws.Navigate(studio.ViewCopilot); err != nil {
		session.replyWithStudioError(err)
		return
	}
	if args != "" {
		b.startChatTurn(ctx, session, args)
		return
	}

	history, err := ws.ChatHistory()
	if err != nil {
		session.replyWithStudioError(err)
		return
	}
	var sb strings.Builder
	for _, turn := range history {
		who := "Buyer"
		if turn.Role == listing.RoleModel {
			who = "Assistant"
		}
		sb.WriteString(fmt.Sprintf(MsgChatHistory, who, escapeMarkdown(turn.Text)))
	}
	session.reply(MsgChatStarted, strings.TrimSpace(sb.String()))
}

func (b *Bot) startChatTurn(ctx context.Context, session *UserSession, text string) {
	ws := b.workspace(session)
	LogAI(session.userId, "chat %q", text)
	session.runAction(ctx, ActionChat, func(ctx context.Context) ActionResult {
		reply, err := ws.SendChat(ctx, text)
		return ActionResult{ChatReply: reply, Err: err}
	})
}

// --- Publishing ---

func (b *Bot) handlePublishCommand(ctx context.Context, session *UserSession, args string) {
	if args == "" {
		keyboard := tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(channels.Instagram.Name(), "publish:"+string(channels.Instagram)),
				tgbotapi.NewInlineKeyboardButtonData(channels.ONDC.Name(), "publish:"+string(channels.ONDC)),
			),
		)
		session.replyWithKeyboard(keyboard, MsgPublishUsage)
		return
	}

	channel, err := channels.ParseChannel(args)
	if err != nil {
		b.handlePublishCommand(ctx, session, "")
		return
	}

	ws := b.workspace(session)
	LogAI(session.userId, "publish %s", channel)
	session.runAction(ctx, ActionPublish, func(ctx context.Context) ActionResult {
		result, err := ws.Publish(ctx, channel)
		if err != nil {
			return ActionResult{Err: err}
		}
		return ActionResult{Publish: &result}
	})
}

func (b *Bot) handlePublishedCommand(session *UserSession) {
	pubs, err := b.workspace(session).Publications()
	if err != nil {
		session.replyWithError(err)
		return
	}
	if len(pubs) == 0 {
		session.reply(MsgNoPublications)
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(MsgPublications, pluralize("listing", "listings", len(pubs))))
	for _, p := range pubs {
		status := "✅"
		if !p.Success {
			status = "❌"
		}
		channel := channels.Channel(p.Channel).Name()
		sb.WriteString(fmt.Sprintf("%s %s: %s (%s)\n", status, channel, escapeMarkdown(p.Title), p.CreatedAt.Format("2006-01-02 15:04")))
	}
	session._reply(strings.TrimSpace(sb.String()), false)
}

// --- Results ---

// handleActionComplete reports the result of a background action.
// Called from session worker - no locking needed.
func (b *Bot) handleActionComplete(session *UserSession, result *ActionResult) {
	if result == nil {
		return
	}
	if result.Err != nil {
		session.replyWithStudioError(result.Err)
		return
	}

	switch result.Kind {
	case ActionPhotoshoot:
		LogAI(session.userId, "photoshoot returned %d images", len(result.Photoshoot.ImageURLs))
		b.sendPhotoshoot(session, result.Mode, result.Photoshoot)
	case ActionListing:
		text, err := formatListingMessage(result.Listing)
		if err != nil {
			session.replyWithError(err)
			return
		}
		LogAI(session.userId, "listing %q", result.Listing.Title)
		session._reply(text, false)
	case ActionChat:
		session.replyPlain(result.ChatReply)
	case ActionPublish:
		if result.Publish.Success {
			session.reply(MsgPublishSuccess, escapeMarkdown(result.Publish.Message))
		} else {
			session.reply(MsgPublishFailed, escapeMarkdown(result.Publish.Message))
		}
	}
}
