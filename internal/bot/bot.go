package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/raine/kalamitra/internal/analytics"
	"github.com/raine/kalamitra/internal/storage"
	"github.com/raine/kalamitra/internal/studio"
	"github.com/rs/zerolog/log"
)

// BotAPI defines the interface for Telegram bot API operations.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// AdminStore backs the admin commands: the user whitelist and stored
// analytics events.
type AdminStore interface {
	IsUserAllowed(telegramID int64) (bool, error)
	AddAllowedUser(telegramID, addedBy int64) error
	RemoveAllowedUser(telegramID int64) error
	GetAllowedUsers() ([]storage.AllowedUser, error)
	GetEvents(name string, limit int) ([]storage.Event, error)
}

// Bot is the main Telegram bot handler.
type Bot struct {
	tg      BotAPI
	state   BotState
	studio  *studio.Studio
	users   AdminStore
	adminID int64
}

// NewBot creates a new Bot instance. Only the admin and users in the
// whitelist may use it.
func NewBot(tg BotAPI, st *studio.Studio, users AdminStore, adminID int64) *Bot {
	bot := &Bot{
		tg:      tg,
		studio:  st,
		users:   users,
		adminID: adminID,
	}
	bot.state = bot.NewBotState()
	return bot
}

// Shutdown stops all session workers.
func (b *Bot) Shutdown() {
	b.state.Shutdown()
}

// HandleUpdate is the main message router.
// It dispatches messages to the appropriate session worker for sequential processing.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	b.dispatchUpdate(ctx, update, false)
}

// handleUpdateSync is like HandleUpdate but waits for message processing to complete.
// Used in tests where we need synchronous behavior.
func (b *Bot) handleUpdateSync(ctx context.Context, update tgbotapi.Update) {
	b.dispatchUpdate(ctx, update, true)
}

func (b *Bot) isAllowed(userId int64) bool {
	if userId == b.adminID {
		return true
	}
	if b.users == nil {
		return false
	}
	allowed, err := b.users.IsUserAllowed(userId)
	if err != nil {
		log.Error().Err(err).Int64("user_id", userId).Msg("whitelist check failed")
		return false // Fail closed
	}
	return allowed
}

// dispatchUpdate routes updates to the appropriate session worker.
// If sync is true, it waits for message processing to complete.
func (b *Bot) dispatchUpdate(ctx context.Context, update tgbotapi.Update, sync bool) {
	var userId int64

	// Determine user ID from the update
	if update.CallbackQuery != nil {
		userId = update.CallbackQuery.From.ID
	} else if update.Message != nil && update.Message.From != nil {
		userId = update.Message.From.ID
	} else {
		return
	}

	// MUST be before getUserSession to prevent memory exhaustion from random user IDs
	if !b.isAllowed(userId) {
		return // Silent drop
	}

	session := b.state.getUserSession(userId)

	// Helper to send sync or async based on flag
	send := func(msg SessionMessage) {
		if sync {
			session.SendSync(msg)
		} else {
			session.Send(msg)
		}
	}

	if update.CallbackQuery != nil {
		send(SessionMessage{
			Type:          "callback",
			Ctx:           ctx,
			CallbackQuery: update.CallbackQuery,
		})
		return
	}

	message := update.Message
	log.Info().Int64("userId", userId).Str("text", message.Text).Str("caption", message.Caption).Msg("got message")

	if len(message.Photo) > 0 || message.Document != nil {
		send(SessionMessage{
			Type:    "photo",
			Ctx:     ctx,
			Message: message,
		})
	} else {
		send(SessionMessage{
			Type:    "text",
			Ctx:     ctx,
			Message: message,
		})
	}
}

// HandleSessionMessage implements MessageHandler interface.
// This is called by the session worker goroutine for sequential processing.
func (b *Bot) HandleSessionMessage(ctx context.Context, session *UserSession, msg SessionMessage) {
	switch msg.Type {
	case "callback":
		b.handleCallbackQuery(ctx, session, msg.CallbackQuery)
	case "photo":
		b.handlePhotoMessage(ctx, session, msg.Message)
	case "text":
		b.handleTextMessage(ctx, session, msg.Message)
	case "action_complete":
		b.handleActionComplete(session, msg.ActionResult)
	}
}

// workspace returns the user's studio workspace. It is looked up on every
// use since idle workspaces are evicted.
func (b *Bot) workspace(session *UserSession) *studio.Workspace {
	return b.studio.Workspace(session.owner())
}

// handleTextMessage processes text messages.
// Called from session worker - no locking needed.
func (b *Bot) handleTextMessage(ctx context.Context, session *UserSession, message *tgbotapi.Message) {
	LogUser(session.userId, "%s", message.Text)

	// Plain text in the buyer assistant is a chat turn.
	if message.Text != "" && !strings.HasPrefix(message.Text, "/") &&
		b.workspace(session).View() == studio.ViewCopilot {
		b.startChatTurn(ctx, session, message.Text)
		return
	}

	b.handleCommand(ctx, session, message)
}

// handleCommand processes bot commands.
// Called from session worker - no locking needed.
func (b *Bot) handleCommand(ctx context.Context, session *UserSession, message *tgbotapi.Message) {
	command, args := parseCommand(message.Text)
	switch command {
	case "/start":
		b.handleStartCommand(session)
	case "/mode":
		b.handleModeCommand(session, args)
	case "/quality":
		b.handleQualityCommand(session, args)
	case "/consent":
		b.handleConsentCommand(session, args)
	case "/photoshoot":
		b.startPhotoshoot(ctx, session, args)
	case "/story":
		b.handleStoryCommand(session, args)
	case "/notes":
		b.handleNotesCommand(session, args)
	case "/language":
		b.handleLanguageCommand(session, args)
	case "/listing":
		b.startListing(ctx, session)
	case "/preview":
		b.handlePreviewCommand(session)
	case "/chat":
		b.handleChatCommand(ctx, session, args)
	case "/publish":
		b.handlePublishCommand(ctx, session, args)
	case "/published":
		b.handlePublishedCommand(session)
	case "/new":
		b.workspace(session).Reset()
		session.reset()
		StartActivityLog(session.userId)
		session.replyAndRemoveCustomKeyboard(MsgWorkspaceNew)
	case "/admin":
		b.handleAdminCommand(session, args)
	case "/version":
		session.reply(MsgVersionInfo, Version, BuildTime)
	default:
		if b.workspace(session).Image() == nil {
			session.reply(MsgStartPrompt)
			return
		}
		session.reply(MsgImageUploaded)
	}
}

// handleCallbackQuery handles inline keyboard button presses.
// Called from session worker - no locking needed.
func (b *Bot) handleCallbackQuery(ctx context.Context, session *UserSession, query *tgbotapi.CallbackQuery) {
	// Answer the callback to remove the loading state
	callback := tgbotapi.NewCallback(query.ID, "")
	b.tg.Request(callback)

	LogUser(session.userId, "callback %s", query.Data)

	prefix, value, _ := strings.Cut(query.Data, ":")
	switch prefix {
	case "onboarding":
		b.handleOnboardingDone(session)
	case "mode":
		b.handleModeCommand(session, value)
	case "quality":
		b.handleQualityCommand(session, value)
	case "consent":
		b.handleConsentCommand(session, value)
	case "publish":
		b.handlePublishCommand(ctx, session, value)
	default:
		log.Warn().Str("data", query.Data).Msg("unknown callback")
	}
}

// handleAdminCommand handles /admin command with subcommands.
// Only the admin user can use this command (defense in depth check).
func (b *Bot) handleAdminCommand(session *UserSession, args string) {
	// Verify caller is admin even though whitelist check passed
	if session.userId != b.adminID {
		return // Silent drop for non-admin users
	}

	parts := strings.Fields(args)
	if len(parts) == 0 {
		session.reply(MsgAdminUsage)
		return
	}

	switch parts[0] {
	case "users":
		if len(parts) < 2 {
			session.reply(MsgAdminUsage)
			return
		}
		b.handleAdminUsersCommand(session, parts[1], parts[2:])
	case "events":
		b.handleAdminEventsCommand(session, parts[1:])
	default:
		session.reply(MsgAdminUsage)
	}
}

// handleAdminUsersCommand handles /admin users subcommands.
func (b *Bot) handleAdminUsersCommand(session *UserSession, action string, args []string) {
	if b.users == nil {
		session.reply(MsgAdminNoUsers)
		return
	}

	switch action {
	case "add":
		if len(args) < 1 {
			session.reply(MsgAdminUserAddUsage)
			return
		}
		userID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			session.reply(MsgAdminUserInvalidID)
			return
		}
		if err := b.users.AddAllowedUser(userID, session.userId); err != nil {
			session.replyWithError(err)
			return
		}
		session.reply(MsgAdminUserAdded, userID)

	case "remove":
		if len(args) < 1 {
			session.reply(MsgAdminUserRemoveUsage)
			return
		}
		userID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			session.reply(MsgAdminUserInvalidID)
			return
		}
		if err := b.users.RemoveAllowedUser(userID); err != nil {
			session.replyWithError(err)
			return
		}
		session.reply(MsgAdminUserRemoved, userID)

	case "list":
		users, err := b.users.GetAllowedUsers()
		if err != nil {
			session.replyWithError(err)
			return
		}
		if len(users) == 0 {
			session.reply(MsgAdminNoUsers)
			return
		}
		var sb strings.Builder
		sb.WriteString(MsgAdminAllowedUsers)
		for _, u := range users {
			sb.WriteString(fmt.Sprintf("• `%d` (added %s)\n", u.TelegramID, u.AddedAt.Format("2006-01-02")))
		}
		session.reply(sb.String())

	default:
		session.reply(MsgAdminUsage)
	}
}

const (
	defaultEventsLimit = 10
	maxEventsLimit     = 50
)

// handleAdminEventsCommand handles /admin events [name] [limit].
func (b *Bot) handleAdminEventsCommand(session *UserSession, args []string) {
	if b.users == nil {
		session.reply(MsgAdminNoEvents)
		return
	}

	var name analytics.EventName
	limit := defaultEventsLimit
	for _, arg := range args {
		if n, err := strconv.Atoi(arg); err == nil {
			if n <= 0 || n > maxEventsLimit {
				session.reply(MsgAdminEventsUsage)
				return
			}
			limit = n
			continue
		}
		parsed, err := analytics.ParseEventName(arg)
		if err != nil {
			session.reply(MsgAdminEventsUsage)
			return
		}
		name = parsed
	}

	events, err := b.users.GetEvents(string(name), limit)
	if err != nil {
		session.replyWithError(err)
		return
	}
	if len(events) == 0 {
		session.reply(MsgAdminNoEvents)
		return
	}

	var sb strings.Builder
	sb.WriteString(MsgAdminRecentEvents)
	for _, e := range events {
		sb.WriteString(fmt.Sprintf("• `%s` %s `%s`\n", e.Name, e.CreatedAt.UTC().Format("2006-01-02 15:04"), e.ID))
	}
	session._reply(strings.TrimSpace(sb.String()), false)
}
