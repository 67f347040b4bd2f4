package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/raine/kalamitra/internal/channels"
	"github.com/raine/kalamitra/internal/listing"
	"github.com/raine/kalamitra/internal/llm"
	"github.com/raine/kalamitra/internal/studio"
	"github.com/rs/zerolog/log"
)

// SessionMessage represents a message to be processed by the session worker.
type SessionMessage struct {
	Type string
	Ctx  context.Context
	Done chan struct{} // Closed when processing is complete (for synchronous dispatch)

	// Message data (only one is set based on Type)
	Message       *tgbotapi.Message
	CallbackQuery *tgbotapi.CallbackQuery
	Text          string
	ActionResult  *ActionResult // For action_complete messages
}

// ActionKind names a long-running studio action.
type ActionKind string

const (
	ActionPhotoshoot ActionKind = "photoshoot"
	ActionListing    ActionKind = "listing"
	ActionChat       ActionKind = "chat"
	ActionPublish    ActionKind = "publish"
)

// ActionResult is the outcome of an action that ran in the background. It is
// delivered back to the session worker so replies stay in order.
type ActionResult struct {
	Kind       ActionKind
	Mode       llm.Mode // Photoshoot mode the shots were made with
	Photoshoot *listing.GeneratedImage
	Listing    *listing.ProductListing
	ChatReply  string
	Publish    *channels.Result
	Err        error
}

// MessageSender abstracts the ability to send Telegram messages.
// This interface decouples UserSession from the full Bot struct,
// improving testability.
type MessageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// MessageHandler processes messages from the session worker.
type MessageHandler interface {
	HandleSessionMessage(ctx context.Context, session *UserSession, msg SessionMessage)
}

// ListingDraft is what the artisan told us about the product so far. It is
// sent with the next /listing.
type ListingDraft struct {
	Story    string
	Notes    string
	Language string
}

// UserSession is one Telegram user's chat state. Everything except the inbox
// is owned by the worker goroutine.
type UserSession struct {
	userId int64
	sender MessageSender

	draft ListingDraft

	// Worker
	inbox   chan SessionMessage
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	handler MessageHandler
	actions sync.WaitGroup
}

// owner is the studio workspace owner for this user.
func (s *UserSession) owner() string {
	return telegramOwner(s.userId)
}

func telegramOwner(userId int64) string {
	return fmt.Sprintf("tg:%d", userId)
}

// ListingInput converts the draft to a studio listing input.
func (s *UserSession) ListingInput() studio.ListingInput {
	return studio.ListingInput{
		Transcription: s.draft.Story,
		Notes:         s.draft.Notes,
		Language:      s.draft.Language,
	}
}

func (s *UserSession) reset() {
	log.Info().Int64("userId", s.userId).Msg("reset user session")
	s.draft.Story = ""
	s.draft.Notes = ""
	// Language is a preference and survives resets.
}

// runAction runs fn in the background and posts its result back to the
// worker as an action_complete message.
func (s *UserSession) runAction(ctx context.Context, kind ActionKind, fn func(ctx context.Context) ActionResult) {
	s.actions.Add(1)
	go func() {
		defer s.actions.Done()
		stopTyping := s.startTyping(ctx, kind)
		result := fn(ctx)
		stopTyping()
		result.Kind = kind
		s.Send(SessionMessage{Type: "action_complete", Ctx: ctx, ActionResult: &result})
	}()
}

// waitForActions blocks until every background action has posted its result.
func (s *UserSession) waitForActions() {
	s.actions.Wait()
}

func (s *UserSession) chatAction(kind ActionKind) string {
	if kind == ActionPhotoshoot {
		return tgbotapi.ChatUploadPhoto
	}
	return tgbotapi.ChatTyping
}

// sendChatAction shows "typing" or "sending photo" to the user. The indicator
// expires after ~5 seconds in Telegram.
func (s *UserSession) sendChatAction(action string) {
	// Use Request instead of Send because sendChatAction returns a boolean, not a Message
	_, err := s.sender.Request(tgbotapi.NewChatAction(s.userId, action))
	if err != nil {
		log.Debug().Err(err).Int64("userId", s.userId).Msg("failed to send chat action")
	}
}

// startTyping repeats the chat action every 4 seconds until the returned stop
// function is called.
func (s *UserSession) startTyping(ctx context.Context, kind ActionKind) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	action := s.chatAction(kind)

	go func() {
		defer close(done)
		s.sendChatAction(action)

		ticker := time.NewTicker(4 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sendChatAction(action)
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

func (s *UserSession) replyWithError(err error) tgbotapi.Message {
	log.Error().Stack().Err(err).Send()
	LogError(s.userId, "%v", err)
	return s._reply(formatReplyText(MsgUnexpectedErr, escapeMarkdown(err.Error())), false)
}

// replyWithStudioError tells the user why a studio operation failed.
func (s *UserSession) replyWithStudioError(err error) tgbotapi.Message {
	LogError(s.userId, "%v", err)
	return s.replyPlain(studio.UserMessage(err))
}

func (s *UserSession) replyWithMessage(msg tgbotapi.MessageConfig) tgbotapi.Message {
	msg.ChatID = s.userId
	sent, err := s.sender.Send(msg)
	if err != nil {
		log.Error().Stack().
			Interface("msg", msg).
			Err(fmt.Errorf("failed to send reply message: %w", err)).Send()
	} else {
		log.Debug().Int64("userId", s.userId).Int("messageId", sent.MessageID).Msg("sent message")
		LogBot(s.userId, "%s", msg.Text)
	}

	return sent
}

func (s *UserSession) _reply(text string, removeReplyKeyboard bool) tgbotapi.Message {
	msg := tgbotapi.MessageConfig{
		Text:      text,
		ParseMode: tgbotapi.ModeMarkdown,
	}

	if removeReplyKeyboard {
		msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(false)
	}

	return s.replyWithMessage(msg)
}

func (s *UserSession) reply(text string, a ...any) tgbotapi.Message {
	return s._reply(formatReplyText(text, a...), false)
}

// replyPlain sends text without Markdown parsing. Used for model output and
// other text we don't control.
func (s *UserSession) replyPlain(text string) tgbotapi.Message {
	return s.replyWithMessage(tgbotapi.MessageConfig{Text: text})
}

// replyWithKeyboard sends a message with an inline keyboard.
func (s *UserSession) replyWithKeyboard(keyboard tgbotapi.InlineKeyboardMarkup, text string, a ...any) tgbotapi.Message {
	msg := tgbotapi.MessageConfig{
		Text:      formatReplyText(text, a...),
		ParseMode: tgbotapi.ModeMarkdown,
	}
	msg.ReplyMarkup = keyboard
	return s.replyWithMessage(msg)
}

// replyAndRemoveCustomKeyboard sends a text as reply while removing any
// existing custom reply keyboard. In telegram, bot's custom keyboards will
// remain as long as a new one is sent or the current one is removed.
func (s *UserSession) replyAndRemoveCustomKeyboard(text string, a ...any) tgbotapi.Message {
	return s._reply(formatReplyText(text, a...), true)
}

// replyWithPhoto sends an image with a Markdown caption.
func (s *UserSession) replyWithPhoto(name string, data []byte, caption string) error {
	photo := tgbotapi.NewPhoto(s.userId, tgbotapi.FileBytes{Name: name, Bytes: data})
	photo.Caption = caption
	photo.ParseMode = tgbotapi.ModeMarkdown
	if _, err := s.sender.Send(photo); err != nil {
		return fmt.Errorf("failed to send photo: %w", err)
	}
	LogBot(s.userId, "photo %s (%d bytes)", name, len(data))
	return nil
}

// --- Worker methods ---

// StartWorker starts the session's message processing worker goroutine.
// Must be called after setting the handler.
func (s *UserSession) StartWorker() {
	s.wg.Add(1)
	go s.runWorker()
}

// SetHandler sets the message handler for this session.
func (s *UserSession) SetHandler(handler MessageHandler) {
	s.handler = handler
}

// runWorker is the main worker loop that processes messages sequentially.
func (s *UserSession) runWorker() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			// Drain any remaining messages and signal completion
			for {
				select {
				case msg := <-s.inbox:
					if msg.Done != nil {
						close(msg.Done)
					}
				default:
					return
				}
			}
		case msg := <-s.inbox:
			s.processMessage(msg)
		}
	}
}

// processMessage handles a single message from the inbox.
func (s *UserSession) processMessage(msg SessionMessage) {
	defer func() {
		// Recover from any panics to keep the worker running
		if r := recover(); r != nil {
			log.Error().
				Int64("userId", s.userId).
				Interface("panic", r).
				Msg("recovered from panic in session worker")
		}
		if msg.Done != nil {
			close(msg.Done)
		}
	}()

	if s.handler == nil {
		log.Error().Int64("userId", s.userId).Msg("session handler not set")
		return
	}

	s.handler.HandleSessionMessage(msg.Ctx, s, msg)
}

// Send queues a message for processing by the worker.
// This is non-blocking - it returns immediately after queuing.
func (s *UserSession) Send(msg SessionMessage) {
	select {
	case s.inbox <- msg:
	case <-s.ctx.Done():
		if msg.Done != nil {
			close(msg.Done)
		}
	}
}

// SendSync queues a message and waits for it to be processed.
// Returns when the message has been fully processed by the worker.
func (s *UserSession) SendSync(msg SessionMessage) {
	msg.Done = make(chan struct{})
	s.Send(msg)
	<-msg.Done
}

// Stop stops the worker and waits for it to finish.
func (s *UserSession) Stop() {
	s.cancel()
	s.wg.Wait()
}
