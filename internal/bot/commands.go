package bot

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
)

// Command defines a bot command with its handler key and Telegram menu description.
type Command struct {
	Name        string // Command name without slash (e.g., "start")
	Description string // Description shown in Telegram command menu
}

// botCommands defines all available bot commands.
// This is the single source of truth for command definitions.
var botCommands = []Command{
	{Name: "photoshoot", Description: "Create styled shots of your photo"},
	{Name: "mode", Description: "Choose the photoshoot mode"},
	{Name: "quality", Description: "Choose image quality"},
	{Name: "consent", Description: "Allow AI image generation"},
	{Name: "story", Description: "Tell the story behind the product"},
	{Name: "notes", Description: "Add notes for the listing"},
	{Name: "language", Description: "Set the listing language"},
	{Name: "listing", Description: "Write the listing and suggest a price"},
	{Name: "preview", Description: "Show the store page"},
	{Name: "chat", Description: "Chat with the buyer assistant"},
	{Name: "publish", Description: "Publish to Instagram or ONDC"},
	{Name: "published", Description: "Show publish history"},
	{Name: "new", Description: "Start over with a new product"},
	{Name: "version", Description: "Show version info"},
}

// RegisterCommands sets the bot's command menu in Telegram.
// This should be called once at startup.
func RegisterCommands(tg *tgbotapi.BotAPI) {
	commands := make([]tgbotapi.BotCommand, len(botCommands))
	for i, cmd := range botCommands {
		commands[i] = tgbotapi.BotCommand{
			Command:     cmd.Name,
			Description: cmd.Description,
		}
	}

	config := tgbotapi.NewSetMyCommands(commands...)
	if _, err := tg.Request(config); err != nil {
		log.Error().Err(err).Msg("failed to set bot commands")
	} else {
		log.Info().Int("count", len(commands)).Msg("registered bot commands")
	}
}
