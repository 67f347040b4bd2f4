package bot

// =============================================================================
// General messages
// =============================================================================

const (
	MsgOk            = `Ok!`
	MsgUnexpectedErr = `Unexpected error: %s`
	MsgStartPrompt   = "Send a photo of your product to get started."
	MsgWorkspaceNew  = "Started over. Send a photo of your next product."
	MsgVersionInfo   = "Version: %s\nBuilt: %s"
	MsgWorking       = "Working on it..."
)

// =============================================================================
// Onboarding messages
// =============================================================================

const (
	MsgOnboarding = `
		*Welcome to Kalamitra!*

		I help you turn a phone photo of your craft into a studio shot, a
		ready-to-post listing and a fair price.

		1. Send a photo of your product
		2. /photoshoot to create styled shots
		3. /listing to write the listing and suggest a price
		4. /chat to try the buyer assistant
		5. /publish to share it on Instagram or ONDC`
	MsgOnboardingButton = "Got it"
	MsgOnboardingDone   = "Great! Send a photo of your product to get started."
)

// =============================================================================
// Upload messages
// =============================================================================

const (
	MsgImageUploaded   = "Photo received. Use /photoshoot to create styled shots or /listing to write the listing."
	MsgDownloadFailed  = "Could not download the photo, please send it again."
	MsgUnsupportedFile = "Please send the photo as an image."
)

// =============================================================================
// Photoshoot messages
// =============================================================================

const (
	MsgChooseMode      = "Choose a photoshoot mode (current: *%s*):"
	MsgModeSet         = "Photoshoot mode: *%s*"
	MsgChooseQuality   = "Choose image quality (current: *%s*):"
	MsgQualitySet      = "Image quality: *%s*"
	MsgUnknownMode     = "Unknown mode. Use /mode to pick one."
	MsgUnknownQuality  = "Unknown quality. Use `/quality fast` or `/quality high`."
	MsgConsentOn       = "Thanks! AI image generation is enabled."
	MsgConsentOff      = "AI image generation is disabled."
	MsgConsentPrompt   = "I'll use AI to edit your photo. Do you agree?"
	MsgConsentYes      = "Yes, I agree"
	MsgConsentNo       = "No"
	MsgPhotoshootReady = "Here is your *%s* shot."
)

// =============================================================================
// Listing messages
// =============================================================================

const (
	MsgStorySet      = "Got your story. Use /listing when you are ready."
	MsgStoryCleared  = "Story cleared."
	MsgNotesSet      = "Got your notes. Use /listing when you are ready."
	MsgNotesCleared  = "Notes cleared."
	MsgLanguageSet   = "Listings will be written in *%s*."
	MsgLanguageUsage = "Usage: `/language <name>`\nSupported: %s"
	MsgListingHint   = "/preview to see the store page, /chat to try the buyer assistant, /publish to share it."
)

// =============================================================================
// Buyer assistant messages
// =============================================================================

const (
	MsgChatStarted = "💬 You are now chatting as a buyer. Send a message, or /photoshoot to go back.\n\n%s"
	MsgChatHistory = "*%s:* %s\n"
)

// =============================================================================
// Publish messages
// =============================================================================

const (
	MsgPublishUsage   = "Publish to:"
	MsgPublishSuccess = "✅ %s"
	MsgPublishFailed  = "❌ %s"
	MsgNoPublications = "Nothing published yet."
	MsgPublications   = "*Published %s:*\n"
)

// =============================================================================
// Admin command messages
// =============================================================================

const (
	MsgAdminUsage           = "Usage:\n`/admin users add <user_id>`\n`/admin users remove <user_id>`\n`/admin users list`\n`/admin events [name] [limit]`"
	MsgAdminEventsUsage     = "Usage: `/admin events [name] [limit]`, limit up to 50."
	MsgAdminNoEvents        = "No events recorded."
	MsgAdminRecentEvents    = "*Recent events:*\n"
	MsgAdminUserAddUsage    = "Usage: `/admin users add <user_id>`"
	MsgAdminUserRemoveUsage = "Usage: `/admin users remove <user_id>`"
	MsgAdminUserInvalidID   = "Invalid user ID. Please give a number."
	MsgAdminUserAdded       = "✅ User `%d` added."
	MsgAdminUserRemoved     = "🗑 User `%d` removed."
	MsgAdminNoUsers         = "No allowed users."
	MsgAdminAllowedUsers    = "*Allowed users:*\n"
)
