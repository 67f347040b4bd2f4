package api

import (
	"errors"
	"fmt"
	"io"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/raine/kalamitra/internal/channels"
	"github.com/raine/kalamitra/internal/llm"
	"github.com/raine/kalamitra/internal/studio"
	"github.com/rs/zerolog/log"
)

const workspaceKey = "workspace"

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.app.Get("/health", s.healthHandler)

	api := s.app.Group("/api/v1")
	api.Post("/workspaces", s.createWorkspace)

	ws := api.Group("/workspaces/:id", s.loadWorkspace)
	ws.Get("/", s.getWorkspace)
	ws.Delete("/", s.deleteWorkspace)
	ws.Post("/image", s.uploadImage)
	ws.Put("/settings", s.updateSettings)
	ws.Post("/photoshoot", s.generatePhotoshoot)
	ws.Post("/listing", s.generateListing)
	ws.Get("/listing", s.getListing)
	ws.Get("/preview", s.getPreview)
	ws.Put("/view", s.navigate)
	ws.Post("/chat", s.sendChat)
	ws.Get("/chat", s.getChatHistory)
	ws.Post("/publish/:channel", s.publish)
	ws.Get("/publications", s.getPublications)
	ws.Get("/onboarding", s.getOnboarding)
	ws.Post("/onboarding", s.finishOnboarding)
}

// healthHandler handles GET /health.
func (s *Server) healthHandler(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{Status: "healthy"})
}

// loadWorkspace resolves :id to a web workspace. Only IDs handed out by
// createWorkspace are reachable; other front-ends' owners are not. A
// workspace dropped by a restart or eviction comes back if the store kept
// state for it.
func (s *Server) loadWorkspace(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return notFound(c)
	}
	w, ok, err := s.studio.Resume(id.String())
	if err != nil {
		return fmt.Errorf("failed to load workspace: %w", err)
	}
	if !ok {
		return notFound(c)
	}
	c.Locals(workspaceKey, w)
	return c.Next()
}

func workspace(c *fiber.Ctx) *studio.Workspace {
	return c.Locals(workspaceKey).(*studio.Workspace)
}

func notFound(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
		Error:   "not_found",
		Message: "Workspace not found",
	})
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
		Error:   "validation_error",
		Message: message,
	})
}

func invalidBody(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
		Error:   "invalid_request",
		Message: "Invalid request body",
	})
}

// studioError maps a studio error to its HTTP status and error code.
func studioError(c *fiber.Ctx, err error) error {
	status, code := fiber.StatusInternalServerError, "server_error"

	var validation *studio.ValidationError
	var blocked *llm.PolicyBlockedError
	var transport *llm.TransportError

	switch {
	case errors.As(err, &validation):
		status, code = fiber.StatusBadRequest, "validation_error"
	case errors.Is(err, studio.ErrNoListing):
		status, code = fiber.StatusConflict, "listing_required"
	case errors.Is(err, studio.ErrActionInProgress):
		status, code = fiber.StatusConflict, "action_in_progress"
	case errors.Is(err, studio.ErrSuperseded):
		status, code = fiber.StatusConflict, "superseded"
	case errors.As(err, &blocked):
		status, code = fiber.StatusUnprocessableEntity, "policy_blocked"
	case errors.Is(err, llm.ErrEmptyResult):
		status, code = fiber.StatusBadGateway, "empty_result"
	case errors.Is(err, llm.ErrInvalidResponseFormat):
		status, code = fiber.StatusBadGateway, "invalid_response"
	case errors.As(err, &transport):
		status, code = fiber.StatusBadGateway, "upstream_error"
	default:
		log.Error().Err(err).Str("path", c.Path()).Msg("studio operation failed")
	}

	return c.Status(status).JSON(ErrorResponse{
		Error:   code,
		Message: studio.UserMessage(err),
	})
}

// createWorkspace handles POST /api/v1/workspaces. A browser that sends a
// UUID in X-Client-ID gets the workspace for that ID, so its saved state
// follows it across sessions. Without the header the ID is random.
func (s *Server) createWorkspace(c *fiber.Ctx) error {
	clientID := c.Get(HeaderClientID)
	if clientID == "" {
		return c.Status(fiber.StatusCreated).JSON(s.studio.Create().Snapshot())
	}

	id, err := uuid.Parse(clientID)
	if err != nil {
		return badRequest(c, HeaderClientID+" must be a UUID.")
	}
	w := s.studio.Workspace(id.String())
	return c.Status(fiber.StatusCreated).JSON(w.Snapshot())
}

// getWorkspace handles GET /api/v1/workspaces/:id.
func (s *Server) getWorkspace(c *fiber.Ctx) error {
	return c.JSON(workspace(c).Snapshot())
}

// deleteWorkspace handles DELETE /api/v1/workspaces/:id.
func (s *Server) deleteWorkspace(c *fiber.Ctx) error {
	s.studio.Remove(workspace(c).Owner())
	return c.SendStatus(fiber.StatusNoContent)
}

// uploadImage handles POST /api/v1/workspaces/:id/image with a multipart
// "image" field.
func (s *Server) uploadImage(c *fiber.Ctx) error {
	fh, err := c.FormFile("image")
	if err != nil {
		return badRequest(c, "Missing image file")
	}
	if fh.Size > studio.MaxUploadSize {
		return badRequest(c, studio.MsgFileTooLarge)
	}

	f, err := fh.Open()
	if err != nil {
		return fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, studio.MaxUploadSize+1))
	if err != nil {
		return fmt.Errorf("failed to read upload: %w", err)
	}

	w := workspace(c)
	if err := w.Upload(data, fh.Header.Get(fiber.HeaderContentType)); err != nil {
		return studioError(c, err)
	}
	return c.JSON(w.Snapshot())
}

// updateSettings handles PUT /api/v1/workspaces/:id/settings. Nothing is
// changed unless every given field is valid.
func (s *Server) updateSettings(c *fiber.Ctx) error {
	var req SettingsRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}

	var mode llm.Mode
	var quality llm.Quality
	var err error
	if req.Mode != nil {
		if mode, err = llm.ParseMode(*req.Mode); err != nil {
			return badRequest(c, fmt.Sprintf("Unknown photoshoot mode %q.", *req.Mode))
		}
	}
	if req.Quality != nil {
		if quality, err = llm.ParseQuality(*req.Quality); err != nil {
			return badRequest(c, fmt.Sprintf("Unknown image quality %q.", *req.Quality))
		}
	}

	w := workspace(c)
	if req.Mode != nil {
		if err := w.SetMode(mode); err != nil {
			return studioError(c, err)
		}
	}
	if req.Quality != nil {
		if err := w.SetQuality(quality); err != nil {
			return studioError(c, err)
		}
	}
	if req.Consent != nil {
		w.SetConsent(*req.Consent)
	}
	return c.JSON(w.Settings())
}

// generatePhotoshoot handles POST /api/v1/workspaces/:id/photoshoot.
func (s *Server) generatePhotoshoot(c *fiber.Ctx) error {
	var req PhotoshootRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}

	shot, err := workspace(c).GeneratePhotoshoot(c.UserContext(), req.Prompt)
	if err != nil {
		return studioError(c, err)
	}
	return c.JSON(shot)
}

// generateListing handles POST /api/v1/workspaces/:id/listing.
func (s *Server) generateListing(c *fiber.Ctx) error {
	var req ListingRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}

	l, err := workspace(c).GenerateListing(c.UserContext(), studio.ListingInput{
		Transcription: req.Transcription,
		Notes:         req.Notes,
		Language:      req.Language,
	})
	if err != nil {
		return studioError(c, err)
	}
	return c.JSON(l)
}

// getListing handles GET /api/v1/workspaces/:id/listing.
func (s *Server) getListing(c *fiber.Ctx) error {
	l := workspace(c).Listing()
	if l == nil {
		return studioError(c, studio.ErrNoListing)
	}
	return c.JSON(l)
}

// getPreview handles GET /api/v1/workspaces/:id/preview.
func (s *Server) getPreview(c *fiber.Ctx) error {
	preview, err := workspace(c).StorePreview()
	if err != nil {
		return studioError(c, err)
	}
	return c.JSON(PreviewResponse{Preview: preview})
}

// navigate handles PUT /api/v1/workspaces/:id/view.
func (s *Server) navigate(c *fiber.Ctx) error {
	var req ViewRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}

	w := workspace(c)
	if err := w.Navigate(studio.View(req.View)); err != nil {
		return studioError(c, err)
	}
	return c.JSON(w.Snapshot())
}

// sendChat handles POST /api/v1/workspaces/:id/chat.
func (s *Server) sendChat(c *fiber.Ctx) error {
	var req ChatRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}

	reply, err := workspace(c).SendChat(c.UserContext(), req.Message)
	if err != nil {
		return studioError(c, err)
	}
	return c.JSON(ChatResponse{Reply: reply})
}

// getChatHistory handles GET /api/v1/workspaces/:id/chat.
func (s *Server) getChatHistory(c *fiber.Ctx) error {
	history, err := workspace(c).ChatHistory()
	if err != nil {
		return studioError(c, err)
	}
	return c.JSON(ChatHistoryResponse{History: history})
}

// publish handles POST /api/v1/workspaces/:id/publish/:channel. A failed
// publish is still a 200; the result says whether it went through.
func (s *Server) publish(c *fiber.Ctx) error {
	channel, err := channels.ParseChannel(c.Params("channel"))
	if err != nil {
		return badRequest(c, fmt.Sprintf("Unknown channel %q.", c.Params("channel")))
	}

	result, err := workspace(c).Publish(c.UserContext(), channel)
	if err != nil {
		return studioError(c, err)
	}
	return c.JSON(result)
}

// getPublications handles GET /api/v1/workspaces/:id/publications.
func (s *Server) getPublications(c *fiber.Ctx) error {
	pubs, err := workspace(c).Publications()
	if err != nil {
		return fmt.Errorf("failed to get publications: %w", err)
	}

	resp := make([]PublicationResponse, 0, len(pubs))
	for _, p := range pubs {
		resp = append(resp, PublicationResponse{
			ID:        p.ID,
			Channel:   p.Channel,
			Title:     p.Title,
			Success:   p.Success,
			Message:   p.Message,
			CreatedAt: p.CreatedAt,
		})
	}
	return c.JSON(resp)
}

// getOnboarding handles GET /api/v1/workspaces/:id/onboarding.
func (s *Server) getOnboarding(c *fiber.Ctx) error {
	needs, err := workspace(c).NeedsOnboarding()
	if err != nil {
		return fmt.Errorf("failed to read onboarding flag: %w", err)
	}
	return c.JSON(OnboardingResponse{NeedsOnboarding: needs})
}

// finishOnboarding handles POST /api/v1/workspaces/:id/onboarding.
func (s *Server) finishOnboarding(c *fiber.Ctx) error {
	if err := workspace(c).FinishOnboarding(); err != nil {
		return fmt.Errorf("failed to save onboarding flag: %w", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
