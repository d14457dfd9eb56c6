package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"inboxsync/internal/auth"
	"inboxsync/internal/domain"
	"inboxsync/internal/messagelog"
	"inboxsync/internal/registry"
)

type createSourceRequest struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Token      string `json:"token"`
	ExternalID string `json:"externalId"`
}

type postMessageRequest struct {
	Content  string `json:"content"`
	SourceID string `json:"sourceId"`
	Platform string `json:"platform"`
}

func (s *Server) listSources(c echo.Context) error {
	user, _ := auth.IdentityFrom(c)

	sources, err := s.sources.List(c.Request().Context(), user.UserID)
	if err != nil {
		log.Printf("[ERROR] list sources for %s: %v", user.UserID, err)
		return errorJSON(c, http.StatusInternalServerError, "Failed to fetch sources")
	}

	return c.JSON(http.StatusOK, map[string]any{"sources": sources})
}

func (s *Server) createSource(c echo.Context) error {
	user, _ := auth.IdentityFrom(c)

	var req createSourceRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid request body")
	}

	src, err := s.sources.Create(c.Request().Context(), user, req.Name, domain.SourceType(req.Type), req.Token, req.ExternalID)
	if errors.Is(err, registry.ErrInvalidSource) {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}
	if err != nil {
		log.Printf("[ERROR] create source for %s: %v", user.UserID, err)
		return errorJSON(c, http.StatusInternalServerError, "Failed to create source")
	}

	log.Printf("[SOURCE] %s created %s (%s)", user.UserID, src.ID, src.Type)
	return c.JSON(http.StatusOK, map[string]any{"source": src.Public()})
}

func (s *Server) listMessages(c echo.Context) error {
	user, _ := auth.IdentityFrom(c)
	sourceID := c.Param("sourceId")

	if code, msg := s.authorizeSource(c, user, sourceID); code != 0 {
		return errorJSON(c, code, msg)
	}

	messages, err := s.messages.List(c.Request().Context(), user.UserID, sourceID)
	if err != nil {
		log.Printf("[ERROR] list messages %s: %v", sourceID, err)
		return errorJSON(c, http.StatusInternalServerError, "Failed to fetch messages")
	}

	return c.JSON(http.StatusOK, map[string]any{"messages": messages})
}

func (s *Server) postMessage(c echo.Context) error {
	user, _ := auth.IdentityFrom(c)

	var req postMessageRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid request body")
	}

	if code, msg := s.authorizeSource(c, user, req.SourceID); code != 0 {
		return errorJSON(c, code, msg)
	}

	ctx := c.Request().Context()

	msg, err := s.messages.Append(ctx, user, req.SourceID, req.Platform, req.Content)
	if errors.Is(err, messagelog.ErrEmptyContent) {
		return errorJSON(c, http.StatusBadRequest, "Message content is required")
	}
	if err != nil {
		log.Printf("[ERROR] post message to %s: %v", req.SourceID, err)
		return errorJSON(c, http.StatusInternalServerError, "Failed to post message")
	}

	log.Printf("[POST] %s -> %s: %s", user.UserID, req.SourceID, msg.ID)

	ev := domain.MessageEvent{Message: msg, SourceID: req.SourceID, Platform: req.Platform}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		log.Printf("[ERROR] publish %s: %v", msg.ID, err)
	}

	return c.JSON(http.StatusOK, map[string]any{"message": msg})
}

// authorizeSource returns a non-zero status when user may not touch
// sourceID.
func (s *Server) authorizeSource(c echo.Context, user domain.Identity, sourceID string) (int, string) {
	if sourceID == "" {
		return http.StatusBadRequest, "sourceId is required"
	}

	src, err := s.sources.Get(c.Request().Context(), sourceID)
	if errors.Is(err, registry.ErrSourceNotFound) {
		return http.StatusNotFound, "Source not found"
	}
	if err != nil {
		log.Printf("[ERROR] load source %s: %v", sourceID, err)
		return http.StatusInternalServerError, "Failed to load source"
	}
	if src.OwnerUserID != user.UserID {
		return http.StatusForbidden, "Forbidden"
	}

	return 0, ""
}
