package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"inboxsync/internal/auth"
	"inboxsync/internal/domain"
	"inboxsync/internal/queue"
)

type SourceService interface {
	Create(ctx context.Context, owner domain.Identity, name string, typ domain.SourceType, secretToken, externalID string) (domain.Source, error)
	List(ctx context.Context, ownerID string) ([]domain.Source, error)
	Get(ctx context.Context, id string) (domain.Source, error)
}

type MessageService interface {
	Append(ctx context.Context, author domain.Identity, sourceID, platform, content string) (domain.Message, error)
	List(ctx context.Context, viewerID, sourceID string) ([]domain.Message, error)
}

type Server struct {
	echo      *echo.Echo
	sources   SourceService
	messages  MessageService
	gate      *auth.Gate
	publisher queue.Publisher
}

// NewServer wires the routes. Routes are served at the root and, when
// prefix is non-empty, again under prefix.
func NewServer(sources SourceService, messages MessageService, gate *auth.Gate, publisher queue.Publisher, prefix string) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	s := &Server{
		echo:      e,
		sources:   sources,
		messages:  messages,
		gate:      gate,
		publisher: publisher,
	}

	s.routes(e.Group(""))
	if prefix != "" {
		s.routes(e.Group(prefix))
	}

	return s
}

func (s *Server) routes(g *echo.Group) {
	g.GET("/health", s.health)

	authed := s.gate.Middleware()
	g.GET("/sources", s.listSources, authed)
	g.POST("/sources", s.createSource, authed)
	g.GET("/messages/:sourceId", s.listMessages, authed)
	g.POST("/messages", s.postMessage, authed)
}

func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// ServeHTTP lets tests and embedding callers drive the router directly.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func errorJSON(c echo.Context, code int, msg string) error {
	return c.JSON(code, map[string]string{"error": msg})
}
