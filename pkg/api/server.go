// Package api provides the HTTP surface of each service. It is a thin
// layer: handlers bind input, call a domain object, and map its errors to
// status codes in one place.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/astrolabs/astroevents/pkg/astronaut"
	"github.com/astrolabs/astroevents/pkg/auth"
	"github.com/astrolabs/astroevents/pkg/mission"
	"github.com/astrolabs/astroevents/pkg/token"
)

// shutdownTimeout bounds graceful shutdown once Run's context is cancelled.
const shutdownTimeout = 10 * time.Second

// Server is the HTTP server of one service. Only the routes registered for
// that service are mounted; the other domain fields stay nil.
type Server struct {
	engine   *gin.Engine
	verifier *token.Verifier

	astronautCommander *astronaut.Commander
	astronautQuerier   *astronaut.Querier
	missionCommander   *mission.Commander
	missionQuerier     *mission.Querier
	authCommander      *auth.Commander
}

// NewServer creates a server with the health route mounted.
func NewServer(verifier *token.Verifier) *Server {
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger())

	s := &Server{engine: engine, verifier: verifier}
	engine.GET("/health", s.health)
	return s
}

// RegisterAstronautRoutes mounts the astronaut service routes.
func (s *Server) RegisterAstronautRoutes(commander *astronaut.Commander, querier *astronaut.Querier) {
	s.astronautCommander = commander
	s.astronautQuerier = querier

	s.engine.POST("/astronauts", s.createAstronaut)
	authed := s.engine.Group("/", s.bearerAuth())
	authed.GET("/astronauts/:id", s.getAstronaut)
	authed.PUT("/astronauts/:id", s.updateAstronaut)
	authed.GET("/astronauts/:id/live", s.liveAstronaut)
}

// RegisterMissionRoutes mounts the mission service routes.
func (s *Server) RegisterMissionRoutes(commander *mission.Commander, querier *mission.Querier) {
	s.missionCommander = commander
	s.missionQuerier = querier

	authed := s.engine.Group("/", s.bearerAuth())
	authed.POST("/missions", s.createMission)
	authed.GET("/missions/:id", s.getMission)
	authed.PUT("/missions/:id", s.updateMission)
	authed.GET("/missions/:id/crew", s.getMissionCrew)
	authed.PUT("/missions/:id/crew", s.updateMissionCrew)
	authed.GET("/missions/:id/live", s.liveMission)
	authed.GET("/astronauts/:id/missions", s.getAstronautMissions)
}

// RegisterAuthRoutes mounts the auth service routes. Token endpoints carry
// their own credentials, so none of them sit behind the bearer middleware.
func (s *Server) RegisterAuthRoutes(commander *auth.Commander) {
	s.authCommander = commander

	s.engine.POST("/token", s.exchangeToken)
	s.engine.POST("/token/refresh", s.refreshToken)
	s.engine.POST("/token/revoke", s.revokeToken)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.engine}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}
