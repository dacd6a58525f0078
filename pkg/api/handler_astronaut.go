package api

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/astrolabs/astroevents/pkg/astronaut"
)

type createAstronautRequest struct {
	Name      string    `json:"name" binding:"required"`
	Password  string    `json:"password" binding:"required"`
	BirthDate time.Time `json:"birth_date" binding:"required"`
}

type updateAstronautRequest struct {
	Name      *string    `json:"name"`
	Password  *string    `json:"password"`
	BirthDate *time.Time `json:"birth_date"`
}

type createdResponse struct {
	ID string `json:"id"`
}

func (s *Server) createAstronaut(c *gin.Context) {
	var req createAstronautRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderBindError(c, err)
		return
	}

	id, err := s.astronautCommander.Create(c.Request.Context(), astronaut.CreateInput{
		Name:      req.Name,
		Password:  req.Password,
		BirthDate: req.BirthDate,
	})
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, createdResponse{ID: id})
}

func (s *Server) updateAstronaut(c *gin.Context) {
	var req updateAstronautRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderBindError(c, err)
		return
	}

	err := s.astronautCommander.Update(c.Request.Context(), mustClaims(c), c.Param("id"), astronaut.UpdateInput{
		Name:      req.Name,
		Password:  req.Password,
		BirthDate: req.BirthDate,
	})
	if err != nil {
		renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) getAstronaut(c *gin.Context) {
	view, err := s.astronautQuerier.GetByID(c.Request.Context(), mustClaims(c), c.Param("id"))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// liveAstronaut streams astronaut snapshots as server-sent events until the
// client disconnects or the token expires.
func (s *Server) liveAstronaut(c *gin.Context) {
	stream, err := s.astronautQuerier.Live(c.Request.Context(), mustClaims(c), c.Param("id"))
	if err != nil {
		renderError(c, err)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Stream(func(io.Writer) bool {
		view, ok := <-stream
		if !ok {
			return false
		}
		data, err := json.Marshal(view)
		if err != nil {
			return false
		}
		c.SSEvent("astronaut_updated", string(data))
		return true
	})
}
