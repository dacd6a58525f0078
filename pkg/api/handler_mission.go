package api

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/astrolabs/astroevents/pkg/mission"
)

type createMissionRequest struct {
	Name      string    `json:"name" binding:"required"`
	StartDate time.Time `json:"start_date" binding:"required"`
}

type updateMissionRequest struct {
	Name      *string    `json:"name"`
	StartDate *time.Time `json:"start_date"`
}

type updateCrewRequest struct {
	AstronautID string         `json:"astronaut_id" binding:"required"`
	Roles       []mission.Role `json:"roles"`
}

func (s *Server) createMission(c *gin.Context) {
	var req createMissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderBindError(c, err)
		return
	}

	id, err := s.missionCommander.Create(c.Request.Context(), mustClaims(c), mission.CreateInput{
		Name:      req.Name,
		StartDate: req.StartDate,
	})
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, createdResponse{ID: id})
}

func (s *Server) updateMission(c *gin.Context) {
	var req updateMissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderBindError(c, err)
		return
	}

	err := s.missionCommander.Update(c.Request.Context(), mustClaims(c), c.Param("id"), mission.UpdateInput{
		Name:      req.Name,
		StartDate: req.StartDate,
	})
	if err != nil {
		renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) updateMissionCrew(c *gin.Context) {
	var req updateCrewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderBindError(c, err)
		return
	}

	err := s.missionCommander.UpdateCrew(c.Request.Context(), mustClaims(c), mission.UpdateCrewInput{
		MissionID:   c.Param("id"),
		AstronautID: req.AstronautID,
		Roles:       req.Roles,
	})
	if err != nil {
		renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) getMission(c *gin.Context) {
	view, err := s.missionQuerier.GetByID(c.Request.Context(), mustClaims(c), c.Param("id"))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) getMissionCrew(c *gin.Context) {
	crew, err := s.missionQuerier.CrewOf(c.Request.Context(), mustClaims(c), c.Param("id"))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, crew)
}

func (s *Server) getAstronautMissions(c *gin.Context) {
	refs, err := s.missionQuerier.MissionsOf(c.Request.Context(), mustClaims(c), c.Param("id"))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, refs)
}

// liveMission streams mission views (mission plus crew) as server-sent
// events until the client disconnects or the token expires.
func (s *Server) liveMission(c *gin.Context) {
	stream, err := s.missionQuerier.Live(c.Request.Context(), mustClaims(c), c.Param("id"))
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
		c.SSEvent("mission_updated", string(data))
		return true
	})
}
