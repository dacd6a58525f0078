package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/astrolabs/astroevents/pkg/auth"
)

type credentialsRequest struct {
	Name     string `json:"name" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type refreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

func (s *Server) exchangeToken(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderBindError(c, err)
		return
	}

	pair, err := s.authCommander.Exchange(c.Request.Context(), auth.CredentialsInput{
		Name:     req.Name,
		Password: req.Password,
	})
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, pair)
}

func (s *Server) refreshToken(c *gin.Context) {
	var req refreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderBindError(c, err)
		return
	}

	pair, err := s.authCommander.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, pair)
}

func (s *Server) revokeToken(c *gin.Context) {
	var req refreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderBindError(c, err)
		return
	}

	if err := s.authCommander.Revoke(c.Request.Context(), req.RefreshToken); err != nil {
		renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
