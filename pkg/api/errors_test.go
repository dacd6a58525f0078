package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astrolabs/astroevents/pkg/errs"
	"github.com/astrolabs/astroevents/pkg/token"
)

func TestStatusForMapsTaxonomy(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{errs.ErrNotFound, http.StatusNotFound},
		{errs.ErrConflict, http.StatusConflict},
		{errs.ErrForbidden, http.StatusForbidden},
		{errs.ErrBadCredentials, http.StatusUnauthorized},
		{errs.ErrNoFieldsToUpdate, http.StatusBadRequest},
		{errs.ErrMalformed, http.StatusBadRequest},
		{fmt.Errorf("lookup: %w", errs.ErrNotFound), http.StatusNotFound},
		{errors.New("broker unavailable"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		status, _ := statusFor(tt.err)
		assert.Equal(t, tt.want, status, "error %v", tt.err)
	}
}

func TestHealthRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := NewServer(nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	s.engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func TestBearerAuthRejectsMissingAndBadTokens(t *testing.T) {
	gin.SetMode(gin.TestMode)

	verifier := newTestVerifier(t)
	s := NewServer(verifier)
	s.engine.GET("/protected", s.bearerAuth(), func(c *gin.Context) {
		claims := mustClaims(c)
		c.JSON(http.StatusOK, gin.H{"aid": claims.AstronautID})
	})

	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/protected", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "no header")

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	s.engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "bad token")
}

func TestBearerAuthAcceptsValidToken(t *testing.T) {
	gin.SetMode(gin.TestMode)

	signer := newTestSignerAPI(t)
	s := NewServer(&signer.Verifier)
	s.engine.GET("/protected", s.bearerAuth(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"aid": mustClaims(c).AstronautID})
	})

	raw, err := signer.Produce(token.Claims{AstronautID: "astro-1"}, token.AccessTokenTTL)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	s.engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"aid":"astro-1"}`, rec.Body.String())
}
