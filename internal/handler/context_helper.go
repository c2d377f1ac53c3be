package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/kenseikai/dojo-api/internal/middleware"
	"github.com/kenseikai/dojo-api/internal/models"
)

// claimsFromContext returns the authenticated user's claims, or nil on
// routes reachable without the JWT middleware.
func claimsFromContext(c *gin.Context) *models.JWTClaims {
	v, ok := c.Get(middleware.ContextUserKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*models.JWTClaims)
	return claims
}
