package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/uniadm/academic-api/internal/middleware"
	"github.com/uniadm/academic-api/internal/models"
)

// claimsFromContext extracts the authenticated user's claims installed by the
// JWT middleware.
func claimsFromContext(c *gin.Context) (*models.JWTClaims, bool) {
	value, ok := c.Get(middleware.ContextUserKey)
	if !ok {
		return nil, false
	}
	claims, ok := value.(*models.JWTClaims)
	return claims, ok
}

// historyContext attributes the request's database writes to the acting user.
func historyContext(c *gin.Context, claims *models.JWTClaims) models.HistoryContext {
	hc := models.HistoryContext{
		IPAddress: c.ClientIP(),
		UserAgent: c.GetHeader("User-Agent"),
	}
	if claims != nil {
		if id, err := models.ParseID(claims.UserID); err == nil {
			hc.ActorID = id
		}
		hc.ActorName = claims.FullName
	}
	return hc
}
