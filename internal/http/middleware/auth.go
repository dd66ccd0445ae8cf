// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements the X-API-Key gate protecting every endpoint except
// health and metrics. The deployment is single-tenant: one shared key,
// supplied out of band to the agent that drives the API.
package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// APIKeyHeader is the HTTP header carrying the client credential.
const APIKeyHeader = "X-API-Key"

// APIKeyAuth returns a Gin middleware that rejects requests whose
// X-API-Key header does not match key. The comparison is constant-time.
//
// A missing or wrong key yields:
//
//	HTTP/1.1 401 Unauthorized
//	{ "request_id": "...", "code": "unauthorized", "message": "invalid or missing API key" }
func APIKeyAuth(key string) gin.HandlerFunc {
	expected := []byte(key)
	return func(c *gin.Context) {
		got := []byte(c.GetHeader(APIKeyHeader))
		if len(expected) == 0 || subtle.ConstantTimeCompare(got, expected) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "unauthorized",
				"message":    "invalid or missing API key",
			})
			return
		}
		c.Next()
	}
}
