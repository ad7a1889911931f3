// Package middleware provides HTTP middleware for the zonecourier
// ingress server: basic-auth realm enforcement and request logging.
package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zonecourier/zonecourier/internal/ingress/models"
)

// BasicAuth enforces HTTP basic auth for one realm. Two independent
// instances are mounted — app and peer — since the two realms use
// distinct credentials (spec.md §4.1/§6).
func BasicAuth(realm, username, password string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got, pass, ok := c.Request.BasicAuth()
		if ok && constantTimeEqual(got, username) && constantTimeEqual(pass, password) {
			c.Next()
			return
		}
		c.Header("WWW-Authenticate", `Basic realm="`+realm+`"`)
		c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{Error: "unauthorized"})
	}
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
