// Package auth guards the loopback control API. The presentation shell
// authenticates with a bearer token shared at launch; there is no TLS on
// the loopback listener.
package auth

import (
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/relaychat/appcore/pkg/types"
	"github.com/sirupsen/logrus"
)

// Validator handles control API authentication.
type Validator struct {
	apiTokens map[string]bool
}

// NewValidator loads API tokens from the environment. With no token
// configured, a one-off token is generated and logged so a locally launched
// shell can still connect.
func NewValidator() (*Validator, error) {
	validator := &Validator{
		apiTokens: make(map[string]bool),
	}

	if err := validator.loadAPITokens(); err != nil {
		return nil, fmt.Errorf("failed to load API tokens: %w", err)
	}

	return validator, nil
}

// loadAPITokens reads APPCORE_API_TOKEN and, optionally, a token file with
// one token per line.
func (v *Validator) loadAPITokens() error {
	if token := strings.TrimSpace(os.Getenv("APPCORE_API_TOKEN")); token != "" {
		v.apiTokens[token] = true
	}

	tokenFile := os.Getenv("APPCORE_API_TOKENS_FILE")
	if tokenFile != "" {
		content, err := os.ReadFile(tokenFile)
		if err != nil {
			return fmt.Errorf("failed to read API tokens file: %w", err)
		}
		for _, line := range strings.Split(string(content), "\n") {
			token := strings.TrimSpace(line)
			if token != "" {
				v.apiTokens[token] = true
			}
		}
	}

	if len(v.apiTokens) == 0 {
		token := uuid.New().String()
		v.apiTokens[token] = true
		logrus.WithField("token", token).Warn("No API token configured; generated a session token")
	}

	return nil
}

// Middleware returns gin middleware enforcing token authentication.
func (v *Validator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if v.validateAPIToken(c) {
			c.Next()
			return
		}

		c.AbortWithStatusJSON(401, types.ErrorResponse{
			Error:   "authentication required",
			Message: "provide a valid API token",
			Code:    401,
		})
	}
}

// validateAPIToken checks the Authorization and X-API-Token headers.
func (v *Validator) validateAPIToken(c *gin.Context) bool {
	authHeader := c.GetHeader("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return v.apiTokens[strings.TrimPrefix(authHeader, "Bearer ")]
	}

	token := c.GetHeader("X-API-Token")
	if token != "" {
		return v.apiTokens[token]
	}

	return false
}
