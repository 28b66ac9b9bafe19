package auth

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func protectedRouter(t *testing.T, v *Validator) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(v.Middleware())
	router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})
	return router
}

func TestValidator_EnvToken(t *testing.T) {
	t.Setenv("APPCORE_API_TOKEN", "secret-token")

	v, err := NewValidator()
	require.NoError(t, err)
	router := protectedRouter(t, v)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/ping", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/ping", nil)
	req.Header.Set("X-API-Token", "secret-token")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestValidator_RejectsMissingOrWrongToken(t *testing.T) {
	t.Setenv("APPCORE_API_TOKEN", "secret-token")

	v, err := NewValidator()
	require.NoError(t, err)
	router := protectedRouter(t, v)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/ping", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/ping", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestValidator_TokensFile(t *testing.T) {
	file := t.TempDir() + "/tokens"
	require.NoError(t, os.WriteFile(file, []byte("tok-a\n\n tok-b \n"), 0600))
	t.Setenv("APPCORE_API_TOKEN", "")
	t.Setenv("APPCORE_API_TOKENS_FILE", file)

	v, err := NewValidator()
	require.NoError(t, err)
	router := protectedRouter(t, v)

	for _, token := range []string{"tok-a", "tok-b"} {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/ping", nil)
		req.Header.Set("X-API-Token", token)
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, "token %q", token)
	}
}

func TestValidator_GeneratesTokenWhenUnconfigured(t *testing.T) {
	t.Setenv("APPCORE_API_TOKEN", "")
	t.Setenv("APPCORE_API_TOKENS_FILE", "")

	v, err := NewValidator()
	require.NoError(t, err)
	assert.Len(t, v.apiTokens, 1)
}
