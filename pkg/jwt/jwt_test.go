package jwt

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"im-social/config"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService() *JWTService {
	return NewJWTService(config.JWTConfig{Secret: "test-secret-0123456789", Issuer: "im-social", ExpireTime: time.Hour})
}

func TestGenerateAndValidate(t *testing.T) {
	s := newService()
	token, err := s.GenerateToken(42, map[string]interface{}{"role": "admin"})
	require.NoError(t, err)

	claims, err := s.ValidateToken(token)
	require.NoError(t, err)
	id, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, uint(42), id)
	assert.Equal(t, "admin", claims.Role())
}

func TestExpiredToken(t *testing.T) {
	s := newService()
	base := time.Now()
	s.now = func() time.Time { return base }
	token, err := s.GenerateToken(1, nil)
	require.NoError(t, err)

	s.now = func() time.Time { return base.Add(2 * time.Hour) }
	_, err = s.ValidateToken(token)
	assert.Error(t, err)
}

func TestWrongIssuer(t *testing.T) {
	token, err := newService().GenerateToken(1, nil)
	require.NoError(t, err)

	other := NewJWTService(config.JWTConfig{Secret: "test-secret-0123456789", Issuer: "someone-else", ExpireTime: time.Hour})
	_, err = other.ValidateToken(token)
	assert.Error(t, err)
}

func TestMiddlewareAndRequireRole(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := newService()

	r := gin.New()
	r.GET("/me", s.AuthMiddleware(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": GetUserID(c)})
	})
	r.GET("/admin", s.AuthMiddleware(), RequireRole("admin"), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	userToken, _ := s.GenerateToken(5, map[string]interface{}{"role": "user"})

	cases := []struct {
		name   string
		path   string
		header string
		code   float64
	}{
		{"missing header", "/me", "", http.StatusUnauthorized},
		{"bad scheme", "/me", "Token abc", http.StatusUnauthorized},
		{"garbage token", "/me", "Bearer abc", http.StatusUnauthorized},
		{"not admin", "/admin", "Bearer " + userToken, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			r.ServeHTTP(w, req)

			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tc.code, body["code"])
		})
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+userToken)
	r.ServeHTTP(w, req)
	assert.JSONEq(t, `{"id":5}`, w.Body.String())
}
