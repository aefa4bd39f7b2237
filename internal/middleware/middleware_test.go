package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/pkg/errors"
	"github.com/jwalitptl/hospital-api/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type tokenTable map[string]model.Identity

func (t tokenTable) Authenticate(token string) (*model.Identity, error) {
	if id, ok := t[token]; ok {
		return &id, nil
	}
	return nil, errors.NewUnauthenticated("invalid or expired token", nil)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestAuthenticate(t *testing.T) {
	doctor := model.Identity{ID: uuid.New(), Role: model.RoleDoctor}
	m := NewAuthMiddleware(tokenTable{"good": doctor})

	r := gin.New()
	r.GET("/me", m.Authenticate(), func(c *gin.Context) {
		actor, ok := Actor(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{"id": actor.ID.String()})
	})

	tests := map[string]struct {
		header, query string
		want          int
	}{
		"bearer header":    {header: "Bearer good", want: http.StatusOK},
		"lowercase scheme": {header: "bearer good", want: http.StatusOK},
		"query param":      {query: "?access_token=good", want: http.StatusOK},
		"missing":          {want: http.StatusUnauthorized},
		"wrong scheme":     {header: "Basic good", want: http.StatusUnauthorized},
		"unknown token":    {header: "Bearer nope", want: http.StatusUnauthorized},
		"header wins":      {header: "Bearer nope", query: "?access_token=good", want: http.StatusUnauthorized},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusUnauthorized {
				assert.Equal(t, "unauthenticated", decode(t, w)["code"])
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	m := NewAuthMiddleware(tokenTable{
		"admin":   {ID: uuid.New(), Role: model.RoleAdmin},
		"patient": {ID: uuid.New(), Role: model.RolePatient},
	})

	r := gin.New()
	r.GET("/admin", m.Authenticate(), m.RequireRole(model.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	for token, want := range map[string]int{"admin": http.StatusNoContent, "patient": http.StatusForbidden} {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, want, w.Code, token)
	}
}

func TestRateLimit_PerClient(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: rate.Limit(0.001), Burst: 2})

	r := gin.New()
	r.GET("/", rl.RateLimit(), func(c *gin.Context) { c.Status(http.StatusOK) })

	hit := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, hit("10.0.0.1"))
	assert.Equal(t, http.StatusOK, hit("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, hit("10.0.0.1"))
	assert.Equal(t, http.StatusOK, hit("10.0.0.2"))
}

func TestCORS(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.AllowOrigins = []string{"https://app.hospital.example"}

	r := gin.New()
	r.Use(CORS(cfg))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "https://app.hospital.example")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.hospital.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "86400", w.Header().Get("Access-Control-Max-Age"))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestSizeLimit(t *testing.T) {
	r := gin.New()
	r.POST("/", SizeLimit(16), func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 32)))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_input", decode(t, w)["code"])
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), Recovery(logger.Nop()))
	r.GET("/", func(c *gin.Context) { panic("kaboom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decode(t, w)
	assert.Equal(t, "internal", body["code"])
	assert.NotContains(t, w.Body.String(), "kaboom")
	assert.NotEmpty(t, w.Header().Get(HeaderXRequestID))
}
