package webserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/fluffle-tools/gateway/src/gateway/config"
)

// liveRouter wires the real route table. Storage and identity stay nil:
// every assertion here must be decided before any of them is touched.
func liveRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg := config.Config{
		BridgeAPIURL:    "http://127.0.0.1:1",
		PollInterval:    time.Second,
		AllowedOrigins:  []string{testOrigin},
		RateLimitMax:    100,
		RateLimitWindow: time.Minute,
		SweepInterval:   0,
	}
	r := gin.New()
	r.Use(SecurityHeaders())
	attachRoutes(r, cfg, nil, nil, zerolog.Nop())
	return r
}

// Privileged writes on the real route table reject before anything else
// when the Origin header is missing, even with session cookies present.
func TestRouteTableGuardsPrivilegedWrites(t *testing.T) {
	r := liveRouter()
	raw, err := json.Marshal(validBlob())
	require.NoError(t, err)
	cookie := CookieAccessToken + "=tok123; " + CookieUser + "=" + url.QueryEscape(string(raw))

	routes := []struct {
		method, path string
	}{
		{http.MethodPost, "/api/votes"},
		{http.MethodDelete, "/api/votes"},
		{http.MethodGet, "/api/bingo/progress"},
		{http.MethodPost, "/api/bingo/progress"},
		{http.MethodDelete, "/api/bingo/progress"},
	}
	for _, rt := range routes {
		req := httptest.NewRequest(rt.method, rt.path, nil)
		req.Header.Set("Cookie", cookie)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusForbidden, w.Code, "%s %s", rt.method, rt.path)
		require.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	}
}

func TestRouteTableRejectsDisallowedOrigin(t *testing.T) {
	r := liveRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/votes", nil)
	req.Header.Set("Origin", "https://evil.example")
	req.Header.Set("Referer", "https://evil.example/")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusForbidden, w.Code)
}

// Public reads stay reachable without a session.
func TestRouteTablePublicReads(t *testing.T) {
	r := liveRouter()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/projects", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "projects")

	// Registered and validated before storage: bad input is 400, not 404.
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/votes/hasUpvoted", nil))
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/bridge/status", nil))
	require.Equal(t, http.StatusBadRequest, w.Code)
}
