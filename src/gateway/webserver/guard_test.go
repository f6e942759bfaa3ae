package webserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/fluffle-tools/gateway/src/gateway/types"
)

const testOrigin = "http://localhost:3000"

type fakeVerifier struct {
	user *discordgo.User
	err  error
}

func (f fakeVerifier) WhoAmI(ctx context.Context, token string) (*discordgo.User, error) {
	return f.user, f.err
}

type fakeUserStore struct {
	users map[string]*types.User
}

func (f fakeUserStore) FindUser(ctx context.Context, id string) (*types.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, errors.New("record not found")
	}
	return u, nil
}

func newTestGuard(v IdentityVerifier, s UserStore, userLimit int) *Guard {
	ip := NewRateLimiter(1000, time.Minute, WithSweepInterval(0))
	user := NewRateLimiter(userLimit, time.Minute, WithSweepInterval(0))
	return NewGuard(v, s, ip, user, []string{testOrigin}, zerolog.Nop())
}

func guardedRouter(g *Guard) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(SecurityHeaders())
	grp := r.Group("/")
	grp.Use(g.Chain()...)
	grp.GET("/secret", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": c.GetString(ctxUserID)})
	})
	return r
}

func sessionRequest(t *testing.T, blob interface{}, withOrigin bool) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/secret", nil)
	if withOrigin {
		req.Header.Set("Origin", testOrigin)
		req.Header.Set("Referer", testOrigin+"/tools")
	}
	raw, err := json.Marshal(blob)
	require.NoError(t, err)
	req.Header.Set("Cookie",
		CookieAccessToken+"=tok123; "+CookieUser+"="+url.QueryEscape(string(raw)))
	return req
}

func validBlob() identityBlob {
	return identityBlob{
		ID:       "123456789012345678",
		Username: "fluffholder",
		GuildIDs: []string{"999999999999999999"},
	}
}

func TestGuardRejectsMissingOriginRegardlessOfCookies(t *testing.T) {
	g := newTestGuard(
		fakeVerifier{user: &discordgo.User{ID: validBlob().ID, Username: validBlob().Username}},
		fakeUserStore{users: map[string]*types.User{
			validBlob().ID: {ID: validBlob().ID, Username: validBlob().Username},
		}},
		100,
	)
	r := guardedRouter(g)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, sessionRequest(t, validBlob(), false))
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, "DENY", w.Header().Get("X-Frame-Options"), "security headers attach on rejection too")
}

func TestGuardRejectsDisallowedOrigin(t *testing.T) {
	g := newTestGuard(fakeVerifier{}, fakeUserStore{}, 100)
	r := guardedRouter(g)

	req := sessionRequest(t, validBlob(), false)
	req.Header.Set("Origin", "https://evil.example")
	req.Header.Set("Referer", "https://evil.example/")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestGuardRejectsMissingCookies(t *testing.T) {
	g := newTestGuard(fakeVerifier{}, fakeUserStore{}, 100)
	r := guardedRouter(g)

	req := httptest.NewRequest(http.MethodGet, "/secret", nil)
	req.Header.Set("Origin", testOrigin)
	req.Header.Set("Referer", testOrigin+"/")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGuardRejectsMalformedIdentityBlob(t *testing.T) {
	g := newTestGuard(fakeVerifier{}, fakeUserStore{}, 100)
	r := guardedRouter(g)

	// Shape is JSON but lacks the guild id array.
	w := httptest.NewRecorder()
	r.ServeHTTP(w, sessionRequest(t, map[string]string{
		"id": "123456789012345678", "username": "fluffholder",
	}, true))
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGuardRejectsUsernameMismatch(t *testing.T) {
	blob := validBlob()
	g := newTestGuard(
		fakeVerifier{user: &discordgo.User{ID: blob.ID, Username: blob.Username}},
		fakeUserStore{users: map[string]*types.User{
			// Server-side record carries a different last-known name.
			blob.ID: {ID: blob.ID, Username: "someoneelse"},
		}},
		100,
	)
	r := guardedRouter(g)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, sessionRequest(t, blob, true))
	require.Equal(t, http.StatusUnauthorized, w.Code, "well-formed cookie with mismatched username is spoofing")
}

func TestGuardRejectsRevokedToken(t *testing.T) {
	g := newTestGuard(fakeVerifier{err: errors.New("401 unauthorized")}, fakeUserStore{}, 100)
	r := guardedRouter(g)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, sessionRequest(t, validBlob(), true))
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGuardHappyPathAndUserLimit(t *testing.T) {
	blob := validBlob()
	g := newTestGuard(
		fakeVerifier{user: &discordgo.User{ID: blob.ID, Username: blob.Username}},
		fakeUserStore{users: map[string]*types.User{
			blob.ID: {ID: blob.ID, Username: blob.Username},
		}},
		2,
	)
	r := guardedRouter(g)

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, sessionRequest(t, blob, true))
		require.Equal(t, http.StatusOK, w.Code)
	}

	// Third request in the window trips the per-user limiter.
	w := httptest.NewRecorder()
	r.ServeHTTP(w, sessionRequest(t, blob, true))
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.NotEmpty(t, w.Header().Get("Retry-After"))
}
