package webserver

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"

	"github.com/bwmarrin/discordgo"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/fluffle-tools/gateway/src/gateway/types"
)

const (
	CookieAccessToken = "discord_access_token"
	CookieUser        = "discord_user"

	ctxUserID = "userID"
)

var snowflakeRe = regexp.MustCompile(`^[0-9]{17,20}$`)

// identityBlob is the JSON carried in the discord_user cookie.
type identityBlob struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	GuildIDs []string `json:"guildIds"`
}

func (b identityBlob) wellFormed() bool {
	return snowflakeRe.MatchString(b.ID) && b.Username != "" && b.GuildIDs != nil
}

// IdentityVerifier re-validates an access token with the identity
// provider on every request.
type IdentityVerifier interface {
	WhoAmI(ctx context.Context, accessToken string) (*discordgo.User, error)
}

// UserStore looks up the server-side user record for spoof checks.
type UserStore interface {
	FindUser(ctx context.Context, id string) (*types.User, error)
}

// Guard gates the privileged vote/bingo routes. The chain order is
// fixed: IP limit, origin check, identity verification, user limit.
type Guard struct {
	verifier IdentityVerifier
	users    UserStore

	ipLimiter   *RateLimiter
	userLimiter *RateLimiter

	allowedOrigins map[string]struct{}
	log            zerolog.Logger
}

func NewGuard(verifier IdentityVerifier, users UserStore, ipLimiter, userLimiter *RateLimiter, origins []string, logger zerolog.Logger) *Guard {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	return &Guard{
		verifier:       verifier,
		users:          users,
		ipLimiter:      ipLimiter,
		userLimiter:    userLimiter,
		allowedOrigins: allowed,
		log:            logger.With().Str("component", "guard").Logger(),
	}
}

// Chain returns the full middleware sequence for privileged routes.
func (g *Guard) Chain() []gin.HandlerFunc {
	return []gin.HandlerFunc{
		IPRateLimit(g.ipLimiter),
		g.OriginCheck(),
		g.RequireSession(),
		g.UserRateLimit(),
	}
}

// OriginCheck rejects mutating cross-site requests: both Origin and
// Referer must be present and Origin must be allow-listed.
func (g *Guard) OriginCheck() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		referer := c.GetHeader("Referer")
		if origin == "" || referer == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "missing origin"})
			return
		}
		if _, ok := g.allowedOrigins[origin]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "origin not allowed"})
			return
		}
		c.Next()
	}
}

// RequireSession authenticates the caller from the two session cookies.
// The access token is re-validated with the provider every time; a
// previously valid token earns no local trust. The cookie identity is
// cross-checked against the server-side record, and a username mismatch
// is treated as spoofing, not drift.
func (g *Guard) RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(CookieAccessToken)
		blobRaw, err2 := c.Cookie(CookieUser)
		if err != nil || err2 != nil || token == "" || blobRaw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
			return
		}

		var blob identityBlob
		if jsonErr := json.Unmarshal([]byte(blobRaw), &blob); jsonErr != nil || !blob.wellFormed() {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "malformed identity"})
			return
		}

		u, err := g.verifier.WhoAmI(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session invalid or expired"})
			return
		}
		if u.ID != blob.ID {
			g.log.Warn().Str("cookieId", blob.ID).Str("tokenId", u.ID).Msg("identity cookie does not match token owner")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity mismatch"})
			return
		}

		stored, err := g.users.FindUser(c.Request.Context(), blob.ID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown identity"})
			return
		}
		if stored.Username != blob.Username {
			g.log.Warn().Str("userId", blob.ID).Msg("username mismatch against stored record")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity mismatch"})
			return
		}

		c.Set(ctxUserID, u.ID)
		c.Next()
	}
}

// UserRateLimit gates by verified user id, tracked independently of the
// IP limiter.
func (g *Guard) UserRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetString(ctxUserID)
		if key == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
			return
		}
		if !g.userLimiter.Allow(key) {
			rejectRateLimited(c, g.userLimiter, key)
			return
		}
		c.Next()
	}
}
