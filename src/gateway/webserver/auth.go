package webserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fluffle-tools/gateway/src/gateway/data"
	"github.com/fluffle-tools/gateway/src/gateway/discord"
	"github.com/fluffle-tools/gateway/src/gateway/types"
)

const (
	sessionMaxAge = 7 * 24 * 3600 // seconds
	stateTTL      = 10 * time.Minute
)

// Auth owns the Discord OAuth login flow and session cookie issuance.
// The callback is also where the server-side "last-known username"
// record gets written; the guard checks against it later.
type Auth struct {
	db       *gorm.DB
	rdb      *redis.Client
	oauth    *discord.OAuth
	verifier *discord.Verifier
	guildID  string
	secret   []byte
	secure   bool
	log      zerolog.Logger
}

func NewAuth(db *gorm.DB, rdb *redis.Client, oauth *discord.OAuth, verifier *discord.Verifier, guildID string, secret []byte, secureCookies bool, logger zerolog.Logger) Auth {
	return Auth{
		db:       db,
		rdb:      rdb,
		oauth:    oauth,
		verifier: verifier,
		guildID:  guildID,
		secret:   secret,
		secure:   secureCookies,
		log:      logger.With().Str("component", "auth").Logger(),
	}
}

// Login issues a signed, single-use state and redirects to Discord.
func (a Auth) Login(c *gin.Context) {
	nonce := uuid.NewString()
	if err := data.SetOAuthState(c, a.rdb, nonce); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login unavailable"})
		return
	}
	claims := jwt.MapClaims{
		"state": nonce,
		"exp":   time.Now().Add(stateTTL).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login unavailable"})
		return
	}
	c.Redirect(http.StatusFound, a.oauth.AuthorizeURL(signed))
}

// Callback completes the code flow: state signature + single-use nonce,
// code exchange, identity fetch, user upsert, cookie issuance.
func (a Auth) Callback(c *gin.Context) {
	code := c.Query("code")
	stateTok := c.Query("state")
	if code == "" || stateTok == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing code or state"})
		return
	}

	tok, err := jwt.Parse(stateTok, func(t *jwt.Token) (interface{}, error) { return a.secret, nil },
		jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !tok.Valid {
		c.JSON(http.StatusForbidden, gin.H{"error": "bad state"})
		return
	}
	nonce, _ := tok.Claims.(jwt.MapClaims)["state"].(string)
	if nonce == "" || data.TakeOAuthState(c, a.rdb, nonce) != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "state expired"})
		return
	}

	accessToken, err := a.oauth.Exchange(c.Request.Context(), code)
	if err != nil {
		a.log.Error().Err(err).Msg("code exchange failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "identity provider unavailable"})
		return
	}

	u, err := a.verifier.WhoAmI(c.Request.Context(), accessToken)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "identity provider unavailable"})
		return
	}
	guildIDs, err := a.verifier.GuildIDs(c.Request.Context(), accessToken)
	if err != nil {
		guildIDs = []string{}
	}

	// Membership gate, checked with the bot's credentials so a forged
	// guild list in the user's own responses cannot satisfy it.
	member, err := a.verifier.MemberOf(c.Request.Context(), a.guildID, u.ID)
	if err != nil {
		a.log.Error().Err(err).Str("userId", u.ID).Msg("membership lookup failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "identity provider unavailable"})
		return
	}
	if !member {
		a.log.Warn().Str("userId", u.ID).Msg("login refused, not a guild member")
		c.JSON(http.StatusForbidden, gin.H{"error": "guild membership required"})
		return
	}

	now := time.Now()
	user := types.User{
		ID:          u.ID,
		Username:    u.Username,
		AvatarURL:   discord.AvatarURL(u),
		LastLoginAt: now,
	}
	if err := a.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "avatar_url", "last_login_at"}),
	}).Create(&user).Error; err != nil {
		a.log.Error().Err(err).Str("userId", u.ID).Msg("user upsert failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	blob, err := json.Marshal(identityBlob{ID: u.ID, Username: u.Username, GuildIDs: guildIDs})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CookieAccessToken, accessToken, sessionMaxAge, "/", "", a.secure, true)
	c.SetCookie(CookieUser, string(blob), sessionMaxAge, "/", "", a.secure, true)
	c.Redirect(http.StatusFound, "/")
}

// Logout clears both session cookies.
func (a Auth) Logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CookieAccessToken, "", -1, "/", "", a.secure, true)
	c.SetCookie(CookieUser, "", -1, "/", "", a.secure, true)
	c.JSON(http.StatusOK, gin.H{"success": true})
}
