package webserver

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/fluffle-tools/gateway/src/bridge"
	"github.com/fluffle-tools/gateway/src/gateway/config"
	"github.com/fluffle-tools/gateway/src/gateway/data"
	"github.com/fluffle-tools/gateway/src/gateway/discord"
	"github.com/fluffle-tools/gateway/src/gateway/projects"
)

func attachRoutes(r *gin.Engine, cfg config.Config, db *gorm.DB, rdb *redis.Client, logger zerolog.Logger) {
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length", "Retry-After", "X-Request-ID"},
		AllowCredentials: true,
	}))

	verifier := discord.NewVerifier(cfg.DiscordBotToken, logger)
	oauth := discord.NewOAuth(cfg.DiscordClientID, cfg.DiscordClientSecret, cfg.DiscordRedirectURL)

	ipLimiter := NewRateLimiter(cfg.RateLimitMax, cfg.RateLimitWindow, WithSweepInterval(cfg.SweepInterval))
	userLimiter := NewRateLimiter(cfg.RateLimitMax, cfg.RateLimitWindow, WithSweepInterval(cfg.SweepInterval))
	guard := NewGuard(verifier, data.Users{DB: db}, ipLimiter, userLimiter, cfg.AllowedOrigins, logger)

	bridgeClient := bridge.NewClient(cfg.BridgeAPIURL, logger)
	bridgeH := NewBridge(bridgeClient, cfg.PollInterval, cfg.AllowedOrigins, logger)
	authH := NewAuth(db, rdb, oauth, verifier, cfg.DiscordGuildID, []byte(cfg.SessionSecret), cfg.SecureCookies, logger)
	voteH := NewVotes(db, rdb, logger)
	bingoH := NewBingo(db, logger)

	api := r.Group("/api")
	api.Use(IPRateLimit(ipLimiter))
	{
		api.GET("/bridge/health", bridgeH.Health)
		api.GET("/bridge/config", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"explorerBaseUrl": cfg.ExplorerBaseURL,
				"pollIntervalMs":  cfg.PollInterval.Milliseconds(),
			})
		})
		api.GET("/bridge/status", bridgeH.Status)
		api.POST("/bridge/deposit", bridgeH.Deposit)
		api.GET("/bridge/watch", bridgeH.Watch)

		api.GET("/auth/discord/login", authH.Login)
		api.GET("/auth/discord/callback", authH.Callback)
		api.POST("/auth/logout", authH.Logout)

		api.GET("/votes/hasUpvoted", voteH.HasUpvoted)
		api.GET("/votes/counts", voteH.Counts)
		api.GET("/projects", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"projects": projects.All()})
		})
	}

	// Privileged writes run the full gate sequence: origin check,
	// per-request identity re-verification, then the user limiter.
	secured := r.Group("/api")
	secured.Use(guard.Chain()...)
	{
		secured.POST("/votes", voteH.Cast)
		secured.DELETE("/votes", voteH.Withdraw)

		secured.GET("/bingo/progress", bingoH.Get)
		secured.POST("/bingo/progress", bingoH.Put)
		secured.DELETE("/bingo/progress", bingoH.Delete)
	}
}
