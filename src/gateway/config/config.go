package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port     string
	MySQLDSN string
	RedisURL string

	BridgeAPIURL    string
	PollInterval    time.Duration
	ExplorerBaseURL string

	DiscordClientID     string
	DiscordClientSecret string
	DiscordBotToken     string
	DiscordGuildID      string
	DiscordRedirectURL  string

	SessionSecret  string
	SecureCookies  bool
	AllowedOrigins []string

	RateLimitMax    int
	RateLimitWindow time.Duration
	SweepInterval   time.Duration
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		if def == "" {
			log.Fatalf("missing env %s", key)
		}
		return def
	}
	return v
}

func Load() Config {
	// Local development convenience; missing .env is fine.
	_ = godotenv.Load()

	pollMS, _ := strconv.Atoi(getenv("BRIDGE_POLL_INTERVAL_MS", "5000"))
	rlMax, _ := strconv.Atoi(getenv("RATE_LIMIT_MAX", "100"))
	rlWinS, _ := strconv.Atoi(getenv("RATE_LIMIT_WINDOW_SECONDS", "900"))
	sweepS, _ := strconv.Atoi(getenv("RATE_LIMIT_SWEEP_SECONDS", "3600"))

	return Config{
		Port:     getenv("PORT", "8080"),
		MySQLDSN: getenv("MYSQL_DSN", "fluffle:fluffle@tcp(127.0.0.1:3306)/fluffle"),
		RedisURL: getenv("REDIS_URL", "redis://127.0.0.1:6379/0"),

		BridgeAPIURL:    getenv("BRIDGE_API_URL", "http://127.0.0.1:9090"),
		PollInterval:    time.Duration(pollMS) * time.Millisecond,
		ExplorerBaseURL: getenv("EXPLORER_BASE_URL", "https://arbiscan.io"),

		DiscordClientID:     getenv("DISCORD_CLIENT_ID", ""),
		DiscordClientSecret: getenv("DISCORD_CLIENT_SECRET", ""),
		DiscordBotToken:     os.Getenv("DISCORD_BOT_TOKEN"),
		DiscordGuildID:      os.Getenv("DISCORD_GUILD_ID"),
		DiscordRedirectURL:  getenv("DISCORD_REDIRECT_URL", "http://localhost:8080/api/auth/discord/callback"),

		SessionSecret: getenv("SESSION_SECRET", ""),
		SecureCookies: getenv("SECURE_COOKIES", "true") == "true",
		AllowedOrigins: splitCommaList(getenv("ALLOWED_ORIGINS",
			"http://localhost:3000,https://fluffle.tools")),

		RateLimitMax:    rlMax,
		RateLimitWindow: time.Duration(rlWinS) * time.Second,
		SweepInterval:   time.Duration(sweepS) * time.Second,
	}
}

func splitCommaList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
