package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/fluffle-tools/gateway/src/gateway/config"
	"github.com/fluffle-tools/gateway/src/gateway/data"
	"github.com/fluffle-tools/gateway/src/gateway/types"
	"github.com/fluffle-tools/gateway/src/gateway/webserver"
)

var allModels = []interface{}{
	&types.User{}, &types.ProjectVote{}, &types.BingoProgress{},
}

func migrate(db *gorm.DB, log zerolog.Logger) {
	if err := db.AutoMigrate(allModels...); err != nil {
		log.Fatal().Err(err).Msg("migrate")
	}
}

func main() {
	logger := zerolog.New(os.Stderr).With().Timestamp().Str("service", "gateway").Logger()

	cfg := config.Load()

	db := data.MustMySQL(cfg.MySQLDSN)
	migrate(db, logger)

	rdb := data.MustRedis(cfg.RedisURL)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		logger.Fatal().Err(err).Msg("redis ping")
	}

	router := webserver.New(cfg, db, rdb, logger)
	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http")
		}
	}()
	logger.Info().Str("port", cfg.Port).Msg("gateway listening")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutCtx)
	logger.Info().Msg("gateway stopped")
}
