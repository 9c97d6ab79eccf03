package main

import (
	"github.com/secondme-labs/match-backend/internal/config"
	"github.com/secondme-labs/match-backend/internal/db"
	"github.com/secondme-labs/match-backend/internal/httpapi"
	"github.com/secondme-labs/match-backend/internal/logger"
	"github.com/secondme-labs/match-backend/internal/secondme"
	"github.com/secondme-labs/match-backend/internal/store/rabbitmq"
	"github.com/secondme-labs/match-backend/internal/store/redisstore"
)

func main() {
	cfg := config.MustLoad()
	log := logger.New(cfg.AppEnv)

	gdb, err := db.Connect(cfg.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect failed")
	}
	if err := db.Migrate(gdb); err != nil {
		log.Fatal().Err(err).Msg("db migrate failed")
	}

	sessions, err := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatal().Err(err).Msg("redis connect failed")
	}
	defer sessions.Close()

	rabbit, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		log.Fatal().Err(err).Msg("rabbit connect failed")
	}
	defer rabbit.Close()

	sm := secondme.NewClient(cfg, log)

	r := httpapi.NewRouter(gdb, cfg, sessions, sm, rabbit, log)

	log.Info().Str("port", cfg.Port).Msg("server listening")
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
