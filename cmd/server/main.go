package main

import (
	"supportchat/internal/config"
	"supportchat/internal/db"
	clog "supportchat/internal/log"
	"supportchat/internal/presence"
	"supportchat/internal/room"
	"supportchat/internal/server"
	"supportchat/internal/session"
	"supportchat/internal/store"
	"supportchat/internal/ws"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

func main() {
	// main 负责加载配置、初始化日志、连接 Postgres 和 Redis 并启动 Gin 服务。
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	clog.Init(cfg.Env)

	gdb, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	if err := db.Migrate(gdb); err != nil {
		log.Fatal().Err(err).Msg("db migrate")
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	pres := presence.NewRedisStore(rdb)

	st := store.New(gdb)
	coordinator := room.NewCoordinator(st)
	sessions := session.NewRegistry()
	hub := ws.NewHub()
	router := ws.NewRouter(cfg, st, coordinator, pres, sessions, hub)

	r := server.SetupRouter(cfg, gdb, st, router)
	log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("server start")
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server run")
	}
}
