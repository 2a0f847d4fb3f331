package config

import (
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port                  string   `mapstructure:"port"`
	Env                   string   `mapstructure:"env"`
	DatabaseDSN           string   `mapstructure:"database_dsn"`
	RedisAddr             string   `mapstructure:"redis_addr"`
	RedisDB               int      `mapstructure:"redis_db"`
	JWTSecret             string   `mapstructure:"jwt_secret"`
	AccessTokenTTLMinutes int      `mapstructure:"access_token_ttl_minutes"`
	AllowedOrigins        []string `mapstructure:"allowed_origins"`
	WsReadLimit           int64    `mapstructure:"ws_read_limit"`
}

// Load 读取配置：默认值 < 可选的 config.yaml < 环境变量（APP_ 前缀）。
func Load() (Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("port", "8080")
	v.SetDefault("env", "dev")
	v.SetDefault("database_dsn", "host=localhost user=postgres password=postgres dbname=supportchat port=5432 sslmode=disable TimeZone=UTC")
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_db", 0)
	v.SetDefault("jwt_secret", "dev-secret-change-me")
	v.SetDefault("access_token_ttl_minutes", 15)
	v.SetDefault("allowed_origins", []string{"http://localhost:5173", "http://localhost:5174"})
	v.SetDefault("ws_read_limit", 1<<20)

	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 配置文件缺失不算错误，环境变量和默认值足够启动。
	_ = v.ReadInConfig()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
