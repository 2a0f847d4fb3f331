package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != "8080" {
		t.Errorf("port = %q, want 8080", cfg.Port)
	}
	if cfg.Env != "dev" {
		t.Errorf("env = %q, want dev", cfg.Env)
	}
	if cfg.AccessTokenTTLMinutes != 15 {
		t.Errorf("access token ttl = %d, want 15", cfg.AccessTokenTTLMinutes)
	}
	if cfg.WsReadLimit != 1<<20 {
		t.Errorf("ws read limit = %d, want %d", cfg.WsReadLimit, 1<<20)
	}
	if len(cfg.AllowedOrigins) == 0 {
		t.Error("allowed origins should have a dev default")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("APP_PORT", "9999")
	t.Setenv("APP_JWT_SECRET", "test-secret")
	t.Setenv("APP_REDIS_DB", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != "9999" {
		t.Errorf("port = %q, want env override 9999", cfg.Port)
	}
	if cfg.JWTSecret != "test-secret" {
		t.Errorf("jwt secret not taken from env: %q", cfg.JWTSecret)
	}
	if cfg.RedisDB != 3 {
		t.Errorf("redis db = %d, want 3", cfg.RedisDB)
	}
}
