package config

import (
	"os"
	"testing"
)

func clearConfigEnv() {
	for _, k := range []string{
		"SERVER_HOST", "SERVER_PORT", "SERVER_SUBPATH", "JWT_SECRET",
		"POSTGRES_DSN", "REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
		"GENERATIVE_MODEL_NAME", "GENERATIVE_MODEL_URL",
		"EMBEDDING_MODEL_NAME", "EMBEDDING_MODEL_URL",
	} {
		os.Unsetenv(k)
	}
}

func TestLoadConfig_EnvDefaultsAndOverrides(t *testing.T) {
	ResetConfigForTest()
	clearConfigEnv()
	defer clearConfigEnv()

	os.Setenv("JWT_SECRET", "mysecret")
	os.Setenv("SERVER_HOST", "localhost")
	os.Setenv("SERVER_PORT", "9090")
	os.Setenv("GENERATIVE_MODEL_NAME", "llama.cpp")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Server.Host != "localhost" || cfg.Server.Port != 9090 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Generative.Name != "llama.cpp" {
		t.Errorf("generative model name not loaded from env, got: %s", cfg.Generative.Name)
	}
	// Untouched fields fall back to their documented defaults.
	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("expected default redis addr, got: %s", cfg.Redis.Addr)
	}
}

func TestLoadConfig_MissingJWTSecret(t *testing.T) {
	ResetConfigForTest()
	clearConfigEnv()
	defer clearConfigEnv()

	_, err := LoadConfig("")
	if err == nil {
		t.Errorf("expected error when JWT_SECRET is unset")
	}
}

func TestLoadConfig_SingletonIgnoresSecondCall(t *testing.T) {
	ResetConfigForTest()
	clearConfigEnv()
	defer clearConfigEnv()

	os.Setenv("JWT_SECRET", "first")
	cfg1, err := LoadConfig("")
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	os.Setenv("JWT_SECRET", "second")
	cfg2, err := LoadConfig("")
	if err != nil {
		t.Fatalf("failed to reload config: %v", err)
	}
	if cfg1 != cfg2 {
		t.Errorf("expected LoadConfig to return the same singleton on a second call")
	}
	if GetConfig().Server.JWTSecret != "first" {
		t.Errorf("expected singleton to keep its first-load value, got: %s", GetConfig().Server.JWTSecret)
	}
}
