package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name:    "empty config gets defaults",
			config:  Config{},
			wantErr: false,
		},
		{
			name:    "port out of range",
			config:  Config{Server: ServerConfig{Port: 70000}},
			wantErr: true,
		},
		{
			name:    "minio without endpoint",
			config:  Config{Storage: StorageConfig{Backend: "minio", Minio: MinioConfig{Bucket: "subs"}}},
			wantErr: true,
		},
		{
			name: "minio configured",
			config: Config{Storage: StorageConfig{
				Backend: "minio",
				Minio:   MinioConfig{Endpoint: "localhost:9000", Bucket: "subs"},
			}},
			wantErr: false,
		},
		{
			name:    "unknown storage backend",
			config:  Config{Storage: StorageConfig{Backend: "s3"}},
			wantErr: true,
		},
		{
			name:    "watch without output dir",
			config:  Config{Watch: WatchConfig{InputDir: "in", TargetLang: "en"}},
			wantErr: true,
		},
		{
			name:    "watch output inside input",
			config:  Config{Watch: WatchConfig{InputDir: "in/", OutputDir: "in", TargetLang: "en"}},
			wantErr: true,
		},
		{
			name:    "watch without target",
			config:  Config{Watch: WatchConfig{InputDir: "in", OutputDir: "out"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateDefaults(t *testing.T) {
	var cfg Config
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Port = %d", cfg.Server.Port)
	}
	if cfg.Paths.Uploads != filepath.Join("data", "uploads") {
		t.Errorf("Uploads = %q", cfg.Paths.Uploads)
	}
	if cfg.Translation.ChunkSize != 50 || cfg.Translation.ChunkPause != 200*time.Millisecond || !*cfg.Translation.EnableFallback {
		t.Errorf("Translation = %+v", cfg.Translation)
	}
	if cfg.Storage.Backend != "local" || cfg.Storage.OutputTTL != time.Hour {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
	if !cfg.GeneratedSecret || len(cfg.Auth.JWTSecret) != 64 {
		t.Errorf("expected generated 32 byte hex secret, got %q", cfg.Auth.JWTSecret)
	}
	if len(cfg.Server.CORSOrigins) != 1 || cfg.Server.CORSOrigins[0] != "*" {
		t.Errorf("CORSOrigins = %v", cfg.Server.CORSOrigins)
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
  cors_origins: ["http://localhost:5173"]
translation:
  engine: deepl
  chunk_size: 25
  retry_delay: 2s
  enable_fallback: false
storage:
  output_ttl: 30m
engines:
  deepl_api_key: "abc:fx"
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("Port = %v, want 9000", cfg.Server.Port)
	}
	if cfg.Translation.RetryDelay != 2*time.Second {
		t.Errorf("RetryDelay = %v", cfg.Translation.RetryDelay)
	}
	if cfg.Translation.EnableFallback == nil || *cfg.Translation.EnableFallback || cfg.Translation.ChunkSize != 25 {
		t.Errorf("Translation = %+v", cfg.Translation)
	}
	if cfg.Storage.OutputTTL != 30*time.Minute {
		t.Errorf("OutputTTL = %v", cfg.Storage.OutputTTL)
	}
	if cfg.Engines.DeepLKey != "abc:fx" {
		t.Errorf("DeepLKey = %q", cfg.Engines.DeepLKey)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
translation:
  engine: deepl
`)
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("PORT", "9100")
	t.Setenv("TRANSLATION_ENGINE", "openai")
	t.Setenv("CORS_ORIGINS", "http://a.test, ,http://b.test")
	t.Setenv("ENABLE_FALLBACK", "false")
	t.Setenv("RETRY_DELAY", "not-a-duration")
	t.Setenv("JWT_SECRET", "fixed")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9100 {
		t.Errorf("Port = %d, want env override", cfg.Server.Port)
	}
	if cfg.Translation.Engine != "openai" {
		t.Errorf("Engine = %q", cfg.Translation.Engine)
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "http://b.test" {
		t.Errorf("CORSOrigins = %v", cfg.Server.CORSOrigins)
	}
	if *cfg.Translation.EnableFallback {
		t.Error("EnableFallback override not applied")
	}
	if cfg.Translation.RetryDelay != 0 {
		t.Errorf("invalid duration should be ignored, got %v", cfg.Translation.RetryDelay)
	}
	if cfg.GeneratedSecret || cfg.Auth.JWTSecret != "fixed" {
		t.Errorf("JWTSecret = %q generated=%v", cfg.Auth.JWTSecret, cfg.GeneratedSecret)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "nope.yaml"))
	if _, err := Load(); err == nil {
		t.Error("Load() should fail when CONFIG_PATH points at a missing file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [unterminated")
	if _, err := LoadFile(path); err == nil {
		t.Error("LoadFile() should reject invalid YAML")
	}
}
