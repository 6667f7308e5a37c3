package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultConfigPath = "config.yaml"

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Paths       PathsConfig       `yaml:"paths"`
	Auth        AuthConfig        `yaml:"auth"`
	Engines     EnginesConfig     `yaml:"engines"`
	Translation TranslationConfig `yaml:"translation"`
	Storage     StorageConfig     `yaml:"storage"`
	Redis       RedisConfig       `yaml:"redis"`
	Watch       WatchConfig       `yaml:"watch"`
	Logging     LoggingConfig     `yaml:"logging"`

	// GeneratedSecret is set when no JWT secret was configured and a random
	// one was generated. Sessions will not survive restarts.
	GeneratedSecret bool `yaml:"-"`
}

type ServerConfig struct {
	Port        int           `yaml:"port"`
	CORSOrigins []string      `yaml:"cors_origins"`
	BodyLimit   int64         `yaml:"body_limit"`
	UploadLimit int64         `yaml:"upload_limit"`
	RateLimit   int           `yaml:"rate_limit"`
	RateWindow  time.Duration `yaml:"rate_window"`
}

type PathsConfig struct {
	Data    string `yaml:"data"`
	Uploads string `yaml:"uploads"`
	DB      string `yaml:"db"`
}

type AuthConfig struct {
	Enabled       bool   `yaml:"enabled"`
	JWTSecret     string `yaml:"jwt_secret"`
	AdminUsername string `yaml:"admin_username"`
	AdminPassword string `yaml:"admin_password"`
}

type EnginesConfig struct {
	DeepLKey     string `yaml:"deepl_api_key"`
	DeepLURL     string `yaml:"deepl_api_url"`
	OpenAIKey    string `yaml:"openai_api_key"`
	OpenAIURL    string `yaml:"openai_api_url"`
	OpenAIModel  string `yaml:"openai_model"`
	GroqKey      string `yaml:"groq_api_key"`
	GroqURL      string `yaml:"groq_api_url"`
	GroqModel    string `yaml:"groq_model"`
	AnthropicKey string `yaml:"anthropic_api_key"`
	AnthropicURL string `yaml:"anthropic_api_url"`
	ClaudeModel  string `yaml:"claude_model"`
	GeminiKey    string `yaml:"gemini_api_key"`
	GeminiModel  string `yaml:"gemini_model"`
	OllamaURL    string `yaml:"ollama_url"`
}

type TranslationConfig struct {
	Engine           string        `yaml:"engine"`
	ChunkSize        int           `yaml:"chunk_size"`
	Mode             string        `yaml:"mode"`
	MaxRetries       int           `yaml:"max_retries"`
	RetryDelay       time.Duration `yaml:"retry_delay"`
	EnableFallback   *bool         `yaml:"enable_fallback"`
	ChunkPause       time.Duration `yaml:"chunk_pause"`
	BatchConcurrency int           `yaml:"batch_concurrency"`
	ProgressTTL      time.Duration `yaml:"progress_ttl"`
}

type StorageConfig struct {
	Backend   string        `yaml:"backend"` // local | minio
	OutputTTL time.Duration `yaml:"output_ttl"`
	UploadTTL time.Duration `yaml:"upload_ttl"`
	Minio     MinioConfig   `yaml:"minio"`
}

type MinioConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
	Region    string `yaml:"region"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type WatchConfig struct {
	InputDir      string `yaml:"input_dir"`
	OutputDir     string `yaml:"output_dir"`
	TargetLang    string `yaml:"target_lang"`
	OutputFormat  string `yaml:"output_format"`
	MaxConcurrent int    `yaml:"max_concurrent"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads the YAML file named by CONFIG_PATH (config.yaml when unset), then
// applies environment overrides and defaults. A missing default file is not an
// error.
func Load() (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	explicit := path != ""
	if !explicit {
		path = defaultConfigPath
	}

	cfg, err := LoadFile(path)
	if err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		cfg = &Config{}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile parses a YAML config file without applying environment overrides.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Port = envInt("PORT", c.Server.Port)
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		c.Server.CORSOrigins = splitList(v)
	}
	c.Server.BodyLimit = int64(envInt("BODY_LIMIT", int(c.Server.BodyLimit)))
	c.Server.UploadLimit = int64(envInt("UPLOAD_LIMIT", int(c.Server.UploadLimit)))
	c.Server.RateLimit = envInt("RATE_LIMIT", c.Server.RateLimit)
	c.Server.RateWindow = envDuration("RATE_WINDOW", c.Server.RateWindow)

	c.Paths.Data = getEnv("DATA_PATH", c.Paths.Data)
	c.Paths.Uploads = getEnv("UPLOAD_PATH", c.Paths.Uploads)
	c.Paths.DB = getEnv("DB_PATH", c.Paths.DB)

	c.Auth.Enabled = envBool("AUTH_ENABLED", c.Auth.Enabled)
	c.Auth.JWTSecret = getEnv("JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.AdminUsername = getEnv("ADMIN_USERNAME", c.Auth.AdminUsername)
	c.Auth.AdminPassword = getEnv("ADMIN_PASSWORD", c.Auth.AdminPassword)

	e := &c.Engines
	e.DeepLKey = getEnv("DEEPL_API_KEY", e.DeepLKey)
	e.DeepLURL = getEnv("DEEPL_API_URL", e.DeepLURL)
	e.OpenAIKey = getEnv("OPENAI_API_KEY", e.OpenAIKey)
	e.OpenAIURL = getEnv("OPENAI_API_URL", e.OpenAIURL)
	e.OpenAIModel = getEnv("OPENAI_MODEL", e.OpenAIModel)
	e.GroqKey = getEnv("GROQ_API_KEY", e.GroqKey)
	e.GroqURL = getEnv("GROQ_API_URL", e.GroqURL)
	e.GroqModel = getEnv("GROQ_MODEL", e.GroqModel)
	e.AnthropicKey = getEnv("ANTHROPIC_API_KEY", e.AnthropicKey)
	e.AnthropicURL = getEnv("ANTHROPIC_API_URL", e.AnthropicURL)
	e.ClaudeModel = getEnv("CLAUDE_MODEL", e.ClaudeModel)
	e.GeminiKey = getEnv("GEMINI_API_KEY", e.GeminiKey)
	e.GeminiModel = getEnv("GEMINI_MODEL", e.GeminiModel)
	e.OllamaURL = getEnv("OLLAMA_URL", e.OllamaURL)

	t := &c.Translation
	t.Engine = getEnv("TRANSLATION_ENGINE", t.Engine)
	t.ChunkSize = envInt("CHUNK_SIZE", t.ChunkSize)
	t.Mode = getEnv("TRANSLATION_MODE", t.Mode)
	t.MaxRetries = envInt("MAX_RETRIES", t.MaxRetries)
	t.RetryDelay = envDuration("RETRY_DELAY", t.RetryDelay)
	if v := os.Getenv("ENABLE_FALLBACK"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			t.EnableFallback = &b
		}
	}
	t.ChunkPause = envDuration("CHUNK_PAUSE", t.ChunkPause)
	t.BatchConcurrency = envInt("BATCH_CONCURRENCY", t.BatchConcurrency)
	t.ProgressTTL = envDuration("PROGRESS_TTL", t.ProgressTTL)

	s := &c.Storage
	s.Backend = getEnv("STORAGE_BACKEND", s.Backend)
	s.OutputTTL = envDuration("OUTPUT_TTL", s.OutputTTL)
	s.UploadTTL = envDuration("UPLOAD_TTL", s.UploadTTL)
	s.Minio.Endpoint = getEnv("MINIO_ENDPOINT", s.Minio.Endpoint)
	s.Minio.AccessKey = getEnv("MINIO_ACCESS_KEY", s.Minio.AccessKey)
	s.Minio.SecretKey = getEnv("MINIO_SECRET_KEY", s.Minio.SecretKey)
	s.Minio.Bucket = getEnv("MINIO_BUCKET", s.Minio.Bucket)
	s.Minio.UseSSL = envBool("MINIO_USE_SSL", s.Minio.UseSSL)
	s.Minio.Region = getEnv("MINIO_REGION", s.Minio.Region)

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = envInt("REDIS_DB", c.Redis.DB)
	c.Redis.Prefix = getEnv("REDIS_PREFIX", c.Redis.Prefix)

	w := &c.Watch
	w.InputDir = getEnv("WATCH_INPUT_DIR", w.InputDir)
	w.OutputDir = getEnv("WATCH_OUTPUT_DIR", w.OutputDir)
	w.TargetLang = getEnv("WATCH_TARGET_LANG", w.TargetLang)
	w.OutputFormat = getEnv("WATCH_OUTPUT_FORMAT", w.OutputFormat)
	w.MaxConcurrent = envInt("WATCH_MAX_CONCURRENT", w.MaxConcurrent)

	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("LOG_FORMAT", c.Logging.Format)
}

// Validate fills defaults and rejects settings the server cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if len(c.Server.CORSOrigins) == 0 {
		c.Server.CORSOrigins = []string{"*"}
	}
	if c.Server.BodyLimit == 0 {
		c.Server.BodyLimit = 1 << 20
	}
	if c.Server.UploadLimit == 0 {
		c.Server.UploadLimit = 10 << 20
	}
	if c.Server.RateLimit == 0 {
		c.Server.RateLimit = 120
	}
	if c.Server.RateWindow == 0 {
		c.Server.RateWindow = time.Minute
	}

	if c.Paths.Data == "" {
		c.Paths.Data = "data"
	}
	if c.Paths.Uploads == "" {
		c.Paths.Uploads = filepath.Join(c.Paths.Data, "uploads")
	}
	if c.Paths.DB == "" {
		c.Paths.DB = filepath.Join(c.Paths.Data, "subtrans.db")
	}

	if c.Auth.AdminUsername == "" {
		c.Auth.AdminUsername = "admin"
	}
	if c.Auth.AdminPassword == "" {
		c.Auth.AdminPassword = "admin"
	}
	if c.Auth.JWTSecret == "" {
		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			return fmt.Errorf("generate jwt secret: %w", err)
		}
		c.Auth.JWTSecret = hex.EncodeToString(b)
		c.GeneratedSecret = true
	}

	if c.Engines.OllamaURL == "" {
		c.Engines.OllamaURL = "http://localhost:11434"
	}

	if c.Translation.ChunkSize == 0 {
		c.Translation.ChunkSize = 50
	}
	if c.Translation.Mode == "" {
		c.Translation.Mode = "auto"
	}
	if c.Translation.EnableFallback == nil {
		enabled := true
		c.Translation.EnableFallback = &enabled
	}
	if c.Translation.ChunkPause == 0 {
		c.Translation.ChunkPause = 200 * time.Millisecond
	}
	if c.Translation.BatchConcurrency == 0 {
		c.Translation.BatchConcurrency = 4
	}
	if c.Translation.ProgressTTL == 0 {
		c.Translation.ProgressTTL = 24 * time.Hour
	}

	switch c.Storage.Backend {
	case "":
		c.Storage.Backend = "local"
	case "local":
	case "minio":
		if c.Storage.Minio.Endpoint == "" || c.Storage.Minio.Bucket == "" {
			return fmt.Errorf("storage.minio.endpoint and storage.minio.bucket are required for the minio backend")
		}
	default:
		return fmt.Errorf("storage.backend %q is not supported", c.Storage.Backend)
	}
	if c.Storage.OutputTTL == 0 {
		c.Storage.OutputTTL = time.Hour
	}
	if c.Storage.UploadTTL == 0 {
		c.Storage.UploadTTL = 24 * time.Hour
	}

	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "subtrans"
	}

	if c.Watch.InputDir != "" {
		if c.Watch.OutputDir == "" {
			return fmt.Errorf("watch.output_dir is required when watch.input_dir is set")
		}
		if c.Watch.TargetLang == "" {
			return fmt.Errorf("watch.target_lang is required when watch.input_dir is set")
		}
		if filepath.Clean(c.Watch.InputDir) == filepath.Clean(c.Watch.OutputDir) {
			return fmt.Errorf("watch.output_dir must differ from watch.input_dir")
		}
	}
	if c.Watch.MaxConcurrent == 0 {
		c.Watch.MaxConcurrent = 2
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// splitList parses a comma-separated list, dropping blanks.
func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
