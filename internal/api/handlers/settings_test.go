package handlers

import (
	"testing"

	"github.com/subtrans/backend/internal/config"
	"github.com/subtrans/backend/internal/job"
)

func TestMask(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"sk-abcdef1234", "••••••••1234"},
		{"abcd", "••••••••"},
		{"", "••••••••"},
	}
	for _, tt := range tests {
		if got := mask(tt.in); got != tt.want {
			t.Errorf("mask(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEngineCredentials(t *testing.T) {
	t.Parallel()

	base := config.EnginesConfig{
		OpenAIKey:   "from-config",
		OpenAIModel: "gpt-4o-mini",
		GroqKey:     "groq-config",
		OllamaURL:   "http://localhost:11434",
		DeepLURL:    "https://api-free.deepl.com",
	}
	creds := EngineCredentials(base, map[string]string{
		"openai_api_key": "from-settings",
		"groq_api_key":   "",
		"ollama_url":     "http://gpu-box:11434",
	})

	if creds.OpenAIKey != "from-settings" || creds.OpenAIModel != "gpt-4o-mini" {
		t.Errorf("openai = %q/%q", creds.OpenAIKey, creds.OpenAIModel)
	}
	if creds.GroqKey != "groq-config" {
		t.Errorf("empty setting should keep config value, got %q", creds.GroqKey)
	}
	if creds.OllamaURL != "http://gpu-box:11434" || creds.DeepLURL != "https://api-free.deepl.com" {
		t.Errorf("urls = %q %q", creds.OllamaURL, creds.DeepLURL)
	}
}

func TestDescribeSettingsMasksSecrets(t *testing.T) {
	t.Parallel()

	list := describeSettings(map[string]string{
		"deepl_api_key": "key-0000:fx",
		"gemini_model":  "gemini-2.0-flash",
	})
	if len(list) != len(settingsKeys) {
		t.Fatalf("len = %d, want %d", len(list), len(settingsKeys))
	}
	for _, s := range list {
		switch s.Key {
		case "deepl_api_key":
			if s.Value != "••••••••0:fx" || !s.HasValue {
				t.Errorf("deepl = %+v", s)
			}
		case "gemini_model":
			if s.Value != "gemini-2.0-flash" {
				t.Errorf("model should not be masked: %+v", s)
			}
		case "openai_api_key":
			if s.HasValue || s.Value != "" {
				t.Errorf("unset secret = %+v", s)
			}
		}
	}
}

func TestRuntimeSetEngine(t *testing.T) {
	t.Parallel()

	opts := job.Options{ChunkSize: 20}
	opts.Engine = "ollama-gemma2"
	rt := NewRuntime(opts)

	rt.SetEngine("")
	if got := rt.Defaults().Engine; got != "ollama-gemma2" {
		t.Errorf("empty engine changed default to %q", got)
	}
	rt.SetEngine("openai")
	if got := rt.Defaults(); got.Engine != "openai" || got.ChunkSize != 20 {
		t.Errorf("defaults = %+v", got)
	}
}
