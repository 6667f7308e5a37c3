package handlers

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/subtrans/backend/internal/config"
	"github.com/subtrans/backend/internal/subtitle/translate"
)

const secretMask = "••••••••"

// settingsKeys defines which keys are allowed and their display metadata
var settingsKeys = []SettingDef{
	{Key: "default_engine", Label: "Default Engine", Group: "translation", Placeholder: translate.DefaultEngine},
	{Key: "ollama_url", Label: "Ollama URL", Group: "local", Placeholder: "http://localhost:11434"},
	{Key: "deepl_api_key", Label: "DeepL API Key", Group: "deepl", Placeholder: "xxxxxxxx-xxxx-...:fx", Secret: true},
	{Key: "openai_api_key", Label: "OpenAI API Key", Group: "openai", Placeholder: "sk-...", Secret: true},
	{Key: "openai_model", Label: "OpenAI Model", Group: "openai", Placeholder: "gpt-4o-mini"},
	{Key: "groq_api_key", Label: "Groq API Key", Group: "groq", Placeholder: "gsk_...", Secret: true},
	{Key: "groq_model", Label: "Groq Model", Group: "groq", Placeholder: "llama-3.3-70b-versatile"},
	{Key: "anthropic_api_key", Label: "Anthropic API Key", Group: "claude", Placeholder: "sk-ant-...", Secret: true},
	{Key: "claude_model", Label: "Claude Model", Group: "claude", Placeholder: "claude-3-5-haiku-latest"},
	{Key: "gemini_api_key", Label: "Gemini API Key", Group: "gemini", Placeholder: "AIza...", Secret: true},
	{Key: "gemini_model", Label: "Gemini Model", Group: "gemini", Placeholder: "gemini-2.0-flash"},
}

type SettingDef struct {
	Key         string `json:"key"`
	Label       string `json:"label"`
	Group       string `json:"group"`
	Placeholder string `json:"placeholder"`
	Secret      bool   `json:"secret"`
}

type settingResponse struct {
	SettingDef
	Value    string `json:"value"`
	HasValue bool   `json:"has_value"`
}

// SettingsStore persists runtime settings
type SettingsStore interface {
	GetAllSettings() (map[string]string, error)
	SetSetting(key, value string) error
}

type SettingsHandler struct {
	store    SettingsStore
	base     config.EnginesConfig
	engine   string
	gw       *translate.Gateway
	defaults *Runtime
	log      *zap.SugaredLogger
}

// NewSettingsHandler serves engine settings. base holds the configured values
// a stored setting overrides; engine is the configured default engine.
func NewSettingsHandler(store SettingsStore, base config.EnginesConfig, engine string, gw *translate.Gateway, defaults *Runtime, log *zap.SugaredLogger) *SettingsHandler {
	return &SettingsHandler{store: store, base: base, engine: engine, gw: gw, defaults: defaults, log: log}
}

// GetSettings returns all settings (secrets are masked)
func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	all, err := h.store.GetAllSettings()
	if err != nil {
		jsonError(w, "failed to load settings", http.StatusInternalServerError)
		return
	}
	jsonResponse(w, describeSettings(all), http.StatusOK)
}

// UpdateSettings saves known settings and reloads the engine registry. Masked
// values are ignored and an empty value clears the setting.
func (h *SettingsHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var updates map[string]string
	if err := decodeJSON(r, &updates); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	allowed := make(map[string]bool, len(settingsKeys))
	for _, def := range settingsKeys {
		allowed[def.Key] = true
	}

	changed := 0
	for key, value := range updates {
		if !allowed[key] || strings.HasPrefix(value, secretMask) {
			continue
		}
		if err := h.store.SetSetting(key, strings.TrimSpace(value)); err != nil {
			jsonError(w, "failed to save setting: "+key, http.StatusInternalServerError)
			return
		}
		changed++
	}

	all, err := h.store.GetAllSettings()
	if err != nil {
		jsonError(w, "failed to load settings", http.StatusInternalServerError)
		return
	}
	if changed > 0 {
		h.apply(all)
	}
	jsonResponse(w, describeSettings(all), http.StatusOK)
}

func (h *SettingsHandler) apply(all map[string]string) {
	h.gw.Reload(EngineCredentials(h.base, all))
	engine := all["default_engine"]
	if engine == "" {
		engine = h.engine
	}
	h.defaults.SetEngine(engine)
	h.log.Infow("settings applied", "engines", h.gw.AvailableEngines(), "default_engine", engine)
}

func describeSettings(all map[string]string) []settingResponse {
	result := make([]settingResponse, 0, len(settingsKeys))
	for _, def := range settingsKeys {
		val := all[def.Key]
		masked := val
		if def.Secret && val != "" {
			masked = mask(val)
		}
		result = append(result, settingResponse{
			SettingDef: def,
			Value:      masked,
			HasValue:   val != "",
		})
	}
	return result
}

// mask keeps only the last 4 characters of a secret
func mask(val string) string {
	if len(val) > 4 {
		return secretMask + val[len(val)-4:]
	}
	return secretMask
}

// EngineCredentials overlays stored settings on the configured engine values.
// A non-empty setting wins.
func EngineCredentials(base config.EnginesConfig, settings map[string]string) translate.Credentials {
	pick := func(key, fallback string) string {
		if v := settings[key]; v != "" {
			return v
		}
		return fallback
	}
	return translate.Credentials{
		DeepLKey:     pick("deepl_api_key", base.DeepLKey),
		DeepLURL:     base.DeepLURL,
		OpenAIKey:    pick("openai_api_key", base.OpenAIKey),
		OpenAIURL:    base.OpenAIURL,
		OpenAIModel:  pick("openai_model", base.OpenAIModel),
		GroqKey:      pick("groq_api_key", base.GroqKey),
		GroqURL:      base.GroqURL,
		GroqModel:    pick("groq_model", base.GroqModel),
		AnthropicKey: pick("anthropic_api_key", base.AnthropicKey),
		AnthropicURL: base.AnthropicURL,
		ClaudeModel:  pick("claude_model", base.ClaudeModel),
		GeminiKey:    pick("gemini_api_key", base.GeminiKey),
		GeminiModel:  pick("gemini_model", base.GeminiModel),
		OllamaURL:    pick("ollama_url", base.OllamaURL),
	}
}
