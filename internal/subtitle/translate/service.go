// Package translate is the engine gateway: a registry of translation backends
// behind one call, plus prompt shaping and the engine fallback table.
package translate

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Credentials configures which hosted engines are registered. Base URLs are
// optional overrides of the public endpoints.
type Credentials struct {
	DeepLKey     string
	DeepLURL     string
	OpenAIKey    string
	OpenAIURL    string
	OpenAIModel  string
	GroqKey      string
	GroqURL      string
	GroqModel    string
	AnthropicKey string
	AnthropicURL string
	ClaudeModel  string
	GeminiKey    string
	GeminiModel  string
	OllamaURL    string
}

// Gateway dispatches translation calls to registered engines
type Gateway struct {
	mu      sync.RWMutex
	engines map[string]Translator
	ollama  *OllamaClient
	log     *zap.SugaredLogger
}

// NewGateway creates a gateway with every engine whose credentials are present.
func NewGateway(creds Credentials, log *zap.SugaredLogger) *Gateway {
	g := &Gateway{log: log}
	g.Reload(creds)
	return g
}

// Reload rebuilds the engine registry, e.g. after settings change.
func (g *Gateway) Reload(creds Credentials) {
	engines := make(map[string]Translator)

	var ollama *OllamaClient
	if creds.OllamaURL != "" {
		ollama = NewOllamaClient(creds.OllamaURL)
		for id, model := range ollamaModels {
			engines[id] = ollama.Engine(model)
		}
		g.log.Infow("registered ollama engines", "url", creds.OllamaURL, "count", len(ollamaModels))
	}

	if creds.GeminiKey != "" {
		engines[EngineGemini] = NewGeminiTranslator(creds.GeminiKey, creds.GeminiModel)
		g.log.Infow("registered engine", "engine", EngineGemini)
	}

	if creds.GroqKey != "" {
		engines[EngineGroq] = NewGroqTranslator(creds.GroqKey, creds.GroqURL, creds.GroqModel)
		g.log.Infow("registered engine", "engine", EngineGroq)
	}

	if creds.OpenAIKey != "" {
		engines[EngineOpenAI] = NewOpenAITranslator(creds.OpenAIKey, creds.OpenAIURL, creds.OpenAIModel)
		g.log.Infow("registered engine", "engine", EngineOpenAI)
	}

	if creds.AnthropicKey != "" {
		engines[EngineClaude] = NewClaudeTranslator(creds.AnthropicKey, creds.AnthropicURL, creds.ClaudeModel)
		g.log.Infow("registered engine", "engine", EngineClaude)
	}

	if creds.DeepLKey != "" {
		engines[EngineDeepL] = NewDeepLTranslator(creds.DeepLKey, creds.DeepLURL)
		g.log.Infow("registered engine", "engine", EngineDeepL)
	}

	g.mu.Lock()
	g.engines = engines
	g.ollama = ollama
	g.mu.Unlock()
}

// Register installs or replaces a single engine.
func (g *Gateway) Register(id string, t Translator) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.engines == nil {
		g.engines = make(map[string]Translator)
	}
	g.engines[id] = t
}

// Has reports whether an engine is registered.
func (g *Gateway) Has(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.engines[id]
	return ok
}

// AvailableEngines lists registered engines: local models first, then hosted
// engines in a fixed order.
func (g *Gateway) AvailableEngines() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []string
	for _, id := range ollamaEngines {
		if _, ok := g.engines[id]; ok {
			out = append(out, id)
		}
	}
	for _, id := range []string{EngineGemini, EngineGroq, EngineOpenAI, EngineClaude, EngineDeepL} {
		if _, ok := g.engines[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// Translate runs one call against one engine. It never retries; failures are
// returned as *EngineError.
func (g *Gateway) Translate(ctx context.Context, text, targetLang, sourceLang, engine string) (*Result, error) {
	if strings.TrimSpace(text) == "" {
		return &Result{Text: text, Engine: engine}, nil
	}

	g.mu.RLock()
	t, ok := g.engines[engine]
	g.mu.RUnlock()
	if !ok {
		return nil, missingCredential(engine)
	}

	system, prompt := BuildPrompt(text, targetLang, sourceLang)
	resp, err := t.Translate(ctx, Request{
		Text:       text,
		SourceLang: sourceLang,
		TargetLang: targetLang,
		System:     system,
		Prompt:     prompt,
	})
	if err != nil {
		ee := classify(engine, err)
		g.log.Warnw("engine call failed", "engine", engine, "kind", ee.Kind, "error", ee)
		return nil, ee
	}

	out := strings.TrimSpace(resp.Text)
	if out == "" {
		return nil, &EngineError{Kind: KindProvider, Engine: engine, Message: "empty response"}
	}

	return &Result{
		Text:               out,
		DetectedSourceLang: resp.DetectedSourceLang,
		Engine:             engine,
	}, nil
}
