package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/subtrans/backend/internal/subtitle/chunk"
	"github.com/subtrans/backend/internal/subtitle/translate"
)

const (
	maxTextLength = 5000
	maxBatchTexts = 20
)

type TranslationHandler struct {
	chunks      *chunk.Translator
	gw          *translate.Gateway
	defaults    *Runtime
	concurrency int
	log         *zap.SugaredLogger
}

func NewTranslationHandler(chunks *chunk.Translator, gw *translate.Gateway, defaults *Runtime, concurrency int, log *zap.SugaredLogger) *TranslationHandler {
	return &TranslationHandler{chunks: chunks, gw: gw, defaults: defaults, concurrency: concurrency, log: log}
}

type textRequest struct {
	Text           string `json:"text"`
	TargetLang     string `json:"targetLang"`
	SourceLang     string `json:"sourceLang"`
	Engine         string `json:"engine"`
	EnableFallback *bool  `json:"enableFallback"`
}

type batchRequest struct {
	Texts          []string `json:"texts"`
	TargetLang     string   `json:"targetLang"`
	SourceLang     string   `json:"sourceLang"`
	Engine         string   `json:"engine"`
	EnableFallback *bool    `json:"enableFallback"`
}

func (h *TranslationHandler) options(target, source, engine string, fallback *bool) chunk.Options {
	opts := h.defaults.Defaults().Options
	opts.TargetLang = target
	opts.SourceLang = source
	if engine != "" {
		opts.Engine = engine
	}
	if fallback != nil {
		opts.EnableFallback = *fallback
	}
	opts.Normalize()
	return opts
}

// Text translates a single free-standing text.
func (h *TranslationHandler) Text(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Text) == "" || req.TargetLang == "" {
		jsonError(w, "text and targetLang are required", http.StatusBadRequest)
		return
	}
	if utf8.RuneCountInString(req.Text) > maxTextLength {
		jsonError(w, "text is too long (max 5000 characters)", http.StatusBadRequest)
		return
	}

	opts := h.options(req.TargetLang, req.SourceLang, req.Engine, req.EnableFallback)
	if !h.gw.Has(opts.Engine) {
		jsonError(w, "translation engine \""+opts.Engine+"\" is not available", http.StatusBadRequest)
		return
	}

	res, err := h.chunks.TranslateText(r.Context(), req.Text, opts)
	if err != nil {
		h.log.Warnw("text translation failed", "engine", opts.Engine, "error", err)
		jsonError(w, "translation failed: "+err.Error(), http.StatusBadGateway)
		return
	}

	source := req.SourceLang
	if source == "" || source == "auto" {
		source = res.DetectedSourceLang
	}
	if source == "" {
		source = "auto"
	}

	jsonResponse(w, map[string]interface{}{
		"originalText":   req.Text,
		"translatedText": res.Text,
		"sourceLang":     source,
		"targetLang":     req.TargetLang,
		"engine":         res.Engine,
		"timestamp":      time.Now().UTC(),
	}, http.StatusOK)
}

// Batch translates up to twenty independent texts. Failed items are reported
// per item; the request itself succeeds.
func (h *TranslationHandler) Batch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Texts) == 0 || req.TargetLang == "" {
		jsonError(w, "texts and targetLang are required", http.StatusBadRequest)
		return
	}
	if len(req.Texts) > maxBatchTexts {
		jsonError(w, "too many texts (max 20)", http.StatusBadRequest)
		return
	}
	for _, text := range req.Texts {
		if utf8.RuneCountInString(text) > maxTextLength {
			jsonError(w, "text is too long (max 5000 characters)", http.StatusBadRequest)
			return
		}
	}

	opts := h.options(req.TargetLang, req.SourceLang, req.Engine, req.EnableFallback)
	if !h.gw.Has(opts.Engine) {
		jsonError(w, "translation engine \""+opts.Engine+"\" is not available", http.StatusBadRequest)
		return
	}

	results, summary := h.chunks.TranslateBatch(r.Context(), req.Texts, opts, h.concurrency)
	jsonResponse(w, map[string]interface{}{
		"results":    results,
		"summary":    summary,
		"targetLang": req.TargetLang,
		"sourceLang": opts.SourceLang,
		"engine":     opts.Engine,
		"timestamp":  time.Now().UTC(),
	}, http.StatusOK)
}

type engineInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Engines lists the engines that are configured right now.
func (h *TranslationHandler) Engines(w http.ResponseWriter, r *http.Request) {
	ids := h.gw.AvailableEngines()
	engines := make([]engineInfo, 0, len(ids))
	for _, id := range ids {
		engines = append(engines, engineInfo{ID: id, Name: translate.EngineName(id)})
	}
	jsonResponse(w, map[string]interface{}{
		"engines": engines,
		"total":   len(engines),
		"default": h.defaults.Defaults().Engine,
	}, http.StatusOK)
}

func (h *TranslationHandler) Languages(w http.ResponseWriter, r *http.Request) {
	langs := translate.Languages()
	jsonResponse(w, map[string]interface{}{
		"languages": langs,
		"total":     len(langs),
	}, http.StatusOK)
}

// Ollama reports the local model server status.
func (h *TranslationHandler) Ollama(w http.ResponseWriter, r *http.Request) {
	status := h.gw.OllamaStatus(r.Context())
	if status == nil {
		jsonError(w, "ollama is not configured", http.StatusNotFound)
		return
	}
	jsonResponse(w, status, http.StatusOK)
}

// decodeJSON decodes a request body. An empty body is rejected.
func decodeJSON(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	return json.NewDecoder(r.Body).Decode(v)
}
