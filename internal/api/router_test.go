package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/subtrans/backend/internal/api/handlers"
	"github.com/subtrans/backend/internal/auth"
	"github.com/subtrans/backend/internal/config"
	"github.com/subtrans/backend/internal/db"
	"github.com/subtrans/backend/internal/job"
	"github.com/subtrans/backend/internal/progress"
	"github.com/subtrans/backend/internal/storage"
	"github.com/subtrans/backend/internal/subtitle/chunk"
	"github.com/subtrans/backend/internal/subtitle/translate"
)

const sampleSRT = `1
00:00:01,000 --> 00:00:02,500
Hello

2
00:00:03,000 --> 00:00:04,000
World

3
00:00:05,000 --> 00:00:06,000
Bye
`

type testEnv struct {
	router *chi.Mux
	db     *db.Database
	gw     *translate.Gateway
	calls  *atomic.Int32
}

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	dir := t.TempDir()
	cfg := &config.Config{}
	cfg.Paths.Data = dir
	cfg.Auth.JWTSecret = "test-secret"
	if mutate != nil {
		mutate(cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	log := zap.NewNop().Sugar()
	database, err := db.NewSQLite(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := database.EnsureAdmin(cfg.Auth.AdminUsername, cfg.Auth.AdminPassword); err != nil {
		t.Fatalf("EnsureAdmin: %v", err)
	}

	store, err := storage.NewLocal(filepath.Join(dir, "files"))
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}

	calls := &atomic.Int32{}
	gw := translate.NewGateway(translate.Credentials{}, log)
	gw.Register(translate.DefaultEngine, translate.TranslatorFunc(func(_ context.Context, req translate.Request) (translate.Response, error) {
		calls.Add(1)
		return translate.Response{Text: strings.ToUpper(req.Text), DetectedSourceLang: "en"}, nil
	}))

	chunks := chunk.New(gw, log)
	tracker := progress.NewStore(cfg.Translation.ProgressTTL, log)
	driver := job.NewDriver(chunks, gw, tracker, log)
	driver.ChunkPause = 0

	defaults := job.Options{ChunkSize: cfg.Translation.ChunkSize}
	defaults.EnableFallback = *cfg.Translation.EnableFallback
	defaults.Normalize()

	router := NewRouter(Deps{
		Config:   cfg,
		DB:       database,
		JWT:      auth.NewJWTService(cfg.Auth.JWTSecret),
		Gateway:  gw,
		Chunks:   chunks,
		Driver:   driver,
		Progress: tracker,
		Store:    store,
		Defaults: handlers.NewRuntime(defaults),
		Log:      log,
	})
	return &testEnv{router: router, db: database, gw: gw, calls: calls}
}

func (e *testEnv) do(t *testing.T, method, path string, body io.Reader, contentType, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) postJSON(t *testing.T, path string, v interface{}) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return e.do(t, http.MethodPost, path, bytes.NewReader(b), "application/json", "")
}

func (e *testEnv) upload(t *testing.T, name, content string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("subtitle", name)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte(content))
	mw.Close()
	return e.do(t, http.MethodPost, "/api/subtitle/upload", &buf, mw.FormDataContentType(), "")
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, data interface{}) apiResponse {
	t.Helper()
	var resp apiResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	if data != nil && len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, data); err != nil {
			t.Fatalf("decode data %s: %v", resp.Data, err)
		}
	}
	return resp
}

func TestHealth(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/health", nil, "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var data struct {
		Status  string `json:"status"`
		Engines int    `json:"engines"`
	}
	if resp := decode(t, rec, &data); !resp.Success || data.Status != "OK" || data.Engines != 1 {
		t.Fatalf("health = %+v %+v", resp, data)
	}
}

func TestUploadTranslateDownload(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	rec := env.upload(t, "movie.srt", sampleSRT)
	if rec.Code != http.StatusOK {
		t.Fatalf("upload status = %d: %s", rec.Code, rec.Body.String())
	}
	var up struct {
		FileID       string `json:"fileId"`
		OriginalName string `json:"originalName"`
		Format       string `json:"format"`
		Stats        struct {
			TotalEntries int `json:"total_entries"`
		} `json:"stats"`
		Preview []struct {
			Text string `json:"text"`
		} `json:"preview"`
	}
	decode(t, rec, &up)
	if up.FileID == "" || up.OriginalName != "movie.srt" || up.Format != "srt" {
		t.Fatalf("upload = %+v", up)
	}
	if up.Stats.TotalEntries != 3 || len(up.Preview) != 3 {
		t.Fatalf("upload stats = %+v preview = %d", up.Stats, len(up.Preview))
	}

	rec = env.postJSON(t, "/api/subtitle/translate", map[string]interface{}{
		"fileId":       up.FileID,
		"targetLang":   "ko",
		"outputFormat": "vtt",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("translate status = %d: %s", rec.Code, rec.Body.String())
	}
	var tr struct {
		OriginalFileID    string `json:"originalFileId"`
		TranslatedFileID  string `json:"translatedFileId"`
		FileName          string `json:"fileName"`
		OriginalFormat    string `json:"originalFormat"`
		OutputFormat      string `json:"outputFormat"`
		TranslationEngine string `json:"translationEngine"`
		TotalEntries      int    `json:"totalEntries"`
		DownloadURL       string `json:"downloadUrl"`
		Preview           []struct {
			Text string `json:"text"`
		} `json:"preview"`
	}
	decode(t, rec, &tr)
	if tr.OriginalFileID != up.FileID || tr.TranslatedFileID == "" || tr.TotalEntries != 3 {
		t.Fatalf("translate = %+v", tr)
	}
	if tr.OriginalFormat != "srt" || tr.OutputFormat != "vtt" || tr.TranslationEngine != translate.DefaultEngine {
		t.Fatalf("translate formats = %+v", tr)
	}
	if !strings.HasPrefix(tr.FileName, "movie_translated_ko_gemma2-sapie_") || !strings.HasSuffix(tr.FileName, ".vtt") {
		t.Errorf("file name = %q", tr.FileName)
	}
	if tr.Preview[0].Text != "HELLO" {
		t.Errorf("preview[0] = %q, want HELLO", tr.Preview[0].Text)
	}
	if tr.DownloadURL != "/api/subtitle/download/"+tr.TranslatedFileID {
		t.Errorf("download url = %q", tr.DownloadURL)
	}

	rec = env.do(t, http.MethodGet, "/api/subtitle/progress/"+up.FileID, nil, "", "")
	var prog progress.Progress
	decode(t, rec, &prog)
	if rec.Code != http.StatusOK || prog.Status != progress.StatusCompleted || prog.Progress != 100 {
		t.Fatalf("progress = %d %+v", rec.Code, prog)
	}

	rec = env.do(t, http.MethodGet, tr.DownloadURL, nil, "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("download status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/vtt") {
		t.Errorf("content type = %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.HasPrefix(cd, "attachment") || !strings.Contains(cd, tr.FileName) {
		t.Errorf("content disposition = %q", cd)
	}
	body := rec.Body.String()
	if !strings.HasPrefix(body, "WEBVTT") || !strings.Contains(body, "WORLD") || !strings.Contains(body, "00:00:01.000 --> 00:00:02.500") {
		t.Errorf("download body = %q", body)
	}

	rec = env.do(t, http.MethodGet, "/api/subtitle/info/"+tr.TranslatedFileID, nil, "", "")
	var info struct {
		Format  string `json:"format"`
		Kind    string `json:"kind"`
		Entries []struct {
			Text string `json:"text"`
		} `json:"entries"`
	}
	decode(t, rec, &info)
	if rec.Code != http.StatusOK || info.Format != "vtt" || info.Kind != "output" || len(info.Entries) != 3 {
		t.Fatalf("info = %d %+v", rec.Code, info)
	}
}

func TestUploadRejects(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, func(c *config.Config) { c.Server.UploadLimit = 512 })

	tests := []struct {
		name    string
		file    string
		content string
		want    int
	}{
		{"wrong extension", "notes.txt", sampleSRT, http.StatusBadRequest},
		{"malformed", "broken.srt", "not a subtitle", http.StatusBadRequest},
		{"too large", "big.srt", strings.Repeat(sampleSRT, 10), http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.upload(t, tt.file, tt.content)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
			if resp := decode(t, rec, nil); resp.Success || resp.Error == "" {
				t.Errorf("response = %+v", resp)
			}
		})
	}

	t.Run("missing field", func(t *testing.T) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		mw.WriteField("other", "x")
		mw.Close()
		rec := env.do(t, http.MethodPost, "/api/subtitle/upload", &buf, mw.FormDataContentType(), "")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d", rec.Code)
		}
	})
}

func TestTranslateRejects(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	rec := env.upload(t, "movie.srt", sampleSRT)
	var up struct {
		FileID string `json:"fileId"`
	}
	decode(t, rec, &up)

	tests := []struct {
		name string
		body map[string]interface{}
		want int
	}{
		{"missing file id", map[string]interface{}{"targetLang": "ko"}, http.StatusBadRequest},
		{"missing target", map[string]interface{}{"fileId": up.FileID}, http.StatusBadRequest},
		{"unknown file", map[string]interface{}{"fileId": "nope", "targetLang": "ko"}, http.StatusNotFound},
		{"unknown engine", map[string]interface{}{"fileId": up.FileID, "targetLang": "ko", "engine": "openai"}, http.StatusBadRequest},
		{"bad output format", map[string]interface{}{"fileId": up.FileID, "targetLang": "ko", "outputFormat": "ass"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.postJSON(t, "/api/subtitle/translate", tt.body)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
	if n := env.calls.Load(); n != 0 {
		t.Errorf("engine called %d times for rejected requests", n)
	}
}

func TestProgressNotFound(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/subtitle/progress/missing", nil, "", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/api/subtitle/download/missing", nil, "", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("download status = %d", rec.Code)
	}
}

func TestFormats(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/subtitle/formats", nil, "", "")
	var formats []struct {
		Extension string `json:"extension"`
		Name      string `json:"name"`
	}
	decode(t, rec, &formats)
	if len(formats) != 3 || formats[0].Name != "SubRip Subtitle" || formats[2].Extension != "vtt" {
		t.Fatalf("formats = %+v", formats)
	}
}

func TestTranslateText(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	rec := env.postJSON(t, "/api/translation/text", map[string]string{"text": "hello", "targetLang": "ko"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var data struct {
		OriginalText   string `json:"originalText"`
		TranslatedText string `json:"translatedText"`
		SourceLang     string `json:"sourceLang"`
		Engine         string `json:"engine"`
	}
	decode(t, rec, &data)
	if data.TranslatedText != "HELLO" || data.OriginalText != "hello" {
		t.Errorf("text = %+v", data)
	}
	if data.SourceLang != "en" || data.Engine != translate.DefaultEngine {
		t.Errorf("source/engine = %q/%q", data.SourceLang, data.Engine)
	}

	tests := []struct {
		name string
		body map[string]string
	}{
		{"missing text", map[string]string{"targetLang": "ko"}},
		{"blank text", map[string]string{"text": "   ", "targetLang": "ko"}},
		{"missing target", map[string]string{"text": "hi"}},
		{"too long", map[string]string{"text": strings.Repeat("가", 5001), "targetLang": "en"}},
		{"unknown engine", map[string]string{"text": "hi", "targetLang": "ko", "engine": "deepl"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := env.postJSON(t, "/api/translation/text", tt.body); rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestTranslateBatch(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	rec := env.postJSON(t, "/api/translation/batch", map[string]interface{}{
		"texts":      []string{"one", "", "three"},
		"targetLang": "ko",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var data struct {
		Results []chunk.BatchItem  `json:"results"`
		Summary chunk.BatchSummary `json:"summary"`
	}
	decode(t, rec, &data)
	if data.Summary != (chunk.BatchSummary{Total: 3, Successful: 2, Failed: 1}) {
		t.Fatalf("summary = %+v", data.Summary)
	}
	if data.Results[0].TranslatedText != "ONE" || data.Results[1].Success || data.Results[2].Index != 2 {
		t.Errorf("results = %+v", data.Results)
	}

	texts := make([]string, 21)
	for i := range texts {
		texts[i] = "x"
	}
	rec = env.postJSON(t, "/api/translation/batch", map[string]interface{}{"texts": texts, "targetLang": "ko"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("oversized batch status = %d", rec.Code)
	}
	rec = env.postJSON(t, "/api/translation/batch", map[string]interface{}{"texts": []string{}, "targetLang": "ko"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty batch status = %d", rec.Code)
	}
}

func TestEnginesLanguagesOllama(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/translation/engines", nil, "", "")
	var engines struct {
		Engines []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"engines"`
		Total   int    `json:"total"`
		Default string `json:"default"`
	}
	decode(t, rec, &engines)
	if engines.Total != 1 || engines.Engines[0].ID != translate.DefaultEngine || engines.Engines[0].Name != translate.EngineName(translate.DefaultEngine) {
		t.Fatalf("engines = %+v", engines)
	}
	if engines.Default != translate.DefaultEngine {
		t.Errorf("default = %q", engines.Default)
	}

	rec = env.do(t, http.MethodGet, "/api/translation/languages", nil, "", "")
	var langs struct {
		Total int `json:"total"`
	}
	decode(t, rec, &langs)
	if langs.Total != len(translate.Languages()) {
		t.Errorf("languages total = %d", langs.Total)
	}

	rec = env.do(t, http.MethodGet, "/api/translation/ollama", nil, "", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("ollama status without client = %d, want 404", rec.Code)
	}
}

type settingValue struct {
	Key      string `json:"key"`
	Value    string `json:"value"`
	HasValue bool   `json:"has_value"`
}

func findSetting(list []settingValue, key string) settingValue {
	for _, s := range list {
		if s.Key == key {
			return s
		}
	}
	return settingValue{}
}

func TestSettingsReloadEngines(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	body := `{"openai_api_key":"sk-secret-1234","default_engine":"openai","unknown":"x"}`
	rec := env.do(t, http.MethodPut, "/api/settings", strings.NewReader(body), "application/json", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var list []settingValue
	decode(t, rec, &list)
	if s := findSetting(list, "openai_api_key"); s.Value != "••••••••1234" || !s.HasValue {
		t.Errorf("masked key = %+v", s)
	}
	if !env.gw.Has(translate.EngineOpenAI) {
		t.Error("openai not registered after settings update")
	}
	if v := env.db.GetSetting("unknown", "none"); v != "none" {
		t.Errorf("unknown key stored: %q", v)
	}

	rec = env.do(t, http.MethodGet, "/api/translation/engines", nil, "", "")
	var engines struct {
		Default string `json:"default"`
	}
	decode(t, rec, &engines)
	if engines.Default != translate.EngineOpenAI {
		t.Errorf("default engine = %q, want openai", engines.Default)
	}

	// Posting the mask back keeps the stored secret
	body = `{"openai_api_key":"••••••••1234"}`
	env.do(t, http.MethodPut, "/api/settings", strings.NewReader(body), "application/json", "")
	if v := env.db.GetSetting("openai_api_key", ""); v != "sk-secret-1234" {
		t.Errorf("secret overwritten: %q", v)
	}
}

func TestAuthEnabled(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, func(c *config.Config) {
		c.Auth.Enabled = true
		c.Auth.AdminPassword = "s3cret"
	})

	if rec := env.do(t, http.MethodGet, "/api/subtitle/formats", nil, "", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/health", nil, "", ""); rec.Code != http.StatusOK {
		t.Fatalf("health requires auth: %d", rec.Code)
	}

	rec := env.postJSON(t, "/api/auth/login", map[string]string{"username": "admin", "password": "wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad login status = %d", rec.Code)
	}

	rec = env.postJSON(t, "/api/auth/login", map[string]string{"username": "admin", "password": "s3cret"})
	var login struct {
		Token string `json:"token"`
		User  struct {
			Role string `json:"role"`
		} `json:"user"`
	}
	decode(t, rec, &login)
	if rec.Code != http.StatusOK || login.Token == "" || login.User.Role != "admin" {
		t.Fatalf("login = %d %+v", rec.Code, login)
	}

	rec = env.do(t, http.MethodGet, "/api/auth/me", nil, "", login.Token)
	var me struct {
		Username string `json:"username"`
	}
	decode(t, rec, &me)
	if rec.Code != http.StatusOK || me.Username != "admin" {
		t.Fatalf("me = %d %+v", rec.Code, me)
	}

	if rec := env.do(t, http.MethodGet, "/api/settings", nil, "", login.Token); rec.Code != http.StatusOK {
		t.Fatalf("settings status = %d", rec.Code)
	}
}
