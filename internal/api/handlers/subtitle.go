package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/subtrans/backend/internal/db"
	"github.com/subtrans/backend/internal/db/models"
	"github.com/subtrans/backend/internal/job"
	"github.com/subtrans/backend/internal/progress"
	"github.com/subtrans/backend/internal/storage"
	"github.com/subtrans/backend/internal/subtitle"
	"github.com/subtrans/backend/internal/subtitle/chunk"
)

const (
	uploadField    = "subtitle"
	previewEntries = 3
)

// Catalog records stored subtitle files
type Catalog interface {
	CreateUpload(u *models.Upload) error
	GetUpload(id string) (*models.Upload, error)
}

// ProgressSource serves snapshots of jobs this process does not track, such as
// jobs run by another instance.
type ProgressSource interface {
	Fetch(ctx context.Context, jobID string) (progress.Progress, bool, error)
}

// EngineSet reports whether a translation engine is available
type EngineSet interface {
	Has(id string) bool
}

type SubtitleConfig struct {
	UploadLimit int64
	UploadTTL   time.Duration
	OutputTTL   time.Duration
}

type SubtitleHandler struct {
	catalog  Catalog
	store    storage.Store
	driver   *job.Driver
	engines  EngineSet
	progress *progress.Store
	remote   ProgressSource
	defaults *Runtime
	cfg      SubtitleConfig
	log      *zap.SugaredLogger
	now      func() time.Time
}

func NewSubtitleHandler(catalog Catalog, store storage.Store, driver *job.Driver, engines EngineSet, tracker *progress.Store, defaults *Runtime, cfg SubtitleConfig, log *zap.SugaredLogger) *SubtitleHandler {
	return &SubtitleHandler{
		catalog:  catalog,
		store:    store,
		driver:   driver,
		engines:  engines,
		progress: tracker,
		defaults: defaults,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
}

// WithRemoteProgress adds a fallback source for progress lookups.
func (h *SubtitleHandler) WithRemoteProgress(src ProgressSource) *SubtitleHandler {
	h.remote = src
	return h
}

type uploadResponse struct {
	FileID       string           `json:"fileId"`
	OriginalName string           `json:"originalName"`
	Format       subtitle.Format  `json:"format"`
	Size         int64            `json:"size"`
	Stats        subtitle.Stats   `json:"stats"`
	Preview      []subtitle.Entry `json:"preview"`
	UploadTime   time.Time        `json:"uploadTime"`
}

// Upload accepts one multipart subtitle file, validates that it parses and
// stores it for later translation.
func (h *SubtitleHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.UploadLimit+64<<10)

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			jsonError(w, "file too large", http.StatusRequestEntityTooLarge)
			return
		}
		jsonError(w, "no subtitle file uploaded", http.StatusBadRequest)
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if !storage.IsSubtitleFile(name) {
		jsonError(w, "unsupported file format, supported formats: .srt, .smi, .vtt", http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, h.cfg.UploadLimit+1))
	if err != nil {
		jsonError(w, "failed to read upload", http.StatusBadRequest)
		return
	}
	if int64(len(data)) > h.cfg.UploadLimit {
		jsonError(w, "file too large", http.StatusRequestEntityTooLarge)
		return
	}

	declared, _ := subtitle.FormatFromFilename(name)
	format, entries, err := subtitle.Parse(data, declared)
	if err != nil {
		jsonError(w, "failed to parse subtitle file: "+err.Error(), http.StatusBadRequest)
		return
	}

	id := uuid.NewString()
	key := "uploads/" + id + strings.ToLower(filepath.Ext(name))
	if err := h.store.Put(r.Context(), key, bytes.NewReader(data), int64(len(data)), storage.ContentType(name)); err != nil {
		h.log.Errorw("store upload", "file_id", id, "error", err)
		jsonError(w, "failed to store file", http.StatusInternalServerError)
		return
	}

	now := h.now().UTC()
	upload := &models.Upload{
		ID:           id,
		Kind:         models.KindUpload,
		OriginalName: name,
		Format:       string(format),
		StorageKey:   key,
		Size:         int64(len(data)),
		CreatedAt:    now,
		ExpiresAt:    now.Add(h.cfg.UploadTTL),
	}
	if err := h.catalog.CreateUpload(upload); err != nil {
		h.log.Errorw("record upload", "file_id", id, "error", err)
		jsonError(w, "failed to store file", http.StatusInternalServerError)
		return
	}

	h.log.Infow("subtitle uploaded", "file_id", id, "name", name, "format", format, "entries", len(entries))
	jsonResponse(w, uploadResponse{
		FileID:       id,
		OriginalName: name,
		Format:       format,
		Size:         upload.Size,
		Stats:        subtitle.ComputeStats(entries),
		Preview:      entries[:min(previewEntries, len(entries))],
		UploadTime:   now,
	}, http.StatusOK)
}

type translateRequest struct {
	FileID          string `json:"fileId"`
	TargetLang      string `json:"targetLang"`
	SourceLang      string `json:"sourceLang"`
	Engine          string `json:"engine"`
	OutputFormat    string `json:"outputFormat"`
	ChunkSize       int    `json:"chunkSize"`
	TranslationMode string `json:"translationMode"`
	MaxRetries      int    `json:"maxRetries"`
	RetryDelay      int    `json:"retryDelay"` // ms
	EnableFallback  *bool  `json:"enableFallback"`
}

type translateResponse struct {
	OriginalFileID     string           `json:"originalFileId"`
	TranslatedFileID   string           `json:"translatedFileId"`
	FileName           string           `json:"fileName"`
	OriginalFormat     subtitle.Format  `json:"originalFormat"`
	OutputFormat       subtitle.Format  `json:"outputFormat"`
	Stats              subtitle.Stats   `json:"stats"`
	TranslationEngine  string           `json:"translationEngine"`
	SourceLang         string           `json:"sourceLang"`
	TargetLang         string           `json:"targetLang"`
	TotalEntries       int              `json:"totalEntries"`
	TranslationOptions job.Options      `json:"translationOptions"`
	TranslationStats   job.Stats        `json:"translationStats"`
	Preview            []subtitle.Entry `json:"preview"`
	DownloadURL        string           `json:"downloadUrl"`
}

// Translate runs a translation job for an uploaded file and waits for it to
// finish. Progress can be polled meanwhile under the upload's file id.
func (h *SubtitleHandler) Translate(w http.ResponseWriter, r *http.Request) {
	var req translateRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.FileID == "" || req.TargetLang == "" {
		jsonError(w, "fileId and targetLang are required", http.StatusBadRequest)
		return
	}

	var outFormat subtitle.Format
	if req.OutputFormat != "" {
		f, err := subtitle.ParseFormat(req.OutputFormat)
		if err != nil {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		outFormat = f
	}

	opts := h.requestOptions(req)
	if !h.engines.Has(opts.Engine) {
		jsonError(w, fmt.Sprintf("translation engine %q is not available", opts.Engine), http.StatusBadRequest)
		return
	}

	upload, data, ok := h.load(w, r, req.FileID, models.KindUpload)
	if !ok {
		return
	}

	// The job outlives a dropped client connection; progress stays pollable.
	ctx := context.WithoutCancel(r.Context())
	res, err := h.driver.TranslateFile(ctx, job.FileRequest{
		JobID:        upload.ID,
		Filename:     upload.OriginalName,
		Data:         data,
		Format:       subtitle.Format(upload.Format),
		OutputFormat: outFormat,
		Options:      opts,
	})
	if err != nil {
		var jobErr *job.JobError
		if errors.As(err, &jobErr) {
			jsonError(w, jobErr.Err.Error(), http.StatusBadRequest)
			return
		}
		h.log.Errorw("translation job failed", "file_id", upload.ID, "error", err)
		jsonError(w, "translation failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	outID := uuid.NewString()
	key := "outputs/" + outID + "." + string(res.OutputFormat)
	if err := h.store.Put(ctx, key, bytes.NewReader(res.Output), int64(len(res.Output)), storage.ContentType(res.OutputName)); err != nil {
		h.log.Errorw("store output", "file_id", upload.ID, "error", err)
		jsonError(w, "failed to store translated file", http.StatusInternalServerError)
		return
	}

	now := h.now().UTC()
	if err := h.catalog.CreateUpload(&models.Upload{
		ID:           outID,
		Kind:         models.KindOutput,
		OriginalName: res.OutputName,
		Format:       string(res.OutputFormat),
		StorageKey:   key,
		Size:         int64(len(res.Output)),
		SourceID:     upload.ID,
		Engine:       res.Options.Engine,
		TargetLang:   res.Options.TargetLang,
		CreatedAt:    now,
		ExpiresAt:    now.Add(h.cfg.OutputTTL),
	}); err != nil {
		h.log.Errorw("record output", "file_id", upload.ID, "error", err)
		jsonError(w, "failed to store translated file", http.StatusInternalServerError)
		return
	}

	jsonResponse(w, translateResponse{
		OriginalFileID:     upload.ID,
		TranslatedFileID:   outID,
		FileName:           res.OutputName,
		OriginalFormat:     res.OriginalFormat,
		OutputFormat:       res.OutputFormat,
		Stats:              res.Stats,
		TranslationEngine:  res.Options.Engine,
		SourceLang:         res.Options.SourceLang,
		TargetLang:         res.Options.TargetLang,
		TotalEntries:       res.TotalEntries,
		TranslationOptions: res.Options,
		TranslationStats:   res.Translation,
		Preview:            res.Preview,
		DownloadURL:        "/api/subtitle/download/" + outID,
	}, http.StatusOK)
}

func (h *SubtitleHandler) requestOptions(req translateRequest) job.Options {
	opts := h.defaults.Defaults()
	opts.TargetLang = req.TargetLang
	if req.SourceLang != "" {
		opts.SourceLang = req.SourceLang
	}
	if req.Engine != "" {
		opts.Engine = req.Engine
	}
	if req.ChunkSize != 0 {
		opts.ChunkSize = req.ChunkSize
	}
	if req.TranslationMode != "" {
		opts.Mode = chunk.Mode(req.TranslationMode)
	}
	if req.MaxRetries != 0 {
		opts.MaxRetries = req.MaxRetries
	}
	if req.RetryDelay != 0 {
		opts.RetryDelay = time.Duration(req.RetryDelay) * time.Millisecond
	}
	if req.EnableFallback != nil {
		opts.EnableFallback = *req.EnableFallback
	}
	opts.Normalize()
	return opts
}

// Progress returns the latest snapshot of a job.
func (h *SubtitleHandler) Progress(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "fileID")
	if p, ok := h.progress.Get(id); ok {
		jsonResponse(w, p, http.StatusOK)
		return
	}

	if h.remote != nil {
		p, ok, err := h.remote.Fetch(r.Context(), id)
		if err != nil {
			h.log.Warnw("remote progress lookup failed", "job_id", id, "error", err)
		} else if ok {
			jsonResponse(w, p, http.StatusOK)
			return
		}
	}

	jsonError(w, "progress not found", http.StatusNotFound)
}

// Download streams a stored file as an attachment.
func (h *SubtitleHandler) Download(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "fileID")
	upload, data, ok := h.load(w, r, id, "")
	if !ok {
		return
	}

	w.Header().Set("Content-Type", storage.ContentType(upload.OriginalName))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": upload.OriginalName}))
	w.Header().Set("Content-Length", fmt.Sprint(len(data)))
	w.Write(data)
}

// Info parses a stored file and returns all of its entries.
func (h *SubtitleHandler) Info(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "fileID")
	upload, data, ok := h.load(w, r, id, "")
	if !ok {
		return
	}

	format, entries, err := subtitle.Parse(data, subtitle.Format(upload.Format))
	if err != nil {
		jsonError(w, "failed to parse subtitle file: "+err.Error(), http.StatusUnprocessableEntity)
		return
	}

	jsonResponse(w, map[string]interface{}{
		"fileId":       upload.ID,
		"originalName": upload.OriginalName,
		"kind":         upload.Kind,
		"format":       format,
		"stats":        subtitle.ComputeStats(entries),
		"entries":      entries,
		"expiresAt":    upload.ExpiresAt,
	}, http.StatusOK)
}

type formatInfo struct {
	Extension   string `json:"extension"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Formats lists the supported subtitle formats.
func (h *SubtitleHandler) Formats(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, []formatInfo{
		{Extension: "srt", Name: "SubRip Subtitle", Description: "The most common subtitle format"},
		{Extension: "smi", Name: "SAMI Subtitle", Description: "Synchronized Accessible Media Interchange"},
		{Extension: "vtt", Name: "WebVTT", Description: "Web Video Text Tracks"},
	}, http.StatusOK)
}

// load resolves a file id to its record and content, writing the error
// response itself. An empty kind accepts any file.
func (h *SubtitleHandler) load(w http.ResponseWriter, r *http.Request, id string, kind models.UploadKind) (*models.Upload, []byte, bool) {
	upload, err := h.catalog.GetUpload(id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			jsonError(w, "file not found", http.StatusNotFound)
			return nil, nil, false
		}
		h.log.Errorw("lookup file", "file_id", id, "error", err)
		jsonError(w, "failed to load file", http.StatusInternalServerError)
		return nil, nil, false
	}
	if kind != "" && upload.Kind != kind {
		jsonError(w, "file not found", http.StatusNotFound)
		return nil, nil, false
	}
	if !upload.ExpiresAt.IsZero() && h.now().After(upload.ExpiresAt) {
		jsonError(w, "file has expired", http.StatusGone)
		return nil, nil, false
	}

	rc, err := h.store.Get(r.Context(), upload.StorageKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			jsonError(w, "file not found", http.StatusNotFound)
			return nil, nil, false
		}
		h.log.Errorw("read file", "file_id", id, "error", err)
		jsonError(w, "failed to load file", http.StatusInternalServerError)
		return nil, nil, false
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		jsonError(w, "failed to load file", http.StatusInternalServerError)
		return nil, nil, false
	}
	return upload, data, true
}
