package job

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/subtrans/backend/internal/progress"
	"github.com/subtrans/backend/internal/subtitle"
	"github.com/subtrans/backend/internal/subtitle/chunk"
)

// Driver runs translation jobs. Chunks of one job are translated strictly in
// sequence; independent jobs may share a Driver.
type Driver struct {
	chunks   *chunk.Translator
	gw       chunk.Gateway
	progress *progress.Store
	log      *zap.SugaredLogger

	// ChunkPause is slept between chunks
	ChunkPause time.Duration
	now        func() time.Time
}

func NewDriver(chunks *chunk.Translator, gw chunk.Gateway, store *progress.Store, log *zap.SugaredLogger) *Driver {
	return &Driver{
		chunks:     chunks,
		gw:         gw,
		progress:   store,
		log:        log,
		ChunkPause: DefaultChunkPause,
		now:        time.Now,
	}
}

// Run translates entries chunk by chunk and returns them in input order with
// only their text replaced. Translation failures never abort the job; they
// show up as placeholder text. Only missing parameters, an empty file or a
// cancelled context make Run return an error.
func (d *Driver) Run(ctx context.Context, jobID string, entries []subtitle.Entry, format subtitle.Format, opts Options) (*Result, error) {
	if jobID == "" || opts.TargetLang == "" {
		return nil, d.fail(jobID, ErrMissingParams)
	}
	if len(entries) == 0 {
		return nil, d.fail(jobID, ErrNoEntries)
	}

	opts.Normalize()
	if opts.SourceFormat == "" {
		opts.SourceFormat = format
	}

	totalChars := subtitle.CharCount(entries)
	totalChunks := (len(entries) + opts.ChunkSize - 1) / opts.ChunkSize
	d.progress.Initialize(jobID, len(entries), totalChars)
	d.progress.Update(jobID, progress.Update{TotalChunks: progress.Int(totalChunks)})

	d.log.Infow("job started",
		"job_id", jobID, "entries", len(entries), "characters", totalChars,
		"chunks", totalChunks, "chunk_size", opts.ChunkSize, "engine", opts.Engine,
		"target_lang", opts.TargetLang, "mode", opts.Mode)

	start := d.now()
	out := make([]subtitle.Entry, 0, len(entries))
	stats := Stats{TotalCharacters: totalChars}
	processedChars := 0

	for i := 0; i < len(entries); i += opts.ChunkSize {
		batch := entries[i:min(i+opts.ChunkSize, len(entries))]
		chunkIndex := i/opts.ChunkSize + 1
		chunkChars := subtitle.CharCount(batch)

		d.progress.SetChunk(jobID, chunkIndex, totalChunks, len(batch), chunkChars)

		res := d.chunks.TranslateChunk(ctx, batch, opts.Options, chunkIndex, totalChunks)
		stat := ChunkStat{
			Index:      chunkIndex,
			Entries:    len(batch),
			Characters: chunkChars,
			Engine:     res.UsedEngine,
			Strategy:   res.Strategy,
			Success:    res.Success,
			Failed:     res.Failed,
			DurationMs: res.Duration.Milliseconds(),
		}
		if res.Err != nil {
			stat.Error = res.Err.Error()
		}

		for j, e := range batch {
			text := e.Text
			if j < len(res.Texts) {
				text = strings.TrimSpace(res.Texts[j])
			}
			if opts.TargetLang == "en" && containsHangul(text) {
				d.log.Warnw("source script left in translation, retranslating entry",
					"job_id", jobID, "index", e.Index)
				text = d.retranslate(ctx, e.Text, opts)
				stats.Retranslations++
			}
			if strings.HasPrefix(text, chunk.FailureMarker) {
				stats.FailedEntries++
			}
			out = append(out, e.WithText(text))
		}
		stats.Chunks = append(stats.Chunks, stat)

		processedChars += chunkChars
		update := progress.Update{
			ProcessedEntries:    progress.Int(len(out)),
			ProcessedCharacters: progress.Int(processedChars),
		}
		if !res.Success {
			update.Message = fmt.Sprintf("Chunk %d failed - original text kept", chunkIndex)
		}
		d.progress.Update(jobID, update)

		if i+opts.ChunkSize < len(entries) {
			if err := pause(ctx, d.ChunkPause); err != nil {
				d.progress.SetError(jobID, "translation cancelled")
				return nil, fmt.Errorf("job %s: %w", jobID, err)
			}
		}
	}

	elapsed := d.now().Sub(start)
	stats.TotalTimeMs = elapsed.Milliseconds()
	if secs := elapsed.Seconds(); secs > 0 {
		stats.CharsPerSecond = int(math.Round(float64(totalChars) / secs))
	}
	d.progress.Complete(jobID, elapsed, stats.CharsPerSecond)

	d.log.Infow("job completed",
		"job_id", jobID, "duration", elapsed, "chars_per_second", stats.CharsPerSecond,
		"failed_entries", stats.FailedEntries, "retranslations", stats.Retranslations)

	return &Result{Entries: out, Stats: stats}, nil
}

// TranslateFile parses a subtitle file, translates it and serializes the
// result. The output format defaults to the input format.
func (d *Driver) TranslateFile(ctx context.Context, req FileRequest) (*FileResult, error) {
	if req.JobID == "" || req.Options.TargetLang == "" || len(req.Data) == 0 {
		return nil, d.fail(req.JobID, ErrMissingParams)
	}

	format, entries, err := subtitle.Parse(req.Data, req.Format)
	if err != nil {
		return nil, d.fail(req.JobID, err)
	}

	opts := req.Options
	opts.SourceFormat = format
	opts.Normalize()

	res, err := d.Run(ctx, req.JobID, entries, format, opts)
	if err != nil {
		return nil, err
	}

	outFormat := req.OutputFormat
	if outFormat == "" {
		outFormat = format
	}
	data, err := subtitle.Generate(res.Entries, outFormat, subtitle.GenerateOptions{
		Title: "Translated to " + opts.TargetLang,
	})
	if err != nil {
		d.progress.SetError(req.JobID, err.Error())
		return nil, &JobError{JobID: req.JobID, Err: err}
	}

	return &FileResult{
		JobID:          req.JobID,
		OutputName:     OutputName(req.Filename, opts.TargetLang, opts.Engine, outFormat, d.now()),
		Output:         data,
		OriginalFormat: format,
		OutputFormat:   outFormat,
		TotalEntries:   len(res.Entries),
		Stats:          subtitle.ComputeStats(res.Entries),
		Translation:    res.Stats,
		Preview:        res.Entries[:min(previewEntries, len(res.Entries))],
		Options:        opts,
	}, nil
}

// OutputName builds <name>_translated_<lang>_<engine>_<unix ms>.<format>. The
// "ollama-" engine prefix is dropped.
func OutputName(original, targetLang, engine string, format subtitle.Format, at time.Time) string {
	base := strings.TrimSuffix(filepath.Base(original), filepath.Ext(original))
	if base == "" || base == "." {
		base = "subtitle"
	}
	engine = strings.Replace(engine, "ollama-", "", 1)
	return fmt.Sprintf("%s_translated_%s_%s_%d.%s", base, targetLang, engine, at.UnixMilli(), format)
}

// retranslate makes one direct call on the primary engine, then tries the
// fallback engines when enabled. Placeholder on total failure.
func (d *Driver) retranslate(ctx context.Context, original string, opts Options) string {
	res, err := d.gw.Translate(ctx, original, opts.TargetLang, opts.SourceLang, opts.Engine)
	if err == nil {
		return strings.TrimSpace(res.Text)
	}
	d.log.Warnw("retranslation failed", "engine", opts.Engine, "error", err)

	if opts.EnableFallback {
		for _, fb := range d.chunks.Fallbacks(opts.Engine) {
			res, err := d.gw.Translate(ctx, original, opts.TargetLang, opts.SourceLang, fb)
			if err == nil {
				d.log.Infow("retranslation succeeded on fallback engine", "engine", fb)
				return strings.TrimSpace(res.Text)
			}
			d.log.Warnw("fallback retranslation failed", "engine", fb, "error", err)
		}
	}
	return chunk.Placeholder(original)
}

func (d *Driver) fail(jobID string, err error) error {
	if jobID != "" {
		d.progress.Initialize(jobID, 0, 0)
		d.progress.SetError(jobID, err.Error())
	}
	return &JobError{JobID: jobID, Err: err}
}

func containsHangul(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Hangul, r) {
			return true
		}
	}
	return false
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
