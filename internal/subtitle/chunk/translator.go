// Package chunk translates batches of subtitle entries through the engine
// gateway. Whatever the engines do, every call returns exactly one text per
// input entry, in input order.
package chunk

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/subtrans/backend/internal/subtitle"
	"github.com/subtrans/backend/internal/subtitle/translate"
)

// FailureMarker prefixes entries no engine could translate
const FailureMarker = "[translation-failed] "

var (
	ErrCountMismatch    = errors.New("translated segment count mismatch")
	ErrSeparatorLost    = errors.New("separator missing from response")
	ErrChunkExhausted   = errors.New("all retries and fallback engines failed")
	ErrEmptyText        = errors.New("text is empty")
	ErrAllEnginesFailed = errors.New("all engines failed")
)

// Gateway is the engine call the orchestrator depends on
type Gateway interface {
	Translate(ctx context.Context, text, targetLang, sourceLang, engine string) (*translate.Result, error)
}

// availability is implemented by gateways that know which engines are registered.
type availability interface {
	Has(engine string) bool
}

// Result is the outcome of one chunk. len(Texts) always equals the chunk length.
type Result struct {
	Success    bool          `json:"success"`
	Texts      []string      `json:"translated_texts"`
	UsedEngine string        `json:"used_engine"`
	Strategy   Strategy      `json:"strategy"`
	Failed     int           `json:"failed_entries"`
	Err        error         `json:"-"`
	Duration   time.Duration `json:"duration"`
	Characters int           `json:"characters"`
}

// Placeholder marks text that could not be translated.
func Placeholder(text string) string {
	return FailureMarker + text
}

// Translator orchestrates strategies, retries and engine fallback for chunks
type Translator struct {
	gw  Gateway
	log *zap.SugaredLogger
}

func New(gw Gateway, log *zap.SugaredLogger) *Translator {
	return &Translator{gw: gw, log: log}
}

// TranslateChunk translates entries as one unit. chunkIndex is 1-based and only
// used for logging.
func (t *Translator) TranslateChunk(ctx context.Context, entries []subtitle.Entry, opts Options, chunkIndex, totalChunks int) Result {
	start := time.Now()
	res := Result{
		UsedEngine: opts.Engine,
		Characters: subtitle.CharCount(entries),
		Texts:      []string{},
	}
	if len(entries) == 0 {
		res.Success = true
		return res
	}

	strategy := ResolveStrategy(opts.Mode, opts.SourceFormat, len(entries))
	t.log.Infow("chunk started",
		"chunk", chunkIndex, "total_chunks", totalChunks,
		"entries", len(entries), "strategy", strategy, "engine", opts.Engine)

	texts, used, failed, err := t.run(ctx, entries, opts, strategy, opts.Engine)
	engine := opts.Engine

	if err != nil && opts.EnableFallback {
		t.log.Warnw("chunk failed on primary engine, trying fallbacks", "chunk", chunkIndex, "engine", opts.Engine, "error", err)
		for _, fb := range t.Fallbacks(opts.Engine) {
			var fbErr error
			texts, used, failed, fbErr = t.run(ctx, entries, opts, strategy, fb)
			if fbErr == nil {
				engine = fb
				err = nil
				t.log.Infow("fallback engine succeeded", "chunk", chunkIndex, "engine", fb)
				break
			}
			err = fbErr
			t.log.Warnw("fallback engine failed", "chunk", chunkIndex, "engine", fb, "error", fbErr)
		}
	}

	res.Duration = time.Since(start)
	if err != nil {
		res.Texts = make([]string, len(entries))
		for i, e := range entries {
			res.Texts[i] = Placeholder(e.Text)
		}
		res.Strategy = strategy
		res.Failed = len(entries)
		res.Err = fmt.Errorf("%w: %w", ErrChunkExhausted, err)
		t.log.Errorw("chunk exhausted", "chunk", chunkIndex, "engine", opts.Engine, "error", err)
		return res
	}

	res.Success = true
	res.Texts = texts
	res.UsedEngine = engine
	res.Strategy = used
	res.Failed = failed

	rate := 0
	if secs := res.Duration.Seconds(); secs > 0 {
		rate = int(float64(res.Characters) / secs)
	}
	t.log.Infow("chunk completed",
		"chunk", chunkIndex, "engine", engine, "strategy", used,
		"duration", res.Duration, "chars_per_second", rate, "failed_entries", failed)
	return res
}

// run executes one strategy against one engine. Only SRT-direct can fail as a
// whole; the separator strategy degrades to individual translation instead.
func (t *Translator) run(ctx context.Context, entries []subtitle.Entry, opts Options, strategy Strategy, engine string) ([]string, Strategy, int, error) {
	if strategy == StrategySRTDirect {
		texts, err := t.srtDirect(ctx, entries, opts, engine)
		return texts, StrategySRTDirect, 0, err
	}

	texts, err := t.separator(ctx, entries, opts, engine)
	if err == nil {
		return texts, StrategySeparator, 0, nil
	}
	t.log.Warnw("separator strategy gave up, translating individually", "engine", engine, "error", err)
	texts, failed := t.individually(ctx, entries, opts, engine)
	return texts, StrategyIndividual, failed, nil
}

func (t *Translator) srtDirect(ctx context.Context, entries []subtitle.Entry, opts Options, engine string) ([]string, error) {
	payload, err := subtitle.Generate(entries, subtitle.FormatSRT, subtitle.GenerateOptions{})
	if err != nil {
		return nil, err
	}

	var texts []string
	err = t.withRetry(ctx, opts, engine, func() error {
		res, err := t.gw.Translate(ctx, string(payload), opts.TargetLang, opts.SourceLang, engine)
		if err != nil {
			return err
		}
		got := ExtractSRTTexts(res.Text)
		if len(got) != len(entries) {
			return fmt.Errorf("%w: want %d, got %d", ErrCountMismatch, len(entries), len(got))
		}
		texts = got
		return nil
	})
	return texts, err
}

func (t *Translator) separator(ctx context.Context, entries []subtitle.Entry, opts Options, engine string) ([]string, error) {
	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = e.Text
	}
	payload := strings.Join(parts, translate.Separator)

	var texts []string
	err := t.withRetry(ctx, opts, engine, func() error {
		res, err := t.gw.Translate(ctx, payload, opts.TargetLang, opts.SourceLang, engine)
		if err != nil {
			return err
		}
		got, err := SplitSegments(res.Text, len(entries))
		if err != nil {
			return stopRetry{err}
		}
		texts = got
		return nil
	})
	return texts, err
}

func (t *Translator) individually(ctx context.Context, entries []subtitle.Entry, opts Options, engine string) ([]string, int) {
	texts := make([]string, len(entries))
	failed := 0
	for i, e := range entries {
		res, err := t.gw.Translate(ctx, e.Text, opts.TargetLang, opts.SourceLang, engine)
		if err != nil {
			t.log.Warnw("entry translation failed", "engine", engine, "index", e.Index, "error", err)
			texts[i] = Placeholder(e.Text)
			failed++
			continue
		}
		texts[i] = res.Text
	}
	return texts, failed
}

// stopRetry marks a failure that retrying the same call will not fix.
type stopRetry struct{ error }

func (s stopRetry) Unwrap() error { return s.error }

// withRetry makes one attempt plus up to opts.MaxRetries retries, pausing
// opts.RetryDelay between attempts.
func (t *Translator) withRetry(ctx context.Context, opts Options, engine string, call func() error) error {
	var lastErr error
	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		if attempt > 0 {
			t.log.Debugw("retrying", "engine", engine, "attempt", attempt, "max_retries", opts.MaxRetries, "error", lastErr)
			if err := sleep(ctx, opts.RetryDelay); err != nil {
				return fmt.Errorf("%w (last error: %v)", err, lastErr)
			}
		}

		err := call()
		if err == nil {
			return nil
		}
		lastErr = err

		var stop stopRetry
		if errors.As(err, &stop) {
			return stop.error
		}
		if translate.IsPermanent(err) {
			return err
		}
	}
	return lastErr
}

// Fallbacks lists the fallback engines for primary that the gateway can serve.
func (t *Translator) Fallbacks(primary string) []string {
	list := translate.FallbackEngines(primary)
	a, ok := t.gw.(availability)
	if !ok {
		return list
	}
	out := list[:0]
	for _, e := range list {
		if a.Has(e) {
			out = append(out, e)
		}
	}
	return out
}

func sleep(ctx context.Context, d time.Duration) error {
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
