package chunk

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/subtrans/backend/internal/subtitle/translate"
)

// TranslateText translates one free-standing text on the requested engine, then
// on each fallback engine when opts.EnableFallback is set. Each engine gets the
// usual retry budget.
func (t *Translator) TranslateText(ctx context.Context, text string, opts Options) (*translate.Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	engines := []string{opts.Engine}
	if opts.EnableFallback {
		engines = append(engines, t.Fallbacks(opts.Engine)...)
	}

	var lastErr error
	for _, engine := range engines {
		var res *translate.Result
		err := t.withRetry(ctx, opts, engine, func() error {
			r, err := t.gw.Translate(ctx, text, opts.TargetLang, opts.SourceLang, engine)
			res = r
			return err
		})
		if err == nil {
			if engine != opts.Engine {
				t.log.Infow("fallback engine used", "requested", opts.Engine, "engine", engine)
			}
			return res, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}

	return nil, fmt.Errorf("%w: %w", ErrAllEnginesFailed, lastErr)
}

// BatchItem is the outcome for one text of a batch
type BatchItem struct {
	Index          int    `json:"index"`
	Success        bool   `json:"success"`
	OriginalText   string `json:"original_text"`
	TranslatedText string `json:"translated_text,omitempty"`
	Engine         string `json:"engine,omitempty"`
	Error          string `json:"error,omitempty"`
}

// BatchSummary counts batch outcomes
type BatchSummary struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// TranslateBatch translates independent texts with at most concurrency calls in
// flight. A failed item never affects the others; results are in input order.
func (t *Translator) TranslateBatch(ctx context.Context, texts []string, opts Options, concurrency int) ([]BatchItem, BatchSummary) {
	if concurrency < 1 {
		concurrency = 1
	}

	items := make([]BatchItem, len(texts))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i, text := range texts {
		wg.Add(1)
		sem <- struct{}{}

		go func(idx int, text string) {
			defer wg.Done()
			defer func() { <-sem }()

			item := BatchItem{Index: idx, OriginalText: text}
			res, err := t.TranslateText(ctx, text, opts)
			if err != nil {
				item.Error = err.Error()
			} else {
				item.Success = true
				item.TranslatedText = res.Text
				item.Engine = res.Engine
			}
			items[idx] = item
		}(i, text)
	}

	wg.Wait()

	summary := BatchSummary{Total: len(texts)}
	for _, it := range items {
		if it.Success {
			summary.Successful++
		} else {
			summary.Failed++
		}
	}
	t.log.Infow("batch translated", "total", summary.Total, "successful", summary.Successful, "failed", summary.Failed)
	return items, summary
}
