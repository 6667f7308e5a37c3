package chunk

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/subtrans/backend/internal/subtitle/translate"
)

func TestTranslateTextFallback(t *testing.T) {
	t.Parallel()

	gw := &stubGateway{fn: func(text, engine string, _ int) (string, error) {
		if engine == translate.EngineGroq {
			return "", providerErr(engine)
		}
		return "[" + engine + "] " + text, nil
	}}

	opts := baseOptions()
	opts.MaxRetries = 0
	opts.EnableFallback = true
	res, err := newTranslator(gw).TranslateText(context.Background(), "hi", opts)
	if err != nil {
		t.Fatalf("TranslateText: %v", err)
	}
	if res.Engine != translate.EngineOllamaKanana || res.Text != "[ollama-kanana-1.5] hi" {
		t.Errorf("res = %+v", res)
	}
}

func TestTranslateTextWithoutFallback(t *testing.T) {
	t.Parallel()

	gw := &stubGateway{fn: func(_, engine string, _ int) (string, error) {
		return "", providerErr(engine)
	}}

	opts := baseOptions()
	opts.MaxRetries = 1
	_, err := newTranslator(gw).TranslateText(context.Background(), "hi", opts)
	if !errors.Is(err, ErrAllEnginesFailed) {
		t.Fatalf("err = %v", err)
	}
	if gw.callCount() != 2 {
		t.Errorf("calls = %d, want 2", gw.callCount())
	}
}

func TestTranslateTextRejectsEmpty(t *testing.T) {
	t.Parallel()

	gw := &stubGateway{fn: func(string, string, int) (string, error) { return "x", nil }}
	if _, err := newTranslator(gw).TranslateText(context.Background(), "  ", baseOptions()); !errors.Is(err, ErrEmptyText) {
		t.Errorf("err = %v", err)
	}
	if gw.callCount() != 0 {
		t.Errorf("calls = %d", gw.callCount())
	}
}

func TestTranslateBatch(t *testing.T) {
	t.Parallel()

	var inFlight, peak atomic.Int32
	gw := &stubGateway{fn: func(text, engine string, _ int) (string, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		if strings.HasPrefix(text, "bad") {
			return "", providerErr(engine)
		}
		return strings.ToUpper(text), nil
	}}

	texts := []string{"one", "bad two", "three", "four", "bad five", "six"}
	opts := baseOptions()
	opts.MaxRetries = 0

	items, summary := newTranslator(gw).TranslateBatch(context.Background(), texts, opts, 2)

	if summary != (BatchSummary{Total: 6, Successful: 4, Failed: 2}) {
		t.Errorf("summary = %+v", summary)
	}
	if p := peak.Load(); p > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", p)
	}

	var failed []int
	for i, it := range items {
		if it.Index != i || it.OriginalText != texts[i] {
			t.Errorf("item %d out of order: %+v", i, it)
		}
		if !it.Success {
			failed = append(failed, i)
			if it.Error == "" {
				t.Errorf("item %d has no error message", i)
			}
			continue
		}
		if it.TranslatedText != strings.ToUpper(texts[i]) || it.Engine != translate.EngineGroq {
			t.Errorf("item %d = %+v", i, it)
		}
	}
	if !slices.Equal(failed, []int{1, 4}) {
		t.Errorf("failed indexes = %v", failed)
	}
}
