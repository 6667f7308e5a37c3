package chunk

import (
	"time"

	"github.com/subtrans/backend/internal/subtitle"
	"github.com/subtrans/backend/internal/subtitle/translate"
)

// Mode is the requested chunk encoding
type Mode string

const (
	ModeAuto      Mode = "auto"
	ModeSRTDirect Mode = "srt_direct"
	ModeSeparator Mode = "separator"
)

// Strategy is the encoding actually used for a chunk
type Strategy string

const (
	StrategySRTDirect  Strategy = "srt_direct"
	StrategySeparator  Strategy = "separator"
	StrategyIndividual Strategy = "individual"
)

const (
	DefaultMaxRetries = 5
	DefaultRetryDelay = time.Second

	// srtDirectMaxEntries is the largest SRT chunk auto mode sends as one block
	srtDirectMaxEntries = 10
)

// Options configures one chunk translation
type Options struct {
	TargetLang     string          `json:"target_lang"`
	SourceLang     string          `json:"source_lang"`
	Engine         string          `json:"engine"`
	Mode           Mode            `json:"translation_mode"`
	MaxRetries     int             `json:"max_retries"`
	RetryDelay     time.Duration   `json:"retry_delay"`
	EnableFallback bool            `json:"enable_fallback"`
	SourceFormat   subtitle.Format `json:"source_format"`
}

// Normalize clamps out-of-range values instead of rejecting them. Zero values
// take defaults.
func (o *Options) Normalize() {
	if o.Engine == "" {
		o.Engine = translate.DefaultEngine
	}
	if o.SourceLang == "" {
		o.SourceLang = "auto"
	}

	switch o.Mode {
	case ModeAuto, ModeSRTDirect, ModeSeparator:
	default:
		o.Mode = ModeAuto
	}

	if o.MaxRetries == 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	o.MaxRetries = max(1, min(o.MaxRetries, 10))

	if o.RetryDelay == 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	o.RetryDelay = max(100*time.Millisecond, min(o.RetryDelay, 10*time.Second))
}

// ResolveStrategy picks the encoding for a chunk of n entries.
func ResolveStrategy(mode Mode, format subtitle.Format, n int) Strategy {
	switch {
	case mode == ModeSRTDirect && (format == subtitle.FormatSRT || format == subtitle.FormatVTT):
		return StrategySRTDirect
	case mode == ModeSeparator:
		return StrategySeparator
	case format == subtitle.FormatSRT && n <= srtDirectMaxEntries:
		return StrategySRTDirect
	}
	return StrategySeparator
}
