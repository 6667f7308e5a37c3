package translate

import "context"

// Request is a single engine call. System and Prompt are prebuilt by the gateway;
// engines that take raw text (DeepL) read Text instead.
type Request struct {
	Text       string
	SourceLang string
	TargetLang string
	System     string
	Prompt     string
}

// Response is what an engine hands back
type Response struct {
	Text               string
	DetectedSourceLang string
}

// Translator is the common interface for all translation engines
type Translator interface {
	Translate(ctx context.Context, req Request) (Response, error)
}

// TranslatorFunc adapts a function to the Translator interface.
type TranslatorFunc func(ctx context.Context, req Request) (Response, error)

func (f TranslatorFunc) Translate(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

// Result is the outcome of a gateway call
type Result struct {
	Text               string `json:"translated_text"`
	DetectedSourceLang string `json:"detected_source_lang,omitempty"`
	Engine             string `json:"engine"`
}
