package translate

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	deeplFreeURL = "https://api-free.deepl.com/v2/translate"
	deeplProURL  = "https://api.deepl.com/v2/translate"
)

// DeepLTranslator translates raw text with the DeepL API. It ignores prompts.
type DeepLTranslator struct {
	apiKey     string
	url        string
	httpClient *http.Client
}

func NewDeepLTranslator(apiKey, endpoint string) *DeepLTranslator {
	if endpoint == "" {
		// Free-plan keys carry a ":fx" suffix
		endpoint = deeplProURL
		if strings.HasSuffix(apiKey, ":fx") {
			endpoint = deeplFreeURL
		}
	}
	return &DeepLTranslator{
		apiKey: apiKey,
		url:    endpoint,
		httpClient: &http.Client{
			Timeout: 1 * time.Minute,
		},
	}
}

func (d *DeepLTranslator) Translate(ctx context.Context, req Request) (Response, error) {
	target, ok := deeplLangCode(req.TargetLang)
	if !ok {
		return Response{}, unsupportedLanguage(EngineDeepL, req.TargetLang)
	}

	form := url.Values{}
	form.Add("text", req.Text)
	form.Set("target_lang", target)
	if req.SourceLang != "" && req.SourceLang != "auto" {
		source, ok := deeplLangCode(req.SourceLang)
		if !ok {
			return Response{}, unsupportedLanguage(EngineDeepL, req.SourceLang)
		}
		// Source codes take no regional variant
		source, _, _ = strings.Cut(source, "-")
		form.Set("source_lang", source)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, strings.NewReader(form.Encode()))
	if err != nil {
		return Response{}, err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Authorization", "DeepL-Auth-Key "+d.apiKey)

	var deeplResp struct {
		Translations []struct {
			DetectedSourceLanguage string `json:"detected_source_language"`
			Text                   string `json:"text"`
		} `json:"translations"`
	}
	if err := do(d.httpClient, httpReq, &deeplResp); err != nil {
		return Response{}, err
	}

	if len(deeplResp.Translations) == 0 {
		return Response{}, fmt.Errorf("empty DeepL response")
	}

	tr := deeplResp.Translations[0]
	return Response{
		Text:               tr.Text,
		DetectedSourceLang: strings.ToLower(tr.DetectedSourceLanguage),
	}, nil
}

// deeplLangCode converts ISO 639-1 codes to DeepL format
func deeplLangCode(code string) (string, bool) {
	mapping := map[string]string{
		"ko": "KO",
		"en": "EN",
		"ja": "JA",
		"zh": "ZH",
		"de": "DE",
		"fr": "FR",
		"es": "ES",
		"it": "IT",
		"pt": "PT-BR",
		"ru": "RU",
		"nl": "NL",
		"pl": "PL",
	}
	mapped, ok := mapping[strings.ToLower(code)]
	return mapped, ok
}
