package translate

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-1.5-flash"

// GeminiTranslator translates with Google Gemini through the genai SDK
type GeminiTranslator struct {
	apiKey string
	model  string
}

func NewGeminiTranslator(apiKey, model string) *GeminiTranslator {
	if model == "" {
		model = defaultGeminiModel
	}
	return &GeminiTranslator{apiKey: apiKey, model: model}
}

func (g *GeminiTranslator) Translate(ctx context.Context, req Request) (Response, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  g.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return Response{}, fmt.Errorf("create client: %w", err)
	}

	result, err := client.Models.GenerateContent(ctx, g.model, genai.Text(req.System+"\n\n"+req.Prompt), nil)
	if err != nil {
		return Response{}, fmt.Errorf("generate content: %w", err)
	}

	if result != nil && len(result.Candidates) > 0 && result.Candidates[0].Content != nil {
		var sb strings.Builder
		for _, part := range result.Candidates[0].Content.Parts {
			if part.Text != "" {
				sb.WriteString(part.Text)
			}
		}
		if sb.Len() > 0 {
			return Response{Text: sb.String()}, nil
		}
	}

	return Response{}, fmt.Errorf("empty response from Gemini")
}
