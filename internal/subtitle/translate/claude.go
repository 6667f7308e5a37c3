package translate

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const anthropicMessagesURL = "https://api.anthropic.com/v1/messages"

// ClaudeTranslator uses the Anthropic messages API
type ClaudeTranslator struct {
	apiKey     string
	url        string
	model      string
	httpClient *http.Client
}

func NewClaudeTranslator(apiKey, url, model string) *ClaudeTranslator {
	if url == "" {
		url = anthropicMessagesURL
	}
	if model == "" {
		model = "claude-3-haiku-20240307"
	}
	return &ClaudeTranslator{
		apiKey: apiKey,
		url:    url,
		model:  model,
		httpClient: &http.Client{
			Timeout: 2 * time.Minute,
		},
	}
}

func (c *ClaudeTranslator) Translate(ctx context.Context, req Request) (Response, error) {
	body := map[string]any{
		"model":       c.model,
		"max_tokens":  4000,
		"temperature": 0.3,
		"system":      req.System,
		"messages": []chatMessage{
			{Role: "user", Content: req.Prompt},
		},
	}

	var msgResp struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}

	headers := map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": "2023-06-01",
	}
	if err := postJSON(ctx, c.httpClient, c.url, headers, body, &msgResp); err != nil {
		return Response{}, err
	}

	var sb strings.Builder
	for _, part := range msgResp.Content {
		if part.Type == "text" || part.Type == "" {
			sb.WriteString(part.Text)
		}
	}
	if sb.Len() == 0 {
		return Response{}, fmt.Errorf("empty Claude response")
	}
	return Response{Text: sb.String()}, nil
}
