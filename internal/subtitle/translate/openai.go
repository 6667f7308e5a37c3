package translate

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

const (
	openAIChatURL = "https://api.openai.com/v1/chat/completions"
	groqChatURL   = "https://api.groq.com/openai/v1/chat/completions"
)

// ChatTranslator talks to an OpenAI-compatible chat completions endpoint.
// OpenAI and Groq share it.
type ChatTranslator struct {
	apiKey     string
	url        string
	model      string
	groq       bool
	httpClient *http.Client
}

func NewOpenAITranslator(apiKey, url, model string) *ChatTranslator {
	if url == "" {
		url = openAIChatURL
	}
	if model == "" {
		model = "gpt-4.1-nano"
	}
	return &ChatTranslator{
		apiKey: apiKey,
		url:    url,
		model:  model,
		httpClient: &http.Client{
			Timeout: 2 * time.Minute,
		},
	}
}

func NewGroqTranslator(apiKey, url, model string) *ChatTranslator {
	if url == "" {
		url = groqChatURL
	}
	if model == "" {
		model = "llama-3.3-70b-versatile"
	}
	return &ChatTranslator{
		apiKey: apiKey,
		url:    url,
		model:  model,
		groq:   true,
		httpClient: &http.Client{
			Timeout: 1 * time.Minute,
		},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (c *ChatTranslator) Translate(ctx context.Context, req Request) (Response, error) {
	body := map[string]any{
		"model": c.model,
		"messages": []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.Prompt},
		},
	}
	if c.groq {
		body["max_tokens"] = 4000
		body["temperature"] = 0.3
	} else {
		body["max_completion_tokens"] = 4000
	}

	var chatResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}

	headers := map[string]string{"Authorization": "Bearer " + c.apiKey}
	if err := postJSON(ctx, c.httpClient, c.url, headers, body, &chatResp); err != nil {
		return Response{}, err
	}

	if len(chatResp.Choices) == 0 {
		return Response{}, fmt.Errorf("empty chat completion response")
	}

	return Response{Text: chatResp.Choices[0].Message.Content}, nil
}
