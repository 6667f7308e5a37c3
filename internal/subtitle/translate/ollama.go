package translate

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"
)

const ollamaStatusTTL = 1 * time.Minute

// OllamaClient talks to a local Ollama deployment. One client serves every
// local model.
type OllamaClient struct {
	baseURL    string
	httpClient *http.Client
	probe      *http.Client

	mu       sync.Mutex
	cached   *OllamaStatus
	cachedAt time.Time
}

func NewOllamaClient(baseURL string) *OllamaClient {
	return &OllamaClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
		probe: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// Engine returns a Translator bound to one model.
func (c *OllamaClient) Engine(model string) Translator {
	return TranslatorFunc(func(ctx context.Context, req Request) (Response, error) {
		return c.generate(ctx, model, req.System+"\n\n"+req.Prompt)
	})
}

func (c *OllamaClient) generate(ctx context.Context, model, prompt string) (Response, error) {
	body := map[string]any{
		"model":  model,
		"prompt": prompt,
		"stream": false,
		"options": map[string]any{
			"temperature": 0.3,
			"top_k":       40,
			"top_p":       0.9,
			"num_predict": 4000,
		},
	}

	var genResp struct {
		Response string `json:"response"`
	}
	if err := postJSON(ctx, c.httpClient, c.baseURL+"/api/generate", nil, body, &genResp); err != nil {
		return Response{}, fmt.Errorf("ollama %s: %w", model, err)
	}
	return Response{Text: genResp.Response}, nil
}

// OllamaModel describes an installed model
type OllamaModel struct {
	Name          string    `json:"name"`
	Size          int64     `json:"size"`
	SizeFormatted string    `json:"size_formatted"`
	ModifiedAt    time.Time `json:"modified_at"`
	Family        string    `json:"family,omitempty"`
	Parameters    string    `json:"parameter_size,omitempty"`
	Error         string    `json:"error,omitempty"`
}

// OllamaStatus reports whether the local deployment is reachable
type OllamaStatus struct {
	Status       string        `json:"status"` // "online" | "offline"
	URL          string        `json:"url"`
	Models       []OllamaModel `json:"models"`
	ModelCount   int           `json:"model_count"`
	ResponseTime int64         `json:"response_time_ms"`
	Error        string        `json:"error,omitempty"`
	LastChecked  time.Time     `json:"last_checked"`
}

// Status lists installed models, cached for a minute.
func (c *OllamaClient) Status(ctx context.Context) OllamaStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cached != nil && time.Since(c.cachedAt) < ollamaStatusTTL {
		return *c.cached
	}

	status := c.fetchStatus(ctx)
	c.cached = &status
	c.cachedAt = time.Now()
	return status
}

func (c *OllamaClient) fetchStatus(ctx context.Context) OllamaStatus {
	status := OllamaStatus{
		Status:      "offline",
		URL:         c.baseURL,
		Models:      []OllamaModel{},
		LastChecked: time.Now(),
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		status.Error = err.Error()
		return status
	}

	var tags struct {
		Models []struct {
			Name       string    `json:"name"`
			Size       int64     `json:"size"`
			ModifiedAt time.Time `json:"modified_at"`
		} `json:"models"`
	}
	if err := do(c.probe, req, &tags); err != nil {
		status.Error = err.Error()
		return status
	}
	status.ResponseTime = time.Since(start).Milliseconds()
	status.Status = "online"
	status.ModelCount = len(tags.Models)

	// Details only for the first few models
	n := min(len(tags.Models), 3)
	models := make([]OllamaModel, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		m := tags.Models[i]
		models[i] = OllamaModel{
			Name:          m.Name,
			Size:          m.Size,
			SizeFormatted: formatBytes(m.Size),
			ModifiedAt:    m.ModifiedAt,
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var show struct {
				Details struct {
					Family        string `json:"family"`
					ParameterSize string `json:"parameter_size"`
				} `json:"details"`
			}
			err := postJSON(ctx, c.probe, c.baseURL+"/api/show", nil, map[string]string{"name": models[i].Name}, &show)
			if err != nil {
				models[i].Error = err.Error()
				return
			}
			models[i].Family = show.Details.Family
			models[i].Parameters = show.Details.ParameterSize
		}(i)
	}
	wg.Wait()

	status.Models = models
	return status
}

// OllamaStatus reports the local deployment status, or nil when no Ollama URL
// is configured.
func (g *Gateway) OllamaStatus(ctx context.Context) *OllamaStatus {
	g.mu.RLock()
	client := g.ollama
	g.mu.RUnlock()
	if client == nil {
		return nil
	}
	s := client.Status(ctx)
	return &s
}

func formatBytes(b int64) string {
	if b <= 0 {
		return "0 Bytes"
	}
	sizes := []string{"Bytes", "KB", "MB", "GB", "TB"}
	i := int(math.Floor(math.Log(float64(b)) / math.Log(1024)))
	if i >= len(sizes) {
		i = len(sizes) - 1
	}
	v := float64(b) / math.Pow(1024, float64(i))
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.2f", v), "0"), ".") + " " + sizes[i]
}
