package enrich

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// Default Ollama configuration.
const (
	DefaultOllamaHost  = "http://localhost:11434"
	DefaultOllamaModel = "qwen3:0.6b"
	DefaultTimeout     = 30 * time.Second
)

// maxPromptContent bounds the document text sent to the model.
const maxPromptContent = 12000

// Ollama generates metadata with a local Ollama model.
type Ollama struct {
	client *http.Client
	host   string
	model  string
}

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
	Format string `json:"format,omitempty"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// NewOllama creates an Ollama enricher.
func NewOllama(opts Options) *Ollama {
	host := strings.TrimRight(opts.Endpoint, "/")
	if host == "" {
		host = DefaultOllamaHost
	}
	model := opts.Model
	if model == "" {
		model = DefaultOllamaModel
	}
	return &Ollama{client: newClient(opts), host: host, model: model}
}

// Enrich implements Enricher.
func (o *Ollama) Enrich(ctx context.Context, content, promptTemplate string) (Metadata, error) {
	req := ollamaGenerateRequest{
		Model:  o.model,
		Prompt: RenderPrompt(promptTemplate, truncateContent(content, maxPromptContent)),
		Stream: false,
	}

	var resp ollamaGenerateResponse
	if err := postJSON(ctx, o.client, "ollama", o.host+"/api/generate", nil, req, &resp); err != nil {
		return Metadata{}, err
	}
	return ParseMetadata(resp.Response)
}

// ModelName returns the model being used.
func (o *Ollama) ModelName() string {
	return o.model
}

func truncateContent(content string, maxLen int) string {
	r := []rune(content)
	if len(r) <= maxLen {
		return content
	}
	return string(r[:maxLen]) + "\n... [truncated]"
}
