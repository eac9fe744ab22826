package enrich

import (
	"context"
	"net/http"
	"strings"
)

// Default OpenAI configuration.
const (
	DefaultOpenAIEndpoint = "https://api.openai.com"
	DefaultOpenAIModel    = "gpt-4o-mini"
)

// OpenAI generates metadata with the chat completions API.
type OpenAI struct {
	client   *http.Client
	endpoint string
	model    string
	apiKey   string
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// NewOpenAI creates an OpenAI enricher.
func NewOpenAI(opts Options) *OpenAI {
	endpoint := strings.TrimRight(opts.Endpoint, "/")
	if endpoint == "" || endpoint == DefaultOllamaHost {
		endpoint = DefaultOpenAIEndpoint
	}
	model := opts.Model
	if model == "" || model == DefaultOllamaModel {
		model = DefaultOpenAIModel
	}
	return &OpenAI{client: newClient(opts), endpoint: endpoint, model: model, apiKey: opts.APIKey}
}

// Enrich implements Enricher.
func (o *OpenAI) Enrich(ctx context.Context, content, promptTemplate string) (Metadata, error) {
	req := chatRequest{
		Model: o.model,
		Messages: []chatMessage{{
			Role:    "user",
			Content: RenderPrompt(promptTemplate, truncateContent(content, maxPromptContent)),
		}},
	}
	headers := map[string]string{"Authorization": "Bearer " + o.apiKey}

	var resp chatResponse
	if err := postJSON(ctx, o.client, "openai", o.endpoint+"/v1/chat/completions", headers, req, &resp); err != nil {
		return Metadata{}, err
	}
	if len(resp.Choices) == 0 {
		return Metadata{}, ErrNoMetadata
	}
	return ParseMetadata(resp.Choices[0].Message.Content)
}
