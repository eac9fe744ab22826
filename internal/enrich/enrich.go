// Package enrich generates a title and description for a document by
// prompting a language model.
package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"time"

	doerrors "github.com/Aman-CERP/thedocs/internal/errors"
)

// Placeholder is replaced by the document body in a prompt template.
const Placeholder = "{markdown_file_content}"

// FallbackPrompt is used when no template file exists.
const FallbackPrompt = "Summarize the markdown and return JSON with keys title and description. " +
	"Use a concise title and a 1-3 sentence description.\nMarkdown:\n" + Placeholder

// Provider names.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderNone   = "none"
)

// ErrNoMetadata means the model answered without a usable title or description.
var ErrNoMetadata = doerrors.New(doerrors.ErrCodeEnrichFailed, "response did not contain metadata", nil)

// Metadata is a generated title and description.
type Metadata struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Empty reports whether both fields are blank.
func (m Metadata) Empty() bool {
	return strings.TrimSpace(m.Title) == "" && strings.TrimSpace(m.Description) == ""
}

// Enricher generates metadata for content using promptTemplate.
type Enricher interface {
	Enrich(ctx context.Context, content, promptTemplate string) (Metadata, error)
}

// Options configures a provider.
type Options struct {
	Provider string
	Endpoint string
	Model    string
	APIKey   string
	Timeout  time.Duration
}

// New returns the Enricher for opts.Provider, or nil for "none".
func New(opts Options) (Enricher, error) {
	switch opts.Provider {
	case "", ProviderOllama:
		return NewOllama(opts), nil
	case ProviderOpenAI:
		if opts.APIKey == "" {
			return nil, doerrors.ConfigError("openai enrichment requires an API key", nil).
				WithSuggestion("Set OPENAI_API_KEY or enrichment.api_key")
		}
		return NewOpenAI(opts), nil
	case ProviderNone:
		return nil, nil
	default:
		return nil, doerrors.ConfigError("unknown enrichment provider "+opts.Provider, nil)
	}
}

// RenderPrompt substitutes content into template.
func RenderPrompt(template, content string) string {
	return strings.ReplaceAll(template, Placeholder, content)
}

var (
	jsonBlock       = regexp.MustCompile(`(?s)\{.*\}`)
	titleLine       = regexp.MustCompile(`(?i)title\s*:\s*(.+)`)
	descriptionLine = regexp.MustCompile(`(?i)description\s*:\s*(.+)`)
	thinkBlock      = regexp.MustCompile(`(?s)<think>.*?</think>`)
)

// ParseMetadata extracts metadata from a model answer: a JSON object with
// title and description keys, else "title:" and "description:" lines.
func ParseMetadata(text string) (Metadata, error) {
	text = thinkBlock.ReplaceAllString(text, "")

	if block := jsonBlock.FindString(text); block != "" {
		var raw map[string]any
		if err := json.Unmarshal([]byte(block), &raw); err == nil {
			m := Metadata{Title: stringField(raw, "title"), Description: stringField(raw, "description")}
			if !m.Empty() {
				return m, nil
			}
		}
	}

	var m Metadata
	if match := titleLine.FindStringSubmatch(text); match != nil {
		m.Title = cleanLine(match[1])
	}
	if match := descriptionLine.FindStringSubmatch(text); match != nil {
		m.Description = cleanLine(match[1])
	}
	if m.Empty() {
		return Metadata{}, ErrNoMetadata
	}
	return m, nil
}

func stringField(raw map[string]any, key string) string {
	v, ok := raw[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	b, _ := json.Marshal(v)
	return strings.TrimSpace(string(b))
}

func cleanLine(s string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), `"*`))
}

// Reason condenses err into the short text recorded in a run summary.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded), doerrors.HasCode(err, doerrors.ErrCodeBackendTimeout):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case doerrors.HasCode(err, doerrors.ErrCodeBackendUnavailable):
		return "unavailable"
	case errors.Is(err, ErrNoMetadata):
		return "no metadata"
	}
	var de *doerrors.DocError
	if errors.As(err, &de) {
		return de.Message
	}
	return err.Error()
}
