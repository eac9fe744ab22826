package fulltext

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	doerrors "github.com/Aman-CERP/thedocs/internal/errors"
	"github.com/Aman-CERP/thedocs/internal/textmatch"
)

const (
	defaultElasticIndex = "markdown_files"
	elasticFragmentSize = 50
)

// Elastic is a Backend talking to the Elasticsearch REST API.
type Elastic struct {
	baseURL    string
	index      string
	username   string
	password   string
	window     int
	httpClient *http.Client

	mu    sync.Mutex
	ready bool
}

// NewElastic creates an Elasticsearch backend for baseURL.
func NewElastic(baseURL string, opts Options) *Elastic {
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	index := opts.Index
	if index == "" {
		index = defaultElasticIndex
	}
	return &Elastic{
		baseURL:    strings.TrimRight(baseURL, "/"),
		index:      index,
		username:   opts.Username,
		password:   opts.Password,
		window:     opts.window(),
		httpClient: client,
	}
}

// Name implements Backend.
func (e *Elastic) Name() string {
	return "elasticsearch"
}

// statusError is a non-2xx response.
type statusError struct {
	StatusCode int
	Body       string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("elasticsearch returned %d: %s", e.StatusCode, e.Body)
}

func hasStatus(err error, code int) bool {
	var se *statusError
	return errors.As(err, &se) && se.StatusCode == code
}

func statusBody(err error) string {
	var se *statusError
	if errors.As(err, &se) {
		return se.Body
	}
	return ""
}

// do sends body as JSON and decodes the response into out when non-nil.
func (e *Elastic) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return doerrors.InternalError("encode elasticsearch request", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, e.baseURL+path, reader)
	if err != nil {
		return doerrors.InternalError("create elasticsearch request", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if e.username != "" && e.password != "" {
		req.SetBasicAuth(e.username, e.password)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return classifyTransportError(e.Name(), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return doerrors.BackendUnavailable(e.Name(), fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		se := &statusError{StatusCode: resp.StatusCode, Body: truncate(string(data), 200)}
		if resp.StatusCode >= 500 {
			return doerrors.BackendUnavailable(e.Name(), se)
		}
		return doerrors.New(doerrors.ErrCodeBackendResponse, "elasticsearch rejected request", se).
			WithDetail("status", fmt.Sprint(resp.StatusCode))
	}

	if out != nil && method != http.MethodHead {
		if err := json.Unmarshal(data, out); err != nil {
			return doerrors.New(doerrors.ErrCodeBackendResponse, "malformed elasticsearch response", err)
		}
	}
	return nil
}

func classifyTransportError(backend string, err error) error {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return doerrors.BackendTimeout(backend, err)
	}
	return doerrors.BackendUnavailable(backend, err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Ping implements Backend.
func (e *Elastic) Ping(ctx context.Context) error {
	return e.do(ctx, http.MethodGet, "/", nil, nil)
}

// rawSubfield is a wildcard-typed copy of a text field. Wildcard queries
// against it see the whole value, so they match across word boundaries.
const rawSubfield = "raw"

var elasticTextFields = []string{"title", "description", "content"}

func textWithRaw() map[string]any {
	return map[string]any{
		"type":   "text",
		"fields": map[string]any{rawSubfield: map[string]any{"type": "wildcard"}},
	}
}

var elasticProperties = map[string]any{
	"filename":      map[string]any{"type": "keyword"},
	"title":         textWithRaw(),
	"description":   textWithRaw(),
	"content":       textWithRaw(),
	"is_public":     map[string]any{"type": "boolean"},
	"date_uploaded": map[string]any{"type": "date", "format": "yyyy-MM-dd"},
	"updated_at":    map[string]any{"type": "date", "format": "yyyy-MM-dd HH:mm:ss"},
}

var elasticMappings = map[string]any{
	"mappings": map[string]any{"properties": elasticProperties},
}

// EnsureIndex implements Backend. A concurrent creator winning the race is not an error.
func (e *Elastic) EnsureIndex(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ready {
		return nil
	}

	indexPath := "/" + url.PathEscape(e.index)
	err := e.do(ctx, http.MethodHead, indexPath, nil, nil)
	switch {
	case err == nil:
		// Indexes created before the raw subfields existed get them added;
		// documents pick them up on their next sync.
		if err := e.do(ctx, http.MethodPut, indexPath+"/_mapping", map[string]any{"properties": elasticProperties}, nil); err != nil {
			return err
		}
	case hasStatus(err, http.StatusNotFound):
		err = e.do(ctx, http.MethodPut, indexPath, elasticMappings, nil)
		if err != nil && !(hasStatus(err, http.StatusBadRequest) && strings.Contains(statusBody(err), "resource_already_exists_exception")) {
			return err
		}
	default:
		return err
	}

	e.ready = true
	return nil
}

func (e *Elastic) docPath(filename string) string {
	return "/" + url.PathEscape(e.index) + "/_doc/" + url.PathEscape(filename) + "?refresh=true"
}

// Index implements Backend.
func (e *Elastic) Index(ctx context.Context, doc Document) error {
	if err := e.EnsureIndex(ctx); err != nil {
		return err
	}
	return e.do(ctx, http.MethodPut, e.docPath(doc.Filename), doc, nil)
}

// Remove implements Backend.
func (e *Elastic) Remove(ctx context.Context, filename string) error {
	if err := e.EnsureIndex(ctx); err != nil {
		return err
	}
	err := e.do(ctx, http.MethodDelete, e.docPath(filename), nil, nil)
	if hasStatus(err, http.StatusNotFound) {
		return nil
	}
	return err
}

type elasticSearchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string `json:"_id"`
			Source struct {
				Filename    string `json:"filename"`
				Title       string `json:"title"`
				Description string `json:"description"`
				Content     string `json:"content"`
			} `json:"_source"`
			Highlight map[string][]string `json:"highlight"`
		} `json:"hits"`
	} `json:"hits"`
}

// Search implements Backend.
func (e *Elastic) Search(ctx context.Context, q textmatch.Query, eligible []string, limit int) ([]Hit, error) {
	if q.Empty() || len(eligible) == 0 {
		return []Hit{}, nil
	}
	if err := e.EnsureIndex(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = len(eligible)
	}

	body := map[string]any{
		"size": limit,
		"query": map[string]any{
			"bool": map[string]any{
				"must":   []any{elasticQuery(q)},
				"filter": []any{map[string]any{"terms": map[string]any{"filename": eligible}}},
			},
		},
		"_source": []string{"filename", "title", "description", "content"},
		"highlight": map[string]any{
			"fields": map[string]any{
				"content":     map[string]any{"fragment_size": elasticFragmentSize, "number_of_fragments": 1},
				"title":       map[string]any{"number_of_fragments": 0},
				"description": map[string]any{"number_of_fragments": 0},
			},
			"pre_tags":  []string{""},
			"post_tags": []string{""},
		},
	}

	var resp elasticSearchResponse
	if err := e.do(ctx, http.MethodPost, "/"+url.PathEscape(e.index)+"/_search", body, &resp); err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(resp.Hits.Hits))
	for _, h := range resp.Hits.Hits {
		name := h.Source.Filename
		if name == "" {
			name = h.ID
		}
		hits = append(hits, Hit{Filename: name, Snippet: e.snippet(q, h.Highlight, h.Source.Content, h.Source.Title, h.Source.Description, name)})
	}
	return hits, nil
}

func (e *Elastic) snippet(q textmatch.Query, hl map[string][]string, content, title, description, filename string) string {
	for _, field := range []string{"content", "title", "description"} {
		if frags := hl[field]; len(frags) > 0 && frags[0] != "" {
			return frags[0]
		}
	}
	for _, field := range []string{content, title, description, filename} {
		if s, ok := textmatch.Excerpt(field, q.Term, e.window); ok {
			return s
		}
	}
	return textmatch.Head(content, 2*e.window)
}

var wildcardEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`)

func wildcard(field, value string) map[string]any {
	return map[string]any{
		"wildcard": map[string]any{
			field: map[string]any{
				"value":            "*" + wildcardEscaper.Replace(value) + "*",
				"case_insensitive": true,
			},
		},
	}
}

// elasticQuery mirrors the lexicon engine: an unquoted term is a substring
// of the whole field value, a quoted one is a phrase over the text fields.
// The filename is always matched as a substring.
func elasticQuery(q textmatch.Query) map[string]any {
	should := []any{wildcard("filename", q.Term)}

	if q.Phrase {
		should = append(should, map[string]any{
			"multi_match": map[string]any{
				"query":  q.Term,
				"type":   "phrase",
				"fields": elasticTextFields,
			},
		})
	} else {
		for _, f := range elasticTextFields {
			should = append(should, wildcard(f+"."+rawSubfield, q.Term))
		}
	}

	return map[string]any{
		"bool": map[string]any{
			"should":               should,
			"minimum_should_match": 1,
		},
	}
}

// Close implements Backend.
func (e *Elastic) Close() error {
	e.httpClient.CloseIdleConnections()
	return nil
}
