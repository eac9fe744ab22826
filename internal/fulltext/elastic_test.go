package fulltext

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	doerrors "github.com/Aman-CERP/thedocs/internal/errors"
	"github.com/Aman-CERP/thedocs/internal/textmatch"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   map[string]any
}

type fakeElastic struct {
	mu          sync.Mutex
	requests    []recordedRequest
	indexExists bool
	searchReply string
}

func (f *fakeElastic) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		var body map[string]any
		if len(data) > 0 {
			require.NoError(t, json.Unmarshal(data, &body))
		}
		f.mu.Lock()
		f.requests = append(f.requests, recordedRequest{Method: r.Method, Path: r.URL.Path, Body: body})
		exists := f.indexExists
		f.mu.Unlock()

		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/":
			_, _ = w.Write([]byte(`{"version":{"number":"8.0.0"}}`))
		case r.Method == http.MethodHead:
			if !exists {
				w.WriteHeader(http.StatusNotFound)
			}
		case r.Method == http.MethodPut && r.URL.Path == "/markdown_files":
			f.mu.Lock()
			f.indexExists = true
			f.mu.Unlock()
			_, _ = w.Write([]byte(`{"acknowledged":true}`))
		case r.Method == http.MethodPost:
			_, _ = w.Write([]byte(f.searchReply))
		case r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusNotFound)
		default:
			_, _ = w.Write([]byte(`{"result":"updated"}`))
		}
	})
}

func (f *fakeElastic) find(method, path string) *recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.requests {
		if f.requests[i].Method == method && f.requests[i].Path == path {
			return &f.requests[i]
		}
	}
	return nil
}

func TestElastic_EnsureIndexCreatesMappings(t *testing.T) {
	// Given: a cluster without the index
	fake := &fakeElastic{}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()
	es := NewElastic(srv.URL, Options{})

	// When: ensuring the index twice
	require.NoError(t, es.EnsureIndex(context.Background()))
	require.NoError(t, es.EnsureIndex(context.Background()))

	// Then: it is created once with the expected mappings
	put := fake.find(http.MethodPut, "/markdown_files")
	require.NotNil(t, put)
	props := put.Body["mappings"].(map[string]any)["properties"].(map[string]any)
	assert.Equal(t, "keyword", props["filename"].(map[string]any)["type"])
	assert.Equal(t, "boolean", props["is_public"].(map[string]any)["type"])
	raw := props["content"].(map[string]any)["fields"].(map[string]any)["raw"].(map[string]any)
	assert.Equal(t, "wildcard", raw["type"])

	fake.mu.Lock()
	defer fake.mu.Unlock()
	heads := 0
	for _, r := range fake.requests {
		if r.Method == http.MethodHead {
			heads++
		}
	}
	assert.Equal(t, 1, heads)
}

func TestElastic_SearchRestrictsToEligible(t *testing.T) {
	// Given: a cluster returning one highlighted hit
	fake := &fakeElastic{
		indexExists: true,
		searchReply: `{"hits":{"hits":[
			{"_id":"a.md","_source":{"filename":"a.md","title":"Alpha"},"highlight":{"content":["the alpha release"]}},
			{"_id":"c.md","_source":{"filename":"c.md","title":"Gamma alpha"}}
		]}}`,
	}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()
	es := NewElastic(srv.URL, Options{})

	// When: searching with an eligible set
	hits, err := es.Search(context.Background(), textmatch.ParseQuery("alpha"), []string{"a.md", "c.md"}, 10)

	// Then: the request filters by filename and snippets come from highlight or fields
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, Hit{Filename: "a.md", Snippet: "the alpha release"}, hits[0])
	assert.Equal(t, "Gamma alpha", hits[1].Snippet)

	req := fake.find(http.MethodPost, "/markdown_files/_search")
	require.NotNil(t, req)
	boolQ := req.Body["query"].(map[string]any)["bool"].(map[string]any)
	terms := boolQ["filter"].([]any)[0].(map[string]any)["terms"].(map[string]any)
	assert.ElementsMatch(t, []any{"a.md", "c.md"}, terms["filename"])
	assert.EqualValues(t, 10, req.Body["size"])
}

func TestElastic_EmptyEligibleSkipsRequest(t *testing.T) {
	fake := &fakeElastic{indexExists: true}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	hits, err := NewElastic(srv.URL, Options{}).Search(context.Background(), textmatch.ParseQuery("x"), nil, 10)

	require.NoError(t, err)
	assert.Empty(t, hits)
	assert.Empty(t, fake.requests)
}

func TestElastic_RemoveMissingIsNotAnError(t *testing.T) {
	fake := &fakeElastic{indexExists: true}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	assert.NoError(t, NewElastic(srv.URL, Options{}).Remove(context.Background(), "gone.md"))
}

func TestElastic_ErrorClassification(t *testing.T) {
	t.Run("server error is unavailable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		err := NewElastic(srv.URL, Options{}).Ping(context.Background())
		assert.True(t, doerrors.HasCode(err, doerrors.ErrCodeBackendUnavailable))
		assert.True(t, doerrors.IsRetryable(err))
	})

	t.Run("slow server is a timeout", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
			<-release
		}))
		defer srv.Close()
		defer close(release)

		err := NewElastic(srv.URL, Options{Timeout: 20 * time.Millisecond}).Ping(context.Background())
		assert.True(t, doerrors.HasCode(err, doerrors.ErrCodeBackendTimeout))
	})

	t.Run("unreachable host is unavailable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		err := NewElastic(url, Options{}).Ping(context.Background())
		assert.True(t, doerrors.HasCode(err, doerrors.ErrCodeBackendUnavailable))
	})

	t.Run("bad request is a response error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, `{"error":"parse"}`, http.StatusBadRequest)
		}))
		defer srv.Close()

		err := NewElastic(srv.URL, Options{}).Ping(context.Background())
		assert.True(t, doerrors.HasCode(err, doerrors.ErrCodeBackendResponse))
		assert.False(t, doerrors.IsRetryable(err))
	})
}

func TestElasticQuery_Shapes(t *testing.T) {
	single := elasticQuery(textmatch.ParseQuery("Alpha"))
	should := single["bool"].(map[string]any)["should"].([]any)
	assert.Len(t, should, 4)

	phrase := elasticQuery(textmatch.ParseQuery(`find "rollback plan" now`))
	should = phrase["bool"].(map[string]any)["should"].([]any)
	require.Len(t, should, 2)
	mm := should[1].(map[string]any)["multi_match"].(map[string]any)
	assert.Equal(t, "phrase", mm["type"])
	assert.Equal(t, "rollback plan", mm["query"])
}

func TestElasticQuery_UnquotedTermsUseRawSubfields(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{query: "ide fo", want: "*ide fo*"},
		{query: "e-mail", want: "*e-mail*"},
		{query: "c++", want: "*c++*"},
		{query: "what?", want: `*what\?*`},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			// When: building the query for an unquoted term
			q := elasticQuery(textmatch.ParseQuery(tt.query))

			// Then: every text field is matched as a whole-value wildcard
			should := q["bool"].(map[string]any)["should"].([]any)
			require.Len(t, should, 4)
			for i, field := range []string{"title.raw", "description.raw", "content.raw"} {
				wc := should[i+1].(map[string]any)["wildcard"].(map[string]any)
				require.Contains(t, wc, field)
				opts := wc[field].(map[string]any)
				assert.Equal(t, tt.want, opts["value"])
				assert.Equal(t, true, opts["case_insensitive"])
			}
		})
	}
}

func TestElastic_EnsureIndexAddsRawSubfieldsToExistingIndex(t *testing.T) {
	// Given: a cluster where the index already exists
	fake := &fakeElastic{indexExists: true}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	// When: ensuring the index
	require.NoError(t, NewElastic(srv.URL, Options{}).EnsureIndex(context.Background()))

	// Then: the mapping is updated in place instead of recreating the index
	assert.Nil(t, fake.find(http.MethodPut, "/markdown_files"))
	put := fake.find(http.MethodPut, "/markdown_files/_mapping")
	require.NotNil(t, put)
	props := put.Body["properties"].(map[string]any)
	assert.Contains(t, props["title"].(map[string]any)["fields"], "raw")
}
