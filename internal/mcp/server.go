package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/thedocs/internal/library"
	"github.com/Aman-CERP/thedocs/internal/search"
	"github.com/Aman-CERP/thedocs/internal/store"
	"github.com/Aman-CERP/thedocs/pkg/version"
)

// ServerName is reported to clients.
const ServerName = "thedocs"

// Searcher answers queries for a viewer.
type Searcher interface {
	Search(ctx context.Context, raw string, authenticated bool) (search.Response, error)
	Strategy() string
}

// Library lists and reads documents for a viewer.
type Library interface {
	Browse(ctx context.Context, authenticated bool) ([]store.Record, error)
	ReadDocument(ctx context.Context, filename string, authenticated bool) (library.Document, error)
}

// ToolInfo describes a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

var tools = []ToolInfo{
	{
		Name:        "search_documents",
		Description: "Search the markdown library by substring or \"quoted phrase\" across filename, title, description and content. Returns one snippet per matching document.",
	},
	{
		Name:        "list_documents",
		Description: "List documents with their title, description and upload date, newest first.",
	},
	{
		Name:        "read_document",
		Description: "Return the full markdown of one document by filename.",
	},
}

// Server bridges MCP clients to the document library.
type Server struct {
	mcp      *mcp.Server
	searcher Searcher
	library  Library
	logger   *slog.Logger

	// authenticated makes clients see private documents.
	authenticated bool

	mu        sync.Mutex
	resources map[string]bool
}

// Option configures a Server.
type Option func(*Server)

// WithPrivateDocuments exposes private documents to clients.
func WithPrivateDocuments(on bool) Option {
	return func(s *Server) {
		s.authenticated = on
	}
}

// NewServer creates a server and registers its tools.
func NewServer(searcher Searcher, lib Library, opts ...Option) (*Server, error) {
	if searcher == nil {
		return nil, errors.New("searcher is required")
	}
	if lib == nil {
		return nil, errors.New("library is required")
	}

	s := &Server{
		searcher:  searcher,
		library:   lib,
		logger:    slog.Default(),
		resources: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mcp = mcp.NewServer(&mcp.Implementation{Name: ServerName, Version: version.Version}, nil)
	s.registerTools()
	return s, nil
}

// MCPServer returns the underlying SDK server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// ListTools returns the registered tools.
func (s *Server) ListTools() []ToolInfo {
	out := make([]ToolInfo, len(tools))
	copy(out, tools)
	return out
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[0].Name, Description: tools[0].Description}, s.mcpSearchHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[1].Name, Description: tools[1].Description}, s.mcpListHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[2].Name, Description: tools[2].Description}, s.mcpReadHandler)
	s.logger.Debug("mcp_tools_registered", slog.Int("count", len(tools)))
}

// CallTool invokes a tool by name with decoded JSON arguments.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case "search_documents":
		q, _ := args["query"].(string)
		limit, _ := args["limit"].(float64)
		out, err := s.searchDocuments(ctx, SearchDocumentsInput{Query: q, Limit: int(limit)})
		if err != nil {
			return nil, err
		}
		return FormatSearchResults(out), nil
	case "list_documents":
		limit, _ := args["limit"].(float64)
		out, err := s.listDocuments(ctx, ListDocumentsInput{Limit: int(limit)})
		if err != nil {
			return nil, err
		}
		return FormatDocumentList(out), nil
	case "read_document":
		f, _ := args["filename"].(string)
		out, err := s.readDocument(ctx, ReadDocumentInput{Filename: f})
		if err != nil {
			return nil, err
		}
		return out.Content, nil
	default:
		return nil, NewMethodNotFoundError(name)
	}
}

func (s *Server) mcpSearchHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchDocumentsInput) (
	*mcp.CallToolResult,
	SearchDocumentsOutput,
	error,
) {
	out, err := s.searchDocuments(ctx, input)
	if err != nil {
		return nil, SearchDocumentsOutput{}, err
	}
	return nil, out, nil
}

func (s *Server) mcpListHandler(ctx context.Context, _ *mcp.CallToolRequest, input ListDocumentsInput) (
	*mcp.CallToolResult,
	ListDocumentsOutput,
	error,
) {
	out, err := s.listDocuments(ctx, input)
	if err != nil {
		return nil, ListDocumentsOutput{}, err
	}
	return nil, out, nil
}

func (s *Server) mcpReadHandler(ctx context.Context, _ *mcp.CallToolRequest, input ReadDocumentInput) (
	*mcp.CallToolResult,
	ReadDocumentOutput,
	error,
) {
	out, err := s.readDocument(ctx, input)
	if err != nil {
		return nil, ReadDocumentOutput{}, err
	}
	return nil, out, nil
}

func (s *Server) searchDocuments(ctx context.Context, input SearchDocumentsInput) (SearchDocumentsOutput, error) {
	requestID := uuid.NewString()[:8]
	start := time.Now()

	limit := clampLimit(input.Limit, 20, 1, 100)
	resp, err := s.searcher.Search(ctx, input.Query, s.authenticated)
	if err != nil {
		s.logger.Error("mcp_search_failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", time.Since(start)),
			slog.String("error", err.Error()))
		return SearchDocumentsOutput{}, MapError(err)
	}

	results := resp.Results
	if len(results) > limit {
		results = results[:limit]
	}
	out := SearchDocumentsOutput{
		Query:    input.Query,
		Count:    len(results),
		Strategy: s.searcher.Strategy(),
		Results:  make([]SearchResult, 0, len(results)),
	}
	for _, r := range results {
		out.Results = append(out.Results, SearchResult{Filename: r.Filename, Snippet: r.Snippet})
	}

	s.logger.Info("mcp_search_completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", time.Since(start)),
		slog.Int("result_count", out.Count))
	return out, nil
}

func (s *Server) listDocuments(ctx context.Context, input ListDocumentsInput) (ListDocumentsOutput, error) {
	recs, err := s.library.Browse(ctx, s.authenticated)
	if err != nil {
		return ListDocumentsOutput{}, MapError(err)
	}
	if input.Limit > 0 && len(recs) > input.Limit {
		recs = recs[:input.Limit]
	}
	out := ListDocumentsOutput{Count: len(recs), Documents: make([]DocumentOutput, 0, len(recs))}
	for _, r := range recs {
		out.Documents = append(out.Documents, toDocumentOutput(r))
	}
	return out, nil
}

func (s *Server) readDocument(ctx context.Context, input ReadDocumentInput) (ReadDocumentOutput, error) {
	if input.Filename == "" {
		return ReadDocumentOutput{}, NewInvalidParamsError("filename is required")
	}
	doc, err := s.library.ReadDocument(ctx, input.Filename, s.authenticated)
	if err != nil {
		return ReadDocumentOutput{}, MapError(err)
	}
	return ReadDocumentOutput{DocumentOutput: toDocumentOutput(doc.Record), Content: doc.Content}, nil
}

// RegisterResources exposes every visible document as a doc:// resource.
// Documents already registered are skipped, so it may be called after each
// reconciliation.
func (s *Server) RegisterResources(ctx context.Context) error {
	recs, err := s.library.Browse(ctx, s.authenticated)
	if err != nil {
		return fmt.Errorf("list documents: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	added := 0
	for _, r := range recs {
		if s.resources[r.Filename] {
			continue
		}
		s.resources[r.Filename] = true
		added++
		s.mcp.AddResource(&mcp.Resource{
			Name:        r.Filename,
			URI:         documentURI(r.Filename),
			Description: r.Description,
			MIMEType:    markdownMIME,
		}, s.resourceHandler(r.Filename))
	}
	s.logger.Info("mcp_resources_registered", slog.Int("added", added), slog.Int("total", len(s.resources)))
	return nil
}

func (s *Server) resourceHandler(filename string) mcp.ResourceHandler {
	return func(ctx context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		doc, err := s.library.ReadDocument(ctx, filename, s.authenticated)
		if err != nil {
			return nil, MapError(err)
		}
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{{
				URI:      documentURI(filename),
				MIMEType: markdownMIME,
				Text:     doc.Content,
			}},
		}, nil
	}
}

// Serve runs the stdio transport until ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("mcp_server_started", slog.String("transport", "stdio"), slog.String("version", version.Version))
	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("mcp_server_stopped", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("mcp_server_stopped")
	return nil
}
