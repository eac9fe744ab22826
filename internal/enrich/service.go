package enrich

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	doerrors "github.com/Aman-CERP/thedocs/internal/errors"
	"github.com/Aman-CERP/thedocs/internal/metrics"
)

// Service runs an Enricher with the configured prompt file and a per-call
// deadline.
type Service struct {
	enricher   Enricher
	promptPath string
	timeout    time.Duration
}

// NewService wraps e. promptPath may name a missing file; the fallback
// prompt is then used.
func NewService(e Enricher, promptPath string, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Service{enricher: e, promptPath: promptPath, timeout: timeout}
}

// LoadPrompt reads the prompt template. A missing or blank file yields
// FallbackPrompt.
func LoadPrompt(path string) string {
	if path == "" {
		return FallbackPrompt
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("prompt_read_failed", slog.String("path", path), slog.String("error", err.Error()))
		} else {
			slog.Warn("prompt_template_missing_using_fallback", slog.String("path", path))
		}
		return FallbackPrompt
	}
	if strings.TrimSpace(string(data)) == "" {
		return FallbackPrompt
	}
	return string(data)
}

// Generate produces metadata for one document. The prompt file is read on
// every call so edits apply without a restart.
func (s *Service) Generate(ctx context.Context, filename, content string) (Metadata, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	m, err := s.enricher.Enrich(ctx, content, LoadPrompt(s.promptPath))
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && !doerrors.HasCode(err, doerrors.ErrCodeBackendTimeout) {
		err = doerrors.BackendTimeout("enrichment", err)
	}

	outcome := "ok"
	switch {
	case err == nil:
	case Reason(err) == "timeout":
		outcome = "timeout"
	default:
		outcome = "error"
	}
	metrics.EnrichmentTotal.WithLabelValues(outcome).Inc()

	if err != nil {
		args := append([]any{
			slog.String("filename", filename),
			slog.String("reason", Reason(err)),
			slog.Duration("elapsed", time.Since(start)),
		}, doerrors.LogArgs(err)...)
		slog.Warn("enrichment_failed", args...)
		return Metadata{}, err
	}

	slog.Debug("enrichment_succeeded",
		slog.String("filename", filename),
		slog.Duration("elapsed", time.Since(start)))
	return Metadata{Title: strings.TrimSpace(m.Title), Description: strings.TrimSpace(m.Description)}, nil
}
