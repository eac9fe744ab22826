package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	doerrors "github.com/Aman-CERP/thedocs/internal/errors"
)

// postJSON sends body to url and decodes a 200 response into out.
func postJSON(ctx context.Context, client *http.Client, backend, url string, headers map[string]string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return doerrors.InternalError("marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return doerrors.InternalError("create request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		var ne net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
			return doerrors.BackendTimeout(backend, err)
		}
		return doerrors.BackendUnavailable(backend, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		cause := fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return doerrors.BackendUnavailable(backend, cause)
		}
		return doerrors.New(doerrors.ErrCodeBackendResponse, backend+" rejected request", cause)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return doerrors.New(doerrors.ErrCodeBackendResponse, "decode "+backend+" response", err)
	}
	return nil
}

func newClient(opts Options) *http.Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}
