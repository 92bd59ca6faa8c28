package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"folio/internal/config"
	"folio/internal/services"
)

const (
	headerBaseVersion = "X-Base-Version"
	maxErrorBody      = 4 * 1024
)

// HTTPSyncer talks to the remote document service over HTTP.
type HTTPSyncer struct {
	baseURL string
	client  *http.Client
}

// NewHTTP builds a syncer for the configured remote endpoint.
func NewHTTP(cfg *config.Config) (*HTTPSyncer, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.Sync.RemoteURL), "/")
	if base == "" {
		return nil, services.Wrap(services.ErrValidation, "remote", "new", "remote_url is not configured", nil)
	}
	if _, err := url.Parse(base); err != nil {
		return nil, services.Wrap(services.ErrValidation, "remote", "new", fmt.Sprintf("invalid remote_url %q", base), err)
	}
	timeout := time.Duration(cfg.Sync.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPSyncer{
		baseURL: base,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (s *HTTPSyncer) Upload(ctx context.Context, doc *Document) (*Document, error) {
	if doc == nil || strings.TrimSpace(doc.ID) == "" {
		return nil, services.Wrap(services.ErrValidation, "remote", "upload", "document id required", nil)
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "remote", "upload", "encode document", err)
	}
	return s.documentRequest(ctx, http.MethodPut, s.documentURL(doc.ID), "application/json", body, nil, "upload")
}

func (s *HTTPSyncer) PushDelta(ctx context.Context, id string, baseVersion int64, frame []byte) (*Document, error) {
	if strings.TrimSpace(id) == "" {
		return nil, services.Wrap(services.ErrValidation, "remote", "push delta", "document id required", nil)
	}
	headers := map[string]string{headerBaseVersion: strconv.FormatInt(baseVersion, 10)}
	return s.documentRequest(ctx, http.MethodPatch, s.documentURL(id)+"/delta", "application/octet-stream", frame, headers, "push delta")
}

func (s *HTTPSyncer) Fetch(ctx context.Context, id string) (*Document, error) {
	if strings.TrimSpace(id) == "" {
		return nil, services.Wrap(services.ErrValidation, "remote", "fetch", "document id required", nil)
	}
	return s.documentRequest(ctx, http.MethodGet, s.documentURL(id), "", nil, nil, "fetch")
}

func (s *HTTPSyncer) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return services.Wrap(services.ErrValidation, "remote", "delete", "document id required", nil)
	}
	resp, err := s.do(ctx, http.MethodDelete, s.documentURL(id), "", nil, nil)
	if err != nil {
		return classifyTransport("delete", err)
	}
	defer drainAndClose(resp)

	// The remote treats delete as idempotent; a 404 means the work is done.
	if resp.StatusCode == http.StatusNotFound || (resp.StatusCode >= 200 && resp.StatusCode < 300) {
		return nil
	}
	return classifyStatus("delete", resp)
}

func (s *HTTPSyncer) documentURL(id string) string {
	return s.baseURL + "/documents/" + url.PathEscape(id)
}

func (s *HTTPSyncer) documentRequest(ctx context.Context, method, target, contentType string, body []byte, headers map[string]string, op string) (*Document, error) {
	resp, err := s.do(ctx, method, target, contentType, body, headers)
	if err != nil {
		return nil, classifyTransport(op, err)
	}
	defer drainAndClose(resp)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, classifyStatus(op, resp)
	}

	var doc Document
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, services.Wrap(services.ErrTransient, "remote", op, "decode response", err)
	}
	return &doc, nil
}

func (s *HTTPSyncer) do(ctx context.Context, method, target, contentType string, body []byte, headers map[string]string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	return s.client.Do(req)
}

func classifyTransport(op string, err error) error {
	var urlErr *url.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &urlErr) && urlErr.Timeout()) {
		return services.Wrap(services.ErrTimeout, "remote", op, "request timed out", err)
	}
	return services.Wrap(services.ErrTransient, "remote", op, "request failed", err)
}

func classifyStatus(op string, resp *http.Response) error {
	detail := strings.TrimSpace(string(readLimited(resp.Body)))
	message := fmt.Sprintf("remote returned %d", resp.StatusCode)
	if detail != "" {
		message = fmt.Sprintf("%s: %s", message, detail)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return services.Wrap(services.ErrNotFound, "remote", op, message, nil)
	case resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusPreconditionFailed:
		return services.Wrap(services.ErrConflict, "remote", op, message, nil)
	case resp.StatusCode == http.StatusRequestTimeout:
		return services.Wrap(services.ErrTimeout, "remote", op, message, nil)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return services.Wrap(services.ErrTransient, "remote", op, message, nil)
	case resp.StatusCode >= 400:
		return services.Wrap(services.ErrValidation, "remote", op, message, nil)
	default:
		return services.Wrap(services.ErrTransient, "remote", op, message, nil)
	}
}

func readLimited(r io.Reader) []byte {
	data, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	return data
}

func drainAndClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	_ = resp.Body.Close()
}
