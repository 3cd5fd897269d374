package connectors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultTimeout bounds a single catalog request when a connector has no timeout of its own.
const DefaultTimeout = 15 * time.Second

const (
	userAgent    = "versionwatch/1.0"
	maxBodyBytes = 32 << 20
)

// ErrNotFound means the catalog does not know the requested package.
var ErrNotFound = errors.New("not found in catalog")

// StatusError is a non-200 catalog response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.Code)
}

// httpClient follows redirects (renamed GitHub repos, non-canonical PyPI names).
var httpClient = &http.Client{}

// getBytes issues a GET bounded by both ctx and timeout, whichever ends first.
func getBytes(ctx context.Context, url string, timeout time.Duration, headers map[string]string) ([]byte, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	req.Header.Set("User-Agent", userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("GET %s: %w", url, ErrNotFound)
	default:
		return nil, &StatusError{URL: url, Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", url, err)
	}
	return body, nil
}

func getJSON(ctx context.Context, url string, timeout time.Duration, headers map[string]string, out any) error {
	body, err := getBytes(ctx, url, timeout, headers)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding %s: %w", url, err)
	}
	return nil
}
