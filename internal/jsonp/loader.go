package jsonp

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// DefaultMaxScriptSize bounds the body HTTPLoader will read.
const DefaultMaxScriptSize = 8 << 20 // 8 MB

// Loader fetches the script at url. Implementations must return promptly
// once ctx is canceled.
type Loader interface {
	Load(ctx context.Context, url string) ([]byte, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context, url string) ([]byte, error)

// Load calls f(ctx, url).
func (f LoaderFunc) Load(ctx context.Context, url string) ([]byte, error) {
	return f(ctx, url)
}

// HTTPLoader loads scripts with GET requests.
type HTTPLoader struct {
	Client      *http.Client
	MaxBodySize int64
}

// NewHTTPLoader returns a loader using a dedicated client without its own
// timeout; request deadlines come from the transport.
func NewHTTPLoader() *HTTPLoader {
	return &HTTPLoader{
		Client:      &http.Client{},
		MaxBodySize: DefaultMaxScriptSize,
	}
}

// Load performs the GET and returns the body of a 2xx response.
func (l *HTTPLoader) Load(ctx context.Context, url string) ([]byte, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	request.Header.Set("Accept", "application/javascript, text/javascript, */*;q=0.1")

	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}

	res, err := client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("unable to perform HTTP request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, &StatusError{Code: res.StatusCode}
	}

	limit := l.MaxBodySize
	if limit <= 0 {
		limit = DefaultMaxScriptSize
	}
	body, err := io.ReadAll(io.LimitReader(res.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("script exceeds %d bytes", limit)
	}

	return body, nil
}
