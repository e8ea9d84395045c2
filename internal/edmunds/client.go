// Package edmunds is a client for the Edmunds vehicle API. Calls are issued
// as JSONP requests through a jsonp.Transport.
package edmunds

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/seantiz/edmunds/internal/jsonp"
)

const (
	// SDKVersion is reported by Version.
	SDKVersion = "0.1.7"

	// DefaultTimeout bounds each API call.
	DefaultTimeout = 7000 * time.Millisecond

	apiHost   = "api.edmunds.com"
	mediaHost = "media.ed.edmunds-media.com"

	// FormatJSON and FormatXML are the response formats the API accepts.
	FormatJSON = "json"
	FormatXML  = "xml"

	redacted = "REDACTED"
)

// Params are the query parameters of an API call.
type Params map[string]string

// Requester issues JSONP requests. *jsonp.Transport satisfies it.
type Requester interface {
	Request(rawURL string, opts jsonp.Options)
	Do(ctx context.Context, rawURL string, opts jsonp.Options) (json.RawMessage, error)
}

var _ Requester = (*jsonp.Transport)(nil)

// Client calls Edmunds API methods.
type Client struct {
	key       string
	scheme    string
	baseURL   string
	mediaURL  string
	timeout   time.Duration
	cache     bool
	limiter   *rate.Limiter
	logger    *slog.Logger
	requester Requester
	owned     *jsonp.Transport

	mu     sync.RWMutex
	format string
}

// Option configures a Client.
type Option func(*Client)

// WithTransport issues requests through r instead of a private transport.
func WithTransport(r Requester) Option {
	return func(c *Client) { c.requester = r }
}

// WithScheme selects http or https for the default base URLs.
func WithScheme(scheme string) Option {
	return func(c *Client) { c.scheme = scheme }
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithMediaURL overrides the media base URL.
func WithMediaURL(u string) Option {
	return func(c *Client) { c.mediaURL = strings.TrimRight(u, "/") }
}

// WithTimeout sets the per-call timeout. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithCache controls whether responses may be served from intermediary
// caches. When false every call carries a cache-busting parameter.
func WithCache(cache bool) Option {
	return func(c *Client) { c.cache = cache }
}

// WithRateLimit caps outbound calls at rps per second with the given burst.
// A non-positive rps leaves calls unlimited.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithFormat sets the initial response format.
func WithFormat(format string) Option {
	return func(c *Client) { c.format = format }
}

// New creates a client for the given API key.
func New(key string, opts ...Option) *Client {
	c := &Client{
		key:     key,
		scheme:  "http",
		timeout: DefaultTimeout,
		cache:   true,
		format:  FormatJSON,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.baseURL == "" {
		c.baseURL = c.scheme + "://" + apiHost
	}
	if c.mediaURL == "" {
		c.mediaURL = c.scheme + "://" + mediaHost
	}
	if c.requester == nil {
		c.owned = jsonp.NewTransport(jsonp.WithLogger(c.logger))
		c.requester = c.owned
	}

	return c
}

// Close releases the client's private transport, aborting in-flight calls.
// A transport supplied with WithTransport is left open.
func (c *Client) Close() {
	if c.owned != nil {
		c.owned.Close()
	}
}

// Version returns the SDK version.
func (c *Client) Version() string {
	return SDKVersion
}

// BaseURL returns the API base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// BaseMediaURL returns the media base URL.
func (c *Client) BaseMediaURL() string {
	return c.mediaURL
}

// SetOutput sets the response format for subsequent calls and returns it.
func (c *Client) SetOutput(format string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.format = format
	return c.format
}

// Output returns the current response format.
func (c *Client) Output() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.format
}

// SerializeParams renders params as a query string with keys sorted and both
// keys and values escaped.
func SerializeParams(params Params) string {
	v := make(url.Values, len(params))
	for k, val := range params {
		v.Set(k, val)
	}
	return v.Encode()
}

// URL returns the request URL for method, without the callback parameter.
func (c *Client) URL(method string, params Params) string {
	var b strings.Builder
	b.WriteString(c.baseURL)
	b.WriteString(method)
	b.WriteByte('?')
	if qs := SerializeParams(params); qs != "" {
		b.WriteString(qs)
		b.WriteByte('&')
	}
	b.WriteString("api_key=")
	b.WriteString(url.QueryEscape(c.key))
	b.WriteString("&fmt=")
	b.WriteString(url.QueryEscape(c.Output()))
	return b.String()
}

func (c *Client) options(onSuccess func(json.RawMessage), onError func(error)) jsonp.Options {
	return jsonp.Options{
		Timeout:   c.timeout,
		OnSuccess: onSuccess,
		OnError:   onError,
		CacheBust: !c.cache,
	}
}

// API calls method asynchronously. Exactly one of onSuccess or onError is
// eventually invoked; either may be nil.
func (c *Client) API(method string, params Params, onSuccess func(json.RawMessage), onError func(error)) {
	u := c.URL(method, params)
	opts := c.options(onSuccess, onError)

	c.logger.Debug("edmunds: calling", "method", method, "url", RedactKey(u))

	if c.limiter == nil {
		c.requester.Request(u, opts)
		return
	}

	delay := c.limiter.Reserve().Delay()
	if delay == 0 {
		c.requester.Request(u, opts)
		return
	}
	time.AfterFunc(delay, func() { c.requester.Request(u, opts) })
}

// Call calls method and waits for the payload. The context deadline, when
// earlier than the client timeout, bounds the call.
func (c *Client) Call(ctx context.Context, method string, params Params) (json.RawMessage, error) {
	u := c.URL(method, params)

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	c.logger.Debug("edmunds: calling", "method", method, "url", RedactKey(u))

	payload, err := c.requester.Do(ctx, u, c.options(nil, nil))
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	return payload, nil
}

// RedactKey masks the api_key query parameter of rawURL, leaving the rest of
// the URL untouched.
func RedactKey(rawURL string) string {
	base, query, ok := strings.Cut(rawURL, "?")
	if !ok {
		return rawURL
	}
	pairs := strings.Split(query, "&")
	for i, pair := range pairs {
		if k, _, _ := strings.Cut(pair, "="); k == "api_key" {
			pairs[i] = "api_key=" + redacted
		}
	}
	return base + "?" + strings.Join(pairs, "&")
}
