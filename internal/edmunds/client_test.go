package edmunds_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/seantiz/edmunds/internal/edmunds"
	"github.com/seantiz/edmunds/internal/jsonp"
	"github.com/seantiz/edmunds/internal/mockapi"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newMockClient(t *testing.T, key string, opts ...edmunds.Option) (*edmunds.Client, *mockapi.Server) {
	t.Helper()
	mock := mockapi.New(mockapi.WithLogger(discardLogger()))
	srv := httptest.NewServer(mock)
	t.Cleanup(srv.Close)

	opts = append([]edmunds.Option{edmunds.WithBaseURL(srv.URL), edmunds.WithLogger(discardLogger())}, opts...)
	c := edmunds.New(key, opts...)
	t.Cleanup(c.Close)
	return c, mock
}

func TestNewDefaults(t *testing.T) {
	c := edmunds.New("key")
	defer c.Close()

	if got := c.BaseURL(); got != "http://api.edmunds.com" {
		t.Errorf("BaseURL = %q", got)
	}
	if got := c.BaseMediaURL(); got != "http://media.ed.edmunds-media.com" {
		t.Errorf("BaseMediaURL = %q", got)
	}
	if got := c.Version(); got != "0.1.7" {
		t.Errorf("Version = %q, want 0.1.7", got)
	}
	if got := c.Output(); got != edmunds.FormatJSON {
		t.Errorf("Output = %q, want json", got)
	}
}

func TestNewHTTPS(t *testing.T) {
	c := edmunds.New("key", edmunds.WithScheme("https"))
	defer c.Close()

	if got := c.BaseURL(); got != "https://api.edmunds.com" {
		t.Errorf("BaseURL = %q", got)
	}
	if got := c.BaseMediaURL(); got != "https://media.ed.edmunds-media.com" {
		t.Errorf("BaseMediaURL = %q", got)
	}
}

func TestSetOutput(t *testing.T) {
	c := edmunds.New("key")
	defer c.Close()

	if got := c.SetOutput(edmunds.FormatXML); got != edmunds.FormatXML {
		t.Errorf("SetOutput = %q, want xml", got)
	}
	if !strings.HasSuffix(c.URL("/m", nil), "&fmt=xml") {
		t.Errorf("URL = %q, want fmt=xml", c.URL("/m", nil))
	}
}

func TestSerializeParams(t *testing.T) {
	tests := []struct {
		name   string
		params edmunds.Params
		want   string
	}{
		{"empty", nil, ""},
		{"sorted", edmunds.Params{"year": "2014", "state": "new"}, "state=new&year=2014"},
		{"escaped", edmunds.Params{"q": "a&b=c", "make name": "land rover"}, "make+name=land+rover&q=a%26b%3Dc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := edmunds.SerializeParams(tt.params); got != tt.want {
				t.Errorf("SerializeParams = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestURL(t *testing.T) {
	c := edmunds.New("k1", edmunds.WithBaseURL("http://api.example.com/"))
	defer c.Close()

	tests := []struct {
		name   string
		params edmunds.Params
		want   string
	}{
		{"no params", nil, "http://api.example.com/api/vehicle/v2/makes?api_key=k1&fmt=json"},
		{"params", edmunds.Params{"state": "new"}, "http://api.example.com/api/vehicle/v2/makes?state=new&api_key=k1&fmt=json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.URL("/api/vehicle/v2/makes", tt.params); got != tt.want {
				t.Errorf("URL = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRedactKey(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"http://a/m?x=1&api_key=secret&fmt=json", "http://a/m?x=1&api_key=REDACTED&fmt=json"},
		{"http://a/m?api_key=secret", "http://a/m?api_key=REDACTED"},
		{"http://a/m?x=1", "http://a/m?x=1"},
		{"http://a/m", "http://a/m"},
	}
	for _, tt := range tests {
		if got := edmunds.RedactKey(tt.in); got != tt.want {
			t.Errorf("RedactKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCall(t *testing.T) {
	c, _ := newMockClient(t, "k1")

	payload, err := c.Call(context.Background(), "/api/vehicle/v2/makes", edmunds.Params{"year": "2014"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}

	var echo mockapi.Echo
	if err := json.Unmarshal(payload, &echo); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if echo.Method != "/api/vehicle/v2/makes" || echo.Params["year"] != "2014" || echo.Format != "json" {
		t.Errorf("echo = %+v", echo)
	}
	if echo.CacheBust {
		t.Error("cached client sent a cache-busting parameter")
	}
}

func TestCallWithoutCache(t *testing.T) {
	c, _ := newMockClient(t, "k1", edmunds.WithCache(false))

	payload, err := c.Call(context.Background(), "/api/vehicle/v2/makes", nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	var echo mockapi.Echo
	if err := json.Unmarshal(payload, &echo); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if !echo.CacheBust {
		t.Error("uncached client did not send a cache-busting parameter")
	}
}

func TestCallMissingKeyFails(t *testing.T) {
	c, _ := newMockClient(t, "")

	_, err := c.Call(context.Background(), "/api/vehicle/v2/makes", nil)
	var le *jsonp.LoadError
	if !errors.As(err, &le) {
		t.Fatalf("error = %v, want *jsonp.LoadError", err)
	}
	if le.Reason != jsonp.ReasonStatus {
		t.Errorf("Reason = %q, want %q", le.Reason, jsonp.ReasonStatus)
	}
}

func TestCallTimeout(t *testing.T) {
	c, _ := newMockClient(t, "k1", edmunds.WithTimeout(20*time.Millisecond))

	_, err := c.Call(context.Background(), mockapi.HangPrefix+"makes", nil)
	if !errors.Is(err, jsonp.ErrTimeout) {
		t.Errorf("error = %v, want ErrTimeout", err)
	}
}

func TestAPI(t *testing.T) {
	c, _ := newMockClient(t, "k1")

	done := make(chan json.RawMessage, 1)
	c.API("/api/vehicle/v2/makes", edmunds.Params{"state": "used"},
		func(p json.RawMessage) { done <- p },
		func(err error) { t.Errorf("onError: %v", err); done <- nil },
	)

	select {
	case p := <-done:
		if !strings.Contains(string(p), `"state":"used"`) {
			t.Errorf("payload = %s", p)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("API never completed")
	}
}

func TestAPITimeout(t *testing.T) {
	c, _ := newMockClient(t, "k1", edmunds.WithTimeout(20*time.Millisecond))

	errCh := make(chan error, 1)
	c.API(mockapi.HangPrefix+"makes", nil,
		func(json.RawMessage) { t.Error("onSuccess called for a hung call") },
		func(err error) { errCh <- err },
	)

	select {
	case err := <-errCh:
		if !errors.Is(err, jsonp.ErrTimeout) || err.Error() != "timeout" {
			t.Errorf("error = %v, want timeout", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout never reported")
	}
}

func TestRateLimitDelaysCalls(t *testing.T) {
	c, mock := newMockClient(t, "k1", edmunds.WithRateLimit(20, 1))

	start := time.Now()
	for range 3 {
		if _, err := c.Call(context.Background(), "/api/x", nil); err != nil {
			t.Fatalf("Call: %v", err)
		}
	}
	// Burst of one at 20/s: the 2nd and 3rd calls each wait ~50ms.
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("elapsed = %v, want >= 80ms", elapsed)
	}
	if got := mock.Requests(); got != 3 {
		t.Errorf("mock requests = %d, want 3", got)
	}
}

func TestRateLimitHonorsContext(t *testing.T) {
	c, _ := newMockClient(t, "k1", edmunds.WithRateLimit(0.1, 1))

	if _, err := c.Call(context.Background(), "/api/x", nil); err != nil {
		t.Fatalf("first Call: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.Call(ctx, "/api/x", nil); err == nil {
		t.Error("expected rate limit error")
	}
}

func TestSharedTransportSurvivesClose(t *testing.T) {
	tr := jsonp.NewTransport(jsonp.WithLogger(discardLogger()))
	defer tr.Close()

	srv := httptest.NewServer(mockapi.New(mockapi.WithLogger(discardLogger())))
	defer srv.Close()

	first := edmunds.New("k1", edmunds.WithTransport(tr), edmunds.WithBaseURL(srv.URL))
	first.Close()

	second := edmunds.New("k1", edmunds.WithTransport(tr), edmunds.WithBaseURL(srv.URL))
	if _, err := second.Call(context.Background(), "/api/x", nil); err != nil {
		t.Errorf("Call on shared transport after Close: %v", err)
	}
}
