package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/seantiz/edmunds/internal/edmunds"
)

const (
	defaultScheme     = "http"
	defaultFormat     = edmunds.FormatJSON
	defaultTimeoutMS  = 7000
	defaultListenAddr = ":8080"
	defaultMockAddr   = ":8081"
	defaultDBPath     = "edmunds.db"

	envAPIKey     = "EDMUNDS_API_KEY"
	envScheme     = "EDMUNDS_SCHEME"
	envBaseURL    = "EDMUNDS_BASE_URL"
	envMediaURL   = "EDMUNDS_MEDIA_URL"
	envFormat     = "EDMUNDS_FORMAT"
	envTimeoutMS  = "EDMUNDS_TIMEOUT_MS"
	envCache      = "EDMUNDS_CACHE"
	envRateLimit  = "EDMUNDS_RATE_LIMIT"
	envListenAddr = "EDMUNDS_LISTEN_ADDR"
	envMockAddr   = "EDMUNDS_MOCK_ADDR"
	envDBPath     = "EDMUNDS_DB_PATH"
	envLogLevel   = "EDMUNDS_LOG_LEVEL"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	APIKey   string
	Scheme   string
	BaseURL  string
	MediaURL string
	Format   string
	Timeout  time.Duration
	Cache    bool
	// RateLimit is the maximum calls per second; zero means unlimited.
	RateLimit float64

	ListenAddr string
	MockAddr   string
	DBPath     string
	LogLevel   slog.Level
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		Scheme:     defaultScheme,
		Format:     defaultFormat,
		Timeout:    defaultTimeoutMS * time.Millisecond,
		Cache:      true,
		ListenAddr: defaultListenAddr,
		MockAddr:   defaultMockAddr,
		DBPath:     defaultDBPath,
		LogLevel:   slog.LevelInfo,
	}

	cfg.APIKey = os.Getenv(envAPIKey)
	cfg.BaseURL = os.Getenv(envBaseURL)
	cfg.MediaURL = os.Getenv(envMediaURL)

	if v := os.Getenv(envScheme); v != "" {
		switch s := strings.ToLower(v); s {
		case "http", "https":
			cfg.Scheme = s
		default:
			return Config{}, fmt.Errorf("%s: unsupported scheme %q", envScheme, v)
		}
	}
	if v := os.Getenv(envFormat); v != "" {
		cfg.Format = v
	}
	if v := os.Getenv(envTimeoutMS); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms < 0 {
			return Config{}, fmt.Errorf("%s: invalid timeout %q", envTimeoutMS, v)
		}
		cfg.Timeout = time.Duration(ms) * time.Millisecond
	}
	if v := os.Getenv(envCache); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", envCache, err)
		}
		cfg.Cache = b
	}
	if v := os.Getenv(envRateLimit); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil || rps < 0 {
			return Config{}, fmt.Errorf("%s: invalid rate %q", envRateLimit, v)
		}
		cfg.RateLimit = rps
	}
	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envMockAddr); v != "" {
		cfg.MockAddr = v
	}
	if v := os.Getenv(envDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}

	return cfg, nil
}

// ClientOptions translates the configuration into edmunds client options.
func (c Config) ClientOptions(logger *slog.Logger) []edmunds.Option {
	opts := []edmunds.Option{
		edmunds.WithScheme(c.Scheme),
		edmunds.WithFormat(c.Format),
		edmunds.WithTimeout(c.Timeout),
		edmunds.WithCache(c.Cache),
		edmunds.WithLogger(logger),
	}
	if c.BaseURL != "" {
		opts = append(opts, edmunds.WithBaseURL(c.BaseURL))
	}
	if c.MediaURL != "" {
		opts = append(opts, edmunds.WithMediaURL(c.MediaURL))
	}
	if c.RateLimit > 0 {
		opts = append(opts, edmunds.WithRateLimit(c.RateLimit, 1))
	}
	return opts
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
