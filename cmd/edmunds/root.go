package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/seantiz/edmunds/internal/config"
	"github.com/seantiz/edmunds/internal/edmunds"
)

// app holds state shared by subcommands once flags are parsed.
type app struct {
	cfg    config.Config
	logger *slog.Logger

	apiKey    string
	baseURL   string
	scheme    string
	format    string
	timeout   time.Duration
	noCache   bool
	rateLimit float64
	logLevel  string
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "edmunds",
		Short: "Edmunds API client, gateway and mock server",
		Long: `edmunds issues Edmunds vehicle API calls as JSONP requests.

Configuration is read from EDMUNDS_* environment variables; flags take
precedence.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.apiKey, "api-key", "", "Edmunds API key (env EDMUNDS_API_KEY)")
	pf.StringVar(&a.baseURL, "base-url", "", "API base URL (env EDMUNDS_BASE_URL)")
	pf.StringVar(&a.scheme, "scheme", "", "scheme for the default base URLs: http or https")
	pf.StringVar(&a.format, "format", "", "response format requested from the API: json or xml")
	pf.DurationVar(&a.timeout, "timeout", 0, "per-call timeout (default 7s)")
	pf.BoolVar(&a.noCache, "no-cache", false, "add a cache-busting parameter to every call")
	pf.Float64Var(&a.rateLimit, "rate-limit", 0, "maximum calls per second, 0 for unlimited")
	pf.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn or error")

	root.AddCommand(
		newCallCmd(a),
		newServeCmd(a),
		newMockCmd(a),
		newVersionCmd(),
	)

	return root
}

// load reads the environment and layers explicitly set flags on top.
func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("api-key") {
		cfg.APIKey = a.apiKey
	}
	if flags.Changed("base-url") {
		cfg.BaseURL = a.baseURL
	}
	if flags.Changed("scheme") {
		if a.scheme != "http" && a.scheme != "https" {
			return fmt.Errorf("unsupported scheme %q", a.scheme)
		}
		cfg.Scheme = a.scheme
	}
	if flags.Changed("format") {
		cfg.Format = a.format
	}
	if flags.Changed("timeout") {
		cfg.Timeout = a.timeout
	}
	if flags.Changed("no-cache") {
		cfg.Cache = !a.noCache
	}
	if flags.Changed("rate-limit") {
		cfg.RateLimit = a.rateLimit
	}

	a.cfg = cfg
	level := cfg.LogLevel
	if flags.Changed("log-level") {
		if err := level.UnmarshalText([]byte(a.logLevel)); err != nil {
			return fmt.Errorf("log level: %w", err)
		}
	}
	a.logger = config.NewLogger(cmd.ErrOrStderr(), level)
	return nil
}

// newClient builds an API client from the loaded configuration.
func (a *app) newClient() *edmunds.Client {
	return edmunds.New(a.cfg.APIKey, a.cfg.ClientOptions(a.logger)...)
}
