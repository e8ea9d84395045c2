package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/seantiz/edmunds/internal/mockapi"
)

func newMockCmd(a *app) *cobra.Command {
	var addr string
	var latency time.Duration

	cmd := &cobra.Command{
		Use:   "mock",
		Short: "Run a local JSONP mock of the API",
		Long: `mock answers every GET with <callback>(<json>) echoing the method,
parameters and format of the request. Paths under /hang/ never answer.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("addr") {
				a.cfg.MockAddr = addr
			}
			srv := mockapi.New(mockapi.WithLatency(latency), mockapi.WithLogger(a.logger))
			return srv.Run(cmd.Context(), a.cfg.MockAddr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (env EDMUNDS_MOCK_ADDR, default :8081)")
	cmd.Flags().DurationVar(&latency, "latency", 0, "delay before every response")

	return cmd
}
