package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/seantiz/edmunds/internal/edmunds"
	"github.com/seantiz/edmunds/internal/output"
)

func newCallCmd(a *app) *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "call <method> [key=value...]",
		Short: "Call an API method and print the payload",
		Example: `  edmunds call /api/vehicle/v2/makes state=new year=2014
  edmunds call /api/vehicle/v2/honda/models -o yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter, err := output.NewFormatter(outputFormat)
			if err != nil {
				return err
			}

			method := args[0]
			if !strings.HasPrefix(method, "/") {
				return fmt.Errorf("method %q must start with /", method)
			}
			params, err := parseParams(args[1:])
			if err != nil {
				return err
			}
			if a.cfg.APIKey == "" {
				return errors.New("an API key is required (--api-key or EDMUNDS_API_KEY)")
			}

			client := a.newClient()
			defer client.Close()

			payload, err := client.Call(cmd.Context(), method, params)
			if err != nil {
				return err
			}

			out, err := formatter.Format(payload)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "output", "o", output.FormatJSON, "output format: json, yaml or raw")

	return cmd
}

// parseParams turns key=value arguments into call parameters.
func parseParams(args []string) (edmunds.Params, error) {
	params := make(edmunds.Params, len(args))
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid parameter %q, want key=value", arg)
		}
		params[k] = v
	}
	return params, nil
}
