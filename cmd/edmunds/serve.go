package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/seantiz/edmunds/internal/api"
	"github.com/seantiz/edmunds/internal/engine"
	"github.com/seantiz/edmunds/internal/store"
)

func newServeCmd(a *app) *cobra.Command {
	var listenAddr, dbPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("listen") {
				a.cfg.ListenAddr = listenAddr
			}
			if cmd.Flags().Changed("db") {
				a.cfg.DBPath = dbPath
			}

			a.logger.Info("edmunds: starting gateway",
				"listen_addr", a.cfg.ListenAddr,
				"db_path", a.cfg.DBPath,
			)

			db, err := store.NewSQLiteStore(a.cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			client := a.newClient()
			defer client.Close()

			eng := engine.NewEngine(db, client, a.logger)
			srv := api.NewServer(a.cfg.ListenAddr, db, eng, client, a.logger)

			return srv.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", "", "listen address (env EDMUNDS_LISTEN_ADDR, default :8080)")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path (env EDMUNDS_DB_PATH)")

	return cmd
}
