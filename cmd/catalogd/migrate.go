package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/catalogsync/internal/store"
)

func newMigrateCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := root.cfg
			st, err := store.Open(cmd.Context(), cfg.Database.URL, store.PoolOptions{
				MaxConns: cfg.Database.MaxConns,
				MinConns: cfg.Database.MinConns,
			})
			if err != nil {
				return err
			}
			defer st.Close()

			applied, err := st.Migrate(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(applied) == 0 {
				fmt.Fprintln(out, "database is up to date")
				return nil
			}
			for _, name := range applied {
				fmt.Fprintf(out, "applied %s\n", name)
			}
			return nil
		},
	}
}
