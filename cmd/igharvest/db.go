package main

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"

	"igharvest/pkg/config"
	"igharvest/pkg/store"
	"igharvest/pkg/ui"
)

// dbCmd represents the db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Database maintenance",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create missing tables and indexes",
	Long: `Create every table and index that does not exist yet. Safe to run
repeatedly; other commands also bring the schema up to date on start.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, _ *config.Config, st *store.Store) error {
			counts, err := st.CountJobsByStatus(ctx)
			if err != nil {
				return err
			}
			total := 0
			for _, n := range counts {
				total += n
			}
			ui.PrintSuccess("Schema up to date (" + st.Dialect().String() + ")")
			ui.PrintInfo("Jobs", strconv.Itoa(total))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(dbMigrateCmd)
}
