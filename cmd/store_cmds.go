package main

import (
	"fmt"
	"sort"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending store migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), "store")
		if err != nil {
			return err
		}
		defer env.Close()

		pterm.Success.Printfln("Store migrated (%s)", cfg.Store.Driver)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show catalog statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), "store")
		if err != nil {
			return err
		}
		defer env.Close()

		stats, err := env.Store.Stats(cmd.Context())
		if err != nil {
			return err
		}

		data := pterm.TableData{
			{"Metric", "Value"},
			{"total spirits", fmt.Sprintf("%d", stats.Total)},
			{"needing enrichment", fmt.Sprintf("%d", stats.NeedsEnrichment)},
			{"active failed attempts", fmt.Sprintf("%d", stats.ActiveFailures)},
		}
		types := make([]string, 0, len(stats.ByType))
		for t := range stats.ByType {
			types = append(types, t)
		}
		sort.Strings(types)
		for _, t := range types {
			data = append(data, []string{"type: " + t, fmt.Sprintf("%d", stats.ByType[t])})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	},
}

var failcacheCmd = &cobra.Command{
	Use:   "failcache",
	Short: "Manage the failed-attempt cache",
}

var failcachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete expired failed-attempt entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), "store")
		if err != nil {
			return err
		}
		defer env.Close()

		n, err := env.Store.DeleteExpiredFailures(cmd.Context())
		if err != nil {
			return err
		}
		pterm.Success.Printfln("Pruned %d expired entries", n)
		return nil
	},
}

func init() {
	failcacheCmd.AddCommand(failcachePruneCmd)
	rootCmd.AddCommand(migrateCmd, statsCmd, failcacheCmd)
}
