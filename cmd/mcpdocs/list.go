package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"mcpdocs/internal/config"
	"mcpdocs/internal/store"
)

// listCmd prints a table of per-package documentation statistics.
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List ingested packages and their documentation statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("MCPDOCS_DATABASE_URL is not set")
		}

		ctx, stop := signalContext()
		defer stop()

		st, err := store.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer st.Close()

		stats, err := st.AggregateStats(ctx)
		if err != nil {
			return err
		}
		if len(stats) == 0 {
			fmt.Println("No packages ingested yet.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tVERSION\tDOCS\tTOKENS\tLAST UPDATED")
		for _, s := range stats {
			version := "-"
			if s.Version != nil {
				version = *s.Version
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n",
				s.Name, version, s.TotalDocs, s.TotalTokens,
				s.LastUpdated.Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}
