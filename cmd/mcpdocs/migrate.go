package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mcpdocs/internal/config"
	"mcpdocs/internal/store"
)

// legacyConfig is the shape of the old proxy-config.json file.
type legacyConfig struct {
	RustdocsBinaryPath string          `json:"rustdocs_binary_path,omitempty"`
	Packages           []legacyPackage `json:"packages"`
}

type legacyPackage struct {
	Name         string   `json:"name"`
	Features     []string `json:"features,omitempty"`
	Enabled      *bool    `json:"enabled,omitempty"`
	ExpectedDocs int      `json:"expected_docs,omitempty"`
}

// migrateCmd imports a legacy proxy-config.json into package_configs,
// skipping entries that already exist.
var migrateCmd = &cobra.Command{
	Use:   "migrate <proxy-config.json>",
	Short: "Import a legacy proxy-config.json into the database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading %s: %w", args[0], err)
		}
		var legacy legacyConfig
		if err := json.Unmarshal(data, &legacy); err != nil {
			return fmt.Errorf("parsing %s: %w", args[0], err)
		}

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

		imported, skipped := 0, 0
		for _, p := range legacy.Packages {
			if p.Name == "" {
				continue
			}
			existing, err := st.GetConfig(ctx, p.Name, store.VersionSpecLatest)
			if err != nil {
				return err
			}
			if existing != nil {
				skipped++
				fmt.Printf("  %s: already configured, skipping\n", p.Name)
				continue
			}

			enabled := true
			if p.Enabled != nil {
				enabled = *p.Enabled
			}
			_, err = st.UpsertConfig(ctx, store.PackageConfig{
				Name:         p.Name,
				VersionSpec:  store.VersionSpecLatest,
				Features:     p.Features,
				ExpectedDocs: p.ExpectedDocs,
				Enabled:      enabled,
			})
			if err != nil {
				return fmt.Errorf("importing %s: %w", p.Name, err)
			}
			imported++
			fmt.Printf("  %s: imported\n", p.Name)
		}

		fmt.Printf("Migration complete: %d imported, %d skipped.\n", imported, skipped)
		return nil
	},
}
