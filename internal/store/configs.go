package store

import (
	"context"
	"time"

	"mcpdocs/internal/docerr"
)

// VersionSpecLatest tracks whatever version the documentation host currently
// serves; anything else is an explicit version literal.
const VersionSpecLatest = "latest"

// PackageConfig is the operator's declaration that a package should be
// tracked.
type PackageConfig struct {
	ID             int
	Name           string
	VersionSpec    string
	CurrentVersion *string
	Features       []string
	ExpectedDocs   int
	Enabled        bool
	LastChecked    *time.Time
	LastPopulated  *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

const configColumns = `id, name, version_spec, current_version, features,
	expected_docs, enabled, last_checked, last_populated, created_at, updated_at`

func scanConfig(row interface{ Scan(...any) error }) (PackageConfig, error) {
	var c PackageConfig
	err := row.Scan(&c.ID, &c.Name, &c.VersionSpec, &c.CurrentVersion, &c.Features,
		&c.ExpectedDocs, &c.Enabled, &c.LastChecked, &c.LastPopulated,
		&c.CreatedAt, &c.UpdatedAt)
	return c, err
}

// ListConfigs returns package configs ordered by name, optionally filtered
// to enabled ones.
func (s *Store) ListConfigs(ctx context.Context, enabledOnly bool) ([]PackageConfig, error) {
	query := `SELECT ` + configColumns + ` FROM package_configs`
	if enabledOnly {
		query += ` WHERE enabled`
	}
	query += ` ORDER BY name, version_spec`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, docerr.Wrap(docerr.KindStore, err, "listing package configs")
	}
	defer rows.Close()

	var out []PackageConfig
	for rows.Next() {
		c, err := scanConfig(rows)
		if err != nil {
			return nil, docerr.Wrap(docerr.KindStore, err, "scanning package config")
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, docerr.Wrap(docerr.KindStore, err, "listing package configs")
	}
	return out, nil
}

// GetConfig returns the config for (name, versionSpec), or nil if absent.
func (s *Store) GetConfig(ctx context.Context, name, versionSpec string) (*PackageConfig, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+configColumns+` FROM package_configs WHERE name = $1 AND version_spec = $2`,
		name, versionSpec)
	c, err := scanConfig(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, docerr.Wrap(docerr.KindStore, err, "getting config for %q@%q", name, versionSpec)
	}
	return &c, nil
}

// GetConfigByName returns the first config for a name regardless of version
// spec, or nil if absent.
func (s *Store) GetConfigByName(ctx context.Context, name string) (*PackageConfig, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+configColumns+` FROM package_configs WHERE name = $1 ORDER BY version_spec LIMIT 1`,
		name)
	c, err := scanConfig(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, docerr.Wrap(docerr.KindStore, err, "getting config for %q", name)
	}
	return &c, nil
}

// UpsertConfig inserts or updates the config keyed by (name, version_spec)
// and returns the stored row with its server-assigned id. The population
// timestamps are owned by MarkPopulated; re-upserting an existing config
// leaves them untouched.
func (s *Store) UpsertConfig(ctx context.Context, cfg PackageConfig) (*PackageConfig, error) {
	features := cfg.Features
	if features == nil {
		features = []string{}
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO package_configs
			(name, version_spec, current_version, features, expected_docs, enabled,
			 last_checked, last_populated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (name, version_spec) DO UPDATE SET
			current_version = EXCLUDED.current_version,
			features = EXCLUDED.features,
			expected_docs = EXCLUDED.expected_docs,
			enabled = EXCLUDED.enabled,
			updated_at = NOW()
		RETURNING `+configColumns,
		cfg.Name, cfg.VersionSpec, cfg.CurrentVersion, features,
		cfg.ExpectedDocs, cfg.Enabled, cfg.LastChecked, cfg.LastPopulated)

	stored, err := scanConfig(row)
	if err != nil {
		return nil, docerr.Wrap(docerr.KindStore, err, "upserting config for %q@%q", cfg.Name, cfg.VersionSpec)
	}
	return &stored, nil
}

// MarkPopulated records a successful ingestion on the config: the resolved
// version plus fresh last_populated/last_checked timestamps.
func (s *Store) MarkPopulated(ctx context.Context, configID int, currentVersion *string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE package_configs SET
			current_version = COALESCE($2, current_version),
			last_populated = NOW(),
			last_checked = NOW(),
			updated_at = NOW()
		WHERE id = $1`, configID, currentVersion)
	if err != nil {
		return docerr.Wrap(docerr.KindStore, err, "marking config %d populated", configID)
	}
	return nil
}

// DeleteConfig removes the config for (name, versionSpec). When versionSpec
// is empty, all configs for the name are removed. Returns true iff at least
// one row was deleted.
func (s *Store) DeleteConfig(ctx context.Context, name, versionSpec string) (bool, error) {
	var (
		tag interface{ RowsAffected() int64 }
		err error
	)
	if versionSpec == "" {
		tag, err = s.pool.Exec(ctx,
			`DELETE FROM package_configs WHERE name = $1`, name)
	} else {
		tag, err = s.pool.Exec(ctx,
			`DELETE FROM package_configs WHERE name = $1 AND version_spec = $2`, name, versionSpec)
	}
	if err != nil {
		return false, docerr.Wrap(docerr.KindStore, err, "deleting config for %q", name)
	}
	return tag.RowsAffected() > 0, nil
}

// ConfigsNeedingUpdate returns the enabled configs whose documentation is
// missing or stale: no package row at the tracked version, never populated,
// or tracking "latest" and unchecked for more than 24 hours.
func (s *Store) ConfigsNeedingUpdate(ctx context.Context) ([]PackageConfig, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT pc.id, pc.name, pc.version_spec, pc.current_version, pc.features,
			pc.expected_docs, pc.enabled, pc.last_checked, pc.last_populated,
			pc.created_at, pc.updated_at
		FROM package_configs pc
		LEFT JOIN packages p
			ON p.name = pc.name AND p.version = pc.current_version
		WHERE pc.enabled AND (
			p.id IS NULL
			OR pc.last_populated IS NULL
			OR (pc.version_spec = 'latest' AND pc.last_checked < NOW() - INTERVAL '24 hours')
		)
		ORDER BY pc.name, pc.version_spec`)
	if err != nil {
		return nil, docerr.Wrap(docerr.KindStore, err, "querying configs needing update")
	}
	defer rows.Close()

	var out []PackageConfig
	for rows.Next() {
		c, err := scanConfig(rows)
		if err != nil {
			return nil, docerr.Wrap(docerr.KindStore, err, "scanning package config")
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, docerr.Wrap(docerr.KindStore, err, "querying configs needing update")
	}
	return out, nil
}
