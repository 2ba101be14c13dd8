package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"mcpdocs/internal/docerr"
)

// Job statuses. A job moves pending -> running -> (completed | failed),
// each transition at most once.
const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// IngestionJob is the audit record of one ingestion attempt.
type IngestionJob struct {
	ID              int
	PackageConfigID int
	Status          string
	ErrorMessage    *string
	DocsPopulated   *int
	CreatedAt       time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
}

// CreateJob inserts a pending job for the config and returns its id.
func (s *Store) CreateJob(ctx context.Context, configID int) (int, error) {
	var id int
	err := s.pool.QueryRow(ctx, `
		INSERT INTO ingestion_jobs (package_config_id, status)
		VALUES ($1, 'pending')
		RETURNING id`, configID).Scan(&id)
	if err != nil {
		return 0, docerr.Wrap(docerr.KindStore, err, "creating job for config %d", configID)
	}
	return id, nil
}

// UpdateJob transitions a job. started_at is stamped on the move to running;
// completed_at on the move to a terminal status. errMsg and docs update the
// corresponding columns when non-nil.
func (s *Store) UpdateJob(ctx context.Context, jobID int, status string, errMsg *string, docs *int) error {
	sets := []string{"status = $2"}
	args := []any{jobID, status}

	switch status {
	case JobStatusRunning:
		sets = append(sets, "started_at = NOW()")
	case JobStatusCompleted, JobStatusFailed:
		sets = append(sets, "completed_at = NOW()")
	}
	if errMsg != nil {
		args = append(args, *errMsg)
		sets = append(sets, fmt.Sprintf("error_message = $%d", len(args)))
	}
	if docs != nil {
		args = append(args, *docs)
		sets = append(sets, fmt.Sprintf("docs_populated = $%d", len(args)))
	}

	query := "UPDATE ingestion_jobs SET " + strings.Join(sets, ", ") + " WHERE id = $1"
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return docerr.Wrap(docerr.KindStore, err, "updating job %d to %s", jobID, status)
	}
	if tag.RowsAffected() == 0 {
		return docerr.New(docerr.KindStore, "job %d not found", jobID)
	}
	return nil
}

// LatestJobForConfig returns the most recently created job for the config,
// or nil if none exists.
func (s *Store) LatestJobForConfig(ctx context.Context, configID int) (*IngestionJob, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, package_config_id, status, error_message, docs_populated,
			created_at, started_at, completed_at
		FROM ingestion_jobs
		WHERE package_config_id = $1
		ORDER BY created_at DESC
		LIMIT 1`, configID)

	var j IngestionJob
	err := row.Scan(&j.ID, &j.PackageConfigID, &j.Status, &j.ErrorMessage,
		&j.DocsPopulated, &j.CreatedAt, &j.StartedAt, &j.CompletedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, docerr.Wrap(docerr.KindStore, err, "getting latest job for config %d", configID)
	}
	return &j, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
