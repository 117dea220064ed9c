package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/student-records-api/internal/models"
	"github.com/noah-isme/student-records-api/pkg/datastore"
)

// ReportJobRepository persists export job metadata.
type ReportJobRepository struct {
	store *datastore.Store
}

// NewReportJobRepository constructs the repository.
func NewReportJobRepository(store *datastore.Store) *ReportJobRepository {
	return &ReportJobRepository{store: store}
}

// Create inserts a job, filling id, status and creation time when unset.
func (r *ReportJobRepository) Create(ctx context.Context, job *models.ReportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.ReportStatusQueued
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if err := r.store.Insert(ctx, "report_jobs", job); err != nil {
		return fmt.Errorf("create report job: %w", err)
	}
	return nil
}

// GetByID returns a job; sql.ErrNoRows is wrapped when missing.
func (r *ReportJobRepository) GetByID(ctx context.Context, id string) (*models.ReportJob, error) {
	var job models.ReportJob
	if err := r.store.Get(ctx, &job, "report_jobs", datastore.Eq("id", id)); err != nil {
		return nil, fmt.Errorf("get report job: %w", err)
	}
	return &job, nil
}

// ReportJobUpdate lists the mutable job fields; nil fields are left alone.
type ReportJobUpdate struct {
	Status       *models.ReportStatus
	Progress     *int
	ResultURL    *string
	ErrorMessage *string
	FinishedAt   *time.Time
}

// Update applies the non-nil fields of u.
func (r *ReportJobRepository) Update(ctx context.Context, id string, u ReportJobUpdate) error {
	values := map[string]interface{}{}
	if u.Status != nil {
		values["status"] = *u.Status
	}
	if u.Progress != nil {
		values["progress"] = *u.Progress
	}
	if u.ResultURL != nil {
		values["result_url"] = *u.ResultURL
	}
	if u.ErrorMessage != nil {
		values["error_message"] = *u.ErrorMessage
	}
	if u.FinishedAt != nil {
		values["finished_at"] = *u.FinishedAt
	}
	if _, err := r.store.Update(ctx, "report_jobs", values, datastore.Eq("id", id)); err != nil {
		return fmt.Errorf("update report job: %w", err)
	}
	return nil
}

// ListByStatus returns the oldest jobs in a status, used to replay queued work on start.
func (r *ReportJobRepository) ListByStatus(ctx context.Context, status models.ReportStatus, limit int) ([]models.ReportJob, error) {
	if limit <= 0 {
		limit = 50
	}
	jobs := make([]models.ReportJob, 0)
	err := r.store.Select(ctx, &jobs, "report_jobs", datastore.Query{
		Filters: []datastore.Filter{datastore.Eq("status", status)},
		OrderBy: []string{"created_at"},
		Limit:   limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list report jobs: %w", err)
	}
	return jobs, nil
}

// ListFinishedBefore returns finished jobs whose files are due for cleanup.
func (r *ReportJobRepository) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ReportJob, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `SELECT id, format, params, status, progress, result_url, created_by, created_at, finished_at, error_message
FROM report_jobs WHERE status = $1 AND finished_at IS NOT NULL AND finished_at < $2 ORDER BY finished_at ASC LIMIT $3`
	jobs := make([]models.ReportJob, 0)
	if err := sqlx.SelectContext(ctx, r.store.Ext(), &jobs, query, models.ReportStatusFinished, cutoff, limit); err != nil {
		return nil, fmt.Errorf("list finished report jobs: %w", err)
	}
	return jobs, nil
}
