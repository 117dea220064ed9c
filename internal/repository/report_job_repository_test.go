package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/student-records-api/internal/models"
)

func TestReportJobRepositoryCreateFillsDefaults(t *testing.T) {
	_, store, mock := newMockDB(t)
	repo := NewReportJobRepository(store)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO report_jobs (id, format, params, status")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	job := &models.ReportJob{Format: models.ReportFormatCSV, CreatedBy: "u1"}
	require.NoError(t, repo.Create(context.Background(), job))
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, models.ReportStatusQueued, job.Status)
	assert.False(t, job.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReportJobRepositoryUpdate(t *testing.T) {
	_, store, mock := newMockDB(t)
	repo := NewReportJobRepository(store)

	status := models.ReportStatusFinished
	progress := 100
	finished := time.Now()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE report_jobs SET finished_at = $1, progress = $2, status = $3 WHERE id = $4")).
		WithArgs(finished, 100, "FINISHED", "job-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Update(context.Background(), "job-1", ReportJobUpdate{Status: &status, Progress: &progress, FinishedAt: &finished})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReportJobRepositoryListByStatus(t *testing.T) {
	_, store, mock := newMockDB(t)
	repo := NewReportJobRepository(store)

	rows := sqlmock.NewRows([]string{"id", "format", "params", "status", "progress", "result_url", "created_by", "created_at", "finished_at", "error_message"}).
		AddRow("job-1", "pdf", []byte(`{"filter":{"grade_level":10}}`), "QUEUED", 0, nil, "u1", time.Now(), nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta("FROM report_jobs WHERE status = $1 ORDER BY created_at LIMIT 50")).
		WithArgs("QUEUED").
		WillReturnRows(rows)

	jobs, err := repo.ListByStatus(context.Background(), models.ReportStatusQueued, 0)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.NotNil(t, jobs[0].Params.Filter.GradeLevel)
	assert.Equal(t, 10, *jobs[0].Params.Filter.GradeLevel)
	assert.NoError(t, mock.ExpectationsWereMet())
}
