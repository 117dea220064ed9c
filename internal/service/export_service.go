package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/student-records-api/internal/dto"
	"github.com/noah-isme/student-records-api/internal/models"
	"github.com/noah-isme/student-records-api/internal/repository"
	appErrors "github.com/noah-isme/student-records-api/pkg/errors"
	"github.com/noah-isme/student-records-api/pkg/export"
	"github.com/noah-isme/student-records-api/pkg/jobs"
	"github.com/noah-isme/student-records-api/pkg/storage"
)

// ExportJobKind labels trend export jobs on the queue.
const ExportJobKind = "trend_export"

type reportJobStore interface {
	Create(ctx context.Context, job *models.ReportJob) error
	GetByID(ctx context.Context, id string) (*models.ReportJob, error)
	Update(ctx context.Context, id string, u repository.ReportJobUpdate) error
	ListByStatus(ctx context.Context, status models.ReportStatus, limit int) ([]models.ReportJob, error)
	ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ReportJob, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type trendSource interface {
	Trends(ctx context.Context, filter models.TrendsFilter) (*models.TrendsReport, bool, error)
}

type fileStorage interface {
	Save(name string, data []byte) (string, error)
	Open(name string) (*os.File, error)
	Delete(name string) error
	Sweep(ttl time.Duration) ([]string, error)
}

// ExportDownload is a resolved download.
type ExportDownload struct {
	File        *os.File
	Filename    string
	ContentType string
	ExpiresAt   time.Time
}

// ExportConfig governs cleanup of finished exports.
type ExportConfig struct {
	CleanupInterval time.Duration
}

// ExportService manages the lifecycle of trend export jobs.
type ExportService struct {
	repo      reportJobStore
	queue     jobDispatcher
	storage   fileStorage
	signer    *storage.Signer
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ExportConfig
}

// NewExportService constructs the export service.
func NewExportService(repo reportJobStore, queue jobDispatcher, files fileStorage, signer *storage.Signer, validate *validator.Validate, logger *zap.Logger, cfg ExportConfig) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ExportService{repo: repo, queue: queue, storage: files, signer: signer, validator: validate, logger: logger, cfg: cfg}
}

// CreateExport persists a job and enqueues it.
func (s *ExportService) CreateExport(ctx context.Context, req dto.TrendExportRequest, actorID string) (*dto.ReportJobResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid export request")
	}
	filter := req.Filter()
	if filter.MinGPA != nil && filter.MaxGPA != nil && *filter.MinGPA > *filter.MaxGPA {
		return nil, appErrors.Clone(appErrors.ErrValidation, "min_gpa must not exceed max_gpa")
	}
	job := &models.ReportJob{
		Format:    req.Format,
		Params:    models.ReportJobParams{Filter: filter},
		Status:    models.ReportStatusQueued,
		CreatedBy: actorID,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create export job")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Kind: ExportJobKind}); err != nil {
		msg := "failed to enqueue job"
		failed := models.ReportStatusFailed
		progress := 100
		now := time.Now().UTC()
		if updateErr := s.repo.Update(ctx, job.ID, repository.ReportJobUpdate{Status: &failed, Progress: &progress, ErrorMessage: &msg, FinishedAt: &now}); updateErr != nil {
			s.logger.Warn("failed to mark export job failed", zap.String("job_id", job.ID), zap.Error(updateErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue export job")
	}
	return &dto.ReportJobResponse{ID: job.ID, Status: job.Status, Progress: job.Progress}, nil
}

// GetStatus exposes job progress.
func (s *ExportService) GetStatus(ctx context.Context, id string) (*dto.ReportStatusResponse, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export job")
	}
	resp := &dto.ReportStatusResponse{ID: job.ID, Format: job.Format, Status: job.Status, Progress: job.Progress, ResultURL: job.ResultURL}
	if job.ErrorMessage != nil && *job.ErrorMessage != "" {
		resp.Error = job.ErrorMessage
	}
	return resp, nil
}

// ResolveDownload validates a token and opens the stored file.
func (s *ExportService) ResolveDownload(ctx context.Context, token string) (*ExportDownload, error) {
	grant, err := s.signer.Verify(token)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	job, err := s.repo.GetByID(ctx, grant.JobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export job")
	}
	if job.Status != models.ReportStatusFinished || job.ResultURL == nil || !strings.HasSuffix(*job.ResultURL, "/"+token) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "download token does not match export")
	}
	file, err := s.storage.Open(grant.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export file no longer available")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export file")
	}
	renderer, err := export.For(string(job.Format))
	contentType := "application/octet-stream"
	if err == nil {
		contentType = renderer.ContentType()
	}
	return &ExportDownload{File: file, Filename: path.Base(grant.Path), ContentType: contentType, ExpiresAt: grant.ExpiresAt}, nil
}

// RecoverPending re-enqueues jobs left queued by a previous process.
func (s *ExportService) RecoverPending(ctx context.Context) int {
	pending, err := s.repo.ListByStatus(ctx, models.ReportStatusQueued, 100)
	if err != nil {
		s.logger.Warn("failed to recover queued export jobs", zap.Error(err))
		return 0
	}
	recovered := 0
	for _, job := range pending {
		if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Kind: ExportJobKind}); err != nil {
			s.logger.Warn("failed to requeue export job", zap.String("job_id", job.ID), zap.Error(err))
			continue
		}
		recovered++
	}
	if recovered > 0 {
		s.logger.Info("recovered queued export jobs", zap.Int("count", recovered))
	}
	return recovered
}

// StartCleanup purges expired export files periodically until ctx ends.
func (s *ExportService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Cleanup(ctx)
			}
		}
	}()
}

// Cleanup deletes files of finished jobs whose download window has closed, then sweeps
// anything else older than the token lifetime.
func (s *ExportService) Cleanup(ctx context.Context) {
	ttl := s.signer.TTL()
	expired, err := s.repo.ListFinishedBefore(ctx, time.Now().Add(-ttl), 100)
	if err != nil {
		s.logger.Warn("export cleanup list failed", zap.Error(err))
	}
	for _, job := range expired {
		if job.ResultURL == nil {
			continue
		}
		grant, err := s.signer.Verify(path.Base(*job.ResultURL))
		if err != nil && !errors.Is(err, storage.ErrTokenExpired) {
			continue
		}
		if err := s.storage.Delete(grant.Path); err != nil {
			s.logger.Warn("export cleanup delete failed", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
	removed, err := s.storage.Sweep(ttl)
	if err != nil {
		s.logger.Warn("export storage sweep failed", zap.Error(err))
	}
	if len(removed) > 0 {
		s.logger.Info("expired exports removed", zap.Int("files", len(removed)))
	}
}

// ExportWorker renders queued export jobs.
type ExportWorker struct {
	repo      reportJobStore
	reports   trendSource
	storage   fileStorage
	signer    *storage.Signer
	metrics   *MetricsService
	apiPrefix string
	logger    *zap.Logger
	now       func() time.Time
}

// NewExportWorker constructs a worker. Download URLs are built under apiPrefix.
func NewExportWorker(repo reportJobStore, reports trendSource, files fileStorage, signer *storage.Signer, metrics *MetricsService, apiPrefix string, logger *zap.Logger) *ExportWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportWorker{
		repo:      repo,
		reports:   reports,
		storage:   files,
		signer:    signer,
		metrics:   metrics,
		apiPrefix: strings.TrimRight(apiPrefix, "/"),
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Handle renders and stores one export. Errors leave the job queued for a retry.
func (w *ExportWorker) Handle(ctx context.Context, job jobs.Job) error {
	record, err := w.repo.GetByID(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("load export job %s: %w", job.ID, err)
	}
	processing := models.ReportStatusProcessing
	progress := 10
	if err := w.repo.Update(ctx, job.ID, repository.ReportJobUpdate{Status: &processing, Progress: &progress}); err != nil {
		return err
	}

	url, err := w.render(ctx, record)
	if err != nil {
		queued := models.ReportStatusQueued
		reset := 0
		msg := err.Error()
		if updateErr := w.repo.Update(ctx, job.ID, repository.ReportJobUpdate{Status: &queued, Progress: &reset, ErrorMessage: &msg}); updateErr != nil {
			w.logger.Warn("failed to requeue export job", zap.String("job_id", job.ID), zap.Error(updateErr))
		}
		return err
	}

	finished := models.ReportStatusFinished
	progress = 100
	now := w.now()
	clear := ""
	if err := w.repo.Update(ctx, job.ID, repository.ReportJobUpdate{
		Status:       &finished,
		Progress:     &progress,
		ResultURL:    &url,
		ErrorMessage: &clear,
		FinishedAt:   &now,
	}); err != nil {
		return err
	}
	w.metrics.RecordExport(string(record.Format), true)
	w.logger.Info("export finished", zap.String("job_id", job.ID), zap.String("format", string(record.Format)))
	return nil
}

// GiveUp marks a job failed once its retries are spent.
func (w *ExportWorker) GiveUp(job jobs.Job, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	failed := models.ReportStatusFailed
	progress := 100
	now := w.now()
	msg := cause.Error()
	if err := w.repo.Update(ctx, job.ID, repository.ReportJobUpdate{Status: &failed, Progress: &progress, ErrorMessage: &msg, FinishedAt: &now}); err != nil {
		w.logger.Warn("failed to mark export job failed", zap.String("job_id", job.ID), zap.Error(err))
	}
	format := "unknown"
	if record, err := w.repo.GetByID(ctx, job.ID); err == nil {
		format = string(record.Format)
	}
	w.metrics.RecordExport(format, false)
}

func (w *ExportWorker) render(ctx context.Context, job *models.ReportJob) (string, error) {
	renderer, err := export.For(string(job.Format))
	if err != nil {
		return "", err
	}
	report, _, err := w.reports.Trends(ctx, job.Params.Filter)
	if err != nil {
		return "", fmt.Errorf("build trends report: %w", err)
	}
	data, err := renderer.Render(dropsTable(report))
	if err != nil {
		return "", fmt.Errorf("render %s: %w", job.Format, err)
	}
	name := fmt.Sprintf("gpa_drops_%s_%s.%s", shortID(job.ID), w.now().Format("20060102_150405"), renderer.Extension())
	stored, err := w.storage.Save(name, data)
	if err != nil {
		return "", err
	}
	token, _, err := w.signer.Sign(job.ID, stored)
	if err != nil {
		return "", err
	}
	prefix := w.apiPrefix
	if prefix == "" {
		prefix = "/api"
	}
	return prefix + "/export/" + token, nil
}

func dropsTable(report *models.TrendsReport) export.Table {
	table := export.Table{
		Title: fmt.Sprintf("GPA Drops (%d of %d students)", len(report.GPADrops), report.TotalStudents),
		Columns: []export.Column{
			{Key: "student_id", Label: "Student ID", Width: 2.2},
			{Key: "full_name", Label: "Name", Width: 2},
			{Key: "grade_level", Label: "Grade"},
			{Key: "previous_term", Label: "Previous Term", Width: 1.4},
			{Key: "previous_gpa", Label: "Previous GPA"},
			{Key: "latest_term", Label: "Latest Term", Width: 1.4},
			{Key: "latest_gpa", Label: "Latest GPA"},
			{Key: "drop_amount", Label: "Drop"},
		},
		Rows: make([]map[string]string, 0, len(report.GPADrops)),
	}
	for _, d := range report.GPADrops {
		grade := ""
		if d.GradeLevel != nil {
			grade = strconv.Itoa(*d.GradeLevel)
		}
		table.Rows = append(table.Rows, map[string]string{
			"student_id":    d.StudentID,
			"full_name":     d.FullName,
			"grade_level":   grade,
			"previous_term": d.PreviousTerm,
			"previous_gpa":  strconv.FormatFloat(d.PreviousGPA, 'f', 2, 64),
			"latest_term":   d.LatestTerm,
			"latest_gpa":    strconv.FormatFloat(d.LatestGPA, 'f', 2, 64),
			"drop_amount":   strconv.FormatFloat(d.DropAmount, 'f', 2, 64),
		})
	}
	return table
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
