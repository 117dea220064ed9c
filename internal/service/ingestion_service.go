package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/noah-isme/student-records-api/internal/dto"
	"github.com/noah-isme/student-records-api/internal/models"
	"github.com/noah-isme/student-records-api/internal/repository"
	appErrors "github.com/noah-isme/student-records-api/pkg/errors"
	"github.com/noah-isme/student-records-api/pkg/tabular"
)

// Failure stages reported in ingestion summaries; child failures use the collection name.
const (
	StageParse  = "parse"
	StageLookup = "lookup"
	StageCore   = "core"
)

type studentStore interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.StudentSummary, int, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	FindByStudentID(ctx context.Context, studentID string) (*models.Student, error)
	FindByEmail(ctx context.Context, email string) (*models.Student, error)
	FindByUserID(ctx context.Context, userID string) (*models.Student, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, id string, values map[string]interface{}) (bool, error)
	Delete(ctx context.Context, id string) (bool, error)
}

type profileStore interface {
	LoadChildren(ctx context.Context, profile *models.StudentProfile) error
	SaveChildren(ctx context.Context, studentID string, c models.ProfileChildren) []repository.CollectionError
	UpsertGPAEntry(ctx context.Context, studentID string, entry models.GPAEntry) error
	AddComment(ctx context.Context, studentID string, comment *models.NarrativeComment) error
	GPAHistory(ctx context.Context, studentID string) ([]models.GPAEntry, error)
}

// IngestOptions tunes a batch.
type IngestOptions struct {
	// DryRun resolves every record against the store without writing.
	DryRun bool
}

// IngestionService reconciles uploaded student records with stored profiles.
type IngestionService struct {
	students studentStore
	profiles profileStore
	cache    *CacheService
	metrics  *MetricsService
	parser   recordParser
	logger   *zap.Logger
	now      func() time.Time
}

// NewIngestionService constructs the reconciler. cache and metrics may be nil.
func NewIngestionService(students studentStore, profiles profileStore, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *IngestionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &IngestionService{
		students: students,
		profiles: profiles,
		cache:    cache,
		metrics:  metrics,
		parser:   recordParser{validate: validate},
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ParseFile detects the file type and parses it into records for mode. Header problems
// reject the whole file; row problems are carried on each record.
func (s *IngestionService) ParseFile(filename string, data []byte, mode models.IngestionMode) ([]models.IngestionRecord, error) {
	format, err := tabular.Detect(filename, data)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnsupportedFile.Code, appErrors.ErrUnsupportedFile.Status, "unsupported file type")
	}
	switch mode {
	case models.IngestionModeSimple:
		table, err := s.readTable(format, data)
		if err != nil {
			return nil, err
		}
		if missing := table.HasColumns(SimpleColumns...); len(missing) > 0 {
			return nil, appErrors.Clone(appErrors.ErrBadRequest, "missing required columns: "+strings.Join(missing, ", "))
		}
		records := make([]models.IngestionRecord, 0, len(table.Rows))
		for _, row := range table.Rows {
			records = append(records, s.parser.parseSimpleRow(row))
		}
		return records, nil
	case models.IngestionModeProfile:
		if format == tabular.FormatJSON {
			return s.parseProfileItems(data)
		}
		table, err := s.readTable(format, data)
		if err != nil {
			return nil, err
		}
		records := make([]models.IngestionRecord, 0, len(table.Rows))
		for _, row := range table.Rows {
			records = append(records, s.parser.parseProfileRow(row))
		}
		return records, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrBadRequest, fmt.Sprintf("unknown ingestion mode %q", mode))
	}
}

// IngestFile parses and reconciles an uploaded file.
func (s *IngestionService) IngestFile(ctx context.Context, filename string, data []byte, mode models.IngestionMode, opts IngestOptions) (*models.IngestionSummary, error) {
	records, err := s.ParseFile(filename, data, mode)
	if err != nil {
		return nil, err
	}
	return s.Ingest(ctx, records, mode, opts), nil
}

// Ingest reconciles records one after another. The batch always completes; failures are
// reported per record.
func (s *IngestionService) Ingest(ctx context.Context, records []models.IngestionRecord, mode models.IngestionMode, opts IngestOptions) *models.IngestionSummary {
	summary := &models.IngestionSummary{
		Results: make([]models.RecordResult, 0, len(records)),
		Errors:  make([]models.RecordError, 0),
	}
	start := time.Now()
	for _, rec := range records {
		s.reconcile(ctx, rec, mode, opts, summary)
	}
	if !opts.DryRun && summary.Inserted+summary.Updated > 0 {
		s.cache.Invalidate(ctx, TrendsCachePrefix)
	}
	s.logger.Info("ingestion batch completed",
		zap.String("mode", string(mode)),
		zap.Bool("dry_run", opts.DryRun),
		zap.Int("processed", summary.Processed),
		zap.Int("inserted", summary.Inserted),
		zap.Int("updated", summary.Updated),
		zap.Int("failed", summary.Failed),
		zap.Duration("duration", time.Since(start)),
	)
	return summary
}

// CreateProfile reconciles a single nested profile posted as JSON.
func (s *IngestionService) CreateProfile(ctx context.Context, body []byte) (*dto.CreateStudentResponse, error) {
	rec := s.parser.parseProfileJSON(body, 1)
	if rec.Err != nil {
		return nil, appErrors.Wrap(rec.Err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, rec.Err.Error())
	}
	summary := s.Ingest(ctx, []models.IngestionRecord{rec}, models.IngestionModeProfile, IngestOptions{})
	result := summary.Results[0]
	if result.Action == models.ActionFailed {
		cause := summary.Errors[0]
		if cause.Stage == StageCore && strings.HasPrefix(cause.Reason, errDuplicateStudent.Error()) {
			return nil, appErrors.Clone(appErrors.ErrConflict, cause.Reason)
		}
		return nil, appErrors.Wrap(errors.New(cause.Reason), appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save student profile")
	}
	return &dto.CreateStudentResponse{
		ID:          result.StudentID,
		Action:      result.Action,
		FieldErrors: result.FieldErrors,
		Errors:      summary.Errors,
	}, nil
}

func (s *IngestionService) reconcile(ctx context.Context, rec models.IngestionRecord, mode models.IngestionMode, opts IngestOptions, summary *models.IngestionSummary) {
	summary.Processed++
	result := models.RecordResult{
		Row:         rec.Row,
		Identifier:  rec.Identifier(),
		FieldErrors: rec.FieldErrors,
	}
	if rec.Core.Email != nil {
		result.Email = *rec.Core.Email
	}
	fail := func(stage string, err error) {
		result.Action = models.ActionFailed
		result.Errors = append(result.Errors, err.Error())
		summary.Failed++
		summary.Results = append(summary.Results, result)
		summary.Errors = append(summary.Errors, models.RecordError{Row: rec.Row, Identifier: result.Identifier, Stage: stage, Reason: err.Error()})
		s.metrics.RecordIngestion(string(mode), models.ActionFailed)
	}
	if rec.Err != nil {
		fail(StageParse, rec.Err)
		return
	}

	existing, err := s.match(ctx, rec.Core, mode)
	if err != nil {
		fail(StageLookup, err)
		return
	}

	now := s.now()
	var id string
	if existing != nil {
		id = existing.ID
		result.Action = models.ActionUpdated
		values := patchColumns(withDerivedName(rec.Core, existing))
		if len(values) > 0 && !opts.DryRun {
			values["updated_at"] = now
			if _, err := s.students.Update(ctx, id, values); err != nil {
				fail(StageCore, describeStoreError(err))
				return
			}
		}
	} else {
		student := newStudent(rec.Core, now)
		id = student.ID
		result.Action = models.ActionInserted
		if !opts.DryRun {
			if err := s.students.Create(ctx, student); err != nil {
				fail(StageCore, describeStoreError(err))
				return
			}
		}
	}
	result.StudentID = id

	if !opts.DryRun {
		for _, ce := range s.profiles.SaveChildren(ctx, id, rec.Children) {
			s.childFailure(&result, summary, rec, string(ce.Collection), ce.Err)
		}
		if rec.TermGPA != nil {
			if err := s.profiles.UpsertGPAEntry(ctx, id, *rec.TermGPA); err != nil {
				s.childFailure(&result, summary, rec, string(models.CollectionGPAHistory), err)
			}
		}
	}

	if result.Action == models.ActionInserted {
		summary.Inserted++
	} else {
		summary.Updated++
	}
	summary.Results = append(summary.Results, result)
	s.metrics.RecordIngestion(string(mode), result.Action)
}

func (s *IngestionService) childFailure(result *models.RecordResult, summary *models.IngestionSummary, rec models.IngestionRecord, stage string, err error) {
	s.logger.Warn("child collection write failed",
		zap.Int("row", rec.Row), zap.String("student_id", result.StudentID), zap.String("collection", stage), zap.Error(err))
	result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", stage, err))
	summary.Errors = append(summary.Errors, models.RecordError{Row: rec.Row, Identifier: result.Identifier, Stage: stage, Reason: err.Error()})
}

// match finds the stored profile for a record: explicit student_id first, then
// case-insensitive email. Simple rows match on email only.
func (s *IngestionService) match(ctx context.Context, core models.StudentPatch, mode models.IngestionMode) (*models.Student, error) {
	if mode == models.IngestionModeProfile && core.StudentID != nil && *core.StudentID != "" {
		student, err := s.students.FindByStudentID(ctx, *core.StudentID)
		if err == nil {
			return student, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
	}
	if core.Email == nil || *core.Email == "" {
		return nil, nil
	}
	student, err := s.students.FindByEmail(ctx, *core.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return student, err
}

func (s *IngestionService) readTable(format tabular.Format, data []byte) (*tabular.Table, error) {
	table, err := tabular.Read(format, data)
	if err != nil {
		if errors.Is(err, tabular.ErrUnsupported) {
			return nil, appErrors.Wrap(err, appErrors.ErrUnsupportedFile.Code, appErrors.ErrUnsupportedFile.Status, "unsupported file type")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrBadRequest.Code, appErrors.ErrBadRequest.Status, "could not parse file: "+err.Error())
	}
	return table, nil
}

func (s *IngestionService) parseProfileItems(data []byte) ([]models.IngestionRecord, error) {
	items, err := tabular.ReadJSON(bytes.NewReader(data))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrBadRequest.Code, appErrors.ErrBadRequest.Status, "JSON uploads must be an array of profile objects")
	}
	records := make([]models.IngestionRecord, 0, len(items))
	for i, raw := range items {
		line := i + 1
		if isNestedProfile(raw) {
			records = append(records, s.parser.parseProfileJSON(raw, line))
			continue
		}
		flat, err := tabular.TableFromJSON(append(append([]byte{'['}, raw...), ']'))
		if err != nil || len(flat.Rows) != 1 {
			records = append(records, models.IngestionRecord{Row: line, Err: fmt.Errorf("item %d is not an object", line)})
			continue
		}
		row := flat.Rows[0]
		row.Line = line
		records = append(records, s.parser.parseProfileRow(row))
	}
	return records, nil
}

var errDuplicateStudent = errors.New("a student with the same email or student_id already exists")

// describeStoreError turns unique violations into a readable reason.
func describeStoreError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return fmt.Errorf("%w (%s)", errDuplicateStudent, pqErr.Constraint)
	}
	return err
}

// storeError maps repository failures onto API errors.
func storeError(err error, message string) error {
	switch {
	case errors.Is(err, sql.ErrNoRows), isMalformedID(err):
		return appErrors.Clone(appErrors.ErrNotFound, "student not found")
	case isUniqueViolation(err):
		return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, errDuplicateStudent.Error())
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
	}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// isMalformedID reports a uuid column rejecting its input (invalid_text_representation).
func isMalformedID(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "22P02"
}
