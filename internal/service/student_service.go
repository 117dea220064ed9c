package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/student-records-api/internal/dto"
	"github.com/noah-isme/student-records-api/internal/models"
	appErrors "github.com/noah-isme/student-records-api/pkg/errors"
)

// StudentService reads and writes full student profiles.
type StudentService struct {
	students  studentStore
	profiles  profileStore
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewStudentService constructs a StudentService. cache may be nil.
func NewStudentService(students studentStore, profiles profileStore, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &StudentService{
		students:  students,
		profiles:  profiles,
		cache:     cache,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// List returns student summaries with pagination metadata.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentSummary, *models.Pagination, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	students, total, err := s.students.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	return students, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Get composes the full profile. Students may only read their own.
func (s *StudentService) Get(ctx context.Context, id string, caller *models.Claims) (*models.StudentProfile, error) {
	student, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := canAccess(student, caller); err != nil {
		return nil, err
	}
	return s.compose(ctx, student)
}

// Update merges core fields and replaces supplied collections, then returns the
// refreshed profile.
func (s *StudentService) Update(ctx context.Context, id string, req dto.StudentUpdateRequest, caller *models.Claims) (*models.StudentProfile, error) {
	student, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := canAccess(student, caller); err != nil {
		return nil, err
	}

	patch := req.Patch()
	values := patchColumns(patch)
	children := req.Children()
	if len(values) == 0 && children.Empty() {
		return nil, appErrors.Clone(appErrors.ErrBadRequest, "no fields to update")
	}
	if !caller.HasAnyRole(models.StaffRoles...) {
		if !children.Empty() {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "students may only update phone, address and email")
		}
		for col := range values {
			if _, ok := studentEditableFields[col]; !ok {
				return nil, appErrors.Clone(appErrors.ErrForbidden, "students may only update phone, address and email")
			}
		}
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid update payload")
	}

	if len(values) > 0 {
		values = patchColumns(withDerivedName(patch, student))
		values["updated_at"] = s.now()
		found, err := s.students.Update(ctx, id, values)
		if err != nil {
			return nil, storeError(err, "failed to update student")
		}
		if !found {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
	}
	if failures := s.profiles.SaveChildren(ctx, id, children); len(failures) > 0 {
		names := make([]string, 0, len(failures))
		for _, f := range failures {
			names = append(names, string(f.Collection))
			s.logger.Error("collection update failed", zap.String("student_id", id), zap.String("collection", string(f.Collection)), zap.Error(f.Err))
		}
		s.cache.Invalidate(ctx, TrendsCachePrefix)
		return nil, appErrors.Wrap(failures[0], appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update "+strings.Join(names, ", "))
	}
	s.cache.Invalidate(ctx, TrendsCachePrefix)

	refreshed, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.compose(ctx, refreshed)
}

// Delete removes a profile; children cascade.
func (s *StudentService) Delete(ctx context.Context, id string) error {
	found, err := s.students.Delete(ctx, id)
	if err != nil {
		return storeError(err, "failed to delete student")
	}
	if !found {
		return appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	s.cache.Invalidate(ctx, TrendsCachePrefix)
	s.logger.Info("student deleted", zap.String("student_id", id))
	return nil
}

// AddComment appends a narrative comment to a profile.
func (s *StudentService) AddComment(ctx context.Context, id string, req dto.CommentRequest) (*models.NarrativeComment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid comment payload")
	}
	if _, err := s.load(ctx, id); err != nil {
		return nil, err
	}
	comment := &models.NarrativeComment{
		Subject:     req.Subject,
		Teacher:     req.Teacher,
		Term:        req.Term,
		CommentText: strings.TrimSpace(req.CommentText),
	}
	if err := s.profiles.AddComment(ctx, id, comment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to add comment")
	}
	return comment, nil
}

// GPAHistory returns a profile's GPA entries in chronological order.
func (s *StudentService) GPAHistory(ctx context.Context, id string, caller *models.Claims) ([]models.GPAEntry, error) {
	student, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := canAccess(student, caller); err != nil {
		return nil, err
	}
	entries, err := s.profiles.GPAHistory(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load gpa history")
	}
	sortChronologically(entries)
	return entries, nil
}

func (s *StudentService) load(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.students.FindByID(ctx, id)
	if err != nil {
		return nil, storeError(err, "failed to load student")
	}
	return student, nil
}

func (s *StudentService) compose(ctx context.Context, student *models.Student) (*models.StudentProfile, error) {
	profile := &models.StudentProfile{Student: *student}
	if err := s.profiles.LoadChildren(ctx, profile); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student profile")
	}
	sortChronologically(profile.GPAHistory)
	return profile, nil
}

// canAccess admits staff, or a student reading their own linked profile.
func canAccess(student *models.Student, caller *models.Claims) error {
	if caller.HasAnyRole(models.StaffRoles...) {
		return nil
	}
	if caller != nil && caller.HasRole(models.RoleStudent) && student.UserID != nil && *student.UserID == caller.UserID {
		return nil
	}
	return appErrors.ErrForbidden
}

// sortChronologically orders entries by academic year then term.
func sortChronologically(entries []models.GPAEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].AcademicYear != entries[j].AcademicYear {
			return entries[i].AcademicYear < entries[j].AcademicYear
		}
		return entries[i].Term < entries[j].Term
	})
}
