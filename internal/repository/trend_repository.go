package repository

import (
	"context"

	"github.com/noah-isme/student-records-api/internal/models"
	"github.com/noah-isme/student-records-api/pkg/datastore"
)

// TrendRepository loads the inputs of the trend report.
type TrendRepository struct {
	store *datastore.Store
}

// NewTrendRepository constructs a TrendRepository.
func NewTrendRepository(store *datastore.Store) *TrendRepository {
	return &TrendRepository{store: store}
}

// Students returns the students in scope, optionally restricted to one grade level.
func (r *TrendRepository) Students(ctx context.Context, gradeLevel *int) ([]models.TrendStudent, error) {
	q := datastore.Query{OrderBy: []string{"full_name", "id"}}
	if gradeLevel != nil {
		q.Filters = append(q.Filters, datastore.Eq("grade_level", *gradeLevel))
	}
	students := make([]models.TrendStudent, 0)
	if err := r.store.Select(ctx, &students, "students", q); err != nil {
		return nil, err
	}
	return students, nil
}

// GPAHistory returns every entry belonging to the given students in one query.
func (r *TrendRepository) GPAHistory(ctx context.Context, studentIDs []string) ([]models.GPAEntry, error) {
	entries := make([]models.GPAEntry, 0)
	if len(studentIDs) == 0 {
		return entries, nil
	}
	err := r.store.Select(ctx, &entries, string(models.CollectionGPAHistory), datastore.Query{
		Filters: []datastore.Filter{datastore.In("student_id", studentIDs)},
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// SoftSkills returns every inference belonging to the given students in one query.
func (r *TrendRepository) SoftSkills(ctx context.Context, studentIDs []string) ([]models.SoftSkill, error) {
	skills := make([]models.SoftSkill, 0)
	if len(studentIDs) == 0 {
		return skills, nil
	}
	err := r.store.Select(ctx, &skills, string(models.CollectionSoftSkills), datastore.Query{
		Filters: []datastore.Filter{datastore.In("student_id", studentIDs)},
	})
	if err != nil {
		return nil, err
	}
	return skills, nil
}
