package repository

import (
	"context"
	"fmt"

	"github.com/noah-isme/student-records-api/internal/models"
	"github.com/noah-isme/student-records-api/pkg/datastore"
)

// CollectionError reports a failed write to one child table.
type CollectionError struct {
	Collection models.Collection
	Err        error
}

func (e CollectionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Collection, e.Err)
}

func (e CollectionError) Unwrap() error { return e.Err }

// ProfileRepository reads and writes the child tables of a student profile.
type ProfileRepository struct {
	store *datastore.Store
}

// NewProfileRepository constructs a ProfileRepository.
func NewProfileRepository(store *datastore.Store) *ProfileRepository {
	return &ProfileRepository{store: store}
}

// LoadChildren fills every child collection of profile with one query per table.
// Missing singletons stay nil and missing lists come back empty.
func (r *ProfileRepository) LoadChildren(ctx context.Context, profile *models.StudentProfile) error {
	id := profile.Student.ID
	by := datastore.Eq("student_id", id)

	profile.Courses = []models.Course{}
	profile.Assessments = []models.AssessmentBreakdown{}
	profile.GPAHistory = []models.GPAEntry{}
	profile.Extracurriculars = []models.Extracurricular{}
	profile.CollegeMilestones = []models.CollegeMilestone{}
	profile.NarrativeComments = []models.NarrativeComment{}
	profile.CounselorNotes = []models.StaffNote{}
	profile.BehaviorNotes = []models.StaffNote{}
	profile.SoftSkills = []models.SoftSkill{}

	lists := []struct {
		table models.Collection
		dest  interface{}
		order []string
	}{
		{models.CollectionCourses, &profile.Courses, []string{"year", "semester", "course_name"}},
		{models.CollectionAssessments, &profile.Assessments, []string{"assessment_type"}},
		{models.CollectionGPAHistory, &profile.GPAHistory, []string{"academic_year", "term"}},
		{models.CollectionExtracurriculars, &profile.Extracurriculars, []string{"start_date", "activity_name"}},
		{models.CollectionCollegeMilestones, &profile.CollegeMilestones, []string{"milestone_date", "milestone_name"}},
		{models.CollectionNarrativeComments, &profile.NarrativeComments, nil},
		{models.CollectionCounselorNotes, &profile.CounselorNotes, []string{"note_date"}},
		{models.CollectionBehaviorNotes, &profile.BehaviorNotes, []string{"note_date"}},
		{models.CollectionSoftSkills, &profile.SoftSkills, []string{"skill_name"}},
	}
	for _, l := range lists {
		if err := r.store.Select(ctx, l.dest, string(l.table), datastore.Query{Filters: []datastore.Filter{by}, OrderBy: l.order}); err != nil {
			return err
		}
	}

	var attendance []models.Attendance
	if err := r.store.Select(ctx, &attendance, string(models.CollectionAttendance), datastore.Query{Filters: []datastore.Filter{by}, Limit: 1}); err != nil {
		return err
	}
	if len(attendance) > 0 {
		profile.Attendance = &attendance[0]
	}
	var iep []models.IEPPlan
	if err := r.store.Select(ctx, &iep, string(models.CollectionIEP), datastore.Query{Filters: []datastore.Filter{by}, Limit: 1}); err != nil {
		return err
	}
	if len(iep) > 0 {
		profile.IEP = &iep[0]
	}
	return nil
}

// SaveChildren writes every supplied collection for the student. Lists replace the
// existing rows inside a per-collection transaction; singletons are upserted.
// Each collection is attempted even when an earlier one failed.
func (r *ProfileRepository) SaveChildren(ctx context.Context, studentID string, c models.ProfileChildren) []CollectionError {
	var errs []CollectionError
	record := func(col models.Collection, err error) {
		if err != nil {
			errs = append(errs, CollectionError{Collection: col, Err: err})
		}
	}
	if c.Courses != nil {
		record(models.CollectionCourses, replaceList(ctx, r.store, models.CollectionCourses, studentID, *c.Courses))
	}
	if c.Assessments != nil {
		record(models.CollectionAssessments, replaceList(ctx, r.store, models.CollectionAssessments, studentID, *c.Assessments))
	}
	if c.GPAHistory != nil {
		record(models.CollectionGPAHistory, replaceList(ctx, r.store, models.CollectionGPAHistory, studentID, *c.GPAHistory))
	}
	if c.Attendance != nil {
		record(models.CollectionAttendance, upsertSingleton(ctx, r.store, models.CollectionAttendance, studentID, c.Attendance))
	}
	if c.Extracurriculars != nil {
		record(models.CollectionExtracurriculars, replaceList(ctx, r.store, models.CollectionExtracurriculars, studentID, *c.Extracurriculars))
	}
	if c.IEP != nil {
		record(models.CollectionIEP, upsertSingleton(ctx, r.store, models.CollectionIEP, studentID, c.IEP))
	}
	if c.CollegeMilestones != nil {
		record(models.CollectionCollegeMilestones, replaceList(ctx, r.store, models.CollectionCollegeMilestones, studentID, *c.CollegeMilestones))
	}
	if c.NarrativeComments != nil {
		record(models.CollectionNarrativeComments, replaceList(ctx, r.store, models.CollectionNarrativeComments, studentID, *c.NarrativeComments))
	}
	if c.CounselorNotes != nil {
		record(models.CollectionCounselorNotes, replaceList(ctx, r.store, models.CollectionCounselorNotes, studentID, *c.CounselorNotes))
	}
	if c.BehaviorNotes != nil {
		record(models.CollectionBehaviorNotes, replaceList(ctx, r.store, models.CollectionBehaviorNotes, studentID, *c.BehaviorNotes))
	}
	if c.SoftSkills != nil {
		record(models.CollectionSoftSkills, replaceList(ctx, r.store, models.CollectionSoftSkills, studentID, *c.SoftSkills))
	}
	return errs
}

// UpsertGPAEntry records one GPA value keyed by (student, academic year, term).
func (r *ProfileRepository) UpsertGPAEntry(ctx context.Context, studentID string, entry models.GPAEntry) error {
	entry.Own(studentID)
	return r.store.Upsert(ctx, string(models.CollectionGPAHistory), &entry, "student_id", "academic_year", "term")
}

// AddComment appends one narrative comment.
func (r *ProfileRepository) AddComment(ctx context.Context, studentID string, comment *models.NarrativeComment) error {
	comment.Own(studentID)
	return r.store.Insert(ctx, string(models.CollectionNarrativeComments), comment)
}

// GPAHistory returns a student's entries ordered by academic year then term.
func (r *ProfileRepository) GPAHistory(ctx context.Context, studentID string) ([]models.GPAEntry, error) {
	entries := make([]models.GPAEntry, 0)
	err := r.store.Select(ctx, &entries, string(models.CollectionGPAHistory), datastore.Query{
		Filters: []datastore.Filter{datastore.Eq("student_id", studentID)},
		OrderBy: []string{"academic_year", "term"},
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

type ownable[T any] interface {
	*T
	Own(studentID string)
}

func replaceList[T any, P ownable[T]](ctx context.Context, store *datastore.Store, table models.Collection, studentID string, rows []T) error {
	for i := range rows {
		P(&rows[i]).Own(studentID)
	}
	return store.WithTx(ctx, func(tx *datastore.Store) error {
		if _, err := tx.Delete(ctx, string(table), datastore.Eq("student_id", studentID)); err != nil {
			return err
		}
		return tx.Insert(ctx, string(table), rows)
	})
}

func upsertSingleton[T any, P ownable[T]](ctx context.Context, store *datastore.Store, table models.Collection, studentID string, row P) error {
	row.Own(studentID)
	return store.Upsert(ctx, string(table), row, "student_id")
}
