package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/student-records-api/internal/models"
	"github.com/noah-isme/student-records-api/pkg/datastore"
)

const studentColumns = `id, student_id, user_id, first_name, last_name, full_name, email, date_of_birth, gender, phone,
address, city, state, zip, enrollment_date, major, grade_level, academic_year, status, gpa, academic_standing,
advisor_id, created_at, updated_at`

// StudentRepository manages the core students table.
type StudentRepository struct {
	db    *sqlx.DB
	store *datastore.Store
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB, store *datastore.Store) *StudentRepository {
	return &StudentRepository{db: db, store: store}
}

// List returns summary rows matching the filter together with the total count.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentSummary, int, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}
	if filter.GradeLevel != nil {
		args = append(args, *filter.GradeLevel)
		conditions = append(conditions, fmt.Sprintf("s.grade_level = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("s.status = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		conditions = append(conditions, fmt.Sprintf("(LOWER(s.full_name) LIKE $%[1]d OR LOWER(s.email) LIKE $%[1]d OR LOWER(s.student_id) LIKE $%[1]d)", len(args)))
	}
	where := " WHERE " + strings.Join(conditions, " AND ")

	allowedSorts := map[string]string{
		"full_name":   "s.full_name",
		"grade_level": "s.grade_level",
		"gpa":         "s.gpa",
		"created_at":  "s.created_at",
	}
	column, ok := allowedSorts[filter.SortBy]
	if !ok {
		column = "s.full_name"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}
	page, size := pageBounds(filter.Page, filter.PageSize)

	query := fmt.Sprintf(`SELECT s.id, s.student_id, s.full_name, s.email, s.grade_level, s.academic_year, s.status, s.gpa,
        COALESCE(i.has_plan, false) AS has_504_plan
        FROM students s LEFT JOIN iep_504_plans i ON i.student_id = s.id%s ORDER BY %s %s, s.id LIMIT %d OFFSET %d`,
		where, column, order, size, (page-1)*size)

	students := make([]models.StudentSummary, 0)
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM students s"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// FindByID returns the core row; sql.ErrNoRows is wrapped when missing.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	var student models.Student
	if err := r.store.Get(ctx, &student, "students", datastore.Eq("id", id)); err != nil {
		return nil, err
	}
	return &student, nil
}

// FindByStudentID looks a profile up by its external student id.
func (r *StudentRepository) FindByStudentID(ctx context.Context, studentID string) (*models.Student, error) {
	var student models.Student
	if err := r.store.Get(ctx, &student, "students", datastore.Eq("student_id", studentID)); err != nil {
		return nil, err
	}
	return &student, nil
}

// FindByEmail matches case-insensitively.
func (r *StudentRepository) FindByEmail(ctx context.Context, email string) (*models.Student, error) {
	query := "SELECT " + studentColumns + " FROM students WHERE LOWER(email) = LOWER($1) LIMIT 1"
	var student models.Student
	if err := sqlx.GetContext(ctx, r.store.Ext(), &student, query, strings.TrimSpace(email)); err != nil {
		return nil, fmt.Errorf("find student by email: %w", err)
	}
	return &student, nil
}

// FindByUserID returns the profile owned by an identity-provider user.
func (r *StudentRepository) FindByUserID(ctx context.Context, userID string) (*models.Student, error) {
	var student models.Student
	if err := r.store.Get(ctx, &student, "students", datastore.Eq("user_id", userID)); err != nil {
		return nil, err
	}
	return &student, nil
}

// Create inserts a core row. ID and timestamps must already be set.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	return r.store.Insert(ctx, "students", student)
}

// Update sets the given columns and reports whether the row exists.
func (r *StudentRepository) Update(ctx context.Context, id string, values map[string]interface{}) (bool, error) {
	affected, err := r.store.Update(ctx, "students", values, datastore.Eq("id", id))
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// Delete removes the core row; child tables cascade.
func (r *StudentRepository) Delete(ctx context.Context, id string) (bool, error) {
	affected, err := r.store.Delete(ctx, "students", datastore.Eq("id", id))
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func pageBounds(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return page, size
}
