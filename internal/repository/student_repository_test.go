package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/student-records-api/internal/models"
	"github.com/noah-isme/student-records-api/pkg/datastore"
)

func newMockDB(t *testing.T) (*sqlx.DB, *datastore.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	sqlxDB := sqlx.NewDb(db, "postgres")
	return sqlxDB, datastore.New(sqlxDB), mock
}

var studentRowColumns = []string{"id", "student_id", "user_id", "first_name", "last_name", "full_name", "email", "date_of_birth",
	"gender", "phone", "address", "city", "state", "zip", "enrollment_date", "major", "grade_level", "academic_year", "status",
	"gpa", "academic_standing", "advisor_id", "created_at", "updated_at"}

func studentRow(id, email string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(studentRowColumns).AddRow(id, "S-1", nil, "Ada", "Lovelace", "Ada Lovelace", email, nil,
		nil, nil, nil, nil, nil, nil, nil, nil, 11, "2024", "active", 3.5, nil, nil, now, now)
}

func TestStudentRepositoryList(t *testing.T) {
	db, store, mock := newMockDB(t)
	repo := NewStudentRepository(db, store)

	grade := 11
	rows := sqlmock.NewRows([]string{"id", "student_id", "full_name", "email", "grade_level", "academic_year", "status", "gpa", "has_504_plan"}).
		AddRow("s1", "S-1", "Ada Lovelace", "ada@example.com", 11, "2024", "active", 3.5, true)
	mock.ExpectQuery(regexp.QuoteMeta("LEFT JOIN iep_504_plans i ON i.student_id = s.id WHERE 1=1 AND s.grade_level = $1 AND (LOWER(s.full_name) LIKE $2")).
		WithArgs(11, "%ada%").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM students s WHERE 1=1 AND s.grade_level = $1")).
		WithArgs(11, "%ada%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	students, total, err := repo.List(context.Background(), models.StudentFilter{GradeLevel: &grade, Search: "Ada"})
	require.NoError(t, err)
	require.Len(t, students, 1)
	assert.True(t, students[0].Has504Plan)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryFindByEmailIsCaseInsensitive(t *testing.T) {
	db, store, mock := newMockDB(t)
	repo := NewStudentRepository(db, store)

	mock.ExpectQuery(regexp.QuoteMeta("FROM students WHERE LOWER(email) = LOWER($1) LIMIT 1")).
		WithArgs("ADA@example.com").
		WillReturnRows(studentRow("s1", "ada@example.com"))

	student, err := repo.FindByEmail(context.Background(), " ADA@example.com ")
	require.NoError(t, err)
	assert.Equal(t, "s1", student.ID)
	assert.Equal(t, "Ada Lovelace", student.FullName)

	mock.ExpectQuery("LOWER\\(email\\)").WillReturnError(sql.ErrNoRows)
	_, err = repo.FindByEmail(context.Background(), "missing@example.com")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryUpdateAndDeleteReportExistence(t *testing.T) {
	db, store, mock := newMockDB(t)
	repo := NewStudentRepository(db, store)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE students SET phone = $1, updated_at = $2 WHERE id = $3")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	found, err := repo.Update(context.Background(), "missing", map[string]interface{}{"phone": "555", "updated_at": time.Now()})
	require.NoError(t, err)
	assert.False(t, found)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM students WHERE id = $1")).
		WithArgs("s1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	found, err = repo.Delete(context.Background(), "s1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.NoError(t, mock.ExpectationsWereMet())
}
