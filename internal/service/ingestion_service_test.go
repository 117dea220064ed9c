package service

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/student-records-api/internal/models"
	"github.com/noah-isme/student-records-api/internal/repository"
	appErrors "github.com/noah-isme/student-records-api/pkg/errors"
)

const simpleCSV = `first_name,last_name,date_of_birth,enrollment_date,major,email,gpa,semester,year
Ada,Lovelace,2007-12-10,2022-09-01,Mathematics,ada@example.com,3.9,Fall,2023
Alan,Turing,2007-06-23,2022-09-01,Computing,alan@example.com,3.4,Fall,2023
`

func newTestIngestion() (*IngestionService, *fakeStudentStore, *fakeProfileStore) {
	profiles := newFakeProfileStore()
	students := newFakeStudentStore(profiles)
	return NewIngestionService(students, profiles, nil, nil, nil, nil), students, profiles
}

func TestSimpleUploadTwiceUpdatesInsteadOfInserting(t *testing.T) {
	svc, students, profiles := newTestIngestion()
	ctx := context.Background()

	first, err := svc.IngestFile(ctx, "students.csv", []byte(simpleCSV), models.IngestionModeSimple, IngestOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, first.Processed)
	assert.Equal(t, 2, first.Inserted)
	assert.Equal(t, 0, first.Failed)

	second, err := svc.IngestFile(ctx, "students.csv", []byte(simpleCSV), models.IngestionModeSimple, IngestOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, second.Inserted)
	assert.Equal(t, 2, second.Updated)
	assert.Len(t, students.rows, 2)

	ada, err := students.FindByEmail(ctx, "ADA@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", ada.FullName)
	history, _ := profiles.GPAHistory(ctx, ada.ID)
	require.Len(t, history, 1)
	assert.Equal(t, "2023", history[0].AcademicYear)
	assert.Equal(t, "Fall", history[0].Term)
	assert.InDelta(t, 3.9, history[0].GPAValue, 1e-9)
}

func TestSimpleUploadMissingColumnRejectsFile(t *testing.T) {
	svc, _, _ := newTestIngestion()
	data := "first_name,last_name,email\nAda,Lovelace,ada@example.com\n"
	_, err := svc.IngestFile(context.Background(), "students.csv", []byte(data), models.IngestionModeSimple, IngestOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrBadRequest)
	assert.Contains(t, err.Error(), "gpa")
}

func TestSimpleUploadBadRowFailsAlone(t *testing.T) {
	svc, students, _ := newTestIngestion()
	data := `first_name,last_name,date_of_birth,enrollment_date,major,email,gpa,semester,year
Ada,Lovelace,2007-12-10,2022-09-01,Mathematics,ada@example.com,4.7,Fall,2023
Alan,Turing,not-a-date,2022-09-01,Computing,alan@example.com,3.4,Fall,2023
Grace,Hopper,2007-01-02,2022-09-01,Navy,grace@example.com,3.1,Fall,twenty
Edsger,Dijkstra,2007-05-11,2022-09-01,Computing,edsger@example.com,3.0,Spring,2024
`
	summary, err := svc.IngestFile(context.Background(), "students.csv", []byte(data), models.IngestionModeSimple, IngestOptions{})
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Processed)
	assert.Equal(t, 1, summary.Inserted)
	assert.Equal(t, 3, summary.Failed)
	require.Len(t, summary.Errors, 3)
	for _, e := range summary.Errors {
		assert.Equal(t, StageParse, e.Stage)
	}
	assert.Equal(t, 2, summary.Errors[0].Row)
	assert.Len(t, students.rows, 1)
}

func TestNonFiniteGPAIsRejectedAtParse(t *testing.T) {
	svc, students, _ := newTestIngestion()
	ctx := context.Background()
	data := `first_name,last_name,date_of_birth,enrollment_date,major,email,gpa,semester,year
Ada,Lovelace,2007-12-10,2022-09-01,Mathematics,ada@example.com,NaN,Fall,2023
Alan,Turing,2007-06-23,2022-09-01,Computing,alan@example.com,+Inf,Fall,2023
`
	summary, err := svc.IngestFile(ctx, "students.csv", []byte(data), models.IngestionModeSimple, IngestOptions{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Inserted)
	assert.Equal(t, 2, summary.Failed)
	require.Len(t, summary.Errors, 2)
	for _, e := range summary.Errors {
		assert.Equal(t, StageParse, e.Stage)
		assert.Contains(t, e.Reason, "gpa")
	}

	profile := `student_id,full_name,email,gpa
S-9,Grace Hopper,grace@example.com,nan
`
	summary, err = svc.IngestFile(ctx, "profiles.csv", []byte(profile), models.IngestionModeProfile, IngestOptions{})
	require.NoError(t, err)
	require.Len(t, summary.Results, 1)
	require.Len(t, summary.Results[0].FieldErrors, 1)
	assert.Equal(t, "gpa", summary.Results[0].FieldErrors[0].Field)
	for _, st := range students.rows {
		assert.Nil(t, st.GPA)
	}
}

func TestUnsupportedFileType(t *testing.T) {
	svc, _, _ := newTestIngestion()
	_, err := svc.IngestFile(context.Background(), "students.txt", []byte("hello"), models.IngestionModeSimple, IngestOptions{})
	assert.ErrorIs(t, err, appErrors.ErrUnsupportedFile)

	_, err = svc.IngestFile(context.Background(), "students.xlsx", []byte("plainly not a workbook"), models.IngestionModeProfile, IngestOptions{})
	assert.ErrorIs(t, err, appErrors.ErrUnsupportedFile)
}

func TestProfileJSONKeepsGoodCollectionsAndReportsBadOnes(t *testing.T) {
	svc, students, profiles := newTestIngestion()
	data := `[
  {
    "student_profile": {
      "student_info": {"student_id": "S-100", "full_name": "Ada Lovelace", "email": "ada@example.com", "grade_level": 11, "date_of_birth": "not a date"},
      "courses": [{"course_id": "MATH-1", "course_name": "Calculus", "credits": 4}],
      "gpa_history": "not-an-array",
      "attendance": {"absences": {"excused": 2, "unexcused": 1}, "tardies": {"count": 3, "dates": ["2024-01-02"]}},
      "iep_504_plan_information": {"has_plan": true, "plan_type": "504", "accommodations": ["extra time"]}
    },
    "unstructured_data": {"narrative_teacher_comments": [{"comment_text": "Curious and precise."}]},
    "soft_skill_inferences": [{"skill_name": "Curiosity"}]
  },
  {"student_profile": {"student_info": {"email": "noname@example.com"}}}
]`
	summary, err := svc.IngestFile(context.Background(), "profiles.json", []byte(data), models.IngestionModeProfile, IngestOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 1, summary.Inserted)
	assert.Equal(t, 1, summary.Failed)

	ok := summary.Results[0]
	assert.Equal(t, models.ActionInserted, ok.Action)
	fields := map[string]bool{}
	for _, fe := range ok.FieldErrors {
		fields[fe.Field] = true
	}
	assert.True(t, fields["gpa_history"])
	assert.True(t, fields["date_of_birth"])

	stored := students.rows[ok.StudentID]
	require.NotNil(t, stored)
	assert.Nil(t, stored.DateOfBirth)
	require.NotNil(t, stored.GradeLevel)
	assert.Equal(t, 11, *stored.GradeLevel)

	children := profiles.children[ok.StudentID]
	require.Len(t, children.Courses, 1)
	assert.Equal(t, "Calculus", children.Courses[0].CourseName)
	require.NotNil(t, children.Attendance)
	assert.Equal(t, 3, children.Attendance.TardyCount)
	assert.Equal(t, pq.StringArray{"extra time"}, children.IEP.Accommodations)
	assert.Len(t, children.SoftSkills, 1)
	assert.Empty(t, profiles.gpa[ok.StudentID])

	assert.Equal(t, models.ActionFailed, summary.Results[1].Action)
	assert.Equal(t, StageParse, summary.Errors[0].Stage)
}

func TestProfileMatchesByStudentIDThenEmail(t *testing.T) {
	svc, students, _ := newTestIngestion()
	ctx := context.Background()
	existing := &models.Student{ID: "s1", StudentID: strPtr("S-1"), FullName: "Old Name", Email: strPtr("old@example.com")}
	require.NoError(t, students.Create(ctx, existing))

	data := `student_id,full_name,email,status
S-2,Other Person,OLD@example.com,active
S-1,New Name,new@example.com,active
`
	summary, err := svc.IngestFile(ctx, "profiles.csv", []byte(data), models.IngestionModeProfile, IngestOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Updated)
	assert.Equal(t, "s1", summary.Results[0].StudentID)
	assert.Equal(t, "s1", summary.Results[1].StudentID)
	assert.Len(t, students.rows, 1)
}

func TestChildFailureDoesNotRollBackProfile(t *testing.T) {
	svc, students, profiles := newTestIngestion()
	profiles.failOn = models.CollectionCourses
	data := `[{"student_profile": {"student_info": {"full_name": "Ada Lovelace"}, "courses": [{"course_name": "Calculus"}]}}]`

	summary, err := svc.IngestFile(context.Background(), "p.json", []byte(data), models.IngestionModeProfile, IngestOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Inserted)
	assert.Equal(t, 0, summary.Failed)
	require.Len(t, summary.Errors, 1)
	assert.Equal(t, string(models.CollectionCourses), summary.Errors[0].Stage)
	assert.Len(t, students.rows, 1)
}

func TestDuplicateInsertFailsCoreStage(t *testing.T) {
	svc, students, _ := newTestIngestion()
	students.createErr = &pq.Error{Code: "23505", Constraint: "students_email_key"}

	_, err := svc.CreateProfile(context.Background(), []byte(`{"student_profile": {"student_info": {"full_name": "Ada Lovelace"}}}`))
	assert.ErrorIs(t, err, appErrors.ErrConflict)
}

func TestCreateProfileRequiresName(t *testing.T) {
	svc, _, _ := newTestIngestion()
	_, err := svc.CreateProfile(context.Background(), []byte(`{"student_profile": {"student_info": {"first_name": "Ada"}}}`))
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	resp, err := svc.CreateProfile(context.Background(), []byte(`{"student_profile": {"student_info": {"first_name": "Ada", "last_name": "Lovelace"}}}`))
	require.NoError(t, err)
	assert.Equal(t, models.ActionInserted, resp.Action)
	assert.NotEmpty(t, resp.ID)
}

func TestDryRunDoesNotWrite(t *testing.T) {
	svc, students, profiles := newTestIngestion()
	summary, err := svc.IngestFile(context.Background(), "students.csv", []byte(simpleCSV), models.IngestionModeSimple, IngestOptions{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Inserted)
	assert.Empty(t, students.rows)
	assert.Empty(t, profiles.gpa)
}

func TestIngestionInvalidatesTrendCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewCacheService(repository.NewCacheRepository(client), nil, 0, nil)
	require.NoError(t, mr.Set(TrendsCachePrefix+"grade=all:min=any:max=any", `{}`))
	require.NoError(t, mr.Set("unrelated", "1"))

	profiles := newFakeProfileStore()
	svc := NewIngestionService(newFakeStudentStore(profiles), profiles, cache, nil, nil, nil)
	_, err := svc.IngestFile(context.Background(), "students.csv", []byte(simpleCSV), models.IngestionModeSimple, IngestOptions{})
	require.NoError(t, err)

	assert.False(t, mr.Exists(TrendsCachePrefix+"grade=all:min=any:max=any"))
	assert.True(t, mr.Exists("unrelated"))
}
