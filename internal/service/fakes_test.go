package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/noah-isme/student-records-api/internal/models"
	"github.com/noah-isme/student-records-api/internal/repository"
	"github.com/noah-isme/student-records-api/pkg/identity"
	"github.com/noah-isme/student-records-api/pkg/jobs"
)

type fakeStudentStore struct {
	rows      map[string]*models.Student
	profiles  *fakeProfileStore
	createErr error
	lookupErr error
	updates   int
	creates   int
}

func newFakeStudentStore(profiles *fakeProfileStore) *fakeStudentStore {
	return &fakeStudentStore{rows: map[string]*models.Student{}, profiles: profiles}
}

func (f *fakeStudentStore) List(_ context.Context, filter models.StudentFilter) ([]models.StudentSummary, int, error) {
	out := make([]models.StudentSummary, 0, len(f.rows))
	for _, s := range f.rows {
		out = append(out, models.StudentSummary{ID: s.ID, StudentID: s.StudentID, FullName: s.FullName, Email: s.Email})
	}
	return out, len(out), nil
}

func (f *fakeStudentStore) FindByID(_ context.Context, id string) (*models.Student, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	if s, ok := f.rows[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, fmt.Errorf("find student: %w", sql.ErrNoRows)
}

func (f *fakeStudentStore) find(match func(*models.Student) bool) (*models.Student, error) {
	for _, s := range f.rows {
		if match(s) {
			cp := *s
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeStudentStore) FindByStudentID(_ context.Context, studentID string) (*models.Student, error) {
	return f.find(func(s *models.Student) bool { return s.StudentID != nil && *s.StudentID == studentID })
}

func (f *fakeStudentStore) FindByEmail(_ context.Context, email string) (*models.Student, error) {
	return f.find(func(s *models.Student) bool { return s.Email != nil && strings.EqualFold(*s.Email, email) })
}

func (f *fakeStudentStore) FindByUserID(_ context.Context, userID string) (*models.Student, error) {
	return f.find(func(s *models.Student) bool { return s.UserID != nil && *s.UserID == userID })
}

func (f *fakeStudentStore) Create(_ context.Context, student *models.Student) error {
	if f.createErr != nil {
		return f.createErr
	}
	cp := *student
	f.rows[student.ID] = &cp
	f.creates++
	return nil
}

func (f *fakeStudentStore) Update(_ context.Context, id string, values map[string]interface{}) (bool, error) {
	s, ok := f.rows[id]
	if !ok {
		return false, nil
	}
	f.updates++
	for col, v := range values {
		switch col {
		case "email":
			email := v.(string)
			s.Email = &email
		case "phone":
			phone := v.(string)
			s.Phone = &phone
		case "address":
			address := v.(string)
			s.Address = &address
		case "full_name":
			s.FullName = v.(string)
		case "first_name":
			first := v.(string)
			s.FirstName = &first
		case "last_name":
			last := v.(string)
			s.LastName = &last
		case "status":
			status := v.(string)
			s.Status = &status
		case "gpa":
			gpa := v.(float64)
			s.GPA = &gpa
		case "updated_at":
			s.UpdatedAt = v.(time.Time)
		}
	}
	return true, nil
}

func (f *fakeStudentStore) Delete(_ context.Context, id string) (bool, error) {
	if f.lookupErr != nil {
		return false, f.lookupErr
	}
	if _, ok := f.rows[id]; !ok {
		return false, nil
	}
	delete(f.rows, id)
	if f.profiles != nil {
		f.profiles.drop(id)
	}
	return true, nil
}

type fakeProfileStore struct {
	children map[string]*models.StudentProfile
	gpa      map[string]map[string]models.GPAEntry
	failOn   models.Collection
}

func newFakeProfileStore() *fakeProfileStore {
	return &fakeProfileStore{children: map[string]*models.StudentProfile{}, gpa: map[string]map[string]models.GPAEntry{}}
}

func (f *fakeProfileStore) drop(id string) {
	delete(f.children, id)
	delete(f.gpa, id)
}

func (f *fakeProfileStore) get(id string) *models.StudentProfile {
	p, ok := f.children[id]
	if !ok {
		p = &models.StudentProfile{}
		f.children[id] = p
	}
	return p
}

func (f *fakeProfileStore) LoadChildren(_ context.Context, profile *models.StudentProfile) error {
	stored := f.get(profile.Student.ID)
	profile.Courses = append([]models.Course{}, stored.Courses...)
	profile.NarrativeComments = append([]models.NarrativeComment{}, stored.NarrativeComments...)
	profile.SoftSkills = append([]models.SoftSkill{}, stored.SoftSkills...)
	profile.Attendance = stored.Attendance
	profile.IEP = stored.IEP
	history := make([]models.GPAEntry, 0)
	for _, e := range f.gpa[profile.Student.ID] {
		history = append(history, e)
	}
	profile.GPAHistory = history
	return nil
}

func (f *fakeProfileStore) SaveChildren(_ context.Context, studentID string, c models.ProfileChildren) []repository.CollectionError {
	var errs []repository.CollectionError
	p := f.get(studentID)
	if c.Courses != nil {
		if f.failOn == models.CollectionCourses {
			errs = append(errs, repository.CollectionError{Collection: models.CollectionCourses, Err: errors.New("courses table unavailable")})
		} else {
			p.Courses = *c.Courses
		}
	}
	if c.GPAHistory != nil {
		f.gpa[studentID] = map[string]models.GPAEntry{}
		for _, e := range *c.GPAHistory {
			f.gpa[studentID][e.AcademicYear+"|"+e.Term] = e
		}
	}
	if c.Attendance != nil {
		p.Attendance = c.Attendance
	}
	if c.IEP != nil {
		p.IEP = c.IEP
	}
	if c.SoftSkills != nil {
		p.SoftSkills = *c.SoftSkills
	}
	if c.NarrativeComments != nil {
		p.NarrativeComments = *c.NarrativeComments
	}
	return errs
}

func (f *fakeProfileStore) UpsertGPAEntry(_ context.Context, studentID string, entry models.GPAEntry) error {
	if f.gpa[studentID] == nil {
		f.gpa[studentID] = map[string]models.GPAEntry{}
	}
	f.gpa[studentID][entry.AcademicYear+"|"+entry.Term] = entry
	return nil
}

func (f *fakeProfileStore) AddComment(_ context.Context, studentID string, comment *models.NarrativeComment) error {
	comment.Own(studentID)
	p := f.get(studentID)
	p.NarrativeComments = append(p.NarrativeComments, *comment)
	return nil
}

func (f *fakeProfileStore) GPAHistory(_ context.Context, studentID string) ([]models.GPAEntry, error) {
	out := make([]models.GPAEntry, 0)
	for _, e := range f.gpa[studentID] {
		out = append(out, e)
	}
	return out, nil
}

type fakeRoleStore struct {
	roles    []models.Role
	assigned map[string][]string
	err      error
}

func newFakeRoleStore() *fakeRoleStore {
	return &fakeRoleStore{
		roles: []models.Role{
			{ID: 1, Name: models.RoleAdmin},
			{ID: 2, Name: models.RoleTeacher},
			{ID: 3, Name: models.RoleCounselor},
			{ID: 4, Name: models.RoleStudent},
		},
		assigned: map[string][]string{},
	}
}

func (f *fakeRoleStore) RolesFor(_ context.Context, userID string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return append([]string{}, f.assigned[userID]...), nil
}

func (f *fakeRoleStore) RolesForUsers(_ context.Context, userIDs []string) (map[string][]string, error) {
	out := map[string][]string{}
	for _, id := range userIDs {
		if roles, ok := f.assigned[id]; ok {
			out[id] = roles
		}
	}
	return out, nil
}

func (f *fakeRoleStore) ListRoles(context.Context) ([]models.Role, error) {
	return f.roles, nil
}

func (f *fakeRoleStore) Assign(_ context.Context, userID string, roles []models.Role) error {
	for _, r := range roles {
		found := false
		for _, existing := range f.assigned[userID] {
			if existing == r.Name {
				found = true
			}
		}
		if !found {
			f.assigned[userID] = append(f.assigned[userID], r.Name)
		}
	}
	return nil
}

func (f *fakeRoleStore) Replace(_ context.Context, userID string, roles []models.Role) error {
	if f.err != nil {
		return f.err
	}
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, r.Name)
	}
	f.assigned[userID] = names
	return nil
}

func (f *fakeRoleStore) RemoveAll(_ context.Context, userID string) error {
	delete(f.assigned, userID)
	return nil
}

type fakeProvider struct {
	users     map[string]identity.User
	passwords map[string]string
	tokens    map[string]string
	listErr   error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{users: map[string]identity.User{}, passwords: map[string]string{}, tokens: map[string]string{}}
}

func (f *fakeProvider) SignUp(_ context.Context, email, password string) (*identity.User, error) {
	for _, u := range f.users {
		if strings.EqualFold(u.Email, email) {
			return nil, fmt.Errorf("%w: %s", identity.ErrUserExists, email)
		}
	}
	if len(password) < 6 {
		return nil, identity.ErrWeakPassword
	}
	user := identity.User{ID: fmt.Sprintf("user-%d", len(f.users)+1), Email: email}
	f.users[user.ID] = user
	f.passwords[user.ID] = password
	return &user, nil
}

func (f *fakeProvider) SignIn(_ context.Context, email, password string) (*identity.Session, error) {
	for id, u := range f.users {
		if strings.EqualFold(u.Email, email) && f.passwords[id] == password {
			token := "token-" + id
			f.tokens[token] = id
			return &identity.Session{AccessToken: token, RefreshToken: "refresh", TokenType: "bearer", ExpiresIn: 3600, User: u}, nil
		}
	}
	return nil, identity.ErrInvalidCredentials
}

func (f *fakeProvider) VerifyToken(_ context.Context, token string) (*identity.User, error) {
	id, ok := f.tokens[token]
	if !ok {
		return nil, identity.ErrInvalidToken
	}
	u := f.users[id]
	return &u, nil
}

func (f *fakeProvider) ListUsers(context.Context) ([]identity.User, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]identity.User, 0, len(f.users))
	for _, u := range f.users {
		out = append(out, u)
	}
	return out, nil
}

func (f *fakeProvider) CreateUser(ctx context.Context, email, password string) (*identity.User, error) {
	return f.SignUp(ctx, email, password)
}

func (f *fakeProvider) DeleteUser(_ context.Context, id string) error {
	if _, ok := f.users[id]; !ok {
		return identity.ErrUserNotFound
	}
	delete(f.users, id)
	return nil
}

type fakeTrendStore struct {
	students []models.TrendStudent
	history  []models.GPAEntry
	skills   []models.SoftSkill
	calls    int
}

func (f *fakeTrendStore) Students(_ context.Context, gradeLevel *int) ([]models.TrendStudent, error) {
	f.calls++
	out := make([]models.TrendStudent, 0)
	for _, s := range f.students {
		if gradeLevel == nil || (s.GradeLevel != nil && *s.GradeLevel == *gradeLevel) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeTrendStore) GPAHistory(context.Context, []string) ([]models.GPAEntry, error) {
	return f.history, nil
}

func (f *fakeTrendStore) SoftSkills(context.Context, []string) ([]models.SoftSkill, error) {
	return f.skills, nil
}

type fakeJobStore struct {
	mu   sync.Mutex
	jobs map[string]*models.ReportJob
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: map[string]*models.ReportJob{}}
}

func (f *fakeJobStore) Create(_ context.Context, job *models.ReportJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if job.ID == "" {
		job.ID = fmt.Sprintf("job-%04d", len(f.jobs)+1)
	}
	job.CreatedAt = time.Now().UTC()
	cp := *job
	f.jobs[job.ID] = &cp
	return nil
}

func (f *fakeJobStore) GetByID(_ context.Context, id string) (*models.ReportJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return nil, fmt.Errorf("get report job: %w", sql.ErrNoRows)
	}
	cp := *job
	return &cp, nil
}

func (f *fakeJobStore) Update(_ context.Context, id string, u repository.ReportJobUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return sql.ErrNoRows
	}
	if u.Status != nil {
		job.Status = *u.Status
	}
	if u.Progress != nil {
		job.Progress = *u.Progress
	}
	if u.ResultURL != nil {
		url := *u.ResultURL
		job.ResultURL = &url
	}
	if u.ErrorMessage != nil {
		msg := *u.ErrorMessage
		job.ErrorMessage = &msg
	}
	if u.FinishedAt != nil {
		at := *u.FinishedAt
		job.FinishedAt = &at
	}
	return nil
}

func (f *fakeJobStore) ListByStatus(_ context.Context, status models.ReportStatus, _ int) ([]models.ReportJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.ReportJob, 0)
	for _, j := range f.jobs {
		if j.Status == status {
			out = append(out, *j)
		}
	}
	return out, nil
}

func (f *fakeJobStore) ListFinishedBefore(_ context.Context, cutoff time.Time, _ int) ([]models.ReportJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.ReportJob, 0)
	for _, j := range f.jobs {
		if j.Status == models.ReportStatusFinished && j.FinishedAt != nil && j.FinishedAt.Before(cutoff) {
			out = append(out, *j)
		}
	}
	return out, nil
}

type fakeQueue struct {
	enqueued []jobs.Job
	err      error
}

func (f *fakeQueue) Enqueue(job jobs.Job) error {
	if f.err != nil {
		return f.err
	}
	f.enqueued = append(f.enqueued, job)
	return nil
}

func strPtr(s string) *string { return &s }

func intPtr(i int) *int { return &i }

func floatPtr(f float64) *float64 { return &f }
