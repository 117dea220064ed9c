package handler

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/noah-isme/student-records-api/internal/models"
	"github.com/noah-isme/student-records-api/internal/repository"
	"github.com/noah-isme/student-records-api/pkg/identity"
)

type memProvider struct {
	mu        sync.Mutex
	users     map[string]identity.User
	passwords map[string]string
}

func newMemProvider() *memProvider {
	return &memProvider{users: map[string]identity.User{}, passwords: map[string]string{}}
}

func (p *memProvider) SignUp(_ context.Context, email, password string) (*identity.User, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, u := range p.users {
		if strings.EqualFold(u.Email, email) {
			return nil, identity.ErrUserExists
		}
	}
	u := identity.User{ID: fmt.Sprintf("user-%d", len(p.users)+1), Email: email}
	p.users[u.ID] = u
	p.passwords[u.ID] = password
	return &u, nil
}

func (p *memProvider) SignIn(_ context.Context, email, password string) (*identity.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, u := range p.users {
		if strings.EqualFold(u.Email, email) && p.passwords[id] == password {
			return &identity.Session{AccessToken: "token-" + id, TokenType: "bearer", ExpiresIn: 3600, User: u}, nil
		}
	}
	return nil, identity.ErrInvalidCredentials
}

func (p *memProvider) VerifyToken(_ context.Context, token string) (*identity.User, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.users[strings.TrimPrefix(token, "token-")]
	if !ok {
		return nil, identity.ErrInvalidToken
	}
	return &u, nil
}

func (p *memProvider) ListUsers(context.Context) ([]identity.User, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]identity.User, 0, len(p.users))
	for _, u := range p.users {
		out = append(out, u)
	}
	return out, nil
}

func (p *memProvider) CreateUser(ctx context.Context, email, password string) (*identity.User, error) {
	return p.SignUp(ctx, email, password)
}

func (p *memProvider) DeleteUser(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.users[id]; !ok {
		return identity.ErrUserNotFound
	}
	delete(p.users, id)
	return nil
}

type memRoles struct {
	assigned map[string][]string
}

func newMemRoles() *memRoles { return &memRoles{assigned: map[string][]string{}} }

func (r *memRoles) RolesFor(_ context.Context, userID string) ([]string, error) {
	return append([]string{}, r.assigned[userID]...), nil
}

func (r *memRoles) RolesForUsers(_ context.Context, ids []string) (map[string][]string, error) {
	out := map[string][]string{}
	for _, id := range ids {
		if roles, ok := r.assigned[id]; ok {
			out[id] = roles
		}
	}
	return out, nil
}

func (r *memRoles) ListRoles(context.Context) ([]models.Role, error) {
	roles := make([]models.Role, 0, len(models.KnownRoles))
	for i, name := range models.KnownRoles {
		roles = append(roles, models.Role{ID: i + 1, Name: name})
	}
	return roles, nil
}

func (r *memRoles) Assign(_ context.Context, userID string, roles []models.Role) error {
	for _, role := range roles {
		r.assigned[userID] = append(r.assigned[userID], role.Name)
	}
	return nil
}

func (r *memRoles) Replace(_ context.Context, userID string, roles []models.Role) error {
	r.assigned[userID] = nil
	return r.Assign(context.Background(), userID, roles)
}

func (r *memRoles) RemoveAll(_ context.Context, userID string) error {
	delete(r.assigned, userID)
	return nil
}

type memStudents struct {
	rows map[string]*models.Student
}

func (s *memStudents) List(context.Context, models.StudentFilter) ([]models.StudentSummary, int, error) {
	out := make([]models.StudentSummary, 0, len(s.rows))
	for _, st := range s.rows {
		out = append(out, models.StudentSummary{ID: st.ID, FullName: st.FullName, Email: st.Email})
	}
	return out, len(out), nil
}

func (s *memStudents) FindByID(_ context.Context, id string) (*models.Student, error) {
	if st, ok := s.rows[id]; ok {
		cp := *st
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (s *memStudents) FindByStudentID(context.Context, string) (*models.Student, error) {
	return nil, sql.ErrNoRows
}

func (s *memStudents) FindByEmail(_ context.Context, email string) (*models.Student, error) {
	for _, st := range s.rows {
		if st.Email != nil && strings.EqualFold(*st.Email, email) {
			cp := *st
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *memStudents) FindByUserID(context.Context, string) (*models.Student, error) {
	return nil, sql.ErrNoRows
}

func (s *memStudents) Create(_ context.Context, st *models.Student) error {
	cp := *st
	s.rows[st.ID] = &cp
	return nil
}

func (s *memStudents) Update(_ context.Context, id string, values map[string]interface{}) (bool, error) {
	st, ok := s.rows[id]
	if !ok {
		return false, nil
	}
	if v, ok := values["full_name"].(string); ok {
		st.FullName = v
	}
	return true, nil
}

func (s *memStudents) Delete(_ context.Context, id string) (bool, error) {
	if _, ok := s.rows[id]; !ok {
		return false, nil
	}
	delete(s.rows, id)
	return true, nil
}

type memProfiles struct{}

func (memProfiles) LoadChildren(_ context.Context, p *models.StudentProfile) error {
	p.Courses = []models.Course{}
	p.GPAHistory = []models.GPAEntry{}
	return nil
}

func (memProfiles) SaveChildren(context.Context, string, models.ProfileChildren) []repository.CollectionError {
	return nil
}

func (memProfiles) UpsertGPAEntry(context.Context, string, models.GPAEntry) error { return nil }

func (memProfiles) AddComment(_ context.Context, studentID string, c *models.NarrativeComment) error {
	c.Own(studentID)
	return nil
}

func (memProfiles) GPAHistory(context.Context, string) ([]models.GPAEntry, error) {
	return []models.GPAEntry{}, nil
}

type memTrends struct {
	students []models.TrendStudent
	history  []models.GPAEntry
}

func (t memTrends) Students(context.Context, *int) ([]models.TrendStudent, error) {
	return t.students, nil
}

func (t memTrends) GPAHistory(context.Context, []string) ([]models.GPAEntry, error) {
	return t.history, nil
}

func (t memTrends) SoftSkills(context.Context, []string) ([]models.SoftSkill, error) {
	return []models.SoftSkill{}, nil
}

type memAudit struct {
	mu   sync.Mutex
	logs []models.AuditLog
}

func (a *memAudit) Create(_ context.Context, log *models.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, *log)
	return nil
}
