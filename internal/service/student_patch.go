package service

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/student-records-api/internal/models"
)

// patchColumns returns the column values a patch sets, keyed by column name.
func patchColumns(p models.StudentPatch) map[string]interface{} {
	values := make(map[string]interface{})
	setString := func(col string, v *string) {
		if v != nil {
			values[col] = *v
		}
	}
	setString("student_id", p.StudentID)
	setString("user_id", p.UserID)
	setString("first_name", p.FirstName)
	setString("last_name", p.LastName)
	setString("full_name", p.FullName)
	setString("email", p.Email)
	setString("gender", p.Gender)
	setString("phone", p.Phone)
	setString("address", p.Address)
	setString("city", p.City)
	setString("state", p.State)
	setString("zip", p.Zip)
	setString("major", p.Major)
	setString("academic_year", p.AcademicYear)
	setString("status", p.Status)
	setString("academic_standing", p.AcademicStanding)
	setString("advisor_id", p.AdvisorID)
	if p.DateOfBirth != nil {
		values["date_of_birth"] = *p.DateOfBirth
	}
	if p.EnrollmentDate != nil {
		values["enrollment_date"] = *p.EnrollmentDate
	}
	if p.GradeLevel != nil {
		values["grade_level"] = *p.GradeLevel
	}
	if p.GPA != nil {
		values["gpa"] = *p.GPA
	}
	return values
}

// withDerivedName fills full_name from first and last name when only those changed.
func withDerivedName(p models.StudentPatch, current *models.Student) models.StudentPatch {
	if p.FullName != nil && strings.TrimSpace(*p.FullName) != "" {
		return p
	}
	if p.FirstName == nil && p.LastName == nil {
		return p
	}
	first, last := p.FirstName, p.LastName
	if current != nil {
		if first == nil {
			first = current.FirstName
		}
		if last == nil {
			last = current.LastName
		}
	}
	if name := joinName(first, last); name != "" {
		p.FullName = &name
	}
	return p
}

func joinName(first, last *string) string {
	parts := make([]string, 0, 2)
	for _, part := range []*string{first, last} {
		if part != nil && strings.TrimSpace(*part) != "" {
			parts = append(parts, strings.TrimSpace(*part))
		}
	}
	return strings.Join(parts, " ")
}

// hasName reports whether the patch identifies the student by name.
func hasName(p models.StudentPatch) bool {
	if p.FullName != nil && strings.TrimSpace(*p.FullName) != "" {
		return true
	}
	return p.FirstName != nil && strings.TrimSpace(*p.FirstName) != "" &&
		p.LastName != nil && strings.TrimSpace(*p.LastName) != ""
}

// newStudent builds a core row from a patch under a fresh id.
func newStudent(p models.StudentPatch, now time.Time) *models.Student {
	p = withDerivedName(p, nil)
	s := &models.Student{
		ID:               uuid.NewString(),
		StudentID:        p.StudentID,
		UserID:           p.UserID,
		FirstName:        p.FirstName,
		LastName:         p.LastName,
		Email:            p.Email,
		DateOfBirth:      p.DateOfBirth,
		Gender:           p.Gender,
		Phone:            p.Phone,
		Address:          p.Address,
		City:             p.City,
		State:            p.State,
		Zip:              p.Zip,
		EnrollmentDate:   p.EnrollmentDate,
		Major:            p.Major,
		GradeLevel:       p.GradeLevel,
		AcademicYear:     p.AcademicYear,
		Status:           p.Status,
		GPA:              p.GPA,
		AcademicStanding: p.AcademicStanding,
		AdvisorID:        p.AdvisorID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if p.FullName != nil {
		s.FullName = strings.TrimSpace(*p.FullName)
	}
	return s
}

// studentEditableFields are the core fields a student may change on their own profile.
var studentEditableFields = map[string]struct{}{
	"phone":   {},
	"address": {},
	"email":   {},
}
