package models

import "time"

// Student is the core profile row. Optional columns are pointers so absent stays absent.
type Student struct {
	ID               string    `db:"id" json:"id"`
	StudentID        *string   `db:"student_id" json:"student_id,omitempty"`
	UserID           *string   `db:"user_id" json:"user_id,omitempty"`
	FirstName        *string   `db:"first_name" json:"first_name,omitempty"`
	LastName         *string   `db:"last_name" json:"last_name,omitempty"`
	FullName         string    `db:"full_name" json:"full_name"`
	Email            *string   `db:"email" json:"email,omitempty"`
	DateOfBirth      *Date     `db:"date_of_birth" json:"date_of_birth,omitempty"`
	Gender           *string   `db:"gender" json:"gender,omitempty"`
	Phone            *string   `db:"phone" json:"phone,omitempty"`
	Address          *string   `db:"address" json:"address,omitempty"`
	City             *string   `db:"city" json:"city,omitempty"`
	State            *string   `db:"state" json:"state,omitempty"`
	Zip              *string   `db:"zip" json:"zip,omitempty"`
	EnrollmentDate   *Date     `db:"enrollment_date" json:"enrollment_date,omitempty"`
	Major            *string   `db:"major" json:"major,omitempty"`
	GradeLevel       *int      `db:"grade_level" json:"grade_level,omitempty"`
	AcademicYear     *string   `db:"academic_year" json:"academic_year,omitempty"`
	Status           *string   `db:"status" json:"status,omitempty"`
	GPA              *float64  `db:"gpa" json:"gpa,omitempty"`
	AcademicStanding *string   `db:"academic_standing" json:"academic_standing,omitempty"`
	AdvisorID        *string   `db:"advisor_id" json:"advisor_id,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// StudentSummary is the list view row.
type StudentSummary struct {
	ID           string   `db:"id" json:"id"`
	StudentID    *string  `db:"student_id" json:"student_id,omitempty"`
	FullName     string   `db:"full_name" json:"full_name"`
	Email        *string  `db:"email" json:"email,omitempty"`
	GradeLevel   *int     `db:"grade_level" json:"grade_level,omitempty"`
	AcademicYear *string  `db:"academic_year" json:"academic_year,omitempty"`
	Status       *string  `db:"status" json:"status,omitempty"`
	GPA          *float64 `db:"gpa" json:"gpa,omitempty"`
	Has504Plan   bool     `db:"has_504_plan" json:"has_504_plan"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search     string
	GradeLevel *int
	Status     string
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}
