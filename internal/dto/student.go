package dto

import (
	"encoding/json"

	"github.com/noah-isme/student-records-api/internal/models"
)

// StudentInfoPayload carries core profile fields. Absent fields stay nil.
type StudentInfoPayload struct {
	StudentID        *string      `json:"student_id,omitempty"`
	UserID           *string      `json:"user_id,omitempty" validate:"omitempty,uuid"`
	FirstName        *string      `json:"first_name,omitempty"`
	LastName         *string      `json:"last_name,omitempty"`
	FullName         *string      `json:"full_name,omitempty"`
	Email            *string      `json:"email,omitempty" validate:"omitempty,email"`
	DateOfBirth      *models.Date `json:"date_of_birth,omitempty" swaggertype:"string" example:"2008-04-12"`
	Gender           *string      `json:"gender,omitempty"`
	Phone            *string      `json:"phone,omitempty"`
	Address          *string      `json:"address,omitempty"`
	City             *string      `json:"city,omitempty"`
	State            *string      `json:"state,omitempty"`
	Zip              *string      `json:"zip,omitempty"`
	EnrollmentDate   *models.Date `json:"enrollment_date,omitempty" swaggertype:"string" example:"2022-09-01"`
	Major            *string      `json:"major,omitempty"`
	GradeLevel       *int         `json:"grade_level,omitempty" validate:"omitempty,gte=0,lte=13"`
	AcademicYear     *string      `json:"academic_year,omitempty"`
	Status           *string      `json:"status,omitempty"`
	GPA              *float64     `json:"gpa,omitempty" validate:"omitempty,gte=0,lte=4"`
	AcademicStanding *string      `json:"academic_standing,omitempty"`
	AdvisorID        *string      `json:"advisor_id,omitempty"`
}

// Patch converts the payload into a core field patch.
func (p StudentInfoPayload) Patch() models.StudentPatch {
	return models.StudentPatch{
		StudentID:        p.StudentID,
		UserID:           p.UserID,
		FirstName:        p.FirstName,
		LastName:         p.LastName,
		FullName:         p.FullName,
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
	}
}

// ProfilePayload is the structured half of an ingested profile. Collections stay raw
// so a malformed one can be dropped without rejecting the whole record.
type ProfilePayload struct {
	StudentInfo                 json.RawMessage `json:"student_info" swaggertype:"object"`
	Courses                     json.RawMessage `json:"courses,omitempty" swaggertype:"array,object"`
	AssessmentBreakdownByType   json.RawMessage `json:"assessment_breakdown_by_type,omitempty" swaggertype:"array,object"`
	GPAHistory                  json.RawMessage `json:"gpa_history,omitempty" swaggertype:"array,object"`
	Attendance                  json.RawMessage `json:"attendance,omitempty" swaggertype:"object"`
	ExtracurricularActivities   json.RawMessage `json:"extracurricular_activities,omitempty" swaggertype:"array,object"`
	IEP504PlanInformation       json.RawMessage `json:"iep_504_plan_information,omitempty" swaggertype:"object"`
	CollegeCounselingMilestones json.RawMessage `json:"college_counseling_milestones,omitempty" swaggertype:"array,object"`
}

// UnstructuredPayload holds the free-text collections of an ingested profile.
type UnstructuredPayload struct {
	NarrativeTeacherComments     json.RawMessage `json:"narrative_teacher_comments,omitempty" swaggertype:"array,object"`
	AdvisoryCounselorNotes       json.RawMessage `json:"advisory_counselor_notes,omitempty" swaggertype:"array,object"`
	BehaviorSocialEmotionalNotes json.RawMessage `json:"behavior_social_emotional_notes,omitempty" swaggertype:"array,object"`
}

// StudentIngestionPayload is one nested profile as uploaded or posted.
type StudentIngestionPayload struct {
	StudentProfile      ProfilePayload      `json:"student_profile"`
	UnstructuredData    UnstructuredPayload `json:"unstructured_data"`
	SoftSkillInferences json.RawMessage     `json:"soft_skill_inferences,omitempty" swaggertype:"array,object"`
}

// CreateStudentResponse reports the outcome of POST /students.
type CreateStudentResponse struct {
	ID          string               `json:"id"`
	Action      string               `json:"action"`
	FieldErrors []models.FieldError  `json:"field_errors,omitempty"`
	Errors      []models.RecordError `json:"errors,omitempty"`
}

// StudentUpdateRequest is a PATCH body. Scalars merge when present; a present list
// replaces the stored collection; null or absent leaves it untouched.
type StudentUpdateRequest struct {
	StudentInfoPayload
	Courses                      *[]models.Course              `json:"courses,omitempty" validate:"omitempty,dive"`
	AssessmentBreakdownByType    *[]models.AssessmentBreakdown `json:"assessment_breakdown_by_type,omitempty" validate:"omitempty,dive"`
	GPAHistory                   *[]models.GPAEntry            `json:"gpa_history,omitempty" validate:"omitempty,dive"`
	Attendance                   *models.Attendance            `json:"attendance,omitempty"`
	ExtracurricularActivities    *[]models.Extracurricular     `json:"extracurricular_activities,omitempty" validate:"omitempty,dive"`
	IEP504PlanInformation        *models.IEPPlan               `json:"iep_504_plan_information,omitempty"`
	CollegeCounselingMilestones  *[]models.CollegeMilestone    `json:"college_counseling_milestones,omitempty" validate:"omitempty,dive"`
	NarrativeTeacherComments     *[]models.NarrativeComment    `json:"narrative_teacher_comments,omitempty" validate:"omitempty,dive"`
	AdvisoryCounselorNotes       *[]models.StaffNote           `json:"advisory_counselor_notes,omitempty" validate:"omitempty,dive"`
	BehaviorSocialEmotionalNotes *[]models.StaffNote           `json:"behavior_social_emotional_notes,omitempty" validate:"omitempty,dive"`
	SoftSkillInferences          *[]models.SoftSkill           `json:"soft_skill_inferences,omitempty" validate:"omitempty,dive"`
}

// Children collects the supplied collections.
func (r StudentUpdateRequest) Children() models.ProfileChildren {
	return models.ProfileChildren{
		Courses:           r.Courses,
		Assessments:       r.AssessmentBreakdownByType,
		GPAHistory:        r.GPAHistory,
		Attendance:        r.Attendance,
		Extracurriculars:  r.ExtracurricularActivities,
		IEP:               r.IEP504PlanInformation,
		CollegeMilestones: r.CollegeCounselingMilestones,
		NarrativeComments: r.NarrativeTeacherComments,
		CounselorNotes:    r.AdvisoryCounselorNotes,
		BehaviorNotes:     r.BehaviorSocialEmotionalNotes,
		SoftSkills:        r.SoftSkillInferences,
	}
}

// CommentRequest appends a narrative comment.
type CommentRequest struct {
	Subject     *string `json:"subject,omitempty"`
	Teacher     *string `json:"teacher,omitempty"`
	Term        *string `json:"term,omitempty"`
	CommentText string  `json:"comment_text" validate:"required"`
}
