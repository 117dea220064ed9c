package models

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Collection names a child table owned by a student profile.
type Collection string

const (
	CollectionCourses           Collection = "courses"
	CollectionAssessments       Collection = "assessment_breakdowns"
	CollectionGPAHistory        Collection = "gpa_history"
	CollectionAttendance        Collection = "attendance"
	CollectionExtracurriculars  Collection = "extracurricular_activities"
	CollectionIEP               Collection = "iep_504_plans"
	CollectionCollegeMilestones Collection = "college_milestones"
	CollectionNarrativeComments Collection = "narrative_comments"
	CollectionCounselorNotes    Collection = "counselor_notes"
	CollectionBehaviorNotes     Collection = "behavior_notes"
	CollectionSoftSkills        Collection = "soft_skills"
)

// ChildCollections lists every child table in the order profiles are read and written.
var ChildCollections = []Collection{
	CollectionCourses,
	CollectionAssessments,
	CollectionGPAHistory,
	CollectionAttendance,
	CollectionExtracurriculars,
	CollectionIEP,
	CollectionCollegeMilestones,
	CollectionNarrativeComments,
	CollectionCounselorNotes,
	CollectionBehaviorNotes,
	CollectionSoftSkills,
}

// ChildKey links a child row to its owning student.
type ChildKey struct {
	ID        string `db:"id" json:"id,omitempty"`
	StudentID string `db:"student_id" json:"-"`
}

// Own assigns the row to a student under a fresh primary key.
func (k *ChildKey) Own(studentID string) {
	k.ID = uuid.NewString()
	k.StudentID = studentID
}

// Course is one enrolled course.
type Course struct {
	ChildKey
	CourseCode *string  `db:"course_code" json:"course_id,omitempty"`
	CourseName string   `db:"course_name" json:"course_name" validate:"required"`
	Credits    *float64 `db:"credits" json:"credits,omitempty" validate:"omitempty,gte=0"`
	Grade      *string  `db:"grade" json:"grade,omitempty"`
	Semester   *string  `db:"semester" json:"semester,omitempty"`
	Year       *int     `db:"year" json:"year,omitempty"`
}

// AssessmentBreakdown summarises performance for one assessment type.
type AssessmentBreakdown struct {
	ChildKey
	Type              string  `db:"assessment_type" json:"type" validate:"required"`
	PerformanceMetric *string `db:"performance_metric" json:"performance_metric,omitempty"`
	Description       *string `db:"description" json:"description,omitempty"`
}

// GPAEntry is a GPA value for one academic year and term.
type GPAEntry struct {
	ChildKey
	AcademicYear string  `db:"academic_year" json:"academic_year" validate:"required"`
	Term         string  `db:"term" json:"term" validate:"required"`
	GPAValue     float64 `db:"gpa_value" json:"gpa_value" validate:"gte=0,lte=4"`
}

// Label renders the entry's term as "<academic_year> <term>".
func (g GPAEntry) Label() string {
	return g.AcademicYear + " " + g.Term
}

// Attendance is the per-student attendance summary.
type Attendance struct {
	ChildKey
	Excused    int            `db:"excused"`
	Unexcused  int            `db:"unexcused"`
	TardyCount int            `db:"tardy_count"`
	TardyDates pq.StringArray `db:"tardy_dates"`
}

type attendanceJSON struct {
	Absences struct {
		Excused   int `json:"excused"`
		Unexcused int `json:"unexcused"`
	} `json:"absences"`
	Tardies struct {
		Count int      `json:"count"`
		Dates []string `json:"dates"`
	} `json:"tardies"`
}

// MarshalJSON renders the nested absences/tardies shape.
func (a Attendance) MarshalJSON() ([]byte, error) {
	var out attendanceJSON
	out.Absences.Excused = a.Excused
	out.Absences.Unexcused = a.Unexcused
	out.Tardies.Count = a.TardyCount
	out.Tardies.Dates = []string(a.TardyDates)
	if out.Tardies.Dates == nil {
		out.Tardies.Dates = []string{}
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts the nested absences/tardies shape.
func (a *Attendance) UnmarshalJSON(data []byte) error {
	var in attendanceJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	a.Excused = in.Absences.Excused
	a.Unexcused = in.Absences.Unexcused
	a.TardyCount = in.Tardies.Count
	a.TardyDates = pq.StringArray(in.Tardies.Dates)
	return nil
}

// Extracurricular is one activity.
type Extracurricular struct {
	ChildKey
	ActivityName string  `db:"activity_name" json:"activity_name" validate:"required"`
	RoleTitle    *string `db:"role_title" json:"role_title,omitempty"`
	StartDate    *Date   `db:"start_date" json:"start_date,omitempty"`
	EndDate      *Date   `db:"end_date" json:"end_date,omitempty"`
	IsOngoing    bool    `db:"is_ongoing" json:"is_ongoing"`
	IsLeadership bool    `db:"is_leadership" json:"is_leadership"`
}

// IEPPlan is the IEP/504 plan singleton.
type IEPPlan struct {
	ChildKey
	HasPlan        bool           `db:"has_plan" json:"has_plan"`
	PlanType       *string        `db:"plan_type" json:"plan_type,omitempty"`
	Accommodations pq.StringArray `db:"accommodations" json:"accommodations"`
	LastUpdated    *Date          `db:"last_updated" json:"last_updated_date,omitempty"`
}

// CollegeMilestone tracks a college counseling step.
type CollegeMilestone struct {
	ChildKey
	MilestoneName string  `db:"milestone_name" json:"milestone_name" validate:"required"`
	Status        *string `db:"status" json:"status,omitempty"`
	Date          *Date   `db:"milestone_date" json:"date,omitempty"`
}

// NarrativeComment is a free-text teacher comment.
type NarrativeComment struct {
	ChildKey
	Subject     *string `db:"subject" json:"subject,omitempty"`
	Teacher     *string `db:"teacher" json:"teacher,omitempty"`
	Term        *string `db:"term" json:"term,omitempty"`
	CommentText string  `db:"comment_text" json:"comment_text" validate:"required"`
}

// StaffNote is a counselor or behavior note.
type StaffNote struct {
	ChildKey
	StaffName *string `db:"staff_name" json:"staff_name,omitempty"`
	Role      *string `db:"role" json:"role,omitempty"`
	Date      *Date   `db:"note_date" json:"date,omitempty"`
	NoteText  string  `db:"note_text" json:"note_text" validate:"required"`
}

// SoftSkill is a soft-skill inference drawn from narrative data.
type SoftSkill struct {
	ChildKey
	SkillName       string  `db:"skill_name" json:"skill_name" validate:"required"`
	SourcePhrase    *string `db:"source_phrase" json:"source_phrase,omitempty"`
	Explanation     *string `db:"explanation" json:"explanation,omitempty"`
	ConfidenceLevel *string `db:"confidence_level" json:"confidence_level,omitempty"`
}

// StudentProfile is the core row composed with every child collection.
type StudentProfile struct {
	Student           Student               `json:"student_info"`
	Courses           []Course              `json:"courses"`
	Assessments       []AssessmentBreakdown `json:"assessment_breakdown_by_type"`
	GPAHistory        []GPAEntry            `json:"gpa_history"`
	Attendance        *Attendance           `json:"attendance"`
	Extracurriculars  []Extracurricular     `json:"extracurricular_activities"`
	IEP               *IEPPlan              `json:"iep_504_plan_information"`
	CollegeMilestones []CollegeMilestone    `json:"college_counseling_milestones"`
	NarrativeComments []NarrativeComment    `json:"narrative_teacher_comments"`
	CounselorNotes    []StaffNote           `json:"advisory_counselor_notes"`
	BehaviorNotes     []StaffNote           `json:"behavior_social_emotional_notes"`
	SoftSkills        []SoftSkill           `json:"soft_skill_inferences"`
}

// ProfileChildren carries child collections to write. A nil field is left untouched.
type ProfileChildren struct {
	Courses           *[]Course
	Assessments       *[]AssessmentBreakdown
	GPAHistory        *[]GPAEntry
	Attendance        *Attendance
	Extracurriculars  *[]Extracurricular
	IEP               *IEPPlan
	CollegeMilestones *[]CollegeMilestone
	NarrativeComments *[]NarrativeComment
	CounselorNotes    *[]StaffNote
	BehaviorNotes     *[]StaffNote
	SoftSkills        *[]SoftSkill
}

// Empty reports whether no collection is supplied.
func (c ProfileChildren) Empty() bool {
	return c.Courses == nil && c.Assessments == nil && c.GPAHistory == nil && c.Attendance == nil &&
		c.Extracurriculars == nil && c.IEP == nil && c.CollegeMilestones == nil && c.NarrativeComments == nil &&
		c.CounselorNotes == nil && c.BehaviorNotes == nil && c.SoftSkills == nil
}
