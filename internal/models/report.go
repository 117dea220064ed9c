package models

// Histogram bucket labels in display order.
const (
	BucketLow     = "0.0-1.0"
	BucketLowMid  = "1.1-2.0"
	BucketHighMid = "2.1-3.0"
	BucketHigh    = "3.1-4.0"
)

// GPABuckets lists histogram labels in order.
var GPABuckets = []string{BucketLow, BucketLowMid, BucketHighMid, BucketHigh}

// GPADropThreshold is the drop (previous minus latest) that must be exceeded to flag a student.
const GPADropThreshold = 0.3

// TrendsFilter narrows the student set feeding the trend report.
type TrendsFilter struct {
	GradeLevel *int     `json:"grade_level,omitempty"`
	MinGPA     *float64 `json:"min_gpa,omitempty"`
	MaxGPA     *float64 `json:"max_gpa,omitempty"`
}

// TrendStudent is the subset of core fields the aggregator reads.
type TrendStudent struct {
	ID           string  `db:"id"`
	FullName     string  `db:"full_name"`
	GradeLevel   *int    `db:"grade_level"`
	AcademicYear *string `db:"academic_year"`
	Status       *string `db:"status"`
}

// HistogramBucket counts students whose latest GPA falls in a range.
type HistogramBucket struct {
	Range string `json:"range"`
	Count int    `json:"count"`
}

// SkillCount counts inference records for a skill.
type SkillCount struct {
	SkillName string `json:"skill_name"`
	Count     int    `json:"count"`
}

// GPADrop flags a student whose GPA fell between the last two terms.
type GPADrop struct {
	StudentID    string  `json:"student_id"`
	FullName     string  `json:"full_name"`
	GradeLevel   *int    `json:"grade_level,omitempty"`
	AcademicYear *string `json:"academic_year,omitempty"`
	Status       *string `json:"status,omitempty"`
	PreviousTerm string  `json:"previous_term"`
	PreviousGPA  float64 `json:"previous_gpa"`
	LatestTerm   string  `json:"latest_term"`
	LatestGPA    float64 `json:"latest_gpa"`
	DropAmount   float64 `json:"drop_amount"`
}

// TrendsReport is the aggregated trend view.
type TrendsReport struct {
	TotalStudents     int               `json:"total_students"`
	GPAHistogram      []HistogramBucket `json:"gpa_histogram"`
	SoftSkillCoverage []SkillCount      `json:"soft_skill_coverage"`
	GPADrops          []GPADrop         `json:"gpa_drops_students"`
}
