package models

// IngestionMode selects which record shape an upload carries.
type IngestionMode string

const (
	// IngestionModeSimple carries flat rows with the fixed required columns and a single GPA entry.
	IngestionModeSimple IngestionMode = "simple"
	// IngestionModeProfile carries full nested profiles.
	IngestionModeProfile IngestionMode = "profile"
)

// Ingestion actions reported per record.
const (
	ActionInserted = "inserted"
	ActionUpdated  = "updated"
	ActionFailed   = "failed"
	ActionSkipped  = "skipped"
)

// FieldError records a field that could not be parsed and was treated as absent.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// IngestionRecord is one parsed upload row. Nil pointers mean the field was absent.
type IngestionRecord struct {
	Row      int
	Core     StudentPatch
	Children ProfileChildren
	// TermGPA is upserted on (student, academic year, term) instead of replacing the history.
	TermGPA     *GPAEntry
	FieldErrors []FieldError
	// Err marks the row as unusable; it is reported without touching the store.
	Err error
}

// Identifier returns the natural key used in reports for the record.
func (r IngestionRecord) Identifier() string {
	switch {
	case r.Core.StudentID != nil && *r.Core.StudentID != "":
		return *r.Core.StudentID
	case r.Core.Email != nil:
		return *r.Core.Email
	case r.Core.FullName != nil:
		return *r.Core.FullName
	default:
		return ""
	}
}

// StudentPatch carries core profile fields to set. Nil fields are left untouched.
type StudentPatch struct {
	StudentID        *string
	UserID           *string
	FirstName        *string
	LastName         *string
	FullName         *string
	Email            *string
	DateOfBirth      *Date
	Gender           *string
	Phone            *string
	Address          *string
	City             *string
	State            *string
	Zip              *string
	EnrollmentDate   *Date
	Major            *string
	GradeLevel       *int
	AcademicYear     *string
	Status           *string
	GPA              *float64
	AcademicStanding *string
	AdvisorID        *string
}

// RecordResult is the outcome of one ingested record.
type RecordResult struct {
	Row         int          `json:"row"`
	StudentID   string       `json:"student_id,omitempty"`
	Email       string       `json:"email,omitempty"`
	Identifier  string       `json:"identifier,omitempty"`
	Action      string       `json:"action"`
	Errors      []string     `json:"errors,omitempty"`
	FieldErrors []FieldError `json:"field_errors,omitempty"`
}

// RecordError is a human readable failure tied to a record and the stage that failed.
type RecordError struct {
	Row        int    `json:"row"`
	Identifier string `json:"identifier,omitempty"`
	Stage      string `json:"stage"`
	Reason     string `json:"reason"`
}

// IngestionSummary aggregates a batch.
type IngestionSummary struct {
	Processed int            `json:"processed"`
	Inserted  int            `json:"inserted"`
	Updated   int            `json:"updated"`
	Failed    int            `json:"failed"`
	Results   []RecordResult `json:"results"`
	Errors    []RecordError  `json:"errors"`
}
