package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"

	"github.com/noah-isme/student-records-api/internal/dto"
	"github.com/noah-isme/student-records-api/internal/models"
	"github.com/noah-isme/student-records-api/pkg/tabular"
)

// SimpleColumns must all be present in a simple-mode header.
var SimpleColumns = []string{
	"first_name", "last_name", "date_of_birth", "enrollment_date", "major", "email", "gpa", "semester", "year",
}

// recordParser turns uploaded rows into ingestion records.
type recordParser struct {
	validate *validator.Validate
}

// parseSimpleRow reads a fixed-column row. Any missing or invalid value fails the row.
func (p recordParser) parseSimpleRow(row tabular.Row) models.IngestionRecord {
	rec := models.IngestionRecord{Row: row.Line}
	values := make(map[string]string, len(SimpleColumns))
	var missing []string
	for _, col := range SimpleColumns {
		v, ok := row.Get(col)
		if !ok {
			missing = append(missing, col)
			continue
		}
		values[col] = v
	}
	if email, ok := values["email"]; ok {
		rec.Core.Email = &email
	}
	if len(missing) > 0 {
		rec.Err = fmt.Errorf("missing values: %s", strings.Join(missing, ", "))
		return rec
	}

	first, last, major := values["first_name"], values["last_name"], values["major"]
	rec.Core.FirstName = &first
	rec.Core.LastName = &last
	rec.Core.Major = &major
	fullName := first + " " + last
	rec.Core.FullName = &fullName

	if err := p.validate.Var(values["email"], "email"); err != nil {
		rec.Err = fmt.Errorf("invalid email %q", values["email"])
		return rec
	}
	dob, err := models.ParseDate(values["date_of_birth"])
	if err != nil {
		rec.Err = fmt.Errorf("invalid date_of_birth: %w", err)
		return rec
	}
	enrolled, err := models.ParseDate(values["enrollment_date"])
	if err != nil {
		rec.Err = fmt.Errorf("invalid enrollment_date: %w", err)
		return rec
	}
	gpa, err := parseGPA(values["gpa"])
	if err != nil {
		rec.Err = err
		return rec
	}
	year, err := strconv.Atoi(values["year"])
	if err != nil || year <= 0 {
		rec.Err = fmt.Errorf("invalid year %q", values["year"])
		return rec
	}
	rec.Core.DateOfBirth = &dob
	rec.Core.EnrollmentDate = &enrolled
	rec.Core.GPA = &gpa
	rec.TermGPA = &models.GPAEntry{
		AcademicYear: strconv.Itoa(year),
		Term:         values["semester"],
		GPAValue:     gpa,
	}
	return rec
}

// parseProfileRow reads a flat profile row. Unparseable fields are dropped with a FieldError.
func (p recordParser) parseProfileRow(row tabular.Row) models.IngestionRecord {
	rec := models.IngestionRecord{Row: row.Line}
	rec.Core = p.scalarFields(row, &rec)

	column := func(name string) []byte {
		v, _ := row.Get(name)
		return []byte(v)
	}
	c := &rec.Children
	c.Courses = decodeList[models.Course](p.validate, "courses", column("courses"), &rec)
	c.GPAHistory = decodeList[models.GPAEntry](p.validate, "gpa_history", column("gpa_history"), &rec)
	c.Assessments = decodeList[models.AssessmentBreakdown](p.validate, "assessment_breakdown_by_type", column("assessment_breakdown_by_type"), &rec)
	c.Extracurriculars = decodeList[models.Extracurricular](p.validate, "extracurricular_activities", column("extracurricular_activities"), &rec)
	c.CollegeMilestones = decodeList[models.CollegeMilestone](p.validate, "college_counseling_milestones", column("college_counseling_milestones"), &rec)
	c.NarrativeComments = decodeList[models.NarrativeComment](p.validate, "narrative_teacher_comments", column("narrative_teacher_comments"), &rec)
	c.CounselorNotes = decodeList[models.StaffNote](p.validate, "advisory_counselor_notes", column("advisory_counselor_notes"), &rec)
	c.BehaviorNotes = decodeList[models.StaffNote](p.validate, "behavior_social_emotional_notes", column("behavior_social_emotional_notes"), &rec)
	c.SoftSkills = decodeList[models.SoftSkill](p.validate, "soft_skill_inferences", column("soft_skill_inferences"), &rec)
	c.Attendance = attendanceColumns(row, &rec)
	c.IEP = iepColumns(row, &rec)

	if !hasName(rec.Core) {
		rec.Err = fmt.Errorf("a name is required: full_name, or first_name and last_name")
	}
	return rec
}

// parseProfileJSON reads one nested profile object.
func (p recordParser) parseProfileJSON(raw json.RawMessage, line int) models.IngestionRecord {
	rec := models.IngestionRecord{Row: line}
	var payload dto.StudentIngestionPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		rec.Err = fmt.Errorf("malformed profile: %w", err)
		return rec
	}
	info := tabular.Row{Line: line, Values: map[string]string{}}
	if trimmed := bytes.TrimSpace(payload.StudentProfile.StudentInfo); len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		flat, err := tabular.TableFromJSON(append(append([]byte{'['}, trimmed...), ']'))
		if err != nil || len(flat.Rows) != 1 {
			rec.Err = fmt.Errorf("student_info must be an object")
			return rec
		}
		info = flat.Rows[0]
		info.Line = line
	}
	rec.Core = p.scalarFields(info, &rec)

	prof, notes := payload.StudentProfile, payload.UnstructuredData
	c := &rec.Children
	c.Courses = decodeList[models.Course](p.validate, "courses", prof.Courses, &rec)
	c.Assessments = decodeList[models.AssessmentBreakdown](p.validate, "assessment_breakdown_by_type", prof.AssessmentBreakdownByType, &rec)
	c.GPAHistory = decodeList[models.GPAEntry](p.validate, "gpa_history", prof.GPAHistory, &rec)
	c.Extracurriculars = decodeList[models.Extracurricular](p.validate, "extracurricular_activities", prof.ExtracurricularActivities, &rec)
	c.CollegeMilestones = decodeList[models.CollegeMilestone](p.validate, "college_counseling_milestones", prof.CollegeCounselingMilestones, &rec)
	c.NarrativeComments = decodeList[models.NarrativeComment](p.validate, "narrative_teacher_comments", notes.NarrativeTeacherComments, &rec)
	c.CounselorNotes = decodeList[models.StaffNote](p.validate, "advisory_counselor_notes", notes.AdvisoryCounselorNotes, &rec)
	c.BehaviorNotes = decodeList[models.StaffNote](p.validate, "behavior_social_emotional_notes", notes.BehaviorSocialEmotionalNotes, &rec)
	c.SoftSkills = decodeList[models.SoftSkill](p.validate, "soft_skill_inferences", payload.SoftSkillInferences, &rec)
	c.Attendance = decodeObject[models.Attendance]("attendance", prof.Attendance, &rec)
	c.IEP = decodeObject[models.IEPPlan]("iep_504_plan_information", prof.IEP504PlanInformation, &rec)

	if !hasName(rec.Core) {
		rec.Err = fmt.Errorf("a name is required: full_name, or first_name and last_name")
	}
	return rec
}

// isNestedProfile reports whether a JSON upload item uses the nested profile shape.
func isNestedProfile(raw json.RawMessage) bool {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return false
	}
	_, ok := probe["student_profile"]
	return ok
}

func (p recordParser) scalarFields(row tabular.Row, rec *models.IngestionRecord) models.StudentPatch {
	var patch models.StudentPatch
	text := func(col string) *string {
		if v, ok := row.Get(col); ok {
			return &v
		}
		return nil
	}
	fail := func(col, reason string) {
		rec.FieldErrors = append(rec.FieldErrors, models.FieldError{Field: col, Reason: reason})
	}

	patch.StudentID = text("student_id")
	patch.FirstName = text("first_name")
	patch.LastName = text("last_name")
	patch.FullName = text("full_name")
	patch.Gender = text("gender")
	patch.Phone = text("phone")
	patch.Address = text("address")
	patch.City = text("city")
	patch.State = text("state")
	patch.Zip = text("zip")
	patch.Major = text("major")
	patch.AcademicYear = text("academic_year")
	patch.Status = text("status")
	patch.AcademicStanding = text("academic_standing")
	patch.AdvisorID = text("advisor_id")

	if v := text("email"); v != nil {
		if err := p.validate.Var(*v, "email"); err != nil {
			fail("email", "not a valid email address")
		} else {
			patch.Email = v
		}
	}
	if v := text("user_id"); v != nil {
		if err := p.validate.Var(*v, "uuid"); err != nil {
			fail("user_id", "not a valid uuid")
		} else {
			patch.UserID = v
		}
	}
	for _, col := range []string{"date_of_birth", "enrollment_date"} {
		v := text(col)
		if v == nil {
			continue
		}
		d, err := models.ParseDate(*v)
		if err != nil {
			fail(col, err.Error())
			continue
		}
		if col == "date_of_birth" {
			patch.DateOfBirth = &d
		} else {
			patch.EnrollmentDate = &d
		}
	}
	if v := text("grade_level"); v != nil {
		n, err := strconv.Atoi(*v)
		if err != nil {
			fail("grade_level", fmt.Sprintf("not an integer: %q", *v))
		} else {
			patch.GradeLevel = &n
		}
	}
	if v := text("gpa"); v != nil {
		gpa, err := parseGPA(*v)
		if err != nil {
			fail("gpa", err.Error())
		} else {
			patch.GPA = &gpa
		}
	}
	return patch
}

func attendanceColumns(row tabular.Row, rec *models.IngestionRecord) *models.Attendance {
	var att models.Attendance
	present := false
	counts := []struct {
		col  string
		dest *int
	}{
		{"absences_excused", &att.Excused},
		{"absences_unexcused", &att.Unexcused},
		{"tardies_count", &att.TardyCount},
	}
	for _, count := range counts {
		col, dest := count.col, count.dest
		v, ok := row.Get(col)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			rec.FieldErrors = append(rec.FieldErrors, models.FieldError{Field: col, Reason: fmt.Sprintf("not a count: %q", v)})
			continue
		}
		*dest = n
		present = true
	}
	if v, ok := row.Get("tardies_dates"); ok {
		var dates []string
		if err := json.Unmarshal([]byte(v), &dates); err != nil {
			rec.FieldErrors = append(rec.FieldErrors, models.FieldError{Field: "tardies_dates", Reason: "malformed JSON array"})
		} else {
			att.TardyDates = pq.StringArray(dates)
			present = true
		}
	}
	if !present {
		return nil
	}
	return &att
}

func iepColumns(row tabular.Row, rec *models.IngestionRecord) *models.IEPPlan {
	var plan models.IEPPlan
	present := false
	if v, ok := row.Get("iep_has_plan"); ok {
		b, err := strconv.ParseBool(strings.ToLower(v))
		if err != nil {
			rec.FieldErrors = append(rec.FieldErrors, models.FieldError{Field: "iep_has_plan", Reason: fmt.Sprintf("not a boolean: %q", v)})
		} else {
			plan.HasPlan = b
			present = true
		}
	}
	if v, ok := row.Get("iep_plan_type"); ok {
		plan.PlanType = &v
		present = true
	}
	if v, ok := row.Get("iep_accommodations"); ok {
		var items []string
		if err := json.Unmarshal([]byte(v), &items); err != nil {
			rec.FieldErrors = append(rec.FieldErrors, models.FieldError{Field: "iep_accommodations", Reason: "malformed JSON array"})
		} else {
			plan.Accommodations = pq.StringArray(items)
			present = true
		}
	}
	if v, ok := row.Get("iep_last_updated_date"); ok {
		d, err := models.ParseDate(v)
		if err != nil {
			rec.FieldErrors = append(rec.FieldErrors, models.FieldError{Field: "iep_last_updated_date", Reason: err.Error()})
		} else {
			plan.LastUpdated = &d
			present = true
		}
	}
	if !present {
		return nil
	}
	return &plan
}

// decodeList decodes a JSON array collection. Empty input leaves it absent; malformed
// or invalid items drop the whole collection with a FieldError.
func decodeList[T any](validate *validator.Validate, field string, raw []byte, rec *models.IngestionRecord) *[]T {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	var items []T
	if err := json.Unmarshal(trimmed, &items); err != nil {
		rec.FieldErrors = append(rec.FieldErrors, models.FieldError{Field: field, Reason: "malformed JSON: " + err.Error()})
		return nil
	}
	if len(items) == 0 {
		return nil
	}
	for i := range items {
		if err := validate.Struct(items[i]); err != nil {
			rec.FieldErrors = append(rec.FieldErrors, models.FieldError{Field: field, Reason: fmt.Sprintf("item %d: %v", i+1, err)})
			return nil
		}
	}
	return &items
}

func decodeObject[T any](field string, raw []byte, rec *models.IngestionRecord) *T {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("{}")) {
		return nil
	}
	var out T
	if err := json.Unmarshal(trimmed, &out); err != nil {
		rec.FieldErrors = append(rec.FieldErrors, models.FieldError{Field: field, Reason: "malformed JSON: " + err.Error()})
		return nil
	}
	return &out
}

func parseGPA(raw string) (float64, error) {
	gpa, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(gpa) || math.IsInf(gpa, 0) {
		return 0, fmt.Errorf("invalid gpa %q", raw)
	}
	if gpa < 0 || gpa > 4 {
		return 0, fmt.Errorf("gpa %.2f outside 0.0-4.0", gpa)
	}
	return gpa, nil
}
