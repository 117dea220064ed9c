package dto

import "github.com/noah-isme/student-records-api/internal/models"

// TrendExportRequest captures POST /reports/trends/exports.
type TrendExportRequest struct {
	Format     models.ReportFormat `json:"format" validate:"required,oneof=csv pdf xlsx"`
	GradeLevel *int                `json:"grade_level,omitempty"`
	MinGPA     *float64            `json:"min_gpa,omitempty" validate:"omitempty,gte=0,lte=4"`
	MaxGPA     *float64            `json:"max_gpa,omitempty" validate:"omitempty,gte=0,lte=4"`
}

// Filter returns the trend filter of the export.
func (r TrendExportRequest) Filter() models.TrendsFilter {
	return models.TrendsFilter{GradeLevel: r.GradeLevel, MinGPA: r.MinGPA, MaxGPA: r.MaxGPA}
}

// ReportJobResponse is returned after enqueueing an export.
type ReportJobResponse struct {
	ID       string              `json:"id"`
	Status   models.ReportStatus `json:"status"`
	Progress int                 `json:"progress"`
}

// ReportStatusResponse exposes export progress.
type ReportStatusResponse struct {
	ID        string              `json:"id"`
	Format    models.ReportFormat `json:"format"`
	Status    models.ReportStatus `json:"status"`
	Progress  int                 `json:"progress"`
	ResultURL *string             `json:"result_url,omitempty"`
	Error     *string             `json:"error,omitempty"`
}
