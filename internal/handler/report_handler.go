package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/student-records-api/internal/dto"
	"github.com/noah-isme/student-records-api/internal/middleware"
	"github.com/noah-isme/student-records-api/internal/models"
	"github.com/noah-isme/student-records-api/internal/service"
	appErrors "github.com/noah-isme/student-records-api/pkg/errors"
	"github.com/noah-isme/student-records-api/pkg/response"
)

// ReportHandler exposes the trend report and its exports.
type ReportHandler struct {
	reports *service.ReportService
	exports *service.ExportService
}

// NewReportHandler constructs handler.
func NewReportHandler(reports *service.ReportService, exports *service.ExportService) *ReportHandler {
	return &ReportHandler{reports: reports, exports: exports}
}

// Trends godoc
// @Summary GPA and soft-skill trends
// @Description Histogram of latest GPA, soft-skill coverage and students whose GPA dropped by more than 0.3
// @Tags Reports
// @Produce json
// @Security BearerAuth
// @Param grade_level query int false "Grade level"
// @Param min_gpa query number false "Minimum latest GPA"
// @Param max_gpa query number false "Maximum latest GPA"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /reports/trends [get]
func (h *ReportHandler) Trends(c *gin.Context) {
	filter, err := parseTrendsFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	report, cacheHit, err := h.reports.Trends(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, report, nil, middleware.ExtractMeta(c))
}

// CreateExport godoc
// @Summary Export the GPA drop table
// @Tags Reports
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.TrendExportRequest true "Export request"
// @Success 202 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /reports/trends/exports [post]
func (h *ReportHandler) CreateExport(c *gin.Context) {
	var req dto.TrendExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrBadRequest.Code, http.StatusBadRequest, "invalid export payload"))
		return
	}
	actor := ""
	if claims := middleware.CurrentUser(c); claims != nil {
		actor = claims.UserID
	}
	job, err := h.exports.CreateExport(c.Request.Context(), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, job)
}

// ExportStatus godoc
// @Summary Export job status
// @Tags Reports
// @Produce json
// @Security BearerAuth
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /reports/exports/{id} [get]
func (h *ReportHandler) ExportStatus(c *gin.Context) {
	status, err := h.exports.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Download godoc
// @Summary Download a finished export
// @Description The signed token in the path is the credential
// @Tags Reports
// @Produce octet-stream
// @Param token path string true "Signed download token"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /export/{token} [get]
func (h *ReportHandler) Download(c *gin.Context) {
	download, err := h.exports.ResolveDownload(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close()
	info, err := download.File.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read export file"))
		return
	}
	response.Attachment(c, download.Filename, download.ContentType, info.Size(), download.File)
}

func parseTrendsFilter(c *gin.Context) (models.TrendsFilter, error) {
	var filter models.TrendsFilter
	if raw := c.Query("grade_level"); raw != "" {
		grade, err := strconv.Atoi(raw)
		if err != nil {
			return filter, appErrors.Clone(appErrors.ErrValidation, "grade_level must be an integer")
		}
		filter.GradeLevel = &grade
	}
	for name, dest := range map[string]**float64{"min_gpa": &filter.MinGPA, "max_gpa": &filter.MaxGPA} {
		raw := c.Query(name)
		if raw == "" {
			continue
		}
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil || value < 0 || value > 4 {
			return filter, appErrors.Clone(appErrors.ErrValidation, name+" must be a number between 0 and 4")
		}
		*dest = &value
	}
	return filter, nil
}
