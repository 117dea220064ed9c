package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/student-records-api/internal/models"
	"github.com/noah-isme/student-records-api/internal/service"
	appErrors "github.com/noah-isme/student-records-api/pkg/errors"
	"github.com/noah-isme/student-records-api/pkg/response"
)

// UploadHandler accepts bulk student files.
type UploadHandler struct {
	ingestion    *service.IngestionService
	maxBytes     int64
	allowedMIMEs []string
}

// NewUploadHandler constructs an UploadHandler. An empty allow list leaves type
// checks to the reconciler.
func NewUploadHandler(ingestion *service.IngestionService, maxBytes int64, allowedMIMEs []string) *UploadHandler {
	return &UploadHandler{ingestion: ingestion, maxBytes: maxBytes, allowedMIMEs: allowedMIMEs}
}

// UploadSimple godoc
// @Summary Upload flat student rows
// @Description CSV or XLSX with first_name, last_name, date_of_birth, enrollment_date, major, email, gpa, semester, year
// @Tags Uploads
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param file formData file true "Student file"
// @Param dry_run query bool false "Resolve without writing"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /students/upload [post]
func (h *UploadHandler) UploadSimple(c *gin.Context) {
	h.upload(c, models.IngestionModeSimple)
}

// UploadProfiles godoc
// @Summary Upload full student profiles
// @Description CSV, XLSX or a JSON array of nested profiles
// @Tags Uploads
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param file formData file true "Profile file"
// @Param dry_run query bool false "Resolve without writing"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /upload/students-bulk [post]
func (h *UploadHandler) UploadProfiles(c *gin.Context) {
	h.upload(c, models.IngestionModeProfile)
}

func (h *UploadHandler) upload(c *gin.Context, mode models.IngestionMode) {
	if h.maxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+1<<20)
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(c, appErrors.Clone(appErrors.ErrBadRequest, "file exceeds the upload limit"))
			return
		}
		response.Error(c, appErrors.Clone(appErrors.ErrBadRequest, "file is required"))
		return
	}
	if h.maxBytes > 0 && fileHeader.Size > h.maxBytes {
		response.Error(c, appErrors.Clone(appErrors.ErrBadRequest, "file exceeds the upload limit"))
		return
	}
	src, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open file"))
		return
	}
	defer src.Close()
	data, err := io.ReadAll(src)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to buffer file"))
		return
	}
	if !h.allowed(data) {
		response.Error(c, appErrors.Clone(appErrors.ErrUnsupportedFile, "unsupported file type"))
		return
	}

	opts := service.IngestOptions{DryRun: c.Query("dry_run") == "true"}
	summary, err := h.ingestion.IngestFile(c.Request.Context(), fileHeader.Filename, data, mode, opts)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, summary)
}

func (h *UploadHandler) allowed(data []byte) bool {
	if len(h.allowedMIMEs) == 0 {
		return true
	}
	detected := mimetype.Detect(data)
	for m := detected; m != nil; m = m.Parent() {
		for _, allowed := range h.allowedMIMEs {
			if m.Is(allowed) {
				return true
			}
		}
	}
	return false
}
