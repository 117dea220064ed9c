package handler

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/student-records-api/internal/middleware"
	"github.com/noah-isme/student-records-api/internal/models"
	"github.com/noah-isme/student-records-api/internal/service"
	"github.com/noah-isme/student-records-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/student-records-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/student-records-api/pkg/middleware/requestid"
)

// AuditWriter persists audit log entries.
type AuditWriter interface {
	Create(ctx context.Context, log *models.AuditLog) error
}

// RouterDeps carries everything the HTTP surface needs.
type RouterDeps struct {
	APIPrefix      string
	AllowedOrigins []string
	MaxUploadBytes int64
	AllowedMIMEs   []string
	Logger         *zap.Logger

	Auth      *service.AuthService
	Users     *service.UserService
	Students  *service.StudentService
	Ingestion *service.IngestionService
	Reports   *service.ReportService
	Exports   *service.ExportService
	Metrics   *service.MetricsService
	Audit     AuditWriter
	DB        Pinger
}

// NewRouter builds the gin engine with every route and guard.
func NewRouter(deps RouterDeps) *gin.Engine {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(log))
	r.Use(corsmiddleware.New(deps.AllowedOrigins))
	if deps.Metrics != nil {
		r.Use(middleware.Metrics(deps.Metrics))
	}
	r.Use(middleware.WithResponseMeta())

	meta := NewMetricsHandler(deps.Metrics, deps.DB)
	r.GET("/health", meta.Health)
	r.GET("/ready", meta.Ready)
	r.GET("/metrics", meta.Prometheus)

	authH := NewAuthHandler(deps.Auth)
	studentH := NewStudentHandler(deps.Students, deps.Ingestion)
	uploadH := NewUploadHandler(deps.Ingestion, deps.MaxUploadBytes, deps.AllowedMIMEs)
	reportH := NewReportHandler(deps.Reports, deps.Exports)
	userH := NewUserHandler(deps.Users)

	audited := func(action, resource, idParam string) gin.HandlerFunc {
		return middleware.Audit(deps.Audit, log, action, resource, idParam)
	}

	api := r.Group("/" + strings.Trim(deps.APIPrefix, "/"))
	authenticate := middleware.Authenticate(deps.Auth)
	staff := middleware.RequireRoles(models.StaffRoles...)
	admin := middleware.RequireRoles(models.RoleAdmin)

	auth := api.Group("/auth")
	auth.POST("/signup", authH.SignUp)
	auth.POST("/signin", authH.SignIn)
	auth.POST("/login", authH.SignIn)
	auth.GET("/user", authenticate, authH.CurrentUser)

	secured := api.Group("", authenticate)

	students := secured.Group("/students")
	students.GET("", staff, studentH.List)
	students.POST("", admin, audited(models.AuditActionStudentCreate, "students", ""), studentH.Create)
	students.POST("/upload", admin, audited(models.AuditActionIngest, "students", ""), uploadH.UploadSimple)
	students.GET("/:id", studentH.Get)
	students.PATCH("/:id", audited(models.AuditActionStudentUpdate, "students", "id"), studentH.Update)
	students.DELETE("/:id", admin, audited(models.AuditActionStudentDelete, "students", "id"), studentH.Delete)
	students.POST("/:id/comments", staff, studentH.AddComment)
	students.GET("/:id/gpa-history", studentH.GPAHistory)
	secured.GET("/gpa_history/:id", studentH.GPAHistory)

	secured.POST("/upload/students-bulk", admin, audited(models.AuditActionIngest, "students", ""), uploadH.UploadProfiles)

	reports := secured.Group("/reports", staff)
	reports.GET("/trends", reportH.Trends)
	reports.POST("/trends/exports", reportH.CreateExport)
	reports.GET("/exports/:id", reportH.ExportStatus)
	api.GET("/export/:token", reportH.Download)

	users := secured.Group("/users")
	users.GET("", admin, userH.List)
	users.POST("", admin, audited(models.AuditActionUserCreate, "users", ""), userH.Create)
	users.DELETE("/:id", admin, audited(models.AuditActionUserDelete, "users", "id"), userH.Delete)
	users.GET("/:id/roles", middleware.AdminOrSelf("id"), userH.GetRoles)
	users.PATCH("/:id/roles", admin, audited(models.AuditActionRolesUpdate, "user_roles", "id"), userH.UpdateRoles)

	return r
}
