package api

import (
	"context"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"geoattend/internal/attendance"
	"geoattend/internal/auth"
	"geoattend/internal/config"
	"geoattend/internal/course"
	"geoattend/internal/homework"
	"geoattend/internal/httpmiddleware"
)

// Deps are the collaborators the HTTP layer needs.
type Deps struct {
	Config     config.App
	Attendance *attendance.Service
	Courses    *course.Service
	Homework   *homework.Service
	Ledger     LedgerReader
	Limiter    httpmiddleware.Limiter
	Logger     *zap.Logger
	Health     map[string]func(ctx context.Context) bool
}

// NewRouter wires routes and middleware.
func NewRouter(d Deps) *gin.Engine {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	h := &handler{d: d, logger: d.Logger}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestID())
	r.Use(httpmiddleware.Logger(d.Logger, "/healthz", "/metrics"))
	r.Use(corsMiddleware(d.Config.CORSOrigins))
	r.Use(httpmiddleware.SecurityHeaders())

	r.GET("/healthz", h.healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if d.Config.DevTokens {
		r.POST("/dev/token", h.devToken)
	}

	v1 := r.Group("/v1", auth.Authenticate(d.Config.JWTSigningKey, d.Config.JWTIssuer))
	if d.Limiter != nil {
		v1.Use(httpmiddleware.RateLimit(d.Limiter, subjectKey, d.Logger))
	}
	teacher := auth.RequireRole(auth.RoleTeacher)
	student := auth.RequireRole(auth.RoleStudent)

	v1.POST("/courses", teacher, h.createCourse)
	v1.GET("/courses", h.listCourses)
	v1.GET("/courses/:id", h.getCourse)
	v1.POST("/courses/:id/enroll", h.enroll)
	v1.GET("/courses/:id/students", teacher, h.listStudents)
	v1.POST("/courses/:id/homework", teacher, h.addHomework)
	v1.GET("/courses/:id/homework", h.listCourseHomework)

	v1.GET("/homework", student, h.listMyHomework)
	v1.GET("/homework/:id", h.getHomework)
	v1.PUT("/homework/:id", teacher, h.updateHomework)
	v1.DELETE("/homework/:id", teacher, h.deleteHomework)
	v1.POST("/homework/:id/submissions", student, h.submitHomework)
	v1.GET("/homework/:id/submissions", teacher, h.listSubmissions)
	v1.PUT("/homework/:id/submissions/:student_id/grade", teacher, h.gradeSubmission)
	v1.GET("/homework/:id/submission", student, h.mySubmission)

	v1.POST("/codes", teacher, h.issueCode)
	v1.GET("/codes/:id", teacher, h.getCode)
	v1.POST("/codes/:id/invalidate", teacher, h.invalidateCode)
	v1.GET("/codes/:id/qr.png", teacher, h.codeQR)

	v1.POST("/checkins", student, h.checkIn)
	v1.POST("/checkins/:id/timeout", student, h.timeOut)
	v1.GET("/checkins", h.listCheckIns)
	v1.GET("/checkins/stats", h.checkInStats)
	v1.GET("/checkins/monthly", h.checkInMonthly)
	v1.GET("/checkins/:id", h.getCheckIn)

	v1.GET("/ledger/status/:account", h.ledgerStatus)
	return r
}

func subjectKey(c *gin.Context) string {
	if claims, ok := auth.ClaimsFrom(c); ok {
		return "sub:" + claims.Subject
	}
	return httpmiddleware.ClientIP(c)
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", httpmiddleware.RequestIDHeader},
		ExposeHeaders:    []string{httpmiddleware.RequestIDHeader},
		MaxAge:           12 * time.Hour,
		AllowCredentials: true,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowOriginFunc = func(string) bool { return true }
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}
