package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"geoattend/internal/attendance"
	"geoattend/internal/auth"
	"geoattend/internal/course"
	"geoattend/internal/geo"
	"geoattend/internal/ledger"
	"geoattend/internal/qr"
)

// LedgerReader answers on-chain status queries.
type LedgerReader interface {
	Status(ctx context.Context, account string) (ledger.Status, error)
}

type handler struct {
	d      Deps
	logger *zap.Logger
}

func subject(c *gin.Context) auth.Claims {
	claims, _ := auth.ClaimsFrom(c)
	return claims
}

func (h *handler) healthz(c *gin.Context) {
	status := http.StatusOK
	checks := gin.H{}
	for name, check := range h.d.Health {
		ok := check(c.Request.Context())
		checks[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
		}
	}
	checks["status"] = "ok"
	if status != http.StatusOK {
		checks["status"] = "degraded"
	}
	c.JSON(status, checks)
}

func (h *handler) devToken(c *gin.Context) {
	var req struct {
		UserID string `json:"user_id" binding:"required"`
		Role   string `json:"role" binding:"required"`
		Name   string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tok, err := auth.Issue(req.UserID, req.Role, req.Name, h.d.Config.JWTIssuer, h.d.Config.JWTSigningKey, h.d.Config.AccessTTL)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"access_token": tok.AccessToken, "expires_at": tok.ExpiresAt.Unix()})
}

// ── courses ──

func (h *handler) createCourse(c *gin.Context) {
	var req struct {
		Name        string `json:"name" binding:"required"`
		Code        string `json:"code" binding:"required"`
		Description string `json:"description"`
		Schedule    string `json:"schedule"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	crs, err := h.d.Courses.Create(c.Request.Context(), course.CreateRequest{
		TeacherID:   subject(c).Subject,
		Name:        req.Name,
		Code:        req.Code,
		Description: req.Description,
		Schedule:    req.Schedule,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, crs)
}

func (h *handler) listCourses(c *gin.Context) {
	claims := subject(c)
	var (
		cs  []course.Course
		err error
	)
	if claims.Role == auth.RoleTeacher {
		cs, err = h.d.Courses.ListByTeacher(c.Request.Context(), claims.Subject)
	} else {
		cs, err = h.d.Courses.ListAll(c.Request.Context())
	}
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"courses": cs})
}

func (h *handler) getCourse(c *gin.Context) {
	crs, err := h.d.Courses.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, crs)
}

// ownedCourse loads the course and checks the caller teaches it.
func (h *handler) ownedCourse(c *gin.Context, id string) (course.Course, bool) {
	crs, err := h.d.Courses.Get(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return course.Course{}, false
	}
	if crs.TeacherID != subject(c).Subject {
		h.writeError(c, attendance.ErrForbidden)
		return course.Course{}, false
	}
	return crs, true
}

func (h *handler) enroll(c *gin.Context) {
	claims := subject(c)
	studentID := claims.Subject
	if claims.Role == auth.RoleTeacher {
		var req struct {
			StudentID string `json:"student_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if _, ok := h.ownedCourse(c, c.Param("id")); !ok {
			return
		}
		studentID = req.StudentID
	}
	e, err := h.d.Courses.Enroll(c.Request.Context(), c.Param("id"), studentID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, e)
}

func (h *handler) listStudents(c *gin.Context) {
	if _, ok := h.ownedCourse(c, c.Param("id")); !ok {
		return
	}
	es, err := h.d.Courses.ListStudents(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"students": es})
}

// ── codes ──

type codeView struct {
	attendance.Code
	RemainingSeconds int    `json:"remaining_seconds"`
	QRURL            string `json:"qr_url"`
}

func (h *handler) viewCode(code attendance.Code) codeView {
	left, _ := h.d.Attendance.Remaining(code)
	return codeView{
		Code:             code,
		RemainingSeconds: int(left.Round(time.Second) / time.Second),
		QRURL:            "/v1/codes/" + code.ID + "/qr.png",
	}
}

func (h *handler) issueCode(c *gin.Context) {
	var req struct {
		CourseID        string   `json:"course_id" binding:"required"`
		Latitude        *float64 `json:"latitude"`
		Longitude       *float64 `json:"longitude"`
		RadiusMeters    float64  `json:"radius_meters"`
		ValiditySeconds int      `json:"validity_seconds"`
		LocationName    string   `json:"location_name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if (req.Latitude == nil) != (req.Longitude == nil) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "latitude and longitude must be sent together"})
		return
	}
	if _, ok := h.ownedCourse(c, req.CourseID); !ok {
		return
	}

	ir := attendance.IssueRequest{
		IssuerID:     subject(c).Subject,
		CourseID:     req.CourseID,
		RadiusMeters: req.RadiusMeters,
		Validity:     time.Duration(req.ValiditySeconds) * time.Second,
		LocationName: req.LocationName,
	}
	if req.Latitude != nil {
		ir.Origin = &geo.Point{Latitude: *req.Latitude, Longitude: *req.Longitude}
	}
	code, err := h.d.Attendance.Issue(c.Request.Context(), ir)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, h.viewCode(code))
}

// issuedCode loads :id and checks the caller issued it.
func (h *handler) issuedCode(c *gin.Context) (attendance.Code, bool) {
	code, err := h.d.Attendance.GetCode(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return attendance.Code{}, false
	}
	if code.IssuerID != subject(c).Subject {
		h.writeError(c, attendance.ErrForbidden)
		return attendance.Code{}, false
	}
	return code, true
}

func (h *handler) getCode(c *gin.Context) {
	code, ok := h.issuedCode(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.viewCode(code))
}

func (h *handler) invalidateCode(c *gin.Context) {
	code, err := h.d.Attendance.Invalidate(c.Request.Context(), subject(c).Subject, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.viewCode(code))
}

func (h *handler) codeQR(c *gin.Context) {
	code, ok := h.issuedCode(c)
	if !ok {
		return
	}
	size, _ := strconv.Atoi(c.Query("size"))
	png, err := qr.PNG(code.Token, size)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}

// ── check-ins ──

type checkInRequest struct {
	Code           string   `json:"code" binding:"required"`
	Latitude       *float64 `json:"latitude"`
	Longitude      *float64 `json:"longitude"`
	AccuracyMeters float64  `json:"accuracy_meters"`
	LocationError  string   `json:"location_error"`
	IsLate         bool     `json:"is_late"`
}

// locator turns the browser's geolocation outcome into a geo.Locator.
func (r checkInRequest) locator() geo.Locator {
	if r.LocationError != "" {
		return geo.Reported{Failure: r.LocationError}
	}
	if r.Latitude == nil || r.Longitude == nil {
		return geo.Reported{}
	}
	return geo.Reported{Fix: &geo.Fix{
		Point:          geo.Point{Latitude: *r.Latitude, Longitude: *r.Longitude},
		AccuracyMeters: r.AccuracyMeters,
	}}
}

func (h *handler) checkIn(c *gin.Context) {
	var req checkInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": attendance.KindInvalidCode})
		return
	}
	ctx := c.Request.Context()
	code, err := h.d.Attendance.Validate(ctx, req.Code)
	if err != nil {
		h.writeError(c, err)
		return
	}

	var courseName string
	if crs, err := h.d.Courses.Get(ctx, code.CourseID); err == nil {
		courseName = crs.Name
	}
	rec, err := h.d.Attendance.CheckIn(ctx, attendance.CheckInRequest{
		StudentID:  subject(c).Subject,
		Code:       code,
		Locator:    req.locator(),
		IsLate:     req.IsLate,
		CourseName: courseName,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"record": rec, "course_name": courseName})
}

func (h *handler) timeOut(c *gin.Context) {
	rec, err := h.d.Attendance.TimeOut(c.Request.Context(), c.Param("id"), subject(c).Subject)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// recordFilter scopes students to their own records and teachers to a
// course they teach.
func (h *handler) recordFilter(c *gin.Context) (attendance.RecordFilter, bool) {
	claims := subject(c)
	f := attendance.RecordFilter{CourseID: c.Query("course_id")}
	f.Limit, _ = strconv.Atoi(c.Query("limit"))
	f.Offset, _ = strconv.Atoi(c.Query("offset"))

	if claims.Role == auth.RoleStudent {
		f.StudentID = claims.Subject
		return f, true
	}
	if f.CourseID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "course_id required"})
		return f, false
	}
	if _, ok := h.ownedCourse(c, f.CourseID); !ok {
		return f, false
	}
	f.StudentID = c.Query("student_id")
	return f, true
}

func (h *handler) listCheckIns(c *gin.Context) {
	f, ok := h.recordFilter(c)
	if !ok {
		return
	}
	recs, err := h.d.Attendance.ListRecords(c.Request.Context(), f)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": recs})
}

func (h *handler) checkInStats(c *gin.Context) {
	f, ok := h.recordFilter(c)
	if !ok {
		return
	}
	st, err := h.d.Attendance.Stats(c.Request.Context(), f)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// checkInMonthly buckets the caller's records by month. Without ?year every year is
// folded into the same twelve months.
func (h *handler) checkInMonthly(c *gin.Context) {
	f, ok := h.recordFilter(c)
	if !ok {
		return
	}
	var year int
	if raw := c.Query("year"); raw != "" {
		y, err := strconv.Atoi(raw)
		if err != nil || y < 1970 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "year must be a four-digit year"})
			return
		}
		year = y
	}
	months, err := h.d.Attendance.Monthly(c.Request.Context(), f, year)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"months": months})
}

// getCheckIn shows a record to the student who made it or the course's teacher.
func (h *handler) getCheckIn(c *gin.Context) {
	rec, err := h.d.Attendance.GetRecord(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	claims := subject(c)
	if claims.Role == auth.RoleStudent {
		if rec.StudentID != claims.Subject {
			h.writeError(c, attendance.ErrForbidden)
			return
		}
	} else if _, ok := h.ownedCourse(c, rec.CourseID); !ok {
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *handler) ledgerStatus(c *gin.Context) {
	if h.d.Ledger == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ledger not configured"})
		return
	}
	st, err := h.d.Ledger.Status(c.Request.Context(), c.Param("account"))
	if err != nil {
		h.logger.Warn("ledger status failed", zap.String("kind", string(attendance.KindLedger)), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "ledger unavailable", "code": attendance.KindLedger})
		return
	}
	c.JSON(http.StatusOK, st)
}
