package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"geoattend/internal/auth"
	"geoattend/internal/homework"
)

// courseMember checks the caller teaches the course or, as a student, is enrolled in it.
func (h *handler) courseMember(c *gin.Context, courseID string) bool {
	claims := subject(c)
	if claims.Role == auth.RoleTeacher {
		_, ok := h.ownedCourse(c, courseID)
		return ok
	}
	if _, err := h.d.Courses.Get(c.Request.Context(), courseID); err != nil {
		h.writeError(c, err)
		return false
	}
	enrolled, err := h.d.Courses.IsEnrolled(c.Request.Context(), courseID, claims.Subject)
	if err != nil {
		h.writeError(c, err)
		return false
	}
	if !enrolled {
		h.writeError(c, homework.ErrNotEnrolled)
		return false
	}
	return true
}

func (h *handler) addHomework(c *gin.Context) {
	var req struct {
		Title       string    `json:"title" binding:"required"`
		Description string    `json:"description"`
		DueDate     time.Time `json:"due_date" binding:"required"`
		Attachments []string  `json:"attachments"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	hw, err := h.d.Homework.Add(c.Request.Context(), homework.AddRequest{
		TeacherID:   subject(c).Subject,
		CourseID:    c.Param("id"),
		Title:       req.Title,
		Description: req.Description,
		DueDate:     req.DueDate,
		Attachments: req.Attachments,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, hw)
}

func (h *handler) listCourseHomework(c *gin.Context) {
	if !h.courseMember(c, c.Param("id")) {
		return
	}
	hs, err := h.d.Homework.ListByCourse(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"homework": hs})
}

func (h *handler) listMyHomework(c *gin.Context) {
	hs, err := h.d.Homework.ListForStudent(c.Request.Context(), subject(c).Subject)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"homework": hs})
}

func (h *handler) getHomework(c *gin.Context) {
	hw, err := h.d.Homework.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if !h.courseMember(c, hw.CourseID) {
		return
	}
	c.JSON(http.StatusOK, hw)
}

func (h *handler) updateHomework(c *gin.Context) {
	var req struct {
		Title       *string    `json:"title"`
		Description *string    `json:"description"`
		DueDate     *time.Time `json:"due_date"`
		Attachments *[]string  `json:"attachments"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	hw, err := h.d.Homework.Update(c.Request.Context(), subject(c).Subject, c.Param("id"), homework.UpdateRequest{
		Title:       req.Title,
		Description: req.Description,
		DueDate:     req.DueDate,
		Attachments: req.Attachments,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, hw)
}

func (h *handler) deleteHomework(c *gin.Context) {
	if err := h.d.Homework.Delete(c.Request.Context(), subject(c).Subject, c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) submitHomework(c *gin.Context) {
	var req struct {
		Text        string   `json:"submission_text"`
		Attachments []string `json:"attachments"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sub, err := h.d.Homework.Submit(c.Request.Context(), homework.SubmitRequest{
		HomeworkID:  c.Param("id"),
		StudentID:   subject(c).Subject,
		Text:        req.Text,
		Attachments: req.Attachments,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sub)
}

func (h *handler) listSubmissions(c *gin.Context) {
	subs, err := h.d.Homework.Submissions(c.Request.Context(), subject(c).Subject, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"submissions": subs})
}

func (h *handler) gradeSubmission(c *gin.Context) {
	var req struct {
		Grade    *float64 `json:"grade" binding:"required"`
		Feedback string   `json:"feedback"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sub, err := h.d.Homework.Grade(c.Request.Context(), subject(c).Subject, c.Param("id"), c.Param("student_id"), *req.Grade, req.Feedback)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (h *handler) mySubmission(c *gin.Context) {
	sub, err := h.d.Homework.SubmissionFor(c.Request.Context(), subject(c).Subject, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}
