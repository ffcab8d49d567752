package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"geoattend/internal/attendance"
	"geoattend/internal/course"
	"geoattend/internal/homework"
)

var kindStatus = map[attendance.Kind]int{
	attendance.KindInvalidCode:         http.StatusBadRequest,
	attendance.KindNotFoundOrExpired:   http.StatusNotFound,
	attendance.KindAlreadyMarked:       http.StatusConflict,
	attendance.KindLocationUnavailable: http.StatusUnprocessableEntity,
	attendance.KindLocationTimeout:     http.StatusUnprocessableEntity,
	attendance.KindOutOfRange:          http.StatusForbidden,
	attendance.KindStore:               http.StatusServiceUnavailable,
	attendance.KindLedger:              http.StatusBadGateway,
}

// writeError maps domain errors to status codes and the JSON error body.
func (h *handler) writeError(c *gin.Context, err error) {
	var ae *attendance.Error
	if errors.As(err, &ae) {
		status, ok := kindStatus[ae.Kind]
		if !ok {
			status = http.StatusInternalServerError
		}
		body := gin.H{"error": ae.Message, "code": ae.Kind}
		if ae.Message == "" {
			body["error"] = string(ae.Kind)
		}
		if ae.Distance != nil {
			body["distance_meters"] = *ae.Distance
		}
		if ae.Kind == attendance.KindStore {
			h.logger.Error("store failure", zap.Error(err))
			body["error"] = "service temporarily unavailable, please retry"
		}
		c.JSON(status, body)
		return
	}

	switch {
	case errors.Is(err, attendance.ErrInvalidInput), errors.Is(err, course.ErrInvalidInput),
		errors.Is(err, homework.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, attendance.ErrNotFound), errors.Is(err, course.ErrNotFound),
		errors.Is(err, homework.ErrNotFound), errors.Is(err, homework.ErrNoSubmission):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, attendance.ErrForbidden), errors.Is(err, homework.ErrForbidden),
		errors.Is(err, homework.ErrNotEnrolled):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, course.ErrAlreadyEnrolled), errors.Is(err, attendance.ErrAlreadyTimedOut),
		errors.Is(err, homework.ErrAlreadySubmitted):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
