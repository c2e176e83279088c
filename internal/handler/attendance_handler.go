package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/moffermann/school-attendance-sub001/internal/service"
	appErrors "github.com/moffermann/school-attendance-sub001/pkg/errors"
	"github.com/moffermann/school-attendance-sub001/pkg/response"
)

// AttendanceHandler exposes kiosk scan endpoints.
type AttendanceHandler struct {
	attendance *service.AttendanceService
}

// NewAttendanceHandler constructs AttendanceHandler.
func NewAttendanceHandler(attendance *service.AttendanceService) *AttendanceHandler {
	return &AttendanceHandler{attendance: attendance}
}

// Scan godoc
// @Summary Record a kiosk IN/OUT scan
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body service.ScanRequest true "Scan payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /attendance/scan [post]
func (h *AttendanceHandler) Scan(c *gin.Context) {
	var req service.ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	event, err := h.attendance.RecordScan(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, event)
}
