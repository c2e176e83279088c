package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/moffermann/school-attendance-sub001/internal/models"
	"github.com/moffermann/school-attendance-sub001/internal/service"
	appErrors "github.com/moffermann/school-attendance-sub001/pkg/errors"
	"github.com/moffermann/school-attendance-sub001/pkg/response"
	"github.com/moffermann/school-attendance-sub001/pkg/timeutil"
)

// WithdrawalHandler exposes the withdrawal lifecycle endpoints.
type WithdrawalHandler struct {
	withdrawals   *service.WithdrawalService
	eligibility   *service.EligibilityService
	notifications *service.NotificationService
	schoolName    string
	tenantTZ      string
}

// NewWithdrawalHandler constructs WithdrawalHandler.
func NewWithdrawalHandler(withdrawals *service.WithdrawalService, eligibility *service.EligibilityService, notifications *service.NotificationService, schoolName, tenantTZ string) *WithdrawalHandler {
	return &WithdrawalHandler{
		withdrawals:   withdrawals,
		eligibility:   eligibility,
		notifications: notifications,
		schoolName:    schoolName,
		tenantTZ:      tenantTZ,
	}
}

// Initiate godoc
// @Summary Initiate withdrawals for one or more students
// @Tags Withdrawals
// @Accept json
// @Produce json
// @Param payload body service.InitiateRequest true "Initiation payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /withdrawals [post]
func (h *WithdrawalHandler) Initiate(c *gin.Context) {
	var req service.InitiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if req.Device.IPAddress == nil {
		ip := c.ClientIP()
		req.Device.IPAddress = &ip
	}
	if req.Device.UserAgent == nil {
		ua := c.Request.UserAgent()
		req.Device.UserAgent = &ua
	}

	result, err := h.withdrawals.Initiate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	status := http.StatusOK
	if len(result.Failures) > 0 {
		status = http.StatusMultiStatus
	}
	response.JSON(c, status, result, nil)
}

// Verify godoc
// @Summary Verify the pickup's identity for a withdrawal
// @Tags Withdrawals
// @Accept json
// @Produce json
// @Param id path string true "Withdrawal ID"
// @Param payload body service.VerifyRequest true "Verification payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /withdrawals/{id}/verify [post]
func (h *WithdrawalHandler) Verify(c *gin.Context) {
	var req service.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if req.VerifiedBy == nil {
		if claims := claimsFromContext(c); claims != nil {
			req.VerifiedBy = &claims.UserID
		}
	}
	withdrawal, err := h.withdrawals.Verify(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, withdrawal, nil)
}

// Complete godoc
// @Summary Complete a verified withdrawal
// @Tags Withdrawals
// @Accept json
// @Produce json
// @Param id path string true "Withdrawal ID"
// @Param payload body service.CompleteRequest true "Completion payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /withdrawals/{id}/complete [post]
func (h *WithdrawalHandler) Complete(c *gin.Context) {
	var req service.CompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	withdrawal, err := h.withdrawals.Complete(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, withdrawal, nil)
}

// Cancel godoc
// @Summary Cancel a non-terminal withdrawal
// @Tags Withdrawals
// @Accept json
// @Produce json
// @Param id path string true "Withdrawal ID"
// @Param payload body service.CancelRequest true "Cancellation payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /withdrawals/{id}/cancel [post]
func (h *WithdrawalHandler) Cancel(c *gin.Context) {
	var req service.CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if req.CancelledBy == "" {
		if claims := claimsFromContext(c); claims != nil {
			req.CancelledBy = claims.UserID
		}
	}
	withdrawal, err := h.withdrawals.Cancel(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, withdrawal, nil)
}

// Override godoc
// @Summary Record an administrator-forced withdrawal
// @Tags Withdrawals
// @Accept json
// @Produce json
// @Param payload body service.AdminOverrideRequest true "Override payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /withdrawals/override [post]
func (h *WithdrawalHandler) Override(c *gin.Context) {
	var req service.AdminOverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if req.AdminID == "" {
		if claims := claimsFromContext(c); claims != nil {
			req.AdminID = claims.UserID
		}
	}
	withdrawal, err := h.withdrawals.AdminOverride(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, withdrawal)
}

// Get godoc
// @Summary Get withdrawal detail
// @Tags Withdrawals
// @Produce json
// @Param id path string true "Withdrawal ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /withdrawals/{id} [get]
func (h *WithdrawalHandler) Get(c *gin.Context) {
	detail, err := h.withdrawals.GetDetail(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// List godoc
// @Summary List withdrawals
// @Tags Withdrawals
// @Produce json
// @Param studentId query string false "Filter by student"
// @Param status query string false "Filter by status"
// @Param from query string false "Initiated from (RFC3339)"
// @Param to query string false "Initiated before (RFC3339)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /withdrawals [get]
func (h *WithdrawalHandler) List(c *gin.Context) {
	var filter models.WithdrawalFilter
	filter.StudentID = c.Query("studentId")
	if raw := c.Query("status"); raw != "" {
		status := models.WithdrawalStatus(raw)
		if !status.Valid() {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown withdrawal status"))
			return
		}
		filter.Status = &status
	}
	if raw := c.Query("from"); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.DateFrom = &ts
		}
	}
	if raw := c.Query("to"); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.DateTo = &ts
		}
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortOrder = c.Query("order")

	withdrawals, pagination, err := h.withdrawals.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, withdrawals, pagination)
}

// Slip godoc
// @Summary Download the printable slip for a completed withdrawal
// @Tags Withdrawals
// @Produce application/pdf
// @Param id path string true "Withdrawal ID"
// @Success 200 {file} binary
// @Security BearerAuth
// @Router /withdrawals/{id}/slip [get]
func (h *WithdrawalHandler) Slip(c *gin.Context) {
	loc := timeutil.LoadLocation(h.tenantTZ)
	pdf, err := h.withdrawals.Slip(c.Request.Context(), c.Param("id"), h.schoolName, loc)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename=withdrawal-slip.pdf")
	c.Data(http.StatusOK, "application/pdf", pdf)
}

// Notifications godoc
// @Summary List notifications dispatched for a withdrawal
// @Tags Withdrawals
// @Produce json
// @Param id path string true "Withdrawal ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /withdrawals/{id}/notifications [get]
func (h *WithdrawalHandler) Notifications(c *gin.Context) {
	list, err := h.notifications.ListForWithdrawal(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, list, nil)
}

// Eligibility godoc
// @Summary Check whether a student can be withdrawn right now
// @Tags Withdrawals
// @Produce json
// @Param id path string true "Student ID"
// @Param tz query string false "Device IANA timezone"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /students/{id}/withdrawal-eligibility [get]
func (h *WithdrawalHandler) Eligibility(c *gin.Context) {
	err := h.eligibility.Validate(c.Request.Context(), c.Param("id"), time.Now().UTC(), c.Query("tz"))
	if err != nil {
		appErr := appErrors.FromError(err)
		if appErr.Status == http.StatusUnprocessableEntity {
			response.JSON(c, http.StatusOK, gin.H{
				"eligible": false,
				"reason":   appErr.Code,
				"message":  appErr.Message,
			}, nil)
			return
		}
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"eligible": true}, nil)
}
