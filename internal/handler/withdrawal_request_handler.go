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
)

// WithdrawalRequestHandler exposes advance pickup request endpoints.
type WithdrawalRequestHandler struct {
	requests *service.WithdrawalRequestService
}

// NewWithdrawalRequestHandler constructs WithdrawalRequestHandler.
func NewWithdrawalRequestHandler(requests *service.WithdrawalRequestService) *WithdrawalRequestHandler {
	return &WithdrawalRequestHandler{requests: requests}
}

// Create godoc
// @Summary Create an advance pickup request
// @Tags WithdrawalRequests
// @Accept json
// @Produce json
// @Param payload body service.CreateRequestRequest true "Request payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /withdrawal-requests [post]
func (h *WithdrawalRequestHandler) Create(c *gin.Context) {
	var req service.CreateRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if req.RequestedBy == "" {
		if claims := claimsFromContext(c); claims != nil {
			req.RequestedBy = claims.UserID
		}
	}
	request, err := h.requests.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, request)
}

// Review godoc
// @Summary Approve or reject a pending request
// @Tags WithdrawalRequests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body service.ReviewRequest true "Review payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /withdrawal-requests/{id}/review [post]
func (h *WithdrawalRequestHandler) Review(c *gin.Context) {
	var req service.ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if req.ReviewedBy == "" {
		if claims := claimsFromContext(c); claims != nil {
			req.ReviewedBy = claims.UserID
		}
	}
	request, err := h.requests.Review(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Cancel godoc
// @Summary Cancel a pending or approved request
// @Tags WithdrawalRequests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /withdrawal-requests/{id}/cancel [post]
func (h *WithdrawalRequestHandler) Cancel(c *gin.Context) {
	request, err := h.requests.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Get godoc
// @Summary Get request detail
// @Tags WithdrawalRequests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /withdrawal-requests/{id} [get]
func (h *WithdrawalRequestHandler) Get(c *gin.Context) {
	request, err := h.requests.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// List godoc
// @Summary List requests
// @Tags WithdrawalRequests
// @Produce json
// @Param studentId query string false "Filter by student"
// @Param status query string false "Filter by status"
// @Param from query string false "Scheduled from (YYYY-MM-DD)"
// @Param to query string false "Scheduled until (YYYY-MM-DD)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /withdrawal-requests [get]
func (h *WithdrawalRequestHandler) List(c *gin.Context) {
	var filter models.WithdrawalRequestFilter
	filter.StudentID = c.Query("studentId")
	if raw := c.Query("status"); raw != "" {
		status := models.RequestStatus(raw)
		if !status.Valid() {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown request status"))
			return
		}
		filter.Status = &status
	}
	if raw := c.Query("from"); raw != "" {
		if ts, err := time.Parse("2006-01-02", raw); err == nil {
			filter.DateFrom = &ts
		}
	}
	if raw := c.Query("to"); raw != "" {
		if ts, err := time.Parse("2006-01-02", raw); err == nil {
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

	requests, pagination, err := h.requests.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, pagination)
}
