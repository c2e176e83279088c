package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/moffermann/school-attendance-sub001/internal/models"
	"github.com/moffermann/school-attendance-sub001/internal/service"
	appErrors "github.com/moffermann/school-attendance-sub001/pkg/errors"
	"github.com/moffermann/school-attendance-sub001/pkg/response"
)

// PickupHandler exposes authorized pickup endpoints.
type PickupHandler struct {
	pickups *service.PickupService
}

// NewPickupHandler constructs PickupHandler.
func NewPickupHandler(pickups *service.PickupService) *PickupHandler {
	return &PickupHandler{pickups: pickups}
}

// List godoc
// @Summary List authorized pickups
// @Tags Pickups
// @Produce json
// @Param search query string false "Search by name"
// @Param active query bool false "Filter by active state"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /pickups [get]
func (h *PickupHandler) List(c *gin.Context) {
	var filter models.PickupFilter
	filter.Search = strings.TrimSpace(c.Query("search"))
	if active := c.Query("active"); active != "" {
		if active == "true" {
			v := true
			filter.Active = &v
		} else if active == "false" {
			v := false
			filter.Active = &v
		}
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	pickups, pagination, err := h.pickups.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, pickups, pagination)
}

// Get godoc
// @Summary Get pickup detail
// @Tags Pickups
// @Produce json
// @Param id path string true "Pickup ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /pickups/{id} [get]
func (h *PickupHandler) Get(c *gin.Context) {
	pickup, err := h.pickups.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, pickup, nil)
}

// Create godoc
// @Summary Register an authorized pickup
// @Tags Pickups
// @Accept json
// @Produce json
// @Param payload body service.CreatePickupRequest true "Pickup payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /pickups [post]
func (h *PickupHandler) Create(c *gin.Context) {
	var req service.CreatePickupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	pickup, err := h.pickups.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, pickup)
}

// Update godoc
// @Summary Update an authorized pickup
// @Tags Pickups
// @Accept json
// @Produce json
// @Param id path string true "Pickup ID"
// @Param payload body service.UpdatePickupRequest true "Pickup payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /pickups/{id} [put]
func (h *PickupHandler) Update(c *gin.Context) {
	var req service.UpdatePickupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	pickup, err := h.pickups.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, pickup, nil)
}

// Delete godoc
// @Summary Deactivate an authorized pickup
// @Tags Pickups
// @Produce json
// @Param id path string true "Pickup ID"
// @Success 204
// @Security BearerAuth
// @Router /pickups/{id} [delete]
func (h *PickupHandler) Delete(c *gin.Context) {
	if err := h.pickups.Deactivate(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// AttachStudent godoc
// @Summary Link a pickup to a student
// @Tags Pickups
// @Accept json
// @Produce json
// @Param id path string true "Pickup ID"
// @Param payload body service.AttachStudentRequest true "Link payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /pickups/{id}/students [post]
func (h *PickupHandler) AttachStudent(c *gin.Context) {
	var req service.AttachStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	link, err := h.pickups.AttachStudent(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, link)
}

// DetachStudent godoc
// @Summary Unlink a pickup from a student
// @Tags Pickups
// @Produce json
// @Param id path string true "Pickup ID"
// @Param studentId path string true "Student ID"
// @Success 204
// @Security BearerAuth
// @Router /pickups/{id}/students/{studentId} [delete]
func (h *PickupHandler) DetachStudent(c *gin.Context) {
	if err := h.pickups.DetachStudent(c.Request.Context(), c.Param("id"), c.Param("studentId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
