package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sga-platform/sga-api/internal/models"
	"github.com/sga-platform/sga-api/internal/service"
	appErrors "github.com/sga-platform/sga-api/pkg/errors"
	"github.com/sga-platform/sga-api/pkg/response"
)

// AdminHandler exposes admin provisioning endpoints.
type AdminHandler struct {
	admins *service.AdminService
}

// NewAdminHandler constructs AdminHandler.
func NewAdminHandler(admins *service.AdminService) *AdminHandler {
	return &AdminHandler{admins: admins}
}

// List godoc
// @Summary List admins
// @Tags Admins
// @Produce json
// @Param search query string false "Search by name, surname or DNI"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admins [get]
func (h *AdminHandler) List(c *gin.Context) {
	var filter models.AdminFilter
	filter.Search = strings.TrimSpace(c.Query("search"))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	admins, pagination, err := h.admins.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, admins, pagination)
}

// Get godoc
// @Summary Get admin detail
// @Tags Admins
// @Produce json
// @Param id path string true "Admin ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admins/{id} [get]
func (h *AdminHandler) Get(c *gin.Context) {
	admin, err := h.admins.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, admin, nil)
}

// Create godoc
// @Summary Provision admin
// @Tags Admins
// @Accept json
// @Produce json
// @Param payload body service.CreateAdminRequest true "Admin payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /admins [post]
func (h *AdminHandler) Create(c *gin.Context) {
	var req service.CreateAdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	admin, err := h.admins.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, admin)
}

// Update godoc
// @Summary Update admin
// @Tags Admins
// @Accept json
// @Produce json
// @Param id path string true "Admin ID"
// @Param payload body service.UpdateAdminRequest true "Admin payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admins/{id} [put]
func (h *AdminHandler) Update(c *gin.Context) {
	var req service.UpdateAdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	admin, err := h.admins.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, admin, nil)
}

// SetAccountStatus godoc
// @Summary Toggle admin account status
// @Tags Admins
// @Accept json
// @Produce json
// @Param id path string true "Admin ID"
// @Param payload body handler.setAccountStatusRequest true "Status payload"
// @Success 204 "No Content"
// @Security BearerAuth
// @Router /admins/{id}/status [patch]
func (h *AdminHandler) SetAccountStatus(c *gin.Context) {
	var req setAccountStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.admins.SetAccountStatus(c.Request.Context(), c.Param("id"), req.Status); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
