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

// CareerHandler exposes career catalog endpoints.
type CareerHandler struct {
	careers *service.CareerService
}

// NewCareerHandler constructs CareerHandler.
func NewCareerHandler(careers *service.CareerService) *CareerHandler {
	return &CareerHandler{careers: careers}
}

// List godoc
// @Summary List careers
// @Tags Careers
// @Produce json
// @Param search query string false "Search by name"
// @Param status query string false "Filter by lifecycle status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /careers [get]
func (h *CareerHandler) List(c *gin.Context) {
	var filter models.CareerFilter
	filter.Search = strings.TrimSpace(c.Query("search"))
	filter.Status = models.CareerStatus(c.Query("status"))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	careers, pagination, err := h.careers.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, careers, pagination)
}

// Get godoc
// @Summary Get career detail
// @Tags Careers
// @Produce json
// @Param id path string true "Career ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /careers/{id} [get]
func (h *CareerHandler) Get(c *gin.Context) {
	career, err := h.careers.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, career, nil)
}

// Create godoc
// @Summary Create career
// @Tags Careers
// @Accept json
// @Produce json
// @Param payload body service.CreateCareerRequest true "Career payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /careers [post]
func (h *CareerHandler) Create(c *gin.Context) {
	var req service.CreateCareerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	career, err := h.careers.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, career)
}

// Update godoc
// @Summary Update career
// @Tags Careers
// @Accept json
// @Produce json
// @Param id path string true "Career ID"
// @Param payload body service.UpdateCareerRequest true "Career payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /careers/{id} [put]
func (h *CareerHandler) Update(c *gin.Context) {
	var req service.UpdateCareerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	career, err := h.careers.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, career, nil)
}

// Activate godoc
// @Summary Activate career
// @Tags Careers
// @Produce json
// @Param id path string true "Career ID"
// @Success 204 "No Content"
// @Security BearerAuth
// @Router /careers/{id}/activate [post]
func (h *CareerHandler) Activate(c *gin.Context) {
	if err := h.careers.Activate(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Archive godoc
// @Summary Archive career
// @Tags Careers
// @Produce json
// @Param id path string true "Career ID"
// @Success 204 "No Content"
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /careers/{id}/archive [post]
func (h *CareerHandler) Archive(c *gin.Context) {
	if err := h.careers.Archive(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Delete godoc
// @Summary Delete career
// @Tags Careers
// @Produce json
// @Param id path string true "Career ID"
// @Success 204 "No Content"
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /careers/{id} [delete]
func (h *CareerHandler) Delete(c *gin.Context) {
	if err := h.careers.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// AttachSubject godoc
// @Summary Attach subject to career
// @Tags Careers
// @Produce json
// @Param id path string true "Career ID"
// @Param subjectId path string true "Subject ID"
// @Success 204 "No Content"
// @Security BearerAuth
// @Router /careers/{id}/subjects/{subjectId} [put]
func (h *CareerHandler) AttachSubject(c *gin.Context) {
	if err := h.careers.AttachSubject(c.Request.Context(), c.Param("id"), c.Param("subjectId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// DetachSubject godoc
// @Summary Detach subject from career
// @Tags Careers
// @Produce json
// @Param id path string true "Career ID"
// @Param subjectId path string true "Subject ID"
// @Success 204 "No Content"
// @Security BearerAuth
// @Router /careers/{id}/subjects/{subjectId} [delete]
func (h *CareerHandler) DetachSubject(c *gin.Context) {
	if err := h.careers.DetachSubject(c.Request.Context(), c.Param("id"), c.Param("subjectId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
