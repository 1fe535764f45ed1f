package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/employee-records-api/internal/models"
	appErrors "github.com/noah-isme/employee-records-api/pkg/errors"
	"github.com/noah-isme/employee-records-api/pkg/response"
)

type auditLister interface {
	List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, error)
}

// AuditHandler exposes the audit trail to administrators.
type AuditHandler struct {
	repo auditLister
}

// NewAuditHandler constructs the handler.
func NewAuditHandler(repo auditLister) *AuditHandler {
	return &AuditHandler{repo: repo}
}

// List godoc
// @Summary List audit entries
// @Description Newest entries first.
// @Tags Audit
// @Produce json
// @Security BearerAuth
// @Param action query string false "Action filter"
// @Param resource query string false "Resource filter"
// @Param limit query int false "Maximum entries"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /audit-logs [get]
func (h *AuditHandler) List(c *gin.Context) {
	limit, err := optionalInt(c.Query("limit"), "limit")
	if err != nil {
		response.Error(c, err)
		return
	}
	if limit < 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "limit must not be negative"))
		return
	}
	entries, err := h.repo.List(c.Request.Context(), models.AuditFilter{
		Action:   strings.ToUpper(strings.TrimSpace(c.Query("action"))),
		Resource: strings.TrimSpace(c.Query("resource")),
		Limit:    limit,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	if entries == nil {
		entries = []models.AuditLog{}
	}
	response.JSON(c, http.StatusOK, entries, nil)
}
