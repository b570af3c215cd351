package handler

import (
	"net/http"

	"amap/internal/service"
	"amap/pkg/pagination"
	"amap/pkg/response"

	"github.com/gin-gonic/gin"
)

type AuditHandler struct {
	auditService service.AuditService
}

func NewAuditHandler(auditService service.AuditService) *AuditHandler {
	return &AuditHandler{auditService: auditService}
}

// RegisterRoutes binds the access-journal endpoint; the route guard maps
// /api/journal to the "journal" resource.
func (h *AuditHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/api/journal", h.ListAccessLogs)
}

// ListAccessLogs returns the paginated authorization-denial journal
func (h *AuditHandler) ListAccessLogs(c *gin.Context) {
	params := pagination.Parse(c)

	logs, total, err := h.auditService.GetAccessLogs(c.Request.Context(), params.Page, params.Limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Paged(http.StatusOK, logs, params, total))
}
