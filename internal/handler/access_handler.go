package handler

import (
	"net/http"

	"amap/internal/middleware"
	"amap/internal/rbac"
	"amap/internal/service"
	"amap/pkg/response"

	"github.com/gin-gonic/gin"
)

// AccessHandler exposes the client access-control adapter to the admin UI
// framework: a single "can" check plus the full permission map for menu
// rendering. Reachable by any authenticated user; the answers it gives are
// the same ones the route guard would give for the equivalent request.
type AccessHandler struct {
	accessService service.AccessService
}

func NewAccessHandler(accessService service.AccessService) *AccessHandler {
	return &AccessHandler{accessService: accessService}
}

func (h *AccessHandler) RegisterRoutes(router *gin.RouterGroup) {
	access := router.Group("/api/access")
	{
		access.GET("/can", h.Can)
		access.GET("/permissions", h.Permissions)
	}
}

// Can handles GET /api/access/can?resource=produits&action=read
// @Summary      Check access
// @Description  Decides whether the current session may perform an action on a resource
// @Tags         access
// @Produce      json
// @Security     BearerAuth
// @Param        resource  query     string  true  "Resource code"
// @Param        action    query     string  true  "One of create, read, update, delete"
// @Success      200       {object}  response.Response{data=rbac.Decision}
// @Failure      400       {object}  response.Response
// @Router       /api/access/can [get]
func (h *AccessHandler) Can(c *gin.Context) {
	ident, ok := middleware.IdentityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authentication required"))
		return
	}

	resource := c.Query("resource")
	if resource == "" {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "resource is required"))
		return
	}

	action, valid := rbac.ParseAction(c.DefaultQuery("action", string(rbac.ActionRead)))
	if !valid {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "action must be one of create, read, update, delete"))
		return
	}

	decision, err := h.accessService.Can(c.Request.Context(), ident.UserID, ident.SessionID, resource, action)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, response.Error(http.StatusServiceUnavailable, "Authorization service unavailable"))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, decision))
}

// Permissions handles GET /api/access/permissions
func (h *AccessHandler) Permissions(c *gin.Context) {
	ident, ok := middleware.IdentityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authentication required"))
		return
	}

	permMap, err := h.accessService.Permissions(c.Request.Context(), ident.UserID, ident.SessionID)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, response.Error(http.StatusServiceUnavailable, "Authorization service unavailable"))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, permMap))
}
