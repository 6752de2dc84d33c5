package handler

import (
	"chatsphere_server/internal/service"

	"github.com/gin-gonic/gin"
)

// HealthHandler 存活检查
type HealthHandler struct {
	svc *service.Services
}

// NewHealthHandler 创建 HealthHandler
func NewHealthHandler(svc *service.Services) *HealthHandler {
	return &HealthHandler{svc: svc}
}

// Healthz GET /healthz
func (h *HealthHandler) Healthz(c *gin.Context) {
	handles, identities := h.svc.Registry.Count()
	HandleSuccess(c, gin.H{
		"status":      "ok",
		"connections": handles,
		"identities":  identities,
		"rooms":       len(h.svc.Store.Stats()),
	})
}
