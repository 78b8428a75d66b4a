package handler

import (
	"net/http"
	"strconv"

	"atelier/internal/repository"
	"atelier/pkg/gateway"

	"github.com/gin-gonic/gin"
)

// AdminHandler covers the back-office odds and ends: dashboard numbers,
// system settings, the audit trail and the FX widget.
type AdminHandler struct {
	admins    *repository.AdminRepository
	payments  *repository.PaymentRepository
	requests  *repository.RequestRepository
	settings  *repository.SettingRepository
	auditRepo *repository.AuditLogRepository
	gateway   *gateway.Client
}

func NewAdminHandler(
	admins *repository.AdminRepository,
	payments *repository.PaymentRepository,
	requests *repository.RequestRepository,
	settings *repository.SettingRepository,
	auditRepo *repository.AuditLogRepository,
	gw *gateway.Client,
) *AdminHandler {
	return &AdminHandler{
		admins:    admins,
		payments:  payments,
		requests:  requests,
		settings:  settings,
		auditRepo: auditRepo,
		gateway:   gw,
	}
}

// Dashboard returns the admin overview stats.
func (h *AdminHandler) Dashboard(c *gin.Context) {
	stats, err := h.admins.GetDashboardStats(h.payments, h.requests)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// ListSettings returns all system settings.
func (h *AdminHandler) ListSettings(c *gin.Context) {
	settings, err := h.settings.GetAll()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load settings"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": settings})
}

// UpdateSetting upserts one setting by key.
func (h *AdminHandler) UpdateSetting(c *gin.Context) {
	var req struct {
		Key   string `json:"key" binding:"required"`
		Value string `json:"value" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Key == repository.SettingDiscountPercent {
		n, err := strconv.Atoi(req.Value)
		if err != nil || n < 0 || n > 50 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "discount must be between 0 and 50"})
			return
		}
	}
	if err := h.settings.Set(req.Key, req.Value); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save setting"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": req.Key, "value": req.Value})
}

// AuditTrail lists audit entries, filterable by action.
func (h *AdminHandler) AuditTrail(c *gin.Context) {
	page, limit := pagination(c)
	logs, total, err := h.auditRepo.List(c.Query("action"), page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list audit log"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": logs, "total": total, "page": page, "limit": limit})
}

// FXRates returns gateway FX rates against a base currency for the
// dashboard's currency widget. Served from a one-hour cache.
func (h *AdminHandler) FXRates(c *gin.Context) {
	base := c.DefaultQuery("base", "USD")
	rates, err := h.gateway.FXRates(c.Request.Context(), base)
	if err != nil {
		status, msg := gatewayErrorResponse(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(http.StatusOK, gin.H{"base": base, "rates": rates})
}
