package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"atelier/config"
	"atelier/internal/domain"
	"atelier/internal/middleware"
	"atelier/internal/models"
	"atelier/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type RequestHandler struct {
	cfg       *config.Config
	requests  *repository.RequestRepository
	clients   *repository.ClientRepository
	payments  *repository.PaymentRepository
	settings  *repository.SettingRepository
	auditRepo *repository.AuditLogRepository
}

func NewRequestHandler(cfg *config.Config, requests *repository.RequestRepository, clients *repository.ClientRepository, payments *repository.PaymentRepository, settings *repository.SettingRepository, auditRepo *repository.AuditLogRepository) *RequestHandler {
	return &RequestHandler{cfg: cfg, requests: requests, clients: clients, payments: payments, settings: settings, auditRepo: auditRepo}
}

// Submit is the public intake endpoint. The client record is created on first
// submission and reused by email afterwards.
func (h *RequestHandler) Submit(c *gin.Context) {
	var req struct {
		Name        string `json:"name" binding:"required"`
		Email       string `json:"email" binding:"required,email"`
		Phone       string `json:"phone"`
		Company     string `json:"company"`
		Title       string `json:"title" binding:"required"`
		Description string `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	client, err := h.clients.FindOrCreate(&models.Client{
		Name:    strings.TrimSpace(req.Name),
		Email:   strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:   req.Phone,
		Company: req.Company,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save client"})
		return
	}
	sr := &models.ServiceRequest{
		ClientID:    client.ID,
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Status:      domain.RequestStatusPending,
	}
	if err := h.requests.Create(sr); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save request"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"request_id": sr.ID, "status": sr.Status})
}

// List returns service requests for the admin, filterable by status.
func (h *RequestHandler) List(c *gin.Context) {
	page, limit := pagination(c)
	status := c.Query("status")
	reqs, total, err := h.requests.List(status, page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list requests"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": reqs, "total": total, "page": page, "limit": limit})
}

// Get returns one request with its payment history.
func (h *RequestHandler) Get(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		return
	}
	req, err := h.requests.GetByID(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "request not found"})
		return
	}
	payments, _ := h.payments.ListByRequest(req.ID)
	c.JSON(http.StatusOK, gin.H{"request": req, "payments": payments})
}

// SetPricing sets the estimated cost and full-payment discount for a request.
func (h *RequestHandler) SetPricing(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		return
	}
	var req struct {
		EstimatedCost   string `json:"estimated_cost" binding:"required"`
		DiscountPercent *int   `json:"discount_percent"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cost, err := decimal.NewFromString(req.EstimatedCost)
	if err != nil || cost.LessThanOrEqual(decimal.Zero) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "estimated_cost must be a positive amount"})
		return
	}
	// the default comes from the admin-tunable setting, not the boot config
	discount := h.settings.DiscountPercent(h.cfg.Payment.DiscountPercent)
	if req.DiscountPercent != nil {
		discount = *req.DiscountPercent
	}
	if discount < 0 || discount > 50 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "discount_percent must be between 0 and 50"})
		return
	}
	fields := map[string]interface{}{
		"estimated_cost":         cost.Round(2),
		"admin_discount_percent": discount,
	}
	if err := h.requests.UpdateFields(id, fields); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update request"})
		return
	}
	h.audit(c, "request_priced", "service_request", id)
	updated, _ := h.requests.GetByID(id)
	c.JSON(http.StatusOK, updated)
}

// UpdateStatus advances a request through its lifecycle.
func (h *RequestHandler) UpdateStatus(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		return
	}
	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !repository.IsValidRequestStatus(req.Status) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status"})
		return
	}
	if err := h.requests.UpdateFields(id, map[string]interface{}{"status": req.Status}); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update request"})
		return
	}
	h.audit(c, "request_status_"+req.Status, "service_request", id)
	updated, _ := h.requests.GetByID(id)
	c.JSON(http.StatusOK, updated)
}

// IssuePaymentLink mints a fresh payment link token for an approved, priced
// request. Re-issuing replaces the previous token and restarts the expiry.
func (h *RequestHandler) IssuePaymentLink(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		return
	}
	req, err := h.requests.GetByID(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "request not found"})
		return
	}
	if !req.Chargeable() {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "request must be approved and priced before a payment link can be issued"})
		return
	}
	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	expiry := time.Now().Add(time.Duration(h.cfg.Payment.LinkExpiryHours) * time.Hour)
	fields := map[string]interface{}{
		"payment_link_token":  token,
		"payment_link_expiry": expiry,
	}
	if err := h.requests.UpdateFields(id, fields); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue payment link"})
		return
	}
	h.audit(c, "payment_link_issued", "service_request", id)
	c.JSON(http.StatusOK, gin.H{
		"payment_link_token":  token,
		"payment_link_expiry": expiry,
	})
}

// ListClients returns clients for the admin, searchable by name/email/company.
func (h *RequestHandler) ListClients(c *gin.Context) {
	page, limit := pagination(c)
	clients, total, err := h.clients.List(c.Query("search"), page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list clients"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"clients": clients, "total": total, "page": page, "limit": limit})
}

// DeleteClient removes a client that has no requests or payments.
func (h *RequestHandler) DeleteClient(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		return
	}
	if err := h.clients.Delete(id); err != nil {
		if err == repository.ErrClientHasRecords {
			c.JSON(http.StatusConflict, gin.H{"error": "client still owns requests or payments"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete client"})
		return
	}
	h.audit(c, "client_deleted", "client", id)
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (h *RequestHandler) audit(c *gin.Context, action, resource string, resourceID uint) {
	adminID := middleware.GetAdminID(c)
	_ = h.auditRepo.Create(&models.AuditLog{
		AdminID:    &adminID,
		Action:     action,
		Resource:   resource,
		ResourceID: strconv.FormatUint(uint64(resourceID), 10),
		IP:         c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
	})
}

// pagination reads page/limit query params with sane bounds.
func pagination(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit
}

// idParam parses the :id path segment, writing the error response itself.
func idParam(c *gin.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, err
	}
	return uint(id), nil
}
