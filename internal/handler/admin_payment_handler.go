package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"atelier/internal/middleware"
	"atelier/internal/models"
	"atelier/internal/repository"
	"atelier/internal/service"
	"atelier/pkg/gateway"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// AdminPaymentHandler is the reconciliation surface: everything an operator
// does to payments after the money has (or hasn't) moved.
type AdminPaymentHandler struct {
	payments  *repository.PaymentRepository
	lifecycle *service.Lifecycle
	sweeper   *service.Sweeper
	gateway   *gateway.Client
	auditRepo *repository.AuditLogRepository
}

func NewAdminPaymentHandler(
	payments *repository.PaymentRepository,
	lifecycle *service.Lifecycle,
	sweeper *service.Sweeper,
	gw *gateway.Client,
	auditRepo *repository.AuditLogRepository,
) *AdminPaymentHandler {
	return &AdminPaymentHandler{
		payments:  payments,
		lifecycle: lifecycle,
		sweeper:   sweeper,
		gateway:   gw,
		auditRepo: auditRepo,
	}
}

// List returns payments filterable by status and method.
func (h *AdminPaymentHandler) List(c *gin.Context) {
	page, limit := pagination(c)
	payments, total, err := h.payments.List(c.Query("status"), c.Query("method"), page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list payments"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": payments, "total": total, "page": page, "limit": limit})
}

func (h *AdminPaymentHandler) Get(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		return
	}
	p, err := h.payments.GetByID(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "payment not found"})
		return
	}
	c.JSON(http.StatusOK, p)
}

// Approve confirms a payment after the operator has sighted the money.
func (h *AdminPaymentHandler) Approve(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		return
	}
	var req struct {
		ObservedReference string `json:"observed_reference"`
	}
	_ = c.ShouldBindJSON(&req) // body optional

	p, err := h.lifecycle.Approve(id, req.ObservedReference)
	if err != nil {
		h.lifecycleError(c, err)
		return
	}
	h.audit(c, "payment_approved", p.ID)
	c.JSON(http.StatusOK, p)
}

// Decline rejects a non-terminal payment with a reason.
func (h *AdminPaymentHandler) Decline(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		return
	}
	var req struct {
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := h.lifecycle.Decline(id, req.Reason)
	if err != nil {
		h.lifecycleError(c, err)
		return
	}
	h.audit(c, "payment_declined", p.ID)
	c.JSON(http.StatusOK, p)
}

// Delete removes a failed, cancelled or declined payment record.
func (h *AdminPaymentHandler) Delete(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		return
	}
	if err := h.lifecycle.Delete(id); err != nil {
		if errors.Is(err, service.ErrNotDeletable) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "payment not found"})
		return
	}
	h.audit(c, "payment_deleted", id)
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// RecordManual books a payment received out of band and confirms it.
func (h *AdminPaymentHandler) RecordManual(c *gin.Context) {
	var req struct {
		RequestID   uint   `json:"request_id" binding:"required"`
		Amount      string `json:"amount" binding:"required"`
		Method      string `json:"method"`
		ReceivedAt  string `json:"received_at"`
		Reference   string `json:"reference" binding:"required"`
		Notes       string `json:"notes"`
		PaymentType string `json:"payment_type"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be a decimal string"})
		return
	}
	received := time.Now()
	if req.ReceivedAt != "" {
		if t, err := time.Parse("2006-01-02", req.ReceivedAt); err == nil {
			received = t
		}
	}
	p, err := h.lifecycle.RecordManualPayment(req.RequestID, amount, req.Method, received, req.Reference, req.Notes, req.PaymentType)
	if err != nil {
		h.lifecycleError(c, err)
		return
	}
	h.audit(c, "payment_recorded_manual", p.ID)
	c.JSON(http.StatusCreated, p)
}

// VerifyCrypto confirms a processing crypto payment after out-of-band
// inspection of the transaction on a block explorer.
func (h *AdminPaymentHandler) VerifyCrypto(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		return
	}
	p, err := h.lifecycle.VerifyCrypto(id)
	if err != nil {
		h.lifecycleError(c, err)
		return
	}
	h.audit(c, "crypto_payment_verified", p.ID)
	c.JSON(http.StatusOK, p)
}

// VerifyGateway re-checks one payment against the gateway's authoritative
// record and applies the result, for reconciling missed webhooks.
func (h *AdminPaymentHandler) VerifyGateway(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		return
	}
	p, err := h.payments.GetByID(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "payment not found"})
		return
	}
	res, err := h.gateway.Verify(c.Request.Context(), p.GatewayReference)
	if err != nil {
		status, msg := gatewayErrorResponse(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	updated, err := h.lifecycle.ApplyGatewayStatus(p.GatewayReference, res.Status)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to apply gateway status"})
		return
	}
	h.audit(c, "payment_gateway_verified", updated.ID)
	c.JSON(http.StatusOK, gin.H{
		"gateway_status": res.Status,
		"payment":        updated,
	})
}

// GatewayTransactions proxies the gateway's transaction listing for
// side-by-side reconciliation. Responses are served from a short cache.
func (h *AdminPaymentHandler) GatewayTransactions(c *gin.Context) {
	params := map[string]string{}
	for _, key := range []string{"status", "from", "to", "page", "perPage"} {
		if v := c.Query(key); v != "" {
			params[key] = v
		}
	}
	txs, err := h.gateway.ListTransactions(c.Request.Context(), params)
	if err != nil {
		status, msg := gatewayErrorResponse(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}

// Cleanup runs the stale-payment sweep on demand.
func (h *AdminPaymentHandler) Cleanup(c *gin.Context) {
	stats, err := h.sweeper.Run()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sweep failed"})
		return
	}
	h.audit(c, "cleanup_run", 0)
	c.JSON(http.StatusOK, stats)
}

// CleanupStats reports what a sweep would do without changing anything.
func (h *AdminPaymentHandler) CleanupStats(c *gin.Context) {
	stats, err := h.sweeper.Stats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute sweep stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// lifecycleError maps lifecycle sentinel errors onto HTTP statuses.
func (h *AdminPaymentHandler) lifecycleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrOverpayment),
		errors.Is(err, service.ErrAmountExceedsDue),
		errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrMissingReference):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusNotFound, gin.H{"error": "payment not found"})
	}
}

func (h *AdminPaymentHandler) audit(c *gin.Context, action string, paymentID uint) {
	adminID := middleware.GetAdminID(c)
	_ = h.auditRepo.Create(&models.AuditLog{
		AdminID:    &adminID,
		Action:     action,
		Resource:   "payment",
		ResourceID: strconv.FormatUint(uint64(paymentID), 10),
		IP:         c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
	})
}
