package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"atelier/internal/models"
	"atelier/internal/repository"
	"atelier/internal/service"
	"atelier/pkg/gateway"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// WebhookHandler receives card gateway callbacks. The raw body is read before
// any JSON parsing because the HMAC is computed over the exact bytes sent.
type WebhookHandler struct {
	gateway   *gateway.Client
	lifecycle *service.Lifecycle
	auditRepo *repository.AuditLogRepository
}

func NewWebhookHandler(gw *gateway.Client, lifecycle *service.Lifecycle, auditRepo *repository.AuditLogRepository) *WebhookHandler {
	return &WebhookHandler{gateway: gw, lifecycle: lifecycle, auditRepo: auditRepo}
}

// HandleGateway processes a gateway event. Signature verification fails
// closed: no configured secret means no webhook is ever accepted.
func (h *WebhookHandler) HandleGateway(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	sig := c.GetHeader("x-paystack-signature")
	if !h.gateway.VerifyWebhookSignature(body, sig) {
		log.Printf("[Webhook] rejected event with bad signature from %s", c.ClientIP())
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
		return
	}

	var event struct {
		Event string `json:"event"`
		Data  struct {
			Reference string `json:"reference"`
			Status    string `json:"status"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if event.Data.Reference == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reference required"})
		return
	}

	status := event.Data.Status
	if event.Event == "charge.success" {
		status = "success"
	}
	p, err := h.lifecycle.ApplyGatewayStatus(event.Data.Reference, status)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// unknown reference: acknowledge so the gateway stops redelivering
		log.Printf("[Webhook] %s for unknown reference %s", event.Event, event.Data.Reference)
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}
	if err != nil {
		// an integrity failure (overpayment, double confirmation) will not
		// resolve on redelivery; ack it but leave a trail for review
		log.Printf("[Webhook] integrity failure applying %s to %s: %v", status, event.Data.Reference, err)
		_ = h.auditRepo.Create(&models.AuditLog{
			Action:     "webhook_integrity_failure",
			Resource:   "payment",
			ResourceID: event.Data.Reference,
			IP:         c.ClientIP(),
			UserAgent:  c.Request.UserAgent(),
			Metadata:   err.Error(),
		})
		c.JSON(http.StatusOK, gin.H{"received": true, "error": "event could not be applied"})
		return
	}
	_ = h.auditRepo.Create(&models.AuditLog{
		Action:     "webhook_" + event.Event,
		Resource:   "payment",
		ResourceID: event.Data.Reference,
		IP:         c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
		Metadata:   string(body),
	})
	c.JSON(http.StatusOK, gin.H{"received": true, "payment_status": p.PaymentStatus})
}
