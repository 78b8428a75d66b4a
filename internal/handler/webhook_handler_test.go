package handler

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"atelier/internal/domain"
	"atelier/internal/models"
	"atelier/internal/repository"
	"atelier/internal/service"
	"atelier/pkg/gateway"
)

func signPayload(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func liveWebhookRouter(t *testing.T, db *gorm.DB, secret string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	payments := repository.NewPaymentRepository(db)
	requests := repository.NewRequestRepository(db)
	lc := service.NewLifecycle(db, payments, requests)
	gw := gateway.NewClient("http://gateway.invalid", "sk_test", secret)
	h := NewWebhookHandler(gw, lc, repository.NewAuditLogRepository(db))
	r := gin.New()
	r.POST("/webhooks/gateway", h.HandleGateway)
	return r
}

func postWebhook(r *gin.Engine, secret string, body []byte) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/gateway", bytes.NewReader(body))
	req.Header.Set("x-paystack-signature", signPayload(secret, body))
	r.ServeHTTP(w, req)
	return w
}

func TestWebhookConfirmsPaymentByReference(t *testing.T) {
	db := testDB(t)
	req := seedApprovedRequest(t, db, "1000")
	p := &models.Payment{
		RequestID: req.ID, Amount: decimal.RequireFromString("500"), Currency: "USD",
		PaymentMethod: domain.PaymentMethodCardGateway, PaymentType: domain.PaymentTypeSplit,
		PaymentSequence: 1, PaymentStatus: domain.PaymentStatusPending, GatewayReference: "pay_hook_1",
	}
	require.NoError(t, db.Create(p).Error)

	secret := "whsec_live"
	r := liveWebhookRouter(t, db, secret)
	body := []byte(`{"event":"charge.success","data":{"reference":"pay_hook_1","status":"success"}}`)
	w := postWebhook(r, secret, body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var fresh models.Payment
	require.NoError(t, db.First(&fresh, p.ID).Error)
	assert.Equal(t, domain.PaymentStatusConfirmed, fresh.PaymentStatus)
}

func TestWebhookAcksUnknownReferenceWithoutAuditEntry(t *testing.T) {
	db := testDB(t)
	secret := "whsec_live"
	r := liveWebhookRouter(t, db, secret)

	body := []byte(`{"event":"charge.success","data":{"reference":"pay_nobody","status":"success"}}`)
	w := postWebhook(r, secret, body)
	assert.Equal(t, http.StatusOK, w.Code, "ack so the gateway stops redelivering")

	var n int64
	db.Model(&models.AuditLog{}).Where("action = ?", "webhook_integrity_failure").Count(&n)
	assert.Zero(t, n)
}

func TestWebhookIntegrityFailureIsRecordedForReview(t *testing.T) {
	db := testDB(t)
	req := seedApprovedRequest(t, db, "1000")
	for i, ref := range []string{"pay_tab_a", "pay_tab_b"} {
		p := &models.Payment{
			RequestID: req.ID, Amount: decimal.RequireFromString("500"), Currency: "USD",
			PaymentMethod: domain.PaymentMethodCardGateway, PaymentType: domain.PaymentTypeSplit,
			PaymentSequence: 1, PaymentStatus: domain.PaymentStatusPending, GatewayReference: ref,
		}
		require.NoError(t, db.Create(p).Error, "payment %d", i)
	}

	secret := "whsec_live"
	r := liveWebhookRouter(t, db, secret)

	// first tab settles the installment
	w := postWebhook(r, secret, []byte(`{"event":"charge.success","data":{"reference":"pay_tab_a","status":"success"}}`))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// the second tab's event cannot be applied; it is acked but left on the
	// audit trail instead of being logged away as an unknown reference
	w = postWebhook(r, secret, []byte(`{"event":"charge.success","data":{"reference":"pay_tab_b","status":"success"}}`))
	assert.Equal(t, http.StatusOK, w.Code)

	var fresh models.Payment
	require.NoError(t, db.Where("gateway_reference = ?", "pay_tab_b").First(&fresh).Error)
	assert.NotEqual(t, domain.PaymentStatusConfirmed, fresh.PaymentStatus)

	var entry models.AuditLog
	require.NoError(t, db.Where("action = ?", "webhook_integrity_failure").First(&entry).Error)
	assert.Equal(t, "pay_tab_b", entry.ResourceID)
	assert.Contains(t, entry.Metadata, "sequence 1", fmt.Sprintf("unexpected metadata: %s", entry.Metadata))
}
