package handler

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"atelier/config"
	"atelier/internal/domain"
	"atelier/internal/models"
	"atelier/internal/repository"
	"atelier/internal/service"
	"atelier/pkg/cryptorail"
	"atelier/pkg/gateway"
	"atelier/pkg/quote"
	"atelier/pkg/reference"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// PaymentHandler serves the public payment page: quoting, checkout on the
// card and crypto rails, and post-redirect verification. Every endpoint is
// keyed by the payment link token, never by raw request ID.
type PaymentHandler struct {
	cfg       *config.Config
	requests  *repository.RequestRepository
	payments  *repository.PaymentRepository
	lifecycle *service.Lifecycle
	gateway   *gateway.Client
	crypto    *cryptorail.Adapter
	refs      *reference.Generator
}

func NewPaymentHandler(
	cfg *config.Config,
	requests *repository.RequestRepository,
	payments *repository.PaymentRepository,
	lifecycle *service.Lifecycle,
	gw *gateway.Client,
	crypto *cryptorail.Adapter,
	refs *reference.Generator,
) *PaymentHandler {
	return &PaymentHandler{
		cfg:       cfg,
		requests:  requests,
		payments:  payments,
		lifecycle: lifecycle,
		gateway:   gw,
		crypto:    crypto,
		refs:      refs,
	}
}

// resolveLink looks up the request behind a payment link token and enforces
// the expiry gate. Writes the error response itself on failure.
func (h *PaymentHandler) resolveLink(c *gin.Context) *models.ServiceRequest {
	req, err := h.requests.GetByLinkToken(c.Param("token"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "payment link not found"})
		return nil
	}
	if req.LinkExpired(time.Now()) {
		c.JSON(http.StatusGone, gin.H{"error": "payment link has expired"})
		return nil
	}
	return req
}

// GetPage returns everything the payment page renders: the request summary,
// both quote options and the payment history so far.
func (h *PaymentHandler) GetPage(c *gin.Context) {
	req := h.resolveLink(c)
	if req == nil {
		return
	}
	ratio := decimal.RequireFromString(h.cfg.Payment.SplitRatio)
	split, _ := quote.Calculate(req.EstimatedCost, req.AdminDiscountPercent, domain.PaymentTypeSplit, ratio)
	full, _ := quote.Calculate(req.EstimatedCost, req.AdminDiscountPercent, domain.PaymentTypeFull, ratio)
	payments, _ := h.payments.ListByRequest(req.ID)
	c.JSON(http.StatusOK, gin.H{
		"request": gin.H{
			"id":                     req.ID,
			"title":                  req.Title,
			"status":                 req.Status,
			"estimated_cost":         req.EstimatedCost,
			"discount_percent":       req.AdminDiscountPercent,
			"partial_payment_status": req.PartialPaymentStatus,
			"client_name":            req.Client.Name,
		},
		"quotes": gin.H{
			"split": split,
			"full":  full,
		},
		"payments":        payments,
		"crypto_networks": cryptorail.Networks(),
	})
}

// Quote computes the charge breakdown for one payment type.
func (h *PaymentHandler) Quote(c *gin.Context) {
	req := h.resolveLink(c)
	if req == nil {
		return
	}
	paymentType := c.DefaultQuery("type", domain.PaymentTypeSplit)
	ratio := decimal.RequireFromString(h.cfg.Payment.SplitRatio)
	b, err := quote.Calculate(req.EstimatedCost, req.AdminDiscountPercent, paymentType, ratio)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, b)
}

// Checkout creates a payment intent on the chosen rail. The request must be
// approved and priced, the link unexpired, and the split leg not already paid.
func (h *PaymentHandler) Checkout(c *gin.Context) {
	req := h.resolveLink(c)
	if req == nil {
		return
	}
	var body struct {
		PaymentMethod string `json:"payment_method" binding:"required,oneof=card_gateway crypto bank_transfer"`
		PaymentType   string `json:"payment_type" binding:"required,oneof=split full"`
		CryptoNetwork string `json:"crypto_network"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !req.Chargeable() {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "request is not approved for payment"})
		return
	}

	amount, sequence, err := h.chargeAmount(req, body.PaymentType)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	taken, err := h.payments.HasConfirmedSequence(nil, req.ID, sequence, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check payment history"})
		return
	}
	if taken {
		c.JSON(http.StatusConflict, gin.H{"error": "this installment has already been paid"})
		return
	}

	ref := h.refs.Next("pay")
	p := &models.Payment{
		RequestID:        req.ID,
		Amount:           amount,
		Currency:         "USD",
		PaymentMethod:    body.PaymentMethod,
		PaymentType:      body.PaymentType,
		PaymentSequence:  sequence,
		PaymentStatus:    domain.PaymentStatusPending,
		GatewayReference: ref,
	}

	switch body.PaymentMethod {
	case domain.PaymentMethodCardGateway:
		h.checkoutCard(c, req, p)
	case domain.PaymentMethodCrypto:
		h.checkoutCrypto(c, p, body.CryptoNetwork)
	case domain.PaymentMethodBankTransfer:
		h.checkoutBank(c, p)
	}
}

func (h *PaymentHandler) checkoutCard(c *gin.Context, req *models.ServiceRequest, p *models.Payment) {
	res, err := h.gateway.Initialize(c.Request.Context(), req.Client.Email, p.Amount, p.Currency, p.GatewayReference, map[string]interface{}{
		"request_id":       req.ID,
		"payment_type":     p.PaymentType,
		"payment_sequence": p.PaymentSequence,
	})
	if err != nil {
		status, msg := gatewayErrorResponse(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	if err := h.payments.Create(p); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record payment"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"payment_id":        p.ID,
		"reference":         p.GatewayReference,
		"amount":            p.Amount,
		"authorization_url": res.AuthorizationURL,
		"access_code":       res.AccessCode,
	})
}

func (h *PaymentHandler) checkoutCrypto(c *gin.Context, p *models.Payment, networkID string) {
	details, err := h.crypto.GeneratePaymentDetails(c.Request.Context(), networkID, p.Amount, p.GatewayReference)
	if err != nil {
		status, msg := cryptoErrorResponse(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	p.CryptoAddress = details.Address
	p.CryptoNetwork = details.Network
	p.CryptoAmount = details.AmountCrypto
	p.CryptoSymbol = details.Symbol
	if err := h.payments.Create(p); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record payment"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"payment_id": p.ID,
		"reference":  p.GatewayReference,
		"amount":     p.Amount,
		"crypto":     details,
	})
}

// checkoutBank records a pending bank-transfer intent and returns wiring
// instructions. The money arrives out of band; an admin approves the payment
// once the transfer shows up with the reference in its memo.
func (h *PaymentHandler) checkoutBank(c *gin.Context, p *models.Payment) {
	if err := h.payments.Create(p); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record payment"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"payment_id": p.ID,
		"reference":  p.GatewayReference,
		"amount":     p.Amount,
		"instructions": []string{
			fmt.Sprintf("Transfer exactly $%s to the account details provided in your invoice email.", p.Amount.StringFixed(2)),
			fmt.Sprintf("Include the reference %s in the transfer memo.", p.GatewayReference),
			"Your payment is confirmed by our team once the transfer is received, usually within one business day.",
		},
	})
}

// VerifyReference re-checks a card payment against the gateway after the
// customer returns from hosted checkout, and applies the authoritative status.
func (h *PaymentHandler) VerifyReference(c *gin.Context) {
	req := h.resolveLink(c)
	if req == nil {
		return
	}
	ref := c.Param("reference")
	p, err := h.payments.GetByReference(ref)
	if err != nil || p.RequestID != req.ID {
		c.JSON(http.StatusNotFound, gin.H{"error": "payment not found"})
		return
	}
	res, err := h.gateway.Verify(c.Request.Context(), ref)
	if err != nil {
		status, msg := gatewayErrorResponse(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	updated, err := h.lifecycle.ApplyGatewayStatus(ref, res.Status)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to apply gateway status"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"reference":      ref,
		"gateway_status": res.Status,
		"payment_status": updated.PaymentStatus,
	})
}

// Status polls the current state of the request's payments.
func (h *PaymentHandler) Status(c *gin.Context) {
	req := h.resolveLink(c)
	if req == nil {
		return
	}
	payments, err := h.payments.ListByRequest(req.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load payments"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"partial_payment_status": req.PartialPaymentStatus,
		"payments":               payments,
	})
}

// chargeAmount resolves the amount and split sequence for a new intent.
func (h *PaymentHandler) chargeAmount(req *models.ServiceRequest, paymentType string) (decimal.Decimal, int, error) {
	ratio := decimal.RequireFromString(h.cfg.Payment.SplitRatio)
	if paymentType == domain.PaymentTypeFull {
		if req.PartialPaymentStatus != domain.PartialStatusNone {
			return decimal.Zero, 0, errors.New("a full payment is no longer available once an installment is paid")
		}
		b, err := quote.Calculate(req.EstimatedCost, req.AdminDiscountPercent, domain.PaymentTypeFull, ratio)
		if err != nil {
			return decimal.Zero, 0, err
		}
		return b.Amount, 1, nil
	}
	if req.PartialPaymentStatus == domain.PartialStatusFirstPaid {
		total, err := h.payments.ConfirmedTotal(nil, req.ID)
		if err != nil {
			return decimal.Zero, 0, err
		}
		return quote.SecondLeg(req.EstimatedCost, total), 2, nil
	}
	b, err := quote.Calculate(req.EstimatedCost, req.AdminDiscountPercent, domain.PaymentTypeSplit, ratio)
	if err != nil {
		return decimal.Zero, 0, err
	}
	return b.Amount, 1, nil
}

// gatewayErrorResponse maps gateway failures onto HTTP statuses: breaker or
// exhausted retries read as 503, everything else as the gateway's own fault.
func gatewayErrorResponse(err error) (int, string) {
	if errors.Is(err, gateway.ErrUnavailable) {
		return http.StatusServiceUnavailable, "the payment gateway is temporarily unavailable, please try again shortly"
	}
	var gerr *gateway.GatewayError
	if errors.As(err, &gerr) {
		return http.StatusBadGateway, gerr.Message
	}
	return http.StatusBadGateway, "payment gateway error"
}

func cryptoErrorResponse(err error) (int, string) {
	switch {
	case errors.Is(err, cryptorail.ErrUnknownNetwork):
		return http.StatusBadRequest, "unknown crypto network"
	case errors.Is(err, cryptorail.ErrNoReceivingAddress):
		return http.StatusBadRequest, "this crypto network is not currently accepted"
	case errors.Is(err, cryptorail.ErrBelowMinimum), errors.Is(err, cryptorail.ErrAboveMaximum):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, cryptorail.ErrPriceUnavailable):
		return http.StatusServiceUnavailable, "live pricing is temporarily unavailable, please try again shortly"
	}
	return http.StatusInternalServerError, "failed to prepare crypto payment"
}
