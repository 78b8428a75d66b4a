package handler

import (
	"errors"
	"net/http"
	"time"

	"atelier/internal/service"
	"atelier/pkg/cryptorail"

	"github.com/gin-gonic/gin"
)

// CryptoHandler serves the public crypto surface: which networks are
// accepted, and the customer's transaction hash submission.
type CryptoHandler struct {
	lifecycle *service.Lifecycle
	addresses map[string]string
}

func NewCryptoHandler(lifecycle *service.Lifecycle, addresses map[string]string) *CryptoHandler {
	return &CryptoHandler{lifecycle: lifecycle, addresses: addresses}
}

// ListNetworks returns the supported networks and whether each is accepting
// payments (a network without a receiving address is listed but disabled).
func (h *CryptoHandler) ListNetworks(c *gin.Context) {
	type networkInfo struct {
		ID      string `json:"id"`
		Symbol  string `json:"symbol"`
		Name    string `json:"name"`
		Enabled bool   `json:"enabled"`
	}
	var out []networkInfo
	for _, id := range cryptorail.Networks() {
		n, err := cryptorail.GetNetwork(id)
		if err != nil {
			continue
		}
		out = append(out, networkInfo{
			ID:      n.ID,
			Symbol:  n.Symbol,
			Name:    n.Name,
			Enabled: h.addresses[n.ID] != "",
		})
	}
	c.JSON(http.StatusOK, gin.H{"networks": out})
}

// SubmitHash records the customer's transaction hash against a pending crypto
// payment. A well-formed hash moves the payment to processing; confirmation
// stays with the admin.
func (h *CryptoHandler) SubmitHash(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		return
	}
	var req struct {
		TransactionHash string `json:"transaction_hash" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := h.lifecycle.SubmitCryptoHash(id, req.TransactionHash)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrBadTransactionHash):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "transaction hash does not match the network format"})
		case errors.Is(err, service.ErrInvalidTransition):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusNotFound, gin.H{"error": "payment not found"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"payment_id":     p.ID,
		"payment_status": p.PaymentStatus,
		"submitted_at":   time.Now(),
	})
}
