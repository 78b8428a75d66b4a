package handler

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"atelier/pkg/cryptorail"
	"atelier/pkg/gateway"
)

func TestPaginationBounds(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		query     string
		wantPage  int
		wantLimit int
	}{
		{"", 1, 20},
		{"page=3&limit=50", 3, 50},
		{"page=0&limit=0", 1, 20},
		{"page=-2&limit=500", 1, 20},
		{"page=abc&limit=xyz", 1, 20},
	}
	for _, tc := range cases {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/?"+tc.query, nil)
		page, limit := pagination(c)
		assert.Equal(t, tc.wantPage, page, tc.query)
		assert.Equal(t, tc.wantLimit, limit, tc.query)
	}
}

func TestGatewayErrorResponse(t *testing.T) {
	status, msg := gatewayErrorResponse(gateway.ErrUnavailable)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Contains(t, msg, "temporarily unavailable")

	status, _ = gatewayErrorResponse(errors.New("something else"))
	assert.Equal(t, http.StatusBadGateway, status)
}

func TestCryptoErrorResponse(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{cryptorail.ErrUnknownNetwork, http.StatusBadRequest},
		{cryptorail.ErrNoReceivingAddress, http.StatusBadRequest},
		{cryptorail.ErrBelowMinimum, http.StatusUnprocessableEntity},
		{cryptorail.ErrAboveMaximum, http.StatusUnprocessableEntity},
		{cryptorail.ErrPriceUnavailable, http.StatusServiceUnavailable},
		{errors.New("anything else"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		status, _ := cryptoErrorResponse(tc.err)
		assert.Equal(t, tc.want, status, tc.err.Error())
	}
}

func TestListNetworksMarksDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewCryptoHandler(nil, map[string]string{
		"bitcoin":    "bc1qexampleaddress",
		"usdt-trc20": "TExampleAddress",
	})
	r := gin.New()
	r.GET("/networks", h.ListNetworks)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/networks", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `"bitcoin"`)
	assert.Contains(t, body, `"ethereum"`)
	// bitcoin has an address, ethereum does not
	assert.Contains(t, body, `"id":"bitcoin","symbol":"BTC","name":"Bitcoin","enabled":true`)
	assert.Contains(t, body, `"id":"ethereum","symbol":"ETH","name":"Ethereum","enabled":false`)
}

func webhookRouter(secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	gw := gateway.NewClient("http://gateway.invalid", "sk_test", secret)
	h := NewWebhookHandler(gw, nil, nil)
	r := gin.New()
	r.POST("/webhooks/gateway", h.HandleGateway)
	return r
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	body := []byte(`{"event":"charge.success","data":{"reference":"pay_1","status":"success"}}`)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/gateway", bytes.NewReader(body))
	req.Header.Set("x-paystack-signature", "deadbeef")
	webhookRouter("whsec_test").ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhookRejectsWhenNoSecretConfigured(t *testing.T) {
	body := []byte(`{"event":"charge.success","data":{"reference":"pay_1","status":"success"}}`)
	mac := hmac.New(sha512.New, []byte("whsec_test"))
	mac.Write(body)
	sig := hex.EncodeToString(mac.Sum(nil))

	// even a well-formed signature is refused without a configured secret
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/gateway", bytes.NewReader(body))
	req.Header.Set("x-paystack-signature", sig)
	webhookRouter("").ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhookRejectsMissingReference(t *testing.T) {
	secret := "whsec_test"
	body := []byte(`{"event":"charge.success","data":{"status":"success"}}`)
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	sig := hex.EncodeToString(mac.Sum(nil))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/gateway", bytes.NewReader(body))
	req.Header.Set("x-paystack-signature", sig)
	webhookRouter(secret).ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
