package cryptorail

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAddresses = map[string]string{
	"bitcoin":    "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4",
	"ethereum":   "0x71C7656EC7ab88b098defB751B7401B5f6d8976F",
	"usdt-erc20": "0x71C7656EC7ab88b098defB751B7401B5f6d8976F",
	"usdt-trc20": "TQehEHqevPkudydohYrjJxDwdBkAgFUebw",
}

func TestStablecoinQuoteNoExternalCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("stablecoin pricing must not hit the price source")
	}))
	defer srv.Close()

	a := NewAdapter(testAddresses, srv.URL, 30*time.Minute)
	d, err := a.GeneratePaymentDetails(context.Background(), "usdt-trc20", decimal.NewFromInt(250), "pay_1")
	require.NoError(t, err)
	assert.Equal(t, "250.000000", d.AmountCrypto.StringFixed(6))
	assert.Equal(t, "1", d.ExchangeRate.String())
	assert.Equal(t, testAddresses["usdt-trc20"], d.Address)
}

func TestNonStablecoinUsesSpotPrice(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		require.Equal(t, "BTC-USDT", r.URL.Query().Get("instId"))
		w.Write([]byte(`{"code":"0","data":[{"instId":"BTC-USDT","last":"50000"}]}`))
	}))
	defer srv.Close()

	a := NewAdapter(testAddresses, srv.URL, 30*time.Minute)
	d, err := a.GeneratePaymentDetails(context.Background(), "bitcoin", decimal.NewFromInt(1000), "pay_2")
	require.NoError(t, err)
	assert.Equal(t, "0.02000000", d.AmountCrypto.StringFixed(8))
	assert.Equal(t, "50000", d.ExchangeRate.String())

	// second quote inside the cache TTL reuses the fetched price
	_, err = a.GeneratePaymentDetails(context.Background(), "bitcoin", decimal.NewFromInt(2000), "pay_3")
	require.NoError(t, err)
	assert.EqualValues(t, 1, calls)
}

func TestNonStablecoinFailsHardWithoutPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	a := NewAdapter(testAddresses, srv.URL, 30*time.Minute)
	_, err := a.GeneratePaymentDetails(context.Background(), "ethereum", decimal.NewFromInt(100), "pay_4")
	assert.ErrorIs(t, err, ErrPriceUnavailable)
}

func TestBoundsEnforcedBeforeAddressIssued(t *testing.T) {
	a := NewAdapter(testAddresses, "", 30*time.Minute)
	_, err := a.GeneratePaymentDetails(context.Background(), "usdt-trc20", decimal.NewFromInt(1), "pay_5")
	assert.ErrorIs(t, err, ErrBelowMinimum)
	_, err = a.GeneratePaymentDetails(context.Background(), "usdt-trc20", decimal.NewFromInt(60000), "pay_6")
	assert.ErrorIs(t, err, ErrAboveMaximum)
}

func TestUnknownNetwork(t *testing.T) {
	a := NewAdapter(testAddresses, "", 30*time.Minute)
	_, err := a.GeneratePaymentDetails(context.Background(), "dogecoin", decimal.NewFromInt(100), "pay_7")
	assert.ErrorIs(t, err, ErrUnknownNetwork)
}

func TestMissingReceivingAddress(t *testing.T) {
	a := NewAdapter(map[string]string{}, "", 30*time.Minute)
	_, err := a.GeneratePaymentDetails(context.Background(), "usdt-trc20", decimal.NewFromInt(100), "pay_8")
	assert.ErrorIs(t, err, ErrNoReceivingAddress)
}

func TestValidateTransactionHash(t *testing.T) {
	btcHash := strings.Repeat("a1", 32)
	assert.True(t, ValidateTransactionHash("bitcoin", btcHash))
	assert.True(t, ValidateTransactionHash("usdt-trc20", btcHash))
	assert.False(t, ValidateTransactionHash("bitcoin", "0x"+btcHash))

	evm := "0x" + strings.Repeat("b2", 32)
	assert.True(t, ValidateTransactionHash("ethereum", evm))
	assert.True(t, ValidateTransactionHash("usdt-erc20", evm))
	assert.False(t, ValidateTransactionHash("usdt-erc20", btcHash))

	assert.False(t, ValidateTransactionHash("bitcoin", "short"))
	assert.False(t, ValidateTransactionHash("nope", btcHash))
}

func TestPaymentURISchemes(t *testing.T) {
	btc, _ := GetNetwork("bitcoin")
	uri := btc.PaymentURI("bc1qaddr", decimal.RequireFromString("0.5"))
	assert.Equal(t, "bitcoin:bc1qaddr?amount=0.50000000", uri)

	eth, _ := GetNetwork("ethereum")
	assert.True(t, strings.HasPrefix(eth.PaymentURI("0xabc", decimal.NewFromInt(1)), "ethereum:0xabc?amount="))

	trc, _ := GetNetwork("usdt-trc20")
	assert.Equal(t, "TAddr", trc.PaymentURI("TAddr", decimal.NewFromInt(5)), "bare address for networks without a URI convention")

	erc, _ := GetNetwork("usdt-erc20")
	assert.Equal(t, "0xabc", erc.PaymentURI("0xabc", decimal.NewFromInt(100)),
		"token transfers get the bare address, an ethereum: amount URI would denominate in ETH")
}

func TestQRCodeIsDataURL(t *testing.T) {
	a := NewAdapter(testAddresses, "", 30*time.Minute)
	d, err := a.GeneratePaymentDetails(context.Background(), "usdt-erc20", decimal.NewFromInt(100), "pay_9")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(d.QRCodeURL, "data:image/png;base64,"))
	assert.False(t, d.ExpiresAt.IsZero())
}
