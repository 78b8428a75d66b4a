package cryptorail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"
	qrcode "github.com/skip2/go-qrcode"
)

var ErrNoReceivingAddress = errors.New("no receiving address configured for network")

// Adapter resolves networks, prices USD amounts into crypto, and produces the
// payment details shown on the crypto payment page. Receiving addresses are
// deployment configuration. Construct once per process.
type Adapter struct {
	addresses map[string]string // network id -> receiving address
	prices    *priceSource
	expiry    time.Duration
	now       func() time.Time
}

func NewAdapter(addresses map[string]string, priceBaseURL string, expiry time.Duration) *Adapter {
	if expiry <= 0 {
		expiry = 30 * time.Minute
	}
	return &Adapter{
		addresses: addresses,
		prices:    newPriceSource(priceBaseURL),
		expiry:    expiry,
		now:       time.Now,
	}
}

// PaymentDetails is everything the payment page needs to collect a crypto payment.
type PaymentDetails struct {
	Network      string          `json:"network"`
	Symbol       string          `json:"symbol"`
	Address      string          `json:"address"`
	AmountCrypto decimal.Decimal `json:"amount_crypto"`
	AmountUSD    decimal.Decimal `json:"amount_usd"`
	ExchangeRate decimal.Decimal `json:"exchange_rate"`
	QRCodeURL    string          `json:"qr_code_url"`
	ExpiresAt    time.Time       `json:"expires_at"`
	Instructions []string        `json:"instructions"`
}

// GeneratePaymentDetails computes the crypto-denominated amount for usdAmount
// on the given network and returns address, rate, QR encoding and expiry.
// Stablecoins use a fixed 1.00 rate with no external call; non-stablecoins
// fail hard when the spot price cannot be fetched.
func (a *Adapter) GeneratePaymentDetails(ctx context.Context, networkID string, usdAmount decimal.Decimal, ref string) (*PaymentDetails, error) {
	n, err := GetNetwork(networkID)
	if err != nil {
		return nil, err
	}
	if err := n.CheckBounds(usdAmount); err != nil {
		return nil, err
	}
	address, ok := a.addresses[n.ID]
	if !ok || address == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoReceivingAddress, n.ID)
	}

	rate := decimal.NewFromInt(1)
	if !n.Stablecoin {
		rate, err = a.prices.spot(ctx, n.Ticker)
		if err != nil {
			return nil, err
		}
	}
	// round up at native precision so the received amount always covers the USD quote
	amountCrypto := usdAmount.Div(rate).RoundCeil(n.Decimals)

	uri := n.PaymentURI(address, amountCrypto)
	qrURL, err := encodeQR(uri)
	if err != nil {
		return nil, fmt.Errorf("qr encoding: %w", err)
	}

	log.Printf("[Crypto] payment details ref=%s network=%s usd=%s crypto=%s %s",
		ref, n.ID, usdAmount.StringFixed(2), amountCrypto.StringFixed(n.Decimals), n.Symbol)

	return &PaymentDetails{
		Network:      n.ID,
		Symbol:       n.Symbol,
		Address:      address,
		AmountCrypto: amountCrypto,
		AmountUSD:    usdAmount.Round(2),
		ExchangeRate: rate,
		QRCodeURL:    qrURL,
		ExpiresAt:    a.now().Add(a.expiry),
		Instructions: instructions(n, address, amountCrypto, ref),
	}, nil
}

func instructions(n Network, address string, amount decimal.Decimal, ref string) []string {
	return []string{
		fmt.Sprintf("Send exactly %s %s to the address below on the %s network.", amount.StringFixed(n.Decimals), n.Symbol, n.Name),
		fmt.Sprintf("Address: %s", address),
		fmt.Sprintf("Quote your payment reference %s in any support request.", ref),
		"After sending, submit the transaction hash so we can verify your payment.",
		"Payments sent on the wrong network cannot be recovered.",
	}
}

// encodeQR renders the URI as a PNG data URL so no asset hosting is needed.
func encodeQR(uri string) (string, error) {
	png, err := qrcode.Encode(uri, qrcode.Medium, 256)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
