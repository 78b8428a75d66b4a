package cryptorail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const (
	defaultPriceURL = "https://www.okx.com/api/v5/market/ticker"
	priceCacheTTL   = 2 * time.Minute
)

var ErrPriceUnavailable = errors.New("spot price unavailable")

// priceSource fetches and caches spot prices for non-stablecoin networks.
// Incorrect crypto amounts are a direct financial-loss risk, so there is no
// fallback rate for volatile assets: a fetch failure is a hard error.
type priceSource struct {
	baseURL string
	client  *http.Client

	mu    sync.Mutex
	cache map[string]cachedPrice
	now   func() time.Time
}

type cachedPrice struct {
	price   decimal.Decimal
	fetched time.Time
}

func newPriceSource(baseURL string) *priceSource {
	if baseURL == "" {
		baseURL = defaultPriceURL
	}
	return &priceSource{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
		cache:   make(map[string]cachedPrice),
		now:     time.Now,
	}
}

type tickerResponse struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data []struct {
		InstID string `json:"instId"`
		Last   string `json:"last"`
	} `json:"data"`
}

// spot returns the USD price for the instrument, cached for two minutes.
func (p *priceSource) spot(ctx context.Context, instID string) (decimal.Decimal, error) {
	p.mu.Lock()
	if c, ok := p.cache[instID]; ok && p.now().Sub(c.fetched) <= priceCacheTTL {
		p.mu.Unlock()
		return c.price, nil
	}
	p.mu.Unlock()

	u := fmt.Sprintf("%s?instId=%s", p.baseURL, url.QueryEscape(instID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrPriceUnavailable, err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrPriceUnavailable, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("%w: status %d", ErrPriceUnavailable, resp.StatusCode)
	}

	var out tickerResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrPriceUnavailable, err)
	}
	if len(out.Data) == 0 {
		return decimal.Zero, fmt.Errorf("%w: no data for %s", ErrPriceUnavailable, instID)
	}
	last, err := strconv.ParseFloat(out.Data[0].Last, 64)
	if err != nil || last <= 0 {
		return decimal.Zero, fmt.Errorf("%w: bad price %q for %s", ErrPriceUnavailable, out.Data[0].Last, instID)
	}

	price := decimal.NewFromFloat(last)
	p.mu.Lock()
	p.cache[instID] = cachedPrice{price: price, fetched: p.now()}
	p.mu.Unlock()
	return price, nil
}
