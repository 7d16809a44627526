// Package promo предоставляет клиент внешнего сервиса промоакций.
package promo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/shopspring/decimal"
)

// ErrPromotionNotFound возвращается, если промоакция не найдена.
var ErrPromotionNotFound = errors.New("promotion not found")

// Client инкапсулирует HTTP-взаимодействие с сервисом промоакций.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Promotion описывает ответ сервиса промоакций по одной акции.
type Promotion struct {
	ID           string          `json:"id"`
	Active       bool            `json:"active"`
	IsPercentage bool            `json:"is_percentage"`
	Value        decimal.Decimal `json:"value"`
}

// NewClient создаёт HTTP-клиент сервиса промоакций по указанному адресу.
func NewClient(baseURL string) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.HTTPClient.Timeout = 5 * time.Second
	rc.Logger = nil

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: rc.StandardClient(),
	}
}

// GetPromotion запрашивает состояние и величину скидки указанной промоакции.
func (c *Client) GetPromotion(ctx context.Context, id string) (*Promotion, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("promotions client not configured")
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	url := fmt.Sprintf("%s/api/promotions/%s", base, id)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNoContent {
		return nil, ErrPromotionNotFound
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result Promotion
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &result, nil
}
