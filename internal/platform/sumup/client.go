// Package sumup implements the SumUp REST API client used by the sync
// pipeline: refresh-token exchange, paginated transaction history with
// endpoint-version fallback, and per-transaction detail lookups.
package sumup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/restobook/sumup-sync/internal/config"
	"github.com/restobook/sumup-sync/internal/domain/payload"
)

// ErrUnauthorized signals a 401 from the provider. Callers refresh the token
// once and retry; a second 401 is a per-transaction error.
var ErrUnauthorized = errors.New("sumup: unauthorized")

const dateLayout = "2006-01-02"

// Client talks to the SumUp API. Safe for concurrent use.
type Client struct {
	baseURL    string
	tokenURL   string
	httpClient *http.Client
	logger     *slog.Logger
	pageSize   int
	maxPages   int
}

// NewClient creates a SumUp API client from configuration
func NewClient(logger *slog.Logger, cfg *config.SumUpConfig) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.APIBaseURL, "/"),
		tokenURL:   cfg.TokenURL,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		logger:     logger,
		pageSize:   cfg.PageSize,
		maxPages:   cfg.MaxPages,
	}
}

// ExchangeRefreshToken performs a grant_type=refresh_token exchange and
// returns the rotated token pair.
func (c *Client) ExchangeRefreshToken(ctx context.Context, clientID, clientSecret, refreshToken string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", clientID)
	form.Set("client_secret", clientSecret)
	form.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("sumup: failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sumup: token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("sumup: failed to read token response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &RefreshError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var token TokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, fmt.Errorf("sumup: failed to decode token response: %w", err)
	}
	if token.AccessToken == "" {
		return nil, &RefreshError{StatusCode: resp.StatusCode, Body: "token response missing access_token"}
	}

	return &token, nil
}

// ListTransactions pages through the transaction history. The v0.1 personal
// endpoint is preferred; a 404 on the very first page switches to the v2.1
// merchant history endpoint for the remainder of the run. Failures after the
// first page end pagination early and return what was accumulated.
func (c *Client) ListTransactions(ctx context.Context, accessToken, merchantCode string, from, to *time.Time) ([]payload.Payload, error) {
	primary := c.historyURL(fmt.Sprintf("%s/v0.1/me/transactions", c.baseURL), from, to)
	fallback := c.historyURL(fmt.Sprintf("%s/v2.1/merchants/%s/transactions/history", c.baseURL, url.PathEscape(merchantCode)), from, to)

	var accumulated []payload.Payload
	next := primary
	usedFallback := false

	for page := 0; page < c.maxPages && next != ""; page++ {
		items, nextLink, status, err := c.fetchPage(ctx, accessToken, next)
		if err != nil || status == http.StatusUnauthorized {
			if status == http.StatusUnauthorized && page == 0 && len(accumulated) == 0 {
				return nil, ErrUnauthorized
			}
			if status == http.StatusNotFound && page == 0 && !usedFallback {
				c.logger.Info("primary transaction endpoint unavailable, switching to merchant history endpoint",
					"merchant_code", merchantCode)
				usedFallback = true
				next = fallback
				page--
				continue
			}
			c.logger.Warn("transaction page fetch failed, returning accumulated results",
				"merchant_code", merchantCode,
				"page", page,
				"status", status,
				"error", err,
				"accumulated", len(accumulated),
			)
			return accumulated, nil
		}

		accumulated = append(accumulated, items...)

		if len(items) < c.pageSize {
			break
		}
		next = c.resolveLink(nextLink)
	}

	return accumulated, nil
}

// FetchDetail fetches the single-transaction endpoint. Any non-2xx response
// other than 401, and any transport error, yields (nil, nil): callers fall
// back to list data when detail is unavailable.
func (c *Client) FetchDetail(ctx context.Context, accessToken, merchantCode, transactionID string) (payload.Payload, error) {
	detailURL := fmt.Sprintf("%s/v2.1/merchants/%s/transactions?id=%s",
		c.baseURL, url.PathEscape(merchantCode), url.QueryEscape(transactionID))

	body, status, err := c.get(ctx, accessToken, detailURL)
	if err != nil {
		c.logger.Debug("transaction detail fetch failed", "transaction_id", transactionID, "error", err)
		return nil, nil
	}
	if status == http.StatusUnauthorized {
		return nil, ErrUnauthorized
	}
	if status < 200 || status >= 300 {
		c.logger.Debug("transaction detail unavailable", "transaction_id", transactionID, "status", status)
		return nil, nil
	}

	var decoded interface{}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, nil
	}

	if p, ok := payload.AsPayload(decoded); ok {
		return p, nil
	}
	// Some API versions wrap the single record in an array
	if arr, ok := decoded.([]interface{}); ok && len(arr) > 0 {
		if p, ok := payload.AsPayload(arr[0]); ok {
			return p, nil
		}
	}
	return nil, nil
}

// MergeDetail lays the detail record over the list record. Tip, VAT, and
// gross amount explicitly prefer the detail value, then the list value, then
// zero; where exactly these fields live varies between API versions.
func MergeDetail(list, detail payload.Payload) payload.Payload {
	if detail == nil {
		return list.Clone()
	}

	merged := list.Merge(detail)
	for _, field := range []string{"tip_amount", "vat_amount", "amount"} {
		if v, ok := detail.FirstNumber(field); ok {
			merged[field] = v
		} else if v, ok := list.FirstNumber(field); ok {
			merged[field] = v
		} else {
			merged[field] = 0.0
		}
	}
	return merged
}

// fetchPage fetches one history page and extracts its items and next link
func (c *Client) fetchPage(ctx context.Context, accessToken, pageURL string) (items []payload.Payload, nextLink string, status int, err error) {
	body, status, err := c.get(ctx, accessToken, pageURL)
	if err != nil {
		return nil, "", 0, err
	}
	if status < 200 || status >= 300 {
		return nil, "", status, fmt.Errorf("sumup: unexpected status %d", status)
	}

	var decoded interface{}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, "", status, fmt.Errorf("sumup: failed to decode page: %w", err)
	}

	var rawItems []interface{}
	switch v := decoded.(type) {
	case []interface{}:
		rawItems = v
	case map[string]interface{}:
		page := payload.Payload(v)
		if arr, ok := page.FirstArray("items", "transactions"); ok {
			rawItems = arr
		}
		nextLink = extractNextLink(v["links"])
	}

	for _, raw := range rawItems {
		if p, ok := payload.AsPayload(raw); ok {
			items = append(items, p)
		}
	}

	return items, nextLink, status, nil
}

func (c *Client) get(ctx context.Context, accessToken, rawURL string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("sumup: failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("sumup: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("sumup: failed to read response: %w", err)
	}

	return body, resp.StatusCode, nil
}

// historyURL builds a first-page URL with the page size and optional date range
func (c *Client) historyURL(endpoint string, from, to *time.Time) string {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(c.pageSize))
	if from != nil {
		params.Set("start_date", from.Format(dateLayout))
	}
	if to != nil {
		params.Set("end_date", to.Format(dateLayout))
	}
	return endpoint + "?" + params.Encode()
}

// resolveLink makes a provider-supplied next link absolute
func (c *Client) resolveLink(link string) string {
	if link == "" {
		return ""
	}
	if strings.HasPrefix(link, "http://") || strings.HasPrefix(link, "https://") {
		return link
	}
	return c.baseURL + "/" + strings.TrimPrefix(link, "/")
}

func extractNextLink(raw interface{}) string {
	arr, ok := raw.([]interface{})
	if !ok {
		return ""
	}
	for _, entry := range arr {
		obj, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		rel, _ := obj["rel"].(string)
		href, _ := obj["href"].(string)
		if rel == "next" && href != "" {
			return href
		}
	}
	return ""
}
