package agrisense

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/smallbiznis/wasteloop/internal/config"
	"github.com/smallbiznis/wasteloop/internal/observability/tracing"
)

var (
	ErrNotConfigured  = errors.New("agrisense_not_configured")
	ErrSync           = errors.New("agrisense_sync_failed")
	ErrInvalidEnabled = errors.New("invalid_enabled")
	ErrPhoneRequired  = errors.New("phone_required")
)

const defaultTimeout = 5 * time.Second

// WasteItem is one ledger line as mirrored to the partner.
type WasteItem struct {
	Code     string  `json:"code"`
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit"`
}

// Package is the partner's read-only pickup package status.
type Package struct {
	Status     string      `json:"status"`
	PickupDate string      `json:"pickupDate"`
	Items      []WasteItem `json:"items"`
}

//go:generate mockgen -destination=mock/client_mock.go -package=mock github.com/smallbiznis/wasteloop/internal/agrisense PartnerClient

// PartnerClient is the outbound partner API. Each call is a single attempt.
type PartnerClient interface {
	Configured() bool
	Enable(ctx context.Context, phone string) (string, error)
	ReplaceList(ctx context.Context, phone string, items []WasteItem) error
	FetchPackage(ctx context.Context, phone string) (*Package, error)
}

type HTTPClient struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	http    *http.Client
}

func NewHTTPClient(cfg config.Config) PartnerClient {
	timeout := cfg.Agrisense.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.Agrisense.BaseURL), "/"),
		apiKey:  strings.TrimSpace(cfg.Agrisense.APIKey),
		timeout: timeout,
		http:    tracing.NewClient("agrisense", nil),
	}
}

func (c *HTTPClient) Configured() bool {
	return c != nil && c.baseURL != ""
}

func (c *HTTPClient) Enable(ctx context.Context, phone string) (string, error) {
	var out struct {
		FarmerID string `json:"farmerId"`
	}
	if err := c.do(ctx, http.MethodPost, "/farmers/enable", map[string]string{"phone": phone}, &out); err != nil {
		return "", err
	}
	farmerID := strings.TrimSpace(out.FarmerID)
	if farmerID == "" {
		return "", fmt.Errorf("%w: enable returned no farmer id", ErrSync)
	}
	return farmerID, nil
}

func (c *HTTPClient) ReplaceList(ctx context.Context, phone string, items []WasteItem) error {
	if items == nil {
		items = []WasteItem{}
	}
	body := map[string]any{"items": items}
	return c.do(ctx, http.MethodPut, "/farmers/"+url.PathEscape(phone)+"/waste", body, nil)
}

func (c *HTTPClient) FetchPackage(ctx context.Context, phone string) (*Package, error) {
	var out Package
	if err := c.do(ctx, http.MethodGet, "/farmers/"+url.PathEscape(phone)+"/package", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, in any, out any) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// url.Error carries the full URL, which embeds the phone number.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return fmt.Errorf("%w: %s: %v", ErrSync, method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("%w: %s returned status %d", ErrSync, method, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrSync, err)
	}
	return nil
}
