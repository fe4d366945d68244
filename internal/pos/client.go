package pos

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/JonMunkholm/catalogsync/internal/catalog"
)

const maxResponseBytes = 32 << 20

// Client reads merchant inventory from the POS API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient returns a client for the API rooted at baseURL, for example
// https://api.clover.com. A nil httpClient uses one with a 30s timeout.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

// FetchInventory downloads the merchant's items and modifier groups and maps
// them into Items.
func (c *Client) FetchInventory(ctx context.Context, cred *Credential) ([]Item, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	hc := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: cred.AccessToken,
		TokenType:   "Bearer",
	}))

	var inv Inventory
	if err := c.get(ctx, hc, cred.MerchantID, "items", "categories,modifierGroups", &inv); err != nil {
		return nil, err
	}
	var groups CloverModifierGroups
	if err := c.get(ctx, hc, cred.MerchantID, "modifier_groups", "modifiers", &groups); err != nil {
		return nil, err
	}
	return MapInventory(inv, groups)
}

func (c *Client) get(ctx context.Context, hc *http.Client, merchantID, collection, expand string, out any) error {
	op := "fetch " + collection
	u := fmt.Sprintf("%s/v3/merchants/%s/%s?expand=%s", c.baseURL, url.PathEscape(merchantID), collection, url.QueryEscape(expand))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return catalog.E(catalog.ErrExternalService, op, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return catalog.E(catalog.ErrExternalService, op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return catalog.E(catalog.ErrExternalService, op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return catalog.Errorf(catalog.ErrExternalService, op, "status %d: %s", resp.StatusCode, snippet(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return catalog.E(catalog.ErrExternalService, op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
