package roblox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultCatalogURL   = "https://catalog.roproxy.com"
	DefaultInventoryURL = "https://www.roproxy.com"

	// CategoryClothing and AssetTypeShirt select classic shirts in catalog search.
	CategoryClothing = 3
	AssetTypeShirt   = 2
	// AssetTypeGamePass is the inventory asset type for game passes.
	AssetTypeGamePass = 34

	maxBodyBytes = 10 << 20
)

type Options struct {
	CatalogURL   string
	InventoryURL string
	UserAgent    string
	Timeout      time.Duration
	// RPS caps outbound requests per second. Zero or less disables the limiter.
	RPS int
}

type Client struct {
	httpClient   *http.Client
	userAgent    string
	catalogURL   string
	inventoryURL string
	limiter      *rate.Limiter
	maxBody      int64
}

func NewClient(opts Options) *Client {
	if opts.CatalogURL == "" {
		opts.CatalogURL = DefaultCatalogURL
	}
	if opts.InventoryURL == "" {
		opts.InventoryURL = DefaultInventoryURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RPS > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Second/time.Duration(opts.RPS)), opts.RPS)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		userAgent:    opts.UserAgent,
		catalogURL:   opts.CatalogURL,
		inventoryURL: opts.InventoryURL,
		limiter:      limiter,
		maxBody:      maxBodyBytes,
	}
}

// StatusError is returned for any non-2xx upstream response.
type StatusError struct {
	StatusCode int
	URL        string
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status code: %d", e.URL, e.StatusCode)
}

func (e *StatusError) UpstreamBody() []byte { return e.Body }

// DecodeError is returned when an upstream body is not the JSON we expect.
type DecodeError struct {
	URL  string
	Body []byte
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("GET %s: decode response: %v", e.URL, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) UpstreamBody() []byte { return e.Body }

// ErrResponseTooLarge is returned when an upstream body exceeds the read limit.
var ErrResponseTooLarge = errors.New("upstream response too large")

// IsNotFound reports whether err is an upstream 404.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

// CatalogSearchResponse matches v1/search/items/details.
// Items are kept as raw JSON; their shape belongs to the catalog API.
type CatalogSearchResponse struct {
	Items []json.RawMessage
}

func (c *Client) SearchShirts(ctx context.Context, creatorName string) (*CatalogSearchResponse, error) {
	q := url.Values{}
	q.Set("Category", strconv.Itoa(CategoryClothing))
	q.Set("CreatorName", creatorName)
	q.Set("assetType", strconv.Itoa(AssetTypeShirt))
	u := c.catalogURL + "/v1/search/items/details?" + q.Encode()

	var raw struct {
		Data json.RawMessage `json:"data"`
	}
	if err := c.get(ctx, u, &raw); err != nil {
		return nil, err
	}

	res := &CatalogSearchResponse{Items: []json.RawMessage{}}
	var items []json.RawMessage
	if len(raw.Data) > 0 && json.Unmarshal(raw.Data, &items) == nil && items != nil {
		res.Items = items
	}
	return res, nil
}

// InventoryItem is one entry of users/inventory/list-json.
// Every sub-record is optional upstream.
type InventoryItem struct {
	AssetID *int64      `json:"AssetId"`
	Item    *AssetRef   `json:"Item"`
	Product *ProductRef `json:"Product"`
	Creator *CreatorRef `json:"Creator"`
}

type AssetRef struct {
	AssetID *int64 `json:"AssetId"`
}

type ProductRef struct {
	PriceInRobux *int64 `json:"PriceInRobux"`
}

type CreatorRef struct {
	ID *int64 `json:"Id"`
}

// ID resolves the asset id, preferring Item.AssetId.
func (it InventoryItem) ID() (int64, bool) {
	if it.Item != nil && it.Item.AssetID != nil {
		return *it.Item.AssetID, true
	}
	if it.AssetID != nil {
		return *it.AssetID, true
	}
	return 0, false
}

func (it InventoryItem) Price() int64 {
	if it.Product != nil && it.Product.PriceInRobux != nil {
		return *it.Product.PriceInRobux
	}
	return 0
}

func (it InventoryItem) CreatorID() (int64, bool) {
	if it.Creator != nil && it.Creator.ID != nil {
		return *it.Creator.ID, true
	}
	return 0, false
}

type InventoryPage struct {
	Items []InventoryItem
}

func (c *Client) ListInventory(ctx context.Context, userID string, page, perPage int) (*InventoryPage, error) {
	q := url.Values{}
	q.Set("assetTypeId", strconv.Itoa(AssetTypeGamePass))
	q.Set("cursor", "")
	q.Set("itemsPerPage", strconv.Itoa(perPage))
	q.Set("pageNumber", strconv.Itoa(page))
	q.Set("userId", userID)
	u := c.inventoryURL + "/users/inventory/list-json?" + q.Encode()

	var raw struct {
		Data *struct {
			Items []json.RawMessage `json:"Items"`
		} `json:"Data"`
	}
	if err := c.get(ctx, u, &raw); err != nil {
		return nil, err
	}

	res := &InventoryPage{}
	if raw.Data == nil {
		return res, nil
	}
	res.Items = make([]InventoryItem, 0, len(raw.Data.Items))
	for i, rawItem := range raw.Data.Items {
		var it InventoryItem
		if err := json.Unmarshal(rawItem, &it); err != nil {
			// A partly decoded item may carry zeroed fields; keep it only as a
			// placeholder so the page is not mistaken for an empty one.
			log.Printf("inventory item skipped: user_id=%s page=%d index=%d error=%v", userID, page, i, err)
			it = InventoryItem{}
		}
		res.Items = append(res.Items, it)
	}
	return res, nil
}

func (c *Client) get(ctx context.Context, u string, target interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return fmt.Errorf("GET %s: read body: %w", u, err)
	}
	if int64(len(body)) > c.maxBody {
		return fmt.Errorf("GET %s: %w: more than %d bytes", u, ErrResponseTooLarge, c.maxBody)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{StatusCode: resp.StatusCode, URL: u, Body: body}
	}

	if err := json.Unmarshal(body, target); err != nil {
		return &DecodeError{URL: u, Body: body, Err: err}
	}
	return nil
}
