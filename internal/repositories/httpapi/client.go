// Package httpapi implements the cart and catalog repositories against the
// hosted commerce backend's JSON API.
package httpapi

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

	domain "github.com/fieldcraft/storefront/internal/domain"
	"github.com/fieldcraft/storefront/internal/repositories"
)

const defaultTimeout = 8 * time.Second

var errBaseURLRequired = errors.New("httpapi: base url is required")

// Client talks to the backend cart and catalog endpoints. It implements
// repositories.CartRepository and repositories.CatalogRepository.
type Client struct {
	baseURL   string
	authToken string
	http      *http.Client
}

// ClientDeps configures the backend client.
type ClientDeps struct {
	BaseURL string
	// AuthToken, when set, is sent as a bearer token on every request.
	AuthToken string
	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client
}

// NewClient constructs a backend client enforcing dependency validation.
func NewClient(deps ClientDeps) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(deps.BaseURL), "/")
	if baseURL == "" {
		return nil, errBaseURLRequired
	}
	httpClient := deps.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL:   baseURL,
		authToken: strings.TrimSpace(deps.AuthToken),
		http:      httpClient,
	}, nil
}

type itemPayload struct {
	ID          string            `json:"id"`
	ProductID   string            `json:"productId"`
	Quantity    int               `json:"quantity"`
	UnitPrice   int64             `json:"unitPrice"`
	Currency    string            `json:"currency"`
	WeightGrams int               `json:"weightGrams,omitempty"`
	Name        string            `json:"name,omitempty"`
	ImageURL    string            `json:"imageUrl,omitempty"`
	UnitLabel   string            `json:"unitLabel,omitempty"`
	Tags        map[string]string `json:"tags,omitempty"`
	AddedAt     time.Time         `json:"addedAt"`
	UpdatedAt   *time.Time        `json:"updatedAt,omitempty"`
}

type cartPayload struct {
	Items []itemPayload `json:"items"`
}

type productPayload struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	ImageURL       string            `json:"imageUrl,omitempty"`
	UnitLabel      string            `json:"unitLabel,omitempty"`
	Tags           map[string]string `json:"tags,omitempty"`
	UnitPrice      int64             `json:"unitPrice"`
	Currency       string            `json:"currency"`
	WeightGrams    int               `json:"weightGrams,omitempty"`
	StockAvailable *int              `json:"stockAvailable,omitempty"`
}

type errorPayload struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// AddItem creates a new line item in the owner's server cart.
func (c *Client) AddItem(ctx context.Context, ownerKey, productID string, quantity int) (domain.LineItem, error) {
	endpoint, err := url.JoinPath(c.baseURL, "v1", "carts", url.PathEscape(ownerKey), "items")
	if err != nil {
		return domain.LineItem{}, repositories.NewCartError(repositories.CartErrorUnknown, "building endpoint", err)
	}
	body := map[string]any{
		"productId": strings.TrimSpace(productID),
		"quantity":  quantity,
	}
	var payload itemPayload
	if err := c.do(ctx, http.MethodPost, endpoint, body, &payload); err != nil {
		return domain.LineItem{}, err
	}
	return payload.toLineItem(), nil
}

// UpdateQuantity sets the quantity of an existing item. Zero or less is sent
// as a delete, matching the backend's removal semantics.
func (c *Client) UpdateQuantity(ctx context.Context, ownerKey, itemID string, quantity int) (domain.LineItem, error) {
	if quantity <= 0 {
		return domain.LineItem{}, c.RemoveItem(ctx, ownerKey, itemID)
	}
	endpoint, err := url.JoinPath(c.baseURL, "v1", "carts", url.PathEscape(ownerKey), "items", url.PathEscape(itemID))
	if err != nil {
		return domain.LineItem{}, repositories.NewCartError(repositories.CartErrorUnknown, "building endpoint", err)
	}
	var payload itemPayload
	if err := c.do(ctx, http.MethodPatch, endpoint, map[string]any{"quantity": quantity}, &payload); err != nil {
		return domain.LineItem{}, err
	}
	return payload.toLineItem(), nil
}

// RemoveItem deletes an item from the owner's server cart.
func (c *Client) RemoveItem(ctx context.Context, ownerKey, itemID string) error {
	endpoint, err := url.JoinPath(c.baseURL, "v1", "carts", url.PathEscape(ownerKey), "items", url.PathEscape(itemID))
	if err != nil {
		return repositories.NewCartError(repositories.CartErrorUnknown, "building endpoint", err)
	}
	return c.do(ctx, http.MethodDelete, endpoint, nil, nil)
}

// GetCart reads the owner's confirmed cart contents.
func (c *Client) GetCart(ctx context.Context, ownerKey string) ([]domain.LineItem, error) {
	endpoint, err := url.JoinPath(c.baseURL, "v1", "carts", url.PathEscape(ownerKey))
	if err != nil {
		return nil, repositories.NewCartError(repositories.CartErrorUnknown, "building endpoint", err)
	}
	var payload cartPayload
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &payload); err != nil {
		return nil, err
	}
	items := make([]domain.LineItem, 0, len(payload.Items))
	for _, item := range payload.Items {
		items = append(items, item.toLineItem())
	}
	return items, nil
}

// GetProductSnapshot reads a point-in-time catalog view of the product.
func (c *Client) GetProductSnapshot(ctx context.Context, productID string) (domain.ProductSnapshot, error) {
	endpoint, err := url.JoinPath(c.baseURL, "v1", "products", url.PathEscape(strings.TrimSpace(productID)))
	if err != nil {
		return domain.ProductSnapshot{}, repositories.NewCartError(repositories.CartErrorUnknown, "building endpoint", err)
	}
	var payload productPayload
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &payload); err != nil {
		return domain.ProductSnapshot{}, err
	}
	stock := -1
	if payload.StockAvailable != nil {
		stock = *payload.StockAvailable
	}
	return domain.ProductSnapshot{
		ProductID:      payload.ID,
		Name:           payload.Name,
		ImageURL:       payload.ImageURL,
		UnitLabel:      payload.UnitLabel,
		Tags:           payload.Tags,
		UnitPrice:      payload.UnitPrice,
		Currency:       strings.ToUpper(strings.TrimSpace(payload.Currency)),
		WeightGrams:    payload.WeightGrams,
		StockAvailable: stock,
	}, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return repositories.NewCartError(repositories.CartErrorUnknown, "encoding request", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return repositories.NewCartError(repositories.CartErrorUnknown, "building request", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return repositories.NewCartError(repositories.CartErrorUnavailable, "backend unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return translateStatus(resp.StatusCode, resp.Body)
	}
	if out == nil {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<10))
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return repositories.NewCartError(repositories.CartErrorUnknown, "decoding response", err)
	}
	return nil
}

// translateStatus maps backend HTTP failures onto repository error codes.
// The body's machine code, when present, takes precedence over the bare
// status so a 409 stock refusal is distinguishable from a generic conflict.
func translateStatus(status int, body io.Reader) error {
	payload := drainError(body)
	switch {
	case payload.Error.Code == "insufficient_stock":
		return repositories.NewCartError(repositories.CartErrorInsufficientStock, payload.Error.Message, nil)
	case status == http.StatusNotFound:
		return repositories.NewCartError(repositories.CartErrorNotFound, payload.Error.Message, nil)
	case status == http.StatusConflict, status == http.StatusUnprocessableEntity, status == http.StatusBadRequest:
		return repositories.NewCartError(repositories.CartErrorRejected, payload.Error.Message, nil)
	case status >= 500, status == http.StatusTooManyRequests:
		return repositories.NewCartError(repositories.CartErrorUnavailable, fmt.Sprintf("backend status %d", status), nil)
	}
	return repositories.NewCartError(repositories.CartErrorUnknown, fmt.Sprintf("backend status %d", status), nil)
}

func drainError(body io.Reader) errorPayload {
	var payload errorPayload
	raw, err := io.ReadAll(io.LimitReader(body, 4<<10))
	if err != nil {
		return payload
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		payload.Error.Message = strings.TrimSpace(string(raw))
	}
	return payload
}

func (p itemPayload) toLineItem() domain.LineItem {
	return domain.LineItem{
		ID:          strings.TrimSpace(p.ID),
		ProductID:   strings.TrimSpace(p.ProductID),
		Quantity:    p.Quantity,
		UnitPrice:   p.UnitPrice,
		Currency:    strings.ToUpper(strings.TrimSpace(p.Currency)),
		WeightGrams: p.WeightGrams,
		Origin:      domain.OriginConfirmed,
		Display: domain.DisplayMetadata{
			Name:      p.Name,
			ImageURL:  p.ImageURL,
			UnitLabel: p.UnitLabel,
			Tags:      p.Tags,
		},
		AddedAt:   p.AddedAt,
		UpdatedAt: p.UpdatedAt,
	}
}
