package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"RecipeSwipe/internal/domain"
	"RecipeSwipe/internal/ports"
)

// Client is the recipe service adapter.
type Client struct {
	endpoint string
	http     *http.Client
}

var _ ports.RecipeCatalog = (*Client)(nil)

func NewClient(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		http:     &http.Client{Timeout: timeout},
	}
}

type actionResponse struct {
	Success bool          `json:"success"`
	Recipe  domain.Recipe `json:"recipe"`
	Error   string        `json:"error"`
}

// Recipes downloads the full catalog.
func (c *Client) Recipes(ctx context.Context) (domain.Catalog, error) {
	var catalog domain.Catalog
	if err := c.do(ctx, http.MethodGet, "/recipes", nil, &catalog); err != nil {
		return nil, fmt.Errorf("list recipes: %w", err)
	}
	if catalog == nil {
		catalog = domain.Catalog{}
	}
	return catalog.Clone(), nil
}

// SelectImage stores imageURL as the recipe image and returns the updated
// recipe.
func (c *Client) SelectImage(ctx context.Context, key, imageURL string) (domain.Recipe, error) {
	var resp actionResponse
	payload := map[string]string{"imageUrl": imageURL}
	if err := c.do(ctx, http.MethodPost, "/recipe/"+url.PathEscape(key)+"/image", payload, &resp); err != nil {
		return domain.Recipe{}, err
	}
	if !resp.Success {
		return domain.Recipe{}, &domain.BackendError{Status: http.StatusOK, Message: resp.Error}
	}
	resp.Recipe.Key = key
	return resp.Recipe, nil
}

// Delete removes the recipe and its stored assets.
func (c *Client) Delete(ctx context.Context, key string) error {
	var resp actionResponse
	if err := c.do(ctx, http.MethodDelete, "/recipe/"+url.PathEscape(key), nil, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return &domain.BackendError{Status: http.StatusOK, Message: resp.Error}
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any, v any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, body)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var failed actionResponse
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &failed) == nil && failed.Error != "" {
			msg = failed.Error
		}
		return &domain.BackendError{Status: resp.StatusCode, Message: msg}
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
