package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const categoryPageSize = 100

// WooCommerceClient implements Catalog against the WooCommerce REST API
// (v3) using consumer key/secret query authentication.
type WooCommerceClient struct {
	baseURL        string
	consumerKey    string
	consumerSecret string
	httpClient     *http.Client
	logger         *zap.Logger
}

// WooCommerceConfig holds client settings.
type WooCommerceConfig struct {
	// BaseURL is the API root, e.g. https://shop.example.com/wp-json/wc/v3/
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	Timeout        time.Duration
}

func NewWooCommerceClient(cfg WooCommerceConfig, logger *zap.Logger) (*WooCommerceClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("woocommerce base URL is required")
	}
	if cfg.ConsumerKey == "" || cfg.ConsumerSecret == "" {
		return nil, fmt.Errorf("woocommerce consumer key and secret are required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &WooCommerceClient{
		baseURL:        strings.TrimSuffix(cfg.BaseURL, "/") + "/",
		consumerKey:    cfg.ConsumerKey,
		consumerSecret: cfg.ConsumerSecret,
		httpClient:     &http.Client{Timeout: timeout},
		logger:         logger,
	}, nil
}

// wcProduct is the subset of the WooCommerce product payload we read.
type wcProduct struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Price       string `json:"price"` // WooCommerce serializes prices as strings
	Purchasable bool   `json:"purchasable"`
	StockStatus string `json:"stock_status"`
	Images      []struct {
		Src string `json:"src"`
	} `json:"images"`
	Categories []struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	} `json:"categories"`
}

type wcCategory struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func (c *WooCommerceClient) GetProduct(ctx context.Context, id int64) (*Product, error) {
	var p wcProduct
	status, err := c.getJSON(ctx, "products/"+strconv.FormatInt(id, 10), nil, &p)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("woocommerce product %d: HTTP %d", id, status)
	}

	price, err := strconv.ParseFloat(p.Price, 64)
	if err != nil {
		price = 0
	}

	product := &Product{
		ID:          p.ID,
		Name:        p.Name,
		Price:       price,
		Purchasable: p.Purchasable && p.StockStatus != "outofstock",
	}
	if len(p.Images) > 0 {
		product.ImageURL = p.Images[0].Src
	}
	for _, cat := range p.Categories {
		product.CategoryIDs = append(product.CategoryIDs, cat.ID)
	}
	return product, nil
}

// ListCategories pages through all product categories and returns them
// sorted by name.
func (c *WooCommerceClient) ListCategories(ctx context.Context) ([]Category, error) {
	var all []Category
	for page := 1; ; page++ {
		params := url.Values{}
		params.Set("per_page", strconv.Itoa(categoryPageSize))
		params.Set("page", strconv.Itoa(page))

		var batch []wcCategory
		status, err := c.getJSON(ctx, "products/categories", params, &batch)
		if err != nil {
			return nil, err
		}
		if status != http.StatusOK {
			return nil, fmt.Errorf("woocommerce categories page %d: HTTP %d", page, status)
		}
		for _, cat := range batch {
			all = append(all, Category{ID: cat.ID, Name: cat.Name, Count: cat.Count})
		}
		if len(batch) < categoryPageSize {
			break
		}
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return all, nil
}

func (c *WooCommerceClient) getJSON(ctx context.Context, path string, params url.Values, out any) (int, error) {
	if params == nil {
		params = url.Values{}
	}
	params.Set("consumer_key", c.consumerKey)
	params.Set("consumer_secret", c.consumerSecret)

	reqURL := c.baseURL + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build catalog request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("catalog request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused.
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return resp.StatusCode, nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to decode catalog response: %w", err)
	}
	return resp.StatusCode, nil
}
