package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/asafgershon/esim-go-sub012/internal/pkg/catalog"
	"github.com/asafgershon/esim-go-sub012/internal/pkg/env"
)

// MayaClient pages the Maya connectivity products API. Maya has no
// structural unlimited flag; the transformer's name heuristic decides.
// Prices arrive as decimal strings and quotas in bytes.
type MayaClient struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	pageSize   int
	httpClient *http.Client
}

// MayaConfig holds connection settings for Maya.
type MayaConfig struct {
	BaseURL   string
	APIKey    string
	APISecret string
	PageSize  int
	Timeout   time.Duration
}

// MayaConfigFromEnv reads MAYA_* settings.
func MayaConfigFromEnv() MayaConfig {
	return MayaConfig{
		BaseURL:   env.GetEnv("MAYA_BASE_URL", "https://api.maya.net"),
		APIKey:    env.GetEnv("MAYA_API_KEY", ""),
		APISecret: env.GetEnv("MAYA_API_SECRET", ""),
		PageSize:  env.GetEnvInt("MAYA_PAGE_SIZE", defaultPageSize),
		Timeout:   env.GetEnvDuration("MAYA_TIMEOUT_SECONDS", 30, time.Second),
	}
}

// NewMayaClient creates a client; key and secret must be set.
func NewMayaClient(cfg MayaConfig) *MayaClient {
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &MayaClient{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		pageSize:   pageSize,
		httpClient: newHTTPClient(cfg.Timeout),
	}
}

func (c *MayaClient) Name() string {
	return NameMaya
}

type mayaProduct struct {
	UID               string   `json:"uid"`
	Name              string   `json:"name"`
	Description       string   `json:"description"`
	CountriesEnabled  []string `json:"countries_enabled"` // alpha-3
	DataQuotaBytes    int64    `json:"data_quota_bytes"`
	ValidityDays      int      `json:"validity_days"`
	WholesalePriceUSD string   `json:"wholesale_price_usd"`
	PolicyName        string   `json:"policy_name"`
	Regions           []string `json:"regions"`
}

type mayaProductsResponse struct {
	Products []mayaProduct `json:"products"`
	Total    int           `json:"total"`
	Page     int           `json:"page"`
	LastPage int           `json:"last_page"`
}

// FetchCatalogPage fetches one page of account products. Pages are 1-based.
func (c *MayaClient) FetchCatalogPage(ctx context.Context, req PageRequest) (*CatalogPage, error) {
	page := req.Page
	if page < 1 {
		page = 1
	}
	perPage := req.PerPage
	if perPage <= 0 {
		perPage = c.pageSize
	}

	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(perPage))
	if req.CountryISO2 != "" {
		q.Set("country", req.CountryISO2)
	}
	if req.BundleGroup != "" {
		q.Set("region", req.BundleGroup)
	}

	var resp mayaProductsResponse
	endpoint := fmt.Sprintf("%s/connectivity/v1/account/products?%s", c.baseURL, q.Encode())
	if err := getJSON(ctx, c.httpClient, endpoint, c.headers(), &resp); err != nil {
		return nil, fmt.Errorf("maya products page %d: %w", page, err)
	}

	bundles := make([]*catalog.RawBundle, 0, len(resp.Products))
	for _, p := range resp.Products {
		bundles = append(bundles, c.toRaw(p))
	}

	return &CatalogPage{
		Bundles:    bundles,
		HasMore:    resp.LastPage > 0 && page < resp.LastPage,
		TotalCount: resp.Total,
	}, nil
}

func (c *MayaClient) toRaw(p mayaProduct) *catalog.RawBundle {
	price, err := strconv.ParseFloat(p.WholesalePriceUSD, 64)
	if err != nil {
		// Leave price at zero; the transformer rejects it with a logged reason
		log.Warnf("[Provider] maya product %s: unparsable price %q", p.UID, p.WholesalePriceUSD)
		price = 0
	}

	// Bytes to MB, preserving the sign: negative quotas are Maya's way of
	// saying "no quota", which the name heuristic turns into unlimited
	dataMB := p.DataQuotaBytes
	if dataMB > 0 {
		dataMB = p.DataQuotaBytes / (1024 * 1024)
	}

	region := ""
	if len(p.Regions) > 0 {
		region = p.Regions[0]
	}

	return &catalog.RawBundle{
		Provider:     NameMaya,
		ExternalID:   p.UID,
		Name:         p.Name,
		Description:  p.Description,
		PlanType:     p.PolicyName,
		ValidityDays: p.ValidityDays,
		PriceUSD:     price,
		DataAmountMB: dataMB,
		Countries:    p.CountriesEnabled,
		Region:       region,
	}
}

func (c *MayaClient) headers() map[string]string {
	return map[string]string{
		"X-Api-Key":    c.apiKey,
		"X-Api-Secret": c.apiSecret,
	}
}

// CheckHealth probes the products endpoint with a minimal page.
func (c *MayaClient) CheckHealth(ctx context.Context) bool {
	var resp mayaProductsResponse
	endpoint := fmt.Sprintf("%s/connectivity/v1/account/products?page=1&limit=1", c.baseURL)
	if err := getJSON(ctx, c.httpClient, endpoint, c.headers(), &resp); err != nil {
		log.Warnf("[Provider] maya health probe failed: %v", err)
		return false
	}
	return true
}
