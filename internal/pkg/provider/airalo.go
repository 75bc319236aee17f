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

// AiraloClient pages the Airalo partner packages API. Airalo reports
// unlimited plans with an explicit flag.
type AiraloClient struct {
	baseURL     string
	accessToken string
	pageSize    int
	httpClient  *http.Client
}

// AiraloConfig holds connection settings for Airalo.
type AiraloConfig struct {
	BaseURL     string
	AccessToken string
	PageSize    int
	Timeout     time.Duration
}

// AiraloConfigFromEnv reads AIRALO_* settings.
func AiraloConfigFromEnv() AiraloConfig {
	return AiraloConfig{
		BaseURL:     env.GetEnv("AIRALO_BASE_URL", "https://partners-api.airalo.com"),
		AccessToken: env.GetEnv("AIRALO_ACCESS_TOKEN", ""),
		PageSize:    env.GetEnvInt("AIRALO_PAGE_SIZE", defaultPageSize),
		Timeout:     env.GetEnvDuration("AIRALO_TIMEOUT_SECONDS", 30, time.Second),
	}
}

// NewAiraloClient creates a client; AccessToken must be set.
func NewAiraloClient(cfg AiraloConfig) *AiraloClient {
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &AiraloClient{
		baseURL:     cfg.BaseURL,
		accessToken: cfg.AccessToken,
		pageSize:    pageSize,
		httpClient:  newHTTPClient(cfg.Timeout),
	}
}

func (c *AiraloClient) Name() string {
	return NameAiralo
}

type airaloCountry struct {
	CountryCode string `json:"country_code"`
}

type airaloPackage struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	ShortInfo   string          `json:"short_info"`
	Type        string          `json:"type"`
	Amount      int64           `json:"amount"` // MB
	Day         int             `json:"day"`
	Price       float64         `json:"price"`
	IsUnlimited bool            `json:"is_unlimited"`
	Region      string          `json:"region"`
	Countries   []airaloCountry `json:"countries"`
}

type airaloMeta struct {
	CurrentPage int `json:"current_page"`
	LastPage    int `json:"last_page"`
	Total       int `json:"total"`
}

type airaloPackagesResponse struct {
	Data []airaloPackage `json:"data"`
	Meta airaloMeta      `json:"meta"`
}

// FetchCatalogPage fetches one page of packages. Pages are 1-based.
func (c *AiraloClient) FetchCatalogPage(ctx context.Context, req PageRequest) (*CatalogPage, error) {
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
		q.Set("filter[country]", req.CountryISO2)
	}
	if req.BundleGroup != "" {
		q.Set("filter[type]", req.BundleGroup)
	}

	var resp airaloPackagesResponse
	endpoint := fmt.Sprintf("%s/v2/packages?%s", c.baseURL, q.Encode())
	if err := getJSON(ctx, c.httpClient, endpoint, c.headers(), &resp); err != nil {
		return nil, fmt.Errorf("airalo packages page %d: %w", page, err)
	}

	bundles := make([]*catalog.RawBundle, 0, len(resp.Data))
	for _, p := range resp.Data {
		bundles = append(bundles, c.toRaw(p))
	}

	return &CatalogPage{
		Bundles:    bundles,
		HasMore:    resp.Meta.LastPage > 0 && page < resp.Meta.LastPage,
		TotalCount: resp.Meta.Total,
	}, nil
}

func (c *AiraloClient) toRaw(p airaloPackage) *catalog.RawBundle {
	countries := make([]string, 0, len(p.Countries))
	for _, country := range p.Countries {
		countries = append(countries, country.CountryCode)
	}
	unlimited := p.IsUnlimited

	return &catalog.RawBundle{
		Provider:      NameAiralo,
		ExternalID:    p.ID,
		Name:          p.Title,
		Description:   p.ShortInfo,
		GroupName:     p.Type,
		ValidityDays:  p.Day,
		PriceUSD:      p.Price,
		DataAmountMB:  p.Amount,
		UnlimitedFlag: &unlimited,
		Countries:     countries,
		Region:        p.Region,
	}
}

func (c *AiraloClient) headers() map[string]string {
	return map[string]string{
		"Authorization": "Bearer " + c.accessToken,
	}
}

// CheckHealth probes the packages endpoint with a minimal page.
func (c *AiraloClient) CheckHealth(ctx context.Context) bool {
	var resp airaloPackagesResponse
	endpoint := fmt.Sprintf("%s/v2/packages?page=1&limit=1", c.baseURL)
	if err := getJSON(ctx, c.httpClient, endpoint, c.headers(), &resp); err != nil {
		log.Warnf("[Provider] airalo health probe failed: %v", err)
		return false
	}
	return true
}
