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

// ESIMGoClient pages the eSIM Go v2.4 catalogue API. eSIM Go reports
// unlimited plans structurally: an explicit flag plus dataAmount = -1.
type ESIMGoClient struct {
	baseURL    string
	apiKey     string
	pageSize   int
	httpClient *http.Client
}

// ESIMGoConfig holds connection settings for eSIM Go.
type ESIMGoConfig struct {
	BaseURL  string
	APIKey   string
	PageSize int
	Timeout  time.Duration
}

// ESIMGoConfigFromEnv reads ESIMGO_* settings.
func ESIMGoConfigFromEnv() ESIMGoConfig {
	return ESIMGoConfig{
		BaseURL:  env.GetEnv("ESIMGO_BASE_URL", "https://api.esim-go.com"),
		APIKey:   env.GetEnv("ESIMGO_API_KEY", ""),
		PageSize: env.GetEnvInt("ESIMGO_PAGE_SIZE", defaultPageSize),
		Timeout:  env.GetEnvDuration("ESIMGO_TIMEOUT_SECONDS", 30, time.Second),
	}
}

// NewESIMGoClient creates a client; APIKey must be set.
func NewESIMGoClient(cfg ESIMGoConfig) *ESIMGoClient {
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &ESIMGoClient{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		pageSize:   pageSize,
		httpClient: newHTTPClient(cfg.Timeout),
	}
}

func (c *ESIMGoClient) Name() string {
	return NameESIMGo
}

type esimGoCountry struct {
	ISO    string `json:"iso"`
	Region string `json:"region"`
}

type esimGoBundle struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Groups      []string        `json:"groups"`
	Duration    int             `json:"duration"`
	DataAmount  int64           `json:"dataAmount"` // MB, -1 for unlimited
	Unlimited   bool            `json:"unlimited"`
	Price       float64         `json:"price"`
	Countries   []esimGoCountry `json:"countries"`
	Speed       []string        `json:"speed"`
}

type esimGoCatalogueResponse struct {
	Bundles   []esimGoBundle `json:"bundles"`
	PageCount int            `json:"pageCount"`
	Rows      int            `json:"rows"`
}

// FetchCatalogPage fetches one page of the catalogue. Pages are 1-based.
func (c *ESIMGoClient) FetchCatalogPage(ctx context.Context, req PageRequest) (*CatalogPage, error) {
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
	q.Set("perPage", strconv.Itoa(perPage))
	if req.BundleGroup != "" {
		q.Set("group", req.BundleGroup)
	}
	if req.CountryISO2 != "" {
		q.Set("countries", req.CountryISO2)
	}

	var resp esimGoCatalogueResponse
	endpoint := fmt.Sprintf("%s/v2.4/catalogue?%s", c.baseURL, q.Encode())
	headers := map[string]string{"X-API-Key": c.apiKey}
	if err := getJSON(ctx, c.httpClient, endpoint, headers, &resp); err != nil {
		return nil, fmt.Errorf("esimgo catalogue page %d: %w", page, err)
	}

	bundles := make([]*catalog.RawBundle, 0, len(resp.Bundles))
	for _, b := range resp.Bundles {
		bundles = append(bundles, c.toRaw(b))
	}

	return &CatalogPage{
		Bundles:    bundles,
		HasMore:    page < resp.PageCount,
		TotalCount: resp.Rows,
	}, nil
}

func (c *ESIMGoClient) toRaw(b esimGoBundle) *catalog.RawBundle {
	countries := make([]string, 0, len(b.Countries))
	region := ""
	for _, country := range b.Countries {
		countries = append(countries, country.ISO)
		if region == "" && country.Region != "" {
			region = country.Region
		}
	}
	group := ""
	if len(b.Groups) > 0 {
		group = b.Groups[0]
	}
	unlimited := b.Unlimited

	return &catalog.RawBundle{
		Provider:      NameESIMGo,
		ExternalID:    b.Name, // esim_go_name doubles as the identifier
		Name:          b.Description,
		Description:   b.Description,
		GroupName:     group,
		ValidityDays:  b.Duration,
		PriceUSD:      b.Price,
		DataAmountMB:  b.DataAmount,
		UnlimitedFlag: &unlimited,
		Countries:     countries,
		Region:        region,
		SpeedTags:     b.Speed,
	}
}

// CheckHealth probes the catalogue endpoint with a minimal page.
func (c *ESIMGoClient) CheckHealth(ctx context.Context) bool {
	var resp esimGoCatalogueResponse
	endpoint := fmt.Sprintf("%s/v2.4/catalogue?page=1&perPage=1", c.baseURL)
	headers := map[string]string{"X-API-Key": c.apiKey}
	if err := getJSON(ctx, c.httpClient, endpoint, headers, &resp); err != nil {
		log.Warnf("[Provider] esimgo health probe failed: %v", err)
		return false
	}
	return true
}
