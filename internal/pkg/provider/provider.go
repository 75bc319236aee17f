package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/asafgershon/esim-go-sub012/internal/pkg/catalog"
)

// Provider names as stored in catalog_providers
const (
	NameESIMGo = "esimgo"
	NameMaya   = "maya"
	NameAiralo = "airalo"
)

const defaultPageSize = 50

// PageRequest scopes one catalog page fetch. Zero-value filters mean "all".
type PageRequest struct {
	Page        int
	PerPage     int
	BundleGroup string
	CountryISO2 string
}

// CatalogPage is one page of raw bundles plus paging info.
type CatalogPage struct {
	Bundles    []*catalog.RawBundle
	HasMore    bool
	TotalCount int
}

// Client fetches raw catalog pages from one upstream provider. Each
// implementation owns its wire format and request timeout.
type Client interface {
	Name() string
	FetchCatalogPage(ctx context.Context, req PageRequest) (*CatalogPage, error)
	CheckHealth(ctx context.Context) bool
}

// getJSON performs a GET with the given headers and decodes the JSON body
// into out. Non-2xx responses become errors carrying the status code so
// callers can distinguish rate limits from hard failures in logs.
func getJSON(ctx context.Context, httpClient *http.Client, url string, headers map[string]string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("request %s: status %d: %s", url, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
