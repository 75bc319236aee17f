package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestESIMGoFetchCatalogPage(t *testing.T) {
	var gotPath, gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.String()
		gotKey = r.Header.Get("X-API-Key")
		fmt.Fprint(w, `{
			"bundles": [
				{
					"name": "esim_1GB_7D_FR_V2",
					"description": "France 1GB 7 Days",
					"groups": ["Standard Fixed"],
					"duration": 7,
					"dataAmount": 1024,
					"unlimited": false,
					"price": 4.5,
					"countries": [{"iso": "FR", "region": "Europe"}],
					"speed": ["4G", "5G"]
				}
			],
			"pageCount": 3,
			"rows": 120
		}`)
	}))
	defer server.Close()

	client := NewESIMGoClient(ESIMGoConfig{BaseURL: server.URL, APIKey: "test-key"})
	page, err := client.FetchCatalogPage(context.Background(), PageRequest{Page: 2})
	require.NoError(t, err)

	assert.Contains(t, gotPath, "page=2")
	assert.Equal(t, "test-key", gotKey)
	assert.True(t, page.HasMore)
	assert.Equal(t, 120, page.TotalCount)
	require.Len(t, page.Bundles, 1)

	raw := page.Bundles[0]
	assert.Equal(t, NameESIMGo, raw.Provider)
	assert.Equal(t, "esim_1GB_7D_FR_V2", raw.ExternalID)
	assert.Equal(t, 7, raw.ValidityDays)
	assert.Equal(t, int64(1024), raw.DataAmountMB)
	require.NotNil(t, raw.UnlimitedFlag)
	assert.False(t, *raw.UnlimitedFlag)
	assert.Equal(t, []string{"FR"}, raw.Countries)
	assert.Equal(t, "Europe", raw.Region)
}

func TestESIMGoLastPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"bundles": [], "pageCount": 3, "rows": 120}`)
	}))
	defer server.Close()

	client := NewESIMGoClient(ESIMGoConfig{BaseURL: server.URL, APIKey: "k"})
	page, err := client.FetchCatalogPage(context.Background(), PageRequest{Page: 3})
	require.NoError(t, err)
	assert.False(t, page.HasMore)
}

func TestMayaFetchCatalogPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.Header.Get("X-Api-Key"))
		assert.Equal(t, "secret", r.Header.Get("X-Api-Secret"))
		fmt.Fprint(w, `{
			"products": [
				{
					"uid": "b1",
					"name": "Unlimited Europe 30",
					"validity_days": 30,
					"wholesale_price_usd": "19.99",
					"data_quota_bytes": -1,
					"countries_enabled": ["FRA", "DEU"]
				}
			],
			"total": 1,
			"page": 1,
			"last_page": 1
		}`)
	}))
	defer server.Close()

	client := NewMayaClient(MayaConfig{BaseURL: server.URL, APIKey: "key", APISecret: "secret"})
	page, err := client.FetchCatalogPage(context.Background(), PageRequest{})
	require.NoError(t, err)
	assert.False(t, page.HasMore)
	require.Len(t, page.Bundles, 1)

	raw := page.Bundles[0]
	assert.Equal(t, NameMaya, raw.Provider)
	assert.Equal(t, "b1", raw.ExternalID)
	assert.Equal(t, 19.99, raw.PriceUSD)
	assert.Equal(t, int64(-1), raw.DataAmountMB)
	assert.Equal(t, []string{"FRA", "DEU"}, raw.Countries)
	assert.Nil(t, raw.UnlimitedFlag)
}

func TestMayaQuotaBytesToMegabytes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"products": [
				{
					"uid": "b2",
					"name": "Europe 5GB",
					"validity_days": 30,
					"wholesale_price_usd": "12.50",
					"data_quota_bytes": 5368709120,
					"countries_enabled": ["FRA"]
				}
			],
			"total": 1, "page": 1, "last_page": 1
		}`)
	}))
	defer server.Close()

	client := NewMayaClient(MayaConfig{BaseURL: server.URL})
	page, err := client.FetchCatalogPage(context.Background(), PageRequest{})
	require.NoError(t, err)
	require.Len(t, page.Bundles, 1)
	assert.Equal(t, int64(5120), page.Bundles[0].DataAmountMB)
}

func TestAiraloFetchCatalogPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{
			"data": [
				{
					"id": "europe-30days-unlimited",
					"title": "Eurolink Unlimited",
					"type": "regional",
					"amount": 0,
					"day": 30,
					"price": 35,
					"is_unlimited": true,
					"region": "Europe",
					"countries": [{"country_code": "FR"}, {"country_code": "DE"}]
				}
			],
			"meta": {"current_page": 1, "last_page": 2, "total": 60}
		}`)
	}))
	defer server.Close()

	client := NewAiraloClient(AiraloConfig{BaseURL: server.URL, AccessToken: "token"})
	page, err := client.FetchCatalogPage(context.Background(), PageRequest{Page: 1})
	require.NoError(t, err)
	assert.True(t, page.HasMore)
	require.Len(t, page.Bundles, 1)

	raw := page.Bundles[0]
	assert.Equal(t, NameAiralo, raw.Provider)
	require.NotNil(t, raw.UnlimitedFlag)
	assert.True(t, *raw.UnlimitedFlag)
	assert.Equal(t, []string{"FR", "DE"}, raw.Countries)
}

func TestCheckHealth(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"bundles": [], "pageCount": 0, "rows": 0}`)
	}))
	defer healthy.Close()

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer broken.Close()

	assert.True(t, NewESIMGoClient(ESIMGoConfig{BaseURL: healthy.URL, APIKey: "k"}).CheckHealth(context.Background()))
	assert.False(t, NewESIMGoClient(ESIMGoConfig{BaseURL: broken.URL, APIKey: "k"}).CheckHealth(context.Background()))
}

func TestGetJSONErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error": "rate limited"}`)
	}))
	defer server.Close()

	client := NewESIMGoClient(ESIMGoConfig{BaseURL: server.URL, APIKey: "k"})
	_, err := client.FetchCatalogPage(context.Background(), PageRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}
