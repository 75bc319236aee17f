package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatDataAmount(t *testing.T) {
	mb := func(v int64) *int64 { return &v }

	tests := []struct {
		name      string
		megabytes *int64
		unlimited bool
		expected  string
	}{
		{"Unlimited", nil, true, "Unlimited"},
		{"Unlimited overrides amount", mb(1024), true, "Unlimited"},
		{"Nil amount", nil, false, "Unknown"},
		{"Zero amount", mb(0), false, "Unknown"},
		{"One megabyte", mb(1), false, "1MB"},
		{"Below one gigabyte", mb(500), false, "500MB"},
		{"Exactly one gigabyte", mb(1024), false, "1GB"},
		{"One and a half gigabytes", mb(1536), false, "1.5GB"},
		{"Two gigabytes", mb(2048), false, "2GB"},
		{"Ten gigabytes", mb(10240), false, "10GB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatDataAmount(tt.megabytes, tt.unlimited))
		})
	}
}

func TestNormalizeCountryCode(t *testing.T) {
	tests := []struct {
		raw      string
		expected string
		valid    bool
	}{
		{"FR", "FR", true},
		{"fr", "FR", true},
		{" de ", "DE", true},
		{"FRA", "FR", true},
		{"DEU", "DE", true},
		{"usa", "US", true},
		{"XX", "XX", false},
		{"XXX", "XXX", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			code, ok := NormalizeCountryCode(tt.raw)
			assert.Equal(t, tt.valid, ok)
			if tt.valid {
				assert.Equal(t, tt.expected, code)
			}
		})
	}
}

func TestRegionForCountry(t *testing.T) {
	assert.Equal(t, "Europe", RegionForCountry("FR"))
	assert.Equal(t, "Asia", RegionForCountry("JP"))
	assert.Equal(t, "Middle East", RegionForCountry("IL"))
	assert.Equal(t, "", RegionForCountry("ZZ"))
}

func validRaw() *RawBundle {
	return &RawBundle{
		Provider:     "esimgo",
		ExternalID:   "esim_1GB_7D_FR",
		Name:         "France 1GB 7 Days",
		ValidityDays: 7,
		PriceUSD:     4.5,
		DataAmountMB: 1024,
		Countries:    []string{"FR"},
		GroupName:    "Standard Fixed",
	}
}

func TestTransformAcceptsValidBundle(t *testing.T) {
	tr := NewTransformer()

	bundle, ok := tr.Transform(validRaw())
	require.True(t, ok)
	require.NotNil(t, bundle)

	assert.Equal(t, "esimgo", bundle.Provider)
	assert.Equal(t, "esim_1GB_7D_FR", bundle.ExternalID)
	assert.False(t, bundle.Unlimited)
	require.NotNil(t, bundle.DataAmountMB)
	assert.Equal(t, int64(1024), *bundle.DataAmountMB)
	assert.Equal(t, "1GB", bundle.DataAmountReadable)
	assert.Equal(t, []string{"FR"}, bundle.Countries)
	assert.Equal(t, "Europe", bundle.Region)
	assert.False(t, bundle.SyncedAt.IsZero())
}

func TestTransformRejections(t *testing.T) {
	tr := NewTransformer()

	tests := []struct {
		name   string
		mutate func(*RawBundle)
	}{
		{"Missing provider", func(r *RawBundle) { r.Provider = "" }},
		{"Missing external id", func(r *RawBundle) { r.ExternalID = "  " }},
		{"Missing name", func(r *RawBundle) { r.Name = "" }},
		{"Zero duration", func(r *RawBundle) { r.ValidityDays = 0 }},
		{"Negative duration", func(r *RawBundle) { r.ValidityDays = -7 }},
		{"Zero price", func(r *RawBundle) { r.PriceUSD = 0 }},
		{"Negative price", func(r *RawBundle) { r.PriceUSD = -1 }},
		{"No countries", func(r *RawBundle) { r.Countries = nil }},
		{"Only invalid countries", func(r *RawBundle) { r.Countries = []string{"XX", "YY", "Q"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := validRaw()
			tt.mutate(raw)
			bundle, ok := tr.Transform(raw)
			assert.False(t, ok)
			assert.Nil(t, bundle)
		})
	}
}

// Maya bundle with alpha-3 countries and an "Unlimited" name: unlimited is
// inferred from the name, countries are converted to alpha-2.
func TestTransformMayaUnlimitedHeuristic(t *testing.T) {
	tr := NewTransformer()

	raw := &RawBundle{
		Provider:     "maya",
		ExternalID:   "b1",
		Name:         "Unlimited Europe 30",
		ValidityDays: 30,
		PriceUSD:     19.99,
		DataAmountMB: -1,
		Countries:    []string{"FRA", "DEU"},
	}

	bundle, ok := tr.Transform(raw)
	require.True(t, ok)

	assert.True(t, bundle.Unlimited)
	assert.Equal(t, []string{"FR", "DE"}, bundle.Countries)
	assert.Equal(t, 19.99, bundle.PriceUSD)
	assert.Equal(t, "Unlimited", bundle.DataAmountReadable)
	assert.Nil(t, bundle.DataAmountMB)
	assert.Equal(t, "Europe", bundle.Region)
}

// A Maya plan without "unlimited" in its name stays metered even when
// another provider would read the same fields differently.
func TestTransformMayaMeteredPlan(t *testing.T) {
	tr := NewTransformer()

	raw := &RawBundle{
		Provider:     "maya",
		ExternalID:   "b2",
		Name:         "Europe 5GB 30 Days",
		ValidityDays: 30,
		PriceUSD:     12.5,
		DataAmountMB: 5120,
		Countries:    []string{"FRA"},
	}

	bundle, ok := tr.Transform(raw)
	require.True(t, ok)
	assert.False(t, bundle.Unlimited)
	assert.Equal(t, "5GB", bundle.DataAmountReadable)
}

func TestTransformExplicitUnlimitedFlag(t *testing.T) {
	tr := NewTransformer()

	flag := true
	raw := validRaw()
	raw.Name = "France Plus" // no textual signal
	raw.UnlimitedFlag = &flag

	bundle, ok := tr.Transform(raw)
	require.True(t, ok)
	assert.True(t, bundle.Unlimited)
	assert.Nil(t, bundle.DataAmountMB)
	assert.Equal(t, "Unlimited", bundle.DataAmountReadable)
}

func TestTransformDropsInvalidCountriesKeepsBundle(t *testing.T) {
	tr := NewTransformer()

	raw := validRaw()
	raw.Countries = []string{"FR", "XX", "DEU", "fr"}

	bundle, ok := tr.Transform(raw)
	require.True(t, ok)
	// XX dropped, alpha-3 converted, duplicate FR collapsed
	assert.Equal(t, []string{"FR", "DE"}, bundle.Countries)
}

func TestTransformRegionMode(t *testing.T) {
	tr := NewTransformer()

	raw := validRaw()
	raw.Countries = []string{"FR", "DE", "JP"}

	bundle, ok := tr.Transform(raw)
	require.True(t, ok)
	assert.Equal(t, "Europe", bundle.Region)

	// Tie between Europe and Asia: first-seen region wins
	raw = validRaw()
	raw.Countries = []string{"JP", "CN", "FR", "DE"}
	bundle, ok = tr.Transform(raw)
	require.True(t, ok)
	assert.Equal(t, "Asia", bundle.Region)
}

func TestTransformExplicitRegionWins(t *testing.T) {
	tr := NewTransformer()

	raw := validRaw()
	raw.Region = "Western Europe"

	bundle, ok := tr.Transform(raw)
	require.True(t, ok)
	assert.Equal(t, "Western Europe", bundle.Region)
}

func TestTransformAllIsolatesBadRecords(t *testing.T) {
	tr := NewTransformer()

	bad := validRaw()
	bad.PriceUSD = 0

	raws := []*RawBundle{validRaw(), bad, nil, validRaw()}
	bundles := tr.TransformAll(raws)

	assert.Len(t, bundles, 2)
}
