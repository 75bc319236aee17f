package catalog

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

// RawBundle is the provider-shaped bundle record after wire decoding but
// before normalization. Provider clients fill this from their native
// response formats; field semantics still differ per provider (see the
// unlimited policies below).
type RawBundle struct {
	Provider    string
	ExternalID  string
	Name        string
	Description string
	GroupName   string
	PlanType    string

	ValidityDays int
	PriceUSD     float64

	// DataAmountMB is the provider-reported allowance in MB. Zero means
	// not reported; some providers use negative values to signal unlimited.
	DataAmountMB  int64
	UnlimitedFlag *bool

	// Countries as delivered: alpha-2 or alpha-3, any case
	Countries []string
	Region    string
	SpeedTags []string
}

// Bundle is the canonical record the repository persists. Countries holds
// only validated alpha-2 codes and is never empty for a transformed bundle.
type Bundle struct {
	Provider           string
	ExternalID         string
	Name               string
	Description        string
	ValidityDays       int
	PriceUSD           float64
	DataAmountMB       *int64
	DataAmountReadable string
	Unlimited          bool
	Countries          []string
	Region             string
	GroupName          string
	PlanType           string
	SpeedTags          []string
	SyncedAt           time.Time
}

// UnlimitedPolicy decides whether a raw bundle is an unlimited-data plan.
// The decision signal differs per provider.
type UnlimitedPolicy func(raw *RawBundle) bool

// unlimitedFromFlag trusts the provider's structural signal: an explicit
// flag, or a negative data allowance. Used for eSIM Go and Airalo.
func unlimitedFromFlag(raw *RawBundle) bool {
	if raw.UnlimitedFlag != nil {
		return *raw.UnlimitedFlag
	}
	return raw.DataAmountMB < 0
}

// unlimitedFromName is a heuristic: Maya has no structural unlimited flag,
// so we infer it from the plan name. Fragile by nature; kept as its own
// named policy so the inference stays visible.
func unlimitedFromName(raw *RawBundle) bool {
	return strings.Contains(strings.ToLower(raw.Name), "unlimited")
}

// Transformer maps provider-shaped raw bundles into canonical bundles.
// Pure except for logging; safe for concurrent use after construction.
type Transformer struct {
	policies map[string]UnlimitedPolicy
}

// NewTransformer builds a transformer with the default per-provider
// unlimited policies registered.
func NewTransformer() *Transformer {
	return &Transformer{
		policies: map[string]UnlimitedPolicy{
			"esimgo": unlimitedFromFlag,
			"airalo": unlimitedFromFlag,
			"maya":   unlimitedFromName,
		},
	}
}

// RegisterPolicy installs or replaces the unlimited policy for a provider.
func (t *Transformer) RegisterPolicy(provider string, policy UnlimitedPolicy) {
	t.policies[provider] = policy
}

// Transform converts one raw bundle into its canonical form. Returns
// (nil, false) when the record is rejected; every rejection is logged with
// its reason and never aborts the surrounding batch.
func (t *Transformer) Transform(raw *RawBundle) (*Bundle, bool) {
	if raw == nil {
		return nil, false
	}
	provider := strings.ToLower(strings.TrimSpace(raw.Provider))
	if provider == "" || strings.TrimSpace(raw.ExternalID) == "" {
		log.Warnf("[Transform] Rejected bundle: missing provider or external id (provider=%q id=%q)", raw.Provider, raw.ExternalID)
		return nil, false
	}
	if strings.TrimSpace(raw.Name) == "" {
		log.Warnf("[Transform] Rejected bundle %s/%s: missing name", provider, raw.ExternalID)
		return nil, false
	}
	if raw.ValidityDays <= 0 {
		log.Warnf("[Transform] Rejected bundle %s/%s: invalid duration %d", provider, raw.ExternalID, raw.ValidityDays)
		return nil, false
	}
	if raw.PriceUSD <= 0 {
		log.Warnf("[Transform] Rejected bundle %s/%s: invalid price %.2f", provider, raw.ExternalID, raw.PriceUSD)
		return nil, false
	}

	countries := t.normalizeCountries(provider, raw.ExternalID, raw.Countries)
	if len(countries) == 0 {
		log.Warnf("[Transform] Rejected bundle %s/%s: no valid countries after ISO filtering", provider, raw.ExternalID)
		return nil, false
	}

	policy, ok := t.policies[provider]
	if !ok {
		policy = unlimitedFromFlag
	}
	unlimited := policy(raw)

	var dataAmount *int64
	if !unlimited && raw.DataAmountMB > 0 {
		mb := raw.DataAmountMB
		dataAmount = &mb
	}

	region := strings.TrimSpace(raw.Region)
	if region == "" {
		region = primaryRegion(countries)
	}

	return &Bundle{
		Provider:           provider,
		ExternalID:         strings.TrimSpace(raw.ExternalID),
		Name:               strings.TrimSpace(raw.Name),
		Description:        strings.TrimSpace(raw.Description),
		ValidityDays:       raw.ValidityDays,
		PriceUSD:           raw.PriceUSD,
		DataAmountMB:       dataAmount,
		DataAmountReadable: FormatDataAmount(dataAmount, unlimited),
		Unlimited:          unlimited,
		Countries:          countries,
		Region:             region,
		GroupName:          strings.TrimSpace(raw.GroupName),
		PlanType:           strings.TrimSpace(raw.PlanType),
		SpeedTags:          raw.SpeedTags,
		SyncedAt:           time.Now(),
	}, true
}

// TransformAll converts a page of raw bundles, dropping rejected records.
// A bad record never affects its neighbours.
func (t *Transformer) TransformAll(raws []*RawBundle) []Bundle {
	bundles := make([]Bundle, 0, len(raws))
	rejected := 0
	for _, raw := range raws {
		bundle, ok := t.Transform(raw)
		if !ok {
			rejected++
			continue
		}
		bundles = append(bundles, *bundle)
	}
	if rejected > 0 {
		log.Infof("[Transform] Batch done: %d accepted, %d rejected", len(bundles), rejected)
	}
	return bundles
}

// normalizeCountries validates and dedupes a raw country list, preserving
// order. Each dropped code is logged individually; drops are only fatal to
// the bundle when they empty the set (checked by the caller).
func (t *Transformer) normalizeCountries(provider, externalID string, raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, code := range raw {
		iso2, ok := NormalizeCountryCode(code)
		if !ok {
			log.Warnf("[Transform] Bundle %s/%s: dropping invalid country code %q", provider, externalID, code)
			continue
		}
		if _, dup := seen[iso2]; dup {
			continue
		}
		seen[iso2] = struct{}{}
		out = append(out, iso2)
	}
	return out
}

// primaryRegion is the statistical mode of the countries' region mapping,
// with first-seen winning ties.
func primaryRegion(countries []string) string {
	counts := make(map[string]int, len(countries))
	order := make([]string, 0, len(countries))
	for _, iso2 := range countries {
		region := RegionForCountry(iso2)
		if region == "" {
			continue
		}
		if _, ok := counts[region]; !ok {
			order = append(order, region)
		}
		counts[region]++
	}
	best := ""
	bestCount := 0
	for _, region := range order {
		if counts[region] > bestCount {
			best = region
			bestCount = counts[region]
		}
	}
	return best
}
