package gateway

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ProviderSpec is the declarative, pre-tier form of a provider as read from
// configuration, before PAID_PROVIDERS resolves its Priority.
type ProviderSpec struct {
	Name         string
	LimitRPS     int
	LimitMonthly int
	PricingModel PricingModel
	MethodCosts  map[string]int
	PricingTiers []PricingTier
}

// CacheConfig configures the Scoring Engine's ScoreCache.
type CacheConfig struct {
	Enabled    bool
	TTLSeconds float64
}

// Config is the fully-resolved gateway configuration, ready to construct a
// Router from.
type Config struct {
	Providers []*Provider
	Cache     CacheConfig
}

// LoadConfig builds a Config from specs, resolving each provider's BaseURL
// from the {NAME}_URL environment variable and its Priority from whether
// its name appears in the comma-separated, case-insensitive PAID_PROVIDERS
// environment variable. It fails fast on any unresolvable or invalid spec.
func LoadConfig(specs []ProviderSpec) (*Config, error) {
	paid := paidProviderSet(os.Getenv("PAID_PROVIDERS"))

	cfg := &Config{Providers: make([]*Provider, 0, len(specs))}
	for _, spec := range specs {
		if strings.TrimSpace(spec.Name) == "" {
			return nil, fmt.Errorf("config: provider has empty name")
		}

		envKey := strings.ToUpper(spec.Name) + "_URL"
		baseURL := os.Getenv(envKey)
		if strings.TrimSpace(baseURL) == "" {
			return nil, fmt.Errorf("config: provider %q has no resolvable base_url (set %s)", spec.Name, envKey)
		}

		switch spec.PricingModel {
		case PricingFlat, PricingComputeUnit, PricingCredit:
		default:
			return nil, fmt.Errorf("config: provider %q has unknown pricing_model %q", spec.Name, spec.PricingModel)
		}

		for _, tier := range spec.PricingTiers {
			if tier.UnitPrice < 0 {
				return nil, fmt.Errorf("config: provider %q has negative tier price", spec.Name)
			}
		}
		for method, cost := range spec.MethodCosts {
			if cost < 0 {
				return nil, fmt.Errorf("config: provider %q has negative cost for method %q", spec.Name, method)
			}
		}

		priority := 1
		if paid[strings.ToLower(spec.Name)] {
			priority = 2
		}

		cfg.Providers = append(cfg.Providers, &Provider{
			Name:         spec.Name,
			BaseURL:      baseURL,
			Priority:     priority,
			LimitRPS:     spec.LimitRPS,
			LimitMonthly: spec.LimitMonthly,
			PricingModel: spec.PricingModel,
			MethodCosts:  spec.MethodCosts,
			PricingTiers: spec.PricingTiers,
		})
	}

	cfg.Cache = loadCacheConfig()
	return cfg, nil
}

func paidProviderSet(raw string) map[string]bool {
	out := make(map[string]bool)
	for _, name := range strings.Split(raw, ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		if name != "" {
			out[name] = true
		}
	}
	return out
}

func loadCacheConfig() CacheConfig {
	enabled := strings.EqualFold(os.Getenv("SCORE_CACHE_ENABLED"), "true")
	ttl := 5.0
	if raw := os.Getenv("SCORE_CACHE_TTL_SECONDS"); raw != "" {
		if parsed, err := strconv.ParseFloat(raw, 64); err == nil && parsed > 0 {
			ttl = parsed
		}
	}
	return CacheConfig{Enabled: enabled, TTLSeconds: ttl}
}

// TTL returns the cache config's TTL as a time.Duration.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds * float64(time.Second))
}
