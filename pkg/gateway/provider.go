package gateway

// Default per-call costs used when a Provider does not declare an explicit
// MethodCosts entry for a method.
const (
	defaultFlatCost        = 1
	defaultComputeUnitCost = 10
	defaultCreditCost      = 20
)

// CostOf returns the cost, in the provider's pricing-model units, of calling
// method. It is a pure function of (p.PricingModel, p.MethodCosts, method).
func (p *Provider) CostOf(method string) int {
	switch p.PricingModel {
	case PricingComputeUnit:
		if c, ok := p.MethodCosts[method]; ok {
			return c
		}
		return defaultComputeUnitCost
	case PricingCredit:
		if c, ok := p.MethodCosts[method]; ok {
			return c
		}
		if c, ok := p.MethodCosts["default"]; ok {
			return c
		}
		return defaultCreditCost
	default: // PricingFlat and anything unrecognized behaves as flat.
		return defaultFlatCost
	}
}

// PricePerCall returns the USD price of one call to method, given the
// observed request counts from store. It is a pure function over
// (p, store, method): CostOf, the store's request counts and the tier table
// are the only state it consults.
func (p *Provider) PricePerCall(store *MetricsStore, method string) float64 {
	switch p.PricingModel {
	case PricingFlat:
		count := store.RequestCount(p.Name, method) + 1
		return p.tierPrice(count)
	case PricingComputeUnit:
		cu := p.CostOf(method)
		totalCU := p.totalUnits(store, true) + int64(cu)
		return p.tierPrice(totalCU) * float64(cu)
	case PricingCredit:
		credits := p.CostOf(method)
		totalCredits := p.totalUnits(store, false) + int64(credits)
		return p.tierPrice(totalCredits) * float64(credits)
	default:
		count := store.RequestCount(p.Name, method) + 1
		return p.tierPrice(count)
	}
}

// totalUnits sums, across every method this provider has served, count ×
// unit-cost (compute units or credits depending on asComputeUnit).
func (p *Provider) totalUnits(store *MetricsStore, asComputeUnit bool) int64 {
	var total int64
	for method, count := range p.perMethodCounts(store) {
		var unit int
		if asComputeUnit {
			unit = p.methodCostFor(method, defaultComputeUnitCost)
		} else {
			unit = p.CostOf(method)
		}
		total += count * int64(unit)
	}
	return total
}

func (p *Provider) methodCostFor(method string, fallback int) int {
	if c, ok := p.MethodCosts[method]; ok {
		return c
	}
	return fallback
}

// perMethodCounts returns request counts for every method this provider has
// recorded, read from the store's AllCounts snapshot.
func (p *Provider) perMethodCounts(store *MetricsStore) map[string]int64 {
	all := store.AllCounts()
	return all[providerKey(p.Name)]
}

// tierPrice selects the unit price for the tier matching total, by walking
// PricingTiers in ascending Threshold order and keeping the last one total
// meets or exceeds. A provider with no tiers is priced at 0.
func (p *Provider) tierPrice(total int64) float64 {
	if len(p.PricingTiers) == 0 {
		return 0
	}
	price := p.PricingTiers[0].UnitPrice
	for _, tier := range p.PricingTiers {
		if total >= int64(tier.Threshold) {
			price = tier.UnitPrice
		}
	}
	return price
}
