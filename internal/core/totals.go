package core

// ComputeTotals derives the per-section sums and the cash total from the
// report's line items. It is a pure function: caller-supplied totals are
// never consulted. Empty sections sum to 0.
func ComputeTotals(r *Report) map[string]float64 {
	totals := make(map[string]float64, len(SectionKinds)+1)
	for _, kind := range SectionKinds {
		var sum float64
		for _, item := range r.Section(kind) {
			sum += item.Amount
		}
		totals[string(kind)] = sum
	}
	totals[TotalCashKey] = r.Cash
	return totals
}

// RecomputeTotals overwrites the report's cached totals with a fresh
// derivation. Invoked on every create and edit before persistence.
func (r *Report) RecomputeTotals() {
	r.Totals = ComputeTotals(r)
}
