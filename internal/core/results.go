package core

// TimeseriesPoint is one day of the daily cost series.
type TimeseriesPoint struct {
	Date  Date    `json:"date"`
	Total float64 `json:"total"`
}

// PeakDay is the most expensive single day of a period. Ties resolve to
// the earliest date.
type PeakDay struct {
	Date   Date    `json:"date"`
	Amount float64 `json:"amount"`
}

// RankedItem is one row of a Top-N ranking, including the synthetic
// "Others" bucket. Totals across a full result conserve the period total.
type RankedItem struct {
	Name     string  `json:"name"`
	Total    float64 `json:"total"`
	SharePct float64 `json:"sharePct"`
	Delta    float64 `json:"delta"`
	DeltaPct float64 `json:"deltaPct"`
}

// DimensionTotal is a grouped sum for one dimension value, before any
// ranking or bucketing.
type DimensionTotal struct {
	Key   string
	Name  string
	Total float64
}

// DailyDimensionRow is one (day, dimension value) grouped sum.
type DailyDimensionRow struct {
	Date  Date
	Name  string
	Total float64
}

// DailyBreakdown is one day's total plus its split across the period's
// top dimension values, with everything else folded under "Others".
type DailyBreakdown struct {
	Date        Date               `json:"date"`
	Total       float64            `json:"total"`
	ByDimension map[string]float64 `json:"byDimension,omitempty"`
}

// Summary is the composite reporting payload for one filter window.
// Budget fields are nil when no target is configured.
type Summary struct {
	PeriodTotal   float64  `json:"periodTotal"`
	PreviousTotal float64  `json:"previousTotal"`
	DeltaPct      float64  `json:"deltaPct"`
	AvgDaily      float64  `json:"avgDaily"`
	PeakDay       PeakDay  `json:"peakDay"`
	MonthToDate   float64  `json:"monthToDate"`
	YearToDate    float64  `json:"yearToDate"`
	BudgetMonth   *float64 `json:"budgetMonth,omitempty"`
	BudgetYear    *float64 `json:"budgetYear,omitempty"`
	Rate          float64  `json:"rate"`
}

// OthersBucket is the name of the synthetic ranking entry absorbing all
// dimension values beyond the requested Top-N.
const OthersBucket = "Others"

// Pct returns part/whole as a percentage, or 0 when the denominator is
// not positive. Never NaN or Inf.
func Pct(part, whole float64) float64 {
	if whole <= 0 {
		return 0
	}
	return part / whole * 100.0
}
