package analytics

import (
	"encoding/json"
	"fmt"
	"strings"

	"costwatch/internal/core"
)

// TargetDefaults are the flat budget figures used when no per-month
// target is configured, split by output currency.
type TargetDefaults struct {
	MonthlyReporting float64
	MonthlyBase      float64
	WeeklyReporting  float64
	WeeklyBase       float64
}

// Targets evaluates configured budget figures against arbitrary date
// ranges. Built once at startup from static configuration and injected
// into the summary composer; never re-read per request.
type Targets struct {
	defaults          TargetDefaults
	reportingCurrency string
	monthly           map[string]map[string]float64 // cloud -> "YYYY-MM" -> amount
}

// NewTargets parses the raw monthly-targets JSON, a mapping of
// {cloud: {"YYYY-MM": amount}}. Malformed entries are skipped rather
// than rejected; an unparsable document yields an empty map.
func NewTargets(defaults TargetDefaults, reportingCurrency, rawMonthlyJSON string) *Targets {
	return &Targets{
		defaults:          defaults,
		reportingCurrency: strings.ToUpper(reportingCurrency),
		monthly:           parseMonthlyTargets(rawMonthlyJSON),
	}
}

func parseMonthlyTargets(raw string) map[string]map[string]float64 {
	parsed := make(map[string]map[string]float64)
	if strings.TrimSpace(raw) == "" {
		return parsed
	}
	var payload map[string]map[string]float64
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return parsed
	}
	for cloud, months := range payload {
		cloudKey := strings.ToLower(strings.TrimSpace(cloud))
		monthMap := make(map[string]float64)
		for ym, amount := range months {
			var year, month int
			if _, err := fmt.Sscanf(strings.TrimSpace(ym), "%d-%d", &year, &month); err != nil {
				continue
			}
			if month < 1 || month > 12 {
				continue
			}
			monthMap[monthKey(year, month)] = amount
		}
		if len(monthMap) > 0 {
			parsed[cloudKey] = monthMap
		}
	}
	return parsed
}

func monthKey(year, month int) string {
	return fmt.Sprintf("%04d-%02d", year, month)
}

// MonthlyTarget returns the budget figure for one calendar month.
// Configured targets are only meaningful in the reporting currency;
// any other currency gets the flat default untouched. Lookup falls from
// the cloud's own map to the "all" map to the flat default.
func (t *Targets) MonthlyTarget(cloud core.Cloud, month core.Date, currency string) float64 {
	currencyKey := strings.ToUpper(currency)
	defaultTarget := t.defaults.MonthlyBase
	if currencyKey == t.reportingCurrency {
		defaultTarget = t.defaults.MonthlyReporting
	}
	if currencyKey != t.reportingCurrency {
		return defaultTarget
	}

	cloudKey := strings.ToLower(string(cloud))
	if cloudKey == "" {
		cloudKey = "all"
	}
	cloudMap := t.monthly[cloudKey]
	if cloudMap == nil {
		cloudMap = t.monthly["all"]
	}
	if cloudMap == nil {
		return defaultTarget
	}
	if amount, ok := cloudMap[monthKey(month.Year(), int(month.Time.Month()))]; ok {
		return amount
	}
	return defaultTarget
}

// YearlyTarget sums the twelve monthly targets of a calendar year.
func (t *Targets) YearlyTarget(cloud core.Cloud, year int, currency string) float64 {
	total := 0.0
	for month := 1; month <= 12; month++ {
		total += t.MonthlyTarget(cloud, core.NewDate(year, month, 1), currency)
	}
	return total
}

// RangeTarget prorates monthly targets across an arbitrary date range:
// each overlapping calendar month contributes its target scaled by the
// overlap share. When nothing is configured the flat weekly default is
// scaled by rangeDays/7.
func (t *Targets) RangeTarget(cloud core.Cloud, start, end core.Date, currency string) float64 {
	if start.After(end.Time) {
		start, end = end, start
	}
	rangeDays := start.DaysUntil(end) + 1
	if rangeDays <= 0 {
		return 0
	}

	accumulated := 0.0
	for cursor := start.MonthStart(); !cursor.After(end.Time); cursor = cursor.NextMonth() {
		monthEnd := cursor.MonthEnd()
		overlapStart := maxDate(start, cursor)
		overlapEnd := minDate(end, monthEnd)
		if overlapEnd.Before(overlapStart.Time) {
			continue
		}
		overlapDays := overlapStart.DaysUntil(overlapEnd) + 1
		monthTarget := t.MonthlyTarget(cloud, cursor, currency)
		daysInMonth := cursor.DaysInMonth()
		if monthTarget > 0 && daysInMonth > 0 {
			accumulated += monthTarget * float64(overlapDays) / float64(daysInMonth)
		}
	}
	if accumulated > 0 {
		return accumulated
	}

	fallbackWeekly := t.defaults.WeeklyBase
	if strings.ToUpper(currency) == t.reportingCurrency {
		fallbackWeekly = t.defaults.WeeklyReporting
	}
	return fallbackWeekly * float64(rangeDays) / 7.0
}

func maxDate(a, b core.Date) core.Date {
	if a.After(b.Time) {
		return a
	}
	return b
}

func minDate(a, b core.Date) core.Date {
	if a.Before(b.Time) {
		return a
	}
	return b
}
