// Request parameter parsing for the analytics API. All endpoints share
// the same filter vocabulary, so it lives in one place.
package http

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"costwatch/internal/core"
)

const (
	defaultRangeDays = 30
	defaultTopLimit  = 10
	maxTopLimit      = 100
)

// QueryParams is everything an analytics endpoint accepts.
type QueryParams struct {
	Filters core.QueryFilters
	// Ref anchors month-to-date and year-to-date windows. Zero means
	// "use the end of the range".
	Ref   core.Date
	Limit int
}

// ParseQueryParams reads the shared filter parameters:
//
//	cloud     all|aws|azure|oci (default all)
//	from, to  YYYY-MM-DD (default: the last 30 days up to today)
//	currency  reporting currency override
//	services  comma-separated service keys
//	accounts  comma-separated scope keys
//	limit     ranking size
//	ref       YYYY-MM-DD reference date for to-date windows
func ParseQueryParams(query url.Values, defaultCurrency string, now time.Time) (QueryParams, error) {
	today := core.DateOf(now.UTC())

	f := core.QueryFilters{
		Cloud:    core.CloudAll,
		Start:    today.AddDays(-(defaultRangeDays - 1)),
		End:      today,
		Currency: defaultCurrency,
	}

	if v := strings.TrimSpace(query.Get("cloud")); v != "" {
		f.Cloud = core.Cloud(strings.ToLower(v))
	}
	if v := strings.TrimSpace(query.Get("from")); v != "" {
		d, err := core.ParseDate(v)
		if err != nil {
			return QueryParams{}, fmt.Errorf("invalid from date %q", v)
		}
		f.Start = d
	}
	if v := strings.TrimSpace(query.Get("to")); v != "" {
		d, err := core.ParseDate(v)
		if err != nil {
			return QueryParams{}, fmt.Errorf("invalid to date %q", v)
		}
		f.End = d
	}
	if v := strings.TrimSpace(query.Get("currency")); v != "" {
		f.Currency = strings.ToUpper(v)
	}
	f.Services = splitList(query.Get("services"))
	f.Accounts = splitList(query.Get("accounts"))

	params := QueryParams{Filters: f, Limit: defaultTopLimit}

	if v := strings.TrimSpace(query.Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return QueryParams{}, fmt.Errorf("invalid limit %q", v)
		}
		if n > maxTopLimit {
			n = maxTopLimit
		}
		params.Limit = n
	}
	if v := strings.TrimSpace(query.Get("ref")); v != "" {
		d, err := core.ParseDate(v)
		if err != nil {
			return QueryParams{}, fmt.Errorf("invalid ref date %q", v)
		}
		params.Ref = d
	}

	if err := params.Filters.Validate(); err != nil {
		return QueryParams{}, err
	}
	return params, nil
}

// splitList parses a comma-separated parameter, dropping empty items.
func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// cacheKey builds a stable cache key for one endpoint and parameter set.
func cacheKey(endpoint string, p QueryParams) string {
	var b strings.Builder
	b.WriteString(endpoint)
	b.WriteByte('|')
	b.WriteString(string(p.Filters.Cloud))
	b.WriteByte('|')
	b.WriteString(p.Filters.Start.String())
	b.WriteByte('|')
	b.WriteString(p.Filters.End.String())
	b.WriteByte('|')
	b.WriteString(p.Filters.Currency)
	b.WriteByte('|')
	b.WriteString(strings.Join(p.Filters.Services, ","))
	b.WriteByte('|')
	b.WriteString(strings.Join(p.Filters.Accounts, ","))
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(p.Limit))
	b.WriteByte('|')
	if !p.Ref.IsZero() {
		b.WriteString(p.Ref.String())
	}
	return b.String()
}
