// Package rates fetches currency quotes from an external provider and
// keeps the stored rate table fresh.
package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"costwatch/internal/core"
)

// Quote is one parsed provider quotation for the configured pair.
type Quote struct {
	Date   core.Date
	Rate   float64
	Source string
}

// Provider pulls quotes over HTTP. The payload shape varies wildly
// between providers, so parsing probes a fixed list of known shapes.
type Provider struct {
	url    string
	from   string
	to     string
	client *http.Client
}

func NewProvider(url string, timeout time.Duration, from, to string) *Provider {
	return &Provider{
		url:    url,
		from:   strings.ToUpper(from),
		to:     strings.ToUpper(to),
		client: &http.Client{Timeout: timeout},
	}
}

// Fetch retrieves and parses one quote. requested is used when the
// payload carries no usable date.
func (p *Provider) Fetch(ctx context.Context, requested core.Date) (Quote, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return Quote{}, fmt.Errorf("build rate request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return Quote{}, fmt.Errorf("fetch rate quote: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Quote{}, fmt.Errorf("rate provider returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Quote{}, fmt.Errorf("read rate response: %w", err)
	}
	return p.parseQuote(body, requested)
}

// rateExtractor probes one known payload shape for a positive rate.
// Extractors run in declaration order; the first hit wins.
type rateExtractor struct {
	name    string
	extract func(p *Provider, payload map[string]any) (float64, bool)
}

func directKey(key string) rateExtractor {
	return rateExtractor{
		name: key,
		extract: func(_ *Provider, payload map[string]any) (float64, bool) {
			return positiveFloat(payload[key])
		},
	}
}

var rateExtractors = []rateExtractor{
	directKey("bid"),
	directKey("ask"),
	directKey("rate"),
	directKey("value"),
	directKey("cotacaoCompra"),
	directKey("cotacaoVenda"),
	{
		name: "quotes-pair",
		extract: func(p *Provider, payload map[string]any) (float64, bool) {
			quotes, ok := payload["quotes"].(map[string]any)
			if !ok {
				return 0, false
			}
			return positiveFloat(quotes[p.from+p.to])
		},
	},
	{
		name: "rates-currency",
		extract: func(p *Provider, payload map[string]any) (float64, bool) {
			rates, ok := payload["rates"].(map[string]any)
			if !ok {
				return 0, false
			}
			return positiveFloat(rates[p.to])
		},
	},
}

// dateKeys are probed in order for the quote date; absent or unparsable
// values fall through to the requested date.
var dateKeys = []string{"date", "create_date", "timestamp", "dataHoraCotacao"}

func (p *Provider) parseQuote(body []byte, requested core.Date) (Quote, error) {
	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return Quote{}, fmt.Errorf("decode rate payload: %w", err)
	}
	return p.parseValue(payload, requested)
}

func (p *Provider) parseValue(payload any, requested core.Date) (Quote, error) {
	// Some providers wrap the quote in a single-element array.
	if list, ok := payload.([]any); ok {
		if len(list) == 0 {
			return Quote{}, fmt.Errorf("empty rate payload list")
		}
		return p.parseValue(list[0], requested)
	}

	obj, ok := payload.(map[string]any)
	if !ok {
		return Quote{}, fmt.Errorf("unexpected rate payload type %T", payload)
	}

	for _, ex := range rateExtractors {
		rate, ok := ex.extract(p, obj)
		if !ok {
			continue
		}
		return Quote{
			Date:   p.extractDate(obj, requested),
			Rate:   rate,
			Source: extractSource(obj),
		}, nil
	}

	// Providers like awesomeapi key the quote object by the pair name.
	if nested, ok := obj[p.from+p.to].(map[string]any); ok {
		return p.parseValue(nested, requested)
	}

	return Quote{}, fmt.Errorf("no %s/%s rate found in payload", p.from, p.to)
}

func (p *Provider) extractDate(payload map[string]any, fallback core.Date) core.Date {
	for _, key := range dateKeys {
		if d, ok := parseAnyDate(payload[key]); ok {
			return d
		}
	}
	return fallback
}

func extractSource(payload map[string]any) string {
	for _, key := range []string{"source", "code", "pair"} {
		if s, ok := payload[key].(string); ok && s != "" {
			return s
		}
	}
	return "api"
}

func positiveFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		if val > 0 {
			return val, true
		}
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err == nil && parsed > 0 {
			return parsed, true
		}
	}
	return 0, false
}

func parseAnyDate(v any) (core.Date, bool) {
	switch val := v.(type) {
	case float64:
		// Unix timestamp, possibly sent as a JSON number.
		return core.DateOf(time.Unix(int64(val), 0).UTC()), true
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return core.Date{}, false
		}
		if ts, err := strconv.ParseInt(s, 10, 64); err == nil {
			return core.DateOf(time.Unix(ts, 0).UTC()), true
		}
		if len(s) >= 10 {
			if d, err := core.ParseDate(s[:10]); err == nil {
				return d, true
			}
		}
	}
	return core.Date{}, false
}
