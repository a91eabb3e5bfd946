package rates

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"costwatch/internal/core"
)

func testDate(t *testing.T, s string) core.Date {
	t.Helper()
	d, err := core.ParseDate(s)
	if err != nil {
		t.Fatalf("ParseDate(%q) error = %v", s, err)
	}
	return d
}

func TestParseQuoteShapes(t *testing.T) {
	p := NewProvider("http://example.test", time.Second, "USD", "BRL")
	requested := testDate(t, "2026-02-10")

	tests := []struct {
		name       string
		payload    string
		wantRate   float64
		wantDate   string
		wantSource string
		wantErr    bool
	}{
		{
			name:       "awesomeapi list with bid",
			payload:    `[{"code":"USD","bid":"5.1234","create_date":"2026-02-09 13:00:00"}]`,
			wantRate:   5.1234,
			wantDate:   "2026-02-09",
			wantSource: "USD",
		},
		{
			name:       "awesomeapi object keyed by pair",
			payload:    `{"USDBRL":{"bid":"5.20","pair":"USDBRL","create_date":"2026-02-10 09:00:00"}}`,
			wantRate:   5.20,
			wantDate:   "2026-02-10",
			wantSource: "USDBRL",
		},
		{
			name:       "bid wins over ask",
			payload:    `{"bid":"5.10","ask":"5.30"}`,
			wantRate:   5.10,
			wantDate:   "2026-02-10",
			wantSource: "api",
		},
		{
			name:       "empty bid falls through to ask",
			payload:    `{"bid":"","ask":5.30}`,
			wantRate:   5.30,
			wantDate:   "2026-02-10",
			wantSource: "api",
		},
		{
			name:       "bcb cotacaoCompra with dataHoraCotacao",
			payload:    `{"cotacaoCompra":5.4321,"dataHoraCotacao":"2026-02-08T13:00:00Z"}`,
			wantRate:   5.4321,
			wantDate:   "2026-02-08",
			wantSource: "api",
		},
		{
			name:       "currencylayer quotes map",
			payload:    `{"quotes":{"USDBRL":5.55},"timestamp":1770681600,"source":"USD"}`,
			wantRate:   5.55,
			wantDate:   "2026-02-10",
			wantSource: "USD",
		},
		{
			name:       "openexchange rates map",
			payload:    `{"rates":{"BRL":5.01,"EUR":0.9},"date":"2026-02-07"}`,
			wantRate:   5.01,
			wantDate:   "2026-02-07",
			wantSource: "api",
		},
		{
			name:    "no recognizable rate",
			payload: `{"price":"5.0"}`,
			wantErr: true,
		},
		{
			name:    "negative rate rejected",
			payload: `{"rate":-1}`,
			wantErr: true,
		},
		{
			name:    "empty list",
			payload: `[]`,
			wantErr: true,
		},
		{
			name:    "scalar payload",
			payload: `5.0`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			quote, err := p.parseQuote([]byte(tt.payload), requested)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseQuote() error = nil, want error; got %+v", quote)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseQuote() error = %v", err)
			}
			if math.Abs(quote.Rate-tt.wantRate) > 1e-9 {
				t.Errorf("Rate = %v, want %v", quote.Rate, tt.wantRate)
			}
			if quote.Date.String() != tt.wantDate {
				t.Errorf("Date = %s, want %s", quote.Date, tt.wantDate)
			}
			if quote.Source != tt.wantSource {
				t.Errorf("Source = %q, want %q", quote.Source, tt.wantSource)
			}
		})
	}
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"bid":"5.25","create_date":"2026-02-10 10:00:00"}]`))
	}))
	defer srv.Close()

	p := NewProvider(srv.URL, time.Second, "USD", "BRL")
	quote, err := p.Fetch(context.Background(), testDate(t, "2026-02-10"))
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if quote.Rate != 5.25 {
		t.Errorf("Rate = %v, want 5.25", quote.Rate)
	}
}

func TestFetchNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewProvider(srv.URL, time.Second, "USD", "BRL")
	if _, err := p.Fetch(context.Background(), testDate(t, "2026-02-10")); err == nil {
		t.Error("Fetch() error = nil, want status error")
	}
}
