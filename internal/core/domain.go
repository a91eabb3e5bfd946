package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	CloudAll   Cloud = "all"
	CloudAWS   Cloud = "aws"
	CloudAzure Cloud = "azure"
	CloudOCI   Cloud = "oci"
)

const (
	DimensionService Dimension = "service"
	DimensionAccount Dimension = "account"
)

type (
	Cloud string

	// Dimension selects the grouping axis for rankings and breakdowns.
	Dimension string

	// Date is a calendar day, always midnight UTC.
	Date struct {
		time.Time
	}

	// QueryFilters scopes every analytics query. It is a value object:
	// operations derive new filter sets instead of mutating one.
	QueryFilters struct {
		Cloud    Cloud
		Start    Date
		End      Date
		Currency string
		Services []string
		Accounts []string
	}

	// CostRecord is one canonical fact row: cost of one service in one
	// scope on one day, in its native currency. AmountSecondary carries a
	// pre-converted value in the secondary reporting currency when the
	// ingestion source supplied one.
	CostRecord struct {
		Date            Date
		Cloud           Cloud
		ScopeKey        string
		ScopeName       string
		ServiceKey      string
		ServiceName     string
		RegionKey       string
		CurrencyCode    string
		Amount          decimal.Decimal
		AmountSecondary decimal.NullDecimal
		SourceRef       string
	}

	// CurrencyRate is one directed exchange rate on one day.
	CurrencyRate struct {
		Date Date
		From string
		To   string
		Rate float64
	}
)

var (
	ErrInvalidRange    = errors.New("start date after end date")
	ErrInvalidCloud    = errors.New("invalid cloud")
	ErrInvalidDim      = errors.New("invalid dimension")
	ErrInvalidLimit    = errors.New("limit must be positive")
	ErrEmptyScope      = errors.New("empty scope key")
	ErrEmptyService    = errors.New("empty service key")
	ErrEmptyCurrency   = errors.New("empty currency code")
	ErrNegativeAmount  = errors.New("negative amount")
	ErrEmptySourceRef  = errors.New("empty source ref")
	ErrNonPositiveRate = errors.New("rate must be positive")
)

func (c Cloud) Valid() bool {
	switch c {
	case CloudAll, CloudAWS, CloudAzure, CloudOCI:
		return true
	}
	return false
}

// Providers returns the concrete clouds covered by the selector: the
// cloud itself, or all three for CloudAll.
func (c Cloud) Providers() []Cloud {
	if c == CloudAll {
		return []Cloud{CloudAWS, CloudAzure, CloudOCI}
	}
	return []Cloud{c}
}

func (d Dimension) Valid() bool {
	return d == DimensionService || d == DimensionAccount
}

// NewDate creates a Date from year, month, day.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses an ISO date (2006-01-02).
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t}, nil
}

// DateOf truncates an instant to its UTC calendar day.
func DateOf(t time.Time) Date {
	u := t.UTC()
	return NewDate(u.Year(), int(u.Month()), u.Day())
}

func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

// DaysUntil returns the number of days from d to other (other - d).
func (d Date) DaysUntil(other Date) int {
	return int(other.Time.Sub(d.Time) / (24 * time.Hour))
}

// MonthStart returns the first day of d's month.
func (d Date) MonthStart() Date {
	return NewDate(d.Year(), int(d.Time.Month()), 1)
}

// MonthEnd returns the last day of d's month.
func (d Date) MonthEnd() Date {
	return d.MonthStart().AddDays(d.DaysInMonth() - 1)
}

// YearStart returns January 1st of d's year.
func (d Date) YearStart() Date {
	return NewDate(d.Year(), 1, 1)
}

// DaysInMonth returns the number of days in d's calendar month.
func (d Date) DaysInMonth() int {
	first := d.MonthStart()
	return first.DaysUntil(Date{Time: first.Time.AddDate(0, 1, 0)})
}

// NextMonth returns the first day of the month after d's.
func (d Date) NextMonth() Date {
	return Date{Time: d.MonthStart().Time.AddDate(0, 1, 0)}
}

func (d Date) String() string {
	return d.Time.Format("2006-01-02")
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" || s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	return nil
}

func (f QueryFilters) Validate() error {
	if !f.Cloud.Valid() {
		return ErrInvalidCloud
	}
	if err := f.Start.Validate(); err != nil {
		return errors.New("invalid start date: " + err.Error())
	}
	if err := f.End.Validate(); err != nil {
		return errors.New("invalid end date: " + err.Error())
	}
	if f.Start.After(f.End.Time) {
		return ErrInvalidRange
	}
	if strings.TrimSpace(f.Currency) == "" {
		return ErrEmptyCurrency
	}
	return nil
}

// RangeDays returns the inclusive length of the filter window in days.
func (f QueryFilters) RangeDays() int {
	return f.Start.DaysUntil(f.End) + 1
}

// WithRange returns a copy of f scoped to a different window. All other
// fields carry over unchanged.
func (f QueryFilters) WithRange(start, end Date) QueryFilters {
	f.Start = start
	f.End = end
	return f
}

func (r CostRecord) Validate() error {
	if err := r.Date.Validate(); err != nil {
		return err
	}
	if r.Cloud == CloudAll || !r.Cloud.Valid() {
		return ErrInvalidCloud
	}
	if strings.TrimSpace(r.ScopeKey) == "" {
		return ErrEmptyScope
	}
	if strings.TrimSpace(r.ServiceKey) == "" {
		return ErrEmptyService
	}
	if strings.TrimSpace(r.CurrencyCode) == "" {
		return ErrEmptyCurrency
	}
	if r.Amount.IsNegative() {
		return ErrNegativeAmount
	}
	if strings.TrimSpace(r.SourceRef) == "" {
		return ErrEmptySourceRef
	}
	return nil
}

func (cr CurrencyRate) Validate() error {
	if err := cr.Date.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(cr.From) == "" || strings.TrimSpace(cr.To) == "" {
		return ErrEmptyCurrency
	}
	if cr.Rate <= 0 {
		return ErrNonPositiveRate
	}
	return nil
}
