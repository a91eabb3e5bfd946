package analytics

import (
	"context"
	"errors"
	"math"
	"testing"

	"costwatch/internal/core"
)

func weekFilters() core.QueryFilters {
	return core.QueryFilters{
		Cloud:    core.CloudAWS,
		Start:    core.NewDate(2026, 2, 1),
		End:      core.NewDate(2026, 2, 7),
		Currency: "BRL",
	}
}

// serviceRows spreads per-service totals over the first day of the
// window so grouped sums match the given map exactly.
func serviceRows(day core.Date, totals map[string]float64) []factRow {
	var rows []factRow
	for service, total := range totals {
		rows = append(rows, factRow{
			date: day, cloud: core.CloudAWS, scope: "acct-1",
			service: service, currency: "BRL", amount: total,
		})
	}
	return rows
}

func TestRankTopNWithOthers(t *testing.T) {
	facts := &fakeStore{rows: serviceRows(core.NewDate(2026, 2, 1), map[string]float64{
		"A": 50, "B": 30, "C": 15, "D": 5,
	})}
	svc := newTestService(facts, &fakeRates{}, TargetDefaults{}, "")

	items, err := svc.Rank(context.Background(), weekFilters(), core.DimensionService, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("got %d items, want 3", len(items))
	}

	want := []struct {
		name  string
		total float64
		share float64
	}{
		{"A", 50, 50},
		{"B", 30, 30},
		{core.OthersBucket, 20, 20},
	}
	for i, w := range want {
		if items[i].Name != w.name {
			t.Errorf("item %d name = %s, want %s", i, items[i].Name, w.name)
		}
		if math.Abs(items[i].Total-w.total) > 1e-9 {
			t.Errorf("item %d total = %v, want %v", i, items[i].Total, w.total)
		}
		if math.Abs(items[i].SharePct-w.share) > 1e-9 {
			t.Errorf("item %d share = %v, want %v", i, items[i].SharePct, w.share)
		}
	}
}

func TestRankConservesPeriodTotal(t *testing.T) {
	facts := &fakeStore{rows: serviceRows(core.NewDate(2026, 2, 1), map[string]float64{
		"A": 123.45, "B": 67.89, "C": 10.01, "D": 0.55, "E": 42.0, "F": 3.14,
	})}
	svc := newTestService(facts, &fakeRates{}, TargetDefaults{}, "")

	for limit := 2; limit <= 5; limit++ {
		items, err := svc.Rank(context.Background(), weekFilters(), core.DimensionService, limit)
		if err != nil {
			t.Fatalf("limit %d: unexpected error: %v", limit, err)
		}
		sum := 0.0
		for _, item := range items {
			sum += item.Total
		}
		periodTotal := 123.45 + 67.89 + 10.01 + 0.55 + 42.0 + 3.14
		if math.Abs(sum-periodTotal)/periodTotal > 1e-6 {
			t.Errorf("limit %d: sum %v != period total %v", limit, sum, periodTotal)
		}
		if items[len(items)-1].Name != core.OthersBucket {
			t.Errorf("limit %d: last item = %s, want Others", limit, items[len(items)-1].Name)
		}
	}
}

func TestRankNoOthersWhenAllFit(t *testing.T) {
	facts := &fakeStore{rows: serviceRows(core.NewDate(2026, 2, 1), map[string]float64{
		"A": 50, "B": 30,
	})}
	svc := newTestService(facts, &fakeRates{}, TargetDefaults{}, "")

	items, err := svc.Rank(context.Background(), weekFilters(), core.DimensionService, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	for _, item := range items {
		if item.Name == core.OthersBucket {
			t.Fatalf("unexpected Others bucket")
		}
	}
}

func TestRankPreviousPeriodDeltas(t *testing.T) {
	current := serviceRows(core.NewDate(2026, 2, 1), map[string]float64{"A": 100, "B": 40})
	previous := serviceRows(core.NewDate(2026, 1, 25), map[string]float64{"A": 50, "C": 10})
	facts := &fakeStore{rows: append(current, previous...)}
	svc := newTestService(facts, &fakeRates{}, TargetDefaults{}, "")

	items, err := svc.Rank(context.Background(), weekFilters(), core.DimensionService, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}

	// A doubled against the previous window.
	if items[0].Name != "A" || items[0].Delta != 50 || items[0].DeltaPct != 100 {
		t.Errorf("A = %+v, want delta 50, deltaPct 100", items[0])
	}
	// B had no previous total: delta equals total, deltaPct guards to 0.
	if items[1].Name != "B" || items[1].Delta != 40 || items[1].DeltaPct != 0 {
		t.Errorf("B = %+v, want delta 40, deltaPct 0", items[1])
	}
}

func TestRankOthersDeltaSymmetric(t *testing.T) {
	current := serviceRows(core.NewDate(2026, 2, 1), map[string]float64{"A": 50, "B": 30, "C": 15, "D": 5})
	previous := serviceRows(core.NewDate(2026, 1, 25), map[string]float64{"A": 40, "B": 20, "C": 20, "D": 20})
	facts := &fakeStore{rows: append(current, previous...)}
	svc := newTestService(facts, &fakeRates{}, TargetDefaults{}, "")

	items, err := svc.Rank(context.Background(), weekFilters(), core.DimensionService, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	others := items[len(items)-1]
	if others.Name != core.OthersBucket {
		t.Fatalf("last item = %s, want Others", others.Name)
	}
	// Others current: 100 - (50+30) = 20; previous: 100 - (40+20) = 40.
	if others.Total != 20 {
		t.Errorf("Others total = %v, want 20", others.Total)
	}
	if others.Delta != -20 {
		t.Errorf("Others delta = %v, want -20", others.Delta)
	}
	if others.DeltaPct != -50 {
		t.Errorf("Others deltaPct = %v, want -50", others.DeltaPct)
	}
}

func TestRankDeterministicTieBreak(t *testing.T) {
	facts := &fakeStore{rows: serviceRows(core.NewDate(2026, 2, 1), map[string]float64{
		"Zeta": 30, "Alpha": 30, "Mid": 30,
	})}
	svc := newTestService(facts, &fakeRates{}, TargetDefaults{}, "")

	items, err := svc.Rank(context.Background(), weekFilters(), core.DimensionService, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantOrder := []string{"Alpha", "Mid", "Zeta"}
	for i, want := range wantOrder {
		if items[i].Name != want {
			t.Fatalf("tie order = %v, want %v", names(items), wantOrder)
		}
	}
}

func names(items []core.RankedItem) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.Name
	}
	return out
}

func TestRankByAccount(t *testing.T) {
	facts := &fakeStore{rows: []factRow{
		{date: core.NewDate(2026, 2, 1), cloud: core.CloudAWS, scope: "prod", service: "EC2", currency: "BRL", amount: 70},
		{date: core.NewDate(2026, 2, 2), cloud: core.CloudAWS, scope: "dev", service: "EC2", currency: "BRL", amount: 30},
	}}
	svc := newTestService(facts, &fakeRates{}, TargetDefaults{}, "")

	items, err := svc.Rank(context.Background(), weekFilters(), core.DimensionAccount, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 || items[0].Name != "prod" || items[1].Name != "dev" {
		t.Fatalf("account ranking = %v", names(items))
	}
}

func TestRankEmptyDataset(t *testing.T) {
	svc := newTestService(&fakeStore{}, &fakeRates{}, TargetDefaults{}, "")

	items, err := svc.Rank(context.Background(), weekFilters(), core.DimensionService, 5)
	if err != nil {
		t.Fatalf("empty dataset must not error, got %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("got %d items, want 0", len(items))
	}
}

func TestRankValidation(t *testing.T) {
	svc := newTestService(&fakeStore{}, &fakeRates{}, TargetDefaults{}, "")

	bad := weekFilters()
	bad.Start, bad.End = bad.End, bad.Start
	if _, err := svc.Rank(context.Background(), bad, core.DimensionService, 5); !errors.Is(err, core.ErrInvalidRange) {
		t.Errorf("inverted range: err = %v, want ErrInvalidRange", err)
	}
	if _, err := svc.Rank(context.Background(), weekFilters(), "region", 5); !errors.Is(err, core.ErrInvalidDim) {
		t.Errorf("bad dimension: err = %v, want ErrInvalidDim", err)
	}
	if _, err := svc.Rank(context.Background(), weekFilters(), core.DimensionService, 0); !errors.Is(err, core.ErrInvalidLimit) {
		t.Errorf("zero limit: err = %v, want ErrInvalidLimit", err)
	}
}

func TestRankStoreFailurePropagates(t *testing.T) {
	boom := errors.New("disk I/O error")
	svc := newTestService(&fakeStore{err: boom}, &fakeRates{}, TargetDefaults{}, "")

	if _, err := svc.Rank(context.Background(), weekFilters(), core.DimensionService, 5); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped store error", err)
	}
}
