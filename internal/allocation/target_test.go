package allocation

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rebalance(t *testing.T, p *Portfolio, opts ...Option) Result {
	t.Helper()
	result, err := NewRebalancer(zerolog.Nop(), opts...).Rebalance(p)
	require.NoError(t, err)
	return result
}

func assertTarget(t *testing.T, expected string, a *Asset) {
	t.Helper()
	assert.True(t, d(expected).Equal(a.TargetValue), "%s: expected target %s, got %s", a.FullName(), expected, a.TargetValue)
}

func assertRecord(t *testing.T, records []Record, node string, reason Reason, previous, value string) {
	t.Helper()
	for _, r := range records {
		if r.Node == node && r.Reason == reason && r.Previous.Equal(d(previous)) && r.Value.Equal(d(value)) {
			return
		}
	}
	t.Errorf("no %s record for %s: %s -> %s", reason, node, previous, value)
}

func TestAllocate_LotRoundingWithoutBalance(t *testing.T) {
	a := NewInstrument("A", "A.US", d("0.5"), d("0"), d("10"))
	b := NewInstrument("B", "B.US", d("0.5"), d("0"), d("5"))
	p := &Portfolio{Name: "Main", Assets: []*Asset{a, b}, TotalValue: d("100"), MinTradeVolume: d("1")}

	result := rebalance(t, p)

	assertTarget(t, "50", a)
	assertTarget(t, "50", b)
	assert.True(t, result.Balanced())
	assert.True(t, result.Unallocated.IsZero())
}

func TestAllocate_SellRestrictedInstrumentIsClamped(t *testing.T) {
	restricted := NewInstrument("A", "A.US", d("0"), d("1000"), d("10"))
	restricted.RestrictSelling = Restrict(true)
	sibling := NewInstrument("B", "B.US", d("1"), d("0"), d("10"))
	p := &Portfolio{Name: "Main", Assets: []*Asset{restricted, sibling}, TotalValue: d("2000"), MinTradeVolume: d("1")}

	var records []Record
	result := rebalance(t, p, WithTrace(Collect(&records)))

	assertTarget(t, "1000", restricted)
	assert.True(t, restricted.SellBlocked)
	assertTarget(t, "1000", sibling)
	assert.True(t, result.Balanced())

	assertRecord(t, records, "A", ReasonSellBlocked, "0", "1000")

	redistributed := decimal.Zero
	for _, r := range records {
		if r.Node == "B" && r.Reason == ReasonRedistribution {
			redistributed = redistributed.Add(r.Previous.Sub(r.Value))
		}
	}
	assert.True(t, d("1000").Equal(redistributed), "siblings absorb the clamped 1000, got %s", redistributed)
}

func TestAllocate_BuyRestrictedInstrumentReleasesBalance(t *testing.T) {
	capped := NewInstrument("A", "A.US", d("0.5"), d("20"), d("10"))
	capped.RestrictBuying = Restrict(true)
	free := NewInstrument("B", "B.US", d("0.5"), d("0"), d("10"))
	p := &Portfolio{Name: "Main", Assets: []*Asset{capped, free}, TotalValue: d("100"), MinTradeVolume: d("1")}

	result := rebalance(t, p)

	assertTarget(t, "20", capped)
	assert.True(t, capped.BuyBlocked)
	assert.False(t, capped.SellBlocked)
	assertTarget(t, "80", free)
	assert.True(t, result.Balanced())
}

func TestAllocate_ChangesBelowMinTradeVolumeAreDropped(t *testing.T) {
	a := NewInstrument("A", "A.US", d("0.5"), d("480"), d("10"))
	b := NewInstrument("B", "B.US", d("0.5"), d("520"), d("10"))
	p := &Portfolio{Name: "Main", Assets: []*Asset{a, b}, TotalValue: d("1000"), MinTradeVolume: d("50")}

	result := rebalance(t, p)

	assertTarget(t, "480", a)
	assertTarget(t, "520", b)
	assert.True(t, result.Balanced())
}

func TestAllocate_TieGoesToFirstAndSurplusNeverOverspends(t *testing.T) {
	a := NewInstrument("A", "A.US", d("0.5"), d("0"), d("30"))
	b := NewInstrument("B", "B.US", d("0.5"), d("0"), d("30"))
	p := &Portfolio{Name: "Main", Assets: []*Asset{a, b}, TotalValue: d("100"), MinTradeVolume: d("1")}

	result := rebalance(t, p)

	// Both round up to 60; the first one gives a lot back and the
	// remaining 10 is less than a lot.
	assertTarget(t, "30", a)
	assertTarget(t, "60", b)
	assert.Equal(t, StatusOK, result.Status)
	require.Len(t, result.Residuals, 1)
	assert.Equal(t, "Main", result.Residuals[0].Group)
	assert.True(t, d("10").Equal(result.Residuals[0].Amount))
	assert.True(t, d("10").Equal(result.Unallocated))
	assert.False(t, result.Balanced())
}

func TestAllocate_ZeroMinTradeVolumeTerminates(t *testing.T) {
	a := NewInstrument("A", "A.US", d("0.3"), d("0"), d("7"))
	b := NewInstrument("B", "B.US", d("0.7"), d("0"), d("0.01"))
	p := &Portfolio{Name: "Main", Assets: []*Asset{a, b}, TotalValue: d("100"), MinTradeVolume: decimal.Zero}

	result := rebalance(t, p)

	// A: 30 -> 4 lots of 7 = 28, the 2 left goes to B in cents.
	assertTarget(t, "28", a)
	assertTarget(t, "72", b)
	assert.True(t, result.Balanced())
}

func TestAllocate_UnnormalizedWeightsAreTolerated(t *testing.T) {
	a := NewInstrument("A", "A.US", d("0.4"), d("0"), d("1"))
	b := NewInstrument("B", "B.US", d("0.4"), d("0"), d("1"))
	p := &Portfolio{Name: "Main", Assets: []*Asset{a, b}, TotalValue: d("100"), MinTradeVolume: d("1")}

	result := rebalance(t, p)

	assertTarget(t, "40", a)
	assertTarget(t, "40", b)
	assert.Equal(t, StatusOK, result.Status)
}

func TestAllocate_NestedGroupsConserveEveryLevel(t *testing.T) {
	aapl := NewInstrument("AAPL", "AAPL.US", d("0.3"), d("70"), d("7"))
	msft := NewInstrument("MSFT", "MSFT.US", d("0.7"), d("100"), d("1"))
	vgk := NewInstrument("VGK", "VGK.US", d("0.25"), d("0"), d("5"))
	bnd := NewInstrument("BND", "BND.US", d("0.55"), d("0"), d("3"))
	tlt := NewInstrument("TLT", "TLT.US", d("0.45"), d("0"), d("1"))

	us := NewGroup("US", d("0.75"), aapl, msft)
	stocks := NewGroup("Stocks", d("0.6"), us, vgk)
	bonds := NewGroup("Bonds", d("0.4"), bnd, tlt)
	p := &Portfolio{Name: "Main", Assets: []*Asset{stocks, bonds}, TotalValue: d("1000"), MinTradeVolume: d("1")}

	var records []Record
	result := rebalance(t, p, WithTrace(Collect(&records)))

	require.True(t, result.Balanced(), "residuals: %v", result.Residuals)

	assertTarget(t, "600", stocks)
	assertTarget(t, "400", bonds)
	assertTarget(t, "450", us)
	assertTarget(t, "150", vgk)
	assertTarget(t, "133", aapl)
	assertTarget(t, "317", msft)
	assertTarget(t, "219", bnd)
	assertTarget(t, "181", tlt)

	assert.True(t, p.TotalValue.Equal(SumTargets(p.Assets)))
	Walk(p.Assets, func(a *Asset) {
		if children := a.Children(); children != nil {
			assert.True(t, a.TargetValue.Equal(SumTargets(children)), "%s does not add up", a.FullName())
		}
	})

	assertRecord(t, records, "Stocks / US / AAPL", ReasonRounding, "135", "133")
}

func TestRebalance_SubgroupOverdraftIsResolved(t *testing.T) {
	// The zero-weight group is emptied as a whole, but its only holding is
	// worth less than a tradable amount and cannot follow.
	stale := NewInstrument("X", "X.US", d("1"), d("5"), d("5"))
	legacy := NewGroup("Legacy", d("0"), stale)
	core := NewInstrument("Core", "CORE.US", d("1"), d("0"), d("1"))
	p := &Portfolio{Name: "Main", Assets: []*Asset{legacy, core}, TotalValue: d("105"), MinTradeVolume: d("10")}

	result := rebalance(t, p)

	assert.True(t, result.Resolved)
	assert.Equal(t, StatusOK, result.Status)
	assertTarget(t, "5", legacy)
	assertTarget(t, "5", stale)
	assertTarget(t, "100", core)
	assert.True(t, p.TotalValue.Equal(SumTargets(p.Assets)))
	assert.Empty(t, result.Residuals)
	assert.True(t, result.Unallocated.IsZero())
}

func TestRebalance_SubgroupDebtIsReported(t *testing.T) {
	pinned := NewInstrument("A", "A.US", d("0.5"), d("60"), d("10"))
	pinned.RestrictSelling = Restrict(true)
	small := NewInstrument("B", "B.US", d("0.5"), d("40"), d("10"))
	group := NewGroup("G", d("1"), pinned, small)
	p := &Portfolio{Name: "Main", Assets: []*Asset{group}, TotalValue: d("90"), MinTradeVolume: d("50")}

	Propagate(p.Assets)
	alloc := NewRebalancer(zerolog.Nop()).Allocate(p.Name, p.Assets, p.TotalValue, p.MinTradeVolume)
	assert.True(t, alloc.Overdrawn())
	assert.True(t, d("-10").Equal(alloc.Balance), "balance %s", alloc.Balance)

	result := rebalance(t, p)

	assert.Equal(t, StatusDebt, result.Status)
	assert.True(t, result.Resolved)
	assert.True(t, d("10").Equal(result.Debt), "debt %s", result.Debt)
	assertTarget(t, "60", pinned)
	assertTarget(t, "40", small)
	assertTarget(t, "100", group)
}

func TestAllocate_LargeBalanceSettlesInFewSteps(t *testing.T) {
	tests := []struct {
		name  string
		build func() (*Portfolio, []*Asset)
		want  []string
	}{
		{
			name: "pinned holding funded from cash",
			build: func() (*Portfolio, []*Asset) {
				pinned := NewInstrument("Pinned", "PIN.US", d("0"), d("1000000"), d("1"))
				pinned.RestrictSelling = Restrict(true)
				cash := NewInstrument("Cash", "USD", d("1"), d("0"), d("0.01"))
				return &Portfolio{Name: "Main", Assets: []*Asset{pinned, cash}, TotalValue: d("1000000")},
					[]*Asset{pinned, cash}
			},
			want: []string{"1000000", "0"},
		},
		{
			name: "released balance split between tied leaves",
			build: func() (*Portfolio, []*Asset) {
				capped := NewInstrument("Capped", "CAP.US", d("0.5"), d("0"), d("1"))
				capped.RestrictBuying = Restrict(true)
				a := NewInstrument("A", "A.US", d("0.25"), d("0"), d("0.01"))
				b := NewInstrument("B", "B.US", d("0.25"), d("0"), d("0.01"))
				return &Portfolio{Name: "Main", Assets: []*Asset{capped, a, b}, TotalValue: d("1000000")},
					[]*Asset{capped, a, b}
			},
			want: []string{"0", "500000", "500000"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, assets := tt.build()

			var records []Record
			result := rebalance(t, p, WithTrace(Collect(&records)))

			assert.True(t, result.Balanced())
			for i, a := range assets {
				assertTarget(t, tt.want[i], a)
			}
			assert.Less(t, len(records), 20)
		})
	}
}

func TestAllocate_GroupAbsorbsExactRemainder(t *testing.T) {
	lot := NewInstrument("Lot", "LOT.US", d("0.5"), d("0"), d("30"))
	cash := NewInstrument("Cash", "USD", d("1"), d("0"), d("0.01"))
	reserve := NewGroup("Reserve", d("0.5"), cash)
	p := &Portfolio{Name: "Main", Assets: []*Asset{lot, reserve}, TotalValue: d("100"), MinTradeVolume: d("1")}

	result := rebalance(t, p)

	// Lot rounds 50 up to 60; the reserve gives back exactly 10.
	assertTarget(t, "60", lot)
	assertTarget(t, "40", reserve)
	assertTarget(t, "40", cash)
	assert.True(t, result.Balanced())
}
