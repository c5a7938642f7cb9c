package allocation

import (
	"bytes"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_DomainErrors(t *testing.T) {
	tests := []struct {
		name     string
		build    func() *Portfolio
		expected error
	}{
		{
			name: "zero price",
			build: func() *Portfolio {
				return &Portfolio{Name: "P", TotalValue: d("100"), Assets: []*Asset{
					NewInstrument("A", "A.US", d("1"), d("0"), d("0")),
				}}
			},
			expected: ErrInvalidPrice,
		},
		{
			name: "negative price in nested group",
			build: func() *Portfolio {
				return &Portfolio{Name: "P", TotalValue: d("100"), Assets: []*Asset{
					NewGroup("G", d("1"), NewInstrument("A", "A.US", d("1"), d("0"), d("-3"))),
				}}
			},
			expected: ErrInvalidPrice,
		},
		{
			name: "negative total",
			build: func() *Portfolio {
				return &Portfolio{Name: "P", TotalValue: d("-1")}
			},
			expected: ErrNegativeTotal,
		},
		{
			name: "negative min trade volume",
			build: func() *Portfolio {
				return &Portfolio{Name: "P", TotalValue: d("1"), MinTradeVolume: d("-1")}
			},
			expected: ErrNegativeTradeVolume,
		},
		{
			name: "weight above one",
			build: func() *Portfolio {
				return &Portfolio{Name: "P", TotalValue: d("100"), Assets: []*Asset{
					NewInstrument("A", "A.US", d("1.5"), d("0"), d("1")),
				}}
			},
			expected: ErrInvalidWeight,
		},
		{
			name: "negative current value",
			build: func() *Portfolio {
				return &Portfolio{Name: "P", TotalValue: d("100"), Assets: []*Asset{
					NewInstrument("A", "A.US", d("1"), d("-10"), d("1")),
				}}
			},
			expected: ErrNegativeValue,
		},
		{
			name: "missing holding",
			build: func() *Portfolio {
				return &Portfolio{Name: "P", TotalValue: d("100"), Assets: []*Asset{
					{Name: "A", ExpectedWeight: d("1")},
				}}
			},
			expected: ErrMissingHolding,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRebalancer(zerolog.Nop()).Rebalance(tt.build())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.expected)
		})
	}
}

func TestValidate_ErrorNamesTheNode(t *testing.T) {
	p := &Portfolio{Name: "P", TotalValue: d("100"), Assets: []*Asset{
		NewGroup("Stocks", d("1"), NewInstrument("AAPL", "AAPL.US", d("1"), d("0"), d("0"))),
	}}

	err := Validate(p)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Stocks / AAPL")
}

func TestRebalance_InfeasibleRestrictionsReportDebt(t *testing.T) {
	pinned := NewInstrument("A", "A.US", d("1"), d("1000"), d("10"))
	pinned.RestrictSelling = Restrict(true)
	p := &Portfolio{Name: "Main", Assets: []*Asset{pinned}, TotalValue: d("0"), MinTradeVolume: d("1")}

	result := rebalance(t, p)

	assert.Equal(t, StatusDebt, result.Status)
	assert.True(t, result.Resolved)
	assert.True(t, d("1000").Equal(result.Debt), "debt %s", result.Debt)
	assertTarget(t, "1000", pinned)
	assert.False(t, result.Balanced())
}

func TestRebalance_RepeatedRunsAreIdentical(t *testing.T) {
	build := func() *Portfolio {
		pinned := NewInstrument("Pinned", "PIN.US", d("0.2"), d("400"), d("20"))
		pinned.RestrictSelling = Restrict(true)
		return &Portfolio{
			Name:           "Main",
			TotalValue:     d("1500"),
			MinTradeVolume: d("5"),
			Assets: []*Asset{
				NewGroup("Equity", d("0.7"),
					pinned,
					NewInstrument("World", "VT.US", d("0.8"), d("300"), d("17")),
				),
				NewInstrument("Bonds", "BND.US", d("0.3"), d("600"), d("9")),
			},
		}
	}

	snapshot := func(p *Portfolio) map[string]string {
		out := map[string]string{}
		Walk(p.Assets, func(a *Asset) {
			out[a.FullName()] = fmt.Sprintf("%s %t %t", a.TargetValue.String(), a.BuyBlocked, a.SellBlocked)
		})
		return out
	}

	p := build()
	r := NewRebalancer(zerolog.Nop())
	first, err := r.Rebalance(p)
	require.NoError(t, err)
	firstSnapshot := snapshot(p)

	second, err := r.Rebalance(p)
	require.NoError(t, err)

	assert.Equal(t, firstSnapshot, snapshot(p))
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, len(first.Residuals), len(second.Residuals))
}

func TestRebalance_IndependentTreesInParallel(t *testing.T) {
	r := NewRebalancer(zerolog.Nop())

	var wg sync.WaitGroup
	targets := make([][2]decimal.Decimal, 8)
	for i := range targets {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a := NewInstrument("A", "A.US", d("0.5"), d("0"), d("10"))
			b := NewInstrument("B", "B.US", d("0.5"), d("0"), d("5"))
			p := &Portfolio{Name: "Main", Assets: []*Asset{a, b}, TotalValue: d("100"), MinTradeVolume: d("1")}
			if _, err := r.Rebalance(p); err == nil {
				targets[i] = [2]decimal.Decimal{a.TargetValue, b.TargetValue}
			}
		}(i)
	}
	wg.Wait()

	for _, pair := range targets {
		assert.True(t, d("50").Equal(pair[0]))
		assert.True(t, d("50").Equal(pair[1]))
	}
}

func TestRebalance_LogsSummary(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)

	a := NewInstrument("A", "A.US", d("1"), d("0"), d("10"))
	p := &Portfolio{Name: "Main", Assets: []*Asset{a}, TotalValue: d("100"), MinTradeVolume: d("1")}

	_, err := NewRebalancer(log, WithTrace(LogTrace(log))).Rebalance(p)
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "Portfolio rebalanced")
	assert.Contains(t, buf.String(), `"component":"rebalancer"`)
	assert.Contains(t, buf.String(), `"reason":"initial"`)
}

// randomTree builds a feasible tree whose group weights sum to exactly one and
// whose holdings are whole lots.
func randomTree(rng *rand.Rand, depth int) []*Asset {
	prices := []string{"1", "2.5", "7", "13.2", "50"}
	n := 1 + rng.Intn(4)
	weights := splitWeights(rng, n)

	assets := make([]*Asset, 0, n)
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("N%d", i)
		if depth > 0 && rng.Intn(3) == 0 {
			assets = append(assets, NewGroup(name, weights[i], randomTree(rng, depth-1)...))
			continue
		}

		price := d(prices[rng.Intn(len(prices))])
		current := price.Mul(decimal.NewFromInt(int64(rng.Intn(20))))
		a := NewInstrument(name, name, weights[i], current, price)
		switch rng.Intn(7) {
		case 0:
			a.RestrictSelling = Restrict(true)
		case 1:
			a.RestrictBuying = Restrict(true)
		}
		assets = append(assets, a)
	}
	return assets
}

func splitWeights(rng *rand.Rand, n int) []decimal.Decimal {
	parts := make([]int64, n)
	left := int64(100)
	for i := 0; i < n-1; i++ {
		parts[i] = rng.Int63n(left + 1)
		left -= parts[i]
	}
	parts[n-1] = left

	weights := make([]decimal.Decimal, n)
	for i, p := range parts {
		weights[i] = decimal.New(p, -2)
	}
	return weights
}

func TestRebalance_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	volumes := []string{"0", "1", "10"}
	r := NewRebalancer(zerolog.Nop())

	for i := 0; i < 200; i++ {
		assets := randomTree(rng, 2)
		p := &Portfolio{
			Name:           "Main",
			Assets:         assets,
			TotalValue:     SumCurrent(assets).Add(decimal.NewFromInt(int64(rng.Intn(1000)))),
			MinTradeVolume: d(volumes[rng.Intn(len(volumes))]),
		}

		result, err := r.Rebalance(p)
		require.NoError(t, err)
		if result.Resolved {
			continue
		}

		residuals := map[string]decimal.Decimal{}
		for _, res := range result.Residuals {
			residuals[res.Group] = res.Amount
		}

		// Conservation: children plus whatever could not be placed add
		// up to the parent's target exactly.
		top := SumTargets(p.Assets).Add(residuals["Main"])
		require.True(t, p.TotalValue.Equal(top), "case %d: top level %s != %s", i, top, p.TotalValue)

		Walk(p.Assets, func(a *Asset) {
			// Bounds.
			assert.False(t, a.TargetValue.LessThan(a.MinValue), "case %d: %s below min", i, a.FullName())
			if a.MaxValue != nil {
				assert.False(t, a.TargetValue.GreaterThan(*a.MaxValue), "case %d: %s above max", i, a.FullName())
			}

			if children := a.Children(); children != nil {
				sum := SumTargets(children).Add(residuals[a.FullName()])
				assert.True(t, a.TargetValue.Equal(sum), "case %d: %s: %s != %s", i, a.FullName(), sum, a.TargetValue)
				return
			}

			// Lot rounding.
			inst, _ := a.Instrument()
			diff := a.TargetValue.Sub(a.CurrentValue)
			assert.True(t, diff.Mod(inst.Price).IsZero(), "case %d: %s trades %s at %s", i, a.FullName(), diff, inst.Price)
		})
	}
}
