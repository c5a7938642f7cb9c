package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"longbridge-rebalance/internal/model"

	"github.com/longbridge/openapi-go/quote"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ErrMissingPrice is returned when a symbol has no usable last price.
var ErrMissingPrice = errors.New("no price")

// HoldDir returns the quote directory of a symbol under root.
func HoldDir(root, symbol string) string {
	return filepath.Join(root, "quote", "hold", symbol)
}

// RefreshOverviews fetches real-time quotes for symbols in one request and
// writes /quote/hold/{SYMBOL}/overview.json for each of them.
func RefreshOverviews(ctx context.Context, qc *quote.QuoteContext, root string, symbols []string, log zerolog.Logger) error {
	if len(symbols) == 0 {
		return nil
	}
	quotes, err := qc.Quote(ctx, symbols)
	if err != nil {
		return fmt.Errorf("quote: %w", err)
	}

	for _, q := range quotes {
		ov := model.QuoteOverview{
			Symbol:    q.Symbol,
			Last:      dec(q.LastDone),
			PrevClose: dec(q.PrevClose),
			UpdatedAt: time.Unix(q.Timestamp, 0).UTC().Format(time.RFC3339),
		}
		if err := WriteOverview(root, ov); err != nil {
			return fmt.Errorf("write overview %s: %w", q.Symbol, err)
		}
		log.Debug().Str("symbol", q.Symbol).Str("last", ov.Last.String()).Msg("Quote refreshed")
	}
	return nil
}

// WriteOverview writes ov to its symbol's hold directory.
func WriteOverview(root string, ov model.QuoteOverview) error {
	dir := HoldDir(root, ov.Symbol)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return writeJSON(filepath.Join(dir, "overview.json"), ov)
}

// ReadOverview reads a parsed QuoteOverview from a symbol's hold directory.
// Returns nil if the file doesn't exist or can't be parsed.
func ReadOverview(holdDir string) *model.QuoteOverview {
	data, err := os.ReadFile(filepath.Join(holdDir, "overview.json"))
	if err != nil {
		return nil
	}
	var ov model.QuoteOverview
	if json.Unmarshal(data, &ov) != nil {
		return nil
	}
	return &ov
}

// Prices returns the last price of every symbol. A missing overview or a
// price that is not positive is an error naming the symbol.
func Prices(root string, symbols []string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(symbols))
	for _, symbol := range symbols {
		ov := ReadOverview(HoldDir(root, symbol))
		if ov == nil {
			return nil, fmt.Errorf("%s: %w: overview missing", symbol, ErrMissingPrice)
		}
		if !ov.Last.IsPositive() {
			return nil, fmt.Errorf("%s: %w: last %s", symbol, ErrMissingPrice, ov.Last)
		}
		out[symbol] = ov.Last
	}
	return out, nil
}

// dec dereferences an optional quote decimal.
func dec(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}

// writeJSON marshals v as indented JSON and writes to path.
func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}
