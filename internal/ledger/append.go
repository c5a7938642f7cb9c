package ledger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"longbridge-rebalance/internal/model"
)

// ErrPendingIntents is returned when the ledger still holds rebalance orders
// the controller has not processed.
var ErrPendingIntents = errors.New("earlier rebalance orders are still pending")

// Path returns the location of trade/beancount.txt under root.
func Path(root string) string {
	return filepath.Join(root, "trade", "beancount.txt")
}

// ledgerHeader starts a ledger created by AppendOrders.
const ledgerHeader = "; beancount append-only trade ledger\n"

// IntentID names the n-th order of a batch.
func IntentID(batch string, n int) string {
	short := batch
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("rb-%s-%03d", short, n+1)
}

// AppendOrders appends one MARKET ORDER entry per trade, all tagged with
// batch, and returns their intent ids. Symbols without a market suffix are
// written as US symbols. It refuses to write while orders of
// an earlier rebalance are pending.
func AppendOrders(path string, trades []model.Trade, batch string, now time.Time) ([]string, error) {
	if len(trades) == 0 {
		return nil, nil
	}

	entries, err := ParseEntries(path)
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	for _, o := range PendingOrders(entries) {
		if o.Batch != "" {
			return nil, fmt.Errorf("%w: %s (batch %s)", ErrPendingIntents, o.IntentID, o.Batch)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	var sb strings.Builder
	if entries == nil {
		if info, err := f.Stat(); err == nil && info.Size() == 0 {
			sb.WriteString(ledgerHeader)
		}
	}

	date := now.Format("2006-01-02")
	ids := make([]string, 0, len(trades))
	for i, t := range trades {
		id := IntentID(batch, i)
		ids = append(ids, id)
		market := MarketOf(t.Symbol)
		symbol := FullSymbol(t.Symbol, market)

		sb.WriteString(fmt.Sprintf("\n%s * \"%s\" \"%s %s\"\n", date, TypeOrder, t.Side, symbol))
		sb.WriteString(fmt.Sprintf("  ; intent_id: %s\n", id))
		sb.WriteString(fmt.Sprintf("  ; side: %s\n", t.Side))
		sb.WriteString(fmt.Sprintf("  ; symbol: %s\n", symbol))
		sb.WriteString(fmt.Sprintf("  ; market: %s\n", market))
		sb.WriteString(fmt.Sprintf("  ; qty: %s\n", t.Quantity.String()))
		sb.WriteString("  ; type: MARKET\n")
		sb.WriteString("  ; tif: DAY\n")
		sb.WriteString(fmt.Sprintf("  ; batch: %s\n", batch))
		sb.WriteString(fmt.Sprintf("  ; asset: %s\n", t.Asset))
	}

	if _, err := f.WriteString(sb.String()); err != nil {
		return nil, fmt.Errorf("write ledger: %w", err)
	}
	return ids, nil
}
