package ledger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"longbridge-rebalance/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2026, 2, 11, 15, 0, 0, 0, time.UTC)

func sampleTrades() []model.Trade {
	return []model.Trade{
		{Symbol: "BND.US", Asset: "Bonds", Side: model.SideSell, Quantity: decimal.NewFromInt(7), Price: decimal.NewFromInt(72)},
		{Symbol: "VTI.US", Asset: "Stocks / US", Side: model.SideBuy, Quantity: decimal.NewFromInt(2), Price: decimal.NewFromInt(250)},
	}
}

func TestAppendOrders_CreatesLedger(t *testing.T) {
	path := Path(t.TempDir())

	ids, err := AppendOrders(path, sampleTrades(), "5f1c9e2a-aaaa-bbbb", day)
	require.NoError(t, err)
	assert.Equal(t, []string{"rb-5f1c9e2a-001", "rb-5f1c9e2a-002"}, ids)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), ledgerHeader))
	assert.Contains(t, string(data), `2026-02-11 * "ORDER" "SELL BND.US"`)

	entries, err := ParseEntries(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	o := OrderFromEntry(entries[1])
	assert.Equal(t, "rb-5f1c9e2a-002", o.IntentID)
	assert.Equal(t, "BUY", o.Side)
	assert.Equal(t, "VTI.US", o.Symbol)
	assert.Equal(t, "2", o.Qty)
	assert.Equal(t, "MARKET", o.OrderType)
	assert.Equal(t, "DAY", o.TIF)
	assert.Equal(t, "US", o.Market)
	assert.Equal(t, "5f1c9e2a-aaaa-bbbb", o.Batch)
	assert.Equal(t, "Stocks / US", entries[1].Meta["asset"])
}

func TestAppendOrders_QualifiesBareSymbols(t *testing.T) {
	path := Path(t.TempDir())
	trades := []model.Trade{
		{Symbol: "AAPL", Asset: "Stocks", Side: model.SideBuy, Quantity: decimal.NewFromInt(3), Price: decimal.NewFromInt(190)},
		{Symbol: "700.HK", Asset: "Asia", Side: model.SideSell, Quantity: decimal.NewFromInt(100), Price: decimal.NewFromInt(300)},
	}

	_, err := AppendOrders(path, trades, "batch", day)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"BUY AAPL.US"`)

	entries := mustParse(t, path)
	require.Len(t, entries, 2)
	assert.Equal(t, "AAPL.US", OrderFromEntry(entries[0]).Symbol)
	assert.Equal(t, "US", OrderFromEntry(entries[0]).Market)
	assert.Equal(t, "700.HK", OrderFromEntry(entries[1]).Symbol)
	assert.Equal(t, "HK", OrderFromEntry(entries[1]).Market)
}

func TestAppendOrders_RefusesWhileBatchPending(t *testing.T) {
	path := Path(t.TempDir())
	_, err := AppendOrders(path, sampleTrades(), "batch-one", day)
	require.NoError(t, err)

	_, err = AppendOrders(path, sampleTrades(), "batch-two", day)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPendingIntents)

	// Once the controller processed both intents the next batch goes in.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("\n2026-02-11 * \"EXECUTION\" \"SELL BND.US\"\n  ; intent_id: rb-batch-on-001\n" +
		"\n2026-02-11 * \"REJECTION\" \"BUY VTI.US\"\n  ; intent_id: rb-batch-on-002\n  ; reason: closed\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	ids, err := AppendOrders(path, sampleTrades(), "batch-two", day)
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	pending := PendingOrders(mustParse(t, path))
	require.Len(t, pending, 2)
	assert.Equal(t, "batch-two", pending[0].Batch)
}

func TestAppendOrders_ManualOrdersDoNotBlock(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "beancount.txt")
	manual := "2026-02-10 * \"ORDER\" \"BUY NVDA\"\n  ; intent_id: manual-1\n  ; side: BUY\n  ; symbol: NVDA\n  ; qty: 1\n"
	require.NoError(t, os.WriteFile(path, []byte(manual), 0644))

	_, err := AppendOrders(path, sampleTrades(), "batch", day)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(data), ledgerHeader), "existing ledger keeps its own header")
	assert.Len(t, mustParse(t, path), 3)
}

func TestAppendOrders_NoTrades(t *testing.T) {
	path := Path(t.TempDir())

	ids, err := AppendOrders(path, nil, "batch", day)
	require.NoError(t, err)
	assert.Empty(t, ids)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestIntentID(t *testing.T) {
	assert.Equal(t, "rb-abc-001", IntentID("abc", 0))
	assert.Equal(t, "rb-12345678-012", IntentID("123456789", 11))
}

func mustParse(t *testing.T, path string) []model.Entry {
	t.Helper()
	entries, err := ParseEntries(path)
	require.NoError(t, err)
	return entries
}
