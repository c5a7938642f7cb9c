package ledger

import (
	"os"
	"regexp"
	"strings"

	"longbridge-rebalance/internal/model"
)

// HeaderRe matches beancount transaction header lines like:
// 2026-02-11 * "ORDER" "BUY NVDA"
var HeaderRe = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})\s+\*\s+"(\w+)"\s+"(.+)"`)

// Entry types written to the ledger.
const (
	TypeOrder     = "ORDER"
	TypeExecution = "EXECUTION"
	TypeRejection = "REJECTION"
)

// ParseEntries parses a beancount file into a list of entries.
// Each entry starts with a header line and continues with indented meta lines.
// A missing file has no entries.
func ParseEntries(path string) ([]model.Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return Parse(string(data)), nil
}

// Parse splits ledger text into entries.
func Parse(text string) []model.Entry {
	var entries []model.Entry
	var current *model.Entry

	for _, line := range strings.Split(text, "\n") {
		if m := HeaderRe.FindStringSubmatch(line); m != nil {
			if current != nil {
				entries = append(entries, *current)
			}
			current = &model.Entry{
				Date:     m[1],
				Type:     m[2],
				Title:    m[3],
				Meta:     make(map[string]string),
				RawLines: []string{line},
			}
		} else if current != nil {
			current.RawLines = append(current.RawLines, line)
			if strings.HasPrefix(strings.TrimSpace(line), ";") {
				k, v := ParseMeta(line)
				if k != "" {
					current.Meta[k] = v
				}
			}
		}
	}
	if current != nil {
		entries = append(entries, *current)
	}

	return entries
}

// ParseMeta extracts key-value from a beancount meta comment line like:
//
//	; key: value
func ParseMeta(line string) (string, string) {
	s := strings.TrimSpace(line)
	s = strings.TrimPrefix(s, ";")
	s = strings.TrimSpace(s)
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return "", ""
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
}

// OrderFromEntry extracts a ParsedOrder from an ORDER entry.
func OrderFromEntry(e model.Entry) model.ParsedOrder {
	o := model.ParsedOrder{
		IntentID:  e.Meta["intent_id"],
		Side:      strings.ToUpper(e.Meta["side"]),
		Symbol:    e.Meta["symbol"],
		Qty:       e.Meta["qty"],
		OrderType: strings.ToUpper(e.Meta["type"]),
		TIF:       strings.ToUpper(e.Meta["tif"]),
		Price:     e.Meta["price"],
		Market:    e.Meta["market"],
		Batch:     e.Meta["batch"],
	}
	if o.Market == "" {
		o.Market = MarketOf(o.Symbol)
	}
	if o.TIF == "" {
		o.TIF = "DAY"
	}
	if o.OrderType == "" {
		o.OrderType = "MARKET"
	}
	return o
}

// MarketOf returns the market suffix of a symbol, "US" when it has none.
func MarketOf(symbol string) string {
	if i := strings.LastIndex(symbol, "."); i >= 0 && i < len(symbol)-1 {
		return symbol[i+1:]
	}
	return "US"
}

// FullSymbol returns a symbol with market suffix, e.g. "NVDA" -> "NVDA.US"
func FullSymbol(symbol, market string) string {
	if strings.Contains(symbol, ".") {
		return symbol
	}
	return symbol + "." + market
}

// BuildLedgerState scans entries and returns a set of intent_ids that already
// have an EXECUTION or REJECTION, plus all ORDER entries.
func BuildLedgerState(entries []model.Entry) (processed map[string]bool, orders []model.Entry) {
	processed = make(map[string]bool)
	for _, e := range entries {
		switch e.Type {
		case TypeExecution, TypeRejection:
			if id := e.Meta["intent_id"]; id != "" {
				processed[id] = true
			}
		case TypeOrder:
			orders = append(orders, e)
		}
	}
	return
}

// PendingOrders returns the ORDER entries the controller has not executed or
// rejected yet, in ledger order.
func PendingOrders(entries []model.Entry) []model.ParsedOrder {
	processed, orders := BuildLedgerState(entries)
	var pending []model.ParsedOrder
	for _, e := range orders {
		o := OrderFromEntry(e)
		if o.IntentID != "" && !processed[o.IntentID] {
			pending = append(pending, o)
		}
	}
	return pending
}
