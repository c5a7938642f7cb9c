package model

import "github.com/shopspring/decimal"

// AccountState is the JSON structure of /account/state.json
type AccountState struct {
	UpdatedAt string       `json:"updated_at"`
	Cash      []CashEntry  `json:"cash"`
	Positions []PositionEx `json:"positions"`
	Orders    []OrderRef   `json:"orders"`
}

// CashEntry is the cash balance held in one currency
type CashEntry struct {
	Currency  string          `json:"currency"`
	Available decimal.Decimal `json:"available"`
	Frozen    decimal.Decimal `json:"frozen"`
	Settling  decimal.Decimal `json:"settling"`
	Withdraw  decimal.Decimal `json:"withdraw"`
}

// PositionEx is a stock position as reported by the broker
type PositionEx struct {
	Symbol    string          `json:"symbol"`
	Quantity  decimal.Decimal `json:"quantity"`
	Available decimal.Decimal `json:"available"`
	CostPrice decimal.Decimal `json:"cost_price"`
	Currency  string          `json:"currency"`
	Market    string          `json:"market"`
}

// OrderRef maps a ledger intent_id to a broker order_id
type OrderRef struct {
	IntentID string `json:"intent_id"`
	OrderID  string `json:"order_id"`
	Status   string `json:"status"`
}

// QuoteOverview is the JSON structure of /quote/hold/{SYMBOL}/overview.json
type QuoteOverview struct {
	Symbol    string          `json:"symbol"`
	Last      decimal.Decimal `json:"last"`
	PrevClose decimal.Decimal `json:"prev_close"`
	Currency  string          `json:"currency,omitempty"`
	UpdatedAt string          `json:"updated_at"`
}

// Entry is a parsed beancount entry (ORDER, EXECUTION, REJECTION)
type Entry struct {
	Date     string
	Type     string
	Title    string
	Meta     map[string]string
	RawLines []string // original text lines
}

// ParsedOrder is a trade order extracted from an ORDER entry
type ParsedOrder struct {
	IntentID  string
	Side      string
	Symbol    string
	Qty       string
	OrderType string
	TIF       string
	Price     string // for LIMIT orders
	Market    string // default: US
	Batch     string // rebalance run that produced the order
}

// Side of a planned trade
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Trade is a whole-lot order planned from a rebalanced tree
type Trade struct {
	Symbol   string          `json:"symbol"`
	Asset    string          `json:"asset"`
	Side     Side            `json:"side"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Value    decimal.Decimal `json:"value"`
}

// NodeReport is one row of a rebalance report
type NodeReport struct {
	Name          string           `json:"name"`
	Depth         int              `json:"depth"`
	Symbol        string           `json:"symbol,omitempty"`
	Weight        decimal.Decimal  `json:"weight"`
	CurrentValue  decimal.Decimal  `json:"current_value"`
	TargetValue   decimal.Decimal  `json:"target_value"`
	Change        decimal.Decimal  `json:"change"`
	CurrentWeight decimal.Decimal  `json:"current_weight"`
	TargetWeight  decimal.Decimal  `json:"target_weight"`
	MinValue      decimal.Decimal  `json:"min_value"`
	MaxValue      *decimal.Decimal `json:"max_value,omitempty"`
	BuyBlocked    bool             `json:"buy_blocked,omitempty"`
	SellBlocked   bool             `json:"sell_blocked,omitempty"`
}

// ResidualReport is the balance a group could not place
type ResidualReport struct {
	Group  string          `json:"group"`
	Amount decimal.Decimal `json:"amount"`
}

// RebalanceReport is the JSON structure of /trade/rebalance.json
type RebalanceReport struct {
	UpdatedAt      string           `json:"updated_at"`
	Portfolio      string           `json:"portfolio"`
	Currency       string           `json:"currency,omitempty"`
	TotalValue     decimal.Decimal  `json:"total_value"`
	MinTradeVolume decimal.Decimal  `json:"min_trade_volume"`
	Status         string           `json:"status"`
	Debt           decimal.Decimal  `json:"debt"`
	Unallocated    decimal.Decimal  `json:"unallocated"`
	Resolved       bool             `json:"resolved,omitempty"`
	Residuals      []ResidualReport `json:"residuals,omitempty"`
	Unmanaged      []string         `json:"unmanaged,omitempty"`
	Nodes          []NodeReport     `json:"nodes"`
	Trades         []Trade          `json:"trades"`
}
