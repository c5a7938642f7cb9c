package allocation

import (
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Reason tells why the engine changed a node's target value.
type Reason string

const (
	ReasonInitial        Reason = "initial"
	ReasonRounding       Reason = "rounding"
	ReasonBuyBlocked     Reason = "buy_blocked"
	ReasonSellBlocked    Reason = "sell_blocked"
	ReasonRedistribution Reason = "redistribution"
	ReasonResidual       Reason = "residual"
	ReasonReweight       Reason = "reweight"
	ReasonDebt           Reason = "debt"
	ReasonForceSell      Reason = "force_sell"
)

// Record describes a single change made by the engine. For ReasonResidual the
// node is a group and Value is the balance it could not place.
type Record struct {
	Node     string
	Previous decimal.Decimal
	Value    decimal.Decimal
	Reason   Reason
}

// TraceFunc receives every Record emitted during a rebalance. It is called
// synchronously from the rebalancing goroutine.
type TraceFunc func(Record)

// LogTrace returns a TraceFunc writing records to log at debug level.
func LogTrace(log zerolog.Logger) TraceFunc {
	return func(r Record) {
		log.Debug().
			Str("node", r.Node).
			Str("previous", r.Previous.String()).
			Str("value", r.Value.String()).
			Str("reason", string(r.Reason)).
			Msg("Target value changed")
	}
}

// Collect returns a TraceFunc appending records to dst.
func Collect(dst *[]Record) TraceFunc {
	return func(r Record) {
		*dst = append(*dst, r)
	}
}

// Chain calls every non-nil fn in order.
func Chain(fns ...TraceFunc) TraceFunc {
	return func(r Record) {
		for _, fn := range fns {
			if fn != nil {
				fn(r)
			}
		}
	}
}

type tracer struct {
	fn TraceFunc
}

func (t tracer) emit(a *Asset, previous decimal.Decimal, reason Reason) {
	if t.fn == nil {
		return
	}
	t.fn(Record{Node: a.FullName(), Previous: previous, Value: a.TargetValue, Reason: reason})
}

// set assigns a new target and reports the change.
func (t tracer) set(a *Asset, value decimal.Decimal, reason Reason) {
	previous := a.TargetValue
	a.TargetValue = value
	t.emit(a, previous, reason)
}
