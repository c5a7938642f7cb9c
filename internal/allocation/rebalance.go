package allocation

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Domain errors returned by Validate and Rebalance.
var (
	ErrInvalidPrice        = errors.New("instrument price must be positive")
	ErrNegativeTotal       = errors.New("total value must not be negative")
	ErrNegativeTradeVolume = errors.New("minimum trade volume must not be negative")
	ErrInvalidWeight       = errors.New("expected weight must be within [0, 1]")
	ErrNegativeValue       = errors.New("current value must not be negative")
	ErrMissingHolding      = errors.New("asset has no holding")
)

// Result summarises a rebalance. The per-node outcome is written into the
// tree itself.
type Result struct {
	Status Status
	// Debt is the part of the requested reduction restrictions made
	// impossible. Zero unless Status is StatusDebt.
	Debt decimal.Decimal
	// Unallocated is money that could not be placed in whole lots.
	Unallocated decimal.Decimal
	// Residuals lists groups whose children do not add up to the group's
	// target value.
	Residuals []Residual
	// Resolved reports that the debt resolver replaced the allocator's
	// targets. Resolved targets are not rounded to lots.
	Resolved bool
}

// Balanced reports whether every group's children add up exactly to its
// target.
func (r Result) Balanced() bool {
	return r.Status == StatusOK && len(r.Residuals) == 0
}

// Rebalancer runs the allocation engine. It keeps no state between calls and
// is safe for concurrent use on independent trees.
type Rebalancer struct {
	log   zerolog.Logger
	trace TraceFunc
}

// Option configures a Rebalancer.
type Option func(*Rebalancer)

// WithTrace installs a hook receiving every target value change.
func WithTrace(fn TraceFunc) Option {
	return func(r *Rebalancer) {
		r.trace = fn
	}
}

// NewRebalancer creates a rebalancer logging through log.
func NewRebalancer(log zerolog.Logger, opts ...Option) *Rebalancer {
	r := &Rebalancer{
		log: log.With().Str("component", "rebalancer").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rebalance computes target values for the whole portfolio in place.
//
// Bounds are propagated first, then the portfolio total is distributed
// top-down. If any group ends up overdrawn, typically because sell
// restrictions pin more value than the total allows, the debt resolver takes
// over and its outcome is reported.
func (r *Rebalancer) Rebalance(p *Portfolio) (Result, error) {
	if err := Validate(p); err != nil {
		return Result{}, err
	}

	link(nil, p.Assets)
	reset(p.Assets)
	minValue, maxValue := Propagate(p.Assets)

	ev := r.log.Debug().
		Str("portfolio", p.Name).
		Str("total_value", p.TotalValue.String()).
		Str("min_value", minValue.String())
	if maxValue != nil {
		ev = ev.Str("max_value", maxValue.String())
	}
	ev.Msg("Restrictions calculated")

	alloc := r.Allocate(p.Name, p.Assets, p.TotalValue, p.MinTradeVolume)

	result := Result{Status: StatusOK, Residuals: alloc.Residuals}
	for _, res := range alloc.Residuals {
		if res.Amount.IsPositive() {
			result.Unallocated = result.Unallocated.Add(res.Amount)
		}
	}

	if alloc.Overdrawn() {
		r.log.Warn().
			Str("portfolio", p.Name).
			Str("balance", alloc.Balance.String()).
			Msg("Allocation overdrawn, resolving debt")

		outcome := r.Resolve(p.Assets, p.TotalValue, p.MinTradeVolume)
		result.Status = outcome.Status
		result.Debt = outcome.Debt
		result.Resolved = true
		result.Residuals = nil
		result.Unallocated = decimal.Zero
		if left := p.TotalValue.Sub(SumTargets(p.Assets)); left.IsPositive() {
			result.Unallocated = left
		}
	}

	r.log.Info().
		Str("portfolio", p.Name).
		Str("status", result.Status.String()).
		Str("debt", result.Debt.String()).
		Str("unallocated", result.Unallocated.String()).
		Int("residuals", len(result.Residuals)).
		Msg("Portfolio rebalanced")

	return result, nil
}

// Allocate distributes total among assets top-down. Bounds must already be
// set by Propagate. The returned balance is what the tree could not place; an
// overdrawn allocation is the trigger for Resolve.
func (r *Rebalancer) Allocate(name string, assets []*Asset, total, minTradeVolume decimal.Decimal) Allocation {
	al := &allocator{tracer: tracer{fn: r.trace}, minTradeVolume: minTradeVolume}
	balance := al.allocate(name, assets, total)
	return Allocation{Balance: balance, Residuals: al.residuals}
}

// Resolve reassigns targets so that assets add up to total as closely as
// restrictions allow, and reports the remaining shortfall as debt.
func (r *Rebalancer) Resolve(assets []*Asset, total, minTradeVolume decimal.Decimal) Outcome {
	res := &resolver{tracer: tracer{fn: r.trace}, minTradeVolume: minTradeVolume}
	debt := res.resolve(assets, total)
	if debt.IsPositive() {
		r.log.Warn().Str("debt", debt.String()).Msg("Restrictions leave unresolved debt")
		return Outcome{Status: StatusDebt, Debt: debt}
	}
	return Outcome{Status: StatusOK, Debt: decimal.Zero}
}

// Validate rejects trees the engine cannot compute on. Weights that do not
// sum to one are accepted.
func Validate(p *Portfolio) error {
	if p.TotalValue.IsNegative() {
		return fmt.Errorf("portfolio %q: %w", p.Name, ErrNegativeTotal)
	}
	if p.MinTradeVolume.IsNegative() {
		return fmt.Errorf("portfolio %q: %w", p.Name, ErrNegativeTradeVolume)
	}
	link(nil, p.Assets)
	return validateAssets(p.Assets)
}

func validateAssets(assets []*Asset) error {
	for _, a := range assets {
		if a.ExpectedWeight.IsNegative() || a.ExpectedWeight.GreaterThan(one) {
			return fmt.Errorf("%s: weight %s: %w", a.FullName(), a.ExpectedWeight, ErrInvalidWeight)
		}
		if a.CurrentValue.IsNegative() {
			return fmt.Errorf("%s: %w", a.FullName(), ErrNegativeValue)
		}

		switch h := a.Holding.(type) {
		case Group:
			if err := validateAssets(h.Assets); err != nil {
				return err
			}
		case Instrument:
			if !h.Price.IsPositive() {
				return fmt.Errorf("%s: price %s: %w", a.FullName(), h.Price, ErrInvalidPrice)
			}
		default:
			return fmt.Errorf("%s: %w", a.FullName(), ErrMissingHolding)
		}
	}
	return nil
}
