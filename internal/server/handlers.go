package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"longbridge-rebalance/internal/allocation"
	"longbridge-rebalance/internal/orders"
	"longbridge-rebalance/internal/report"

	"github.com/shopspring/decimal"
)

// AssetRequest is one node of a posted tree. A node with assets is a group;
// otherwise symbol and price describe an instrument.
type AssetRequest struct {
	Name            string          `json:"name"`
	Weight          decimal.Decimal `json:"weight"`
	CurrentValue    decimal.Decimal `json:"current_value"`
	Symbol          string          `json:"symbol,omitempty"`
	Price           decimal.Decimal `json:"price"`
	RestrictBuying  *bool           `json:"restrict_buying,omitempty"`
	RestrictSelling *bool           `json:"restrict_selling,omitempty"`
	Assets          []AssetRequest  `json:"assets,omitempty"`
}

// RebalanceRequest is the body of POST /api/rebalance.
type RebalanceRequest struct {
	Name     string `json:"name"`
	Currency string `json:"currency,omitempty"`
	// TotalValue defaults to the sum of current values.
	TotalValue     *decimal.Decimal `json:"total_value,omitempty"`
	MinTradeVolume decimal.Decimal  `json:"min_trade_volume"`
	Skip           []string         `json:"skip,omitempty"`
	Assets         []AssetRequest   `json:"assets"`
}

// Portfolio converts the request into an allocation tree.
func (req RebalanceRequest) Portfolio() *allocation.Portfolio {
	assets := buildAssets(req.Assets)
	total := allocation.SumCurrent(assets)
	if req.TotalValue != nil {
		total = *req.TotalValue
	}
	return &allocation.Portfolio{
		Name:           req.Name,
		Assets:         assets,
		TotalValue:     total,
		MinTradeVolume: req.MinTradeVolume,
	}
}

func buildAssets(nodes []AssetRequest) []*allocation.Asset {
	assets := make([]*allocation.Asset, 0, len(nodes))
	for _, n := range nodes {
		var a *allocation.Asset
		if len(n.Assets) > 0 {
			a = allocation.NewGroup(n.Name, n.Weight, buildAssets(n.Assets)...)
		} else {
			a = allocation.NewInstrument(n.Name, n.Symbol, n.Weight, n.CurrentValue, n.Price)
		}
		a.RestrictBuying = n.RestrictBuying
		a.RestrictSelling = n.RestrictSelling
		assets = append(assets, a)
	}
	return assets
}

type errorResponse struct {
	Error string `json:"error"`
}

var domainErrors = []error{
	allocation.ErrInvalidPrice,
	allocation.ErrNegativeTotal,
	allocation.ErrNegativeTradeVolume,
	allocation.ErrInvalidWeight,
	allocation.ErrNegativeValue,
	allocation.ErrMissingHolding,
}

func isDomainError(err error) bool {
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRebalance(w http.ResponseWriter, r *http.Request) {
	var req RebalanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.metrics.runs.WithLabelValues("invalid").Inc()
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request: " + err.Error()})
		return
	}
	if req.Name == "" || len(req.Assets) == 0 {
		s.metrics.runs.WithLabelValues("invalid").Inc()
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "name and assets are required"})
		return
	}

	p := req.Portfolio()

	start := time.Now()
	result, err := s.rebalancer.Rebalance(p)
	s.metrics.duration.Observe(time.Since(start).Seconds())

	if err != nil {
		if isDomainError(err) {
			s.metrics.runs.WithLabelValues("rejected").Inc()
			s.writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
			return
		}
		s.metrics.runs.WithLabelValues("error").Inc()
		s.log.Error().Err(err).Str("portfolio", p.Name).Msg("Rebalance failed")
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "rebalance failed"})
		return
	}

	s.metrics.runs.WithLabelValues(result.Status.String()).Inc()
	debt, _ := result.Debt.Float64()
	s.metrics.debt.Set(debt)

	rep := report.Build(p, result, orders.Plan(p, req.Skip...), report.Options{Currency: req.Currency})
	s.writeJSON(w, http.StatusOK, rep)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode response")
	}
}
