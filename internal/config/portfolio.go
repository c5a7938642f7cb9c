package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// ErrInvalidPortfolio is wrapped by every portfolio file validation error.
var ErrInvalidPortfolio = errors.New("invalid portfolio")

var hundred = decimal.NewFromInt(100)

// Weight is a fraction of the parent's value. In YAML it is written either as
// a number (0.25) or as a percentage string ("25%").
type Weight struct {
	decimal.Decimal
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (w *Weight) UnmarshalYAML(value *yaml.Node) error {
	s := strings.TrimSpace(value.Value)
	percent := strings.HasSuffix(s, "%")
	s = strings.TrimSpace(strings.TrimSuffix(s, "%"))

	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("line %d: weight %q: %w", value.Line, value.Value, err)
	}
	if percent {
		d = d.Div(hundred)
	}
	w.Decimal = d
	return nil
}

// Amount is a money value in the portfolio currency.
type Amount struct {
	decimal.Decimal
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (a *Amount) UnmarshalYAML(value *yaml.Node) error {
	d, err := decimal.NewFromString(strings.TrimSpace(value.Value))
	if err != nil {
		return fmt.Errorf("line %d: amount %q: %w", value.Line, value.Value, err)
	}
	a.Decimal = d
	return nil
}

// Portfolio is the parsed portfolio file.
type Portfolio struct {
	Name           string        `yaml:"name"`
	Currency       string        `yaml:"currency"`
	MinTradeVolume Amount        `yaml:"min_trade_volume"`
	CashSymbol     string        `yaml:"cash_symbol"`
	Assets         []AssetConfig `yaml:"assets"`
}

// AssetConfig is one node of the weight tree. A node either names a symbol
// or holds nested assets.
type AssetConfig struct {
	Name            string        `yaml:"name"`
	Weight          Weight        `yaml:"weight"`
	Symbol          string        `yaml:"symbol,omitempty"`
	RestrictBuying  *bool         `yaml:"restrict_buying,omitempty"`
	RestrictSelling *bool         `yaml:"restrict_selling,omitempty"`
	Assets          []AssetConfig `yaml:"assets,omitempty"`
}

// LoadPortfolio reads and validates a portfolio file.
func LoadPortfolio(path string) (*Portfolio, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read portfolio: %w", err)
	}
	return ParsePortfolio(data)
}

// ParsePortfolio decodes and validates portfolio YAML.
func ParsePortfolio(data []byte) (*Portfolio, error) {
	var p Portfolio
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPortfolio, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Symbols returns every instrument symbol in tree order.
func (p *Portfolio) Symbols() []string {
	var out []string
	walkConfig(p.Assets, func(a AssetConfig) {
		if a.Symbol != "" {
			out = append(out, a.Symbol)
		}
	})
	return out
}

// Validate checks names, weights and the leaf/group shape of every node.
func (p *Portfolio) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidPortfolio)
	}
	if p.MinTradeVolume.IsNegative() {
		return fmt.Errorf("%w: min_trade_volume must not be negative", ErrInvalidPortfolio)
	}
	if len(p.Assets) == 0 {
		return fmt.Errorf("%w: no assets", ErrInvalidPortfolio)
	}

	seen := map[string]string{}
	if err := validateNodes(p.Name, p.Assets, seen); err != nil {
		return err
	}
	if p.CashSymbol != "" {
		if p.Currency == "" {
			return fmt.Errorf("%w: cash_symbol %s needs a currency", ErrInvalidPortfolio, p.CashSymbol)
		}
		if _, ok := seen[p.CashSymbol]; !ok {
			return fmt.Errorf("%w: cash_symbol %s is not in the tree", ErrInvalidPortfolio, p.CashSymbol)
		}
	}
	return nil
}

func validateNodes(path string, assets []AssetConfig, seen map[string]string) error {
	names := map[string]bool{}
	for _, a := range assets {
		if a.Name == "" {
			return fmt.Errorf("%w: %s: asset without a name", ErrInvalidPortfolio, path)
		}
		full := path + " / " + a.Name
		if names[a.Name] {
			return fmt.Errorf("%w: %s: duplicate name", ErrInvalidPortfolio, full)
		}
		names[a.Name] = true

		if a.Weight.IsNegative() || a.Weight.GreaterThan(decimal.NewFromInt(1)) {
			return fmt.Errorf("%w: %s: weight %s outside [0, 1]", ErrInvalidPortfolio, full, a.Weight)
		}

		switch {
		case a.Symbol != "" && len(a.Assets) > 0:
			return fmt.Errorf("%w: %s: has both symbol and assets", ErrInvalidPortfolio, full)
		case a.Symbol == "" && len(a.Assets) == 0:
			return fmt.Errorf("%w: %s: needs a symbol or assets", ErrInvalidPortfolio, full)
		case a.Symbol != "":
			if other, ok := seen[a.Symbol]; ok {
				return fmt.Errorf("%w: %s: symbol %s already used by %s", ErrInvalidPortfolio, full, a.Symbol, other)
			}
			seen[a.Symbol] = full
		default:
			if err := validateNodes(full, a.Assets, seen); err != nil {
				return err
			}
		}
	}
	return nil
}

func walkConfig(assets []AssetConfig, fn func(AssetConfig)) {
	for _, a := range assets {
		fn(a)
		walkConfig(a.Assets, fn)
	}
}
