package config

import (
	"fmt"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Decimal wraps decimal.Decimal so amounts in config files parse without a
// float detour. YAML scalars arrive as their literal text, which is exactly
// what the decimal parser wants; JSON support comes from the embedded type.
type Decimal struct {
	decimal.Decimal
}

func (d *Decimal) UnmarshalYAML(n *yaml.Node) error {
	if n.Value == "" {
		d.Decimal = decimal.Zero
		return nil
	}
	v, err := decimal.NewFromString(n.Value)
	if err != nil {
		return fmt.Errorf("bad decimal %q: %w", n.Value, err)
	}
	d.Decimal = v
	return nil
}

func (d Decimal) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// Dec builds a config decimal from its string form. Panics on bad input;
// meant for defaults and tests, not file data.
func Dec(s string) Decimal {
	return Decimal{decimal.RequireFromString(s)}
}
