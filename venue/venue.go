// Package venue holds the wire types shared between the execution
// dispatcher, the position tracker and the venue adapters: instructions,
// results and the adapter contract itself.
package venue

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Kind classifies how a balance is held at a venue.
type Kind int8

const (
	Spot Kind = iota
	Margin
	Collateral
	Debt
)

func (k Kind) String() string {
	switch k {
	case Spot:
		return "spot"
	case Margin:
		return "margin"
	case Collateral:
		return "collateral"
	case Debt:
		return "debt"
	default:
		return "unknown"
	}
}

// ParseKind maps the serialized form back to a Kind.
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "spot":
		return Spot, true
	case "margin":
		return Margin, true
	case "collateral":
		return Collateral, true
	case "debt":
		return Debt, true
	default:
		return Spot, false
	}
}

// Family groups venues by the adapter that executes against them.
type Family int8

const (
	CEX Family = iota // centralized exchange
	OnChain
	Transfer
)

func (f Family) String() string {
	switch f {
	case CEX:
		return "cex"
	case OnChain:
		return "onchain"
	case Transfer:
		return "transfer"
	default:
		return "unknown"
	}
}

func ParseFamily(s string) (Family, bool) {
	switch s {
	case "cex":
		return CEX, true
	case "onchain":
		return OnChain, true
	case "transfer":
		return Transfer, true
	default:
		return CEX, false
	}
}

// Instruction is one venue-specific order derived from a strategy action.
type Instruction struct {
	ID         string
	Venue      string
	Family     Family
	Asset      string
	Kind       Kind
	Delta      decimal.Decimal // signed quantity change requested
	Price      decimal.Decimal // reference price at dispatch time
	Timeout    time.Duration
	MaxRetries int
}

// Status is the terminal outcome of one instruction.
type Status int8

const (
	Filled Status = iota
	Partial
	Failed
)

func (s Status) String() string {
	switch s {
	case Filled:
		return "filled"
	case Partial:
		return "partial"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result reports what actually happened to an instruction. Results are the
// only input that mutates the next position snapshot.
type Result struct {
	InstructionID string
	Venue         string
	Asset         string
	Kind          Kind
	Status        Status
	Requested     decimal.Decimal
	Filled        decimal.Decimal
	Price         decimal.Decimal
	Fee           decimal.Decimal
	Reason        string // required for failed/partial results
}

// Adapter executes instructions against one venue family. Implementations
// own the venue connection; timeout and retry policy are injected through
// the instruction, not owned by the adapter.
type Adapter interface {
	Family() Family
	Submit(ctx context.Context, ins Instruction) (Result, error)
}
