package events

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"vaultstrat/core/types"
)

const (
	// TypeStrategySettled is emitted once per successful strategy execution.
	TypeStrategySettled = "strategy.settled"
)

// StrategySettled records the outcome of a strategy execution: which pool
// assets were involved, how much LP the strategy consumed and how much of the
// position's debt was repaid to the worker.
type StrategySettled struct {
	Strategy     string
	Address      common.Address
	Worker       common.Address
	Position     common.Address
	BaseAsset    common.Address
	QuoteAsset   common.Address
	LPLiquidated *uint256.Int
	DebtRepaid   *uint256.Int
	Received     *uint256.Int
}

func (StrategySettled) EventType() string { return TypeStrategySettled }

func amountString(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func (e StrategySettled) Event() *types.Event {
	return &types.Event{
		Type: TypeStrategySettled,
		Attributes: map[string]string{
			"strategy":     strings.TrimSpace(e.Strategy),
			"address":      e.Address.Hex(),
			"worker":       e.Worker.Hex(),
			"position":     e.Position.Hex(),
			"baseAsset":    e.BaseAsset.Hex(),
			"quoteAsset":   e.QuoteAsset.Hex(),
			"lpLiquidated": amountString(e.LPLiquidated),
			"debtRepaid":   amountString(e.DebtRepaid),
			"received":     amountString(e.Received),
		},
	}
}
