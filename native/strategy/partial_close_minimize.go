package strategy

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"vaultstrat/native/amm"
)

const NamePartialCloseMinimizeTrading = "partial_close_minimize_trading"

// PartialCloseMinimizeTrading closes part of a position while selling only
// the quote needed to cover the debt. The worker receives all base and the
// position owner keeps the remaining quote.
type PartialCloseMinimizeTrading struct {
	*Engine
}

func NewPartialCloseMinimizeTrading(owner common.Address, tokens Tokens, journal Journal) *PartialCloseMinimizeTrading {
	return &PartialCloseMinimizeTrading{Engine: newEngine(NamePartialCloseMinimizeTrading, owner, tokens, journal)}
}

// Execute expects data to encode MinimizeTradingParams. Settlement.Received
// carries the quote paid to positionOwner.
func (s *PartialCloseMinimizeTrading) Execute(worker Worker, positionOwner common.Address, debt *uint256.Int, data []byte) (*Settlement, error) {
	return s.run(worker, func() (*Settlement, error) {
		params, err := DecodeMinimizeTradingParams(data)
		if err != nil {
			return nil, err
		}
		return s.execute(worker, positionOwner, debt, params)
	})
}

func (s *PartialCloseMinimizeTrading) execute(worker Worker, positionOwner common.Address, debt *uint256.Int, params MinimizeTradingParams) (*Settlement, error) {
	pool := worker.Pool()
	base, quote := worker.BaseToken(), worker.QuoteToken()
	settlement := newSettlement(s.name, worker, positionOwner)
	if debt == nil {
		debt = new(uint256.Int)
	}

	lpHeld, err := s.tokens.BalanceOf(pool.LPToken(), s.address)
	if err != nil {
		return nil, err
	}
	lpToLiquidate := minAmount(params.MaxLPToLiquidate, lpHeld)
	debtToRepay := minAmount(params.MaxDebtRepayment, debt)

	withdrawnBase, withdrawnQuote := new(uint256.Int), new(uint256.Int)
	quoteSold, shortfall := new(uint256.Int), new(uint256.Int)
	if !lpToLiquidate.IsZero() {
		reserveBase, reserveQuote, err := pool.Reserves(base, quote)
		if err != nil {
			return nil, err
		}
		totalShares, err := pool.TotalShares()
		if err != nil {
			return nil, err
		}
		withdrawnBase, withdrawnQuote, err = amm.ProportionalWithdraw(lpToLiquidate, reserveBase, reserveQuote, totalShares)
		if err != nil {
			return nil, err
		}
		if debtToRepay.Gt(withdrawnBase) {
			shortfall.Sub(debtToRepay, withdrawnBase)
			postBase := new(uint256.Int).Sub(reserveBase, withdrawnBase)
			postQuote := new(uint256.Int).Sub(reserveQuote, withdrawnQuote)
			quoteSold, err = amm.SwapInputAmount(shortfall, postQuote, postBase, pool.Fee())
			if errors.Is(err, amm.ErrInsufficientLiquidity) {
				return nil, fmt.Errorf("%w: pool cannot supply %s base", ErrDebtExceedsProceeds, shortfall.Dec())
			}
			if err != nil {
				return nil, err
			}
		}
	}
	if shortfall.IsZero() && debtToRepay.Gt(withdrawnBase) {
		// Only reachable without liquidity to draw on.
		return nil, fmt.Errorf("%w: debt %s, proceeds 0", ErrDebtExceedsProceeds, debtToRepay.Dec())
	}
	if quoteSold.Gt(withdrawnQuote) {
		return nil, fmt.Errorf("%w: covering debt needs %s quote, withdrew %s", ErrDebtExceedsProceeds, quoteSold.Dec(), withdrawnQuote.Dec())
	}
	quoteLeft := new(uint256.Int).Sub(withdrawnQuote, quoteSold)
	if quoteLeft.Lt(params.MinQuoteToken) {
		return nil, fmt.Errorf("%w: got %s, want at least %s", ErrInsufficientQuoteReceived, quoteLeft.Dec(), params.MinQuoteToken.Dec())
	}

	if !lpToLiquidate.IsZero() {
		gotBase, gotQuote, err := pool.RemoveLiquidity(base, quote, lpToLiquidate, s.address, s.address)
		if err != nil {
			return nil, err
		}
		if !gotBase.Eq(withdrawnBase) || !gotQuote.Eq(withdrawnQuote) {
			return nil, fmt.Errorf("%w: burn returned (%s, %s), expected (%s, %s)", ErrPoolStateMismatch,
				gotBase.Dec(), gotQuote.Dec(), withdrawnBase.Dec(), withdrawnQuote.Dec())
		}
	}
	if !shortfall.IsZero() {
		spent, err := pool.SwapExactOut(quote, base, shortfall, quoteSold, s.address, s.address)
		if err != nil {
			return nil, err
		}
		if !spent.Eq(quoteSold) {
			return nil, fmt.Errorf("%w: swap spent %s, expected %s", ErrPoolStateMismatch, spent.Dec(), quoteSold.Dec())
		}
		settlement.SwapIn = quoteSold
		settlement.SwapOut = shortfall
	}

	baseOut := new(uint256.Int).Add(withdrawnBase, shortfall)
	if err := s.tokens.Transfer(base, s.address, worker.Address(), baseOut); err != nil {
		return nil, err
	}
	if err := s.tokens.Transfer(quote, s.address, positionOwner, quoteLeft); err != nil {
		return nil, err
	}
	lpReturned, err := s.returnLeftover(pool.LPToken(), worker.Address())
	if err != nil {
		return nil, err
	}

	settlement.LPLiquidated = lpToLiquidate
	settlement.LPReturned = lpReturned
	settlement.WithdrawnBase = withdrawnBase
	settlement.WithdrawnQuote = withdrawnQuote
	settlement.DebtRepaid = debtToRepay
	settlement.BaseToWorker = baseOut
	settlement.QuoteToPosition = quoteLeft
	settlement.Received = quoteLeft
	return settlement, nil
}
