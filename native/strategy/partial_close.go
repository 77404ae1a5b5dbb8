package strategy

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"vaultstrat/native/amm"
)

// NamePartialCloseLiquidate identifies the partial-close liquidation strategy.
const NamePartialCloseLiquidate = "partial_close_liquidate"

// PartialCloseLiquidate converts part of a position's LP back into the base
// asset, repays up to the requested debt to the worker and pays the rest to
// the position owner.
type PartialCloseLiquidate struct {
	*Engine
}

// NewPartialCloseLiquidate builds the strategy administered by owner. tokens
// and journal must operate on the same state as the pools workers bring.
func NewPartialCloseLiquidate(owner common.Address, tokens Tokens, journal Journal) *PartialCloseLiquidate {
	return &PartialCloseLiquidate{Engine: newEngine(NamePartialCloseLiquidate, owner, tokens, journal)}
}

// Execute liquidates LP the worker transferred to the strategy beforehand.
// data is the ABI encoding of PartialCloseParams. Settlement.Received carries
// the base paid to positionOwner.
func (s *PartialCloseLiquidate) Execute(worker Worker, positionOwner common.Address, debt *uint256.Int, data []byte) (*Settlement, error) {
	return s.run(worker, func() (*Settlement, error) {
		params, err := DecodePartialCloseParams(data)
		if err != nil {
			return nil, err
		}
		return s.execute(worker, positionOwner, debt, params)
	})
}

// closePlan is the outcome of simulating a partial close against the current
// reserves. Nothing in it has been applied yet.
type closePlan struct {
	lpHeld         *uint256.Int
	lpToLiquidate  *uint256.Int
	withdrawnBase  *uint256.Int
	withdrawnQuote *uint256.Int
	swappedBase    *uint256.Int
	debtToRepay    *uint256.Int
	netToPosition  *uint256.Int
}

func (s *PartialCloseLiquidate) plan(worker Worker, debt *uint256.Int, params PartialCloseParams) (*closePlan, error) {
	pool := worker.Pool()
	base, quote := worker.BaseToken(), worker.QuoteToken()
	if debt == nil {
		debt = new(uint256.Int)
	}

	lpHeld, err := s.tokens.BalanceOf(pool.LPToken(), s.address)
	if err != nil {
		return nil, err
	}
	p := &closePlan{
		lpHeld:         lpHeld,
		lpToLiquidate:  minAmount(params.MaxLPToLiquidate, lpHeld),
		withdrawnBase:  new(uint256.Int),
		withdrawnQuote: new(uint256.Int),
		swappedBase:    new(uint256.Int),
		debtToRepay:    minAmount(params.MaxDebtRepayment, debt),
	}

	if !p.lpToLiquidate.IsZero() {
		reserveBase, reserveQuote, err := pool.Reserves(base, quote)
		if err != nil {
			return nil, err
		}
		totalShares, err := pool.TotalShares()
		if err != nil {
			return nil, err
		}
		p.withdrawnBase, p.withdrawnQuote, err = amm.ProportionalWithdraw(p.lpToLiquidate, reserveBase, reserveQuote, totalShares)
		if err != nil {
			return nil, err
		}
		if !p.withdrawnQuote.IsZero() {
			// Burned reserves leave the pool before the swap prices.
			postBase := new(uint256.Int).Sub(reserveBase, p.withdrawnBase)
			postQuote := new(uint256.Int).Sub(reserveQuote, p.withdrawnQuote)
			p.swappedBase, err = amm.SwapOutputAmount(p.withdrawnQuote, postQuote, postBase, pool.Fee())
			if err != nil {
				return nil, err
			}
		}
	}

	total, overflow := new(uint256.Int).AddOverflow(p.withdrawnBase, p.swappedBase)
	if overflow {
		return nil, amm.ErrArithmeticOverflow
	}
	if p.debtToRepay.Gt(total) {
		return nil, fmt.Errorf("%w: debt %s, proceeds %s", ErrDebtExceedsProceeds, p.debtToRepay.Dec(), total.Dec())
	}
	p.netToPosition = new(uint256.Int).Sub(total, p.debtToRepay)
	if p.netToPosition.Lt(params.MinBaseTokenReceived) {
		return nil, fmt.Errorf("%w: got %s, want at least %s", ErrInsufficientProceeds, p.netToPosition.Dec(), params.MinBaseTokenReceived.Dec())
	}
	return p, nil
}

func (s *PartialCloseLiquidate) execute(worker Worker, positionOwner common.Address, debt *uint256.Int, params PartialCloseParams) (*Settlement, error) {
	plan, err := s.plan(worker, debt, params)
	if err != nil {
		return nil, err
	}

	pool := worker.Pool()
	base, quote := worker.BaseToken(), worker.QuoteToken()
	settlement := newSettlement(s.name, worker, positionOwner)

	if !plan.lpToLiquidate.IsZero() {
		gotBase, gotQuote, err := pool.RemoveLiquidity(base, quote, plan.lpToLiquidate, s.address, s.address)
		if err != nil {
			return nil, err
		}
		if !gotBase.Eq(plan.withdrawnBase) || !gotQuote.Eq(plan.withdrawnQuote) {
			return nil, fmt.Errorf("%w: burn returned (%s, %s), expected (%s, %s)", ErrPoolStateMismatch,
				gotBase.Dec(), gotQuote.Dec(), plan.withdrawnBase.Dec(), plan.withdrawnQuote.Dec())
		}
		// Quote dust that prices to zero base is not sold; it goes back to
		// the worker with the leftover LP.
		if !plan.swappedBase.IsZero() {
			out, err := pool.SwapExactIn(quote, base, plan.withdrawnQuote, s.address, s.address)
			if err != nil {
				return nil, err
			}
			if !out.Eq(plan.swappedBase) {
				return nil, fmt.Errorf("%w: swap returned %s, expected %s", ErrPoolStateMismatch, out.Dec(), plan.swappedBase.Dec())
			}
		}
	}

	if err := s.tokens.Transfer(base, s.address, worker.Address(), plan.debtToRepay); err != nil {
		return nil, err
	}
	if err := s.tokens.Transfer(base, s.address, positionOwner, plan.netToPosition); err != nil {
		return nil, err
	}
	lpReturned, err := s.returnLeftover(pool.LPToken(), worker.Address())
	if err != nil {
		return nil, err
	}
	quoteReturned, err := s.returnLeftover(quote, worker.Address())
	if err != nil {
		return nil, err
	}

	settlement.LPLiquidated = plan.lpToLiquidate
	settlement.LPReturned = lpReturned
	settlement.WithdrawnBase = plan.withdrawnBase
	settlement.WithdrawnQuote = plan.withdrawnQuote
	if !plan.swappedBase.IsZero() {
		settlement.SwapIn = plan.withdrawnQuote
		settlement.SwapOut = plan.swappedBase
	}
	settlement.DebtRepaid = plan.debtToRepay
	settlement.BaseToWorker = plan.debtToRepay
	settlement.BaseToPosition = plan.netToPosition
	settlement.QuoteToWorker = quoteReturned
	settlement.Received = plan.netToPosition
	return settlement, nil
}
