package strategy

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"vaultstrat/native/amm"
)

const NameLiquidate = "liquidate"

// Liquidate burns every LP share the strategy holds, sells the quote side and
// hands all base back to the worker, which settles the debt itself.
type Liquidate struct {
	*Engine
}

func NewLiquidate(owner common.Address, tokens Tokens, journal Journal) *Liquidate {
	return &Liquidate{Engine: newEngine(NameLiquidate, owner, tokens, journal)}
}

// Execute expects data to encode a single uint256, the minimum base the worker
// must receive. debt is not consulted. Settlement.Received carries the base
// paid to the worker.
func (s *Liquidate) Execute(worker Worker, positionOwner common.Address, debt *uint256.Int, data []byte) (*Settlement, error) {
	return s.run(worker, func() (*Settlement, error) {
		minBase, err := DecodeAmount(data)
		if err != nil {
			return nil, err
		}
		return s.execute(worker, positionOwner, minBase)
	})
}

func (s *Liquidate) execute(worker Worker, positionOwner common.Address, minBase *uint256.Int) (*Settlement, error) {
	pool := worker.Pool()
	base, quote := worker.BaseToken(), worker.QuoteToken()
	settlement := newSettlement(s.name, worker, positionOwner)

	lp, err := s.tokens.BalanceOf(pool.LPToken(), s.address)
	if err != nil {
		return nil, err
	}
	withdrawnBase, withdrawnQuote := new(uint256.Int), new(uint256.Int)
	swapped := new(uint256.Int)
	if !lp.IsZero() {
		reserveBase, reserveQuote, err := pool.Reserves(base, quote)
		if err != nil {
			return nil, err
		}
		totalShares, err := pool.TotalShares()
		if err != nil {
			return nil, err
		}
		withdrawnBase, withdrawnQuote, err = amm.ProportionalWithdraw(lp, reserveBase, reserveQuote, totalShares)
		if err != nil {
			return nil, err
		}
		if !withdrawnQuote.IsZero() {
			postBase := new(uint256.Int).Sub(reserveBase, withdrawnBase)
			postQuote := new(uint256.Int).Sub(reserveQuote, withdrawnQuote)
			if swapped, err = amm.SwapOutputAmount(withdrawnQuote, postQuote, postBase, pool.Fee()); err != nil {
				return nil, err
			}
		}
	}
	total, overflow := new(uint256.Int).AddOverflow(withdrawnBase, swapped)
	if overflow {
		return nil, amm.ErrArithmeticOverflow
	}
	if total.Lt(minBase) {
		return nil, fmt.Errorf("%w: got %s, want at least %s", ErrInsufficientProceeds, total.Dec(), minBase.Dec())
	}

	if !lp.IsZero() {
		gotBase, gotQuote, err := pool.RemoveLiquidity(base, quote, lp, s.address, s.address)
		if err != nil {
			return nil, err
		}
		if !gotBase.Eq(withdrawnBase) || !gotQuote.Eq(withdrawnQuote) {
			return nil, fmt.Errorf("%w: burn returned (%s, %s), expected (%s, %s)", ErrPoolStateMismatch,
				gotBase.Dec(), gotQuote.Dec(), withdrawnBase.Dec(), withdrawnQuote.Dec())
		}
		if !swapped.IsZero() {
			out, err := pool.SwapExactIn(quote, base, withdrawnQuote, s.address, s.address)
			if err != nil {
				return nil, err
			}
			if !out.Eq(swapped) {
				return nil, fmt.Errorf("%w: swap returned %s, expected %s", ErrPoolStateMismatch, out.Dec(), swapped.Dec())
			}
			settlement.SwapIn = withdrawnQuote
			settlement.SwapOut = swapped
		}
	}
	if err := s.tokens.Transfer(base, s.address, worker.Address(), total); err != nil {
		return nil, err
	}
	quoteReturned, err := s.returnLeftover(quote, worker.Address())
	if err != nil {
		return nil, err
	}

	settlement.LPLiquidated = lp
	settlement.WithdrawnBase = withdrawnBase
	settlement.WithdrawnQuote = withdrawnQuote
	settlement.BaseToWorker = total
	settlement.QuoteToWorker = quoteReturned
	settlement.Received = total
	return settlement, nil
}
