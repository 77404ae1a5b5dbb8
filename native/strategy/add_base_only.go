package strategy

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"vaultstrat/native/amm"
)

const NameAddBaseTokenOnly = "add_base_token_only"

// AddBaseTokenOnly turns base the worker transferred to the strategy into LP:
// it sells the share of base that balances the deposit, adds liquidity and
// returns the shares plus any dust to the worker.
type AddBaseTokenOnly struct {
	*Engine
}

func NewAddBaseTokenOnly(owner common.Address, tokens Tokens, journal Journal) *AddBaseTokenOnly {
	return &AddBaseTokenOnly{Engine: newEngine(NameAddBaseTokenOnly, owner, tokens, journal)}
}

// Execute expects data to encode a single uint256, the minimum LP to mint.
// Settlement.Received carries the LP minted for the worker.
func (s *AddBaseTokenOnly) Execute(worker Worker, positionOwner common.Address, debt *uint256.Int, data []byte) (*Settlement, error) {
	return s.run(worker, func() (*Settlement, error) {
		minLP, err := DecodeAmount(data)
		if err != nil {
			return nil, err
		}
		return s.execute(worker, positionOwner, minLP)
	})
}

func (s *AddBaseTokenOnly) execute(worker Worker, positionOwner common.Address, minLP *uint256.Int) (*Settlement, error) {
	pool := worker.Pool()
	base, quote := worker.BaseToken(), worker.QuoteToken()
	settlement := newSettlement(s.name, worker, positionOwner)

	deposit, err := s.tokens.BalanceOf(base, s.address)
	if err != nil {
		return nil, err
	}
	minted := new(uint256.Int)
	if !deposit.IsZero() {
		reserveBase, reserveQuote, err := pool.Reserves(base, quote)
		if err != nil {
			return nil, err
		}
		sell, err := amm.OptimalDeposit(deposit, reserveBase, pool.Fee())
		if err != nil {
			return nil, err
		}
		bought := new(uint256.Int)
		if !sell.IsZero() {
			expected, err := amm.SwapOutputAmount(sell, reserveBase, reserveQuote, pool.Fee())
			if err != nil {
				return nil, err
			}
			if bought, err = pool.SwapExactIn(base, quote, sell, s.address, s.address); err != nil {
				return nil, err
			}
			if !bought.Eq(expected) {
				return nil, fmt.Errorf("%w: swap returned %s, expected %s", ErrPoolStateMismatch, bought.Dec(), expected.Dec())
			}
			settlement.SwapIn = sell
			settlement.SwapOut = bought
		}
		baseBalance, err := s.tokens.BalanceOf(base, s.address)
		if err != nil {
			return nil, err
		}
		quoteBalance, err := s.tokens.BalanceOf(quote, s.address)
		if err != nil {
			return nil, err
		}
		if _, _, minted, err = pool.AddLiquidity(base, quote, baseBalance, quoteBalance, s.address, s.address); err != nil {
			return nil, err
		}
	}
	if minted.Lt(minLP) {
		return nil, fmt.Errorf("%w: minted %s, want at least %s", ErrInsufficientLPReceived, minted.Dec(), minLP.Dec())
	}

	lpReturned, err := s.returnLeftover(pool.LPToken(), worker.Address())
	if err != nil {
		return nil, err
	}
	baseDust, err := s.returnLeftover(base, worker.Address())
	if err != nil {
		return nil, err
	}
	quoteDust, err := s.returnLeftover(quote, worker.Address())
	if err != nil {
		return nil, err
	}

	settlement.LPMinted = minted
	settlement.LPReturned = lpReturned
	settlement.BaseToWorker = baseDust
	settlement.QuoteToWorker = quoteDust
	settlement.Received = minted
	return settlement, nil
}
