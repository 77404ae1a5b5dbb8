package amm

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

var (
	ErrIdenticalTokens = errors.New("amm: identical tokens")
	ErrZeroToken       = errors.New("amm: zero token address")
	ErrUnknownToken    = errors.New("amm: token not in pair")
	ErrInvariant       = errors.New("amm: constant product decreased")
	ErrExcessiveInput  = errors.New("amm: excessive input amount")
	errNilPairState    = errors.New("amm: pair state not configured")
)

type pairState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

type tokenLedger interface {
	TotalSupply(token common.Address) (*uint256.Int, error)
	Transfer(token, from, to common.Address, amount *uint256.Int) error
	Mint(token, to common.Address, amount *uint256.Int) error
	Burn(token, from common.Address, amount *uint256.Int) error
}

var pairRecordPrefix = []byte("amm/pair/")

type storedPair struct {
	Token0   common.Address
	Token1   common.Address
	Reserve0 *big.Int
	Reserve1 *big.Int
}

// Pair is a two-token constant-product pool whose reserves and shares live in
// host state. The pair address doubles as the share (LP) token address.
type Pair struct {
	address common.Address
	token0  common.Address
	token1  common.Address
	fee     Fee
	state   pairState
	ledger  tokenLedger
}

// SortTokens orders two token addresses the way pairs store them.
func SortTokens(tokenA, tokenB common.Address) (common.Address, common.Address, error) {
	if tokenA == tokenB {
		return common.Address{}, common.Address{}, ErrIdenticalTokens
	}
	if tokenA == (common.Address{}) || tokenB == (common.Address{}) {
		return common.Address{}, common.Address{}, ErrZeroToken
	}
	if bytes.Compare(tokenA.Bytes(), tokenB.Bytes()) < 0 {
		return tokenA, tokenB, nil
	}
	return tokenB, tokenA, nil
}

// PairAddress derives the deterministic address of the pair for two tokens.
func PairAddress(tokenA, tokenB common.Address) (common.Address, error) {
	token0, token1, err := SortTokens(tokenA, tokenB)
	if err != nil {
		return common.Address{}, err
	}
	hash := ethcrypto.Keccak256([]byte("amm/pair"), token0.Bytes(), token1.Bytes())
	return common.BytesToAddress(hash[12:]), nil
}

// NewPair binds the pair for tokenA/tokenB to state, creating its record when
// absent.
func NewPair(state pairState, ledger tokenLedger, tokenA, tokenB common.Address, fee Fee) (*Pair, error) {
	if state == nil || ledger == nil {
		return nil, errNilPairState
	}
	if err := fee.Validate(); err != nil {
		return nil, err
	}
	token0, token1, err := SortTokens(tokenA, tokenB)
	if err != nil {
		return nil, err
	}
	address, err := PairAddress(token0, token1)
	if err != nil {
		return nil, err
	}
	p := &Pair{address: address, token0: token0, token1: token1, fee: fee, state: state, ledger: ledger}
	ok, err := state.KVGet(p.recordKey(), nil)
	if err != nil {
		return nil, err
	}
	if !ok {
		if err := p.storeReserves(new(uint256.Int), new(uint256.Int)); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Pair) recordKey() []byte {
	return append(append([]byte(nil), pairRecordPrefix...), p.address.Bytes()...)
}

// LPToken returns the share token address.
func (p *Pair) LPToken() common.Address { return p.address }

// Fee returns the swap fee charged by the pair.
func (p *Pair) Fee() Fee { return p.fee }

func (p *Pair) loadReserves() (*uint256.Int, *uint256.Int, error) {
	var record storedPair
	ok, err := p.state.KVGet(p.recordKey(), &record)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return new(uint256.Int), new(uint256.Int), nil
	}
	reserve0, overflow0 := uint256.FromBig(record.Reserve0)
	reserve1, overflow1 := uint256.FromBig(record.Reserve1)
	if overflow0 || overflow1 {
		return nil, nil, ErrArithmeticOverflow
	}
	return reserve0, reserve1, nil
}

func (p *Pair) storeReserves(reserve0, reserve1 *uint256.Int) error {
	return p.state.KVPut(p.recordKey(), &storedPair{
		Token0:   p.token0,
		Token1:   p.token1,
		Reserve0: reserve0.ToBig(),
		Reserve1: reserve1.ToBig(),
	})
}

// flipped reports whether (tokenA, tokenB) is (token1, token0).
func (p *Pair) flipped(tokenA, tokenB common.Address) (bool, error) {
	switch {
	case tokenA == p.token0 && tokenB == p.token1:
		return false, nil
	case tokenA == p.token1 && tokenB == p.token0:
		return true, nil
	default:
		return false, fmt.Errorf("%w: %s/%s", ErrUnknownToken, tokenA.Hex(), tokenB.Hex())
	}
}

func orient(flip bool, a, b *uint256.Int) (*uint256.Int, *uint256.Int) {
	if flip {
		return b, a
	}
	return a, b
}

// Reserves returns the reserves ordered as (tokenA, tokenB).
func (p *Pair) Reserves(tokenA, tokenB common.Address) (*uint256.Int, *uint256.Int, error) {
	flip, err := p.flipped(tokenA, tokenB)
	if err != nil {
		return nil, nil, err
	}
	reserve0, reserve1, err := p.loadReserves()
	if err != nil {
		return nil, nil, err
	}
	reserveA, reserveB := orient(flip, reserve0, reserve1)
	return reserveA, reserveB, nil
}

// TotalShares returns the outstanding LP supply.
func (p *Pair) TotalShares() (*uint256.Int, error) {
	return p.ledger.TotalSupply(p.address)
}

// AddLiquidity deposits up to the desired amounts from `from` at the current
// ratio and mints shares to `to`. The first deposit sets the ratio.
func (p *Pair) AddLiquidity(tokenA, tokenB common.Address, desiredA, desiredB *uint256.Int, from, to common.Address) (*uint256.Int, *uint256.Int, *uint256.Int, error) {
	reserveA, reserveB, err := p.Reserves(tokenA, tokenB)
	if err != nil {
		return nil, nil, nil, err
	}
	amountA, amountB := desiredA, desiredB
	if !reserveA.IsZero() || !reserveB.IsZero() {
		optimalB, err := Quote(desiredA, reserveA, reserveB)
		if err != nil {
			return nil, nil, nil, err
		}
		if !optimalB.Gt(desiredB) {
			amountB = optimalB
		} else {
			optimalA, err := Quote(desiredB, reserveB, reserveA)
			if err != nil {
				return nil, nil, nil, err
			}
			if optimalA.Gt(desiredA) {
				return nil, nil, nil, ErrInsufficientInputAmount
			}
			amountA = optimalA
		}
	}
	total, err := p.TotalShares()
	if err != nil {
		return nil, nil, nil, err
	}
	shares, err := MintShares(amountA, amountB, reserveA, reserveB, total)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := p.ledger.Transfer(tokenA, from, p.address, amountA); err != nil {
		return nil, nil, nil, err
	}
	if err := p.ledger.Transfer(tokenB, from, p.address, amountB); err != nil {
		return nil, nil, nil, err
	}
	if total.IsZero() {
		if err := p.ledger.Mint(p.address, common.Address{}, uint256.NewInt(MinimumLiquidity)); err != nil {
			return nil, nil, nil, err
		}
	}
	if err := p.ledger.Mint(p.address, to, shares); err != nil {
		return nil, nil, nil, err
	}
	if err := p.updateReserves(tokenA, tokenB, new(uint256.Int).Add(reserveA, amountA), new(uint256.Int).Add(reserveB, amountB)); err != nil {
		return nil, nil, nil, err
	}
	return amountA, amountB, shares, nil
}

// RemoveLiquidity pulls shares from `from`, burns them and pays the
// proportional reserves to `to`, ordered as (tokenA, tokenB).
func (p *Pair) RemoveLiquidity(tokenA, tokenB common.Address, shares *uint256.Int, from, to common.Address) (*uint256.Int, *uint256.Int, error) {
	reserveA, reserveB, err := p.Reserves(tokenA, tokenB)
	if err != nil {
		return nil, nil, err
	}
	total, err := p.TotalShares()
	if err != nil {
		return nil, nil, err
	}
	amountA, amountB, err := ProportionalWithdraw(shares, reserveA, reserveB, total)
	if err != nil {
		return nil, nil, err
	}
	if amountA.IsZero() || amountB.IsZero() {
		return nil, nil, ErrInsufficientLiquidity
	}
	if err := p.ledger.Transfer(p.address, from, p.address, shares); err != nil {
		return nil, nil, err
	}
	if err := p.ledger.Burn(p.address, p.address, shares); err != nil {
		return nil, nil, err
	}
	if err := p.ledger.Transfer(tokenA, p.address, to, amountA); err != nil {
		return nil, nil, err
	}
	if err := p.ledger.Transfer(tokenB, p.address, to, amountB); err != nil {
		return nil, nil, err
	}
	if err := p.updateReserves(tokenA, tokenB, new(uint256.Int).Sub(reserveA, amountA), new(uint256.Int).Sub(reserveB, amountB)); err != nil {
		return nil, nil, err
	}
	return amountA, amountB, nil
}

// SwapExactIn sells amountIn of tokenIn from `from` and pays the output to `to`.
func (p *Pair) SwapExactIn(tokenIn, tokenOut common.Address, amountIn *uint256.Int, from, to common.Address) (*uint256.Int, error) {
	reserveIn, reserveOut, err := p.Reserves(tokenIn, tokenOut)
	if err != nil {
		return nil, err
	}
	amountOut, err := SwapOutputAmount(amountIn, reserveIn, reserveOut, p.fee)
	if err != nil {
		return nil, err
	}
	if amountOut.IsZero() {
		return nil, ErrInsufficientOutputAmount
	}
	if err := p.settleSwap(tokenIn, tokenOut, amountIn, amountOut, reserveIn, reserveOut, from, to); err != nil {
		return nil, err
	}
	return amountOut, nil
}

// SwapExactOut buys exactly amountOut of tokenOut, spending at most maxIn of
// tokenIn from `from`. It returns the input spent.
func (p *Pair) SwapExactOut(tokenIn, tokenOut common.Address, amountOut, maxIn *uint256.Int, from, to common.Address) (*uint256.Int, error) {
	reserveIn, reserveOut, err := p.Reserves(tokenIn, tokenOut)
	if err != nil {
		return nil, err
	}
	amountIn, err := SwapInputAmount(amountOut, reserveIn, reserveOut, p.fee)
	if err != nil {
		return nil, err
	}
	if maxIn != nil && amountIn.Gt(maxIn) {
		return nil, fmt.Errorf("%w: needs %s, max %s", ErrExcessiveInput, amountIn.Dec(), maxIn.Dec())
	}
	if err := p.settleSwap(tokenIn, tokenOut, amountIn, amountOut, reserveIn, reserveOut, from, to); err != nil {
		return nil, err
	}
	return amountIn, nil
}

func (p *Pair) settleSwap(tokenIn, tokenOut common.Address, amountIn, amountOut, reserveIn, reserveOut *uint256.Int, from, to common.Address) error {
	nextIn, overflow := new(uint256.Int).AddOverflow(reserveIn, amountIn)
	if overflow {
		return ErrArithmeticOverflow
	}
	nextOut := new(uint256.Int).Sub(reserveOut, amountOut)
	if err := p.checkInvariant(amountIn, reserveIn, reserveOut, nextIn, nextOut); err != nil {
		return err
	}
	if err := p.ledger.Transfer(tokenIn, from, p.address, amountIn); err != nil {
		return err
	}
	if err := p.ledger.Transfer(tokenOut, p.address, to, amountOut); err != nil {
		return err
	}
	return p.updateReserves(tokenIn, tokenOut, nextIn, nextOut)
}

// checkInvariant verifies (in*d - amountIn*(d-n)) * out * d >= reserveIn*reserveOut*d^2,
// the fee-adjusted constant product check of the pool. The products need more
// than 256 bits, so they are evaluated with big integers.
func (p *Pair) checkInvariant(amountIn, reserveIn, reserveOut, nextIn, nextOut *uint256.Int) error {
	d := new(big.Int).SetUint64(p.fee.Denominator)
	feeCut := new(big.Int).SetUint64(p.fee.Denominator - p.fee.Numerator)

	adjustedIn := new(big.Int).Mul(nextIn.ToBig(), d)
	adjustedIn.Sub(adjustedIn, new(big.Int).Mul(amountIn.ToBig(), feeCut))
	adjustedOut := new(big.Int).Mul(nextOut.ToBig(), d)

	after := new(big.Int).Mul(adjustedIn, adjustedOut)
	before := new(big.Int).Mul(reserveIn.ToBig(), reserveOut.ToBig())
	before.Mul(before, new(big.Int).Mul(d, d))
	if after.Cmp(before) < 0 {
		return ErrInvariant
	}
	return nil
}

func (p *Pair) updateReserves(tokenA, tokenB common.Address, reserveA, reserveB *uint256.Int) error {
	flip, err := p.flipped(tokenA, tokenB)
	if err != nil {
		return err
	}
	reserve0, reserve1 := orient(flip, reserveA, reserveB)
	return p.storeReserves(reserve0, reserve1)
}
