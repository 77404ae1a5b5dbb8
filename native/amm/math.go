package amm

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

var (
	// ErrArithmeticUnderflow reports a computation that would divide by an
	// empty supply or drive a quantity below zero.
	ErrArithmeticUnderflow = errors.New("amm: arithmetic underflow")
	// ErrArithmeticOverflow reports an intermediate or result that does not
	// fit in 256 bits.
	ErrArithmeticOverflow = errors.New("amm: arithmetic overflow")

	ErrInsufficientInputAmount     = errors.New("amm: insufficient input amount")
	ErrInsufficientOutputAmount    = errors.New("amm: insufficient output amount")
	ErrInsufficientLiquidity       = errors.New("amm: insufficient liquidity")
	ErrInsufficientLiquidityMinted = errors.New("amm: insufficient liquidity minted")
	ErrInvalidFee                  = errors.New("amm: invalid fee")
)

// MinimumLiquidity is the share amount permanently locked by the first mint.
const MinimumLiquidity = 1000

// Fee is the proportional swap fee expressed as the fraction of the input that
// reaches the curve: Numerator/Denominator.
type Fee struct {
	Numerator   uint64
	Denominator uint64
}

// DefaultFee is the 0.25% tier of the target pool family.
var DefaultFee = Fee{Numerator: 9975, Denominator: 10_000}

// Validate ensures the fee keeps a positive share of the input.
func (f Fee) Validate() error {
	if f.Denominator == 0 || f.Numerator == 0 || f.Numerator > f.Denominator {
		return fmt.Errorf("%w: %d/%d", ErrInvalidFee, f.Numerator, f.Denominator)
	}
	return nil
}

// Bps returns the fee charged in basis points, rounded down.
func (f Fee) Bps() uint64 {
	if f.Denominator == 0 {
		return 0
	}
	return (f.Denominator - f.Numerator) * 10_000 / f.Denominator
}

func mul(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulOverflow(x, y)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	return z, nil
}

func add(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	return z, nil
}

func sub(x, y *uint256.Int) (*uint256.Int, error) {
	z, underflow := new(uint256.Int).SubOverflow(x, y)
	if underflow {
		return nil, ErrArithmeticUnderflow
	}
	return z, nil
}

// mulDiv computes floor(x*y/d) with a 512-bit intermediate product.
func mulDiv(x, y, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, ErrArithmeticUnderflow
	}
	z, overflow := new(uint256.Int).MulDivOverflow(x, y, d)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	return z, nil
}

// ProportionalWithdraw returns the amounts of both reserves released by burning
// lp shares out of totalShares. Each side is floored independently, matching
// the pool's burn.
func ProportionalWithdraw(lp, reserveA, reserveB, totalShares *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	if totalShares.IsZero() || lp.Gt(totalShares) {
		return nil, nil, ErrArithmeticUnderflow
	}
	amountA, err := mulDiv(reserveA, lp, totalShares)
	if err != nil {
		return nil, nil, err
	}
	amountB, err := mulDiv(reserveB, lp, totalShares)
	if err != nil {
		return nil, nil, err
	}
	return amountA, amountB, nil
}

// SwapOutputAmount applies the constant-product-with-fee rule:
//
//	out = in*n*reserveOut / (reserveIn*d + in*n)
//
// where n/d is the fee fraction.
func SwapOutputAmount(amountIn, reserveIn, reserveOut *uint256.Int, fee Fee) (*uint256.Int, error) {
	if amountIn.IsZero() {
		return nil, ErrInsufficientInputAmount
	}
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return nil, ErrInsufficientLiquidity
	}
	inWithFee, err := mul(amountIn, uint256.NewInt(fee.Numerator))
	if err != nil {
		return nil, err
	}
	scaledReserve, err := mul(reserveIn, uint256.NewInt(fee.Denominator))
	if err != nil {
		return nil, err
	}
	denominator, err := add(scaledReserve, inWithFee)
	if err != nil {
		return nil, err
	}
	return mulDiv(inWithFee, reserveOut, denominator)
}

// SwapInputAmount is the inverse of SwapOutputAmount: the smallest input that
// yields at least amountOut. The trailing +1 matches the pool's rounding.
func SwapInputAmount(amountOut, reserveIn, reserveOut *uint256.Int, fee Fee) (*uint256.Int, error) {
	if amountOut.IsZero() {
		return nil, ErrInsufficientOutputAmount
	}
	if reserveIn.IsZero() || !reserveOut.Gt(amountOut) {
		return nil, ErrInsufficientLiquidity
	}
	scaledOut, err := mul(amountOut, uint256.NewInt(fee.Denominator))
	if err != nil {
		return nil, err
	}
	remaining, err := sub(reserveOut, amountOut)
	if err != nil {
		return nil, err
	}
	denominator, err := mul(remaining, uint256.NewInt(fee.Numerator))
	if err != nil {
		return nil, err
	}
	amountIn, err := mulDiv(reserveIn, scaledOut, denominator)
	if err != nil {
		return nil, err
	}
	return add(amountIn, uint256.NewInt(1))
}

// Quote returns the amount of B matching amountA at the current reserve ratio.
func Quote(amountA, reserveA, reserveB *uint256.Int) (*uint256.Int, error) {
	if amountA.IsZero() {
		return nil, ErrInsufficientInputAmount
	}
	if reserveA.IsZero() || reserveB.IsZero() {
		return nil, ErrInsufficientLiquidity
	}
	return mulDiv(amountA, reserveB, reserveA)
}

// MintShares returns the shares minted for depositing amountA and amountB. The
// first deposit mints sqrt(a*b) and locks MinimumLiquidity of it; later
// deposits mint the smaller of the two proportional claims.
func MintShares(amountA, amountB, reserveA, reserveB, totalShares *uint256.Int) (*uint256.Int, error) {
	if totalShares.IsZero() {
		product, err := mul(amountA, amountB)
		if err != nil {
			return nil, err
		}
		root := new(uint256.Int).Sqrt(product)
		minimum := uint256.NewInt(MinimumLiquidity)
		if !root.Gt(minimum) {
			return nil, ErrInsufficientLiquidityMinted
		}
		return root.Sub(root, minimum), nil
	}
	if reserveA.IsZero() || reserveB.IsZero() {
		return nil, ErrInsufficientLiquidity
	}
	sharesA, err := mulDiv(amountA, totalShares, reserveA)
	if err != nil {
		return nil, err
	}
	sharesB, err := mulDiv(amountB, totalShares, reserveB)
	if err != nil {
		return nil, err
	}
	shares := sharesA
	if sharesB.Lt(sharesA) {
		shares = sharesB
	}
	if shares.IsZero() {
		return nil, ErrInsufficientLiquidityMinted
	}
	return shares, nil
}

// OptimalDeposit returns how much of a single-sided deposit to swap so the
// remainder and the swap output are in the post-swap reserve ratio:
//
//	s = (sqrt(r*(r*(d+n)^2 + 4*n*d*a)) - r*(d+n)) / (2*n)
func OptimalDeposit(amount, reserve *uint256.Int, fee Fee) (*uint256.Int, error) {
	if reserve.IsZero() {
		return nil, ErrInsufficientLiquidity
	}
	if amount.IsZero() {
		return new(uint256.Int), nil
	}
	n := uint256.NewInt(fee.Numerator)
	d := uint256.NewInt(fee.Denominator)
	sum := new(uint256.Int).Add(n, d)
	sumSq, err := mul(sum, sum)
	if err != nil {
		return nil, err
	}
	fourND, err := mul(uint256.NewInt(4), new(uint256.Int).Mul(n, d))
	if err != nil {
		return nil, err
	}
	left, err := mul(reserve, sumSq)
	if err != nil {
		return nil, err
	}
	right, err := mul(amount, fourND)
	if err != nil {
		return nil, err
	}
	inner, err := add(left, right)
	if err != nil {
		return nil, err
	}
	radicand, err := mul(reserve, inner)
	if err != nil {
		return nil, err
	}
	root := new(uint256.Int).Sqrt(radicand)
	offset, err := mul(reserve, sum)
	if err != nil {
		return nil, err
	}
	numerator, err := sub(root, offset)
	if err != nil {
		return nil, err
	}
	return numerator.Div(numerator, new(uint256.Int).Mul(n, uint256.NewInt(2))), nil
}
