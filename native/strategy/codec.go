package strategy

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/holiman/uint256"
)

// PartialCloseParams is the request decoded from a partial-close payload. The
// values are untrusted upper bounds and floors; the engines clamp them.
type PartialCloseParams struct {
	MaxLPToLiquidate     *uint256.Int
	MaxDebtRepayment     *uint256.Int
	MinBaseTokenReceived *uint256.Int
}

// MinimizeTradingParams is the request of the minimize-trading partial close.
type MinimizeTradingParams struct {
	MaxLPToLiquidate *uint256.Int
	MaxDebtRepayment *uint256.Int
	MinQuoteToken    *uint256.Int
}

func mustType(name string) abi.Type {
	typ, err := abi.NewType(name, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

var (
	uint256Type = mustType("uint256")

	partialCloseArgs = abi.Arguments{
		{Name: "maxLpTokenToLiquidate", Type: uint256Type},
		{Name: "maxDebtRepayment", Type: uint256Type},
		{Name: "minBaseToken", Type: uint256Type},
	}
	minimizeTradingArgs = abi.Arguments{
		{Name: "maxLpTokenToLiquidate", Type: uint256Type},
		{Name: "maxDebtRepayment", Type: uint256Type},
		{Name: "minFarmingToken", Type: uint256Type},
	}
	singleAmountArgs = abi.Arguments{
		{Name: "amount", Type: uint256Type},
	}
)

// decodeAmounts unpacks a payload made only of uint256 words. The payload
// must be exactly one word per argument.
func decodeAmounts(args abi.Arguments, data []byte) ([]*uint256.Int, error) {
	if want := 32 * len(args); len(data) != want {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrDecode, want, len(data))
	}
	values, err := args.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	out := make([]*uint256.Int, len(values))
	for i, value := range values {
		word, ok := value.(*big.Int)
		if !ok {
			return nil, fmt.Errorf("%w: argument %d has type %T", ErrDecode, i, value)
		}
		amount, overflow := uint256.FromBig(word)
		if overflow {
			return nil, fmt.Errorf("%w: argument %d exceeds 256 bits", ErrDecode, i)
		}
		out[i] = amount
	}
	return out, nil
}

func encodeAmounts(args abi.Arguments, amounts ...*uint256.Int) ([]byte, error) {
	values := make([]interface{}, len(amounts))
	for i, amount := range amounts {
		if amount == nil {
			amount = new(uint256.Int)
		}
		values[i] = amount.ToBig()
	}
	return args.Pack(values...)
}

// DecodePartialCloseParams parses the ABI tuple (uint256,uint256,uint256).
func DecodePartialCloseParams(data []byte) (PartialCloseParams, error) {
	amounts, err := decodeAmounts(partialCloseArgs, data)
	if err != nil {
		return PartialCloseParams{}, err
	}
	return PartialCloseParams{
		MaxLPToLiquidate:     amounts[0],
		MaxDebtRepayment:     amounts[1],
		MinBaseTokenReceived: amounts[2],
	}, nil
}

// EncodePartialCloseParams produces the payload a worker passes to Execute.
func EncodePartialCloseParams(p PartialCloseParams) ([]byte, error) {
	return encodeAmounts(partialCloseArgs, p.MaxLPToLiquidate, p.MaxDebtRepayment, p.MinBaseTokenReceived)
}

func DecodeMinimizeTradingParams(data []byte) (MinimizeTradingParams, error) {
	amounts, err := decodeAmounts(minimizeTradingArgs, data)
	if err != nil {
		return MinimizeTradingParams{}, err
	}
	return MinimizeTradingParams{
		MaxLPToLiquidate: amounts[0],
		MaxDebtRepayment: amounts[1],
		MinQuoteToken:    amounts[2],
	}, nil
}

func EncodeMinimizeTradingParams(p MinimizeTradingParams) ([]byte, error) {
	return encodeAmounts(minimizeTradingArgs, p.MaxLPToLiquidate, p.MaxDebtRepayment, p.MinQuoteToken)
}

// DecodeAmount parses a single uint256 word, the payload of Liquidate and
// AddBaseTokenOnly.
func DecodeAmount(data []byte) (*uint256.Int, error) {
	amounts, err := decodeAmounts(singleAmountArgs, data)
	if err != nil {
		return nil, err
	}
	return amounts[0], nil
}

func EncodeAmount(amount *uint256.Int) ([]byte, error) {
	return encodeAmounts(singleAmountArgs, amount)
}
