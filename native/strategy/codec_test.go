package strategy

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

func TestPartialCloseParamsWireFormat(t *testing.T) {
	params := PartialCloseParams{
		MaxLPToLiquidate:     uint256.NewInt(1),
		MaxDebtRepayment:     uint256.NewInt(2),
		MinBaseTokenReceived: new(uint256.Int).SetAllOne(),
	}
	data, err := EncodePartialCloseParams(params)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := append(append(common.LeftPadBytes([]byte{1}, 32), common.LeftPadBytes([]byte{2}, 32)...), bytes.Repeat([]byte{0xff}, 32)...)
	if !bytes.Equal(data, want) {
		t.Fatalf("unexpected encoding %x", data)
	}
	decoded, err := DecodePartialCloseParams(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !decoded.MinBaseTokenReceived.Eq(params.MinBaseTokenReceived) || decoded.MaxDebtRepayment.Uint64() != 2 {
		t.Fatalf("unexpected decoded params %+v", decoded)
	}
}

func TestDecodeRejectsWrongLength(t *testing.T) {
	for _, size := range []int{0, 31, 64, 95, 97, 128} {
		if _, err := DecodePartialCloseParams(make([]byte, size)); !errors.Is(err, ErrDecode) {
			t.Fatalf("size %d: expected ErrDecode, got %v", size, err)
		}
	}
	if _, err := DecodeAmount(make([]byte, 33)); !errors.Is(err, ErrDecode) {
		t.Fatalf("expected ErrDecode for single word, got %v", err)
	}
	amount, err := DecodeAmount(common.LeftPadBytes([]byte{7}, 32))
	if err != nil || amount.Uint64() != 7 {
		t.Fatalf("unexpected single word decode %v %v", amount, err)
	}
}
