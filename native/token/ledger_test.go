package token

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type mockState struct {
	balances map[[2]common.Address]*uint256.Int
	supplies map[common.Address]*uint256.Int
}

func newMockState() *mockState {
	return &mockState{
		balances: make(map[[2]common.Address]*uint256.Int),
		supplies: make(map[common.Address]*uint256.Int),
	}
}

func (m *mockState) Balance(token, holder common.Address) (*uint256.Int, error) {
	if v, ok := m.balances[[2]common.Address{token, holder}]; ok {
		return new(uint256.Int).Set(v), nil
	}
	return new(uint256.Int), nil
}

func (m *mockState) SetBalance(token, holder common.Address, amount *uint256.Int) error {
	m.balances[[2]common.Address{token, holder}] = new(uint256.Int).Set(amount)
	return nil
}

func (m *mockState) Supply(token common.Address) (*uint256.Int, error) {
	if v, ok := m.supplies[token]; ok {
		return new(uint256.Int).Set(v), nil
	}
	return new(uint256.Int), nil
}

func (m *mockState) SetSupply(token common.Address, amount *uint256.Int) error {
	m.supplies[token] = new(uint256.Int).Set(amount)
	return nil
}

var (
	testToken = common.HexToAddress("0x0000000000000000000000000000000000000100")
	holderA   = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	holderB   = common.HexToAddress("0x00000000000000000000000000000000000000bb")
)

func mustBalance(t *testing.T, l *Ledger, holder common.Address) uint64 {
	t.Helper()
	balance, err := l.BalanceOf(testToken, holder)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return balance.Uint64()
}

func TestLedgerMintTransferBurn(t *testing.T) {
	l := NewLedger(newMockState())
	if err := l.Mint(testToken, holderA, uint256.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := l.Transfer(testToken, holderA, holderB, uint256.NewInt(40)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got := mustBalance(t, l, holderA); got != 60 {
		t.Fatalf("expected 60 for A, got %d", got)
	}
	if got := mustBalance(t, l, holderB); got != 40 {
		t.Fatalf("expected 40 for B, got %d", got)
	}
	if err := l.Burn(testToken, holderB, uint256.NewInt(15)); err != nil {
		t.Fatalf("burn: %v", err)
	}
	supply, err := l.TotalSupply(testToken)
	if err != nil {
		t.Fatalf("supply: %v", err)
	}
	if supply.Uint64() != 85 {
		t.Fatalf("expected supply 85, got %s", supply.Dec())
	}
}

func TestLedgerTransferInsufficientBalance(t *testing.T) {
	l := NewLedger(newMockState())
	if err := l.Mint(testToken, holderA, uint256.NewInt(5)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	err := l.Transfer(testToken, holderA, holderB, uint256.NewInt(6))
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if got := mustBalance(t, l, holderA); got != 5 {
		t.Fatalf("failed transfer changed balance to %d", got)
	}
	if err := l.Burn(testToken, holderB, uint256.NewInt(1)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance on burn, got %v", err)
	}
}

func TestLedgerZeroAndSelfTransfersAreNoops(t *testing.T) {
	l := NewLedger(newMockState())
	if err := l.Transfer(testToken, holderA, holderB, new(uint256.Int)); err != nil {
		t.Fatalf("zero transfer: %v", err)
	}
	if err := l.Transfer(testToken, holderA, holderA, uint256.NewInt(10)); err != nil {
		t.Fatalf("self transfer: %v", err)
	}
}

func TestLedgerMintOverflow(t *testing.T) {
	l := NewLedger(newMockState())
	max := new(uint256.Int).SetAllOne()
	if err := l.Mint(testToken, holderA, max); err != nil {
		t.Fatalf("mint max: %v", err)
	}
	if err := l.Mint(testToken, holderB, uint256.NewInt(1)); !errors.Is(err, ErrSupplyOverflow) {
		t.Fatalf("expected ErrSupplyOverflow, got %v", err)
	}
}

func TestLedgerRequiresState(t *testing.T) {
	var l *Ledger
	if _, err := l.BalanceOf(testToken, holderA); err == nil {
		t.Fatalf("expected error from nil ledger")
	}
}
