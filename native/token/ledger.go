package token

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	ErrInsufficientBalance = errors.New("token: insufficient balance")
	ErrSupplyOverflow      = errors.New("token: supply overflow")
	errNilState            = errors.New("token: state not configured")
)

type ledgerState interface {
	Balance(token, holder common.Address) (*uint256.Int, error)
	SetBalance(token, holder common.Address, amount *uint256.Int) error
	Supply(token common.Address) (*uint256.Int, error)
	SetSupply(token common.Address, amount *uint256.Int) error
}

// Ledger moves fungible token balances held in state. Any token address is
// accepted; a token exists once something has been minted for it.
type Ledger struct {
	state ledgerState
}

// NewLedger constructs a ledger bound to the provided state backend.
func NewLedger(state ledgerState) *Ledger {
	return &Ledger{state: state}
}

// BalanceOf returns holder's balance of token.
func (l *Ledger) BalanceOf(token, holder common.Address) (*uint256.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	return l.state.Balance(token, holder)
}

// TotalSupply returns the outstanding supply of token.
func (l *Ledger) TotalSupply(token common.Address) (*uint256.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	return l.state.Supply(token)
}

// Transfer moves amount of token from one holder to another. Zero transfers
// and self transfers succeed without touching state.
func (l *Ledger) Transfer(token, from, to common.Address, amount *uint256.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if amount == nil || amount.IsZero() || from == to {
		return nil
	}
	fromBalance, err := l.state.Balance(token, from)
	if err != nil {
		return err
	}
	if fromBalance.Lt(amount) {
		return fmt.Errorf("%w: %s holds %s of %s, needs %s", ErrInsufficientBalance, from.Hex(), fromBalance.Dec(), token.Hex(), amount.Dec())
	}
	toBalance, err := l.state.Balance(token, to)
	if err != nil {
		return err
	}
	// Cannot overflow: the sum is bounded by the token supply.
	if err := l.state.SetBalance(token, from, new(uint256.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}
	return l.state.SetBalance(token, to, new(uint256.Int).Add(toBalance, amount))
}

// Mint creates amount of token for to.
func (l *Ledger) Mint(token, to common.Address, amount *uint256.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if amount == nil || amount.IsZero() {
		return nil
	}
	supply, err := l.state.Supply(token)
	if err != nil {
		return err
	}
	nextSupply, overflow := new(uint256.Int).AddOverflow(supply, amount)
	if overflow {
		return ErrSupplyOverflow
	}
	balance, err := l.state.Balance(token, to)
	if err != nil {
		return err
	}
	if err := l.state.SetSupply(token, nextSupply); err != nil {
		return err
	}
	return l.state.SetBalance(token, to, new(uint256.Int).Add(balance, amount))
}

// Burn destroys amount of token held by from.
func (l *Ledger) Burn(token, from common.Address, amount *uint256.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if amount == nil || amount.IsZero() {
		return nil
	}
	balance, err := l.state.Balance(token, from)
	if err != nil {
		return err
	}
	if balance.Lt(amount) {
		return fmt.Errorf("%w: burn %s from %s", ErrInsufficientBalance, amount.Dec(), from.Hex())
	}
	supply, err := l.state.Supply(token)
	if err != nil {
		return err
	}
	if err := l.state.SetBalance(token, from, new(uint256.Int).Sub(balance, amount)); err != nil {
		return err
	}
	return l.state.SetSupply(token, new(uint256.Int).Sub(supply, amount))
}
