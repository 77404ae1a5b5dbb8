package strategy

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"vaultstrat/native/amm"
)

var (
	ErrUnauthorizedCaller        = errors.New("strategy: caller is not a whitelisted worker")
	ErrDecode                    = errors.New("strategy: malformed payload")
	ErrPoolStateMismatch         = errors.New("strategy: pool result diverged from simulation")
	ErrDebtExceedsProceeds       = errors.New("strategy: debt exceeds proceeds")
	ErrInsufficientProceeds      = errors.New("strategy: insufficient base token received")
	ErrInsufficientLPReceived    = errors.New("strategy: insufficient LP received")
	ErrInsufficientQuoteReceived = errors.New("strategy: insufficient quote token received")
	ErrNotOwner                  = errors.New("strategy: caller is not the owner")
	ErrReentrantCall             = errors.New("strategy: reentrant call")
	ErrZeroOwner                 = errors.New("strategy: owner must not be the zero address")

	errNilTokens  = errors.New("strategy: token ledger not configured")
	errNilJournal = errors.New("strategy: state journal not configured")
	errNilWorker  = errors.New("strategy: worker not provided")
	errNilPool    = errors.New("strategy: worker has no pool")
)

// Pool is the subset of a constant-product pair a strategy drives. Amounts are
// always ordered like the token arguments.
type Pool interface {
	LPToken() common.Address
	Fee() amm.Fee
	Reserves(tokenA, tokenB common.Address) (*uint256.Int, *uint256.Int, error)
	TotalShares() (*uint256.Int, error)
	AddLiquidity(tokenA, tokenB common.Address, desiredA, desiredB *uint256.Int, from, to common.Address) (*uint256.Int, *uint256.Int, *uint256.Int, error)
	RemoveLiquidity(tokenA, tokenB common.Address, shares *uint256.Int, from, to common.Address) (*uint256.Int, *uint256.Int, error)
	SwapExactIn(tokenIn, tokenOut common.Address, amountIn *uint256.Int, from, to common.Address) (*uint256.Int, error)
	SwapExactOut(tokenIn, tokenOut common.Address, amountOut, maxIn *uint256.Int, from, to common.Address) (*uint256.Int, error)
}

// Tokens moves fungible balances, LP shares included.
type Tokens interface {
	BalanceOf(token, holder common.Address) (*uint256.Int, error)
	Transfer(token, from, to common.Address, amount *uint256.Int) error
}

// Journal brackets an execution so a failure restores every balance, reserve
// and supply touched since Snapshot.
type Journal interface {
	Snapshot() int
	RevertToSnapshot(id int) error
	DiscardSnapshot(id int)
}

// Worker is the caller of a strategy: the contract managing one leveraged
// position on a single pool.
type Worker interface {
	Address() common.Address
	Pool() Pool
	BaseToken() common.Address
	QuoteToken() common.Address
}

// WorkerBinding is a static Worker description.
type WorkerBinding struct {
	Account common.Address
	Pair    Pool
	Base    common.Address
	Quote   common.Address
}

func (w WorkerBinding) Address() common.Address    { return w.Account }
func (w WorkerBinding) Pool() Pool                 { return w.Pair }
func (w WorkerBinding) BaseToken() common.Address  { return w.Base }
func (w WorkerBinding) QuoteToken() common.Address { return w.Quote }

// Strategy is the entry point every strategy exposes to workers.
type Strategy interface {
	Name() string
	Address() common.Address
	Execute(worker Worker, positionOwner common.Address, debt *uint256.Int, data []byte) (*Settlement, error)
}

// Settlement summarises a successful execution. Fields a strategy does not
// touch are zero.
type Settlement struct {
	Strategy   string         `json:"strategy"`
	Worker     common.Address `json:"worker"`
	Position   common.Address `json:"position"`
	BaseAsset  common.Address `json:"baseAsset"`
	QuoteAsset common.Address `json:"quoteAsset"`

	LPLiquidated *uint256.Int `json:"lpLiquidated"`
	LPReturned   *uint256.Int `json:"lpReturned"`
	LPMinted     *uint256.Int `json:"lpMinted"`

	WithdrawnBase  *uint256.Int `json:"withdrawnBase"`
	WithdrawnQuote *uint256.Int `json:"withdrawnQuote"`
	// SwapIn and SwapOut are the amounts sold to and bought from the pool.
	SwapIn  *uint256.Int `json:"swapIn"`
	SwapOut *uint256.Int `json:"swapOut"`

	DebtRepaid      *uint256.Int `json:"debtRepaid"`
	BaseToWorker    *uint256.Int `json:"baseToWorker"`
	BaseToPosition  *uint256.Int `json:"baseToPosition"`
	QuoteToWorker   *uint256.Int `json:"quoteToWorker"`
	QuoteToPosition *uint256.Int `json:"quoteToPosition"`

	// Received is the headline payout reported in the settlement event. Each
	// strategy documents what it carries.
	Received *uint256.Int `json:"received"`
}

func newSettlement(name string, worker Worker, position common.Address) *Settlement {
	return &Settlement{
		Strategy:        name,
		Worker:          worker.Address(),
		Position:        position,
		BaseAsset:       worker.BaseToken(),
		QuoteAsset:      worker.QuoteToken(),
		LPLiquidated:    new(uint256.Int),
		LPReturned:      new(uint256.Int),
		LPMinted:        new(uint256.Int),
		WithdrawnBase:   new(uint256.Int),
		WithdrawnQuote:  new(uint256.Int),
		SwapIn:          new(uint256.Int),
		SwapOut:         new(uint256.Int),
		DebtRepaid:      new(uint256.Int),
		BaseToWorker:    new(uint256.Int),
		BaseToPosition:  new(uint256.Int),
		QuoteToWorker:   new(uint256.Int),
		QuoteToPosition: new(uint256.Int),
		Received:        new(uint256.Int),
	}
}

func minAmount(a, b *uint256.Int) *uint256.Int {
	if a.Lt(b) {
		return new(uint256.Int).Set(a)
	}
	return new(uint256.Int).Set(b)
}
