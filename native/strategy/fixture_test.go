package strategy

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"vaultstrat/core/events"
	"vaultstrat/core/state"
	"vaultstrat/native/amm"
	"vaultstrat/native/token"
	"vaultstrat/storage"
	"vaultstrat/storage/trie"
)

var (
	baseToken    = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	farmingToken = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	owner        = common.HexToAddress("0x000000000000000000000000000000000000dead")
	alice        = common.HexToAddress("0x000000000000000000000000000000000000a11c")
	bob          = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	workerAddr   = common.HexToAddress("0x000000000000000000000000000000000000beef")
)

const bobLP = "316227766016837933"

type captureEmitter struct {
	events []events.Event
}

func (c *captureEmitter) Emit(evt events.Event) { c.events = append(c.events, evt) }

type fixture struct {
	state   *state.Manager
	ledger  *token.Ledger
	pair    *amm.Pair
	worker  WorkerBinding
	emitter *captureEmitter
}

func amount(t *testing.T, value string) *uint256.Int {
	t.Helper()
	v, err := uint256.FromDecimal(value)
	if err != nil {
		t.Fatalf("parse %q: %v", value, err)
	}
	return v
}

// newFixture seeds the reference pool: alice and bob each deposit 1 BASE and
// 0.1 FTOKEN, leaving reserves of (2, 0.2) and bob holding bobLP shares.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := newEmptyFixture(t)
	for _, holder := range []common.Address{alice, bob} {
		f.mint(t, baseToken, holder, "100000000000000000000")
		f.mint(t, farmingToken, holder, "10000000000000000000")
	}
	if _, _, _, err := f.pair.AddLiquidity(baseToken, farmingToken, amount(t, "1000000000000000000"), amount(t, "100000000000000000"), alice, alice); err != nil {
		t.Fatalf("alice add liquidity: %v", err)
	}
	if _, _, _, err := f.pair.AddLiquidity(baseToken, farmingToken, amount(t, "1000000000000000000"), amount(t, "1000000000000000000"), bob, bob); err != nil {
		t.Fatalf("bob add liquidity: %v", err)
	}
	if got := f.balance(t, f.pair.LPToken(), bob); got != bobLP {
		t.Fatalf("unexpected seeded lp %s", got)
	}
	return f
}

// newEmptyFixture wires state, ledger and an unfunded pair.
func newEmptyFixture(t *testing.T) *fixture {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	tr, err := trie.NewTrie(db, nil)
	if err != nil {
		t.Fatalf("new trie: %v", err)
	}
	mgr := state.NewManager(tr)
	ledger := token.NewLedger(mgr)
	pair, err := amm.NewPair(mgr, ledger, baseToken, farmingToken, amm.DefaultFee)
	if err != nil {
		t.Fatalf("new pair: %v", err)
	}
	f := &fixture{
		state:   mgr,
		ledger:  ledger,
		pair:    pair,
		worker:  WorkerBinding{Account: workerAddr, Pair: pair, Base: baseToken, Quote: farmingToken},
		emitter: &captureEmitter{},
	}
	return f
}

func (f *fixture) mint(t *testing.T, tok, to common.Address, value string) {
	t.Helper()
	if err := f.ledger.Mint(tok, to, amount(t, value)); err != nil {
		t.Fatalf("mint: %v", err)
	}
}

func (f *fixture) balance(t *testing.T, tok, holder common.Address) string {
	t.Helper()
	v, err := f.ledger.BalanceOf(tok, holder)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return v.Dec()
}

func (f *fixture) reserves(t *testing.T) (string, string) {
	t.Helper()
	a, b, err := f.pair.Reserves(baseToken, farmingToken)
	if err != nil {
		t.Fatalf("reserves: %v", err)
	}
	return a.Dec(), b.Dec()
}

// custody moves lp shares from bob to the strategy, as the worker does before
// calling Execute.
func (f *fixture) custody(t *testing.T, strategy common.Address, lp string) {
	t.Helper()
	if err := f.ledger.Transfer(f.pair.LPToken(), bob, strategy, amount(t, lp)); err != nil {
		t.Fatalf("custody lp: %v", err)
	}
}

func (f *fixture) wire(t *testing.T, e *Engine) {
	t.Helper()
	e.SetEmitter(f.emitter)
	e.SetMetrics(nil)
	if err := e.SetWorkersOk(owner, []common.Address{workerAddr}, true); err != nil {
		t.Fatalf("whitelist worker: %v", err)
	}
}

func (f *fixture) partialClose(t *testing.T) *PartialCloseLiquidate {
	t.Helper()
	s := NewPartialCloseLiquidate(owner, f.ledger, f.state)
	f.wire(t, s.Engine)
	return s
}

func partialClosePayload(t *testing.T, maxLP, maxDebt, minBase string) []byte {
	t.Helper()
	data, err := EncodePartialCloseParams(PartialCloseParams{
		MaxLPToLiquidate:     amount(t, maxLP),
		MaxDebtRepayment:     amount(t, maxDebt),
		MinBaseTokenReceived: amount(t, minBase),
	})
	if err != nil {
		t.Fatalf("encode payload: %v", err)
	}
	return data
}

func expectRootUnchanged(t *testing.T, f *fixture, fn func() error, target error) {
	t.Helper()
	before := f.state.PendingRoot()
	err := fn()
	if !errors.Is(err, target) {
		t.Fatalf("expected %v, got %v", target, err)
	}
	if after := f.state.PendingRoot(); after != before {
		t.Fatalf("state root changed on failure: %s -> %s", before.Hex(), after.Hex())
	}
}

// lyingPool reports reserves that do not match the pool it forwards to.
type lyingPool struct {
	*amm.Pair
	reserveScale uint64
	fee          *amm.Fee
}

func (p *lyingPool) Reserves(tokenA, tokenB common.Address) (*uint256.Int, *uint256.Int, error) {
	a, b, err := p.Pair.Reserves(tokenA, tokenB)
	if err != nil || p.reserveScale == 0 {
		return a, b, err
	}
	if tokenA == baseToken {
		a = new(uint256.Int).Mul(a, uint256.NewInt(p.reserveScale))
	} else {
		b = new(uint256.Int).Mul(b, uint256.NewInt(p.reserveScale))
	}
	return a, b, nil
}

func (p *lyingPool) Fee() amm.Fee {
	if p.fee != nil {
		return *p.fee
	}
	return p.Pair.Fee()
}

var errTransferRejected = errors.New("transfer rejected")

// failingTokens rejects transfers to one recipient.
type failingTokens struct {
	Tokens
	reject common.Address
}

func (f *failingTokens) Transfer(tok, from, to common.Address, amt *uint256.Int) error {
	if to == f.reject {
		return errTransferRejected
	}
	return f.Tokens.Transfer(tok, from, to, amt)
}

// reentrantTokens calls back into the strategy on the first transfer.
type reentrantTokens struct {
	Tokens
	reenter  func() error
	observed []error
}

func (r *reentrantTokens) Transfer(tok, from, to common.Address, amt *uint256.Int) error {
	if r.reenter != nil {
		reenter := r.reenter
		r.reenter = nil
		r.observed = append(r.observed, reenter())
	}
	return r.Tokens.Transfer(tok, from, to, amt)
}
