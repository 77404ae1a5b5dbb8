package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"vaultstrat/core/events"
	"vaultstrat/core/state"
	"vaultstrat/native/amm"
	nativecommon "vaultstrat/native/common"
	"vaultstrat/native/strategy"
	"vaultstrat/native/token"
	"vaultstrat/storage"
	"vaultstrat/storage/trie"
)

const defaultDecimals = 18

// Scenario describes one strategy execution against a freshly seeded pool.
// Amounts are human decimal strings scaled by Decimals.
type Scenario struct {
	Name      string     `yaml:"name"`
	Strategy  string     `yaml:"strategy"`
	Decimals  int32      `yaml:"decimals"`
	Base      string     `yaml:"base"`
	Quote     string     `yaml:"quote"`
	Worker    string     `yaml:"worker"`
	Position  string     `yaml:"position"`
	Providers []Provider `yaml:"providers"`
	Custody   Custody    `yaml:"custody"`
	Debt      string     `yaml:"debt"`
	Request   Request    `yaml:"request"`
}

type Provider struct {
	Address string `yaml:"address"`
	Base    string `yaml:"base"`
	Quote   string `yaml:"quote"`
}

// Custody is what the worker hands the strategy before calling it. LP "all"
// moves every share the position holds.
type Custody struct {
	LP   string `yaml:"lp"`
	Base string `yaml:"base"`
}

// Request holds the payload bounds. MinReceived is the floor of whatever the
// strategy guarantees: base, LP or quote.
type Request struct {
	MaxLP       string `yaml:"maxLP"`
	MaxDebt     string `yaml:"maxDebt"`
	MinReceived string `yaml:"minReceived"`
}

// Environment carries what a scenario needs from the host process.
type Environment struct {
	Store   storage.Database
	Owner   common.Address
	Fee     amm.Fee
	Workers []common.Address
	Pauses  nativecommon.PauseView
	Logger  *slog.Logger
}

type Reserves struct {
	Base  string `json:"base"`
	Quote string `json:"quote"`
}

type Result struct {
	Scenario   string               `json:"scenario"`
	Strategy   string               `json:"strategy"`
	Address    common.Address       `json:"address"`
	Settlement *strategy.Settlement `json:"settlement"`
	Workers    []common.Address     `json:"workers"`
	Reserves   Reserves             `json:"reserves"`
	StateRoot  common.Hash          `json:"stateRoot"`
	Archived   uint64               `json:"archivedEvents"`
}

func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseScenario(data)
}

func ParseScenario(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("scenario: %w", err)
	}
	if sc.Decimals == 0 {
		sc.Decimals = defaultDecimals
	}
	if sc.Strategy == "" {
		sc.Strategy = strategy.NamePartialCloseLiquidate
	}
	for name, addr := range map[string]string{"base": sc.Base, "quote": sc.Quote, "worker": sc.Worker, "position": sc.Position} {
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("scenario: %s %q is not a hex address", name, addr)
		}
	}
	if len(sc.Providers) == 0 {
		return nil, errors.New("scenario: at least one liquidity provider is required")
	}
	return &sc, nil
}

// parseAmount scales a decimal string to base units. Empty means zero.
func parseAmount(value string, decimals int32) (*uint256.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return new(uint256.Int), nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return nil, fmt.Errorf("amount %q: %w", value, err)
	}
	scaled := d.Shift(decimals)
	if scaled.IsNegative() || !scaled.IsInteger() {
		return nil, fmt.Errorf("amount %q is not a non-negative multiple of 1e-%d", value, decimals)
	}
	amount, overflow := uint256.FromBig(scaled.BigInt())
	if overflow {
		return nil, fmt.Errorf("amount %q exceeds 256 bits", value)
	}
	return amount, nil
}

func (sc *Scenario) amount(field, value string) (*uint256.Int, error) {
	amount, err := parseAmount(value, sc.Decimals)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", field, err)
	}
	return amount, nil
}

func newStrategy(name string, owner common.Address, tokens strategy.Tokens, journal strategy.Journal) (strategy.Strategy, *strategy.Engine, error) {
	switch name {
	case strategy.NamePartialCloseLiquidate:
		s := strategy.NewPartialCloseLiquidate(owner, tokens, journal)
		return s, s.Engine, nil
	case strategy.NameLiquidate:
		s := strategy.NewLiquidate(owner, tokens, journal)
		return s, s.Engine, nil
	case strategy.NameAddBaseTokenOnly:
		s := strategy.NewAddBaseTokenOnly(owner, tokens, journal)
		return s, s.Engine, nil
	case strategy.NamePartialCloseMinimizeTrading:
		s := strategy.NewPartialCloseMinimizeTrading(owner, tokens, journal)
		return s, s.Engine, nil
	default:
		return nil, nil, fmt.Errorf("scenario: unknown strategy %q", name)
	}
}

func (sc *Scenario) payload() ([]byte, error) {
	maxLP, err := sc.amount("request.maxLP", sc.Request.MaxLP)
	if err != nil {
		return nil, err
	}
	maxDebt, err := sc.amount("request.maxDebt", sc.Request.MaxDebt)
	if err != nil {
		return nil, err
	}
	minReceived, err := sc.amount("request.minReceived", sc.Request.MinReceived)
	if err != nil {
		return nil, err
	}
	switch sc.Strategy {
	case strategy.NamePartialCloseLiquidate:
		return strategy.EncodePartialCloseParams(strategy.PartialCloseParams{
			MaxLPToLiquidate:     maxLP,
			MaxDebtRepayment:     maxDebt,
			MinBaseTokenReceived: minReceived,
		})
	case strategy.NamePartialCloseMinimizeTrading:
		return strategy.EncodeMinimizeTradingParams(strategy.MinimizeTradingParams{
			MaxLPToLiquidate: maxLP,
			MaxDebtRepayment: maxDebt,
			MinQuoteToken:    minReceived,
		})
	default:
		return strategy.EncodeAmount(minReceived)
	}
}

// Run seeds the pool, hands the strategy its custody and executes the request.
// A failed execution still returns the error from the strategy unchanged.
func (sc *Scenario) Run(env Environment) (*Result, error) {
	logger := env.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tr, err := trie.NewTrie(env.Store, nil)
	if err != nil {
		return nil, err
	}
	mgr := state.NewManager(tr)
	ledger := token.NewLedger(mgr)
	base, quote := common.HexToAddress(sc.Base), common.HexToAddress(sc.Quote)
	pair, err := amm.NewPair(mgr, ledger, base, quote, env.Fee)
	if err != nil {
		return nil, err
	}

	for i, p := range sc.Providers {
		if !common.IsHexAddress(p.Address) {
			return nil, fmt.Errorf("scenario: providers[%d] address %q is not hex", i, p.Address)
		}
		provider := common.HexToAddress(p.Address)
		baseAmount, err := sc.amount(fmt.Sprintf("providers[%d].base", i), p.Base)
		if err != nil {
			return nil, err
		}
		quoteAmount, err := sc.amount(fmt.Sprintf("providers[%d].quote", i), p.Quote)
		if err != nil {
			return nil, err
		}
		if err := ledger.Mint(base, provider, baseAmount); err != nil {
			return nil, err
		}
		if err := ledger.Mint(quote, provider, quoteAmount); err != nil {
			return nil, err
		}
		if _, _, _, err := pair.AddLiquidity(base, quote, baseAmount, quoteAmount, provider, provider); err != nil {
			return nil, fmt.Errorf("scenario: providers[%d] add liquidity: %w", i, err)
		}
	}

	strat, engine, err := newStrategy(sc.Strategy, env.Owner, ledger, mgr)
	if err != nil {
		return nil, err
	}
	archive, err := events.OpenArchive(env.Store)
	if err != nil {
		return nil, err
	}
	engine.SetEmitter(archive)
	engine.SetLogger(logger)
	engine.SetPauses(env.Pauses)
	worker := common.HexToAddress(sc.Worker)
	if err := engine.SetWorkersOk(env.Owner, append(append([]common.Address{}, env.Workers...), worker), true); err != nil {
		return nil, err
	}

	position := common.HexToAddress(sc.Position)
	if err := sc.handOver(ledger, pair.LPToken(), base, position, worker, strat.Address()); err != nil {
		return nil, err
	}
	debt, err := sc.amount("debt", sc.Debt)
	if err != nil {
		return nil, err
	}
	payload, err := sc.payload()
	if err != nil {
		return nil, err
	}

	binding := strategy.WorkerBinding{Account: worker, Pair: pair, Base: base, Quote: quote}
	settlement, execErr := strat.Execute(binding, position, debt, payload)
	if execErr != nil {
		return nil, execErr
	}
	if err := archive.Err(); err != nil {
		return nil, err
	}

	reserveBase, reserveQuote, err := pair.Reserves(base, quote)
	if err != nil {
		return nil, err
	}
	root, err := mgr.Commit(1)
	if err != nil {
		return nil, err
	}
	return &Result{
		Scenario:   sc.Name,
		Strategy:   strat.Name(),
		Address:    strat.Address(),
		Settlement: settlement,
		Workers:    engine.Workers(),
		Reserves:   Reserves{Base: reserveBase.Dec(), Quote: reserveQuote.Dec()},
		StateRoot:  root,
		Archived:   archive.Len(),
	}, nil
}

func (sc *Scenario) handOver(ledger *token.Ledger, lpToken, base, position, worker, target common.Address) error {
	lp := strings.TrimSpace(sc.Custody.LP)
	var lpAmount *uint256.Int
	if strings.EqualFold(lp, "all") {
		held, err := ledger.BalanceOf(lpToken, position)
		if err != nil {
			return err
		}
		lpAmount = held
	} else {
		amount, err := sc.amount("custody.lp", lp)
		if err != nil {
			return err
		}
		lpAmount = amount
	}
	if err := ledger.Transfer(lpToken, position, target, lpAmount); err != nil {
		return fmt.Errorf("scenario: custody lp: %w", err)
	}

	baseAmount, err := sc.amount("custody.base", sc.Custody.Base)
	if err != nil {
		return err
	}
	if err := ledger.Mint(base, worker, baseAmount); err != nil {
		return err
	}
	return ledger.Transfer(base, worker, target, baseAmount)
}
