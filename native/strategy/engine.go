package strategy

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"vaultstrat/core/events"
	"vaultstrat/native/amm"
	nativecommon "vaultstrat/native/common"
	"vaultstrat/observability/metrics"
)

// ModulePrefix namespaces strategy names in the pause view.
const ModulePrefix = "strategy."

// Address derives the deterministic account of a strategy instance.
func Address(name string, owner common.Address) common.Address {
	hash := ethcrypto.Keccak256([]byte(ModulePrefix+name), owner.Bytes())
	return common.BytesToAddress(hash[12:])
}

// Engine holds the state every strategy shares: the owner, the worker
// whitelist, the reentrancy flag and the collaborators used to move funds.
// Concrete strategies embed it and supply only their algorithm.
type Engine struct {
	name    string
	address common.Address
	tokens  Tokens
	journal Journal
	pauses  nativecommon.PauseView
	emitter events.Emitter
	logger  *slog.Logger
	metrics *metrics.StrategyMetrics

	ownerMu sync.RWMutex
	owner   common.Address
	workers nativecommon.WorkerSet

	inFlight atomic.Bool
}

func newEngine(name string, owner common.Address, tokens Tokens, journal Journal) *Engine {
	return &Engine{
		name:    name,
		address: Address(name, owner),
		tokens:  tokens,
		journal: journal,
		emitter: events.NoopEmitter{},
		logger:  slog.Default(),
		metrics: metrics.Strategy(),
		owner:   owner,
	}
}

// Name returns the strategy identifier used in events, metrics and pauses.
func (e *Engine) Name() string { return e.name }

// Address returns the account custodying funds during an execution.
func (e *Engine) Address() common.Address { return e.address }

// SetPauses configures the pause view consulted before every execution.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	e.logger = logger
}

// SetMetrics overrides the metrics sink. nil disables metrics.
func (e *Engine) SetMetrics(m *metrics.StrategyMetrics) { e.metrics = m }

func (e *Engine) Owner() common.Address {
	e.ownerMu.RLock()
	defer e.ownerMu.RUnlock()
	return e.owner
}

func (e *Engine) requireOwner(caller common.Address) error {
	if e.inFlight.Load() {
		return ErrReentrantCall
	}
	if caller != e.Owner() {
		return fmt.Errorf("%w: %s", ErrNotOwner, caller.Hex())
	}
	return nil
}

// TransferOwnership hands whitelist administration to newOwner. The strategy
// address stays the one derived at construction.
func (e *Engine) TransferOwnership(caller, newOwner common.Address) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if newOwner == (common.Address{}) {
		return ErrZeroOwner
	}
	e.ownerMu.Lock()
	e.owner = newOwner
	e.ownerMu.Unlock()
	e.logger.Info("strategy ownership transferred",
		slog.String("strategy", e.name),
		slog.String("owner", newOwner.Hex()))
	return nil
}

// SetWorkersOk approves (ok) or revokes every worker in workers. Only the owner
// may call it.
func (e *Engine) SetWorkersOk(caller common.Address, workers []common.Address, ok bool) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	e.workers.Set(workers, ok)
	e.metrics.SetWhitelisted(e.name, len(e.workers.List()))
	e.logger.Info("strategy workers updated",
		slog.String("strategy", e.name),
		slog.Int("count", len(workers)),
		slog.Bool("ok", ok))
	return nil
}

func (e *Engine) IsWhitelisted(worker common.Address) bool {
	return e.workers.IsWhitelisted(worker)
}

// Workers lists the approved workers.
func (e *Engine) Workers() []common.Address {
	return e.workers.List()
}

// run executes body as one unit of work on behalf of worker. Guards run in
// order (reentrancy, pause, whitelist) before body; any error from body rolls
// the journal back and a success emits exactly one settlement event.
func (e *Engine) run(worker Worker, body func() (*Settlement, error)) (*Settlement, error) {
	if !e.inFlight.CompareAndSwap(false, true) {
		return nil, ErrReentrantCall
	}
	defer e.inFlight.Store(false)

	start := time.Now()
	settlement, err := e.guarded(worker, body)
	e.metrics.ObserveExecution(e.name, outcome(err), time.Since(start))
	if err != nil {
		attrs := []any{slog.String("strategy", e.name), slog.String("error", err.Error())}
		if worker != nil {
			attrs = append(attrs, slog.String("worker", worker.Address().Hex()))
		}
		e.logger.Warn("strategy execution failed", attrs...)
		return nil, err
	}
	e.metrics.ObserveSettlement(e.name, settlement.LPLiquidated, settlement.DebtRepaid)
	e.emitter.Emit(settlement.event(e.address))
	e.logger.Info("strategy executed",
		slog.String("strategy", e.name),
		slog.String("worker", settlement.Worker.Hex()),
		slog.String("position", settlement.Position.Hex()),
		slog.String("lpLiquidated", settlement.LPLiquidated.Dec()),
		slog.String("debtRepaid", settlement.DebtRepaid.Dec()))
	return settlement, nil
}

func (e *Engine) guarded(worker Worker, body func() (*Settlement, error)) (*Settlement, error) {
	if err := nativecommon.Guard(e.pauses, ModulePrefix+e.name); err != nil {
		return nil, err
	}
	if worker == nil {
		return nil, errNilWorker
	}
	if !e.IsWhitelisted(worker.Address()) {
		return nil, fmt.Errorf("%w: %s", ErrUnauthorizedCaller, worker.Address().Hex())
	}
	if e.tokens == nil {
		return nil, errNilTokens
	}
	if e.journal == nil {
		return nil, errNilJournal
	}
	if worker.Pool() == nil {
		return nil, errNilPool
	}
	snapshot := e.journal.Snapshot()
	settlement, err := body()
	if err != nil {
		if revertErr := e.journal.RevertToSnapshot(snapshot); revertErr != nil {
			return nil, errors.Join(err, revertErr)
		}
		return nil, err
	}
	e.journal.DiscardSnapshot(snapshot)
	return settlement, nil
}

// returnLeftover sends whatever the strategy still holds of token back to the
// worker.
func (e *Engine) returnLeftover(token, worker common.Address) (*uint256.Int, error) {
	balance, err := e.tokens.BalanceOf(token, e.address)
	if err != nil {
		return nil, err
	}
	if err := e.tokens.Transfer(token, e.address, worker, balance); err != nil {
		return nil, err
	}
	return balance, nil
}

func (s *Settlement) event(address common.Address) events.StrategySettled {
	return events.StrategySettled{
		Strategy:     s.Strategy,
		Address:      address,
		Worker:       s.Worker,
		Position:     s.Position,
		BaseAsset:    s.BaseAsset,
		QuoteAsset:   s.QuoteAsset,
		LPLiquidated: s.LPLiquidated,
		DebtRepaid:   s.DebtRepaid,
		Received:     s.Received,
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrReentrantCall):
		return "reentrant"
	case errors.Is(err, nativecommon.ErrModulePaused):
		return "paused"
	case errors.Is(err, ErrUnauthorizedCaller):
		return "unauthorized"
	case errors.Is(err, ErrDecode):
		return "decode"
	case errors.Is(err, ErrPoolStateMismatch):
		return "pool_mismatch"
	case errors.Is(err, ErrDebtExceedsProceeds):
		return "debt_exceeds_proceeds"
	case errors.Is(err, ErrInsufficientProceeds),
		errors.Is(err, ErrInsufficientLPReceived),
		errors.Is(err, ErrInsufficientQuoteReceived):
		return "slippage"
	case errors.Is(err, amm.ErrArithmeticOverflow), errors.Is(err, amm.ErrArithmeticUnderflow):
		return "arithmetic"
	default:
		return "error"
	}
}
