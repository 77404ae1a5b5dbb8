package common

import (
	"errors"
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

func TestGuardHonoursPauseSet(t *testing.T) {
	pauses := NewPauseSet("strategy.partial_close")
	if err := Guard(pauses, "strategy.partial_close"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if err := Guard(pauses, "strategy.liquidate"); err != nil {
		t.Fatalf("unexpected error for unpaused module: %v", err)
	}
	pauses.SetPaused("strategy.partial_close", false)
	if err := Guard(pauses, "strategy.partial_close"); err != nil {
		t.Fatalf("unexpected error after unpause: %v", err)
	}
	if err := Guard(nil, "strategy.partial_close"); err != nil {
		t.Fatalf("nil view must not pause: %v", err)
	}
}

func TestWorkerSetBatchUpdates(t *testing.T) {
	w1 := ethcommon.HexToAddress("0x01")
	w2 := ethcommon.HexToAddress("0x02")
	w3 := ethcommon.HexToAddress("0x03")

	var set WorkerSet
	if set.IsWhitelisted(w1) {
		t.Fatalf("empty set reports membership")
	}
	set.Set([]ethcommon.Address{w2, w1, w2}, true)
	if !set.IsWhitelisted(w1) || !set.IsWhitelisted(w2) {
		t.Fatalf("expected both workers approved")
	}
	set.Set([]ethcommon.Address{w2, w3}, false)
	if set.IsWhitelisted(w2) || set.IsWhitelisted(w3) {
		t.Fatalf("expected w2 revoked and w3 absent")
	}
	set.Set(nil, false)
	list := set.List()
	if len(list) != 1 || list[0] != w1 {
		t.Fatalf("unexpected members %v", list)
	}
}

func TestPauseSetZeroValue(t *testing.T) {
	var pauses PauseSet
	if pauses.IsPaused("strategy.liquidate") {
		t.Fatalf("zero value reports a pause")
	}
	pauses.SetPaused("strategy.liquidate", false)
	pauses.SetPaused("strategy.liquidate", true)
	if err := Guard(&pauses, "strategy.liquidate"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
}
