package events

import (
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"vaultstrat/storage"
)

type captureEmitter struct {
	events []Event
}

func (c *captureEmitter) Emit(evt Event) { c.events = append(c.events, evt) }

type bareEvent struct{}

func (bareEvent) EventType() string { return "bare" }

func sampleSettlement() StrategySettled {
	return StrategySettled{
		Strategy:     "partial_close_liquidate",
		Address:      common.HexToAddress("0x01"),
		Worker:       common.HexToAddress("0x02"),
		Position:     common.HexToAddress("0x03"),
		BaseAsset:    common.HexToAddress("0xb1"),
		QuoteAsset:   common.HexToAddress("0xf1"),
		LPLiquidated: uint256.MustFromDecimal("316227766016837933"),
		DebtRepaid:   uint256.NewInt(0),
		Received:     uint256.MustFromDecimal("1499374217772215269"),
	}
}

func TestStrategySettledAttributes(t *testing.T) {
	evt := sampleSettlement().Event()
	require.Equal(t, TypeStrategySettled, evt.Type)
	require.Equal(t, "316227766016837933", evt.Attributes["lpLiquidated"])
	require.Equal(t, "0", evt.Attributes["debtRepaid"])
	require.Equal(t, common.HexToAddress("0xb1").Hex(), evt.Attributes["baseAsset"])

	empty := StrategySettled{}.Event()
	require.Equal(t, "0", empty.Attributes["received"])
}

func TestArchivePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events")
	db, err := storage.NewLevelDB(path)
	require.NoError(t, err)

	archive, err := OpenArchive(db)
	require.NoError(t, err)
	archive.Emit(sampleSettlement())
	archive.Emit(bareEvent{})
	require.NoError(t, archive.Err())
	require.Equal(t, uint64(2), archive.Len())
	db.Close()

	db, err = storage.NewLevelDB(path)
	require.NoError(t, err)
	defer db.Close()
	reopened, err := OpenArchive(db)
	require.NoError(t, err)
	require.Equal(t, uint64(2), reopened.Len())

	first, err := reopened.Load(0)
	require.NoError(t, err)
	require.Equal(t, sampleSettlement().Event(), first)

	second, err := reopened.Load(1)
	require.NoError(t, err)
	require.Equal(t, "bare", second.Type)
	require.Empty(t, second.Attributes)

	_, err = reopened.Load(2)
	require.ErrorIs(t, err, errEventNotFound)
}

func TestMultiEmitterFansOut(t *testing.T) {
	a, b := &captureEmitter{}, &captureEmitter{}
	MultiEmitter{a, nil, b}.Emit(sampleSettlement())
	require.Len(t, a.events, 1)
	require.Len(t, b.events, 1)
	require.Nil(t, Render(nil))
}
