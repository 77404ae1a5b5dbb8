package state

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"vaultstrat/storage/trie"
)

var (
	errEmptyKey         = errors.New("state: key must not be empty")
	errAmountOverflow   = errors.New("state: stored amount exceeds 256 bits")
	errUnknownSnapshot  = errors.New("state: unknown snapshot")
	errPendingSnapshots = errors.New("state: commit with open snapshots")
)

// Manager owns the token balances, token supplies and auxiliary records used
// by pools and strategies. Every mutation lands in an in-memory trie; callers
// bracket a unit of work with Snapshot and either RevertToSnapshot or
// DiscardSnapshot.
//
// Manager is not safe for concurrent use. Executions are serialised by the
// host.
type Manager struct {
	trie      *trie.Trie
	snapshots []*trie.Trie
}

// NewManager creates a state manager operating on the provided trie.
func NewManager(tr *trie.Trie) *Manager {
	return &Manager{trie: tr}
}

var (
	balancePrefix = []byte("balance:")
	supplyPrefix  = []byte("supply:")
)

func balanceKey(token, holder common.Address) []byte {
	buf := make([]byte, 0, len(balancePrefix)+2*common.AddressLength)
	buf = append(buf, balancePrefix...)
	buf = append(buf, token.Bytes()...)
	buf = append(buf, holder.Bytes()...)
	return ethcrypto.Keccak256(buf)
}

func supplyKey(token common.Address) []byte {
	buf := make([]byte, 0, len(supplyPrefix)+common.AddressLength)
	buf = append(buf, supplyPrefix...)
	buf = append(buf, token.Bytes()...)
	return ethcrypto.Keccak256(buf)
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

// Balance returns the amount of token held by holder. Unknown balances are
// zero.
func (m *Manager) Balance(token, holder common.Address) (*uint256.Int, error) {
	return m.readAmount(balanceKey(token, holder))
}

// SetBalance overwrites the holder's balance of token.
func (m *Manager) SetBalance(token, holder common.Address, amount *uint256.Int) error {
	return m.writeAmount(balanceKey(token, holder), amount)
}

// Supply returns the tracked total supply of token.
func (m *Manager) Supply(token common.Address) (*uint256.Int, error) {
	return m.readAmount(supplyKey(token))
}

// SetSupply overwrites the tracked total supply of token.
func (m *Manager) SetSupply(token common.Address, amount *uint256.Int) error {
	return m.writeAmount(supplyKey(token), amount)
}

func (m *Manager) readAmount(key []byte) (*uint256.Int, error) {
	data, err := m.trie.Get(key)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return new(uint256.Int), nil
	}
	decoded := new(big.Int)
	if err := rlp.DecodeBytes(data, decoded); err != nil {
		return nil, err
	}
	amount, overflow := uint256.FromBig(decoded)
	if overflow {
		return nil, errAmountOverflow
	}
	return amount, nil
}

func (m *Manager) writeAmount(key []byte, amount *uint256.Int) error {
	// Zero amounts are deleted so equal ledgers hash to equal roots.
	if amount == nil || amount.IsZero() {
		return m.trie.Update(key, nil)
	}
	encoded, err := rlp.EncodeToBytes(amount.ToBig())
	if err != nil {
		return err
	}
	return m.trie.Update(key, encoded)
}

// KVPut stores the provided value under the supplied key using RLP encoding.
// The key is automatically hashed with keccak256 to match the requirements of
// the underlying trie implementation.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return errEmptyKey
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.trie.Update(kvKey(key), encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, errEmptyKey
	}
	data, err := m.trie.Get(kvKey(key))
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// Snapshot captures the current state and returns an identifier that can be
// passed to RevertToSnapshot or DiscardSnapshot. Snapshots nest.
func (m *Manager) Snapshot() int {
	m.snapshots = append(m.snapshots, m.trie.Copy())
	return len(m.snapshots) - 1
}

// RevertToSnapshot restores the state captured by id, dropping it and every
// snapshot taken after it.
func (m *Manager) RevertToSnapshot(id int) error {
	if id < 0 || id >= len(m.snapshots) {
		return fmt.Errorf("%w: %d", errUnknownSnapshot, id)
	}
	m.trie = m.snapshots[id]
	m.snapshots = m.snapshots[:id]
	return nil
}

// DiscardSnapshot keeps the current state and forgets snapshot id together with
// every snapshot taken after it.
func (m *Manager) DiscardSnapshot(id int) {
	if id < 0 || id >= len(m.snapshots) {
		return
	}
	m.snapshots = m.snapshots[:id]
}

// PendingRoot returns the root of the trie including in-memory mutations.
func (m *Manager) PendingRoot() common.Hash {
	return m.trie.Hash()
}

// Commit persists the pending state and returns the new root.
func (m *Manager) Commit(height uint64) (common.Hash, error) {
	if len(m.snapshots) > 0 {
		return common.Hash{}, errPendingSnapshots
	}
	return m.trie.Commit(height)
}
