package events

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/rlp"

	"vaultstrat/core/types"
	"vaultstrat/storage"
)

var (
	errNilStore      = errors.New("events: archive store not configured")
	errEventNotFound = errors.New("events: archived event not found")
)

var (
	archiveHeadKey   = []byte("events/head")
	archiveRecordKey = []byte("events/record/")
)

type storedAttribute struct {
	Key   string
	Value string
}

type storedEvent struct {
	Type       string
	Attributes []storedAttribute
}

// Archive is an Emitter that appends every event to a raw key space of the
// backing database. Records are numbered from zero in emission order and
// survive restarts of a persistent store.
type Archive struct {
	mu    sync.Mutex
	store storage.Database
	next  uint64
	err   error
}

// OpenArchive binds an archive to store, resuming after the last record.
func OpenArchive(store storage.Database) (*Archive, error) {
	if store == nil {
		return nil, errNilStore
	}
	archive := &Archive{store: store}
	head, err := store.Get(archiveHeadKey)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return nil, err
	default:
		if len(head) != 8 {
			return nil, fmt.Errorf("events: corrupt archive head (%d bytes)", len(head))
		}
		archive.next = binary.BigEndian.Uint64(head)
	}
	return archive, nil
}

func recordKey(seq uint64) []byte {
	key := make([]byte, len(archiveRecordKey)+8)
	copy(key, archiveRecordKey)
	binary.BigEndian.PutUint64(key[len(archiveRecordKey):], seq)
	return key
}

// Emit implements the Emitter interface. Emitters cannot fail, so the first
// write error is retained and reported by Err.
func (a *Archive) Emit(evt Event) {
	rendered := Render(evt)
	if rendered == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return
	}
	if err := a.append(rendered); err != nil {
		a.err = err
	}
}

func (a *Archive) append(evt *types.Event) error {
	record := storedEvent{Type: evt.Type}
	for _, key := range evt.Keys() {
		record.Attributes = append(record.Attributes, storedAttribute{Key: key, Value: evt.Attributes[key]})
	}
	encoded, err := rlp.EncodeToBytes(&record)
	if err != nil {
		return err
	}
	if err := a.store.Put(recordKey(a.next), encoded); err != nil {
		return err
	}
	head := make([]byte, 8)
	binary.BigEndian.PutUint64(head, a.next+1)
	if err := a.store.Put(archiveHeadKey, head); err != nil {
		return err
	}
	a.next++
	return nil
}

// Len returns the number of archived events.
func (a *Archive) Len() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.next
}

// Err returns the first error encountered while archiving.
func (a *Archive) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

// Load returns the event archived under seq.
func (a *Archive) Load(seq uint64) (*types.Event, error) {
	data, err := a.store.Get(recordKey(seq))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", errEventNotFound, seq)
	}
	if err != nil {
		return nil, err
	}
	var record storedEvent
	if err := rlp.DecodeBytes(data, &record); err != nil {
		return nil, err
	}
	evt := &types.Event{Type: record.Type, Attributes: make(map[string]string, len(record.Attributes))}
	for _, attr := range record.Attributes {
		evt.Attributes[attr.Key] = attr.Value
	}
	return evt, nil
}
