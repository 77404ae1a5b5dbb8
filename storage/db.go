package storage

import (
	"errors"

	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/ethdb"
	ethleveldb "github.com/ethereum/go-ethereum/ethdb/leveldb"
	"github.com/ethereum/go-ethereum/triedb"
	"github.com/syndtr/goleveldb/leveldb"
)

// ErrNotFound is returned by Get when the key has never been written.
var ErrNotFound = errors.New("storage: key not found")

// Database is a generic interface for a key-value store.
// The same backend also serves the trie database holding strategy state, so a
// single handle covers both raw records and trie nodes.
type Database interface {
	Put(key []byte, value []byte) error
	Get(key []byte) ([]byte, error)
	Close() // A way to gracefully shut down the database connection.
	TrieDB() *triedb.Database
}

// --- In-Memory DB (for testing and dry runs) ---

type MemDB struct {
	disk   ethdb.Database
	trieDB *triedb.Database
}

func NewMemDB() *MemDB {
	disk := rawdb.NewMemoryDatabase()
	return &MemDB{
		disk:   disk,
		trieDB: triedb.NewDatabase(disk, nil),
	}
}

func (db *MemDB) Put(key []byte, value []byte) error {
	return db.disk.Put(key, value)
}

func (db *MemDB) Get(key []byte) ([]byte, error) {
	ok, err := db.disk.Has(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return db.disk.Get(key)
}

// TrieDB returns the trie node database layered over the memory store.
func (db *MemDB) TrieDB() *triedb.Database {
	return db.trieDB
}

// Close satisfies the Database interface for MemDB.
func (db *MemDB) Close() {
	db.trieDB.Close()
	db.disk.Close()
}

// --- Persistent DB ---

// LevelDB is a persistent key-value store using LevelDB.
type LevelDB struct {
	disk   ethdb.Database
	trieDB *triedb.Database
}

const (
	levelDBCacheMB = 16
	levelDBHandles = 16
)

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string) (*LevelDB, error) {
	kv, err := ethleveldb.New(path, levelDBCacheMB, levelDBHandles, "vaultstrat/db/", false)
	if err != nil {
		return nil, err
	}
	disk := rawdb.NewDatabase(kv)
	return &LevelDB{
		disk:   disk,
		trieDB: triedb.NewDatabase(disk, nil),
	}, nil
}

// Put inserts or updates a key-value pair.
func (ldb *LevelDB) Put(key []byte, value []byte) error {
	return ldb.disk.Put(key, value)
}

// Get retrieves a value for a given key.
func (ldb *LevelDB) Get(key []byte) ([]byte, error) {
	value, err := ldb.disk.Get(key)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	return value, err
}

// TrieDB returns the trie node database backed by the LevelDB handle.
func (ldb *LevelDB) TrieDB() *triedb.Database {
	return ldb.trieDB
}

// Close closes the database connection.
func (ldb *LevelDB) Close() {
	ldb.trieDB.Close()
	ldb.disk.Close()
}
