package state

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"nftmarket/core/events"
	"nftmarket/storage"
)

var errNilDatabase = errors.New("state: database not configured")

type dirtyEntry struct {
	value   []byte
	deleted bool
}

type journalEntry struct {
	key     string
	prev    dirtyEntry
	existed bool
}

type revision struct {
	id         int
	journalLen int
	eventLen   int
}

// Manager provides RLP encoded key/value state on top of a storage backend.
// Writes and events are staged in a journal until Commit flushes them, so an
// in-flight transition can be reverted without touching disk or subscribers.
type Manager struct {
	db   storage.Database
	sink events.Emitter

	// txMu serialises Atomic and View callers.
	txMu sync.Mutex

	mu        sync.RWMutex
	dirty     map[string]dirtyEntry
	journal   []journalEntry
	pending   events.Buffer
	revisions []revision
	nextRevID int
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{
		db:    db,
		sink:  events.NoopEmitter{},
		dirty: make(map[string]dirtyEntry),
	}
}

// SetEmitter configures where committed events are delivered. Passing nil
// resets the sink to a no-op implementation.
func (m *Manager) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		m.sink = events.NoopEmitter{}
		return
	}
	m.sink = emitter
}

// Emit stages an event alongside the pending writes. It is delivered to the
// configured sink only if the surrounding transition commits.
func (m *Manager) Emit(evt events.Event) {
	if m == nil || evt == nil {
		return
	}
	m.mu.Lock()
	m.pending.Emit(evt)
	m.mu.Unlock()
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

// Snapshot returns a revision identifier for the current journal position.
func (m *Manager) Snapshot() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextRevID
	m.nextRevID++
	m.revisions = append(m.revisions, revision{id: id, journalLen: len(m.journal), eventLen: m.pending.Len()})
	return id
}

// RevertToSnapshot undoes every staged write and event recorded after the
// snapshot was taken. Unknown revisions are ignored.
func (m *Manager) RevertToSnapshot(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := -1
	for i := len(m.revisions) - 1; i >= 0; i-- {
		if m.revisions[i].id == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	rev := m.revisions[idx]
	for i := len(m.journal) - 1; i >= rev.journalLen; i-- {
		entry := m.journal[i]
		if entry.existed {
			m.dirty[entry.key] = entry.prev
		} else {
			delete(m.dirty, entry.key)
		}
	}
	m.journal = m.journal[:rev.journalLen]
	m.pending.Truncate(rev.eventLen)
	m.revisions = m.revisions[:idx]
}

// Commit flushes the staged writes to the database atomically, clears the
// journal and then delivers the staged events.
func (m *Manager) Commit() error {
	if m == nil || m.db == nil {
		return errNilDatabase
	}
	m.mu.Lock()
	if len(m.dirty) > 0 {
		batch := m.db.NewBatch()
		for key, entry := range m.dirty {
			if entry.deleted {
				batch.Delete([]byte(key))
				continue
			}
			batch.Put([]byte(key), entry.value)
		}
		if err := batch.Write(); err != nil {
			m.mu.Unlock()
			return fmt.Errorf("state: commit: %w", err)
		}
	}
	m.dirty = make(map[string]dirtyEntry)
	m.journal = m.journal[:0]
	m.revisions = m.revisions[:0]
	committed := m.pending.Events()
	m.pending.Reset()
	sink := m.sink
	m.mu.Unlock()

	for _, evt := range committed {
		sink.Emit(evt)
	}
	return nil
}

// Discard drops every staged write and event.
func (m *Manager) Discard() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dirty = make(map[string]dirtyEntry)
	m.journal = m.journal[:0]
	m.revisions = m.revisions[:0]
	m.pending.Reset()
}

// Atomic runs fn as one all-or-nothing transition. Staged writes are committed
// when fn returns nil and discarded otherwise. Calls are serialised, and fn
// must not call Atomic or View itself.
func (m *Manager) Atomic(fn func() error) (err error) {
	if m == nil || m.db == nil {
		return errNilDatabase
	}
	m.txMu.Lock()
	defer m.txMu.Unlock()

	snap := m.Snapshot()
	defer func() {
		if r := recover(); r != nil {
			m.RevertToSnapshot(snap)
			panic(r)
		}
	}()
	if err = fn(); err != nil {
		m.RevertToSnapshot(snap)
		return err
	}
	if err = m.Commit(); err != nil {
		m.Discard()
		return err
	}
	return nil
}

// View runs fn against committed state while holding off concurrent
// transitions.
func (m *Manager) View(fn func() error) error {
	if m == nil || m.db == nil {
		return errNilDatabase
	}
	m.txMu.Lock()
	defer m.txMu.Unlock()
	return fn()
}

func (m *Manager) stage(hashed []byte, entry dirtyEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := string(hashed)
	prev, existed := m.dirty[key]
	m.journal = append(m.journal, journalEntry{key: key, prev: prev, existed: existed})
	m.dirty[key] = entry
}

func (m *Manager) read(hashed []byte) ([]byte, error) {
	m.mu.RLock()
	entry, ok := m.dirty[string(hashed)]
	m.mu.RUnlock()
	if ok {
		if entry.deleted {
			return nil, nil
		}
		return entry.value, nil
	}
	data, err := m.db.Get(hashed)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return data, err
}

// KVPut stores the provided value under the supplied key using RLP encoding.
// The key is automatically hashed with keccak256.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	if m == nil || m.db == nil {
		return errNilDatabase
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.stage(kvKey(key), dirtyEntry{value: encoded})
	return nil
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	if m == nil || m.db == nil {
		return false, errNilDatabase
	}
	data, err := m.read(kvKey(key))
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

// KVDelete removes the value stored under key.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	if m == nil || m.db == nil {
		return errNilDatabase
	}
	m.stage(kvKey(key), dirtyEntry{deleted: true})
	return nil
}

// KVAppend appends the provided value to the RLP-encoded byte slice list stored
// under the supplied key. Duplicate values are ignored to keep the index
// deterministic.
func (m *Manager) KVAppend(key []byte, value []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	if m == nil || m.db == nil {
		return errNilDatabase
	}
	hashed := kvKey(key)
	data, err := m.read(hashed)
	if err != nil {
		return err
	}
	var list [][]byte
	if len(data) > 0 {
		if err := rlp.DecodeBytes(data, &list); err != nil {
			return err
		}
	}
	for _, existing := range list {
		if bytes.Equal(existing, value) {
			return nil
		}
	}
	list = append(list, append([]byte(nil), value...))
	encoded, err := rlp.EncodeToBytes(list)
	if err != nil {
		return err
	}
	m.stage(hashed, dirtyEntry{value: encoded})
	return nil
}

// KVGetList retrieves an RLP-encoded slice stored under the provided key and
// decodes it into the supplied destination slice pointer. When no value is
// present the destination is initialised with an empty slice.
func (m *Manager) KVGetList(key []byte, out interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	if m == nil || m.db == nil {
		return errNilDatabase
	}
	data, err := m.read(kvKey(key))
	if err != nil {
		return err
	}
	if len(data) == 0 {
		val := reflect.ValueOf(out)
		if val.Kind() != reflect.Ptr || val.IsNil() {
			return fmt.Errorf("kv: destination must be a non-nil pointer")
		}
		elem := val.Elem()
		if elem.Kind() != reflect.Slice {
			return fmt.Errorf("kv: destination must point to a slice")
		}
		elem.Set(reflect.MakeSlice(elem.Type(), 0, 0))
		return nil
	}
	return rlp.DecodeBytes(data, out)
}
