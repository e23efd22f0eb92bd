package state

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"nftmarket/core/events"
	"nftmarket/storage"
)

type record struct {
	Name  string
	Value *big.Int
}

func TestKVRoundTripAfterCommit(t *testing.T) {
	db := storage.NewMemDB()
	m := NewManager(db)

	err := m.Atomic(func() error {
		return m.KVPut([]byte("rec"), &record{Name: "a", Value: big.NewInt(7)})
	})
	require.NoError(t, err)

	reopened := NewManager(db)
	var got record
	ok, err := reopened.KVGet([]byte("rec"), &got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "a", got.Name)
	require.Equal(t, int64(7), got.Value.Int64())
}

func TestAtomicRevertsOnError(t *testing.T) {
	db := storage.NewMemDB()
	m := NewManager(db)
	require.NoError(t, m.Atomic(func() error {
		return m.KVPut([]byte("counter"), uint64(1))
	}))

	boom := errors.New("boom")
	err := m.Atomic(func() error {
		if err := m.KVPut([]byte("counter"), uint64(2)); err != nil {
			return err
		}
		if err := m.KVPut([]byte("other"), uint64(9)); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var counter uint64
	ok, err := m.KVGet([]byte("counter"), &counter)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(1), counter)

	ok, err = m.KVGet([]byte("other"), nil)
	require.NoError(t, err)
	require.False(t, ok)
	require.Len(t, db.Keys(), 1)
}

func TestRevertToNestedSnapshot(t *testing.T) {
	m := NewManager(storage.NewMemDB())

	require.NoError(t, m.KVPut([]byte("k"), uint64(1)))
	snap := m.Snapshot()
	require.NoError(t, m.KVPut([]byte("k"), uint64(2)))
	require.NoError(t, m.KVDelete([]byte("k")))

	ok, err := m.KVGet([]byte("k"), nil)
	require.NoError(t, err)
	require.False(t, ok)

	m.RevertToSnapshot(snap)
	var v uint64
	ok, err = m.KVGet([]byte("k"), &v)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(1), v)
}

func TestKVAppendDeduplicates(t *testing.T) {
	m := NewManager(storage.NewMemDB())

	var empty [][]byte
	require.NoError(t, m.KVGetList([]byte("list"), &empty))
	require.NotNil(t, empty)
	require.Len(t, empty, 0)

	require.NoError(t, m.KVAppend([]byte("list"), []byte("a")))
	require.NoError(t, m.KVAppend([]byte("list"), []byte("b")))
	require.NoError(t, m.KVAppend([]byte("list"), []byte("a")))

	var list [][]byte
	require.NoError(t, m.KVGetList([]byte("list"), &list))
	require.Equal(t, [][]byte{[]byte("a"), []byte("b")}, list)
}

func TestAtomicRevertsOnPanic(t *testing.T) {
	m := NewManager(storage.NewMemDB())

	require.Panics(t, func() {
		_ = m.Atomic(func() error {
			_ = m.KVPut([]byte("k"), uint64(1))
			panic("unexpected")
		})
	})
	ok, err := m.KVGet([]byte("k"), nil)
	require.NoError(t, err)
	require.False(t, ok)
}

type recordingSink struct {
	types []string
}

func (r *recordingSink) Emit(evt events.Event) { r.types = append(r.types, evt.EventType()) }

type testEvent string

func (e testEvent) EventType() string { return string(e) }

func TestEventsDeliveredOnlyAfterCommit(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	sink := &recordingSink{}
	m.SetEmitter(sink)

	err := m.Atomic(func() error {
		m.Emit(testEvent("reverted"))
		return errors.New("fail")
	})
	require.Error(t, err)
	require.Empty(t, sink.types)

	require.NoError(t, m.Atomic(func() error {
		m.Emit(testEvent("first"))
		snap := m.Snapshot()
		m.Emit(testEvent("dropped"))
		m.RevertToSnapshot(snap)
		m.Emit(testEvent("second"))
		return nil
	}))
	require.Equal(t, []string{"first", "second"}, sink.types)
}
