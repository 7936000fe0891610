package keyedmap

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStoreLoadDelete(t *testing.T) {
	m := New[string, int]()
	_, ok := m.Load("a")
	require.False(t, ok)

	m.Store("a", 1)
	v, ok := m.Load("a")
	require.True(t, ok)
	require.Equal(t, 1, v)

	require.True(t, m.Delete("a"))
	_, ok = m.Load("a")
	require.False(t, ok)
}

func TestUpdateInsertsAndDeletes(t *testing.T) {
	m := New[string, int]()
	m.Update("a", func(v int, ok bool) (int, bool) {
		require.False(t, ok)
		return 5, true
	})
	v, ok := m.Load("a")
	require.True(t, ok)
	require.Equal(t, 5, v)

	m.Update("a", func(v int, ok bool) (int, bool) {
		require.True(t, ok)
		require.Equal(t, 5, v)
		return 0, false
	})
	_, ok = m.Load("a")
	require.False(t, ok)
}

func TestConcurrentUpdatesOnDistinctKeysDoNotBlockEachOther(t *testing.T) {
	m := New[int, int]()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m.Update(i, func(v int, ok bool) (int, bool) { return i, true })
		}(i)
	}
	wg.Wait()
	for i := 0; i < 100; i++ {
		v, ok := m.Load(i)
		require.True(t, ok)
		require.Equal(t, i, v)
	}
}

func TestKeysSnapshot(t *testing.T) {
	m := New[string, int]()
	m.Store("a", 1)
	m.Store("b", 2)
	keys := m.Keys()
	require.ElementsMatch(t, []string{"a", "b"}, keys)
}
