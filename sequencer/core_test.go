package sequencer

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/trace2e/t2ecore/naming"
	"github.com/trace2e/t2ecore/t2eerrors"
)

func TestReserveAndRelease(t *testing.T) {
	s := New(nil)
	a := naming.NewFile("/tmp/a")
	b := naming.NewFile("/tmp/b")

	require.NoError(t, s.ReserveFlow(a, b))
	require.False(t, s.IsWritable(b))
	require.False(t, s.IsWritable(a))

	released := s.ReleaseFlow(b)
	require.True(t, released.DestinationBecameIdle)
	require.True(t, released.SourceBecameIdle)
	require.True(t, s.IsWritable(a))
	require.True(t, s.IsWritable(b))
}

func TestMultipleReadersShareOneSource(t *testing.T) {
	s := New(nil)
	src := naming.NewFile("/tmp/a")
	d1 := naming.NewFile("/tmp/b")
	d2 := naming.NewFile("/tmp/c")

	require.NoError(t, s.ReserveFlow(src, d1))
	require.NoError(t, s.ReserveFlow(src, d2))

	r1 := s.ReleaseFlow(d1)
	require.True(t, r1.DestinationBecameIdle)
	require.False(t, r1.SourceBecameIdle, "source still referenced by d2")

	r2 := s.ReleaseFlow(d2)
	require.True(t, r2.DestinationBecameIdle)
	require.True(t, r2.SourceBecameIdle)
}

func TestDestinationWithExistingWriterRejected(t *testing.T) {
	s := New(nil)
	src1 := naming.NewFile("/tmp/a")
	src2 := naming.NewFile("/tmp/b")
	dst := naming.NewFile("/tmp/c")

	require.NoError(t, s.ReserveFlow(src1, dst))
	err := s.ReserveFlow(src2, dst)
	require.True(t, t2eerrors.IsUnavailableDestination(err))
}

func TestDestinationWithExistingReaderRejected(t *testing.T) {
	s := New(nil)
	src := naming.NewFile("/tmp/a")
	other := naming.NewFile("/tmp/b")
	dst := naming.NewFile("/tmp/c") // will be reserved as a source below

	require.NoError(t, s.ReserveFlow(dst, other)) // dst now a reader-referenced source
	err := s.ReserveFlow(src, dst)
	require.True(t, t2eerrors.IsUnavailableDestination(err))
}

func TestSourceWithExistingWriterRejected(t *testing.T) {
	s := New(nil)
	a := naming.NewFile("/tmp/a")
	b := naming.NewFile("/tmp/b")
	c := naming.NewFile("/tmp/c")

	require.NoError(t, s.ReserveFlow(a, b)) // b is now a writer-locked destination
	err := s.ReserveFlow(b, c)               // b used as source while it's a destination key
	require.True(t, t2eerrors.IsUnavailableSource(err))
}

func TestBothUnavailable(t *testing.T) {
	s := New(nil)
	a := naming.NewFile("/tmp/a")
	b := naming.NewFile("/tmp/b")
	c := naming.NewFile("/tmp/c")
	d := naming.NewFile("/tmp/d")

	require.NoError(t, s.ReserveFlow(a, b)) // b writer-locked
	require.NoError(t, s.ReserveFlow(c, d)) // d writer-locked, c reader-locked-as-source

	err := s.ReserveFlow(d, b)
	require.True(t, t2eerrors.IsUnavailableSourceAndDestination(err))
}

func TestReleaseOfUnknownDestinationIsNoop(t *testing.T) {
	s := New(nil)
	released := s.ReleaseFlow(naming.NewFile("/tmp/never-reserved"))
	require.False(t, released.SourceBecameIdle)
	require.False(t, released.DestinationBecameIdle)
}

func TestConcurrentReserveReleaseNoDeadlock(t *testing.T) {
	s := New(nil)
	files := make([]naming.Resource, 20)
	for i := range files {
		files[i] = naming.NewFile(string(rune('a' + i)))
	}

	var wg sync.WaitGroup
	for p := 0; p < 10; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				src := files[i%len(files)]
				dst := files[(i+1)%len(files)]
				if err := s.ReserveFlow(src, dst); err == nil {
					s.ReleaseFlow(dst)
				}
			}
		}(p)
	}
	wg.Wait()

	for _, f := range files {
		require.True(t, s.IsWritable(f))
	}
}
