package vm

import (
	"testing"

	"github.com/deepnoodle-ai/regvm/gc"
	"github.com/deepnoodle-ai/regvm/value"
	"github.com/stretchr/testify/require"
)

func newStack(t *testing.T, heap *gc.Region) *Stack {
	t.Helper()
	require.NoError(t, heap.RegisterThread())
	t.Cleanup(heap.UnregisterThread)
	s, err := NewStack(heap)
	require.NoError(t, err)
	t.Cleanup(s.Release)
	return s
}

func TestStackFramesAreAligned(t *testing.T) {
	heap := newHeap()
	s := newStack(t, heap)
	require.NoError(t, s.ReserveLocals(3))
	require.Equal(t, FrameSize, s.LocalArea())
	require.Equal(t, FrameSize, s.Base())

	f1, err := s.Push()
	require.NoError(t, err)
	f2, err := s.Push()
	require.NoError(t, err)
	require.Equal(t, 2, s.Frames())
	require.Equal(t, 2*FrameSize, f2.Base())
	require.Equal(t, 0, s.Base()%FrameSize)

	n, err := s.Len()
	require.NoError(t, err)
	require.Equal(t, f2.Base()+FrameSize, n)

	require.NoError(t, f2.Pop())
	require.Equal(t, f1.Base(), s.Base())
	require.NoError(t, f1.Pop())
	require.Equal(t, s.LocalArea(), s.Base())
	require.Nil(t, s.Top())
}

func TestStackFrameRegisters(t *testing.T) {
	heap := newHeap()
	s := newStack(t, heap)
	parent, err := s.Push()
	require.NoError(t, err)

	g := gc.IssueGuard(heap)
	v, err := parent.Get(g, 255)
	require.NoError(t, err)
	require.True(t, v.IsEmpty())
	require.NoError(t, parent.Set(g, 7, value.Int(7)))
	_, err = parent.Get(g, FrameSize)
	require.Error(t, err)
	g.Retire()

	child, err := s.Push()
	require.NoError(t, err)
	g = gc.IssueGuard(heap)
	v, err = child.Get(g, 7)
	require.NoError(t, err)
	require.True(t, v.IsEmpty(), "child frames start empty")
	require.NoError(t, child.Pop())

	v, err = parent.Get(g, 7)
	require.NoError(t, err)
	require.Equal(t, value.Int(7), v)
}

func TestSuspendedFrameAccessPanics(t *testing.T) {
	heap := newHeap()
	s := newStack(t, heap)
	parent, err := s.Push()
	require.NoError(t, err)
	child, err := s.Push()
	require.NoError(t, err)

	g := gc.IssueGuard(heap)
	require.Panics(t, func() { _, _ = parent.Get(g, 0) })
	require.Panics(t, func() { _ = parent.Set(g, 0, value.Int(1)) })
	require.Panics(t, func() { _ = parent.Pop() })

	require.NoError(t, child.Pop())
	require.Panics(t, func() { _, _ = child.Get(g, 0) })
	require.Panics(t, func() { _ = child.Pop() })
	require.NotPanics(t, func() { _, _ = parent.Get(g, 0) })
}

func TestReserveLocalsWithOpenFrame(t *testing.T) {
	s := newStack(t, newHeap())
	_, err := s.Push()
	require.NoError(t, err)
	require.Panics(t, func() { _ = s.ReserveLocals(1) })
}

func TestStackHandlesKeepObjectsAlive(t *testing.T) {
	heap := newHeap()
	s := newStack(t, heap)
	f, err := s.Push()
	require.NoError(t, err)

	kept, err := gc.AllocateSingle(heap, int64(42))
	require.NoError(t, err)
	dropped, err := gc.AllocateSingle(heap, int64(13))
	require.NoError(t, err)
	require.NoError(t, gc.WithGuard(heap, func(g *gc.Guard) error {
		return f.Set(g, 0, value.Ref(kept.Handle()))
	}))

	heap.Collect()
	require.True(t, heap.Live(kept.Handle()))
	require.False(t, heap.Live(dropped.Handle()))

	g := gc.IssueGuard(heap)
	p, err := kept.Get(g)
	require.NoError(t, err)
	require.Equal(t, int64(42), p.Load())
}
