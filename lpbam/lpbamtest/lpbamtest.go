// Package lpbamtest holds helpers shared by the peripheral builder tests.
package lpbamtest

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"lpbam-go/dma"
	"lpbam-go/lpbam"
)

const (
	// ArenaBase is where test arenas live.
	ArenaBase = 0x2800_0000
	// BufferBase is a RAM address outside any test arena.
	BufferBase = 0x2000_1000
)

// Arena returns an empty 4 KiB arena at ArenaBase.
func Arena(t testing.TB) *dma.Arena {
	t.Helper()
	a, err := dma.NewArena(ArenaBase, 4096)
	require.NoError(t, err)
	return a
}

// Build builds level of op into a fresh arena and returns the queue and the
// node images in queue order.
func Build(t testing.TB, op lpbam.Operation, level lpbam.Level, opts ...lpbam.Option) (*dma.Queue, []dma.Node) {
	t.Helper()
	a := Arena(t)
	q, err := dma.NewQueue(a, dma.LinearNode)
	require.NoError(t, err)
	b, err := lpbam.NewBundle(a, dma.LinearNode, op)
	require.NoError(t, err)
	require.NoError(t, lpbam.Build(q, b, op, level, opts...))
	return q, Nodes(q)
}

// Nodes returns the images of q's nodes in link order.
func Nodes(q *dma.Queue) []dma.Node {
	var out []dma.Node
	for _, r := range q.Nodes() {
		out = append(out, q.Arena().Node(r))
	}
	return out
}

// Words returns the register values node n copies, read from the arena.
func Words(t testing.TB, a *dma.Arena, n dma.Node) []uint32 {
	t.Helper()
	tr := dma.DecodeTransfer(n)
	var out []uint32
	for addr := tr.Src; addr < tr.Src+tr.Size; addr += 4 {
		v, ok := a.Read32(addr)
		require.True(t, ok, "register word at %#x outside the arena", addr)
		out = append(out, v)
	}
	return out
}

// RequireFullEqualsConfigData checks that a Full build of op leaves the same
// arena bytes as a Config build followed by a Data build.
func RequireFullEqualsConfigData(t testing.TB, op lpbam.Operation) {
	t.Helper()
	full := Arena(t)
	qf, err := dma.NewQueue(full, dma.LinearNode)
	require.NoError(t, err)
	bf, err := lpbam.NewBundle(full, dma.LinearNode, op)
	require.NoError(t, err)
	require.NoError(t, lpbam.Build(qf, bf, op, lpbam.Full))

	split := Arena(t)
	qs, err := dma.NewQueue(split, dma.LinearNode)
	require.NoError(t, err)
	bs, err := lpbam.NewBundle(split, dma.LinearNode, op)
	require.NoError(t, err)
	require.NoError(t, lpbam.Build(qs, bs, op, lpbam.Config))
	require.NoError(t, lpbam.Build(qs, bs, op, lpbam.Data))

	require.Equal(t, qf.Len(), qs.Len())
	require.True(t, bytes.Equal(full.Bytes(), split.Bytes()), "full build differs from config+data")
}
