package spreadsheet

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func ck(sheet string, col, row uint32) CellKey {
	return CellKey{Sheet: sheet, Col: col, Row: row}
}

func TestGraphReplaceOutgoingMaintainsReverseIndex(t *testing.T) {
	g := NewGraph()
	a, b, c := ck("s", 1, 1), ck("s", 2, 1), ck("s", 3, 1)
	g.ReplaceOutgoing(a, map[CellKey]struct{}{b: {}, c: {}})
	require.Contains(t, g.Dependencies(a), b)
	require.Contains(t, g.Dependencies(a), c)
	require.Contains(t, g.Dependents(b), a)
	require.Contains(t, g.Dependents(c), a)

	g.ReplaceOutgoing(a, map[CellKey]struct{}{b: {}})
	require.NotContains(t, g.Dependencies(a), c)
	require.NotContains(t, g.Dependents(c), a)
	require.Contains(t, g.Dependents(b), a)
}

func TestGraphHasSelfEdge(t *testing.T) {
	g := NewGraph()
	a := ck("s", 1, 1)
	g.ReplaceOutgoing(a, map[CellKey]struct{}{a: {}})
	require.True(t, g.HasSelfEdge(a))
}

func TestGraphRemoveNodeClearsBothDirections(t *testing.T) {
	g := NewGraph()
	a, b := ck("s", 1, 1), ck("s", 2, 1)
	g.addEdge(a, b)
	g.RemoveNode(b)
	require.False(t, g.HasNode(b))
	require.NotContains(t, g.Dependencies(a), b)
}

func TestGraphReachableFromFollowsDependents(t *testing.T) {
	g := NewGraph()
	a, b, c, d := ck("s", 1, 1), ck("s", 1, 2), ck("s", 1, 3), ck("s", 1, 4)
	g.addEdge(b, a) // b depends on a
	g.addEdge(c, b) // c depends on b
	g.addEdge(d, d) // unrelated self-loop, not reachable from a

	reach := g.ReachableFrom(a)
	require.Contains(t, reach, b)
	require.Contains(t, reach, c)
	require.NotContains(t, reach, d)
}

func TestGraphSubgraphInducedByOnlyKeepsInternalEdges(t *testing.T) {
	g := NewGraph()
	a, b, c := ck("s", 1, 1), ck("s", 1, 2), ck("s", 1, 3)
	g.addEdge(a, b)
	g.addEdge(b, c)
	sub := g.SubgraphInducedBy(map[CellKey]struct{}{a: {}, b: {}})
	require.Contains(t, sub.Dependencies(a), b)
	require.NotContains(t, sub.Dependencies(b), c)
	require.False(t, sub.HasNode(c))
}

func TestStronglyConnectedComponentsDetectsCycle(t *testing.T) {
	g := NewGraph()
	a, b, c := ck("s", 1, 1), ck("s", 1, 2), ck("s", 1, 3)
	g.addEdge(a, b)
	g.addEdge(b, c)
	g.addEdge(c, a)

	sccs := g.StronglyConnectedComponents()
	var cyclic []CellKey
	for _, comp := range sccs {
		if len(comp) > 1 {
			cyclic = comp
		}
	}
	require.Len(t, cyclic, 3)
	require.ElementsMatch(t, []CellKey{a, b, c}, cyclic)
}

func TestStronglyConnectedComponentsAcyclicAreSingletons(t *testing.T) {
	g := NewGraph()
	a, b := ck("s", 1, 1), ck("s", 1, 2)
	g.addEdge(a, b)
	sccs := g.StronglyConnectedComponents()
	for _, comp := range sccs {
		require.Len(t, comp, 1)
	}
}

func TestStronglyConnectedComponentsSelfLoopIsItsOwnCycle(t *testing.T) {
	g := NewGraph()
	a := ck("s", 1, 1)
	g.addEdge(a, a)
	sccs := g.StronglyConnectedComponents()
	require.Len(t, sccs, 1)
	require.Len(t, sccs[0], 1)
	require.True(t, g.HasSelfEdge(a))
}

func TestTopologicalOrderRespectsDependencies(t *testing.T) {
	g := NewGraph()
	a, b, c := ck("s", 1, 1), ck("s", 1, 2), ck("s", 1, 3)
	g.addEdge(b, a) // b depends on a
	g.addEdge(c, b) // c depends on b

	order := g.TopologicalOrder(map[CellKey]struct{}{a: {}, b: {}, c: {}})
	pos := make(map[CellKey]int)
	for i, n := range order {
		pos[n] = i
	}
	require.Less(t, pos[a], pos[b])
	require.Less(t, pos[b], pos[c])
}

func TestGraphRenameSheetKeyRewritesBothEndpoints(t *testing.T) {
	g := NewGraph()
	a, b := ck("old", 1, 1), ck("old", 1, 2)
	g.addEdge(a, b)
	g.RenameSheetKey("old", "new")

	na, nb := ck("new", 1, 1), ck("new", 1, 2)
	require.True(t, g.HasNode(na))
	require.Contains(t, g.Dependencies(na), nb)
	require.Contains(t, g.Dependents(nb), na)
	require.False(t, g.HasNode(a))
}
