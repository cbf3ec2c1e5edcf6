package spreadsheet

// Graph is the dependency graph described in spec §4.3: forward edges
// u->v mean "u's formula reads v", with a reverse index maintained
// alongside for dependent lookups. Nodes may exist with no edges (a cell
// referenced by a formula but not itself populated, spec §3).
//
// Grounded on the teacher's DependencyGraph (CellPrecedents/
// CellDependents maps), but SCC/reachability here are iterative with an
// explicit stack (spec §4.3, §9): the teacher's recursive DFS would
// overflow the goroutine stack on the tens-of-thousands-of-cells cycles
// spec §9 calls out as realistic.
type Graph struct {
	forward map[CellKey]map[CellKey]struct{} // u -> {v : u depends on v}
	reverse map[CellKey]map[CellKey]struct{} // v -> {u : u depends on v}
}

func NewGraph() *Graph {
	return &Graph{
		forward: make(map[CellKey]map[CellKey]struct{}),
		reverse: make(map[CellKey]map[CellKey]struct{}),
	}
}

func (g *Graph) AddNode(k CellKey) {
	if _, ok := g.forward[k]; !ok {
		g.forward[k] = make(map[CellKey]struct{})
	}
	if _, ok := g.reverse[k]; !ok {
		g.reverse[k] = make(map[CellKey]struct{})
	}
}

// RemoveNode deletes k and every edge incident to it, in either
// direction.
func (g *Graph) RemoveNode(k CellKey) {
	for dep := range g.forward[k] {
		delete(g.reverse[dep], k)
	}
	delete(g.forward, k)
	for dependent := range g.reverse[k] {
		delete(g.forward[dependent], k)
	}
	delete(g.reverse, k)
}

func (g *Graph) addEdge(u, v CellKey) {
	g.AddNode(u)
	g.AddNode(v)
	g.forward[u][v] = struct{}{}
	g.reverse[v][u] = struct{}{}
}

// ReplaceOutgoing sets u's outgoing edge set to exactly newDeps,
// maintaining the invariant that u's edges equal its cell's dependency
// set (spec §4.3).
func (g *Graph) ReplaceOutgoing(u CellKey, newDeps map[CellKey]struct{}) {
	g.AddNode(u)
	for old := range g.forward[u] {
		if _, stillThere := newDeps[old]; !stillThere {
			delete(g.reverse[old], u)
		}
	}
	g.forward[u] = make(map[CellKey]struct{}, len(newDeps))
	for v := range newDeps {
		g.addEdge(u, v)
	}
}

func (g *Graph) Dependents(v CellKey) map[CellKey]struct{} {
	return g.reverse[v]
}

func (g *Graph) Dependencies(u CellKey) map[CellKey]struct{} {
	return g.forward[u]
}

func (g *Graph) HasNode(k CellKey) bool {
	_, ok := g.forward[k]
	return ok
}

func (g *Graph) HasSelfEdge(k CellKey) bool {
	_, ok := g.forward[k][k]
	return ok
}

// RenameSheetKey rewrites every node whose Sheet field equals oldKey (on
// either side of an edge) to newKey, preserving all edges. Used when a
// sheet's canonical (case-folded) key changes, which plain content
// edits never trigger — only Engine.RenameSheet does.
func (g *Graph) RenameSheetKey(oldKey, newKey string) {
	remap := func(k CellKey) CellKey {
		if k.Sheet == oldKey {
			k.Sheet = newKey
		}
		return k
	}
	newForward := make(map[CellKey]map[CellKey]struct{}, len(g.forward))
	for u, edges := range g.forward {
		ne := make(map[CellKey]struct{}, len(edges))
		for v := range edges {
			ne[remap(v)] = struct{}{}
		}
		newForward[remap(u)] = ne
	}
	newReverse := make(map[CellKey]map[CellKey]struct{}, len(g.reverse))
	for v, us := range g.reverse {
		nu := make(map[CellKey]struct{}, len(us))
		for u := range us {
			nu[remap(u)] = struct{}{}
		}
		newReverse[remap(v)] = nu
	}
	g.forward = newForward
	g.reverse = newReverse
}

// Transpose returns a new graph with every edge reversed.
func (g *Graph) Transpose() *Graph {
	out := NewGraph()
	for u, edges := range g.forward {
		out.AddNode(u)
		for v := range edges {
			out.addEdge(v, u)
		}
	}
	return out
}

// ReachableFrom performs an iterative BFS over the reverse index,
// returning every node reachable from start by following dependent
// edges — i.e. every transitive dependent of start (spec §4.3).
func (g *Graph) ReachableFrom(start CellKey) map[CellKey]struct{} {
	visited := make(map[CellKey]struct{})
	queue := []CellKey{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for next := range g.reverse[cur] {
			if _, seen := visited[next]; seen {
				continue
			}
			visited[next] = struct{}{}
			queue = append(queue, next)
		}
	}
	return visited
}

// SubgraphInducedBy returns a new graph containing only the nodes in
// keep and the edges between them (spec §4.3).
func (g *Graph) SubgraphInducedBy(keep map[CellKey]struct{}) *Graph {
	out := NewGraph()
	for k := range keep {
		out.AddNode(k)
	}
	for u := range keep {
		for v := range g.forward[u] {
			if _, ok := keep[v]; ok {
				out.addEdge(u, v)
			}
		}
	}
	return out
}

// tarjanFrame is one explicit-stack activation record standing in for a
// recursive DFS call, so SCC can process cycles with tens of thousands
// of members without recursing (spec §4.3, §9).
type tarjanFrame struct {
	node     CellKey
	edgeIter []CellKey
	edgePos  int
}

// StronglyConnectedComponents computes the graph's SCCs via iterative
// Tarjan. The returned slices are in no particular order; each inner
// slice is one component (spec §4.3, GLOSSARY).
func (g *Graph) StronglyConnectedComponents() [][]CellKey {
	index := make(map[CellKey]int)
	lowlink := make(map[CellKey]int)
	onStack := make(map[CellKey]bool)
	var sccStack []CellKey
	var result [][]CellKey
	nextIndex := 0

	var nodes []CellKey
	for n := range g.forward {
		nodes = append(nodes, n)
	}

	for _, start := range nodes {
		if _, visited := index[start]; visited {
			continue
		}

		var frames []*tarjanFrame
		push := func(n CellKey) {
			index[n] = nextIndex
			lowlink[n] = nextIndex
			nextIndex++
			sccStack = append(sccStack, n)
			onStack[n] = true
			edges := make([]CellKey, 0, len(g.forward[n]))
			for v := range g.forward[n] {
				edges = append(edges, v)
			}
			frames = append(frames, &tarjanFrame{node: n, edgeIter: edges})
		}
		push(start)

		for len(frames) > 0 {
			top := frames[len(frames)-1]
			if top.edgePos < len(top.edgeIter) {
				w := top.edgeIter[top.edgePos]
				top.edgePos++
				if _, seen := index[w]; !seen {
					push(w)
					continue
				} else if onStack[w] {
					if index[w] < lowlink[top.node] {
						lowlink[top.node] = index[w]
					}
				}
				continue
			}

			// done with this frame: pop and propagate lowlink to parent
			frames = frames[:len(frames)-1]
			if len(frames) > 0 {
				parent := frames[len(frames)-1]
				if lowlink[top.node] < lowlink[parent.node] {
					lowlink[parent.node] = lowlink[top.node]
				}
			}

			if lowlink[top.node] == index[top.node] {
				var comp []CellKey
				for {
					n := sccStack[len(sccStack)-1]
					sccStack = sccStack[:len(sccStack)-1]
					onStack[n] = false
					comp = append(comp, n)
					if n == top.node {
						break
					}
				}
				result = append(result, comp)
			}
		}
	}

	return result
}

// TopologicalOrder returns a topological ordering of the given node set
// restricted to edges whose both endpoints are in nodes (spec §4.3/§4.4
// step 6: the remaining, already-acyclic singleton SCCs). Uses Kahn's
// algorithm (iterative, queue-based) rather than recursion.
func (g *Graph) TopologicalOrder(nodes map[CellKey]struct{}) []CellKey {
	inDegree := make(map[CellKey]int, len(nodes))
	for n := range nodes {
		inDegree[n] = 0
	}
	for u := range nodes {
		for v := range g.forward[u] {
			if _, ok := nodes[v]; ok {
				inDegree[u]++
			}
		}
	}

	var queue []CellKey
	for n := range nodes {
		if inDegree[n] == 0 {
			queue = append(queue, n)
		}
	}

	var order []CellKey
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		order = append(order, n)
		for dependent := range g.reverse[n] {
			if _, ok := nodes[dependent]; !ok {
				continue
			}
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}
	return order
}
