// Package dagutil provides the deterministic topological-order, layering,
// and cycle-detection primitives shared by the Graph Builder and the
// Planner. Grounded on the teacher's internal/dag/validate.go (Kahn's
// algorithm over a canonical-index min-heap ready queue, DFS white/gray/
// black cycle witness extraction), generalized from integer canonical
// indices to arbitrary comparable string node names so both the
// producer-level graph and the job-level graph can share one implementation.
package dagutil

import (
	"container/heap"
	"fmt"
	"sort"
)

// Graph is a minimal adjacency view sufficient for topological analysis.
type Graph struct {
	Nodes    []string
	Outgoing map[string][]string // must be pre-sorted per key for determinism
	Incoming map[string][]string
}

// New builds a Graph from a node list and an edge list, sorting adjacency
// lists so traversal is deterministic regardless of edge declaration order.
func New(nodes []string, edges [][2]string) *Graph {
	g := &Graph{
		Nodes:    append([]string(nil), nodes...),
		Outgoing: make(map[string][]string, len(nodes)),
		Incoming: make(map[string][]string, len(nodes)),
	}
	sort.Strings(g.Nodes)
	for _, e := range edges {
		g.Outgoing[e[0]] = append(g.Outgoing[e[0]], e[1])
		g.Incoming[e[1]] = append(g.Incoming[e[1]], e[0])
	}
	for k := range g.Outgoing {
		sort.Strings(g.Outgoing[k])
	}
	for k := range g.Incoming {
		sort.Strings(g.Incoming[k])
	}
	return g
}

// stringMinHeap is a min-heap over node names, giving the ready queue a
// total, deterministic order (mirrors the teacher's intMinHeap over
// canonical integer indices).
type stringMinHeap []string

func (h stringMinHeap) Len() int            { return len(h) }
func (h stringMinHeap) Less(i, j int) bool  { return h[i] < h[j] }
func (h stringMinHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *stringMinHeap) Push(x interface{}) { *h = append(*h, x.(string)) }
func (h *stringMinHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// TopoOrder returns a deterministic topological ordering of all nodes, or an
// error naming one cycle witness if the graph is not a DAG.
func (g *Graph) TopoOrder() ([]string, error) {
	indeg := make(map[string]int, len(g.Nodes))
	for _, n := range g.Nodes {
		indeg[n] = 0
	}
	for _, n := range g.Nodes {
		for _, to := range g.Outgoing[n] {
			indeg[to]++
		}
	}

	ready := &stringMinHeap{}
	heap.Init(ready)
	for _, n := range g.Nodes {
		if indeg[n] == 0 {
			heap.Push(ready, n)
		}
	}

	out := make([]string, 0, len(g.Nodes))
	for ready.Len() > 0 {
		u := heap.Pop(ready).(string)
		out = append(out, u)
		for _, v := range g.Outgoing[u] {
			indeg[v]--
			if indeg[v] == 0 {
				heap.Push(ready, v)
			}
		}
	}

	if len(out) != len(g.Nodes) {
		cyc := g.findCycleWitness()
		return nil, fmt.Errorf("dagutil: cycle detected: %v", cyc)
	}
	return out, nil
}

// Layers assigns each node the smallest layer index strictly greater than
// the layer of any of its dependencies (§4.3.6): a job with no dependencies
// is layer 0.
func (g *Graph) Layers() (map[string]int, error) {
	order, err := g.TopoOrder()
	if err != nil {
		return nil, err
	}
	layer := make(map[string]int, len(g.Nodes))
	for _, n := range order {
		maxParent := -1
		for _, p := range g.Incoming[n] {
			if layer[p] > maxParent {
				maxParent = layer[p]
			}
		}
		layer[n] = maxParent + 1
	}
	return layer, nil
}

func (g *Graph) findCycleWitness() []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.Nodes))
	parent := make(map[string]string, len(g.Nodes))
	var cycle []string

	var dfs func(u string) bool
	dfs = func(u string) bool {
		color[u] = gray
		for _, v := range g.Outgoing[u] {
			if color[v] == white {
				parent[v] = u
				if dfs(v) {
					return true
				}
				continue
			}
			if color[v] == gray {
				cycle = append(cycle, v)
				cur := u
				for cur != "" && cur != v {
					cycle = append(cycle, cur)
					cur = parent[cur]
				}
				cycle = append(cycle, v)
				return true
			}
		}
		color[u] = black
		return false
	}

	for _, n := range g.Nodes {
		if color[n] == white {
			if dfs(n) {
				break
			}
		}
	}
	if len(cycle) == 0 {
		return nil
	}
	rev := make([]string, len(cycle))
	for i := range cycle {
		rev[i] = cycle[len(cycle)-1-i]
	}
	return rev
}

// DownstreamReachable returns every node reachable from start via Outgoing
// edges (excluding start), visited in deterministic min-heap order. Used by
// the planner's dirty-set propagation (§4.3.7 step 4) and by
// graphbuild.ProducerGraph.DownstreamReachable.
func (g *Graph) DownstreamReachable(start string) []string {
	visited := map[string]bool{start: true}
	ready := &stringMinHeap{}
	heap.Init(ready)
	for _, v := range g.Outgoing[start] {
		heap.Push(ready, v)
	}
	var out []string
	for ready.Len() > 0 {
		u := heap.Pop(ready).(string)
		if visited[u] {
			continue
		}
		visited[u] = true
		out = append(out, u)
		for _, v := range g.Outgoing[u] {
			if !visited[v] {
				heap.Push(ready, v)
			}
		}
	}
	return out
}
