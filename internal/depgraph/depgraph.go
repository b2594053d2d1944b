// Package depgraph implements the memory bank's dependency graph (spec
// component C5): a directed multigraph over file names kept consistent
// through a single mutation path, with standard traversal algorithms.
package depgraph

import (
	"sort"
	"sync"

	"github.com/kraklabs/cortex/internal/cortexerr"
)

// EdgeKind mirrors the link kind that produced an edge.
type EdgeKind string

const (
	EdgeMarkdown     EdgeKind = "markdown"
	EdgeTransclusion EdgeKind = "transclusion"
)

// Edge is one directed reference from one file to another.
type Edge struct {
	To         string
	Kind       EdgeKind
	SourceLine int
}

// Graph holds forward and reverse adjacency, always mutated together so
// neither index is ever observed half-updated (spec §4.5).
type Graph struct {
	mu  sync.RWMutex
	out map[string][]Edge
	in  map[string][]Edge
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{out: make(map[string][]Edge), in: make(map[string][]Edge)}
}

// RebuildFromIndex replaces the graph's contents with the edges derived
// from src, a map of file name to its outgoing edges (as produced by
// internal/linkparser over internal/metadata's records). O(V+E).
func (g *Graph) RebuildFromIndex(src map[string][]Edge) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.out = make(map[string][]Edge, len(src))
	g.in = make(map[string][]Edge)

	for from, edges := range src {
		g.out[from] = append([]Edge(nil), edges...)
		for _, e := range edges {
			g.in[e.To] = append(g.in[e.To], Edge{To: from, Kind: e.Kind, SourceLine: e.SourceLine})
		}
	}
}

// AddEdge records a single outgoing edge from a book-kept file, used on
// incremental write instead of a full rebuild.
func (g *Graph) AddEdge(from, to string, kind EdgeKind, line int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.out[from] = append(g.out[from], Edge{To: to, Kind: kind, SourceLine: line})
	g.in[to] = append(g.in[to], Edge{To: from, Kind: kind, SourceLine: line})
}

// RemoveEdgesFrom drops every outgoing edge recorded for file, and the
// corresponding reverse entries, used on file write (edges are replaced)
// and delete.
func (g *Graph) RemoveEdgesFrom(file string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	old := g.out[file]
	delete(g.out, file)

	for _, e := range old {
		rev := g.in[e.To]
		filtered := rev[:0]
		for _, r := range rev {
			if r.To != file {
				filtered = append(filtered, r)
			}
		}
		g.in[e.To] = filtered
	}
}

// Dependencies returns the files a depends on. With transitive=false it is
// the direct out-edge targets; with transitive=true it is the full
// reachable set via DFS.
func (g *Graph) Dependencies(a string, transitive bool) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if !transitive {
		return dedupTargets(g.out[a])
	}
	return g.dfs(a, g.out)
}

// Dependents returns the files that depend on a, direct or transitive.
func (g *Graph) Dependents(a string, transitive bool) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if !transitive {
		return dedupTargets(g.in[a])
	}
	return g.dfs(a, g.in)
}

func (g *Graph) dfs(start string, adj map[string][]Edge) []string {
	visited := make(map[string]bool)
	var stack []string
	stack = append(stack, start)

	for len(stack) > 0 {
		n := len(stack) - 1
		cur := stack[n]
		stack = stack[:n]

		for _, e := range adj[cur] {
			if !visited[e.To] {
				visited[e.To] = true
				stack = append(stack, e.To)
			}
		}
	}

	delete(visited, start)
	out := make([]string, 0, len(visited))
	for f := range visited {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func dedupTargets(edges []Edge) []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range edges {
		if !seen[e.To] {
			seen[e.To] = true
			out = append(out, e.To)
		}
	}
	sort.Strings(out)
	return out
}

// Nodes returns every file name that appears in the graph, as a source or
// as a target.
func (g *Graph) Nodes() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	seen := make(map[string]bool)
	for n := range g.out {
		seen[n] = true
	}
	for n := range g.in {
		seen[n] = true
	}
	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// TopologicalOrder returns a topological ordering of the graph's nodes via
// Kahn's algorithm. If the graph is not a DAG it returns an InvalidState
// error; Cycles lists the files that form each cycle.
func (g *Graph) TopologicalOrder() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	nodes := g.nodesLocked()
	indegree := make(map[string]int, len(nodes))
	for _, n := range nodes {
		indegree[n] = 0
	}
	for _, n := range nodes {
		for _, e := range g.out[n] {
			indegree[e.To]++
		}
	}

	var queue []string
	for _, n := range nodes {
		if indegree[n] == 0 {
			queue = append(queue, n)
		}
	}
	sort.Strings(queue)

	var order []string
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		order = append(order, n)

		var next []string
		for _, e := range g.out[n] {
			indegree[e.To]--
			if indegree[e.To] == 0 {
				next = append(next, e.To)
			}
		}
		sort.Strings(next)
		queue = append(queue, next...)
	}

	if len(order) != len(nodes) {
		return nil, cortexerr.New(cortexerr.InvalidState, "dependency graph contains at least one cycle").
			WithHint("inspect cycles() for the affected files")
	}
	return order, nil
}

func (g *Graph) nodesLocked() []string {
	seen := make(map[string]bool)
	for n := range g.out {
		seen[n] = true
	}
	for n := range g.in {
		seen[n] = true
	}
	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Cycles returns the graph's strongly connected components of size > 1
// (or a single self-loop node), via Tarjan's algorithm.
func (g *Graph) Cycles() [][]string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cyclesLocked()
}

type tarjanState struct {
	index   map[string]int
	lowlink map[string]int
	onStack map[string]bool
	stack   []string
	counter int
	sccs    [][]string
}

func (g *Graph) cyclesLocked() [][]string {
	st := &tarjanState{
		index:   make(map[string]int),
		lowlink: make(map[string]int),
		onStack: make(map[string]bool),
	}

	for _, n := range g.nodesLocked() {
		if _, visited := st.index[n]; !visited {
			g.strongConnect(n, st)
		}
	}

	var out [][]string
	for _, scc := range st.sccs {
		if len(scc) > 1 {
			sort.Strings(scc)
			out = append(out, scc)
			continue
		}
		n := scc[0]
		for _, e := range g.out[n] {
			if e.To == n {
				out = append(out, []string{n})
				break
			}
		}
	}
	return out
}

func (g *Graph) strongConnect(v string, st *tarjanState) {
	st.index[v] = st.counter
	st.lowlink[v] = st.counter
	st.counter++
	st.stack = append(st.stack, v)
	st.onStack[v] = true

	for _, e := range g.out[v] {
		w := e.To
		if _, visited := st.index[w]; !visited {
			g.strongConnect(w, st)
			if st.lowlink[w] < st.lowlink[v] {
				st.lowlink[v] = st.lowlink[w]
			}
		} else if st.onStack[w] {
			if st.index[w] < st.lowlink[v] {
				st.lowlink[v] = st.index[w]
			}
		}
	}

	if st.lowlink[v] == st.index[v] {
		var scc []string
		for {
			n := len(st.stack) - 1
			w := st.stack[n]
			st.stack = st.stack[:n]
			st.onStack[w] = false
			scc = append(scc, w)
			if w == v {
				break
			}
		}
		st.sccs = append(st.sccs, scc)
	}
}
