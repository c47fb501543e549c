// Package traversal answers topology questions over a diagram: reachability,
// simple paths, cycles, depth/width and fork/join structure.
//
// A Graph is an index-based view of a diagram built once per request. Every
// traversal uses an explicit stack and honours Limits, so pathological
// inputs degrade to truncated results instead of unbounded work. Malformed
// diagrams (dangling edges, duplicate ids) never cause a panic.
package traversal

import (
	"sync"

	"github.com/efebarandurmaz/flowscope/internal/diagram"
)

// Limits bounds the exploration done by enumerating traversals.
type Limits struct {
	MaxPaths int `json:"max_paths"` // paths or cycles returned
	MaxSteps int `json:"max_steps"` // edge expansions per traversal
}

// budget is a step allowance shared by every walk of one traversal.
type budget struct {
	left  int
	spent int
}

func newBudget(lim Limits) *budget {
	return &budget{left: lim.MaxSteps}
}

// spend takes one step and reports false once the allowance is gone.
func (b *budget) spend() bool {
	if b.left <= 0 {
		return false
	}
	b.left--
	b.spent++
	return true
}

const (
	defaultMaxPaths = 1000
	defaultMaxSteps = 200000
)

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{MaxPaths: defaultMaxPaths, MaxSteps: defaultMaxSteps}
}

func (l Limits) normalized() Limits {
	if l.MaxPaths <= 0 {
		l.MaxPaths = defaultMaxPaths
	}
	if l.MaxSteps <= 0 {
		l.MaxSteps = defaultMaxSteps
	}
	return l
}

// Graph is the index-based adjacency view of a diagram.
type Graph struct {
	ids      []string
	types    []diagram.NodeType
	index    map[string]int
	out      [][]int
	in       [][]int
	dangling []diagram.Edge

	// Enumerations are memoized per Limits; returned results are shared.
	mu     sync.Mutex
	cycles map[Limits]CycleSet
	paths  map[Limits]PathSet
	shapes map[Limits]levelSet
}

// New builds a Graph from d. Nodes keep diagram order; the first occurrence
// of a duplicated id wins. Edges touching unknown ids are set aside in
// Dangling and take no part in traversal.
func New(d *diagram.Diagram) *Graph {
	g := &Graph{index: make(map[string]int)}
	if d == nil {
		return g
	}

	for _, n := range d.Nodes {
		if _, seen := g.index[n.ID]; seen {
			continue
		}
		g.index[n.ID] = len(g.ids)
		g.ids = append(g.ids, n.ID)
		g.types = append(g.types, n.Type)
	}

	g.out = make([][]int, len(g.ids))
	g.in = make([][]int, len(g.ids))
	for _, e := range d.Edges {
		from, okFrom := g.index[e.Source]
		to, okTo := g.index[e.Target]
		if !okFrom || !okTo {
			g.dangling = append(g.dangling, e)
			continue
		}
		g.out[from] = append(g.out[from], to)
		g.in[to] = append(g.in[to], from)
	}
	return g
}

// Len returns the number of distinct nodes.
func (g *Graph) Len() int { return len(g.ids) }

// IDs returns node ids in diagram order.
func (g *Graph) IDs() []string {
	out := make([]string, len(g.ids))
	copy(out, g.ids)
	return out
}

// Has reports whether id is a node of the graph.
func (g *Graph) Has(id string) bool {
	_, ok := g.index[id]
	return ok
}

// TypeOf returns the node type of id, or "" for unknown ids.
func (g *Graph) TypeOf(id string) diagram.NodeType {
	if i, ok := g.index[id]; ok {
		return g.types[i]
	}
	return ""
}

// Dangling returns the edges whose source or target is not a node.
func (g *Graph) Dangling() []diagram.Edge {
	return g.dangling
}

// OutDegree counts outgoing edges of id, duplicates and self-loops included.
func (g *Graph) OutDegree(id string) int {
	if i, ok := g.index[id]; ok {
		return len(g.out[i])
	}
	return 0
}

// InDegree counts incoming edges of id, duplicates and self-loops included.
func (g *Graph) InDegree(id string) int {
	if i, ok := g.index[id]; ok {
		return len(g.in[i])
	}
	return 0
}

// Successors returns the distinct direct successors of id in edge order.
func (g *Graph) Successors(id string) []string {
	i, ok := g.index[id]
	if !ok {
		return nil
	}
	return g.names(unique(g.out[i]))
}

// Predecessors returns the distinct direct predecessors of id in edge order.
func (g *Graph) Predecessors(id string) []string {
	i, ok := g.index[id]
	if !ok {
		return nil
	}
	return g.names(unique(g.in[i]))
}

// StartNodes returns nodes typed start. When there are none it falls back to
// nodes without incoming edges (self-loops ignored).
func (g *Graph) StartNodes() []string {
	starts := g.byType(diagram.NodeStart)
	if len(starts) > 0 {
		return starts
	}
	var out []string
	for i := range g.ids {
		if !hasForeign(g.in[i], i) {
			out = append(out, g.ids[i])
		}
	}
	return out
}

// EndNodes returns nodes typed end. When there are none it falls back to
// nodes without outgoing edges (self-loops ignored).
func (g *Graph) EndNodes() []string {
	ends := g.byType(diagram.NodeEnd)
	if len(ends) > 0 {
		return ends
	}
	var out []string
	for i := range g.ids {
		if !hasForeign(g.out[i], i) {
			out = append(out, g.ids[i])
		}
	}
	return out
}

// Forks returns nodes with more than one outgoing edge.
func (g *Graph) Forks() []string {
	var out []string
	for i := range g.ids {
		if len(g.out[i]) > 1 {
			out = append(out, g.ids[i])
		}
	}
	return out
}

// Joins returns nodes with more than one incoming edge.
func (g *Graph) Joins() []string {
	var out []string
	for i := range g.ids {
		if len(g.in[i]) > 1 {
			out = append(out, g.ids[i])
		}
	}
	return out
}

// Isolated returns nodes without any edge.
func (g *Graph) Isolated() []string {
	var out []string
	for i := range g.ids {
		if len(g.in[i]) == 0 && len(g.out[i]) == 0 {
			out = append(out, g.ids[i])
		}
	}
	return out
}

// ConnectedComponents counts weakly connected components via union-find.
func (g *Graph) ConnectedComponents() int {
	parent := make([]int, len(g.ids))
	for i := range parent {
		parent[i] = i
	}
	find := func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	for from, tos := range g.out {
		for _, to := range tos {
			a, b := find(from), find(to)
			if a != b {
				parent[a] = b
			}
		}
	}
	roots := 0
	for i := range parent {
		if find(i) == i {
			roots++
		}
	}
	return roots
}

func (g *Graph) byType(t diagram.NodeType) []string {
	var out []string
	for i, nt := range g.types {
		if nt == t {
			out = append(out, g.ids[i])
		}
	}
	return out
}

func (g *Graph) indices(ids []string) []int {
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if i, ok := g.index[id]; ok {
			out = append(out, i)
		}
	}
	return out
}

func (g *Graph) names(idx []int) []string {
	out := make([]string, len(idx))
	for k, i := range idx {
		out[k] = g.ids[i]
	}
	return out
}

func unique(idx []int) []int {
	seen := make(map[int]bool, len(idx))
	out := make([]int, 0, len(idx))
	for _, i := range idx {
		if !seen[i] {
			seen[i] = true
			out = append(out, i)
		}
	}
	return out
}

// hasForeign reports whether list holds any index other than self.
func hasForeign(list []int, self int) bool {
	for _, v := range list {
		if v != self {
			return true
		}
	}
	return false
}
