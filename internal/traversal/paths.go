package traversal

// PathSet is the result of a path enumeration.
type PathSet struct {
	Paths     [][]string `json:"paths"`
	Truncated bool       `json:"truncated"`
	Steps     int        `json:"-"` // edge expansions spent
}

// frame is one level of an explicit DFS stack.
type frame struct {
	node int
	next int // next outgoing edge to expand
}

// ReachableFrom returns every node reachable by following edges forward from
// any of startIDs, the start nodes included, in diagram order. Unknown ids
// are ignored. A marked node is never expanded twice.
func (g *Graph) ReachableFrom(startIDs []string) []string {
	marked := make([]bool, len(g.ids))
	stack := g.indices(startIDs)
	for _, s := range stack {
		marked[s] = true
	}
	for len(stack) > 0 {
		u := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, v := range g.out[u] {
			if !marked[v] {
				marked[v] = true
				stack = append(stack, v)
			}
		}
	}

	var out []string
	for i, m := range marked {
		if m {
			out = append(out, g.ids[i])
		}
	}
	return out
}

// Distances returns the shortest hop count from id to every node it reaches,
// id itself included at distance 0.
func (g *Graph) Distances(id string) map[string]int {
	s, ok := g.index[id]
	if !ok {
		return map[string]int{}
	}
	dist := make([]int, len(g.ids))
	for i := range dist {
		dist[i] = -1
	}
	dist[s] = 0
	queue := []int{s}
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		for _, v := range g.out[u] {
			if dist[v] < 0 {
				dist[v] = dist[u] + 1
				queue = append(queue, v)
			}
		}
	}
	out := make(map[string]int)
	for i, d := range dist {
		if d >= 0 {
			out[g.ids[i]] = d
		}
	}
	return out
}

// Reachable is ReachableFrom(StartNodes()).
func (g *Graph) Reachable() []string {
	return g.ReachableFrom(g.StartNodes())
}

// reaching marks every node from which t can be reached, t included.
func (g *Graph) reaching(t int) []bool {
	marked := make([]bool, len(g.ids))
	marked[t] = true
	stack := []int{t}
	for len(stack) > 0 {
		u := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, v := range g.in[u] {
			if !marked[v] {
				marked[v] = true
				stack = append(stack, v)
			}
		}
	}
	return marked
}

// AllSimplePaths enumerates every path from source to target that repeats no
// node. The visited set is scoped to the current path, so paths sharing a
// node are all found. source == target yields the single path [source].
// Enumeration stops at lim.MaxPaths paths or lim.MaxSteps edge expansions.
func (g *Graph) AllSimplePaths(source, target string, lim Limits) PathSet {
	lim = lim.normalized()
	s, okS := g.index[source]
	t, okT := g.index[target]
	if !okS || !okT {
		return PathSet{}
	}
	b := newBudget(lim)
	var set PathSet
	set.Truncated = g.simplePaths(s, t, g.reaching(t), lim.MaxPaths, b, &set.Paths)
	set.Steps = b.spent
	return set
}

// simplePaths appends up to maxPaths simple s->t paths to out, expanding only
// nodes that can still reach t. It reports whether a cap cut it short.
func (g *Graph) simplePaths(s, t int, reach []bool, maxPaths int, b *budget, out *[][]string) bool {
	if !reach[s] {
		return false
	}
	if s == t {
		if maxPaths <= 0 {
			return true
		}
		*out = append(*out, []string{g.ids[s]})
		return false
	}

	found := 0
	onPath := make([]bool, len(g.ids))
	path := []int{s}
	onPath[s] = true
	stack := []frame{{node: s}}

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.next >= len(g.out[top.node]) {
			onPath[top.node] = false
			path = path[:len(path)-1]
			stack = stack[:len(stack)-1]
			continue
		}
		v := g.out[top.node][top.next]
		top.next++

		if !b.spend() {
			return true
		}
		if onPath[v] || !reach[v] {
			continue
		}
		if v == t {
			if found == maxPaths {
				return true
			}
			found++
			*out = append(*out, append(g.names(path), g.ids[t]))
			continue
		}
		onPath[v] = true
		path = append(path, v)
		stack = append(stack, frame{node: v})
	}
	return false
}

// EntryExitPaths enumerates simple paths from every start-like node to every
// end-like node. lim.MaxPaths caps the combined result and lim.MaxSteps the
// combined work of all pairs. Pairs whose end is not reachable from their
// start cost nothing. The result is memoized and must not be modified.
func (g *Graph) EntryExitPaths(lim Limits) PathSet {
	lim = lim.normalized()
	g.mu.Lock()
	defer g.mu.Unlock()
	if set, ok := g.paths[lim]; ok {
		return set
	}

	var set PathSet
	b := newBudget(lim)
	ends := g.indices(g.EndNodes())
	reach := make([][]bool, len(ends))
	for i, e := range ends {
		reach[i] = g.reaching(e)
	}
pairs:
	for _, s := range g.indices(g.StartNodes()) {
		for i, e := range ends {
			if !reach[i][s] {
				continue
			}
			remaining := lim.MaxPaths - len(set.Paths)
			if g.simplePaths(s, e, reach[i], remaining, b, &set.Paths) {
				set.Truncated = true
				break pairs
			}
		}
	}
	set.Steps = b.spent

	if g.paths == nil {
		g.paths = make(map[Limits]PathSet)
	}
	g.paths[lim] = set
	return set
}

// levelSet is the outcome of one levelling pass.
type levelSet struct {
	level     []int
	truncated bool
}

// levelize walks every simple path from the depth roots, assigning each node
// the deepest level on which it is reached. Unreached nodes get -1. All roots
// share one step budget, and the result is memoized per Limits.
func (g *Graph) levelize(lim Limits) levelSet {
	lim = lim.normalized()
	g.mu.Lock()
	defer g.mu.Unlock()
	if ls, ok := g.shapes[lim]; ok {
		return ls
	}

	level := make([]int, len(g.ids))
	for i := range level {
		level[i] = -1
	}

	roots := g.indices(g.StartNodes())
	if len(roots) == 0 {
		// Fully cyclic diagrams have no natural entry; measure from every node.
		for i := range g.ids {
			roots = append(roots, i)
		}
	}

	b := newBudget(lim)
	onPath := make([]bool, len(g.ids))
	truncated := false
walk:
	for _, r := range roots {
		if level[r] < 0 {
			level[r] = 0
		}
		onPath[r] = true
		stack := []frame{{node: r}}
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.next >= len(g.out[top.node]) {
				onPath[top.node] = false
				stack = stack[:len(stack)-1]
				continue
			}
			v := g.out[top.node][top.next]
			top.next++

			if !b.spend() {
				truncated = true
				break walk
			}
			if onPath[v] {
				continue
			}
			depth := len(stack)
			if depth > level[v] {
				level[v] = depth
			}
			onPath[v] = true
			stack = append(stack, frame{node: v})
		}
	}

	ls := levelSet{level: level, truncated: truncated}
	if g.shapes == nil {
		g.shapes = make(map[Limits]levelSet)
	}
	g.shapes[lim] = ls
	return ls
}

// Shape is the layered extent of a graph.
type Shape struct {
	Depth     int  // edges on the longest simple chain from a start-like node
	Width     int  // largest number of nodes sharing a level
	Truncated bool // levelling hit the step cap; depth and width are lower bounds
}

// Shape measures depth and width in a single levelling pass.
func (g *Graph) Shape(lim Limits) Shape {
	ls := g.levelize(lim)
	sh := Shape{Truncated: ls.truncated}
	counts := make(map[int]int)
	for _, l := range ls.level {
		if l < 0 {
			continue
		}
		if l > sh.Depth {
			sh.Depth = l
		}
		counts[l]++
		if counts[l] > sh.Width {
			sh.Width = counts[l]
		}
	}
	return sh
}

// MaxDepth returns the length, in edges, of the longest simple chain from
// any start-like node.
func (g *Graph) MaxDepth(lim Limits) int {
	return g.Shape(lim).Depth
}

// MaxWidth returns the largest number of nodes sharing a level.
func (g *Graph) MaxWidth(lim Limits) int {
	return g.Shape(lim).Width
}

// Levels maps every reached node to its deepest level.
func (g *Graph) Levels(lim Limits) map[string]int {
	ls := g.levelize(lim)
	out := make(map[string]int, len(ls.level))
	for i, l := range ls.level {
		if l >= 0 {
			out[g.ids[i]] = l
		}
	}
	return out
}
