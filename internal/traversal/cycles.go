package traversal

// CycleSet is the result of cycle detection. Each cycle lists its nodes in
// traversal order, starting at the node the back edge returns to.
type CycleSet struct {
	Cycles    [][]string `json:"cycles"`
	Truncated bool       `json:"truncated"`
}

const (
	white = iota // unvisited
	gray         // on the current DFS stack
	black        // finished
)

// DetectCycles runs a white/gray/black DFS from every unvisited node in
// diagram order. Each back edge to a gray node yields one cycle, so the
// same loop may be reported from more than one entry; cycles are not
// deduplicated. Self-loops are single-node cycles. The result is memoized
// per Limits and must not be modified.
func (g *Graph) DetectCycles(lim Limits) CycleSet {
	lim = lim.normalized()
	g.mu.Lock()
	defer g.mu.Unlock()
	if set, ok := g.cycles[lim]; ok {
		return set
	}
	set := g.detectCycles(lim)
	if g.cycles == nil {
		g.cycles = make(map[Limits]CycleSet)
	}
	g.cycles[lim] = set
	return set
}

func (g *Graph) detectCycles(lim Limits) CycleSet {
	var set CycleSet
	color := make([]int, len(g.ids))
	pos := make([]int, len(g.ids)) // stack position of gray nodes
	b := newBudget(lim)

	for root := range g.ids {
		if color[root] != white {
			continue
		}
		color[root] = gray
		pos[root] = 0
		stack := []frame{{node: root}}

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.next >= len(g.out[top.node]) {
				color[top.node] = black
				stack = stack[:len(stack)-1]
				continue
			}
			v := g.out[top.node][top.next]
			top.next++

			if !b.spend() {
				set.Truncated = true
				return set
			}

			switch color[v] {
			case gray:
				if len(set.Cycles) == lim.MaxPaths {
					set.Truncated = true
					return set
				}
				cycle := make([]string, 0, len(stack)-pos[v])
				for _, f := range stack[pos[v]:] {
					cycle = append(cycle, g.ids[f.node])
				}
				set.Cycles = append(set.Cycles, cycle)
			case white:
				color[v] = gray
				pos[v] = len(stack)
				stack = append(stack, frame{node: v})
			}
		}
	}
	return set
}
