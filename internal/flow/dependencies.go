package flow

import (
	"github.com/efebarandurmaz/flowscope/internal/diagram"
	"github.com/efebarandurmaz/flowscope/internal/traversal"
)

// Dependency is a node that talks to something outside the flow.
type Dependency struct {
	NodeID     string            `json:"nodeId"`
	Label      string            `json:"label,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// DependencyReport lists the external touch points of a diagram and the
// direct neighbours of every node.
type DependencyReport struct {
	Databases        []Dependency        `json:"databases"`
	APIs             []Dependency        `json:"apis"`
	ExternalServices []Dependency        `json:"externalServices"`
	Upstream         map[string][]string `json:"upstream"`
	Downstream       map[string][]string `json:"downstream"`
}

var dependencyKeys = map[diagram.NodeType][]string{
	diagram.NodeDatabase:        {"operation", "table", "database", "query"},
	diagram.NodeAPICall:         {"method", "endpoint", "url"},
	diagram.NodeExternalService: {"serviceType", "provider", "endpoint"},
}

// Dependencies builds the dependency report of d. g may be nil.
func Dependencies(d *diagram.Diagram, g *traversal.Graph) *DependencyReport {
	rep := &DependencyReport{
		Databases:        []Dependency{},
		APIs:             []Dependency{},
		ExternalServices: []Dependency{},
		Upstream:         map[string][]string{},
		Downstream:       map[string][]string{},
	}
	if d == nil {
		return rep
	}
	if g == nil {
		g = traversal.New(d)
	}

	for _, n := range firstNodesOrdered(d) {
		keys, ok := dependencyKeys[n.Type]
		if ok {
			dep := Dependency{NodeID: n.ID, Label: n.Label()}
			for _, k := range keys {
				if v := n.DataString(k); v != "" {
					if dep.Attributes == nil {
						dep.Attributes = map[string]string{}
					}
					dep.Attributes[k] = v
				}
			}
			switch n.Type {
			case diagram.NodeDatabase:
				rep.Databases = append(rep.Databases, dep)
			case diagram.NodeAPICall:
				rep.APIs = append(rep.APIs, dep)
			case diagram.NodeExternalService:
				rep.ExternalServices = append(rep.ExternalServices, dep)
			}
		}

		if up := g.Predecessors(n.ID); len(up) > 0 {
			rep.Upstream[n.ID] = up
		}
		if down := g.Successors(n.ID); len(down) > 0 {
			rep.Downstream[n.ID] = down
		}
	}
	return rep
}

func firstNodesOrdered(d *diagram.Diagram) []diagram.Node {
	seen := make(map[string]bool, len(d.Nodes))
	out := make([]diagram.Node, 0, len(d.Nodes))
	for _, n := range d.Nodes {
		if !seen[n.ID] {
			seen[n.ID] = true
			out = append(out, n)
		}
	}
	return out
}
