// Package diagram defines the flow-chart data model shared by the editor and
// the analysis service: typed nodes, directed edges and the diagram aggregate.
package diagram

import "strings"

// NodeType classifies diagram nodes.
type NodeType string

const (
	NodeStart           NodeType = "start"
	NodeEnd             NodeType = "end"
	NodeHTMLElement     NodeType = "html-element"
	NodeDatabase        NodeType = "database"
	NodeAPICall         NodeType = "api-call"
	NodeDecision        NodeType = "decision"
	NodeUserAction      NodeType = "user-action"
	NodeExternalService NodeType = "external-service"
)

var allNodeTypes = []NodeType{
	NodeStart,
	NodeEnd,
	NodeHTMLElement,
	NodeDatabase,
	NodeAPICall,
	NodeDecision,
	NodeUserAction,
	NodeExternalService,
}

// AllNodeTypes returns the closed set of node types in canonical order.
func AllNodeTypes() []NodeType {
	out := make([]NodeType, len(allNodeTypes))
	copy(out, allNodeTypes)
	return out
}

// IsValid reports whether t belongs to the closed node type set.
func (t NodeType) IsValid() bool {
	for _, v := range allNodeTypes {
		if t == v {
			return true
		}
	}
	return false
}

// Position is the canvas location of a node. It carries no semantics.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is a single step of the process diagram.
type Node struct {
	ID       string         `json:"id"`
	Type     NodeType       `json:"type"`
	Position Position       `json:"position"`
	Data     map[string]any `json:"data,omitempty"`
}

// Label returns data.label, or an empty string.
func (n Node) Label() string {
	return n.DataString("label")
}

// DataString returns data[key] when it is a non-blank string.
func (n Node) DataString(key string) string {
	if n.Data == nil {
		return ""
	}
	s, ok := n.Data[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

// HasData reports whether data[key] is present and not empty.
func (n Node) HasData(key string) bool {
	if n.Data == nil {
		return false
	}
	v, ok := n.Data[key]
	if !ok || v == nil {
		return false
	}
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x) != ""
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	}
	return true
}

// FieldCount returns the length of the data.fields list, 0 if absent.
func (n Node) FieldCount() int {
	if n.Data == nil {
		return 0
	}
	switch f := n.Data["fields"].(type) {
	case []any:
		return len(f)
	case []string:
		return len(f)
	case []map[string]any:
		return len(f)
	}
	return 0
}

// Edge is a directed connection between two nodes.
type Edge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
	Label  string `json:"label,omitempty"`
}

// IsSelfLoop reports whether the edge starts and ends on the same node.
func (e Edge) IsSelfLoop() bool {
	return e.Source != "" && e.Source == e.Target
}

// Diagram is the node/edge graph being analyzed. The analysis packages treat
// it as read-only.
type Diagram struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// CountByType returns the number of nodes per type. Unknown types are
// counted under their raw value.
func (d *Diagram) CountByType() map[NodeType]int {
	counts := make(map[NodeType]int)
	for _, n := range d.Nodes {
		counts[n.Type]++
	}
	return counts
}

// HasNodes reports whether the diagram contains at least one node.
func (d *Diagram) HasNodes() bool {
	return d != nil && len(d.Nodes) > 0
}
