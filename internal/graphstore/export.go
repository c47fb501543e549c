package graphstore

import (
	"fmt"
	"strings"

	"github.com/efebarandurmaz/flowscope/internal/diagram"
)

// ExportDOT generates a Graphviz DOT representation of the diagram.
func ExportDOT(d *diagram.Diagram) string {
	var b strings.Builder
	fmt.Fprintf(&b, "digraph %s {\n", sanitizeID(d.ID))
	if d.Name != "" {
		fmt.Fprintf(&b, "  label=%s;\n", dotQuote(d.Name))
	}
	b.WriteString("  rankdir=TB;\n")
	b.WriteString("  node [fontname=\"Helvetica\"];\n")
	b.WriteString("  edge [fontname=\"Helvetica\" fontsize=10];\n\n")

	for _, n := range d.Nodes {
		fmt.Fprintf(&b, "  %s [label=%s shape=%s style=filled fillcolor=\"%s\"];\n",
			dotQuote(n.ID), dotQuote(nodeLabel(n)), dotShape(n.Type), nodeColor(n.Type))
	}
	if len(d.Nodes) > 0 && len(d.Edges) > 0 {
		b.WriteString("\n")
	}

	for _, e := range d.Edges {
		attrs := ""
		if e.Label != "" {
			attrs = " [label=" + dotQuote(e.Label) + "]"
		}
		fmt.Fprintf(&b, "  %s -> %s%s;\n", dotQuote(e.Source), dotQuote(e.Target), attrs)
	}

	b.WriteString("}\n")
	return b.String()
}

// ExportMermaid generates a Mermaid flowchart of the diagram.
func ExportMermaid(d *diagram.Diagram) string {
	var b strings.Builder
	b.WriteString("flowchart TD\n")

	for _, n := range d.Nodes {
		fmt.Fprintf(&b, "  %s%s\n", sanitizeID(n.ID), mermaidShape(n))
	}

	for _, e := range d.Edges {
		label := ""
		if e.Label != "" {
			label = "|" + mermaidText(e.Label) + "|"
		}
		fmt.Fprintf(&b, "  %s -->%s %s\n", sanitizeID(e.Source), label, sanitizeID(e.Target))
	}

	return b.String()
}

func nodeLabel(n diagram.Node) string {
	if l := n.Label(); l != "" {
		return l
	}
	return n.ID
}

func sanitizeID(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			return r
		}
		return '_'
	}, s)
}

func dotQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	return `"` + s + `"`
}

func mermaidText(s string) string {
	s = strings.ReplaceAll(s, `"`, "#quot;")
	return strings.ReplaceAll(s, "\n", " ")
}

func dotShape(t diagram.NodeType) string {
	switch t {
	case diagram.NodeStart, diagram.NodeEnd:
		return "ellipse"
	case diagram.NodeDecision:
		return "diamond"
	case diagram.NodeDatabase:
		return "cylinder"
	case diagram.NodeUserAction:
		return "parallelogram"
	case diagram.NodeExternalService:
		return "box3d"
	case diagram.NodeHTMLElement:
		return "component"
	default:
		return "box"
	}
}

func nodeColor(t diagram.NodeType) string {
	switch t {
	case diagram.NodeStart:
		return "#238636"
	case diagram.NodeEnd:
		return "#f85149"
	case diagram.NodeDecision:
		return "#d29922"
	case diagram.NodeDatabase:
		return "#8957e5"
	case diagram.NodeAPICall:
		return "#1f6feb"
	case diagram.NodeExternalService:
		return "#db6d28"
	default:
		return "#c9d1d9"
	}
}

func mermaidShape(n diagram.Node) string {
	label := `"` + mermaidText(nodeLabel(n)) + `"`
	switch n.Type {
	case diagram.NodeStart, diagram.NodeEnd:
		return "([" + label + "])"
	case diagram.NodeDecision:
		return "{" + label + "}"
	case diagram.NodeDatabase:
		return "[(" + label + ")]"
	case diagram.NodeUserAction:
		return "[/" + label + "/]"
	case diagram.NodeExternalService:
		return "[[" + label + "]]"
	default:
		return "[" + label + "]"
	}
}
