// Package neo4j stores diagrams in Neo4j. Each node becomes a :FlowNode keyed
// by (diagram_id, id) and each edge a :FLOWS_TO relationship.
package neo4j

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/efebarandurmaz/flowscope/internal/diagram"
	"github.com/efebarandurmaz/flowscope/internal/graphstore"
)

// Config holds the connection settings.
type Config struct {
	URI      string
	Username string
	Password string
	Database string // empty uses the server default
}

// Repository implements graphstore.Repository using Neo4j.
type Repository struct {
	driver   neo4j.DriverWithContext
	database string
}

// New creates a Neo4j-backed repository and checks connectivity.
func New(ctx context.Context, cfg Config) (*Repository, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("neo4j connectivity: %w", err)
	}
	return &Repository{driver: driver, database: cfg.Database}, nil
}

// Verify checks that the server is still reachable. It backs the health check.
func (r *Repository) Verify(ctx context.Context) error {
	return r.driver.VerifyConnectivity(ctx)
}

func (r *Repository) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return r.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: r.database, AccessMode: mode})
}

const (
	clearNodesQuery = "MATCH (n:FlowNode {diagram_id: $id}) DETACH DELETE n"

	mergeDiagramQuery = "MERGE (g:FlowDiagram {id: $id}) " +
		"SET g.name = $name, g.fingerprint = $fingerprint, g.dangling = $dangling"

	createNodesQuery = "MATCH (g:FlowDiagram {id: $id}) " +
		"UNWIND $nodes AS n " +
		"CREATE (f:FlowNode {diagram_id: $id, id: n.id}) " +
		"SET f.seq = n.seq, f.type = n.type, f.label = n.label, f.x = n.x, f.y = n.y, f.data = n.data " +
		"CREATE (g)-[:HAS_NODE]->(f)"

	createEdgesQuery = "UNWIND $edges AS e " +
		"MATCH (a:FlowNode {diagram_id: $id, id: e.source}) " +
		"MATCH (b:FlowNode {diagram_id: $id, id: e.target}) " +
		"CREATE (a)-[:FLOWS_TO {id: e.id, seq: e.seq, label: e.label}]->(b)"

	loadDiagramQuery = "MATCH (g:FlowDiagram {id: $id}) RETURN g.name AS name, g.dangling AS dangling"

	loadNodesQuery = "MATCH (f:FlowNode {diagram_id: $id}) " +
		"RETURN f.id AS id, f.seq AS seq, f.type AS type, f.x AS x, f.y AS y, f.data AS data ORDER BY f.seq"

	loadEdgesQuery = "MATCH (a:FlowNode {diagram_id: $id})-[r:FLOWS_TO]->(b:FlowNode {diagram_id: $id}) " +
		"RETURN r.id AS id, r.seq AS seq, a.id AS source, b.id AS target, r.label AS label ORDER BY r.seq"
)

// StoreDiagram replaces the stored copy of d in a single transaction.
func (r *Repository) StoreDiagram(ctx context.Context, d *diagram.Diagram) error {
	fp, err := diagram.Fingerprint(d)
	if err != nil {
		return fmt.Errorf("fingerprint diagram %s: %w", d.ID, err)
	}
	nodes, err := nodeParams(d)
	if err != nil {
		return fmt.Errorf("encode diagram %s: %w", d.ID, err)
	}
	edges, dangling, err := edgeParams(d)
	if err != nil {
		return fmt.Errorf("encode diagram %s: %w", d.ID, err)
	}

	session := r.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		steps := []struct {
			query  string
			params map[string]any
		}{
			{clearNodesQuery, map[string]any{"id": d.ID}},
			{mergeDiagramQuery, map[string]any{"id": d.ID, "name": d.Name, "fingerprint": fp, "dangling": dangling}},
			{createNodesQuery, map[string]any{"id": d.ID, "nodes": nodes}},
			{createEdgesQuery, map[string]any{"id": d.ID, "edges": edges}},
		}
		for _, step := range steps {
			res, err := tx.Run(ctx, step.query, step.params)
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("store diagram %s: %w", d.ID, err)
	}
	return nil
}

// LoadDiagram rebuilds a stored diagram. Nodes and edges come back in the
// order they were stored.
func (r *Repository) LoadDiagram(ctx context.Context, id string) (*diagram.Diagram, error) {
	session := r.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		params := map[string]any{"id": id}

		head, err := collect(ctx, tx, loadDiagramQuery, params)
		if err != nil {
			return nil, err
		}
		if len(head) == 0 {
			return nil, graphstore.ErrNotFound
		}
		nodes, err := collect(ctx, tx, loadNodesQuery, params)
		if err != nil {
			return nil, err
		}
		edges, err := collect(ctx, tx, loadEdgesQuery, params)
		if err != nil {
			return nil, err
		}
		return assemble(id, head[0], nodes, edges)
	})
	if err != nil {
		return nil, fmt.Errorf("load diagram %s: %w", id, err)
	}
	return result.(*diagram.Diagram), nil
}

func (r *Repository) Close(ctx context.Context) error {
	return r.driver.Close(ctx)
}

func collect(ctx context.Context, tx neo4j.ManagedTransaction, query string, params map[string]any) ([]map[string]any, error) {
	res, err := tx.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}
	var rows []map[string]any
	for res.Next(ctx) {
		rows = append(rows, res.Record().AsMap())
	}
	return rows, res.Err()
}

// storedEdge is the shape of an edge whose endpoints are missing from the
// diagram. Those cannot become relationships and are kept on the diagram node.
type storedEdge struct {
	Seq    int64  `json:"seq"`
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
	Label  string `json:"label,omitempty"`
}

func nodeParams(d *diagram.Diagram) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(d.Nodes))
	seen := make(map[string]bool, len(d.Nodes))
	for i, n := range d.Nodes {
		// First occurrence wins so edges MATCH exactly one endpoint.
		if seen[n.ID] {
			continue
		}
		seen[n.ID] = true
		data := ""
		if n.Data != nil {
			raw, err := json.Marshal(n.Data)
			if err != nil {
				return nil, fmt.Errorf("node %s data: %w", n.ID, err)
			}
			data = string(raw)
		}
		out = append(out, map[string]any{
			"id":    n.ID,
			"seq":   int64(i),
			"type":  string(n.Type),
			"label": n.Label(),
			"x":     n.Position.X,
			"y":     n.Position.Y,
			"data":  data,
		})
	}
	return out, nil
}

func edgeParams(d *diagram.Diagram) ([]map[string]any, string, error) {
	ids := make(map[string]bool, len(d.Nodes))
	for _, n := range d.Nodes {
		ids[n.ID] = true
	}

	var edges []map[string]any
	var dangling []storedEdge
	for i, e := range d.Edges {
		if !ids[e.Source] || !ids[e.Target] {
			dangling = append(dangling, storedEdge{Seq: int64(i), ID: e.ID, Source: e.Source, Target: e.Target, Label: e.Label})
			continue
		}
		edges = append(edges, map[string]any{
			"id":     e.ID,
			"seq":    int64(i),
			"source": e.Source,
			"target": e.Target,
			"label":  e.Label,
		})
	}
	if edges == nil {
		edges = []map[string]any{}
	}
	if len(dangling) == 0 {
		return edges, "", nil
	}
	raw, err := json.Marshal(dangling)
	if err != nil {
		return nil, "", err
	}
	return edges, string(raw), nil
}

func assemble(id string, head map[string]any, nodeRows, edgeRows []map[string]any) (*diagram.Diagram, error) {
	d := &diagram.Diagram{
		ID:    id,
		Name:  asString(head["name"]),
		Nodes: make([]diagram.Node, 0, len(nodeRows)),
		Edges: make([]diagram.Edge, 0, len(edgeRows)),
	}

	for _, row := range nodeRows {
		n, err := nodeFromRow(row)
		if err != nil {
			return nil, err
		}
		d.Nodes = append(d.Nodes, n)
	}

	edges := make([]storedEdge, 0, len(edgeRows))
	for _, row := range edgeRows {
		edges = append(edges, storedEdge{
			Seq:    asInt(row["seq"]),
			ID:     asString(row["id"]),
			Source: asString(row["source"]),
			Target: asString(row["target"]),
			Label:  asString(row["label"]),
		})
	}
	if raw := asString(head["dangling"]); raw != "" {
		var extra []storedEdge
		if err := json.Unmarshal([]byte(raw), &extra); err != nil {
			return nil, fmt.Errorf("decode dangling edges: %w", err)
		}
		edges = append(edges, extra...)
	}
	sort.SliceStable(edges, func(i, j int) bool { return edges[i].Seq < edges[j].Seq })

	for _, e := range edges {
		d.Edges = append(d.Edges, diagram.Edge{ID: e.ID, Source: e.Source, Target: e.Target, Label: e.Label})
	}
	return d, nil
}

func nodeFromRow(row map[string]any) (diagram.Node, error) {
	n := diagram.Node{
		ID:       asString(row["id"]),
		Type:     diagram.NodeType(asString(row["type"])),
		Position: diagram.Position{X: asFloat(row["x"]), Y: asFloat(row["y"])},
	}
	if raw := asString(row["data"]); raw != "" {
		if err := json.Unmarshal([]byte(raw), &n.Data); err != nil {
			return n, fmt.Errorf("node %s data: %w", n.ID, err)
		}
	}
	return n, nil
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt(v any) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case float64:
		return int64(x)
	}
	return 0
}

func asFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int64:
		return float64(x)
	}
	return 0
}

var _ graphstore.Repository = (*Repository)(nil)
