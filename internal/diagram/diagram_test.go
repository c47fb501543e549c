package diagram

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeTypeIsValid(t *testing.T) {
	for _, nt := range AllNodeTypes() {
		assert.True(t, nt.IsValid(), nt)
	}
	assert.False(t, NodeType("loop").IsValid())
	assert.False(t, NodeType("").IsValid())
}

func TestNodeHelpers(t *testing.T) {
	n := Node{
		ID:   "n1",
		Type: NodeDatabase,
		Data: map[string]any{
			"label":       "  Users  ",
			"operation":   "",
			"fields":      []any{"id", "email", "name"},
			"description": 42,
		},
	}

	assert.Equal(t, "Users", n.Label())
	assert.False(t, n.HasData("operation"), "blank strings count as absent")
	assert.True(t, n.HasData("description"))
	assert.False(t, n.HasData("missing"))
	assert.Equal(t, 3, n.FieldCount())
	assert.Equal(t, "", Node{}.Label())
	assert.Equal(t, 0, Node{}.FieldCount())
}

func TestEdgeIsSelfLoop(t *testing.T) {
	assert.True(t, Edge{Source: "a", Target: "a"}.IsSelfLoop())
	assert.False(t, Edge{Source: "a", Target: "b"}.IsSelfLoop())
	assert.False(t, Edge{}.IsSelfLoop())
}

func TestCountByType(t *testing.T) {
	d := &Diagram{Nodes: []Node{
		{ID: "1", Type: NodeStart},
		{ID: "2", Type: NodeDatabase},
		{ID: "3", Type: NodeDatabase},
		{ID: "4", Type: "bogus"},
	}}
	counts := d.CountByType()
	assert.Equal(t, 1, counts[NodeStart])
	assert.Equal(t, 2, counts[NodeDatabase])
	assert.Equal(t, 1, counts["bogus"])
}

func TestHasNodes(t *testing.T) {
	var nilDiagram *Diagram
	assert.False(t, nilDiagram.HasNodes())
	assert.False(t, (&Diagram{}).HasNodes())
	assert.True(t, (&Diagram{Nodes: []Node{{ID: "1"}}}).HasNodes())
}

func TestDecode(t *testing.T) {
	t.Run("valid document", func(t *testing.T) {
		body := `{
			"id": "d1",
			"name": "Checkout",
			"nodes": [
				{"id": "1", "type": "start", "position": {"x": 10, "y": 20}, "data": {"label": "Begin"}},
				{"id": "2", "type": "end", "position": {"x": 10, "y": 80}, "data": {"label": "Done"}}
			],
			"edges": [{"id": "e1", "source": "1", "target": "2", "label": "next"}]
		}`
		d, err := Decode(strings.NewReader(body))
		require.NoError(t, err)
		assert.Equal(t, "Checkout", d.Name)
		require.Len(t, d.Nodes, 2)
		assert.Equal(t, NodeStart, d.Nodes[0].Type)
		assert.Equal(t, 10.0, d.Nodes[0].Position.X)
		assert.Equal(t, "Begin", d.Nodes[0].Label())
		require.Len(t, d.Edges, 1)
		assert.Equal(t, "next", d.Edges[0].Label)
	})

	t.Run("empty arrays are accepted", func(t *testing.T) {
		d, err := DecodeBytes([]byte(`{"id":"d","name":"n","nodes":[],"edges":[]}`))
		require.NoError(t, err)
		assert.NotNil(t, d.Nodes)
		assert.Empty(t, d.Nodes)
	})

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"not json", `nope`, ""},
		{"array body", `[]`, ""},
		{"null body", `null`, ""},
		{"missing nodes", `{"id":"d","name":"n","edges":[]}`, "nodes"},
		{"null nodes", `{"id":"d","name":"n","nodes":null,"edges":[]}`, "nodes"},
		{"object edges", `{"id":"d","name":"n","nodes":[],"edges":{}}`, "edges"},
		{"missing id", `{"name":"n","nodes":[],"edges":[]}`, "id"},
		{"blank name", `{"id":"d","name":"   ","nodes":[],"edges":[]}`, "name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeBytes([]byte(tt.body))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrBadInput))
			var bad *BadInputError
			require.True(t, errors.As(err, &bad))
			assert.Equal(t, tt.field, bad.Field)
		})
	}
}

func TestCheckShape(t *testing.T) {
	assert.ErrorIs(t, CheckShape(nil), ErrBadInput)
	assert.ErrorIs(t, CheckShape(&Diagram{Edges: []Edge{}}), ErrBadInput)
	assert.ErrorIs(t, CheckShape(&Diagram{Nodes: []Node{}}), ErrBadInput)
	assert.NoError(t, CheckShape(&Diagram{Nodes: []Node{}, Edges: []Edge{}}))
}

func TestFingerprint(t *testing.T) {
	a, err := DecodeBytes([]byte(`{"id":"d","name":"n","nodes":[{"id":"1","type":"start","data":{"b":1,"a":2}}],"edges":[]}`))
	require.NoError(t, err)
	b, err := DecodeBytes([]byte(`{
		"name": "n", "id": "d",
		"edges": [],
		"nodes": [{"data": {"a": 2, "b": 1}, "type": "start", "id": "1"}]
	}`))
	require.NoError(t, err)

	fa, err := Fingerprint(a)
	require.NoError(t, err)
	fb, err := Fingerprint(b)
	require.NoError(t, err)
	assert.Equal(t, fa, fb, "formatting and key order must not change the hash")
	assert.Len(t, fa, 64)

	b.Nodes[0].Type = NodeEnd
	fc, err := Fingerprint(b)
	require.NoError(t, err)
	assert.NotEqual(t, fa, fc)
}
