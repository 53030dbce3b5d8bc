package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Node is one unit of a pipeline graph.
type Node struct {
	id        string
	classType string
	role      Role
	inputs    map[string]any
}

// Role returns the role resolved when the template was loaded.
func (n *Node) Role() Role { return n.role }

// Input returns one input value.
func (n *Node) Input(key string) (any, bool) {
	v, ok := n.inputs[key]
	return v, ok
}

// HasInput reports whether the node declares the input.
func (n *Node) HasInput(key string) bool {
	_, ok := n.inputs[key]
	return ok
}

// Inputs returns a deep copy of the node inputs.
func (n *Node) Inputs() map[string]any {
	return cloneInputs(n.inputs)
}

// Text returns the node's "text" input, or "" when absent or not a string
// (e.g. a link to another node).
func (n *Node) Text() string {
	s, _ := n.inputs["text"].(string)
	return s
}

// Set assigns an input value. Only JSON-shaped values are accepted.
func (n *Node) Set(key string, value any) error {
	if err := checkValue(value); err != nil {
		return fmt.Errorf("node %s input %s: %w", n.id, key, err)
	}
	n.set(key, value)
	return nil
}

func (n *Node) set(key string, value any) {
	if n.inputs == nil {
		n.inputs = make(map[string]any)
	}
	n.inputs[key] = value
}

func (n *Node) clone() *Node {
	return &Node{
		id:        n.id,
		classType: n.classType,
		role:      n.role,
		inputs:    cloneInputs(n.inputs),
	}
}

// Graph is a mutable, ordered pipeline graph. Patching always works on a Graph
// obtained from Template.Graph, never on the template itself.
type Graph struct {
	order []string
	nodes map[string]*Node
}

func newGraph() *Graph {
	return &Graph{nodes: make(map[string]*Node)}
}

func (g *Graph) add(n *Node) error {
	if _, exists := g.nodes[n.id]; exists {
		return fmt.Errorf("duplicate node id %q", n.id)
	}
	g.order = append(g.order, n.id)
	g.nodes[n.id] = n
	return nil
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.order) }

// IDs returns the node ids in declared order.
func (g *Graph) IDs() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Node looks up a node by id.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// FindNodes returns the ids of all nodes with the given class type, in declared order.
func (g *Graph) FindNodes(classType string) []string {
	var ids []string
	for _, id := range g.order {
		if g.nodes[id].classType == classType {
			ids = append(ids, id)
		}
	}
	return ids
}

// NodesWithRole returns the ids of all nodes with the given role, in declared order.
func (g *Graph) NodesWithRole(role Role) []string {
	var ids []string
	for _, id := range g.order {
		if g.nodes[id].role == role {
			ids = append(ids, id)
		}
	}
	return ids
}

// Clone returns a deep structural copy.
func (g *Graph) Clone() *Graph {
	out := &Graph{
		order: make([]string, len(g.order)),
		nodes: make(map[string]*Node, len(g.nodes)),
	}
	copy(out.order, g.order)
	for id, n := range g.nodes {
		out.nodes[id] = n.clone()
	}
	return out
}

type nodeDescriptor struct {
	ClassType string         `json:"class_type"`
	Inputs    map[string]any `json:"inputs"`
}

// MarshalJSON encodes the graph as the backend's node-id → descriptor object,
// keeping declared order.
func (g *Graph) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, id := range g.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(id)
		if err != nil {
			return nil, err
		}
		n := g.nodes[id]
		inputs := n.inputs
		if inputs == nil {
			inputs = map[string]any{}
		}
		val, err := json.Marshal(nodeDescriptor{ClassType: n.classType, Inputs: inputs})
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", id, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
