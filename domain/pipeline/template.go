package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"

	"imagyn/domain/core"
)

// Template is the read-only pipeline description loaded once at startup.
// All fields are unexported; Graph hands out clones.
type Template struct {
	name  string
	graph *Graph
}

// LoadTemplate reads an API-format pipeline from disk. The template name is the
// file name without extension.
func LoadTemplate(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, core.NewConfigurationError(fmt.Sprintf("read workflow file %s: %v", path, err))
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return ParseTemplate(name, data)
}

// ParseTemplate decodes a node-id → {class_type, inputs} object, keeping the
// declared key order and resolving each node's role.
func ParseTemplate(name string, data []byte) (*Template, error) {
	if !gjson.ValidBytes(data) {
		return nil, core.NewConfigurationError("workflow is not valid JSON")
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, core.NewConfigurationError("workflow must be a JSON object of nodes")
	}
	if root.Get("nodes").IsArray() && root.Get("links").Exists() {
		return nil, core.NewConfigurationError("workflow is in editor format; export it in API format")
	}

	g := newGraph()
	var parseErr error
	root.ForEach(func(key, value gjson.Result) bool {
		n, err := parseNode(key.String(), value)
		if err == nil {
			err = g.add(n)
		}
		if err != nil {
			parseErr = err
			return false
		}
		return true
	})
	if parseErr != nil {
		return nil, core.NewConfigurationError(parseErr.Error())
	}
	if g.Len() == 0 {
		return nil, core.NewConfigurationError("workflow has no nodes")
	}

	return &Template{name: name, graph: g}, nil
}

func parseNode(id string, value gjson.Result) (*Node, error) {
	if !value.IsObject() {
		return nil, fmt.Errorf("node %q is not an object", id)
	}
	classType := value.Get("class_type")
	if classType.Type != gjson.String || classType.String() == "" {
		return nil, fmt.Errorf("node %q has no class_type", id)
	}

	inputs := make(map[string]any)
	if raw := value.Get("inputs"); raw.Exists() {
		if !raw.IsObject() {
			return nil, fmt.Errorf("node %q inputs must be an object", id)
		}
		// Numbers stay json.Number so untouched values are written back verbatim.
		dec := json.NewDecoder(strings.NewReader(raw.Raw))
		dec.UseNumber()
		if err := dec.Decode(&inputs); err != nil {
			return nil, fmt.Errorf("node %q inputs: %w", id, err)
		}
	}

	return &Node{
		id:        id,
		classType: classType.String(),
		role:      RoleOf(classType.String()),
		inputs:    inputs,
	}, nil
}

// Name identifies the pipeline in generation metadata.
func (t *Template) Name() string { return t.name }

// Len returns the number of nodes.
func (t *Template) Len() int { return t.graph.Len() }

// Graph returns a fresh deep copy for patching.
func (t *Template) Graph() *Graph { return t.graph.Clone() }

// FindNodes returns the ids of nodes with the class type, in declared order.
func (t *Template) FindNodes(classType string) []string { return t.graph.FindNodes(classType) }

// HasRole reports whether any node has the role.
func (t *Template) HasRole(role Role) bool {
	return len(t.graph.NodesWithRole(role)) > 0
}

// MarshalJSON encodes the template in declared order.
func (t *Template) MarshalJSON() ([]byte, error) { return t.graph.MarshalJSON() }
