package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"inferd/internal/status"
	"inferd/internal/tensor"
)

// Port describes a graph parameter or result.
type Port struct {
	Name      string              `json:"name" yaml:"name" toml:"name"`
	Precision tensor.Precision    `json:"precision" yaml:"precision" toml:"precision"`
	Shape     tensor.PartialShape `json:"shape" yaml:"shape" toml:"shape"`
	Layout    tensor.Layout       `json:"layout,omitempty" yaml:"layout,omitempty" toml:"layout,omitempty"`
}

// Node is one operation. Op-specific attributes are plain fields.
type Node struct {
	Op     string   `json:"op" yaml:"op" toml:"op"`
	Inputs []string `json:"inputs" yaml:"inputs" toml:"inputs"`
	Output string   `json:"output" yaml:"output" toml:"output"`
	// Value is the factor of Scale.
	Value float64 `json:"value,omitempty" yaml:"value,omitempty" toml:"value,omitempty"`
	// Precision is the target of Convert.
	Precision tensor.Precision `json:"precision,omitempty" yaml:"precision,omitempty" toml:"precision,omitempty"`
	// DelayMS stalls the node, honoring cancellation.
	DelayMS int `json:"delay_ms,omitempty" yaml:"delay_ms,omitempty" toml:"delay_ms,omitempty"`
}

// Graph is a device-independent description of a network.
type Graph struct {
	Name       string `json:"name" yaml:"name" toml:"name"`
	Parameters []Port `json:"parameters" yaml:"parameters" toml:"parameters"`
	Results    []Port `json:"results" yaml:"results" toml:"results"`
	Nodes      []Node `json:"nodes" yaml:"nodes" toml:"nodes"`
}

// DecodeGraph reads a graph description, choosing the decoder by extension.
// The graph name defaults to the file name without extension.
func DecodeGraph(path string) (*Graph, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read graph %s", path)
	}
	ext := strings.ToLower(filepath.Ext(path))
	g, err := ParseGraph(b, ext)
	if err != nil {
		return nil, errors.Wrapf(err, "graph %s", path)
	}
	if g.Name == "" {
		g.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return g, g.Validate()
}

// ParseGraph decodes b in the format named by ext (".yaml", ".yml", ".json", ".toml").
func ParseGraph(b []byte, ext string) (*Graph, error) {
	var g Graph
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &g); err != nil {
			return nil, err
		}
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&g); err != nil {
			return nil, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &g); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported graph format %q", ext)
	}
	return &g, nil
}

// Validate checks that names are unique, every node input is defined before
// use and every result is produced.
func (g *Graph) Validate() error {
	if g.Name == "" {
		return status.Newf(status.InvalidArgument, "graph has no name")
	}
	if len(g.Parameters) == 0 {
		return status.Newf(status.InvalidArgument, "graph %s has no parameters", g.Name)
	}
	if len(g.Results) == 0 {
		return status.Newf(status.InvalidArgument, "graph %s has no results", g.Name)
	}
	defined := make(map[string]bool)
	for _, p := range g.Parameters {
		if err := validatePort(g.Name, p); err != nil {
			return err
		}
		if defined[p.Name] {
			return status.Named(status.InvalidArgument, p.Name, "graph %s: duplicate parameter", g.Name)
		}
		defined[p.Name] = true
	}
	for i, n := range g.Nodes {
		if !IsKnownOp(n.Op) {
			return status.Newf(status.InvalidArgument, "graph %s: node %d: unknown op %q", g.Name, i, n.Op)
		}
		if want := opArity[n.Op]; len(n.Inputs) != want {
			return status.Newf(status.InvalidArgument, "graph %s: node %d (%s): want %d inputs, got %d", g.Name, i, n.Op, want, len(n.Inputs))
		}
		for _, in := range n.Inputs {
			if !defined[in] {
				return status.Named(status.InvalidArgument, in, "graph %s: node %d (%s) uses undefined value", g.Name, i, n.Op)
			}
		}
		if n.Output == "" || defined[n.Output] {
			return status.Named(status.InvalidArgument, n.Output, "graph %s: node %d (%s) output missing or redefined", g.Name, i, n.Op)
		}
		if n.Op == "Convert" && n.Precision.Size() == 0 {
			return status.Newf(status.InvalidArgument, "graph %s: node %d: Convert needs a precision", g.Name, i)
		}
		defined[n.Output] = true
	}
	seen := make(map[string]bool)
	for _, r := range g.Results {
		if err := validatePort(g.Name, r); err != nil {
			return err
		}
		if seen[r.Name] {
			return status.Named(status.InvalidArgument, r.Name, "graph %s: duplicate result", g.Name)
		}
		seen[r.Name] = true
		if !defined[r.Name] {
			return status.Named(status.InvalidArgument, r.Name, "graph %s: result is never produced", g.Name)
		}
	}
	return nil
}

func validatePort(graph string, p Port) error {
	if p.Name == "" {
		return status.Newf(status.InvalidArgument, "graph %s: port without a name", graph)
	}
	if p.Precision.Size() == 0 {
		return status.Named(status.InvalidArgument, p.Name, "graph %s: missing precision", graph)
	}
	for _, d := range p.Shape {
		if d < tensor.Dynamic {
			return status.Named(status.InvalidArgument, p.Name, "graph %s: bad dimension %d", graph, d)
		}
	}
	return nil
}

var opArity = map[string]int{
	"Identity":       1,
	"Relu":           1,
	"Convert":        1,
	"Scale":          1,
	"FilterPositive": 1,
	"Add":            2,
	"Subtract":       2,
	"Multiply":       2,
}

// IsKnownOp reports whether op is part of the graph vocabulary.
func IsKnownOp(op string) bool {
	_, ok := opArity[op]
	return ok
}

// ParameterIndex returns the position of a parameter, or -1.
func (g *Graph) ParameterIndex(name string) int {
	for i, p := range g.Parameters {
		if p.Name == name {
			return i
		}
	}
	return -1
}

// ResultIndex returns the position of a result, or -1.
func (g *Graph) ResultIndex(name string) int {
	for i, r := range g.Results {
		if r.Name == name {
			return i
		}
	}
	return -1
}
