package registry

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"inferd/internal/backend"
	"inferd/internal/common/fsutil"
	"inferd/internal/status"
	"inferd/pkg/types"
)

// Entry is a validated graph description found on disk.
type Entry struct {
	Info  types.NetworkInfo
	Graph *backend.Graph
}

// GraphScanner discovers graph description files by extension.
type GraphScanner struct {
	exts map[string]bool
}

// NewGraphScanner accepts .yaml, .yml, .json and .toml files.
func NewGraphScanner() *GraphScanner {
	return &GraphScanner{exts: map[string]bool{".yaml": true, ".yml": true, ".json": true, ".toml": true}}
}

// Scan decodes every graph file directly under dir, sorted by network name.
// A file that fails to decode or validate fails the scan, as do two files
// declaring the same network name.
func (s *GraphScanner) Scan(dir string) ([]Entry, error) {
	abs, err := fsutil.ResolveDir(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, errors.Wrap(err, "read dir")
	}
	var out []Entry
	seen := make(map[string]string)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !s.exts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		p := filepath.Join(abs, e.Name())
		g, err := backend.DecodeGraph(p)
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[g.Name]; dup {
			return nil, status.Named(status.InvalidArgument, g.Name, "network declared by both %s and %s", prev, p)
		}
		seen[g.Name] = p
		out = append(out, Entry{Info: Describe(g, p), Graph: g})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Info.Name < out[j].Info.Name })
	return out, nil
}

// LoadDir scans dir with the default graph scanner.
func LoadDir(dir string) ([]Entry, error) {
	return NewGraphScanner().Scan(dir)
}

// Describe builds the wire description of g.
func Describe(g *backend.Graph, path string) types.NetworkInfo {
	return types.NetworkInfo{
		Name:    g.Name,
		Path:    path,
		Nodes:   len(g.Nodes),
		Inputs:  portInfos(g.Parameters),
		Outputs: portInfos(g.Results),
	}
}

func portInfos(ports []backend.Port) []types.PortInfo {
	out := make([]types.PortInfo, len(ports))
	for i, p := range ports {
		shape := make([]int, len(p.Shape))
		for j, d := range p.Shape {
			shape[j] = int(d)
		}
		out[i] = types.PortInfo{Name: p.Name, Precision: p.Precision.String(), Shape: shape, Layout: string(p.Layout)}
	}
	return out
}
