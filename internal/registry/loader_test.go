package registry

import (
	"os"
	"path/filepath"
	"testing"

	"inferd/internal/status"
)

const addGraph = `
name: add
parameters:
  - {name: a, precision: FP32, shape: [1, 3], layout: NC}
  - {name: b, precision: FP32, shape: [1, 3], layout: NC}
results:
  - {name: out, precision: FP32, shape: [1, 3], layout: NC}
nodes:
  - {op: Add, inputs: [a, b], output: out}
`

const reluJSON = `{
  "parameters": [{"name": "x", "precision": "FP32", "shape": [1, -1]}],
  "results": [{"name": "y", "precision": "FP32", "shape": [1, -1]}],
  "nodes": [{"op": "Relu", "inputs": ["x"], "output": "y"}]
}`

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestGraphScanner_ScanFiltersExtensions(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "add.YAML", addGraph)
	writeFile(t, dir, "relu.json", reluJSON)
	writeFile(t, dir, "notes.txt", "not a graph")
	if err := os.Mkdir(filepath.Join(dir, "sub.yaml"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	entries, err := NewGraphScanner().Scan(dir)
	if err != nil {
		t.Fatalf("scan error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 networks, got %d", len(entries))
	}
	if entries[0].Info.Name != "add" || entries[1].Info.Name != "relu" {
		t.Fatalf("unexpected order: %q, %q", entries[0].Info.Name, entries[1].Info.Name)
	}
	add := entries[0].Info
	if add.Nodes != 1 || len(add.Inputs) != 2 || len(add.Outputs) != 1 {
		t.Fatalf("unexpected description: %+v", add)
	}
	if add.Inputs[0].Precision != "FP32" || add.Inputs[0].Layout != "NC" {
		t.Fatalf("unexpected port: %+v", add.Inputs[0])
	}
	relu := entries[1].Info
	if got := relu.Inputs[0].Shape; len(got) != 2 || got[1] != -1 {
		t.Fatalf("dynamic dim lost: %v", got)
	}
	if filepath.Base(relu.Path) != "relu.json" || !filepath.IsAbs(relu.Path) {
		t.Fatalf("unexpected path: %s", relu.Path)
	}
	if entries[1].Graph == nil || entries[1].Graph.Name != "relu" {
		t.Fatalf("graph not attached")
	}
}

func TestGraphScanner_InvalidGraphFailsScan(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad.yaml", "name: bad\nparameters: []\nresults: []\n")
	if _, err := LoadDir(dir); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestGraphScanner_DuplicateNames(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", addGraph)
	writeFile(t, dir, "b.yaml", addGraph)
	_, err := LoadDir(dir)
	if !status.Is(err, status.InvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestGraphScanner_MissingDir(t *testing.T) {
	if _, err := LoadDir(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatalf("expected error for missing dir")
	}
}

func TestGraphScanner_ExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home dir on this platform: %v", err)
	}
	hTmp, err := os.MkdirTemp(home, "inferd-registry-*")
	if err != nil {
		t.Skipf("cannot create temp under home: %v", err)
	}
	defer os.RemoveAll(hTmp)
	writeFile(t, hTmp, "add.yaml", addGraph)

	entries, err := LoadDir("~/" + filepath.Base(hTmp))
	if err != nil {
		t.Fatalf("scan error: %v", err)
	}
	if len(entries) != 1 || entries[0].Info.Name != "add" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}
