package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"inferd/internal/httpapi"
	"inferd/internal/manager"
	"inferd/internal/registry"
	"inferd/pkg/types"
)

var graphSources = map[string]string{
	"add.yaml": `
name: add
parameters:
  - {name: a, precision: FP32, shape: [1, 3], layout: NC}
  - {name: b, precision: FP32, shape: [1, 3], layout: NC}
results: [{name: sum, precision: FP32, shape: [1, 3], layout: NC}]
nodes: [{op: Add, inputs: [a, b], output: sum}]
`,
	"relu.json": `{
  "name": "relu",
  "parameters": [{"name": "x", "precision": "FP32", "shape": [1, 4], "layout": "NC"}],
  "results": [{"name": "y", "precision": "FP32", "shape": [1, 4], "layout": "NC"}],
  "nodes": [{"op": "Relu", "inputs": ["x"], "output": "y"}]
}`,
	"slow.toml": `
name = "slow"

[[parameters]]
name = "x"
precision = "FP32"
shape = [1, 3]
layout = "NC"

[[results]]
name = "y"
precision = "FP32"
shape = [1, 3]
layout = "NC"

[[nodes]]
op = "Identity"
inputs = ["x"]
output = "y"
delay_ms = 400
`,
	"stuck.yaml": `
name: stuck
parameters: [{name: x, precision: FP32, shape: [1, 3], layout: NC}]
results: [{name: y, precision: FP32, shape: [1, 3], layout: NC}]
nodes: [{op: Identity, inputs: [x], output: y, delay_ms: 5000}]
`,
}

// createGraphsDir writes the named graph files into a temporary directory.
func createGraphsDir(t *testing.T, files ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, f := range files {
		src, ok := graphSources[f]
		if !ok {
			t.Fatalf("unknown graph fixture %s", f)
		}
		if err := os.WriteFile(filepath.Join(dir, f), []byte(src), 0o644); err != nil {
			t.Fatalf("write graph %s: %v", f, err)
		}
	}
	return dir
}

// newServerForDir scans dir and serves it through the full HTTP stack.
func newServerForDir(t *testing.T, dir string, cfg manager.ManagerConfig) (*httptest.Server, *manager.Manager) {
	t.Helper()
	reg, err := registry.LoadDir(dir)
	if err != nil {
		t.Fatalf("scan graphs: %v", err)
	}
	cfg.Registry = reg
	mgr := manager.NewWithConfig(cfg)
	srv := httptest.NewServer(httpapi.NewMux(mgr))
	t.Cleanup(func() {
		srv.Close()
		_ = mgr.Close()
	})
	return srv, mgr
}

func do(t *testing.T, method, url string, payload []byte) (*http.Response, []byte) {
	t.Helper()
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, url, body)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, b
}

func inferBody(t *testing.T, network string, inputs map[string][]float64) []byte {
	t.Helper()
	req := types.InferRequest{Network: network, Inputs: map[string]types.TensorData{}}
	for k, v := range inputs {
		req.Inputs[k] = types.TensorData{Data: v}
	}
	b, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func getStatus(t *testing.T, srv *httptest.Server) types.StatusResponse {
	t.Helper()
	resp, body := do(t, http.MethodGet, srv.URL+"/status", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: %d %s", resp.StatusCode, body)
	}
	var st types.StatusResponse
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	return st
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
