package httpapi

import (
	"encoding/json"
	"net/http"
	"testing"

	"inferd/internal/backend"
	"inferd/internal/manager"
	"inferd/internal/registry"
	"inferd/pkg/types"
)

const addGraph = `
name: add
parameters:
  - {name: a, precision: FP32, shape: [1, 3], layout: NC}
  - {name: b, precision: FP32, shape: [1, 3], layout: NC}
results: [{name: sum, precision: FP32, shape: [1, 3], layout: NC}]
nodes: [{op: Add, inputs: [a, b], output: sum}]
`

func newManager(t *testing.T) *manager.Manager {
	t.Helper()
	g, err := backend.ParseGraph([]byte(addGraph), ".yaml")
	if err != nil {
		t.Fatalf("parse graph: %v", err)
	}
	m := manager.New([]registry.Entry{{Info: registry.Describe(g, ""), Graph: g}}, "add")
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestManagerRoundTrip(t *testing.T) {
	m := newManager(t)
	h := NewMux(m)

	if w := doRequest(h, http.MethodGet, "/readyz"); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected not ready before first load, got %d", w.Code)
	}

	w := postJSON(h, "/infer", addBody)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var resp types.InferResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	got := resp.Outputs["sum"].Data
	if len(got) != 3 || got[0] != 2 || got[1] != 3 || got[2] != 4 {
		t.Fatalf("sum=%v", got)
	}
	if len(resp.Perf) != 5 {
		t.Fatalf("perf=%v", resp.Perf)
	}
	if w := doRequest(h, http.MethodGet, "/readyz"); w.Code != http.StatusOK {
		t.Fatalf("expected ready, got %d", w.Code)
	}

	w = postJSON(h, "/infer", `{"inputs":{"a":{"data":[1,2,3]},"b":{"shape":[1,2],"data":[1,1]}}}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for wrong shape, got %d body=%s", w.Code, w.Body.String())
	}

	w = postJSON(h, "/infer", `{"network":"nope","inputs":{"a":{"data":[1]}}}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestManagerAsyncRoundTrip(t *testing.T) {
	h := NewMux(newManager(t))
	w := postJSON(h, "/infer/async", addBody)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var started types.StartAsyncResponse
	if err := json.Unmarshal(w.Body.Bytes(), &started); err != nil {
		t.Fatalf("json: %v", err)
	}
	w = doRequest(h, http.MethodGet, "/ops/"+started.ID+"?wait_ms=5000")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var st types.AsyncStatus
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("json: %v", err)
	}
	if st.Status != manager.OpOK || st.Result == nil {
		t.Fatalf("unexpected op: %+v", st)
	}
	if w := doRequest(h, http.MethodPost, "/ops/"+started.ID+"/cancel"); w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for finished op, got %d", w.Code)
	}
	if w := doRequest(h, http.MethodGet, "/ops/unknown"); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if w := doRequest(h, http.MethodDelete, "/networks/add"); w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if w := doRequest(h, http.MethodDelete, "/networks/add"); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after unload, got %d", w.Code)
	}
}
