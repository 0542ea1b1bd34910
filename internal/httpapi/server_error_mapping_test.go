package httpapi

import (
	"net/http"
	"testing"

	"github.com/pkg/errors"

	"inferd/internal/manager"
	"inferd/internal/status"
)

func TestInferErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"network not found", manager.ErrNetworkNotFound("missing"), http.StatusNotFound},
		{"too busy", manager.ErrTooBusy("add"), http.StatusTooManyRequests},
		{"dependency unavailable", manager.ErrDependencyUnavailable("no backend"), http.StatusServiceUnavailable},
		{"incompatible blob", status.Named(status.IncompatibleBlob, "a", "bad shape"), http.StatusBadRequest},
		{"unsupported conversion", status.Newf(status.UnsupportedPrecisionConversion, "FP16 -> U8"), http.StatusUnprocessableEntity},
		{"wrapped cancel", errors.Wrap(status.Named(status.InferCancelled, "r", "cancelled"), "infer"), http.StatusRequestTimeout},
		{"execution failed", status.Newf(status.ExecutionFailed, "boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			w := postJSON(NewMux(&mockService{inferErr: c.err}), "/infer", addBody)
			if w.Code != c.want {
				t.Fatalf("expected %d, got %d", c.want, w.Code)
			}
		})
	}
}

func TestUnloadNotFoundMaps404(t *testing.T) {
	svc := &mockService{unloadErr: manager.ErrNetworkNotFound("nope")}
	rec := doRequest(NewMux(svc), http.MethodDelete, "/networks/nope")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestStartAsyncNotFoundMaps404(t *testing.T) {
	svc := &mockService{startErr: manager.ErrNetworkNotFound("nope")}
	w := postJSON(NewMux(svc), "/infer/async", addBody)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}
