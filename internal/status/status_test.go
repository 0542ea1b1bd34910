package status

import (
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessage(t *testing.T) {
	err := Named(NotFound, "data", "no such input")
	assert.Equal(t, "not found [data]: no such input", err.Error())

	wrapped := Wrap(ExecutionFailed, errors.New("boom"), "backend call")
	assert.Equal(t, "execution failed: backend call: boom", wrapped.Error())
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Wrap(ExecutionFailed, nil, "x"))
}

func TestCodeOfWalksChain(t *testing.T) {
	base := Newf(ShapeNotResolved, "dims unknown")
	err := errors.Wrap(base, "get blob")
	require.Equal(t, ShapeNotResolved, CodeOf(err))
	assert.True(t, IsShapeNotResolved(err))
	assert.False(t, IsNotFound(err))

	assert.Equal(t, OK, CodeOf(nil))
	assert.Equal(t, ExecutionFailed, CodeOf(errors.New("foreign")))
}

func TestIsFindsNestedCode(t *testing.T) {
	inner := Newf(AllocationFailed, "too big")
	outer := Wrap(ExecutionFailed, inner, "preprocess")
	assert.True(t, IsExecutionFailed(outer))
	assert.True(t, IsAllocationFailed(outer))
	assert.False(t, IsRequestBusy(outer))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		NotFound:                       http.StatusNotFound,
		IncompatibleBlob:               http.StatusBadRequest,
		RequestBusy:                    http.StatusConflict,
		UnsupportedPrecisionConversion: http.StatusUnprocessableEntity,
		ExecutionFailed:                http.StatusInternalServerError,
	}
	for c, want := range cases {
		assert.Equal(t, want, HTTPStatus(c), c.String())
	}
	var se *Error
	require.True(t, errors.As(Newf(NotFound, "x"), &se))
	assert.Equal(t, http.StatusNotFound, se.StatusCode())
}
