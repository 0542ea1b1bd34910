package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inferd/internal/status"
)

func TestPrecisionParseAndSize(t *testing.T) {
	cases := []struct {
		in   string
		want Precision
		size int
	}{
		{"U8", U8, 1},
		{"uint8", U8, 1},
		{"fp32", FP32, 4},
		{"float16", FP16, 2},
		{"I32", I32, 4},
	}
	for _, c := range cases {
		p, err := ParsePrecision(c.in)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.want, p)
		assert.Equal(t, c.size, p.Size())
	}
	_, err := ParsePrecision("bf16")
	assert.Error(t, err)

	var p Precision
	require.NoError(t, p.UnmarshalText([]byte("FP32")))
	assert.Equal(t, FP32, p)
}

func TestPartialShape(t *testing.T) {
	ps := PartialShape{1, Dynamic, 3}
	assert.False(t, ps.IsStatic())
	assert.Equal(t, "[1,?,3]", ps.String())
	assert.True(t, ps.Compatible(Shape{1, 7, 3}))
	assert.False(t, ps.Compatible(Shape{2, 7, 3}))
	assert.False(t, ps.Compatible(Shape{1, 7}))

	s, ok := PartialShape{2, 3}.ToShape()
	require.True(t, ok)
	assert.Equal(t, Shape{2, 3}, s)
	assert.Equal(t, 6, s.Size())
	assert.Equal(t, 1, Shape{}.Size())
}

func TestParseShape(t *testing.T) {
	s, err := ParseShape("1x3x4")
	require.NoError(t, err)
	assert.Equal(t, Shape{1, 3, 4}, s)
	s, err = ParseShape("[2,5]")
	require.NoError(t, err)
	assert.Equal(t, Shape{2, 5}, s)
	_, err = ParseShape("1x-3")
	assert.Error(t, err)
}

func TestAllocateOwned(t *testing.T) {
	var observed int
	a := Allocator{Observe: func(_ Desc, n int) { observed += n }}
	b, err := a.Allocate(NewDesc(FP32, Shape{2, 3}, LayoutNC))
	require.NoError(t, err)
	assert.Equal(t, Owned, b.Ownership())
	assert.Len(t, b.Float32s(), 6)
	assert.Equal(t, 24, observed)
	assert.Nil(t, b.AliasOf())
}

func TestAllocateLimit(t *testing.T) {
	a := Allocator{MaxBytes: 16}
	_, err := a.Allocate(NewDesc(FP32, Shape{1, 8}, LayoutNC))
	require.Error(t, err)
	assert.True(t, status.IsAllocationFailed(err))
}

func TestAllocateOverflow(t *testing.T) {
	_, err := Allocate(NewDesc(FP32, Shape{1 << 40, 1 << 40}, LayoutAny))
	require.Error(t, err)
	assert.True(t, status.IsAllocationFailed(err))
}

func TestWrapBorrowsMemory(t *testing.T) {
	v := []float32{1, 2, 3}
	b, err := WrapFloat32s(Shape{1, 3}, LayoutNC, v)
	require.NoError(t, err)
	assert.Equal(t, Borrowed, b.Ownership())
	v[1] = 42
	assert.Equal(t, float32(42), b.Float32s()[1])

	_, err = WrapFloat32s(Shape{1, 4}, LayoutNC, v)
	assert.True(t, status.IsIncompatibleBlob(err))
}

func TestAliasSharesMemory(t *testing.T) {
	b, err := Allocate(NewDesc(U8, Shape{4}, LayoutC))
	require.NoError(t, err)
	a := Alias(b)
	assert.Equal(t, Aliased, a.Ownership())
	assert.Same(t, b, a.AliasOf())
	assert.True(t, a.SameMemory(b))
	a.Uint8s()[2] = 9
	assert.Equal(t, uint8(9), b.Uint8s()[2])
}

func TestTypedViewPrecisionMismatchPanics(t *testing.T) {
	b, err := Allocate(NewDesc(U8, Shape{1}, LayoutC))
	require.NoError(t, err)
	assert.Panics(t, func() { _ = b.Float32s() })
}

func TestSetFloat64sSaturates(t *testing.T) {
	b, err := Allocate(NewDesc(U8, Shape{4}, LayoutC))
	require.NoError(t, err)
	require.NoError(t, b.SetFloat64s([]float64{-3, 1.9, 255, 300}))
	assert.Equal(t, []uint8{0, 1, 255, 255}, b.Uint8s())
	assert.Equal(t, []float64{0, 1, 255, 255}, b.Float64s())

	assert.True(t, status.IsIncompatibleBlob(b.SetFloat64s([]float64{1})))
}

func TestScalarLayoutNormalized(t *testing.T) {
	d := NewDesc(FP32, Shape{3}, LayoutScalar)
	assert.Equal(t, LayoutAny, d.Layout)
	assert.True(t, d.Equal(NewDesc(FP32, Shape{3}, LayoutC)))
}

func TestReleaseOnlyDropsOwned(t *testing.T) {
	v := []uint8{1, 2}
	borrowed, err := WrapUint8s(Shape{2}, LayoutC, v)
	require.NoError(t, err)
	borrowed.Release()
	assert.Len(t, borrowed.Bytes(), 2)

	owned, err := Allocate(NewDesc(U8, Shape{2}, LayoutC))
	require.NoError(t, err)
	owned.Release()
	assert.Empty(t, owned.Uint8s())
}
