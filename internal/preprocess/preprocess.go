// Package preprocess prepares U8 image inputs for a network: resizing to the
// network's spatial size and swapping BGR/RGB channel order.
package preprocess

import (
	"image"
	"image/color"
	"strings"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"

	"inferd/internal/status"
	"inferd/internal/tensor"
)

// ResizeAlgorithm selects how spatial dims are adapted.
type ResizeAlgorithm int

const (
	ResizeNone ResizeAlgorithm = iota
	ResizeBilinear
	ResizeNearest
)

func (r ResizeAlgorithm) String() string {
	switch r {
	case ResizeBilinear:
		return "bilinear"
	case ResizeNearest:
		return "nearest"
	}
	return "none"
}

// ColorFormat is the channel order of an image.
type ColorFormat int

const (
	// ColorRaw performs no channel reordering.
	ColorRaw ColorFormat = iota
	ColorBGR
	ColorRGB
)

func (c ColorFormat) String() string {
	switch c {
	case ColorBGR:
		return "BGR"
	case ColorRGB:
		return "RGB"
	}
	return "RAW"
}

// ParseResize accepts "", "none", "bilinear", "nearest".
func ParseResize(s string) (ResizeAlgorithm, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return ResizeNone, nil
	case "bilinear", "linear":
		return ResizeBilinear, nil
	case "nearest":
		return ResizeNearest, nil
	}
	return ResizeNone, status.Newf(status.InvalidArgument, "unknown resize algorithm %q", s)
}

// ParseColor accepts "", "raw", "bgr", "rgb".
func ParseColor(s string) (ColorFormat, error) {
	switch strings.ToLower(s) {
	case "", "raw":
		return ColorRaw, nil
	case "bgr":
		return ColorBGR, nil
	case "rgb":
		return ColorRGB, nil
	}
	return ColorRaw, status.Newf(status.InvalidArgument, "unknown color format %q", s)
}

// Info is the preprocessing attached to one input binding.
type Info struct {
	Resize ResizeAlgorithm
	Color  ColorFormat
}

// IsZero reports whether the info requests no work.
func (i Info) IsZero() bool { return i.Resize == ResizeNone && i.Color == ColorRaw }

type geometry struct {
	n, c, h, w int
	nhwc       bool
}

func geometryOf(d tensor.Shape, l tensor.Layout) (geometry, error) {
	if len(d) != 4 {
		return geometry{}, status.Newf(status.InvalidArgument, "preprocess needs a 4D image, got %s", d)
	}
	switch l {
	case tensor.LayoutNHWC:
		return geometry{n: d[0], h: d[1], w: d[2], c: d[3], nhwc: true}, nil
	case tensor.LayoutNCHW, tensor.LayoutAny:
		return geometry{n: d[0], c: d[1], h: d[2], w: d[3]}, nil
	}
	return geometry{}, status.Newf(status.InvalidArgument, "preprocess does not handle layout %s", l)
}

func (g geometry) index(n, c, y, x int) int {
	if g.nhwc {
		return ((n*g.h+y)*g.w+x)*g.c + c
	}
	return ((n*g.c+c)*g.h+y)*g.w + x
}

// Validate checks that src can be preprocessed into a buffer described by dst.
func Validate(src *tensor.Buffer, dst tensor.Desc, info Info) error {
	if src.Precision() != tensor.U8 {
		return status.Newf(status.InvalidArgument, "preprocess input must be U8, got %s", src.Precision())
	}
	sg, err := geometryOf(src.Dims(), src.Layout())
	if err != nil {
		return err
	}
	dg, err := geometryOf(dst.Dims, dst.Layout)
	if err != nil {
		return err
	}
	if sg.c != 1 && sg.c != 3 {
		return status.Newf(status.InvalidArgument, "preprocess supports 1 or 3 channels, got %d", sg.c)
	}
	if sg.n != dg.n || sg.c != dg.c {
		return status.Newf(status.IncompatibleBlob, "image N/C %d/%d do not match network %d/%d", sg.n, sg.c, dg.n, dg.c)
	}
	if info.Resize == ResizeNone && (sg.h != dg.h || sg.w != dg.w) {
		return status.Newf(status.IncompatibleBlob, "image %dx%d needs resizing to %dx%d", sg.w, sg.h, dg.w, dg.h)
	}
	return nil
}

// Apply writes the preprocessed src into dst. netColor is the channel order
// the network expects; a swap happens only when both sides name an order and
// they differ.
func Apply(src, dst *tensor.Buffer, info Info, netColor ColorFormat) error {
	if err := Validate(src, dst.Desc(), info); err != nil {
		return err
	}
	sg, _ := geometryOf(src.Dims(), src.Layout())
	dg, _ := geometryOf(dst.Dims(), dst.Layout())
	swap := sg.c == 3 && info.Color != ColorRaw && netColor != ColorRaw && info.Color != netColor

	in := src.Uint8s()
	out := make([]float64, dst.Len())
	for n := 0; n < sg.n; n++ {
		img := toImage(in, sg, n)
		if info.Resize != ResizeNone && (sg.h != dg.h || sg.w != dg.w) {
			interp := resize.Bilinear
			if info.Resize == ResizeNearest {
				interp = resize.NearestNeighbor
			}
			img = resize.Resize(uint(dg.w), uint(dg.h), img, interp)
		}
		b := img.Bounds()
		for y := 0; y < dg.h; y++ {
			for x := 0; x < dg.w; x++ {
				px := channels(img.At(b.Min.X+x, b.Min.Y+y))
				for c := 0; c < dg.c; c++ {
					sc := c
					if swap {
						sc = 2 - c
					}
					out[dg.index(n, c, y, x)] = float64(px[sc])
				}
			}
		}
	}
	return errors.Wrap(dst.SetFloat64s(out), "preprocess")
}

func toImage(data []uint8, g geometry, n int) image.Image {
	rect := image.Rect(0, 0, g.w, g.h)
	if g.c == 1 {
		img := image.NewGray(rect)
		for y := 0; y < g.h; y++ {
			for x := 0; x < g.w; x++ {
				img.Pix[y*img.Stride+x] = data[g.index(n, 0, y, x)]
			}
		}
		return img
	}
	img := image.NewRGBA(rect)
	for y := 0; y < g.h; y++ {
		for x := 0; x < g.w; x++ {
			o := y*img.Stride + x*4
			img.Pix[o] = data[g.index(n, 0, y, x)]
			img.Pix[o+1] = data[g.index(n, 1, y, x)]
			img.Pix[o+2] = data[g.index(n, 2, y, x)]
			img.Pix[o+3] = 0xff
		}
	}
	return img
}

func channels(c color.Color) [3]uint8 {
	r, g, b, _ := c.RGBA()
	return [3]uint8{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8)}
}
