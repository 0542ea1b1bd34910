package tensor

import (
	"fmt"
	"strings"
)

// Layout tags how dimensions are interpreted. No transposition is ever
// performed from a layout alone.
type Layout string

const (
	LayoutAny    Layout = "ANY"
	LayoutScalar Layout = "SCALAR"
	LayoutC      Layout = "C"
	LayoutNC     Layout = "NC"
	LayoutCHW    Layout = "CHW"
	LayoutNCHW   Layout = "NCHW"
	LayoutNHWC   Layout = "NHWC"
)

// ParseLayout is case-insensitive; the empty string means ANY.
func ParseLayout(s string) (Layout, error) {
	switch l := Layout(strings.ToUpper(strings.TrimSpace(s))); l {
	case "":
		return LayoutAny, nil
	case LayoutAny, LayoutScalar, LayoutC, LayoutNC, LayoutCHW, LayoutNCHW, LayoutNHWC:
		return l, nil
	}
	return LayoutAny, fmt.Errorf("unknown layout %q", s)
}

// Rank is the number of dimensions the layout implies, or -1 for ANY.
func (l Layout) Rank() int {
	switch l {
	case LayoutScalar:
		return 0
	case LayoutC:
		return 1
	case LayoutNC:
		return 2
	case LayoutCHW:
		return 3
	case LayoutNCHW, LayoutNHWC:
		return 4
	default:
		return -1
	}
}

func (l *Layout) UnmarshalText(b []byte) error {
	v, err := ParseLayout(string(b))
	if err != nil {
		return err
	}
	*l = v
	return nil
}
