package tensor

import (
	"fmt"
	"strconv"
	"strings"
)

// Dim is a single dimension of a partial shape. Dynamic marks an unknown extent.
type Dim int64

const Dynamic Dim = -1

// Shape is a fully known shape. The empty shape is a scalar.
type Shape []int

// Size returns the number of elements.
func (s Shape) Size() int {
	n := 1
	for _, d := range s {
		n *= d
	}
	return n
}

func (s Shape) Equal(o Shape) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

func (s Shape) Clone() Shape {
	if s == nil {
		return nil
	}
	return append(Shape{}, s...)
}

func (s Shape) String() string {
	parts := make([]string, len(s))
	for i, d := range s {
		parts[i] = strconv.Itoa(d)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// ParseShape parses "1x3x224x224" or "1,3,224,224".
func ParseShape(v string) (Shape, error) {
	v = strings.TrimSpace(strings.Trim(v, "[]"))
	if v == "" {
		return Shape{}, nil
	}
	sep := ","
	if strings.Contains(v, "x") {
		sep = "x"
	}
	var out Shape
	for _, p := range strings.Split(v, sep) {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid dimension %q in shape %q", p, v)
		}
		out = append(out, n)
	}
	return out, nil
}

// PartialShape may contain Dynamic dimensions.
type PartialShape []Dim

// StaticShape lifts a concrete shape into a PartialShape.
func StaticShape(s Shape) PartialShape {
	out := make(PartialShape, len(s))
	for i, d := range s {
		out[i] = Dim(d)
	}
	return out
}

func (p PartialShape) IsStatic() bool {
	for _, d := range p {
		if d < 0 {
			return false
		}
	}
	return true
}

// ToShape returns the concrete shape when every dimension is known.
func (p PartialShape) ToShape() (Shape, bool) {
	if !p.IsStatic() {
		return nil, false
	}
	out := make(Shape, len(p))
	for i, d := range p {
		out[i] = int(d)
	}
	return out, true
}

// Compatible reports whether s has the same rank and agrees on every static dimension.
func (p PartialShape) Compatible(s Shape) bool {
	if len(p) != len(s) {
		return false
	}
	for i, d := range p {
		if d >= 0 && int(d) != s[i] {
			return false
		}
	}
	return true
}

func (p PartialShape) String() string {
	parts := make([]string, len(p))
	for i, d := range p {
		if d < 0 {
			parts[i] = "?"
		} else {
			parts[i] = strconv.FormatInt(int64(d), 10)
		}
	}
	return "[" + strings.Join(parts, ",") + "]"
}
