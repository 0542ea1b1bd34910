package tensor

import (
	"fmt"
	"strings"
)

// Precision is the numeric element type of a buffer.
type Precision int

const (
	Unspecified Precision = iota
	U8
	I32
	FP32
	FP16
)

var precisionNames = [...]string{
	Unspecified: "UNSPECIFIED",
	U8:          "U8",
	I32:         "I32",
	FP32:        "FP32",
	FP16:        "FP16",
}

// Size returns the number of bytes per element; 0 for Unspecified.
func (p Precision) Size() int {
	switch p {
	case U8:
		return 1
	case FP16:
		return 2
	case I32, FP32:
		return 4
	default:
		return 0
	}
}

func (p Precision) String() string {
	if p >= 0 && int(p) < len(precisionNames) {
		return precisionNames[p]
	}
	return fmt.Sprintf("Precision(%d)", int(p))
}

// ParsePrecision accepts the canonical names and the usual Go/numpy aliases.
func ParsePrecision(s string) (Precision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "u8", "uint8":
		return U8, nil
	case "i32", "int32":
		return I32, nil
	case "fp32", "f32", "float32":
		return FP32, nil
	case "fp16", "f16", "float16":
		return FP16, nil
	case "", "unspecified":
		return Unspecified, nil
	}
	return Unspecified, fmt.Errorf("unknown precision %q", s)
}

func (p Precision) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Precision) UnmarshalText(b []byte) error {
	v, err := ParsePrecision(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}
