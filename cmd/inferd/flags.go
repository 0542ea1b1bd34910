package main

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"inferd/internal/tensor"
)

// splitCSV splits a comma-separated list, trimming spaces and dropping empty
// entries.
func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// parseAssignments parses repeated name=value flags. A name may appear once.
func parseAssignments(flag string, vals []string) (map[string]string, error) {
	out := make(map[string]string, len(vals))
	for _, v := range vals {
		name, val, ok := strings.Cut(v, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, errors.Errorf("--%s %q: want name=value", flag, v)
		}
		if _, dup := out[name]; dup {
			return nil, errors.Errorf("--%s: %s given twice", flag, name)
		}
		out[name] = strings.TrimSpace(val)
	}
	return out, nil
}

// parseValues parses "1,2.5,-3" into float64 values.
func parseValues(s string) ([]float64, error) {
	parts := splitCSV(s)
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		x, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, errors.Errorf("invalid value %q", p)
		}
		out = append(out, x)
	}
	return out, nil
}

func parseInputs(vals []string) (map[string][]float64, error) {
	kv, err := parseAssignments("input", vals)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]float64, len(kv))
	for name, v := range kv {
		if out[name], err = parseValues(v); err != nil {
			return nil, errors.Wrapf(err, "--input %s", name)
		}
	}
	return out, nil
}

func parseShapes(vals []string) (map[string]tensor.Shape, error) {
	kv, err := parseAssignments("shape", vals)
	if err != nil {
		return nil, err
	}
	out := make(map[string]tensor.Shape, len(kv))
	for name, v := range kv {
		if out[name], err = tensor.ParseShape(v); err != nil {
			return nil, errors.Wrapf(err, "--shape %s", name)
		}
	}
	return out, nil
}

func parsePrecisions(vals []string) (map[string]tensor.Precision, error) {
	kv, err := parseAssignments("precision", vals)
	if err != nil || len(kv) == 0 {
		return nil, err
	}
	out := make(map[string]tensor.Precision, len(kv))
	for name, v := range kv {
		if out[name], err = tensor.ParsePrecision(v); err != nil {
			return nil, errors.Wrapf(err, "--precision %s", name)
		}
	}
	return out, nil
}
