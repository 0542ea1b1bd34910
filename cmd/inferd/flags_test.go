package main

import "testing"

func TestSplitCSV(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"a,b,c", []string{"a", "b", "c"}},
		{" a , b , c ", []string{"a", "b", "c"}},
		{"a,,c", []string{"a", "c"}},
		{" , ", nil},
		{"", nil},
	}
	for _, c := range cases {
		got := splitCSV(c.in)
		if len(got) != len(c.want) {
			t.Fatalf("%q -> %v, want %v", c.in, got, c.want)
		}
		for i := range got {
			if got[i] != c.want[i] {
				t.Fatalf("%q -> %v, want %v", c.in, got, c.want)
			}
		}
	}
}

func TestParseAssignments(t *testing.T) {
	got, err := parseAssignments("input", []string{"a=1,2", " b = 3 "})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got["a"] != "1,2" || got["b"] != "3" {
		t.Fatalf("unexpected: %v", got)
	}
	for _, bad := range [][]string{{"noequals"}, {"=1"}, {"a=1", "a=2"}} {
		if _, err := parseAssignments("input", bad); err == nil {
			t.Fatalf("expected error for %v", bad)
		}
	}
}

func TestParseInputsShapesPrecisions(t *testing.T) {
	in, err := parseInputs([]string{"x=1, -2.5,3e2"})
	if err != nil {
		t.Fatalf("inputs: %v", err)
	}
	if v := in["x"]; len(v) != 3 || v[0] != 1 || v[1] != -2.5 || v[2] != 300 {
		t.Fatalf("unexpected values: %v", v)
	}
	if _, err := parseInputs([]string{"x=1,abc"}); err == nil {
		t.Fatalf("expected error for non-numeric value")
	}

	sh, err := parseShapes([]string{"x=1x4"})
	if err != nil {
		t.Fatalf("shapes: %v", err)
	}
	if sh["x"].String() != "[1,4]" {
		t.Fatalf("shape: %v", sh["x"])
	}
	if _, err := parseShapes([]string{"x=1xq"}); err == nil {
		t.Fatalf("expected error for bad shape")
	}

	pr, err := parsePrecisions([]string{"x=i32"})
	if err != nil {
		t.Fatalf("precisions: %v", err)
	}
	if pr["x"].String() != "I32" {
		t.Fatalf("precision: %v", pr["x"])
	}
	if pr, err := parsePrecisions(nil); err != nil || pr != nil {
		t.Fatalf("empty precisions: %v %v", pr, err)
	}
	if _, err := parsePrecisions([]string{"x=complex"}); err == nil {
		t.Fatalf("expected error for unknown precision")
	}
}
