package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"inferd/internal/backend"
	"inferd/internal/backend/reference"
	"inferd/internal/runtime"
	"inferd/internal/status"
)

type runOptions struct {
	device     string
	inputs     []string
	shapes     []string
	precisions []string
	iterations int
	async      bool
	events     bool
}

func newRunCmd() *cobra.Command {
	o := runOptions{}
	cmd := &cobra.Command{
		Use:     "run <graph-file>",
		Short:   "Load one graph and run inference requests against it",
		Example: "  inferd run add.yaml --input a=1,2,3 --input b=4,5,6\n  inferd run dyn.yaml --shape x=1x4 --input x=1,-2,3,-4 --iterations 100",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGraph(cmd, args[0], o)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.device, "device", reference.Device, "Device to load the network on")
	f.StringArrayVar(&o.inputs, "input", nil, "Input values as name=v1,v2,... (repeatable)")
	f.StringArrayVar(&o.shapes, "shape", nil, "Input shape for dynamic ports as name=1x3 (repeatable)")
	f.StringArrayVar(&o.precisions, "precision", nil, "Input precision override as name=FP32 (repeatable)")
	f.IntVar(&o.iterations, "iterations", 1, "Number of inferences to run")
	f.BoolVar(&o.async, "async", false, "Use StartAsync and Wait instead of synchronous Infer")
	f.BoolVar(&o.events, "events", false, "Print runtime events to stderr")
	return cmd
}

func runGraph(cmd *cobra.Command, path string, o runOptions) error {
	if o.iterations < 1 {
		return errors.Errorf("--iterations must be at least 1, got %d", o.iterations)
	}
	inputs, err := parseInputs(o.inputs)
	if err != nil {
		return err
	}
	shapes, err := parseShapes(o.shapes)
	if err != nil {
		return err
	}
	precs, err := parsePrecisions(o.precisions)
	if err != nil {
		return err
	}
	g, err := backend.DecodeGraph(path)
	if err != nil {
		return err
	}
	backends := backend.NewRegistry()
	reference.Register(backends)
	b, err := backends.Get(o.device)
	if err != nil {
		return err
	}

	cfg := runtime.Config{Streams: 1, InputPrecisions: precs}
	if o.events {
		cfg.Events = eventPrinter{w: cmd.ErrOrStderr()}
	}
	net, err := runtime.LoadNetwork(b, g, cfg)
	if err != nil {
		return err
	}
	defer net.Close()
	req, err := net.CreateInferRequest()
	if err != nil {
		return err
	}
	defer req.Close()

	for name, dims := range shapes {
		if err := req.SetShape(name, dims); err != nil {
			return err
		}
	}
	for name := range inputs {
		if _, ok := net.Input(name); !ok {
			return status.Named(status.NotFound, name, "network %s has no such input", net.Name())
		}
	}
	for _, p := range net.Inputs() {
		vals, ok := inputs[p.Name]
		if !ok {
			return errors.Errorf("missing --input %s (%s %s)", p.Name, p.Precision, p.Shape)
		}
		buf, err := req.GetBlob(p.Name)
		if err != nil {
			return err
		}
		if err := buf.SetFloat64s(vals); err != nil {
			return errors.Wrapf(err, "input %s", p.Name)
		}
	}

	start := time.Now()
	for i := 0; i < o.iterations; i++ {
		if err := inferOnce(cmd, req, o.async); err != nil {
			return errors.Wrapf(err, "iteration %d", i+1)
		}
	}
	elapsed := time.Since(start)

	w := cmd.OutOrStdout()
	for _, p := range net.Outputs() {
		buf, err := req.GetBlob(p.Name)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s %s %s: %s\n", p.Name, buf.Precision(), buf.Dims(), formatValues(buf.Float64s()))
	}
	fmt.Fprintf(w, "\n%s iteration(s) in %s (%.1f/s)\n", humanize.Comma(int64(o.iterations)), elapsed.Round(time.Microsecond), float64(o.iterations)/elapsed.Seconds())
	writePerfTable(w, req.GetPerformanceCounts())
	return nil
}

func inferOnce(cmd *cobra.Command, req *runtime.Request, async bool) error {
	if !async {
		return req.InferContext(cmd.Context())
	}
	if err := req.StartAsync(); err != nil {
		return err
	}
	if st := req.Wait(runtime.WaitResultReady); st != runtime.StatusOK {
		if err := req.LastError(); err != nil {
			return err
		}
		return errors.Errorf("request %s ended with %s", req.Name(), st)
	}
	return nil
}

func formatValues(v []float64) string {
	const maxShown = 16
	parts := make([]string, 0, min(len(v), maxShown)+1)
	for i, x := range v {
		if i == maxShown {
			parts = append(parts, fmt.Sprintf("... (%d more)", len(v)-maxShown))
			break
		}
		parts = append(parts, fmt.Sprintf("%g", x))
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func writePerfTable(w io.Writer, counters []runtime.PerfCounter) {
	sort.SliceStable(counters, func(i, j int) bool { return counters[i].Stage < counters[j].Stage })
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Stage", "Duration"})
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)
	var total time.Duration
	for _, c := range counters {
		total += c.Duration
		table.Append([]string{c.Name, c.Duration.String()})
	}
	table.SetFooter([]string{"total", total.String()})
	table.Render()
}

// eventPrinter writes one line per runtime event.
type eventPrinter struct{ w io.Writer }

func (p eventPrinter) Publish(e runtime.Event) {
	line := e.Name + " network=" + e.Network
	if e.Request != "" {
		line += " request=" + e.Request
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		line += fmt.Sprintf(" %s=%v", k, e.Fields[k])
	}
	fmt.Fprintln(p.w, line)
}
