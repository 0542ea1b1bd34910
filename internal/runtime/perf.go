package runtime

import "time"

// Stage indexes the pipeline stages in execution order.
type Stage int

const (
	StagePreprocess Stage = iota
	StageTransferIn
	StageExecute
	StageTransferOut
	StagePostprocess
	numStages
)

var stageNames = [numStages]string{
	StagePreprocess:  "1. input preprocessing",
	StageTransferIn:  "2. input transfer to a device",
	StageExecute:     "3. execution time",
	StageTransferOut: "4. output transfer from a device",
	StagePostprocess: "5. output postprocessing",
}

var stageLabels = [numStages]string{
	StagePreprocess:  "preprocess",
	StageTransferIn:  "transfer_in",
	StageExecute:     "execute",
	StageTransferOut: "transfer_out",
	StagePostprocess: "postprocess",
}

// String is the performance counter name of the stage.
func (s Stage) String() string {
	if s >= 0 && s < numStages {
		return stageNames[s]
	}
	return "unknown stage"
}

// Label is the short metric label of the stage.
func (s Stage) Label() string {
	if s >= 0 && s < numStages {
		return stageLabels[s]
	}
	return "unknown"
}

// PerfRecord holds the latest duration of every stage. Buckets are
// overwritten by each run.
type PerfRecord [numStages]time.Duration

// PerfCounter is one entry of GetPerformanceCounts.
type PerfCounter struct {
	Stage    Stage
	Name     string
	Duration time.Duration
}

func (p PerfRecord) counters() []PerfCounter {
	out := make([]PerfCounter, 0, numStages)
	for s := Stage(0); s < numStages; s++ {
		out = append(out, PerfCounter{Stage: s, Name: s.String(), Duration: p[s]})
	}
	return out
}
