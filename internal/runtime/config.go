package runtime

import (
	goruntime "runtime"

	"inferd/internal/preprocess"
	"inferd/internal/tensor"
)

// Config is the device configuration of an executable network. Zero values
// mean "unspecified"; defaults are applied by LoadNetwork.
type Config struct {
	// Streams bounds how many async episodes of one network execute at once.
	Streams int
	// DynamicBatch enables Request.SetBatch. The compiled graph's dim 0 is
	// relaxed to dynamic.
	DynamicBatch bool
	// MaxBufferBytes rejects single buffer allocations above the limit.
	MaxBufferBytes int64
	// InputPrecisions and OutputPrecisions override the precision callers
	// bind, per port name. The compiled precision is unchanged.
	InputPrecisions  map[string]tensor.Precision
	OutputPrecisions map[string]tensor.Precision
	// ColorFormat is the channel order the network expects from images.
	ColorFormat preprocess.ColorFormat
	Events      EventPublisher
}

func (c Config) withDefaults() Config {
	if c.Streams <= 0 {
		c.Streams = goruntime.GOMAXPROCS(0)
	}
	if c.ColorFormat == preprocess.ColorRaw {
		c.ColorFormat = preprocess.ColorBGR
	}
	if c.Events == nil {
		c.Events = noopPublisher{}
	}
	return c
}
