package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"inferd/internal/common/fsutil"
	"inferd/internal/tensor"
)

// NetworkConfig holds per-network overrides, keyed by network name in Config.
type NetworkConfig struct {
	InputPrecisions  map[string]tensor.Precision `json:"input_precisions" yaml:"input_precisions" toml:"input_precisions"`
	OutputPrecisions map[string]tensor.Precision `json:"output_precisions" yaml:"output_precisions" toml:"output_precisions"`
}

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and will be replaced by defaults in main.
type Config struct {
	Addr           string `json:"addr" yaml:"addr" toml:"addr"`
	GraphsDir      string `json:"graphs_dir" yaml:"graphs_dir" toml:"graphs_dir"`
	DefaultNetwork string `json:"default_network" yaml:"default_network" toml:"default_network"`
	Device         string `json:"device" yaml:"device" toml:"device"`

	Streams       int  `json:"streams" yaml:"streams" toml:"streams"`
	MaxQueueDepth int  `json:"max_queue_depth" yaml:"max_queue_depth" toml:"max_queue_depth"`
	MaxWaitMS     int  `json:"max_wait_ms" yaml:"max_wait_ms" toml:"max_wait_ms"`
	MaxBufferMB   int  `json:"max_buffer_mb" yaml:"max_buffer_mb" toml:"max_buffer_mb"`
	CacheSize     int  `json:"cache_size" yaml:"cache_size" toml:"cache_size"`
	DynamicBatch  bool `json:"dynamic_batch" yaml:"dynamic_batch" toml:"dynamic_batch"`

	LogLevel            string   `json:"log_level" yaml:"log_level" toml:"log_level"`
	CORSOrigins         []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
	InferTimeoutSeconds int      `json:"infer_timeout_seconds" yaml:"infer_timeout_seconds" toml:"infer_timeout_seconds"`

	Networks map[string]NetworkConfig `json:"networks" yaml:"networks" toml:"networks"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, errors.New("empty config path")
	}
	p, err := fsutil.ExpandHome(path)
	if err != nil {
		return cfg, err
	}
	b, err := os.ReadFile(p)
	if err != nil {
		return cfg, errors.Wrap(err, "read config")
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &cfg)
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.DisallowUnknownFields()
		err = dec.Decode(&cfg)
	case ".toml":
		err = toml.Unmarshal(b, &cfg)
	default:
		return cfg, errors.Errorf("unsupported config extension: %s", ext)
	}
	if err != nil {
		return cfg, errors.Wrapf(err, "parse %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, errors.Wrapf(err, "validate %s", path)
	}
	return cfg, nil
}

// Validate rejects negative limits. Zero stays "unspecified".
func (c Config) Validate() error {
	for name, v := range map[string]int{
		"streams":               c.Streams,
		"max_queue_depth":       c.MaxQueueDepth,
		"max_wait_ms":           c.MaxWaitMS,
		"max_buffer_mb":         c.MaxBufferMB,
		"cache_size":            c.CacheSize,
		"infer_timeout_seconds": c.InferTimeoutSeconds,
	} {
		if v < 0 {
			return errors.Errorf("%s must not be negative, got %d", name, v)
		}
	}
	return nil
}

// MaxWait is MaxWaitMS as a duration.
func (c Config) MaxWait() time.Duration { return time.Duration(c.MaxWaitMS) * time.Millisecond }

// MaxBufferBytes is MaxBufferMB in bytes.
func (c Config) MaxBufferBytes() int64 { return int64(c.MaxBufferMB) << 20 }
