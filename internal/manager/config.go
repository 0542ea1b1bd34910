package manager

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"inferd/internal/backend"
	"inferd/internal/backend/reference"
	"inferd/internal/registry"
	"inferd/internal/runtime"
	"inferd/internal/tensor"
)

// Defaults applied when corresponding ManagerConfig fields are unset.
const (
	defaultMaxQueueDepth = 32
	defaultMaxWait       = 30 * time.Second
	defaultDrainTimeout  = 5 * time.Second
	defaultCacheSize     = 4
	defaultOpTTL         = 10 * time.Minute
)

// Precisions overrides the user-facing precision of a network's ports.
type Precisions struct {
	Inputs  map[string]tensor.Precision
	Outputs map[string]tensor.Precision
}

// ManagerConfig encapsulates all tunables for Manager construction.
type ManagerConfig struct {
	Registry []registry.Entry
	// Backends defaults to a registry holding the reference backend.
	Backends       *backend.Registry
	Device         string
	DefaultNetwork string
	MaxQueueDepth  int
	MaxWait        time.Duration
	DrainTimeout   time.Duration
	// CacheSize bounds the number of loaded networks; the least recently
	// used one is drained and closed when a new one is loaded.
	CacheSize int
	// OpTTL is how long finished async operations stay pollable.
	OpTTL time.Duration
	// Runtime is the device configuration every network is loaded with.
	Runtime    runtime.Config
	Precisions map[string]Precisions
	Events     runtime.EventPublisher
}

// NewWithConfig constructs a Manager from ManagerConfig.
func NewWithConfig(cfg ManagerConfig) *Manager {
	m := &Manager{
		state:          StateLoading,
		registry:       append([]registry.Entry(nil), cfg.Registry...),
		graphs:         make(map[string]*backend.Graph, len(cfg.Registry)),
		backends:       cfg.Backends,
		device:         cfg.Device,
		defaultNetwork: cfg.DefaultNetwork,
		runtimeCfg:     cfg.Runtime,
		precisions:     cfg.Precisions,
		publisher:      cfg.Events,
		draining:       make(map[*Instance]struct{}),
		ops:            make(map[string]*operation),
		startTime:      time.Now(),
	}
	for _, e := range m.registry {
		m.graphs[e.Info.Name] = e.Graph
	}
	if m.backends == nil {
		m.backends = backend.NewRegistry()
		reference.Register(m.backends)
	}
	if m.device == "" {
		m.device = reference.Device
	}
	if m.publisher == nil {
		m.publisher = noopPublisher{}
	}
	// Apply defaults if unset
	m.maxQueueDepth = orDefault(cfg.MaxQueueDepth, defaultMaxQueueDepth)
	m.maxWait = orDefault(cfg.MaxWait, defaultMaxWait)
	m.drainTimeout = orDefault(cfg.DrainTimeout, defaultDrainTimeout)
	m.cacheSize = orDefault(cfg.CacheSize, defaultCacheSize)
	m.opTTL = orDefault(cfg.OpTTL, defaultOpTTL)

	cache, err := lru.NewWithEvict(m.cacheSize, m.onEvict)
	if err != nil {
		panic(fmt.Sprintf("manager: lru cache: %v", err))
	}
	m.cache = cache
	return m
}

func orDefault[T int | time.Duration](v, def T) T {
	if v <= 0 {
		return def
	}
	return v
}
