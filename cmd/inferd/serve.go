package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"inferd/internal/config"
	"inferd/internal/httpapi"
	"inferd/internal/manager"
	"inferd/internal/registry"
	"inferd/internal/runtime"
)

const (
	defaultAddr      = ":8080"
	defaultGraphsDir = "~/.inferd/graphs"
	shutdownTimeout  = 10 * time.Second
)

type serveOptions struct {
	configPath     string
	addr           string
	graphsDir      string
	device         string
	defaultNetwork string
	corsOrigins    string
	preflight      bool
}

func newServeCmd() *cobra.Command {
	o := serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP inference API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Config{}
			if o.configPath != "" {
				var err error
				if cfg, err = config.Load(o.configPath); err != nil {
					return err
				}
			}
			cfg = o.apply(cfg, cmd.Flags().Changed)
			return serve(cmd.Context(), cfg, o.preflight)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.configPath, "config", envStr("INFERD_CONFIG", ""), "Config file (.yaml, .json or .toml)")
	f.StringVar(&o.addr, "addr", envStr("INFERD_ADDR", defaultAddr), "HTTP listen address")
	f.StringVar(&o.graphsDir, "graphs-dir", defaultGraphsDir, "Directory to scan for graph descriptions")
	f.StringVar(&o.device, "device", "", "Device to load networks on (default reference)")
	f.StringVar(&o.defaultNetwork, "default-network", "", "Network used when a request names none")
	f.StringVar(&o.corsOrigins, "cors-origins", "", "Comma-separated allowed CORS origins (empty disables CORS)")
	f.BoolVar(&o.preflight, "preflight", false, "Compile every network before listening and fail on errors")
	return cmd
}

// apply merges flags over cfg. Explicitly set flags always win; defaults only
// fill fields the config left empty.
func (o serveOptions) apply(cfg config.Config, changed func(string) bool) config.Config {
	str := func(flag, v string, dst *string) {
		if changed(flag) || *dst == "" {
			*dst = v
		}
	}
	str("addr", o.addr, &cfg.Addr)
	str("graphs-dir", o.graphsDir, &cfg.GraphsDir)
	str("device", o.device, &cfg.Device)
	str("default-network", o.defaultNetwork, &cfg.DefaultNetwork)
	if changed("cors-origins") {
		cfg.CORSOrigins = splitCSV(o.corsOrigins)
	}
	if changed("log-level") || cfg.LogLevel == "" {
		cfg.LogLevel = logger.GetLevel().String()
	}
	return cfg
}

// managerConfig translates the service configuration into manager tunables.
func managerConfig(cfg config.Config, reg []registry.Entry) manager.ManagerConfig {
	mc := manager.ManagerConfig{
		Registry:       reg,
		Device:         cfg.Device,
		DefaultNetwork: cfg.DefaultNetwork,
		MaxQueueDepth:  cfg.MaxQueueDepth,
		MaxWait:        cfg.MaxWait(),
		CacheSize:      cfg.CacheSize,
		Runtime: runtime.Config{
			Streams:        cfg.Streams,
			DynamicBatch:   cfg.DynamicBatch,
			MaxBufferBytes: cfg.MaxBufferBytes(),
		},
	}
	if len(cfg.Networks) > 0 {
		mc.Precisions = make(map[string]manager.Precisions, len(cfg.Networks))
		for name, n := range cfg.Networks {
			mc.Precisions[name] = manager.Precisions{Inputs: n.InputPrecisions, Outputs: n.OutputPrecisions}
		}
	}
	return mc
}

func serve(ctx context.Context, cfg config.Config, preflight bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.LogLevel != "" {
		setupLogging(cfg.LogLevel)
	}
	reg, err := registry.LoadDir(cfg.GraphsDir)
	if err != nil {
		return errors.Wrapf(err, "load graphs from %s", cfg.GraphsDir)
	}
	mc := managerConfig(cfg, reg)
	mc.Events = logPublisher{l: logger}
	mgr := manager.NewWithConfig(mc)

	rep := mgr.SanityCheck()
	ev := logger.Info()
	if rep.Error != "" {
		ev = logger.Warn().Str("error", rep.Error)
	}
	ev.Str("device", rep.Device).Bool("backend_found", rep.BackendFound).
		Strs("devices", rep.Devices).Int("networks", rep.Networks).
		Str("default_network", rep.DefaultNetwork).Msg("sanity check")
	if preflight {
		failed := 0
		for _, c := range mgr.Preflight() {
			if c.OK {
				logger.Info().Str("check", c.Name).Msg("preflight ok")
				continue
			}
			failed++
			logger.Error().Str("check", c.Name).Str("error", c.Message).Msg("preflight failed")
		}
		if failed > 0 {
			_ = mgr.Close()
			return errors.Errorf("preflight: %d check(s) failed", failed)
		}
	}

	baseCtx, cancelBase := context.WithCancel(ctx)
	defer cancelBase()
	httpapi.SetBaseContext(baseCtx)
	httpapi.SetInferTimeoutSeconds(int64(cfg.InferTimeoutSeconds))
	httpapi.SetCORSOptions(len(cfg.CORSOrigins) > 0, cfg.CORSOrigins, nil, nil)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.NewMux(mgr),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Addr).Str("graphs_dir", cfg.GraphsDir).
			Str("max_buffer", humanize.IBytes(uint64(cfg.MaxBufferBytes()))).
			Msg("inferd listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Graceful shutdown (Ctrl+C / SIGTERM)
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	select {
	case err := <-errCh:
		_ = mgr.Close()
		if err != nil {
			return errors.Wrap(err, "server error")
		}
		return nil
	case <-sigCtx.Done():
	}
	logger.Info().Msg("shutting down")
	cancelBase()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("graceful shutdown error")
	}
	return mgr.Close()
}
