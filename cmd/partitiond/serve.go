package main

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/oriys/partitiond/internal/config"
	"github.com/oriys/partitiond/internal/domain"
	"github.com/oriys/partitiond/internal/ingress"
	"github.com/oriys/partitiond/internal/invoker"
	"github.com/oriys/partitiond/internal/logging"
	"github.com/oriys/partitiond/internal/metrics"
	"github.com/oriys/partitiond/internal/observability"
	"github.com/oriys/partitiond/internal/partition"
	"github.com/oriys/partitiond/internal/shuffler"
	"github.com/oriys/partitiond/internal/storage"
	"github.com/oriys/partitiond/internal/timersvc"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the partition set this process is assigned",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *configPath)
		},
	}
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logging.SetLevelFromString(cfg.Logging.Level)
	logging.InitStructured(cfg.Logging.Format, cfg.Logging.Level)
	if err := logging.InitResultCache(cfg.Logging.ResultCacheDir, cfg.Logging.ResultCacheMaxSize, int(cfg.Logging.ResultCacheTTL.Seconds())); err != nil {
		logging.Op().Warn("result cache init failed, continuing without it", "error", err)
	}

	if err := observability.Init(ctx, observability.Config{
		Enabled:     cfg.Observability.TracingEnabled,
		Exporter:    cfg.Observability.TracingExporter,
		Endpoint:    cfg.Observability.TracingEndpoint,
		ServiceName: cfg.Observability.ServiceName,
		SampleRate:  cfg.Observability.SampleRate,
	}); err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer observability.Shutdown(ctx)

	metrics.InitPrometheus(cfg.Observability.MetricsNamespace, nil)

	partitionCount := cfg.Partition.Count
	if partitionCount < 1 {
		partitionCount = 1
	}

	engine, err := storage.New(ctx, cfg.Storage.PostgresDSN, "bootstrap")
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer engine.Close()

	notifier := partition.NewChannelNotifier()
	defer notifier.Close()

	partitions := make([]*partition.Partition, 0, partitionCount)
	stores := make(map[string]*storage.Engine, partitionCount)
	for _, r := range splitKeyRange(partitionCount) {
		id := fmt.Sprintf("p-%d", r.Start)
		scoped := engine.Scoped(id)
		p, err := partition.New(ctx, id, r, scoped, notifier)
		if err != nil {
			return fmt.Errorf("start partition %s: %w", id, err)
		}
		partitions = append(partitions, p)
		stores[id] = scoped
		logging.Op().Info("partition started", "partition", id, "range", r.String())
	}

	deployments := invoker.NewDeployments(cfg.Invoker.Deployments)
	actuator := invoker.NewActuator(deployments, cfg.Invoker.CallTimeout)
	gateway := ingress.NewGateway(partitions, cfg.Invoker.CallTimeout)
	for _, p := range partitions {
		p.SetInvokerHook(actuator)
		p.SetIngressHook(gateway)
	}

	router := partitionRouter{partitions: partitions}

	timerTargets := make([]timersvc.Target, 0, len(partitions))
	shufflerSources := make([]shuffler.Source, 0, len(partitions))
	for _, p := range partitions {
		p := p
		store := stores[p.ID]
		submit := func(ctx context.Context, cmd domain.Command) error {
			_, err := p.Submit(ctx, cmd)
			return err
		}
		timerTargets = append(timerTargets, timersvc.Target{Submit: submit, Store: store})
		shufflerSources = append(shufflerSources, shuffler.Source{ID: p.ID, Store: store, Submit: submit})
	}
	timerSvc := timersvc.New(timerTargets, cfg.Timer.PollInterval)
	shufflerSvc := shuffler.New(shufflerSources, router, cfg.Shuffler.PollInterval)

	admin := newAdminServer(cfg.AdminAddr, partitions)
	go func() {
		if err := admin.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Op().Error("admin server failed", "error", err)
		}
	}()

	ingressSrv := &http.Server{Addr: cfg.IngressAddr, Handler: gateway.Handler()}
	go func() {
		if err := ingressSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Op().Error("ingress server failed", "error", err)
		}
	}()

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	timerWake := notifier.Subscribe(sigCtx, partition.SignalTimer)
	shufflerWake := notifier.Subscribe(sigCtx, partition.SignalOutbox)
	go timerSvc.Run(sigCtx, timerWake)
	go shufflerSvc.Run(sigCtx, shufflerWake)

	logging.Op().Info("partitiond serving", "partitions", len(partitions), "admin_addr", cfg.AdminAddr, "ingress_addr", cfg.IngressAddr)

	<-sigCtx.Done()

	shutdownAdminServer(context.Background(), admin)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = ingressSrv.Shutdown(shutdownCtx)
	logging.Op().Info("partitiond shutting down")
	return nil
}

// partitionRouter resolves a partition key to its owning partition's Submit
// entrypoint by scanning the in-process partition set. Cross-process
// partition placement is out of scope (see DESIGN.md).
type partitionRouter struct {
	partitions []*partition.Partition
}

func (r partitionRouter) SubmitFor(key domain.PartitionKey) (func(ctx context.Context, cmd domain.Command) error, bool) {
	for _, p := range r.partitions {
		if p.Range.Contains(key) {
			p := p
			return func(ctx context.Context, cmd domain.Command) error {
				_, err := p.Submit(ctx, cmd)
				return err
			}, true
		}
	}
	return nil, false
}

// splitKeyRange divides the full uint64 partition key space into n
// contiguous, evenly sized ranges.
func splitKeyRange(n int) []domain.PartitionKeyRange {
	if n <= 1 {
		return []domain.PartitionKeyRange{{Start: 0, End: math.MaxUint64}}
	}
	span := uint64(math.MaxUint64) / uint64(n)
	ranges := make([]domain.PartitionKeyRange, 0, n)
	var start uint64
	for i := 0; i < n; i++ {
		end := start + span
		if i == n-1 {
			end = math.MaxUint64
		}
		ranges = append(ranges, domain.PartitionKeyRange{Start: start, End: end})
		start = end + 1
	}
	return ranges
}

func loadConfig(path string) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if path != "" {
		cfg, err = config.LoadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	} else {
		cfg = config.Default()
	}
	config.LoadFromEnv(cfg)
	return cfg, nil
}
