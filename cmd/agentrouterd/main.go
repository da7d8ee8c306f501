// Command agentrouterd runs the illustrative HTTP front-end over the
// Router Runtime, Orchestration Engine, and Worker Runtime (spec.md §6),
// grounded on registry/cmd/registry/main.go's env-configured run() shape.
package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.temporal.io/sdk/client"
	"google.golang.org/grpc"

	"github.com/agentmesh/router/config"
	"github.com/agentmesh/router/httpapi"
	"github.com/agentmesh/router/jobstore"
	"github.com/agentmesh/router/jobstore/fsstore"
	"github.com/agentmesh/router/jobstore/memstore"
	"github.com/agentmesh/router/orchestration"
	"github.com/agentmesh/router/orchestration/inmemadapter"
	"github.com/agentmesh/router/orchestration/nexusremote"
	"github.com/agentmesh/router/orchestration/temporaladapter"
	"github.com/agentmesh/router/router"
	"github.com/agentmesh/router/router/catalog"
	"github.com/agentmesh/router/router/catalog/grpcfed"
	"github.com/agentmesh/router/telemetry"
	"github.com/agentmesh/router/worker"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load(os.Getenv("ROUTER_CONFIG_FILE"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := telemetry.NewClueLogger()
	metrics := telemetry.NewClueMetrics()

	jobs, err := buildJobStore(cfg)
	if err != nil {
		return fmt.Errorf("build job store: %w", err)
	}

	rtr := router.New()
	// Application-specific agents/tools/workers are registered by the
	// embedding program before Run; this entrypoint hosts the transport.

	registry := worker.NewRegistry()
	workers := worker.NewRuntime(registry, jobs, logger, metrics)
	workers.Limiter = worker.NewDispatchLimiter(cfg.DispatchInitialDPM, cfg.DispatchMaxDPM)

	adapter, stop, err := buildAdapter(cfg, logger)
	if err != nil {
		return fmt.Errorf("build orchestration adapter: %w", err)
	}
	if stop != nil {
		defer stop()
	}
	orch := orchestration.NewOrchestrator(rtr, workers, adapter, logger)
	if cfg.NexusBaseURL != "" {
		remote, err := nexusremote.New(nexusremote.Options{BaseURL: cfg.NexusBaseURL, Service: cfg.NexusService})
		if err != nil {
			return fmt.Errorf("build nexus remote workflow resolver: %w", err)
		}
		orch.RemoteWorkflows = remote
	}

	srv := &httpapi.Server{
		Router:        rtr,
		Orchestrator:  orch,
		Workers:       workers,
		Jobs:          jobs,
		WebhookSecret: cfg.WebhookSecret,
		Logger:        logger,
	}

	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Handler()}

	var grpcSrv *grpc.Server
	if cfg.CatalogGRPCAddr != "" {
		catalogMgr := catalog.NewManager(catalog.WithLogger(logger), catalog.WithMetrics(metrics))
		catalogMgr.AddSource("", catalog.LocalSource{Router: rtr}, 0)
		grpcSrv = grpc.NewServer()
		grpcfed.RegisterServer(grpcSrv, &grpcfed.Server{Manager: catalogMgr})
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		log.Printf("agentrouterd listening on %s", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	if grpcSrv != nil {
		lis, err := net.Listen("tcp", cfg.CatalogGRPCAddr)
		if err != nil {
			return fmt.Errorf("listen catalog grpc: %w", err)
		}
		go func() {
			log.Printf("catalog federation listening on %s", cfg.CatalogGRPCAddr)
			if err := grpcSrv.Serve(lis); err != nil {
				errCh <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if grpcSrv != nil {
			grpcSrv.GracefulStop()
		}
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func buildJobStore(cfg config.Config) (jobstore.Store, error) {
	switch cfg.JobStoreBackend {
	case "fs":
		return fsstore.New(cfg.JobStoreFSDir)
	case "mongo":
		return nil, fmt.Errorf("job store backend %q requires a pre-built *mongo.Collection; wire jobstore/mongostore.New from an application entrypoint instead", cfg.JobStoreBackend)
	default:
		return memstore.New(), nil
	}
}

func buildAdapter(cfg config.Config, logger telemetry.Logger) (orchestration.Adapter, func(), error) {
	if cfg.WorkflowProvider != "temporal" {
		return inmemadapter.New(), nil, nil
	}

	c, err := client.Dial(client.Options{
		HostPort:  cfg.TemporalHostPort,
		Namespace: cfg.TemporalNamespace,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("dial temporal: %w", err)
	}

	adapter, err := temporaladapter.New(temporaladapter.Options{
		Client:    c,
		TaskQueue: cfg.TemporalTaskQueue,
		Logger:    logger,
	})
	if err != nil {
		c.Close()
		return nil, nil, err
	}

	go func() {
		if err := adapter.Start(context.Background()); err != nil {
			log.Printf("temporal adapter worker stopped: %v", err)
		}
	}()

	return adapter, func() { adapter.Stop(); c.Close() }, nil
}
