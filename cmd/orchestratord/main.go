// Command orchestratord wires config → store → registry → client → httpapi
// into a running process, per SPEC_FULL.md §13's repository layout. It is
// the process entrypoint; all orchestration logic lives in the library
// packages it wires together.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/hiveflow/orchestrator/agentregistry"
	"github.com/hiveflow/orchestrator/client"
	"github.com/hiveflow/orchestrator/config"
	"github.com/hiveflow/orchestrator/eventbus"
	"github.com/hiveflow/orchestrator/httpapi"
	"github.com/hiveflow/orchestrator/model"
	"github.com/hiveflow/orchestrator/plan"
	"github.com/hiveflow/orchestrator/store"
	"github.com/hiveflow/orchestrator/store/memstore"
	"github.com/hiveflow/orchestrator/store/mongostore"
	"github.com/hiveflow/orchestrator/store/rediscache"
	"github.com/hiveflow/orchestrator/tasks"
	"github.com/hiveflow/orchestrator/telemetry"
	"github.com/hiveflow/orchestrator/workers"
	"github.com/hiveflow/orchestrator/workflow"
	"github.com/hiveflow/orchestrator/workflow/engine/inmem"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := telemetry.NewClueLogger()
	metrics := telemetry.NewClueMetrics()

	st, err := buildStore(ctx, cfg)
	if err != nil {
		log.Fatalf("store: %v", err)
	}

	bus := eventbus.New(eventbus.WithLogger(logger), eventbus.WithMetrics(metrics))

	var cache *rediscache.PlanStatusCache
	if cfg.RedisAddr != "" {
		rc := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		cache = rediscache.New(rc, 30*time.Second)
		bridge := eventbus.NewRedisBridge(rc, nil)
		bridge.Forward(bus, allEventTypes()...)
	}

	taskRepo := tasks.New(st, bus, tasks.WithLogger(logger), tasks.WithMetrics(metrics))
	workerSvc := workers.New(st, bus, workers.WithHeartbeatTimeout(cfg.HeartbeatTimeout), workers.WithLogger(logger), workers.WithMetrics(metrics))
	planEngine := plan.New(st, bus, plan.WithCache(cache), plan.WithLogger(logger), plan.WithMetrics(metrics))
	agents := agentregistry.New()
	executor := workflow.New(st, taskRepo, agents, bus, inmem.New(), workflow.WithLogger(logger), workflow.WithMetrics(metrics))

	c := client.New(taskRepo, workerSvc, planEngine, executor, agents, bus)

	sweeper := workers.NewSweeper(workerSvc, cfg.SweepInterval, 50)
	go sweeper.Run(ctx)

	srv := httpapi.NewServer(c, httpapi.WithLogger(logger))
	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv}

	go func() {
		logger.Info(ctx, "orchestratord listening", "addr", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("httpapi: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
}

// buildStore selects the Mongo-backed store when ORCH_MONGO_URI is set,
// wrapping it in dual-write mode when ORCH_DUAL_WRITE is enabled; otherwise
// it falls back to the in-memory reference store (spec.md §4.1: "acceptable
// for tests if it provides the same transactional semantics" — also
// adequate for a single-node demo deployment).
func buildStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	if cfg.MongoURI == "" {
		return memstore.New(), nil
	}
	mc, err := mongo.Connect(options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, err
	}
	canonical, err := mongostore.New(mongostore.Options{Client: mc, Database: cfg.MongoDatabase})
	if err != nil {
		return nil, err
	}
	if err := canonical.EnsureIndices(ctx); err != nil {
		return nil, err
	}
	if !cfg.DualWriteEnabled {
		return canonical, nil
	}
	legacy, err := mongostore.New(mongostore.Options{Client: mc, Database: cfg.MongoDatabase + "_legacy"})
	if err != nil {
		return nil, err
	}
	return store.NewDualWriteStore(canonical, legacy), nil
}

func allEventTypes() []model.EventType {
	return []model.EventType{
		model.EventTaskCreated, model.EventTaskStatusChanged, model.EventTaskAssigned,
		model.EventRunStarted, model.EventRunCompleted, model.EventRunFailed,
		model.EventWorkerRegistered, model.EventWorkerHeartbeat, model.EventWorkerOffline,
		model.EventPlanStarted, model.EventPlanSubtaskReady, model.EventPlanCompleted, model.EventPlanFailed,
		model.EventWorkflowEntered, model.EventWorkflowCompletedP, model.EventWorkflowCompleted, model.EventWorkflowFailed,
		model.EventReviewRequested, model.EventReviewCompleted,
		model.EventDeploymentRequest, model.EventDeploymentComplete, model.EventDeploymentFailed,
		model.EventPlanRequested, model.EventPlanGenerated, model.EventAgentError,
	}
}
