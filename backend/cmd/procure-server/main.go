package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	server "github.com/erozihovefi85-debug/openclaw-room/backend/internal"
	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/agenttask"
	agenttaskrepo "github.com/erozihovefi85-debug/openclaw-room/backend/internal/agenttask/repositoryimpl"
	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/chat"
	chatrepo "github.com/erozihovefi85-debug/openclaw-room/backend/internal/chat/repositoryimpl"
	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/config"
	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/dify"
	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/event"
	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/eventbus"
	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/metrics"
	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/preference"
	preferencerepo "github.com/erozihovefi85-debug/openclaw-room/backend/internal/preference/repositoryimpl"
	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/pushnotification"
	pushsubrepo "github.com/erozihovefi85-debug/openclaw-room/backend/internal/pushsubscription/repositoryimpl"
	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/stage"
	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/streamrouter"
	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/workflow"
	workflowrepo "github.com/erozihovefi85-debug/openclaw-room/backend/internal/workflow/repositoryimpl"
	"github.com/erozihovefi85-debug/openclaw-room/backend/pkg/clog"
	"github.com/erozihovefi85-debug/openclaw-room/backend/pkg/storage"
)

func main() {
	env, err := config.LoadEnv()
	if err != nil {
		slog.Error("failed to load env", "error", err)
		os.Exit(1)
	}

	// Setup logger
	level := env.SlogLevel()
	var handler slog.Handler
	if env.Env == "local" {
		handler = clog.NewHTTPTextHandler(os.Stderr, clog.WithLevel(level))
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(clog.NewAttributesHandler(handler)))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// Setup storage
	storageEnv := config.StorageEnvFromEnv(env)
	var store storage.Storage
	switch storageEnv.Type {
	case "s3":
		store, err = storage.NewS3Storage(ctx, storageEnv.S3Bucket, storageEnv.S3Prefix, storageEnv.S3Region)
		if err != nil {
			slog.Error("failed to create S3 storage", "error", err)
			os.Exit(1)
		}
	default:
		store, err = storage.NewLocalStorage(storageEnv.BaseDir)
		if err != nil {
			slog.Error("failed to create local storage", "error", err)
			os.Exit(1)
		}
	}

	var agentTaskRepo agenttask.Repository = agenttaskrepo.NewYAMLRepository(store)
	if storageEnv.Type == "sqlite" {
		var db *sql.DB
		db, err = agenttaskrepo.OpenSQLite(ctx, storageEnv.SQLitePath)
		if err != nil {
			slog.Error("failed to open sqlite", "path", storageEnv.SQLitePath, "error", err)
			os.Exit(1)
		}
		defer db.Close()
		agentTaskRepo, err = agenttaskrepo.NewSQLiteRepository(ctx, db)
		if err != nil {
			slog.Error("failed to create sqlite repository", "error", err)
			os.Exit(1)
		}
	}

	// Setup metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.New(reg)

	// Setup stage classifier
	classifierEnv := config.ClassifierEnvFromEnv(env)
	keywords := stage.DefaultKeywords()
	if classifierEnv.KeywordsFile != "" {
		keywords, err = stage.LoadKeywordsFile(classifierEnv.KeywordsFile)
		if err != nil {
			slog.Error("failed to load keywords", "path", classifierEnv.KeywordsFile, "error", err)
			os.Exit(1)
		}
	}
	classifier := stage.NewClassifier(keywords)

	bus := eventbus.New()

	// Setup services
	agentTaskStore := agenttask.NewStore(agentTaskRepo, bus, rec)
	router := streamrouter.NewRouter(classifier, agentTaskStore, bus, rec)
	workflowService := workflow.NewService(workflowrepo.NewYAMLRepository(store), workflow.NewMachine(rec), bus)
	preferenceService := preference.NewService(preferencerepo.NewYAMLRepository(store))
	chatHandler := chat.NewHandler(
		chatrepo.NewYAMLRepository(store),
		dify.NewClient(config.DifyEnvFromEnv(env)),
		router,
		preferenceService,
		rec,
		chat.WithWorkflows(workflowService),
	)

	// Setup push notification
	vapidEnv := config.VAPIDEnvFromEnv(env)
	pushSubRepo := pushsubrepo.NewYAMLRepository(store)
	pushSender := pushnotification.NewSender(vapidEnv, pushSubRepo, rec)
	pushDispatcher := pushnotification.NewDispatcher(bus, pushSender)

	srv := server.NewServer(
		config.BaseEnvFromEnv(env),
		reg,
		agenttask.NewServer(agentTaskStore, bus),
		workflow.NewServer(workflowService),
		preference.NewServer(preferenceService),
		pushnotification.NewServer(vapidEnv, pushSubRepo, pushSender),
		event.NewServer(bus),
		chatHandler,
	)

	go pushDispatcher.Start(ctx)
	if classifierEnv.KeywordsFile != "" {
		go func() {
			if err := stage.WatchKeywords(ctx, classifierEnv.KeywordsFile, classifier); err != nil {
				slog.Error("keyword watcher stopped", "error", err)
			}
		}()
	}

	go func() {
		if err := srv.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down server")

	// Give active streams time to finish after their contexts are cancelled.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	// Let queued agent task writes land before the process exits.
	router.Wait()
}
