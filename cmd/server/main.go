package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/smartprint/printstage/internal/config"
	"github.com/smartprint/printstage/internal/handlers"
	"github.com/smartprint/printstage/internal/logging"
	"github.com/smartprint/printstage/internal/service"
	"github.com/smartprint/printstage/internal/storage"
	"github.com/smartprint/printstage/internal/tracing"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logging.New("error", "text", os.Stderr).Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	log.Info("starting printstage service", "service", cfg.ServiceName, "port", cfg.ServicePort)

	shutdownTracer, err := tracing.InitTracer(cfg.ServiceName, cfg.JaegerEndpoint)
	if err != nil {
		log.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(ctx); err != nil {
			log.Error("error shutting down tracer", "error", err)
		}
	}()

	ctx := context.Background()

	log.Info("connecting to MySQL")
	registry, err := storage.NewRegistryClient(ctx, cfg.GetDSN())
	if err != nil {
		log.Error("failed to initialize registry", "error", err)
		os.Exit(1)
	}
	defer registry.Close()

	log.Info("connecting to Redis")
	redisClient, err := storage.NewRedisClient(cfg.GetRedisAddr(), cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Error("failed to initialize Redis client", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	log.Info("opening staging store", "dir", cfg.StagingDir)
	stagingStore, err := storage.NewStagingStore(ctx, cfg.GetStagingBucketURL())
	if err != nil {
		log.Error("failed to open staging store", "error", err)
		os.Exit(1)
	}
	defer stagingStore.Close()

	log.Info("connecting to MinIO")
	uploadClient, err := storage.NewUploadClient(
		cfg.MinIOEndpoint,
		cfg.MinIOAccessKey,
		cfg.MinIOSecretKey,
		cfg.MinIOBucketName,
		cfg.MinIOUseSSL,
	)
	if err != nil {
		log.Error("failed to initialize MinIO client", "error", err)
		os.Exit(1)
	}

	identity := service.NewIdentityService(registry, redisClient, log)
	intake := service.NewIntakeService(registry, identity, log)
	stager := service.NewStagerService(registry, stagingStore, identity, nil, cfg.FetchTimeout, log)
	finalizer := service.NewFinalizerService(registry, stagingStore, identity, log)

	tokens := handlers.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL)
	signInHandler := handlers.NewSignInHandler(identity, tokens, log)
	intakeHandler := handlers.NewIntakeHandler(intake, log)
	stagingHandler := handlers.NewStagingHandler(stager, log)
	finalizeHandler := handlers.NewFinalizeHandler(finalizer, log)
	uploadsHandler := handlers.NewUploadsHandler(uploadClient, log)

	router := mux.NewRouter()

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	router.Handle("/api/auth/signin",
		otelhttp.NewHandler(signInHandler, "POST /api/auth/signin")).Methods("POST")
	router.Handle("/api/files",
		otelhttp.NewHandler(tokens.Middleware(intakeHandler), "POST /api/files")).Methods("POST")
	router.Handle("/api/files/pending",
		otelhttp.NewHandler(tokens.Middleware(stagingHandler), "GET /api/files/pending")).Methods("GET")
	router.Handle("/api/files/complete",
		otelhttp.NewHandler(tokens.Middleware(finalizeHandler), "POST /api/files/complete")).Methods("POST")
	router.Handle("/api/uploads",
		otelhttp.NewHandler(tokens.Middleware(uploadsHandler), "POST /api/uploads")).Methods("POST")

	// Staged copies for the presentation layer.
	router.PathPrefix(service.StagedURLPrefix).Handler(
		http.StripPrefix(service.StagedURLPrefix, http.FileServer(http.Dir(cfg.StagingDir)))).Methods("GET")

	srv := &http.Server{
		Addr:         ":" + cfg.ServicePort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("server listening", "port", cfg.ServicePort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}

	log.Info("server exited")
}
