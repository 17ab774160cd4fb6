package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nanoqa-pipeline/internal/config"
	"nanoqa-pipeline/internal/endpoints"
	"nanoqa-pipeline/internal/handlers"
	"nanoqa-pipeline/internal/pkg/logger"
	"nanoqa-pipeline/internal/services"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()

	log.Info("Starting Nanopub QA Pipeline",
		"environment", cfg.Environment,
		"port", cfg.HTTP.Port)

	endpointManager := endpoints.NewEndpointManager(log)
	if cfg.Nanopub.UseMock {
		endpointManager.Register(cfg.Nanopub.Name, endpoints.NewMockNanopubEndpoint(cfg.Nanopub.URL), true)
	} else {
		endpoint, err := endpoints.NewHTTPNanopubEndpoint(cfg.Nanopub, log)
		if err != nil {
			log.WithError(err).Error("Failed to initialize nanopub endpoint")
			os.Exit(1)
		}
		endpointManager.Register(cfg.Nanopub.Name, endpoint, true)
	}

	var cacheService *services.CacheService
	if cfg.Cache.Enabled {
		cacheService, err = services.NewCacheService(cfg.Cache, log)
		if err != nil {
			log.WithError(err).Warn("Cache unavailable, continuing without shared query cache")
			cacheService = nil
		}
	}

	pipeline := services.NewPipeline(endpointManager, cacheService, *cfg, log)

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	handler := handlers.NewQuestionHandler(pipeline, log)
	handler.RegisterRoutes(router)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		log.Info("HTTP Server Listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("HTTP server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("HTTP server shutdown failed")
	}

	if err := pipeline.Close(); err != nil {
		log.WithError(err).Error("Pipeline shutdown failed")
	}

	if cacheService != nil {
		if err := cacheService.Close(); err != nil {
			log.WithError(err).Error("Cache shutdown failed")
		}
	}

	if err := endpointManager.CloseAll(); err != nil {
		log.WithError(err).Error("Endpoint shutdown failed")
	}

	log.Info("Shutdown complete")
}
