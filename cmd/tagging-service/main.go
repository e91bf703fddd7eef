package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/synaptica-ai/chartreview/pkg/common/config"
	"github.com/synaptica-ai/chartreview/pkg/common/database"
	"github.com/synaptica-ai/chartreview/pkg/common/kafka"
	"github.com/synaptica-ai/chartreview/pkg/common/logger"
	"github.com/synaptica-ai/chartreview/pkg/gateway/middleware"
	"github.com/synaptica-ai/chartreview/pkg/observability/metrics"
	"github.com/synaptica-ai/chartreview/pkg/review"
	"github.com/synaptica-ai/chartreview/pkg/tagger"
)

func main() {
	logger.Init()
	cfg := config.Load()

	patterns, err := tagger.LoadPatternSet(cfg.TaggerPatternsPath)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to load tagger patterns")
	}
	tg, err := tagger.NewTagger(patterns)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to compile tagger patterns")
	}

	db, err := database.GetPostgres(cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to connect to postgres")
	}
	defer database.ClosePostgres()

	repo := review.NewRepository(db)
	if err := repo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate review tables")
	}

	service := tagger.NewService(tg, repo)

	consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaNotesTopic, cfg.KafkaGroupID+"-tagging")
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := consumer.Consume(ctx, service.HandleEvent); err != nil && ctx.Err() == nil {
			logger.Log.WithError(err).Fatal("Consumer error")
		}
	}()

	router := mux.NewRouter()
	router.Use(middleware.Recovery, middleware.Logging)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.BodyLimit(cfg.MaxRequestBody))
	tagger.NewHandler(service).Register(api)

	address := fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort)
	server := &http.Server{
		Addr:         address,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"addr":     address,
			"topic":    cfg.KafkaNotesTopic,
			"patterns": tg.Names(),
		}).Info("Tagging service started")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start tagging service")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down tagging service...")
	cancel()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(ctxShutdown); err != nil {
		logger.Log.WithError(err).Error("tagging service forced to shutdown")
	}
	logger.Log.Info("Tagging service stopped")
}
