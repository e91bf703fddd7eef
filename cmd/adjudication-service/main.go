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
	"github.com/synaptica-ai/chartreview/pkg/gateway/auth"
	"github.com/synaptica-ai/chartreview/pkg/gateway/middleware"
	"github.com/synaptica-ai/chartreview/pkg/observability/metrics"
	"github.com/synaptica-ai/chartreview/pkg/review"
)

func main() {
	logger.Init()
	cfg := config.Load()

	db, err := database.GetPostgres(cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to connect to postgres")
	}
	defer database.ClosePostgres()

	repo := review.NewRepository(db)
	if err := repo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate review tables")
	}

	redisClient := database.GetRedis(cfg)
	defer database.CloseRedis()
	locker := review.NewRedisLocker(redisClient, cfg.PatientLockTTL, cfg.PatientLockWait)

	producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaAdjudicationTopic)
	defer producer.Close()

	service := review.NewService(repo, locker, producer, cfg.HideDuplicates)
	handler := review.NewHandler(service)

	validator, err := tokenValidator(cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to configure authentication")
	}

	router := mux.NewRouter()
	router.Use(middleware.Recovery, middleware.Logging, middleware.CORS)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)
	router.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := database.Ping(ctx); err != nil {
			logger.Log.WithError(err).Warn("readiness check failed")
			http.Error(w, `{"status":"unavailable"}`, http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.BodyLimit(cfg.MaxRequestBody), middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
	if validator != nil {
		api.Use(middleware.Authenticate(validator))
	} else {
		logger.Log.Warn("no OIDC issuer or JWT secret configured, API is unauthenticated")
	}
	handler.Register(api)

	address := fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort)
	server := &http.Server{
		Addr:         address,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"addr":            address,
			"hide_duplicates": cfg.HideDuplicates,
		}).Info("Adjudication service listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start adjudication service")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down adjudication service...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Log.WithError(err).Error("adjudication service forced to shutdown")
	}
	logger.Log.Info("Adjudication service stopped")
}

// tokenValidator prefers the OIDC issuer and falls back to service tokens.
// A nil validator leaves the API open, which only suits local runs.
func tokenValidator(cfg *config.Config) (middleware.TokenValidator, error) {
	if cfg.OIDCIssuer != "" {
		return auth.NewOIDCAuthenticator(cfg.OIDCIssuer, cfg.OIDCClientID, cfg.OIDCClientSecret, cfg.OIDCTimeout)
	}
	if cfg.JWTSecret != "" {
		return auth.NewJWTManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTTTL)
	}
	return nil, nil
}
