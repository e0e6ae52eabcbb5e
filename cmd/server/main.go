package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/R-TocoToucan/Parallel-LLM-Translator/internal/api"
	"github.com/R-TocoToucan/Parallel-LLM-Translator/internal/config"
	"github.com/R-TocoToucan/Parallel-LLM-Translator/internal/core"
	"github.com/R-TocoToucan/Parallel-LLM-Translator/internal/db"
	"github.com/R-TocoToucan/Parallel-LLM-Translator/internal/identity"
	"github.com/R-TocoToucan/Parallel-LLM-Translator/internal/jobs"
	"github.com/R-TocoToucan/Parallel-LLM-Translator/internal/llm"
	"github.com/R-TocoToucan/Parallel-LLM-Translator/internal/metrics"
	"github.com/R-TocoToucan/Parallel-LLM-Translator/internal/middleware"
)

func main() {
	// --- 1. Environment and logger ---
	// In production, environment variables are set directly.
	release := os.Getenv("GIN_MODE") == gin.ReleaseMode
	if !release {
		if err := godotenv.Load(); err != nil {
			log.Println("Warning: no .env file loaded:", err)
		}
	}

	var (
		zapLogger *zap.Logger
		err       error
	)
	if release {
		zapLogger, err = zap.NewProduction()
	} else {
		zapLogger, err = zap.NewDevelopment()
	}
	if err != nil {
		log.Fatalf("CRITICAL_ERROR: Failed to initialize Zap logger: %v", err)
	}
	defer zapLogger.Sync() //nolint:errcheck

	// --- 2. Configuration ---
	appConfig, err := config.LoadConfig()
	if err != nil {
		zapLogger.Fatal("CRITICAL_ERROR: Failed to load application configuration", zap.Error(err))
	}
	zapLogger.Info("Application configuration loaded",
		zap.String("store", appConfig.StoreBackend),
		zap.String("identity", appConfig.IdentityProvider),
		zap.Strings("allowedModels", appConfig.AllowedModels),
	)

	// --- 3. Error reporting ---
	if appConfig.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              appConfig.SentryDSN,
			Environment:      appConfig.SentryEnvironment,
			AttachStacktrace: true,
		})
		if err != nil {
			zapLogger.Warn("Failed to initialize Sentry", zap.Error(err))
		} else {
			zapLogger.Info("Sentry initialized", zap.String("environment", appConfig.SentryEnvironment))
			defer sentry.Flush(2 * time.Second)
		}
	}

	// Cancelled on shutdown; owns background goroutines.
	appCtx, stopApp := context.WithCancel(context.Background())
	defer stopApp()

	// --- 4. Firebase, repositories and identity ---
	initCtx, cancelInit := context.WithTimeout(appCtx, 15*time.Second)
	defer cancelInit()

	var fbClients *db.FirebaseClients
	if appConfig.UsesFirebase() {
		fbClients, err = db.InitFirebase(initCtx, appConfig, zapLogger)
		if err != nil {
			zapLogger.Fatal("CRITICAL_ERROR: Failed to initialize Firebase Admin SDK", zap.Error(err))
		}
		defer fbClients.Close() //nolint:errcheck
	}

	var (
		accountRepo db.AccountRepository
		jobRunRepo  db.JobRunRepository
	)
	switch appConfig.StoreBackend {
	case config.StoreFirestore:
		accountRepo = db.NewFirestoreAccountRepository(fbClients.Firestore)
		jobRunRepo = db.NewFirestoreJobRunRepository(fbClients.Firestore)
	default:
		zapLogger.Warn("Using the in-memory credit store; balances are lost on restart and not shared between instances")
		accountRepo = db.NewMemoryAccountRepository()
		jobRunRepo = db.NewMemoryJobRunRepository()
	}

	var verifier identity.Verifier
	switch appConfig.IdentityProvider {
	case config.IdentityFirebase:
		verifier = identity.NewFirebaseVerifier(fbClients.Auth)
	default:
		verifier, err = identity.NewGoogleVerifier(initCtx, appConfig.GoogleWebClientID)
		if err != nil {
			zapLogger.Fatal("CRITICAL_ERROR: Failed to initialize Google ID token verifier", zap.Error(err))
		}
	}

	// --- 5. Completion client ---
	var completer llm.Completer = llm.NewOpenAIClient(llm.Config{
		APIKey:      appConfig.OpenAIAPIKey,
		BaseURL:     appConfig.OpenAIBaseURL,
		Temperature: appConfig.LLMTemperature,
		Timeout:     appConfig.UpstreamTimeout,
	}, zapLogger)
	if appConfig.RedisURL != "" {
		rdb, err := llm.NewRedisClient(initCtx, appConfig.RedisURL)
		if err != nil {
			zapLogger.Warn("Completion cache disabled: Redis unavailable", zap.Error(err))
		} else {
			defer rdb.Close()
			completer = llm.NewCachedCompleter(completer, rdb, appConfig.CompletionCacheTTL, zapLogger)
			zapLogger.Info("Completion cache enabled", zap.Duration("ttl", appConfig.CompletionCacheTTL))
		}
	}

	// --- 6. Services ---
	appMetrics := metrics.New(prometheus.DefaultRegisterer)
	ledger := core.NewCreditLedger(accountRepo, jobRunRepo, appMetrics, zapLogger, core.LedgerConfig{
		FreeModel:     appConfig.FreeModel,
		PremiumModel:  appConfig.PremiumModel,
		RefreshWindow: appConfig.RefreshWindow,
		BatchSize:     appConfig.LedgerBatchSize,
	})
	gatewayService := core.NewGatewayService(ledger, completer, appMetrics, zapLogger, core.GatewayConfig{
		FreeModel:       appConfig.FreeModel,
		PremiumModel:    appConfig.PremiumModel,
		AllowedModels:   appConfig.AllowedModels,
		MeteringEnabled: appConfig.MeteringEnabled,
	})

	var scheduler *jobs.Scheduler
	if appConfig.CronEnabled {
		scheduler = jobs.NewScheduler(ledger, zapLogger)
		if err := scheduler.SetupJobs(jobs.Schedules{
			RollingRefresh: appConfig.RollingRefreshSchedule,
			MonthlyReset:   appConfig.MonthlyResetSchedule,
		}); err != nil {
			zapLogger.Fatal("CRITICAL_ERROR: Failed to schedule ledger jobs", zap.Error(err))
		}
		scheduler.Start()
	}

	// --- 7. Gin engine and routes ---
	if appConfig.GinMode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(zapLogger))
	router.Use(middleware.RecoveryMiddleware(zapLogger))
	router.Use(middleware.CORSMiddleware(appConfig.CORSOrigins(), zapLogger))
	router.Use(appMetrics.Middleware())

	limiter := middleware.NewRateLimiter(appCtx, appConfig.RateLimitPerMinute, appConfig.RateLimitBurst, appMetrics.RateLimited)
	api.SetupRoutes(
		router,
		appConfig,
		zapLogger,
		middleware.NewAuthMiddleware(verifier, zapLogger),
		limiter,
		gatewayService,
		ledger,
		promhttp.Handler(),
	)

	// --- 8. HTTP server with graceful shutdown ---
	serverAddr := fmt.Sprintf(":%s", appConfig.Port)
	httpServer := &http.Server{
		Addr:              serverAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		// Upstream calls may take up to UpstreamTimeout.
		WriteTimeout: appConfig.UpstreamTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	zapLogger.Info("Starting HTTP server", zap.String("address", serverAddr), zap.String("ginMode", gin.Mode()))
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	quitChannel := make(chan os.Signal, 1)
	signal.Notify(quitChannel, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quitChannel
	zapLogger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if scheduler != nil {
		scheduler.Stop(shutdownCtx)
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}
	stopApp()
	zapLogger.Info("Server exiting gracefully.")
}
