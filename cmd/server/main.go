package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/simaogato/lendflow-backend/internal/adapter/httpapi"
	"github.com/simaogato/lendflow-backend/internal/adapter/repository/postgres"
	"github.com/simaogato/lendflow-backend/internal/config"
	"github.com/simaogato/lendflow-backend/internal/usecase/dashboard"
	"github.com/simaogato/lendflow-backend/internal/usecase/lending"
	"github.com/simaogato/lendflow-backend/internal/usecase/ratelimit"
	"github.com/simaogato/lendflow-backend/internal/usecase/rewards"
	"github.com/simaogato/lendflow-backend/internal/usecase/seeder"
	"github.com/simaogato/lendflow-backend/internal/usecase/settlement"
	"github.com/simaogato/lendflow-backend/internal/usecase/transfer"
	"github.com/simaogato/lendflow-backend/internal/usecase/yield"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	log := zerolog.New(os.Stdout).With().Timestamp().Logger()
	cfg := config.Load()

	// 1. Database
	db, err := postgres.NewDB(cfg.DBConnStr)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx := context.Background()
	if err := postgres.ApplySchema(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("failed to apply schema")
	}

	// 2. Repositories
	store := postgres.NewStore(db, cfg.LockTimeout)
	walletRepo := postgres.NewWalletRepository(db)
	transactionRepo := postgres.NewTransactionRepository(db)
	loanRepo := postgres.NewLoanRepository(db)

	// 3. Services
	limiter := ratelimit.NewLimiter(transactionRepo, cfg.RateLimitCeiling, cfg.RateLimitWindow)
	lendingService := lending.NewService(store, limiter, lending.DefaultConfig())
	transferService := transfer.NewService(store)
	rewardsService := rewards.NewService(store, rewards.DefaultConfig())
	dashboardService := dashboard.NewDashboardService(walletRepo, transactionRepo)
	settlementService := settlement.NewService(store, loanRepo, log)
	yieldService := yield.NewService(store, walletRepo, yield.DefaultConfig(), log)

	// 4. System user and treasury wallet
	if err := seeder.NewSystemSeeder(store).Seed(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to seed system user")
	}
	log.Info().Msg("system user seeded")

	// 5. Scheduled jobs
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.SettlementSchedule, func() {
		if _, err := settlementService.Run(context.Background()); err != nil {
			log.Error().Err(err).Msg("settlement run failed")
		}
	}); err != nil {
		log.Fatal().Err(err).Msg("invalid settlement schedule")
	}
	if _, err := scheduler.AddFunc(cfg.YieldSchedule, func() {
		if _, err := yieldService.Run(context.Background()); err != nil {
			log.Error().Err(err).Msg("yield run failed")
		}
	}); err != nil {
		log.Fatal().Err(err).Msg("invalid yield schedule")
	}
	scheduler.Start()
	defer scheduler.Stop()

	// 6. HTTP server
	api := &httpapi.Server{
		LendingService:    lendingService,
		TransferService:   transferService,
		RewardsService:    rewardsService,
		DashboardService:  dashboardService,
		SettlementService: settlementService,
		YieldService:      yieldService,
		LoanRepo:          loanRepo,
		APIToken:          cfg.APIToken,
		JobSecret:         cfg.JobSecret,
		Log:               log,
	}

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: api.Router(),
	}

	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(server, log)
}

// waitForShutdown waits for SIGTERM or SIGINT and gracefully shuts down the server
func waitForShutdown(server *http.Server, log zerolog.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("shutting down gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
	log.Info().Msg("http server stopped")
}
