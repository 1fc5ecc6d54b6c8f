package main

import (
	"context"
	"log" // standard log only for fatal errors before the logger is ready

	"github.com/saygoodluck/trading-bot/config"
	"github.com/saygoodluck/trading-bot/internal/adapters/binanceclient"
	"github.com/saygoodluck/trading-bot/internal/adapters/logger"
	"github.com/saygoodluck/trading-bot/internal/adapters/sqlite"
	"github.com/saygoodluck/trading-bot/internal/app"
	"github.com/saygoodluck/trading-bot/internal/strategy"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	appLogger := logger.NewStdLogger(cfg.LogLevel)
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing database repository")
		}
	}()

	client, err := binanceclient.New(binanceclient.Config{
		APIKey:               cfg.APIKey,
		SecretKey:            cfg.SecretKey,
		UseTestnet:           cfg.IsTestnet,
		Logger:               appLogger,
		ReconnectDelay:       cfg.ReconnectDelay,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}

	if err := client.SetLeverage(context.Background(), cfg.Symbol, cfg.Leverage); err != nil {
		appLogger.Warn(context.Background(), "Failed to set leverage, continuing with the exchange's current setting", map[string]interface{}{
			"symbol": cfg.Symbol, "leverage": cfg.Leverage,
		})
	}

	executor, err := binanceclient.NewLiveExecutor(client, repo, repo)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize live executor: %v", err)
	}

	strat, err := strategy.NewRegistry().Create(cfg.Strategy, cfg.StrategyParams, appLogger)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize strategy: %v", err)
	}

	tradingService, err := app.NewTradingService(cfg, appLogger, client, executor, strat)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize trading service: %v", err)
	}

	if err := tradingService.Start(context.Background()); err != nil {
		appLogger.Error(context.Background(), err, "Trading service exited with error")
		log.Fatalf("FATAL: Trading service exited with error: %v", err)
	}

	appLogger.Info(context.Background(), "Application finished gracefully.")
}
