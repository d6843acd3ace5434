package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/marketbase/api/internal/config"
	"github.com/marketbase/api/internal/database"
	apihandlers "github.com/marketbase/api/internal/handlers/api"
	"github.com/marketbase/api/internal/middleware"
	"github.com/marketbase/api/internal/services/cart"
	"github.com/marketbase/api/internal/services/directory"
	"github.com/marketbase/api/internal/services/order"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := config.Load()

	pool, err := database.Connect(context.Background(), cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	slog.Info("database connected")

	if err := database.Migrate(cfg.DatabaseURL); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	slog.Info("migrations complete")

	// Services
	directorySvc := directory.NewService(pool, logger)
	cartSvc := cart.NewService(pool, logger)
	orderSvc := order.NewService(pool, directorySvc, logger)

	// Handlers
	cartHandler := apihandlers.NewCartHandler(cartSvc, logger)
	orderHandler := apihandlers.NewOrderHandler(orderSvc, logger)

	mux := http.NewServeMux()
	cartHandler.RegisterRoutes(mux)
	orderHandler.RegisterRoutes(mux)

	var handler http.Handler = mux
	handler = middleware.Timeout(cfg.RequestTimeout)(handler)
	handler = middleware.RequestLogger(logger)(handler)
	handler = middleware.Recover(logger)(handler)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: handler,
	}

	go func() {
		slog.Info("server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("server stopped")
}
