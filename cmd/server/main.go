package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mfeshop/checkout-bus/internal/api"
	"github.com/mfeshop/checkout-bus/internal/bridge"
	"github.com/mfeshop/checkout-bus/internal/bus"
	"github.com/mfeshop/checkout-bus/internal/checkout"
	"github.com/mfeshop/checkout-bus/internal/config"
	"github.com/mfeshop/checkout-bus/internal/idgen"
	"github.com/mfeshop/checkout-bus/internal/monitor"
	"github.com/mfeshop/checkout-bus/internal/payment"
)

// hostNotifier is the stand-in parent container: checkout lifecycle
// notifications land in the log.
type hostNotifier struct {
	logger *slog.Logger
}

func (n hostNotifier) CheckoutCompleted(s checkout.OrderSnapshot) {
	n.logger.Info("checkout completed",
		"order_number", s.OrderNumber,
		"transaction_id", s.TransactionID,
		"total_amount", s.TotalAmount,
		"payment_method", s.PaymentMethod,
		"item_count", len(s.OrderItems),
	)
}

func (n hostNotifier) BackRequested() {
	n.logger.Info("back requested")
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// One bus per application session, owned here and injected everywhere.
	b := bus.New(logger)

	// Cross-host bridge, only when a broadcast backend is configured.
	var br *bridge.Bridge
	if cfg.RedisURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		br, err = bridge.Connect(ctx, cfg.RedisURL, b, logger)
		cancel()
		if err != nil {
			logger.Error("failed to connect bridge", "error", err)
			os.Exit(1)
		}
		logger.Info("connected to broadcast channel", "channel", bridge.Channel)
	} else {
		logger.Info("no REDIS_URL configured, running single-host")
	}

	ids := idgen.Random{}
	gateway := payment.NewSimulatedGateway(cfg.GatewaySuccess, cfg.GatewayLatency, ids)
	processor := payment.New(b, gateway, logger)

	controller := checkout.New(b, hostNotifier{logger: logger}, ids, logger)

	hub := monitor.NewHub(logger)
	go hub.Run()
	feed := monitor.NewFeed(b, hub, cfg.EventHistorySize, logger)

	router := api.NewRouter(b, controller, feed, hub)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	// Release every subscription before the bus goes down.
	processor.Close()
	controller.Close()
	feed.Close()
	hub.Close()
	if br != nil {
		if err := br.Close(); err != nil {
			logger.Error("failed to close bridge", "error", err)
		}
	}
	b.Destroy()

	logger.Info("server stopped")
}
