package main

import (
	"context"
	"os/signal"
	"syscall"

	"rodae/internal/payment/bootstrap"
	"rodae/internal/shared/config"
	"rodae/internal/shared/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.NewLogger("payment-service").Fatal(logger.Entry{
			Action:  "config_load_failed",
			Message: err.Error(),
			Error:   &logger.ErrObj{Msg: err.Error()},
		})
	}

	log, err := logger.NewLoggerWithOptions("payment-service", cfg.Log.Level, cfg.Log.Dir)
	if err != nil {
		logger.NewLogger("payment-service").Fatal(logger.Entry{
			Action:  "logger_init_failed",
			Message: err.Error(),
			Error:   &logger.ErrObj{Msg: err.Error()},
		})
	}
	defer log.Close()

	log.Info(logger.Entry{
		Action:  "config_loaded",
		Message: "payment service configuration loaded",
		Additional: map[string]any{
			"db_host":      cfg.Database.Host,
			"db_port":      cfg.Database.Port,
			"mq_host":      cfg.RabbitMQ.Host,
			"storage":      cfg.Payment.Storage,
			"messaging":    cfg.Payment.MessagingEnabled,
			"gateway_mode": cfg.Payment.Gateway.Mode,
			"http_port":    cfg.Services.PaymentServicePort,
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bootstrap.Run(ctx, cfg, log)
}
