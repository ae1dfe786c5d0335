package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"rodae/internal/shared/config"
	"rodae/internal/shared/logger"

	paymentboot "rodae/internal/payment/bootstrap"
)

func main() {
	svc := flag.String("service", "payment", "payment")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	go func() { <-quit; cancel() }()

	switch *svc {
	case "payment":
		cfg, err := config.Load()
		if err != nil {
			logger.NewLogger("bootstrap").Fatal(logger.Entry{
				Action:  "config_load_failed",
				Message: err.Error(),
				Error:   &logger.ErrObj{Msg: err.Error()},
			})
		}
		log, err := logger.NewLoggerWithOptions("payment-service", cfg.Log.Level, cfg.Log.Dir)
		if err != nil {
			logger.NewLogger("bootstrap").Fatal(logger.Entry{
				Action:  "logger_init_failed",
				Message: err.Error(),
				Error:   &logger.ErrObj{Msg: err.Error()},
			})
		}
		defer log.Close()

		paymentboot.Run(ctx, cfg, log)

	default:
		log := logger.NewLogger("bootstrap")
		log.Fatal(logger.Entry{Action: "invalid_service", Message: *svc})
	}
}
