// Точка сборки Payment Service.
//
// Порядок слоев:
//  1. инфраструктура: хранилище (PostgreSQL или память), RabbitMQ, JWT
//  2. шлюз: симулятор процессора и банка под таймаутом и повторами
//  3. publishers / notifiers
//  4. use cases
//  5. входящие адаптеры: HTTP, WebSocket, AMQP consumer

package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"rodae/internal/model"
	"rodae/internal/payment/adapters/in/in_amqp"
	"rodae/internal/payment/adapters/in/transport"
	"rodae/internal/payment/adapters/out/gateway"
	"rodae/internal/payment/adapters/out/memory"
	"rodae/internal/payment/adapters/out/out_amqp"
	"rodae/internal/payment/adapters/out/out_ws"
	"rodae/internal/payment/adapters/out/repo"
	"rodae/internal/payment/application/ports/out"
	"rodae/internal/payment/application/usecase"
	"rodae/internal/shared/auth"
	"rodae/internal/shared/config"
	"rodae/internal/shared/db"
	"rodae/internal/shared/logger"
	"rodae/internal/shared/mq"
	"rodae/internal/shared/ws"
)

// App — собранный сервис. Run поднимает его целиком, тесты используют Handler.
type App struct {
	Handler  http.Handler
	Hub      *ws.Hub
	Consumer *in_amqp.RideCompletedConsumer // nil без RabbitMQ
	// Store заполнен только для storage: memory
	Store *memory.Store

	closers []func()
}

// Close освобождает ресурсы в обратном порядке
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

type storage struct {
	tx        out.TxManager
	rides     out.RideRepository
	snapshots in_amqp.RideSnapshots
	payments  out.PaymentRepository
	payouts   out.PayoutRepository
}

// Build собирает все зависимости. Ошибка инфраструктуры возвращается,
// уже открытые ресурсы закрываются.
func Build(ctx context.Context, cfg config.Config, log *logger.Logger) (app *App, err error) {
	app = &App{}
	defer func() {
		if err != nil {
			app.Close()
			app = nil
		}
	}()

	// ---- СЛОЙ 1: хранилище ----
	var st storage
	switch cfg.Payment.Storage {
	case "memory":
		store := memory.NewStore()
		app.Store = store
		rides := store.Rides()
		st = storage{
			tx:        store,
			rides:     rides,
			snapshots: rides,
			payments:  store.Payments(),
			payouts:   store.Payouts(),
		}
		log.Info(logger.Entry{Action: "storage_selected", Message: "memory"})

	default:
		pool, err := db.NewPool(ctx, cfg.Database, log)
		if err != nil {
			return app, fmt.Errorf("connect postgres: %w", err)
		}
		app.closers = append(app.closers, func() { db.Close(pool, log) })

		if err := db.Migrate(ctx, pool, log); err != nil {
			return app, fmt.Errorf("migrate: %w", err)
		}
		// таблицу rides ведет ride service в той же базе, снимки не нужны
		st = storage{
			tx:       db.NewTxManager(pool),
			rides:    repo.NewRidePgRepository(pool, log),
			payments: repo.NewPaymentPgRepository(pool, log),
			payouts:  repo.NewPayoutPgRepository(pool, log),
		}
		log.Info(logger.Entry{Action: "storage_selected", Message: "postgres"})
	}

	// ---- СЛОЙ 1: RabbitMQ ----
	var (
		publisher out.EventPublisher = out_amqp.NopPublisher{}
		broker    *mq.RabbitMQ
	)
	if cfg.Payment.MessagingEnabled {
		broker, err = mq.NewRabbitMQ(ctx, cfg.RabbitMQ, log)
		if err != nil {
			return app, fmt.Errorf("connect rabbitmq: %w", err)
		}
		app.closers = append(app.closers, broker.Close)

		if err := mq.SetupTopology(ctx, broker, log); err != nil {
			return app, fmt.Errorf("setup topology: %w", err)
		}
		publisher = out_amqp.NewPaymentEventPublisher(broker, log)
	}

	jwtService := auth.NewJWTService(cfg.JWT)

	// ---- СЛОЙ 2: шлюз ----
	gw := NewGateway(cfg.Payment.Gateway, st.payments, log)

	// ---- СЛОЙ 3: WebSocket уведомления водителей ----
	app.Hub = ws.NewHub(jwtService.ExtractUserID, log, model.RoleDriver)
	notifier := out_ws.NewPayoutNotifier(app.Hub, log)

	// ---- СЛОЙ 4: use cases ----
	payoutUC := usecase.NewPayoutService(st.tx, st.payments, st.payouts, gw, publisher, notifier, log)
	registerUC := usecase.NewRegisterPaymentService(st.rides, st.payments, gw, payoutUC, publisher, log)
	refundUC := usecase.NewRefundPaymentService(st.tx, st.payments, st.payouts, gw, publisher, notifier, log)

	// ---- СЛОЙ 5: входящие адаптеры ----
	if broker != nil {
		app.Consumer = in_amqp.NewRideCompletedConsumer(broker, st.snapshots, registerUC, log)
	}

	handler := transport.NewHTTPHandler(transport.UseCases{
		Register:     registerUC,
		Refund:       refundUC,
		Payouts:      payoutUC,
		Transactions: usecase.NewListTransactionsService(st.payments, st.payouts),
		GetPayment:   usecase.NewGetPaymentService(st.payments, log),
		ListPayouts:  usecase.NewListPayoutsService(st.payouts),
	}, log)

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux, transport.JWTMiddleware(jwtService, log))
	mux.HandleFunc("GET /ws", app.Hub.ServeWS)
	app.Handler = mux

	return app, nil
}

// NewGateway — симулятор процессора и банка, обернутый таймаутом и повторами
func NewGateway(cfg config.GatewayConfig, payments gateway.PaymentLookup, log *logger.Logger) *gateway.Resilient {
	sim := gateway.NewSimulator(gateway.SimulatorConfig{
		ChargeOutcome:   gateway.OutcomeFor(cfg.Mode, cfg.ChargeSuccessRate),
		TransferOutcome: gateway.OutcomeFor(cfg.Mode, cfg.PayoutSuccessRate),
		ChargeDelay:     millis(cfg.ChargeDelayMs),
		ReversalDelay:   millis(cfg.ReversalDelayMs),
		TransferDelay:   millis(cfg.TransferDelayMs),
	}, payments, log)
	return gateway.NewResilient(sim, sim, millis(cfg.TimeoutMs), cfg.MaxRetries, log)
}

func millis(ms int) time.Duration { return time.Duration(ms) * time.Millisecond }

// Run запускает Payment Service и блокируется до отмены ctx
func Run(ctx context.Context, cfg config.Config, log *logger.Logger) {
	log.Info(logger.Entry{Action: "payment_service_starting", Message: "initializing payment service"})

	app, err := Build(ctx, cfg, log)
	if err != nil {
		log.Fatal(logger.Entry{
			Action:  "payment_service_init_failed",
			Message: err.Error(),
			Error:   &logger.ErrObj{Msg: err.Error()},
		})
	}
	defer app.Close()

	go app.Hub.Run(ctx)

	if app.Consumer != nil {
		if err := app.Consumer.Start(ctx); err != nil {
			log.Error(logger.Entry{
				Action:  "ride_completed_consumer_failed",
				Message: err.Error(),
				Error:   &logger.ErrObj{Msg: err.Error()},
			})
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Services.PaymentServicePort)
	server := &http.Server{
		Addr:              addr,
		Handler:           app.Handler,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info(logger.Entry{
			Action:  "http_server_starting",
			Message: fmt.Sprintf("listening on %s", addr),
		})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(logger.Entry{
				Action:  "http_server_failed",
				Message: err.Error(),
				Error:   &logger.ErrObj{Msg: err.Error()},
			})
		}
	}()

	<-ctx.Done()
	log.Info(logger.Entry{Action: "payment_service_stopping", Message: "shutting down payment service"})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error(logger.Entry{
			Action:  "http_server_shutdown_failed",
			Message: err.Error(),
			Error:   &logger.ErrObj{Msg: err.Error()},
		})
	} else {
		log.Info(logger.Entry{Action: "http_server_stopped", Message: "http server stopped gracefully"})
	}

	select {
	case <-app.Hub.Done():
	case <-shutdownCtx.Done():
	}

	log.Info(logger.Entry{Action: "payment_service_stopped", Message: "payment service stopped"})
}
