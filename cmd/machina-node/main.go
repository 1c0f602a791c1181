// Machina Node — узел машины в протоколе обмена.
//
// Node:
//   - Держит дерево модели машины и её composite methods
//   - Принимает протокольные сообщения из RabbitMQ и отвечает на них
//   - Возобновляет приостановленные вызовы по ответам и событиям
//   - Чистит зависшие scope'ы по расписанию
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Machina/internal/config"
	"github.com/shaiso/Machina/internal/mq"
	"github.com/shaiso/Machina/internal/protocol"
	"github.com/shaiso/Machina/internal/telemetry"
	"github.com/shaiso/Machina/internal/trace"
	"github.com/shaiso/Machina/internal/watchdog"
	"github.com/shaiso/Machina/internal/wire"
)

func main() {
	logger := telemetry.SetupLogger()
	logger.Info("starting machina-node")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfgPath := os.Getenv("MACHINA_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger = telemetry.WithMachineID(logger, cfg.Machine)

	// Журнал событий: Postgres при настроенном DSN, иначе slog.
	var sink trace.Sink = trace.NewSlogSink(logger)
	if cfg.PostgresDSN != "" {
		pool, err := trace.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		sink = trace.NewPGSink(pool, logger)
		logger.Info("trace journal connected")
	}

	// Дерево модели и протокольный менеджер.
	tree, err := buildModel()
	if err != nil {
		logger.Error("failed to build machine model", "error", err)
		os.Exit(1)
	}

	mgr := protocol.New(protocol.Config{
		Machine: cfg.Machine,
		Tree:    tree,
		Sink:    sink,
		Logger:  logger,
	})

	if err := registerMethods(mgr); err != nil {
		logger.Error("failed to register composite methods", "error", err)
		os.Exit(1)
	}

	// RabbitMQ. Без транспорта узел работает в локальном режиме.
	var publisher *mq.Publisher
	var consumer *mq.Consumer
	if cfg.AMQPURL != "" {
		mqConn, err := mq.Dial(cfg.AMQPURL, logger)
		if err != nil {
			logger.Warn("RabbitMQ not available, running without transport", "error", err)
		} else {
			defer mqConn.Close()

			if err := mq.DeclareTopology(mqConn, cfg.Machine); err != nil {
				logger.Error("failed to declare topology", "error", err)
				os.Exit(1)
			}

			publisher = mq.NewPublisher(mqConn, logger)
			consumer = mq.NewConsumer(mqConn, publisher, logger, mq.ConsumerConfig{
				Queue:   mq.InboundQueue(cfg.Machine),
				Handler: mgr.HandleInbound,
			})

			go func() {
				if err := consumer.Start(ctx); err != nil && ctx.Err() == nil {
					logger.Error("consumer stopped", "error", err)
					cancel()
				}
			}()
		}
	}

	// Watchdog зависших scope'ов.
	var emitter watchdog.Emitter
	if publisher != nil {
		emitter = func(ctx context.Context, msgs []*wire.Message) error {
			return publisher.PublishAll(ctx, msgs)
		}
	}
	wd := watchdog.New(watchdog.Config{
		Reaper:   mgr,
		Emitter:  emitter,
		Logger:   logger,
		Schedule: cfg.Watchdog.Schedule,
		TTL:      cfg.Watchdog.TTL,
	})
	if err := wd.Start(ctx); err != nil {
		logger.Error("failed to start watchdog", "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		logger.Info("listening", "addr", cfg.HTTPAddr)
		if err := http.ListenAndServe(cfg.HTTPAddr, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	if consumer != nil {
		consumer.Stop()
	}
	wd.Stop()
	logger.Info("machina-node stopped")
}
