package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/suPer8Hu/prompt-hub/internal/config"
	"github.com/suPer8Hu/prompt-hub/internal/db"
	"github.com/suPer8Hu/prompt-hub/internal/gateway/local"
	"github.com/suPer8Hu/prompt-hub/internal/logging"
	"github.com/suPer8Hu/prompt-hub/internal/observability"
	"github.com/suPer8Hu/prompt-hub/internal/refresh"
	"github.com/suPer8Hu/prompt-hub/internal/store/rabbitmq"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadWithFile()
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.IsDev())
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	// supabase keeps profile_metrics current server-side
	if cfg.Backend != config.BackendLocal {
		return fmt.Errorf("worker requires BACKEND=%s, got %q", config.BackendLocal, cfg.Backend)
	}
	if cfg.RabbitURL == "" {
		return errors.New("RABBIT_URL is required")
	}

	gdb, err := db.Connect(cfg.DBDSN)
	if err != nil {
		return err
	}
	if err := local.Migrate(gdb); err != nil {
		return fmt.Errorf("migrate local backend: %w", err)
	}

	metrics := observability.NewCollector("prompthub")
	refresher := refresh.New(func(ctx context.Context) (int, error) {
		return local.RecomputeProfileMetrics(ctx, gdb)
	}, log, metrics.MetricsRecomputed.Inc)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		return fmt.Errorf("rabbit dial: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("rabbit channel: %w", err)
	}
	defer ch.Close()

	if err := rabbitmq.DeclareTopology(ch, cfg.RabbitQueue); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	concurrency := cfg.WorkerConcurrency
	if err := ch.Qos(concurrency, 0, false); err != nil {
		return fmt.Errorf("qos: %w", err)
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.WorkerMetricsAddr != "" {
		srv := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: metrics.Handler(), ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics listener", zap.Error(err))
			}
		}()
		defer srv.Close()
	}

	log.Info("worker started",
		zap.String("queue", cfg.RabbitQueue),
		zap.Int("concurrency", concurrency),
		zap.Int("max_attempts", cfg.WorkerMaxAttempts),
	)

	h := &handler{
		ch:        ch,
		queue:     cfg.RabbitQueue,
		refresher: refresher,
		metrics:   metrics,
		log:       log,
		attempts:  cfg.WorkerMaxAttempts,
		delay:     cfg.WorkerRetryDelay,
	}

	// worker pool
	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				h.handle(ctx, workerID, d)
			}
		}(i)
	}

	// dispatcher
	for {
		select {
		case <-ctx.Done():
			log.Info("worker shutting down")
			close(jobs)
			wg.Wait()
			return nil

		case d, ok := <-msgs:
			if !ok {
				close(jobs)
				wg.Wait()
				return errors.New("delivery channel closed")
			}
			jobs <- d
		}
	}
}

type handler struct {
	ch        *amqp.Channel
	queue     string
	refresher *refresh.Refresher
	metrics   *observability.Collector
	log       *zap.Logger
	attempts  int
	delay     time.Duration
}

func (h *handler) handle(ctx context.Context, workerID int, d amqp.Delivery) {
	log := h.log.With(zap.Int("worker", workerID), zap.String("message_id", d.MessageId))
	start := time.Now()

	err := h.refresher.Handle(ctx, d.Body)
	switch {
	case err == nil:
		h.metrics.EventConsumed("ok")
		if err := d.Ack(false); err != nil {
			log.Warn("ack failed", zap.Error(err))
		}

	case errors.Is(err, refresh.ErrBadMessage):
		// straight to the dlq
		h.metrics.EventConsumed("bad_message")
		log.Warn("bad message", zap.Error(err))
		_ = d.Nack(false, false)

	default:
		attempt := rabbitmq.Attempt(d.Headers)
		log = log.With(zap.Int("attempt", attempt), zap.Duration("cost", time.Since(start)), zap.Error(err))
		if attempt >= h.attempts {
			h.metrics.EventConsumed("dead_lettered")
			log.Error("refresh failed, giving up")
			_ = d.Nack(false, false)
			return
		}
		if rerr := rabbitmq.Retry(ctx, h.ch, h.queue, d, h.delay); rerr != nil {
			h.metrics.EventConsumed("requeued")
			log.Warn("retry publish failed, requeueing", zap.NamedError("retry_error", rerr))
			_ = d.Nack(false, true)
			return
		}
		h.metrics.EventConsumed("retried")
		log.Warn("refresh failed, retrying")
		_ = d.Ack(false)
	}
}
