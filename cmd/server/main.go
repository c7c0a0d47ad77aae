package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/suPer8Hu/prompt-hub/internal/activity"
	"github.com/suPer8Hu/prompt-hub/internal/app"
	"github.com/suPer8Hu/prompt-hub/internal/config"
	"github.com/suPer8Hu/prompt-hub/internal/db"
	"github.com/suPer8Hu/prompt-hub/internal/gateway"
	"github.com/suPer8Hu/prompt-hub/internal/gateway/local"
	"github.com/suPer8Hu/prompt-hub/internal/gateway/supabase"
	"github.com/suPer8Hu/prompt-hub/internal/httpapi"
	"github.com/suPer8Hu/prompt-hub/internal/httpapi/handlers"
	"github.com/suPer8Hu/prompt-hub/internal/listing"
	"github.com/suPer8Hu/prompt-hub/internal/logging"
	"github.com/suPer8Hu/prompt-hub/internal/observability"
	"github.com/suPer8Hu/prompt-hub/internal/prefs"
	"github.com/suPer8Hu/prompt-hub/internal/profile"
	"github.com/suPer8Hu/prompt-hub/internal/store/rabbitmq"
	"github.com/suPer8Hu/prompt-hub/internal/store/redisstore"
	"github.com/suPer8Hu/prompt-hub/internal/vote"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadWithFile()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	log, err := logging.New(cfg.IsDev())
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	// device prefs always live in the local database
	gdb, err := db.Connect(cfg.DBDSN)
	if err != nil {
		return err
	}
	if err := prefs.Migrate(gdb); err != nil {
		return fmt.Errorf("migrate prefs: %w", err)
	}

	var backend gateway.Backend
	switch cfg.Backend {
	case config.BackendSupabase:
		sb, err := supabase.New(cfg.SupabaseURL, cfg.SupabaseAnonKey, log)
		if err != nil {
			return fmt.Errorf("supabase: %w", err)
		}
		backend = sb
	default:
		if err := local.Migrate(gdb); err != nil {
			return fmt.Errorf("migrate local backend: %w", err)
		}
		backend = local.New(gdb, cfg.JWTSecret, cfg.TokenTTL)
	}
	log.Info("data gateway ready", zap.String("backend", cfg.Backend))

	metrics := observability.NewCollector("prompthub")

	var pub activity.Publisher = activity.Nop{}
	if cfg.RabbitURL != "" {
		rp, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			return fmt.Errorf("rabbit publisher: %w", err)
		}
		defer rp.Close()
		pub = rp
		log.Info("publishing activity events", zap.String("queue", cfg.RabbitQueue))
	}
	pub = activity.NewLogged(pub, log, metrics.EventPublished)

	var guard vote.Guard
	if cfg.RedisAddr != "" {
		rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := rds.Ping(context.Background()); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer rds.Close()
		guard = vote.NewRedisGuard(rds, cfg.VoteLockTTL)
		log.Info("vote guard shared through redis", zap.String("addr", cfg.RedisAddr))
	}

	loader := listing.NewLoader(log, metrics)
	devices := app.NewRegistry(app.Deps{
		Backend:   backend,
		Prefs:     prefs.NewStore(gdb),
		Loader:    loader,
		Votes:     vote.NewReconciler(guard, pub, metrics, log),
		Profiles:  profile.NewAggregator(loader, log),
		Publisher: pub,
		Log:       log,
	}, cfg.MaxDevices)
	defer devices.Close()

	h := handlers.NewHandler(devices, log)
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httpapi.NewRouter(h, cfg, metrics, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", cfg.ListenAddr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
