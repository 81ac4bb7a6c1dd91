package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/geocoder89/claimdesk/internal/auth"
	"github.com/geocoder89/claimdesk/internal/config"
	"github.com/geocoder89/claimdesk/internal/db"
	"github.com/geocoder89/claimdesk/internal/domain/claim"
	httpx "github.com/geocoder89/claimdesk/internal/http"
	"github.com/geocoder89/claimdesk/internal/http/handlers"
	"github.com/geocoder89/claimdesk/internal/notifications"
	"github.com/geocoder89/claimdesk/internal/observability"
	"github.com/geocoder89/claimdesk/internal/repo/memory"
	"github.com/geocoder89/claimdesk/internal/repo/postgres"
	"github.com/geocoder89/claimdesk/internal/service"
	"github.com/geocoder89/claimdesk/internal/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type stores struct {
	users  service.UserStore
	claims service.ClaimStore
	close  func()
}

func main() {
	// Load the config set up
	cfg := config.Load()

	// start up the observability logger
	log := observability.NewLogger(cfg.Env)
	slog.SetDefault(log)

	if err := cfg.Validate(); err != nil {
		log.Error("invalid config", "err", err, "env", cfg.Env)
		os.Exit(1)
	}

	ctx := context.Background()

	shutdownTracer, err := observability.InitTracer(ctx, observability.TracerConfig{
		Enabled:     cfg.OTelEnabled,
		ServiceName: "claimdesk",
		Endpoint:    cfg.OTelEndpoint,
		Env:         cfg.Env,
	})
	if err != nil {
		log.Error("tracer init failed", "err", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := observability.NewProm(reg)

	checks := map[string]handlers.Pinger{}

	st, err := openStores(ctx, cfg, prom, checks)
	if err != nil {
		log.Error("storage init failed", "err", err, "store", cfg.Store)
		os.Exit(1)
	}
	defer st.close()

	seedCtx, cancelSeed := config.WithTimeout(5 * time.Second)
	err = db.EnsureAdminUser(seedCtx, st.users, cfg.AdminUsername, cfg.AdminPassword)
	cancelSeed()
	if err != nil {
		log.Error("admin seed failed", "err", err)
		os.Exit(1)
	}

	revoker, closeRevoker := openRevoker(cfg, checks)
	defer closeRevoker()

	policy := claim.PolicyOpen
	if cfg.StrictClaimTransitions {
		policy = claim.PolicyStrict
	}

	notifier := notifications.NewProtectedNotifier(
		notifications.NewLogNotifier(log),
		notifications.ProtectedNotifierConfig{Timeout: 2 * time.Second},
	)

	router := httpx.NewRouter(httpx.RouterDeps{
		Env:          cfg.Env,
		ServiceName:  "claimdesk",
		Accounts:     service.NewAuthenticator(st.users, prom),
		Claims:       service.NewClaimWorkflow(st.claims, policy, prom),
		Sessions:     auth.NewManager(cfg.JWTSecret, cfg.SessionTTL()),
		Revoker:      revoker,
		Notifier:     notifier,
		Prom:         prom,
		Checks:       checks,
		ReviewerRole: cfg.ReviewerRole,
		LoginPerMin:  cfg.LoginAttemptsPerMinute,
		SecureCookie: cfg.IsProd(),
	})

	// server set up
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("server starting",
			"port", cfg.Port,
			"env", cfg.Env,
			"store", cfg.Store,
			"transition_policy", policy,
			"reviewer_role", cfg.ReviewerRole,
		)
		err := srv.ListenAndServe()

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info("server shutting down")

	shutdownCh := make(chan struct{})

	go func() {
		defer close(shutdownCh)

		ctx, cancel := config.WithTimeout(10 * time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Error("graceful shutdown failed", "err", err)
		}

		if err := shutdownTracer(ctx); err != nil {
			log.Error("tracer shutdown failed", "err", err)
		}
	}()

	select {
	case <-shutdownCh:
		log.Info("shutdown complete")

	case <-time.After(12 * time.Second):
		log.Error("shutdown timed out")
	}
}

func openStores(ctx context.Context, cfg config.Config, prom *observability.Prom, checks map[string]handlers.Pinger) (stores, error) {
	switch cfg.Store {
	case config.StoreMemory:
		slog.Warn("using in-memory storage; data is lost on restart")
		return stores{
			users:  memory.NewUsersRepo(),
			claims: memory.NewClaimsRepo(),
			close:  func() {},
		}, nil

	case config.StorePostgres:
		if cfg.MigrateOnStart {
			if err := db.Migrate(cfg.DBURL); err != nil {
				return stores{}, fmt.Errorf("migrate: %w", err)
			}
		}

		pool, err := db.NewPool(ctx, cfg.DBURL, db.PoolOptions{MaxConns: int32(cfg.DBMaxConns)})
		if err != nil {
			return stores{}, err
		}

		checks["postgres"] = func(ctx context.Context) error { return pool.Ping(ctx) }

		return stores{
			users:  postgres.NewUsersRepo(pool, prom),
			claims: postgres.NewClaimsRepo(pool, prom),
			close:  pool.Close,
		}, nil

	default:
		return stores{}, fmt.Errorf("unknown STORE %q", cfg.Store)
	}
}

func openRevoker(cfg config.Config, checks map[string]handlers.Pinger) (session.Revoker, func()) {
	if cfg.RedisAddr == "" {
		return session.NewMemoryRevoker(), func() {}
	}

	r := session.NewRedisRevoker(session.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	checks["redis"] = r.Ping

	return r, func() { _ = r.Close() }
}
