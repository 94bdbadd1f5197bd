package main

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"

	"tiergate.dev/internal/audit"
	"tiergate.dev/internal/auth"
	"tiergate.dev/internal/cache"
	"tiergate.dev/internal/config"
	"tiergate.dev/internal/httpapi"
	"tiergate.dev/internal/jobs"
	"tiergate.dev/internal/migrate"
	"tiergate.dev/internal/obs"
	"tiergate.dev/internal/store/pg"
	"tiergate.dev/internal/tierrequest"
	"tiergate.dev/internal/token"
	"tiergate.dev/ops/migrations"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := obs.Logger()
		l.Fatal().Err(err).Msg("load config")
	}

	log := obs.NewLogger(cfg.Environment, os.Stdout)
	obs.SetLogger(log)

	// Инициализация observability (регистрация метрик)
	obs.Init()
	obs.InitBuildInfo(version, commit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	codec, err := token.NewCodec(
		token.WithSecrets(cfg.Security.AccessSecret, cfg.Security.RefreshSecret),
		token.WithAccessTTL(cfg.Security.AccessTTL),
		token.WithRefreshTTL(cfg.Security.RefreshTTL),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("token codec")
	}

	var (
		db          *sql.DB
		users       auth.UserStore
		requests    tierrequest.Store
		memRequests *tierrequest.MemoryStore
		auditSink   audit.Sink = audit.NewLogSink(log)
	)
	if cfg.Postgres.DSN != "" {
		store, err := pg.Open(ctx, cfg.Postgres.DSN, pg.PoolConfig{
			MaxOpen:         cfg.Postgres.MaxOpen,
			MaxIdle:         cfg.Postgres.MaxIdle,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("open postgres")
		}
		defer store.Close()
		db = store.DB()

		if cfg.Postgres.AutoMigrate {
			mgr := migrate.NewManager(db, migrations.FS, migrations.MigrationsDir, migrations.SeedsDir)
			if err := mgr.Up(ctx); err != nil {
				log.Fatal().Err(err).Msg("apply migrations")
			}
		}
		users = store.Users()
		requests = store.TierRequests()
		auditSink = audit.Fanout(auditSink, store.AuditSink())
	} else {
		log.Warn().Msg("postgres dsn not set, using in-memory stores")
		users = auth.NewMemoryStore()
		memRequests = tierrequest.NewMemoryStore()
		requests = memRequests
	}

	// Redis нужен только для учёта использованных refresh-токенов
	var (
		rdb    *redis.Client
		purger jobs.Purger
		opts   []auth.ServiceOption
	)
	if cfg.Redis.Addr != "" {
		rdb, err = cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("connect redis")
		}
		defer rdb.Close()
	}
	if cfg.Security.SpentJTI {
		if rdb != nil {
			opts = append(opts, auth.WithSpentTokens(cache.NewRedisSpentTokens(rdb)))
		} else {
			mem := cache.NewMemorySpentTokens(time.Now)
			opts = append(opts, auth.WithSpentTokens(mem))
			purger = mem
		}
	}

	authSvc, err := auth.NewService(users, codec, opts...)
	if err != nil {
		log.Fatal().Err(err).Msg("auth service")
	}
	if cfg.Bootstrap.AdminEmail != "" {
		admin, err := authSvc.EnsureAdmin(ctx, cfg.Bootstrap.AdminEmail, cfg.Bootstrap.AdminPassword)
		if err != nil {
			log.Fatal().Err(err).Msg("bootstrap admin")
		}
		log.Info().Str("user_id", admin.ID).Str("email", admin.Email).Msg("admin account ready")
	}
	if memRequests != nil && cfg.Bootstrap.DemoVendorPassword != "" {
		vendors, err := seedDemoVendors(ctx, authSvc, memRequests, cfg.Bootstrap.DemoVendorPassword)
		if err != nil {
			log.Fatal().Err(err).Msg("bootstrap demo vendors")
		}
		log.Info().Int("count", len(vendors)).Msg("demo vendors ready")
	}
	tierSvc := tierrequest.NewService(requests, tierrequest.WithMinRejectionReason(cfg.TierRequests.MinRejectionReason))

	recorder := audit.NewRecorder(auditSink, audit.WithBuffer(cfg.Audit.Buffer))

	proxies, err := httpapi.ParseTrustedProxies(cfg.HTTP.TrustedProxies)
	if err != nil {
		log.Fatal().Err(err).Msg("http.trustedproxies")
	}

	probe := httpapi.ReadyProbe{DB: db, Redis: rdb}
	api := httpapi.New(httpapi.Options{
		Auth:           authSvc,
		TierRequests:   tierSvc,
		Audit:          recorder,
		Ready:          probe,
		Logger:         log,
		Version:        version,
		Cookies:        httpapi.CookieOptions{Secure: cfg.Cookies.Secure, Domain: cfg.Cookies.Domain},
		MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
		TrustedProxies: proxies,
		LoginLimit:     cfg.RateLimit.LoginLimit,
		LoginWindow:    cfg.RateLimit.LoginWindow,
		RefreshLimit:   cfg.RateLimit.RefreshLimit,
		RefreshWindow:  cfg.RateLimit.RefreshWindow,
	})

	sched := jobs.NewScheduler(purger, tierSvc, log)
	if err := sched.Start(cfg.Jobs.PurgeSpec, cfg.Jobs.PendingGaugeSpec); err != nil {
		log.Fatal().Err(err).Msg("start jobs")
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}

	errCh := make(chan error, 2)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("starting tiergate http")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var grpcSrv *grpc.Server
	if cfg.GRPC.Addr != "" {
		lis, err := net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			log.Fatal().Err(err).Str("addr", cfg.GRPC.Addr).Msg("grpc listen")
		}
		grpcSrv = grpc.NewServer()
		health := httpapi.NewGRPCServer(probe)
		health.Register(grpcSrv)
		go health.Watch(ctx, 10*time.Second)
		go func() {
			log.Info().Str("addr", cfg.GRPC.Addr).Msg("starting tiergate grpc health")
			if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errCh <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err := <-errCh:
		log.Error().Err(err).Msg("server failed")
	}

	shutdown(log, srv, grpcSrv, sched, recorder)
}

// shutdown stops intake first so the audit queue can drain.
func shutdown(log zerolog.Logger, srv *http.Server, grpcSrv *grpc.Server, sched *jobs.Scheduler, recorder *audit.Recorder) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	sched.Stop()
	if err := recorder.Close(ctx); err != nil {
		log.Warn().Err(err).Msg("audit drain")
	}
	log.Info().Msg("stopped")
}
