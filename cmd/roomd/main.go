// Command roomd serves the roomie application tier: the JSON API and the ops health listener.
package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc/credentials"

	"github.com/roomiegr/roomie/internal/admin"
	"github.com/roomiegr/roomie/internal/auth"
	"github.com/roomiegr/roomie/internal/authz"
	"github.com/roomiegr/roomie/internal/backend"
	"github.com/roomiegr/roomie/internal/config"
	"github.com/roomiegr/roomie/internal/crypto"
	"github.com/roomiegr/roomie/internal/draft"
	"github.com/roomiegr/roomie/internal/impersonation"
	"github.com/roomiegr/roomie/internal/limiter"
	"github.com/roomiegr/roomie/internal/logging"
	"github.com/roomiegr/roomie/internal/messaging"
	"github.com/roomiegr/roomie/internal/migrate"
	"github.com/roomiegr/roomie/internal/notify"
	"github.com/roomiegr/roomie/internal/profile"
	"github.com/roomiegr/roomie/internal/publish"
	"github.com/roomiegr/roomie/internal/repository/postgres"
	"github.com/roomiegr/roomie/internal/search"
	grpcserver "github.com/roomiegr/roomie/internal/server/grpc"
	httpserver "github.com/roomiegr/roomie/internal/server/http"
	"github.com/roomiegr/roomie/internal/session"
	"github.com/roomiegr/roomie/internal/verification"
	"github.com/roomiegr/roomie/internal/wizard"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	cfgPath := flag.String("config", os.Getenv("ROOMIE_CONFIG"), "TOML config file")
	envFile := flag.String("env", ".env", "dotenv file loaded before ROOMIE_* variables are read")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	opsAddr := flag.String("ops-addr", "", "ops gRPC listen address (overrides config)")
	dsn := flag.String("dsn", "", "PostgreSQL DSN (overrides config)")
	redisAddr := flag.String("redis", "", "Redis address (overrides config)")
	jwtSecret := flag.String("jwt-secret", "", "auth service JWT secret (overrides config)")
	dev := flag.Bool("dev", false, "dev logging, gin debug mode and gRPC reflection")
	flag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		fatal(err)
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fatal(err)
	}
	cfg.ApplyEnv(os.Getenv)
	override(&cfg.HTTP.Addr, *addr)
	override(&cfg.Ops.Addr, *opsAddr)
	override(&cfg.Database.DSN, *dsn)
	override(&cfg.Redis.Addr, *redisAddr)
	override(&cfg.Auth.JWTSecret, *jwtSecret)
	if *dev {
		cfg.Log.Dev = true
		cfg.Ops.Reflection = true
	}
	if err := cfg.Validate(); err != nil {
		fatal(err)
	}

	logger, err := logging.New(cfg.Log.Dev, cfg.Log.File, zap.String("service", "roomd"))
	if err != nil {
		fatal(err)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.HTTP.Addr),
		zap.String("ops_addr", cfg.Ops.Addr),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("roomd stopped", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if cfg.Database.Migrate {
		if err := migrate.Up(ctx, cfg.Database.DSN); err != nil {
			return err
		}
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.Database.DSN)
	if err != nil {
		return err
	}
	if cfg.Database.MaxConns > 0 {
		poolCfg.MaxConns = cfg.Database.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	db := &postgres.DB{Pool: pool}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	defer func() { _ = rdb.Close() }()

	be, err := backend.New(cfg.Backend.URL, cfg.Backend.ServiceKey, cfg.Backend.Timeout)
	if err != nil {
		return err
	}

	// Repositories
	drafts := postgres.NewDraftRepo(db)
	procs := postgres.NewProcedureRepo(db)
	photos := postgres.NewPhotoRepo(db)
	profiles := postgres.NewProfileRepo(db)
	verifs := postgres.NewVerificationRepo(db)
	threads := postgres.NewThreadRepo(db)
	rooms := postgres.NewRoomRepo(db)
	activity := postgres.NewActivityRepo(db)

	// Notifications
	sms := notify.NewTwilio(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.From, logger.Named("twilio"))
	var alerts notify.Multi
	if cfg.Notify.EdgeFunction {
		alerts = append(alerts, notify.NewFunction(be, backend.FnNotifyAdmins))
	}
	if len(cfg.Notify.AdminPhones) > 0 {
		alerts = append(alerts, notify.NewSMSAlerts(sms, cfg.Notify.AdminPhones))
	}
	if cfg.Discord.Token != "" {
		d, err := notify.NewDiscord(cfg.Discord.Token, cfg.Discord.ChannelID)
		if err != nil {
			return err
		}
		defer func() { _ = d.Close() }()
		alerts = append(alerts, d)
	}

	// Services
	verifier := auth.NewVerifier([]byte(cfg.Auth.JWTSecret), cfg.Auth.Leeway, cfg.Auth.Audience)
	sealer, err := crypto.NewSealer([]byte(cfg.Auth.SessionSecret), "roomie-session")
	if err != nil {
		return err
	}
	sessions := session.NewStore(rdb, sealer, cfg.Auth.SessionTTL)
	authSvc := auth.NewService(verifier, sessions, logger.Named("auth"))

	az, err := authz.New(cfg.Admin.PolicyFile)
	if err != nil {
		return err
	}

	searchSvc := search.NewService(rooms, procs, rdb, cfg.Search.CacheTTL, logger.Named("search"))
	profileSvc := profile.NewService(profiles, be, logger.Named("profile"))
	verifySvc := verification.NewService(verification.Deps{
		Repo:     verifs,
		Activity: activity,
		Uploader: be,
		OTP: verification.NewOTP(rdb, verification.OTPConfig{
			Length:       cfg.OTP.Length,
			TTL:          cfg.OTP.TTL,
			ResendWindow: cfg.OTP.ResendWindow,
		}),
		SMS:      sms,
		Limiter:  limiter.NewPG(pool, "otp", cfg.OTP.Window, cfg.OTP.MaxFailures, cfg.OTP.BlockFor),
		Notifier: alerts,
		Logger:   logger.Named("verification"),
	})

	wizardLog := logger.Named("wizard")
	registry := wizard.NewRegistry(drafts, wizardLog, draft.Options{
		Delay:             cfg.Autosave.Delay,
		ConflictDetection: !cfg.Autosave.LastWriteWins,
		OnError:           func(err error) { wizardLog.Warn("autosave error", zap.Error(err)) },
	}, cfg.Autosave.IdleTimeout)
	registry.StartSweeper(ctx, cfg.Autosave.SweepEvery)

	gate := publish.NewGate(profileSvc, verifySvc, procs, photos, searchSvc, logger.Named("publish"), publish.Options{
		Threshold:     cfg.Publish.Threshold,
		RedirectDelay: cfg.Publish.RedirectDelay,
	})
	backOffice := admin.NewService(admin.Deps{
		Rooms:    rooms,
		Photos:   photos,
		Activity: activity,
		Invoker:  be,
		Notifier: alerts,
		Cache:    searchSvc,
		Prober:   admin.NewHTTPProber(nil),
		Logger:   logger.Named("admin"),
		Scan:     admin.ScanOptions{Concurrency: cfg.Admin.ScanConcurrency, ProbeTimeout: cfg.Admin.ScanTimeout},
	})
	impSvc := impersonation.NewService(be, verifier, activity, alerts, logger.Named("impersonation"))

	// HTTP
	if !cfg.Log.Dev {
		gin.SetMode(gin.ReleaseMode)
	}
	api := httpserver.New(httpserver.Deps{
		Sessions:      authSvc,
		Wizards:       registry,
		Listings:      drafts,
		Publisher:     gate,
		Photos:        be,
		Profiles:      profileSvc,
		Verifications: verifySvc,
		Threads:       messaging.NewService(threads, logger.Named("messaging")),
		Search:        searchSvc,
		Impersonation: impSvc,
		Admin:         backOffice,
		Authz:         az,
	}, httpserver.Options{
		SecureCookies:  cfg.HTTP.SecureCookies,
		SessionTTL:     cfg.Auth.SessionTTL,
		MaxUploadBytes: cfg.HTTP.MaxUploadBytes,
		TrustedProxies: cfg.HTTP.TrustedProxies,
	}, logger.Named("http"))
	httpSrv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      api.Handler(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	// Ops
	opsOpts := grpcserver.Options{Reflection: cfg.Ops.Reflection}
	if cfg.Ops.TLSCert != "" {
		creds, err := credentials.NewServerTLSFromFile(cfg.Ops.TLSCert, cfg.Ops.TLSKey)
		if err != nil {
			return err
		}
		opsOpts.Creds = creds
	}
	ops := grpcserver.New(logger.Named("ops"), opsOpts,
		grpcserver.Check{Name: "postgres", Ping: db.Ping},
		grpcserver.Check{Name: "redis", Ping: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
	)
	go ops.Run(ctx, cfg.Ops.PingEvery)
	opsLis, err := net.Listen("tcp", cfg.Ops.Addr)
	if err != nil {
		return err
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("ops listening", zap.String("addr", cfg.Ops.Addr))
		errCh <- ops.Serve(opsLis)
	}()
	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTP.Addr))
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	registry.Stop(shutdownCtx)
	ops.Stop(5 * time.Second)
	return runErr
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func fatal(err error) {
	l, _ := zap.NewProduction()
	l.Fatal("roomd", zap.Error(err))
}
