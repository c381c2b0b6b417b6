package main

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/ardanlabs/conf/v3"
	"github.com/gin-gonic/gin"
	"github.com/dirops/authseed/internal/consumer"
	"github.com/dirops/authseed/internal/debug"
	"github.com/dirops/authseed/internal/directory"
	"github.com/dirops/authseed/internal/handlers"
	"github.com/dirops/authseed/internal/metrics"
	"github.com/dirops/authseed/internal/mid"
	"github.com/dirops/authseed/internal/queue/queuedb"
	"github.com/dirops/authseed/internal/sqldb"
	"github.com/dirops/authseed/pkg/logger"
	"github.com/dirops/authseed/pkg/telemetry"
)

var build = "development"

func main() {
	traceIDFn := func(ctx context.Context) string {
		return telemetry.GetTraceID(ctx)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := logger.New(os.Stdout, logger.LevelDebug, logger.EnvironmentProd, "authseed-server", traceIDFn)

	if err := run(ctx, log); err != nil {
		log.Error(ctx, "main failed to execute run", "err", err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, log *logger.Logger) error {
	log.Info(ctx, "run", "build", build, "GOMAXPROCS", runtime.GOMAXPROCS(0))

	//configuration
	cfg := struct {
		Web struct {
			ReadTimeout    time.Duration `conf:"default:10s"`
			WriteTimeout   time.Duration `conf:"default:30s"`
			IdleTimeout    time.Duration `conf:"default:120s"`
			ShutdownTimout time.Duration `conf:"default:120s"`
			DebugHost      string        `conf:"default:0.0.0.0:3000"`
			APIHost        string        `conf:"default:0.0.0.0:8000"`
			APIKey         string        `conf:"required,mask"`
		}

		QueueDB struct {
			User        string `conf:"default:postgres"`
			Password    string `conf:"default:postgres,mask"`
			Host        string `conf:"default:database:5432"`
			Name        string `conf:"default:postgres"`
			MaxIdleConn int    `conf:"default:0"`
			MaxOpenConn int    `conf:"default:0"`
			DisableTLS  bool   `conf:"default:true"`
		}

		Directory struct {
			BaseURL      string        `conf:"default:https://graph.microsoft.com/v1.0"`
			TokenURL     string        `conf:"required"`
			ClientID     string        `conf:"required"`
			ClientSecret string        `conf:"required,mask"`
			Scope        string        `conf:"default:https://graph.microsoft.com/.default"`
			DryRun       bool          `conf:"default:false"`
			RetryBudget  time.Duration `conf:"default:5m"`
		}

		Tempo struct {
			Host        string  `conf:"default:tempo:4318"`
			ServiceName string  `conf:"default:authseed-server"`
			Probability float64 `conf:"default:1"`
		}
	}{}

	const prefix = "AUTHSEED"
	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing conf: %w", err)
	}

	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("conf to string: %w", err)
	}

	log.Info(ctx, "app configuration", "cfg", out)

	//==========================================================================
	//Debug Server
	go func() {
		log.Info(ctx, "debug server starting", "host", cfg.Web.DebugHost)
		if err := http.ListenAndServe(cfg.Web.DebugHost, debug.Register()); err != nil {
			log.Error(ctx, "failed to start debug server", "host", cfg.Web.DebugHost, "err", err.Error())
			return
		}
	}()

	expvar.NewString("build").Set(build)

	//==========================================================================
	// Database init
	db, err := sqldb.OpenPostgres(sqldb.PostgresConfig{
		User:         cfg.QueueDB.User,
		Password:     cfg.QueueDB.Password,
		Host:         cfg.QueueDB.Host,
		Name:         cfg.QueueDB.Name,
		MaxIdleConns: cfg.QueueDB.MaxIdleConn,
		MaxOpenConns: cfg.QueueDB.MaxOpenConn,
		DisableTLS:   cfg.QueueDB.DisableTLS,
	})
	if err != nil {
		return fmt.Errorf("failed to open connection to database: %w", err)
	}

	defer db.Close()

	log.Info(ctx, "database initialized", "host", cfg.QueueDB.Host)

	//==========================================================================
	// Trace init
	provider, cleanup, err := telemetry.NewTraceProvider(telemetry.Config{
		ServiceName: cfg.Tempo.ServiceName,
		Host:        cfg.Tempo.Host,
		Probability: cfg.Tempo.Probability,
		Build:       build,
		ExcludedRoutes: map[string]struct{}{
			"/v1/liveness":  {},
			"/v1/readiness": {},
		},
	})
	if err != nil {
		return fmt.Errorf("newTraceProvider: %w", err)
	}

	defer cleanup(ctx)

	tracer := provider.Tracer(cfg.Tempo.ServiceName)

	log.Info(ctx, "tracer successfully initialized", "host", cfg.Tempo.Host, "probability", cfg.Tempo.Probability)

	//==========================================================================
	// Directory client + consumer init
	dirClient := directory.New(log, directory.Config{
		BaseURL:      cfg.Directory.BaseURL,
		TokenURL:     cfg.Directory.TokenURL,
		ClientID:     cfg.Directory.ClientID,
		ClientSecret: cfg.Directory.ClientSecret,
		Scope:        cfg.Directory.Scope,
		DryRun:       cfg.Directory.DryRun,
		RetryBudget:  cfg.Directory.RetryBudget,
	})

	m := metrics.New()

	queueStore := queuedb.NewStore(db, tracer, 5*time.Minute)

	// The http trigger shares the consumer's state machine. The queue client
	// is only used for finalization, which the trigger path never reaches.
	cons := consumer.New(log, queueStore, dirClient, m, consumer.Config{})

	//==========================================================================
	// Router init
	r := gin.New()

	//middleware stack
	r.Use(mid.Telemetry(tracer))
	r.Use(mid.Logger(log))
	r.Use(mid.Metrics(m))
	r.Use(mid.Panic(log, m))
	r.Use(mid.Error(log))

	handlers.RegisterRoutes(handlers.Conf{
		Router:   r,
		Consumer: cons,
		DB:       db,
		Log:      log,
		Tracer:   tracer,
		APIKey:   cfg.Web.APIKey,
		Build:    build,
	})

	//==========================================================================
	// API Server
	server := http.Server{
		Addr:         cfg.Web.APIHost,
		Handler:      r,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     log.StdLogger(logger.LevelError),
		BaseContext:  func(_ net.Listener) context.Context { return ctx },
	}

	serverErrs := make(chan error, 1)

	go func() {
		log.Info(ctx, "API server starting", "host", cfg.Web.APIHost)
		if err := server.ListenAndServe(); err != nil {
			serverErrs <- fmt.Errorf("listenAndServe: %w", err)
		}
	}()

	select {
	case err := <-serverErrs:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		log.Info(ctx, "server received a shutdown signal")
		defer log.Info(ctx, "server completed the shutdown process")

		shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Web.ShutdownTimout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			server.Close()
			return fmt.Errorf("failed to gracefully shutdown the server: %w", err)
		}
	}

	return nil
}
