package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/ardanlabs/conf/v3"
	"github.com/dirops/authseed/internal/consumer"
	"github.com/dirops/authseed/internal/directory"
	"github.com/dirops/authseed/internal/metrics"
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

	log := logger.New(os.Stdout, logger.LevelDebug, logger.EnvironmentProd, "authseed-consumer", traceIDFn)

	if err := run(ctx, log); err != nil {
		log.Error(ctx, "main failed to execute run", "err", err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, log *logger.Logger) error {
	log.Info(ctx, "run", "build", build, "GOMAXPROCS", runtime.GOMAXPROCS(0))

	//configuration
	cfg := struct {
		Consumer struct {
			MaxMessages int           `conf:"default:32"`
			Visibility  time.Duration `conf:"default:5m"`
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
			Host        string  `conf:"default:"`
			ServiceName string  `conf:"default:authseed-consumer"`
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
	// Trace init
	provider, cleanup, err := telemetry.NewTraceProvider(telemetry.Config{
		ServiceName: cfg.Tempo.ServiceName,
		Host:        cfg.Tempo.Host,
		Probability: cfg.Tempo.Probability,
		Build:       build,
	})
	if err != nil {
		return fmt.Errorf("newTraceProvider: %w", err)
	}

	defer cleanup(ctx)

	tracer := provider.Tracer(cfg.Tempo.ServiceName)

	//==========================================================================
	// Queue init
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
		return fmt.Errorf("failed to open connection to queue database: %w", err)
	}

	defer db.Close()

	queueStore := queuedb.NewStore(db, tracer, cfg.Consumer.Visibility)

	log.Info(ctx, "queue database initialized", "host", cfg.QueueDB.Host)

	//==========================================================================
	// Directory client init
	dirClient := directory.New(log, directory.Config{
		BaseURL:      cfg.Directory.BaseURL,
		TokenURL:     cfg.Directory.TokenURL,
		ClientID:     cfg.Directory.ClientID,
		ClientSecret: cfg.Directory.ClientSecret,
		Scope:        cfg.Directory.Scope,
		DryRun:       cfg.Directory.DryRun,
		RetryBudget:  cfg.Directory.RetryBudget,
	})

	if cfg.Directory.DryRun {
		log.Warn(ctx, "dry run enabled, auth method writes will be skipped")
	}

	//==========================================================================
	// Run one batch
	cons := consumer.New(log, queueStore, dirClient, metrics.New(), consumer.Config{
		MaxMessages: cfg.Consumer.MaxMessages,
	})

	started := time.Now()

	n, err := cons.RunBatch(ctx)
	if err != nil {
		return fmt.Errorf("runBatch: %w", err)
	}

	log.Info(ctx, "batch complete", "messages", n, "elapsed", time.Since(started).String())

	return nil
}
