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
	"github.com/dirops/authseed/internal/directory"
	stateBus "github.com/dirops/authseed/internal/domains/userstate/bus"
	"github.com/dirops/authseed/internal/domains/userstate/store/statedb"
	"github.com/dirops/authseed/internal/importer"
	"github.com/dirops/authseed/internal/migrate"
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

	log := logger.New(os.Stdout, logger.LevelDebug, logger.EnvironmentProd, "authseed-importer", traceIDFn)

	if err := run(ctx, log); err != nil {
		log.Error(ctx, "main failed to execute run", "err", err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, log *logger.Logger) error {
	log.Info(ctx, "run", "build", build, "GOMAXPROCS", runtime.GOMAXPROCS(0))

	//configuration
	cfg := struct {
		Importer struct {
			CSVPath        string        `conf:"default:users.csv"`
			StateDBPath    string        `conf:"default:state.db"`
			MaxDispatch    int           `conf:"default:32"`
			TTLFirstRun    time.Duration `conf:"default:12h"`
			TTLDeltaRuns   time.Duration `conf:"default:30m"`
			DryRun         bool          `conf:"default:false"`
			EnrichExisting bool          `conf:"default:false"`
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
			TokenURL     string        `conf:"default:"`
			ClientID     string        `conf:"default:"`
			ClientSecret string        `conf:"default:,mask"`
			Scope        string        `conf:"default:https://graph.microsoft.com/.default"`
			RetryBudget  time.Duration `conf:"default:5m"`
		}

		Tempo struct {
			Host        string  `conf:"default:"`
			ServiceName string  `conf:"default:authseed-importer"`
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

	if cfg.Importer.MaxDispatch > 32 {
		return fmt.Errorf("maxDispatch %d exceeds the ceiling of 32", cfg.Importer.MaxDispatch)
	}

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
	// State database init
	stateDB, err := sqldb.OpenSQLite(cfg.Importer.StateDBPath)
	if err != nil {
		return fmt.Errorf("openSQLite: %w", err)
	}

	defer stateDB.Close()

	if err := migrate.State(stateDB); err != nil {
		return fmt.Errorf("migrating state db: %w", err)
	}

	log.Info(ctx, "state database initialized", "path", cfg.Importer.StateDBPath)

	stateStore := statedb.NewStore(stateDB, tracer)
	states := stateBus.New(stateStore)

	//==========================================================================
	// Queue init
	queueDB, err := sqldb.OpenPostgres(sqldb.PostgresConfig{
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

	defer queueDB.Close()

	queueStore := queuedb.NewStore(queueDB, tracer, 5*time.Minute)

	log.Info(ctx, "queue database initialized", "host", cfg.QueueDB.Host)

	//==========================================================================
	// Directory client init. Optional for imports: without credentials the
	// importer skips enrichment and recreation detection.
	var resolver importer.DirectoryResolver
	if cfg.Directory.ClientID != "" {
		resolver = directory.New(log, directory.Config{
			BaseURL:      cfg.Directory.BaseURL,
			TokenURL:     cfg.Directory.TokenURL,
			ClientID:     cfg.Directory.ClientID,
			ClientSecret: cfg.Directory.ClientSecret,
			Scope:        cfg.Directory.Scope,
			RetryBudget:  cfg.Directory.RetryBudget,
		})
	} else {
		log.Warn(ctx, "no directory credentials configured, skipping enrichment")
	}

	//==========================================================================
	// Run
	imp := importer.New(log, states, queueStore, resolver, importer.Config{
		MaxDispatch:  cfg.Importer.MaxDispatch,
		TTLFirstRun:  cfg.Importer.TTLFirstRun,
		TTLDeltaRuns: cfg.Importer.TTLDeltaRuns,
		DryRun:       cfg.Importer.DryRun,
	})

	if cfg.Importer.EnrichExisting {
		log.Warn(ctx, "enrich-existing mode: backfilling directory identity for persisted users")
		return imp.EnrichExisting(ctx)
	}

	return imp.Run(ctx, cfg.Importer.CSVPath)
}
