package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/launchplan/internal/assembler"
	"github.com/fyrsmithlabs/launchplan/internal/config"
	"github.com/fyrsmithlabs/launchplan/internal/directory"
	"github.com/fyrsmithlabs/launchplan/internal/events"
	httpserver "github.com/fyrsmithlabs/launchplan/internal/http"
	"github.com/fyrsmithlabs/launchplan/internal/llm"
	"github.com/fyrsmithlabs/launchplan/internal/logging"
	"github.com/fyrsmithlabs/launchplan/internal/persistence"
	"github.com/fyrsmithlabs/launchplan/internal/persistence/device"
	"github.com/fyrsmithlabs/launchplan/internal/persistence/postgres"
	"github.com/fyrsmithlabs/launchplan/internal/planner"
	"github.com/fyrsmithlabs/launchplan/internal/quota"
	"github.com/fyrsmithlabs/launchplan/internal/sections"
	"github.com/fyrsmithlabs/launchplan/internal/telemetry"
)

type appOptions struct {
	// stdio sends logs to stderr.
	stdio bool
	// logger replaces the configured logger.
	logger *logging.Logger
	// llmClient replaces the configured provider client.
	llmClient llm.Client
}

// app holds every long-lived dependency of the process.
type app struct {
	cfg    *config.Config
	logger *logging.Logger
	zap    *zap.Logger
	tel    *telemetry.Telemetry

	pool       *pgxpool.Pool
	device     *device.SQLiteStore
	natsServer *natsserver.Server
	nc         *nats.Conn

	layer     *persistence.Layer
	directory *directory.Directory
	assembler *assembler.Assembler
	planner   *planner.Service
}

// newApp initializes dependencies in order:
//  1. Telemetry and logger
//  2. Hosted stores (postgres when a DSN is set, memory otherwise)
//  3. Device store
//  4. NATS for section events
//  5. Section generators, assembler, quota gate and planner
//
// On error everything created so far is released.
func newApp(ctx context.Context, cfg *config.Config, opts appOptions) (_ *app, err error) {
	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.tel, err = telemetry.New(ctx, telemetry.FromSettings(cfg.Telemetry, version))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	a.logger = opts.logger
	if a.logger == nil {
		a.logger, err = initLogger(cfg, a.tel, opts.stdio)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize logger: %w", err)
		}
	}
	a.zap = a.logger.Underlying()

	hosted, subs, err := a.initHostedStores(ctx)
	if err != nil {
		return nil, err
	}

	a.device, err = device.OpenSQLite(cfg.Device.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open device store: %w", err)
	}

	publisher, err := a.initEvents()
	if err != nil {
		return nil, err
	}

	a.layer, err = persistence.NewLayer(hosted, a.device,
		persistence.WithLogger(a.logger),
		persistence.WithTracerProvider(a.tel.TracerProvider()),
	)
	if err != nil {
		return nil, err
	}
	a.directory, err = directory.New(a.layer, a.logger)
	if err != nil {
		return nil, err
	}

	client := opts.llmClient
	if client == nil {
		client, err = llm.New(llm.OptionsFromConfig(cfg.LLM, a.zap.Named("llm")))
		if err != nil {
			return nil, fmt.Errorf("failed to create llm client: %w", err)
		}
	}
	gens, err := sections.New(client,
		sections.WithLogger(a.logger),
		sections.WithTracerProvider(a.tel.TracerProvider()),
		sections.WithMeterProvider(a.tel.MeterProvider()),
	)
	if err != nil {
		return nil, err
	}

	a.assembler, err = assembler.New(gens, a.layer,
		assembler.WithSavedChecker(a.directory),
		assembler.WithPublisher(publisher),
		assembler.WithSectionTimeout(cfg.Assembler.SectionTimeout.Duration()),
		assembler.WithWebsitePromptTimeout(cfg.Assembler.WebsitePromptTimeout.Duration()),
		assembler.WithLogger(a.logger),
		assembler.WithTracerProvider(a.tel.TracerProvider()),
		assembler.WithMeterProvider(a.tel.MeterProvider()),
	)
	if err != nil {
		return nil, err
	}

	gate, err := quota.NewGate(subs,
		quota.WithLimits(quota.LimitsFromConfig(cfg.Quota)),
		quota.WithLogger(a.logger),
		quota.WithMeterProvider(a.tel.MeterProvider()),
	)
	if err != nil {
		return nil, err
	}

	a.planner, err = planner.NewService(a.assembler, gate, gens,
		planner.WithLogger(a.logger),
		planner.WithGenerationTTL(cfg.Planner.GenerationTTL.Duration()),
		planner.WithMaxSessions(cfg.Planner.MaxSessions),
		planner.WithMeterProvider(a.tel.MeterProvider()),
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func initLogger(cfg *config.Config, tel *telemetry.Telemetry, stdio bool) (*logging.Logger, error) {
	lc, err := logging.FromSettings(cfg.Logging)
	if err != nil {
		return nil, err
	}
	lc.Output.Stderr = stdio
	return logging.NewLogger(lc, tel.LoggerProvider())
}

func (a *app) initHostedStores(ctx context.Context) (persistence.HostedStore, quota.Store, error) {
	if !a.cfg.Postgres.DSN.IsSet() {
		a.zap.Info("postgres dsn not set, using in-memory hosted stores")
		return persistence.NewMemoryHostedStore(), quota.NewMemoryStore(), nil
	}

	pool, err := postgres.Connect(ctx, a.cfg.Postgres)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	a.pool = pool

	if a.cfg.Postgres.Migrate {
		if err := postgres.Migrate(ctx, pool); err != nil {
			return nil, nil, fmt.Errorf("failed to migrate postgres: %w", err)
		}
	}
	a.zap.Info("connected to postgres", zap.Int32("max_conns", pool.Config().MaxConns))
	return postgres.NewPlanStore(pool), postgres.NewSubscriptionStore(pool), nil
}

func (a *app) initEvents() (events.Publisher, error) {
	if !a.cfg.NATS.Enabled {
		return events.NopPublisher{}, nil
	}

	url := a.cfg.NATS.URL
	if a.cfg.NATS.Embedded {
		srv, err := events.StartEmbedded(a.cfg.NATS)
		if err != nil {
			return nil, fmt.Errorf("failed to start embedded nats: %w", err)
		}
		a.natsServer = srv
		url = srv.ClientURL()
	}

	nc, err := nats.Connect(url,
		nats.Name("launchplan"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(1*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	a.nc = nc
	a.zap.Info("connected to NATS", zap.String("url", url), zap.Bool("embedded", a.natsServer != nil))

	return events.NewNATSPublisher(nc, a.logger)
}

func (a *app) httpServer() (*httpserver.Server, error) {
	return httpserver.NewServer(httpserver.Deps{
		Planner:       a.planner,
		Directory:     a.directory,
		Remover:       a.layer,
		Auth:          httpserver.NewAuthenticator(a.cfg.Auth),
		NATS:          a.nc,
		Logger:        a.logger,
		MeterProvider: a.tel.MeterProvider(),
		Version:       version,
	}, a.cfg.Server)
}

// Close waits for background saves, then releases resources in reverse
// order of creation.
func (a *app) Close() {
	if a.assembler != nil {
		a.assembler.Wait()
	}
	if a.nc != nil {
		if err := a.nc.Drain(); err != nil {
			a.nc.Close()
		}
	}
	if a.natsServer != nil {
		a.natsServer.Shutdown()
		a.natsServer.WaitForShutdown()
	}
	if a.device != nil {
		if err := a.device.Close(); err != nil && a.zap != nil {
			a.zap.Warn("closing device store", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.tel != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.tel.Shutdown(ctx); err != nil && a.zap != nil {
			a.zap.Warn("telemetry shutdown", zap.Error(err))
		}
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}
