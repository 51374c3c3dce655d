package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aliuyar1234/sanctus/internal/accounts"
	"github.com/aliuyar1234/sanctus/internal/audit"
	"github.com/aliuyar1234/sanctus/internal/config"
	"github.com/aliuyar1234/sanctus/internal/db"
	"github.com/aliuyar1234/sanctus/internal/invites"
	"github.com/aliuyar1234/sanctus/internal/metrics"
	"github.com/aliuyar1234/sanctus/internal/slack"
	"github.com/aliuyar1234/sanctus/internal/store"
	"github.com/aliuyar1234/sanctus/internal/store/postgres"
	"github.com/aliuyar1234/sanctus/internal/store/sqlite"
	"github.com/aliuyar1234/sanctus/internal/tokencrypto"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SQLiteScheme selects the embedded SQLite store in SC_DB_DSN.
const SQLiteScheme = "sqlite://"

// App holds the application state
type App struct {
	Config   *config.Config
	Store    store.Store
	Services *Services
	Metrics  *metrics.Metrics
	Router   http.Handler

	server *http.Server
}

// Services are the domain services shared by the HTTP API and the admin CLI.
type Services struct {
	Auditor  *audit.Writer
	Invites  *invites.Service
	Accounts *accounts.Service
}

// NewServices wires the domain services onto st. m may be nil.
func NewServices(st store.Store, cfg *config.Config, m *metrics.Metrics) (*Services, error) {
	hasher := tokencrypto.NewHasher(cfg.TokenPepper)
	auditor := audit.NewWriter(st)

	inviteSvc := invites.NewService(st, hasher, cfg.InviteTTL,
		invites.WithAuditor(auditor),
		invites.WithMetrics(m),
		invites.WithNotifier(slack.NewClient(cfg.SlackWebhookURL, cfg.BaseURL, cfg.SlackTimeoutMS)),
	)

	accountSvc, err := accounts.NewService(st, inviteSvc, hasher, accounts.LogMailer{},
		accounts.Config{
			BaseURL:                  cfg.BaseURL,
			RequireEmailConfirmation: cfg.EmailConfirmation,
		},
		accounts.WithAuditor(auditor),
	)
	if err != nil {
		return nil, err
	}

	return &Services{
		Auditor:  auditor,
		Invites:  inviteSvc,
		Accounts: accountSvc,
	}, nil
}

// New creates and initializes a new application instance
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	SetupLogger(cfg)

	log.Info().Msg("Initializing sanctus")
	log.Info().Interface("config", cfg.RedactedValues()).Msg("Configuration loaded")

	st, err := OpenStore(ctx, cfg, cfg.IsDev())
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(registry)

	services, err := NewServices(st, cfg, m)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	app := &App{
		Config:   cfg,
		Store:    st,
		Services: services,
		Metrics:  m,
		Router:   NewRouter(cfg, st, services, m),
	}

	log.Info().Msg("Application initialized successfully")
	return app, nil
}

// OpenStore opens the store named by cfg.DBDSN. SQLite schemas are always
// applied; Postgres migrations run only when migrate is set.
func OpenStore(ctx context.Context, cfg *config.Config, migrate bool) (store.Store, error) {
	if path, ok := strings.CutPrefix(cfg.DBDSN, SQLiteScheme); ok {
		log.Info().Str("path", path).Msg("Opening SQLite database")
		st, err := sqlite.Open(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		return st, nil
	}

	log.Info().Msg("Connecting to database...")
	pool, err := db.Connect(ctx, cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info().Msg("Database connection established")

	if migrate {
		log.Info().Msg("Running migrations automatically")
		if err := db.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	} else {
		pending, err := db.PendingMigrations(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to check migrations: %w", err)
		}
		if len(pending) > 0 {
			log.Warn().Strs("pending", pending).Msg("Migrations pending; run `sanctus admin migrate`")
		}
	}

	return postgres.New(pool), nil
}

// Start starts the HTTP server and blocks until it stops.
func (a *App) Start() error {
	addr := a.Config.HTTPAddr
	log.Info().Str("addr", addr).Msg("Starting HTTP server")

	a.server = &http.Server{
		Addr:         addr,
		Handler:      a.Router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (a *App) Shutdown(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	log.Info().Msg("Shutting down HTTP server")
	return a.server.Shutdown(ctx)
}

// Close releases the store.
func (a *App) Close() {
	log.Info().Msg("Shutting down application")
	if a.Store != nil {
		log.Info().Msg("Closing database connection")
		if err := a.Store.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close database")
		}
	}
}

// SetupLogger configures the global logger: console output in dev, JSON in prod.
func SetupLogger(cfg *config.Config) {
	if cfg.IsDev() {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	switch cfg.LogLevel {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	log.Debug().Str("level", cfg.LogLevel).Msg("Logger configured")
}
