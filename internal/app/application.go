// Package app wires every component of the classroom server together and
// runs it until its context is canceled.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"classroom/internal/api"
	"classroom/internal/auth"
	"classroom/internal/classroom"
	"classroom/internal/config"
	"classroom/internal/database"
	"classroom/internal/hub"
	"classroom/internal/metrics"
	"classroom/internal/roomstate"
	"classroom/internal/router"
	"classroom/internal/websocket"
	pkgdatabase "classroom/pkg/database"
)

// Application owns the components and their lifecycle.
type Application struct {
	config     *config.Config
	logger     zerolog.Logger
	dbManager  *database.Manager
	store      *roomstate.Store
	metrics    *metrics.Metrics
	hub        *hub.Hub
	router     *router.Router
	catalog    *classroom.Catalog
	wsHandler  *websocket.Handler
	apiServer  *api.Server
	httpServer *http.Server
	listener   net.Listener
}

// NewApplication initializes every component in dependency order:
// database, live state, metrics, fan-out, router, catalog, transport, API.
func NewApplication(cfg *config.Config, logger zerolog.Logger) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	dbConfig := pkgdatabase.DefaultConfig()
	dbConfig.DatabasePath = cfg.Database.Path
	dbConfig.MaxConnections = cfg.Database.MaxConnections
	dbConfig.MigrationsPath = cfg.Database.MigrationsPath
	if err := dbConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database configuration: %w", err)
	}

	dbManager, err := database.NewManager(dbConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database manager: %w", err)
	}

	migrationManager := pkgdatabase.NewMigrationManager(dbManager.GetDB(), dbConfig.MigrationsPath)
	if err := migrationManager.ApplyMigrations(); err != nil {
		_ = dbManager.Close()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}
	logger.Info().Str("path", dbConfig.DatabasePath).Msg("database migrations applied")

	store := roomstate.NewStore()

	m := metrics.New()
	m.ObserveRooms(store.Stats)

	fanout := hub.New(store.Index(), m, logger)

	catalog := classroom.NewCatalog(dbManager, logger)
	if err := catalog.LoadActiveRooms(context.Background()); err != nil {
		_ = dbManager.Close()
		return nil, fmt.Errorf("failed to load active rooms: %w", err)
	}

	rt := router.New(router.Config{
		RateLimit:         cfg.Limits.RateLimit,
		RateWindow:        cfg.Limits.RateWindow,
		HostLookupTimeout: cfg.Limits.HostLookupTimeout,
		PersistTimeout:    cfg.Limits.PersistTimeout,
	}, store, fanout, catalog, dbManager, m, logger)
	catalog.SetTerminator(rt)

	wsHandler := websocket.NewHandler(websocket.Config{
		PingInterval:   cfg.WebSocket.PingInterval,
		PongWait:       cfg.WebSocket.PongWait,
		WriteTimeout:   cfg.WebSocket.WriteTimeout,
		SendBuffer:     cfg.WebSocket.SendBuffer,
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
		AllowedOrigins: cfg.WebSocket.AllowedOrigins,
	}, rt, m, logger)

	var authn api.Authenticator
	if cfg.Auth.JWTSecret != "" {
		authn = auth.New(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	} else {
		logger.Warn().Msg("no JWT secret configured, room termination is not authenticated")
	}

	apiServer := api.NewServer(api.Dependencies{
		Catalog:     catalog,
		Database:    dbManager,
		Live:        store,
		Connections: wsHandler,
		Auth:        authn,
		Metrics:     m.Handler(),
		WebSocket:   http.HandlerFunc(wsHandler.HandleWebSocket),
		Logger:      logger,
	})

	httpServer := &http.Server{
		Addr:         cfg.Address(),
		Handler:      apiServer,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		logger:     logger.With().Str("module", "app").Logger(),
		dbManager:  dbManager,
		store:      store,
		metrics:    m,
		hub:        fanout,
		router:     rt,
		catalog:    catalog,
		wsHandler:  wsHandler,
		apiServer:  apiServer,
		httpServer: httpServer,
	}, nil
}

// Listen binds the HTTP listener. Run calls it when it has not been called.
func (app *Application) Listen() error {
	if app.listener != nil {
		return nil
	}
	ln, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}
	app.listener = ln
	return nil
}

// Addr returns the bound address once Listen has succeeded, otherwise the
// configured one.
func (app *Application) Addr() string {
	if app.listener != nil {
		return app.listener.Addr().String()
	}
	return app.httpServer.Addr
}

// Run serves until ctx is canceled or a component fails, then shuts down in
// reverse dependency order. It returns nil after a clean shutdown.
func (app *Application) Run(ctx context.Context) error {
	if err := app.Listen(); err != nil {
		_ = app.dbManager.Close()
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	if err := app.hub.Start(gctx); err != nil {
		_ = app.listener.Close()
		_ = app.dbManager.Close()
		return fmt.Errorf("failed to start hub: %w", err)
	}

	app.logger.Info().Str("addr", app.Addr()).Msg("classroom server started")

	g.Go(func() error {
		if err := app.httpServer.Serve(app.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return app.router.RunJanitor(gctx, app.config.Limits.JanitorInterval)
	})

	g.Go(func() error {
		<-gctx.Done()
		return app.shutdown()
	})

	return g.Wait()
}

// shutdown stops accepting requests, closes every socket so their
// disconnects are processed, drains chat persistence and closes the database.
func (app *Application) shutdown() error {
	app.logger.Info().Msg("shutting down classroom server")

	ctx, cancel := context.WithTimeout(context.Background(), app.config.HTTP.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := app.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP server shutdown: %w", err))
	}
	if err := app.wsHandler.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("WebSocket shutdown: %w", err))
	}
	if err := app.hub.Stop(); err != nil && !errors.Is(err, hub.ErrHubNotRunning) {
		errs = append(errs, fmt.Errorf("hub shutdown: %w", err))
	}

	app.router.Wait()

	if err := app.dbManager.Close(); err != nil {
		errs = append(errs, fmt.Errorf("database shutdown: %w", err))
	}

	if err := errors.Join(errs...); err != nil {
		app.logger.Error().Err(err).Msg("shutdown completed with errors")
		return err
	}
	app.logger.Info().Msg("classroom server shutdown complete")
	return nil
}
