package app

import (
	"context"
	"time"

	"github.com/printhost/marlineeprom/internal/auth"
	"github.com/printhost/marlineeprom/internal/backup"
	"github.com/printhost/marlineeprom/internal/cache"
	"github.com/printhost/marlineeprom/internal/config"
	"github.com/printhost/marlineeprom/internal/database"
	"github.com/printhost/marlineeprom/internal/eeprom"
	"github.com/printhost/marlineeprom/internal/firmware"
	"github.com/printhost/marlineeprom/internal/httpapi"
	"github.com/printhost/marlineeprom/internal/logging"
	"github.com/printhost/marlineeprom/internal/models"
	"github.com/printhost/marlineeprom/internal/ratelimit"
	"github.com/printhost/marlineeprom/internal/transport"
)

// App holds all application dependencies
type App struct {
	Config         *config.Config
	Logger         *logging.Logger
	Cache          cache.Cache
	Queue          *transport.Queue
	EEPROMSvc      *eeprom.Service
	BackupHandler  *backup.Handler
	Watcher        *firmware.Watcher
	AuthService    *auth.Service
	AuthMiddleware *auth.Middleware
	HTTPServer     *httpapi.Server
	db             *database.DB
	snapshotStore  *database.SnapshotStore
}

// New creates and initializes a new App instance
func New(cfg *config.Config) (*App, error) {
	app := &App{Config: cfg}

	// Initialize logger
	app.Logger = app.initLogger()

	// Initialize cache
	app.Cache = app.initCache()

	// Initialize auth
	authSvc, err := auth.NewService(cfg.Auth, app.Logger)
	if err != nil {
		return nil, err
	}
	app.AuthService = authSvc
	app.AuthMiddleware = auth.NewMiddleware(authSvc)

	// Initialize named backup storage
	handler, err := backup.NewHandler(cfg.Backup.Folder, app.Logger)
	if err != nil {
		return nil, err
	}
	app.BackupHandler = handler

	// Initialize snapshot archive (optional)
	app.initSnapshotStore()

	// Initialize release watcher
	limiter := ratelimit.New(cfg.Firmware.RateLimitDur)
	app.Watcher = firmware.NewWatcher(cfg.Firmware.FeedURL, cfg.Firmware.Timeout, limiter, app.Cache, app.Logger)

	// Initialize the command queue and EEPROM service
	app.Queue = transport.NewQueue(app.Logger)
	app.EEPROMSvc = eeprom.NewService(app.Queue, app.Logger,
		eeprom.WithAckDelay(cfg.Backup.AckDelay),
		eeprom.WithSnapshotSink(app.archiveSnapshot),
	)

	// Initialize HTTP server
	app.HTTPServer = httpapi.New(app.EEPROMSvc, app.Queue, app.BackupHandler, app.snapshotStore, app.Watcher, app.AuthService, app.AuthMiddleware, app.Logger)

	return app, nil
}

// Run starts the HTTP server
func (a *App) Run(ctx context.Context) error {
	a.Logger.Info("Starting HTTP server", logging.WithField("addr", a.Config.Server.HTTPAddr))
	return a.HTTPServer.Start(a.Config.Server.HTTPAddr)
}

// Shutdown gracefully shuts down the application
func (a *App) Shutdown(ctx context.Context) error {
	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error("HTTP server shutdown error", logging.WithField("error", err.Error()))
		}
	}

	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.Logger.Error("Database close error", logging.WithField("error", err.Error()))
		}
	}

	return nil
}

func (a *App) initLogger() *logging.Logger {
	level := logging.LevelInfo
	switch a.Config.Logging.Level {
	case "debug":
		level = logging.LevelDebug
	case "warn":
		level = logging.LevelWarn
	case "error":
		level = logging.LevelError
	}
	return logging.New(level)
}

func (a *App) initCache() cache.Cache {
	switch a.Config.Cache.Backend {
	case "redis":
		a.Logger.Info("Using Redis cache backend", logging.WithField("addr", a.Config.Cache.RedisAddr))
		redisCache, err := cache.NewRedis(cache.RedisConfig{
			Addr:   a.Config.Cache.RedisAddr,
			Prefix: "eeprom:",
		}, a.Config.Cache.TTL)
		if err != nil {
			a.Logger.Error("Failed to connect to Redis, falling back to memory cache", logging.WithField("error", err.Error()))
			return cache.NewMemory(a.Config.Cache.TTL)
		}
		return redisCache
	default:
		a.Logger.Info("Using in-memory cache backend")
		return cache.NewMemory(a.Config.Cache.TTL)
	}
}

// initSnapshotStore connects PostgreSQL for the snapshot archive. The editor
// works without it; captures are then kept on disk only.
func (a *App) initSnapshotStore() {
	dbConfig := database.DefaultConfig()
	dbConfig.Host = a.Config.Database.Host
	dbConfig.Port = a.Config.Database.Port
	dbConfig.User = a.Config.Database.User
	dbConfig.Password = a.Config.Database.Password
	dbConfig.Database = a.Config.Database.Database
	dbConfig.SSLMode = a.Config.Database.SSLMode

	db, err := database.New(dbConfig)
	if err != nil {
		a.Logger.Warn("Failed to connect to PostgreSQL, snapshot archive disabled", logging.WithField("error", err.Error()))
		return
	}

	if err := db.Migrate(context.Background()); err != nil {
		a.Logger.Warn("Failed to run migrations, snapshot archive disabled", logging.WithField("error", err.Error()))
		db.Close()
		return
	}

	a.db = db
	a.snapshotStore = database.NewSnapshotStore(db)
	a.Logger.Info("Connected to PostgreSQL snapshot archive")
}

// archiveSnapshot fans a completed capture out to the HTTP layer, the cache
// and the database archive. Runs outside the service lock.
func (a *App) archiveSnapshot(snap models.Snapshot, artifact eeprom.Artifact) {
	if a.HTTPServer != nil {
		a.HTTPServer.RecordSnapshot(snap)
	}

	a.Cache.Set("backup:last-artifact", artifact)

	if a.snapshotStore == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := a.snapshotStore.Save(ctx, &snap); err != nil {
		a.Logger.Error("Failed to archive snapshot", logging.WithField("error", err.Error()))
		return
	}

	a.Logger.Info("Archived snapshot", logging.WithFields(map[string]interface{}{
		"id":     snap.ID,
		"source": string(snap.Source),
		"fields": len(snap.Fields),
	}))
}
