package daemon

import (
	"context"
	"fmt"

	"github.com/matheus3301/layover/internal/alert"
	"github.com/matheus3301/layover/internal/auth"
	"github.com/matheus3301/layover/internal/backend"
	"github.com/matheus3301/layover/internal/bus"
	"github.com/matheus3301/layover/internal/chat"
	"github.com/matheus3301/layover/internal/config"
	"github.com/matheus3301/layover/internal/controller"
	"github.com/matheus3301/layover/internal/listeners"
	"github.com/matheus3301/layover/internal/lock"
	"github.com/matheus3301/layover/internal/logging"
	"github.com/matheus3301/layover/internal/notify"
	"github.com/matheus3301/layover/internal/objstore"
	"github.com/matheus3301/layover/internal/presence"
	"github.com/matheus3301/layover/internal/profile"
	"github.com/matheus3301/layover/internal/realtime"
	"github.com/matheus3301/layover/internal/redisrt"
	"github.com/matheus3301/layover/internal/status"
	"github.com/matheus3301/layover/internal/store"
	"github.com/matheus3301/layover/internal/typing"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Params holds the resolved profile passed to the fx module.
type Params struct {
	Profile string
	Binary  string
	// Console mirrors logs to stderr.
	Console bool
	// Debug lowers the log level.
	Debug bool
	// Settings overrides profile.toml; tests set it.
	Settings *config.Profile
}

// Module returns the fx module for a client process, composing all providers
// and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("layover",
		fx.Supply(p),
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger.Named("fx")}
		}),
		fx.Provide(
			provideSettings,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideRealtime,
			provideRecords,
			provideStorage,
			provideAuth,
			provideAlerts,
			provideAggregator,
			provideFeed,
			providePresence,
			provideTracker,
			provideRouter,
			provideListeners,
			provideDirectory,
			provideController,
		),
		fx.Invoke(registerStatusLog, registerLifecycle),
	)
}

func provideSettings(p Params) (*config.Profile, error) {
	if p.Settings != nil {
		return p.Settings, p.Settings.Validate()
	}
	return config.LoadProfile(profile.SettingsPath(p.Profile))
}

func provideLogger(p Params) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if p.Debug {
		level = zapcore.DebugLevel
	}
	return logging.New(logging.Options{
		Path:    profile.LogPath(p.Profile, p.Binary),
		Profile: p.Profile,
		Binary:  p.Binary,
		Level:   level,
		Console: p.Console,
	})
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.Profile); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.Profile))
	l, err := lock.Acquire(profile.Dir(p.Profile), p.Binary)
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

func provideStore(p Params, settings *config.Profile, logger *zap.Logger) (*store.DB, error) {
	dbPath := settings.Store.Path
	if dbPath == "" {
		dbPath = profile.DBPath(p.Profile)
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", db.Path()))
	return db, nil
}

// provideRealtime picks the push transport. The same value serves as the
// publisher the record store feeds.
func provideRealtime(lc fx.Lifecycle, settings *config.Profile, b *bus.Bus, logger *zap.Logger) (backend.Realtime, backend.ChangePublisher, error) {
	switch settings.Realtime.Driver {
	case config.RealtimeRedis:
		t, err := redisrt.Dial(context.Background(), settings.Realtime.RedisAddr, settings.Realtime.RedisPrefix, logger)
		if err != nil {
			return nil, nil, err
		}
		lc.Append(fx.StopHook(t.Close))
		logger.Info("realtime over redis", zap.String("addr", settings.Realtime.RedisAddr))
		return t, t, nil
	default:
		h := realtime.NewHub(b, logger)
		logger.Info("realtime in process")
		return h, h, nil
	}
}

func provideRecords(db *store.DB, pub backend.ChangePublisher, logger *zap.Logger) (*store.Records, backend.RecordStore, error) {
	r, err := store.NewRecords(db, pub, logger)
	if err != nil {
		return nil, nil, err
	}
	return r, r, nil
}

func provideStorage(p Params, settings *config.Profile) (backend.ObjectStorage, error) {
	switch settings.Storage.Driver {
	case config.StorageS3:
		return objstore.NewS3(context.Background(), objstore.S3Options{
			Bucket:   settings.Storage.Bucket,
			Region:   settings.Storage.Region,
			Endpoint: settings.Storage.Endpoint,
		})
	default:
		dir := settings.Storage.Dir
		if dir == "" {
			dir = profile.ObjectsDir(p.Profile)
		}
		return objstore.NewFS(dir)
	}
}

func provideAuth(settings *config.Profile, logger *zap.Logger) (*auth.Session, backend.Auth) {
	s := auth.NewSession([]byte(settings.Auth.Secret), logger)
	return s, s
}

func provideAlerts(b *bus.Bus, logger *zap.Logger) alert.Sink {
	return alert.NewBusSink(b, logger)
}

func provideAggregator(records backend.RecordStore, settings *config.Profile, logger *zap.Logger) *notify.Aggregator {
	return notify.NewAggregator(records, notify.Options{
		MaxPerUser: settings.Notifications.MaxPerUser,
		PageSize:   settings.Notifications.PageSize,
	}, logger)
}

func provideFeed(rt backend.Realtime, agg *notify.Aggregator, b *bus.Bus, logger *zap.Logger) *notify.Feed {
	return notify.NewFeed(rt, agg, b, logger)
}

func providePresence(b *bus.Bus) *presence.Store {
	return presence.NewStore(b)
}

func provideTracker(rt backend.Realtime, ps *presence.Store, logger *zap.Logger) *presence.Tracker {
	return presence.NewTracker(rt, ps, logger)
}

func provideRouter(b *bus.Bus) *controller.Router {
	return controller.NewRouter(b)
}

func provideListeners(rt backend.Realtime, records backend.RecordStore, agg *notify.Aggregator, alerts alert.Sink, router *controller.Router, logger *zap.Logger) *listeners.Listeners {
	return listeners.New(listeners.Deps{
		Realtime:  rt,
		Store:     records,
		Notifier:  agg,
		Alerts:    alerts,
		Navigator: router,
		Logger:    logger,
	})
}

func provideDirectory(records backend.RecordStore, ps *presence.Store, b *bus.Bus, logger *zap.Logger) *chat.Directory {
	return chat.NewDirectory(records, ps, b, logger)
}

// ControllerParams are the dependencies of the controller.
type ControllerParams struct {
	fx.In

	Settings  *config.Profile
	Auth      backend.Auth
	Records   backend.RecordStore
	Realtime  backend.Realtime
	Storage   backend.ObjectStorage
	Listeners *listeners.Listeners
	Tracker   *presence.Tracker
	Feed      *notify.Feed
	Agg       *notify.Aggregator
	Directory *chat.Directory
	Router    *controller.Router
	Status    *status.Machine
	Alerts    alert.Sink
	Bus       *bus.Bus
	Logger    *zap.Logger
}

func provideController(cp ControllerParams) *controller.Controller {
	return controller.New(controller.Deps{
		Auth:          cp.Auth,
		Store:         cp.Records,
		Realtime:      cp.Realtime,
		Storage:       cp.Storage,
		Listeners:     cp.Listeners,
		Tracker:       cp.Tracker,
		Feed:          cp.Feed,
		Notifications: cp.Agg,
		Directory:     cp.Directory,
		Router:        cp.Router,
		Status:        cp.Status,
		Alerts:        cp.Alerts,
		Bus:           cp.Bus,
		Typing: typing.Options{
			Window:        cp.Settings.Typing.Window.Duration,
			AnnounceEvery: cp.Settings.Typing.AnnounceEvery.Duration,
		},
		Logger: cp.Logger,
	})
}

func registerLifecycle(lc fx.Lifecycle, ctrl *controller.Controller, session *auth.Session, settings *config.Profile, lk *lock.Lock, db *store.DB, machine *status.Machine, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if settings.User.Token != "" {
				if _, err := session.SignIn(settings.User.Token); err != nil {
					logger.Warn("stored token rejected, starting signed out", zap.Error(err))
				}
			} else {
				logger.Info("no token configured, starting signed out")
			}
			if err := ctrl.Start(ctx); err != nil {
				_ = machine.Transition(status.Error)
				return fmt.Errorf("start controller: %w", err)
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			ctrl.Stop()
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("stopped")
			return nil
		},
	})
}
