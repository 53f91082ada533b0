package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"gorm.io/gorm"

	"github.com/grovelabs/leafsense-backend/internal/db"
	"github.com/grovelabs/leafsense-backend/internal/logger"
	"github.com/grovelabs/leafsense-backend/internal/observability"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      Config
	Repos    Repos
	Clients  Clients
	Services Services
	cancel   context.CancelFunc
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)
	observability.Init(log)

	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("postgres automigrate: %w", err)
	}
	theDB := pg.DB()

	reposet := wireRepos(theDB, log)

	clientset, err := wireClients(log)
	if err != nil {
		log.Sync()
		return nil, err
	}

	serviceset := wireServices(theDB, log, cfg, reposet, clientset)

	return &App{
		Log:      log,
		DB:       theDB,
		Cfg:      cfg,
		Repos:    reposet,
		Clients:  clientset,
		Services: serviceset,
	}, nil
}

// Start launches the background machinery: the diagnosis worker pool, the
// feedback conversion sweep, and the metrics surface. Idempotent.
func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if a.Cfg.SeedFile != "" {
		if err := a.Services.Seed.SeedFromFile(ctx, a.Cfg.SeedFile); err != nil {
			a.Log.Error("Seed failed", "file", a.Cfg.SeedFile, "error", err)
		}
	}

	// Load whatever artifact is active. Failure means degraded fallback
	// mode until a version is registered and switched in.
	a.Services.Classifier.Reload(ctx)

	if m := observability.Current(); m != nil {
		m.StartServer(ctx, a.Log, a.Cfg.MetricsAddr)
		m.StartRedisCollector(ctx, a.Log, a.Cfg.RedisAddr)
		if a.Clients.Queue != nil {
			queue := a.Clients.Queue
			m.StartQueueDepthCollector(ctx, a.Log, func(ctx context.Context) (map[string]int64, error) {
				n, err := queue.Depth(ctx)
				if err != nil {
					return nil, err
				}
				return map[string]int64{"requests": n}, nil
			})
		}
	}

	if a.Services.Pipeline != nil {
		a.Services.Pipeline.StartConsuming(ctx)
	}

	go a.runFeedbackSweep(ctx)
}

// runFeedbackSweep periodically converts corrected feedback into training
// rows and triggers a retrain when the threshold is met.
func (a *App) runFeedbackSweep(ctx context.Context) {
	ticker := time.NewTicker(a.Cfg.FeedbackInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			created, err := a.Services.Feedback.ConvertFeedbackBatch(ctx)
			if err != nil {
				a.Log.Warn("Feedback conversion sweep failed", "error", err)
				continue
			}
			if created > 0 {
				a.Log.Info("Feedback sweep converted rows", "created", created)
			}
			triggered, err := a.Services.Feedback.MaybeTriggerRetrain(ctx)
			if err != nil {
				a.Log.Warn("Retrain trigger check failed", "error", err)
				continue
			}
			if triggered {
				a.Log.Info("Retrain dataset prepared")
			}
		}
	}
}

// Close drains the worker pool and releases clients. Safe to call more than
// once.
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.Services.Pipeline != nil {
		a.Services.Pipeline.StopConsuming()
	}
	if a.Clients.Queue != nil {
		if err := a.Clients.Queue.Close(); err != nil {
			a.Log.Warn("Queue close failed", "error", err)
		}
	}
	if a.Clients.ResultCache != nil {
		if err := a.Clients.ResultCache.Close(); err != nil {
			a.Log.Warn("Result cache close failed", "error", err)
		}
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
