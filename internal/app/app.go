// Package app initializes and holds the long-lived pipeline services.
package app

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/cafemap/cafemap/internal/artifacts/gcs"
	"github.com/cafemap/cafemap/internal/artifacts/local"
	"github.com/cafemap/cafemap/internal/cafemap"
	"github.com/cafemap/cafemap/internal/clock/system"
	"github.com/cafemap/cafemap/internal/config"
	"github.com/cafemap/cafemap/internal/extract"
	"github.com/cafemap/cafemap/internal/geocode"
	logpub "github.com/cafemap/cafemap/internal/notify/log"
	"github.com/cafemap/cafemap/internal/notify/pubsub"
	"github.com/cafemap/cafemap/internal/ocr"
	"github.com/cafemap/cafemap/internal/store/memory"
	"github.com/cafemap/cafemap/internal/store/postgres"
	"github.com/cafemap/cafemap/internal/store/sqlite"
)

// App wires configuration into concrete services. It is built once at
// startup and shared by the CLI commands.
type App struct {
	Cfg       config.Config
	Logger    *zap.Logger
	Store     cafemap.Store
	Geocoder  cafemap.Geocoder
	OCR       cafemap.OCR
	Extractor *extract.Extractor
	Artifacts cafemap.BlobStore
	Publisher cafemap.Publisher
	Clock     cafemap.Clock
	IDGen     cafemap.IDGenerator

	mu      sync.Mutex
	lastRun cafemap.RunReport
	hasRun  bool
	closers []func() error
}

// New builds the App from configuration, failing fast when a required
// service cannot be initialized.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		Cfg:    cfg,
		Logger: logger,
		Clock:  system.New(),
		IDGen:  cafemap.UUIDGenerator{},
	}

	if err := a.initStore(ctx); err != nil {
		return nil, err
	}
	if err := a.initGeocoder(); err != nil {
		return nil, err
	}
	if err := a.initOCR(ctx); err != nil {
		return nil, err
	}
	if err := a.initExtractor(); err != nil {
		return nil, err
	}
	if err := a.initArtifacts(ctx); err != nil {
		return nil, err
	}
	if err := a.initPublisher(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *App) initStore(ctx context.Context) error {
	switch a.Cfg.Store.Backend {
	case "memory":
		a.Store = memory.New()
	case "sqlite":
		st, err := sqlite.Open(a.Cfg.Store.SQLitePath)
		if err != nil {
			return fmt.Errorf("open sqlite store: %w", err)
		}
		a.Store = st
	case "postgres":
		st, err := postgres.New(ctx, postgres.Config{
			DSN:      a.Cfg.Store.DSN,
			MaxConns: a.Cfg.Store.MaxConns,
		})
		if err != nil {
			return fmt.Errorf("connect postgres store: %w", err)
		}
		a.Store = st
	default:
		return fmt.Errorf("unknown store backend %q", a.Cfg.Store.Backend)
	}
	a.closers = append(a.closers, a.Store.Close)
	a.Logger.Info("store initialized", zap.String("backend", a.Cfg.Store.Backend))
	return nil
}

func (a *App) initGeocoder() error {
	var providers []geocode.Provider
	if a.Cfg.Geocode.GoogleAPIKey != "" {
		google, err := geocode.NewGoogle(geocode.GoogleConfig{
			APIKey:  a.Cfg.Geocode.GoogleAPIKey,
			BaseURL: a.Cfg.Geocode.GoogleBaseURL,
		}, http.DefaultClient)
		if err != nil {
			return fmt.Errorf("configure google geocoder: %w", err)
		}
		providers = append(providers, google)
	}
	providers = append(providers, geocode.NewNominatim(geocode.NominatimConfig{
		BaseURL: a.Cfg.Geocode.NominatimURL,
		Email:   a.Cfg.Geocode.NominatimEmail,
	}, http.DefaultClient))

	resolver, err := geocode.New(providers, geocode.Config{
		Timeout:      time.Duration(a.Cfg.Geocode.TimeoutSeconds) * time.Second,
		RetryBackoff: time.Duration(a.Cfg.Geocode.RetryBackoffMs) * time.Millisecond,
		RPS:          a.Cfg.Geocode.RPS,
		Burst:        a.Cfg.Geocode.Burst,
	}, a.Logger)
	if err != nil {
		return fmt.Errorf("build geocode resolver: %w", err)
	}
	a.Geocoder = resolver
	return nil
}

func (a *App) initOCR(ctx context.Context) error {
	switch a.Cfg.OCR.Engine {
	case "none":
		a.OCR = ocr.Noop{}
	case "tesseract":
		engine, err := ocr.NewTesseract(ocr.TesseractConfig{
			Binary:    a.Cfg.OCR.Binary,
			Languages: a.Cfg.OCR.Languages,
		}, a.Logger)
		if err != nil {
			return fmt.Errorf("configure tesseract: %w", err)
		}
		a.OCR = engine
	case "vision":
		engine, err := ocr.NewVision(ctx, a.Logger)
		if err != nil {
			return fmt.Errorf("configure vision ocr: %w", err)
		}
		a.OCR = engine
		a.closers = append(a.closers, engine.Close)
	default:
		return fmt.Errorf("unknown ocr engine %q", a.Cfg.OCR.Engine)
	}
	a.Logger.Info("ocr engine initialized", zap.String("engine", a.Cfg.OCR.Engine))
	return nil
}

func (a *App) initExtractor() error {
	rules := extract.DefaultRules()
	if len(a.Cfg.Pipeline.ExpectedRegions) > 0 {
		rules.ExpectedRegions = a.Cfg.Pipeline.ExpectedRegions
	}
	extractor, err := extract.New(rules, a.OCR, a.Geocoder, extract.Config{
		OCRTimeout: time.Duration(a.Cfg.OCR.TimeoutSeconds) * time.Second,
	}, a.Logger)
	if err != nil {
		return fmt.Errorf("build extractor: %w", err)
	}
	a.Extractor = extractor
	return nil
}

func (a *App) initArtifacts(ctx context.Context) error {
	switch a.Cfg.Artifacts.Backend {
	case "local":
		store, err := local.New(local.Config{BaseDir: a.Cfg.Artifacts.BaseDir})
		if err != nil {
			return fmt.Errorf("configure local artifact store: %w", err)
		}
		a.Artifacts = store
	case "gcs":
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("create gcs client: %w", err)
		}
		store, err := gcs.New(client, gcs.Config{Bucket: a.Cfg.Artifacts.Bucket})
		if err != nil {
			return fmt.Errorf("configure gcs artifact store: %w", err)
		}
		a.Artifacts = store
		a.closers = append(a.closers, client.Close)
	default:
		return fmt.Errorf("unknown artifacts backend %q", a.Cfg.Artifacts.Backend)
	}
	return nil
}

func (a *App) initPublisher(ctx context.Context) error {
	if a.Cfg.PubSub.ProjectID == "" {
		a.Publisher = logpub.New(a.Logger, a.IDGen)
		return nil
	}
	pub, err := pubsub.New(ctx, a.Cfg.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("connect pubsub: %w", err)
	}
	a.Publisher = pub
	a.closers = append(a.closers, pub.Close)
	a.Logger.Info("pubsub publisher initialized",
		zap.String("project", a.Cfg.PubSub.ProjectID),
		zap.String("topic", a.Cfg.PubSub.TopicName))
	return nil
}

// RecordRun stores the report so the status API can serve it.
func (a *App) RecordRun(report cafemap.RunReport) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastRun = report
	a.hasRun = true
}

// LastRun returns the most recent run report, if any.
func (a *App) LastRun() (cafemap.RunReport, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastRun, a.hasRun
}

// Close shuts down all services in reverse initialization order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Logger.Warn("service close failed", zap.Error(err))
		}
	}
}
