// Package bootstrap wires the GhostMesh core together: logger, config, bus
// client, detection pipeline, policy engine and the status API, in
// dependency order with graceful shutdown in reverse.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ghostmesh/api"
	"ghostmesh/bus"
	"ghostmesh/config"
	"ghostmesh/core"
	"ghostmesh/detect"
	"ghostmesh/ingest"
	"ghostmesh/notify"
	"ghostmesh/policy"

	"go.uber.org/zap"
)

// App represents the GhostMesh core with all its components.
type App struct {
	Config *config.Config
	Logger *zap.Logger
	Sugar  *zap.SugaredLogger

	Bus       *bus.Client
	Publisher *notify.Publisher

	Store      *detect.Store
	Classifier *detect.Classifier
	Emitter    *detect.Emitter
	Service    *detect.Service

	Recorder *policy.Recorder
	Enforcer *policy.AppLayerEnforcer
	Engine   *policy.Engine

	Ingest    *ingest.Manager
	APIServer *api.Server
}

// NewApp creates a new application instance and initializes all components.
func NewApp() (*App, error) {
	app := &App{}

	logger, sugar, err := InitLogger()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	app.Logger = logger
	app.Sugar = sugar

	sugar.Info("GhostMesh core starting...")

	cfg, err := InitConfig(sugar)
	if err != nil {
		return nil, err
	}
	app.Config = cfg

	app.Bus = bus.NewClient(bus.ClientConfig{
		Host:           cfg.MQTT.Host,
		Port:           cfg.MQTT.Port,
		Username:       cfg.MQTT.Username,
		Password:       cfg.MQTT.Password,
		ClientID:       cfg.MQTT.ClientID,
		QoS:            cfg.MQTT.QoS,
		ConnectTimeout: cfg.MQTT.ConnectTimeout,
		PublishTimeout: cfg.MQTT.PublishTimeout,
	}, sugar)

	app.Publisher = notify.NewPublisher(app.Bus, notify.Topics{
		AlertPrefix:   cfg.Topics.AlertPrefix,
		Audit:         cfg.Topics.Audit,
		EnforcePrefix: cfg.Topics.EnforcePrefix,
	})

	// Policy side first: the detection pipeline hands alerts to the engine.
	app.Recorder = policy.NewRecorder(cfg.Policy.AuditCapacity, app.Publisher, sugar)
	app.Enforcer = policy.NewAppLayerEnforcer(app.Publisher, sugar)

	engine, err := policy.NewEngine(policy.EngineConfig{
		EnforcementTimeout: cfg.Policy.EnforcementTimeout,
		CircuitBreaker: core.CircuitBreakerConfig{
			MaxFailures:         cfg.Policy.CircuitBreaker.MaxFailures,
			Timeout:             cfg.Policy.CircuitBreaker.Timeout,
			MaxHalfOpenRequests: cfg.Policy.CircuitBreaker.MaxHalfOpenRequests,
		},
	}, app.Enforcer, app.Recorder, sugar)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize policy engine: %w", err)
	}
	app.Engine = engine

	app.Store = detect.NewStore(detect.StoreConfig{
		Span:       cfg.WindowSpan(),
		MaxSamples: cfg.Detector.MaxSamples,
		MinSamples: cfg.Detector.MinSamples,
	}, sugar)

	classifier, err := detect.NewClassifier(detect.ClassifierConfig{
		MediumThreshold:   cfg.Detector.MediumThreshold,
		HighThreshold:     cfg.Detector.HighThreshold,
		Debounce:          cfg.DebounceInterval(),
		DebounceCacheSize: cfg.Detector.DebounceCacheSize,
		Window:            cfg.WindowSpan(),
	}, sugar)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize classifier: %w", err)
	}
	app.Classifier = classifier

	app.Emitter = detect.NewEmitter(app.Publisher, app.Engine, sugar)
	app.Service = detect.NewService(app.Store, app.Classifier, app.Emitter, sugar)

	manager, err := ingest.NewManager(ingest.ManagerConfig{
		TelemetryFilter: cfg.Topics.TelemetryFilter,
		ControlFilter:   cfg.Topics.ControlFilter,
		Encoding:        cfg.Telemetry.Encoding,
		RateLimit:       cfg.Telemetry.RateLimit,
		WorkerCount:     cfg.Detector.WorkerCount,
		ShardBufferSize: cfg.Detector.ShardBufferSize,
	}, app.Service, app.Engine, sugar)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ingest manager: %w", err)
	}
	app.Ingest = manager

	app.APIServer = api.NewServer(api.ServerConfig{
		Host: cfg.API.Host,
		Port: cfg.API.Port,
	}, app.Service, app.Engine, app.Recorder, sugar)

	return app, nil
}

// Start connects the bus and starts all services.
func (a *App) Start() error {
	if err := a.Bus.Connect(); err != nil {
		return fmt.Errorf("failed to connect to broker: %w", err)
	}

	if err := a.Ingest.Start(a.Bus); err != nil {
		return fmt.Errorf("failed to start ingest: %w", err)
	}

	a.APIServer.Start()

	a.Sugar.Info("GhostMesh core started")
	return nil
}

// WaitForShutdown blocks until a shutdown signal is received.
func (a *App) WaitForShutdown() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
}

// Shutdown gracefully shuts down all components, ingest first so nothing
// feeds the pipeline while it drains.
func (a *App) Shutdown() {
	a.Sugar.Info("Shutting down...")

	if a.Ingest != nil {
		a.Ingest.Stop()
	}

	if a.APIServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.APIServer.Shutdown(ctx); err != nil {
			a.Sugar.Warnw("API shutdown error", "error", err)
		}
		cancel()
	}

	if a.Bus != nil {
		a.Bus.Close()
	}

	a.Sugar.Info("Shutdown complete")
	_ = a.Logger.Sync()
}
