package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"skybridge/internal/core/domain"
	"skybridge/internal/core/services"
	httphandlers "skybridge/internal/handlers/http"
	backupinfra "skybridge/internal/infrastructure/backup"
	"skybridge/internal/infrastructure/capture"
	"skybridge/internal/infrastructure/discovery"
	"skybridge/internal/infrastructure/distributed"
	"skybridge/internal/infrastructure/monitoring"
	"skybridge/internal/infrastructure/probe"
	repositories "skybridge/internal/infrastructure/repositories"
	"skybridge/internal/infrastructure/streaming"
	"skybridge/pkg/backup"
	"skybridge/pkg/config"
	"skybridge/pkg/logger"
	"skybridge/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const snapshotVersion = "1"

func main() {
	// Try multiple config paths
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/skybridge/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error

	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}

	if err != nil {
		// Fallback to defaults if config cannot be loaded
		cfg = config.DefaultConfig()
	}

	// Initialize logger
	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()

	log := zapLogger.Sugar()

	// Initialize tracing
	tracerProvider, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		JaegerURL:   cfg.Tracing.JaegerURL,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}

	// Initialize repository factory
	repoFactory, err := repositories.NewFactory(cfg, log)
	if err != nil {
		log.Fatalw("failed to create repository factory", "error", err)
	}
	defer repoFactory.Close()

	directory := repoFactory.CreatePeerDirectory()
	accounts := repoFactory.CreateAccountStore()

	// Restore relay bindings from the latest snapshot before anything
	// reads the account store.
	var scheduler *backupinfra.Scheduler
	if cfg.Backup.Enabled {
		storage, err := backup.NewFileStorage(cfg.Backup.Directory)
		if err != nil {
			log.Fatalw("failed to open backup directory", "error", err, "directory", cfg.Backup.Directory)
		}
		snapshots := backup.NewSnapshotService(storage, snapshotVersion)

		restore := backupinfra.NewRestoreService(snapshots, accounts, log)
		if err := restore.RestoreLatest(context.Background(), backupinfra.RestoreOptions{}); err != nil {
			log.Warnw("failed to restore account snapshot", "error", err)
		}

		scheduler = backupinfra.NewScheduler(snapshots, accounts, backupinfra.Config{
			Interval:      cfg.Backup.Interval,
			RetentionDays: cfg.Backup.RetentionDays,
		}, log)
	}

	// Initialize negotiation services
	resolver := services.NewCapabilityResolver()
	prober := probe.NewTCPProber()
	estimator := services.NewLinkEstimator(prober, cfg.Negotiation.ProbePort, cfg.Negotiation.ProbeTimeout, log)

	wifi := discovery.NewStaticWifiDirect(cfg.Discovery.Peers)
	bluetooth := discovery.NewStaticBluetooth(cfg.Discovery.BondedDevices)
	nfc := discovery.NewStaticNfc(cfg.Discovery.NfcEnabled)

	negotiator := services.NewNegotiator(
		services.NegotiatorConfig{
			ServerPort:       cfg.Server.Port,
			ProbePort:        cfg.Negotiation.ProbePort,
			ProbeTimeout:     cfg.Negotiation.ProbeTimeout,
			ConnectTimeout:   cfg.Negotiation.ConnectTimeout,
			PeerRefresh:      cfg.Negotiation.PeerRefresh,
			AccountRefresh:   cfg.Negotiation.AccountRefresh,
			DefaultAccountID: domain.AccountID(cfg.Negotiation.DefaultAccountID),
			RelayPort:        cfg.Negotiation.RelayPort,
			BluetoothChannel: cfg.Negotiation.BluetoothChannel,
			NfcChannel:       cfg.Negotiation.NfcChannel,
			AirPlayChannel:   cfg.Negotiation.AirPlayChannel,
		},
		directory,
		accounts,
		resolver,
		estimator,
		wifi,
		bluetooth,
		nfc,
		prober,
		log,
	)
	defer negotiator.Release()

	// Initialize monitoring
	collector := monitoring.NewCollector()
	go recordNegotiations(negotiator, collector)
	go recordProbeLatencies(estimator, collector)

	// Initialize event sinks
	var sinks fanoutSink
	var eventHub *httphandlers.EventHub
	if cfg.Server.EventFeedEnabled {
		eventHub = httphandlers.NewEventHub(log)
		defer eventHub.Close()
		sinks = append(sinks, eventHub)
	}

	var eventBus *distributed.EventBus
	if client := repoFactory.RedisClient(); client != nil {
		eventBus = distributed.NewEventBus(client, uuid.New().String(), log)
		sinks = append(sinks, distributed.NewSessionEventRelay(eventBus))
	}
	var sink streaming.EventSink
	if len(sinks) > 0 {
		sink = sinks
	}

	// Initialize the mirror server
	captureProvider := capture.NewSyntheticProvider(cfg.Streaming.DeviceWidth, cfg.Streaming.DeviceHeight, log)

	server := streaming.NewMirrorServer(
		streaming.Config{
			Port:             cfg.Server.Port,
			HandshakeSecret:  []byte(cfg.Server.HandshakeSecret),
			HandshakeTimeout: cfg.Server.HandshakeTimeout,
			HandshakePenalty: cfg.Server.HandshakePenalty,
			WriteTimeout:     cfg.Server.WriteTimeout,
			MinBitrateKbps:   cfg.Streaming.MinBitrateKbps,
			MaxBitrateKbps:   cfg.Streaming.MaxBitrateKbps,
			InitialQuality:   cfg.Streaming.InitialQuality,
			HardwareEncode:   cfg.Streaming.HardwareEncode,
			QUICEnabled:      cfg.Streaming.QUICEnabled,
			QUICPort:         cfg.Streaming.QUICPort,
			DeviceWidth:      cfg.Streaming.DeviceWidth,
			DeviceHeight:     cfg.Streaming.DeviceHeight,
			Tier:             domain.Tier(cfg.Streaming.Tier),
		},
		nil, // no hardware encoder on this host; capture falls back to software
		captureProvider,
		nil,
		estimator.Quality(),
		nil,
		collector,
		sink,
		log,
	)

	monitor := services.NewPerformanceMonitor(
		monitoring.NewOSStatSampler(),
		server,
		cfg.Streaming.MinBitrateKbps,
		cfg.Streaming.MaxBitrateKbps,
		cfg.Streaming.MinBitrateKbps,
		log,
	)
	server.AttachFeedback(monitor, monitor.Recommended())

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	if !server.StartServer(rootCtx, cfg.Server.Port) {
		log.Fatalw("failed to start mirror server", "port", cfg.Server.Port)
	}
	defer server.StopServer()

	if scheduler != nil {
		go scheduler.Start(rootCtx)
		defer scheduler.Stop()
	}

	// Refresh the local cache when another instance rebinds an account.
	if eventBus != nil {
		go func() {
			err := eventBus.Subscribe(rootCtx, func(event *distributed.Event) error {
				if event.Type == distributed.EventAccountRebound {
					return accounts.Refresh(rootCtx)
				}
				return nil
			})
			if err != nil && rootCtx.Err() == nil {
				log.Warnw("event bus subscription ended", "error", err)
			}
		}()
		defer eventBus.Close()
	}

	// Health checks
	health := monitoring.NewHealthChecker()
	health.AddCheck("store", func(ctx context.Context) (bool, error) {
		if err := repoFactory.HealthCheck(ctx); err != nil {
			return false, err
		}
		return true, nil
	}, 2*time.Second)
	health.AddCheck("mirror_server", func(ctx context.Context) (bool, error) {
		return server.State() != domain.ServerStopped, nil
	}, time.Second)

	// Configure Gin
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	// Broadcast manual rebinds to other instances only when a bus exists.
	var rebinds httphandlers.RebindNotifier
	if eventBus != nil {
		rebinds = eventBus
	}

	statusHandler := httphandlers.NewStatusHandler(
		directory,
		server,
		negotiator,
		negotiator.Transport(),
		health,
		eventHub,
		rebinds,
		domain.AccountID(cfg.Negotiation.DefaultAccountID),
		log,
	)
	statusHandler.SetupRoutes(router)

	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	srv := &http.Server{
		Addr:         cfg.Server.APIAddress,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infow("starting skybridge API", "address", cfg.Server.APIAddress)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("API server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("received shutdown signal", "signal", sig)
	}

	log.Info("shutting down skybridge")
	rootCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error during API shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("error force closing API server", "error", closeErr)
		}
	}

	server.StopServer()

	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error shutting down tracer", "error", err)
	}

	log.Info("skybridge stopped")
}

// recordNegotiations mirrors each negotiated transport into the
// Prometheus counters.
func recordNegotiations(negotiator *services.Negotiator, collector *monitoring.Collector) {
	transports, cancel := negotiator.Transport().Subscribe()
	defer cancel()
	for transport := range transports {
		collector.RecordNegotiation(transport)
	}
}

// recordProbeLatencies feeds measured link latencies into the probe
// latency histogram.
func recordProbeLatencies(estimator *services.LinkEstimator, collector *monitoring.Collector) {
	qualities, cancel := estimator.Quality().Subscribe()
	defer cancel()
	for quality := range qualities {
		if quality.Latency > 0 {
			collector.RecordProbeLatency(quality.Latency.Seconds())
		}
	}
}

// fanoutSink forwards session events to every configured sink.
type fanoutSink []streaming.EventSink

func (f fanoutSink) Publish(event streaming.SessionEvent) {
	for _, sink := range f {
		sink.Publish(event)
	}
}
