package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lhakso/bar-tracker/config"
	"github.com/lhakso/bar-tracker/module/proximity"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// logger is not configured yet
		panic(err)
	}
	log := config.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cacheDB, err := config.NewSQLite(cfg)
	if err != nil {
		log.Fatalf("sqlite: %v", err)
	}
	defer func() { _ = cacheDB.Close() }()

	health := config.NewHealthChecker()
	health.Add("sqlite", cacheDB.PingContext)

	infra := proximity.Infra{CacheDB: cacheDB}

	if cfg.VenueSource == config.VenueSourcePostgres {
		venueDB, err := config.NewPostgres(cfg)
		if err != nil {
			log.Fatalf("postgres: %v", err)
		}
		defer func() { _ = venueDB.Close() }()
		infra.VenueDB = venueDB
		health.Add("postgres", venueDB.PingContext)
	}

	amqpConn, err := config.NewRabbitMQ(cfg, log)
	if err != nil {
		log.Fatalf("rabbitmq: %v", err)
	}
	defer func() { _ = amqpConn.Close() }()
	infra.Broker = amqpConn
	health.Add("rabbitmq", func(context.Context) error {
		if amqpConn.IsClosed() {
			return errors.New("connection closed")
		}
		return nil
	})

	mqttClient, err := config.NewMQTT(cfg, log)
	if err != nil {
		log.Fatalf("mqtt: %v", err)
	}
	defer mqttClient.Disconnect(250)
	infra.MQTT = mqttClient
	health.Add("mqtt", func(context.Context) error {
		if !mqttClient.IsConnected() {
			return errors.New("not connected")
		}
		return nil
	})

	httpClient, err := config.NewBackendHTTPClient()
	if err != nil {
		log.Fatalf("http client: %v", err)
	}
	infra.HTTPClient = httpClient

	mod, err := proximity.Build(proximity.Options{
		DeviceID:          cfg.DeviceID,
		BackendURL:        cfg.BackendURL,
		SyncPath:          cfg.SyncPath,
		AuthToken:         cfg.AuthToken,
		VenueSource:       cfg.VenueSource,
		VenueFile:         cfg.VenueFile,
		VenueRefreshCron:  cfg.VenueRefreshCron,
		LocationCheckCron: cfg.LocationCheckCron,
		SoftwareRegions:   cfg.RegionMonitor == config.RegionMonitorSoftware,
		MaxRegions:        cfg.MaxMonitoredRegions,
		ProximityRadius:   cfg.ProximityRadiusMeters,
		RegionRadius:      cfg.RegionRadiusMeters,
		ClusterMargin:     cfg.ClusterMarginMeters,
		FixMaxAge:         cfg.FixMaxAge,
		FixTimeout:        cfg.FixTimeout,
	}, infra, log)
	if err != nil {
		log.Fatalf("proximity module: %v", err)
	}

	if err := mod.Start(ctx); err != nil {
		log.Fatalf("start proximity module: %v", err)
	}
	defer mod.Stop()

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	health.Register(r)
	mod.RegisterRoutes(&r.RouterGroup)

	srv := &http.Server{Addr: ":" + cfg.HTTPPort, Handler: r}
	go func() {
		log.Infof("listening on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("server: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("server shutdown: %v", err)
	}
}
