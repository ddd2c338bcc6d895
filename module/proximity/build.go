package proximity

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gin-gonic/gin"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/lhakso/bar-tracker/module/proximity/domain"
	"github.com/lhakso/bar-tracker/module/proximity/internal/events"
	"github.com/lhakso/bar-tracker/module/proximity/internal/geofence"
	handler "github.com/lhakso/bar-tracker/module/proximity/internal/handler/http"
	"github.com/lhakso/bar-tracker/module/proximity/internal/handler/subscriber"
	"github.com/lhakso/bar-tracker/module/proximity/internal/repository/backend"
	"github.com/lhakso/bar-tracker/module/proximity/internal/repository/database/postgres"
	"github.com/lhakso/bar-tracker/module/proximity/internal/repository/database/sqlite"
	devicemqtt "github.com/lhakso/bar-tracker/module/proximity/internal/repository/device/mqtt"
	"github.com/lhakso/bar-tracker/module/proximity/internal/repository/file"
	"github.com/lhakso/bar-tracker/module/proximity/internal/repository/publisher/rabbitmq"
	"github.com/lhakso/bar-tracker/module/proximity/internal/scheduler"
	"github.com/lhakso/bar-tracker/module/proximity/service"
)

const (
	VenueSourceHTTP     = "http"
	VenueSourcePostgres = "postgres"
	VenueSourceFile     = "file"
)

type Options struct {
	DeviceID string

	BackendURL string
	SyncPath   string
	AuthToken  string

	VenueSource       string
	VenueFile         string
	VenueRefreshCron  string
	LocationCheckCron string

	SoftwareRegions bool
	MaxRegions      int
	ProximityRadius float64
	RegionRadius    float64
	ClusterMargin   float64
	FixMaxAge       time.Duration
	FixTimeout      time.Duration
}

// Infra carries the connections the module runs on. VenueDB is only needed
// for the postgres venue source and Broker may be nil to skip fan-out.
type Infra struct {
	CacheDB    *sql.DB
	VenueDB    *sql.DB
	Broker     *amqp.Connection
	MQTT       mqtt.Client
	HTTPClient *http.Client
}

type Module struct {
	Engine   *service.Engine
	Registry *service.VenueRegistry
	SyncSvc  *service.SyncService
	Bus      *events.Bus

	cache      *sqlite.VenueCache
	refresher  *service.VenueRefresher
	syncWorker *service.SyncWorker
	changePub  *rabbitmq.ProximityPublisher
	venueFile  *file.VenueFile
	handler    *handler.ProximityHandler
	subscriber *subscriber.DeviceSubscriber
	scheduler  *scheduler.Scheduler
	log        logrus.FieldLogger
}

func Build(opts Options, infra Infra, log logrus.FieldLogger) (*Module, error) {
	m := &Module{log: log}

	m.cache = sqlite.NewVenueCache(infra.CacheDB)
	creds := service.StaticCredentials(opts.AuthToken)
	backendClient := backend.NewClient(opts.BackendURL, opts.SyncPath, creds, infra.HTTPClient, log)

	var fetcher service.VenueFetcher
	switch opts.VenueSource {
	case VenueSourcePostgres:
		if infra.VenueDB == nil {
			return nil, fmt.Errorf("postgres venue source: no database")
		}
		fetcher = postgres.NewVenueRepo(infra.VenueDB)
	case VenueSourceFile:
		m.venueFile = file.NewVenueFile(opts.VenueFile, log)
		fetcher = m.venueFile
	default:
		fetcher = backendClient
	}

	commands := devicemqtt.NewDeviceCommands(infra.MQTT, opts.DeviceID, log)

	var regions service.RegionMonitor = commands
	var software *geofence.Monitor
	if opts.SoftwareRegions {
		software = geofence.NewMonitor(opts.MaxRegions, log.WithField("component", "geofence"))
		regions = software
	}

	auth := service.NewAuthorizationController(commands, log)
	monitoring := service.NewMonitoringController(regions, commands, service.MonitoringConfig{
		RegionRadius:  opts.RegionRadius,
		ClusterMargin: opts.ClusterMargin,
		FixMaxAge:     opts.FixMaxAge,
	}, log)
	reducer := service.NewProximityReducer(opts.ProximityRadius, log)

	m.SyncSvc = service.NewSyncService(backendClient, creds, log.WithField("component", "sync"))
	m.syncWorker = service.NewSyncWorker(m.SyncSvc, 32, log)
	m.Bus = events.NewBus()

	engine := service.NewEngine(auth, monitoring, reducer, commands, m.syncWorker, m.Bus, service.EngineConfig{
		DeviceID:   opts.DeviceID,
		FixMaxAge:  opts.FixMaxAge,
		FixTimeout: opts.FixTimeout,
	}, log.WithField("device_id", opts.DeviceID))
	if software != nil {
		engine.SetFixObserver(software)
	}
	m.Engine = engine

	m.Registry = service.NewVenueRegistry(m.cache, log)
	m.refresher = service.NewVenueRefresher(fetcher, m.Registry, engine.Submit, log)

	if infra.Broker != nil {
		pub, err := rabbitmq.NewProximityPublisher(infra.Broker, log)
		if err != nil {
			return nil, fmt.Errorf("proximity publisher: %w", err)
		}
		m.changePub = pub
	}

	m.handler = handler.NewProximityHandler(engine, m.Registry, m.Bus)
	m.subscriber = subscriber.NewDeviceSubscriber(infra.MQTT, opts.DeviceID, engine, log)
	m.scheduler = scheduler.NewScheduler(m.refresher, engine, log, opts.VenueRefreshCron, opts.LocationCheckCron)

	return m, nil
}

func (m *Module) RegisterRoutes(r *gin.RouterGroup) {
	m.handler.Register(r)
}

// Start runs the engine and its workers until ctx is done, restores the
// cached venue set and begins listening to the device.
func (m *Module) Start(ctx context.Context) error {
	if err := m.cache.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate venue cache: %w", err)
	}

	go m.Engine.Run(ctx)
	go m.syncWorker.Run(ctx)
	if m.changePub != nil {
		go m.changePub.Forward(ctx, m.Bus.Subscribe())
	}

	venues, err := m.Registry.Restore(ctx)
	if err != nil {
		m.log.WithError(err).Warn("venue cache unavailable, waiting for fetch")
	} else if len(venues) > 0 {
		m.Engine.Submit(domain.VenuesChanged{Venues: venues})
	}

	if err := m.subscriber.Start(); err != nil {
		return fmt.Errorf("device subscriber: %w", err)
	}

	if err := m.refresher.Refresh(ctx); err != nil {
		m.log.WithError(err).Warn("initial venue refresh failed")
	}
	if m.venueFile != nil {
		err := m.venueFile.Watch(ctx, func() {
			if err := m.refresher.Refresh(ctx); err != nil {
				m.log.WithError(err).Warn("venue file reload failed")
			}
		})
		if err != nil {
			return fmt.Errorf("watch venue file: %w", err)
		}
	}

	return m.scheduler.Start()
}

func (m *Module) Stop() {
	m.scheduler.Stop()
}
