// Package bootstrap opens the connections and builds the services shared by
// the binaries.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	// postgres driver for sqlx
	_ "github.com/jackc/pgx/v4/stdlib"

	"github.com/isqad/syncflow/internal/cleanup"
	"github.com/isqad/syncflow/internal/config"
	"github.com/isqad/syncflow/internal/core"
	"github.com/isqad/syncflow/internal/eventbus"
	"github.com/isqad/syncflow/internal/media"
	"github.com/isqad/syncflow/internal/service"
)

// Platform holds the connections of one process.
type Platform struct {
	Config *config.Config
	DB     *sqlx.DB
	Redis  *redis.Client
	NATS   *nats.Conn

	Publisher  eventbus.Publisher
	Subscriber eventbus.Subscriber
	Media      media.Service

	Users       *core.UserRepository
	Projects    *service.Projects
	Registry    *service.Registry
	Coordinator *service.Coordinator
	Summary     *service.Summary
}

// Open connects to postgres and to redis or nats as the config requires,
// then wires the services.
func Open(ctx context.Context, cfg *config.Config) (*Platform, error) {
	p := &Platform{Config: cfg}

	db, err := sqlx.ConnectContext(ctx, "pgx", cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	p.DB = db

	if cfg.Events.Driver == "redis" || cfg.Egress.Locker == "redis" {
		p.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := p.Redis.Ping(ctx).Err(); err != nil {
			p.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
	}

	// nats also carries the egress cleanup queue
	nc, err := nats.Connect(cfg.NATS.Address, nats.Name("syncflow"))
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	p.NATS = nc

	switch cfg.Events.Driver {
	case "redis":
		bus := eventbus.RedisPubSub(p.Redis)
		p.Publisher, p.Subscriber = bus, bus
	case "nats":
		bus := eventbus.NewNATSBus(p.NATS)
		p.Publisher, p.Subscriber = bus, bus
	default:
		bus := eventbus.NewMemory()
		p.Publisher, p.Subscriber = bus, bus
	}

	p.Media = media.NewLiveKit(cfg.LiveKit)
	p.wire()

	return p, nil
}

func (p *Platform) wire() {
	cfg := p.Config

	projects := core.NewProjectsRepository(p.DB)
	sessions := core.NewSessionsRepository(p.DB)
	jobs := core.NewEgressRepository(p.DB)

	var locker service.Locker = service.NewMemoryLocker()
	if cfg.Egress.Locker == "redis" {
		locker = service.NewRedisLocker(p.Redis, cfg.Egress.LockTTL)
	}

	p.Users = core.NewUserRepository(p.DB)
	p.Coordinator = service.NewCoordinator(service.CoordinatorOptions{
		Jobs:         jobs,
		Sessions:     sessions,
		Media:        p.Media,
		Locker:       locker,
		Destinations: service.NewDestinations(projects, sessions, cfg.Egress.LocalRoot),
		Events:       p.Publisher,
	})
	p.Registry = service.NewRegistry(service.RegistryOptions{
		Projects: projects,
		Sessions: sessions,
		Media:    p.Media,
		Egress:   p.Coordinator,
		Events:   p.Publisher,
		Cleanup:  cleanup.NewScheduler(p.NATS, cfg.Egress.CleanupSubj),
	})
	p.Projects = service.NewProjects(service.ProjectsOptions{
		Projects: projects,
		Sessions: sessions,
		APIKeys:  core.NewAPIKeysRepository(p.DB),
		Devices:  core.NewDevicesRepository(p.DB),
		Registry: p.Registry,
	})
	p.Summary = service.NewSummary(p.Registry, p.Coordinator, p.Media)
}

func (p *Platform) Close() {
	if p.NATS != nil {
		if err := p.NATS.Drain(); err != nil {
			log.Error().Err(err).Str("service", "bootstrap").Msg("drain nats")
		}
	}
	if p.Redis != nil {
		if err := p.Redis.Close(); err != nil {
			log.Error().Err(err).Str("service", "bootstrap").Msg("close redis")
		}
	}
	if p.DB != nil {
		if err := p.DB.Close(); err != nil {
			log.Error().Err(err).Str("service", "bootstrap").Msg("close database")
		}
	}
}
