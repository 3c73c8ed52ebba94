package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/video-assignment-service/internal/api/http/handlers"
	"github.com/spec-kit/video-assignment-service/internal/config"
	"github.com/spec-kit/video-assignment-service/internal/events"
	"github.com/spec-kit/video-assignment-service/internal/notify"
	"github.com/spec-kit/video-assignment-service/internal/observability"
	"github.com/spec-kit/video-assignment-service/internal/persistence"
	"github.com/spec-kit/video-assignment-service/internal/repository"
	"github.com/spec-kit/video-assignment-service/internal/repository/memory"
	"github.com/spec-kit/video-assignment-service/internal/service"
	"github.com/spec-kit/video-assignment-service/internal/worker"
)

// application holds the wired service graph shared by every command.
type application struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *observability.Metrics

	pg    *persistence.Postgres
	redis *persistence.Redis
	nats  *persistence.NATS

	stores repository.Stores
	tx     repository.Transactor

	workload      *service.WorkloadService
	limits        *service.StaffLimitService
	assignment    *service.AssignmentService
	reclaim       *service.ReclaimService
	staff         *service.StaffService
	notifications *service.NotificationService
	worker        *worker.ReclaimWorker
}

func newApplication(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*application, error) {
	a := &application{cfg: cfg, logger: logger, metrics: observability.NewMetrics()}
	if err := a.openStores(ctx); err != nil {
		a.close()
		return nil, err
	}
	if err := a.openBrokers(ctx); err != nil {
		a.close()
		return nil, err
	}

	notifier, err := a.notifier()
	if err != nil {
		a.close()
		return nil, err
	}

	dispatcher := events.NewInMemoryDispatcher()
	a.workload = service.NewWorkloadService(a.stores.Videos, cfg.Assignment)
	a.limits = service.NewStaffLimitService(service.StaffLimitDependencies{
		LimitRepo:  a.stores.Limits,
		Transactor: a.tx,
		Dispatcher: dispatcher,
		Logger:     logger,
		Config:     cfg.Assignment,
	})
	a.assignment = service.NewAssignmentService(service.AssignmentDependencies{
		Stores:     a.stores,
		Transactor: a.tx,
		Workload:   a.workload,
		Limits:     a.limits,
		Dispatcher: dispatcher,
		Logger:     logger,
		Metrics:    a.metrics,
	})
	a.reclaim = service.NewReclaimService(service.ReclaimDependencies{
		VideoRepo:  a.stores.Videos,
		Transactor: a.tx,
		Limits:     a.limits,
		Dispatcher: dispatcher,
		Logger:     logger,
		Metrics:    a.metrics,
		Assignment: cfg.Assignment,
		Scheduler:  cfg.Scheduler,
	})
	a.staff = service.NewStaffService(a.stores.Staff)
	a.notifications = service.NewNotificationService(dispatcher, notifier, a.stores.Staff, logger)
	a.notifications.RegisterHandlers()

	var locker worker.Locker
	if a.redis != nil && cfg.Scheduler.LockKey != "" {
		locker = worker.NewRedisLocker(a.redis.Client, cfg.Scheduler.LockKey)
	}
	a.worker = worker.NewReclaimWorker(worker.ReclaimWorkerDependencies{
		Sweeper:   a.reclaim,
		Locker:    locker,
		Logger:    logger,
		Metrics:   a.metrics,
		Timeout:   cfg.Assignment.Timeout,
		Scheduler: cfg.Scheduler,
		Clock:     func() time.Time { return time.Now().UTC() },
	})
	return a, nil
}

func (a *application) openStores(ctx context.Context) error {
	switch a.cfg.App.StoreDriver {
	case config.StoreDriverMemory:
		a.logger.Warn("using in-memory store; state is lost on restart and not shared between instances")
		store := memory.New()
		a.stores = store.Stores()
		a.tx = store
		return nil
	default:
		pg, err := persistence.NewPostgres(ctx, a.cfg.Postgres, a.logger)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		a.pg = pg
		if a.cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.PoolHandle(), a.cfg.Postgres.MigrationsDir, a.logger); err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}
		}
		a.stores = repository.NewPostgresStores(pg.PoolHandle())
		a.tx = repository.NewPostgresTransactor(pg.PoolHandle())
		return nil
	}
}

// openBrokers connects Redis and NATS. Redis is optional unless it carries notifications.
func (a *application) openBrokers(ctx context.Context) error {
	redis, err := persistence.NewRedis(ctx, a.cfg.Redis, a.logger)
	switch {
	case err == nil:
		a.redis = redis
	case a.cfg.Notification.Driver == config.NotifyDriverRedis:
		return err
	default:
		a.logger.Warn("redis unavailable; sweep lease disabled", zap.Error(err))
	}

	if a.cfg.Notification.Driver == config.NotifyDriverNATS {
		nc, err := persistence.NewNATS(a.cfg.NATS, a.cfg.App.Name, a.logger)
		if err != nil {
			return err
		}
		a.nats = nc
	}
	return nil
}

func (a *application) notifier() (notify.Notifier, error) {
	prefix := a.cfg.Notification.SubjectPrefix
	switch a.cfg.Notification.Driver {
	case config.NotifyDriverRedis:
		if a.redis == nil {
			return nil, fmt.Errorf("NOTIFY_DRIVER=redis requires REDIS_ADDR")
		}
		return notify.NewRedisNotifier(a.redis.Client, prefix), nil
	case config.NotifyDriverNATS:
		return notify.NewNATSNotifier(a.nats.Conn, prefix), nil
	default:
		return notify.NewLogNotifier(a.logger), nil
	}
}

// readinessProbes lists the external dependencies /health/ready checks.
func (a *application) readinessProbes() map[string]handlers.Pinger {
	probes := map[string]handlers.Pinger{}
	if a.pg != nil {
		probes["postgres"] = a.pg
	}
	if a.redis != nil {
		probes["redis"] = a.redis
	}
	return probes
}

// drain waits for pending notifications, bounded by ctx.
func (a *application) drain(ctx context.Context) {
	if a.notifications == nil {
		return
	}
	if err := a.notifications.Wait(ctx); err != nil {
		a.logger.Warn("pending notifications not delivered before shutdown", zap.Error(err))
	}
}

func (a *application) close() {
	a.nats.Close()
	a.redis.Close()
	if a.pg != nil {
		a.pg.Close()
	}
}
