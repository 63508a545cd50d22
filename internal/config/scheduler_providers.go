package config

import (
	"context"
	"fmt"
	"time"

	commonConfig "kairos/commons/config"
	"kairos/commons/routes"
	"kairos/commons/server"
	"kairos/internal/clock"
	coordinator "kairos/internal/coordinator/iface"
	"kairos/internal/coordinator/noop"
	redisLocker "kairos/internal/coordinator/redis"
	"kairos/internal/handler"
	"kairos/internal/logger"
	queue "kairos/internal/queue/iface"
	"kairos/internal/queue/logqueue"
	natsQueue "kairos/internal/queue/nats"
	sqsQueue "kairos/internal/queue/sqs"
	"kairos/internal/repository/dynamodb"
	repository "kairos/internal/repository/iface"
	"kairos/internal/repository/memory"
	"kairos/internal/repository/sqlstore"
	internalRoutes "kairos/internal/routes"
	"kairos/internal/service"
	"kairos/internal/slack"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

func ProvideConfig() (*Config, error) {
	return Load()
}

func ProvideLogger(cfg *Config) (logger.Logger, error) {
	log, err := commonConfig.NewLogger(cfg.Service.LogLevel, cfg.Service.DevLog)
	if err != nil {
		return nil, err
	}
	return log.With(logger.String("node_id", cfg.Service.NodeID)), nil
}

func ProvideClock() clock.Clock {
	return clock.NewReal()
}

// Store Providers

type StoreResult struct {
	fx.Out
	Schedules repository.ScheduleRepository
	Runs      repository.RunRepository
}

// ProvideStore opens the configured store driver
func ProvideStore(lc fx.Lifecycle, cfg *Config, log logger.Logger) (StoreResult, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	log.Info("opening store", logger.String("driver", cfg.Store.Driver))

	switch cfg.Store.Driver {
	case StoreMemory:
		return StoreResult{
			Schedules: memory.NewScheduleRepository(),
			Runs:      memory.NewRunRepository(),
		}, nil

	case StoreDynamoDB:
		client, err := commonConfig.NewDynamoDBClient(ctx, cfg.Store.AWSRegion, cfg.Store.AWSEndpoint)
		if err != nil {
			return StoreResult{}, fmt.Errorf("failed to create dynamodb client: %w", err)
		}
		if cfg.Store.CreateTables {
			if err := dynamodb.EnsureTables(ctx, client, cfg.Store.ScheduleTable, cfg.Store.RunTable); err != nil {
				return StoreResult{}, err
			}
		}
		return StoreResult{
			Schedules: dynamodb.NewScheduleRepository(client, cfg.Store.ScheduleTable, log),
			Runs:      dynamodb.NewRunRepository(client, cfg.Store.RunTable, log),
		}, nil

	case StorePostgres, StoreSQLite:
		db, err := sqlstore.Open(ctx, sqlstore.Dialect(cfg.Store.Driver), cfg.Store.DSN)
		if err != nil {
			return StoreResult{}, err
		}
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return db.Close()
			},
		})
		return StoreResult{
			Schedules: sqlstore.NewScheduleRepository(db),
			Runs:      sqlstore.NewRunRepository(db),
		}, nil
	}

	return StoreResult{}, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

// Queue Providers

// QueueBackend is the configured outbound queue plus, when the backend has one,
// the inbound outcome consumer factory
type QueueBackend struct {
	Client      queue.Client
	newConsumer func(processor queue.MessageProcessor[queue.OutcomeMessage]) queue.Consumer
}

func ProvideQueueBackend(lc fx.Lifecycle, cfg *Config, clk clock.Clock, log logger.Logger) (*QueueBackend, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	log.Info("connecting queue", logger.String("driver", cfg.Queue.Driver))

	switch cfg.Queue.Driver {
	case QueueLog:
		return &QueueBackend{Client: logqueue.NewClient(log)}, nil

	case QueueSQS:
		api, err := commonConfig.NewSQSClient(ctx, cfg.Queue.AWSRegion, cfg.Queue.AWSEndpoint)
		if err != nil {
			return nil, fmt.Errorf("failed to create sqs client: %w", err)
		}
		backend := &QueueBackend{
			Client: sqsQueue.NewClient(api, sqsQueue.ClientConfig{
				URLPrefix:    cfg.Queue.URLPrefix,
				DefaultQueue: cfg.Queue.DefaultQueue,
				Routes:       cfg.Queue.Routes,
			}, clk, log),
		}
		if cfg.Queue.OutcomeQueueURL != "" {
			backend.newConsumer = func(processor queue.MessageProcessor[queue.OutcomeMessage]) queue.Consumer {
				return sqsQueue.NewSQSQueue(api, sqsQueue.QueueConfig{
					QueueURL:        cfg.Queue.OutcomeQueueURL,
					WorkerCount:     2,
					MaxMessages:     10,
					WaitTimeSeconds: 20,
				}, processor, log)
			}
		}
		return backend, nil

	case QueueNATS:
		conn, err := natsQueue.Connect(ctx, natsQueue.Config{
			URL:            cfg.Queue.NATSURL,
			JobStream:      cfg.Queue.JobStream,
			SubjectPrefix:  cfg.Queue.SubjectPrefix,
			OutcomeStream:  cfg.Queue.OutcomeStream,
			OutcomeSubject: cfg.Queue.OutcomeSubject,
			Durable:        cfg.Queue.Durable,
		}, log)
		if err != nil {
			return nil, err
		}
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				conn.Close()
				return nil
			},
		})
		nc := conn.Config()
		return &QueueBackend{
			Client: natsQueue.NewPublisher(conn.JetStream(), nc.SubjectPrefix, clk, log),
			newConsumer: func(processor queue.MessageProcessor[queue.OutcomeMessage]) queue.Consumer {
				return natsQueue.NewJetStreamConsumer(conn.OutcomeStream(), nc.Durable, nc.OutcomeSubject, processor, log)
			},
		}, nil
	}

	return nil, fmt.Errorf("unknown queue driver %q", cfg.Queue.Driver)
}

func ProvideQueueClient(backend *QueueBackend) queue.Client {
	return backend.Client
}

// ProvideOutcomeConsumer returns nil when outcomes only arrive over HTTP
func ProvideOutcomeConsumer(backend *QueueBackend, outcomes *service.OutcomeHandler) queue.Consumer {
	if backend.newConsumer == nil {
		return nil
	}
	return backend.newConsumer(outcomes)
}

// Coordination Providers

func ProvideLocker(lc fx.Lifecycle, cfg *Config, log logger.Logger) (coordinator.Locker, error) {
	var (
		locker coordinator.Locker
		err    error
	)

	switch cfg.Lock.Driver {
	case LockNone:
		return noop.NewLocker(), nil
	case LockRedis:
		c, cerr := commonConfig.NewRedisCache(cfg.Lock.RedisAddr, cfg.Lock.RedisPassword, cfg.Lock.RedisDB, log)
		if cerr != nil {
			return nil, cerr
		}
		locker = redisLocker.NewRedisLocker(c, cfg.Lock.Prefix, log)
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return c.Close()
			},
		})
	case LockZooKeeper:
		locker, err = commonConfig.NewZooKeeperLocker(cfg.Lock.ZKServers, cfg.Lock.ZKSessionTimeout, cfg.Lock.ZKRoot, cfg.Service.NodeID, log)
		if err != nil {
			return nil, err
		}
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return locker.Close()
			},
		})
	default:
		return nil, fmt.Errorf("unknown lock driver %q", cfg.Lock.Driver)
	}

	return locker, nil
}

// Service Providers

func ProvideSlackClient(cfg *Config, log logger.Logger) slack.Client {
	if cfg.Alert.SlackWebhookURL == "" {
		return slack.NewLogClient(log)
	}
	return slack.NewWebhookClient(cfg.Alert.SlackWebhookURL, nil, log)
}

func ProvideAlerter(client slack.Client, cfg *Config, log logger.Logger) *service.Alerter {
	return service.NewAlerter(client, cfg.Alert.Channel, log)
}

func ProvideDispatcher(
	runs repository.RunRepository,
	schedules repository.ScheduleRepository,
	client queue.Client,
	alerter *service.Alerter,
	clk clock.Clock,
	cfg *Config,
	log logger.Logger,
) *service.Dispatcher {
	return service.NewDispatcher(runs, schedules, client, alerter, clk, service.DispatcherConfig{
		Timeout:       cfg.Scheduler.DispatchTimeout,
		MaxConcurrent: cfg.Scheduler.MaxConcurrent,
		Rate:          cfg.Scheduler.DispatchRate,
		Burst:         cfg.Scheduler.DispatchBurst,
	}, log)
}

func ProvideSweeper(
	runs repository.RunRepository,
	schedules repository.ScheduleRepository,
	alerter *service.Alerter,
	clk clock.Clock,
	cfg *Config,
	log logger.Logger,
) *service.Sweeper {
	return service.NewSweeper(runs, schedules, alerter, clk, cfg.Scheduler.StaleAfter, cfg.Scheduler.BatchSize, log)
}

func ProvideOutcomeHandler(
	runs repository.RunRepository,
	schedules repository.ScheduleRepository,
	alerter *service.Alerter,
	clk clock.Clock,
	cfg *Config,
	log logger.Logger,
) *service.OutcomeHandler {
	return service.NewOutcomeHandler(runs, schedules, alerter, clk, cfg.Scheduler.OutcomeRetries, log)
}

// ProvideScheduler provides scheduler service
func ProvideScheduler(
	schedules repository.ScheduleRepository,
	runs repository.RunRepository,
	dispatcher *service.Dispatcher,
	sweeper *service.Sweeper,
	locker coordinator.Locker,
	clk clock.Clock,
	cfg *Config,
	log logger.Logger,
) service.IScheduler {
	return service.NewScheduler(schedules, runs, dispatcher, sweeper, locker, clk, service.Config{
		PollInterval:  cfg.Scheduler.PollInterval,
		SweepInterval: cfg.Scheduler.SweepInterval,
		BatchSize:     cfg.Scheduler.BatchSize,
		LockTTL:       cfg.Lock.TTL,
	}, log)
}

func ProvideScheduleManager(
	schedules repository.ScheduleRepository,
	runs repository.RunRepository,
	dispatcher *service.Dispatcher,
	clk clock.Clock,
	log logger.Logger,
) service.IScheduleManager {
	return service.NewScheduleManager(schedules, runs, dispatcher, clk, log)
}

// HTTP Providers

func ProvideScheduleHandler(manager service.IScheduleManager, log logger.Logger) *handler.ScheduleHandler {
	return handler.NewScheduleHandler(manager, log)
}

func ProvideRunHandler(log logger.Logger, manager service.IScheduleManager, outcomes *service.OutcomeHandler) *handler.RunHandler {
	return handler.NewRunHandler(log, manager, outcomes)
}

// ProvideSchedulerHealthHandler creates the health handler for scheduler service
func ProvideSchedulerHealthHandler(cfg *Config, clk clock.Clock, log logger.Logger) *handler.HealthHandler {
	return handler.NewHealthHandler(log, cfg.Service.Name, cfg.Store.Driver, clk)
}

// ProvideSchedulerRouterConfig creates router configuration for scheduler service
func ProvideSchedulerRouterConfig(cfg *Config) routes.RouterConfig {
	return routes.RouterConfig{
		ServiceName: cfg.Service.Name,
		Version:     "v1",
		Debug:       cfg.Service.DevLog,
	}
}

// ProvideSchedulerServerConfig creates server configuration for scheduler service
func ProvideSchedulerServerConfig(cfg *Config) server.ServerConfig {
	return server.ServerConfig{
		Port: cfg.Service.Port,
	}
}

// ProvideSchedulerRouteInitializer creates route initializer for scheduler service
func ProvideSchedulerRouteInitializer(
	healthHandler *handler.HealthHandler,
	scheduleHandler *handler.ScheduleHandler,
	runHandler *handler.RunHandler,
) func(*gin.Engine, routes.RouteDependencies) {
	return func(router *gin.Engine, deps routes.RouteDependencies) {
		internalRoutes.InitHealthRoutes(router, healthHandler, deps.Logger)
		internalRoutes.InitScheduleRoutes(router, scheduleHandler, deps.Logger)
		internalRoutes.InitRunRoutes(router, runHandler, deps.Logger)
	}
}

// Lifecycle Management

func ManageSchedulerLifecycle(lc fx.Lifecycle, scheduler service.IScheduler, srv *server.HTTPServer, log logger.Logger) {
	// referencing the server keeps it in the graph so its own hooks run
	_ = srv

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("starting scheduler loop")
			return scheduler.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			log.Info("stopping scheduler loop")
			return scheduler.Stop(ctx)
		},
	})
}

func ManageOutcomeConsumerLifecycle(lc fx.Lifecycle, consumer queue.Consumer, log logger.Logger) {
	if consumer == nil {
		log.Info("no outcome queue configured; outcomes are accepted over HTTP only")
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("starting outcome consumer")
			return consumer.StartConsumer(ctx)
		},
		OnStop: func(ctx context.Context) error {
			log.Info("stopping outcome consumer")
			return consumer.StopConsumer(ctx)
		},
	})
}
