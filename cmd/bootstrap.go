package cmd

import (
	"context"
	"fmt"
	"time"

	"demobook/config"
	"demobook/database"
	"demobook/database/cache"
	bookingRepo "demobook/database/repository/booking"
	"demobook/services/calendar"
	"demobook/services/events"
	"demobook/services/fulfillment"
	"demobook/services/meetlink"
	"demobook/services/notification"
	"demobook/services/tasks"
	"demobook/utils"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// container holds every long-lived client a command needs, plus the order
// in which to release them.
type container struct {
	cfg    config.Config
	logger *zap.Logger

	Store       bookingRepo.BookingRepository
	Service     *fulfillment.DefaultFulfillmentService
	Resumer     *tasks.AsynqResumer
	Idempotency cache.IdempotencyStore
	Health      *utils.HealthMonitor
	QueueRedis  asynq.RedisClientOpt

	checks  map[string]utils.Pinger
	closers []func() error
}

func (c *container) onClose(fn func() error) {
	c.closers = append(c.closers, fn)
}

// Close releases clients in reverse order of construction.
func (c *container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			c.logger.Warn("Failed to release client", zap.Error(err))
		}
	}
	c.closers = nil
}

// bootstrap builds the dependency graph described by cfg. On error every
// client opened so far is closed.
func bootstrap(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *container, err error) {
	c := &container{
		cfg:    cfg,
		logger: logger,
		checks: make(map[string]utils.Pinger),
		QueueRedis: asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisQueueDB,
		},
	}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	if err = c.openStore(ctx); err != nil {
		return nil, err
	}

	scheduler, err := c.openCalendar(ctx)
	if err != nil {
		return nil, err
	}

	notifier, err := c.openMail(ctx)
	if err != nil {
		return nil, err
	}

	c.openIdempotency(ctx)

	queue := asynq.NewClient(c.QueueRedis)
	c.onClose(queue.Close)
	c.Resumer = tasks.NewAsynqResumer(queue, logger)
	c.checks["queue"] = func(ctx context.Context) error {
		return queue.Ping()
	}

	publisher, err := c.openEvents()
	if err != nil {
		return nil, err
	}

	c.Service = fulfillment.NewFulfillmentService(
		meetlink.NewGenerator(cfg.MeetBaseURL),
		scheduler,
		c.Store,
		notifier,
		c.Resumer,
		publisher,
		fulfillment.PolicyFromConfig(cfg),
		logger,
	)
	c.Health = utils.NewHealthMonitor(30*time.Second, c.checks)
	return c, nil
}

func (c *container) openStore(ctx context.Context) error {
	cfg := c.cfg
	switch cfg.StoreDriver {
	case "mongo":
		client, err := database.ConnectMongo(ctx, cfg.DatabaseURL, c.logger)
		if err != nil {
			return err
		}
		c.onClose(func() error { return client.Disconnect(context.Background()) })
		repo, err := bookingRepo.NewMongoBookingRepo(client.Database(cfg.DatabaseName), cfg.BookingsCollection)
		if err != nil {
			return fmt.Errorf("mongo booking repository: %w", err)
		}
		c.Store = repo

	case "firestore":
		client, err := utils.NewFirestoreClient(ctx, cfg.FirebaseProjectID, cfg.FirebaseCredentialsFile)
		if err != nil {
			return err
		}
		c.onClose(client.Close)
		c.Store = bookingRepo.NewFirestoreBookingRepo(client, cfg.BookingsCollection)
		c.logger.Info("Using Firestore booking store", zap.String("collection", cfg.BookingsCollection))

	case "postgres":
		db, err := database.OpenPostgres(cfg.PostgresDSN, c.logger)
		if err != nil {
			return err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("postgres handle: %w", err)
		}
		c.onClose(sqlDB.Close)
		repo := bookingRepo.NewGormBookingRepo(db)
		if err := repo.Migrate(); err != nil {
			return fmt.Errorf("migrate bookings table: %w", err)
		}
		c.Store = repo

	case "memory":
		c.logger.Warn("Using in-memory booking store; bookings are lost on restart")
		c.Store = bookingRepo.NewMemoryBookingRepo()

	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
	if p, ok := c.Store.(bookingRepo.Pinger); ok {
		c.checks["store"] = p.Ping
	}
	return nil
}

func (c *container) openCalendar(ctx context.Context) (*calendar.Scheduler, error) {
	cfg := c.cfg
	var provider calendar.Provider
	switch cfg.CalendarDriver {
	case "google":
		svc, err := calendar.NewGoogleService(ctx, cfg.GoogleCredentialsFile, cfg.GoogleImpersonate)
		if err != nil {
			return nil, err
		}
		provider = calendar.NewGoogleProvider(svc)
	default:
		c.logger.Warn("Using in-memory calendar; events are not published anywhere")
		provider = calendar.NewMemoryProvider()
	}
	return calendar.NewScheduler(provider, cfg.CalendarID, cfg.SessionDuration, c.logger), nil
}

func (c *container) openMail(ctx context.Context) (*notification.EmailNotifier, error) {
	cfg := c.cfg
	var relay notification.Relay
	switch cfg.MailDriver {
	case "gmail":
		svc, err := notification.NewGmailService(ctx, cfg.GoogleCredentialsFile, cfg.MailFrom)
		if err != nil {
			return nil, err
		}
		relay = notification.NewGmailRelay(svc)
	default:
		relay = notification.NewConsoleRelay(c.logger)
	}
	return notification.NewEmailNotifier(relay, cfg.MailFrom, cfg.OperatorEmail, cfg.SessionDuration, c.logger), nil
}

// openIdempotency prefers Redis. Outside production an unreachable Redis
// falls back to a process-local store.
func (c *container) openIdempotency(ctx context.Context) {
	cfg := c.cfg
	client, err := utils.NewRedisClient(ctx, utils.RedisOptions{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisCacheDB,
	})
	if err != nil {
		if config.IsProduction() {
			c.logger.Error("Idempotency cache unavailable; Idempotency-Key headers are ignored", zap.Error(err))
			return
		}
		c.logger.Warn("Redis unavailable, using in-memory idempotency cache", zap.Error(err))
		c.Idempotency = cache.NewMemoryIdempotencyStore(cfg.IdempotencyTTL)
		return
	}
	c.onClose(client.Close)
	c.Idempotency = cache.NewRedisIdempotencyStore(client, cfg.IdempotencyTTL)
	c.checks["cache"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
}

func (c *container) openEvents() (fulfillment.EventPublisher, error) {
	cfg := c.cfg
	if cfg.AMQPURL == "" {
		return events.NewLogPublisher(c.logger), nil
	}
	pub, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange, c.logger)
	if err != nil {
		return nil, err
	}
	c.onClose(pub.Close)
	return pub, nil
}
