package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cassiomorais/storepay/internal/bootstrap"
	infraRedis "github.com/cassiomorais/storepay/internal/infrastructure/redis"
	"github.com/cassiomorais/storepay/internal/service"
	"github.com/go-co-op/gocron/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	maxTaskAttempts  = 5
	staleClaimIdle   = time.Minute
	outboxRetention  = 7 * 24 * time.Hour
	readErrorBackoff = time.Second
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, "storepay-worker", "storepay_worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	workerCfg := app.Config.Worker
	producer := infraRedis.NewStreamProducer(app.Redis, workerCfg.Stream)
	relay := service.NewOutboxRelay(app.Repos.Outbox, infraRedis.NewTaskAdapter(producer), app.Repos.TxManager, app.Logger)
	pending := app.PendingPaymentService()
	tasks, err := app.DetachedTaskService()
	if err != nil {
		app.Logger.Fatal().Err(err).Msg("Failed to build mailer")
	}

	// --- Periodic jobs ---
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		app.Logger.Fatal().Err(err).Msg("Failed to create scheduler")
	}
	jobs := []struct {
		name     string
		interval time.Duration
		run      func(context.Context) (int64, error)
	}{
		{"outbox_relay", workerCfg.OutboxPollInterval, func(ctx context.Context) (int64, error) {
			n, err := relay.RelayOnce(ctx, int(workerCfg.BatchSize))
			return int64(n), err
		}},
		{"pending_payment_expiry", workerCfg.ExpirySweepInterval, func(ctx context.Context) (int64, error) {
			n, err := pending.ExpireDue(ctx, workerCfg.ExpiryBatchSize)
			return int64(n), err
		}},
		{"idempotency_cleanup", workerCfg.IdempotencyCleanupInterval, app.Repos.Idempotency.DeleteExpired},
		{"outbox_cleanup", workerCfg.IdempotencyCleanupInterval, func(ctx context.Context) (int64, error) {
			return relay.Cleanup(ctx, outboxRetention)
		}},
	}
	for _, job := range jobs {
		logger := app.Logger.With().Str("job", job.name).Logger()
		run := job.run
		_, err := scheduler.NewJob(
			gocron.DurationJob(job.interval),
			gocron.NewTask(func() {
				n, err := run(ctx)
				if err != nil {
					logger.Error().Err(err).Msg("Job failed")
					return
				}
				if n > 0 {
					logger.Info().Int64("affected", n).Msg("Job completed")
				}
			}),
			gocron.WithName(job.name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			app.Logger.Fatal().Err(err).Str("job", job.name).Msg("Failed to schedule job")
		}
	}
	scheduler.Start()

	// --- Detached task consumer ---
	consumer := infraRedis.NewStreamConsumer(
		app.Redis,
		workerCfg.Stream,
		workerCfg.ConsumerGroup,
		app.Config.InstanceID,
		workerCfg.BatchSize,
		workerCfg.BlockDuration,
	)
	if err := consumer.CreateGroup(ctx); err != nil {
		app.Logger.Error().Err(err).Msg("Failed to create consumer group")
	}

	p := &processor{
		consumer: consumer,
		producer: producer,
		tasks:    tasks,
		app:      app,
		logger:   app.Logger.With().Str("stream", consumer.Stream()).Logger(),
	}

	app.Logger.Info().
		Str("stream", consumer.Stream()).
		Str("group", workerCfg.ConsumerGroup).
		Str("consumer", app.Config.InstanceID).
		Msg("Worker started, listening for tasks...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return p.run(gCtx)
	})

	g.Go(func() error {
		return p.reclaim(gCtx)
	})

	g.Go(func() error {
		select {
		case <-gCtx.Done():
			return gCtx.Err()
		case <-quit:
			app.Logger.Info().Msg("Shutting down worker...")
			cancel()
			return nil
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		app.Logger.Error().Err(err).Msg("Worker error")
	}
	if err := scheduler.Shutdown(); err != nil {
		app.Logger.Error().Err(err).Msg("Scheduler shutdown failed")
	}
	app.Logger.Info().Msg("Worker exited")
}

type processor struct {
	consumer *infraRedis.StreamConsumer
	producer *infraRedis.StreamProducer
	tasks    *service.DetachedTaskService
	app      *bootstrap.App
	logger   zerolog.Logger
}

func (p *processor) run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msgs, err := p.consumer.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.logger.Error().Err(err).Msg("Failed to read from stream")
			time.Sleep(readErrorBackoff)
			continue
		}
		for _, msg := range msgs {
			p.handle(ctx, msg)
		}
	}
}

// reclaim picks up tasks left unacknowledged by a consumer that died.
func (p *processor) reclaim(ctx context.Context) error {
	ticker := time.NewTicker(staleClaimIdle)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		msgs, err := p.consumer.ClaimStale(ctx, staleClaimIdle)
		if err != nil {
			p.logger.Error().Err(err).Msg("Failed to claim stale tasks")
			continue
		}
		for _, msg := range msgs {
			p.handle(ctx, msg)
		}
	}
}

func (p *processor) handle(ctx context.Context, raw redis.XMessage) {
	stream := p.consumer.Stream()
	start := time.Now()
	defer func() {
		p.app.Metrics.WorkerProcessingDuration.WithLabelValues(stream).Observe(time.Since(start).Seconds())
	}()

	msg, err := infraRedis.DecodeTask(raw)
	if err != nil {
		p.logger.Error().Err(err).Str("message_id", raw.ID).Msg("Malformed task message")
		p.deadLetter(ctx, msg, err.Error())
		p.ack(ctx, raw.ID, "malformed")
		return
	}

	logger := p.logger.With().
		Str("event_type", msg.EventType).
		Str("event_id", msg.EventID.String()).
		Int("attempt", msg.Attempt).
		Logger()

	err = p.tasks.Handle(ctx, infraRedis.ToTask(msg))
	switch {
	case err == nil:
		p.ack(ctx, raw.ID, "success")
	case errors.Is(err, service.ErrPermanentTask) || msg.Attempt+1 >= maxTaskAttempts:
		logger.Error().Err(err).Msg("Task abandoned")
		p.deadLetter(ctx, msg, err.Error())
		p.ack(ctx, raw.ID, "dead_lettered")
	default:
		logger.Warn().Err(err).Msg("Task failed, requeueing")
		msg.Attempt++
		if err := p.producer.Publish(ctx, msg); err != nil {
			// left pending; reclaim will pick it up
			logger.Error().Err(err).Msg("Failed to requeue task")
			return
		}
		p.ack(ctx, raw.ID, "retried")
	}
}

func (p *processor) deadLetter(ctx context.Context, msg infraRedis.TaskMessage, reason string) {
	if err := p.producer.PublishToDLQ(ctx, msg, reason); err != nil {
		p.logger.Error().Err(err).Str("event_type", msg.EventType).Msg("Failed to publish to DLQ")
	}
}

func (p *processor) ack(ctx context.Context, id, status string) {
	p.app.Metrics.WorkerMessagesProcessed.WithLabelValues(p.consumer.Stream(), status).Inc()
	if err := p.consumer.Ack(ctx, id); err != nil {
		p.logger.Error().Err(err).Str("message_id", id).Msg("Failed to ack task")
	}
}
