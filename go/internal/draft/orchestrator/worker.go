package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/mcdev12/draftclock/go/internal/draft/timer"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// Run recovers armed schedules, starts the worker pool and keeps arming until ctx
// is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	log.Info().
		Str("instance", o.instanceID).
		Int("workers", o.cfg.Workers).
		Dur("poll_interval", o.cfg.PollInterval).
		Msg("expiration scheduler starting")

	if err := o.recoverSchedules(ctx); err != nil {
		return err
	}

	var wg sync.WaitGroup
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	for i := 0; i < o.cfg.Workers; i++ {
		wg.Add(1)
		go o.worker(workerCtx, &wg, i)
	}

	defer func() {
		log.Info().Str("instance", o.instanceID).Msg("shutting down workers")
		o.shutdown()
		cancelWorkers()
		wg.Wait()
		o.setRunning(false)
		log.Info().Str("instance", o.instanceID).Msg("all workers shut down")
	}()

	var eventCh chan jetstream.Msg
	if o.js != nil {
		if err := o.ensureConsumer(ctx); err != nil {
			return err
		}
		eventCh = make(chan jetstream.Msg, eventChannelBufferSize)
		consumeCtx, err := o.consumer.Consume(func(msg jetstream.Msg) {
			select {
			case eventCh <- msg:
			case <-ctx.Done():
				msg.Nak()
			}
		})
		if err != nil {
			return fmt.Errorf("start JetStream consumer: %w", err)
		}
		defer consumeCtx.Stop()
	}

	var pollCh <-chan time.Time
	if o.cfg.PollInterval > 0 {
		ticker := o.clock.NewTicker(o.cfg.PollInterval)
		defer ticker.Stop()
		pollCh = ticker.Chan()
	}

	o.setRunning(true)
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("instance", o.instanceID).Msg("expiration scheduler stopping")
			return nil

		case <-pollCh:
			o.pollDue(ctx)

		case msg := <-eventCh:
			if err := o.processEvent(msg); err != nil {
				log.Error().Err(err).Str("subject", msg.Subject()).Msg("failed to process timer event")
				msg.Nak()
				continue
			}
			msg.Ack()
		}
	}
}

func (o *Orchestrator) shutdown() {
	o.doneOnce.Do(func() {
		close(o.done)
		o.cancelAllTimers()
	})
}

func (o *Orchestrator) recoverSchedules(ctx context.Context) error {
	schedules, err := o.schedules.ListSchedules(ctx)
	if err != nil {
		return fmt.Errorf("recover schedules: %w", err)
	}
	for _, s := range schedules {
		o.arm(s.DraftID, s.Sequence, s.FireAt)
	}
	log.Info().Int("count", len(schedules)).Msg("recovered armed schedules")
	return nil
}

// pollDue enqueues schedules whose deadline has passed. It covers timers that were
// never armed in memory, e.g. events written by another instance while the stream
// was unavailable.
func (o *Orchestrator) pollDue(ctx context.Context) {
	due, err := o.schedules.DueSchedules(ctx, o.clock.Now(), o.cfg.PollBatch)
	if err != nil {
		log.Error().Err(err).Msg("failed to poll due schedules")
		return
	}
	for _, s := range due {
		o.enqueue(work{draftID: s.DraftID, sequence: s.Sequence})
	}
}

func (o *Orchestrator) worker(ctx context.Context, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	log.Debug().Str("instance", o.instanceID).Int("worker_id", workerID).Msg("worker started")

	for {
		select {
		case <-ctx.Done():
			return
		case w := <-o.workCh:
			o.fire(ctx, w)
			o.finish(w)
		}
	}
}

// fire asks the authority to close a generation and reacts to the outcome.
func (o *Orchestrator) fire(ctx context.Context, w work) {
	logger := log.With().
		Str("instance", o.instanceID).
		Str("draft_id", w.draftID.String()).
		Int64("sequence", w.sequence).
		Logger()

	ev, err := o.expirer.Expire(ctx, w.draftID, w.sequence)
	var notDue *timer.NotDueError
	switch {
	case errors.As(err, &notDue):
		expiryAttempts.WithLabelValues(outcomeNotDue).Inc()
		logger.Debug().Dur("remaining", notDue.Remaining).Msg("timer not due yet, re-arming")
		o.arm(w.draftID, w.sequence, o.clock.Now().Add(notDue.Remaining))

	case errors.Is(err, timer.ErrSuperseded):
		expiryAttempts.WithLabelValues(outcomeSuperseded).Inc()
		logger.Debug().Msg("generation superseded, dropping")

	case err != nil:
		if ctx.Err() != nil {
			return
		}
		expiryAttempts.WithLabelValues(outcomeError).Inc()
		logger.Error().Err(err).Dur("retry_in", o.cfg.RetryDelay).Msg("failed to expire timer")
		o.arm(w.draftID, w.sequence, o.clock.Now().Add(o.cfg.RetryDelay))

	default:
		o.recordFire()
		expiryAttempts.WithLabelValues(outcomeExpired).Inc()
		expiryLag.Observe(math.Max(0, -ev.SecondsRemaining))
		logger.Info().Float64("seconds_remaining", ev.SecondsRemaining).Msg("timer expired")
		if o.hook == nil {
			return
		}
		if err := o.hook.OnExpire(ctx, *ev); err != nil {
			logger.Error().Err(err).Msg("expiry hook failed")
		}
	}
}
