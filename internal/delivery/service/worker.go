package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	ddomain "github.com/corvusHold/certify/internal/delivery/domain"
	edomain "github.com/corvusHold/certify/internal/email/domain"
	"github.com/corvusHold/certify/internal/metrics"
)

// DefaultUnavailableWait is how long a job waits when its creator's provider
// is paused before trying again.
const DefaultUnavailableWait = 30 * time.Second

// maxDeferrals bounds how often one job waits on a paused provider before the
// wait starts counting as a failed attempt.
const maxDeferrals = 10

// Pool sends queued certificate emails with a fixed number of workers.
// Each job gets up to MaxAttempts sends with exponential backoff between them.
// Sends refused because the provider is paused do not use up an attempt.
type Pool struct {
	queue           ddomain.Queue
	sender          edomain.Sender
	workers         int
	maxAttempts     int
	backoff         time.Duration
	unavailableWait time.Duration
	log             zerolog.Logger
}

func NewPool(q ddomain.Queue, sender edomain.Sender, workers, maxAttempts int, backoff time.Duration, log zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &Pool{
		queue:           q,
		sender:          sender,
		workers:         workers,
		maxAttempts:     maxAttempts,
		backoff:         backoff,
		unavailableWait: DefaultUnavailableWait,
		log:             log,
	}
}

// WithUnavailableWait sets the wait used when the provider is paused.
func (p *Pool) WithUnavailableWait(d time.Duration) *Pool {
	if d > 0 {
		p.unavailableWait = d
	}
	return p
}

// Run blocks until ctx is done and all workers have returned.
func (p *Pool) Run(ctx context.Context) error {
	deliveries, err := p.queue.Consume(ctx)
	if err != nil {
		return err
	}
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for d := range deliveries {
				p.handle(ctx, worker, d)
			}
		}(i)
	}
	wg.Wait()
	return nil
}

// Backoff returns the wait before attempt n+1: base * 2^(n-1).
func Backoff(base time.Duration, n int) time.Duration {
	if n < 1 {
		n = 1
	}
	return base << (n - 1)
}

func (p *Pool) handle(ctx context.Context, worker int, d ddomain.Delivery) {
	job := d.Job
	log := p.log.With().
		Int("worker", worker).
		Str("job_id", job.ID.String()).
		Str("certificate_id", job.CertificateID.String()).
		Logger()

	var err error
	deferrals := 0
	for attempt := 1; attempt <= p.maxAttempts; {
		job.Attempt = attempt
		err = p.sender.Send(ctx, job.CreatorID, job.Message())
		if err == nil {
			metrics.IncDeliveryAttempt("sent")
			if ackErr := d.Ack(); ackErr != nil {
				log.Warn().Err(ackErr).Msg("ack failed")
			}
			log.Debug().Int("attempt", attempt).Msg("certificate email sent")
			return
		}

		var wait time.Duration
		if errors.Is(err, edomain.ErrProviderUnavailable) && deferrals < maxDeferrals {
			deferrals++
			wait = p.unavailableWait
			metrics.IncDeliveryAttempt("deferred")
			log.Info().Int("attempt", attempt).Dur("wait", wait).Msg("email provider paused; waiting")
		} else {
			metrics.IncDeliveryAttempt("failed")
			log.Warn().Err(err).Int("attempt", attempt).Int("max_attempts", p.maxAttempts).Msg("certificate email attempt failed")
			if errors.Is(err, edomain.ErrNotConfigured) || attempt == p.maxAttempts {
				break
			}
			wait = Backoff(p.backoff, attempt)
			attempt++
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			// left unsettled so the transport can redeliver
			log.Info().Msg("shutdown during backoff; job not settled")
			return
		case <-t.C:
		}
	}

	metrics.IncDeliveryAttempt("dead")
	log.Error().Err(err).Str("recipient", job.RecipientEmail).Msg("certificate email permanently failed")
	if rejErr := d.Reject(); rejErr != nil {
		log.Warn().Err(rejErr).Msg("dead-letter failed")
	}
}
