package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/jesi-ai/account-service/internal/core/domain"
	"github.com/jesi-ai/account-service/internal/core/ports"
	"github.com/jesi-ai/account-service/internal/pkg/metrics"
)

const (
	outboxKey      = "mail:outbox"
	pollTimeout    = 2 * time.Second
	consumeBackoff = time.Second
)

// outboxClient is the subset of *redis.Client used by MailQueue.
type outboxClient interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	BRPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
}

// MailQueue is a Redis list used as a mail outbox. Producers LPUSH jobs;
// Consume BRPOPs them in FIFO order and hands them to a sink.
type MailQueue struct {
	client outboxClient
	log    zerolog.Logger
}

func NewMailQueue(client outboxClient, log zerolog.Logger) *MailQueue {
	return &MailQueue{client: client, log: log}
}

func (q *MailQueue) SendVerificationEmail(ctx context.Context, to, token string) error {
	return q.push(ctx, ports.MailJob{Kind: domain.MailVerification, To: to, Token: token})
}

func (q *MailQueue) SendPasswordResetEmail(ctx context.Context, to, token string) error {
	return q.push(ctx, ports.MailJob{Kind: domain.MailPasswordReset, To: to, Token: token})
}

func (q *MailQueue) push(ctx context.Context, job ports.MailJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode mail job: %w", err)
	}
	if err := q.client.LPush(ctx, outboxKey, payload).Err(); err != nil {
		metrics.MailEnqueuedTotal.WithLabelValues(string(job.Kind), "dropped").Inc()
		return fmt.Errorf("outbox push: %w", err)
	}
	metrics.MailEnqueuedTotal.WithLabelValues(string(job.Kind), "queued").Inc()
	return nil
}

// Consume moves jobs from the outbox into sink until ctx is cancelled. A job
// the sink refuses is pushed back to the consuming end of the list.
func (q *MailQueue) Consume(ctx context.Context, sink func(ports.MailJob) error) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		res, err := q.client.BRPop(ctx, pollTimeout, outboxKey).Result()
		switch {
		case errors.Is(err, redis.Nil):
			continue
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			q.log.Error().Err(err).Msg("outbox pop failed")
			if !sleep(ctx, consumeBackoff) {
				return nil
			}
			continue
		}

		// BRPOP replies with [key, value].
		if len(res) != 2 {
			continue
		}
		var job ports.MailJob
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			q.log.Error().Err(err).Str("payload", res[1]).Msg("discarding malformed mail job")
			continue
		}

		if err := sink(job); err != nil {
			q.log.Warn().Err(err).Str("kind", string(job.Kind)).Msg("mail sink refused job, requeueing")
			if perr := q.client.RPush(context.WithoutCancel(ctx), outboxKey, res[1]).Err(); perr != nil {
				q.log.Error().Err(perr).Str("kind", string(job.Kind)).Msg("failed to requeue mail job")
			}
			if !sleep(ctx, consumeBackoff) {
				return nil
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
