package queue

import (
	"context"
	"errors"
	"hash/fnv"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jesi-ai/account-service/internal/core/domain"
	"github.com/jesi-ai/account-service/internal/core/ports"
	"github.com/jesi-ai/account-service/internal/pkg/metrics"
	"github.com/jesi-ai/account-service/pkg/logger"
)

const (
	defaultWorkers         = 4
	defaultBuffer          = 256
	defaultDeliveryTimeout = 30 * time.Second
)

// ErrQueueFull is returned by Enqueue when the target worker has no free slot.
var ErrQueueFull = errors.New("mail queue full")

// Deliverer sends one mail job.
type Deliverer interface {
	Deliver(ctx context.Context, job ports.MailJob) error
}

// Config sizes the worker pool.
type Config struct {
	Workers         int
	Buffer          int
	DeliveryTimeout time.Duration
}

// Dispatcher routes mail jobs to a fixed set of workers using consistent
// hashing on the recipient, so mail to one address is sent in order.
type Dispatcher struct {
	workers   []chan ports.MailJob
	deliverer Deliverer
	timeout   time.Duration
	log       zerolog.Logger
	wg        sync.WaitGroup
}

// NewDispatcher creates a Dispatcher. Zero values in cfg fall back to the
// package defaults.
func NewDispatcher(cfg Config, deliverer Deliverer, log zerolog.Logger) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = defaultBuffer
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = defaultDeliveryTimeout
	}
	d := &Dispatcher{
		workers:   make([]chan ports.MailJob, cfg.Workers),
		deliverer: deliverer,
		timeout:   cfg.DeliveryTimeout,
		log:       log,
	}
	for i := range d.workers {
		d.workers[i] = make(chan ports.MailJob, cfg.Buffer)
	}
	return d
}

// Start launches all worker goroutines. Workers stop when ctx is cancelled;
// jobs still buffered at that point are dropped.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, ch := range d.workers {
		d.wg.Add(1)
		go d.runWorker(ctx, i, ch)
	}
}

// Wait blocks until every worker has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Enqueue hands job to the worker responsible for its recipient without
// blocking.
func (d *Dispatcher) Enqueue(job ports.MailJob) error {
	idx := d.shardIndex(job.To)
	select {
	case d.workers[idx] <- job:
		metrics.MailEnqueuedTotal.WithLabelValues(string(job.Kind), "queued").Inc()
		metrics.MailQueueDepth.WithLabelValues(strconv.Itoa(idx)).Inc()
		return nil
	default:
		metrics.MailEnqueuedTotal.WithLabelValues(string(job.Kind), "dropped").Inc()
		return ErrQueueFull
	}
}

func (d *Dispatcher) SendVerificationEmail(_ context.Context, to, token string) error {
	return d.Enqueue(ports.MailJob{Kind: domain.MailVerification, To: to, Token: token})
}

func (d *Dispatcher) SendPasswordResetEmail(_ context.Context, to, token string) error {
	return d.Enqueue(ports.MailJob{Kind: domain.MailPasswordReset, To: to, Token: token})
}

// shardIndex maps a recipient deterministically to a worker index.
func (d *Dispatcher) shardIndex(to string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(strings.ToLower(to)))
	return int(h.Sum32() % uint32(len(d.workers)))
}

func (d *Dispatcher) runWorker(ctx context.Context, id int, ch <-chan ports.MailJob) {
	defer d.wg.Done()
	workerID := strconv.Itoa(id)
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-ch:
			metrics.MailQueueDepth.WithLabelValues(workerID).Dec()
			d.deliver(ctx, id, job)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, id int, job ports.MailJob) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	err := d.deliverer.Deliver(ctx, job)
	metrics.MailDeliveryDuration.WithLabelValues(string(job.Kind)).Observe(time.Since(start).Seconds())

	result := "sent"
	if err != nil {
		result = "failed"
		d.log.Error().Err(err).
			Str("kind", string(job.Kind)).
			Str("to", logger.MaskEmail(job.To)).
			Int("worker_id", id).
			Msg("mail delivery failed")
	}
	metrics.MailDeliveredTotal.WithLabelValues(string(job.Kind), result).Inc()
}
