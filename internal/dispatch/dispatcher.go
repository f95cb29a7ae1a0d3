package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/drawgate/api/internal/keypool"
	"github.com/drawgate/api/internal/metrics"
	"github.com/drawgate/api/internal/upstream"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Generator is the upstream call a job executes. *upstream.Client satisfies
// it; tests substitute fakes.
type Generator interface {
	Generate(ctx context.Context, p upstream.GenerateParams) (string, error)
}

// Request describes one fan-out: N images of the same prompt.
type Request struct {
	Model      string
	Prompt     string
	Resolution string
	Count      int
}

// Outcome is the terminal result of one generation job. Index is 1-based
// and stable: the Nth outcome always corresponds to the Nth requested slot.
type Outcome struct {
	Index int
	URL   string
	Err   error
}

// Succeeded reports whether the job produced an image URL.
func (o Outcome) Succeeded() bool {
	return o.Err == nil
}

// Dispatcher fans a generation request out across the key pool, one
// concurrent upstream call per requested image. Jobs are independent: a
// failing job reports a failed Outcome for its own index and never cancels
// its siblings.
type Dispatcher struct {
	generator  Generator
	pool       *keypool.Pool
	limiter    *rate.Limiter
	jobTimeout time.Duration
	logger     *zap.Logger
}

// New creates a dispatcher. limiter may be nil to disable upstream rate
// limiting.
func New(generator Generator, pool *keypool.Pool, limiter *rate.Limiter, jobTimeout time.Duration, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		generator:  generator,
		pool:       pool,
		limiter:    limiter,
		jobTimeout: jobTimeout,
		logger:     logger,
	}
}

// Dispatch launches req.Count concurrent jobs and returns a channel of
// outcomes delivered as each job completes, in completion order. The channel
// is closed once every job has terminated. Consumers needing index order
// buffer out-of-order outcomes (see the stream emitter).
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) <-chan Outcome {
	keys := d.pool.Acquire(req.Count)
	outcomes := make(chan Outcome, req.Count)

	eg, egCtx := errgroup.WithContext(ctx)
	for i := 0; i < req.Count; i++ {
		index := i + 1
		key := keys[i]

		eg.Go(func() error {
			outcomes <- d.runJob(egCtx, req, index, key)
			// Always nil: one job's failure must not cancel the group.
			return nil
		})
	}

	go func() {
		eg.Wait()
		close(outcomes)
	}()

	return outcomes
}

func (d *Dispatcher) runJob(ctx context.Context, req Request, index int, key string) Outcome {
	jobCtx, cancel := context.WithTimeout(ctx, d.jobTimeout)
	defer cancel()

	if d.limiter != nil {
		if err := d.limiter.Wait(jobCtx); err != nil {
			return Outcome{Index: index, Err: classify(err)}
		}
	}

	d.logger.Info("dispatching generation job",
		zap.Int("index", index),
		zap.String("model", req.Model),
	)

	started := time.Now()
	url, err := d.generator.Generate(jobCtx, upstream.GenerateParams{
		Model:     req.Model,
		Prompt:    req.Prompt,
		ImageSize: req.Resolution,
		APIKey:    key,
	})
	metrics.UpstreamLatency.Observe(time.Since(started).Seconds())
	if err != nil {
		metrics.SlotFailuresTotal.Inc()
		d.logger.Error("generation job failed", zap.Int("index", index), zap.Error(err))
		return Outcome{Index: index, Err: classify(err)}
	}

	metrics.ImagesGeneratedTotal.Inc()
	d.logger.Info("generation job completed", zap.Int("index", index))
	return Outcome{Index: index, URL: url}
}

// classify maps a raw job error to the caller-visible failure message.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("generation timed out: %w", err)
	}
	return err
}
