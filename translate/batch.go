package translate

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BatchResult accumulates the outcome of a batch.
type BatchResult struct {
	RunID     string
	Succeeded int
	Failed    int
	Skipped   int
	Tokens    int
	Results   []Result
	// Canceled is set when the context ended before every job ran.
	Canceled bool
}

// Err returns the first job error, or nil when every job succeeded.
func (b BatchResult) Err() error {
	for _, r := range b.Results {
		if r.Err != nil {
			return r.Err
		}
	}
	return nil
}

// RunBatch runs jobs one at a time in order. A failed job never stops the
// batch; cancellation does, after the job in flight has finished.
// Options.RequestDelay is waited between remote calls.
func (t *Translator) RunBatch(ctx context.Context, jobs []Job) BatchResult {
	batch := BatchResult{RunID: uuid.NewString()}
	log := t.opts.logger().With(zap.String("run", batch.RunID))
	log.Info("batch started", zap.Int("jobs", len(jobs)))

	called := false
	for i, job := range jobs {
		if ctx.Err() != nil {
			batch.Canceled = true
			break
		}
		if called && t.opts.RequestDelay > 0 && !t.isSkipped(job) {
			if !sleep(ctx, t.opts.RequestDelay) {
				batch.Canceled = true
				break
			}
		}

		res := t.Run(ctx, job)
		called = called || res.called
		batch.Results = append(batch.Results, res)
		batch.Tokens += res.Tokens
		switch {
		case res.Skipped:
			batch.Skipped++
		case res.Success:
			batch.Succeeded++
		default:
			batch.Failed++
		}

		if t.opts.OnResult != nil {
			t.opts.OnResult(i+1, len(jobs), res)
		}
	}

	log.Info("batch finished",
		zap.Int("succeeded", batch.Succeeded),
		zap.Int("failed", batch.Failed),
		zap.Int("skipped", batch.Skipped),
		zap.Int("tokens", batch.Tokens),
		zap.Bool("canceled", batch.Canceled),
	)
	return batch
}

func (t *Translator) isSkipped(job Job) bool {
	if t.opts.Lock == nil || t.opts.Force {
		return false
	}
	payload, err := compact(job.Baseline)
	if err != nil {
		return false
	}
	return t.unchanged(job, payload)
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
