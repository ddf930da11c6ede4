package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// opBatch is the number of operations a worker performs per limiter wait.
const opBatch = 64

// workload describes one stress run.
type workload struct {
	Goroutines int
	Duration   time.Duration
	Keys       int
	// ReadRatio is the fraction of operations that are loads, in [0, 1].
	ReadRatio float64
	// Rate caps total operations per second; 0 means unlimited.
	Rate float64
}

func (w workload) validate() error {
	var errs []error
	if w.Goroutines <= 0 {
		errs = append(errs, fmt.Errorf("goroutines: %d must be positive", w.Goroutines))
	}
	if w.Duration <= 0 {
		errs = append(errs, fmt.Errorf("duration: %s must be positive", w.Duration))
	}
	if w.Keys <= 0 {
		errs = append(errs, fmt.Errorf("keys: %d must be positive", w.Keys))
	}
	if w.ReadRatio < 0 || w.ReadRatio > 1 {
		errs = append(errs, fmt.Errorf("read-ratio: %g is outside [0, 1]", w.ReadRatio))
	}
	if w.Rate < 0 {
		errs = append(errs, fmt.Errorf("rate: %g is negative", w.Rate))
	}
	return errors.Join(errs...)
}

// report is the outcome of a run.
type report struct {
	Ops     int64
	Loads   int64
	Hits    int64
	Stores  int64
	Deletes int64
	Elapsed time.Duration
	Len     int
}

// OpsPerSec returns the throughput of the run.
func (r report) OpsPerSec() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Ops) / r.Elapsed.Seconds()
}

type counters struct {
	ops, loads, hits, stores, deletes atomic.Int64
}

// run drives w against s until w.Duration elapses or ctx is cancelled.
func (w workload) run(ctx context.Context, s store) (report, error) {
	if err := w.validate(); err != nil {
		return report{}, err
	}

	var limiter *rate.Limiter
	if w.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(w.Rate), max(opBatch, int(w.Rate/10)))
	}

	ctx, cancel := context.WithTimeout(ctx, w.Duration)
	defer cancel()

	var c counters
	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.Goroutines; i++ {
		seed := uint64(i)
		g.Go(func() error {
			return w.worker(ctx, s, limiter, rand.New(rand.NewPCG(seed, uint64(start.UnixNano()))), &c)
		})
	}
	err := g.Wait()
	elapsed := time.Since(start)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		err = nil
	}

	return report{
		Ops:     c.ops.Load(),
		Loads:   c.loads.Load(),
		Hits:    c.hits.Load(),
		Stores:  c.stores.Load(),
		Deletes: c.deletes.Load(),
		Elapsed: elapsed,
		Len:     s.Len(),
	}, err
}

func (w workload) worker(ctx context.Context, s store, limiter *rate.Limiter, rnd *rand.Rand, c *counters) error {
	for {
		if limiter != nil {
			if err := limiter.WaitN(ctx, opBatch); err != nil {
				// WaitN fails early when the wait would outlast the deadline.
				if ctx.Err() == nil {
					<-ctx.Done()
				}
				return ctx.Err()
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		for range opBatch {
			key := rnd.IntN(w.Keys)
			switch p := rnd.Float64(); {
			case p < w.ReadRatio:
				c.loads.Add(1)
				if _, ok := s.Load(key); ok {
					c.hits.Add(1)
				}
			case p < w.ReadRatio+(1-w.ReadRatio)*0.7:
				c.stores.Add(1)
				s.Store(key, key)
			case p < w.ReadRatio+(1-w.ReadRatio)*0.9:
				c.stores.Add(1)
				s.LoadOrStore(key, key)
			default:
				c.deletes.Add(1)
				s.Delete(key)
			}
		}
		c.ops.Add(opBatch)
	}
}
