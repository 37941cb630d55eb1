// Package sender runs outbound Telegram calls on per-chat worker queues.
package sender

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m3rciful/shopbot/core/logger"
	"github.com/m3rciful/shopbot/core/telegram/netutil"
)

var (
	// ErrQueueClosed is returned when enqueue is attempted after dispatcher stop.
	ErrQueueClosed = errors.New("telegram sender: queue closed")
	// ErrQueueFull is returned when the chat's queue stayed full for EnqueueWait.
	ErrQueueFull = errors.New("telegram sender: queue full")
)

// Options controls the behaviour of the outbound dispatcher.
type Options struct {
	QueueSize    int
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
	// MaxDuration bounds the time spent retrying a single job.
	MaxDuration time.Duration
	// EnqueueWait bounds how long Enqueue waits for room in a full queue.
	EnqueueWait time.Duration
	// OnFailure is called once per job that exhausted its attempts.
	OnFailure func(action, kind string)
}

type job struct {
	ctx      context.Context
	action   string
	endpoint string
	run      func() error
}

func (j job) attrs(extra ...slog.Attr) []slog.Attr {
	attrs := []slog.Attr{slog.String("action", j.action)}
	if j.endpoint != "" {
		attrs = append(attrs, slog.String("endpoint", j.endpoint))
	}
	return append(attrs, extra...)
}

// Dispatcher executes outbound Telegram calls asynchronously with retries.
// Jobs that share a key (a chat ID) run on the same worker in FIFO order, so
// a menu edit never overtakes the list message sent before it.
type Dispatcher struct {
	opts   Options
	queues []chan job

	mu     sync.RWMutex
	closed bool
	once   sync.Once
	wg     sync.WaitGroup
	errs   atomic.Uint64
}

// NewDispatcher starts the workers; zero options take the defaults.
func NewDispatcher(opts Options) *Dispatcher {
	opts.QueueSize = orDefault(opts.QueueSize, 256)
	opts.Workers = orDefault(opts.Workers, 4)
	opts.MaxRetries = max(opts.MaxRetries, 0)
	opts.RetryBackoff = orDefault(opts.RetryBackoff, 2*time.Second)
	opts.MaxDuration = orDefault(opts.MaxDuration, 12*time.Second)
	opts.EnqueueWait = orDefault(opts.EnqueueWait, 2*time.Second)

	d := &Dispatcher{opts: opts, queues: make([]chan job, opts.Workers)}
	perWorker := max(opts.QueueSize/opts.Workers, 16)
	d.wg.Add(opts.Workers)
	for i := range d.queues {
		d.queues[i] = make(chan job, perWorker)
		go d.worker(d.queues[i])
	}
	return d
}

func orDefault[T int | time.Duration](v, def T) T {
	if v <= 0 {
		return def
	}
	return v
}

// Enqueue schedules run on the worker owning key. When that queue is full
// it waits up to EnqueueWait, or until ctx is done, before giving up with
// ErrQueueFull. The run closure must be idempotent if retries are desired.
func (d *Dispatcher) Enqueue(ctx context.Context, key int64, action, endpoint string, run func() error) error {
	if run == nil {
		return errors.New("telegram sender: nil run function")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrQueueClosed
	}

	q := d.queues[d.slot(key)]
	j := job{ctx: ctx, action: action, endpoint: endpoint, run: run}
	select {
	case q <- j:
		return nil
	default:
	}

	timer := time.NewTimer(d.opts.EnqueueWait)
	defer timer.Stop()
	select {
	case q <- j:
		return nil
	case <-timer.C:
		return ErrQueueFull
	case <-ctx.Done():
		return ErrQueueFull
	}
}

// slot maps key to a worker; the unsigned conversion keeps negative chat
// ids, math.MinInt64 included, in range.
func (d *Dispatcher) slot(key int64) int {
	return int(uint64(key) % uint64(len(d.queues)))
}

// ErrorCount returns the number of failed jobs.
func (d *Dispatcher) ErrorCount() uint64 {
	return d.errs.Load()
}

// Close stops accepting jobs and waits for workers to drain their queues.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		d.mu.Lock()
		d.closed = true
		for _, q := range d.queues {
			close(q)
		}
		d.mu.Unlock()
		d.wg.Wait()
	})
}

func (d *Dispatcher) worker(jobs <-chan job) {
	defer d.wg.Done()
	for j := range jobs {
		d.handle(j)
	}
}

func (d *Dispatcher) handle(j job) {
	start := time.Now()
	logger.Debug(j.ctx, "tg.sender", "send.start", j.attrs()...)

	attempts, err := d.attempt(j)
	done := j.attrs(slog.Duration("elapsed", time.Since(start)))
	if attempts > 1 {
		done = append(done, slog.Int("attempts", attempts))
	}

	if err == nil {
		if attempts > 1 {
			logger.Info(j.ctx, "tg.sender", "send.retry.success", done...)
			return
		}
		logger.Debug(j.ctx, "tg.sender", "send.success", done...)
		return
	}

	d.errs.Add(1)
	kind := netutil.Classify(err)
	logger.Error(j.ctx, "tg.sender", "send.fail", append(done,
		slog.String("err", netutil.Redact(err)),
		slog.String("error_kind", kind),
	)...)
	if d.opts.OnFailure != nil {
		d.opts.OnFailure(j.action, kind)
	}
}

// attempt runs j until it succeeds, fails permanently, runs out of retries
// or exceeds MaxDuration. It returns the number of calls made.
func (d *Dispatcher) attempt(j job) (int, error) {
	ctx, cancel := context.WithTimeout(j.ctx, d.opts.MaxDuration)
	defer cancel()

	for n := 1; ; n++ {
		err := j.run()
		if err == nil {
			return n, nil
		}
		if n > d.opts.MaxRetries || !netutil.ShouldRetry(err) {
			return n, err
		}

		delay := d.opts.RetryBackoff * time.Duration(n)
		logger.Debug(ctx, "tg.sender", "send.retry.backoff",
			j.attrs(slog.Int("attempt", n), slog.Duration("delay", delay))...,
		)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return n, ctx.Err()
		case <-timer.C:
		}
	}
}
