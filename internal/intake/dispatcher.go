package intake

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/agentworkforce/dupeguard/internal/dupes"
)

// Runner is the slice of dupes.Scanner the dispatcher needs.
type Runner interface {
	RunIncremental(ctx context.Context, settings dupes.Settings, order dupes.Order) (*dupes.Report, error)
}

// SettingsSource hands out the settings snapshot used for each event.
type SettingsSource interface {
	Get() dupes.Settings
}

type StaticSettings dupes.Settings

func (s StaticSettings) Get() dupes.Settings {
	return dupes.Settings(s)
}

type DispatcherOptions struct {
	Queue    Queue
	Runner   Runner
	Settings SettingsSource
	Logger   *slog.Logger
	Workers  int
	// DedupeWindow is how long a delivery ID is remembered. Shopify retries
	// a webhook for up to 48h but almost always within minutes.
	DedupeWindow time.Duration
	MaxAttempts  int
	RetryDelay   time.Duration
	// OnReport is called after every processed event, including skipped ones.
	OnReport func(Event, *dupes.Report)
	Now      func() time.Time
}

type Stats struct {
	Accepted   uint64 `json:"accepted"`
	Deduped    uint64 `json:"deduped"`
	Dropped    uint64 `json:"dropped"`
	Processed  uint64 `json:"processed"`
	Retried    uint64 `json:"retried"`
	Failed     uint64 `json:"failed"`
	QueueDepth int    `json:"queueDepth"`
	QueueCap   int    `json:"queueCapacity"`
}

// Dispatcher turns webhook deliveries into incremental scans. Deliveries are
// deduplicated by ID, buffered in a Queue and drained by a fixed worker pool.
type Dispatcher struct {
	queue        Queue
	runner       Runner
	settings     SettingsSource
	logger       *slog.Logger
	workers      int
	dedupeWindow time.Duration
	maxAttempts  int
	retryDelay   time.Duration
	onReport     func(Event, *dupes.Report)
	now          func() time.Time

	seenMu sync.Mutex
	seen   map[string]time.Time

	accepted  atomic.Uint64
	deduped   atomic.Uint64
	dropped   atomic.Uint64
	processed atomic.Uint64
	retried   atomic.Uint64
	failed    atomic.Uint64

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started atomic.Bool
	closed  chan struct{}
	once    sync.Once
}

func NewDispatcher(opts DispatcherOptions) *Dispatcher {
	queue := opts.Queue
	if queue == nil {
		queue = NewMemoryQueue(defaultQueueCapacity)
	}
	settings := opts.Settings
	if settings == nil {
		settings = StaticSettings(dupes.DefaultSettings())
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 2
	}
	dedupeWindow := opts.DedupeWindow
	if dedupeWindow <= 0 {
		dedupeWindow = 15 * time.Minute
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	retryDelay := opts.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 2 * time.Second
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		queue:        queue,
		runner:       opts.Runner,
		settings:     settings,
		logger:       logger.With("component", "intake"),
		workers:      workers,
		dedupeWindow: dedupeWindow,
		maxAttempts:  maxAttempts,
		retryDelay:   retryDelay,
		onReport:     opts.OnReport,
		now:          now,
		seen:         map[string]time.Time{},
		ctx:          ctx,
		cancel:       cancel,
		closed:       make(chan struct{}),
	}
}

// Start launches the worker pool. Calling it twice is a no-op.
func (d *Dispatcher) Start() {
	if !d.started.CompareAndSwap(false, true) {
		return
	}
	d.wg.Add(d.workers)
	for i := 0; i < d.workers; i++ {
		go func() {
			defer d.wg.Done()
			d.worker()
		}()
	}
	d.logger.Info("event workers started", "workers", d.workers, "queue_capacity", d.queue.Capacity())
}

// Submit accepts one delivery. A repeated delivery ID inside the dedupe
// window returns accepted=false with a nil error; a full queue returns
// ErrQueueFull.
func (d *Dispatcher) Submit(event Event) (bool, error) {
	select {
	case <-d.closed:
		return false, ErrClosed
	default:
	}
	event.ID = strings.TrimSpace(event.ID)
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = d.now()
	}
	if strings.TrimSpace(event.Order.ID) == "" {
		return false, ErrInvalidInput
	}
	if !d.remember(event.ID) {
		d.deduped.Add(1)
		d.logger.Info("duplicate delivery ignored", "event_id", event.ID, "order", event.Order.Name)
		return false, nil
	}
	if !d.queue.TryEnqueue(event) {
		d.forget(event.ID)
		d.dropped.Add(1)
		d.logger.Warn("event queue full, delivery rejected", "event_id", event.ID, "depth", d.queue.Depth())
		return false, ErrQueueFull
	}
	d.accepted.Add(1)
	return true, nil
}

func (d *Dispatcher) Stats() Stats {
	return Stats{
		Accepted:   d.accepted.Load(),
		Deduped:    d.deduped.Load(),
		Dropped:    d.dropped.Load(),
		Processed:  d.processed.Load(),
		Retried:    d.retried.Load(),
		Failed:     d.failed.Load(),
		QueueDepth: d.queue.Depth(),
		QueueCap:   d.queue.Capacity(),
	}
}

// Close stops the workers after their current event and closes the queue.
func (d *Dispatcher) Close() error {
	var err error
	d.once.Do(func() {
		close(d.closed)
		d.cancel()
		d.wg.Wait()
		err = d.queue.Close()
	})
	return err
}

func (d *Dispatcher) worker() {
	for {
		event, ok := d.queue.Dequeue(d.ctx)
		if !ok {
			return
		}
		d.process(event)
	}
}

func (d *Dispatcher) process(event Event) {
	log := d.logger.With("event_id", event.ID, "order", event.Order.Name, "attempt", event.Attempt+1)
	if d.runner == nil {
		d.failed.Add(1)
		log.Error("no runner configured, dropping event")
		return
	}
	report, err := d.runner.RunIncremental(d.ctx, d.settings.Get(), event.Order)
	if err != nil {
		if errors.Is(err, dupes.ErrSourceUnavailable) && event.Attempt+1 < d.maxAttempts && d.ctx.Err() == nil {
			d.retried.Add(1)
			log.Warn("incremental check failed, scheduling retry", "error", err, "delay", d.retryDelay)
			d.scheduleRetry(event)
			return
		}
		d.failed.Add(1)
		log.Error("incremental check failed", "error", err)
		return
	}
	d.processed.Add(1)
	if d.onReport != nil {
		d.onReport(event, report)
	}
}

// retryEnqueueTimeout bounds how long a retry waits for queue space.
const retryEnqueueTimeout = 10 * time.Second

func (d *Dispatcher) scheduleRetry(event Event) {
	event.Attempt++
	time.AfterFunc(d.retryDelay, func() {
		select {
		case <-d.closed:
			return
		default:
		}
		ctx, cancel := context.WithTimeout(d.ctx, retryEnqueueTimeout)
		defer cancel()
		if !d.queue.Enqueue(ctx, event) {
			d.failed.Add(1)
			d.logger.Error("retry dropped, event queue full", "event_id", event.ID)
		}
	})
}

func (d *Dispatcher) remember(id string) bool {
	now := d.now()
	d.seenMu.Lock()
	defer d.seenMu.Unlock()
	for seenID, at := range d.seen {
		if now.Sub(at) > d.dedupeWindow {
			delete(d.seen, seenID)
		}
	}
	if _, ok := d.seen[id]; ok {
		return false
	}
	d.seen[id] = now
	return true
}

func (d *Dispatcher) forget(id string) {
	d.seenMu.Lock()
	defer d.seenMu.Unlock()
	delete(d.seen, id)
}
