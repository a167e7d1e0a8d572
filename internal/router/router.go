package router

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/vmgrid/vmgrid-core/internal/admin"
	"github.com/vmgrid/vmgrid-core/internal/mirror"
)

// Logger is the minimal logging surface the router needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// StatsRecorder receives the periodic per-domain runtime counters
// carried by stats events, after the mirror has been updated.
type StatsRecorder interface {
	RecordDomainStats(name string, fields map[string]int64)
}

const (
	defaultWorkers   = 4
	defaultQueueSize = 64
)

// Router drives the mirror from the admin event stream.
type Router struct {
	client     admin.Client
	registry   *mirror.Registry
	reconciler *mirror.Reconciler
	stats      StatsRecorder
	logger     Logger

	workers int
	queues  []chan classified
	wg      sync.WaitGroup
}

// Option configures a Router.
type Option func(*Router)

// WithLogger attaches a logger.
func WithLogger(l Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithStatsRecorder forwards stats events to rec after they are applied
// to the mirror.
func WithStatsRecorder(rec StatsRecorder) Option {
	return func(r *Router) { r.stats = rec }
}

// WithWorkers sets the number of handler workers.
func WithWorkers(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.workers = n
		}
	}
}

// New builds a Router over the given admin client and mirror.
func New(client admin.Client, registry *mirror.Registry, reconciler *mirror.Reconciler, opts ...Option) *Router {
	r := &Router{
		client:     client,
		registry:   registry,
		reconciler: reconciler,
		logger:     noopLogger{},
		workers:    defaultWorkers,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run subscribes to the admin event stream and applies events until ctx
// is cancelled or the stream is lost. Stream loss is fatal and returned
// as an error; cancellation returns nil after the in-flight handlers
// have finished. Queued events are not processed once shutdown begins.
func (r *Router) Run(ctx context.Context) error {
	events, err := r.client.Events(ctx)
	if err != nil {
		return fmt.Errorf("router: subscribe: %w", err)
	}

	r.queues = make([]chan classified, r.workers)
	for i := range r.queues {
		r.queues[i] = make(chan classified, defaultQueueSize)
	}
	r.wg.Add(r.workers)
	for i := range r.queues {
		go r.worker(ctx, r.queues[i])
	}
	r.logger.Info("event routing started", "workers", r.workers)

	for ev := range events {
		c := classify(ev)
		switch c.action {
		case actionIgnore:
			continue
		case actionUnknown:
			r.logger.Warn("unknown event kind dropped", "kind", ev.Kind, "origin", ev.Origin)
			continue
		}
		r.enqueue(ctx, c)
	}
	r.shutdown()

	if ctx.Err() != nil {
		r.logger.Info("event routing stopped")
		return nil
	}
	err = r.client.Err()
	r.logger.Error("event stream lost", "error", err)
	return fmt.Errorf("router: event stream lost: %w", err)
}

// enqueue hands the event to the worker owning its serialization key.
// Enqueueing blocks when the worker is saturated, which back-pressures
// the stream reader rather than reordering or dropping events.
func (r *Router) enqueue(ctx context.Context, c classified) {
	h := fnv.New32a()
	h.Write([]byte(c.serializationKey()))
	queue := r.queues[h.Sum32()%uint32(len(r.queues))]
	select {
	case queue <- c:
	case <-ctx.Done():
	}
}

func (r *Router) worker(ctx context.Context, queue chan classified) {
	defer r.wg.Done()
	for {
		select {
		case c, ok := <-queue:
			if !ok {
				return
			}
			if ctx.Err() != nil {
				return
			}
			r.handle(ctx, c)
		case <-ctx.Done():
			return
		}
	}
}

func (r *Router) shutdown() {
	for _, q := range r.queues {
		close(q)
	}
	r.wg.Wait()
}

// handle dispatches one classified event. Handler errors are logged and
// the event is dropped; the stream itself keeps flowing.
func (r *Router) handle(ctx context.Context, c classified) {
	var err error
	switch c.action {
	case actionDomainAdd:
		err = r.handleDomainAdd(ctx, c.event)
	case actionDomainDelete:
		err = r.handleDomainDelete(c.event)
	case actionStateChange:
		err = r.handleStateChange(ctx, c)
	case actionPropertySet:
		err = r.handlePropertySet(ctx, c)
	case actionDeviceListChange:
		err = r.handleDeviceListChange(ctx, c)
	case actionDeviceAttach:
		err = r.handleDeviceAttach(c)
	case actionDeviceDetach:
		err = r.handleDeviceDetach(c)
	case actionStats:
		err = r.handleStats(ctx, c.event)
	}
	if err != nil {
		r.logger.Warn("event dropped",
			"kind", c.event.Kind, "origin", c.event.Origin, "error", err)
	}
}
