package worker

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"whatsapp-processor/internal/logger"
	"whatsapp-processor/internal/metrics"
	"whatsapp-processor/internal/models"
)

// Invoker runs one invocation to completion.
type Invoker interface {
	Handle(ctx context.Context, inv *models.Invocation) error
}

// Runner drains the invocation channel with a single goroutine, so
// invocations never overlap.
type Runner struct {
	invoker        Invoker
	invocationChan chan *models.Invocation
	timeout        time.Duration

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	// Metrics
	processed atomic.Uint64
	failed    atomic.Uint64
}

// Config holds runner configuration
type Config struct {
	Invoker        Invoker
	InvocationChan chan *models.Invocation
	// Timeout bounds a single invocation.
	Timeout time.Duration
}

// NewRunner creates a new runner
func NewRunner(cfg Config) *Runner {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Runner{
		invoker:        cfg.Invoker,
		invocationChan: cfg.InvocationChan,
		timeout:        cfg.Timeout,
		ctx:            ctx,
		cancel:         cancel,
	}
}

// Start begins processing invocations
func (r *Runner) Start() {
	log := logger.WithComponent("runner")
	log.Info().
		Dur("timeout", r.timeout).
		Int("queue_capacity", cap(r.invocationChan)).
		Msg("starting invocation runner")

	r.wg.Add(1)
	go r.run()
}

// Stop cancels the runner and waits for the current invocation to return.
func (r *Runner) Stop() {
	log := logger.WithComponent("runner")
	log.Info().Msg("stopping invocation runner")
	r.cancel()
	r.wg.Wait()
	log.Info().Msg("invocation runner stopped")
}

// Drain waits for the queue to empty after the channel has been closed.
func (r *Runner) Drain() {
	r.wg.Wait()
}

func (r *Runner) run() {
	defer r.wg.Done()

	log := logger.WithComponent("runner")
	log.Info().Msg("runner started")
	defer log.Info().Msg("runner stopped")

	for {
		select {
		case <-r.ctx.Done():
			return

		case inv, ok := <-r.invocationChan:
			if !ok {
				return
			}
			metrics.QueueSize.Set(float64(len(r.invocationChan)))
			r.invoke(inv)
		}
	}
}

// invoke runs one invocation, recovering from panics so the runner survives.
func (r *Runner) invoke(inv *models.Invocation) {
	log := logger.WithComponent("runner").With().
		Str("invocation_id", inv.ID).
		Str("agent_id", inv.AgentID).
		Logger()

	defer func() {
		if rec := recover(); rec != nil {
			log.Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("invocation panic recovered")
			metrics.PanicsRecovered.WithLabelValues("runner").Inc()
			r.failed.Add(1)
		}
	}()

	ctx, cancel := context.WithTimeout(r.ctx, r.timeout)
	defer cancel()

	if err := r.invoker.Handle(ctx, inv); err != nil {
		log.Error().
			Err(err).
			Str("trigger", string(inv.Trigger)).
			Msg("invocation failed")
		r.failed.Add(1)
		return
	}
	r.processed.Add(1)
}

// Stats returns runner statistics
func (r *Runner) Stats() Stats {
	return Stats{
		Processed: r.processed.Load(),
		Failed:    r.failed.Load(),
	}
}

// Stats holds runner metrics
type Stats struct {
	Processed uint64 `json:"processed"`
	Failed    uint64 `json:"failed"`
}
