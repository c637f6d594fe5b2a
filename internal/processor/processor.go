package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"whatsapp-processor/internal/bus"
	"whatsapp-processor/internal/config"
	"whatsapp-processor/internal/handlers"
	"whatsapp-processor/internal/kafka"
	"whatsapp-processor/internal/logger"
	"whatsapp-processor/internal/metrics"
	"whatsapp-processor/internal/middleware"
	"whatsapp-processor/internal/models"
	"whatsapp-processor/internal/state"
	"whatsapp-processor/internal/worker"
)

// Processor is the high-level coordinator: it owns the ingress sources,
// the single invocation runner and the tag store.
type Processor struct {
	cfg            *config.Config
	store          state.Store
	handler        *Handler
	producer       *kafka.Producer
	consumer       *kafka.Consumer
	subscriber     *bus.Subscriber
	runner         *worker.Runner
	httpServer     *http.Server
	invocationChan chan *models.Invocation
	wg             sync.WaitGroup

	// guards invocationChan against sends after close
	mu     sync.RWMutex
	closed bool
}

// New constructs a Processor with given config.
func New(cfg *config.Config) *Processor {
	size := cfg.Queue.Size
	if size <= 0 {
		size = 256
	}
	return &Processor{
		cfg:            cfg,
		invocationChan: make(chan *models.Invocation, size),
	}
}

// Run starts background goroutines and blocks until context cancelled.
func (p *Processor) Run(ctx context.Context) error {
	log := logger.WithComponent("processor")
	log.Info().Msg("processor starting")

	if err := p.initStore(ctx); err != nil {
		log.Error().Err(err).Msg("failed to initialize tag store")
		return fmt.Errorf("failed to initialize tag store: %w", err)
	}

	if err := p.initProducer(); err != nil {
		log.Error().Err(err).Msg("failed to initialize producer")
		p.store.Close()
		return fmt.Errorf("failed to initialize producer: %w", err)
	}

	p.initHandler()
	p.initRunner()
	p.runner.Start()

	if err := p.initConsumer(); err != nil {
		log.Error().Err(err).Msg("failed to initialize kafka consumer")
		p.abort()
		return fmt.Errorf("failed to initialize kafka consumer: %w", err)
	}

	if err := p.initSubscriber(); err != nil {
		log.Error().Err(err).Msg("failed to initialize nats subscriber")
		p.abort()
		return fmt.Errorf("failed to initialize nats subscriber: %w", err)
	}

	p.initHTTPServer()

	// Start HTTP server in background
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		log.Info().Str("addr", p.httpServer.Addr).Msg("starting HTTP server")
		if err := p.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	if p.consumer != nil {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			if err := p.consumer.Start(ctx); err != nil {
				log.Error().Err(err).Msg("kafka consumer stopped")
			}
		}()
	}

	if p.cfg.Schedule.Interval > 0 {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.schedule(ctx)
		}()
	}

	// Stats reporting goroutine
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.reportStats(ctx)
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	// Graceful shutdown
	return p.shutdown()
}

// initStore picks Redis when an address is configured, memory otherwise
func (p *Processor) initStore(ctx context.Context) error {
	log := logger.WithComponent("processor")
	if p.cfg.Redis.Addr == "" {
		log.Warn().Msg("redis address not set; tags are kept in memory and lost on restart")
		p.store = state.NewMemoryStore()
		return nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	store, err := state.NewRedisStore(connectCtx, p.cfg.Redis)
	if err != nil {
		return err
	}
	p.store = store
	log.Info().Str("addr", p.cfg.Redis.Addr).Int("db", p.cfg.Redis.DB).Msg("redis tag store initialized")
	return nil
}

// initProducer initializes the audit producer when an alert topic is set
func (p *Processor) initProducer() error {
	if p.cfg.Kafka.AlertTopic == "" {
		return nil
	}

	log := logger.WithComponent("processor")
	producer, err := kafka.NewProducer(
		p.cfg.Kafka.Brokers,
		p.cfg.Kafka.AlertTopic,
		p.cfg.Kafka.Producer,
	)
	if err != nil {
		return err
	}

	p.producer = producer
	log.Info().
		Strs("brokers", p.cfg.Kafka.Brokers).
		Str("topic", p.cfg.Kafka.AlertTopic).
		Msg("kafka alert producer initialized")
	return nil
}

func (p *Processor) initHandler() {
	hc := HandlerConfig{
		Processor:       p.cfg.Processor,
		Tags:            state.NewTagStore(p.store, p.cfg.Redis.KeyPrefix),
		DispatchTimeout: p.cfg.Dispatch.Timeout,
	}
	// A nil *kafka.Producer must not become a non-nil interface.
	if p.producer != nil {
		hc.Publisher = p.producer
	}
	p.handler = NewHandler(hc)
}

// initRunner initializes the single invocation runner
func (p *Processor) initRunner() {
	p.runner = worker.NewRunner(worker.Config{
		Invoker:        p.handler,
		InvocationChan: p.invocationChan,
		Timeout:        p.cfg.Queue.InvocationTimeout,
	})
}

// initConsumer initializes the channel-message consumer when a topic is set
func (p *Processor) initConsumer() error {
	if p.cfg.Kafka.Topic == "" {
		return nil
	}

	consumer, err := kafka.NewConsumer(p.cfg.Kafka.Brokers, p.cfg.Kafka.Topic, p.cfg.Kafka.GroupID, p.invocationChan)
	if err != nil {
		return err
	}
	p.consumer = consumer
	log := logger.WithComponent("processor")
	log.Info().
		Strs("brokers", p.cfg.Kafka.Brokers).
		Str("topic", p.cfg.Kafka.Topic).
		Str("group_id", p.cfg.Kafka.GroupID).
		Msg("kafka consumer initialized")
	return nil
}

// initSubscriber subscribes to NATS when a URL is set
func (p *Processor) initSubscriber() error {
	if p.cfg.NATS.URL == "" {
		return nil
	}

	sub, err := bus.NewSubscriber(p.cfg.NATS.URL)
	if err != nil {
		return err
	}
	if _, err := sub.Subscribe(p.cfg.NATS.Subject, func(inv *models.Invocation) {
		p.enqueue("nats", inv)
	}); err != nil {
		sub.Close()
		return err
	}
	p.subscriber = sub
	log := logger.WithComponent("processor")
	log.Info().
		Str("url", p.cfg.NATS.URL).
		Str("subject", p.cfg.NATS.Subject).
		Msg("nats subscriber initialized")
	return nil
}

// initHTTPServer initializes the HTTP server with handlers
func (p *Processor) initHTTPServer() {
	mux := http.NewServeMux()

	invokeHandler := handlers.NewInvokeHandler(handlers.InvokeConfig{
		InvocationChan: p.invocationChan,
		MaxBodySize:    p.cfg.HTTP.MaxBodySize,
	})
	mux.Handle("/invoke", middleware.Chain(
		invokeHandler,
		middleware.Recovery,
		middleware.Logging,
		middleware.Auth(p.cfg.HTTP.AuthToken),
	))

	// Health check
	mux.HandleFunc("/health", p.healthHandler)

	// Stats endpoint
	mux.HandleFunc("/stats", p.statsHandler)

	// Per-agent tag snapshot
	mux.Handle("/tags", middleware.Chain(
		http.HandlerFunc(p.tagsHandler),
		middleware.Recovery,
		middleware.Logging,
		middleware.Auth(p.cfg.HTTP.AuthToken),
	))

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.Handler())

	metrics.QueueCapacity.Set(float64(cap(p.invocationChan)))

	p.httpServer = &http.Server{
		Addr:         p.cfg.HTTP.Addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// enqueue hands an invocation to the runner without blocking the source
func (p *Processor) enqueue(source string, inv *models.Invocation) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		metrics.InvocationsEnqueued.WithLabelValues(source, "rejected").Inc()
		return false
	}

	select {
	case p.invocationChan <- inv:
		metrics.InvocationsEnqueued.WithLabelValues(source, "accepted").Inc()
		return true
	default:
		metrics.InvocationsEnqueued.WithLabelValues(source, "rejected").Inc()
		log := logger.WithComponent("processor")
		log.Warn().
			Str("source", source).
			Str("agent_id", inv.AgentID).
			Msg("invocation queue full, dropping")
		return false
	}
}

// schedule queues a scheduled invocation every interval
func (p *Processor) schedule(ctx context.Context) {
	log := logger.WithComponent("scheduler")
	if p.cfg.Schedule.AgentID == "" {
		log.Warn().Msg("schedule interval set without agent_id; scheduler disabled")
		return
	}

	ticker := time.NewTicker(p.cfg.Schedule.Interval)
	defer ticker.Stop()

	log.Info().
		Dur("interval", p.cfg.Schedule.Interval).
		Str("agent_id", p.cfg.Schedule.AgentID).
		Msg("scheduler started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.enqueue("schedule", models.NewInvocation(p.cfg.Schedule.AgentID, nil))
		}
	}
}

// abort unwinds a partially started processor
func (p *Processor) abort() {
	if p.consumer != nil {
		p.consumer.Stop()
	}
	p.runner.Stop()
	if p.producer != nil {
		p.producer.Close()
	}
	p.store.Close()
}

// shutdown performs graceful shutdown
func (p *Processor) shutdown() error {
	log := logger.WithComponent("processor")
	log.Info().Msg("initiating graceful shutdown")

	// 1. Stop accepting new HTTP requests
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	log.Info().Msg("stopping HTTP server")
	if err := p.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop the other sources
	if p.subscriber != nil {
		log.Info().Msg("draining nats subscription")
		p.subscriber.Close()
	}
	if p.consumer != nil {
		log.Info().Msg("closing kafka consumer")
		if err := p.consumer.Stop(); err != nil {
			log.Error().Err(err).Msg("kafka consumer close error")
		}
	}

	// 3. Wait for every sender before closing the queue
	p.wg.Wait()
	log.Info().Msg("closing invocation channel")
	p.mu.Lock()
	p.closed = true
	close(p.invocationChan)
	p.mu.Unlock()

	// 4. Let queued invocations finish (with timeout)
	done := make(chan struct{})
	go func() {
		p.runner.Drain()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("runner drained gracefully")
	case <-time.After(15 * time.Second):
		log.Warn().Msg("runner drain timeout - cancelling in-flight invocation")
		p.runner.Stop()
	}

	// 5. Close producer and store
	if p.producer != nil {
		log.Info().Msg("closing kafka producer")
		if err := p.producer.Close(); err != nil {
			log.Error().Err(err).Msg("producer close error")
		}
	}
	if err := p.store.Close(); err != nil {
		log.Error().Err(err).Msg("tag store close error")
	}

	log.Info().Msg("processor stopped gracefully")
	return nil
}

// reportStats periodically logs statistics
func (p *Processor) reportStats(ctx context.Context) {
	log := logger.WithComponent("processor")
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := p.collectStats()
			metrics.QueueSize.Set(float64(stats.Queue.Buffered))

			log.Info().
				Uint64("invocations_processed", stats.Runner.Processed).
				Uint64("invocations_failed", stats.Runner.Failed).
				Uint64("alerts_published", stats.Producer.MessagesSent).
				Uint64("kafka_consumed", stats.Consumer.Consumed).
				Int("queue_size", stats.Queue.Buffered).
				Msg("stats")
		}
	}
}

// Stats is the /stats response body.
type Stats struct {
	Runner   worker.Stats        `json:"runner"`
	Producer kafka.ProducerStats `json:"producer"`
	Consumer kafka.ConsumerStats `json:"consumer"`
	Queue    QueueStats          `json:"queue"`
}

// QueueStats describes the invocation channel.
type QueueStats struct {
	Buffered int `json:"buffered"`
	Capacity int `json:"capacity"`
}

func (p *Processor) collectStats() Stats {
	s := Stats{
		Runner: p.runner.Stats(),
		Queue: QueueStats{
			Buffered: len(p.invocationChan),
			Capacity: cap(p.invocationChan),
		},
	}
	if p.producer != nil {
		s.Producer = p.producer.Stats()
	}
	if p.consumer != nil {
		s.Consumer = p.consumer.Stats()
	}
	return s
}

// healthHandler handles health check requests
func (p *Processor) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := p.store.Ping(ctx); err != nil {
		http.Error(w, fmt.Sprintf("unhealthy: tag store: %v", err), http.StatusServiceUnavailable)
		return
	}
	if p.producer != nil {
		if err := p.producer.HealthCheck(ctx); err != nil {
			http.Error(w, fmt.Sprintf("unhealthy: producer: %v", err), http.StatusServiceUnavailable)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":"%s"}`, time.Now().Format(time.RFC3339))
}

// statsHandler returns current statistics
func (p *Processor) statsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(p.collectStats())
}

// tagsHandler returns the tags stored for ?agent_id=.
func (p *Processor) tagsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	agentID := r.URL.Query().Get("agent_id")
	if agentID == "" {
		http.Error(w, "agent_id is required", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	snap, err := p.handler.tags.Snapshot(ctx, agentID)
	if err != nil {
		http.Error(w, fmt.Sprintf("tag store: %v", err), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snap)
}
