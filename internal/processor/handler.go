package processor

import (
	"context"
	"errors"
	"net/http"
	"time"

	"whatsapp-processor/internal/alerts"
	"whatsapp-processor/internal/config"
	"whatsapp-processor/internal/logger"
	"whatsapp-processor/internal/metrics"
	"whatsapp-processor/internal/models"
	"whatsapp-processor/internal/state"
	"whatsapp-processor/internal/whatsapp"
)

// AlertPublisher receives a record of every fired rule. It is optional.
type AlertPublisher interface {
	PublishAlert(ctx context.Context, event *models.AlertEvent) error
}

// HandlerConfig wires a Handler.
type HandlerConfig struct {
	Processor       config.ProcessorConfig
	Tags            *state.TagStore
	Publisher       AlertPublisher
	DispatchTimeout time.Duration
	PersistTimeout  time.Duration
	HTTPClient      *http.Client
	Now             func() time.Time
}

// defaultPersistTimeout bounds each tag write. Writes never share the
// invocation deadline.
const defaultPersistTimeout = 5 * time.Second

// Handler runs single invocations: evaluate, render, dispatch, persist.
// Callers must not run two invocations for the same agent concurrently.
type Handler struct {
	base            config.ProcessorConfig
	tags            *state.TagStore
	publisher       AlertPublisher
	dispatchTimeout time.Duration
	persistTimeout  time.Duration
	httpClient      *http.Client
	now             func() time.Time
}

// Result summarises one invocation.
type Result struct {
	InvocationID string
	Trigger      models.Trigger
	Disabled     bool
	Fired        int
	Sent         int
	Failed       int
}

func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Tags == nil {
		cfg.Tags = state.NewTagStore(state.NewMemoryStore(), "")
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = defaultPersistTimeout
	}
	return &Handler{
		base:            cfg.Processor,
		tags:            cfg.Tags,
		publisher:       cfg.Publisher,
		dispatchTimeout: cfg.DispatchTimeout,
		persistTimeout:  cfg.PersistTimeout,
		httpClient:      cfg.HTTPClient,
		now:             cfg.Now,
	}
}

// Handle satisfies worker.Invoker.
func (h *Handler) Handle(ctx context.Context, inv *models.Invocation) error {
	_, err := h.Invoke(ctx, inv)
	return err
}

// Invoke processes one invocation. Configuration problems are returned
// before any tag is read or written; everything after that is logged and
// the invocation always records last_scheduled_run.
func (h *Handler) Invoke(ctx context.Context, inv *models.Invocation) (Result, error) {
	log := logger.WithInvocation(inv.ID, inv.AgentID)
	start := time.Now()
	defer func() { metrics.InvocationDuration.Observe(time.Since(start).Seconds()) }()

	res := Result{InvocationID: inv.ID, Trigger: inv.Trigger}

	cfg, err := h.base.Overlay(inv.PackageConfig)
	if err != nil {
		metrics.InvocationsTotal.WithLabelValues(string(inv.Trigger), "config_error").Inc()
		return res, err
	}

	now := h.now().UTC()

	if !cfg.Enabled {
		log.Info().Msg("whatsapp alerts are disabled")
		res.Disabled = true
		h.recordRun(ctx, inv.AgentID, now)
		metrics.InvocationsTotal.WithLabelValues(string(inv.Trigger), "disabled").Inc()
		return res, nil
	}

	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("invocation rejected")
		metrics.InvocationsTotal.WithLabelValues(string(inv.Trigger), "config_error").Inc()
		return res, err
	}

	if inv.Message == nil {
		log.Info().Str("trigger", string(inv.Trigger)).Msg("no message to process")
	} else {
		h.process(ctx, inv, cfg, now, &res)
	}

	h.recordRun(ctx, inv.AgentID, now)
	metrics.InvocationsTotal.WithLabelValues(string(inv.Trigger), "completed").Inc()

	log.Info().
		Int("fired", res.Fired).
		Int("sent", res.Sent).
		Int("failed", res.Failed).
		Dur("duration", time.Since(start)).
		Msg("invocation completed")
	return res, nil
}

func (h *Handler) process(ctx context.Context, inv *models.Invocation, cfg config.ProcessorConfig, now time.Time, res *Result) {
	log := logger.WithInvocation(inv.ID, inv.AgentID)

	if len(cfg.Thresholds) == 0 {
		log.Debug().Msg("no thresholds configured")
		return
	}

	cooldowns, err := h.tags.Cooldowns(ctx, inv.AgentID)
	loaded := err == nil
	if !loaded {
		log.Warn().Err(err).Msg("failed to load cooldowns, assuming none")
	}

	fired, next := alerts.Evaluate(inv.Message.Data, cfg.Thresholds, cooldowns, now)
	res.Fired = len(fired)
	if len(fired) == 0 {
		return
	}

	client := whatsapp.NewClient(whatsapp.Config{
		APIURL:        cfg.WhatsAppAPIURL,
		PhoneNumberID: cfg.WhatsAppPhoneNumberID,
		AccessToken:   cfg.WhatsAppAccessToken,
		Timeout:       h.dispatchTimeout,
		HTTPClient:    h.httpClient,
	})
	recipients := cfg.Recipients()

	// Every send gets the full client timeout, however much of the
	// invocation deadline earlier sends used.
	sendCtx := context.WithoutCancel(ctx)

	for _, f := range fired {
		message := f.Message(inv.AgentID, cfg.DefaultMessagePrefix)
		out := client.Dispatch(sendCtx, message, recipients)
		res.Sent += out.Sent
		res.Failed += len(out.Failures)

		log.Info().
			Str("tag_name", f.Rule.TagName).
			Str("operator", f.Rule.Operator.String()).
			Float64("threshold", f.Rule.ThresholdValue).
			Float64("value", f.Value).
			Int("sent", out.Sent).
			Int("failed", len(out.Failures)).
			Msg("sent whatsapp alert for threshold violation")

		h.publish(ctx, &models.AlertEvent{
			InvocationID: inv.ID,
			AgentID:      inv.AgentID,
			RuleKey:      f.Key,
			TagName:      f.Rule.TagName,
			Operator:     f.Rule.Operator.String(),
			Threshold:    f.Rule.ThresholdValue,
			Value:        f.Value,
			Message:      message,
			Recipients:   len(recipients),
			Sent:         out.Sent,
			Failed:       len(out.Failures),
			FiredAt:      now,
		})
	}

	if res.Sent > 0 {
		h.recordSent(ctx, inv.AgentID, res.Sent, now)
	}

	h.persistCooldowns(ctx, inv.AgentID, fired, next, loaded)
}

// persistContext detaches tag writes from the invocation deadline.
func (h *Handler) persistContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), h.persistTimeout)
}

// persistCooldowns writes next. When the initial load failed, next only
// holds this run's keys, so they are merged into a fresh read instead of
// replacing the stored map.
func (h *Handler) persistCooldowns(ctx context.Context, agentID string, fired []alerts.Firing, next alerts.CooldownState, loaded bool) {
	log := logger.WithComponent("handler").With().Str("agent_id", agentID).Logger()
	pctx, cancel := h.persistContext(ctx)
	defer cancel()

	if !loaded {
		stored, err := h.tags.Cooldowns(pctx, agentID)
		switch {
		case errors.Is(err, state.ErrCorruptTag):
			log.Warn().Err(err).Msg("replacing unreadable cooldowns")
		case err != nil:
			log.Warn().Err(err).Msg("cooldowns still unavailable, leaving stored state untouched")
			return
		default:
			for _, f := range fired {
				stored[f.Key] = next[f.Key]
			}
			next = stored
		}
	}

	if err := h.tags.SetCooldowns(pctx, agentID, next); err != nil {
		log.Warn().Err(err).Msg("failed to persist cooldowns")
	}
}

func (h *Handler) recordSent(ctx context.Context, agentID string, sent int, now time.Time) {
	log := logger.WithComponent("handler").With().Str("agent_id", agentID).Logger()
	ctx, cancel := h.persistContext(ctx)
	defer cancel()

	// An unreadable counter is left alone rather than reset.
	if count, err := h.tags.MessagesSentCount(ctx, agentID); err != nil {
		log.Warn().Err(err).Msg("failed to read messages_sent_count")
	} else if err := h.tags.SetMessagesSentCount(ctx, agentID, count+int64(sent)); err != nil {
		log.Warn().Err(err).Msg("failed to persist messages_sent_count")
	}
	if err := h.tags.SetLastMessageSent(ctx, agentID, now); err != nil {
		log.Warn().Err(err).Msg("failed to persist last_message_sent")
	}
}

func (h *Handler) recordRun(ctx context.Context, agentID string, now time.Time) {
	ctx, cancel := h.persistContext(ctx)
	defer cancel()
	if err := h.tags.SetLastScheduledRun(ctx, agentID, now); err != nil {
		log := logger.WithComponent("handler")
		log.Warn().
			Err(err).
			Str("agent_id", agentID).
			Msg("failed to persist last_scheduled_run")
	}
}

func (h *Handler) publish(ctx context.Context, event *models.AlertEvent) {
	if h.publisher == nil {
		return
	}
	ctx, cancel := h.persistContext(ctx)
	defer cancel()
	if err := h.publisher.PublishAlert(ctx, event); err != nil {
		log := logger.WithComponent("handler")
		log.Warn().
			Err(err).
			Str("rule_key", event.RuleKey).
			Str("tag_name", event.TagName).
			Msg("failed to publish alert event")
	}
}
