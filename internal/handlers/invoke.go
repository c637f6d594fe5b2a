package handlers

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"

	"whatsapp-processor/internal/logger"
	"whatsapp-processor/internal/metrics"
	"whatsapp-processor/internal/models"
)

// InvokeHandler accepts platform events over HTTP and queues them as
// invocations.
type InvokeHandler struct {
	// Channel feeding the invocation runner
	invocationChan chan<- *models.Invocation

	// Max body size (default 1MB)
	maxBodySize int64
}

// InvokeConfig holds configuration for the invoke handler
type InvokeConfig struct {
	InvocationChan chan<- *models.Invocation
	MaxBodySize    int64
}

// NewInvokeHandler creates a new invoke handler
func NewInvokeHandler(cfg InvokeConfig) *InvokeHandler {
	maxBodySize := cfg.MaxBodySize
	if maxBodySize <= 0 {
		maxBodySize = 1 << 20
	}

	return &InvokeHandler{
		invocationChan: cfg.InvocationChan,
		maxBodySize:    maxBodySize,
	}
}

// InvokeResponse is the response returned to callers
type InvokeResponse struct {
	Success      bool   `json:"success"`
	InvocationID string `json:"invocation_id,omitempty"`
	Trigger      string `json:"trigger,omitempty"`
	Error        string `json:"error,omitempty"`
}

// ServeHTTP handles the invoke HTTP request
func (h *InvokeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Only accept POST
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	// Check content type
	if contentType := r.Header.Get("Content-Type"); contentType != "" {
		if mediaType, _, err := mime.ParseMediaType(contentType); err != nil || mediaType != "application/json" {
			h.writeError(w, http.StatusUnsupportedMediaType, "content-type must be application/json")
			return
		}
	}

	// Limit body size
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	inv, err := models.DecodeInvocation(body)
	if err != nil {
		metrics.InvocationsEnqueued.WithLabelValues("http", "rejected").Inc()
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Non-blocking send; a full queue is the caller's signal to back off
	select {
	case h.invocationChan <- inv:
		metrics.InvocationsEnqueued.WithLabelValues("http", "accepted").Inc()
	default:
		metrics.InvocationsEnqueued.WithLabelValues("http", "rejected").Inc()
		log := logger.WithRequestID(r.Header.Get("X-Request-ID"))
		log.Warn().
			Str("agent_id", inv.AgentID).
			Msg("invocation queue full")
		h.writeError(w, http.StatusServiceUnavailable, "invocation queue full, try again later")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(InvokeResponse{
		Success:      true,
		InvocationID: inv.ID,
		Trigger:      string(inv.Trigger),
	})
}

// writeError writes an error response
func (h *InvokeHandler) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(InvokeResponse{
		Success: false,
		Error:   message,
	})
}

