package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"whatsapp-processor/internal/logger"
	"whatsapp-processor/internal/metrics"
)

const (
	DefaultAPIURL  = "https://graph.facebook.com/v18.0"
	DefaultTimeout = 30 * time.Second

	// maxErrorBody bounds how much of a failed response is kept for logs.
	maxErrorBody = 4096
)

var ErrEmptyRecipient = errors.New("recipient cannot be empty")

// StatusError is returned for non-2xx API responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("whatsapp api returned HTTP %d: %s", e.StatusCode, e.Body)
}

// Config holds the Business API credentials for one sender number.
type Config struct {
	APIURL        string
	PhoneNumberID string
	AccessToken   string
	Timeout       time.Duration
	HTTPClient    *http.Client
}

// Client sends text messages through the WhatsApp Business API.
type Client struct {
	endpoint    string
	accessToken string
	timeout     time.Duration
	httpClient  *http.Client
}

// NewClient builds a client for cfg.
func NewClient(cfg Config) *Client {
	apiURL := strings.TrimSuffix(strings.TrimSpace(cfg.APIURL), "/")
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Client{
		endpoint:    fmt.Sprintf("%s/%s/messages", apiURL, cfg.PhoneNumberID),
		accessToken: cfg.AccessToken,
		timeout:     cfg.Timeout,
		httpClient:  httpClient,
	}
}

type textBody struct {
	Body string `json:"body"`
}

type messageRequest struct {
	MessagingProduct string   `json:"messaging_product"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             textBody `json:"text"`
}

// Send makes exactly one API call delivering body to recipient.
func (c *Client) Send(ctx context.Context, recipient, body string) error {
	to := wireNumber(recipient)
	if to == "" {
		return ErrEmptyRecipient
	}

	payload, err := json.Marshal(messageRequest{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             textBody{Body: body},
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post message: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	return nil
}

// Failure is a recipient that could not be reached.
type Failure struct {
	Recipient string
	Err       error
}

// Result summarises one Dispatch call.
type Result struct {
	Sent     int
	Failures []Failure
}

// Dispatch sends body to every recipient once. A failed recipient is
// recorded and the remaining ones are still attempted.
func (c *Client) Dispatch(ctx context.Context, body string, recipients []string) Result {
	log := logger.WithComponent("whatsapp")
	var res Result

	for _, recipient := range recipients {
		start := time.Now()
		err := c.Send(ctx, recipient, body)
		duration := time.Since(start)
		metrics.DispatchDuration.Observe(duration.Seconds())

		if err != nil {
			log.Error().
				Err(err).
				Str("recipient", recipient).
				Dur("duration", duration).
				Msg("failed to send whatsapp message")
			metrics.DispatchTotal.WithLabelValues("failed").Inc()
			res.Failures = append(res.Failures, Failure{Recipient: recipient, Err: err})
			continue
		}

		log.Info().
			Str("recipient", recipient).
			Dur("duration", duration).
			Msg("whatsapp message sent")
		metrics.DispatchTotal.WithLabelValues("sent").Inc()
		res.Sent++
	}

	return res
}
