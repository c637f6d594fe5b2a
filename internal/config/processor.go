package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"whatsapp-processor/internal/alerts"
	"whatsapp-processor/internal/whatsapp"
)

const DefaultMessagePrefix = "[Doover Alert]"

// ErrInvalidConfig wraps every processor configuration problem.
var ErrInvalidConfig = errors.New("invalid processor configuration")

// ProcessorConfig is the package configuration an invocation runs with.
// Keys match the platform's package_config document.
type ProcessorConfig struct {
	WhatsAppAPIURL        string        `json:"whatsapp_api_url" yaml:"whatsapp_api_url"`
	WhatsAppPhoneNumberID string        `json:"whatsapp_phone_number_id" yaml:"whatsapp_phone_number_id"`
	WhatsAppAccessToken   string        `json:"whatsapp_access_token" yaml:"whatsapp_access_token"`
	RecipientPhoneNumbers string        `json:"recipient_phone_numbers" yaml:"recipient_phone_numbers"`
	Thresholds            []alerts.Rule `json:"thresholds" yaml:"thresholds"`
	Enabled               bool          `json:"enabled" yaml:"enabled"`
	DefaultMessagePrefix  string        `json:"default_message_prefix" yaml:"default_message_prefix"`
}

// DefaultProcessor returns the package config defaults.
func DefaultProcessor() ProcessorConfig {
	return ProcessorConfig{
		WhatsAppAPIURL:       whatsapp.DefaultAPIURL,
		Enabled:              true,
		DefaultMessagePrefix: DefaultMessagePrefix,
	}
}

// Recipients returns the parsed recipient list.
func (c ProcessorConfig) Recipients() []string {
	return whatsapp.ParseRecipients(c.RecipientPhoneNumbers)
}

// Overlay returns a copy of c with the keys present in raw replaced.
// Thresholds are replaced wholesale, never merged element by element.
func (c ProcessorConfig) Overlay(raw json.RawMessage) (ProcessorConfig, error) {
	out := c
	out.Thresholds = append([]alerts.Rule(nil), c.Thresholds...)
	if len(raw) == 0 {
		return out, nil
	}

	var keys map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keys); err != nil {
		return c, fmt.Errorf("%w: package_config: %v", ErrInvalidConfig, err)
	}
	if _, ok := keys["thresholds"]; ok {
		out.Thresholds = nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return c, fmt.Errorf("%w: package_config: %v", ErrInvalidConfig, err)
	}
	return out, nil
}

// Validate reports every problem that would stop an enabled processor
// from dispatching.
func (c ProcessorConfig) Validate() error {
	var problems []string

	if strings.TrimSpace(c.WhatsAppAPIURL) == "" {
		problems = append(problems, "whatsapp_api_url is required")
	}
	if strings.TrimSpace(c.WhatsAppPhoneNumberID) == "" {
		problems = append(problems, "whatsapp_phone_number_id is required")
	}
	if strings.TrimSpace(c.WhatsAppAccessToken) == "" {
		problems = append(problems, "whatsapp_access_token is required")
	}
	if len(c.Recipients()) == 0 {
		problems = append(problems, "recipient_phone_numbers is required")
	}
	for i, rule := range c.Thresholds {
		if err := rule.Validate(); err != nil {
			problems = append(problems, fmt.Sprintf("thresholds[%d]: %v", i, err))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}
