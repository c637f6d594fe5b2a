package config_test

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"whatsapp-processor/internal/alerts"
	"whatsapp-processor/internal/config"
)

func validProcessor() config.ProcessorConfig {
	cfg := config.DefaultProcessor()
	cfg.WhatsAppPhoneNumberID = "555"
	cfg.WhatsAppAccessToken = "token"
	cfg.RecipientPhoneNumbers = "+1234567890"
	cfg.Thresholds = []alerts.Rule{
		{TagName: "temperature", Operator: alerts.OpGreater, ThresholdValue: 35, CooldownMinutes: 15},
	}
	return cfg
}

func TestProcessorConfig_Validate(t *testing.T) {
	if err := validProcessor().Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*config.ProcessorConfig)
		want   string
	}{
		{"api url", func(c *config.ProcessorConfig) { c.WhatsAppAPIURL = " " }, "whatsapp_api_url"},
		{"phone id", func(c *config.ProcessorConfig) { c.WhatsAppPhoneNumberID = "" }, "whatsapp_phone_number_id"},
		{"token", func(c *config.ProcessorConfig) { c.WhatsAppAccessToken = "" }, "whatsapp_access_token"},
		{"recipients", func(c *config.ProcessorConfig) { c.RecipientPhoneNumbers = " , " }, "recipient_phone_numbers"},
		{"operator", func(c *config.ProcessorConfig) { c.Thresholds[0].Operator = "=<" }, "thresholds[0]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validProcessor()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if !errors.Is(err, config.ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestProcessorConfig_ValidateReportsAll(t *testing.T) {
	err := config.DefaultProcessor().Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, key := range []string{"whatsapp_phone_number_id", "whatsapp_access_token", "recipient_phone_numbers"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error %q does not mention %q", err, key)
		}
	}
}

func TestProcessorConfig_Overlay(t *testing.T) {
	base := validProcessor()
	base.Thresholds = append(base.Thresholds, alerts.Rule{TagName: "humidity", Operator: alerts.OpLess, ThresholdValue: 10})

	raw := json.RawMessage(`{
		"enabled": false,
		"recipient_phone_numbers": "+1, +2",
		"thresholds": [{"tag_name": "battery", "operator": "<", "threshold_value": 20}]
	}`)

	got, err := base.Overlay(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.Enabled {
		t.Error("enabled should be overridden")
	}
	if len(got.Recipients()) != 2 {
		t.Errorf("recipients = %v", got.Recipients())
	}
	if got.WhatsAppAccessToken != "token" {
		t.Errorf("keys absent from the overlay must be kept, got %q", got.WhatsAppAccessToken)
	}
	if len(got.Thresholds) != 1 || got.Thresholds[0].TagName != "battery" {
		t.Fatalf("thresholds should be replaced, got %+v", got.Thresholds)
	}
	if got.Thresholds[0].CooldownMinutes != alerts.DefaultCooldownMinutes {
		t.Errorf("rule defaults not applied: %+v", got.Thresholds[0])
	}

	if len(base.Thresholds) != 2 || !base.Enabled {
		t.Errorf("base config mutated: %+v", base)
	}
}

func TestProcessorConfig_OverlayKeepsThresholds(t *testing.T) {
	base := validProcessor()

	got, err := base.Overlay(json.RawMessage(`{"default_message_prefix": "[Ops]"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Thresholds) != 1 || got.DefaultMessagePrefix != "[Ops]" {
		t.Errorf("unexpected overlay result: %+v", got)
	}

	got, err = base.Overlay(nil)
	if err != nil || len(got.Thresholds) != 1 {
		t.Errorf("empty overlay should be a copy, got %+v (%v)", got, err)
	}
}

func TestProcessorConfig_OverlayInvalid(t *testing.T) {
	for _, raw := range []string{`[1,2]`, `{"enabled": "yes"}`, `{"thresholds": {}}`} {
		if _, err := validProcessor().Overlay(json.RawMessage(raw)); !errors.Is(err, config.ErrInvalidConfig) {
			t.Errorf("%s: expected ErrInvalidConfig, got %v", raw, err)
		}
	}
}
