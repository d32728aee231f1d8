package main

import (
	"io"
	"log/slog"
	"testing"

	"sweeprun/internal/config"
	"sweeprun/internal/notify"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewNotifierFallsBackToNoOp(t *testing.T) {
	tests := []struct {
		name string
		bark config.BarkConfig
	}{
		{"disabled", config.BarkConfig{URL: "https://bark.example/key", Enabled: false}},
		{"no url", config.BarkConfig{Enabled: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{Notification: config.NotificationConfig{Bark: tt.bark}}
			if _, ok := newNotifier(cfg, discardLogger()).(*notify.NoOpNotifier); !ok {
				t.Error("want the no-op notifier when bark is not configured")
			}
		})
	}
}

func TestNewNotifierUsesBarkWhenConfigured(t *testing.T) {
	cfg := &config.Config{Notification: config.NotificationConfig{
		Bark: config.BarkConfig{URL: "https://bark.example/key", Enabled: true},
	}}
	if _, ok := newNotifier(cfg, discardLogger()).(*notify.BarkNotifier); !ok {
		t.Error("want the bark notifier when configured")
	}
}
