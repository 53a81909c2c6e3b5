package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"

	"github.com/ArielSltty/Orion/internal/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.LoggingConfig
		verbose bool
		want    zapcore.Level
		wantErr bool
	}{
		{"default", config.LoggingConfig{}, false, zapcore.InfoLevel, false},
		{"warn", config.LoggingConfig{Level: "warn"}, false, zapcore.WarnLevel, false},
		{"verbose overrides", config.LoggingConfig{Level: "error"}, true, zapcore.DebugLevel, false},
		{"development", config.LoggingConfig{Development: true, Level: "info"}, false, zapcore.InfoLevel, false},
		{"bad level", config.LoggingConfig{Level: "loud"}, false, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg, tt.verbose)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			if !logger.Core().Enabled(tt.want) {
				t.Errorf("level %s not enabled", tt.want)
			}
			if tt.want > zapcore.DebugLevel && logger.Core().Enabled(tt.want-1) {
				t.Errorf("level below %s enabled", tt.want)
			}
		})
	}
}
