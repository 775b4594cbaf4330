package config

import (
	"os"
	"testing"
	"time"
)

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		defaultVal string
		envValue   string
		want       string
	}{
		{
			name:       "environment variable exists",
			key:        "TEST_KEY_EXISTS",
			defaultVal: "default",
			envValue:   "custom_value",
			want:       "custom_value",
		},
		{
			name:       "environment variable does not exist",
			key:        "TEST_KEY_NOT_EXISTS",
			defaultVal: "default_value",
			envValue:   "",
			want:       "default_value",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			}

			got := getEnv(tt.key, tt.defaultVal)
			if got != tt.want {
				t.Errorf("getEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvAsFloat(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		defaultVal float64
		envValue   string
		want       float64
	}{
		{
			name:       "valid float",
			key:        "TEST_FLOAT_VALID",
			defaultVal: 0,
			envValue:   "0.05",
			want:       0.05,
		},
		{
			name:       "invalid float",
			key:        "TEST_FLOAT_INVALID",
			defaultVal: 1.5,
			envValue:   "not_a_number",
			want:       1.5,
		},
		{
			name:       "empty value",
			key:        "TEST_FLOAT_EMPTY",
			defaultVal: 2.5,
			envValue:   "",
			want:       2.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			}

			got := getEnvAsFloat(tt.key, tt.defaultVal)
			if got != tt.want {
				t.Errorf("getEnvAsFloat() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvAsDuration(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		defaultVal time.Duration
		envValue   string
		want       time.Duration
	}{
		{
			name:       "valid duration",
			key:        "TEST_DUR_VALID",
			defaultVal: time.Second,
			envValue:   "250ms",
			want:       250 * time.Millisecond,
		},
		{
			name:       "invalid duration",
			key:        "TEST_DUR_INVALID",
			defaultVal: 2 * time.Second,
			envValue:   "soon",
			want:       2 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			}

			got := getEnvAsDuration(tt.key, tt.defaultVal)
			if got != tt.want {
				t.Errorf("getEnvAsDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.HTTPPort == "" {
		t.Error("HTTPPort should have a default")
	}
	if cfg.MinBet <= 0 || cfg.MaxBet <= cfg.MinBet {
		t.Errorf("bet limits: min=%v max=%v", cfg.MinBet, cfg.MaxBet)
	}
	if cfg.FlushSettleDelay <= 0 || cfg.ReconcileCooldown <= 0 {
		t.Error("timing defaults must be positive")
	}
}
