package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "broker:\n  host: broker.local\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Broker.Host != "broker.local" {
		t.Errorf("Broker.Host = %q", cfg.Broker.Host)
	}
	if cfg.Broker.Port != 1883 {
		t.Errorf("Broker.Port = %d, want default 1883", cfg.Broker.Port)
	}
	if cfg.Storage.BatchSize != 100 {
		t.Errorf("Storage.BatchSize = %d, want default 100", cfg.Storage.BatchSize)
	}
	if cfg.Normalizer.SmartHeartbeat.StaggerDelayMs != 500 {
		t.Errorf("StaggerDelayMs = %d, want default 500", cfg.Normalizer.SmartHeartbeat.StaggerDelayMs)
	}
	if cfg.Broker.Topics.FamilyBUpload != "BUpload" {
		t.Errorf("FamilyBUpload = %q", cfg.Broker.Topics.FamilyBUpload)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("RACKBRIDGE_BROKER_HOST", "from-env")
	t.Setenv("RACKBRIDGE_BROKER_PASSWORD", "env-secret")

	cfg, err := Load(writeConfig(t, "broker:\n  host: from-file\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Broker.Host != "from-env" {
		t.Errorf("Broker.Host = %q, want env override", cfg.Broker.Host)
	}
	if cfg.Broker.Auth.Password != "env-secret" {
		t.Errorf("Broker.Auth.Password = %q", cfg.Broker.Auth.Password)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load() of missing file succeeded")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:    "qos out of range",
			mutate:  func(c *Config) { c.Broker.QoS = 3 },
			wantErr: "broker.qos",
		},
		{
			name:    "push port collides with api port",
			mutate:  func(c *Config) { c.PushStream.Port = c.APIServer.Port },
			wantErr: "pushStream.port",
		},
		{
			name:    "topic root with wildcard",
			mutate:  func(c *Config) { c.Broker.Topics.FamilyJUpload = "JUpload/#" },
			wantErr: "family_j_upload",
		},
		{
			name:    "empty topic root",
			mutate:  func(c *Config) { c.Broker.Topics.FamilyBDownload = "" },
			wantErr: "family_b_download",
		},
		{
			name:    "zero workers",
			mutate:  func(c *Config) { c.Normalizer.Workers = 0 },
			wantErr: "normalizer.workers",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestRedacted(t *testing.T) {
	cfg := Default()
	cfg.Broker.Auth.Password = "hunter2"
	cfg.TSDB.Token = "token-abc"

	out := cfg.Redacted()
	if out.Broker.Auth.Password != Redacted || out.TSDB.Token != Redacted {
		t.Errorf("Redacted() = %q / %q", out.Broker.Auth.Password, out.TSDB.Token)
	}
	if cfg.Broker.Auth.Password != "hunter2" {
		t.Error("Redacted() mutated the original config")
	}
}
