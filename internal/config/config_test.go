package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	tests := []struct {
		name   string
		check  func(*Config) bool
		expect string
	}{
		{
			name:   "default host is 0.0.0.0",
			check:  func(c *Config) bool { return c.Host == "0.0.0.0" },
			expect: "0.0.0.0",
		},
		{
			name:   "default port is 8080",
			check:  func(c *Config) bool { return c.Port == 8080 },
			expect: "8080",
		},
		{
			name:   "default log level is info",
			check:  func(c *Config) bool { return c.LogLevel == "info" },
			expect: "info",
		},
		{
			name:   "default log format is json",
			check:  func(c *Config) bool { return c.LogFormat == "json" },
			expect: "json",
		},
		{
			name:   "default metrics path",
			check:  func(c *Config) bool { return c.MetricsPath == "/metrics" },
			expect: "/metrics",
		},
		{
			name:   "listen addr format",
			check:  func(c *Config) bool { return c.ListenAddr() == "0.0.0.0:8080" },
			expect: "0.0.0.0:8080",
		},
		{
			name:   "default monitor cache ttl is 30m",
			check:  func(c *Config) bool { return c.MonitorCacheTTL == 30*time.Minute },
			expect: "30m",
		},
		{
			name:   "default trigger cache ttl is 1h",
			check:  func(c *Config) bool { return c.TriggerCacheTTL == time.Hour },
			expect: "1h",
		},
		{
			name:   "default network cache ttl is 1h",
			check:  func(c *Config) bool { return c.NetworkCacheTTL == time.Hour },
			expect: "1h",
		},
		{
			name:   "default active set ttl is 1h",
			check:  func(c *Config) bool { return c.ActiveSetTTL == time.Hour },
			expect: "1h",
		},
		{
			name:   "default rpc probe timeout is 5s",
			check:  func(c *Config) bool { return c.RPCProbeTimeout == 5*time.Second },
			expect: "5s",
		},
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.check(cfg) {
				t.Errorf("expected %s", tt.expect)
			}
		})
	}
}

func TestPlatformTenantID(t *testing.T) {
	if PlatformTenantID.String() != "11111111-1111-1111-1111-111111111111" {
		t.Errorf("unexpected platform tenant id: %s", PlatformTenantID)
	}
}
