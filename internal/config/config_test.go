package config

import "testing"

func validConfig() *Config {
	return &Config{
		Host:               "0.0.0.0",
		Port:               3000,
		APIToken:           "secret",
		DB:                 DBConfig{Database: "sinkron"},
		MaxConnections:     10000,
		MergeWorkers:       8,
		CPURejectThreshold: 85.0,
		LogLevel:           "info",
		LogFormat:          "json",
	}
}

func TestValidateFillsDefaultsForHostAndPort(t *testing.T) {
	cfg := validConfig()
	cfg.Host = ""
	cfg.Port = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Host != "0.0.0.0" {
		t.Fatalf("Host = %q, want default", cfg.Host)
	}
	if cfg.Port != 3000 {
		t.Fatalf("Port = %d, want default 3000", cfg.Port)
	}
}

func TestValidateRequiresAPIToken(t *testing.T) {
	cfg := validConfig()
	cfg.APIToken = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing apiToken")
	}
}

func TestValidateRequiresDatabaseName(t *testing.T) {
	cfg := validConfig()
	cfg.DB.Database = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing db.database")
	}
}

func TestValidateRejectsBadLogLevel(t *testing.T) {
	cfg := validConfig()
	cfg.LogLevel = "verbose"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid log level")
	}
}

func TestValidateRejectsOutOfRangeCPUThreshold(t *testing.T) {
	cfg := validConfig()
	cfg.CPURejectThreshold = 150
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for out-of-range CPU reject threshold")
	}
}

func TestAddrFormatsHostAndPort(t *testing.T) {
	cfg := validConfig()
	if got, want := cfg.Addr(), "0.0.0.0:3000"; got != want {
		t.Fatalf("Addr() = %q, want %q", got, want)
	}
}
