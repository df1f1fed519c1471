package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	volcanion "github.com/rickymta/volcanion-auth"
)

func TestParseFlags(t *testing.T) {
	opts, err := parseFlags([]string{"-c", "auth.yaml", "--redis", "r1:6379,r2:6379", "--migrate", "--maintenance-interval", "5m"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if opts.configPath != "auth.yaml" || !opts.migrate || opts.maintenance != 5*time.Minute {
		t.Fatalf("unexpected options: %+v", opts)
	}
	if len(opts.redisAddrs) != 2 || opts.redisAddrs[1] != "r2:6379" {
		t.Fatalf("unexpected redis addrs: %v", opts.redisAddrs)
	}

	if _, err := parseFlags([]string{"extra"}); err == nil {
		t.Fatalf("expected error for positional argument")
	}
}

func TestLoadConfigAppliesOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.yaml")
	yaml := `
token:
  access:
    key: access-secret-access-secret-0123456789
  refresh:
    key: refresh-secret-refresh-secret-0123456789
database:
  dsn: postgres://file
redis:
  addrs: ["file:6379"]
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := loadConfig(options{configPath: path, addr: ":9999", dsn: "postgres://flag"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":9999" || cfg.Database.DSN != "postgres://flag" {
		t.Fatalf("flags not applied: %+v %+v", cfg.Server, cfg.Database)
	}
	if len(cfg.Redis.Addrs) != 1 || cfg.Redis.Addrs[0] != "file:6379" {
		t.Fatalf("expected redis from file, got %v", cfg.Redis.Addrs)
	}
}

func TestLoadConfigRequiresBackends(t *testing.T) {
	if _, err := loadConfig(options{}); err == nil {
		t.Fatalf("expected error without dsn")
	}
	if _, err := loadConfig(options{dsn: "postgres://x"}); err == nil {
		t.Fatalf("expected error without redis")
	}
}

type countingMaintainer struct {
	calls atomic.Int32
}

func (m *countingMaintainer) RunMaintenance(context.Context) (volcanion.MaintenanceReport, error) {
	m.calls.Add(1)
	return volcanion.MaintenanceReport{}, errors.New("partial")
}

func TestRunMaintenanceTicksUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := &countingMaintainer{}
	done := make(chan struct{})
	go func() {
		runMaintenance(ctx, m, 5*time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)))
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for m.calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
	if m.calls.Load() < 2 {
		t.Fatalf("expected at least two maintenance runs, got %d", m.calls.Load())
	}
}
