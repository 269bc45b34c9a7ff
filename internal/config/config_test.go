package config

import (
	"flag"
	"io"
	"os"
	"testing"
	"time"
)

func loadWithArgs(t *testing.T, args ...string) *Config {
	t.Helper()

	if len(args) == 0 {
		args = []string{"test"}
	}

	oldCommandLine := flag.CommandLine
	oldArgs := os.Args

	flag.CommandLine = flag.NewFlagSet(args[0], flag.ContinueOnError)
	flag.CommandLine.SetOutput(io.Discard)
	os.Args = args

	t.Cleanup(func() {
		flag.CommandLine = oldCommandLine
		os.Args = oldArgs
	})

	return Load()
}

func TestLoad_Defaults(t *testing.T) {
	cfg := loadWithArgs(t, "test")

	if cfg.Server.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, ":8080")
	}
	if cfg.Cache.Backend != "memory" {
		t.Errorf("Cache.Backend = %q, want %q", cfg.Cache.Backend, "memory")
	}
	if cfg.Backup.AckDelay != 2*time.Second {
		t.Errorf("Backup.AckDelay = %v, want 2s", cfg.Backup.AckDelay)
	}
	if cfg.Database.Database != "eeprom_marlin" {
		t.Errorf("Database.Database = %q, want %q", cfg.Database.Database, "eeprom_marlin")
	}
}

func TestLoad_AckDelay_FromEnv(t *testing.T) {
	t.Setenv("ACK_DELAY", "500ms")
	cfg := loadWithArgs(t, "test")
	if cfg.Backup.AckDelay != 500*time.Millisecond {
		t.Fatalf("expected AckDelay=500ms from env, got %v", cfg.Backup.AckDelay)
	}
}

func TestLoad_AckDelay_FromFlag(t *testing.T) {
	t.Setenv("ACK_DELAY", "")
	cfg := loadWithArgs(t, "test", "-ack-delay", "3s")
	if cfg.Backup.AckDelay != 3*time.Second {
		t.Fatalf("expected AckDelay=3s from flag, got %v", cfg.Backup.AckDelay)
	}
}

func TestLoad_BackupFolder_FromEnv(t *testing.T) {
	t.Setenv("BACKUP_FOLDER", "/var/lib/eeprom")
	cfg := loadWithArgs(t, "test")
	if cfg.Backup.Folder != "/var/lib/eeprom" {
		t.Fatalf("expected Backup.Folder from env, got %q", cfg.Backup.Folder)
	}
}

func TestLoad_AuthDefaults(t *testing.T) {
	t.Setenv("AUTH_ADMIN_USER", "")
	t.Setenv("AUTH_ACCESS_TOKEN_TTL", "")
	cfg := loadWithArgs(t, "test")
	if cfg.Auth.AdminUser != "admin" {
		t.Errorf("Auth.AdminUser = %q, want %q", cfg.Auth.AdminUser, "admin")
	}
	if cfg.Auth.AccessTokenTTL != 15*time.Minute {
		t.Errorf("Auth.AccessTokenTTL = %v, want 15m", cfg.Auth.AccessTokenTTL)
	}
}

func TestLoad_AuthTTL_FromEnv(t *testing.T) {
	t.Setenv("AUTH_ACCESS_TOKEN_TTL", "1h")
	cfg := loadWithArgs(t, "test")
	if cfg.Auth.AccessTokenTTL != time.Hour {
		t.Fatalf("expected AccessTokenTTL=1h from env, got %v", cfg.Auth.AccessTokenTTL)
	}
}
