package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dkeye/Tutor/internal/domain"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("TUTOR_MODE", "debug")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 8080 || cfg.Call.Capacity != 2 || cfg.Store.Driver != "memory" {
		t.Errorf("defaults %+v", cfg)
	}
	got := cfg.ActiveStatuses()
	if len(got) != 2 || got[0] != domain.BookingPending || got[1] != domain.BookingConfirmed {
		t.Errorf("active statuses %v", got)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.test.yaml")
	yaml := "port: 9000\nping_period: 5s\npong_wait: 10s\nstore:\n  driver: sqlite\n  dsn: /tmp/x.db\ncall:\n  strict_signaling: true\nbooking:\n  active_statuses: [confirmed]\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("TUTOR_PORT", "9100")
	t.Setenv("TUTOR_CALL_CAPACITY", "3")
	t.Setenv("TUTOR_SECRET", "cookie-secret-0123456789")
	t.Setenv("TUTOR_JWT_SECRET", "jwt-secret-0123456789")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 9100 {
		t.Errorf("env override: port %d", cfg.Port)
	}
	if cfg.Call.Capacity != 3 || !cfg.Call.StrictSignaling {
		t.Errorf("call %+v", cfg.Call)
	}
	if cfg.Store.Driver != "sqlite" || cfg.Store.DSN != "/tmp/x.db" || cfg.PingPeriod != 5*time.Second {
		t.Errorf("file values %+v", cfg)
	}
	if s := cfg.ActiveStatuses(); len(s) != 1 || s[0] != domain.BookingConfirmed {
		t.Errorf("statuses %v", s)
	}
}

func TestValidateRejects(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("call:\n  capacity: 1\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)
	if _, err := Load(); err == nil {
		t.Error("capacity 1 accepted")
	}
}

func TestReleaseRequiresSecrets(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("TUTOR_MODE", "release")

	cases := []struct {
		name   string
		secret string
		jwt    string
		ok     bool
	}{
		{"defaults", "", "", false},
		{"default jwt", "cookie-secret-0123456789", "change-me", false},
		{"short cookie", "short", "jwt-secret-0123456789", false},
		{"set", "cookie-secret-0123456789", "jwt-secret-0123456789", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.secret != "" {
				t.Setenv("TUTOR_SECRET", tc.secret)
			}
			if tc.jwt != "" {
				t.Setenv("TUTOR_JWT_SECRET", tc.jwt)
			}
			_, err := Load()
			if tc.ok && err != nil {
				t.Fatalf("rejected: %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatal("accepted forgeable secrets")
			}
		})
	}
}
