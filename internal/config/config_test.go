package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dbbouncer/mysqlcore/internal/pool"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesListenDefaults(t *testing.T) {
	path := writeTempConfig(t, `
server:
  host: 127.0.0.1
  port: 3306
  username: root
`)
	f, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if f.Listen.APIPort != 8080 {
		t.Errorf("api_port = %d, want 8080", f.Listen.APIPort)
	}
	if f.Listen.APIBind != "127.0.0.1" {
		t.Errorf("api_bind = %q, want 127.0.0.1", f.Listen.APIBind)
	}
}

func TestLoadSubstitutesEnvVars(t *testing.T) {
	os.Setenv("MYSQLCORE_TEST_PASSWORD", "hunter2")
	defer os.Unsetenv("MYSQLCORE_TEST_PASSWORD")

	path := writeTempConfig(t, `
server:
  host: 127.0.0.1
  port: 3306
  username: root
  password: ${MYSQLCORE_TEST_PASSWORD}
`)
	f, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if f.Server.Password != "hunter2" {
		t.Errorf("password = %q, want hunter2", f.Server.Password)
	}
}

func TestServerConfigEffectiveOverrides(t *testing.T) {
	defaults := Defaults{
		InitialSize:    2,
		MaxSize:        10,
		ConnectTimeout: time.Second,
	}
	var override int = 5
	s := ServerConfig{MaxSize: &override}

	if got := s.EffectiveInitialSize(defaults); got != 2 {
		t.Errorf("initial_size = %d, want 2 (from defaults)", got)
	}
	if got := s.EffectiveMaxSize(defaults); got != 5 {
		t.Errorf("max_size = %d, want 5 (overridden)", got)
	}
	if got := s.EffectiveConnectTimeout(defaults); got != time.Second {
		t.Errorf("connect_timeout = %v, want 1s (from defaults)", got)
	}
}

func TestServerConfigRedacted(t *testing.T) {
	s := ServerConfig{Password: "secret"}
	r := s.Redacted()
	if r.Password == "secret" {
		t.Fatal("Redacted left the password in place")
	}
	if s.Password != "secret" {
		t.Fatal("Redacted mutated the receiver")
	}
}

func TestPoolConfigRejectsUnknownSSLMode(t *testing.T) {
	f := File{Server: ServerConfig{Host: "127.0.0.1", Port: 3306, SSL: "bogus"}}
	if _, err := f.PoolConfig(); err == nil {
		t.Fatal("expected an error for an unrecognized ssl mode")
	}
}

func TestPoolConfigAppliesDefaultsAndValidates(t *testing.T) {
	f := File{
		Defaults: Defaults{InitialSize: 1, MaxSize: 4},
		Server:   ServerConfig{Host: "127.0.0.1", Port: 3306, Username: "root"},
	}
	cfg, err := f.PoolConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.EffectiveMaxSize() != 4 {
		t.Errorf("max_size = %d, want 4", cfg.EffectiveMaxSize())
	}
	if cfg.SSL != pool.SSLEnable {
		t.Errorf("ssl mode = %v, want SSLEnable (the default for an unset ssl field)", cfg.SSL)
	}
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := writeTempConfig(t, "server:\n  host: 127.0.0.1\n  port: 3306\n")

	reloaded := make(chan *File, 1)
	w, err := NewWatcher(path, func(f *File) { reloaded <- f })
	if err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte("server:\n  host: 127.0.0.1\n  port: 3307\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case f := <-reloaded:
		if f.Server.Port != 3307 {
			t.Errorf("reloaded port = %d, want 3307", f.Server.Port)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reload callback")
	}
}
