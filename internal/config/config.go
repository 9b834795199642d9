// Package config loads the pool's YAML configuration file, with
// ${VAR_NAME} environment substitution and fsnotify-driven hot reload,
// following the same Effective*(defaults) override pattern the rest of
// this lineage uses for optional fields.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/dbbouncer/mysqlcore/internal/pool"
)

// File is the top-level configuration file shape.
type File struct {
	Listen   ListenConfig `yaml:"listen"`
	Defaults Defaults `yaml:"defaults"`
	Server   ServerConfig `yaml:"server"`
}

// ListenConfig defines where the pool's introspection HTTP server binds.
type ListenConfig struct {
	APIPort int `yaml:"api_port"`
	APIBind string `yaml:"api_bind"`
}

// Defaults carries fallback values for ServerConfig's optional fields.
type Defaults struct {
	InitialSize    int `yaml:"initial_size"`
	MaxSize        int `yaml:"max_size"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	RetryInterval  time.Duration `yaml:"retry_interval"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	PingTimeout    time.Duration `yaml:"ping_timeout"`
}

// ServerConfig is the YAML-tagged mirror of pool.Config, with
// every size/timeout field optional and overridable per Defaults.
type ServerConfig struct {
	Host     string `yaml:"host"`
	Port     int `yaml:"port"`
	UnixPath string `yaml:"unix_path"`

	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`

	SSL          string `yaml:"ssl"` // "disable", "enable", "require"
	MultiQueries bool `yaml:"multi_queries"`

	InitialBufferSize int `yaml:"initial_buffer_size"`
	MaxBufferSize     int `yaml:"max_buffer_size"`

	InitialSize *int `yaml:"initial_size,omitempty"`
	MaxSize     *int `yaml:"max_size,omitempty"`

	ConnectTimeout *time.Duration `yaml:"connect_timeout,omitempty"`
	RetryInterval  *time.Duration `yaml:"retry_interval,omitempty"`
	PingInterval   *time.Duration `yaml:"ping_interval,omitempty"`
	PingTimeout    *time.Duration `yaml:"ping_timeout,omitempty"`

	ThreadSafe bool `yaml:"thread_safe"`
}

// EffectiveInitialSize returns the configured initial_size or defaults'.
func (s ServerConfig) EffectiveInitialSize(d Defaults) int {
	if s.InitialSize != nil {
		return *s.InitialSize
	}
	return d.InitialSize
}

// EffectiveMaxSize returns the configured max_size or defaults'.
func (s ServerConfig) EffectiveMaxSize(d Defaults) int {
	if s.MaxSize != nil {
		return *s.MaxSize
	}
	return d.MaxSize
}

// EffectiveConnectTimeout returns the configured connect_timeout or defaults'.
func (s ServerConfig) EffectiveConnectTimeout(d Defaults) time.Duration {
	if s.ConnectTimeout != nil {
		return *s.ConnectTimeout
	}
	return d.ConnectTimeout
}

// EffectiveRetryInterval returns the configured retry_interval or defaults'.
func (s ServerConfig) EffectiveRetryInterval(d Defaults) time.Duration {
	if s.RetryInterval != nil {
		return *s.RetryInterval
	}
	return d.RetryInterval
}

// EffectivePingInterval returns the configured ping_interval or defaults'.
func (s ServerConfig) EffectivePingInterval(d Defaults) time.Duration {
	if s.PingInterval != nil {
		return *s.PingInterval
	}
	return d.PingInterval
}

// EffectivePingTimeout returns the configured ping_timeout or defaults'.
func (s ServerConfig) EffectivePingTimeout(d Defaults) time.Duration {
	if s.PingTimeout != nil {
		return *s.PingTimeout
	}
	return d.PingTimeout
}

// Redacted returns a copy with the password masked, for logging.
func (s ServerConfig) Redacted() ServerConfig {
	c := s
	if c.Password != "" {
		c.Password = "***REDACTED***"
	}
	return c
}

// PoolConfig builds a pool.Config from this file's server section and
// defaults.
func (f File) PoolConfig() (pool.Config, error) {
	s := f.Server
	var ssl pool.SSLMode
	switch s.SSL {
	case "", "enable":
		ssl = pool.SSLEnable
	case "disable":
		ssl = pool.SSLDisable
	case "require":
		ssl = pool.SSLRequire
	default:
		return pool.Config{}, fmt.Errorf("config: unknown ssl mode %q", s.SSL)
	}

	cfg := pool.Config{
		Address: pool.ServerAddress{
			Host: s.Host,
			Port: s.Port,
			UnixPath: s.UnixPath,
		},
		Username: s.Username,
		Password: s.Password,
		Database: s.Database,
		SSL: ssl,
		MultiQueries: s.MultiQueries,
		InitialBufferSize: s.InitialBufferSize,
		MaxBufferSize: s.MaxBufferSize,
		InitialSize: s.EffectiveInitialSize(f.Defaults),
		MaxSize: s.EffectiveMaxSize(f.Defaults),
		ConnectTimeout: s.EffectiveConnectTimeout(f.Defaults),
		RetryInterval: s.EffectiveRetryInterval(f.Defaults),
		PingInterval: s.EffectivePingInterval(f.Defaults),
		PingTimeout: s.EffectivePingTimeout(f.Defaults),
		ThreadSafe: s.ThreadSafe,
	}
	if err := cfg.Validate(); err != nil {
		return pool.Config{}, err
	}
	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

func substituteEnvVars(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := envVarPattern.FindSubmatch(match)[1]
		if val, ok := os.LookupEnv(string(varName)); ok {
			return []byte(val)
		}
		return match
	})
}

// Load reads and parses a YAML config file with env var substitution.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	data = substituteEnvVars(data)

	f := &File{}
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	applyListenDefaults(f)
	return f, nil
}

func applyListenDefaults(f *File) {
	if f.Listen.APIPort == 0 {
		f.Listen.APIPort = 8080
	}
	if f.Listen.APIBind == "" {
		f.Listen.APIBind = "127.0.0.1"
	}
}

// Watcher watches a config file for changes and calls the callback with
// the reloaded file.
type Watcher struct {
	path     string
	callback func(*File)
	watcher  *fsnotify.Watcher
	mu       sync.Mutex
	stopCh   chan struct{}
}

// NewWatcher creates a new config file watcher.
func NewWatcher(path string, callback func(*File)) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return nil, fmt.Errorf("watching config file: %w", err)
	}

	cw := &Watcher{
		path: path,
		callback: callback,
		watcher: w,
		stopCh: make(chan struct{}),
	}
	go cw.run()
	return cw, nil
}

func (cw *Watcher) run() {
	var debounce *time.Timer
	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(500*time.Millisecond, cw.reload)
			}
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("config: watcher error", "err", err)
		case <-cw.stopCh:
			return
		}
	}
}

func (cw *Watcher) reload() {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	f, err := Load(cw.path)
	if err != nil {
		slog.Error("config: hot-reload failed", "err", err)
		return
	}
	slog.Info("config: reloaded", "path", cw.path)
	cw.callback(f)
}

// Stop stops the config watcher.
func (cw *Watcher) Stop() error {
	close(cw.stopCh)
	return cw.watcher.Close()
}
