package pool

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/dbbouncer/mysqlcore/internal/metrics"
	"github.com/dbbouncer/mysqlcore/internal/session"
)

// SSLMode mirrors session.TLSMode at the pool's configuration surface.
type SSLMode int

const (
	SSLDisable SSLMode = iota
	SSLEnable  // default: upgrade if the server supports it
	SSLRequire
)

// ServerAddress is a tagged union: either a host/port pair or a UNIX
// domain socket path.
type ServerAddress struct {
	Host     string
	Port     int
	UnixPath string
}

// Network returns the net.Dial network for this address.
func (a ServerAddress) Network() string {
	if a.UnixPath != "" {
		return "unix"
	}
	return "tcp"
}

func (a ServerAddress) String() string {
	if a.UnixPath != "" {
		return a.UnixPath
	}
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// Config holds every field needed to run the pool against one server.
// Zero values for the timeout fields disable the corresponding check,
// except RetryInterval, which must be strictly positive.
type Config struct {
	Address ServerAddress

	Username string
	Password string
	Database string

	SSL          SSLMode
	TLSConfig    *tls.Config
	MultiQueries bool

	InitialBufferSize int
	MaxBufferSize     int

	InitialSize int
	MaxSize     int

	ConnectTimeout time.Duration
	RetryInterval  time.Duration
	PingInterval   time.Duration
	PingTimeout    time.Duration

	ThreadSafe bool

	Logger *slog.Logger

	// Metrics, when set, receives slot-count, acquire-latency, and
	// ping/reset-outcome observations. Optional.
	Metrics *metrics.Collector
}

// defaultMaxSize mirrors the MySQL server's own default connection limit.
const defaultMaxSize = 151

const defaultRetryInterval = time.Second

func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// EffectiveMaxSize returns MaxSize, or the server's own default limit
// when unset.
func (c Config) EffectiveMaxSize() int {
	if c.MaxSize > 0 {
		return c.MaxSize
	}
	return defaultMaxSize
}

// EffectiveInitialSize clamps InitialSize into [0, EffectiveMaxSize()].
func (c Config) EffectiveInitialSize() int {
	max := c.EffectiveMaxSize()
	if c.InitialSize < 0 {
		return 0
	}
	if c.InitialSize > max {
		return max
	}
	return c.InitialSize
}

// EffectiveRetryInterval returns RetryInterval, defaulting to one second
// when unset — this timer must be strictly positive.
func (c Config) EffectiveRetryInterval() time.Duration {
	if c.RetryInterval > 0 {
		return c.RetryInterval
	}
	return defaultRetryInterval
}

// Validate checks the configuration's invariants before Run starts the pool.
func (c Config) Validate() error {
	if c.Address.UnixPath == "" && c.Address.Host == "" {
		return fmt.Errorf("pool: config: server_address must set host or unix_path")
	}
	if c.MaxBufferSize != 0 && c.InitialBufferSize != 0 && c.MaxBufferSize < c.InitialBufferSize {
		return fmt.Errorf("pool: config: max_buffer_size must be >= initial_buffer_size")
	}
	if c.MaxSize != 0 && c.MaxSize < 0 {
		return fmt.Errorf("pool: config: max_size must be >= 1")
	}
	if c.InitialSize > c.EffectiveMaxSize() {
		return fmt.Errorf("pool: config: initial_size must be <= max_size")
	}
	return nil
}

func (c Config) tlsMode() session.TLSMode {
	switch c.SSL {
	case SSLRequire:
		return session.TLSRequire
	case SSLDisable:
		return session.TLSDisable
	default:
		return session.TLSEnable
	}
}

// sessionConfig builds the per-connection session.Config this pool's
// Config implies.
func (c Config) sessionConfig() session.Config {
	return session.Config{
		Username: c.Username,
		Password: c.Password,
		Database: c.Database,
		TLSMode: c.tlsMode(),
		InitialBufferSize: c.InitialBufferSize,
		MaxBufferSize: c.MaxBufferSize,
		MultiQueries: c.MultiQueries,
		Logger: c.Logger,
	}
}
