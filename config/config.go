// File: config/config.go
// Package config loads and validates the chatd configuration.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Sources merge in viper's usual order: defaults, then an optional
// config file, then CHATD_* environment variables. The rest of the
// engine only ever sees the typed Config.

package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/momentics/hioload-chat/internal/queue"
	"github.com/momentics/hioload-chat/internal/session"
	"github.com/momentics/hioload-chat/logging"
	"github.com/momentics/hioload-chat/protocol"
)

// Config is the complete chatd configuration.
type Config struct {
	// ListenAddr is the TCP bind address, host:port.
	ListenAddr string `mapstructure:"listen_addr"`
	// Workers sizes the worker pool. Zero means runtime.NumCPU.
	Workers int `mapstructure:"workers"`
	// IdleTimeout disconnects sessions with no inbound traffic for
	// this long. Zero disables the idle monitor.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	// MaxPayload caps the frame payload length, at most 65535.
	MaxPayload int `mapstructure:"max_payload"`
	// MaxConnections bounds concurrent sessions. Zero means unlimited.
	MaxConnections int `mapstructure:"max_connections"`
	// QueueDepth is the per-lane task buffer size.
	QueueDepth int `mapstructure:"queue_depth"`
	// OverflowPolicy is block or drop.
	OverflowPolicy string `mapstructure:"overflow_policy"`
	// DuplicatePolicy is reject or evict.
	DuplicatePolicy string `mapstructure:"duplicate_policy"`
	// BroadcastToSelf includes the sender in broadcast fan-out.
	BroadcastToSelf bool `mapstructure:"broadcast_to_self"`
	// ReadBuffer is the I/O thread's scratch read size.
	ReadBuffer int `mapstructure:"read_buffer"`
	// PinIOThread pins the I/O thread to IOThreadCPU.
	PinIOThread bool `mapstructure:"pin_io_thread"`
	// IOThreadCPU is the logical CPU for the pinned I/O thread.
	IOThreadCPU int `mapstructure:"io_thread_cpu"`
	// SendQueue is the outbox channel capacity.
	SendQueue int `mapstructure:"send_queue"`
	// ShutdownTimeout bounds the graceful drain.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// DrainTimeout bounds how long a Closing session may hold its
	// unflushed output before being force-closed.
	DrainTimeout time.Duration `mapstructure:"drain_timeout"`
	// MetricsAddr enables the Prometheus listener when non-empty.
	MetricsAddr string `mapstructure:"metrics_addr"`

	Log logging.Config `mapstructure:"log"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		ListenAddr:      ":9000",
		Workers:         runtime.NumCPU(),
		IdleTimeout:     60 * time.Second,
		MaxPayload:      16384,
		MaxConnections:  10000,
		QueueDepth:      1024,
		OverflowPolicy:  "block",
		DuplicatePolicy: "reject",
		BroadcastToSelf: false,
		ReadBuffer:      64 * 1024,
		PinIOThread:     false,
		IOThreadCPU:     0,
		SendQueue:       4096,
		ShutdownTimeout: 10 * time.Second,
		DrainTimeout:    5 * time.Second,
	}
}

// Load builds a Config from defaults, the optional file at path, and
// the CHATD_* environment.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CHATD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate normalizes zero values and rejects inconsistent settings.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("config: listen_addr must not be empty")
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.MaxPayload <= 0 || c.MaxPayload > protocol.MaxPayload {
		return fmt.Errorf("config: max_payload must be in 1..%d, got %d", protocol.MaxPayload, c.MaxPayload)
	}
	if c.MaxConnections < 0 {
		return fmt.Errorf("config: max_connections must not be negative")
	}
	if c.QueueDepth <= 0 {
		return fmt.Errorf("config: queue_depth must be positive")
	}
	if c.ReadBuffer < protocol.HeaderSize {
		return fmt.Errorf("config: read_buffer too small")
	}
	if c.PinIOThread && (c.IOThreadCPU < 0 || c.IOThreadCPU >= runtime.NumCPU()) {
		return fmt.Errorf("config: io_thread_cpu must name a CPU in 0..%d", runtime.NumCPU()-1)
	}
	if c.SendQueue <= 0 {
		return fmt.Errorf("config: send_queue must be positive")
	}
	if c.IdleTimeout < 0 || c.ShutdownTimeout <= 0 || c.DrainTimeout <= 0 {
		return fmt.Errorf("config: timeouts must be positive")
	}
	if _, ok := queue.ParseOverflowPolicy(c.OverflowPolicy); !ok {
		return fmt.Errorf("config: overflow_policy must be block or drop, got %q", c.OverflowPolicy)
	}
	if _, ok := session.ParseDuplicatePolicy(c.DuplicatePolicy); !ok {
		return fmt.Errorf("config: duplicate_policy must be reject or evict, got %q", c.DuplicatePolicy)
	}
	return nil
}

// OverflowPolicyValue returns the parsed overflow policy.
func (c *Config) OverflowPolicyValue() queue.OverflowPolicy {
	p, _ := queue.ParseOverflowPolicy(c.OverflowPolicy)
	return p
}

// DuplicatePolicyValue returns the parsed duplicate login policy.
func (c *Config) DuplicatePolicyValue() session.DuplicatePolicy {
	p, _ := session.ParseDuplicatePolicy(c.DuplicatePolicy)
	return p
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("listen_addr", d.ListenAddr)
	v.SetDefault("workers", d.Workers)
	v.SetDefault("idle_timeout", d.IdleTimeout)
	v.SetDefault("max_payload", d.MaxPayload)
	v.SetDefault("max_connections", d.MaxConnections)
	v.SetDefault("queue_depth", d.QueueDepth)
	v.SetDefault("overflow_policy", d.OverflowPolicy)
	v.SetDefault("duplicate_policy", d.DuplicatePolicy)
	v.SetDefault("broadcast_to_self", d.BroadcastToSelf)
	v.SetDefault("read_buffer", d.ReadBuffer)
	v.SetDefault("pin_io_thread", d.PinIOThread)
	v.SetDefault("io_thread_cpu", d.IOThreadCPU)
	v.SetDefault("send_queue", d.SendQueue)
	v.SetDefault("shutdown_timeout", d.ShutdownTimeout)
	v.SetDefault("drain_timeout", d.DrainTimeout)
	v.SetDefault("metrics_addr", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "")
	v.SetDefault("log.rotate.max_size_mb", 100)
	v.SetDefault("log.rotate.max_backups", 5)
	v.SetDefault("log.rotate.max_age_days", 14)
	v.SetDefault("log.rotate.compress", false)
}
