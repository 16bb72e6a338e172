// Package config loads the node's configuration per §6: the recognized key
// set, local-YAML-or-remote-Consul-KV sourcing, and optional hot-reload of
// the whole key set through a change callback.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	// Registers viper's "consul" remote-provider backend (used by the
	// CONSUL_ENABLED branch of Load below); side-effect import only.
	_ "github.com/spf13/viper/remote"
)

// NATS carries the bus connection settings (§6's nats.* keys).
type NATS struct {
	Servers              []string      `mapstructure:"servers"`
	Verbose              bool          `mapstructure:"verbose"`
	AllowReconnect       bool          `mapstructure:"allow_reconnect"`
	ConnectTimeout       time.Duration `mapstructure:"connect_timeout"`
	ReconnectTimeWait    time.Duration `mapstructure:"reconnect_time_wait"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts"`
}

// Database carries the one persistence key (§6's database.uri).
type Database struct {
	URI string `mapstructure:"uri"`
}

// Config is the recognized key set from §6, exactly: port, database.uri,
// nats.servers, nats.verbose, nats.allow_reconnect, nats.connect_timeout,
// nats.reconnect_time_wait, nats.max_reconnect_attempts, node,
// account_service_url, token_key_path, metrics_port.
type Config struct {
	Port              int      `mapstructure:"port"`
	Database          Database `mapstructure:"database"`
	NATS              NATS     `mapstructure:"nats"`
	Node              string   `mapstructure:"node"`
	AccountServiceURL string   `mapstructure:"account_service_url"`
	TokenKeyPath      string   `mapstructure:"token_key_path"`
	MetricsPort       int      `mapstructure:"metrics_port"`
}

// Load reads configuration from configFile (YAML), or from Consul remote KV
// when CONSUL_ENABLED=true is set. Only when onChange is non-nil is the
// config file watched for changes; onChange is then invoked after every
// successful hot-reload.
func Load(configFile string, onChange func(*Config)) (*Config, error) {
	v := viper.New()
	v.SetDefault("port", 7700)
	v.SetDefault("nats.servers", []string{"nats://127.0.0.1:4222"})
	v.SetDefault("nats.allow_reconnect", true)
	v.SetDefault("nats.connect_timeout", 5*time.Second)
	v.SetDefault("nats.reconnect_time_wait", 2*time.Second)
	v.SetDefault("nats.max_reconnect_attempts", 60)
	v.SetDefault("node", "node-1")
	v.SetDefault("metrics_port", 9100)

	if os.Getenv("CONSUL_ENABLED") == "true" {
		addr := os.Getenv("CONSUL_HTTP_ADDR")
		if addr == "" {
			addr = "127.0.0.1:8500"
		}
		v.SetConfigType("yaml")
		if err := v.AddRemoteProvider("consul", addr, "chatfabric-relay-node/config"); err != nil {
			return nil, fmt.Errorf("config: configuring consul remote provider: %w", err)
		}
		if err := v.ReadRemoteConfig(); err != nil {
			return nil, fmt.Errorf("config: reading consul config: %w", err)
		}
	} else {
		if configFile == "" {
			configFile = "config.yaml"
		}
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", configFile, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshaling: %w", err)
	}

	if onChange != nil {
		v.OnConfigChange(func(fsnotify.Event) {
			reloaded := &Config{}
			if err := v.Unmarshal(reloaded); err != nil {
				return
			}
			onChange(reloaded)
		})
		v.WatchConfig()
	}

	return cfg, nil
}
