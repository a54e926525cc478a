package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config carries the static runtime configuration. It is loaded once at
// startup; only the log level is re-read on configuration file changes.
type Config struct {
	LogLevel string `mapstructure:"log_level"`

	AMQP      AMQPConfig      `mapstructure:"amqp"`
	Consul    ConsulConfig    `mapstructure:"consul"`
	Service   ServiceConfig   `mapstructure:"service"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
}

type AMQPConfig struct {
	Host                 string        `mapstructure:"host"`
	Port                 int           `mapstructure:"port"`
	Username             string        `mapstructure:"username"`
	Password             string        `mapstructure:"password"`
	Exchange             string        `mapstructure:"exchange"`
	RoutingKey           string        `mapstructure:"routing_key"`
	ReconnectionInterval time.Duration `mapstructure:"reconnection_interval"`
}

func (c AMQPConfig) URL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/", c.Username, c.Password, c.Host, c.Port)
}

type ConsulConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

func (c ConsulConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ServiceConfig is the address this process advertises in the catalog and
// binds the status endpoint to.
type ServiceConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type DiscoveryConfig struct {
	RetryInterval time.Duration `mapstructure:"retry_interval"`
	CheckInterval time.Duration `mapstructure:"check_interval"`
	WatchWait     time.Duration `mapstructure:"watch_wait"`
	LeadershipKey string        `mapstructure:"leadership_key"`
	SessionTTL    time.Duration `mapstructure:"session_ttl"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")

	v.SetDefault("amqp.host", "localhost")
	v.SetDefault("amqp.port", 5672)
	v.SetDefault("amqp.username", "guest")
	v.SetDefault("amqp.password", "guest")
	v.SetDefault("amqp.exchange", "wazo-events")
	v.SetDefault("amqp.routing_key", "stasis.#")
	v.SetDefault("amqp.reconnection_interval", 5*time.Second)

	v.SetDefault("consul.host", "localhost")
	v.SetDefault("consul.port", 8500)

	v.SetDefault("service.host", "localhost")
	v.SetDefault("service.port", 9500)

	v.SetDefault("discovery.retry_interval", 5*time.Second)
	v.SetDefault("discovery.check_interval", 5*time.Second)
	v.SetDefault("discovery.watch_wait", 30*time.Second)
	v.SetDefault("discovery.leadership_key", "service/applicationd/leader")
	v.SetDefault("discovery.session_ttl", 15*time.Second)
}

// LoadConfig reads configuration from defaults, an optional YAML file and
// WAZO_-prefixed environment variables. When a file is given it is watched;
// onChange receives the freshly parsed configuration on every rewrite.
func LoadConfig(path string, onChange func(*Config)) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("WAZO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg, err := unmarshal(v)
	if err != nil {
		return nil, err
	}

	if path != "" && onChange != nil {
		v.OnConfigChange(func(fsnotify.Event) {
			fresh, err := unmarshal(v)
			if err != nil {
				return
			}
			onChange(fresh)
		})
		v.WatchConfig()
	}

	return cfg, nil
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}
