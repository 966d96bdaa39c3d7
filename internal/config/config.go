// Package config loads tunneld configuration from defaults, an optional
// YAML file and TUNNEL_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/printlink/tunnel/internal/dispatch"
	"github.com/printlink/tunnel/internal/mailbox"
	"github.com/printlink/tunnel/internal/stats"
	"github.com/printlink/tunnel/internal/tracker"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. TUNNEL_BROKER_URL.
const EnvPrefix = "TUNNEL"

type Config struct {
	Broker        Broker        `mapstructure:"broker"`
	Tunnel        Tunnel        `mapstructure:"tunnel"`
	Tracker       Tracker       `mapstructure:"tracker"`
	Dispatch      Dispatch      `mapstructure:"dispatch"`
	Gateway       Gateway       `mapstructure:"gateway"`
	API           API           `mapstructure:"api"`
	Observability Observability `mapstructure:"observability"`
	Log           Log           `mapstructure:"log"`
}

type Broker struct {
	URL         string        `mapstructure:"url"`
	DialTimeout time.Duration `mapstructure:"dialTimeout"`
	PoolSize    int           `mapstructure:"poolSize"`
}

type Tunnel struct {
	Namespace         string        `mapstructure:"namespace"`
	ResponseTimeout   time.Duration `mapstructure:"responseTimeout"`
	ResponseRetention time.Duration `mapstructure:"responseRetention"`
	StatsRetention    time.Duration `mapstructure:"statsRetention"`
}

type Tracker struct {
	PredictionTTL     time.Duration `mapstructure:"predictionTTL"`
	HighPredictionTTL time.Duration `mapstructure:"highPredictionTTL"`
	HighPredictionMax int           `mapstructure:"highPredictionMax"`
	ProgressTTL       time.Duration `mapstructure:"progressTTL"`
}

type Dispatch struct {
	// NATSURLs selects an external cluster. Empty runs an embedded server.
	NATSURLs      string `mapstructure:"natsURLs"`
	Port          int    `mapstructure:"port"`
	SubjectPrefix string `mapstructure:"subjectPrefix"`
}

type Gateway struct {
	// BreakerThreshold is the number of consecutive failed exchanges that
	// opens a printer's circuit. Zero disables the breakers.
	BreakerThreshold int           `mapstructure:"breakerThreshold"`
	BreakerReset     time.Duration `mapstructure:"breakerReset"`
}

type API struct {
	Listen          string        `mapstructure:"listen"`
	ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`
}

type Observability struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"serviceName"`
	Environment string `mapstructure:"environment"`
}

type Log struct {
	Development bool `mapstructure:"development"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("broker.url", "redis://localhost:6379/0")
	v.SetDefault("broker.dialTimeout", 5*time.Second)
	v.SetDefault("broker.poolSize", 64)

	v.SetDefault("tunnel.namespace", mailbox.DefaultNamespace)
	v.SetDefault("tunnel.responseTimeout", mailbox.DefaultTimeout)
	v.SetDefault("tunnel.responseRetention", mailbox.DefaultRetention)
	v.SetDefault("tunnel.statsRetention", stats.DefaultRetention)

	v.SetDefault("tracker.predictionTTL", tracker.DefaultPredictionTTL)
	v.SetDefault("tracker.highPredictionTTL", tracker.DefaultHighPredictionTTL)
	v.SetDefault("tracker.highPredictionMax", tracker.DefaultHighPredictionMax)
	v.SetDefault("tracker.progressTTL", tracker.DefaultProgressTTL)

	v.SetDefault("dispatch.natsURLs", "")
	v.SetDefault("dispatch.port", -1)
	v.SetDefault("dispatch.subjectPrefix", dispatch.DefaultSubjectPrefix)

	v.SetDefault("gateway.breakerThreshold", 5)
	v.SetDefault("gateway.breakerReset", 30*time.Second)

	v.SetDefault("api.listen", ":8080")
	v.SetDefault("api.shutdownTimeout", 10*time.Second)

	v.SetDefault("observability.enabled", false)
	v.SetDefault("observability.serviceName", "tunneld")
	v.SetDefault("observability.environment", "production")

	v.SetDefault("log.development", false)
}

// Load reads configuration into a Config. file may be empty.
func Load(v *viper.Viper, file string) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail deep inside a component.
func (c *Config) Validate() error {
	var errs []error

	if c.Broker.URL == "" {
		errs = append(errs, errors.New("broker.url is required"))
	}
	if c.Tunnel.Namespace == "" {
		errs = append(errs, errors.New("tunnel.namespace is required"))
	}
	if strings.ContainsAny(c.Tunnel.Namespace, " \t\r\n") {
		errs = append(errs, fmt.Errorf("tunnel.namespace %q must not contain whitespace", c.Tunnel.Namespace))
	}
	if c.Tunnel.ResponseTimeout <= 0 {
		errs = append(errs, errors.New("tunnel.responseTimeout must be positive"))
	}
	if c.Tunnel.ResponseRetention <= 0 {
		errs = append(errs, errors.New("tunnel.responseRetention must be positive"))
	}
	if c.Tunnel.ResponseRetention > c.Tunnel.ResponseTimeout {
		errs = append(errs, fmt.Errorf("tunnel.responseRetention %s must not exceed tunnel.responseTimeout %s",
			c.Tunnel.ResponseRetention, c.Tunnel.ResponseTimeout))
	}
	if c.Tunnel.StatsRetention <= 0 {
		errs = append(errs, errors.New("tunnel.statsRetention must be positive"))
	}
	if c.Tracker.HighPredictionMax <= 0 {
		errs = append(errs, errors.New("tracker.highPredictionMax must be positive"))
	}
	if c.Gateway.BreakerThreshold < 0 {
		errs = append(errs, errors.New("gateway.breakerThreshold must not be negative"))
	}
	if c.API.Listen == "" {
		errs = append(errs, errors.New("api.listen is required"))
	}

	return errors.Join(errs...)
}
