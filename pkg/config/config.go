package config

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/cuemby/rookery/pkg/reconciler"
	"github.com/cuemby/rookery/pkg/storage"
)

// EnvPrefix is the prefix of environment overrides, e.g. ROOKERY_DRIVER_MASTER_URL
const EnvPrefix = "ROOKERY"

// Config is the effective configuration of a rookery process
type Config struct {
	Log            LogConfig            `mapstructure:"log" yaml:"log"`
	Storage        StorageConfig        `mapstructure:"storage" yaml:"storage"`
	Reconciliation ReconciliationConfig `mapstructure:"reconciliation" yaml:"reconciliation"`
	Driver         DriverConfig         `mapstructure:"driver" yaml:"driver"`
	Executor       ExecutorConfig       `mapstructure:"executor" yaml:"executor"`
	MetricsAddr    string               `mapstructure:"metrics_addr" yaml:"metrics_addr"`
}

type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	JSON  bool   `mapstructure:"json" yaml:"json"`
}

type StorageConfig struct {
	Driver  string `mapstructure:"driver" yaml:"driver"`
	DataDir string `mapstructure:"data_dir" yaml:"data_dir"`
}

type ReconciliationConfig struct {
	InitialDelay     time.Duration `mapstructure:"initial_delay" yaml:"initial_delay"`
	ExplicitInterval time.Duration `mapstructure:"explicit_interval" yaml:"explicit_interval"`
	ImplicitInterval time.Duration `mapstructure:"implicit_interval" yaml:"implicit_interval"`
	ScheduleSpread   time.Duration `mapstructure:"schedule_spread" yaml:"schedule_spread"`
}

type DriverConfig struct {
	MasterURL   string        `mapstructure:"master_url" yaml:"master_url"`
	FrameworkID string        `mapstructure:"framework_id" yaml:"framework_id"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// ExecutorConfig holds the kill escalation timeline
type ExecutorConfig struct {
	SignalTimeout  time.Duration `mapstructure:"signal_timeout" yaml:"signal_timeout"`
	KillEscalation time.Duration `mapstructure:"kill_escalation" yaml:"kill_escalation"`
	KillTreeSource string        `mapstructure:"kill_tree_source" yaml:"kill_tree_source"`
	TaskRoot       string        `mapstructure:"task_root" yaml:"task_root"`
}

// SetDefaults registers the default value of every key on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)

	v.SetDefault("storage.driver", storage.DriverBolt)
	v.SetDefault("storage.data_dir", "./rookery-data")

	v.SetDefault("reconciliation.initial_delay", time.Minute)
	v.SetDefault("reconciliation.explicit_interval", time.Hour)
	v.SetDefault("reconciliation.implicit_interval", time.Hour)
	v.SetDefault("reconciliation.schedule_spread", 30*time.Minute)

	v.SetDefault("driver.master_url", "http://127.0.0.1:5050")
	v.SetDefault("driver.framework_id", "")
	v.SetDefault("driver.timeout", 10*time.Second)

	v.SetDefault("executor.signal_timeout", 5*time.Second)
	v.SetDefault("executor.kill_escalation", 5*time.Second)
	v.SetDefault("executor.kill_tree_source", "")
	v.SetDefault("executor.task_root", "./rookery-tasks")

	v.SetDefault("metrics_addr", "127.0.0.1:9090")
}

// Load builds the configuration from v. Values come from, in increasing
// priority: defaults, the config file set with v.SetConfigFile, ROOKERY_*
// environment variables and flags bound with v.BindPFlag.
func Load(v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if v.ConfigFileUsed() != "" {
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Settings returns the reconciliation cadence
func (c *Config) Settings() reconciler.Settings {
	return reconciler.Settings{
		InitialDelay:     c.Reconciliation.InitialDelay,
		ExplicitInterval: c.Reconciliation.ExplicitInterval,
		ImplicitInterval: c.Reconciliation.ImplicitInterval,
		ScheduleSpread:   c.Reconciliation.ScheduleSpread,
	}
}

// StoreConfig returns the options for storage.Open
func (c *Config) StoreConfig() storage.Config {
	return storage.Config{Driver: c.Storage.Driver, DataDir: c.Storage.DataDir}
}

// Validate checks every section and reports all problems at once
func (c *Config) Validate() error {
	var errs []error

	if err := c.Settings().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("reconciliation: %w", err))
	}

	switch c.Storage.Driver {
	case storage.DriverBolt, storage.DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("storage: unknown driver %q", c.Storage.Driver))
	}
	if c.Storage.DataDir == "" {
		errs = append(errs, errors.New("storage: data_dir is required"))
	}

	if c.Driver.Timeout < 0 {
		errs = append(errs, errors.New("driver: timeout must not be negative"))
	}
	if c.Executor.SignalTimeout < 0 {
		errs = append(errs, errors.New("executor: signal_timeout must not be negative"))
	}
	if c.Executor.KillEscalation < 0 {
		errs = append(errs, errors.New("executor: kill_escalation must not be negative"))
	}

	return errors.Join(errs...)
}

// Dump writes the configuration as YAML
func (c *Config) Dump(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}
