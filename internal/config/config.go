// Package config loads the tool configuration from file, environment and
// defaults, in that order of increasing precedence for the environment.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"quadsim/internal/drive"
	"quadsim/internal/physics"
	"quadsim/internal/policy"
	"quadsim/internal/robot"
	"quadsim/internal/sim"
	"quadsim/internal/storage"
	"quadsim/internal/urdf"
)

// EnvPrefix is the prefix of environment variable overrides, for example
// QUADSIM_DRIVE_STEPS.
const EnvPrefix = "QUADSIM"

// configName is the base name of the config file searched for when no
// explicit path is given.
const configName = "quadsim"

type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Store     StoreConfig     `mapstructure:"store" yaml:"store"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts" yaml:"artifacts"`
	Sim       SimConfig       `mapstructure:"sim" yaml:"sim"`
	Drive     DriveConfig     `mapstructure:"drive" yaml:"drive"`
}

// LoggerConfig controls the zap logger. Console output goes to stderr so
// the drive loop's state lines keep stdout to themselves.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSizeMB   int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays  int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

type StoreConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// ExpandedPath resolves a leading ~ in the store path.
func (c StoreConfig) ExpandedPath() (string, error) {
	return homedir.Expand(c.Path)
}

type ArtifactsConfig struct {
	ExportsDir string `mapstructure:"exports_dir" yaml:"exports_dir"`
}

// ExpandedExportsDir resolves a leading ~ in the exports directory.
func (c ArtifactsConfig) ExpandedExportsDir() (string, error) {
	return homedir.Expand(c.ExportsDir)
}

type SimConfig struct {
	Engine   string  `mapstructure:"engine" yaml:"engine"`
	Mode     string  `mapstructure:"mode" yaml:"mode"`
	TimeStep float64 `mapstructure:"time_step" yaml:"time_step"`
	GravityZ float64 `mapstructure:"gravity_z" yaml:"gravity_z"`
}

type DriveConfig struct {
	Steps      int     `mapstructure:"steps" yaml:"steps"`
	Policy     string  `mapstructure:"policy" yaml:"policy"`
	Seed       int64   `mapstructure:"seed" yaml:"seed"`
	MotorForce float64 `mapstructure:"motor_force" yaml:"motor_force"`
	Model      string  `mapstructure:"model" yaml:"model"`
	Record     bool    `mapstructure:"record" yaml:"record"`
	PaceHz     float64 `mapstructure:"pace_hz" yaml:"pace_hz"`
	NoPacing   bool    `mapstructure:"no_pacing" yaml:"no_pacing"`
}

// SetDefaults seeds a viper instance with the built-in defaults.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "quadsim")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size_mb", 100)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age_days", 28)
	v.SetDefault("logger.compress", true)

	v.SetDefault("store.backend", storage.DefaultStoreKind())
	v.SetDefault("store.path", "~/.quadsim/quadsim.db")

	v.SetDefault("artifacts.exports_dir", "~/.quadsim/exports")

	v.SetDefault("sim.engine", sim.DefaultEngine)
	v.SetDefault("sim.mode", string(physics.ModeDirect))
	v.SetDefault("sim.time_step", physics.DefaultTimeStep)
	v.SetDefault("sim.gravity_z", sim.DefaultGravity.Z)

	v.SetDefault("drive.steps", drive.DefaultSteps)
	v.SetDefault("drive.policy", policy.UniformName)
	v.SetDefault("drive.seed", 0)
	v.SetDefault("drive.motor_force", robot.DefaultMotorForce)
	v.SetDefault("drive.model", urdf.BuiltinMinitaur)
	v.SetDefault("drive.record", true)
	v.SetDefault("drive.pace_hz", float64(drive.DefaultPaceHz))
	v.SetDefault("drive.no_pacing", false)
}

// NewFromViper unmarshals and validates a fully populated viper instance.
func NewFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the built-in configuration.
func Default() Config {
	v := viper.New()
	SetDefaults(v)
	cfg, err := NewFromViper(v)
	if err != nil {
		// Defaults are fixed at compile time, so they always validate.
		panic(err)
	}
	return cfg
}

// Load reads the configuration. With an explicit path the file must
// exist; otherwise quadsim.yaml is searched for in the working directory
// and ~/.quadsim, and missing files are fine. QUADSIM_* environment
// variables override file values.
func Load(path string) (Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		expanded, err := homedir.Expand(path)
		if err != nil {
			return Config{}, fmt.Errorf("expand config path: %w", err)
		}
		v.SetConfigFile(expanded)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".quadsim"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	return NewFromViper(v)
}

// Validate checks every section and reports the first problem found.
func (c Config) Validate() error {
	switch c.Logger.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logger.level must be one of debug, info, warn, error; got %q", c.Logger.Level)
	}
	switch c.Logger.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logger.format must be console or json; got %q", c.Logger.Format)
	}

	switch c.Store.Backend {
	case "memory":
	case "sqlite":
		if strings.TrimSpace(c.Store.Path) == "" {
			return errors.New("store.path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("store.backend must be memory or sqlite; got %q", c.Store.Backend)
	}

	if strings.TrimSpace(c.Sim.Engine) == "" {
		return errors.New("sim.engine is required")
	}
	if _, err := physics.ParseMode(c.Sim.Mode); err != nil {
		return fmt.Errorf("sim.mode: %w", err)
	}
	if c.Sim.TimeStep <= 0 {
		return fmt.Errorf("sim.time_step must be positive, got %g", c.Sim.TimeStep)
	}

	if c.Drive.Steps <= 0 {
		return fmt.Errorf("drive.steps must be positive, got %d", c.Drive.Steps)
	}
	if strings.TrimSpace(c.Drive.Policy) == "" {
		return errors.New("drive.policy is required")
	}
	if c.Drive.MotorForce <= 0 {
		return fmt.Errorf("drive.motor_force must be positive, got %g", c.Drive.MotorForce)
	}
	if strings.TrimSpace(c.Drive.Model) == "" {
		return errors.New("drive.model is required")
	}
	if c.Drive.PaceHz <= 0 {
		return fmt.Errorf("drive.pace_hz must be positive, got %g", c.Drive.PaceHz)
	}
	return nil
}
