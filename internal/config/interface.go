package config

import "time"

// Provider defines the interface for accessing configuration values.
// All configuration values are immutable after loading.
type Provider interface {
	// GetPort returns the serial device path of the panel
	GetPort() string

	// GetAttempts returns the number of unlock attempts before steady state is forced
	GetAttempts() int

	// GetWindow returns the duration of a single unlock attempt
	GetWindow() time.Duration

	// GetFanPrefer returns the preferred fan speed source
	GetFanPrefer() string

	// GetFanMaxRPM returns the RPM corresponding to a 100% fan duty reading
	GetFanMaxRPM() int

	// IsMetricsEnabled returns whether reply history is recorded
	IsMetricsEnabled() bool

	// GetMetricsDBPath returns the path to the reply history database
	GetMetricsDBPath() string
}

// Option defines a configuration option that can be passed to Load
type Option func(*options) error

// options holds internal configuration options
type options struct {
	configPath string
	envPrefix  string
	args       []string
}

// WithConfigFile specifies an explicit configuration file path
func WithConfigFile(path string) Option {
	return func(o *options) error {
		o.configPath = path
		return nil
	}
}

// WithEnvPrefix specifies a custom environment variable prefix
// Default is "ATOMMAN"
func WithEnvPrefix(prefix string) Option {
	return func(o *options) error {
		o.envPrefix = prefix
		return nil
	}
}

// WithArgs replaces os.Args[1:] as the command line to parse
func WithArgs(args []string) Option {
	return func(o *options) error {
		o.args = args
		return nil
	}
}

// FanPreference values accepted by fan_prefer
const (
	FanPreferAuto   = "auto"
	FanPreferHwmon  = "hwmon"
	FanPreferNvidia = "nvidia"
)
