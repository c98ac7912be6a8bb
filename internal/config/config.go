package config

import (
	"math"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"codeberg.org/mutker/atommanctl/internal/errors"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultPort         = "/dev/serial/by-id/usb-Synwit_USB_Virtual_COM-if00"
	DefaultBaud         = 115200
	DefaultStartDelay   = 3 * time.Second
	DefaultAttempts     = 3
	DefaultWindow       = 5 * time.Second
	DefaultWriteSleep   = 6 * time.Millisecond
	DefaultReadTimeout  = time.Second
	DefaultFanMaxRPM    = 5000
	DefaultMetricsDB    = "/var/lib/atommanctl/metrics.db"
	DefaultConfigFile   = "/etc/atommanctl.toml"
	DefaultEnvPrefix    = "ATOMMAN"
	configEnvKey        = "CONFIG"
	programName         = "atommanctl"
	defaultFanPreferKey = FanPreferAuto
)

type Config struct {
	Port        string        `mapstructure:"port"`
	Baud        int           `mapstructure:"baud"`
	RTSCTS      bool          `mapstructure:"rtscts"`
	DSRDTR      bool          `mapstructure:"dsrdtr"`
	StartDelay  time.Duration `mapstructure:"start_delay"`
	Attempts    int           `mapstructure:"attempts"`
	Window      time.Duration `mapstructure:"window"`
	WriteSleep  time.Duration `mapstructure:"write_sleep"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	FanPrefer   string        `mapstructure:"fan_prefer"`
	FanMaxRPM   int           `mapstructure:"fan_max_rpm"`
	NetIface    string        `mapstructure:"net_iface"`
	Metrics     bool          `mapstructure:"metrics"`
	MetricsDB   string        `mapstructure:"metrics_db"`
	Debug       bool          `mapstructure:"debug"`
	Verbose     bool          `mapstructure:"verbose"`
}

// Load reads configuration from defaults, the TOML config file, ATOMMAN_*
// environment variables and command line flags, in increasing precedence.
func Load(opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := &options{
		envPrefix: DefaultEnvPrefix,
		args:      os.Args[1:],
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidArgument, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := bindEnvAliases(v, o.envPrefix); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	flags := newFlagSet()
	if err := flags.Parse(o.args); err != nil {
		return nil, errFactory.Wrap(errors.ErrParseFlags, err)
	}

	// Only flags given explicitly override file and environment values
	var bindErr error
	flags.Visit(func(f *pflag.Flag) {
		if f.Name == "config" {
			return
		}
		if err := v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f); err != nil && bindErr == nil {
			bindErr = err
		}
	})
	if bindErr != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, bindErr)
	}

	path := resolveConfigPath(o, flags, v)
	if err := readConfigFile(v, path, path != DefaultConfigFile); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		secondsDurationHook(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, errFactory.Wrap(errors.ErrReadConfig, err)
	}
	cfg.FanPrefer = strings.ToLower(strings.TrimSpace(cfg.FanPrefer))
	cfg.NetIface = strings.TrimSpace(cfg.NetIface)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", DefaultPort)
	v.SetDefault("baud", DefaultBaud)
	v.SetDefault("rtscts", false)
	v.SetDefault("dsrdtr", true)
	v.SetDefault("start_delay", DefaultStartDelay)
	v.SetDefault("attempts", DefaultAttempts)
	v.SetDefault("window", DefaultWindow)
	v.SetDefault("write_sleep", DefaultWriteSleep)
	v.SetDefault("read_timeout", DefaultReadTimeout)
	v.SetDefault("fan_prefer", defaultFanPreferKey)
	v.SetDefault("fan_max_rpm", DefaultFanMaxRPM)
	v.SetDefault("net_iface", "")
	v.SetDefault("metrics", false)
	v.SetDefault("metrics_db", DefaultMetricsDB)
	v.SetDefault("debug", false)
	v.SetDefault("verbose", false)
}

// envAliases maps keys to the older variable names still accepted in the
// environment, after the prefixed key name itself.
var envAliases = map[string]string{
	"start_delay": "WAIT_START",
	"window":      "UNLOCK_SECONDS",
}

func bindEnvAliases(v *viper.Viper, prefix string) error {
	for key, alias := range envAliases {
		env := prefix + "_" + strings.ToUpper(key)
		if err := v.BindEnv(key, env, prefix+"_"+alias); err != nil {
			return err
		}
	}

	return nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// secondsDurationHook decodes durations from Go duration strings ("6ms") or
// from bare numbers of seconds ("0.006", 7).
func secondsDurationHook() mapstructure.DecodeHookFuncType {
	return func(_ reflect.Type, to reflect.Type, data any) (any, error) {
		if to != durationType {
			return data, nil
		}

		switch v := data.(type) {
		case time.Duration:
			return v, nil
		case string:
			s := strings.TrimSpace(v)
			if secs, err := strconv.ParseFloat(s, 64); err == nil {
				return seconds(secs), nil
			}
			return time.ParseDuration(s)
		case float64:
			return seconds(v), nil
		case float32:
			return seconds(float64(v)), nil
		case int:
			return seconds(float64(v)), nil
		case int64:
			return seconds(float64(v)), nil
		}

		return data, nil
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet(programName, pflag.ContinueOnError)
	fs.String("config", DefaultConfigFile, "Path to the TOML configuration file")
	fs.String("port", DefaultPort, "Serial device of the panel")
	fs.Int("baud", DefaultBaud, "Serial baud rate")
	fs.Bool("rtscts", false, "Request RTS/CTS hardware flow control")
	fs.Bool("dsrdtr", true, "Request DSR/DTR hardware flow control")
	fs.Duration("start-delay", DefaultStartDelay, "Delay before opening the serial port")
	fs.Int("attempts", DefaultAttempts, "Total unlock attempts")
	fs.Duration("window", DefaultWindow, "Duration of each unlock attempt")
	fs.Duration("write-sleep", DefaultWriteSleep, "Pause after each reply is flushed")
	fs.Duration("read-timeout", DefaultReadTimeout, "Serial read timeout")
	fs.String("fan-prefer", FanPreferAuto, "Preferred fan source (auto, hwmon, nvidia)")
	fs.Int("fan-max-rpm", DefaultFanMaxRPM, "RPM at 100% fan duty, used for NVIDIA percentages")
	fs.String("net-iface", "", "Pin the network interface instead of auto-picking")
	fs.Bool("metrics", false, "Record reply history to SQLite")
	fs.String("metrics-db", DefaultMetricsDB, "Path to the reply history database")
	fs.Bool("debug", false, "Enable debugging mode")
	fs.Bool("verbose", false, "Enable verbose logging")

	return fs
}

func resolveConfigPath(o *options, flags *pflag.FlagSet, v *viper.Viper) string {
	if f := flags.Lookup("config"); f != nil && f.Changed {
		return f.Value.String()
	}
	if o.configPath != "" {
		return o.configPath
	}
	if p := v.GetString(configEnvKey); p != "" {
		return p
	}

	return DefaultConfigFile
}

func readConfigFile(v *viper.Viper, path string, explicit bool) error {
	errFactory := errors.New()

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) && !explicit {
			return nil
		}
		return errFactory.Wrap(errors.ErrReadConfig, err)
	}

	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return errFactory.Wrap(errors.ErrReadConfig, err)
	}

	return nil
}

// Validate checks value ranges that the panel engine relies on.
func (c *Config) Validate() error {
	errFactory := errors.New()

	switch {
	case c.Port == "":
		return errFactory.WithData(errors.ErrInvalidConfig, "port must not be empty")
	case c.Baud <= 0:
		return errFactory.WithData(errors.ErrInvalidConfig, "baud must be positive")
	case c.Attempts < 1:
		return errFactory.WithData(errors.ErrInvalidConfig, "attempts must be at least 1")
	case c.Window <= 0:
		return errFactory.WithData(errors.ErrInvalidConfig, "window must be positive")
	case c.ReadTimeout <= 0:
		return errFactory.WithData(errors.ErrInvalidConfig, "read_timeout must be positive")
	case c.FanMaxRPM < 1:
		return errFactory.WithData(errors.ErrInvalidConfig, "fan_max_rpm must be at least 1")
	case c.Metrics && c.MetricsDB == "":
		return errFactory.WithData(errors.ErrInvalidConfig, "metrics_db must be set when metrics is enabled")
	}

	switch c.FanPrefer {
	case FanPreferAuto, FanPreferHwmon, FanPreferNvidia:
	default:
		return errFactory.WithData(errors.ErrInvalidConfig, "fan_prefer must be one of auto, hwmon, nvidia")
	}

	return nil
}

func (c *Config) GetPort() string          { return c.Port }
func (c *Config) GetAttempts() int         { return c.Attempts }
func (c *Config) GetWindow() time.Duration { return c.Window }
func (c *Config) GetFanPrefer() string     { return c.FanPrefer }
func (c *Config) GetFanMaxRPM() int        { return c.FanMaxRPM }
func (c *Config) IsMetricsEnabled() bool   { return c.Metrics }
func (c *Config) GetMetricsDBPath() string { return c.MetricsDB }
