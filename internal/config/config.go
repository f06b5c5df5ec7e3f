// Package config loads daemon settings from defaults, an optional config
// file, GREENHOUSE_* environment variables and command line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sweeney/greenhouse-sensor/internal/gpio"
	"github.com/sweeney/greenhouse-sensor/internal/sensor"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "GREENHOUSE"

// Sensor describes one sensor and its power line.
type Sensor struct {
	Name      string `mapstructure:"name"`
	PowerChip string `mapstructure:"power_chip"`
	PowerLine int    `mapstructure:"power_line"`
	Bus       string `mapstructure:"bus"`
	Address   uint16 `mapstructure:"address"`
	// Simulated replaces the I²C device and power line with fakes.
	Simulated bool `mapstructure:"simulated"`
}

type NVM struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
	Size    int    `mapstructure:"size"`
}

type Log struct {
	Dir    string `mapstructure:"dir"`
	Prefix string `mapstructure:"prefix"`
}

type Endpoint struct {
	Addr  string  `mapstructure:"addr"`
	Rate  float64 `mapstructure:"rate"`
	Burst int     `mapstructure:"burst"`
}

type HTTP struct {
	Addr string `mapstructure:"addr"`
}

type MQTT struct {
	Broker     string `mapstructure:"broker"`
	ClientID   string `mapstructure:"client_id"`
	BufferSize int    `mapstructure:"buffer_size"`
}

type History struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type Camera struct {
	Command string `mapstructure:"command"`
	Dir     string `mapstructure:"dir"`
}

// Config is the complete daemon configuration.
type Config struct {
	LogLevel           string        `mapstructure:"log_level"`
	ReadsPerSample     int           `mapstructure:"reads_per_sample"`
	StabilizationDelay time.Duration `mapstructure:"stabilization_delay"`
	PollDelay          time.Duration `mapstructure:"poll_delay"`
	UpdateInterval     time.Duration `mapstructure:"update_interval"`
	ImageInterval      time.Duration `mapstructure:"image_interval"`
	TemperatureUnit    string        `mapstructure:"temperature_unit"`

	Sensors  []Sensor `mapstructure:"sensors"`
	NVM      NVM      `mapstructure:"nvm"`
	Log      Log      `mapstructure:"log"`
	Endpoint Endpoint `mapstructure:"endpoint"`
	HTTP     HTTP     `mapstructure:"http"`
	MQTT     MQTT     `mapstructure:"mqtt"`
	History  History  `mapstructure:"history"`
	Camera   Camera   `mapstructure:"camera"`

	// One-shot modes; the daemon does not start.
	PrintCounter bool `mapstructure:"print_counter"`
	ResetCounter bool `mapstructure:"reset_counter"`

	// ConfigFile is the file that was read, empty if none.
	ConfigFile string `mapstructure:"-"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("reads_per_sample", 3)
	v.SetDefault("stabilization_delay", 2*time.Second)
	v.SetDefault("poll_delay", 50*time.Millisecond)
	v.SetDefault("update_interval", 5*time.Minute)
	v.SetDefault("image_interval", 30*time.Minute)
	v.SetDefault("temperature_unit", string(sensor.Fahrenheit))

	v.SetDefault("sensors", []map[string]interface{}{
		{"name": "Greenhouse", "power_chip": gpio.DefaultChip, "power_line": gpio.PinInnerPower, "bus": "", "address": sensor.DefaultAddress},
		{"name": "Outside", "power_chip": gpio.DefaultChip, "power_line": gpio.PinOuterPower, "bus": "", "address": sensor.DefaultAddress + 1},
	})

	v.SetDefault("nvm.backend", "bolt")
	v.SetDefault("nvm.path", "/var/lib/greenhouse-sensor/nvm.db")
	v.SetDefault("nvm.size", 1024)
	v.SetDefault("log.dir", "/mnt/sd/arduino/www")
	v.SetDefault("log.prefix", "datalog")
	v.SetDefault("endpoint.addr", "127.0.0.1:5555")
	v.SetDefault("endpoint.rate", 1.0)
	v.SetDefault("endpoint.burst", 3)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.client_id", "greenhouse-sensor")
	v.SetDefault("mqtt.buffer_size", 300)
	v.SetDefault("history.enabled", false)
	v.SetDefault("history.path", "/var/lib/greenhouse-sensor/history.db")
	v.SetDefault("camera.command", "")
	v.SetDefault("camera.dir", "/mnt/sd/arduino/www/images")
	v.SetDefault("print_counter", false)
	v.SetDefault("reset_counter", false)
}

// flagKeys maps flag names to config keys.
var flagKeys = map[string]string{
	"log-level":        "log_level",
	"reads-per-sample": "reads_per_sample",
	"update-interval":  "update_interval",
	"temperature-unit": "temperature_unit",
	"nvm-backend":      "nvm.backend",
	"nvm-path":         "nvm.path",
	"log-dir":          "log.dir",
	"endpoint":         "endpoint.addr",
	"http":             "http.addr",
	"mqtt-broker":      "mqtt.broker",
	"history":          "history.enabled",
	"history-path":     "history.path",
	"camera-command":   "camera.command",
	"print-counter":    "print_counter",
	"reset-counter":    "reset_counter",
}

// NewFlagSet declares the command line flags.
func NewFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("config", "", "Config file (default /etc/greenhouse-sensor.{yaml,toml})")
	fs.String("log-level", "info", "Log level: debug, info, warn, error")
	fs.Int("reads-per-sample", 3, "Reads averaged per sensor per sampling pass")
	fs.Duration("update-interval", 5*time.Minute, "Interval between log updates")
	fs.String("temperature-unit", string(sensor.Fahrenheit), "Temperature unit: fahrenheit or celsius")
	fs.String("nvm-backend", "bolt", "Counter storage: memory, file or bolt")
	fs.String("nvm-path", "/var/lib/greenhouse-sensor/nvm.db", "Counter storage path")
	fs.String("log-dir", "/mnt/sd/arduino/www", "Directory for CSV logs")
	fs.String("endpoint", "127.0.0.1:5555", "TCP status endpoint address")
	fs.String("http", ":8080", "HTTP status server address (empty to disable)")
	fs.String("mqtt-broker", "", "MQTT broker URL (empty to disable)")
	fs.Bool("history", false, "Mirror persisted records to SQLite")
	fs.String("history-path", "/var/lib/greenhouse-sensor/history.db", "SQLite history database")
	fs.String("camera-command", "", "Still capture command, {path} is the output file (empty to disable)")
	fs.Bool("print-counter", false, "Print the persistent counter and exit")
	fs.Bool("reset-counter", false, "Reset the persistent counter to zero and exit")
	return fs
}

// Load parses args and merges every configuration source.
func Load(name string, args []string) (*Config, error) {
	fs := NewFlagSet(name)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return LoadFlags(fs)
}

// LoadFlags merges an already parsed flag set with the other sources.
func LoadFlags(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for flagName, key := range flagKeys {
		if f := fs.Lookup(flagName); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", flagName, err)
			}
		}
	}

	path, _ := fs.GetString("config")
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("greenhouse-sensor")
		v.AddConfigPath("/etc")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.ConfigFile = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Unit returns the parsed temperature unit.
func (c *Config) Unit() sensor.Unit {
	u, _ := sensor.ParseUnit(c.TemperatureUnit)
	return u
}

// Validate rejects settings the daemon cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.ReadsPerSample <= 0 {
		errs = append(errs, fmt.Errorf("reads_per_sample must be positive, got %d", c.ReadsPerSample))
	}
	for key, d := range map[string]time.Duration{
		"stabilization_delay": c.StabilizationDelay,
		"poll_delay":          c.PollDelay,
		"update_interval":     c.UpdateInterval,
		"image_interval":      c.ImageInterval,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", key, d))
		}
	}
	if _, err := sensor.ParseUnit(c.TemperatureUnit); err != nil {
		errs = append(errs, err)
	}

	if len(c.Sensors) == 0 {
		errs = append(errs, errors.New("at least one sensor is required"))
	}
	seen := make(map[string]bool, len(c.Sensors))
	for i, s := range c.Sensors {
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("sensors[%d]: name is required", i))
		}
		if seen[s.Name] {
			errs = append(errs, fmt.Errorf("sensors[%d]: duplicate name %q", i, s.Name))
		}
		seen[s.Name] = true
		if !s.Simulated && s.PowerLine < 0 {
			errs = append(errs, fmt.Errorf("sensors[%d]: invalid power_line %d", i, s.PowerLine))
		}
	}

	switch c.NVM.Backend {
	case "memory":
	case "file", "bolt":
		if c.NVM.Path == "" {
			errs = append(errs, fmt.Errorf("nvm.path is required for the %s backend", c.NVM.Backend))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown nvm.backend %q", c.NVM.Backend))
	}
	if c.NVM.Size < 12 {
		errs = append(errs, fmt.Errorf("nvm.size must hold the 12 byte counter record, got %d", c.NVM.Size))
	}

	if c.Log.Dir == "" {
		errs = append(errs, errors.New("log.dir is required"))
	}
	if c.Endpoint.Addr == "" {
		errs = append(errs, errors.New("endpoint.addr is required"))
	}
	if c.Endpoint.Rate <= 0 || c.Endpoint.Burst <= 0 {
		errs = append(errs, errors.New("endpoint.rate and endpoint.burst must be positive"))
	}
	if c.History.Enabled && c.History.Path == "" {
		errs = append(errs, errors.New("history.path is required when history is enabled"))
	}
	if c.PrintCounter && c.ResetCounter {
		errs = append(errs, errors.New("--print-counter and --reset-counter are mutually exclusive"))
	}

	return errors.Join(errs...)
}
