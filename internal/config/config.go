// Package config layers defaults, an optional YAML file, FW_* environment
// variables and command-line flags into one Settings value.
package config

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/eugenetaranov/fwhelper/internal/inventory"
	"github.com/eugenetaranov/fwhelper/internal/logging"
	"github.com/eugenetaranov/fwhelper/internal/report"
)

// EnvPrefix is prepended to every environment override, e.g. FW_PASSWORD.
const EnvPrefix = "FW"

// Flag and key names.
const (
	ConfigFileFlagName    = "config"
	UserFlagName          = "user"
	PasswordFlagName      = "password"
	EnableFlagName        = "enable"
	ListFlagName          = "list"
	PingListFlagName      = "ping-list"
	TransferListFlagName  = "transfer-list"
	ParallelFlagName      = "parallel"
	DelayFlagName         = "delay"
	DriverFlagName        = "driver"
	ConfirmCopyFlagName   = "confirm-copy"
	OutputFlagName        = "output"
	FormatFlagName        = "format"
	PollIntervalFlagName  = "poll-interval"
	CopyTimeoutFlagName   = "copy-timeout"
	VerifyTimeoutFlagName = "verify-timeout"
	JobTimeoutFlagName    = "job-timeout"
	FileSystemFlagName    = "file-system"
	DebugFlagName         = "debug"
	NoColorFlagName       = "no-color"
	LogLevelFlagName      = "log-level"
	LogFileFlagName       = "log-file"
)

// Settings is the resolved configuration of one run.
type Settings struct {
	User          string        `mapstructure:"user"`
	Password      string        `mapstructure:"password"`
	Enable        string        `mapstructure:"enable"`
	List          string        `mapstructure:"list"`
	PingList      string        `mapstructure:"ping-list"`
	TransferList  string        `mapstructure:"transfer-list"`
	Parallel      int           `mapstructure:"parallel"`
	Delay         int           `mapstructure:"delay"`
	Driver        string        `mapstructure:"driver"`
	ConfirmCopy   bool          `mapstructure:"confirm-copy"`
	Output        string        `mapstructure:"output"`
	Format        string        `mapstructure:"format"`
	PollInterval  time.Duration `mapstructure:"poll-interval"`
	CopyTimeout   time.Duration `mapstructure:"copy-timeout"`
	VerifyTimeout time.Duration `mapstructure:"verify-timeout"`
	JobTimeout    time.Duration `mapstructure:"job-timeout"`
	FileSystem    string        `mapstructure:"file-system"`
	Debug         bool          `mapstructure:"debug"`
	NoColor       bool          `mapstructure:"no-color"`
	LogLevel      string        `mapstructure:"log-level"`
	LogFile       string        `mapstructure:"log-file"`
}

var defaults = map[string]any{
	UserFlagName:          "",
	PasswordFlagName:      "",
	EnableFlagName:        "",
	ListFlagName:          "list.txt",
	PingListFlagName:      "ping_list.txt",
	TransferListFlagName:  "transfer_list.txt",
	ParallelFlagName:      80,
	DelayFlagName:         10,
	DriverFlagName:        "ios",
	ConfirmCopyFlagName:   false,
	OutputFlagName:        "output.json",
	FormatFlagName:        string(report.JSON),
	PollIntervalFlagName:  time.Second,
	CopyTimeoutFlagName:   2 * time.Hour,
	VerifyTimeoutFlagName: 30 * time.Minute,
	JobTimeoutFlagName:    time.Duration(0),
	FileSystemFlagName:    "flash:",
	DebugFlagName:         false,
	NoColorFlagName:       false,
	LogLevelFlagName:      "warn",
	LogFileFlagName:       "stderr",
}

// RegisterFlags defines every setting as a flag on fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String(ConfigFileFlagName, "", "YAML config file")
	fs.StringP(UserFlagName, "u", defaults[UserFlagName].(string), "login username")
	fs.StringP(PasswordFlagName, "p", defaults[PasswordFlagName].(string), "login password")
	fs.StringP(EnableFlagName, "e", defaults[EnableFlagName].(string), "enable secret")
	fs.StringP(ListFlagName, "l", defaults[ListFlagName].(string), "device list file")
	fs.String(PingListFlagName, defaults[PingListFlagName].(string), "ping destination list file")
	fs.String(TransferListFlagName, defaults[TransferListFlagName].(string), "transfer job file")
	fs.IntP(ParallelFlagName, "n", defaults[ParallelFlagName].(int), "maximum concurrent devices")
	fs.Int(DelayFlagName, defaults[DelayFlagName].(int), "global delay factor (seconds); scales connect and command timeouts")
	fs.String(DriverFlagName, defaults[DriverFlagName].(string), "device driver")
	fs.Bool(ConfirmCopyFlagName, defaults[ConfirmCopyFlagName].(bool), "actually copy firmware (otherwise dry run)")
	fs.StringP(OutputFlagName, "o", defaults[OutputFlagName].(string), "output file")
	fs.String(FormatFlagName, defaults[FormatFlagName].(string), "output format: json or yaml")
	fs.Duration(PollIntervalFlagName, defaults[PollIntervalFlagName].(time.Duration), "interval between progress polls")
	fs.Duration(CopyTimeoutFlagName, defaults[CopyTimeoutFlagName].(time.Duration), "maximum duration of one copy")
	fs.Duration(VerifyTimeoutFlagName, defaults[VerifyTimeoutFlagName].(time.Duration), "maximum duration of one checksum")
	fs.Duration(JobTimeoutFlagName, defaults[JobTimeoutFlagName].(time.Duration), "maximum duration per device (0 = none)")
	fs.String(FileSystemFlagName, defaults[FileSystemFlagName].(string), "default destination file system")
	fs.BoolP(DebugFlagName, "d", defaults[DebugFlagName].(bool), "enable debug output")
	fs.Bool(NoColorFlagName, defaults[NoColorFlagName].(bool), "disable colored output")
	fs.String(LogLevelFlagName, defaults[LogLevelFlagName].(string), "diagnostic log level")
	fs.String(LogFileFlagName, defaults[LogFileFlagName].(string), "diagnostic log destination: stderr, stdout, discard or a file path")
}

// Load resolves settings. Precedence, lowest first: defaults, config file,
// environment, explicitly set flags. flags may be nil.
func Load(flags *pflag.FlagSet) (*Settings, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}
	}

	if path := v.GetString(ConfigFileFlagName); path != "" {
		if err := readConfigFile(v, path); err != nil {
			return nil, err
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func readConfigFile(v *viper.Viper, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := checkKeys(content); err != nil {
		return fmt.Errorf("config file %s: %w", path, err)
	}

	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(content)); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// checkKeys rejects config files naming settings that do not exist.
func checkKeys(content []byte) error {
	var raw map[string]any
	if err := yaml.Unmarshal(content, &raw); err != nil {
		return fmt.Errorf("invalid YAML: %w", err)
	}

	var unknown []string
	for k := range raw {
		if _, ok := defaults[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("unknown settings: %s", strings.Join(unknown, ", "))
	}
	return nil
}

// Validate checks ranges and enumerations.
func (s *Settings) Validate() error {
	if s.Parallel < 1 {
		return fmt.Errorf("parallel must be at least 1, got %d", s.Parallel)
	}
	if s.Delay < 1 {
		return fmt.Errorf("delay must be at least 1, got %d", s.Delay)
	}
	if _, err := report.ParseFormat(s.Format); err != nil {
		return err
	}
	if s.PollInterval <= 0 {
		return fmt.Errorf("poll-interval must be positive, got %s", s.PollInterval)
	}
	if s.JobTimeout < 0 {
		return fmt.Errorf("job-timeout must not be negative, got %s", s.JobTimeout)
	}
	return nil
}

// TargetTimeout is the per-device timeout budget for connect, login and
// prompt detection.
func (s *Settings) TargetTimeout() time.Duration {
	return time.Duration(s.Delay) * 10 * time.Second
}

// ProbeTimeout bounds one TCP connect attempt.
func (s *Settings) ProbeTimeout() time.Duration {
	return time.Duration(s.Delay) * time.Second
}

// ReportFormat returns the validated output format.
func (s *Settings) ReportFormat() report.Format {
	f, _ := report.ParseFormat(s.Format)
	return f
}

// Defaults returns the shared per-device settings.
func (s *Settings) Defaults() inventory.Defaults {
	return inventory.Defaults{
		Username: s.User,
		Password: s.Password,
		Secret:   s.Enable,
		Driver:   s.Driver,
		Timeout:  s.TargetTimeout(),
		Confirm:  s.ConfirmCopy,
	}
}

// Logging returns the diagnostic logger configuration.
func (s *Settings) Logging() logging.Config {
	return logging.Config{
		Level:   s.LogLevel,
		Debug:   s.Debug,
		Output:  s.LogFile,
		Console: !s.NoColor,
	}
}
