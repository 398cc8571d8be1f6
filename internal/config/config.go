package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const configFileEnvName = "RECON_CONFIG_FILE"

type Config struct {
	Host         string   `mapstructure:"host"`
	Port         int      `mapstructure:"port"`
	AllowOrigins []string `mapstructure:"allow_origins"`
	LogLevel     string   `mapstructure:"log_level"`
	LogFile      string   `mapstructure:"log_file"`
	MaxUploadMB  int      `mapstructure:"max_upload_mb"`

	// DBPath: файл bbolt; пусто = всё в памяти
	DBPath string `mapstructure:"db_path"`

	MatchThreshold   float64       `mapstructure:"match_threshold"`
	DedupeWorkers    int           `mapstructure:"dedupe_workers"`
	SourceWorkers    int           `mapstructure:"source_workers"`
	ConnectorTimeout time.Duration `mapstructure:"connector_timeout"`
	PullPageSize     int           `mapstructure:"pull_page_size"`
	SchedulerEnabled bool          `mapstructure:"scheduler_enabled"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("host", "127.0.0.1")
	v.SetDefault("port", 8082)
	v.SetDefault("allow_origins", []string{"*"})
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "logs/catalog-sync.log")
	v.SetDefault("max_upload_mb", 256)
	v.SetDefault("db_path", "")
	v.SetDefault("match_threshold", 0.7)
	v.SetDefault("dedupe_workers", 4)
	v.SetDefault("source_workers", 4)
	v.SetDefault("connector_timeout", 15*time.Second)
	v.SetDefault("pull_page_size", 500)
	v.SetDefault("scheduler_enabled", true)
}

// Load reads defaults, then the optional config file (--config or
// RECON_CONFIG_FILE), then environment variables (PORT, LOG_LEVEL, ...).
func Load(args []string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path, err := configFilepath(args)
	if err != nil {
		return Config{}, err
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	// ALLOW_ORIGINS="a,b" раскладывается в слайс штатным decode hook viper
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, cfg.validate()
}

func configFilepath(args []string) (string, error) {
	fs := pflag.NewFlagSet("catalog-sync", pflag.ContinueOnError)
	arg := fs.String("config", "", "config file (yaml, json, toml)")
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if env, ok := os.LookupEnv(configFileEnvName); ok && env != "" {
		return env, nil
	}
	return *arg, nil
}

func (c Config) validate() error {
	var problems []error
	if c.Port <= 0 || c.Port > 65535 {
		problems = append(problems, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.MatchThreshold <= 0 || c.MatchThreshold > 1 {
		problems = append(problems, fmt.Errorf("match_threshold %.2f must be within (0, 1]", c.MatchThreshold))
	}
	if c.MaxUploadMB <= 0 {
		problems = append(problems, errors.New("max_upload_mb must be positive"))
	}
	return errors.Join(problems...)
}

func (c Config) Addr() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }
