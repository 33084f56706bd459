// dbgrid: distributed SQL coordinator over a partitioned columnar dataset.
// SPDX-License-Identifier: MIT
//
// Server configuration loading and validation.

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Transport string

const (
	TransportHTTP Transport = "http"
)

type Config struct {
	ExecutorPath  string `mapstructure:"executor_path"`
	InitSQLPath   string `mapstructure:"init_sql_path"`
	HTTPFSExtPath string `mapstructure:"httpfs_extension_path"`
	AppName       string `mapstructure:"app_name"`

	StatementTimeoutMs int `mapstructure:"statement_timeout_ms"`
	MaxRowsDefault      int `mapstructure:"max_rows_default"`
	MaxTextBytes        int `mapstructure:"max_text_bytes"`

	CacheOutputBase           string `mapstructure:"cache_output_base"`
	CacheTTLMinutes           int    `mapstructure:"cache_ttl_minutes"`
	CacheAdmissionThresholdMs int    `mapstructure:"cache_admission_threshold_ms"`

	FanoutConcurrencyLimit int `mapstructure:"fanout_concurrency_limit"`
	FanoutTimeoutSeconds   int `mapstructure:"fanout_timeout_seconds"`

	BackendURL string `mapstructure:"backend_url"`

	LogLevel string `mapstructure:"log_level"`

	Transport Transport `mapstructure:"transport"`
	HTTPAddr  string    `mapstructure:"http_addr"`
	HTTPPort  int       `mapstructure:"http_port"`
}

func defaults(v *viper.Viper) {
	v.SetDefault("executor_path", ":memory:")
	v.SetDefault("init_sql_path", "./init.sql")
	v.SetDefault("httpfs_extension_path", "")
	v.SetDefault("app_name", "dbgrid")

	v.SetDefault("statement_timeout_ms", 30000)
	v.SetDefault("max_rows_default", 1000)
	v.SetDefault("max_text_bytes", 200000)

	v.SetDefault("cache_output_base", "./db_cache")
	v.SetDefault("cache_ttl_minutes", 60)
	v.SetDefault("cache_admission_threshold_ms", 500)

	v.SetDefault("fanout_concurrency_limit", 32)
	v.SetDefault("fanout_timeout_seconds", 20)

	v.SetDefault("backend_url", "")

	v.SetDefault("log_level", "info")

	v.SetDefault("transport", string(TransportHTTP))
	v.SetDefault("http_addr", "0.0.0.0")
	v.SetDefault("http_port", 8080)
}

func Load() (Config, error) {
	v := viper.New()
	defaults(v)
	v.SetEnvPrefix("DBGRID")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// spec.md §6 names these without the DBGRID_ prefix; bind them explicitly so
	// either form works.
	bindUnprefixed(v, "init_sql_path", "INIT_SQL_PATH")
	bindUnprefixed(v, "cache_output_base", "CACHE_OUTPUT_BASE")
	bindUnprefixed(v, "cache_ttl_minutes", "CACHE_TTL_MINUTES")
	bindUnprefixed(v, "backend_url", "BACKEND_URL")

	fs := pflag.NewFlagSet(os.Args[0], pflag.ContinueOnError)
	var cfgPathFlag string
	fs.StringVarP(&cfgPathFlag, "config", "c", "", "Config file path (yaml|json|toml)")
	fs.String("executor_path", ":memory:", "DuckDB database path (or :memory:)")
	fs.String("init_sql_path", "./init.sql", "SQL file executed once at startup")
	fs.String("httpfs_extension_path", "", "Path to a prebuilt httpfs extension (optional)")
	fs.String("app_name", "dbgrid", "Application name")
	fs.Int("statement_timeout_ms", 30000, "Per-statement timeout in milliseconds")
	fs.Int("max_rows_default", 1000, "Default row limit for single-node queries")
	fs.Int("max_text_bytes", 200000, "Maximum logged SQL text size")
	fs.String("cache_output_base", "./db_cache", "Result cache root (local path or object-storage URI)")
	fs.Int("cache_ttl_minutes", 60, "Cache entry TTL in minutes")
	fs.Int("cache_admission_threshold_ms", 500, "Minimum wall-clock duration (ms) to admit a cache write")
	fs.Int("fanout_concurrency_limit", 32, "Maximum in-flight sub-queries per distributed request")
	fs.Int("fanout_timeout_seconds", 20, "Per-partition sub-query timeout in seconds")
	fs.String("backend_url", "", "UI collaborator backend URL (passthrough, unused by the core)")
	fs.String("log_level", "info", "Log level")
	fs.String("transport", string(TransportHTTP), "Transport type (http)")
	fs.String("http_addr", "0.0.0.0", "HTTP listen address")
	fs.Int("http_port", 8080, "HTTP listen port")
	_ = fs.Parse(os.Args[1:])

	cfgPath := cfgPathFlag
	if cfgPath == "" {
		cfgPath = os.Getenv("DBGRID_CONFIG")
	}
	if cfgPath != "" {
		if err := readConfigFile(v, cfgPath); err != nil {
			return Config{}, err
		}
	} else {
		_ = readDefaultConfig(v)
	}

	_ = v.BindPFlags(fs)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func bindUnprefixed(v *viper.Viper, key, env string) {
	if val, ok := os.LookupEnv(env); ok {
		v.Set(key, val)
	}
}

func validate(cfg Config) error {
	if cfg.ExecutorPath == "" {
		return errors.New("config: executor_path is required")
	}
	if cfg.StatementTimeoutMs <= 0 {
		return errors.New("config: statement_timeout_ms must be > 0")
	}
	if cfg.MaxRowsDefault <= 0 {
		return errors.New("config: max_rows_default must be > 0")
	}
	if cfg.CacheTTLMinutes <= 0 {
		return errors.New("config: cache_ttl_minutes must be > 0")
	}
	if cfg.FanoutConcurrencyLimit <= 0 {
		return errors.New("config: fanout_concurrency_limit must be > 0")
	}
	if cfg.FanoutTimeoutSeconds <= 0 {
		return errors.New("config: fanout_timeout_seconds must be > 0")
	}
	if cfg.Transport != TransportHTTP {
		return fmt.Errorf("config: transport must be one of [%s]", TransportHTTP)
	}
	if cfg.HTTPPort <= 0 || cfg.HTTPPort > 65535 {
		return errors.New("config: http_port must be between 1 and 65535")
	}
	return nil
}

func readConfigFile(v *viper.Viper, path string) error {
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	return nil
}

func readDefaultConfig(v *viper.Viper) error {
	paths := defaultConfigCandidates()
	exts := []string{"yaml", "yml", "json", "toml"}
	for _, base := range paths {
		for _, ext := range exts {
			candidate := base + "." + ext
			if _, err := os.Stat(candidate); err == nil {
				v.SetConfigFile(candidate)
				if err := v.ReadInConfig(); err != nil {
					return fmt.Errorf("read default config %s: %w", candidate, err)
				}
				return nil
			}
		}
	}
	return nil
}

func defaultConfigCandidates() []string {
	var out []string
	cwd, _ := os.Getwd()
	if cwd != "" {
		out = append(out,
			filepath.Join(cwd, "dbgrid"),
			filepath.Join(cwd, "config", "dbgrid"),
		)
	}
	xdg := os.Getenv("XDG_CONFIG_HOME")
	if xdg == "" {
		home, _ := os.UserHomeDir()
		if home != "" {
			xdg = filepath.Join(home, ".config")
		}
	}
	if xdg != "" {
		out = append(out, filepath.Join(xdg, "dbgrid", "config"))
	}
	return out
}
