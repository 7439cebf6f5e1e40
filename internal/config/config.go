package config

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

// RedisConfig locates the broker.
type RedisConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	DB       int    `toml:"db"`
	Password string `toml:"password"`
	Channel  string `toml:"channel"`
}

// Addr returns host:port.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// Config holds application configuration.
type Config struct {
	Redis         RedisConfig `toml:"redis"`
	BotToken      string      `toml:"bot_token"`
	AllowList     string      `toml:"allowlist"`
	OutputDir     string      `toml:"output_dir"`
	Port          int         `toml:"port"`
	DBPath        string      `toml:"db"`
	WebhookSecret string      `toml:"webhook_secret"`
	LogLevel      string      `toml:"log_level"`
	LogFormat     string      `toml:"log_format"`
}

// DefaultChannel is the broker channel carrying links.
const DefaultChannel = "yt-urls"

// DefaultConfigPath returns the config file path using XDG_CONFIG_HOME.
func DefaultConfigPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "catchbot", "config.toml")
}

// DefaultDBPath returns the default ledger path using XDG_CACHE_HOME.
func DefaultDBPath() string {
	cacheDir := os.Getenv("XDG_CACHE_HOME")
	if cacheDir == "" {
		home, _ := os.UserHomeDir()
		cacheDir = filepath.Join(home, ".cache")
	}
	return filepath.Join(cacheDir, "catchbot", "jobs.db")
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Redis: RedisConfig{
			Host:    "localhost",
			Port:    6379,
			Channel: DefaultChannel,
		},
		AllowList: "./accepted_usernames.txt",
		OutputDir: "/usr/files",
		Port:      8080,
		DBPath:    DefaultDBPath(),
		LogLevel:  "info",
		LogFormat: "console",
	}
}

// Load builds Config from defaults, the TOML file at path, a .env file in the
// working directory and the environment, in that order. An empty path means
// DefaultConfigPath, which may be absent.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath()
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if !errors.Is(err, fs.ErrNotExist) || explicit {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read .env: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.BotToken = UnquoteToken(cfg.BotToken)
	cfg.OutputDir = ExpandPath(cfg.OutputDir)
	cfg.DBPath = ExpandPath(cfg.DBPath)
	return cfg, nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"REDIS_HOST":              &c.Redis.Host,
		"REDIS_PASSWORD":          &c.Redis.Password,
		"REDIS_CHANNEL":           &c.Redis.Channel,
		"BOT_TOKEN":               &c.BotToken,
		"CATCHBOT_ALLOWLIST":      &c.AllowList,
		"CATCHBOT_OUTPUT_DIR":     &c.OutputDir,
		"CATCHBOT_DB":             &c.DBPath,
		"CATCHBOT_WEBHOOK_SECRET": &c.WebhookSecret,
		"CATCHBOT_LOG_LEVEL":      &c.LogLevel,
		"CATCHBOT_LOG_FORMAT":     &c.LogFormat,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"REDIS_PORT":    &c.Redis.Port,
		"REDIS_DB":      &c.Redis.DB,
		"CATCHBOT_PORT": &c.Port,
	}
	for key, dst := range ints {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %q is not a number", key, v)
		}
		*dst = n
	}
	return nil
}

// BindFlags registers flags that override loaded values.
func BindFlags(fs *pflag.FlagSet) {
	fs.String("redis-host", "", "Redis host")
	fs.Int("redis-port", 0, "Redis port")
	fs.Int("redis-db", 0, "Redis database index")
	fs.String("channel", "", "Redis channel carrying links")
	fs.String("allowlist", "", "File with accepted usernames")
	fs.String("output-dir", "", "Directory for converted audio")
	fs.Int("port", 0, "HTTP port (0 disables the HTTP server)")
	fs.String("db", "", "SQLite job ledger path")
	fs.String("log-level", "", "Log level (debug, info, warn, error)")
	fs.String("log-format", "", "Log format (console, json)")
}

// ApplyFlags copies flags that were set on the command line into c.
func (c *Config) ApplyFlags(fs *pflag.FlagSet) {
	setStr := func(name string, dst *string) {
		if f := fs.Lookup(name); f != nil && f.Changed {
			*dst = f.Value.String()
		}
	}
	setInt := func(name string, dst *int) {
		if f := fs.Lookup(name); f != nil && f.Changed {
			if n, err := strconv.Atoi(f.Value.String()); err == nil {
				*dst = n
			}
		}
	}

	setStr("redis-host", &c.Redis.Host)
	setInt("redis-port", &c.Redis.Port)
	setInt("redis-db", &c.Redis.DB)
	setStr("channel", &c.Redis.Channel)
	setStr("allowlist", &c.AllowList)
	setStr("output-dir", &c.OutputDir)
	setInt("port", &c.Port)
	setStr("db", &c.DBPath)
	setStr("log-level", &c.LogLevel)
	setStr("log-format", &c.LogFormat)

	c.OutputDir = ExpandPath(c.OutputDir)
	c.DBPath = ExpandPath(c.DBPath)
}

// UnquoteToken strips one pair of surrounding double quotes, as left behind by
// some .env editors.
func UnquoteToken(token string) string {
	if len(token) >= 2 && token[0] == '"' && token[len(token)-1] == '"' {
		return token[1 : len(token)-1]
	}
	return token
}

// ExpandPath expands a leading ~ to the home directory.
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}

// allowListHeaderLines is the number of explanatory lines at the top of the
// allow-list file.
const allowListHeaderLines = 2

// LoadAllowList reads accepted usernames from path. The first two lines are
// instructions and are skipped; every name is returned with a leading '@'.
// A missing file yields an empty list.
func LoadAllowList(path string) ([]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var names []string
	sc := bufio.NewScanner(f)
	for line := 0; sc.Scan(); line++ {
		if line < allowListHeaderLines {
			continue
		}
		name := strings.TrimSpace(sc.Text())
		if name == "" {
			continue
		}
		if !strings.HasPrefix(name, "@") {
			name = "@" + name
		}
		names = append(names, name)
	}
	return names, sc.Err()
}
