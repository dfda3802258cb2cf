package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"
	"go-simpler.org/env"
	"gopkg.in/yaml.v3"
)

// DefaultPath is used when no --config flag is given.
const DefaultPath = "config.json"

type Config struct {
	Discord DiscordConfig `json:"discord" yaml:"discord"`
	Twitter TwitterConfig `json:"twitter" yaml:"twitter"`

	AppEnv       string  `json:"-" yaml:"-"`
	LogLevel     string  `json:"-" yaml:"-"`
	LogFormat    string  `json:"-" yaml:"-"`
	HTTPAddr     string  `json:"-" yaml:"-"`
	CommandRate  float64 `json:"-" yaml:"-"`
	CommandBurst int     `json:"-" yaml:"-"`
}

type DiscordConfig struct {
	Token string `json:"token" yaml:"token"`
}

type TwitterConfig struct {
	ConsumerKey       string `json:"consumer_key" yaml:"consumer_key"`
	ConsumerSecret    string `json:"consumer_secret" yaml:"consumer_secret"`
	AccessToken       string `json:"access_token" yaml:"access_token"`
	AccessTokenSecret string `json:"access_token_secret" yaml:"access_token_secret"`
	BearerToken       string `json:"bearer_token" yaml:"bearer_token"`
}

// environment holds the env-only settings and the credential overrides.
type environment struct {
	DiscordToken             string `env:"DISCORD_TOKEN"`
	TwitterConsumerKey       string `env:"TWITTER_CONSUMER_KEY"`
	TwitterConsumerSecret    string `env:"TWITTER_CONSUMER_SECRET"`
	TwitterAccessToken       string `env:"TWITTER_ACCESS_TOKEN"`
	TwitterAccessTokenSecret string `env:"TWITTER_ACCESS_TOKEN_SECRET"`
	TwitterBearerToken       string `env:"TWITTER_BEARER_TOKEN"`

	AppEnv       string  `env:"APP_ENV" default:"development"`
	LogLevel     string  `env:"LOG_LEVEL" default:"info"`
	LogFormat    string  `env:"LOG_FORMAT" default:"text"`
	HTTPAddr     string  `env:"HTTP_ADDR" default:":8080"`
	CommandRate  float64 `env:"COMMAND_RATE" default:"0.5"`
	CommandBurst int     `env:"COMMAND_BURST" default:"3"`
}

// Load reads the credentials file at path (JSON with comments, or YAML by extension) and
// applies environment overrides, including those from a .env file. A missing file is not
// an error on its own; validation still requires every credential.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := readFile(path)
	if err != nil {
		return nil, err
	}

	var e environment
	if err := env.Load(&e, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}
	applyEnvironment(cfg, &e)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func readFile(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Info("No config file found, using environment variables", "path", path)
		return &cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(jsonc.ToJSON(data), &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	return &cfg, nil
}

func applyEnvironment(cfg *Config, e *environment) {
	override(&cfg.Discord.Token, e.DiscordToken)
	override(&cfg.Twitter.ConsumerKey, e.TwitterConsumerKey)
	override(&cfg.Twitter.ConsumerSecret, e.TwitterConsumerSecret)
	override(&cfg.Twitter.AccessToken, e.TwitterAccessToken)
	override(&cfg.Twitter.AccessTokenSecret, e.TwitterAccessTokenSecret)
	override(&cfg.Twitter.BearerToken, e.TwitterBearerToken)

	cfg.AppEnv = e.AppEnv
	cfg.LogLevel = e.LogLevel
	cfg.LogFormat = e.LogFormat
	cfg.HTTPAddr = e.HTTPAddr
	cfg.CommandRate = e.CommandRate
	cfg.CommandBurst = e.CommandBurst
}

func override(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

func validate(cfg *Config) error {
	required := []struct {
		key   string
		value string
	}{
		{"discord.token", cfg.Discord.Token},
		{"twitter.consumer_key", cfg.Twitter.ConsumerKey},
		{"twitter.consumer_secret", cfg.Twitter.ConsumerSecret},
		{"twitter.access_token", cfg.Twitter.AccessToken},
		{"twitter.access_token_secret", cfg.Twitter.AccessTokenSecret},
		{"twitter.bearer_token", cfg.Twitter.BearerToken},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return fmt.Errorf("%s is required", r.key)
		}
	}

	if cfg.CommandRate <= 0 {
		return errors.New("COMMAND_RATE must be positive")
	}
	if cfg.CommandBurst < 1 {
		return errors.New("COMMAND_BURST must be at least 1")
	}

	return nil
}
