package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gopkg.in/yaml.v3"
)

// Duration parses YAML values like "100ms" or plain numbers (seconds).
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := parseDuration(node.Value)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }

func parseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		return td, nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Duration(f * float64(time.Second)), nil
	}
	return 0, errors.Errorf("invalid duration value: %q", raw)
}

// Config holds the settings of a chat session.
type Config struct {
	UserID      string `yaml:"user_id"`
	DisplayName string `yaml:"display_name"`

	BrokerURL      string `yaml:"broker_url"`
	BrokerLogin    string `yaml:"broker_login"`
	BrokerPasscode string `yaml:"broker_passcode"`
	APIBaseURL     string `yaml:"api_base_url"`

	RequestTimeout Duration `yaml:"request_timeout"`
	PollInterval   Duration `yaml:"poll_interval"`
	TypingIdle     Duration `yaml:"typing_idle"`
	ReconnectDelay Duration `yaml:"reconnect_delay"`
	Heartbeat      Duration `yaml:"heartbeat"`
	RefreshBurst   int      `yaml:"refresh_burst"`

	AMQPURL      string `yaml:"amqp_url"`
	AMQPExchange string `yaml:"amqp_exchange"`

	StatusAddr   string `yaml:"status_addr"`
	StatusToken  string `yaml:"status_token"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	LogLevel     string `yaml:"log_level"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		BrokerURL:      "ws://localhost:8080/ws/websocket",
		APIBaseURL:     "http://localhost:8080/api",
		RequestTimeout: Duration(10 * time.Second),
		PollInterval:   Duration(10 * time.Second),
		TypingIdle:     Duration(3 * time.Second),
		ReconnectDelay: Duration(5 * time.Second),
		Heartbeat:      Duration(4 * time.Second),
		RefreshBurst:   3,
		AMQPExchange:   "vendorchat.notifications",
		StatusAddr:     "127.0.0.1:8090",
		LogLevel:       "info",
	}
}

// Load reads .env (if present), the YAML file at path (if present) and the
// environment, in increasing order of precedence, over the defaults.
func Load(path string) (Config, error) {
	_ = godotenv.Load(".env")
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, errors.Wrapf(err, "parse config %s", path)
			}
		case os.IsNotExist(err):
			jww.DEBUG.Printf("config file not found path=%s, using defaults", path)
		default:
			return Config{}, errors.Wrapf(err, "read config %s", path)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	cfg.UserID = strings.TrimSpace(cfg.UserID)
	return cfg, nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"VENDORCHAT_USER_ID":         &c.UserID,
		"VENDORCHAT_DISPLAY_NAME":    &c.DisplayName,
		"VENDORCHAT_BROKER_URL":      &c.BrokerURL,
		"VENDORCHAT_BROKER_LOGIN":    &c.BrokerLogin,
		"VENDORCHAT_BROKER_PASSCODE": &c.BrokerPasscode,
		"VENDORCHAT_API_BASE_URL":    &c.APIBaseURL,
		"VENDORCHAT_AMQP_URL":        &c.AMQPURL,
		"VENDORCHAT_AMQP_EXCHANGE":   &c.AMQPExchange,
		"VENDORCHAT_STATUS_ADDR":     &c.StatusAddr,
		"VENDORCHAT_STATUS_TOKEN":    &c.StatusToken,
		"VENDORCHAT_OTLP_ENDPOINT":   &c.OTLPEndpoint,
		"VENDORCHAT_LOG_LEVEL":       &c.LogLevel,
	}
	for key, dst := range strs {
		*dst = getEnv(key, *dst)
	}

	durations := map[string]*Duration{
		"VENDORCHAT_REQUEST_TIMEOUT": &c.RequestTimeout,
		"VENDORCHAT_POLL_INTERVAL":   &c.PollInterval,
		"VENDORCHAT_TYPING_IDLE":     &c.TypingIdle,
		"VENDORCHAT_RECONNECT_DELAY": &c.ReconnectDelay,
		"VENDORCHAT_HEARTBEAT":       &c.Heartbeat,
	}
	for key, dst := range durations {
		raw := getEnv(key, "")
		if raw == "" {
			continue
		}
		d, err := parseDuration(raw)
		if err != nil {
			return errors.Wrap(err, key)
		}
		*dst = Duration(d)
	}

	if raw := getEnv("VENDORCHAT_REFRESH_BURST", ""); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return errors.Wrap(err, "VENDORCHAT_REFRESH_BURST")
		}
		c.RefreshBurst = n
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}
