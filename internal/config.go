package internal

import (
	"chat-notify/errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverBadger   = "badger"

	configPathEnv = "NOTIFY_CONFIG"
)

// Config paths tried in order when NOTIFY_CONFIG is not set.
var configPaths = []string{"notify.yaml", "/etc/config/notify.yaml"}

type Config struct {
	Host      string `env:"HOST" yaml:"host" validate:"required"`
	Port      int    `env:"PORT" yaml:"port" validate:"gt=0,lt=65536"`
	GrpcPort  int    `env:"GRPC_PORT" yaml:"grpc_port" validate:"gte=0,lt=65536"`
	DebugPort int    `env:"DEBUG_PORT" yaml:"debug_port" validate:"gte=0,lt=65536"`
	LogLevel  string `env:"LOG_LEVEL" yaml:"log_level" validate:"required"`

	StoreDriver     string        `env:"STORE_DRIVER" yaml:"store_driver" validate:"oneof=postgres badger"`
	DatabaseURL     string        `env:"DATABASE_URL" yaml:"db_url" validate:"required_if=StoreDriver postgres"`
	BadgerFilepath  string        `env:"BADGER_FILEPATH" yaml:"badger_filepath"`
	NotificationTTL time.Duration `env:"NOTIFICATION_TTL" yaml:"notification_ttl" validate:"gt=0"`
	LimitMessages   int           `env:"LIMIT_MESSAGES" yaml:"limit_messages" validate:"gte=0"`
	FeedChannels    string        `env:"FEED_CHANNELS" yaml:"feed_channels" validate:"required"`

	AuthPublicKeyPath string `env:"AUTH_PUBLIC_KEY_PATH" yaml:"auth_pk" validate:"required"`
	AuthIssuer        string `env:"AUTH_ISSUER" yaml:"auth_issuer" validate:"required"`
	AuthAudience      string `env:"AUTH_AUDIENCE" yaml:"auth_audience" validate:"required"`

	BusCapacity              int           `env:"BUS_CAPACITY" yaml:"bus_capacity" validate:"gt=0"`
	BusOverflowPolicy        string        `env:"BUS_OVERFLOW_POLICY" yaml:"bus_overflow_policy" validate:"oneof=block drop_oldest"`
	SessionBufferSize        int           `env:"SESSION_BUFFER_SIZE" yaml:"session_buffer_size" validate:"gt=0"`
	KeepAliveInterval        time.Duration `env:"KEEP_ALIVE_INTERVAL" yaml:"keep_alive_interval" validate:"gt=0"`
	ReconnectInitialInterval time.Duration `env:"RECONNECT_INITIAL_INTERVAL" yaml:"reconnect_initial_interval" validate:"gt=0"`
	ReconnectMaxInterval     time.Duration `env:"RECONNECT_MAX_INTERVAL" yaml:"reconnect_max_interval" validate:"gtefield=ReconnectInitialInterval"`
	ResolveTimeout           time.Duration `env:"RESOLVE_TIMEOUT" yaml:"resolve_timeout" validate:"gt=0"`
	FanoutConcurrency        int           `env:"FANOUT_CONCURRENCY" yaml:"fanout_concurrency" validate:"gt=0"`
	RestartInterval          time.Duration `env:"RESTART_INTERVAL" yaml:"restart_interval" validate:"gt=0"`
	MetricInterval           time.Duration `env:"METRIC_INTERVAL" yaml:"metric_interval" validate:"gt=0"`
	ShutdownTimeout          time.Duration `env:"SHUTDOWN_TIMEOUT" yaml:"shutdown_timeout" validate:"gt=0"`
}

func DefaultConfig() Config {
	return Config{
		Host:                     "0.0.0.0",
		Port:                     6687,
		GrpcPort:                 6688,
		DebugPort:                0,
		LogLevel:                 "INFO",
		StoreDriver:              StoreDriverPostgres,
		NotificationTTL:          10 * time.Minute,
		LimitMessages:            50,
		FeedChannels:             "notify_event,chat_updated,chat_message_created",
		AuthIssuer:               "chat_server",
		AuthAudience:             "chat_web",
		BusCapacity:              1024,
		BusOverflowPolicy:        "block",
		SessionBufferSize:        64,
		KeepAliveInterval:        15 * time.Second,
		ReconnectInitialInterval: 500 * time.Millisecond,
		ReconnectMaxInterval:     30 * time.Second,
		ResolveTimeout:           2 * time.Second,
		FanoutConcurrency:        16,
		RestartInterval:          200 * time.Millisecond,
		MetricInterval:           5 * time.Second,
		ShutdownTimeout:          10 * time.Second,
	}
}

// Channels splits FEED_CHANNELS.
func (c Config) Channels() []string {
	var channels []string
	for _, ch := range strings.Split(c.FeedChannels, ",") {
		if ch = strings.TrimSpace(ch); ch != "" {
			channels = append(channels, ch)
		}
	}
	return channels
}

// LoadConfig resolves the configuration: defaults, then the YAML file, then .env,
// then the process environment. The result is validated.
func LoadConfig() (Config, error) {
	config := DefaultConfig()

	if path, ok := configFile(); ok {
		if err := loadYAML(path, &config); err != nil {
			return Config{}, err
		}
	}

	// .env is optional
	_ = godotenv.Load()

	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return Config{}, fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err)
	}

	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

var validate = validator.New()

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err)
	}
	if len(c.Channels()) == 0 {
		return fmt.Errorf("%w: FEED_CHANNELS is empty", errors.ErrInvalidConfig)
	}
	return nil
}

func configFile() (string, bool) {
	if path := os.Getenv(configPathEnv); path != "" {
		return path, true
	}
	for _, path := range configPaths {
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}
	return "", false
}

func loadYAML(path string, config *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err)
	}
	defer f.Close()
	if err := yaml.NewDecoder(f).Decode(config); err != nil {
		return fmt.Errorf("%w: parse %s: %v", errors.ErrInvalidConfig, path, err)
	}
	return nil
}
