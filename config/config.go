package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix — переменные окружения вида BOARD_HTTP_ADDR перекрывают yaml.
const EnvPrefix = "BOARD"

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverBadger   = "badger"
	DriverSQLite   = "sqlite"
)

type GRPC struct {
	Addr    string        `yaml:"addr" split_words:"true"`
	Timeout time.Duration `yaml:"timeout" split_words:"true"`
}

type HTTP struct {
	Addr           string        `yaml:"addr" split_words:"true"`
	RequestTimeout time.Duration `yaml:"requestTimeout" split_words:"true"`
	LogBodies      bool          `yaml:"logBodies" split_words:"true"`
	AllowedOrigins []string      `yaml:"allowedOrigins" split_words:"true"`
}

type WS struct {
	PingEvery      time.Duration `yaml:"pingEvery" split_words:"true"`
	WriteWait      time.Duration `yaml:"writeWait" split_words:"true"`
	OpTimeout      time.Duration `yaml:"opTimeout" split_words:"true"`
	SendQueue      int           `yaml:"sendQueue" split_words:"true"`
	MaxMessageSize int64         `yaml:"maxMessageSize" split_words:"true"`
	RateLimit      float64       `yaml:"rateLimit" split_words:"true"` // сообщений в секунду, 0 = без лимита
	RateBurst      int           `yaml:"rateBurst" split_words:"true"`
	MaxViolations  int           `yaml:"maxViolations" split_words:"true"`
}

type Rooms struct {
	IdleTimeout time.Duration `yaml:"idleTimeout" split_words:"true"`
	InboxSize   int           `yaml:"inboxSize" split_words:"true"`
}

type Postgres struct {
	DSN string `yaml:"dsn" split_words:"true"`
}

type Badger struct {
	Dir string `yaml:"dir" split_words:"true"`
}

type SQLite struct {
	Path string `yaml:"path" split_words:"true"`
}

type Storage struct {
	Driver   string   `yaml:"driver" split_words:"true"` // memory|postgres|badger|sqlite
	Postgres Postgres `yaml:"postgres"`
	Badger   Badger   `yaml:"badger"`
	SQLite   SQLite   `yaml:"sqlite"`
}

type MDNS struct {
	Enabled  bool   `yaml:"enabled" split_words:"true"`
	Instance string `yaml:"instance" split_words:"true"`
}

type Logging struct {
	Env       string `yaml:"env" split_words:"true"`       // dev|stage|prod
	Service   string `yaml:"service" split_words:"true"`   // board-service
	Version   string `yaml:"version" split_words:"true"`   // v0.1.0
	Backend   string `yaml:"backend" split_words:"true"`   // std|zap
	Level     string `yaml:"level" split_words:"true"`     // debug|info|warn|error
	AddSource bool   `yaml:"addSource" split_words:"true"` // false|true
}

type Config struct {
	HTTP    HTTP    `yaml:"http"`
	GRPC    GRPC    `yaml:"grpc"`
	WS      WS      `yaml:"ws"`
	Rooms   Rooms   `yaml:"rooms"`
	Storage Storage `yaml:"storage"`
	MDNS    MDNS    `yaml:"mdns"`
	Logging Logging `yaml:"logging"`
}

// LoadConfig: .env -> yaml (CONFIG_PATH) -> BOARD_* из окружения -> дефолты.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "./config/config.yaml"
	}
	return Load(path)
}

// Load читает yaml по пути. Отсутствующий файл не ошибка: всё может прийти из окружения.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTP.Addr == "" {
		return errors.New("http.addr is required")
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverMemory
	}
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Storage.Postgres.DSN == "" {
			return errors.New("storage.postgres.dsn is required")
		}
	case DriverBadger:
		if c.Storage.Badger.Dir == "" {
			c.Storage.Badger.Dir = "./data/badger"
		}
	case DriverSQLite:
		if c.Storage.SQLite.Path == "" {
			c.Storage.SQLite.Path = "./data/board.db"
		}
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
	}

	if c.WS.RateLimit < 0 {
		return errors.New("ws.rateLimit must be >= 0")
	}
	if c.WS.RateLimit > 0 && c.WS.RateBurst <= 0 {
		c.WS.RateBurst = int(c.WS.RateLimit)
	}

	// установка дефолтов, если значения не указаны
	if c.HTTP.RequestTimeout <= 0 {
		c.HTTP.RequestTimeout = 30 * time.Second
	}
	if c.GRPC.Timeout <= 0 {
		c.GRPC.Timeout = 10 * time.Second
	}
	if c.Rooms.IdleTimeout <= 0 {
		c.Rooms.IdleTimeout = 5 * time.Minute
	}
	if c.MDNS.Instance == "" {
		if host, err := os.Hostname(); err == nil {
			c.MDNS.Instance = host
		} else {
			c.MDNS.Instance = "board-service"
		}
	}
	if c.Logging.Service == "" {
		c.Logging.Service = "board-service"
	}
	if c.Logging.Env == "" {
		c.Logging.Env = "dev"
	}
	if c.Logging.Version == "" {
		c.Logging.Version = "v0.1.0"
	}
	if c.Logging.Backend == "" {
		c.Logging.Backend = "std"
	}
	return nil
}
