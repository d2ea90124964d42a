package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App         AppConfig         `yaml:"app"`
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	Storage     StorageConfig     `yaml:"storage"`
	ExternalAPI ExternalAPIConfig `yaml:"external_api"`
	Breaker     BreakerConfig     `yaml:"breaker"`
	Ledger      LedgerConfig      `yaml:"ledger"`
	Workers     WorkersConfig     `yaml:"workers"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type AppConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Env     string `yaml:"env"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	// Driver selects the backing store: "mysql" (default) or "sqlite".
	Driver             string        `yaml:"driver"`
	Path               string        `yaml:"path"`
	Host               string        `yaml:"host"`
	Port               int           `yaml:"port"`
	User               string        `yaml:"user"`
	Password           string        `yaml:"password"`
	Name               string        `yaml:"name"`
	Charset            string        `yaml:"charset"`
	Loc                string        `yaml:"loc"`
	MaxConnections     int           `yaml:"max_connections"`
	MaxIdleConnections int           `yaml:"max_idle_connections"`
	ConnectionLifetime time.Duration `yaml:"connection_lifetime"`
}

type RedisConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Password    string `yaml:"password"`
	DB          int    `yaml:"db"`
	PoolSize    int    `yaml:"pool_size"`
	ImportQueue string `yaml:"import_queue"`
	ReplayQueue string `yaml:"replay_queue"`
	DLQSuffix   string `yaml:"dlq_suffix"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type ExternalAPIConfig struct {
	Records RecordsConfig `yaml:"records"`
}

// RecordsConfig describes the external student-records system that receives
// test scores.
type RecordsConfig struct {
	BaseURL        string        `yaml:"base_url"`
	AuthEndpoint   string        `yaml:"auth_endpoint"`
	ScoresEndpoint string        `yaml:"scores_endpoint"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	Timeout        time.Duration `yaml:"timeout"`
	SourceTag      string        `yaml:"source_tag"`
	// Student keys that must never reach the records system.
	ExcludedStudentKeys []int64 `yaml:"excluded_student_keys"`
}

type BreakerConfig struct {
	Cooldown time.Duration `yaml:"cooldown"`
}

type LedgerConfig struct {
	// Student IDs with this prefix are synthetic fixtures and never written.
	ReservedPrefix string `yaml:"reserved_prefix"`
}

type WorkersConfig struct {
	Replay ReplayWorkerConfig `yaml:"replay"`
	Import ImportWorkerConfig `yaml:"import"`
}

type ReplayWorkerConfig struct {
	Count      int           `yaml:"count"`
	Interval   time.Duration `yaml:"interval"`
	BatchSize  int           `yaml:"batch_size"`
	RunOnStart bool          `yaml:"run_on_start"`
}

type ImportWorkerConfig struct {
	Count int `yaml:"count"`
}

type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AuditPath string `yaml:"audit_path"`
}

func Load() (*Config, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	return LoadFile(configPath)
}

func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.ApplyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Default returns a configuration with every default applied, backed by an
// embedded sqlite database at path.
func Default(path string) *Config {
	cfg := &Config{Database: DatabaseConfig{Driver: "sqlite", Path: path}}
	cfg.ApplyDefaults()
	return cfg
}

func (c *Config) ApplyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "placement-credit-sync"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "mysql"
	}
	if c.Database.Charset == "" {
		c.Database.Charset = "utf8mb4"
	}
	if c.Database.Loc == "" {
		c.Database.Loc = "UTC"
	}
	if c.Redis.ImportQueue == "" {
		c.Redis.ImportQueue = "credit:import"
	}
	if c.Redis.ReplayQueue == "" {
		c.Redis.ReplayQueue = "credit:replay"
	}
	if c.Redis.DLQSuffix == "" {
		c.Redis.DLQSuffix = ":dlq"
	}
	if c.ExternalAPI.Records.Timeout <= 0 {
		c.ExternalAPI.Records.Timeout = 10 * time.Second
	}
	if c.ExternalAPI.Records.ScoresEndpoint == "" {
		c.ExternalAPI.Records.ScoresEndpoint = "/api/v1/test-scores"
	}
	if c.ExternalAPI.Records.SourceTag == "" {
		c.ExternalAPI.Records.SourceTag = "INST"
	}
	if c.ExternalAPI.Records.ExcludedStudentKeys == nil {
		c.ExternalAPI.Records.ExcludedStudentKeys = []int64{10121250, 10567708}
	}
	if c.Breaker.Cooldown <= 0 {
		c.Breaker.Cooldown = 15 * time.Minute
	}
	if c.Ledger.ReservedPrefix == "" {
		c.Ledger.ReservedPrefix = "99"
	}
	if c.Workers.Replay.Count <= 0 {
		c.Workers.Replay.Count = 1
	}
	if c.Workers.Replay.Interval <= 0 {
		c.Workers.Replay.Interval = 5 * time.Minute
	}
	if c.Workers.Replay.BatchSize <= 0 {
		c.Workers.Replay.BatchSize = 100
	}
	if c.Workers.Import.Count <= 0 {
		c.Workers.Import.Count = 2
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "mysql":
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unsupported database driver: %q", c.Database.Driver)
	}

	return nil
}

// MySQL DSN format: [username[:password]@][protocol[(address)]]/dbname[?param1=value1&...&paramN=valueN]
// parseTime is always on: ledger dates are scanned into time.Time.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=true&loc=%s",
		c.Database.User, c.Database.Password, c.Database.Host, c.Database.Port,
		c.Database.Name, c.Database.Charset, c.Database.Loc)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// RedisEnabled reports whether a Redis host is configured.
func (c *Config) RedisEnabled() bool {
	return c.Redis.Host != ""
}
