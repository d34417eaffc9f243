package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Database *dbConfig
	Service  *svcConfig
	Worker   *workerConfig
}

type dbConfig struct {
	Type     string `envconfig:"DB_TYPE" default:"pgsql"`
	Hostname string `envconfig:"DB_HOST" default:"localhost"`
	Port     string `envconfig:"DB_PORT" default:"5432"`
	Name     string `envconfig:"DB_NAME" default:"soundforge"`
	User     string `envconfig:"DB_USER" default:"admin"`
	Password string `envconfig:"DB_PASS" default:"adminpass"`
}

type svcConfig struct {
	Address         string `envconfig:"GENERATION_API_ADDRESS" default:":8080"`
	MetricsAddress  string `envconfig:"GENERATION_API_METRICS_ADDRESS" default:":8081"`
	BaseUrl         string `envconfig:"GENERATION_API_BASE_URL" default:"http://localhost:8080"`
	LogLevel        string `envconfig:"GENERATION_API_LOG_LEVEL" default:"info"`
	OutputFolder    string `envconfig:"GENERATION_API_OUTPUT_FOLDER" default:"/var/lib/soundforge/output"`
	MigrationFolder string `envconfig:"GENERATION_API_MIGRATIONS_FOLDER" default:""`
	CORSOrigins     []string `envconfig:"GENERATION_API_CORS_ORIGINS" default:"http://localhost:3000"`
}

type workerConfig struct {
	// Count caps how many generation jobs run concurrently in this process.
	Count           int           `envconfig:"GENERATION_API_WORKER_COUNT" default:"2"`
	PollInterval    time.Duration `envconfig:"GENERATION_API_WORKER_POLL_INTERVAL" default:"2s"`
	LeaseDuration   time.Duration `envconfig:"GENERATION_API_WORKER_LEASE_DURATION" default:"5m"`
	RequeueInterval time.Duration `envconfig:"GENERATION_API_REQUEUE_INTERVAL" default:"1m"`
	// Terminal jobs older than RetentionDays are deleted by the sweeper.
	RetentionDays     int           `envconfig:"GENERATION_API_RETENTION_DAYS" default:"30"`
	RetentionInterval time.Duration `envconfig:"GENERATION_API_RETENTION_INTERVAL" default:"12h"`
}

func New() (*Config, error) {
	cfg := new(Config)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
