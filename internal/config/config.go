package config

import (
	"fmt"
	"time"

	env "github.com/caarlos0/env/v11"
)

type Config struct {
	DatabaseURL   string `env:"DATABASE_URL,required"`
	LedgerBaseURL string `env:"LEDGER_BASE_URL,required"`
	NotifierURL   string `env:"NOTIFIER_URL"`

	Port     int    `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv   string `env:"APP_ENV" envDefault:"production"`

	WorkerCount int `env:"WORKER_COUNT" envDefault:"8"`
	QueueSize   int `env:"QUEUE_SIZE" envDefault:"256"`

	IdempotencyTTL     time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`
	IdempotencySweep   time.Duration `env:"IDEMPOTENCY_SWEEP_INTERVAL" envDefault:"1h"`
	RecoverySweepLimit int           `env:"RECOVERY_SWEEP_LIMIT" envDefault:"100"`

	LedgerCallTimeout   time.Duration `env:"LEDGER_CALL_TIMEOUT" envDefault:"3s"`
	LedgerMaxRetries    int           `env:"LEDGER_MAX_RETRIES" envDefault:"3"`
	LedgerRetryInterval time.Duration `env:"LEDGER_RETRY_INTERVAL" envDefault:"100ms"`

	BreakerWindowSize       int           `env:"BREAKER_WINDOW_SIZE" envDefault:"20"`
	BreakerMinSamples       int           `env:"BREAKER_MIN_SAMPLES" envDefault:"5"`
	BreakerFailureThreshold float64       `env:"BREAKER_FAILURE_THRESHOLD" envDefault:"0.5"`
	BreakerOpenFor          time.Duration `env:"BREAKER_OPEN_FOR" envDefault:"10s"`
	BreakerHalfOpenProbes   int           `env:"BREAKER_HALF_OPEN_PROBES" envDefault:"3"`

	TransferDeadline    time.Duration `env:"TRANSFER_DEADLINE" envDefault:"30s"`
	CompensationTimeout time.Duration `env:"COMPENSATION_TIMEOUT" envDefault:"15s"`

	DBMaxOpenConns     int `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns     int `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBConnMaxLifetimeS int `env:"DB_CONN_MAX_LIFETIME_S" envDefault:"300"`
	DBConnMaxIdleTimeS int `env:"DB_CONN_MAX_IDLE_TIME_S" envDefault:"60"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}
