package config

import "github.com/caarlos0/env/v6"

type Config struct {
	// Database configuration
	Database struct {
		// Path to the SQLite database file
		Path string `env:"DB_PATH" envDefault:"database/parcelwatch.db"`
	}

	// HTTP server configuration
	Server struct {
		Port string `env:"PORT" envDefault:"5250"`
	}

	// BatchProcessing configuration
	BatchProcessing struct {
		// Maximum number of observations to accumulate before processing
		MaxBatchSize int `env:"BATCH_MAX_SIZE" envDefault:"100"`

		// Number of concurrent batch processors
		ProcessorCount int `env:"BATCH_PROCESSOR_COUNT" envDefault:"2"`

		// Maximum number of retries for failed batches
		MaxRetries int `env:"BATCH_MAX_RETRIES" envDefault:"3"`

		// Delay between retries in seconds
		RetryDelay int `env:"BATCH_RETRY_DELAY" envDefault:"5"`
	}

	// Ingest configuration for the per-observation transaction
	Ingest struct {
		// Maximum retries on transient store conflicts before the
		// observation is surfaced to the caller as retryable
		MaxRetries int `env:"INGEST_MAX_RETRIES" envDefault:"5"`

		// Initial backoff between retries in milliseconds; doubles per attempt
		RetryBackoffMS int `env:"INGEST_RETRY_BACKOFF_MS" envDefault:"25"`
	}

	// Scheduler configuration for periodic collector runs
	Scheduler struct {
		Enabled bool `env:"SCHEDULER_ENABLED" envDefault:"false"`

		// Hour of day (0-23) for the daily full scrape per market
		DailyRunHour int `env:"SCHEDULER_DAILY_HOUR" envDefault:"2"`
	}

	// Alerts configuration for the operator Telegram channel
	Alerts struct {
		Enabled  bool   `env:"ALERTS_ENABLED" envDefault:"false"`
		BotToken string `env:"ALERTS_BOT_TOKEN"`
		ChatID   string `env:"ALERTS_CHAT_ID"`
	}
}

func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
