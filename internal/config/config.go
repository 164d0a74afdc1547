// Package config provides the structures and loading function for the
// billing service configuration.
package config

import (
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the top-level configuration for both binaries.
type Config struct {
	Env                     string `yaml:"env" env-default:"local"`
	StorageConnectionString string `yaml:"storage_connection_string"`
	MigrationsPath          string `yaml:"migrations_path" env-default:"./migrations"`
	CronTriggerTokenHash    string `yaml:"cron_trigger_token_hash"`
	RedisConnection         `yaml:"redis_connection"`
	HTTPServer              `yaml:"http_server"`
	RabbitMQ                `yaml:"rabbitmq"`
	Gateway                 `yaml:"gateway"`
	JWTToken                `yaml:"jwttoken"`
	Jobs                    `yaml:"jobs"`
}

// HTTPServer holds the HTTP server settings.
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp" env-default:"0.0.0.0:8080"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp" env-default:"10s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

// RedisConnection holds the redis connection settings.
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis"`
	Password     string        `yaml:"password"`
	User         string        `yaml:"user"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries" env-default:"3"`
	DialTimeout  time.Duration `yaml:"dial_timeout" env-default:"5s"`
	TimeoutRedis time.Duration `yaml:"timeoutredis" env-default:"3s"`
}

// RabbitMQ holds the connection settings for the events broker.
type RabbitMQ struct {
	RabbitMQURL        string        `yaml:"rabbitmq_url"`
	RabbitMQMaxRetries int           `yaml:"rabbitmq_max_retries" env-default:"5"`
	RabbitMQRetryDelay time.Duration `yaml:"rabbitmq_retry_delay" env-default:"3s"`
}

// Gateway holds the UPayments gateway settings. The API key and webhook
// secret come from the environment in deployed setups.
type Gateway struct {
	APIURL         string        `yaml:"api_url" env:"UPAYMENTS_API_URL"`
	SandboxAPIURL  string        `yaml:"sandbox_api_url" env:"UPAYMENTS_SANDBOX_API_URL"`
	Sandbox        bool          `yaml:"sandbox" env:"UPAYMENTS_SANDBOX" env-default:"true"`
	APIKey         string        `yaml:"api_key" env:"UPAYMENTS_API_KEY"`
	WebhookSecret  string        `yaml:"webhook_secret" env:"UPAYMENTS_WEBHOOK_SECRET"`
	GatewayTimeout time.Duration `yaml:"gateway_timeout" env-default:"10s"`
	ReturnURL      string        `yaml:"return_url"`
	CancelURL      string        `yaml:"cancel_url"`
	NotifyURL      string        `yaml:"notify_url"`
}

// JWTToken holds the settings for validating account tokens.
type JWTToken struct {
	JWTSecretKey string        `yaml:"jwt_secret_key" env:"JWT_SECRET_KEY"`
	TokenTTL     time.Duration `yaml:"token_ttl" env-default:"24h"`
}

// Jobs holds the scheduled-jobs settings.
type Jobs struct {
	DailyBonusCredits   int64  `yaml:"daily_bonus_credits" env-default:"5"`
	TrialDays           int    `yaml:"trial_days" env-default:"7"`
	LowBalanceThreshold int64  `yaml:"low_balance_threshold" env-default:"10"`
	DailyBonusSpec      string `yaml:"daily_bonus_spec" env-default:"0 0 * * *"`
	TrialExpirySpec     string `yaml:"trial_expiry_spec" env-default:"*/30 * * * *"`
	RolloverSpec        string `yaml:"rollover_spec" env-default:"0 * * * *"`
}

// MustLoad loads the config from the file named by CONFIG_PATH.
// Exits the process on any error.
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("file: %s - does not exist", configPath)
	}
	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return &cfg
}
