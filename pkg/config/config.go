package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"innkeep/pkg/logger"
)

type Config struct {
	DatabaseURL         string
	DatabaseConnTimeout time.Duration

	Port string

	WebhookSecret   string
	GatewayBaseURL  string
	GatewayAPIKey   string
	GatewayTimeout  time.Duration
	PaymentProvider string

	KafkaBrokers    []string
	KafkaEventTopic string
	KafkaDLQTopic   string

	HotelTimezone string
	CheckoutHour  int

	TokenTTL       time.Duration
	SweepBatchSize int

	RequestTimeout  time.Duration
	MaxRequestSize  int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	Log *logger.Logger
}

func Load(serviceName string) *Config {
	cfg := &Config{
		DatabaseURL:         getEnvStr(EnvDatabaseURL, DefaultDatabaseURL),
		DatabaseConnTimeout: getEnvDuration(EnvDatabaseConnTimeout, DefaultDatabaseConnTimeout),

		Port: getEnvStr(EnvPort, DefaultPort),

		WebhookSecret:   getEnvStr(EnvWebhookSecret, ""),
		GatewayBaseURL:  getEnvStr(EnvGatewayBaseURL, ""),
		GatewayAPIKey:   getEnvStr(EnvGatewayAPIKey, ""),
		GatewayTimeout:  getEnvDuration(EnvGatewayTimeout, DefaultGatewayTimeout),
		PaymentProvider: getEnvStr(EnvPaymentProvider, DefaultPaymentProvider),

		KafkaBrokers:    getEnvList(EnvKafkaBrokers),
		KafkaEventTopic: getEnvStr(EnvKafkaEventTopic, DefaultKafkaEventTopic),
		KafkaDLQTopic:   getEnvStr(EnvKafkaDLQTopic, DefaultKafkaDLQTopic),

		HotelTimezone: getEnvStr(EnvHotelTimezone, DefaultHotelTimezone),
		CheckoutHour:  getEnvNum(EnvCheckoutHour, DefaultCheckoutHour),

		TokenTTL:       getEnvDuration(EnvTokenTTL, DefaultTokenTTL),
		SweepBatchSize: getEnvNum(EnvSweepBatchSize, DefaultSweepBatchSize),

		RequestTimeout:  getEnvDuration(EnvRequestTimeout, DefaultRequestTimeout),
		MaxRequestSize:  getEnvNum(EnvMaxRequestSize, DefaultMaxRequestSize),
		ReadTimeout:     getEnvDuration(EnvReadTimeout, DefaultReadTimeout),
		WriteTimeout:    getEnvDuration(EnvWriteTimeout, DefaultWriteTimeout),
		IdleTimeout:     getEnvDuration(EnvIdleTimeout, DefaultIdleTimeout),
		ShutdownTimeout: getEnvDuration(EnvShutdownTimeout, DefaultShutdownTimeout),

		Log: logger.New(logger.Config{
			Level:     getEnvStr(EnvLogLevel, DefaultLogLevel),
			Format:    logger.JSON,
			AddSource: true,
			Service:   serviceName,
		}),
	}

	if err := cfg.Validate(); err != nil {
		cfg.Log.Fatal(err.Error())
	}
	cfg.LogConfiguration()
	return cfg
}

func (cfg *Config) Validate() error {
	var errs []string

	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("Port must be between 1 and 65535, got: %s", cfg.Port))
	}

	if cfg.DatabaseURL == "" {
		errs = append(errs, "DatabaseURL cannot be empty")
	} else if !regexp.MustCompile(`^postgres(ql)?://`).MatchString(cfg.DatabaseURL) {
		errs = append(errs, fmt.Sprintf("DatabaseURL must start with 'postgres://', got: %s", redactDSN(cfg.DatabaseURL)))
	}

	if cfg.DatabaseConnTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("DatabaseConnTimeout must be positive, got: %s", cfg.DatabaseConnTimeout))
	}
	if cfg.GatewayTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("GatewayTimeout must be positive, got: %s", cfg.GatewayTimeout))
	}
	if cfg.TokenTTL <= 0 {
		errs = append(errs, fmt.Sprintf("TokenTTL must be positive, got: %s", cfg.TokenTTL))
	}
	if cfg.SweepBatchSize <= 0 {
		errs = append(errs, fmt.Sprintf("SweepBatchSize must be positive, got: %d", cfg.SweepBatchSize))
	}
	if cfg.CheckoutHour < 0 || cfg.CheckoutHour > 23 {
		errs = append(errs, fmt.Sprintf("CheckoutHour must be between 0 and 23, got: %d", cfg.CheckoutHour))
	}
	if _, err := time.LoadLocation(cfg.HotelTimezone); err != nil {
		errs = append(errs, fmt.Sprintf("HotelTimezone is not a valid IANA timezone: %s", cfg.HotelTimezone))
	}
	if cfg.RequestTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("RequestTimeout must be positive, got: %s", cfg.RequestTimeout))
	}
	if cfg.MaxRequestSize <= 0 {
		errs = append(errs, fmt.Sprintf("MaxRequestSize must be positive, got: %d", cfg.MaxRequestSize))
	}
	if cfg.ReadTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("ReadTimeout must be positive, got: %s", cfg.ReadTimeout))
	}
	if cfg.WriteTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("WriteTimeout must be positive, got: %s", cfg.WriteTimeout))
	}
	if cfg.IdleTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("IdleTimeout must be positive, got: %s", cfg.IdleTimeout))
	}
	if cfg.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("ShutdownTimeout must be positive, got: %s", cfg.ShutdownTimeout))
	}

	if len(errs) > 0 {
		errMsg := "Configuration validation failed:\n"
		for i, e := range errs {
			errMsg += fmt.Sprintf("  %d. %s\n", i+1, e)
		}
		return fmt.Errorf("%s", errMsg)
	}

	return nil
}

func (cfg *Config) LogConfiguration() {
	cfg.Log.Info("Configuration loaded successfully",
		"database_url", redactDSN(cfg.DatabaseURL),
		"database_conn_timeout", cfg.DatabaseConnTimeout,
		"port", cfg.Port,
		"webhook_secret_set", cfg.WebhookSecret != "",
		"gateway_url", cfg.GatewayBaseURL,
		"gateway_api_key_set", cfg.GatewayAPIKey != "",
		"gateway_timeout", cfg.GatewayTimeout,
		"payment_provider", cfg.PaymentProvider,
		"kafka_brokers", cfg.KafkaBrokers,
		"kafka_event_topic", cfg.KafkaEventTopic,
		"hotel_timezone", cfg.HotelTimezone,
		"checkout_hour", cfg.CheckoutHour,
		"token_ttl", cfg.TokenTTL,
		"sweep_batch_size", cfg.SweepBatchSize,
		"request_timeout", cfg.RequestTimeout,
		"max_request_size", cfg.MaxRequestSize,
	)
}

// HotelLocation resolves the configured hotel timezone. Validate() has
// already established that the name loads.
func (cfg *Config) HotelLocation() *time.Location {
	loc, err := time.LoadLocation(cfg.HotelTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func redactDSN(dsn string) string {
	credentialRegex := regexp.MustCompile(`(postgres(ql)?://)[^:]+:[^@]+@`)
	return credentialRegex.ReplaceAllString(dsn, "${1}***:***@")
}

func getEnvStr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvNum(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
