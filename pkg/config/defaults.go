package config

import "time"

const (
	DefaultDatabaseURL         = "postgres://localhost:5432/innkeep?sslmode=disable"
	DefaultDatabaseConnTimeout = 10 * time.Second

	DefaultPort     = "8080"
	DefaultLogLevel = "info"

	DefaultGatewayTimeout  = 10 * time.Second
	DefaultPaymentProvider = "stripe"

	DefaultKafkaEventTopic = "booking-events"
	DefaultKafkaDLQTopic   = "booking-events-dlq"

	DefaultHotelTimezone = "UTC"
	DefaultCheckoutHour  = 11

	DefaultTokenTTL       = 72 * time.Hour
	DefaultSweepBatchSize = 100

	DefaultRequestTimeout  = 30 * time.Second
	DefaultMaxRequestSize  = 1 * 1024 * 1024 // 1MB
	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
)
