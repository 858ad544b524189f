package config

const (
	EnvDatabaseURL         = "DATABASE_URL"
	EnvDatabaseConnTimeout = "DATABASE_CONN_TIMEOUT"

	EnvPort     = "PORT"
	EnvLogLevel = "LOG_LEVEL"

	EnvWebhookSecret   = "PAYMENT_WEBHOOK_SECRET"
	EnvGatewayBaseURL  = "PAYMENT_GATEWAY_URL"
	EnvGatewayAPIKey   = "PAYMENT_GATEWAY_API_KEY"
	EnvGatewayTimeout  = "PAYMENT_GATEWAY_TIMEOUT"
	EnvPaymentProvider = "PAYMENT_PROVIDER"

	EnvKafkaBrokers    = "KAFKA_BROKERS"
	EnvKafkaEventTopic = "KAFKA_EVENT_TOPIC"
	EnvKafkaDLQTopic   = "KAFKA_DLQ_TOPIC"

	EnvHotelTimezone = "HOTEL_TIMEZONE"
	EnvCheckoutHour  = "CHECKOUT_HOUR"

	EnvTokenTTL       = "GUEST_TOKEN_TTL"
	EnvSweepBatchSize = "SWEEP_BATCH_SIZE"

	EnvRequestTimeout  = "REQUEST_TIMEOUT"
	EnvMaxRequestSize  = "MAX_REQUEST_SIZE"
	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"
)
