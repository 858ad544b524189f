package main

import (
	bookinghandler "innkeep/internal/booking/handler"
	bookingrepo "innkeep/internal/booking/repository"
	bookingservice "innkeep/internal/booking/service"
	bookingvalidator "innkeep/internal/booking/validator"
	"innkeep/internal/events"
	healthhandler "innkeep/internal/health/handler"
	overstayhandler "innkeep/internal/overstay/handler"
	overstayrepo "innkeep/internal/overstay/repository"
	overstayservice "innkeep/internal/overstay/service"
	"innkeep/internal/payment"
	paymenthandler "innkeep/internal/payment/handler"
	tokenhandler "innkeep/internal/token/handler"
	tokenrepo "innkeep/internal/token/repository"
	tokenservice "innkeep/internal/token/service"
	webhookhandler "innkeep/internal/webhook/handler"
	webhookrepo "innkeep/internal/webhook/repository"
	webhookservice "innkeep/internal/webhook/service"
	"innkeep/pkg/app"
	"innkeep/pkg/config"
	"innkeep/pkg/kafka"
	"innkeep/pkg/postgres"
)

const ServiceName = "innkeep-server"

func main() {
	cfg := config.Load(ServiceName)
	cfg.Log.Info("Starting reservation lifecycle service")

	db, err := postgres.Connect(postgres.Config{
		DSN:         cfg.DatabaseURL,
		ConnTimeout: cfg.DatabaseConnTimeout,
	})
	if err != nil {
		cfg.Log.Fatal("Failed to connect to Postgres", "error", err)
	}
	defer db.Close()

	publisher := initPublisher(cfg)

	bookingRepo := bookingrepo.NewPostgresBookingRepository(db)
	gateway := payment.NewRESTGateway(cfg.GatewayBaseURL, cfg.GatewayAPIKey, cfg.GatewayTimeout, cfg.Log)
	calculator := payment.NewCalculator(payment.DefaultCancellationPolicy())

	machine := bookingservice.NewStateMachine(bookingRepo, gateway, calculator, publisher, cfg.Log)
	sessions := payment.NewSessionService(bookingRepo, gateway, cfg.PaymentProvider, cfg.Log)

	webhookSvc := webhookservice.NewWebhookService(webhookrepo.NewPostgresWebhookRepository(db), publisher, cfg.Log)
	tokenSvc := tokenservice.NewTokenService(tokenrepo.NewPostgresTokenRepository(db), bookingRepo, cfg.TokenTTL, cfg.Log)
	overstaySvc := overstayservice.NewOverstayService(
		overstayrepo.NewPostgresIncidentRepository(db),
		publisher,
		cfg.HotelLocation(),
		cfg.CheckoutHour,
		cfg.Log,
	)

	serverApp := app.NewApplication(cfg)
	serverApp.SetApp(
		healthhandler.NewHealthHandler(db, cfg.Log),
		webhookhandler.NewWebhookHandler(webhookSvc, cfg.Log),
		bookinghandler.NewBookingHandler(machine, bookingvalidator.NewRequestValidator(cfg.Log), cfg.Log),
		paymenthandler.NewPaymentHandler(sessions, cfg.Log),
		tokenhandler.NewTokenHandler(tokenSvc, cfg.Log),
		overstayhandler.NewOverstayHandler(overstaySvc, cfg.Log),
	)
	serverApp.Run()
}

func initPublisher(cfg *config.Config) events.Publisher {
	if len(cfg.KafkaBrokers) == 0 {
		cfg.Log.Warn("No Kafka brokers configured, lifecycle events disabled")
		return events.NewNoopPublisher()
	}

	producer, err := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaEventTopic, cfg.KafkaDLQTopic)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka producer", "error", err)
	}
	return events.NewKafkaPublisher(producer, ServiceName, cfg.Log)
}
