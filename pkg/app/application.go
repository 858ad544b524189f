package app

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/julienschmidt/httprouter"

	"innkeep/pkg/config"
	"innkeep/pkg/contracts"
	"innkeep/pkg/middleware"
)

const webhookPathPrefix = "/api/v1/webhooks/"

type Application struct {
	cfg            *config.Config
	server         *http.Server
	healthHandler  http.Handler
	apiHandler     http.Handler
	webhookHandler http.Handler
}

func NewApplication(cfg *config.Config) *Application {
	return &Application{cfg: cfg}
}

func (a *Application) SetApp(healthHandler contracts.Handler, webhookHandler contracts.Handler, apiHandlers ...contracts.Handler) {
	a.setHealthHandler(healthHandler)
	a.setAPIHandler(apiHandlers)
	a.setWebhookHandler(webhookHandler)
	a.setAppServer()
}

func (a *Application) setHealthHandler(h contracts.Handler) {
	router := httprouter.New()
	h.RegisterRoutes(router)

	var handler http.Handler = router
	handler = middleware.RequestLogging(a.cfg.Log)(handler)
	handler = middleware.Recovery(a.cfg.Log)(handler)
	a.healthHandler = handler
	a.cfg.Log.Info("Health endpoints configured with minimal middleware (Recovery + Logging only)")
}

func (a *Application) setAPIHandler(handlers []contracts.Handler) {
	router := httprouter.New()
	for _, h := range handlers {
		h.RegisterRoutes(router)
	}

	var handler http.Handler = router
	handler = middleware.RequestTimeout(a.cfg.RequestTimeout)(handler)
	handler = middleware.ContentTypeValidation(a.cfg.Log)(handler)
	handler = middleware.MaxRequestSize(int64(a.cfg.MaxRequestSize))(handler)
	handler = middleware.RequestLogging(a.cfg.Log)(handler)
	handler = middleware.Recovery(a.cfg.Log)(handler)
	a.apiHandler = handler
	a.cfg.Log.Info("API endpoints configured with full middleware stack")
}

// setWebhookHandler builds a chain for the provider webhook only: same stack
// as the API plus HMAC signature verification before any body decoding.
func (a *Application) setWebhookHandler(h contracts.Handler) {
	router := httprouter.New()
	h.RegisterRoutes(router)

	var handler http.Handler = router
	handler = middleware.RequestTimeout(a.cfg.RequestTimeout)(handler)
	if a.cfg.WebhookSecret != "" {
		handler = middleware.WebhookSignatureVerification(a.cfg.WebhookSecret, a.cfg.Log)(handler)
		a.cfg.Log.Info("Webhook signature verification enabled")
	} else {
		a.cfg.Log.Warn("Webhook signature verification DISABLED: no secret configured")
	}
	handler = middleware.ContentTypeValidation(a.cfg.Log)(handler)
	handler = middleware.MaxRequestSize(int64(a.cfg.MaxRequestSize))(handler)
	handler = middleware.RequestLogging(a.cfg.Log)(handler)
	handler = middleware.Recovery(a.cfg.Log)(handler)
	a.webhookHandler = handler
}

func (a *Application) setAppServer() {
	mux := http.NewServeMux()
	mux.Handle("/health", a.healthHandler)
	mux.Handle("/ready", a.healthHandler)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, webhookPathPrefix) {
			a.webhookHandler.ServeHTTP(w, r)
			return
		}
		a.apiHandler.ServeHTTP(w, r)
	})

	a.server = &http.Server{
		Addr:         ":" + a.cfg.Port,
		Handler:      mux,
		ReadTimeout:  a.cfg.ReadTimeout,
		WriteTimeout: a.cfg.WriteTimeout,
		IdleTimeout:  a.cfg.IdleTimeout,
	}

	a.cfg.Log.Info("HTTP server configured", "port", a.cfg.Port)
}

func (a *Application) Run() {
	serverErrors := make(chan error, 1)

	go func() {
		a.cfg.Log.Info("Starting HTTP server", "address", a.server.Addr)
		serverErrors <- a.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		a.cfg.Log.Fatal("HTTP server failed", "error", err)

	case sig := <-shutdown:
		a.cfg.Log.Info("Shutdown signal received", "signal", sig)
		a.gracefulShutdown()
	}
}

func (a *Application) gracefulShutdown() {
	a.cfg.Log.Info("Starting graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		a.cfg.Log.Error("Server shutdown failed", "error", err)
		if err := a.server.Close(); err != nil {
			a.cfg.Log.Fatal("Could not stop server gracefully", "error", err)
		}
	}

	a.cfg.Log.Info("Server stopped gracefully")
}
