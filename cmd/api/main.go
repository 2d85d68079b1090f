package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/jordanharvey/fieldline/internal/api/router"
	appconfig "github.com/jordanharvey/fieldline/internal/config"
	appevents "github.com/jordanharvey/fieldline/internal/events"
	"github.com/jordanharvey/fieldline/internal/http/handlers"
	"github.com/jordanharvey/fieldline/internal/messaging"
	"github.com/jordanharvey/fieldline/internal/messaging/telnyxclient"
	observemetrics "github.com/jordanharvey/fieldline/internal/observability/metrics"
	"github.com/jordanharvey/fieldline/internal/routing"
	"github.com/jordanharvey/fieldline/internal/telephony"
	"github.com/jordanharvey/fieldline/internal/tenant"
	"github.com/jordanharvey/fieldline/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting fieldline telephony router",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create pgx pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	var cache redis.UniversalClient
	if cfg.RedisAddr != "" {
		opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		cache = redis.NewClient(opts)
	}

	var verifier *telephony.Verifier
	if cfg.TelnyxPublicKey != "" {
		verifier, err = telephony.NewVerifier(cfg.TelnyxPublicKey, cfg.SignatureMaxSkew, cfg.StrictSignatureVerification)
		if err != nil {
			logger.Error("invalid webhook public key", "error", err)
			os.Exit(1)
		}
	} else if cfg.StrictSignatureVerification {
		logger.Error("TELNYX_PUBLIC_KEY is required when STRICT_SIGNATURE_VERIFICATION is on")
		os.Exit(1)
	} else {
		logger.Warn("webhook signature verification disabled; debug configuration only")
	}

	var sender *telnyxclient.Client
	if cfg.TelnyxAPIKey != "" {
		sender, err = telnyxclient.New(telnyxclient.Config{
			APIKey:             cfg.TelnyxAPIKey,
			MessagingProfileID: cfg.TelnyxMessagingProfileID,
			Logger:             logger.Logger,
		})
		if err != nil {
			logger.Error("failed to build telnyx client", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Warn("TELNYX_API_KEY not set; outbound SMS disabled")
	}

	reg := prometheus.NewRegistry()
	routingMetrics := observemetrics.NewRoutingMetrics(reg)

	store := messaging.NewStore(pool)
	resolver := tenant.NewResolver(pool)
	audit := routing.NewLogStore(pool)
	processed := appevents.NewProcessedStore(pool, cache)
	forwarder := handlers.NewForwarder(cfg.ServiceBearerToken, cfg.ForwardTimeout, nil)

	smsWebhook := handlers.NewSMSWebhookHandler(handlers.SMSWebhookConfig{
		Store:     store,
		Resolver:  resolver,
		Processed: processed,
		Verifier:  verifierOrNil(verifier),
		Logger:    logger,
		Metrics:   routingMetrics,
	})
	webhookRouter := handlers.NewWebhookRouter(handlers.WebhookRouterConfig{
		Verifier:          verifierOrNil(verifier),
		Resolver:          resolver,
		Audit:             audit,
		Forwarder:         forwarder,
		SMS:               smsWebhook,
		Logger:            logger,
		Metrics:           routingMetrics,
		SMSIngestURL:      cfg.SMSIngestURL,
		AIDispatcherURL:   cfg.AIDispatcherURL,
		BasicTelephonyURL: cfg.BasicTelephonyURL,
	})
	var sendSMS *handlers.SendSMSHandler
	if sender != nil {
		sendSMS = handlers.NewSendSMSHandler(handlers.SendSMSConfig{
			Store:    store,
			Resolver: resolver,
			Sender:   sender,
			Logger:   logger,
			Metrics:  routingMetrics,
		})
	}

	r := router.New(&router.Config{
		Logger:         logger,
		WebhookRouter:  webhookRouter,
		SMSWebhook:     smsWebhook,
		SendSMS:        sendSMS,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// verifierOrNil keeps a typed-nil *Verifier from sneaking into the
// handlers' interface fields.
func verifierOrNil(v *telephony.Verifier) handlers.SignatureVerifier {
	if v == nil {
		return nil
	}
	return v
}
