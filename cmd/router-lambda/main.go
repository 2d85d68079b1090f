// router-lambda serves the webhook router behind API Gateway. The same chi
// handler the api binary serves is invoked in-process per event, matching
// the serverless deployment of the routing layer.
package main

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jordanharvey/fieldline/internal/api/router"
	appconfig "github.com/jordanharvey/fieldline/internal/config"
	appevents "github.com/jordanharvey/fieldline/internal/events"
	"github.com/jordanharvey/fieldline/internal/http/handlers"
	"github.com/jordanharvey/fieldline/internal/messaging"
	observemetrics "github.com/jordanharvey/fieldline/internal/observability/metrics"
	"github.com/jordanharvey/fieldline/internal/routing"
	"github.com/jordanharvey/fieldline/internal/telephony"
	"github.com/jordanharvey/fieldline/internal/tenant"
	"github.com/jordanharvey/fieldline/pkg/logging"
)

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create pgx pool", "error", err)
		os.Exit(1)
	}

	var verifier handlers.SignatureVerifier
	if cfg.TelnyxPublicKey != "" {
		v, err := telephony.NewVerifier(cfg.TelnyxPublicKey, cfg.SignatureMaxSkew, cfg.StrictSignatureVerification)
		if err != nil {
			logger.Error("invalid webhook public key", "error", err)
			os.Exit(1)
		}
		verifier = v
	} else if cfg.StrictSignatureVerification {
		logger.Error("TELNYX_PUBLIC_KEY is required when STRICT_SIGNATURE_VERIFICATION is on")
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	routingMetrics := observemetrics.NewRoutingMetrics(reg)
	store := messaging.NewStore(pool)
	resolver := tenant.NewResolver(pool)
	audit := routing.NewLogStore(pool)
	processed := appevents.NewProcessedStore(pool, nil)
	forwarder := handlers.NewForwarder(cfg.ServiceBearerToken, cfg.ForwardTimeout, nil)

	smsWebhook := handlers.NewSMSWebhookHandler(handlers.SMSWebhookConfig{
		Store:     store,
		Resolver:  resolver,
		Processed: processed,
		Verifier:  verifier,
		Logger:    logger,
		Metrics:   routingMetrics,
	})
	webhookRouter := handlers.NewWebhookRouter(handlers.WebhookRouterConfig{
		Verifier:          verifier,
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

	h := router.New(&router.Config{
		Logger:        logger,
		WebhookRouter: webhookRouter,
		SMSWebhook:    smsWebhook,
	})

	lambda.Start(func(ctx context.Context, evt events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
		return serve(ctx, h, evt)
	})
}

func serve(ctx context.Context, h http.Handler, evt events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	method := strings.ToUpper(strings.TrimSpace(evt.RequestContext.HTTP.Method))
	if method == "" {
		method = http.MethodPost
	}
	path := strings.TrimSpace(evt.RawPath)
	if path == "" {
		path = strings.TrimSpace(evt.RequestContext.HTTP.Path)
	}
	if path == "" {
		path = "/"
	}

	body := evt.Body
	if evt.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusBadRequest, Body: "invalid body"}, nil
		}
		body = string(decoded)
	}

	req := httptest.NewRequest(method, path, strings.NewReader(body)).WithContext(ctx)
	for name, value := range evt.Headers {
		req.Header.Set(name, value)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	headers := map[string]string{}
	for name := range rec.Header() {
		headers[name] = rec.Header().Get(name)
	}
	return events.APIGatewayV2HTTPResponse{
		StatusCode: rec.Code,
		Headers:    headers,
		Body:       rec.Body.String(),
	}, nil
}
