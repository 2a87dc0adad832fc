package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/yourorg/qr-payment-adapter/internal/config"
	"github.com/yourorg/qr-payment-adapter/internal/gateway"
	gatewaymock "github.com/yourorg/qr-payment-adapter/internal/gateway/mock"
	"github.com/yourorg/qr-payment-adapter/internal/host"
	"github.com/yourorg/qr-payment-adapter/internal/monitor"
	"github.com/yourorg/qr-payment-adapter/internal/orchestrator"
	"github.com/yourorg/qr-payment-adapter/internal/policy"
	"github.com/yourorg/qr-payment-adapter/internal/reporting"
)

const serviceName = "qr-payment-adapter"

// logSink writes run lifecycle events to the service log. The QR hash is what
// a front end would render as the scannable code; here it is only logged.
type logSink struct{}

func (logSink) ChargeReady(hash, amount string) {
	log.Printf("event: charge ready, amount=%s hash=%s", amount, hash)
}

func (logSink) StatusChanged(status gateway.Status) {
	log.Printf("event: status %s", status)
}

func (logSink) Complete(success bool) {
	log.Printf("event: run complete, success=%v", success)
}

func initTracing() (func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

func buildClient(cfg *config.Config) gateway.Client {
	if cfg.Mock {
		log.Println("gateway: running in mock mode, no real gateway traffic")
		return gatewaymock.NewClient()
	}
	creds := gateway.Credentials{
		APIKey:    cfg.APIKey,
		SecretKey: cfg.SecretKey,
		BaseURL:   cfg.BaseURL,
	}
	httpc := &http.Client{Timeout: cfg.HTTPTimeout.Std()}
	return gateway.NewHTTPClient(creds, policy.DefaultEnforcer(), httpc)
}

func setupRouter(adapter *host.Adapter, journal *reporting.Journal) *gin.Engine {
	router := gin.Default()
	router.Use(otelgin.Middleware(serviceName))

	router.POST("/initialize", func(c *gin.Context) {
		var req struct {
			Parameters string `json:"parameters"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
			return
		}
		if err := adapter.Initialize(req.Parameters); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "initialized"})
	})

	router.GET("/behavior", func(c *gin.Context) {
		c.JSON(http.StatusOK, adapter.Behavior())
	})

	router.POST("/transaction", func(c *gin.Context) {
		body, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Error reading request body: " + err.Error()})
			return
		}
		if err := adapter.ValidateRequest(body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		var req host.TransactionRequest
		if err := json.Unmarshal(body, &req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
			return
		}
		c.JSON(http.StatusOK, adapter.SubmitTransaction(c.Request.Context(), req))
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/report", func(c *gin.Context) {
		c.JSON(http.StatusOK, reporting.Generate(journal.Entries()))
	})

	return router
}

func main() {
	shutdown, err := initTracing()
	if err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			log.Printf("Error shutting down tracer provider: %v", err)
		}
	}()

	configPath := os.Getenv("QRPAY_CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	contract, err := monitor.NewContractMonitor()
	if err != nil {
		log.Fatalf("Failed to compile transaction schema: %v", err)
	}

	journal := reporting.NewJournal()
	orch := orchestrator.New(buildClient(cfg), orchestrator.Config{
		Device: gateway.Device{
			ID:   cfg.Device.ID,
			Name: cfg.Device.Name,
			User: cfg.Device.User,
		},
		GroupID:      cfg.GroupID,
		PollInterval: cfg.PollInterval.Std(),
		PollAttempts: cfg.PollAttempts,
	}, logSink{}, journal)

	adapter := host.New(orch, host.RequestConfirmer{}, contract)

	log.Printf("Starting server on %s...", cfg.ListenAddr)
	router := setupRouter(adapter, journal)
	if err := router.Run(cfg.ListenAddr); err != nil {
		log.Fatalf("Failed to run server: %v", err)
	}
}
