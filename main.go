package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	apihttp "shuttle-gateway/internal/api/http"
	"shuttle-gateway/internal/auth"
	commandsapp "shuttle-gateway/internal/commands/application"
	commandsevents "shuttle-gateway/internal/commands/application/events"
	commandsrepo "shuttle-gateway/internal/commands/infrastructure/postgres"
	"shuttle-gateway/internal/dispatch"
	"shuttle-gateway/internal/eventing"
	eventingrepo "shuttle-gateway/internal/eventing/infrastructure/postgres"
	fleet "shuttle-gateway/internal/fleet/domain"
	fleetrepo "shuttle-gateway/internal/fleet/infrastructure/postgres"
	"shuttle-gateway/internal/heartbeat"
	"shuttle-gateway/internal/notify"
	"shuttle-gateway/internal/observability/metrics"
	"shuttle-gateway/internal/poller"
	"shuttle-gateway/internal/reports"
	"shuttle-gateway/internal/shuttlelink"
	"shuttle-gateway/internal/wmsadapter"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	_ = godotenv.Load()
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("db open error: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatalf("db ping error: %v", err)
	}

	metrics.Init()

	fleetCfg, err := fleet.LoadConfig(cfg.FleetConfigPath)
	if err != nil {
		logger.Fatalf("fleet config error: %v", err)
	}
	shuttleIDs := make([]string, 0, len(fleetCfg.Shuttles))
	for id := range fleetCfg.Shuttles {
		shuttleIDs = append(shuttleIDs, id)
	}

	commandRepo := commandsrepo.NewCommandRepository(db)
	stateRepo := fleetrepo.NewStateRepository(db)
	if err := stateRepo.EnsureStates(context.Background(), shuttleIDs); err != nil {
		logger.Fatalf("state init error: %v", err)
	}

	baseBus := eventing.NewInMemoryBus()
	registry := eventing.NewRegistry()
	registry.Register(commandsevents.CommandQueued{})
	registry.Register(commandsevents.CommandSent{})
	registry.Register(commandsevents.CommandCompleted{})
	registry.Register(commandsevents.CommandFailed{})
	registry.Register(commandsevents.ShuttleMessageReceived{})

	outboxStore := eventingrepo.NewOutboxStore(db)
	dlqStore := eventingrepo.NewDLQStore(db)
	processedStore := eventingrepo.NewProcessedStore(db)
	dispatcher := eventing.NewDispatcher(baseBus, outboxStore, registry, dlqStore)
	publisher := eventing.NewPublisher(outboxStore, dispatcher, baseBus)

	machine := fleet.NewStateMachine(logger)
	queue := dispatch.NewQueue(cfg.QueueCapacity)
	service := commandsapp.NewService(commandRepo, stateRepo, fleetCfg, queue, machine, publisher, logger)

	sender := shuttlelink.NewSender(fleetCfg, logger)
	pool := dispatch.NewPool(queue, sender, commandRepo, stateRepo, publisher, cfg.Workers, logger)

	listener := shuttlelink.NewListener(cfg.ListenAddr, fleetCfg, service.HandleMessage, logger)

	live := wmsadapter.Config{
		BaseURL:  cfg.WMSBaseURL,
		Username: cfg.WMSUsername,
		Password: cfg.WMSPassword,
		Timeout:  cfg.WMSTimeout,
	}
	mock := wmsadapter.Config{
		BaseURL: cfg.WMSMockURL,
		Timeout: cfg.WMSTimeout,
	}
	wmsPoller, err := poller.New(live, mock, service, commandRepo, poller.Options{
		Interval:       cfg.PollInterval,
		WindowOverlap:  cfg.PollOverlap,
		CommandTimeout: cfg.CommandTimeout,
	}, logger)
	if err != nil {
		logger.Fatalf("poller error: %v", err)
	}

	monitor := heartbeat.New(shuttleIDs, sender, stateRepo, heartbeat.Options{
		Interval: cfg.HeartbeatInterval,
	}, logger)

	if cfg.WebhookURL != "" {
		channel, err := notify.NewWebhookChannel(cfg.WebhookURL, notify.WithBearerToken(cfg.WebhookToken))
		if err != nil {
			logger.Fatalf("webhook channel error: %v", err)
		}
		notifier, err := notify.NewNotifier(channel, logger, notify.WithCooldown(cfg.NotifyCooldown))
		if err != nil {
			logger.Fatalf("notifier error: %v", err)
		}
		notifier.Register(baseBus, processedStore)
	}

	broker := apihttp.NewSSEBroker()
	broker.Register(baseBus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool.Start(ctx)
	go wmsPoller.Run(ctx)
	go monitor.Run(ctx)
	go func() {
		if err := listener.ListenAndServe(ctx); err != nil {
			logger.Fatalf("shuttle listener error: %v", err)
		}
	}()
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := dispatcher.Dispatch(ctx, 50); err != nil {
					logger.Printf("outbox dispatch error: %v", err)
				}
			}
		}
	}()

	apiHandler, err := apihttp.NewHandler(service, commandRepo)
	if err != nil {
		logger.Fatalf("api handler error: %v", err)
	}
	mockHandler, err := apihttp.NewMockHandler(wmsPoller)
	if err != nil {
		logger.Fatalf("mock handler error: %v", err)
	}
	reportHandler, err := reports.NewHandler(stateRepo, commandRepo)
	if err != nil {
		logger.Fatalf("report handler error: %v", err)
	}

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/commands", apiHandler.Commands)
	mux.HandleFunc("/api/v1/shuttles", apiHandler.Shuttles)
	mux.HandleFunc("/api/v1/shuttles/", apiHandler.ShuttleCommands)
	mux.Handle("/api/v1/events/stream", apihttp.NewStreamHandler(broker))
	mux.Handle("/api/v1/wms/mock", mockHandler)
	mux.Handle("/api/v1/exports/fleet.xlsx", reportHandler)
	mux.Handle("/api/v1/exports/fleet.pdf", reportHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(authMiddleware.Wrap(mux), logger)}
	logger.Printf("http listening on %s", cfg.HTTPAddr)
	logger.Fatal(server.ListenAndServe())
}

type config struct {
	DatabaseURL       string
	HTTPAddr          string
	ListenAddr        string
	FleetConfigPath   string
	WMSBaseURL        string
	WMSUsername       string
	WMSPassword       string
	WMSMockURL        string
	WMSTimeout        time.Duration
	PollInterval      time.Duration
	PollOverlap       time.Duration
	CommandTimeout    time.Duration
	HeartbeatInterval time.Duration
	QueueCapacity     int
	Workers           int
	WebhookURL        string
	WebhookToken      string
	NotifyCooldown    time.Duration
	JWTSecret         string
}

func loadConfig() config {
	cfg := config{
		DatabaseURL:       getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:          getenvDefault("HTTP_ADDR", ":8080"),
		ListenAddr:        getenvDefault("SHUTTLE_LISTEN_ADDR", ":2010"),
		FleetConfigPath:   getenvDefault("FLEET_CONFIG", "fleet.yaml"),
		WMSBaseURL:        getenvDefault("WMS_BASE_URL", ""),
		WMSUsername:       getenvDefault("WMS_USERNAME", ""),
		WMSPassword:       getenvDefault("WMS_PASSWORD", ""),
		WMSMockURL:        getenvDefault("WMS_MOCK_URL", "http://localhost:19080"),
		WMSTimeout:        getenvDuration("WMS_TIMEOUT", 10*time.Second),
		PollInterval:      getenvDuration("WMS_POLL_INTERVAL", 30*time.Second),
		PollOverlap:       getenvDuration("WMS_POLL_OVERLAP", 5*time.Second),
		CommandTimeout:    getenvDuration("COMMAND_TIMEOUT", 5*time.Minute),
		HeartbeatInterval: getenvDuration("HEARTBEAT_INTERVAL", time.Minute),
		QueueCapacity:     getenvIntDefault("QUEUE_CAPACITY", 1000),
		Workers:           getenvIntDefault("DISPATCH_WORKERS", 4),
		WebhookURL:        getenvDefault("WMS_WEBHOOK_URL", ""),
		WebhookToken:      getenvDefault("WMS_WEBHOOK_TOKEN", ""),
		NotifyCooldown:    getenvDuration("NOTIFY_COOLDOWN", time.Minute),
		JWTSecret:         getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL or PG_DSN is required")
	}
	if cfg.WMSBaseURL == "" {
		log.Fatal("WMS_BASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		log.Fatal("AUTH_JWT_SECRET is required")
	}
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Flush keeps the event stream working behind the logging wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
