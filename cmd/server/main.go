package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"accredo/internal/accreditation/engine"
	accrhandler "accredo/internal/accreditation/handler"
	"accredo/internal/accreditation/metrics"
	accrstore "accredo/internal/accreditation/store"
	"accredo/internal/accreditation/tracer"
	"accredo/internal/audit"
	"accredo/internal/extraction"
	"accredo/internal/facematch"
	"accredo/internal/notify"
	"accredo/internal/platform/config"
	"accredo/internal/platform/database"
	"accredo/internal/platform/health"
	"accredo/internal/platform/httpserver"
	"accredo/internal/platform/kafka/producer"
	"accredo/internal/platform/logger"
	platformredis "accredo/internal/platform/redis"
	"accredo/internal/refdata"
	httptransport "accredo/internal/transport/http"
	"accredo/internal/voterindex"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in the domain packages.
func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.ParseLevel("info")).Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(logger.ParseLevel(cfg.LogLevel))

	log.Info("initializing accredo",
		"addr", cfg.Addr,
		"environment", cfg.Environment,
		"session_backend", cfg.SessionBackend,
	)

	ctx := context.Background()
	healthHandler := health.New(cfg.Environment)

	// Reference data and the voter register load in parallel; both are
	// required before the server can accept traffic.
	var (
		voters  []voterindex.VoterRecord
		catalog *refdata.Catalog
	)
	g, loadCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		voters, err = voterindex.NewFileLoader(cfg.VoterRegistryPath).LoadAll(loadCtx)
		return err
	})
	g.Go(func() error {
		var err error
		catalog, err = refdata.LoadCatalog(loadCtx, cfg.PartiesPath, cfg.PollingUnitsPath)
		return err
	})
	if err := g.Wait(); err != nil {
		log.Error("failed to load reference data", "error", err)
		os.Exit(1)
	}

	tieBreak := voterindex.TieBreakFirstRegistered
	if cfg.SuffixTieBreak == "reject" {
		tieBreak = voterindex.TieBreakReject
	}
	registry := voterindex.New(voters, voterindex.WithTieBreak(tieBreak))
	log.Info("voter register loaded", "records", registry.Len(),
		"polling_units", len(catalog.PollingUnits()))

	sessionStore, cleanup, err := buildSessionStore(ctx, cfg, healthHandler)
	if err != nil {
		log.Error("failed to initialize session store", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	auditor, closeAudit := buildAuditPublisher(cfg, log, healthHandler)
	defer closeAudit()

	var extractor extraction.Extractor
	if cfg.ExtractorURL != "" {
		extractor = extraction.NewHTTPClient(cfg.ExtractorURL, cfg.ExtractorAPIKey, cfg.ExtractorTimeout)
	} else {
		// Without a provider every card submission is an outage; manual
		// accreditation still works.
		log.Warn("no extractor configured, auto path will report upstream unavailable")
		extractor = unavailableExtractor{}
	}

	eng := engine.New(sessionStore, extractor, facematch.NewStub(), registry,
		engine.WithAudit(auditor),
		engine.WithMetrics(metrics.New()),
		engine.WithTracer(tracer.NewOTel()),
		engine.WithLogger(log),
	)

	handlerOpts := []accrhandler.Option{}
	if cfg.NotifyURL != "" && cfg.NotifyRecipient != "" {
		handlerOpts = append(handlerOpts,
			accrhandler.WithNotifier(notify.NewHTTPSender(cfg.NotifyURL, cfg.NotifyTimeout), cfg.NotifyRecipient))
	}

	router := httptransport.NewRouter(httptransport.Deps{
		Accreditation: accrhandler.New(eng, log, handlerOpts...),
		RefData:       refdata.NewHandler(catalog),
		Health:        healthHandler,
		Logger:        log,
		Timeout:       cfg.RequestTimeout,
	})

	srv := httpserver.New(cfg.Addr, router)

	log.Info("starting http server", "addr", cfg.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

// buildSessionStore picks the configured backend and registers its readiness
// check. The returned cleanup closes any underlying connections.
func buildSessionStore(ctx context.Context, cfg config.Config, h *health.Handler) (accrstore.Store, func(), error) {
	switch cfg.SessionBackend {
	case "postgres":
		dbCfg := database.DefaultConfig()
		dbCfg.URL = cfg.DatabaseURL
		db, err := database.Open(ctx, dbCfg)
		if err != nil {
			return nil, nil, err
		}
		h.RegisterCheck("postgres", database.HealthCheck(db))
		return accrstore.NewPostgres(db), func() { _ = db.Close() }, nil
	case "redis":
		client, err := platformredis.New(ctx, platformredis.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			return nil, nil, err
		}
		h.RegisterCheck("redis", platformredis.HealthCheck(client))
		return accrstore.NewRedis(client), func() { _ = client.Close() }, nil
	default:
		return accrstore.NewMemory(), func() {}, nil
	}
}

// buildAuditPublisher wires the audit trail: Kafka when brokers are
// configured, otherwise the in-memory sink.
func buildAuditPublisher(cfg config.Config, log *slog.Logger, h *health.Handler) (*audit.Publisher, func()) {
	if len(cfg.KafkaBrokers) > 0 {
		p, err := producer.New(cfg.KafkaBrokers, log)
		if err != nil {
			log.Error("failed to connect kafka audit sink, falling back to memory", "error", err)
		} else {
			h.RegisterCheck("kafka", func() error {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				return p.Ping(ctx)
			})
			pub := audit.NewPublisher(audit.NewKafkaStore(p, cfg.AuditTopic),
				audit.WithAsyncBuffer(1024),
				audit.WithPublisherLogger(log),
			)
			return pub, func() {
				pub.Close()
				p.Close()
			}
		}
	}
	pub := audit.NewPublisher(audit.NewInMemoryStore(),
		audit.WithAsyncBuffer(1024),
		audit.WithPublisherLogger(log),
	)
	return pub, pub.Close
}

// unavailableExtractor stands in when no provider is configured.
type unavailableExtractor struct{}

func (unavailableExtractor) Extract(context.Context, string) (extraction.CardFields, error) {
	return extraction.CardFields{}, extraction.NewProviderError(
		extraction.KindOutage, "none", "no extraction provider configured", nil)
}
