package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gatekeeper/internal/admin"
	"gatekeeper/internal/audit"
	"gatekeeper/internal/audit/kafka"
	jwttoken "gatekeeper/internal/jwt_token"
	"gatekeeper/internal/platform/config"
	"gatekeeper/internal/platform/middleware"
	"gatekeeper/internal/platform/redis"
	"gatekeeper/internal/verification/ports"
	"gatekeeper/internal/verification/service"
	"gatekeeper/internal/verification/store/record"
	"gatekeeper/pkg/platform/httputil"
)

const (
	tokenIssuer   = "gatekeeper"
	tokenAudience = "gatekeeper-admin"

	auditTopicPartitions  = 3
	auditTopicReplication = 1
	inProcessAuditLimit   = 10000
)

// recordStore is what every record backend provides.
type recordStore interface {
	ports.Store
	Counts(ctx context.Context) (record.Counts, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

func openStore(ctx context.Context, cfg config.Config, log *slog.Logger) (recordStore, func(), error) {
	switch cfg.StoreDriver {
	case config.StoreMemory:
		log.Warn("using in-memory record store, verification state is lost on restart")
		return record.NewInMemoryStore(), func() {}, nil
	case config.StorePostgres:
		s, err := record.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case config.StoreRedis:
		client, err := redis.New(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		return record.NewRedisStore(client.Client), func() { _ = client.Close() }, nil
	default:
		s, err := record.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		log.Info("opened sqlite record store", "path", cfg.SQLitePath)
		return s, func() { _ = s.Close() }, nil
	}
}

type auditing struct {
	publisher *audit.Publisher
	// reader is set when events are kept in process.
	reader admin.AuditReader
	close  func()
}

// openAudit streams audit events to Kafka when brokers are configured and
// keeps a bounded in-process log otherwise.
func openAudit(ctx context.Context, cfg config.Config, log *slog.Logger) (*auditing, error) {
	opts := []audit.Option{audit.WithLogger(log), audit.WithAsyncBuffer(cfg.AuditBuffer)}
	if len(cfg.KafkaBrokers) == 0 {
		store := audit.NewBoundedInMemoryStore(inProcessAuditLimit)
		publisher := audit.NewPublisher(store, opts...)
		return &auditing{publisher: publisher, reader: store, close: publisher.Close}, nil
	}

	sink, err := kafka.NewSink(cfg.KafkaBrokers, cfg.KafkaAuditTopic)
	if err != nil {
		return nil, err
	}
	ensureCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := sink.EnsureTopic(ensureCtx, auditTopicPartitions, auditTopicReplication); err != nil {
		log.Warn("could not ensure audit topic", "topic", cfg.KafkaAuditTopic, "error", err)
	}
	publisher := audit.NewPublisher(sink, opts...)
	return &auditing{
		publisher: publisher,
		close: func() {
			publisher.Close()
			sink.Close()
		},
	}, nil
}

func newOpsRouter(cfg config.Config, log *slog.Logger, store recordStore, engine *service.Engine, adminOpts []admin.Option) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", healthHandler(store))

	if !cfg.AdminEnabled() {
		return r
	}
	tokens := jwttoken.NewJWTService(cfg.AdminJWTSecret, tokenIssuer, tokenAudience)
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(jwttoken.NewJWTServiceAdapter(tokens), log))
		admin.New(engine, store, log, adminOpts...).Register(r)
	})
	return r
}

func healthHandler(store recordStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, code := "ok", http.StatusOK
		if p, ok := store.(pinger); ok {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := p.Ping(ctx); err != nil {
				status, code = fmt.Sprintf("store: %v", err), http.StatusServiceUnavailable
			}
		}
		httputil.WriteJSON(w, code, map[string]string{"status": status})
	}
}
