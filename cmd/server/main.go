package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.etcd.io/bbolt"
	"golang.org/x/sync/errgroup"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"exam-practice/backend/internal/audit"
	auditrepo "exam-practice/backend/internal/audit/repository"
	"exam-practice/backend/internal/config"
	"exam-practice/backend/internal/db"
	identityservice "exam-practice/backend/internal/identity/service"
	"exam-practice/backend/internal/policy/engine"
	"exam-practice/backend/internal/security"
	"exam-practice/backend/internal/server"
	"exam-practice/backend/internal/server/httpapi"
	"exam-practice/backend/internal/session/heartbeat"
	sessionrepo "exam-practice/backend/internal/session/repository"
	sessionservice "exam-practice/backend/internal/session/service"
	"exam-practice/backend/internal/session/store"
	"exam-practice/backend/internal/telemetry"
	oteltelemetry "exam-practice/backend/internal/telemetry/otel"
	"exam-practice/backend/internal/telemetry/producer"
	userrepo "exam-practice/backend/internal/user/repository"
	userservice "exam-practice/backend/internal/user/service"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := oteltelemetry.NewProviders(ctx, oteltelemetry.Config{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: cfg.ServiceName,
		Insecure:    cfg.OTLPInsecure,
	})
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	providers.SetGlobal()
	metrics := telemetry.NewMetrics(providers.MeterProvider.Meter(telemetry.MeterName))

	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		pool, err = db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("database: %v", err)
		}
		defer pool.Close()
	}

	repo, closeRepo, err := sessionRepository(cfg, pool)
	if err != nil {
		log.Fatalf("session backend: %v", err)
	}
	defer closeRepo()

	sessions := store.New(repo,
		store.WithWriters(cfg.PersistWorkers, cfg.PersistQueueSize),
		store.WithPersistTimeout(cfg.PersistTimeout()),
		store.WithMetrics(metrics),
	)

	sinks := []audit.Sink{audit.LogSink{}}
	if pool != nil && cfg.AuditPostgresSink {
		sinks = append(sinks, auditrepo.NewPostgresRepository(pool))
	}
	kafkaSink := producer.NewKafkaProducer(cfg.KafkaBrokersList(), cfg.AuditKafkaTopic)
	if kafkaSink != nil {
		sinks = append(sinks, kafkaSink)
		defer kafkaSink.Close()
	}
	if cfg.OTLPEndpoint != "" {
		sinks = append(sinks, oteltelemetry.NewAuditLogSink(providers.LoggerProvider))
	}
	auditor := audit.NewLogger(cfg.PersistTimeout(), metrics, sinks...)

	tokens, err := security.NewTokenCodec(cfg.AccessSecret, cfg.RefreshSecret, cfg.JWTIssuer, cfg.AccessTTL(), cfg.RefreshTTL())
	if err != nil {
		log.Fatalf("tokens: %v", err)
	}

	policy, err := statusPolicy(ctx, cfg.StatusPolicyFile)
	if err != nil {
		log.Fatalf("policy: %v", err)
	}

	var users userrepo.Repository
	if pool != nil {
		users = userrepo.NewPostgresRepository(pool)
	} else {
		log.Println("server: DATABASE_URL not set, using an empty in-memory admin directory")
		users = userrepo.NewMemRepository()
	}
	status := userservice.NewStatusService(users, policy, cfg.RequireEmailVerified)

	beats := heartbeat.NewScheduler(sessions, cfg.HeartbeatInterval(),
		heartbeat.WithOnExpired(sessionservice.ExpiredAuditor(auditor, metrics)),
		heartbeat.WithMetrics(metrics),
	)

	mgr := sessionservice.NewManager(sessionservice.Deps{
		Store:        sessions,
		Heartbeats:   beats,
		Tokens:       tokens,
		Fingerprints: security.NewFingerprintGenerator(cfg.FingerprintIncludeIP),
		Users:        status,
		Audit:        auditor,
		Metrics:      metrics,
	}, sessionservice.Config{
		RefreshThreshold:      cfg.RefreshThreshold(),
		MaxConcurrentSessions: cfg.MaxConcurrentSessions,
		LimitPolicy:           cfg.SessionLimitPolicy,
		UserStatusTimeout:     cfg.UserStatusTimeout(),
	}, nil)

	health := map[string]httpapi.HealthCheck{"policy": policy.HealthCheck}
	if pool != nil {
		health["database"] = pool.Ping
	}
	api := httpapi.New(httpapi.Deps{
		Sessions: mgr,
		Auth:     identityservice.NewAuthService(users, status, security.NewHasher(cfg.BcryptCost)),
		Cookies: &httpapi.CookieManager{
			Path:           cfg.CookiePath,
			Secure:         cfg.IsProduction(),
			AccessTTL:      cfg.AccessTTL(),
			FingerprintTTL: cfg.FingerprintCookieTTL(),
		},
		Audit:  auditor,
		Health: health,
	})
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcSrv, grpcHealth := server.NewGRPCServer(mgr)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("server: HTTP listening on %s", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		log.Printf("server: gRPC listening on %s", cfg.GRPCAddr)
		return grpcSrv.Serve(lis)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("server: shutting down...")
		grpcHealth.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		grpcSrv.GracefulStop()

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(sctx); err != nil {
			log.Printf("server: http shutdown: %v", err)
		}
		if err := mgr.Shutdown(sctx); err != nil {
			log.Printf("server: session shutdown: %v", err)
		}
		if err := providers.Shutdown(sctx); err != nil {
			log.Printf("server: telemetry shutdown: %v", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		log.Printf("server: %v", err)
	}
	log.Println("server: stopped")
}

// sessionRepository opens the durable session port named by SESSION_BACKEND.
// The memory backend has none and returns a nil Repository.
func sessionRepository(cfg *config.Config, pool *pgxpool.Pool) (sessionrepo.Repository, func(), error) {
	noop := func() {}
	switch cfg.SessionBackend {
	case config.BackendPostgres:
		return sessionrepo.NewPostgresRepository(pool), noop, nil
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return sessionrepo.NewRedisRepository(client, ""), func() { _ = client.Close() }, nil
	case config.BackendBolt:
		r, err := sessionrepo.OpenBoltRepository(cfg.BoltPath, &bbolt.Options{Timeout: time.Second})
		if err != nil {
			return nil, noop, err
		}
		return r, func() { _ = r.Close() }, nil
	default:
		// Memory-only: no durable port and no writer pool.
		return nil, noop, nil
	}
}

func statusPolicy(ctx context.Context, path string) (*engine.OPAEvaluator, error) {
	src := engine.DefaultStatusPolicy
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		src = string(b)
	}
	return engine.NewOPAEvaluator(ctx, src)
}
