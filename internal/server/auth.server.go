package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"phone-auth-service/internal/config"
	"phone-auth-service/internal/handler"
	"phone-auth-service/internal/metrics"
	"phone-auth-service/internal/queue"
	"phone-auth-service/internal/rate"
	"phone-auth-service/internal/repository"
	"phone-auth-service/internal/router"
	"phone-auth-service/internal/service"
	"phone-auth-service/internal/sms"
	"phone-auth-service/internal/store"
	"phone-auth-service/pkg/cache"
	"phone-auth-service/pkg/jwtutil"
)

// Server owns the dependency graph: shared clients are constructed once
// here and injected into every component, nothing reaches for globals.
type Server struct {
	httpServer *http.Server
	worker     *queue.Worker
	db         *pgxpool.Pool
	rdb        redis.UniversalClient
}

func New(cfg config.Config) (*Server, error) {
	db, err := pgxpool.New(context.Background(), cfg.DBConn)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
		DB:       0,
	})
	kv := cache.NewCacheWithClient(rdb)

	jwtGen, err := jwtutil.NewGenerator([]byte(cfg.JWTSecret), cfg.JWTIssuer, cfg.AccessTTL)
	if err != nil {
		return nil, err
	}

	challenges, err := store.NewChallengeStore(kv, []byte(cfg.OTPHashSecret), cfg.OTPTTL, cfg.OTPMaxAttempts)
	if err != nil {
		return nil, err
	}

	limiter := rate.NewLimiter(kv, cfg.RateWindow, cfg.RateMax)
	counter := metrics.NewCounter(kv, cfg.MetricsTTL)

	backend := queue.NewRedisBackend(rdb)
	deliveries := queue.NewDeliveryQueue(backend, cfg.DeliveryMaxAttempts)
	worker := queue.NewWorker(backend, sms.NewSender(cfg.SMSGatewayURL), counter, cfg.DeliveryBackoff)

	userRepo := repository.NewUserRepo(db)
	tokenRepo := repository.NewRefreshTokenRepo(db)

	otpSvc := service.NewOTPService(limiter, challenges, deliveries, counter)
	sessionSvc := service.NewSessionService(tokenRepo, jwtGen, cfg.RefreshTTL)

	authHandler := handler.NewAuthHandler(otpSvc, sessionSvc, userRepo, deliveries)

	r := chi.NewRouter()
	router.SetupRoutes(r, authHandler)

	return &Server{
		httpServer: &http.Server{
			Addr:    cfg.HTTPAddr,
			Handler: r,
		},
		worker: worker,
		db:     db,
		rdb:    rdb,
	}, nil
}

// Start runs the delivery worker and serves HTTP until Shutdown.
func (s *Server) Start() error {
	s.worker.Start()
	log.Printf("phone-auth HTTP server listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("[WARN] http shutdown: %v", err)
	}

	s.worker.Stop()

	if err := s.rdb.Close(); err != nil {
		log.Printf("[WARN] closing redis: %v", err)
	}
	s.db.Close()
}
