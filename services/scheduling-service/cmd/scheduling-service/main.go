package main

import (
	"context"
	"net/http"
	"time"
	_ "time/tzdata"

	"github.com/md-rashed-zaman/meetslot/libs/config"
	"github.com/md-rashed-zaman/meetslot/libs/db"
	"github.com/md-rashed-zaman/meetslot/libs/httpx"
	"github.com/md-rashed-zaman/meetslot/libs/kafkax"
	otelx "github.com/md-rashed-zaman/meetslot/libs/otel"
	"github.com/md-rashed-zaman/meetslot/libs/runtime"
	"github.com/md-rashed-zaman/meetslot/services/scheduling-service/internal/handlers"
	"github.com/md-rashed-zaman/meetslot/services/scheduling-service/internal/outbox"
	"github.com/md-rashed-zaman/meetslot/services/scheduling-service/internal/slots"
	"github.com/md-rashed-zaman/meetslot/services/scheduling-service/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	dotenvLoaded, dotenvErr := config.LoadDotenv()

	service := config.String("SERVICE_NAME", "scheduling-service")
	port, err := config.Port("PORT", "8085")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service, config.String("LOG_LEVEL", "info"))
	if dotenvErr != nil {
		logger.Warn("dotenv load failed", "err", dotenvErr)
	} else if dotenvLoaded {
		logger.Info("dotenv loaded")
	}

	ctx, stop := runtime.SignalContext(context.Background())
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	loc, err := config.Location("DEFAULT_TIMEZONE", "UTC")
	if err != nil {
		panic(err)
	}

	pool, err := db.Open(ctx, dbURL, db.Options{
		MaxConns: int32(config.Int("DB_MAX_CONNS", 10, 1, 200)),
	})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	brokers := kafkax.SplitBrokers(config.String("KAFKA_BROKERS", ""))
	outboxRepo := outbox.NewRepository()
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	schedulingHandler := handlers.NewSchedulingHandler(
		handlers.Stores{
			Availability:    storage.NewAvailabilityRepository(pool),
			Events:          storage.NewEventRepository(pool),
			Bookings:        storage.NewBookingRepository(pool, outboxRepo),
			MeetingRequests: storage.NewMeetingRequestRepository(pool, outboxRepo),
		},
		logger,
		handlers.Config{
			DefaultLocation:    loc,
			DefaultSlotMinutes: config.Int("DEFAULT_SLOT_MINUTES", 30, 5, 8*60),
			WindowDays:         config.Int("BOOKING_WINDOW_DAYS", slots.DefaultWindowDays, 1, 365),
			Policy:             slots.Policy{BufferAroundBookings: config.Bool("STRICT_BOOKING_BUFFER", false)},
		},
	)

	readiness := runtime.Readiness{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	}
	rateLimitMW, closeLimiter, redisCheck := rateLimitMiddleware(logger)
	defer closeLimiter()
	if redisCheck != nil {
		readiness = append(readiness, runtime.ReadyCheck{Name: "redis", Check: redisCheck})
	}

	if err := startGrpcServer(ctx, logger, service, readiness); err != nil {
		logger.Error("grpc server init failed", "err", err)
	}

	mux := runtime.NewBaseMuxWithReady(readiness...)
	schedulingHandler.Register(mux, rateLimitMW)

	requestTimeout := time.Duration(config.Int("REQUEST_TIMEOUT_SECONDS", 10, 1, 120)) * time.Second
	handler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins:   config.List("CORS_ALLOWED_ORIGINS", ""),
			AllowedMethods:   config.List("CORS_ALLOWED_METHODS", "GET,POST,PUT,DELETE,OPTIONS"),
			AllowedHeaders:   config.List("CORS_ALLOWED_HEADERS", "Content-Type,X-Request-Id,X-User-Id"),
			AllowCredentials: config.Bool("CORS_ALLOW_CREDENTIALS", false),
			MaxAge:           time.Duration(config.Int("CORS_MAX_AGE_SECONDS", 600, 1, 86400)) * time.Second,
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithBodyLimit(int64(config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20, 1, 10<<20))),
		httpx.WithTimeout(requestTimeout),
	)
	handler = otelhttp.NewHandler(handler, "scheduling")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr, "default_timezone", loc.String())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
