package main // Entry point package

import (
    "context" // lifecycle control for background goroutines
    "log"     // Logging library

    "github.com/joho/godotenv"    // loads .env files in development
    "github.com/labstack/echo/v4" // Echo web framework

    "github.com/hoangvu/cinema-booking/internal/broadcast"  // Redis seat-state pub/sub
    "github.com/hoangvu/cinema-booking/internal/config"     // Internal config loader
    "github.com/hoangvu/cinema-booking/internal/database"   // MySQL connection helper
    "github.com/hoangvu/cinema-booking/internal/gateway"    // payment provider client
    "github.com/hoangvu/cinema-booking/internal/handler"    // HTTP handlers
    "github.com/hoangvu/cinema-booking/internal/middleware" // rate limiting and caching
    "github.com/hoangvu/cinema-booking/internal/queue"      // RabbitMQ publisher and consumer
    "github.com/hoangvu/cinema-booking/internal/repository" // persistence layer
    "github.com/hoangvu/cinema-booking/internal/router"     // route registration
    "github.com/hoangvu/cinema-booking/internal/service"    // booking core
)

func main() {
    // Load a local .env when present; in production the variables come
    // from the environment directly and a missing file is fine.
    _ = godotenv.Load()
    cfg := config.Load() // Load environment config

    db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
    if err != nil {
        log.Fatalf("database connection failed: %v", err)
    }
    defer db.Close()

    // Redis backs rate limiting, response caching and the seat-state
    // broadcast.  All three degrade gracefully when it is unreachable.
    rdb := config.NewRedisClient()
    if rdb == nil {
        log.Println("redis unavailable; rate limiting, caching and seat broadcast disabled")
    }

    store := repository.NewStore(db)
    catalogRepo := repository.NewCatalogRepo(db)
    bookingRepo := repository.NewBookingRepo(db)
    userRepo := repository.NewUserRepo(db)

    pay := gateway.New(gateway.Config{
        BaseURL:    cfg.PayBaseURL,
        MerchantID: cfg.PayMerchantID,
        Secret:     cfg.PaySecret,
        ReturnURL:  cfg.PayReturnURL,
        CancelURL:  cfg.PayCancelURL,
    })

    seatCast := broadcast.NewPublisher(rdb)
    notifier := queue.NewPublisher()

    sessions := service.NewSessions(store, store, seatCast, cfg.SessionTTL, cfg.LockTTL)
    checkout := service.NewCheckout(store, store, pay, cfg.PaymentWindow, cfg.SessionTTL)
    reconciler := service.NewReconciler(store, store, store, store, seatCast, notifier, cfg.SessionTTL)

    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()
    // Expired-lock housekeeping; correctness never depends on it.
    go service.RunLockSweeper(ctx, store, cfg.SweepEvery)
    // Ticket-email worker consuming booking.confirmed; runs its own
    // reconnect loop for the broker.
    go func() {
        if err := queue.StartTicketMailer(); err != nil {
            log.Printf("ticket-mailer stopped: %v", err)
        }
    }()

    e := echo.New() // Create Echo instance

    // Distributed rate limiting in front of everything.
    e.Use(middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))
    // Short-TTL response cache; only GETs are cached and the seat map
    // tolerates the staleness because mutations revalidate at write
    // time and clients also receive pub/sub updates.
    e.Use(middleware.NewRedisCache(config.LoadCacheConfig(), rdb))

    router.RegisterRoutes(e) // health check
    router.RegisterAuth(e, handler.NewAuthHandler(cfg, userRepo))
    router.RegisterCatalog(e, handler.NewCatalogHandler(catalogRepo))

    router.RegisterSessions(e, handler.NewSessionHandler(sessions, checkout), cfg.JWTSecret)
    router.RegisterPayments(e, handler.NewPaymentHandler(reconciler, store, pay, cfg.PaySecret))
    router.RegisterBookings(e, handler.NewBookingHandler(bookingRepo), cfg.JWTSecret)

    addr := ":" + cfg.Port                                // Address string with port
    log.Printf("listening on %s (env=%s)", addr, cfg.Env) // Print startup info

    if err := e.Start(addr); err != nil { // Start HTTP server
        log.Fatal(err) // Log and exit if server fails
    }
}
