package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	awsgo_config "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"office_parking/internal/api"
	"office_parking/internal/api/handler"
	"office_parking/internal/api/middleware"
	"office_parking/internal/config"
	"office_parking/internal/domain"
	"office_parking/internal/feed"
	"office_parking/internal/kv"
	"office_parking/internal/repository/postgresql"
	"office_parking/internal/service"
)

func main() {
	// 1. Load Configuration
	cfg := config.Load()
	log.Println("Configuration loaded.")

	// 2. Setup Database Connection
	db, err := postgresql.NewDB(cfg)
	if err != nil {
		log.Fatalf("Could not connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connection established.")

	// 3. AWS SDK Config and SQS Client
	var sqsClient *sqs.Client
	if cfg.SQSNotificationQueueURL != "" || cfg.SQSChangeFeedQueueURL != "" {
		awsSDKCfg, err := awsgo_config.LoadDefaultConfig(context.TODO(), awsgo_config.WithRegion(cfg.AWSRegion))
		if err != nil {
			log.Fatalf("Could not load AWS SDK config: %v", err)
		}
		sqsClient = sqs.NewFromConfig(awsSDKCfg)
		log.Println("SQS client initialized for region:", cfg.AWSRegion)
	} else {
		log.Println("WARNING: no SQS queue URLs configured. Push fan-out and the change feed are disabled.")
	}

	// 4. Redis cache (optional)
	var cache *kv.Client
	if cfg.RedisAddr != "" {
		cache, err = kv.New(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			log.Printf("WARNING: could not connect to redis at %s: %v. Day capacity caching is disabled.", cfg.RedisAddr, err)
		} else {
			defer cache.Close()
			log.Println("Redis cache connected.")
		}
	} else {
		log.Println("WARNING: REDIS_ADDR is not configured. Day capacity caching is disabled.")
	}

	// 5. Initialize Repositories
	profileRepo := postgresql.NewPgProfileRepository(db)
	spotRepo := postgresql.NewPgParkingSpotRepository(db)
	bookingRepo := postgresql.NewPgBookingRepository(db)
	blockRepo := postgresql.NewPgSpotBlockRepository(db)
	pushTokenRepo := postgresql.NewPgPushTokenRepository(db)
	notificationRepo := postgresql.NewPgNotificationRepository(db)

	// init websocket manager
	webSocketManager := handler.NewWebSocketManager()
	go webSocketManager.Start()
	log.Println("WebSocket manager started.")

	// 6. Initialize Services
	authService := service.NewAuthService(profileRepo, cfg.JWTSecret, cfg.JWTExpirationHours)
	notifyService := service.NewNotifyService(notificationRepo, pushTokenRepo, sqsClient, cfg.SQSNotificationQueueURL)
	availabilityService := service.NewAvailabilityService(spotRepo, bookingRepo, blockRepo, profileRepo, cache)
	bookingService := service.NewBookingService(bookingRepo, spotRepo, blockRepo, profileRepo,
		availabilityService, notifyService, webSocketManager)
	executiveService := service.NewExecutiveService(spotRepo, bookingRepo, profileRepo, webSocketManager)

	// 7. Initialize Auth Middleware
	authMiddleware := middleware.NewAuthMiddleware(authService)

	// 8. Start the change-feed consumer
	var wg sync.WaitGroup
	consumerCtx, cancelConsumer := context.WithCancel(context.Background())

	if cfg.SQSChangeFeedQueueURL == "" {
		log.Println("WARNING: SQS_CHANGE_FEED_QUEUE_URL is not configured. Change feed consumer will not run.")
	} else {
		sqsConsumer := feed.NewSQSConsumer(sqsClient, cfg, availabilityService, webSocketManager)
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Println("Change feed consumer is listening on queue:", cfg.SQSChangeFeedQueueURL)
			sqsConsumer.Start(consumerCtx)
			log.Println("Change feed consumer stopped.")
		}()
	}

	// start background job to cancel stale pending/waitlist bookings
	go startStaleBookingCleanupJob(bookingService)

	// 9. Setup HTTP Router
	router := api.SetupRouter(authService, availabilityService, bookingService,
		executiveService, notifyService, authMiddleware, webSocketManager)

	// 10. Start HTTP Server
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	go func() {
		log.Printf("Server is running on port %s", cfg.ServerPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("ListenAndServe() error: %v", err)
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	cancelConsumer()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shut down: %v", err)
	}

	if cfg.SQSChangeFeedQueueURL != "" {
		log.Println("Waiting for change feed consumer to stop (up to 5 seconds)...")
		c := make(chan struct{})
		go func() {
			defer close(c)
			wg.Wait()
		}()
		select {
		case <-c:
			log.Println("Change feed consumer stopped cleanly.")
		case <-time.After(5 * time.Second):
			log.Println("Change feed consumer did not stop in time.")
		}
	}

	log.Println("Server exited.")
}

// startStaleBookingCleanupJob cancels pending and waitlist bookings whose day
// has already passed, once an hour.
func startStaleBookingCleanupJob(bookingService *service.BookingService) {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		today := time.Now().Format(domain.DateLayout)
		count, err := bookingService.CancelStale(ctx, today)
		if err != nil {
			log.Printf("Error cancelling stale bookings: %v", err)
		} else if count > 0 {
			log.Printf("Cancelled %d stale bookings", count)
		}
		cancel()
	}
}
