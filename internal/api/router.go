package api

import (
	"office_parking/internal/api/handler"
	"office_parking/internal/api/middleware"
	"office_parking/internal/service"

	"github.com/gin-gonic/gin"
)

func SetupRouter(
	as *service.AuthService,
	avs *service.AvailabilityService,
	bs *service.BookingService,
	es *service.ExecutiveService,
	ns *service.NotifyService,
	authMw *middleware.AuthMiddleware,
	wsManager *handler.WebSocketManager,
) *gin.Engine {
	r := gin.Default()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())

	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	// WebSocket endpoint for real-time map refreshes (no auth on the upgrade).
	wsHandler := handler.NewWebSocketHandler(wsManager)
	r.GET("/ws", wsHandler.HandleWebSocket)

	authHandler := handler.NewAuthHandler(as)
	authRoutes := r.Group("/auth")
	{
		authRoutes.POST("/register", authHandler.Register)
		authRoutes.POST("/login", authHandler.Login)
	}

	v1 := r.Group("/api/v1")
	v1.Use(authMw.Authenticate())
	{
		availabilityH := handler.NewAvailabilityHandler(avs)
		v1.GET("/spots", availabilityH.GetDayOverview)
		v1.GET("/days", availabilityH.GetDayRange)

		executiveH := handler.NewExecutiveHandler(es)
		spotRoutes := v1.Group("/spots")
		{
			spotRoutes.POST("/:id/release", authMw.AuthorizeRole("directivo"), executiveH.ReleaseSpot)
			spotRoutes.POST("/:id/reoccupy", authMw.AuthorizeRole("directivo"), executiveH.ReoccupySpot)
		}

		bookingH := handler.NewBookingHandler(bs)
		bookingRoutes := v1.Group("/bookings")
		{
			bookingRoutes.POST("", bookingH.CreateBooking)
			bookingRoutes.POST("/pool", bookingH.RequestPoolBooking)
			bookingRoutes.GET("", bookingH.ListOwnBookings)
			bookingRoutes.DELETE("/:id", bookingH.CancelBooking)
			bookingRoutes.PUT("/:id/carpool", bookingH.SetCarpool)
		}

		notificationH := handler.NewNotificationHandler(ns)
		v1.GET("/notifications", notificationH.ListNotifications)
		tokenRoutes := v1.Group("/push-tokens")
		{
			tokenRoutes.POST("", notificationH.RegisterPushToken)
			tokenRoutes.DELETE("/:token", notificationH.UnregisterPushToken)
		}

		adminH := handler.NewAdminHandler(bs, es, as)
		adminRoutes := v1.Group("/admin")
		adminRoutes.Use(authMw.AuthorizeRole("admin"))
		{
			adminRoutes.GET("/bookings", adminH.ListPendingBookings)
			adminRoutes.PUT("/bookings/:id/status", adminH.SetBookingStatus)

			adminRoutes.POST("/spot-blocks", adminH.CreateSpotBlock)
			adminRoutes.GET("/spot-blocks", adminH.ListSpotBlocks)
			adminRoutes.DELETE("/spot-blocks/:id", adminH.DeleteSpotBlock)

			adminRoutes.PUT("/users/:id/role", adminH.ChangeUserRole)
			adminRoutes.PUT("/users/:id/verify", adminH.VerifyUser)
		}
	}
	return r
}
