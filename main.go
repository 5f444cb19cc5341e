package main

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"eventos-backend/config"
	"eventos-backend/db"
	"eventos-backend/handlers"
	"eventos-backend/mailer"
	"eventos-backend/storage"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using default environment variables")
	}

	cfg := config.Load()
	if cfg.Secret == "" {
		log.Fatal("SECRET must be set")
	}

	conn, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer conn.Close()

	if err := db.Migrate(conn); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	emailSender := &mailer.SMTPSender{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		From:     cfg.SMTPFrom,
		Password: cfg.SMTPPassword,
	}
	smsSender := mailer.NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber)
	uploader := storage.NewS3Uploader(cfg.S3Bucket)
	qrClient := storage.NewQRClient(cfg.QRRendererURL)

	userHandler := handlers.NewUserHandler(conn, cfg)
	eventHandler := handlers.NewEventHandler(conn, uploader, cfg)
	enrollmentHandler := handlers.NewEnrollmentHandler(conn, uploader, emailSender, qrClient, cfg)
	admissionHandler := handlers.NewAdmissionHandler(conn, emailSender, qrClient, cfg)
	policyHandler := handlers.NewPolicyHandler(conn)
	notificationHandler := handlers.NewNotificationHandler(conn, emailSender, smsSender)
	statisticsHandler := handlers.NewStatisticsHandler(conn, cfg)
	invitationHandler := handlers.NewInvitationHandler(conn, cfg)
	checkinHandler := handlers.NewCheckinHandler(conn)

	router := gin.Default()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"http://localhost:3000", "http://localhost:3001"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	api := router.Group("/api/v1")
	{
		// Auth
		api.POST("/signup", userHandler.Signup)
		api.POST("/login", userHandler.Login)
		api.GET("/me", handlers.AuthRequired(cfg.Secret), userHandler.GetMe)

		// Public and semi-public event reads
		public := api.Group("", handlers.AuthOptional(cfg.Secret))
		{
			public.GET("/events", eventHandler.ListEvents)
			public.GET("/events/:id", eventHandler.GetEvent)
			public.GET("/events/:id/programming", policyHandler.GetProgramming)
			public.GET("/events/:id/technical-info", policyHandler.GetTechnicalInfo)
			public.GET("/events/:id/certificate", policyHandler.GetCertificate)
			public.GET("/events/:id/participants/:participantID/evaluation", policyHandler.GetEvaluatorView)

			// Enrollment is open to anonymous visitors; the form carries
			// the identity and the account is created on the fly.
			public.POST("/events/:id/enroll/:track", enrollmentHandler.Enroll)
		}

		// Authenticated operations
		auth := api.Group("", handlers.AuthRequired(cfg.Secret))
		{
			auth.POST("/events", eventHandler.CreateEvent)
			auth.PUT("/events/:id", eventHandler.UpdateEvent)
			auth.POST("/events/:id/activate", eventHandler.ActivateEvent)
			auth.POST("/events/:id/publish", eventHandler.PublishEvent)
			auth.POST("/events/:id/finalize", eventHandler.FinalizeEvent)
			auth.POST("/events/:id/archive", eventHandler.ArchiveEvent)
			auth.POST("/events/depublish-expired", eventHandler.DepublishExpired)

			auth.GET("/events/:id/enrollment", enrollmentHandler.GetMyEnrollment)
			auth.DELETE("/events/:id/enrollment", enrollmentHandler.Cancel)
			auth.GET("/events/:id/enrollments", enrollmentHandler.ListEnrollments)

			auth.POST("/events/:id/enrollments/:enrollmentID/approve", admissionHandler.Approve)
			auth.POST("/events/:id/enrollments/:enrollmentID/reject", admissionHandler.Reject)

			auth.POST("/events/:id/checkin", checkinHandler.CheckIn)
			auth.GET("/events/:id/checkins", checkinHandler.GetCheckins)

			auth.POST("/events/:id/notifications", notificationHandler.Send)
			auth.GET("/events/:id/statistics", statisticsHandler.GetStatistics)
			auth.GET("/events/:id/roster", statisticsHandler.DownloadRoster)

			auth.POST("/invitations", invitationHandler.Issue)
			auth.GET("/invitations", invitationHandler.List)
			auth.POST("/invitations/:token/revoke", invitationHandler.Revoke)
		}

		// Redeeming an invitation needs no session, just the token.
		api.POST("/invitations/redeem", invitationHandler.Redeem)
	}

	router.GET("/health", func(c *gin.Context) {
		if err := conn.Ping(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database connection failed: " + err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now().Unix(),
		})
	})

	log.Printf("Server starting on port %s", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
