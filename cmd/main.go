package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Kyz7/chainverse/internal/config"
	"github.com/Kyz7/chainverse/internal/database"
	"github.com/Kyz7/chainverse/internal/mailer"
	"github.com/Kyz7/chainverse/internal/otp"
	"github.com/Kyz7/chainverse/internal/server"
	"github.com/Kyz7/chainverse/internal/user"
	"github.com/Kyz7/chainverse/internal/utils"
)

func main() {
	cfg := config.Load()

	if err := cfg.Validate(); err != nil {
		log.Fatal("❌ Configuration Error: ", err)
	}
	log.Println("✅ Token secrets validated")

	// ========== DATABASE SETUP ==========
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatal("❌ Database connection failed:", err)
	}

	if err := database.Migrate(db); err != nil {
		log.Fatal("❌ Migration failed: ", err)
	}
	log.Println("✅ Database migrated successfully")

	if err := database.RunMigrations(db, "./migrations"); err != nil {
		log.Printf("⚠️  SQL migrations failed: %v", err)
	} else {
		log.Println("✅ SQL migrations completed successfully")
	}

	// ========== OTP STORE ==========
	var store otp.Store
	switch cfg.OTPStore {
	case "redis":
		rdb, err := database.NewRedisClient(cfg)
		if err != nil {
			log.Fatal("❌ Redis connection failed:", err)
		}
		defer rdb.Close()
		store = otp.NewRedisStore(rdb)
		log.Printf("🔑 OTP store: redis (%s)", cfg.RedisAddr)
	default:
		store = otp.NewGormStore(db)
		log.Println("🔑 OTP store: database")
	}

	// ========== MAIL ==========
	mail, closeMail, err := mailer.New(cfg)
	if err != nil {
		log.Fatal("❌ Mailer setup failed:", err)
	}
	defer closeMail()
	log.Printf("📧 Mail transport: %s", cfg.MailTransport)

	// ========== SEED DEFAULT DATA ==========
	if err := user.SeedDefaultAdmin(context.Background(), user.NewService(db), cfg.DefaultAdminEmail, cfg.DefaultAdminPassword); err != nil {
		log.Println("⚠️  Failed to seed default admin:", err)
	}

	// ========== BACKGROUND JOBS ==========
	cleanup, err := database.StartCleanup(db, cfg.CleanupSchedule)
	if err != nil {
		log.Fatal("❌ ", err)
	}
	defer cleanup.Stop()
	log.Printf("🧹 Cleanup scheduled: %s", cfg.CleanupSchedule)

	// ========== START SERVER ==========
	app := server.New(server.Deps{
		Config: cfg,
		DB:     db,
		Issuer: utils.NewTokenIssuer(cfg),
		OTPs:   otp.NewService(store, cfg.OTPTTL),
		Mailer: mail,
	})

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Println("🛑 Shutting down...")
		_ = app.Shutdown()
	}()

	log.Printf("🚀 ChainVerse API starting on %s", cfg.ServerAddr)
	log.Printf("🔐 Surfaces: user, admin, communityAdmin")

	if err := app.Listen(cfg.ServerAddr); err != nil {
		log.Fatal("❌ Failed to start server:", err)
	}
}
