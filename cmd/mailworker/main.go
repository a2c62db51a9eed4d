package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"github.com/Kyz7/chainverse/internal/config"
	"github.com/Kyz7/chainverse/internal/mailer"
)

// mailworker drains the outbound mail queue filled by MAIL_TRANSPORT=rabbitmq
// and delivers each message over SMTP.
func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("📬 Mail worker consuming %q", mailer.OutboundQueue)
	err := mailer.Consume(ctx, cfg.RabbitMQURL, mailer.NewSMTPMailer(cfg))
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("❌ Mail worker stopped: ", err)
	}
	log.Println("🛑 Mail worker stopped")
}
