// Package mailer delivers outbound email. The auth flows only depend on the
// Mailer interface; the transport is picked from configuration.
package mailer

import (
	"context"
	"fmt"
	"log"

	"github.com/Kyz7/chainverse/internal/config"
)

type Message struct {
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// New builds the mailer selected by MAIL_TRANSPORT. The returned close
// function releases broker connections and is never nil.
func New(cfg *config.Config) (Mailer, func() error, error) {
	switch cfg.MailTransport {
	case "smtp":
		return NewSMTPMailer(cfg), func() error { return nil }, nil
	case "rabbitmq":
		q, err := DialQueueMailer(cfg.RabbitMQURL)
		if err != nil {
			return nil, nil, err
		}
		return q, q.Close, nil
	case "log":
		return LogMailer{}, func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown mail transport %q", cfg.MailTransport)
	}
}

// LogMailer prints messages instead of sending them. Development only.
type LogMailer struct{}

func (LogMailer) Send(_ context.Context, msg Message) error {
	log.Printf("📧 [dev mail] to=%v subject=%q\n%s", msg.To, msg.Subject, msg.HTML)
	return nil
}
