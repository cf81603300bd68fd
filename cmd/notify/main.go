package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/tazhibayda/feed-service/internal/config"
	"github.com/tazhibayda/feed-service/internal/log"
	"github.com/tazhibayda/feed-service/internal/mail"
	"github.com/tazhibayda/feed-service/internal/queue"
)

// notify consumes user.registered events and mails the confirmation link.
func main() {
	cfg := config.Load()

	logger, err := log.Init(cfg.Production)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if cfg.RabbitURL == "" {
		log.Errorf("RABBIT_URL is required")
		os.Exit(1)
	}
	cons, err := queue.NewConsumer(cfg.RabbitURL, cfg.Exchange, cfg.NotifyQueue, queue.KeyUserRegistered)
	if err != nil {
		log.Errorf("rabbit consumer init failed: %v", err)
		os.Exit(1)
	}
	defer cons.Close()

	var sender mail.Sender = mail.LogSender{L: logger}
	if cfg.SMTPAddr != "" {
		sender = mail.SMTPSender{Addr: cfg.SMTPAddr, From: cfg.MailFrom, User: cfg.SMTPUser, Pass: cfg.SMTPPass}
	} else {
		log.Infof("SMTP_ADDR not set, mail is written to the log")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Infof("notify up. exchange=%s queue=%s key=%s workers=%d",
		cfg.Exchange, cfg.NotifyQueue, queue.KeyUserRegistered, cfg.NotifyWorkers)

	err = cons.Consume(ctx, cfg.NotifyWorkers, mail.HandleRegistered(sender, cfg.PublicURL))
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Errorf("consumer stopped: %v", err)
	}
}
