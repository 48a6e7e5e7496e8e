package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/senecalabs/seneca-accounts/config"
	"github.com/senecalabs/seneca-accounts/pkg/mailer"
	mailtpl "github.com/senecalabs/seneca-accounts/pkg/mailer/templates"
)

type mailSender interface {
	Send(ctx context.Context, to, subject, text, html string) error
}

// handleDelivery processes one queued job. ack reports success; otherwise
// requeue says whether the message gets redelivered. Malformed and
// unrenderable jobs are dropped outright. A failed send is retried through
// one redelivery and then dropped, so a poison job cannot spin the worker
// and the gateway forever.
func handleDelivery(ctx context.Context, mg mailSender, body []byte, redelivered bool) (ack, requeue bool) {
	var job mailer.EmailJob
	if err := json.Unmarshal(body, &job); err != nil {
		log.Printf("bad message: %v", err)
		return false, false
	}
	if job.To == "" {
		log.Printf("message without recipient, dropping")
		return false, false
	}

	subject := job.Subject
	text := job.Text
	html := job.HTML
	if job.Template != "" {
		s, t, h, rerr := mailtpl.Render(job.Template, job.Data)
		if rerr != nil {
			log.Printf("render %s failed: %v", job.Template, rerr)
			return false, false
		}
		subject, text, html = s, t, h
	}

	c, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := mg.Send(c, job.To, subject, text, html); err != nil {
		if redelivered {
			log.Printf("send failed again, dropping: %v", err)
			return false, false
		}
		log.Printf("send failed, requeueing once: %v", err)
		return false, true
	}
	return true, false
}

// The worker drains the email queue and delivers through Mailgun.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	if !cfg.MailSendEnabled {
		log.Println("MAIL_SEND_ENABLED=false; email worker disabled (no real emails will be sent)")
		return
	}
	if cfg.RabbitMQURL == "" || cfg.RabbitMQEmailQueue == "" {
		log.Fatal("RabbitMQ not configured")
	}
	if cfg.MailgunDomain == "" || cfg.MailgunAPIKey == "" || cfg.MailgunSender == "" {
		log.Fatal("Mailgun not configured")
	}

	conn, err := amqp.Dial(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("amqp dial: %v", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatalf("amqp channel: %v", err)
	}
	defer func() { _ = ch.Close() }()

	// Prefetch for fair dispatch
	if err := ch.Qos(16, 0, false); err != nil {
		log.Fatalf("qos: %v", err)
	}

	if _, err := ch.QueueDeclare(cfg.RabbitMQEmailQueue, true, false, false, false, nil); err != nil {
		log.Fatalf("queue declare: %v", err)
	}

	msgs, err := ch.Consume(cfg.RabbitMQEmailQueue, "", false, false, false, false, nil)
	if err != nil {
		log.Fatalf("consume: %v", err)
	}

	mg := mailer.NewMailgun(cfg.MailgunDomain, cfg.MailgunAPIKey, cfg.MailgunSender)
	ctx := context.Background()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		for msg := range msgs {
			ack, requeue := handleDelivery(ctx, mg, msg.Body, msg.Redelivered)
			if ack {
				_ = msg.Ack(false)
			} else {
				_ = msg.Nack(false, requeue)
			}
		}
		close(done)
	}()

	log.Printf("email worker listening on queue=%s", cfg.RabbitMQEmailQueue)
	<-stop
	log.Printf("shutting down...")
	select {
	case <-done:
	case <-time.After(2 * time.Second):
	}
}
