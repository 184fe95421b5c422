package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/service"
)

const webhookTimeout = 5 * time.Second

// WebhookMailer posts each notification as JSON to a URL and then passes it
// on to next, if set.
type WebhookMailer struct {
	URL  string
	Next service.Mailer
}

func (m WebhookMailer) Send(ctx context.Context, n service.Notification) error {
	var errs []error
	if m.URL != "" {
		errs = append(errs, m.post(n))
	}
	if m.Next != nil {
		errs = append(errs, m.Next.Send(ctx, n))
	}
	return errors.Join(errs...)
}

func (m WebhookMailer) post(n service.Notification) error {
	agent := fiber.Post(m.URL).JSON(n).Timeout(webhookTimeout)
	status, _, errs := agent.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("webhook: %w", errors.Join(errs...))
	}
	if status >= fiber.StatusBadRequest {
		return fmt.Errorf("webhook: unexpected status %d", status)
	}
	return nil
}
