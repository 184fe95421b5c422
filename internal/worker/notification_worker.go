// Package worker delivers notifications off the request path.
package worker

import (
	"context"
	"errors"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/service"
)

// ErrQueueFull is returned when a notification is dropped.
var ErrQueueFull = errors.New("notification queue full")

// NotificationWorker queues notifications and delivers them in the
// background through the wrapped mailer. It satisfies service.Mailer.
type NotificationWorker struct {
	queue   chan queued
	next    service.Mailer
	logger  *zap.Logger
	dropped atomic.Int64
}

type queued struct {
	ctx context.Context
	n   service.Notification
}

// NewNotificationWorker builds a worker with a bounded queue.
func NewNotificationWorker(next service.Mailer, size int, logger *zap.Logger) *NotificationWorker {
	if size <= 0 {
		size = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationWorker{queue: make(chan queued, size), next: next, logger: logger}
}

// Send enqueues without blocking. A full queue drops the notification.
func (w *NotificationWorker) Send(ctx context.Context, n service.Notification) error {
	select {
	case w.queue <- queued{ctx: context.WithoutCancel(ctx), n: n}:
		return nil
	default:
		w.dropped.Add(1)
		w.logger.Warn("notification dropped",
			zap.String("event_type", string(n.EventType)),
			zap.String("ticket_id", n.TicketID))
		return ErrQueueFull
	}
}

// Run delivers queued notifications until ctx is done, then drains what is
// already queued.
func (w *NotificationWorker) Run(ctx context.Context) error {
	for {
		select {
		case item := <-w.queue:
			w.deliver(item)
		case <-ctx.Done():
			for {
				select {
				case item := <-w.queue:
					w.deliver(item)
				default:
					return nil
				}
			}
		}
	}
}

// Dropped reports how many notifications were discarded.
func (w *NotificationWorker) Dropped() int64 {
	return w.dropped.Load()
}

func (w *NotificationWorker) deliver(item queued) {
	if err := w.next.Send(item.ctx, item.n); err != nil {
		w.logger.Warn("notification delivery failed",
			zap.String("event_type", string(item.n.EventType)),
			zap.String("to", item.n.To),
			zap.Error(err))
	}
}

// StartNotificationWorker registers notification handlers.
func StartNotificationWorker(notificationService *service.NotificationService) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
}
