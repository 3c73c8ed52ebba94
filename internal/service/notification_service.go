package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/video-assignment-service/internal/events"
	"github.com/spec-kit/video-assignment-service/internal/notify"
	"github.com/spec-kit/video-assignment-service/internal/repository"
)

const (
	NotifyKindAssigned          = "video_assigned"
	NotifyKindUnassigned        = "video_unassigned"
	NotifyKindReclaimed         = "video_reclaimed"
	NotifyKindReclaimSupervisor = "video_reclaimed_supervisor"
	defaultNotificationTimeout  = 5 * time.Second
)

// NotificationService turns domain events into notifications. Delivery runs in the
// background and failures are only logged, so it never delays or undoes a state change.
type NotificationService struct {
	dispatcher events.Dispatcher
	notifier   notify.Notifier
	staff      repository.StaffRepository
	logger     *zap.Logger
	timeout    time.Duration

	wg sync.WaitGroup
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, notifier notify.Notifier, staff repository.StaffRepository, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		notifier:   notifier,
		staff:      staff,
		logger:     logger,
		timeout:    defaultNotificationTimeout,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventVideoAssigned, n.handleVideoAssigned)
	n.dispatcher.Subscribe(events.EventVideoUnassigned, n.handleVideoUnassigned)
	n.dispatcher.Subscribe(events.EventVideoReclaimed, n.handleVideoReclaimed)
}

// Wait blocks until pending deliveries finish or ctx ends.
func (n *NotificationService) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *NotificationService) handleVideoAssigned(ctx context.Context, event events.Event) error {
	if event.StaffID == "" {
		return nil
	}
	n.deliver(ctx, func(ctx context.Context) {
		n.send(ctx, event.StaffID, NotifyKindAssigned, event)
	})
	return nil
}

func (n *NotificationService) handleVideoUnassigned(ctx context.Context, event events.Event) error {
	if event.StaffID == "" {
		return nil
	}
	n.deliver(ctx, func(ctx context.Context) {
		n.send(ctx, event.StaffID, NotifyKindUnassigned, event)
	})
	return nil
}

func (n *NotificationService) handleVideoReclaimed(ctx context.Context, event events.Event) error {
	if event.StaffID == "" {
		return nil
	}
	n.deliver(ctx, func(ctx context.Context) {
		n.send(ctx, event.StaffID, NotifyKindReclaimed, event)
		if supervisor := n.supervisorOf(ctx, event.StaffID); supervisor != "" {
			n.send(ctx, supervisor, NotifyKindReclaimSupervisor, event)
		}
	})
	return nil
}

func (n *NotificationService) deliver(ctx context.Context, fn func(ctx context.Context)) {
	if n.notifier == nil {
		return
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
		defer cancel()
		fn(ctx)
	}()
}

func (n *NotificationService) send(ctx context.Context, recipient, kind string, event events.Event) {
	if err := n.notifier.Notify(ctx, recipient, kind, event); err != nil {
		n.logger.Warn("notification failed",
			zap.String("recipient", recipient),
			zap.String("kind", kind),
			zap.String("video_id", event.VideoID),
			zap.Error(err))
	}
}

func (n *NotificationService) supervisorOf(ctx context.Context, staffID string) string {
	if n.staff == nil {
		return ""
	}
	member, err := n.staff.GetByID(ctx, staffID)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			n.logger.Warn("supervisor lookup failed", zap.String("staff_id", staffID), zap.Error(err))
		}
		return ""
	}
	if member.SupervisorID == nil {
		return ""
	}
	return *member.SupervisorID
}
