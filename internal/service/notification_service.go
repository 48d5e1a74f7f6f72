package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/factory-ops-api/internal/dto"
	"github.com/noah-isme/factory-ops-api/internal/models"
	"github.com/noah-isme/factory-ops-api/internal/repository"
	appErrors "github.com/noah-isme/factory-ops-api/pkg/errors"
	"github.com/noah-isme/factory-ops-api/pkg/jobs"
)

// NotificationJobKind tags queued notification writes.
const NotificationJobKind = "notification.create"

// Notifier records that something worth telling operators happened. It never
// fails the caller.
type Notifier interface {
	Notify(ctx context.Context, notificationType models.NotificationType, message, requestID string)
}

type notificationQueue interface {
	TryEnqueue(job jobs.Job) error
}

type notificationPayload struct {
	Type      models.NotificationType
	Message   string
	RequestID string
	Date      time.Time
}

// NotificationService writes notification documents for the push fan-out and
// serves the per-user read side.
type NotificationService struct {
	store     repository.Store
	queue     notificationQueue
	window    time.Duration
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
	now       func() time.Time
}

// NewNotificationService constructs the service. window bounds the active list.
func NewNotificationService(store repository.Store, window time.Duration, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger) *NotificationService {
	if window <= 0 {
		window = 24 * time.Hour
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		store:     store,
		window:    window,
		validator: validate,
		metrics:   metrics,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// UseQueue routes Notify through q. Without a queue notifications are written inline.
func (s *NotificationService) UseQueue(q notificationQueue) {
	s.queue = q
}

// Notify records a notification after the primary change succeeded. Failures
// are logged and counted only.
func (s *NotificationService) Notify(ctx context.Context, notificationType models.NotificationType, message, requestID string) {
	payload := notificationPayload{Type: notificationType, Message: message, RequestID: requestID, Date: s.now()}
	if !notificationType.Valid() {
		s.logger.Warn("dropping notification with unknown type", zap.String("type", string(notificationType)), zap.String("request_id", requestID))
		s.metrics.RecordNotification(string(notificationType), false)
		return
	}
	if s.queue == nil {
		if err := s.deliver(ctx, payload); err != nil {
			s.reportFailure(payload, err)
		}
		return
	}
	job := jobs.Job{ID: uuid.NewString(), Kind: NotificationJobKind, Payload: payload, Enqueued: payload.Date}
	if err := s.queue.TryEnqueue(job); err != nil {
		s.reportFailure(payload, err)
	}
}

// HandleJob is the queue handler writing one notification document.
func (s *NotificationService) HandleJob(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(notificationPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T for job %s", job.Payload, job.Kind)
	}
	return s.deliver(ctx, payload)
}

// HandleFailure observes jobs that exhausted their retries.
func (s *NotificationService) HandleFailure(job jobs.Job, err error) {
	payload, _ := job.Payload.(notificationPayload)
	s.reportFailure(payload, err)
}

func (s *NotificationService) deliver(ctx context.Context, payload notificationPayload) error {
	notification := models.Notification{
		Message:   payload.Message,
		Date:      payload.Date,
		RequestID: payload.RequestID,
		Type:      payload.Type,
		ReadBy:    []string{},
	}
	if _, err := s.store.Add(ctx, models.CollectionNotifications, notification); err != nil {
		return err
	}
	s.metrics.RecordNotification(string(payload.Type), true)
	return nil
}

func (s *NotificationService) reportFailure(payload notificationPayload, err error) {
	s.metrics.RecordNotification(string(payload.Type), false)
	s.logger.Warn("notification not recorded",
		zap.String("type", string(payload.Type)),
		zap.String("request_id", payload.RequestID),
		zap.Error(err))
}

// List returns the user's view of notifications inside the active window,
// newest first, with the number of unread ones.
func (s *NotificationService) List(ctx context.Context, userID string, query dto.NotificationQuery) ([]models.NotificationView, int, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, 0, appErrors.WrapAs(appErrors.ErrValidation, err, "invalid notification filter")
	}
	notifications, err := s.active(ctx, models.NotificationType(query.Type))
	if err != nil {
		return nil, 0, appErrors.WrapAs(appErrors.ErrInternal, err, "failed to list notifications")
	}
	views := make([]models.NotificationView, 0, len(notifications))
	unread := 0
	for _, n := range notifications {
		read := n.IsReadBy(userID)
		if !read {
			unread++
		}
		if query.UnreadOnly && read {
			continue
		}
		views = append(views, models.NotificationView{Notification: n, Read: read})
	}
	return views, unread, nil
}

// Get returns one notification by id regardless of its age.
func (s *NotificationService) Get(ctx context.Context, id, userID string) (*models.NotificationView, error) {
	n, found, err := repository.NewCollection[models.Notification](s.store, models.CollectionNotifications).Get(ctx, id)
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrInternal, err, "failed to load notification")
	}
	if !found {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "notification not found")
	}
	return &models.NotificationView{Notification: *n, Read: n.IsReadBy(userID)}, nil
}

// MarkRead adds userID to the notification's readBy set. Unknown ids are ignored.
func (s *NotificationService) MarkRead(ctx context.Context, id, userID string) error {
	if userID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "user id is required")
	}
	err := s.store.Update(ctx, models.CollectionNotifications, id, repository.Patch{"readBy": repository.Union(userID)})
	if err != nil && !errors.Is(err, repository.ErrDocumentNotFound) {
		return appErrors.WrapAs(appErrors.ErrWriteFailed, err, "failed to mark notification read")
	}
	return nil
}

// MarkAllRead marks every active notification the user has not read, of
// notificationType when set, in one batched write. It returns how many changed.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string, req dto.MarkAllReadRequest) (int, error) {
	if userID == "" {
		return 0, appErrors.Clone(appErrors.ErrValidation, "user id is required")
	}
	if err := s.validator.Struct(req); err != nil {
		return 0, appErrors.WrapAs(appErrors.ErrValidation, err, "invalid notification type")
	}
	notifications, err := s.active(ctx, models.NotificationType(req.Type))
	if err != nil {
		return 0, appErrors.WrapAs(appErrors.ErrInternal, err, "failed to list notifications")
	}
	batch := s.store.Batch()
	for _, n := range notifications {
		if !n.IsReadBy(userID) {
			batch.Update(models.CollectionNotifications, n.ID, repository.Patch{"readBy": repository.Union(userID)})
		}
	}
	if batch.Len() == 0 {
		return 0, nil
	}
	if err := batch.Commit(ctx); err != nil {
		return 0, appErrors.WrapAs(appErrors.ErrWriteFailed, err, "failed to mark notifications read")
	}
	return batch.Len(), nil
}

func (s *NotificationService) active(ctx context.Context, notificationType models.NotificationType) ([]models.Notification, error) {
	now := s.now()
	q := repository.Query{
		Filters:    []repository.Filter{repository.Where("date", repository.OpGte, now.Add(-s.window))},
		OrderBy:    "date",
		Descending: true,
	}
	if notificationType != "" {
		q.Filters = append(q.Filters, repository.Where("type", repository.OpEq, string(notificationType)))
	}
	notifications, err := repository.NewCollection[models.Notification](s.store, models.CollectionNotifications).List(ctx, q)
	if err != nil {
		return nil, err
	}
	active := notifications[:0]
	for _, n := range notifications {
		if n.ActiveAt(now, s.window) {
			active = append(active, n)
		}
	}
	return active, nil
}
