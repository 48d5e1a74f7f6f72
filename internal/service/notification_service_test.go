package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/factory-ops-api/internal/dto"
	"github.com/noah-isme/factory-ops-api/internal/models"
	"github.com/noah-isme/factory-ops-api/internal/repository"
	appErrors "github.com/noah-isme/factory-ops-api/pkg/errors"
	"github.com/noah-isme/factory-ops-api/pkg/jobs"
)

func seedNotification(t *testing.T, h *harness, notificationType models.NotificationType, age time.Duration) string {
	t.Helper()
	id, err := h.store.Add(context.Background(), models.CollectionNotifications, models.Notification{
		Message:   string(notificationType) + " update",
		Date:      fixedNow.Add(-age),
		RequestID: "T1",
		Type:      notificationType,
		ReadBy:    []string{},
	})
	require.NoError(t, err)
	return id
}

func TestNotificationWindowHidesOldButKeepsThemAddressable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	recent := seedNotification(t, h, models.NotificationTypeJig, time.Hour)
	edge := seedNotification(t, h, models.NotificationTypeWork, 24*time.Hour)
	old := seedNotification(t, h, models.NotificationTypeJig, 25*time.Hour)

	views, unread, err := h.notifications.List(ctx, "u-1", dto.NotificationQuery{})
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, recent, views[0].ID, "newest first")
	assert.Equal(t, edge, views[1].ID)
	assert.Equal(t, 2, unread)

	view, err := h.notifications.Get(ctx, old, "u-1")
	require.NoError(t, err)
	assert.Equal(t, old, view.ID)
	assert.False(t, view.Read)

	_, err = h.notifications.Get(ctx, "missing", "u-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestNotificationListFilters(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	jig := seedNotification(t, h, models.NotificationTypeJig, time.Minute)
	seedNotification(t, h, models.NotificationTypeSample, 2*time.Minute)
	require.NoError(t, h.notifications.MarkRead(ctx, jig, "u-1"))

	views, unread, err := h.notifications.List(ctx, "u-1", dto.NotificationQuery{Type: "jig"})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.True(t, views[0].Read)
	assert.Zero(t, unread)

	views, unread, err = h.notifications.List(ctx, "u-1", dto.NotificationQuery{UnreadOnly: true})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, models.NotificationTypeSample, views[0].Type)
	assert.Equal(t, 1, unread)

	_, _, err = h.notifications.List(ctx, "u-1", dto.NotificationQuery{Type: "email"})
	require.Error(t, err)
}

func TestMarkReadIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := seedNotification(t, h, models.NotificationTypeJig, time.Minute)

	require.NoError(t, h.notifications.MarkRead(ctx, id, "u-1"))
	require.NoError(t, h.notifications.MarkRead(ctx, id, "u-1"))
	require.NoError(t, h.notifications.MarkRead(ctx, id, "u-2"))
	require.NoError(t, h.notifications.MarkRead(ctx, "missing", "u-1"))

	view, err := h.notifications.Get(ctx, id, "u-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"u-1", "u-2"}, view.ReadBy)
	assert.True(t, view.Read)
}

func TestMarkAllReadScopesByType(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	jigA := seedNotification(t, h, models.NotificationTypeJig, time.Minute)
	jigB := seedNotification(t, h, models.NotificationTypeJig, 2*time.Minute)
	quality := seedNotification(t, h, models.NotificationTypeQuality, 3*time.Minute)
	old := seedNotification(t, h, models.NotificationTypeJig, 30*time.Hour)
	require.NoError(t, h.notifications.MarkRead(ctx, jigB, "u-1"))

	changed, err := h.notifications.MarkAllRead(ctx, "u-1", dto.MarkAllReadRequest{Type: "jig"})
	require.NoError(t, err)
	assert.Equal(t, 1, changed)

	for id, want := range map[string]bool{jigA: true, jigB: true, quality: false, old: false} {
		view, err := h.notifications.Get(ctx, id, "u-1")
		require.NoError(t, err)
		assert.Equal(t, want, view.Read, id)
	}

	changed, err = h.notifications.MarkAllRead(ctx, "u-1", dto.MarkAllReadRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, changed)

	changed, err = h.notifications.MarkAllRead(ctx, "u-1", dto.MarkAllReadRequest{})
	require.NoError(t, err)
	assert.Zero(t, changed)
}

type failingAddStore struct {
	*repository.MemoryStore
}

func (s failingAddStore) Add(context.Context, string, interface{}) (string, error) {
	return "", errors.New("quota exceeded")
}

func TestNotifyFailureNeverFailsTheCaller(t *testing.T) {
	h := newHarness(t)
	metrics := NewMetricsService()
	svc := NewNotificationService(failingAddStore{h.store}, 0, nil, metrics, nil)

	svc.Notify(context.Background(), models.NotificationTypeJig, "hello", "T1")
	svc.Notify(context.Background(), models.NotificationType("email"), "hello", "T1")

	snapshot := metrics.Snapshot()
	assert.Equal(t, uint64(2), snapshot.NotificationFailures)
	assert.Zero(t, snapshot.NotificationsDelivered)
}

func TestNotifyThroughQueue(t *testing.T) {
	h := newHarness(t)
	queue := jobs.NewQueue("notifications", h.notifications.HandleJob, jobs.QueueConfig{Workers: 1, BufferSize: 4, MaxRetries: 1, RetryDelay: time.Millisecond, OnFailure: h.notifications.HandleFailure})
	queue.Start(context.Background())
	h.notifications.UseQueue(queue)

	h.notifications.Notify(context.Background(), models.NotificationTypeSample, "sample ready", "S-20240307-001")
	require.Eventually(t, func() bool { return len(h.storedNotifications(t)) == 1 }, time.Second, 5*time.Millisecond)
	queue.Stop()

	stored := h.storedNotifications(t)
	assert.Equal(t, "sample ready", stored[0].Message)
	assert.Equal(t, fixedNow, stored[0].Date)
	assert.Equal(t, []string{}, stored[0].ReadBy)
}
