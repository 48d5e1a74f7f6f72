package models

import (
	"slices"
	"time"
)

// NotificationType routes a notification to a detail view and to per-user opt-out preferences.
type NotificationType string

const (
	NotificationTypeJig     NotificationType = "jig"
	NotificationTypeQuality NotificationType = "quality"
	NotificationTypeWork    NotificationType = "work"
	NotificationTypeSample  NotificationType = "sample"
)

// Valid reports membership in the notification taxonomy.
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationTypeJig, NotificationTypeQuality, NotificationTypeWork, NotificationTypeSample:
		return true
	}
	return false
}

// Notification is the document consumed by the push fan-out trigger.
type Notification struct {
	ID        string           `json:"id"`
	Message   string           `json:"message"`
	Date      time.Time        `json:"date"`
	RequestID string           `json:"requestId"`
	Type      NotificationType `json:"type"`
	ReadBy    []string         `json:"readBy"`
}

// IsReadBy reports whether userID acknowledged the notification.
func (n Notification) IsReadBy(userID string) bool {
	return slices.Contains(n.ReadBy, userID)
}

// ActiveAt reports whether the notification falls inside the rolling window ending at now.
func (n Notification) ActiveAt(now time.Time, window time.Duration) bool {
	return !n.Date.Before(now.Add(-window))
}

// NotificationView is a notification as seen by one user.
type NotificationView struct {
	Notification
	Read bool `json:"read"`
}

// NotificationFilter narrows the active notification list.
type NotificationFilter struct {
	Type       NotificationType
	UnreadOnly bool
}
