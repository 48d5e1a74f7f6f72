package dto

// NotificationQuery mirrors supported listing filters.
type NotificationQuery struct {
	Type       string `form:"type" validate:"omitempty,oneof=jig quality work sample"`
	UnreadOnly bool   `form:"unread"`
}

// MarkAllReadRequest optionally scopes mark-all-read to one notification type.
type MarkAllReadRequest struct {
	Type string `json:"type" validate:"omitempty,oneof=jig quality work sample"`
}
