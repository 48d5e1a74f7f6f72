package models

import "time"

// SystemMetrics summarises process level counters for operators.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cacheHitRatio"`
	CacheHits                uint64    `json:"cacheHits"`
	CacheMisses              uint64    `json:"cacheMisses"`
	RequestsTotal            uint64    `json:"requestsTotal"`
	AverageRequestDurationMs float64   `json:"averageRequestDurationMs"`
	StoreOperations          uint64    `json:"storeOperations"`
	AverageStoreDurationMs   float64   `json:"averageStoreDurationMs"`
	TransactionAborts        uint64    `json:"transactionAborts"`
	Rollbacks                uint64    `json:"rollbacks"`
	NotificationsDelivered   uint64    `json:"notificationsDelivered"`
	NotificationFailures     uint64    `json:"notificationFailures"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generatedAt"`
}
